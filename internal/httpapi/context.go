package httpapi

import (
	"context"
)

// serverBaseCtx is canceled when the process begins shutting down, so
// in-flight generations and downloads stop with the server.
var serverBaseCtx = context.Background()

// SetBaseContext installs the shutdown context handlers derive from.
// A nil ctx restores the Background default.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives a context canceled as soon as either parent is done.
// Callers must invoke cancel when the handler returns to free the watcher.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		}
	}()
	return ctx, cancel
}
