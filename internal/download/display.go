package download

import (
	"context"
	"fmt"
	"math"

	"pocketllm/pkg/types"
)

// ButtonText maps a model's state to the label a client should render on
// its action button. Manifest membership wins over any progress record.
func (o *Orchestrator) ButtonText(ctx context.Context, id string) string {
	if o.manifest.Contains(ctx, id) {
		return "Downloaded"
	}
	rec, ok := o.Progress(id)
	if !ok {
		return "Download"
	}
	switch rec.Status {
	case types.StatusDownloading:
		return fmt.Sprintf("%d%%", int(math.Round(rec.Progress*100)))
	case types.StatusError:
		return "Retry"
	case types.StatusCompleted:
		return "Downloaded"
	default:
		return "Download"
	}
}

// IsDownloaded reports manifest membership.
func (o *Orchestrator) IsDownloaded(ctx context.Context, id string) bool {
	return o.manifest.Contains(ctx, id)
}

// FormatFileSize renders a byte count the way the model list displays it:
// megabytes with one decimal below a gigabyte, gigabytes above.
func FormatFileSize(n int64) string {
	const (
		mb = 1024 * 1024
		gb = 1024 * mb
	)
	if n < gb {
		return fmt.Sprintf("%.1f MB", float64(n)/float64(mb))
	}
	return fmt.Sprintf("%.1f GB", float64(n)/float64(gb))
}
