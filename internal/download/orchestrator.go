// Package download drives bulk model transfers: one concurrent transfer
// per selected model, per-model progress records, and manifest finalization
// on completion.
package download

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"pocketllm/internal/events"
	"pocketllm/internal/registry"
	"pocketllm/internal/store"
	"pocketllm/pkg/types"
)

// Notifier surfaces per-model failures to a UI collaborator. Errors are
// reported here instead of propagating out of the settle-all join.
type Notifier interface {
	Alert(title, message string)
}

type noopNotifier struct{}

func (noopNotifier) Alert(string, string) {}

// Config wires an Orchestrator.
type Config struct {
	Client    TransferClient
	Manifest  *store.Manifest
	Library   *registry.Library
	Notifier  Notifier
	Publisher events.Publisher
	Logger    zerolog.Logger
}

// Orchestrator owns the mapping from model id to in-flight transfer state.
// Each transfer writes only its own progress key, so concurrent transfers
// never contend on the same entry; readers of the full mapping may observe
// a partially-updated view.
type Orchestrator struct {
	mu        sync.RWMutex
	available []types.Model
	progress  map[string]types.DownloadProgress
	selected  map[string]struct{}
	inflight  int

	client    TransferClient
	manifest  *store.Manifest
	library   *registry.Library
	notifier  Notifier
	publisher events.Publisher
	log       zerolog.Logger
}

// New builds an Orchestrator. Client, Manifest and Library are required;
// Notifier and Publisher default to no-ops.
func New(cfg Config) *Orchestrator {
	n := cfg.Notifier
	if n == nil {
		n = noopNotifier{}
	}
	p := cfg.Publisher
	if p == nil {
		p = events.Noop{}
	}
	return &Orchestrator{
		progress:  make(map[string]types.DownloadProgress),
		selected:  make(map[string]struct{}),
		client:    cfg.Client,
		manifest:  cfg.Manifest,
		library:   cfg.Library,
		notifier:  n,
		publisher: p,
		log:       cfg.Logger,
	}
}

// SetAvailable replaces the known descriptor list (catalog refresh).
func (o *Orchestrator) SetAvailable(models []types.Model) {
	o.mu.Lock()
	o.available = append([]types.Model(nil), models...)
	o.mu.Unlock()
}

// Available returns a copy of the known descriptor list.
func (o *Orchestrator) Available() []types.Model {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]types.Model(nil), o.available...)
}

func (o *Orchestrator) descriptor(id string) (types.Model, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, m := range o.available {
		if m.ID == id {
			return m, true
		}
	}
	return types.Model{}, false
}

// StartTransfers resolves each id, starts one transfer per model
// concurrently, and returns once every transfer settled. The ids form a
// set: duplicates collapse to one transfer. Unknown ids are skipped. A
// failing transfer never cancels or blocks its siblings; its error goes to
// the Notifier, not the caller. The selection set is cleared regardless of
// outcomes. Returns the ids now downloaded and the ids that failed.
func (o *Orchestrator) StartTransfers(ctx context.Context, ids []string) (downloaded, failed []string) {
	var targets []types.Model
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		mdl, ok := o.descriptor(id)
		if !ok {
			o.log.Debug().Str("model", id).Msg("skipping unknown model id")
			continue
		}
		targets = append(targets, mdl)
		o.setProgress(types.DownloadProgress{
			ModelID:    mdl.ID,
			Progress:   0,
			TotalBytes: mdl.Size,
			Status:     types.StatusDownloading,
		})
	}

	var (
		wg   sync.WaitGroup
		rmu  sync.Mutex
		done []string
		bad  []string
	)
	for _, t := range targets {
		wg.Add(1)
		go func(mdl types.Model) {
			defer wg.Done()
			if err := o.runTransfer(ctx, mdl); err != nil {
				o.log.Warn().Err(err).Str("model", mdl.ID).Msg("transfer failed")
				o.notifier.Alert("Download error", fmt.Sprintf("%s: %v", mdl.Name, err))
				rmu.Lock()
				bad = append(bad, mdl.ID)
				rmu.Unlock()
				return
			}
			rmu.Lock()
			done = append(done, mdl.ID)
			rmu.Unlock()
		}(t)
	}
	wg.Wait()

	o.ClearSelection()
	return done, bad
}

// StartSingleTransfer downloads one model; equivalent to a one-element
// StartTransfers batch.
func (o *Orchestrator) StartSingleTransfer(ctx context.Context, id string) error {
	_, failed := o.StartTransfers(ctx, []string{id})
	if len(failed) > 0 {
		return fmt.Errorf("download %s failed", id)
	}
	return nil
}

// runTransfer drives one transfer to a terminal state and finalizes the
// manifest on success.
func (o *Orchestrator) runTransfer(ctx context.Context, mdl types.Model) error {
	o.publisher.Publish(events.Event{Name: "transfer_start", ModelID: mdl.ID})
	transfersStarted.Inc()
	transfersInflight.Inc()
	o.mu.Lock()
	o.inflight++
	o.mu.Unlock()
	defer func() {
		transfersInflight.Dec()
		o.mu.Lock()
		o.inflight--
		o.mu.Unlock()
	}()

	if err := o.library.EnsureDir(); err != nil {
		o.markError(mdl)
		return err
	}

	dest := o.library.PathFor(mdl.Filename)
	err := o.client.Download(ctx, mdl.DownloadURL, dest, func(written, expected int64) {
		total := expected
		if total <= 0 {
			total = mdl.Size
		}
		frac := 0.0
		if total > 0 {
			frac = float64(written) / float64(total)
		}
		if frac > 1 {
			frac = 1
		}
		o.setProgress(types.DownloadProgress{
			ModelID:         mdl.ID,
			Progress:        frac,
			DownloadedBytes: written,
			TotalBytes:      total,
			Status:          types.StatusDownloading,
		})
	})
	if err != nil {
		o.markError(mdl)
		transfersFailed.Inc()
		o.publisher.Publish(events.Event{Name: "transfer_error", ModelID: mdl.ID, Fields: map[string]any{"error": err.Error()}})
		return err
	}

	// Report the known total rather than the transport's byte count so a
	// few-bytes discrepancy never shows a 99% "completed" download.
	o.setProgress(types.DownloadProgress{
		ModelID:         mdl.ID,
		Progress:        1.0,
		DownloadedBytes: mdl.Size,
		TotalBytes:      mdl.Size,
		Status:          types.StatusCompleted,
	})
	if err := o.manifest.Add(ctx, mdl.ID); err != nil {
		// The file is on disk; keep going with in-memory state.
		o.log.Warn().Err(err).Str("model", mdl.ID).Msg("manifest write failed")
	}
	transfersCompleted.Inc()
	transferBytes.Add(float64(mdl.Size))
	o.publisher.Publish(events.Event{Name: "transfer_complete", ModelID: mdl.ID})
	return nil
}

// markError flips the record to error. Progress is deliberately left as-is
// so the UI can decide how to render a retry affordance.
func (o *Orchestrator) markError(mdl types.Model) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.progress[mdl.ID]
	if !ok {
		rec = types.DownloadProgress{ModelID: mdl.ID, TotalBytes: mdl.Size}
	}
	rec.Status = types.StatusError
	o.progress[mdl.ID] = rec
}

func (o *Orchestrator) setProgress(rec types.DownloadProgress) {
	o.mu.Lock()
	o.progress[rec.ModelID] = rec
	o.mu.Unlock()
}

// Progress returns the record for one model id.
func (o *Orchestrator) Progress(id string) (types.DownloadProgress, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.progress[id]
	return rec, ok
}

// ProgressAll snapshots the full mapping. The snapshot has no cross-key
// atomicity guarantee while transfers are in flight.
func (o *Orchestrator) ProgressAll() map[string]types.DownloadProgress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]types.DownloadProgress, len(o.progress))
	for k, v := range o.progress {
		out[k] = v
	}
	return out
}

// ActiveCount reports transfers currently in flight.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.inflight
}

// IsDownloading reports whether id has a record in the downloading state.
func (o *Orchestrator) IsDownloading(id string) bool {
	rec, ok := o.Progress(id)
	return ok && rec.Status == types.StatusDownloading
}

// ToggleSelect flips id in the selection set.
func (o *Orchestrator) ToggleSelect(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.selected[id]; ok {
		delete(o.selected, id)
	} else {
		o.selected[id] = struct{}{}
	}
}

// SelectAllRemaining selects every available model not yet in the manifest.
func (o *Orchestrator) SelectAllRemaining(ctx context.Context) {
	ids := o.manifest.IDs(ctx)
	inManifest := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		inManifest[id] = struct{}{}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.selected = make(map[string]struct{})
	for _, m := range o.available {
		if _, ok := inManifest[m.ID]; !ok {
			o.selected[m.ID] = struct{}{}
		}
	}
}

// ClearSelection empties the selection set.
func (o *Orchestrator) ClearSelection() {
	o.mu.Lock()
	o.selected = make(map[string]struct{})
	o.mu.Unlock()
}

// Selected returns the selected ids.
func (o *Orchestrator) Selected() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.selected))
	for id := range o.selected {
		out = append(out, id)
	}
	return out
}

// Pause is a stub; mid-flight pause is not implemented and callers must
// not rely on it freeing resources.
func (o *Orchestrator) Pause(id string) {
	o.log.Info().Str("model", id).Msg("pause requested (not implemented)")
}

// Resume is a stub counterpart to Pause.
func (o *Orchestrator) Resume(id string) {
	o.log.Info().Str("model", id).Msg("resume requested (not implemented)")
}

// Cancel marks the record as errored for display purposes. The underlying
// transfer, if any, still runs to completion or error.
func (o *Orchestrator) Cancel(id string) {
	o.log.Info().Str("model", id).Msg("cancel requested (transfer runs to settle)")
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.progress[id]; ok {
		rec.Status = types.StatusError
		o.progress[id] = rec
	}
}
