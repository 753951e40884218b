package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// manifestKey is the fixed key holding the downloaded-model manifest:
// a JSON array of model id strings.
const manifestKey = "downloaded_models"

// Manifest is the set of model ids known to be fully downloaded.
// An id is added only after its transfer completes; membership implies the
// artifact is expected on disk (not re-verified on every read).
//
// All mutation goes through a single mutex so overlapping transfer
// completions cannot lose updates to the read-modify-write cycle.
type Manifest struct {
	mu  sync.Mutex
	kv  KV
	log zerolog.Logger
}

// NewManifest wraps kv with manifest semantics.
func NewManifest(kv KV, log zerolog.Logger) *Manifest {
	return &Manifest{kv: kv, log: log}
}

// IDs returns the persisted id list. Read failures degrade to an empty
// list so callers can proceed with in-memory state.
func (m *Manifest) IDs(ctx context.Context) []string {
	raw, found, err := m.kv.Get(ctx, manifestKey)
	if err != nil {
		m.log.Warn().Err(err).Msg("manifest read failed, treating as empty")
		return nil
	}
	if !found {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		m.log.Warn().Err(err).Msg("manifest parse failed, treating as empty")
		return nil
	}
	return ids
}

// Contains reports whether id is in the manifest.
func (m *Manifest) Contains(ctx context.Context, id string) bool {
	for _, got := range m.IDs(ctx) {
		if got == id {
			return true
		}
	}
	return false
}

// Add records id as downloaded. Idempotent.
func (m *Manifest) Add(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.IDs(ctx)
	for _, got := range ids {
		if got == id {
			return nil
		}
	}
	ids = append(ids, id)
	return m.write(ctx, ids)
}

// Remove deletes id from the manifest. No-op when absent.
func (m *Manifest) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.IDs(ctx)
	out := ids[:0]
	for _, got := range ids {
		if got != id {
			out = append(out, got)
		}
	}
	return m.write(ctx, out)
}

func (m *Manifest) write(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := m.kv.Set(ctx, manifestKey, string(b)); err != nil {
		return fmt.Errorf("persist manifest: %w", err)
	}
	return nil
}
