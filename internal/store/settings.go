package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"pocketllm/pkg/types"
)

const settingsKey = "app_settings"

// Settings persists user preferences. Reads merge stored values over the
// defaults so new fields pick up their default after an upgrade; write
// failures are logged and swallowed, the in-memory value stays the source
// of truth for the process lifetime.
type Settings struct {
	kv  KV
	log zerolog.Logger
}

// NewSettings wraps kv with settings semantics.
func NewSettings(kv KV, log zerolog.Logger) *Settings {
	return &Settings{kv: kv, log: log}
}

// Get returns the persisted settings merged over defaults. Any read or
// parse failure yields the defaults.
func (s *Settings) Get(ctx context.Context) types.AppSettings {
	out := types.DefaultSettings()
	raw, found, err := s.kv.Get(ctx, settingsKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("settings read failed, using defaults")
		return out
	}
	if !found {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.log.Warn().Err(err).Msg("settings parse failed, using defaults")
		return types.DefaultSettings()
	}
	return out
}

// Save persists settings; failures are logged, not propagated.
func (s *Settings) Save(ctx context.Context, settings types.AppSettings) {
	b, err := json.Marshal(settings)
	if err != nil {
		s.log.Warn().Err(err).Msg("settings marshal failed")
		return
	}
	if err := s.kv.Set(ctx, settingsKey, string(b)); err != nil {
		s.log.Warn().Err(fmt.Errorf("save settings: %w", err)).Msg("settings write failed")
	}
}
