package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pocketllm/internal/config"
	"pocketllm/internal/events"
	"pocketllm/internal/registry"
	"pocketllm/pkg/types"
)

const (
	defaultMaxWait   = 30 * time.Second
	defaultQueueSize = 8
)

// Manager owns the single loaded model and the conversation window around
// it. Generations are admitted one at a time; the window mutates only
// inside an admitted generation or under mu.
type Manager struct {
	engine    Engine
	library   *registry.Library
	cfg       config.ChatConfig
	publisher events.Publisher
	log       zerolog.Logger

	mu         sync.Mutex
	ectx       EngineContext
	loadedID   string
	window     []Message
	sinceReset int

	queueCh chan struct{}
	genCh   chan struct{}
	maxWait time.Duration

	systemPrompt string
}

// NewManager builds a Manager. Publisher may be nil.
func NewManager(engine Engine, library *registry.Library, cfg config.ChatConfig, publisher events.Publisher, log zerolog.Logger) *Manager {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Manager{
		engine:       engine,
		library:      library,
		cfg:          cfg,
		publisher:    publisher,
		log:          log,
		queueCh:      make(chan struct{}, defaultQueueSize),
		genCh:        make(chan struct{}, 1),
		maxWait:      defaultMaxWait,
		systemPrompt: DefaultSystemPrompt,
	}
}

// SetSystemPrompt replaces the prompt used on the next load or reset.
func (m *Manager) SetSystemPrompt(prompt string) {
	m.mu.Lock()
	m.systemPrompt = prompt
	m.mu.Unlock()
}

// EnsureLoaded makes mdl the loaded model. Loading the already-loaded
// model is a no-op that preserves the conversation window. Switching
// models closes the previous context and starts a fresh window.
func (m *Manager) EnsureLoaded(ctx context.Context, mdl types.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLoadedLocked(ctx, mdl)
}

func (m *Manager) ensureLoadedLocked(ctx context.Context, mdl types.Model) error {
	if m.ectx != nil && m.loadedID == mdl.ID {
		return nil
	}
	if !m.library.Exists(mdl.Filename) {
		return modelNotAvailableError{id: mdl.ID}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.ectx != nil {
		if err := m.ectx.Close(); err != nil {
			m.log.Warn().Err(err).Str("model", m.loadedID).Msg("close previous context failed")
		}
		m.ectx = nil
		m.loadedID = ""
	}

	opts := LoadOptions{
		ContextSize: m.cfg.ContextSize,
		GPULayers:   m.cfg.GPULayers,
		Threads:     m.cfg.Threads,
		MLock:       true,
	}
	start := time.Now()
	ectx, err := m.engine.Load(m.library.PathFor(mdl.Filename), opts)
	if err != nil {
		return err
	}
	m.ectx = ectx
	m.loadedID = mdl.ID
	m.resetWindowLocked()
	m.log.Info().Str("model", mdl.ID).Dur("took", time.Since(start)).Msg("model loaded")
	m.publisher.Publish(events.Event{Name: "model_loaded", ModelID: mdl.ID})
	return nil
}

// resetWindowLocked starts a fresh window holding only the system prompt.
func (m *Manager) resetWindowLocked() {
	m.window = []Message{{Role: types.RoleSystem, Content: m.systemPrompt}}
	m.sinceReset = 0
}

// beginGeneration reserves a queue slot and then the single in-flight
// slot. Returns a release func to be deferred.
func (m *Manager) beginGeneration(ctx context.Context, modelID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case m.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, tooBusyError{modelID: modelID}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer2 := time.NewTimer(m.maxWait)
	defer timer2.Stop()
	select {
	case m.genCh <- struct{}{}:
		acquired = true
		return func() { <-m.genCh; <-m.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		return func() {}, tooBusyError{modelID: modelID}
	}
}

// Generate runs one turn: admit, ensure the model is loaded, apply the
// reset cadence and trim policy, stream tokens via onToken, and fold the
// final text back into the window. A generation error wipes the window to
// the system prompt before it propagates.
func (m *Manager) Generate(ctx context.Context, mdl types.Model, text string, onToken func(string) error) (string, error) {
	release, err := m.beginGeneration(ctx, mdl.ID)
	if err != nil {
		return "", err
	}
	defer release()

	m.mu.Lock()
	if err := m.ensureLoadedLocked(ctx, mdl); err != nil {
		if m.ectx != nil {
			m.resetWindowLocked()
		}
		m.mu.Unlock()
		return "", err
	}
	interval := m.cfg.ResetInterval
	if interval > 0 && m.sinceReset >= interval {
		m.log.Debug().Int("since_reset", m.sinceReset).Msg("reset cadence reached, clearing window")
		if err := m.ectx.Reset(); err != nil {
			m.log.Warn().Err(err).Msg("engine reset failed")
		}
		m.resetWindowLocked()
	}
	m.trimWindowLocked()
	m.window = append(m.window, Message{Role: types.RoleUser, Content: text})
	m.sinceReset++
	snapshot := append([]Message(nil), m.window...)
	ectx := m.ectx
	m.mu.Unlock()

	generationsStarted.Inc()
	result, err := ectx.Completion(ctx, snapshot, DefaultGenParams(m.cfg.MaxTokens), onToken)
	if err != nil {
		generationsFailed.Inc()
		m.publisher.Publish(events.Event{Name: "generation_error", ModelID: mdl.ID, Fields: map[string]any{"error": err.Error()}})
		m.mu.Lock()
		if m.ectx != nil {
			if rerr := m.ectx.Reset(); rerr != nil {
				m.log.Warn().Err(rerr).Msg("engine reset after failure failed")
			}
		}
		m.resetWindowLocked()
		m.mu.Unlock()
		return "", err
	}

	final := strings.TrimSpace(result)
	m.mu.Lock()
	if final != "" {
		m.window = append(m.window, Message{Role: types.RoleAI, Content: final})
		m.sinceReset++
	}
	m.trimWindowLocked()
	m.mu.Unlock()
	generationsCompleted.Inc()
	return final, nil
}

// trimWindowLocked evicts the oldest non-system messages until at most
// MaxHistory remain. The system prompt is never evicted.
func (m *Manager) trimWindowLocked() {
	maxHistory := m.cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = config.DefaultMaxHistory
	}
	n := 0
	for _, msg := range m.window {
		if msg.Role != types.RoleSystem {
			n++
		}
	}
	if n <= maxHistory {
		return
	}
	evict := n - maxHistory
	kept := m.window[:0]
	for _, msg := range m.window {
		if msg.Role != types.RoleSystem && evict > 0 {
			evict--
			continue
		}
		kept = append(kept, msg)
	}
	m.window = kept
}

// Reset clears the conversation window and engine-side state while keeping
// the model loaded.
func (m *Manager) Reset(ctx context.Context) error {
	release, err := m.beginGeneration(ctx, m.LoadedModel())
	if err != nil {
		return err
	}
	defer release()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ectx != nil {
		if err := m.ectx.Reset(); err != nil {
			return err
		}
	}
	m.resetWindowLocked()
	return nil
}

// Close frees the loaded model.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ectx == nil {
		return nil
	}
	err := m.ectx.Close()
	m.ectx = nil
	m.loadedID = ""
	m.window = nil
	m.sinceReset = 0
	return err
}

// LoadedModel returns the id of the loaded model, or "".
func (m *Manager) LoadedModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadedID
}

// WindowState reports the current window size (including the system
// prompt) and the non-system message count since the last reset.
func (m *Manager) WindowState() (size, sinceReset int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.window), m.sinceReset
}

// Window returns a copy of the conversation window.
func (m *Manager) Window() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.window...)
}
