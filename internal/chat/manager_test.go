package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"pocketllm/internal/config"
	"pocketllm/internal/registry"
	"pocketllm/pkg/types"
)

type fakeEngine struct {
	mu    sync.Mutex
	loads int
	ctx   *fakeContext
	fail  error
}

func (e *fakeEngine) Load(modelPath string, opts LoadOptions) (EngineContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return nil, e.fail
	}
	e.loads++
	e.ctx = &fakeContext{reply: "  a short reply  ", tokens: []string{"a ", "short ", "reply"}}
	return e.ctx, nil
}

type fakeContext struct {
	mu     sync.Mutex
	calls  [][]Message
	reply  string
	tokens []string
	fail   error
	resets int
	closed bool
}

func (c *fakeContext) Completion(ctx context.Context, messages []Message, params GenParams, onToken func(string) error) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, append([]Message(nil), messages...))
	fail := c.fail
	tokens := c.tokens
	reply := c.reply
	c.mu.Unlock()
	if fail != nil {
		return "", fail
	}
	for _, tok := range tokens {
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return "", err
			}
		}
	}
	return reply, nil
}

func (c *fakeContext) Reset() error {
	c.mu.Lock()
	c.resets++
	c.mu.Unlock()
	return nil
}

func (c *fakeContext) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeContext) lastCall() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1]
}

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		MaxHistory:    6,
		ResetInterval: 10,
		MaxTokens:     256,
		ContextSize:   2048,
		GPULayers:     99,
	}
}

func newTestManagerDir(t *testing.T, engine Engine, cfg config.ChatConfig) (*Manager, types.Model, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tiny.gguf"), []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	lib, err := registry.New(dir)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	mdl := types.Model{ID: "tiny", Name: "Tiny", Filename: "tiny.gguf"}
	return NewManager(engine, lib, cfg, nil, zerolog.Nop()), mdl, dir
}

func newTestManager(t *testing.T, engine Engine, cfg config.ChatConfig) (*Manager, types.Model) {
	t.Helper()
	m, mdl, _ := newTestManagerDir(t, engine, cfg)
	return m, mdl
}

func TestGenerateFirstTurn(t *testing.T) {
	eng := &fakeEngine{}
	m, mdl := newTestManager(t, eng, testChatConfig())

	var streamed []string
	got, err := m.Generate(context.Background(), mdl, "hi", func(tok string) error {
		streamed = append(streamed, tok)
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "a short reply" {
		t.Fatalf("final = %q, want trimmed reply", got)
	}
	if len(streamed) != 3 || streamed[0] != "a " || streamed[2] != "reply" {
		t.Fatalf("streamed = %v, want tokens in order", streamed)
	}

	win := m.Window()
	if len(win) != 3 {
		t.Fatalf("window size = %d, want 3", len(win))
	}
	if win[0].Role != types.RoleSystem || win[0].Content != DefaultSystemPrompt {
		t.Fatalf("window[0] = %+v, want system prompt", win[0])
	}
	if win[1].Role != types.RoleUser || win[1].Content != "hi" {
		t.Fatalf("window[1] = %+v, want user message", win[1])
	}
	if win[2].Role != types.RoleAI || win[2].Content != "a short reply" {
		t.Fatalf("window[2] = %+v, want assistant reply", win[2])
	}
	if _, since := m.WindowState(); since != 2 {
		t.Fatalf("sinceReset = %d, want 2", since)
	}
}

func TestEnsureLoadedIdempotent(t *testing.T) {
	eng := &fakeEngine{}
	m, mdl := newTestManager(t, eng, testChatConfig())
	ctx := context.Background()

	if err := m.EnsureLoaded(ctx, mdl); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if err := m.EnsureLoaded(ctx, mdl); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if eng.loads != 1 {
		t.Fatalf("loads = %d, want 1", eng.loads)
	}
}

func TestEnsureLoadedMissingArtifact(t *testing.T) {
	eng := &fakeEngine{}
	m, _ := newTestManager(t, eng, testChatConfig())
	err := m.EnsureLoaded(context.Background(), types.Model{ID: "ghost", Filename: "ghost.gguf"})
	if err == nil || !IsModelNotAvailable(err) {
		t.Fatalf("err = %v, want model-not-available", err)
	}
}

func TestTrimKeepsSystemAndRecent(t *testing.T) {
	eng := &fakeEngine{}
	m, mdl := newTestManager(t, eng, testChatConfig())
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := m.Generate(ctx, mdl, "turn", nil); err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
	}
	win := m.Window()
	if win[0].Role != types.RoleSystem {
		t.Fatalf("window[0].Role = %s, want system", win[0].Role)
	}
	nonSystem := 0
	for _, msg := range win[1:] {
		if msg.Role == types.RoleSystem {
			t.Fatalf("extra system message in window")
		}
		nonSystem++
	}
	if nonSystem > 6 {
		t.Fatalf("non-system messages = %d, want <= 6", nonSystem)
	}
	if win[len(win)-1].Role != types.RoleAI {
		t.Fatalf("newest message lost during trim")
	}
}

func TestResetCadence(t *testing.T) {
	cfg := testChatConfig()
	cfg.ResetInterval = 2
	eng := &fakeEngine{}
	m, mdl := newTestManager(t, eng, cfg)
	ctx := context.Background()

	// Two messages enter the window after the first turn.
	if _, err := m.Generate(ctx, mdl, "first", nil); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	// Cadence reached: this turn must start from a fresh window.
	if _, err := m.Generate(ctx, mdl, "second", nil); err != nil {
		t.Fatalf("second generate: %v", err)
	}
	call := eng.ctx.lastCall()
	if len(call) != 2 {
		t.Fatalf("engine saw %d messages, want [system, user]", len(call))
	}
	if call[0].Role != types.RoleSystem || call[1].Content != "second" {
		t.Fatalf("engine call = %+v, want fresh window with new user message", call)
	}
	if eng.ctx.resets != 1 {
		t.Fatalf("engine resets = %d, want 1", eng.ctx.resets)
	}
}

func TestGenerateErrorWipesWindow(t *testing.T) {
	eng := &fakeEngine{}
	m, mdl := newTestManager(t, eng, testChatConfig())
	ctx := context.Background()

	if _, err := m.Generate(ctx, mdl, "hi", nil); err != nil {
		t.Fatalf("generate: %v", err)
	}
	eng.ctx.mu.Lock()
	eng.ctx.fail = errors.New("context overflow")
	eng.ctx.mu.Unlock()

	if _, err := m.Generate(ctx, mdl, "boom", nil); err == nil {
		t.Fatalf("expected generation error")
	}
	win := m.Window()
	if len(win) != 1 || win[0].Role != types.RoleSystem {
		t.Fatalf("window after error = %+v, want only system prompt", win)
	}
	if _, since := m.WindowState(); since != 0 {
		t.Fatalf("sinceReset = %d, want 0 after error", since)
	}
}

func TestSwitchingModelsClosesPrevious(t *testing.T) {
	eng := &fakeEngine{}
	m, mdl, dir := newTestManagerDir(t, eng, testChatConfig())
	ctx := context.Background()

	if err := m.EnsureLoaded(ctx, mdl); err != nil {
		t.Fatalf("load: %v", err)
	}
	first := eng.ctx

	if err := os.WriteFile(filepath.Join(dir, "other.gguf"), []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	other := types.Model{ID: "other", Filename: "other.gguf"}
	if err := m.EnsureLoaded(ctx, other); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if !first.closed {
		t.Fatalf("previous context not closed on switch")
	}
	if m.LoadedModel() != "other" {
		t.Fatalf("loaded = %q, want other", m.LoadedModel())
	}
	if size, since := m.WindowState(); size != 1 || since != 0 {
		t.Fatalf("window state = (%d,%d), want fresh window", size, since)
	}
}
