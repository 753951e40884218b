// Package chat owns the conversation lifecycle: loading a local model into
// an inference context, maintaining the bounded message window around it,
// and streaming completions.
package chat

import (
	"context"
	"strings"

	"pocketllm/pkg/types"
)

// DefaultSystemPrompt opens every conversation window.
const DefaultSystemPrompt = "You are a helpful, concise assistant. Keep responses brief and to the point."

// defaultStopWords terminate generation across the template families the
// catalog serves.
var defaultStopWords = []string{
	"</s>",
	"<|eot_id|>",
	"<|end_of_text|>",
	"<|im_end|>",
	"```",
	"<|EOT|>",
	"<|end_of_turn|>",
	"<|endoftext|>",
}

// Message is one line of the conversation window.
type Message struct {
	Role    types.Role
	Content string
}

// LoadOptions configure model loading.
type LoadOptions struct {
	ContextSize int
	GPULayers   int
	Threads     int
	MLock       bool
}

// GenParams are the decoding parameters for one completion.
type GenParams struct {
	Temperature   float32
	TopP          float32
	TopK          int
	MaxTokens     int
	RepeatPenalty float32
	Stop          []string
}

// DefaultGenParams returns the fixed decoding profile used for every turn.
func DefaultGenParams(maxTokens int) GenParams {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return GenParams{
		Temperature:   0.2,
		TopP:          0.5,
		TopK:          20,
		MaxTokens:     maxTokens,
		RepeatPenalty: 1.2,
		Stop:          append([]string(nil), defaultStopWords...),
	}
}

// EngineBuilt reports whether this binary carries the real llama.cpp
// runtime (compiled with the 'llama' build tag).
func EngineBuilt() bool { return llamaBuilt }

// Engine loads model artifacts into inference contexts.
type Engine interface {
	Load(modelPath string, opts LoadOptions) (EngineContext, error)
}

// EngineContext is a loaded model. It exposes exactly the capabilities the
// manager relies on; there is no optional behavior to probe for.
type EngineContext interface {
	// Completion streams tokens via onToken and returns the full text.
	// Implementations must return promptly when ctx is canceled.
	Completion(ctx context.Context, messages []Message, params GenParams, onToken func(string) error) (string, error)
	// Reset discards any engine-side conversation state.
	Reset() error
	// Close frees the model. The context is unusable afterwards.
	Close() error
}

// buildPrompt renders the window in ChatML form and leaves the assistant
// turn open.
func buildPrompt(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString("<|im_start|>")
		b.WriteString(m.Role.EngineRole())
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}
