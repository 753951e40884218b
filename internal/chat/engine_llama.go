//go:build llama

package chat

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

type llamaEngine struct{}

// NewEngine returns the llama.cpp-backed engine.
func NewEngine() Engine { return llamaEngine{} }

type llamaContext struct {
	model   *llama.LLama
	threads int
}

func (llamaEngine) Load(modelPath string, opts LoadOptions) (EngineContext, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{
		llama.SetContext(opts.ContextSize),
		llama.SetGPULayers(opts.GPULayers),
	}
	if opts.MLock {
		mo = append(mo, llama.EnableMLock)
	}
	m, err := llama.New(modelPath, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaContext{model: m, threads: opts.Threads}, nil
}

func (c *llamaContext) Completion(ctx context.Context, messages []Message, params GenParams, onToken func(string) error) (string, error) {
	if c.model == nil {
		return "", errors.New("llama model not initialized")
	}
	c.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return false
			}
		}
		return true
	})
	text, err := c.model.Predict(buildPrompt(messages), predictOptions(params, c.threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

// Reset is a no-op: the manager replays the full window on each turn, so
// there is no engine-side conversation state to discard.
func (c *llamaContext) Reset() error { return nil }

func (c *llamaContext) Close() error {
	if c.model != nil {
		c.model.Free()
		c.model = nil
	}
	return nil
}

func predictOptions(params GenParams, threads int) []llama.PredictOption {
	if threads < 1 {
		threads = 1
	}
	po := []llama.PredictOption{
		llama.SetTokens(params.MaxTokens),
		llama.SetThreads(threads),
		llama.SetTopP(params.TopP),
		llama.SetTopK(params.TopK),
		llama.SetTemperature(params.Temperature),
		llama.SetPenalty(params.RepeatPenalty),
	}
	if len(params.Stop) > 0 {
		po = append(po, llama.SetStopWords(params.Stop...))
	}
	return po
}
