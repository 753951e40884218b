//go:build !llama

package chat

// No-CGO stub compiled when the 'llama' build tag is absent. Default builds
// and CI stay CGO-free; Load fails fast instead of mocking inference.

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = false

type stubEngine struct{}

// NewEngine returns an engine whose Load always fails with a dependency
// error. The real engine requires the 'llama' build tag.
func NewEngine() Engine { return stubEngine{} }

func (stubEngine) Load(modelPath string, opts LoadOptions) (EngineContext, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
