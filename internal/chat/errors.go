package chat

// modelNotAvailableError signals that the requested model has no artifact
// on disk, for 404/409 mapping.
type modelNotAvailableError struct{ id string }

func (e modelNotAvailableError) Error() string { return "model not available locally: " + e.id }

// ErrModelNotAvailable constructs a modelNotAvailableError.
func ErrModelNotAvailable(id string) error { return modelNotAvailableError{id: id} }

// IsModelNotAvailable reports whether err indicates a model with no local
// artifact.
func IsModelNotAvailable(err error) bool {
	_, ok := err.(modelNotAvailableError)
	return ok
}

// tooBusyError signals admission timeout/overflow for 429 mapping.
type tooBusyError struct{ modelID string }

func (e tooBusyError) Error() string { return "too busy: " + e.modelID }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	_, ok := err.(tooBusyError)
	return ok
}

// dependencyUnavailableError signals a missing runtime dependency (e.g.
// llama.cpp not built in) so the HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing or failed
// runtime dependency.
func IsDependencyUnavailable(err error) bool {
	_, ok := err.(dependencyUnavailableError)
	return ok
}
