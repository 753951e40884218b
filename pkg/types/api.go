package types

// ChatRequest is the payload for POST /chat.
type ChatRequest struct {
	// Model id to generate with. Required.
	// example: phi-2-q4
	Model string `json:"model" example:"phi-2-q4"`
	// User message text. Required.
	// example: Write a haiku about the ocean.
	Text string `json:"text" example:"Write a haiku about the ocean."`
	// Optional session id to append the exchange to. A new session is
	// created when empty.
	SessionID string `json:"session_id,omitempty"`
}

// ChatFinal is the terminal NDJSON line of a /chat stream.
type ChatFinal struct {
	Done      bool   `json:"done"`
	Content   string `json:"content"`
	SessionID string `json:"session_id,omitempty"`
	// Set when generation failed; Content then carries the transcript-safe
	// error line shown to the user.
	Error string `json:"error,omitempty"`
}

// DownloadRequest is the payload for POST /downloads.
type DownloadRequest struct {
	// Model ids to download. Unknown ids are skipped.
	// example: ["phi-2-q4"]
	Models []string `json:"models" example:"phi-2-q4"`
}

// DownloadResponse reports the outcome of a settle-all download batch.
type DownloadResponse struct {
	// Ids that completed and were recorded in the manifest.
	Downloaded []string `json:"downloaded"`
	// Ids whose transfers failed.
	Failed []string `json:"failed,omitempty"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ProgressResponse is returned by GET /downloads/progress.
type ProgressResponse struct {
	// Per-model progress records keyed by model id.
	Progress map[string]DownloadProgress `json:"progress"`
	// Ids present in the downloaded-model manifest.
	Downloaded []string `json:"downloaded"`
}

// SessionsResponse wraps the session list for GET /sessions.
type SessionsResponse struct {
	Sessions []ChatSession `json:"sessions"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Id of the model bound to the loaded inference context, empty when
	// nothing is loaded.
	LoadedModel string `json:"loaded_model,omitempty"`
	// Messages currently held in the engine-facing window.
	WindowSize int `json:"window_size"`
	// Non-system messages since the last context reset.
	MessagesSinceReset int `json:"messages_since_reset"`
	// Downloads currently in flight.
	ActiveDownloads int `json:"active_downloads"`
	// Total bytes of artifacts present on disk for manifest entries.
	DownloadedBytes int64 `json:"downloaded_bytes"`
	// Uptime of the server in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
