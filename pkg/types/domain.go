package types

import "time"

// Model describes a downloadable (or downloaded) GGUF model artifact.
// Once resolved by the catalog it is treated as immutable.
type Model struct {
	// Stable identifier for the model.
	// example: phi-2-q4
	ID string `json:"id" example:"phi-2-q4"`
	// Human-friendly display name.
	// example: Phi-2 (2.7B) Q4_K_M
	Name string `json:"name" example:"Phi-2 (2.7B) Q4_K_M"`
	// Size of the artifact in bytes (may be an estimate, see Description).
	// example: 1580000000
	Size int64 `json:"size" example:"1580000000"`
	// Human description; carries an "(estimated size)" suffix when Size was
	// derived from parameter count instead of reported by the index.
	Description string `json:"description"`
	// Source URL of the artifact file.
	DownloadURL string `json:"download_url"`
	// Destination filename under the models directory.
	// example: phi-2.Q4_K_M.gguf
	Filename string `json:"filename" example:"phi-2.Q4_K_M.gguf"`
	// Context window size in tokens, 0 if unknown.
	// example: 2048
	ContextSize int `json:"context_size,omitempty" example:"2048"`
	// Optional provenance metadata from the remote index.
	Downloads int64    `json:"downloads,omitempty"`
	Author    string   `json:"author,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Quant     string   `json:"quant,omitempty" example:"Q4_K_M"`
}

// DownloadStatus is the lifecycle state of one transfer.
type DownloadStatus string

const (
	StatusDownloading DownloadStatus = "downloading"
	StatusCompleted   DownloadStatus = "completed"
	StatusError       DownloadStatus = "error"
	StatusPaused      DownloadStatus = "paused"
)

// DownloadProgress tracks one in-flight or settled transfer.
// Records are replaced, never mutated in place, so readers always see a
// consistent snapshot for a given model id.
type DownloadProgress struct {
	// Model id this record belongs to.
	ModelID string `json:"model_id"`
	// Fractional progress in [0,1].
	Progress float64 `json:"progress"`
	// Bytes written so far.
	DownloadedBytes int64 `json:"downloaded_bytes"`
	// Total expected bytes.
	TotalBytes int64 `json:"total_bytes"`
	// Current status.
	Status DownloadStatus `json:"status"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

// EngineRole maps a transcript role onto the role string the inference
// engine expects. The mapping is closed; anything not user or system is
// treated as the assistant.
func (r Role) EngineRole() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleSystem:
		return "system"
	default:
		return "assistant"
	}
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Role      `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	ModelID   string    `json:"model_id,omitempty"`
}

// ChatSession is the durable, user-visible transcript. It is distinct from
// the engine-facing context window, which is smaller and trimmed separately.
type ChatSession struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	ModelID   string        `json:"model_id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AppSettings are the user preferences persisted by the settings store.
type AppSettings struct {
	AutoClearChat   bool   `json:"auto_clear_chat"`
	SaveChatHistory bool   `json:"save_chat_history"`
	Theme           string `json:"theme"`
}

// DefaultSettings returns the settings applied when nothing is persisted.
// Persisted values are merged over these on read.
func DefaultSettings() AppSettings {
	return AppSettings{
		AutoClearChat:   false,
		SaveChatHistory: true,
		Theme:           "dark",
	}
}
