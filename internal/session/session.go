// Package session persists chat transcripts. Sessions live as a single
// JSON array under one key, mirroring the manifest layout, plus one key
// naming the session a client last had open.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pocketllm/internal/store"
	"pocketllm/pkg/types"
)

const (
	sessionsKey  = "chat_sessions"
	currentIDKey = "current_session_id"
)

// Store reads and writes sessions through the KV store. Writes go through
// a read-modify-write of the whole array, serialized by mu.
type Store struct {
	mu  sync.Mutex
	kv  store.KV
	log zerolog.Logger
}

func NewStore(kv store.KV, log zerolog.Logger) *Store {
	return &Store{kv: kv, log: log}
}

// NewSession builds an empty session for mdl with a fresh id and title
// derived from now.
func NewSession(mdl types.Model) types.ChatSession {
	now := time.Now().UTC()
	return types.ChatSession{
		ID:        uuid.NewString(),
		Title:     "Chat " + now.Format("Jan 2 15:04"),
		Messages:  []types.ChatMessage{},
		ModelID:   mdl.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewMessage builds a transcript line.
func NewMessage(text string, sender types.Role, modelID string) types.ChatMessage {
	return types.ChatMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
		ModelID:   modelID,
	}
}

func (s *Store) load(ctx context.Context) ([]types.ChatSession, error) {
	raw, found, err := s.kv.Get(ctx, sessionsKey)
	if err != nil {
		return nil, err
	}
	if !found || raw == "" {
		return nil, nil
	}
	var sessions []types.ChatSession
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}

func (s *Store) write(ctx context.Context, sessions []types.ChatSession) error {
	if sessions == nil {
		sessions = []types.ChatSession{}
	}
	b, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, sessionsKey, string(b))
}

// Save inserts or replaces sess by id and stamps UpdatedAt.
func (s *Store) Save(ctx context.Context, sess types.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions, err := s.load(ctx)
	if err != nil {
		return err
	}
	sess.UpdatedAt = time.Now().UTC()
	replaced := false
	for i, cur := range sessions {
		if cur.ID == sess.ID {
			sessions[i] = sess
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, sess)
	}
	return s.write(ctx, sessions)
}

// Get returns the session with the given id.
func (s *Store) Get(ctx context.Context, id string) (types.ChatSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions, err := s.load(ctx)
	if err != nil {
		return types.ChatSession{}, false, err
	}
	for _, sess := range sessions {
		if sess.ID == id {
			return sess, true, nil
		}
	}
	return types.ChatSession{}, false, nil
}

// GetAll returns every session, newest UpdatedAt first.
func (s *Store) GetAll(ctx context.Context) ([]types.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Delete removes the session with the given id. Deleting an absent id is
// not an error. The current-session pointer is cleared when it named the
// deleted session.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := sessions[:0]
	for _, sess := range sessions {
		if sess.ID != id {
			kept = append(kept, sess)
		}
	}
	if err := s.write(ctx, kept); err != nil {
		return err
	}
	if cur, found, err := s.kv.Get(ctx, currentIDKey); err == nil && found && cur == id {
		if err := s.kv.Delete(ctx, currentIDKey); err != nil {
			s.log.Warn().Err(err).Msg("clear current session pointer failed")
		}
	}
	return nil
}

// SaveCurrentID records the session a client last had open.
func (s *Store) SaveCurrentID(ctx context.Context, id string) error {
	return s.kv.Set(ctx, currentIDKey, id)
}

// CurrentID returns the last-open session id, or "" when unset.
func (s *Store) CurrentID(ctx context.Context) string {
	id, found, err := s.kv.Get(ctx, currentIDKey)
	if err != nil || !found {
		return ""
	}
	return id
}
