package httpapi

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"pocketllm/internal/session"
	"pocketllm/pkg/types"
)

// tokenLine is one streamed NDJSON line before the terminal ChatFinal.
type tokenLine struct {
	Token string `json:"token"`
}

// handleChat runs one conversation turn and streams tokens as NDJSON.
// The last line is always a ChatFinal. Errors raised before the first
// token map to plain JSON error responses; errors after streaming began
// are folded into the transcript and the final line.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSONError(w, http.StatusBadRequest, "text is required")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return
	}
	mdl, ok := s.findModel(req.Model)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "model not found: "+req.Model)
		return
	}

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	sess, found, err := s.deps.Sessions.Get(ctx, req.SessionID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		sess = session.NewSession(mdl)
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	writer := io.Writer(w)
	lvl := requestLogLevel(r)
	if lvl >= LevelDebug {
		writer = io.MultiWriter(w, &loggingLineWriter{})
	}
	enc := json.NewEncoder(writer)
	start := time.Now()
	if lvl >= LevelInfo {
		if zlog != nil {
			z := zlog.Info().Str("path", r.URL.Path).Str("model", req.Model)
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("chat start")
		} else {
			log.Printf("chat start path=%s model=%s", r.URL.Path, req.Model)
		}
	}

	wroteAny := false
	final, genErr := s.deps.Chat.Generate(ctx, mdl, req.Text, func(tok string) error {
		if err := enc.Encode(tokenLine{Token: tok}); err != nil {
			return err
		}
		wroteAny = true
		if flush != nil {
			flush()
		}
		return nil
	})

	if genErr != nil {
		// Client disconnect or shutdown: nothing useful left to write.
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		if !wroteAny {
			status := mapChatError(genErr)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("chat")
			}
			writeJSONError(w, status, genErr.Error())
			s.logChatEnd(r, lvl, status, start, genErr)
			return
		}
		// Tokens already reached the client; fold the failure into the
		// transcript and finish the stream cleanly.
		errLine := "Sorry, something went wrong: " + genErr.Error()
		s.appendExchange(r, &sess, req.Text, errLine, mdl.ID)
		_ = enc.Encode(types.ChatFinal{Done: true, Content: errLine, SessionID: sess.ID, Error: genErr.Error()})
		if flush != nil {
			flush()
		}
		s.logChatEnd(r, lvl, http.StatusOK, start, genErr)
		return
	}

	s.appendExchange(r, &sess, req.Text, final, mdl.ID)
	if err := enc.Encode(types.ChatFinal{Done: true, Content: final, SessionID: sess.ID}); err == nil && flush != nil {
		flush()
	}
	s.logChatEnd(r, lvl, http.StatusOK, start, nil)
}

// handleChatReset clears the conversation window while keeping the model
// loaded.
func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if err := s.deps.Chat.Reset(ctx); err != nil {
		status := mapChatError(err)
		if status == http.StatusTooManyRequests {
			IncrementBackpressure("chat_reset")
		}
		writeJSONError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// appendExchange writes the user line and the reply into the transcript
// and persists it when history saving is enabled.
func (s *Server) appendExchange(r *http.Request, sess *types.ChatSession, userText, reply, modelID string) {
	sess.Messages = append(sess.Messages, session.NewMessage(userText, types.RoleUser, modelID))
	if reply != "" {
		sess.Messages = append(sess.Messages, session.NewMessage(reply, types.RoleAI, modelID))
	}
	ctx := r.Context()
	if !s.deps.Settings.Get(ctx).SaveChatHistory {
		return
	}
	if err := s.deps.Sessions.Save(ctx, *sess); err != nil {
		if zlog != nil {
			zlog.Warn().Err(err).Str("session", sess.ID).Msg("save session failed")
		} else {
			log.Printf("save session %s failed: %v", sess.ID, err)
		}
		return
	}
	if err := s.deps.Sessions.SaveCurrentID(ctx, sess.ID); err != nil {
		if zlog != nil {
			zlog.Warn().Err(err).Msg("save current session pointer failed")
		}
	}
}

func (s *Server) logChatEnd(r *http.Request, lvl LogLevel, status int, start time.Time, err error) {
	if lvl < LevelInfo {
		return
	}
	if zlog != nil {
		z := zlog.Info().Int("status", status).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg("chat end")
		return
	}
	if err != nil {
		log.Printf("chat end status=%d dur=%s err=%v", status, time.Since(start), err)
		return
	}
	log.Printf("chat end status=%d dur=%s", status, time.Since(start))
}
