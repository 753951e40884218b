package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"pocketllm/internal/catalog"
	"pocketllm/internal/chat"
	"pocketllm/internal/config"
	"pocketllm/internal/download"
	"pocketllm/internal/registry"
	"pocketllm/internal/session"
	"pocketllm/internal/store"
	"pocketllm/pkg/types"
)

type fakeTransferClient struct {
	fail map[string]error
}

func (f *fakeTransferClient) Download(ctx context.Context, srcURL, destPath string, onProgress download.ProgressFunc) error {
	if err := f.fail[srcURL]; err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(100, 100)
	}
	return os.WriteFile(destPath, []byte("gguf"), 0o644)
}

type fakeChat struct {
	tokens   []string
	final    string
	err      error
	resetErr error
	loaded   string
	resets   int
}

func (f *fakeChat) Generate(ctx context.Context, mdl types.Model, text string, onToken func(string) error) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	for _, tok := range f.tokens {
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return "", err
			}
		}
	}
	f.loaded = mdl.ID
	return f.final, nil
}

func (f *fakeChat) Reset(ctx context.Context) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resets++
	return nil
}

func (f *fakeChat) LoadedModel() string { return f.loaded }

func (f *fakeChat) WindowState() (int, int) { return 1, 0 }

func newTestServer(t *testing.T, chatSvc ChatService, client download.TransferClient) (*Server, http.Handler) {
	t.Helper()
	kv, err := store.OpenInMemory(zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	lib, err := registry.New(t.TempDir())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	manifest := store.NewManifest(kv, zerolog.Nop())
	orch := download.New(download.Config{
		Client:   client,
		Manifest: manifest,
		Library:  lib,
		Logger:   zerolog.Nop(),
	})
	srv := NewServer(Deps{
		Orchestrator: orch,
		Chat:         chatSvc,
		Resolver:     catalog.NewResolver("", zerolog.Nop()),
		Sessions:     session.NewStore(kv, zerolog.Nop()),
		Settings:     store.NewSettings(kv, zerolog.Nop()),
		Manifest:     manifest,
		Library:      lib,
		KV:           kv,
		CatalogCfg:   config.CatalogConfig{},
	})
	return srv, NewMux(srv)
}

func TestListModelsFallsBackToBuiltin(t *testing.T) {
	_, mux := newTestServer(t, &fakeChat{}, &fakeTransferClient{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp types.ModelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Models) != len(catalog.Fallback()) {
		t.Fatalf("models = %d, want builtin catalog", len(resp.Models))
	}
}

func TestDownloadsBatchAndProgress(t *testing.T) {
	srv, mux := newTestServer(t, &fakeChat{}, &fakeTransferClient{
		fail: map[string]error{"https://host/b.gguf": errors.New("reset")},
	})
	srv.deps.Orchestrator.SetAvailable([]types.Model{
		{ID: "model-a", Size: 100, DownloadURL: "https://host/a.gguf", Filename: "a.gguf"},
		{ID: "model-b", Size: 100, DownloadURL: "https://host/b.gguf", Filename: "b.gguf"},
	})

	body := bytes.NewBufferString(`{"models":["model-a","model-b"]}`)
	req := httptest.NewRequest(http.MethodPost, "/downloads", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp types.DownloadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Downloaded) != 1 || resp.Downloaded[0] != "model-a" {
		t.Fatalf("downloaded = %v", resp.Downloaded)
	}
	if len(resp.Failed) != 1 || resp.Failed[0] != "model-b" {
		t.Fatalf("failed = %v", resp.Failed)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/downloads/progress", nil))
	var prog types.ProgressResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &prog); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if prog.Progress["model-a"].Status != types.StatusCompleted {
		t.Fatalf("model-a progress = %+v", prog.Progress["model-a"])
	}
	if prog.Progress["model-b"].Status != types.StatusError {
		t.Fatalf("model-b progress = %+v", prog.Progress["model-b"])
	}
	if len(prog.Downloaded) != 1 || prog.Downloaded[0] != "model-a" {
		t.Fatalf("manifest ids = %v", prog.Downloaded)
	}
}

func TestDownloadControlRoutes(t *testing.T) {
	srv, mux := newTestServer(t, &fakeChat{}, &fakeTransferClient{})
	srv.deps.Orchestrator.SetAvailable([]types.Model{
		{ID: "model-a", Size: 100, DownloadURL: "https://host/a.gguf", Filename: "a.gguf"},
	})

	body := bytes.NewBufferString(`{"models":["model-a"]}`)
	req := httptest.NewRequest(http.MethodPost, "/downloads", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/downloads/model-a/pause", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("pause: status = %d, want 202", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/downloads/model-a/resume", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("resume: status = %d, want 202", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/downloads/model-a", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cancel: status = %d, want 204", rec.Code)
	}
	if prog, ok := srv.deps.Orchestrator.Progress("model-a"); !ok || prog.Status != types.StatusError {
		t.Fatalf("after cancel: progress = %+v ok=%v", prog, ok)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/downloads/ghost/pause", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status = %d, want 404", rec.Code)
	}
}

func TestChatStreamsTokensAndPersistsSession(t *testing.T) {
	srv, mux := newTestServer(t, &fakeChat{tokens: []string{"hel", "lo"}, final: "hello"}, &fakeTransferClient{})
	srv.deps.Orchestrator.SetAvailable([]types.Model{{ID: "tiny", Filename: "tiny.gguf"}})

	body := bytes.NewBufferString(`{"model":"tiny","text":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/x-ndjson") {
		t.Fatalf("content type = %q", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 2 tokens + final: %q", len(lines), rec.Body.String())
	}
	var tok tokenLine
	if err := json.Unmarshal([]byte(lines[0]), &tok); err != nil || tok.Token != "hel" {
		t.Fatalf("first line = %q", lines[0])
	}
	var final types.ChatFinal
	if err := json.Unmarshal([]byte(lines[2]), &final); err != nil {
		t.Fatalf("decode final: %v", err)
	}
	if !final.Done || final.Content != "hello" || final.SessionID == "" || final.Error != "" {
		t.Fatalf("final = %+v", final)
	}

	sess, found, err := srv.deps.Sessions.Get(context.Background(), final.SessionID)
	if err != nil || !found {
		t.Fatalf("session not persisted: found=%v err=%v", found, err)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("transcript = %d messages, want user+assistant", len(sess.Messages))
	}
	if sess.Messages[0].Sender != types.RoleUser || sess.Messages[1].Sender != types.RoleAI {
		t.Fatalf("transcript roles wrong: %+v", sess.Messages)
	}
}

func TestChatErrorBeforeStreamMapsStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{chat.ErrModelNotAvailable("tiny"), http.StatusNotFound},
		{chat.ErrDependencyUnavailable("no llama"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		srv, mux := newTestServer(t, &fakeChat{err: tc.err}, &fakeTransferClient{})
		srv.deps.Orchestrator.SetAvailable([]types.Model{{ID: "tiny", Filename: "tiny.gguf"}})

		body := bytes.NewBufferString(`{"model":"tiny","text":"hi"}`)
		req := httptest.NewRequest(http.MethodPost, "/chat", body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("err %v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestChatUnknownModel(t *testing.T) {
	_, mux := newTestServer(t, &fakeChat{}, &fakeTransferClient{})
	body := bytes.NewBufferString(`{"model":"ghost","text":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestChatValidation(t *testing.T) {
	_, mux := newTestServer(t, &fakeChat{}, &fakeTransferClient{})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"model":"tiny"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing text: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"text":"hi"}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("missing content type: status = %d", rec.Code)
	}
}

func TestChatReset(t *testing.T) {
	fc := &fakeChat{loaded: "tiny"}
	_, mux := newTestServer(t, fc, &fakeTransferClient{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/reset", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if fc.resets != 1 {
		t.Fatalf("resets = %d, want 1", fc.resets)
	}

	fc = &fakeChat{resetErr: chat.ErrDependencyUnavailable("no llama")}
	_, mux = newTestServer(t, fc, &fakeTransferClient{})
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/reset", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("reset failure: status = %d, want 503", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	_, mux := newTestServer(t, &fakeChat{}, &fakeTransferClient{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))
	var defaults types.AppSettings
	if err := json.Unmarshal(rec.Body.Bytes(), &defaults); err != nil {
		t.Fatalf("decode defaults: %v", err)
	}
	if !defaults.SaveChatHistory || defaults.Theme != "dark" {
		t.Fatalf("defaults = %+v", defaults)
	}

	body := bytes.NewBufferString(`{"auto_clear_chat":true,"save_chat_history":false,"theme":"light"}`)
	req := httptest.NewRequest(http.MethodPut, "/settings", body)
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))
	var got types.AppSettings
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Theme != "light" || got.SaveChatHistory || !got.AutoClearChat {
		t.Fatalf("settings = %+v", got)
	}
}

func TestSessionEndpoints(t *testing.T) {
	srv, mux := newTestServer(t, &fakeChat{}, &fakeTransferClient{})
	ctx := context.Background()
	sess := session.NewSession(types.Model{ID: "tiny"})
	if err := srv.deps.Sessions.Save(ctx, sess); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	var list types.SessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(list.Sessions))
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get session status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/"+sess.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestDeleteModelRemovesArtifactAndManifest(t *testing.T) {
	srv, mux := newTestServer(t, &fakeChat{}, &fakeTransferClient{})
	ctx := context.Background()
	srv.deps.Orchestrator.SetAvailable([]types.Model{{ID: "tiny", Filename: "tiny.gguf"}})
	if err := os.WriteFile(filepath.Join(srv.deps.Library.Dir(), "tiny.gguf"), []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if err := srv.deps.Manifest.Add(ctx, "tiny"); err != nil {
		t.Fatalf("manifest add: %v", err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/models/tiny", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if srv.deps.Library.Exists("tiny.gguf") {
		t.Fatalf("artifact still on disk")
	}
	if srv.deps.Manifest.Contains(ctx, "tiny") {
		t.Fatalf("manifest still lists model")
	}
}

func TestClearModels(t *testing.T) {
	srv, mux := newTestServer(t, &fakeChat{}, &fakeTransferClient{})
	ctx := context.Background()
	srv.deps.Orchestrator.SetAvailable([]types.Model{{ID: "tiny", Filename: "tiny.gguf"}})
	if err := os.WriteFile(filepath.Join(srv.deps.Library.Dir(), "tiny.gguf"), []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if err := srv.deps.Manifest.Add(ctx, "tiny"); err != nil {
		t.Fatalf("manifest add: %v", err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/models", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if srv.deps.Library.Exists("tiny.gguf") {
		t.Fatalf("artifact survived clear")
	}
	if got := srv.deps.Manifest.IDs(ctx); len(got) != 0 {
		t.Fatalf("manifest not empty: %v", got)
	}
}

func TestStatusAndHealth(t *testing.T) {
	_, mux := newTestServer(t, &fakeChat{}, &fakeTransferClient{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var status types.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.ServerTimeUnix == 0 || status.WindowSize != 1 {
		t.Fatalf("status = %+v", status)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}
}
