package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stevenAIEngineer/babaru-regime/internal/api"
	"github.com/stevenAIEngineer/babaru-regime/internal/config"
	"github.com/stevenAIEngineer/babaru-regime/internal/llm"
	"github.com/stevenAIEngineer/babaru-regime/internal/memstore"
	"github.com/stevenAIEngineer/babaru-regime/internal/orchestrator"
	"github.com/stevenAIEngineer/babaru-regime/internal/voice"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := memstore.Open(context.Background(), config.StoreConfig{
		Path:         filepath.Join(t.TempDir(), "babaru.db"),
		HistoryLimit: 50,
	}, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	orch := orchestrator.New(store, llm.NewMockGenerator(), nil, orchestrator.Options{
		DefaultUserName: "Traveler",
	}, logger)

	assembly := voice.NewAssembly(voice.NewMockSynth(22050, 1), t.TempDir(), "", 0, logger)

	rt := &Runtime{
		cfg:      config.Default(),
		version:  "test",
		logger:   logger,
		store:    store,
		orch:     orch,
		assembly: assembly,
	}
	rt.ready.Store(true)
	return rt
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	newTestRuntime(t).registerRoutes(mux, nil)
	return mux
}

func TestRootStatus(t *testing.T) {
	mux := newTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status api.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status == "" || status.Version != "test" {
		t.Fatalf("unexpected status response: %+v", status)
	}
}

func TestChatRoundTrip(t *testing.T) {
	mux := newTestMux(t)

	body, _ := json.Marshal(api.ChatRequest{UserID: "u1", Message: "hello babaru"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp api.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response == "" {
		t.Fatal("empty reply")
	}
	if resp.AudioBase64 == "" {
		t.Fatal("expected synthesized audio for non-empty reply")
	}
}

func TestChatRejectsMissingFields(t *testing.T) {
	mux := newTestMux(t)

	for _, body := range []string{`{}`, `{"user_id":"u1"}`, `{"message":"hi"}`, `not json`} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader([]byte(body))))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestMemoryInspector(t *testing.T) {
	mux := newTestMux(t)

	// Unknown user first.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/ghost/memory", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	// A chat turn provisions the user.
	body, _ := json.Marshal(api.ChatRequest{UserID: "u2", Message: "remember me"})
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/u2/memory", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("memory status = %d", rec.Code)
	}
	var mem api.UserMemory
	if err := json.Unmarshal(rec.Body.Bytes(), &mem); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mem.Identity.UserID != "u2" {
		t.Fatalf("user_id = %q, want u2", mem.Identity.UserID)
	}
	if len(mem.Conversation) != 2 {
		t.Fatalf("history length = %d, want 2", len(mem.Conversation))
	}
}

func TestSpeakEndpoint(t *testing.T) {
	mux := newTestMux(t)

	body, _ := json.Marshal(api.SpeakRequest{Text: "obey the regime"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/speak", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp api.SpeakResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AudioBase64 == "" {
		t.Fatal("expected audio")
	}
}

func TestReadiness(t *testing.T) {
	rt := newTestRuntime(t)
	mux := http.NewServeMux()
	rt.registerRoutes(mux, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d, want 200", rec.Code)
	}

	rt.ready.Store(false)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("not-ready status = %d, want 503", rec.Code)
	}
}
