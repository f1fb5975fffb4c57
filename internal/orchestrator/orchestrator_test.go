package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stevenAIEngineer/babaru-regime/internal/config"
	"github.com/stevenAIEngineer/babaru-regime/internal/llm"
	"github.com/stevenAIEngineer/babaru-regime/internal/memstore"
	"github.com/stevenAIEngineer/babaru-regime/internal/prompt"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *memstore.Store {
	t.Helper()
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "babaru.db"), HistoryLimit: 200}
	s, err := memstore.Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type scriptedGenerator struct {
	reply    string
	err      error
	requests []llm.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type recordingSignaler struct {
	calls []string
}

func (s *recordingSignaler) MissionCompleted(_ context.Context, userID, _, _ string) error {
	s.calls = append(s.calls, userID)
	return nil
}

func TestHandleTurnPersistsOrdering(t *testing.T) {
	store := openStore(t)
	gen := &scriptedGenerator{reply: "hi there"}
	o := New(store, gen, nil, Options{}, newLogger())

	reply, err := o.HandleTurn(context.Background(), "u1", "hello", prompt.TriggerGeneral)
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("unexpected reply %q", reply)
	}

	st, err := store.UserState(context.Background(), "u1")
	if err != nil {
		t.Fatalf("user state: %v", err)
	}
	if len(st.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(st.History))
	}
	if st.History[0] != (memstore.Message{Role: memstore.RoleUser, Content: "hello"}) {
		t.Fatalf("user entry must come first: %+v", st.History[0])
	}
	if st.History[1] != (memstore.Message{Role: memstore.RoleModel, Content: "hi there"}) {
		t.Fatalf("model entry must come second: %+v", st.History[1])
	}
}

func TestHandleTurnAutoProvisions(t *testing.T) {
	store := openStore(t)
	gen := &scriptedGenerator{reply: "welcome"}
	o := New(store, gen, nil, Options{DefaultUserName: "Traveler"}, newLogger())

	if _, err := o.HandleTurn(context.Background(), "fresh", "hi", prompt.TriggerGeneral); err != nil {
		t.Fatalf("handle turn: %v", err)
	}

	st, err := store.UserState(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("expected provisioned user: %v", err)
	}
	if st.Identity.DisplayName != "Traveler" {
		t.Fatalf("expected placeholder identity, got %q", st.Identity.DisplayName)
	}
	if st.Progression.Rank != "Newcomer" {
		t.Fatalf("expected default rank, got %q", st.Progression.Rank)
	}
}

func TestHandleTurnGenerationFailureBecomesReply(t *testing.T) {
	store := openStore(t)
	gen := &scriptedGenerator{err: errors.New("quota exhausted")}
	o := New(store, gen, nil, Options{}, newLogger())

	reply, err := o.HandleTurn(context.Background(), "u1", "hello", prompt.TriggerGeneral)
	if err != nil {
		t.Fatalf("generation failure must not fail the turn: %v", err)
	}
	if !strings.HasPrefix(reply, "[SYSTEM ERROR]") {
		t.Fatalf("expected system error reply, got %q", reply)
	}

	// The error reply is recorded like any other.
	st, err := store.UserState(context.Background(), "u1")
	if err != nil {
		t.Fatalf("user state: %v", err)
	}
	if len(st.History) != 2 || st.History[1].Content != reply {
		t.Fatalf("system error reply must be persisted: %+v", st.History)
	}
}

func TestHandleTurnNilGenerator(t *testing.T) {
	store := openStore(t)
	o := New(store, nil, nil, Options{}, newLogger())

	reply, err := o.HandleTurn(context.Background(), "u1", "hello", prompt.TriggerGeneral)
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if !strings.HasPrefix(reply, "[SYSTEM ERROR]") {
		t.Fatalf("expected system error reply, got %q", reply)
	}
}

func TestHandleTurnBoundedContext(t *testing.T) {
	store := openStore(t)
	gen := &scriptedGenerator{reply: "ok"}
	o := New(store, gen, nil, Options{HistoryWindow: 4}, newLogger())

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		if _, err := o.HandleTurn(ctx, "u1", "ping", prompt.TriggerGeneral); err != nil {
			t.Fatalf("handle turn: %v", err)
		}
	}

	last := gen.requests[len(gen.requests)-1]
	// 4 windowed entries plus the new input.
	if len(last.Messages) != 5 {
		t.Fatalf("expected 5 context messages, got %d", len(last.Messages))
	}
	if last.Messages[len(last.Messages)-1] != (llm.Message{Role: llm.RoleUser, Content: "ping"}) {
		t.Fatalf("new input must be the final entry: %+v", last.Messages)
	}
	for _, m := range last.Messages {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			t.Fatalf("context roles must be user|assistant, got %q", m.Role)
		}
	}
	if last.System == "" {
		t.Fatal("system instruction missing")
	}
}

func TestMissionMarkerDetection(t *testing.T) {
	cases := []struct {
		reply string
		want  int
	}{
		{"Fine. mission complete! You did the thing.", 1},
		{"MISSION COMPLETE. The regime is pleased.", 1},
		{"Keep going, you're not done yet.", 0},
	}
	for _, tc := range cases {
		store := openStore(t)
		gen := &scriptedGenerator{reply: tc.reply}
		sig := &recordingSignaler{}
		o := New(store, gen, sig, Options{}, newLogger())

		if _, err := o.HandleTurn(context.Background(), "u1", "done?", prompt.TriggerMissionReview); err != nil {
			t.Fatalf("handle turn: %v", err)
		}
		if len(sig.calls) != tc.want {
			t.Fatalf("reply %q: expected %d signals, got %d", tc.reply, tc.want, len(sig.calls))
		}
	}
}
