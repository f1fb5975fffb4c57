// Package orchestrator sequences one conversational turn: load or provision
// user state, compose the system instruction, call the generation backend,
// persist both sides of the exchange, and run post-processing triggers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stevenAIEngineer/babaru-regime/internal/llm"
	"github.com/stevenAIEngineer/babaru-regime/internal/memstore"
	"github.com/stevenAIEngineer/babaru-regime/internal/prompt"
)

// missionMarker is the completion phrase scanned for case-insensitively in
// replies. Detection only; mission state transitions happen downstream.
const missionMarker = "MISSION COMPLETE"

// MissionSignaler receives the hand-off when a reply carries the completion
// marker.
type MissionSignaler interface {
	MissionCompleted(ctx context.Context, userID, reply, traceID string) error
}

// Store is the subset of the memory store the orchestrator depends on.
type Store interface {
	CreateUser(ctx context.Context, userID, displayName, timezone string) error
	UserState(ctx context.Context, userID string) (memstore.State, error)
	AppendTurn(ctx context.Context, userID string, userMsg, modelMsg memstore.Message) error
}

// Options tune per-turn behavior.
type Options struct {
	// HistoryWindow is the number of recent history entries forwarded to
	// the generation backend.
	HistoryWindow int
	// Timeout bounds the generation call.
	Timeout time.Duration
	// DefaultUserName is used when auto-provisioning an unknown user.
	DefaultUserName string
	Model           string
	MaxTokens       int
	Temperature     float64
}

type Orchestrator struct {
	store     Store
	generator llm.Generator
	signaler  MissionSignaler
	opts      Options
	log       *slog.Logger

	turnCounter   metric.Int64Counter
	signalCounter metric.Int64Counter
}

func New(store Store, generator llm.Generator, signaler MissionSignaler, opts Options, log *slog.Logger) *Orchestrator {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.DefaultUserName == "" {
		opts.DefaultUserName = "Traveler"
	}

	o := &Orchestrator{
		store:     store,
		generator: generator,
		signaler:  signaler,
		opts:      opts,
		log:       log.With(slog.String("component", "orchestrator")),
	}

	meter := otel.Meter("github.com/stevenAIEngineer/babaru-regime/orchestrator")
	if counter, err := meter.Int64Counter("babaru.turns.total", metric.WithDescription("Completed conversation turns")); err == nil {
		o.turnCounter = counter
	}
	if counter, err := meter.Int64Counter("babaru.missions.signaled", metric.WithDescription("Mission completion signals emitted")); err == nil {
		o.signalCounter = counter
	}
	return o
}

// HandleTurn runs the five-step turn sequence and returns the reply text.
// Generation failures are absorbed into a system-error reply; persistence
// failures propagate because unsynchronized history corrupts future turns.
func (o *Orchestrator) HandleTurn(ctx context.Context, userID, text string, trigger prompt.Trigger) (string, error) {
	traceID := uuid.NewString()

	state, err := o.store.UserState(ctx, userID)
	if errors.Is(err, memstore.ErrUnknownUser) {
		o.log.Info("auto-provisioning unknown user", slog.String("user_id", userID))
		if err := o.store.CreateUser(ctx, userID, o.opts.DefaultUserName, ""); err != nil {
			return "", fmt.Errorf("provision user: %w", err)
		}
		state, err = o.store.UserState(ctx, userID)
	}
	if err != nil {
		return "", fmt.Errorf("load user state: %w", err)
	}

	system := prompt.Compose(trigger, state)
	reply := o.generate(ctx, system, state.History, text)

	err = o.store.AppendTurn(ctx, userID,
		memstore.Message{Role: memstore.RoleUser, Content: text},
		memstore.Message{Role: memstore.RoleModel, Content: reply})
	if err != nil {
		return "", fmt.Errorf("persist turn: %w", err)
	}

	o.postProcess(ctx, userID, reply, traceID)

	if o.turnCounter != nil {
		o.turnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger.String())))
	}
	return reply, nil
}

// generate invokes the backend with a bounded conversational context. Every
// failure path returns a system-error reply string; nothing here is fatal to
// the turn.
func (o *Orchestrator) generate(ctx context.Context, system string, history []memstore.Message, text string) string {
	if o.generator == nil {
		return "[SYSTEM ERROR] Generation backend is not configured."
	}

	recent := history
	if len(recent) > o.opts.HistoryWindow {
		recent = recent[len(recent)-o.opts.HistoryWindow:]
	}

	messages := make([]llm.Message, 0, len(recent)+1)
	for _, m := range recent {
		role := llm.RoleAssistant
		if m.Role == memstore.RoleUser {
			role = llm.RoleUser
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	genCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	start := time.Now()
	reply, err := o.generator.Generate(genCtx, llm.Request{
		System:      system,
		Messages:    messages,
		Model:       o.opts.Model,
		MaxTokens:   o.opts.MaxTokens,
		Temperature: o.opts.Temperature,
	})
	if err != nil {
		o.log.Warn("generation failed", slog.String("error", err.Error()))
		return fmt.Sprintf("[SYSTEM ERROR] Babaru's brain fried: %v", err)
	}
	o.log.Info("generation complete", slog.Duration("latency", time.Since(start)))
	return reply
}

func (o *Orchestrator) postProcess(ctx context.Context, userID, reply, traceID string) {
	if !strings.Contains(strings.ToUpper(reply), missionMarker) {
		return
	}
	o.log.Info("mission completion detected", slog.String("user_id", userID))
	if o.signalCounter != nil {
		o.signalCounter.Add(ctx, 1)
	}
	if o.signaler == nil {
		return
	}
	if err := o.signaler.MissionCompleted(ctx, userID, reply, traceID); err != nil {
		o.log.Warn("mission signal failed", slog.String("error", err.Error()))
	}
}
