// Package runtime wires configuration, storage, collaborator clients, the
// orchestrator, and the HTTP surface into one process lifecycle.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stevenAIEngineer/babaru-regime/internal/bus"
	"github.com/stevenAIEngineer/babaru-regime/internal/config"
	"github.com/stevenAIEngineer/babaru-regime/internal/llm"
	"github.com/stevenAIEngineer/babaru-regime/internal/memstore"
	"github.com/stevenAIEngineer/babaru-regime/internal/orchestrator"
	"github.com/stevenAIEngineer/babaru-regime/internal/voice"
)

type Runtime struct {
	cfg     config.Config
	version string
	logger  *slog.Logger

	store    *memstore.Store
	busConn  *bus.Client
	orch     *orchestrator.Orchestrator
	assembly *voice.Assembly

	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		version: version,
		logger:  logger,
	}
}

// Start brings the runtime up and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	r.store, err = memstore.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer r.store.Close()

	var signaler orchestrator.MissionSignaler
	if r.cfg.Bus.Enabled {
		r.busConn, err = bus.Connect(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect bus: %w", err)
		}
		defer r.busConn.Close()
		signaler = bus.NewMissionPublisher(r.busConn)
	}

	generator, err := buildGenerator(r.cfg.LLM, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build generator: %w", err)
	}

	synth, err := buildSynthesizer(r.cfg.TTS, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build synthesizer: %w", err)
	}
	r.assembly = voice.NewAssembly(synth, r.cfg.Assets.Directory, r.cfg.TTS.Voice,
		time.Duration(r.cfg.TTS.TimeoutMS)*time.Millisecond, r.logger)

	r.orch = orchestrator.New(r.store, generator, signaler, orchestrator.Options{
		HistoryWindow:   r.cfg.LLM.HistoryWindow,
		Timeout:         time.Duration(r.cfg.LLM.TimeoutMS) * time.Millisecond,
		DefaultUserName: r.cfg.Persona.DefaultUserName,
		Model:           r.cfg.LLM.Model,
		MaxTokens:       r.cfg.LLM.MaxTokens,
		Temperature:     r.cfg.LLM.Temperature,
	}, r.logger)

	mux := http.NewServeMux()
	r.registerRoutes(mux, metricsHandler)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func buildGenerator(cfg config.LLMConfig, logger *slog.Logger) (llm.Generator, error) {
	switch cfg.Mode {
	case "ollama":
		return llm.NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "anthropic":
		return llm.NewAnthropicGenerator(cfg.APIKey, cfg.Model)
	default:
		logger.Info("using mock generation backend")
		return llm.NewMockGenerator(), nil
	}
}

func buildSynthesizer(cfg config.TTSConfig, logger *slog.Logger) (voice.Synthesizer, error) {
	switch cfg.Mode {
	case "elevenlabs":
		return voice.NewElevenLabsSynth(cfg.APIKey, cfg.Voice, cfg.SampleRate, cfg.Channels)
	case "exec":
		return voice.NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		logger.Info("using mock speech backend")
		return voice.NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	}
}
