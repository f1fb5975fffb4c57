package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stevenAIEngineer/babaru-regime/internal/config"
	"github.com/stevenAIEngineer/babaru-regime/internal/llm"
	"github.com/stevenAIEngineer/babaru-regime/internal/memstore"
	"github.com/stevenAIEngineer/babaru-regime/internal/orchestrator"
	"github.com/stevenAIEngineer/babaru-regime/internal/prompt"
)

func main() {
	var (
		configPath string
		userID     string
	)

	flag.StringVar(&configPath, "config", "babaru.yaml", "Path to configuration file")
	flag.StringVar(&userID, "user", "terminal_user", "User ID for this session")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := memstore.Open(ctx, cfg.Store, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open memory store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var generator llm.Generator
	switch cfg.LLM.Mode {
	case "ollama":
		generator = llm.NewOllamaGenerator(cfg.LLM.Endpoint, cfg.LLM.Model)
	case "anthropic":
		generator, err = llm.NewAnthropicGenerator(cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build generator: %v\n", err)
			os.Exit(1)
		}
	default:
		generator = llm.NewMockGenerator()
	}

	orch := orchestrator.New(store, generator, nil, orchestrator.Options{
		HistoryWindow:   cfg.LLM.HistoryWindow,
		Timeout:         time.Duration(cfg.LLM.TimeoutMS) * time.Millisecond,
		DefaultUserName: cfg.Persona.DefaultUserName,
		Model:           cfg.LLM.Model,
		MaxTokens:       cfg.LLM.MaxTokens,
		Temperature:     cfg.LLM.Temperature,
	}, logger)

	fmt.Println("--- BABARU REGIME TERMINAL ---")
	fmt.Println("Type 'exit' or 'quit' to leave.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if lower := strings.ToLower(input); lower == "exit" || lower == "quit" {
			break
		}

		reply, err := orch.HandleTurn(ctx, userID, input, detectTrigger(input))
		if err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			continue
		}
		fmt.Printf("Babaru: %s\n", reply)
	}

	fmt.Println("Babaru: Leaving so soon? Typical.")
}

func detectTrigger(input string) prompt.Trigger {
	lower := strings.ToLower(input)
	switch {
	case strings.Contains(lower, "stuck"):
		return prompt.TriggerUserStuck
	case strings.Contains(lower, "morning"):
		return prompt.TriggerMorning
	default:
		return prompt.TriggerGeneral
	}
}
