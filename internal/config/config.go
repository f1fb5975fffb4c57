package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// Level maps the configured log level onto slog; unknown values fall back
// to Info.
func (t TelemetryConfig) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(t.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Store       StoreConfig     `yaml:"store"`
	LLM         LLMConfig       `yaml:"llm"`
	TTS         TTSConfig       `yaml:"tts"`
	Assets      AssetsConfig    `yaml:"assets"`
	Persona     PersonaConfig   `yaml:"persona"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	HistoryLimit  int    `yaml:"history_limit"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type LLMConfig struct {
	Mode          string  `yaml:"mode"` // mock, ollama, anthropic
	Endpoint      string  `yaml:"endpoint"`
	Model         string  `yaml:"model"`
	APIKey        string  `yaml:"api_key"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	HistoryWindow int     `yaml:"history_window"`
	TimeoutMS     int     `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode"` // mock, elevenlabs, exec
	Command    string `yaml:"command"`
	Voice      string `yaml:"voice"`
	APIKey     string `yaml:"api_key"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type AssetsConfig struct {
	Directory string `yaml:"directory"`
}

type PersonaConfig struct {
	DefaultUserName string `yaml:"default_user_name"`
}

func Default() Config {
	return Config{
		RuntimeName: "babaru-core",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path:         "./data/babaru.db",
			HistoryLimit: 200,
		},
		LLM: LLMConfig{
			Mode:          "mock",
			Endpoint:      "http://localhost:11434",
			Model:         "llama3.2:latest",
			MaxTokens:     1024,
			Temperature:   0.7,
			HistoryWindow: 10,
			TimeoutMS:     60000,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			SampleRate: 22050,
			Channels:   1,
			TimeoutMS:  45000,
		},
		Assets: AssetsConfig{
			Directory: "./assets/songs",
		},
		Persona: PersonaConfig{
			DefaultUserName: "Traveler",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "BABARU_RUNTIME_NAME")
	overrideString(&cfg.Environment, "BABARU_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "BABARU_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "BABARU_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "BABARU_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "BABARU_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "BABARU_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "BABARU_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "BABARU_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "BABARU_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "BABARU_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "BABARU_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "BABARU_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "BABARU_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "BABARU_STORE_PATH")
	overrideInt(&cfg.Store.HistoryLimit, "BABARU_STORE_HISTORY_LIMIT")
	overrideBool(&cfg.Store.VacuumOnStart, "BABARU_STORE_VACUUM_ON_START")
	overrideString(&cfg.LLM.Mode, "BABARU_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "BABARU_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Model, "BABARU_LLM_MODEL")
	overrideString(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	overrideString(&cfg.LLM.APIKey, "BABARU_LLM_API_KEY")
	overrideInt(&cfg.LLM.MaxTokens, "BABARU_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "BABARU_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.HistoryWindow, "BABARU_LLM_HISTORY_WINDOW")
	overrideInt(&cfg.LLM.TimeoutMS, "BABARU_LLM_TIMEOUT_MS")
	overrideString(&cfg.TTS.Mode, "BABARU_TTS_MODE")
	overrideString(&cfg.TTS.Command, "BABARU_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "ELEVENLABS_VOICE_ID")
	overrideString(&cfg.TTS.Voice, "BABARU_TTS_VOICE")
	overrideString(&cfg.TTS.APIKey, "ELEVENLABS_API_KEY")
	overrideString(&cfg.TTS.APIKey, "BABARU_TTS_API_KEY")
	overrideInt(&cfg.TTS.SampleRate, "BABARU_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "BABARU_TTS_CHANNELS")
	overrideInt(&cfg.TTS.TimeoutMS, "BABARU_TTS_TIMEOUT_MS")
	overrideString(&cfg.Assets.Directory, "BABARU_ASSETS_DIRECTORY")
	overrideString(&cfg.Persona.DefaultUserName, "BABARU_PERSONA_DEFAULT_USER_NAME")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled && len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when bus is enabled")
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Store.HistoryLimit < 0 {
		return errors.New("store.history_limit must be >= 0")
	}
	switch cfg.LLM.Mode {
	case "mock", "ollama", "anthropic":
	default:
		return errors.New("llm.mode must be one of mock|ollama|anthropic")
	}
	if cfg.LLM.Mode == "ollama" && cfg.LLM.Endpoint == "" {
		return errors.New("llm.endpoint must be set when mode=ollama")
	}
	if cfg.LLM.MaxTokens <= 0 {
		return errors.New("llm.max_tokens must be positive")
	}
	if cfg.LLM.HistoryWindow <= 0 {
		return errors.New("llm.history_window must be positive")
	}
	switch cfg.TTS.Mode {
	case "mock", "elevenlabs", "exec":
	default:
		return errors.New("tts.mode must be one of mock|elevenlabs|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.Assets.Directory == "" {
		return errors.New("assets.directory must not be empty")
	}
	return nil
}
