// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Service         ServiceConfig
	Speech          SpeechConfig
	RecordingLimits RecordingLimitsConfig
	Analysis        AnalysisConfig
	Diagram         DiagramConfig
	Kafka           KafkaConfig
	Store           StoreConfig
	Observability   ObservabilityConfig
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Principal       string
	HTTPPort        string
	GRPCPort        string
	MetricsAddr     string
	ShutdownTimeout time.Duration
	// AllowedOrigins lists browser origins that may open the recording
	// stream. Empty means same-origin only.
	AllowedOrigins []string
}

// SpeechConfig selects and tunes the speech engine.
type SpeechConfig struct {
	Provider       string // browser, google, mock, none
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
	MockInterval   time.Duration // 0 advances the mock once per audio frame
}

// RecordingLimitsConfig bounds a single recording.
type RecordingLimitsConfig struct {
	MaxFragments int
	MaxDuration  time.Duration
	DrainTimeout time.Duration // how long Stop waits for in-flight results
}

// AnalysisConfig points at the interview analysis backend.
type AnalysisConfig struct {
	BaseURL           string
	AnalyzePath       string
	Username          string
	Password          string
	Timeout           time.Duration
	DefaultExpression string
	DefaultAnimation  string
}

// DiagramConfig controls the placeholder and vector render size.
type DiagramConfig struct {
	Width            int
	Height           int
	MaxSide          int
	PlaceholderLabel string
}

// KafkaConfig holds event publishing settings.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	TopicTurns   string
	Principal    string
}

// StoreConfig holds turn history settings. An empty DBPath disables history.
type StoreConfig struct {
	DBPath string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Speech providers.
const (
	ProviderBrowser = "browser"
	ProviderGoogle  = "google"
	ProviderMock    = "mock"
	ProviderNone    = "none"
)

// Load reads configuration from environment variables, falling back to
// defaults for unset or unparsable values.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-interview-turn")

	return &Config{
		Service: ServiceConfig{
			Principal:       principal,
			HTTPPort:        envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:        envOrDefault("GRPC_PORT", "50051"),
			MetricsAddr:     envOrDefault("METRICS_ADDR", ":9090"),
			ShutdownTimeout: envOrDefaultDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  envOrDefaultList("HTTP_ALLOWED_ORIGINS", nil),
		},
		Speech: SpeechConfig{
			Provider:       strings.ToLower(envOrDefault("SPEECH_PROVIDER", ProviderBrowser)),
			LanguageCode:   envOrDefault("SPEECH_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   int32(envOrDefaultInt("SPEECH_SAMPLE_RATE_HZ", 16000)),
			InterimResults: envOrDefaultBool("SPEECH_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("SPEECH_AUDIO_ENCODING", "LINEAR16"),
			MockInterval:   envOrDefaultDuration("SPEECH_MOCK_INTERVAL", 0),
		},
		RecordingLimits: RecordingLimitsConfig{
			MaxFragments: envOrDefaultInt("RECORDING_MAX_FRAGMENTS", 2000),
			MaxDuration:  envOrDefaultDuration("RECORDING_MAX_DURATION", 10*time.Minute),
			DrainTimeout: envOrDefaultDuration("RECORDING_DRAIN_TIMEOUT", 2*time.Second),
		},
		Analysis: AnalysisConfig{
			BaseURL:           envOrDefault("ANALYSIS_BASE_URL", "http://localhost:3000"),
			AnalyzePath:       envOrDefault("ANALYSIS_PATH", "/interview/analyze"),
			Username:          os.Getenv("ANALYSIS_USERNAME"),
			Password:          os.Getenv("ANALYSIS_PASSWORD"),
			Timeout:           envOrDefaultDuration("ANALYSIS_TIMEOUT", 60*time.Second),
			DefaultExpression: envOrDefault("AVATAR_DEFAULT_EXPRESSION", "smile"),
			DefaultAnimation:  envOrDefault("AVATAR_DEFAULT_ANIMATION", "Talking"),
		},
		Diagram: DiagramConfig{
			Width:            envOrDefaultInt("DIAGRAM_WIDTH", 800),
			Height:           envOrDefaultInt("DIAGRAM_HEIGHT", 600),
			MaxSide:          envOrDefaultInt("DIAGRAM_MAX_SIDE", 4096),
			PlaceholderLabel: envOrDefault("DIAGRAM_PLACEHOLDER_LABEL", "No drawing"),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "interview.transcript.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "interview.transcript.final"),
			TopicTurns:   envOrDefault("KAFKA_TOPIC_TURNS", "interview.turn.completed"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Store: StoreConfig{
			DBPath: envOrDefault("STORE_DB_PATH", "data/turns.db"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.Speech.Provider {
	case ProviderBrowser, ProviderGoogle, ProviderMock, ProviderNone:
	default:
		return fmt.Errorf("invalid SPEECH_PROVIDER %q", c.Speech.Provider)
	}
	u, err := url.Parse(c.Analysis.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid ANALYSIS_BASE_URL %q", c.Analysis.BaseURL)
	}
	if c.Diagram.Width <= 0 || c.Diagram.Height <= 0 {
		return fmt.Errorf("invalid diagram size %dx%d", c.Diagram.Width, c.Diagram.Height)
	}
	if c.Diagram.MaxSide <= 0 || c.Diagram.Width > c.Diagram.MaxSide || c.Diagram.Height > c.Diagram.MaxSide {
		return fmt.Errorf("invalid DIAGRAM_MAX_SIDE %d for diagram size %dx%d", c.Diagram.MaxSide, c.Diagram.Width, c.Diagram.Height)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_ENABLED requires KAFKA_BROKERS")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
