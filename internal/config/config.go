package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/techoutagebot/audiofeed/internal/audio"
)

// Config holds all configuration for the audio feed service
type Config struct {
	// Server configuration
	Port     string `envconfig:"PORT" default:"8080"`
	GRPCPort int    `envconfig:"GRPC_PORT" default:"0"` // 0 disables the gRPC health service

	// Feed sink configuration
	PipePath          string `envconfig:"FEED_PIPE_PATH" default:"audio/live_audio.fifo"`
	SampleRate        int    `envconfig:"FEED_SAMPLE_RATE" default:"24000"`
	BitDepth          int    `envconfig:"FEED_BIT_DEPTH" default:"16"`
	Channels          int    `envconfig:"FEED_CHANNELS" default:"1"`
	ChunkSize         int    `envconfig:"FEED_CHUNK_SIZE" default:"4096"`        // Bytes per sink write
	SilenceUnitMs     int    `envconfig:"FEED_SILENCE_UNIT_MS" default:"1000"`   // Silence emitted per empty poll
	OpenPollMs        int    `envconfig:"FEED_OPEN_POLL_MS" default:"50"`        // First wait while no reader is attached
	OpenPollMaxMs     int    `envconfig:"FEED_OPEN_POLL_MAX_MS" default:"500"`   // Longest wait between open attempts
	StopTimeoutSecond int    `envconfig:"FEED_STOP_TIMEOUT" default:"10"`        // Seconds to wait for the writer on shutdown

	// Producers
	SpoolDir             string  `envconfig:"SPOOL_DIR" default:""` // Empty disables the drop directory
	SpoolExtension       string  `envconfig:"SPOOL_EXTENSION" default:".pcm"`
	EnqueueRatePerMinute float64 `envconfig:"ENQUEUE_RATE_PER_MINUTE" default:"120"`
	EnqueueBurst         int     `envconfig:"ENQUEUE_BURST" default:"10"`

	// Speech synthesis (OpenAI compatible /audio/speech endpoint returning raw PCM)
	SpeechAPIURL    string `envconfig:"SPEECH_API_URL" default:"https://api.openai.com/v1/audio/speech"`
	SpeechAPIKey    string `envconfig:"SPEECH_API_KEY" default:""` // Empty disables announcements
	SpeechModel     string `envconfig:"SPEECH_MODEL" default:"tts-1"`
	SpeechVoice     string `envconfig:"SPEECH_VOICE" default:"alloy"`
	SpeechOutputDir string `envconfig:"SPEECH_OUTPUT_DIR" default:"audio/speech"`
	SpeechTimeout   int    `envconfig:"SPEECH_TIMEOUT" default:"30"` // seconds

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// maxSilenceUnitMs bounds how long the writer may go without polling the queue
const maxSilenceUnitMs = 60_000

// Validate checks values envconfig cannot express as tags
func (c *Config) Validate() error {
	if c.PipePath == "" {
		return fmt.Errorf("FEED_PIPE_PATH is required")
	}
	if err := c.Format().Validate(); err != nil {
		return fmt.Errorf("invalid feed format: %w", err)
	}
	if c.ChunkSize < c.Format().FrameSize() {
		return fmt.Errorf("FEED_CHUNK_SIZE must hold at least one frame (%d bytes)", c.Format().FrameSize())
	}
	if c.SilenceUnitMs <= 0 || c.SilenceUnitMs > maxSilenceUnitMs {
		return fmt.Errorf("FEED_SILENCE_UNIT_MS must be between 1 and %d", maxSilenceUnitMs)
	}
	if c.OpenPollMs <= 0 || c.OpenPollMaxMs < c.OpenPollMs {
		return fmt.Errorf("FEED_OPEN_POLL_MS must be positive and not exceed FEED_OPEN_POLL_MAX_MS")
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("GRPC_PORT out of range: %d", c.GRPCPort)
	}
	if c.EnqueueRatePerMinute <= 0 || c.EnqueueBurst <= 0 {
		return fmt.Errorf("ENQUEUE_RATE_PER_MINUTE and ENQUEUE_BURST must be positive")
	}
	return nil
}

// Format returns the PCM contract every producer must honor
func (c *Config) Format() audio.Format {
	return audio.Format{
		SampleRate: c.SampleRate,
		BitDepth:   c.BitDepth,
		Channels:   c.Channels,
	}
}

// SilenceUnit is the amount of silence written when the queue is empty
func (c *Config) SilenceUnit() time.Duration {
	return time.Duration(c.SilenceUnitMs) * time.Millisecond
}

// SpeechEnabled reports whether announcements can be synthesized
func (c *Config) SpeechEnabled() bool {
	return c.SpeechAPIKey != ""
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
