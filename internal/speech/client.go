package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/techoutagebot/audiofeed/internal/observability"
	"github.com/techoutagebot/audiofeed/internal/resilience"
)

// MaxTextLength is the longest input the speech endpoint accepts
const MaxTextLength = 4096

var (
	ErrEmptyText     = errors.New("announcement text is empty")
	ErrTextTooLong   = fmt.Errorf("announcement text exceeds %d characters", MaxTextLength)
	ErrEmptyResponse = errors.New("speech API returned no audio")
)

// Config holds speech endpoint settings
type Config struct {
	URL       string
	APIKey    string
	Model     string
	Voice     string
	OutputDir string
	Timeout   time.Duration
}

// SpeechRequest is the body of an OpenAI compatible /audio/speech call
type SpeechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// StatusError is returned when the speech API answers with a non-200 status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("speech API returned status %d: %s", e.StatusCode, e.Body)
}

// Client synthesizes text into raw PCM files. The endpoint must return
// 24 kHz 16-bit mono little-endian samples for response_format "pcm".
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	retry      *resilience.RetryConfig
	logger     zerolog.Logger
}

// NewClient creates a speech client. A nil breaker or retry config gets the defaults.
func NewClient(cfg Config, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("speech", 5, 30*time.Second)
	}
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		retry:      retry,
		logger:     logger,
	}
}

// Synthesize renders text into a new file under the output directory and
// returns its path. The file only appears once it is complete.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if len(text) > MaxTextLength {
		return "", ErrTextTooLong
	}

	if err := os.MkdirAll(c.config.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create speech output dir: %w", err)
	}

	start := time.Now()
	var audio []byte

	err := resilience.Retry(ctx, func(ctx context.Context) error {
		return c.breaker.Call(func() error {
			data, err := c.request(ctx, text)
			if err != nil {
				return err
			}
			audio = data
			return nil
		})
	}, c.retry, isRetryable)
	observability.ObserveSpeechLatency(time.Since(start).Seconds())
	if err != nil {
		c.logger.Error().Err(err).Int("text_length", len(text)).Msg("Speech synthesis failed")
		return "", err
	}

	path := filepath.Join(c.config.OutputDir, uuid.New().String()+".pcm")
	if err := writeFileAtomic(path, audio); err != nil {
		return "", err
	}

	c.logger.Info().
		Str("path", path).
		Int("bytes", len(audio)).
		Dur("latency", time.Since(start)).
		Msg("Synthesized announcement")
	return path, nil
}

// CircuitState exposes the breaker for health reporting
func (c *Client) CircuitState() resilience.CircuitState {
	return c.breaker.GetState()
}

func (c *Client) request(ctx context.Context, text string) ([]byte, error) {
	jsonData, err := json.Marshal(SpeechRequest{
		Model:          c.config.Model,
		Voice:          c.config.Voice,
		Input:          text,
		ResponseFormat: "pcm",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, resilience.NewRetryableError(statusErr)
		}
		return nil, statusErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewRetryableError(fmt.Errorf("failed to read audio response: %w", err))
	}
	if len(data) == 0 {
		return nil, ErrEmptyResponse
	}
	return data, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	return resilience.IsRetryableNetworkError(err)
}

// writeFileAtomic writes data next to path and renames it into place so
// watchers and the writer never see a partial clip.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".speech-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move audio into place: %w", err)
	}
	return nil
}
