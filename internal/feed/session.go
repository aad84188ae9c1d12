package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/techoutagebot/audiofeed/internal/audio"
	"github.com/techoutagebot/audiofeed/internal/observability"
)

// Options configures a Session
type Options struct {
	Format      audio.Format
	ChunkSize   int
	SilenceUnit time.Duration
	Observer    Observer
}

// Session ties a queue to the writer that drains it. Producers call Enqueue
// from any goroutine; the writer runs in its own goroutine between Start
// and Stop.
type Session struct {
	ID string

	opener Opener
	queue  *Queue
	writer *Writer
	format audio.Format
	obs    Observer
	logger zerolog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewSession builds a session around opener. Nothing touches the sink until Start.
func NewSession(opener Opener, opts Options, logger zerolog.Logger) *Session {
	id := observability.NewSessionID()
	logger = observability.WithSessionID(logger, id)

	defaults := DefaultWriterConfig()
	if opts.Format == (audio.Format{}) {
		opts.Format = defaults.Format
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.SilenceUnit <= 0 {
		opts.SilenceUnit = defaults.SilenceUnit
	}

	queue := NewQueue(opts.Format, logger)
	writer := NewWriter(opener, queue, WriterConfig{
		Format:      opts.Format,
		ChunkSize:   opts.ChunkSize,
		SilenceUnit: opts.SilenceUnit,
	}, logger)
	writer.SetObserver(opts.Observer)

	return &Session{
		ID:     id,
		opener: opener,
		queue:  queue,
		writer: writer,
		format: opts.Format,
		obs:    opts.Observer,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start prepares the sink and launches the writer. A sink that cannot be
// prepared is returned as ErrSinkConfig and the writer never starts.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if err := s.opener.Ensure(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to prepare feed sink")
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	go func() {
		err := s.writer.Run(runCtx)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if err != nil {
			s.logger.Error().Err(err).Msg("Audio writer exited")
		} else {
			s.logger.Info().Msg("Audio writer stopped")
		}
		close(s.done)
	}()

	s.logger.Info().Msg("Feed session started")
	return nil
}

// Stop signals the writer and waits for it to exit or for ctx to expire.
// The signal is observed between chunks of silence and between clips.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotRunning
	}
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping feed session")
	cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Audio writer did not stop in time")
		return ctx.Err()
	}
}

// Done is closed once the writer has exited
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the writer's exit error; nil while running or after a clean stop
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Enqueue queues a clip for playback. Safe for concurrent use.
func (s *Session) Enqueue(entry Entry) (Entry, error) {
	queued, err := s.queue.Enqueue(entry)
	if err != nil {
		return Entry{}, err
	}
	if s.obs != nil {
		s.obs.Observe(Event{
			Type:  EventClipQueued,
			State: s.writer.State(),
			Entry: &queued,
			Bytes: queued.Size,
			Time:  time.Now(),
		})
	}
	return queued, nil
}

// State returns the writer's lifecycle state
func (s *Session) State() State {
	return s.writer.State()
}

// Stats returns the writer's running totals
func (s *Session) Stats() Stats {
	return s.writer.Stats()
}

// QueueLen returns the number of clips waiting to play
func (s *Session) QueueLen() int {
	return s.queue.Len()
}

// Snapshot returns the waiting clips in playback order
func (s *Session) Snapshot() []Entry {
	return s.queue.Snapshot()
}

// Format returns the PCM format every clip must be in
func (s *Session) Format() audio.Format {
	return s.format
}

// Running reports whether the writer goroutine is live
func (s *Session) Running() bool {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// IsFatal reports whether err should terminate the process
func IsFatal(err error) bool {
	return errors.Is(err, ErrSinkConfig)
}
