package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/techoutagebot/audiofeed/internal/resilience"
)

// Sink is the write side of the pipe. Close must be safe to call twice.
type Sink interface {
	io.Writer
	io.Closer
}

// Flusher is implemented by sinks that buffer writes
type Flusher interface {
	Flush() error
}

// Opener manages the sink's lifecycle on behalf of the writer
type Opener interface {
	// Ensure prepares the sink so Open can succeed once a reader attaches
	Ensure() error
	// Open returns only once a reader is attached, ctx is done or the sink
	// is unusable
	Open(ctx context.Context) (Sink, error)
}

// PipeOpener creates and opens a named pipe (FIFO) for writing
type PipeOpener struct {
	path   string
	poll   resilience.ReconnectConfig
	logger zerolog.Logger
}

// NewPipeOpener returns an opener for the FIFO at path. While no reader is
// attached, open attempts start pollInterval apart and back off to maxPoll.
func NewPipeOpener(path string, pollInterval, maxPoll time.Duration, logger zerolog.Logger) *PipeOpener {
	p := &PipeOpener{
		path:   path,
		logger: logger,
	}
	p.poll = resilience.ReconnectConfig{
		MaxAttempts: 0,
		Backoff:     pollInterval,
		Multiplier:  2.0,
		MaxBackoff:  maxPoll,
		Logger:      &p.logger,
	}
	return p
}

// Path returns the FIFO location
func (p *PipeOpener) Path() string {
	return p.path
}

// Ensure creates missing parent directories and the FIFO node. A regular
// file already at the path is reported, never replaced.
func (p *PipeOpener) Ensure() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("%w: create parent of %s: %w", ErrSinkConfig, p.path, err)
	}

	info, err := os.Stat(p.path)
	switch {
	case err == nil:
		if info.Mode()&fs.ModeNamedPipe == 0 {
			return fmt.Errorf("%w: %w: %s", ErrSinkConfig, ErrNotPipe, p.path)
		}
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: stat %s: %w", ErrSinkConfig, p.path, err)
	}

	if err := unix.Mkfifo(p.path, 0o644); err != nil {
		if errors.Is(err, unix.EEXIST) {
			// Created concurrently; make sure it is a pipe
			return p.Ensure()
		}
		return fmt.Errorf("%w: mkfifo %s: %w", ErrSinkConfig, p.path, err)
	}

	p.logger.Info().Str("path", p.path).Msg("Created FIFO")
	return nil
}

// Open waits for a reader to attach and returns the write side. Opening a
// FIFO write-only without O_NONBLOCK would park the goroutine in the kernel
// where the stop signal cannot reach it, so the open is retried until the
// kernel stops answering ENXIO.
func (p *PipeOpener) Open(ctx context.Context) (Sink, error) {
	var file *os.File

	err := resilience.Reconnect(ctx, func() error {
		f, err := os.OpenFile(p.path, os.O_WRONLY|unix.O_NONBLOCK, 0)
		if err == nil {
			file = f
			return nil
		}
		if errors.Is(err, unix.ENXIO) {
			return err
		}
		return resilience.Permanent(err)
	}, &p.poll)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrSinkConfig, p.path, err)
	}

	info, err := file.Stat()
	if err != nil || info.Mode()&fs.ModeNamedPipe == 0 {
		file.Close()
		return nil, fmt.Errorf("%w: %w: %s", ErrSinkConfig, ErrNotPipe, p.path)
	}

	return &pipeSink{file: file}, nil
}

// pipeSink writes straight to the FIFO. The descriptor is registered with
// the runtime poller, so a full pipe parks the writing goroutine until the
// reader drains it.
type pipeSink struct {
	file      *os.File
	closeOnce sync.Once
	closeErr  error
}

func (s *pipeSink) Write(b []byte) (int, error) {
	return s.file.Write(b)
}

func (s *pipeSink) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.file.Close()
	})
	return s.closeErr
}
