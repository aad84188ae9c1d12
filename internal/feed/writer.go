package feed

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/techoutagebot/audiofeed/internal/audio"
	"github.com/techoutagebot/audiofeed/internal/observability"
)

// WriterConfig holds the stream parameters of one feed session
type WriterConfig struct {
	Format      audio.Format
	ChunkSize   int           // Bytes per sink write
	SilenceUnit time.Duration // Silence written each time the queue is found empty
}

// DefaultWriterConfig returns 4096-byte chunks and one-second silence units
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Format:      audio.DefaultFormat(),
		ChunkSize:   4096,
		SilenceUnit: time.Second,
	}
}

// Stats are running totals for one writer
type Stats struct {
	State        State     `json:"-"`
	ClipBytes    int64     `json:"clip_bytes"`
	SilenceBytes int64     `json:"silence_bytes"`
	ClipsPlayed  int64     `json:"clips_played"`
	ClipsAborted int64     `json:"clips_aborted"`
	ClipsFailed  int64     `json:"clips_failed"`
	Reconnects   int64     `json:"reconnects"`
	ActiveSince  time.Time `json:"active_since,omitempty"`
}

// Writer is the only goroutine that touches the sink. It alternates between
// streaming the next queued clip and emitting silence, and reopens the sink
// whenever the reader goes away.
type Writer struct {
	opener   Opener
	queue    *Queue
	config   WriterConfig
	logger   zerolog.Logger
	observer Observer
	sleep    SleepFunc

	mu    sync.RWMutex
	stats Stats
}

// NewWriter creates a writer draining queue into sinks produced by opener
func NewWriter(opener Opener, queue *Queue, config WriterConfig, logger zerolog.Logger) *Writer {
	return &Writer{
		opener: opener,
		queue:  queue,
		config: config,
		logger: logger,
		sleep:  time.Sleep,
		stats:  Stats{State: StateAwaitingReader},
	}
}

// SetObserver registers the receiver of state and clip events. Call before Run.
func (w *Writer) SetObserver(o Observer) {
	w.observer = o
}

// State returns the current lifecycle state
func (w *Writer) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats.State
}

// Stats returns a copy of the running totals
func (w *Writer) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// Run feeds the sink until ctx is done. It returns nil after a stop and a
// wrapped ErrSinkConfig if the sink cannot be opened at all.
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info().
		Str("format", w.config.Format.String()).
		Int("chunk_size", w.config.ChunkSize).
		Dur("silence_unit", w.config.SilenceUnit).
		Msg("Audio writer loop started")
	defer w.setState(StateStopped)

	for {
		if ctx.Err() != nil {
			return nil
		}

		w.setState(StateAwaitingReader)
		w.logger.Info().Msg("Waiting for reader to open FIFO")

		sink, err := w.opener.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error().Err(err).Msg("Error opening FIFO")
			return err
		}

		w.setState(StateActive)
		w.logger.Info().Msg("FIFO opened")

		err = w.pump(ctx, sink)
		if cerr := sink.Close(); cerr != nil && !IsBrokenPipe(cerr) {
			w.logger.Debug().Err(cerr).Msg("Error closing FIFO")
		}
		if err == nil {
			return nil
		}

		w.setState(StateDisconnected)
		w.mu.Lock()
		w.stats.Reconnects++
		w.mu.Unlock()
		observability.IncrementReconnects()
		w.logger.Warn().Err(err).Msg("FIFO reader disconnected, re-opening")
	}
}

// pump writes clips or silence to sink until ctx is done (nil) or the
// reader disconnects (ErrSinkDisconnected).
func (w *Writer) pump(ctx context.Context, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if entry, ok := w.queue.Dequeue(); ok {
			if err := w.playClip(sink, entry); err != nil {
				return err
			}
			continue
		}

		n, err := EmitSilence(sink, w.config.Format, w.config.SilenceUnit, w.config.ChunkSize, w.sleep)
		w.addBytes(&w.stats.SilenceBytes, n)
		observability.RecordBytes("silence", int(n))
		if err != nil {
			return err
		}
	}
}

// playClip streams one entry. Only a sink failure is returned; a bad clip
// is logged and dropped.
func (w *Writer) playClip(sink Sink, entry Entry) error {
	logger := w.logger.With().Str("clip_id", entry.ID).Str("path", entry.Path).Logger()
	defer w.cleanup(entry, logger)

	w.notify(Event{Type: EventClipStarted, Entry: &entry})
	logger.Info().Msg("Playing clip")

	n, err := StreamClip(sink, entry.Path, w.config.Format, w.config.ChunkSize, func(chunk []byte) {
		observability.SetOutputLevel(w.config.Format.Level(chunk))
	})
	w.addBytes(&w.stats.ClipBytes, n)
	observability.RecordBytes("clip", int(n))

	switch {
	case err == nil:
		w.addBytes(&w.stats.ClipsPlayed, 1)
		observability.RecordClip("played")
		observability.ObserveClipDuration(w.config.Format.DurationOf(n).Seconds())
		logger.Info().Str("bytes", humanize.Bytes(uint64(n))).Msg("Finished playing clip")
		w.notify(Event{Type: EventClipFinished, Entry: &entry, Bytes: n})
		return nil

	case errors.Is(err, ErrSinkDisconnected):
		w.addBytes(&w.stats.ClipsAborted, 1)
		observability.RecordClip("aborted")
		logger.Warn().
			Int64("delivered", n).
			Int64("dropped", max(entry.Size-n, 0)).
			Msg("Reader disconnected mid-clip, dropping remainder")
		w.notify(Event{Type: EventClipAborted, Entry: &entry, Bytes: n, Err: err})
		return err

	default:
		w.addBytes(&w.stats.ClipsFailed, 1)
		observability.RecordClip("failed")
		logger.Error().Err(err).Msg("Error streaming clip")
		w.notify(Event{Type: EventClipFailed, Entry: &entry, Bytes: n, Err: err})
		return nil
	}
}

func (w *Writer) cleanup(entry Entry, logger zerolog.Logger) {
	if !entry.Ephemeral {
		return
	}
	if err := os.Remove(entry.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("Failed to remove played clip")
	}
}

func (w *Writer) setState(s State) {
	w.mu.Lock()
	prev := w.stats.State
	w.stats.State = s
	if s == StateActive {
		w.stats.ActiveSince = time.Now()
	}
	w.mu.Unlock()

	observability.SetWriterState(int(s))
	if prev != s {
		w.notify(Event{Type: EventState, State: s})
	}
}

func (w *Writer) addBytes(counter *int64, n int64) {
	w.mu.Lock()
	*counter += n
	w.mu.Unlock()
}

func (w *Writer) notify(e Event) {
	if w.observer == nil {
		return
	}
	if e.Type != EventState {
		e.State = w.State()
	}
	e.Time = time.Now()
	w.observer.Observe(e)
}
