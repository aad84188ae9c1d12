package feed

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/techoutagebot/audiofeed/internal/audio"
	"github.com/techoutagebot/audiofeed/internal/observability"
)

// Entry references one raw PCM clip waiting to be played
type Entry struct {
	ID         string
	Path       string
	Source     string // Producer that queued the clip, e.g. "api" or "spool"
	Ephemeral  bool   // Remove the file once it has been streamed
	Size       int64
	EnqueuedAt time.Time
}

// Queue is the FIFO of clips shared between producers and the writer.
// The lock only guards the slice; no I/O happens while it is held.
type Queue struct {
	format audio.Format
	logger zerolog.Logger

	mu      sync.Mutex
	entries []Entry
}

// NewQueue creates an empty playback queue for clips in the given format
func NewQueue(format audio.Format, logger zerolog.Logger) *Queue {
	return &Queue{
		format: format,
		logger: logger,
	}
}

// Enqueue appends entry if its file exists. Missing paths are logged and
// never enter the queue.
func (q *Queue) Enqueue(entry Entry) (Entry, error) {
	info, err := os.Stat(entry.Path)
	if err != nil || info.IsDir() {
		q.logger.Error().Str("path", entry.Path).Str("source", entry.Source).Msg("Audio file not found")
		observability.RecordClip("rejected")
		return Entry{}, fmt.Errorf("%w: %s", ErrClipNotFound, entry.Path)
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.Size = info.Size()
	entry.EnqueuedAt = time.Now()

	if !q.format.IsAligned(entry.Size) {
		q.logger.Warn().
			Str("path", entry.Path).
			Int64("size", entry.Size).
			Int("frame_size", q.format.FrameSize()).
			Msg("Clip size is not a whole number of frames; tail will be padded")
	}

	q.mu.Lock()
	q.entries = append(q.entries, entry)
	depth := len(q.entries)
	q.mu.Unlock()

	observability.SetQueueDepth(depth)
	observability.RecordClip("queued")
	q.logger.Info().
		Str("clip_id", entry.ID).
		Str("path", entry.Path).
		Str("size", humanize.Bytes(uint64(entry.Size))).
		Int("queue_length", depth).
		Msg("Queued audio")

	return entry, nil
}

// Dequeue removes and returns the oldest entry. It never blocks.
func (q *Queue) Dequeue() (Entry, bool) {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return Entry{}, false
	}
	entry := q.entries[0]
	q.entries[0] = Entry{}
	q.entries = q.entries[1:]
	depth := len(q.entries)
	q.mu.Unlock()

	observability.SetQueueDepth(depth)
	return entry, true
}

// Len returns the number of waiting entries
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns a copy of the waiting entries in playback order
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}
