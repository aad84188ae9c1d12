package feed

import (
	"fmt"
	"time"

	"github.com/techoutagebot/audiofeed/internal/audio"
)

// SleepFunc pauses the caller; time.Sleep in production
type SleepFunc func(time.Duration)

// EmitSilence writes duration worth of zero samples to sink, chunkSize
// bytes at a time, sleeping between chunks so bytes leave at the format's
// real-time rate. Both the total and the chunk size are rounded down to
// whole frames. A failed write aborts and is reported as ErrSinkDisconnected.
func EmitSilence(sink Sink, format audio.Format, duration time.Duration, chunkSize int, sleep SleepFunc) (int64, error) {
	total := format.BytesFor(duration)
	chunkSize = format.AlignDown(chunkSize)
	if chunkSize <= 0 {
		chunkSize = format.FrameSize()
	}
	zeros := make([]byte, chunkSize)

	var written int64
	start := time.Now()

	for written < int64(total) {
		n := chunkSize
		if remaining := int64(total) - written; remaining < int64(n) {
			n = int(remaining)
		}

		if err := writeChunk(sink, zeros[:n]); err != nil {
			return written, err
		}
		written += int64(n)

		// Pace against the stream position rather than per chunk so time
		// spent blocked in Write is not added on top.
		if sleep != nil {
			if wait := time.Until(start.Add(format.DurationOf(written))); wait > 0 {
				sleep(wait)
			}
		}
	}

	return written, nil
}

// writeChunk writes b fully and flushes buffered sinks
func writeChunk(sink Sink, b []byte) error {
	if _, err := sink.Write(b); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkDisconnected, err)
	}
	if f, ok := sink.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("%w: %w", ErrSinkDisconnected, err)
		}
	}
	return nil
}
