package audio

import (
	"errors"
	"fmt"
	"time"
)

// Format is the raw PCM contract shared by every producer and the silence
// generator. Samples are signed little-endian and channels are interleaved.
type Format struct {
	SampleRate int // Samples per second per channel
	BitDepth   int // 8, 16, 24 or 32
	Channels   int // Interleaved channel count
}

// DefaultFormat is mono 16-bit little-endian at 24kHz (48000 bytes/sec),
// the format speech synthesis APIs return for raw PCM output.
func DefaultFormat() Format {
	return Format{
		SampleRate: 24000,
		BitDepth:   16,
		Channels:   1,
	}
}

var ErrInvalidFormat = errors.New("invalid audio format")

// Validate checks the format can describe a PCM stream
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidFormat, f.SampleRate)
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidFormat, f.BitDepth)
	}
	if f.Channels < 1 {
		return fmt.Errorf("%w: channels must be at least 1, got %d", ErrInvalidFormat, f.Channels)
	}
	return nil
}

// BytesPerSample returns the width of a single sample
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// FrameSize returns the size of one sample for every channel, the smallest
// indivisible unit of valid PCM data.
func (f Format) FrameSize() int {
	return f.Channels * f.BytesPerSample()
}

// BytesPerSecond returns the real-time consumption rate of the stream
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

// AlignDown rounds n down to a whole number of frames
func (f Format) AlignDown(n int) int {
	frame := f.FrameSize()
	return n - n%frame
}

// IsAligned reports whether n bytes hold whole frames only
func (f Format) IsAligned(n int64) bool {
	return n%int64(f.FrameSize()) == 0
}

// BytesFor returns the number of bytes covering d, truncated to whole frames
func (f Format) BytesFor(d time.Duration) int {
	rate := int64(f.SampleRate)
	// Split into whole seconds first so long durations do not overflow.
	frames := int64(d/time.Second)*rate + int64(d%time.Second)*rate/int64(time.Second)
	return int(frames) * f.FrameSize()
}

// DurationOf returns the playback time of n bytes
func (f Format) DurationOf(n int64) time.Duration {
	bps := int64(f.BytesPerSecond())
	if bps == 0 {
		return 0
	}
	return time.Duration(n/bps)*time.Second + time.Duration(n%bps*int64(time.Second)/bps)
}

func (f Format) String() string {
	return fmt.Sprintf("s%dle %dHz %dch", f.BitDepth, f.SampleRate, f.Channels)
}
