package feed

import (
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/techoutagebot/audiofeed/internal/audio"
)

func TestEmitSilence(t *testing.T) {
	format := audio.DefaultFormat()

	tests := []struct {
		name      string
		duration  time.Duration
		chunkSize int
		want      int64
	}{
		{"one second", time.Second, 4096, 48000},
		{"zero", 0, 4096, 0},
		{"odd chunk rounded to frame", 100 * time.Millisecond, 4095, 4800},
		{"sub-frame duration", 10 * time.Microsecond, 4096, 0},
		{"quarter second", 250 * time.Millisecond, 4096, 12000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newMemSink()
			n, err := EmitSilence(sink, format, tt.duration, tt.chunkSize, nil)
			if err != nil {
				t.Fatalf("EmitSilence() failed: %v", err)
			}
			if n != tt.want {
				t.Errorf("Expected %d bytes, got %d", tt.want, n)
			}
			if int64(sink.Len()) != n {
				t.Errorf("Sink received %d bytes, reported %d", sink.Len(), n)
			}
			if n%int64(format.FrameSize()) != 0 {
				t.Errorf("Expected whole frames, got %d bytes", n)
			}
			for i, b := range sink.Bytes() {
				if b != 0 {
					t.Fatalf("Byte %d is %d, expected silence", i, b)
				}
			}
		})
	}
}

func TestEmitSilence_ChunkBound(t *testing.T) {
	sink := newMemSink()
	if _, err := EmitSilence(sink, audio.DefaultFormat(), time.Second, 4096, nil); err != nil {
		t.Fatalf("EmitSilence() failed: %v", err)
	}
	// 48000 / 4096 rounds up to 12 writes
	if sink.writes != 12 {
		t.Errorf("Expected 12 writes, got %d", sink.writes)
	}
}

func TestEmitSilence_Pacing(t *testing.T) {
	var waits []time.Duration
	sleep := func(d time.Duration) { waits = append(waits, d) }

	if _, err := EmitSilence(newMemSink(), audio.DefaultFormat(), time.Second, 4096, sleep); err != nil {
		t.Fatalf("EmitSilence() failed: %v", err)
	}

	if len(waits) == 0 {
		t.Fatal("Expected the writer to pace itself")
	}
	last := waits[len(waits)-1]
	if last > time.Second || last < 900*time.Millisecond {
		t.Errorf("Expected final wait near the unit length, got %v", last)
	}
	for i := 1; i < len(waits); i++ {
		if waits[i] < waits[i-1] {
			t.Errorf("Wait %d (%v) shorter than wait %d (%v)", i, waits[i], i-1, waits[i-1])
		}
	}
}

func TestEmitSilence_BrokenPipe(t *testing.T) {
	sink := newFailingSink(0)

	n, err := EmitSilence(sink, audio.DefaultFormat(), time.Second, 4096, nil)
	if n != 0 {
		t.Errorf("Expected 0 bytes written, got %d", n)
	}
	if !errors.Is(err, ErrSinkDisconnected) {
		t.Errorf("Expected ErrSinkDisconnected, got %v", err)
	}
	if !errors.Is(err, syscall.EPIPE) {
		t.Errorf("Expected the cause to be kept, got %v", err)
	}
	if !IsBrokenPipe(err) {
		t.Error("Expected IsBrokenPipe to recognise the error")
	}
}
