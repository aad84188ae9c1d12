package feed

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testLogger = zerolog.Nop()

// memSink records everything written to it. With limit >= 0, a write that
// would take the total past limit fails like a closed pipe.
type memSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	limit  int
	writes int
	closed bool
}

func newMemSink() *memSink { return &memSink{limit: -1} }

func newFailingSink(limit int) *memSink { return &memSink{limit: limit} }

func (s *memSink) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, os.ErrClosed
	}
	if s.limit >= 0 && s.buf.Len()+len(b) > s.limit {
		return 0, syscall.EPIPE
	}
	s.writes++
	return s.buf.Write(b)
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

func (s *memSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// fakeOpener hands out sinks in order, then blocks until ctx is done
type fakeOpener struct {
	mu        sync.Mutex
	sinks     []*memSink
	opens     int
	openErr   error
	ensureErr error
}

func (o *fakeOpener) Ensure() error { return o.ensureErr }

func (o *fakeOpener) Open(ctx context.Context) (Sink, error) {
	o.mu.Lock()
	o.opens++
	if o.openErr != nil {
		err := o.openErr
		o.mu.Unlock()
		return nil, err
	}
	if len(o.sinks) > 0 {
		s := o.sinks[0]
		o.sinks = o.sinks[1:]
		o.mu.Unlock()
		return s, nil
	}
	o.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (o *fakeOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// recorder collects events without blocking the writer
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// throttle keeps silence loops from spinning without making tests slow
func throttle(time.Duration) { time.Sleep(time.Millisecond) }

// writeClip creates a PCM file of size bytes filled with fill
func writeClip(t *testing.T, dir, name string, size int, fill byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{fill}, size), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	return path
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
