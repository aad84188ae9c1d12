package feed

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func newTestOpener(path string) *PipeOpener {
	return NewPipeOpener(path, 5*time.Millisecond, 20*time.Millisecond, testLogger)
}

func TestPipeOpener_EnsureCreatesFIFO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio", "live.fifo")
	p := newTestOpener(path)

	if err := p.Ensure(); err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if info.Mode()&fs.ModeNamedPipe == 0 {
		t.Errorf("Expected a named pipe, got mode %v", info.Mode())
	}

	// Second call leaves the existing pipe alone
	if err := p.Ensure(); err != nil {
		t.Errorf("Ensure() on existing FIFO failed: %v", err)
	}
}

func TestPipeOpener_EnsureRejectsRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.fifo")
	if err := os.WriteFile(path, []byte("not a pipe"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := newTestOpener(path).Ensure()
	if !errors.Is(err, ErrNotPipe) || !errors.Is(err, ErrSinkConfig) {
		t.Fatalf("Expected ErrSinkConfig and ErrNotPipe, got %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "not a pipe" {
		t.Error("Regular file must not be replaced")
	}
}

func TestPipeOpener_OpenWaitsForReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.fifo")
	p := newTestOpener(path)
	if err := p.Ensure(); err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	sink, err := p.Open(ctx)
	if sink != nil {
		sink.Close()
		t.Fatal("Open() succeeded without a reader")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if IsFatal(err) {
		t.Error("Cancellation must not be reported as a sink failure")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Open() did not honour the context")
	}
}

func TestPipeOpener_OpenWriteAndBrokenPipe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.fifo")
	p := newTestOpener(path)
	if err := p.Ensure(); err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}

	reader, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sink, err := p.Open(ctx)
	if err != nil {
		reader.Close()
		t.Fatalf("Open() failed: %v", err)
	}
	defer sink.Close()

	if _, err := sink.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	got := make([]byte, 4)
	if _, err := io.ReadFull(reader, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got[0] != 1 || got[3] != 4 {
		t.Errorf("Reader got %v", got)
	}

	reader.Close()

	_, err = sink.Write([]byte{5, 6})
	if err == nil {
		t.Fatal("Expected a write error after the reader closed")
	}
	if !IsBrokenPipe(err) {
		t.Errorf("Expected a broken pipe, got %v", err)
	}

	if err := sink.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Second Close() failed: %v", err)
	}
}

func TestPipeOpener_OpenMissingPathIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "live.fifo")

	// Never ensured, so the path does not exist
	_, err := newTestOpener(path).Open(context.Background())
	if !IsFatal(err) {
		t.Fatalf("Expected a fatal sink error, got %v", err)
	}
}
