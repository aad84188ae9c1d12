package feed

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/techoutagebot/audiofeed/internal/audio"
)

func TestQueue_EnqueueMissingFile(t *testing.T) {
	q := NewQueue(audio.DefaultFormat(), testLogger)

	_, err := q.Enqueue(Entry{Path: filepath.Join(t.TempDir(), "nope.pcm")})
	if !errors.Is(err, ErrClipNotFound) {
		t.Fatalf("Expected ErrClipNotFound, got %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got length %d", q.Len())
	}
}

func TestQueue_EnqueueDirectory(t *testing.T) {
	q := NewQueue(audio.DefaultFormat(), testLogger)

	if _, err := q.Enqueue(Entry{Path: t.TempDir()}); !errors.Is(err, ErrClipNotFound) {
		t.Fatalf("Expected ErrClipNotFound for a directory, got %v", err)
	}
}

func TestQueue_EnqueueFillsEntry(t *testing.T) {
	q := NewQueue(audio.DefaultFormat(), testLogger)
	path := writeClip(t, t.TempDir(), "a.pcm", 4801, 1)

	entry, err := q.Enqueue(Entry{Path: path, Source: "test"})
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if entry.ID == "" {
		t.Error("Expected an ID to be assigned")
	}
	if entry.Size != 4801 {
		t.Errorf("Expected size 4801, got %d", entry.Size)
	}
	if entry.EnqueuedAt.IsZero() {
		t.Error("Expected EnqueuedAt to be set")
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := NewQueue(audio.DefaultFormat(), testLogger)
	dir := t.TempDir()

	var paths []string
	for i := 0; i < 3; i++ {
		p := writeClip(t, dir, fmt.Sprintf("%d.pcm", i), 2, byte(i))
		paths = append(paths, p)
		if _, err := q.Enqueue(Entry{Path: p}); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", p, err)
		}
	}

	snap := q.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Expected snapshot of 3, got %d", len(snap))
	}

	for i, want := range paths {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue %d: queue unexpectedly empty", i)
		}
		if got.Path != want {
			t.Errorf("Dequeue %d: expected %s, got %s", i, want, got.Path)
		}
	}

	if _, ok := q.Dequeue(); ok {
		t.Error("Expected empty queue after draining")
	}
	if len(snap) != 3 {
		t.Error("Snapshot should not change when the queue drains")
	}
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	q := NewQueue(audio.DefaultFormat(), testLogger)
	path := writeClip(t, t.TempDir(), "c.pcm", 2, 0)

	const producers = 8
	const perProducer = 25

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				if _, err := q.Enqueue(Entry{Path: path}); err != nil {
					t.Errorf("Enqueue() failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if q.Len() != producers*perProducer {
		t.Errorf("Expected %d entries, got %d", producers*perProducer, q.Len())
	}

	seen := make(map[string]bool)
	for {
		e, ok := q.Dequeue()
		if !ok {
			break
		}
		if seen[e.ID] {
			t.Fatalf("Duplicate entry ID %s", e.ID)
		}
		seen[e.ID] = true
	}
}
