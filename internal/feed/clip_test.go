package feed

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/techoutagebot/audiofeed/internal/audio"
)

func TestStreamClip_Chunks(t *testing.T) {
	path := writeClip(t, t.TempDir(), "clip.pcm", 10000, 7)
	sink := newMemSink()

	var chunks []int
	n, err := StreamClip(sink, path, audio.DefaultFormat(), 4096, func(b []byte) {
		chunks = append(chunks, len(b))
	})
	if err != nil {
		t.Fatalf("StreamClip() failed: %v", err)
	}
	if n != 10000 {
		t.Errorf("Expected 10000 bytes, got %d", n)
	}

	want := []int{4096, 4096, 1808}
	if len(chunks) != len(want) {
		t.Fatalf("Expected chunks %v, got %v", want, chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("Chunk %d: expected %d bytes, got %d", i, want[i], chunks[i])
		}
	}

	if !bytes.Equal(sink.Bytes(), bytes.Repeat([]byte{7}, 10000)) {
		t.Error("Sink content does not match the clip")
	}
}

func TestStreamClip_PadsPartialFrame(t *testing.T) {
	path := writeClip(t, t.TempDir(), "odd.pcm", 4097, 9)
	sink := newMemSink()

	n, err := StreamClip(sink, path, audio.DefaultFormat(), 4096, nil)
	if err != nil {
		t.Fatalf("StreamClip() failed: %v", err)
	}
	if n != 4098 {
		t.Errorf("Expected 4098 bytes after padding, got %d", n)
	}
	out := sink.Bytes()
	if len(out) != 4098 || out[4096] != 9 || out[4097] != 0 {
		t.Errorf("Expected one zero pad byte after the clip, got tail %v", out[len(out)-2:])
	}
}

func TestStreamClip_EmptyFile(t *testing.T) {
	path := writeClip(t, t.TempDir(), "empty.pcm", 0, 0)
	sink := newMemSink()

	n, err := StreamClip(sink, path, audio.DefaultFormat(), 4096, nil)
	if err != nil {
		t.Fatalf("StreamClip() failed: %v", err)
	}
	if n != 0 || sink.writes != 0 {
		t.Errorf("Expected nothing written, got %d bytes in %d writes", n, sink.writes)
	}
}

func TestStreamClip_Unreadable(t *testing.T) {
	sink := newMemSink()

	_, err := StreamClip(sink, filepath.Join(t.TempDir(), "gone.pcm"), audio.DefaultFormat(), 4096, nil)
	if !errors.Is(err, ErrClipUnreadable) {
		t.Fatalf("Expected ErrClipUnreadable, got %v", err)
	}
	if errors.Is(err, ErrSinkDisconnected) {
		t.Error("A missing clip must not look like a disconnect")
	}
	if sink.Len() != 0 {
		t.Errorf("Expected no bytes written, got %d", sink.Len())
	}
}

func TestStreamClip_ReaderDisconnects(t *testing.T) {
	path := writeClip(t, t.TempDir(), "long.pcm", 96000, 3)
	sink := newFailingSink(10000)

	n, err := StreamClip(sink, path, audio.DefaultFormat(), 4096, nil)
	if !errors.Is(err, ErrSinkDisconnected) {
		t.Fatalf("Expected ErrSinkDisconnected, got %v", err)
	}
	if n != 8192 {
		t.Errorf("Expected 8192 bytes delivered before the failure, got %d", n)
	}
}
