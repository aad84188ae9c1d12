package feed

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/techoutagebot/audiofeed/internal/audio"
)

// StreamClip copies the raw PCM file at path into sink in chunkSize pieces,
// flushing after each. The sink's backpressure paces the copy. A clip that
// does not end on a frame boundary is padded with zeros.
//
// A sink failure aborts the clip with ErrSinkDisconnected; the rest of the
// file is dropped. A source failure returns ErrClipUnreadable.
func StreamClip(sink Sink, path string, format audio.Format, chunkSize int, onChunk func([]byte)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrClipUnreadable, err)
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	var written int64
	var readErr error

	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			if werr := writeChunk(sink, buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			if onChunk != nil {
				onChunk(buf[:n])
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			readErr = fmt.Errorf("%w: read %s: %w", ErrClipUnreadable, path, err)
			break
		}
	}

	if rem := written % int64(format.FrameSize()); rem != 0 {
		pad := int64(format.FrameSize()) - rem
		if err := writeChunk(sink, make([]byte, pad)); err != nil {
			return written, err
		}
		written += pad
	}

	return written, readErr
}
