package feed

import (
	"errors"
	"io"
	"os"
	"syscall"
)

var (
	// ErrSinkConfig marks failures that make the feed unusable until an
	// operator intervenes: unusable pipe path, permissions, missing device.
	ErrSinkConfig = errors.New("feed sink misconfigured")

	// ErrNotPipe is returned when the sink path exists but is not a named pipe
	ErrNotPipe = errors.New("sink path exists and is not a named pipe")

	// ErrSinkDisconnected means the reader went away mid-write
	ErrSinkDisconnected = errors.New("feed reader disconnected")

	// ErrClipUnreadable means a clip could not be read from storage
	ErrClipUnreadable = errors.New("clip unreadable")

	// ErrClipNotFound is returned when enqueueing a path that does not exist
	ErrClipNotFound = errors.New("clip not found")

	ErrAlreadyStarted = errors.New("feed session already started")
	ErrNotRunning     = errors.New("feed session not running")
)

// IsBrokenPipe reports whether err means the read side of the sink closed
func IsBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed)
}
