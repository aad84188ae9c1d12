// Package spool turns a drop directory into a clip producer. Any file with
// the configured extension that is created in, or renamed into, the
// directory is queued once writes to it have settled.
package spool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/techoutagebot/audiofeed/internal/feed"
	"github.com/techoutagebot/audiofeed/internal/observability"
)

// Source is the entry source recorded for spooled clips
const Source = "spool"

// Enqueuer accepts clips for playback; *feed.Session satisfies it
type Enqueuer interface {
	Enqueue(entry feed.Entry) (feed.Entry, error)
}

// Config holds drop directory settings
type Config struct {
	Dir       string
	Extension string        // Matched case-insensitively, e.g. ".pcm"
	Settle    time.Duration // Quiet period after the last write before a file is queued
}

// Watcher queues files dropped into a directory
type Watcher struct {
	config  Config
	target  Enqueuer
	logger  zerolog.Logger
	watcher *fsnotify.Watcher

	pending map[string]*pendingFile
	gen     uint64
	ready   chan settled
	done    chan struct{}
}

// pendingFile is a file waiting out its settle period. gen changes on every
// write so a timer that fired before the write can be told apart.
type pendingFile struct {
	timer *time.Timer
	gen   uint64
}

type settled struct {
	path string
	gen  uint64
}

// New creates the directory if needed and starts watching it. Events are
// only processed once Run is called.
func New(cfg Config, target Enqueuer, logger zerolog.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("spool directory is required")
	}
	if cfg.Extension != "" && !strings.HasPrefix(cfg.Extension, ".") {
		cfg.Extension = "." + cfg.Extension
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 250 * time.Millisecond
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(cfg.Dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", cfg.Dir, err)
	}

	return &Watcher{
		config:  cfg,
		target:  target,
		logger:  logger,
		watcher: fw,
		pending: make(map[string]*pendingFile),
		ready:   make(chan settled, 16),
		done:    make(chan struct{}),
	}, nil
}

// Run processes directory events until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	defer close(w.done)
	defer func() {
		for _, p := range w.pending {
			p.timer.Stop()
		}
	}()

	w.logger.Info().Str("dir", w.config.Dir).Str("extension", w.config.Extension).Msg("Watching spool directory")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case s := <-w.ready:
			w.settle(s)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Spool watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !w.matches(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.schedule(event.Name)

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// Gone before it settled
		if p, ok := w.pending[event.Name]; ok {
			p.timer.Stop()
			delete(w.pending, event.Name)
		}
	}
}

// schedule (re)starts the settle period for path. The previous timer may
// already have fired with its send still in flight; settle drops that send
// because its generation is stale.
func (w *Watcher) schedule(path string) {
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}
	w.gen++
	s := settled{path: path, gen: w.gen}
	timer := time.AfterFunc(w.config.Settle, func() {
		select {
		case w.ready <- s:
		case <-w.done:
		}
	})
	w.pending[path] = &pendingFile{timer: timer, gen: s.gen}
}

func (w *Watcher) settle(s settled) {
	p, ok := w.pending[s.path]
	if !ok || p.gen != s.gen {
		return
	}
	delete(w.pending, s.path)
	w.enqueue(s.path)
}

func (w *Watcher) enqueue(path string) {
	entry, err := w.target.Enqueue(feed.Entry{Path: path, Source: Source})
	if err != nil {
		observability.RecordEnqueueRequest(Source, "rejected")
		w.logger.Warn().Err(err).Str("path", path).Msg("Failed to queue spooled clip")
		return
	}
	observability.RecordEnqueueRequest(Source, "accepted")
	w.logger.Debug().Str("clip_id", entry.ID).Str("path", path).Msg("Spooled clip queued")
}

func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if w.config.Extension == "" {
		return true
	}
	return strings.EqualFold(filepath.Ext(base), w.config.Extension)
}
