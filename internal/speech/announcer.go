package speech

import (
	"context"
	"os"

	"github.com/techoutagebot/audiofeed/internal/feed"
)

// Source is the entry source recorded for announcements
const Source = "speech"

// Synthesizer renders text to a PCM file
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Enqueuer accepts clips for playback; *feed.Session satisfies it
type Enqueuer interface {
	Enqueue(entry feed.Entry) (feed.Entry, error)
}

// Announcer turns text into a queued clip that is deleted after it plays
type Announcer struct {
	synth  Synthesizer
	target Enqueuer
}

func NewAnnouncer(synth Synthesizer, target Enqueuer) *Announcer {
	return &Announcer{synth: synth, target: target}
}

// Announce synthesizes text and queues the result
func (a *Announcer) Announce(ctx context.Context, text string) (feed.Entry, error) {
	path, err := a.synth.Synthesize(ctx, text)
	if err != nil {
		return feed.Entry{}, err
	}

	entry, err := a.target.Enqueue(feed.Entry{Path: path, Source: Source, Ephemeral: true})
	if err != nil {
		os.Remove(path)
		return feed.Entry{}, err
	}
	return entry, nil
}
