package audio

import (
	"sync"

	"github.com/rs/zerolog"
)

// Player decodes one audio payload and plays it, returning after natural
// completion. Implementations do not need to be safe for concurrent use;
// the queue calls Play from a single drain goroutine.
type Player interface {
	Play(payload []byte) error
}

// PlaybackQueue serializes playback of arriving audio payloads so they never
// overlap, preserving arrival order. Enqueue may be called from any goroutine;
// the playing flag acts as the single-consumer guard so only one drain loop
// runs at a time.
type PlaybackQueue struct {
	player Player
	logger zerolog.Logger

	mu      sync.Mutex
	items   [][]byte
	playing bool
	wake    *sync.Cond
}

func NewPlaybackQueue(player Player, logger zerolog.Logger) *PlaybackQueue {
	q := &PlaybackQueue{
		player: player,
		logger: logger.With().Str("module", "audio.playback").Logger(),
	}
	q.wake = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends the payload and starts a drain loop if none is running.
func (q *PlaybackQueue) Enqueue(payload []byte) {
	q.mu.Lock()
	q.items = append(q.items, payload)
	if q.playing {
		q.mu.Unlock()
		return
	}
	q.playing = true
	q.mu.Unlock()
	go q.drain()
}

func (q *PlaybackQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.playing = false
			q.wake.Broadcast()
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		// A single corrupt chunk must not stall the rest of the
		// conversation's audio.
		if err := q.player.Play(item); err != nil {
			q.logger.Error().Err(err).Msg("playback failed, skipping chunk")
		}
	}
}

// Clear discards all pending items. The chunk currently playing, if any,
// finishes naturally.
func (q *PlaybackQueue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// Idle reports whether no drain loop is running.
func (q *PlaybackQueue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.playing
}

// Pending returns the number of queued, not-yet-played items.
func (q *PlaybackQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wait blocks until the queue is idle. Intended for tests and teardown.
func (q *PlaybackQueue) Wait() {
	q.mu.Lock()
	for q.playing {
		q.wake.Wait()
	}
	q.mu.Unlock()
}
