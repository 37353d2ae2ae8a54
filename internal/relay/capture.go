package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/interviewly/meetkit/internal/audio"
)

// CaptureSource provides captured microphone frames. Open acquires the device
// and starts delivering fixed-interval sample buffers on the returned channel;
// Close releases the device and must be safe to call more than once.
//
// The source is injected rather than owned globally so teardown and tests can
// control its lifetime per session.
type CaptureSource interface {
	Open(ctx context.Context) (<-chan []float32, error)
	Close() error
}

var ErrCaptureClosed = errors.New("capture source closed")

// ReaderSource captures PCM16 frames from an io.Reader, typically a pipe fed
// by a platform recorder process. Frames are paced at the capture interval so
// the relay sees the same cadence as a live microphone.
type ReaderSource struct {
	r        io.Reader
	frameLen int
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func NewReaderSource(r io.Reader, frameLen int, interval time.Duration) *ReaderSource {
	if frameLen <= 0 {
		frameLen = audio.SampleRate / 10
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &ReaderSource{r: r, frameLen: frameLen, interval: interval}
}

func (s *ReaderSource) Open(ctx context.Context) (<-chan []float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrCaptureClosed
	}
	if s.cancel != nil {
		return nil, errors.New("capture source already open")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	frames := make(chan []float32, 4)
	go s.pump(ctx, frames)
	return frames, nil
}

func (s *ReaderSource) pump(ctx context.Context, frames chan<- []float32) {
	defer close(frames)
	buf := make([]byte, s.frameLen*2)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := io.ReadFull(s.r, buf); err != nil {
			return
		}
		samples, err := audio.SamplesFromBytes(buf)
		if err != nil {
			return
		}
		select {
		case frames <- samples:
		case <-ctx.Done():
			return
		}
	}
}

func (s *ReaderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}
