package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interviewly/meetkit/internal/audio"
)

type fakeSource struct {
	frames  chan []float32
	openErr error

	mu     sync.Mutex
	closed int
}

func (s *fakeSource) Open(ctx context.Context) (<-chan []float32, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.frames, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type recordingPlayer struct {
	mu     sync.Mutex
	played [][]byte
}

func (p *recordingPlayer) Play(payload []byte) error {
	p.mu.Lock()
	p.played = append(p.played, payload)
	p.mu.Unlock()
	return nil
}

func (p *recordingPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

// testRelay is a synthetic relay endpoint: it hands the accepted connection
// to the test and forwards every inbound frame to a channel.
type testRelay struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	received chan []byte
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	tr := &testRelay{
		conns:    make(chan *websocket.Conn, 1),
		received: make(chan []byte, 64),
	}
	upgrader := websocket.Upgrader{}
	tr.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		tr.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			tr.received <- data
		}
	}))
	t.Cleanup(tr.srv.Close)
	return tr
}

func (tr *testRelay) url() string {
	return "ws" + strings.TrimPrefix(tr.srv.URL, "http")
}

func (tr *testRelay) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-tr.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no relay connection accepted")
		return nil
	}
}

type transcriptRec struct {
	mu      sync.Mutex
	entries []struct {
		text  string
		final bool
	}
}

func (r *transcriptRec) add(text string, final bool) {
	r.mu.Lock()
	r.entries = append(r.entries, struct {
		text  string
		final bool
	}{text, final})
	r.mu.Unlock()
}

func (r *transcriptRec) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func newTestClient(t *testing.T, tr *testRelay, source CaptureSource, player audio.Player, cbs Callbacks) *Client {
	t.Helper()
	if player == nil {
		player = &recordingPlayer{}
	}
	queue := audio.NewPlaybackQueue(player, zerolog.Nop())
	c := NewClient(tr.url(), source, queue, cbs, zerolog.Nop())
	t.Cleanup(c.Disconnect)
	return c
}

func TestTranscriptAccumulation(t *testing.T) {
	tr := newTestRelay(t)
	source := &fakeSource{frames: make(chan []float32)}
	rec := &transcriptRec{}
	c := newTestClient(t, tr, source, nil, Callbacks{OnTranscript: rec.add})

	require.NoError(t, c.Connect(context.Background()))
	conn := tr.accept(t)

	for _, frag := range []string{"Walk me ", "through your ", "last project."} {
		require.NoError(t, conn.WriteJSON(map[string]string{
			"type": TypeTranscriptDelta, "delta": frag,
		}))
	}
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": TypeTranscriptDone, "transcript": "Walk me through your last project.",
	}))

	require.Eventually(t, func() bool { return rec.len() == 4 }, 2*time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, "Walk me ", rec.entries[0].text)
	assert.False(t, rec.entries[0].final)
	assert.False(t, rec.entries[1].final)
	assert.False(t, rec.entries[2].final)
	assert.Equal(t, "Walk me through your last project.", rec.entries[3].text)
	assert.True(t, rec.entries[3].final)
	rec.mu.Unlock()

	// The accumulator must be empty after done: a new fragment followed by a
	// done without transcript text yields only the new fragment.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": TypeTranscriptDelta, "delta": "Next"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": TypeTranscriptDone}))
	require.Eventually(t, func() bool { return rec.len() == 6 }, 2*time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, "Next", rec.entries[5].text)
	assert.True(t, rec.entries[5].final)
	rec.mu.Unlock()
}

func TestAudioDeltaFeedsPlaybackQueue(t *testing.T) {
	tr := newTestRelay(t)
	source := &fakeSource{frames: make(chan []float32)}
	player := &recordingPlayer{}
	c := newTestClient(t, tr, source, player, Callbacks{})

	require.NoError(t, c.Connect(context.Background()))
	conn := tr.accept(t)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": TypeAudioDelta, "delta": "AQIDBA==",
	}))
	require.Eventually(t, func() bool { return player.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	player.mu.Lock()
	assert.Equal(t, []byte{1, 2, 3, 4}, player.played[0])
	player.mu.Unlock()
}

func TestSpeakingStateEvents(t *testing.T) {
	tr := newTestRelay(t)
	source := &fakeSource{frames: make(chan []float32)}
	var mu sync.Mutex
	var states []bool
	c := newTestClient(t, tr, source, nil, Callbacks{
		OnSpeaking: func(s bool) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})

	require.NoError(t, c.Connect(context.Background()))
	conn := tr.accept(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": TypeResponseCreated}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": TypeSpeechStarted}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 2
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []bool{true, false}, states)
	mu.Unlock()
}

func TestMuteGatesTransmission(t *testing.T) {
	tr := newTestRelay(t)
	source := &fakeSource{frames: make(chan []float32, 8)}
	c := newTestClient(t, tr, source, nil, Callbacks{})

	require.NoError(t, c.Connect(context.Background()))
	tr.accept(t)

	frame := make([]float32, 160)
	source.frames <- frame
	select {
	case <-tr.received:
	case <-time.After(2 * time.Second):
		t.Fatal("expected audio frame before mute")
	}

	assert.True(t, c.ToggleMute())
	source.frames <- frame
	source.frames <- frame
	select {
	case <-tr.received:
		t.Fatal("received audio frame while muted")
	case <-time.After(200 * time.Millisecond):
	}

	assert.False(t, c.ToggleMute())
	source.frames <- frame
	select {
	case <-tr.received:
	case <-time.After(2 * time.Second):
		t.Fatal("expected audio frame after unmute")
	}
}

func TestErrorEventKeepsConnection(t *testing.T) {
	tr := newTestRelay(t)
	source := &fakeSource{frames: make(chan []float32)}
	errs := make(chan error, 1)
	c := newTestClient(t, tr, source, nil, Callbacks{
		OnError: func(err error) { errs <- err },
	})

	require.NoError(t, c.Connect(context.Background()))
	conn := tr.accept(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": TypeError, "message": "upstream overloaded"}))
	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "upstream overloaded")
	case <-time.After(2 * time.Second):
		t.Fatal("expected error callback")
	}
	assert.Equal(t, StateConnected, c.State())
}

func TestCaptureFailureAbortsConnect(t *testing.T) {
	tr := newTestRelay(t)
	source := &fakeSource{openErr: errors.New("permission denied")}
	errs := make(chan error, 1)
	c := newTestClient(t, tr, source, nil, Callbacks{
		OnError: func(err error) { errs <- err },
	})

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, c.State())
	select {
	case cbErr := <-errs:
		assert.Contains(t, cbErr.Error(), "permission denied")
	case <-time.After(time.Second):
		t.Fatal("expected error callback")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	tr := newTestRelay(t)
	source := &fakeSource{frames: make(chan []float32)}
	c := newTestClient(t, tr, source, nil, Callbacks{})

	require.NoError(t, c.Connect(context.Background()))
	tr.accept(t)

	c.Disconnect()
	c.Disconnect()

	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, source.closeCount())

	// A fresh connect is allowed after a full teardown.
	require.NoError(t, c.Connect(context.Background()))
	tr.accept(t)
	c.Disconnect()
}

func TestRemoteCloseTriggersTeardown(t *testing.T) {
	tr := newTestRelay(t)
	source := &fakeSource{frames: make(chan []float32)}
	c := newTestClient(t, tr, source, nil, Callbacks{})

	require.NoError(t, c.Connect(context.Background()))
	conn := tr.accept(t)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return c.State() == StateDisconnected && source.closeCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
