// Package signal is the WebSocket signaling adapter for meeting rooms:
// token-checked joins, WebRTC negotiation, chat and speaking fanout, and
// change-feed delivery to connected clients.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/adapters/tokens"
	"github.com/interviewly/meetkit/internal/app/orch"
	"github.com/interviewly/meetkit/internal/core"
	"github.com/interviewly/meetkit/internal/domain"
	"github.com/interviewly/meetkit/internal/meeting"
)

var ErrBackpressure = errors.New("backpressure")

type SignalWSController struct {
	Orch   *orch.Orchestrator
	Tokens *tokens.Issuer
	Store  *meeting.Store
	Feed   *meeting.Feed

	limiter *JoinRateLimiter

	mu       sync.Mutex
	watchers map[domain.MeetingID]func()
}

func NewSignalWSController(o *orch.Orchestrator, iss *tokens.Issuer, store *meeting.Store, feed *meeting.Feed) *SignalWSController {
	ctl := &SignalWSController{
		Orch:     o,
		Tokens:   iss,
		Store:    store,
		Feed:     feed,
		limiter:  NewJoinRateLimiter(10, time.Minute),
		watchers: make(map[domain.MeetingID]func()),
	}
	o.Renegotiate = ctl.Renegotiate
	return ctl
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (ctl *SignalWSController) BroadcastMeeting(id domain.MeetingID, v any) {
	for _, snap := range ctl.Orch.Registry.MembersOfMeeting(id) {
		if sc := snap.Session.Signal(); sc != nil {
			ctl.sendJSON(sc, v)
		}
	}
}

func (ctl *SignalWSController) BroadcastFrom(sid core.SessionID, v any) {
	meetingID, _, ok := ctl.Orch.Registry.MeetingOf(sid)
	if !ok {
		return
	}
	for _, snap := range ctl.Orch.Registry.MembersOfMeeting(meetingID) {
		if snap.SID == sid {
			continue
		}
		if sc := snap.Session.Signal(); sc != nil {
			ctl.sendJSON(sc, v)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	sess := core.NewClientSession(&domain.Participant{}).UpdateSignal(conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}

// watchFeed forwards store changes of one meeting to its live members until
// the meeting ends. Started on the first join, stopped on meeting_ended.
func (ctl *SignalWSController) ensureWatcher(id domain.MeetingID) {
	ctl.mu.Lock()
	if _, ok := ctl.watchers[id]; ok {
		ctl.mu.Unlock()
		return
	}
	changes, cancel := ctl.Feed.Subscribe(id)
	ctl.watchers[id] = cancel
	ctl.mu.Unlock()

	go ctl.watchFeed(id, changes)
}

func (ctl *SignalWSController) stopWatcher(id domain.MeetingID) {
	ctl.mu.Lock()
	cancel, ok := ctl.watchers[id]
	if ok {
		delete(ctl.watchers, id)
	}
	ctl.mu.Unlock()
	if ok {
		cancel()
	}
}

func (ctl *SignalWSController) watchFeed(id domain.MeetingID, changes <-chan meeting.Change) {
	for ch := range changes {
		switch ch.Table {
		case meeting.TableParticipants:
			if ch.Participant == nil {
				continue
			}
			typ := "participant_joined"
			if ch.Participant.LeftAt != nil || ch.Op == meeting.OpDelete {
				typ = "participant_left"
			}
			ctl.BroadcastMeeting(id, struct {
				Type        string             `json:"type"`
				Participant domain.Participant `json:"participant"`
			}{Type: typ, Participant: *ch.Participant})
		case meeting.TableChat:
			if ch.Chat == nil {
				continue
			}
			ctl.BroadcastMeeting(id, struct {
				Type    string             `json:"type"`
				Message domain.ChatMessage `json:"message"`
			}{Type: "chat", Message: *ch.Chat})
		case meeting.TableMeetings:
			if ch.Meeting != nil && ch.Meeting.Ended() {
				ctl.BroadcastMeeting(id, map[string]string{"type": "meeting_ended"})
				ctl.Orch.EvictMeeting(id)
				ctl.stopWatcher(id)
				return
			}
		}
	}
}
