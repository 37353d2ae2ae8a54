package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/core"
	"github.com/interviewly/meetkit/internal/domain"
)

// handleChat persists the message; the chat fanout to other members rides
// the change feed, so senders and REST writers take the same path.
func (ctl *SignalWSController) handleChat(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type chatPayload struct {
		Type string `json:"type"`
		Body string `json:"body"`
	}
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Body == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	meetingID, sess, ok := ctl.Orch.Registry.MeetingOf(sid)
	if !ok {
		ctl.sendError(conn, "not in a meeting")
		return
	}
	meta := sess.Meta()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sender := &domain.User{ID: meta.UserID, DisplayName: meta.DisplayName}
	if _, err := ctl.Store.AppendChat(ctx, meetingID, sender, p.Body); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("append chat failed")
		ctl.sendError(conn, "chat failed")
	}
}

// handleSpeaking relays a voice-activity signal to the rest of the meeting.
// Ephemeral: it never touches the store.
func (ctl *SignalWSController) handleSpeaking(sid core.SessionID, data []byte) {
	type speakingPayload struct {
		Type     string `json:"type"`
		Speaking bool   `json:"speaking"`
	}
	var p speakingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	_, sess, ok := ctl.Orch.Registry.MeetingOf(sid)
	if !ok {
		return
	}
	meta := sess.Meta()
	ctl.BroadcastFrom(sid, struct {
		Type     string        `json:"type"`
		User     domain.UserID `json:"user"`
		Speaking bool          `json:"speaking"`
	}{Type: "speaking", User: meta.UserID, Speaking: p.Speaking})
}
