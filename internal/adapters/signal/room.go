package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/core"
	"github.com/interviewly/meetkit/internal/domain"
)

func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type  string `json:"type"`
		Room  string `json:"room"`
		Token string `json:"token"`
		AppID string `json:"app_id"`
		User  string `json:"user"`
		Name  string `json:"name,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	if !ctl.limiter.Allow(domain.UserID(p.User)) {
		log.Warn().Str("module", "signal").Str("user", p.User).Msg("join rate limited")
		ctl.sendError(conn, "too_many_join_attempts")
		return
	}

	grant, err := ctl.Tokens.Verify(p.Token, p.Room)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", p.Room).Msg("join token rejected")
		ctl.sendError(conn, "invalid_token")
		return
	}
	if grant.UserID != p.User {
		ctl.sendError(conn, "token_user_mismatch")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	user := &domain.User{ID: domain.UserID(p.User)}
	if err := user.SetDisplayName(p.Name); err != nil {
		ctl.sendError(conn, "invalid_name")
		return
	}

	meetingID := domain.MeetingID(p.Room)
	if _, err := ctl.Orch.Join(ctx, sid, meetingID, user); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("meeting", p.Room).Msg("join failed")
		ctl.sendError(conn, err.Error())
		return
	}

	room, ok := ctl.Orch.Rooms.Get(meetingID)
	if !ok {
		ctl.sendError(conn, "room unavailable")
		return
	}
	ctl.ensureWatcher(meetingID)

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("meeting", p.Room).Msg("join")
	resp := struct {
		Type    string                `json:"type"`
		Meeting domain.MeetingID      `json:"meeting"`
		Title   string                `json:"title"`
		Members []core.ParticipantDTO `json:"members"`
		Count   int                   `json:"count"`
	}{
		Type:    "joined",
		Meeting: meetingID,
		Title:   room.Meeting().Title,
		Members: room.MembersSnapshot(),
		Count:   room.MemberCount(),
	}
	ctl.sendJSON(conn, resp)
}

// handleLeave removes the session from its meeting without dropping the
// socket; the participant_left fanout rides the change feed.
func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.KickBySID(sid)
	ctl.sendJSON(conn, map[string]any{
		"type": "left",
	})
}

func (ctl *SignalWSController) handleEndMeeting(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctl.Orch.EndMeeting(ctx, sid); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("end meeting rejected")
		ctl.sendError(conn, err.Error())
	}
}
