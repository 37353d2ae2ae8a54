package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/interviewly/meetkit/internal/core"
	"github.com/interviewly/meetkit/internal/domain"
)

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

// handleMute gates the sender's published track at the forwarding layer and
// tells the rest of the meeting, so tiles can show a mute badge. The track
// itself stays attached; unmuting never renegotiates.
func (ctl *SignalWSController) handleMute(sid core.SessionID, conn *WsSignalConn, data []byte) {
	type mutePayload struct {
		Type  string `json:"type"`
		Kind  string `json:"kind"` // "audio" or "video"
		Muted bool   `json:"muted"`
	}
	var p mutePayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload")
		return
	}

	kind := webrtc.RTPCodecTypeAudio
	if p.Kind == "video" {
		kind = webrtc.RTPCodecTypeVideo
	}

	_, sess, ok := ctl.Orch.Registry.MeetingOf(sid)
	if !ok {
		ctl.sendError(conn, "not in a meeting")
		return
	}
	if ctl.Orch.Relays != nil {
		ctl.Orch.Relays.SetPublisherMuted(sid, kind, p.Muted)
	}

	meta := sess.Meta()
	ctl.BroadcastFrom(sid, struct {
		Type  string        `json:"type"`
		User  domain.UserID `json:"user"`
		Kind  string        `json:"kind"`
		Muted bool          `json:"muted"`
	}{Type: "participant_muted", User: meta.UserID, Kind: kind.String(), Muted: p.Muted})
}
