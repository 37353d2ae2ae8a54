package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/interviewly/meetkit/internal/domain"
)

// RemoteStore implements MeetingStore against the meeting server's REST API,
// for clients that run outside the server process.
type RemoteStore struct {
	baseURL string
	client  *http.Client
}

func NewRemoteStore(baseURL string) *RemoteStore {
	return &RemoteStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *RemoteStore) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("meeting api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrMeetingNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("meeting api: unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *RemoteStore) GetMeeting(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	var m domain.Meeting
	if err := s.getJSON(ctx, "/api/meetings/"+string(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RemoteStore) ListParticipants(ctx context.Context, id domain.MeetingID) ([]domain.Participant, error) {
	var out struct {
		Participants []domain.Participant `json:"participants"`
	}
	if err := s.getJSON(ctx, "/api/meetings/"+string(id)+"/participants", &out); err != nil {
		return nil, err
	}
	return out.Participants, nil
}

func (s *RemoteStore) ListChat(ctx context.Context, id domain.MeetingID, limit int) ([]domain.ChatMessage, error) {
	var out struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := s.getJSON(ctx, "/api/meetings/"+string(id)+"/chat", &out); err != nil {
		return nil, err
	}
	if limit > 0 && len(out.Messages) > limit {
		out.Messages = out.Messages[len(out.Messages)-limit:]
	}
	return out.Messages, nil
}

func (s *RemoteStore) EndMeeting(ctx context.Context, id domain.MeetingID, at time.Time) error {
	// The server stamps its own clock; at is accepted for interface parity.
	m, err := s.GetMeeting(ctx, id)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]string{"host_id": string(m.HostID)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/meetings/"+string(id)+"/end", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("meeting api: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil
	case http.StatusGone:
		return ErrMeetingEnded
	case http.StatusForbidden:
		return ErrNotHost
	case http.StatusNotFound:
		return ErrMeetingNotFound
	default:
		return fmt.Errorf("meeting api: unexpected status %d", resp.StatusCode)
	}
}

// WireFeed turns room-signal events back into Changes, giving remote clients
// the same ChangeSource the server has in process. Wire it to the signaler's
// OnEvent callback.
type WireFeed struct {
	feed   *Feed
	logger zerolog.Logger
}

func NewWireFeed(logger zerolog.Logger) *WireFeed {
	return &WireFeed{
		feed:   NewFeed(),
		logger: logger.With().Str("module", "meeting.wirefeed").Logger(),
	}
}

func (w *WireFeed) Subscribe(id domain.MeetingID) (<-chan Change, func()) {
	return w.feed.Subscribe(id)
}

// Push translates one signal frame. Unknown types are ignored so the wire
// protocol can grow without breaking old clients.
func (w *WireFeed) Push(meetingID domain.MeetingID, typ string, raw []byte) {
	switch typ {
	case "participant_joined", "participant_left":
		var frame struct {
			Participant domain.Participant `json:"participant"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			w.logger.Warn().Err(err).Str("type", typ).Msg("bad participant frame")
			return
		}
		op := OpInsert
		if typ == "participant_left" {
			op = OpUpdate
			if frame.Participant.LeftAt == nil {
				now := time.Now()
				frame.Participant.LeftAt = &now
			}
		}
		w.feed.Publish(Change{Table: TableParticipants, Op: op, MeetingID: meetingID, Participant: &frame.Participant})
	case "chat":
		var frame struct {
			Message domain.ChatMessage `json:"message"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			w.logger.Warn().Err(err).Msg("bad chat frame")
			return
		}
		w.feed.Publish(Change{Table: TableChat, Op: OpInsert, MeetingID: meetingID, Chat: &frame.Message})
	case "meeting_ended":
		now := time.Now()
		w.feed.Publish(Change{
			Table:     TableMeetings,
			Op:        OpUpdate,
			MeetingID: meetingID,
			Meeting:   &domain.Meeting{ID: meetingID, EndedAt: &now},
		})
	}
}
