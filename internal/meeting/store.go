package meeting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/interviewly/meetkit/internal/domain"
)

var (
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrMeetingEnded    = errors.New("meeting already ended")
)

const schema = `
CREATE TABLE IF NOT EXISTS meetings (
	id         TEXT PRIMARY KEY,
	host_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP
);
CREATE TABLE IF NOT EXISTS participants (
	id           TEXT PRIMARY KEY,
	meeting_id   TEXT NOT NULL REFERENCES meetings(id),
	user_id      TEXT NOT NULL,
	display_name TEXT NOT NULL,
	role         TEXT NOT NULL,
	joined_at    TIMESTAMP NOT NULL,
	left_at      TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_participants_meeting ON participants(meeting_id);
CREATE TABLE IF NOT EXISTS chat_messages (
	id          TEXT PRIMARY KEY,
	meeting_id  TEXT NOT NULL REFERENCES meetings(id),
	sender_id   TEXT NOT NULL,
	sender_name TEXT NOT NULL,
	body        TEXT NOT NULL,
	sent_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_meeting ON chat_messages(meeting_id);
`

// Store persists meeting state in sqlite and publishes every mutation on the
// change feed so connected clients converge without polling.
type Store struct {
	db     *sql.DB
	feed   *Feed
	logger zerolog.Logger
}

func NewStore(path string, feed *Feed, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{
		db:     db,
		feed:   feed,
		logger: logger.With().Str("module", "meeting.store").Logger(),
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateMeeting(ctx context.Context, host domain.UserID, title string) (*domain.Meeting, error) {
	m := &domain.Meeting{
		ID:        domain.MeetingID(uuid.NewString()),
		HostID:    host,
		Title:     title,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meetings (id, host_id, title, started_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.HostID, m.Title, m.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("insert meeting: %w", err)
	}
	s.feed.Publish(Change{Table: TableMeetings, Op: OpInsert, MeetingID: m.ID, Meeting: m})
	s.logger.Info().Str("meeting", string(m.ID)).Str("host", string(host)).Msg("meeting created")
	return m, nil
}

func (s *Store) GetMeeting(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, host_id, title, started_at, ended_at FROM meetings WHERE id = ?`, id)
	var m domain.Meeting
	var ended sql.NullTime
	if err := row.Scan(&m.ID, &m.HostID, &m.Title, &m.StartedAt, &ended); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, err
	}
	if ended.Valid {
		m.EndedAt = &ended.Time
	}
	return &m, nil
}

// EndMeeting records the end time. The resulting change event is how every
// non-host client learns it must tear down its own relay/room sessions.
func (s *Store) EndMeeting(ctx context.Context, id domain.MeetingID, at time.Time) error {
	m, err := s.GetMeeting(ctx, id)
	if err != nil {
		return err
	}
	if m.Ended() {
		return ErrMeetingEnded
	}

	at = at.UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE meetings SET ended_at = ? WHERE id = ?`, at, id); err != nil {
		return fmt.Errorf("end meeting: %w", err)
	}
	m.EndedAt = &at
	s.feed.Publish(Change{Table: TableMeetings, Op: OpUpdate, MeetingID: id, Meeting: m})
	s.logger.Info().Str("meeting", string(id)).Msg("meeting ended")
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, meetingID domain.MeetingID, user *domain.User, role domain.ParticipantRole) (*domain.Participant, error) {
	m, err := s.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if m.Ended() {
		return nil, ErrMeetingEnded
	}

	p := &domain.Participant{
		ID:          domain.ParticipantID(uuid.NewString()),
		MeetingID:   meetingID,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Role:        role,
		JoinedAt:    time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO participants (id, meeting_id, user_id, display_name, role, joined_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.MeetingID, p.UserID, p.DisplayName, p.Role, p.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("insert participant: %w", err)
	}
	s.feed.Publish(Change{Table: TableParticipants, Op: OpInsert, MeetingID: meetingID, Participant: p})
	return p, nil
}

func (s *Store) MarkParticipantLeft(ctx context.Context, id domain.ParticipantID, at time.Time) error {
	at = at.UTC()
	row := s.db.QueryRowContext(ctx,
		`SELECT id, meeting_id, user_id, display_name, role, joined_at FROM participants WHERE id = ?`, id)
	var p domain.Participant
	if err := row.Scan(&p.ID, &p.MeetingID, &p.UserID, &p.DisplayName, &p.Role, &p.JoinedAt); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE participants SET left_at = ? WHERE id = ?`, at, id); err != nil {
		return fmt.Errorf("mark participant left: %w", err)
	}
	p.LeftAt = &at
	s.feed.Publish(Change{Table: TableParticipants, Op: OpUpdate, MeetingID: p.MeetingID, Participant: &p})
	return nil
}

// ListParticipants returns the active participants in join order. Join order
// matters: it is the active-speaker fallback order.
func (s *Store) ListParticipants(ctx context.Context, meetingID domain.MeetingID) ([]domain.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_id, user_id, display_name, role, joined_at FROM participants
		 WHERE meeting_id = ? AND left_at IS NULL ORDER BY joined_at, id`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.MeetingID, &p.UserID, &p.DisplayName, &p.Role, &p.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AppendChat(ctx context.Context, meetingID domain.MeetingID, sender *domain.User, body string) (*domain.ChatMessage, error) {
	msg := &domain.ChatMessage{
		ID:         domain.ChatMessageID(uuid.NewString()),
		MeetingID:  meetingID,
		SenderID:   sender.ID,
		SenderName: sender.DisplayName,
		Body:       body,
		SentAt:     time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, meeting_id, sender_id, sender_name, body, sent_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.MeetingID, msg.SenderID, msg.SenderName, msg.Body, msg.SentAt)
	if err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}
	s.feed.Publish(Change{Table: TableChat, Op: OpInsert, MeetingID: meetingID, Chat: msg})
	return msg, nil
}

func (s *Store) ListChat(ctx context.Context, meetingID domain.MeetingID, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_id, sender_id, sender_name, body, sent_at FROM chat_messages
		 WHERE meeting_id = ? ORDER BY sent_at, id LIMIT ?`, meetingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.MeetingID, &m.SenderID, &m.SenderName, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
