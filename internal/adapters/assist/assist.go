// Package assist is the text fallback interviewer: when a client runs
// without voice, replies are generated over the chat transcript instead.
package assist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/interviewly/meetkit/internal/domain"
	"github.com/interviewly/meetkit/internal/meeting"
)

// AssistantUserID marks assistant-authored chat rows.
const AssistantUserID domain.UserID = "assistant"

const systemPrompt = "You are a friendly, rigorous mock interviewer. " +
	"Ask one question at a time, follow up on weak answers, and keep replies short."

type ChatStore interface {
	ListChat(ctx context.Context, id domain.MeetingID, limit int) ([]domain.ChatMessage, error)
	AppendChat(ctx context.Context, id domain.MeetingID, sender *domain.User, body string) (*domain.ChatMessage, error)
}

type Assistant struct {
	client *openai.Client
	model  string
	store  ChatStore
	logger zerolog.Logger
}

func NewAssistant(apiKey, model string, store ChatStore, logger zerolog.Logger) *Assistant {
	return newAssistantWithClient(openai.NewClient(apiKey), model, store, logger)
}

func newAssistantWithClient(client *openai.Client, model string, store ChatStore, logger zerolog.Logger) *Assistant {
	return &Assistant{
		client: client,
		model:  model,
		store:  store,
		logger: logger.With().Str("module", "assist").Logger(),
	}
}

// Respond streams one assistant turn over the meeting transcript and appends
// the finished reply to the chat, which fans out over the change feed.
func (a *Assistant) Respond(ctx context.Context, meetingID domain.MeetingID) (*domain.ChatMessage, error) {
	history, err := a.store.ListChat(ctx, meetingID, 0)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.SenderID == AssistantUserID {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Body})
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("start completion stream: %w", err)
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read completion stream: %w", err)
		}
		if len(resp.Choices) > 0 {
			reply.WriteString(resp.Choices[0].Delta.Content)
		}
	}
	if reply.Len() == 0 {
		return nil, errors.New("empty assistant reply")
	}

	sender := &domain.User{ID: AssistantUserID, DisplayName: "Interviewer"}
	msg, err := a.store.AppendChat(ctx, meetingID, sender, reply.String())
	if err != nil {
		return nil, fmt.Errorf("persist assistant reply: %w", err)
	}
	a.logger.Info().Str("meeting", string(meetingID)).Int("chars", reply.Len()).Msg("assistant replied")
	return msg, nil
}

var _ ChatStore = (*meeting.Store)(nil)
