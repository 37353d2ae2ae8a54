// Package relay owns the lifecycle of one realtime voice session: it streams
// captured audio to a relay endpoint and interprets the structured events
// streamed back (transcripts, synthesized audio, speaking-state changes).
package relay

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Wire frame types of the voice relay channel.
const (
	TypeAppendAudio     = "input_audio_buffer.append"
	TypeSpeechStarted   = "input_audio_buffer.speech_started"
	TypeAudioDelta      = "response.audio.delta"
	TypeAudioDone       = "response.audio.done"
	TypeTranscriptDelta = "response.audio_transcript.delta"
	TypeTranscriptDone  = "response.audio_transcript.done"
	TypeResponseCreated = "response.created"
	TypeError           = "error"
)

var ErrUnknownEvent = errors.New("unknown relay event")

// Event is one inbound relay frame, decoded to its concrete kind.
// A type switch over Event covers every frame the client consumes; an
// unrecognized frame never reaches the handler.
type Event interface {
	eventType() string
}

// AudioDelta carries one decoded chunk of synthesized speech.
type AudioDelta struct{ Audio []byte }

// TranscriptDelta carries a partial transcript fragment.
type TranscriptDelta struct{ Text string }

// TranscriptDone carries the full transcript of a finished response.
type TranscriptDone struct{ Transcript string }

// SpeechStarted signals that the user began talking; the assistant yields.
type SpeechStarted struct{}

// AudioDone signals the end of the assistant's audio for one response.
type AudioDone struct{}

// ResponseCreated signals that the assistant started producing a response.
type ResponseCreated struct{}

// ErrorEvent surfaces a relay-side error without closing the connection.
type ErrorEvent struct{ Message string }

func (AudioDelta) eventType() string      { return TypeAudioDelta }
func (TranscriptDelta) eventType() string { return TypeTranscriptDelta }
func (TranscriptDone) eventType() string  { return TypeTranscriptDone }
func (SpeechStarted) eventType() string   { return TypeSpeechStarted }
func (AudioDone) eventType() string       { return TypeAudioDone }
func (ResponseCreated) eventType() string { return TypeResponseCreated }
func (ErrorEvent) eventType() string      { return TypeError }

// ParseEvent decodes one inbound JSON frame into its typed event.
func ParseEvent(data []byte) (Event, error) {
	var env struct {
		Type       string `json:"type"`
		Delta      string `json:"delta"`
		Transcript string `json:"transcript"`
		Message    string `json:"message"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse relay frame: %w", err)
	}

	switch env.Type {
	case TypeAudioDelta:
		audio, err := base64.StdEncoding.DecodeString(env.Delta)
		if err != nil {
			return nil, fmt.Errorf("decode audio delta: %w", err)
		}
		return AudioDelta{Audio: audio}, nil
	case TypeTranscriptDelta:
		return TranscriptDelta{Text: env.Delta}, nil
	case TypeTranscriptDone:
		return TranscriptDone{Transcript: env.Transcript}, nil
	case TypeSpeechStarted:
		return SpeechStarted{}, nil
	case TypeAudioDone:
		return AudioDone{}, nil
	case TypeResponseCreated:
		return ResponseCreated{}, nil
	case TypeError:
		return ErrorEvent{Message: env.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// AppendAudioFrame builds the outbound frame carrying one base64 PCM16 chunk.
func AppendAudioFrame(audioB64 string) ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}{Type: TypeAppendAudio, Audio: audioB64})
}
