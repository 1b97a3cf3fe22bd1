package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TranscriptType distinguishes in-progress from committed speech-to-text.
type TranscriptType string

const (
	TranscriptPartial TranscriptType = "partial"
	TranscriptFinal   TranscriptType = "final"
)

const messageTypeTranscript = "transcript"

// Message is the payload of a "message" event. Only transcript messages are
// decoded; everything else is kept in Raw.
type Message struct {
	Type           string          `json:"type"`
	Role           string          `json:"role,omitempty"`
	TranscriptType TranscriptType  `json:"transcriptType,omitempty"`
	Transcript     string          `json:"transcript,omitempty"`
	Raw            json.RawMessage `json:"-"`
}

// IsTranscript reports whether m carries speech-to-text.
func (m *Message) IsTranscript() bool {
	return m != nil && m.Type == messageTypeTranscript
}

// ServiceError is reported by the voice service in an "error" frame.
type ServiceError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e *ServiceError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("voice service: %s (code: %s)", e.Message, e.Code)
	}
	return "voice service: " + e.Message
}

type serverFrame struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
	Error   *ServiceError   `json:"error,omitempty"`
}

// ClientControl is the only frame the client sends.
type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

const controlEndCall = "end-call"

var errEmptyFrameType = errors.New("voice frame missing type")

// DecodeServerFrame turns one JSON text frame into an Event.
func DecodeServerFrame(data []byte) (Event, error) {
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Event{}, fmt.Errorf("decode voice frame: %w", err)
	}
	typ := strings.TrimSpace(frame.Type)
	if typ == "" {
		return Event{}, errEmptyFrameType
	}

	switch EventName(typ) {
	case EventCallStart, EventCallEnd, EventSpeechStart, EventSpeechEnd:
		return Event{Name: EventName(typ)}, nil
	case EventMessage:
		if len(frame.Message) == 0 {
			return Event{}, fmt.Errorf("decode voice frame: message payload missing")
		}
		var msg Message
		if err := json.Unmarshal(frame.Message, &msg); err != nil {
			return Event{}, fmt.Errorf("decode voice message: %w", err)
		}
		msg.Raw = append(json.RawMessage(nil), frame.Message...)
		return Event{Name: EventMessage, Message: &msg}, nil
	case EventError:
		svcErr := frame.Error
		if svcErr == nil {
			svcErr = &ServiceError{Message: "unknown error"}
		}
		return Event{Name: EventError, Err: svcErr}, nil
	default:
		return Event{Name: EventName(typ)}, nil
	}
}
