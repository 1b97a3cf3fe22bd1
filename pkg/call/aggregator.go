package call

import (
	"strings"

	"github.com/echodoc-ai/echodoc/pkg/sessions"
	"github.com/echodoc-ai/echodoc/pkg/voice"
)

const (
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// Entry is one final utterance in the conversation log.
type Entry = sessions.Utterance

// Aggregator folds speech and transcript events into an ordered conversation
// log plus a preview of the utterance currently being spoken.
//
// Speaker attribution has two sources. speech-start/speech-end only say that
// the assistant started or stopped talking, so speech-end assumes the user
// speaks next. A transcript message names its role explicitly and always
// overrides that guess.
type Aggregator struct {
	liveRole    string
	livePreview string
	log         []Entry
}

func NewAggregator() *Aggregator {
	return &Aggregator{log: make([]Entry, 0, 32)}
}

// Apply folds ev into the aggregate and reports whether visible state changed.
// Events other than speech and message events are ignored.
func (a *Aggregator) Apply(ev voice.Event) bool {
	switch ev.Name {
	case voice.EventSpeechStart:
		return a.setRole(RoleAssistant)
	case voice.EventSpeechEnd:
		return a.setRole(RoleUser)
	case voice.EventMessage:
		return a.applyMessage(ev.Message)
	default:
		return false
	}
}

func (a *Aggregator) applyMessage(msg *voice.Message) bool {
	if !msg.IsTranscript() {
		return false
	}
	role := strings.TrimSpace(msg.Role)
	switch msg.TranscriptType {
	case voice.TranscriptPartial:
		a.livePreview = msg.Transcript
		a.liveRole = role
		return true
	case voice.TranscriptFinal:
		a.log = append(a.log, Entry{Role: role, Text: msg.Transcript})
		a.livePreview = ""
		a.liveRole = ""
		return true
	default:
		return false
	}
}

func (a *Aggregator) setRole(role string) bool {
	if a.liveRole == role {
		return false
	}
	a.liveRole = role
	return true
}

func (a *Aggregator) LiveRole() string { return a.liveRole }
func (a *Aggregator) LivePreview() string { return a.livePreview }
func (a *Aggregator) Len() int { return len(a.log) }

// Entries returns a copy of the full log in receipt order.
func (a *Aggregator) Entries() []Entry {
	out := make([]Entry, len(a.log))
	copy(out, a.log)
	return out
}

// Recent returns a copy of the last n entries.
func (a *Aggregator) Recent(n int) []Entry {
	if n <= 0 {
		return nil
	}
	start := len(a.log) - n
	if start < 0 {
		start = 0
	}
	out := make([]Entry, len(a.log)-start)
	copy(out, a.log[start:])
	return out
}
