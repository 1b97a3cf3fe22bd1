// Package report turns a finished consultation transcript into the JSON
// report stored on the session record.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/echodoc-ai/echodoc/pkg/sessions"
)

var ErrEmptyReport = errors.New("report: model returned no content")

// Generator builds a report for rec from its transcript.
type Generator interface {
	Generate(ctx context.Context, rec sessions.Record, transcript []sessions.Utterance) (json.RawMessage, error)
}

// Report is the shape generators are asked to produce. Extra fields from a
// model are kept because the stored value is the raw JSON.
type Report struct {
	SessionID            string   `json:"sessionId"`
	Agent                string   `json:"agent"`
	User                 string   `json:"user"`
	Timestamp            string   `json:"timestamp"`
	ChiefComplaint       string   `json:"chiefComplaint"`
	Summary              string   `json:"summary"`
	Symptoms             []string `json:"symptoms"`
	Duration             string   `json:"duration"`
	Severity             string   `json:"severity"`
	MedicationsMentioned []string `json:"medicationsMentioned"`
	Recommendations      []string `json:"recommendations"`
}

const systemInstruction = `You are an AI medical voice agent that just finished a voice conversation with a user.
Based on the doctor persona and the conversation transcript, write a structured report with these fields:
sessionId, agent (the specialist name followed by " AI"), user (patient name or "Anonymous"),
timestamp (ISO 8601), chiefComplaint (one sentence), summary (2-3 sentences),
symptoms (list), duration, severity (mild, moderate or severe),
medicationsMentioned (list), recommendations (list).
Answer with a single JSON object and nothing else.`

// BuildPrompt renders the user prompt for rec and transcript.
func BuildPrompt(rec sessions.Record, transcript []sessions.Utterance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session ID: %s\n", rec.SessionID)
	fmt.Fprintf(&b, "Doctor persona: %s\n", rec.SelectedDoctor.Specialist)
	if prompt := strings.TrimSpace(rec.SelectedDoctor.AgentPrompt); prompt != "" {
		fmt.Fprintf(&b, "Persona instructions: %s\n", prompt)
	}
	if notes := strings.TrimSpace(rec.Notes); notes != "" {
		fmt.Fprintf(&b, "Patient notes: %s\n", notes)
	}
	b.WriteString("\nConversation:\n")
	if len(transcript) == 0 {
		b.WriteString("(no speech was transcribed)\n")
	}
	for _, u := range transcript {
		role := strings.TrimSpace(u.Role)
		if role == "" {
			role = "unknown"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(u.Text))
	}
	return b.String()
}

// Normalize extracts a JSON object from raw model output, tolerating a
// surrounding markdown code fence.
func Normalize(raw string) (json.RawMessage, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ErrEmptyReport
	}
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
	}
	out := json.RawMessage(text)
	if err := sessions.ValidateReport(out); err != nil {
		return nil, fmt.Errorf("report: model output is not a JSON object: %w", err)
	}
	return out, nil
}

// TranscriptOnly builds a report without a model. It is used when no model
// key is configured.
type TranscriptOnly struct {
	Now func() time.Time
}

func (g TranscriptOnly) Generate(ctx context.Context, rec sessions.Record, transcript []sessions.Utterance) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	var userLines []string
	for _, u := range transcript {
		if strings.EqualFold(strings.TrimSpace(u.Role), "user") && strings.TrimSpace(u.Text) != "" {
			userLines = append(userLines, strings.TrimSpace(u.Text))
		}
	}
	complaint := strings.TrimSpace(rec.Notes)
	if complaint == "" && len(userLines) > 0 {
		complaint = userLines[0]
	}
	summary := fmt.Sprintf("Consultation with the %s agent: %d transcript lines, %d from the patient.",
		rec.SelectedDoctor.Specialist, len(transcript), len(userLines))

	rep := Report{
		SessionID:            rec.SessionID,
		Agent:                rec.SelectedDoctor.Specialist + " AI",
		User:                 "Anonymous",
		Timestamp:            now().UTC().Format(time.RFC3339),
		ChiefComplaint:       complaint,
		Summary:              summary,
		Symptoms:             []string{},
		MedicationsMentioned: []string{},
		Recommendations:      []string{},
	}
	return json.Marshal(rep)
}
