// Package sessions defines the consultation session record and the store
// contract the API layer persists it through.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/echodoc-ai/echodoc/pkg/doctors"
)

// All is the sessionId query value that selects every record owned by the caller.
const All = "all"

// CreatedOnLayout is the layout of Record.CreatedOn.
const CreatedOnLayout = time.RFC3339

var (
	ErrNotFound  = errors.New("session not found")
	ErrConflict  = errors.New("session id already exists")
	ErrNoOwner   = errors.New("session owner is required")
	ErrNoDoctor  = errors.New("selected doctor is required")
	ErrBadReport = errors.New("report must be a JSON object")
)

// Record is the persisted metadata of one voice consultation.
type Record struct {
	ID             int64           `json:"id"`
	SessionID      string          `json:"sessionId"`
	Notes          string          `json:"notes"`
	SelectedDoctor doctors.Agent   `json:"selectedDoctor"`
	Report         json.RawMessage `json:"report"`
	CreatedOn      string          `json:"createdOn"`
	CreatedBy      string          `json:"createdBy"`
}

// CreatedAt parses CreatedOn. The zero time is returned when it is malformed.
func (r Record) CreatedAt() time.Time {
	t, err := time.Parse(CreatedOnLayout, r.CreatedOn)
	if err != nil {
		return time.Time{}
	}
	return t
}

// HasReport reports whether server-side enrichment has attached a report.
func (r Record) HasReport() bool {
	raw := strings.TrimSpace(string(r.Report))
	return raw != "" && raw != "null"
}

// Utterance is one committed line of a consultation transcript.
type Utterance struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// NewSession is the input of Store.Create.
type NewSession struct {
	Notes          string
	SelectedDoctor doctors.Agent
	CreatedBy      string
}

// Store persists session records. Records are created once; only the report
// column may change afterwards.
type Store interface {
	Create(ctx context.Context, in NewSession) (Record, error)
	Get(ctx context.Context, sessionID string) (Record, error)
	ListByOwner(ctx context.Context, owner string) ([]Record, error)
	SetReport(ctx context.Context, sessionID string, report json.RawMessage) (Record, error)
}

// Prepare validates in and stamps a fresh session id and creation time.
// ID is left for the store to assign.
func Prepare(in NewSession, now time.Time) (Record, error) {
	owner := strings.TrimSpace(in.CreatedBy)
	if owner == "" {
		return Record{}, ErrNoOwner
	}
	if strings.TrimSpace(in.SelectedDoctor.Specialist) == "" {
		return Record{}, ErrNoDoctor
	}
	return Record{
		SessionID:      uuid.NewString(),
		Notes:          in.Notes,
		SelectedDoctor: in.SelectedDoctor,
		CreatedOn:      now.UTC().Format(CreatedOnLayout),
		CreatedBy:      owner,
	}, nil
}

// ValidateReport checks that report is a JSON object.
func ValidateReport(report json.RawMessage) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(report, &obj); err != nil || obj == nil {
		return ErrBadReport
	}
	return nil
}
