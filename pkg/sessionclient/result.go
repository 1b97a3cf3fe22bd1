package sessionclient

import (
	"context"

	"github.com/echodoc-ai/echodoc/pkg/core"
	"github.com/echodoc-ai/echodoc/pkg/sessions"
)

// Status classifies the outcome of a session lookup.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// Result is a session lookup that keeps "no such session" apart from
// "could not ask".
type Result struct {
	Status Status
	Record sessions.Record
	Err    error
}

// Fetch is Get folded into a Result.
func (c *Client) Fetch(ctx context.Context, sessionID string) Result {
	rec, err := c.Get(ctx, sessionID)
	switch {
	case err == nil:
		return Result{Status: StatusOK, Record: rec}
	case core.IsNotFound(err):
		return Result{Status: StatusNotFound, Err: err}
	default:
		return Result{Status: StatusFailed, Err: err}
	}
}
