// Package memory is an in-process sessions.Store used when no database is
// configured and in tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/echodoc-ai/echodoc/pkg/sessions"
)

type Store struct {
	mu      sync.Mutex
	seq     int64
	records map[string]*sessions.Record

	now func() time.Time
}

func New() *Store {
	return &Store{
		records: make(map[string]*sessions.Record),
		now:     time.Now,
	}
}

func (s *Store) Create(ctx context.Context, in sessions.NewSession) (sessions.Record, error) {
	if err := ctx.Err(); err != nil {
		return sessions.Record{}, err
	}
	rec, err := sessions.Prepare(in, s.now())
	if err != nil {
		return sessions.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.SessionID]; exists {
		return sessions.Record{}, sessions.ErrConflict
	}
	s.seq++
	rec.ID = s.seq
	stored := rec
	s.records[rec.SessionID] = &stored
	return clone(stored), nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (sessions.Record, error) {
	if err := ctx.Err(); err != nil {
		return sessions.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return sessions.Record{}, sessions.ErrNotFound
	}
	return clone(*rec), nil
}

func (s *Store) ListByOwner(ctx context.Context, owner string) ([]sessions.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]sessions.Record, 0, len(s.records))
	for _, rec := range s.records {
		if rec.CreatedBy == owner {
			out = append(out, clone(*rec))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) SetReport(ctx context.Context, sessionID string, report json.RawMessage) (sessions.Record, error) {
	if err := ctx.Err(); err != nil {
		return sessions.Record{}, err
	}
	if err := sessions.ValidateReport(report); err != nil {
		return sessions.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return sessions.Record{}, sessions.ErrNotFound
	}
	rec.Report = append(json.RawMessage(nil), report...)
	return clone(*rec), nil
}

func clone(r sessions.Record) sessions.Record {
	if r.Report != nil {
		r.Report = append(json.RawMessage(nil), r.Report...)
	}
	return r
}
