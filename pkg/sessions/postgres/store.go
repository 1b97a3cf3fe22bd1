// Package postgres implements sessions.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/echodoc-ai/echodoc/pkg/sessions"
)

const uniqueViolation = "23505"

const columns = `id, session_id, notes, selected_doctor, report, created_on, created_by`

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Open connects a pool to databaseURL and verifies it with a ping.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool), nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// DB exposes the pool as a database/sql handle for schema migrations.
// Closing the returned handle does not close the pool.
func (s *Store) DB() *sql.DB {
	return stdlib.OpenDBFromPool(s.pool)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Create(ctx context.Context, in sessions.NewSession) (sessions.Record, error) {
	rec, err := sessions.Prepare(in, s.now())
	if err != nil {
		return sessions.Record{}, err
	}
	doctor, err := json.Marshal(rec.SelectedDoctor)
	if err != nil {
		return sessions.Record{}, fmt.Errorf("encode selected doctor: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO session_chat (session_id, notes, selected_doctor, created_on, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+columns,
		rec.SessionID, rec.Notes, doctor, rec.CreatedOn, rec.CreatedBy,
	)
	out, err := scanRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sessions.Record{}, sessions.ErrConflict
		}
		return sessions.Record{}, fmt.Errorf("insert session: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (sessions.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+columns+` FROM session_chat WHERE session_id = $1`, sessionID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sessions.Record{}, sessions.ErrNotFound
		}
		return sessions.Record{}, fmt.Errorf("select session: %w", err)
	}
	return rec, nil
}

func (s *Store) ListByOwner(ctx context.Context, owner string) ([]sessions.Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+columns+` FROM session_chat WHERE created_by = $1 ORDER BY id DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]sessions.Record, 0, 16)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (s *Store) SetReport(ctx context.Context, sessionID string, report json.RawMessage) (sessions.Record, error) {
	if err := sessions.ValidateReport(report); err != nil {
		return sessions.Record{}, err
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE session_chat SET report = $2 WHERE session_id = $1 RETURNING `+columns,
		sessionID, []byte(report),
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sessions.Record{}, sessions.ErrNotFound
		}
		return sessions.Record{}, fmt.Errorf("update report: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (sessions.Record, error) {
	var (
		rec    sessions.Record
		doctor []byte
		report []byte
	)
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.Notes, &doctor, &report, &rec.CreatedOn, &rec.CreatedBy); err != nil {
		return sessions.Record{}, err
	}
	if len(doctor) > 0 {
		if err := json.Unmarshal(doctor, &rec.SelectedDoctor); err != nil {
			return sessions.Record{}, fmt.Errorf("decode selected doctor: %w", err)
		}
	}
	if len(report) > 0 {
		rec.Report = json.RawMessage(report)
	}
	return rec, nil
}
