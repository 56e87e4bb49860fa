package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/example/emergency-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an already opened handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies a schema script.
func (p *PostgresStore) Migrate(ctx context.Context, script string) error {
	_, err := p.db.ExecContext(ctx, script)
	return err
}

func (p *PostgresStore) Append(ctx context.Context, ev models.StatusEvent) error {
	var dispatch []byte
	if ev.Snapshot.Dispatch != nil {
		b, err := json.Marshal(ev.Snapshot.Dispatch)
		if err != nil {
			return err
		}
		dispatch = b
	}
	var eta sql.NullInt64
	if ev.Snapshot.ETAMinutes != nil {
		eta = sql.NullInt64{Int64: int64(*ev.Snapshot.ETAMinutes), Valid: true}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO dispatch_events(request_id, seq, state, dispatch, eta_minutes, error, created_at) VALUES($1,$2,$3,$4,$5,$6,$7)`,
		ev.RequestID, ev.Seq, ev.Snapshot.State.String(), nullJSON(dispatch), eta, ev.Snapshot.Err, ev.At)
	return err
}

func (p *PostgresStore) List(ctx context.Context, requestID string) ([]models.StatusEvent, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT seq, state, dispatch, eta_minutes, error, created_at FROM dispatch_events WHERE request_id=$1 ORDER BY seq`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StatusEvent
	for rows.Next() {
		var (
			ev       = models.StatusEvent{RequestID: requestID}
			state    string
			dispatch []byte
			eta      sql.NullInt64
		)
		if err := rows.Scan(&ev.Seq, &state, &dispatch, &eta, &ev.Snapshot.Err, &ev.At); err != nil {
			return nil, err
		}
		if ev.Snapshot.State, err = models.ParseStatus(state); err != nil {
			return nil, fmt.Errorf("event %s/%d: %w", requestID, ev.Seq, err)
		}
		if len(dispatch) > 0 {
			var d models.DispatchInfo
			if err := json.Unmarshal(dispatch, &d); err != nil {
				return nil, err
			}
			ev.Snapshot.Dispatch = &d
		}
		if eta.Valid {
			m := int(eta.Int64)
			ev.Snapshot.ETAMinutes = &m
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
