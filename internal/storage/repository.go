package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"npsh-guard/internal/curve"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	upsertCurveSQL = `INSERT INTO pump_curves (pump_type, points, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (pump_type) DO UPDATE
    SET points = EXCLUDED.points,
        updated_at = EXCLUDED.updated_at;`

	selectCurveSQL = `SELECT points FROM pump_curves WHERE pump_type = $1;`

	insertEventSQL = `INSERT INTO safety_events (
        kind, state, margin_m, message, created_at
    ) VALUES ($1, $2, $3, $4, $5)
    RETURNING id;`

	listRecentEventsSQL = `SELECT id, kind, state, margin_m, message, created_at
    FROM safety_events
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteEventsBeforeSQL = `DELETE FROM safety_events WHERE created_at < $1;`
)

// EventStore defines operations for the safety audit trail.
type EventStore interface {
	InsertEvent(ctx context.Context, rec SafetyEventRecord) (int64, error)
	ListRecentEvents(ctx context.Context, limit int) ([]SafetyEventRecord, error)
	DeleteEventsBefore(ctx context.Context, olderThan time.Time) error
}

// Store aggregates access to curves and safety events.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// SaveCurve persists a validated curve keyed by pump type.
func (s *Store) SaveCurve(ctx context.Context, c curve.Curve) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	points, err := json.Marshal(c.Points)
	if err != nil {
		return fmt.Errorf("encode curve points: %w", err)
	}

	if _, execErr := pool.Exec(ctx, upsertCurveSQL, c.PumpType, points); execErr != nil {
		return fmt.Errorf("upsert curve: %w", execErr)
	}
	return nil
}

// LoadCurve reads the stored curve for a pump type. The points go through
// curve validation again so a hand-edited row cannot install a bad curve.
func (s *Store) LoadCurve(ctx context.Context, pumpType string) (curve.Curve, error) {
	pool, err := s.getPool()
	if err != nil {
		return curve.Curve{}, err
	}

	var raw []byte
	if scanErr := pool.QueryRow(ctx, selectCurveSQL, pumpType).Scan(&raw); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return curve.Curve{}, curve.ErrCurveNotFound
		}
		return curve.Curve{}, fmt.Errorf("select curve: %w", scanErr)
	}

	var points []curve.Point
	if err := json.Unmarshal(raw, &points); err != nil {
		return curve.Curve{}, fmt.Errorf("decode curve points: %w", err)
	}

	return curve.New(pumpType, points)
}

// InsertEvent appends one safety event to the audit trail.
func (s *Store) InsertEvent(ctx context.Context, rec SafetyEventRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	at := rec.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var id int64
	row := pool.QueryRow(ctx, insertEventSQL, rec.Kind, rec.State, rec.MarginM, rec.Message, at)
	if scanErr := row.Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert safety event: %w", scanErr)
	}
	return id, nil
}

// ListRecentEvents lists the newest audit entries first.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]SafetyEventRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentEventsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list safety events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]SafetyEventRecord, 0, limit)
	for rows.Next() {
		var rec SafetyEventRecord
		if scanErr := rows.Scan(&rec.ID, &rec.Kind, &rec.State, &rec.MarginM, &rec.Message, &rec.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan safety event: %w", scanErr)
		}
		events = append(events, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// DeleteEventsBefore prunes old audit entries.
func (s *Store) DeleteEventsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteEventsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete safety events: %w", execErr)
	}
	return nil
}

var _ curve.Store = (*Store)(nil)
var _ EventStore = (*Store)(nil)
