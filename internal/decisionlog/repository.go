package decisionlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the decision
// log. The log is append-only: no update or delete statement exists in
// this package.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts one entry.
func (r *Repository) Append(ctx context.Context, entry Entry) error {
	contextJSON, err := marshalFields(entry.Context)
	if err != nil {
		return err
	}
	beforeJSON, err := marshalFields(entry.Before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalFields(entry.After)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO decision_log
(id, actor_id, action, resource_type, resource_id, outcome, risk, security_event, context, before_state, after_state, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID,
		string(entry.Outcome), string(entry.Risk), entry.SecurityEvent,
		contextJSON, beforeJSON, afterJSON, entry.At)
	return err
}

const timelineSelect = `SELECT id, actor_id, action, resource_type, resource_id, outcome, risk, security_event, context, before_state, after_state, occurred_at
FROM decision_log
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::uuid IS NULL OR actor_id = $3)
  AND ($4::text IS NULL OR action = $4)
  AND ($5::text IS NULL OR resource_type = $5)
  AND (NOT $6::boolean OR security_event)
ORDER BY occurred_at DESC`

// TimelineWindow returns a page of entries matching the filters.
func (r *Repository) TimelineWindow(ctx context.Context, f Filters, limit, offset int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, timelineSelect+` LIMIT $7 OFFSET $8`,
		nullTime(f.From), nullTime(f.To), nullUUID(f.Actor), nullString(f.Action), nullString(f.ResourceType), f.SecurityOnly,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// TimelineAll returns every entry matching the filters, for export.
func (r *Repository) TimelineAll(ctx context.Context, f Filters) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, timelineSelect,
		nullTime(f.From), nullTime(f.To), nullUUID(f.Actor), nullString(f.Action), nullString(f.ResourceType), f.SecurityOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CountSecurityEvents counts security-event entries in the window,
// used by the operational anomaly scan.
func (r *Repository) CountSecurityEvents(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM decision_log
WHERE security_event AND occurred_at >= $1 AND occurred_at < $2`, from, to).Scan(&count)
	return count, err
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEntries(rows pgxRows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var outcome, risk string
		var contextJSON, beforeJSON, afterJSON []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID,
			&outcome, &risk, &e.SecurityEvent, &contextJSON, &beforeJSON, &afterJSON, &e.At); err != nil {
			return nil, err
		}
		e.Outcome = Outcome(outcome)
		e.Risk = RiskLevel(risk)
		if err := unmarshalFields(contextJSON, &e.Context); err != nil {
			return nil, err
		}
		if err := unmarshalFields(beforeJSON, &e.Before); err != nil {
			return nil, err
		}
		if err := unmarshalFields(afterJSON, &e.After); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func marshalFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(fields)
}

func unmarshalFields(data []byte, target *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
