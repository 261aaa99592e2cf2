package repo

import (
	"context"
	"database/sql"

	"formdeck/internal/domain"
)

type eventRow struct {
	ID         int64          `db:"id"`
	TS         string         `db:"ts"`
	Type       string         `db:"type"`
	EntityKind string         `db:"entity_kind"`
	EntityID   sql.NullString `db:"entity_id"`
	ActorID    string         `db:"actor_id"`
	Payload    sql.NullString `db:"payload_json"`
}

func (r eventRow) toDomain() domain.Event {
	return domain.Event{
		ID:         r.ID,
		TS:         r.TS,
		Type:       r.Type,
		EntityKind: r.EntityKind,
		EntityID:   r.EntityID.String,
		ActorID:    r.ActorID,
		Payload:    r.Payload.String,
	}
}

const eventColumns = `id, ts, type, entity_kind, entity_id, actor_id, payload_json`

// EventsAfter returns up to limit events with id > afterID in id order.
func (r Repo) EventsAfter(ctx context.Context, limit int, afterID int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []eventRow
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(`SELECT `+eventColumns+` FROM events WHERE id > ? ORDER BY id LIMIT ?`), afterID, limit); err != nil {
		return nil, err
	}
	return toEvents(rows), nil
}

// ListEvents returns the most recent events, optionally for one entity.
func (r Repo) ListEvents(ctx context.Context, entityID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if entityID != "" {
		query += ` WHERE entity_id=?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	var rows []eventRow
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	return toEvents(rows), nil
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.GetContext(ctx, &id, `SELECT COALESCE(MAX(id), 0) FROM events`)
	return id, err
}

func toEvents(rows []eventRow) []domain.Event {
	res := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res
}
