package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	FormCreated       = "form.created"
	FormUpdated       = "form.updated"
	FormPublished     = "form.published"
	FormUnpublished   = "form.unpublished"
	FormArchived      = "form.archived"
	FormRestored      = "form.restored"
	FormDeleted       = "form.deleted"
	SubmissionCreated = "submission.created"
	SubmissionDeleted = "submission.deleted"
	APIKeyCreated     = "api_key.created"
	APIKeyRevoked     = "api_key.revoked"
)

// DefaultActor is recorded when the context carries no actor.
const DefaultActor = "system"

type actorKey struct{}

// WithActor tags ctx with the actor responsible for subsequent writes.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return DefaultActor
}

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits or rolls back with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sqlx.Tx, evtType, entityKind, entityID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`),
		ts, evtType, entityKind, nullable(entityID), ActorFromContext(ctx), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
