package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"formdeck/internal/domain"
	"formdeck/internal/engine/auth"
	"formdeck/internal/events"
	"formdeck/internal/repo"
)

// CreateAPIKey stores a new key and returns it with the plaintext value, which is
// not recoverable afterwards.
func (e Engine) CreateAPIKey(ctx context.Context, name string) (domain.APIKey, string, error) {
	plain, err := auth.GenerateAPIKey()
	if err != nil {
		return domain.APIKey{}, "", err
	}
	key := domain.APIKey{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: domain.FormatTime(e.now()),
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAPIKeyTx(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.eventWriter().Append(ctx, tx, events.APIKeyCreated, "api_key", key.ID, events.EventPayload{"name": key.Name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

func (e Engine) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx)
}

// RevokeAPIKey deletes a key; requests carrying it are rejected from then on.
func (e Engine) RevokeAPIKey(ctx context.Context, id string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteAPIKeyTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.eventWriter().Append(ctx, tx, events.APIKeyRevoked, "api_key", id, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// Auth returns the credential service for the loaded config.
func (e Engine) Auth() auth.Service {
	svc := auth.Service{Repo: e.Repo, Now: e.now}
	if e.Config != nil {
		svc.Config = e.Config.Auth
	}
	return svc
}
