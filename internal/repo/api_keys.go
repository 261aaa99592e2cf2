package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"formdeck/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

type apiKeyRow struct {
	ID        string         `db:"id"`
	Name      sql.NullString `db:"name"`
	KeyHash   string         `db:"key_hash"`
	CreatedAt string         `db:"created_at"`
}

func (r apiKeyRow) toDomain() domain.APIKey {
	return domain.APIKey{ID: r.ID, Name: r.Name.String, KeyHash: r.KeyHash, CreatedAt: r.CreatedAt}
}

// InsertAPIKeyTx stores a hashed API key. KeyHash must already contain the hashed value.
func (r Repo) InsertAPIKeyTx(ctx context.Context, tx *sqlx.Tx, key domain.APIKey) error {
	if key.ID == "" {
		return errors.New("id required")
	}
	if key.KeyHash == "" {
		return errors.New("key_hash required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = domain.FormatTime(time.Now())
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO api_keys(id, name, key_hash, created_at) VALUES (?,?,?,?)`),
		key.ID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

// GetAPIKeyByHash returns an API key by its hashed value.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var row apiKeyRow
	err := r.DB.GetContext(ctx, &row, r.DB.Rebind(`SELECT id, name, key_hash, created_at FROM api_keys WHERE key_hash=? LIMIT 1`), hash)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.APIKey{}, ErrNotFound
	}
	if err != nil {
		return domain.APIKey{}, err
	}
	return row.toDomain(), nil
}

func (r Repo) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	var rows []apiKeyRow
	if err := r.DB.SelectContext(ctx, &rows, `SELECT id, name, key_hash, created_at FROM api_keys ORDER BY created_at DESC`); err != nil {
		return nil, err
	}
	keys := make([]domain.APIKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.toDomain())
	}
	return keys, nil
}

// DeleteAPIKeyTx deletes an API key by ID.
func (r Repo) DeleteAPIKeyTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM api_keys WHERE id=?`), id)
	return affectedOrNotFound(res, err)
}
