package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/annosuite/annotator/internal/document"
)

const schema = `
CREATE TABLE IF NOT EXISTS annotations (
	file_id    TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (file_id, user_id)
)`

const upsert = `
INSERT INTO annotations (file_id, user_id, data, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (file_id, user_id)
DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres ensures the annotations table exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create annotations table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Save(ctx context.Context, fileID, userID string, snap document.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal annotations: %w", err)
	}
	if _, err := p.pool.Exec(ctx, upsert, fileID, userID, data); err != nil {
		return fmt.Errorf("save annotations: %w", err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, fileID, userID string) (document.Snapshot, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM annotations WHERE file_id = $1 AND user_id = $2`,
		fileID, userID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return document.Snapshot{}, ErrNotFound
		}
		return document.Snapshot{}, fmt.Errorf("load annotations: %w", err)
	}
	return document.DecodeSnapshot(data)
}
