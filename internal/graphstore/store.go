// Package graphstore loads extracted entities and accepted links into the
// graph database. All writes are idempotent upserts, so repeating a load is
// always safe.
package graphstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"guidegraph/internal/types"
)

// Store is the narrow graph-loading capability the populate stage drives.
type Store interface {
	UpsertEntity(ctx context.Context, entity types.ExtractedEntity) error
	UpsertLink(ctx context.Context, link types.InferredLink) error
	Close()
}

// Postgres implements Store on a PostgreSQL connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool and verifies it.
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to graph database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping graph database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (db *Postgres) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// InitSchema creates the node and relationship tables if needed.
func (db *Postgres) InitSchema(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS nodes (
			entity_id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			attributes JSONB NOT NULL DEFAULT '{}',
			page INTEGER,
			section_seq INTEGER,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS relationships (
			from_id TEXT NOT NULL REFERENCES nodes(entity_id),
			to_id TEXT NOT NULL REFERENCES nodes(entity_id),
			relation_type TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			evidence TEXT,
			strategies TEXT[],
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (from_id, to_id, relation_type)
		);`)
	if err != nil {
		return fmt.Errorf("failed to initialize graph schema: %w", err)
	}
	return nil
}

// UpsertEntity writes a node keyed by its business identifier.
func (db *Postgres) UpsertEntity(ctx context.Context, entity types.ExtractedEntity) error {
	attrs, err := json.Marshal(entity.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes for %s: %w", entity.EntityID, err)
	}
	_, err = db.pool.Exec(ctx, `
		INSERT INTO nodes (entity_id, entity_type, attributes, page, section_seq, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (entity_id) DO UPDATE SET
			entity_type = $2, attributes = $3, page = $4, section_seq = $5, updated_at = NOW()`,
		entity.EntityID, entity.Type, attrs, entity.SourceSpan.Page, entity.SourceSpan.SectionSeq)
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", entity.EntityID, err)
	}
	return nil
}

// UpsertLink writes a relationship keyed by its endpoint pair and type.
func (db *Postgres) UpsertLink(ctx context.Context, link types.InferredLink) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO relationships (from_id, to_id, relation_type, confidence, evidence, strategies, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (from_id, to_id, relation_type) DO UPDATE SET
			confidence = $4, evidence = $5, strategies = $6, updated_at = NOW()`,
		link.FromID, link.ToID, link.RelationType, link.Confidence, link.Evidence, link.Strategies)
	if err != nil {
		return fmt.Errorf("failed to upsert relationship %s-[%s]->%s: %w",
			link.FromID, link.RelationType, link.ToID, err)
	}
	return nil
}
