package state

import "fmt"

// schemaSQL returns the DDL for the workspace state database. embeddingDim
// controls the vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- One row per guideline, holding the latest persisted run manifest.
CREATE TABLE IF NOT EXISTS manifests (
    guideline_id TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    payload JSON NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Per-work-item checkpoints, keyed by the deterministic item id.
CREATE TABLE IF NOT EXISTS checkpoints (
    item_id TEXT PRIMARY KEY,
    guideline_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    status TEXT NOT NULL,
    result TEXT,
    error TEXT,
    attempts INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_stage ON checkpoints(guideline_id, stage, status);

-- Stage output artifacts, one JSON blob per (guideline, stage).
CREATE TABLE IF NOT EXISTS artifacts (
    guideline_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    content JSON NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (guideline_id, stage)
);

-- Structured document sections, for provenance lookups and embedding.
CREATE TABLE IF NOT EXISTS sections (
    id INTEGER PRIMARY KEY,
    guideline_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    heading TEXT,
    content TEXT NOT NULL,
    page INTEGER,
    content_hash TEXT NOT NULL,
    UNIQUE(guideline_id, seq)
);

-- Section embeddings via sqlite-vec.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_sections USING vec0(
    section_id INTEGER PRIMARY KEY,
    embedding float[%d]
);
`, embeddingDim)
}
