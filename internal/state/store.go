// Package state provides the durable workspace store for run manifests,
// work-item checkpoints, stage artifacts, and section embeddings. Everything
// lives in a single sqlite database so a resumed process sees exactly what a
// crashed one left behind.
package state

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"guidegraph/internal/batch"
	"guidegraph/internal/pipeline"
	"guidegraph/internal/types"
)

func init() {
	sqlite_vec.Auto()
}

// ErrNoArtifact is returned when a stage artifact has not been written.
var ErrNoArtifact = errors.New("artifact not found")

// Store wraps the sqlite state database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the state database at path and ensures the schema
// exists. embeddingDim fixes the vec0 table dimension and must match the
// embedding provider.
func Open(path string, embeddingDim int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Manifest operations ---

// LoadManifest returns the last persisted manifest for a guideline, or nil
// if no run has been recorded.
func (s *Store) LoadManifest(ctx context.Context, guidelineID string) (*pipeline.RunManifest, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM manifests WHERE guideline_id = ?", guidelineID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading manifest for %s: %w", guidelineID, err)
	}
	var m pipeline.RunManifest
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest for %s: %w", guidelineID, err)
	}
	return &m, nil
}

// SaveManifest upserts the manifest for its guideline. The write is a single
// statement, so a crash leaves either the old or the new manifest, never a
// torn one.
func (s *Store) SaveManifest(ctx context.Context, m *pipeline.RunManifest) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO manifests (guideline_id, version, payload, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (guideline_id) DO UPDATE SET
			version = excluded.version,
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP`,
		m.GuidelineID, m.Version, payload)
	if err != nil {
		return fmt.Errorf("saving manifest for %s: %w", m.GuidelineID, err)
	}
	return nil
}

// --- Artifact operations ---

// SaveArtifact stores a stage's JSON output artifact.
func (s *Store) SaveArtifact(ctx context.Context, guidelineID, stage string, content any) error {
	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encoding artifact %s: %w", stage, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (guideline_id, stage, content, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (guideline_id, stage) DO UPDATE SET
			content = excluded.content,
			created_at = CURRENT_TIMESTAMP`,
		guidelineID, stage, payload)
	if err != nil {
		return fmt.Errorf("saving artifact %s: %w", stage, err)
	}
	return nil
}

// LoadArtifact decodes the stored artifact for a stage into out. Returns
// ErrNoArtifact if the stage has never written one.
func (s *Store) LoadArtifact(ctx context.Context, guidelineID, stage string, out any) error {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM artifacts WHERE guideline_id = ? AND stage = ?",
		guidelineID, stage).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", ErrNoArtifact, guidelineID, stage)
	}
	if err != nil {
		return fmt.Errorf("loading artifact %s: %w", stage, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decoding artifact %s: %w", stage, err)
	}
	return nil
}

// StageArtifactExists reports whether a stage has a persisted artifact.
// Existence only: content is trusted as-is on resume.
func (s *Store) StageArtifactExists(ctx context.Context, guidelineID, stage string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM artifacts WHERE guideline_id = ? AND stage = ?",
		guidelineID, stage).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking artifact %s: %w", stage, err)
	}
	return true, nil
}

// --- Checkpoint operations ---

// LookupCheckpoint returns the checkpoint for an item id, or nil if the item
// has never been attempted.
func (s *Store) LookupCheckpoint(ctx context.Context, itemID string) (*batch.Checkpoint, error) {
	var cp batch.Checkpoint
	var result, errMsg sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT item_id, guideline_id, stage, status, result, error, attempts
		FROM checkpoints WHERE item_id = ?`, itemID).
		Scan(&cp.ItemID, &cp.GuidelineID, &cp.Stage, &cp.Status, &result, &errMsg, &cp.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up checkpoint %s: %w", itemID, err)
	}
	cp.Result = result.String
	cp.Error = errMsg.String
	return &cp, nil
}

// SaveCheckpoint upserts a single item's checkpoint. One statement per item
// id, so concurrent workers can never tear each other's records.
func (s *Store) SaveCheckpoint(ctx context.Context, cp batch.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (item_id, guideline_id, stage, status, result, error, attempts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (item_id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			attempts = excluded.attempts,
			updated_at = CURRENT_TIMESTAMP`,
		cp.ItemID, cp.GuidelineID, cp.Stage, cp.Status, cp.Result, cp.Error, cp.Attempts)
	if err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", cp.ItemID, err)
	}
	return nil
}

// FailedCheckpoints returns all permanently failed items for a guideline,
// for the manual-review report.
func (s *Store) FailedCheckpoints(ctx context.Context, guidelineID string) ([]batch.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, guideline_id, stage, status, result, error, attempts
		FROM checkpoints
		WHERE guideline_id = ? AND status = ?
		ORDER BY stage, item_id`, guidelineID, batch.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("listing failed checkpoints: %w", err)
	}
	defer rows.Close()

	var out []batch.Checkpoint
	for rows.Next() {
		var cp batch.Checkpoint
		var result, errMsg sql.NullString
		if err := rows.Scan(&cp.ItemID, &cp.GuidelineID, &cp.Stage, &cp.Status, &result, &errMsg, &cp.Attempts); err != nil {
			return nil, err
		}
		cp.Result = result.String
		cp.Error = errMsg.String
		out = append(out, cp)
	}
	return out, rows.Err()
}

// --- Section and embedding operations ---

// SaveSections replaces the stored sections for a guideline with the given
// document's sections.
func (s *Store) SaveSections(ctx context.Context, doc *types.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning section write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sections WHERE guideline_id = ?", doc.GuidelineID); err != nil {
		return fmt.Errorf("clearing sections: %w", err)
	}
	for _, sec := range doc.Sections {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sections (guideline_id, seq, heading, content, page, content_hash)
			VALUES (?, ?, ?, ?, ?, ?)`,
			doc.GuidelineID, sec.Seq, sec.Heading, sec.Content, sec.Page, sec.ContentHash); err != nil {
			return fmt.Errorf("inserting section %d: %w", sec.Seq, err)
		}
	}
	return tx.Commit()
}

// SaveSectionEmbedding stores the embedding vector for a section.
func (s *Store) SaveSectionEmbedding(ctx context.Context, guidelineID string, seq int, embedding []float32) error {
	var sectionID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM sections WHERE guideline_id = ? AND seq = ?",
		guidelineID, seq).Scan(&sectionID)
	if err != nil {
		return fmt.Errorf("resolving section %d: %w", seq, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_sections (section_id, embedding) VALUES (?, ?)",
		sectionID, serializeFloat32(embedding))
	if err != nil {
		return fmt.Errorf("saving embedding for section %d: %w", seq, err)
	}
	return nil
}

// SectionHint identifies a section near a query embedding.
type SectionHint struct {
	Seq     int     `json:"seq"`
	Heading string  `json:"heading"`
	Page    int     `json:"page"`
	Score   float64 `json:"score"`
}

// SimilarSections performs a KNN search over section embeddings, used to
// point reviewers at the source text behind a low-confidence link.
func (s *Store) SimilarSections(ctx context.Context, guidelineID string, query []float32, k int) ([]SectionHint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sec.seq, sec.heading, sec.page, v.distance
		FROM vec_sections v
		JOIN sections sec ON sec.id = v.section_id
		WHERE v.embedding MATCH ? AND k = ? AND sec.guideline_id = ?
		ORDER BY v.distance`,
		serializeFloat32(query), k, guidelineID)
	if err != nil {
		return nil, fmt.Errorf("section similarity search: %w", err)
	}
	defer rows.Close()

	var hints []SectionHint
	for rows.Next() {
		var h SectionHint
		var heading sql.NullString
		var distance float64
		if err := rows.Scan(&h.Seq, &heading, &h.Page, &distance); err != nil {
			return nil, err
		}
		h.Heading = heading.String
		h.Score = 1.0 - distance
		hints = append(hints, h)
	}
	return hints, rows.Err()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
