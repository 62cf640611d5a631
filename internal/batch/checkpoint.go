// Package batch provides a checkpointed processor for independent units of
// fallible external work. Each item is keyed by a deterministic hash of its
// input, so a re-run over the same inputs resolves completed items from the
// checkpoint store instead of repeating external calls.
package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Status is the persisted state of one work item.
type Status string

// Work item statuses.
const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Checkpoint is the durable record of one work item's outcome.
type Checkpoint struct {
	ItemID      string
	GuidelineID string
	Stage       string
	Status      Status
	Result      string
	Error       string
	Attempts    int
}

// CheckpointStore persists per-item checkpoints. Save must be atomic per
// item id; cross-item ordering is irrelevant since items are independent.
type CheckpointStore interface {
	LookupCheckpoint(ctx context.Context, itemID string) (*Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
}

// ItemID derives the deterministic checkpoint key for an input. The key is
// a pure function of stage name and input content, independent of item
// position, so adding or removing other items never invalidates it.
func ItemID(stage, input string) string {
	sum := sha256.Sum256([]byte(stage + "\x1f" + input))
	return hex.EncodeToString(sum[:])[:16]
}
