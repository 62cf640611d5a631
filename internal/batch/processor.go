package batch

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Options tunes a Processor.
type Options struct {
	GuidelineID string
	Stage       string
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// MaxFailureRatio is the permanent-failure ratio above which the whole
	// batch is reported as failed. 1.0 disables the gate.
	MaxFailureRatio float64
}

// Summary reports what a batch run did. FailedItemIDs feeds the
// manual-review report.
type Summary struct {
	Total                 int
	Done                  int
	Failed                int
	SkippedFromCheckpoint int
	FailedItemIDs         []string
	// Results maps item id to serialized output for every done item,
	// whether freshly processed or resolved from checkpoint.
	Results map[string]string
}

// ErrFailureRateExceeded is wrapped into the error returned by Run when
// permanent failures cross Options.MaxFailureRatio.
var ErrFailureRateExceeded = fmt.Errorf("batch failure rate exceeded")

// Processor executes independent work items with bounded concurrency,
// per-item retry, and durable per-item checkpoints.
type Processor struct {
	store CheckpointStore
	opts  Options
}

// NewProcessor builds a Processor. Zero option fields get working defaults.
func NewProcessor(store CheckpointStore, opts Options) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 30 * time.Second
	}
	if opts.MaxFailureRatio <= 0 {
		opts.MaxFailureRatio = 0.2
	}
	return &Processor{store: store, opts: opts}
}

// Run processes every input exactly once, resolving already-done items from
// the checkpoint store. A single bad item never aborts the batch; the run
// only fails if checkpoint I/O breaks, the context is cancelled, or the
// permanent-failure ratio crosses the configured gate.
func (p *Processor) Run(ctx context.Context, inputs []string, fn WorkFn) (*Summary, error) {
	summary := &Summary{
		Total:   len(inputs),
		Results: make(map[string]string, len(inputs)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, input := range inputs {
		input := input
		g.Go(func() error {
			itemID := ItemID(p.opts.Stage, input)

			prior, err := p.store.LookupCheckpoint(gctx, itemID)
			if err != nil {
				return err
			}
			if prior != nil && prior.Status == StatusDone {
				mu.Lock()
				summary.SkippedFromCheckpoint++
				summary.Done++
				summary.Results[itemID] = prior.Result
				mu.Unlock()
				return nil
			}

			// A previously failed item is re-attempted with a fresh
			// attempt budget; only done items are skipped.
			cp := Checkpoint{
				ItemID:      itemID,
				GuidelineID: p.opts.GuidelineID,
				Stage:       p.opts.Stage,
			}

			outcome := p.attempt(gctx, input, fn, &cp)
			switch outcome.State {
			case StateDone:
				cp.Status = StatusDone
				cp.Result = outcome.Output
			case StatePermanent:
				cp.Status = StatusFailed
				cp.Error = outcome.Reason
			case StateRetryable:
				// attempt only returns Retryable on cancellation. Leave the
				// item unrecorded so a resume re-attempts it.
				return gctx.Err()
			}
			// Persist this item's terminal state before counting it, so a
			// crash between items preserves everything already finished.
			if err := p.store.SaveCheckpoint(gctx, cp); err != nil {
				return err
			}

			mu.Lock()
			if cp.Status == StatusDone {
				summary.Done++
				summary.Results[itemID] = cp.Result
			} else {
				summary.Failed++
				summary.FailedItemIDs = append(summary.FailedItemIDs, itemID)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	sort.Strings(summary.FailedItemIDs)

	if summary.Total > 0 {
		ratio := float64(summary.Failed) / float64(summary.Total)
		if ratio > p.opts.MaxFailureRatio {
			return summary, fmt.Errorf("%w: %d of %d items failed (%.0f%%, limit %.0f%%)",
				ErrFailureRateExceeded, summary.Failed, summary.Total,
				ratio*100, p.opts.MaxFailureRatio*100)
		}
	}
	return summary, nil
}

// attempt runs the bounded retry loop for one item. Cancellation is honored
// between attempts only; an in-flight call runs until it returns.
func (p *Processor) attempt(ctx context.Context, input string, fn WorkFn, cp *Checkpoint) Outcome {
	for {
		if err := ctx.Err(); err != nil {
			return Retryable(fmt.Sprintf("cancelled before attempt: %v", err))
		}
		cp.Attempts++
		outcome := fn(ctx, input)

		switch outcome.State {
		case StateDone, StatePermanent:
			return outcome
		case StateRetryable:
			if cp.Attempts >= p.opts.MaxAttempts {
				// Retries exhausted: downgrade to a permanent failure for
				// this item only.
				return Permanent(fmt.Sprintf("retries exhausted after %d attempts: %s",
					cp.Attempts, outcome.Reason))
			}
			select {
			case <-time.After(p.backoff(cp.Attempts)):
			case <-ctx.Done():
				return Retryable(fmt.Sprintf("cancelled during backoff: %v", ctx.Err()))
			}
		default:
			return Permanent(fmt.Sprintf("unknown outcome state %d", outcome.State))
		}
	}
}

// backoff returns the delay before the next attempt: exponential in the
// attempt number, capped, with up to 50% jitter.
func (p *Processor) backoff(attempt int) time.Duration {
	d := p.opts.BackoffBase << (attempt - 1)
	if d > p.opts.BackoffCap || d <= 0 {
		d = p.opts.BackoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d + jitter
}
