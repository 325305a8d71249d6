package executor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// progressLogInterval is how many committed batches pass between progress
// log lines.
const progressLogInterval = 100

// defaultMaxBackoff caps the exponential backoff between retries.
const defaultMaxBackoff = 30 * time.Second

// Sink is the external transactional store batches are applied against.
// A call either fully applies the batch or fully rolls it back; no partial
// application is assumed. The operation template is opaque to the executor:
// the sink interprets it (here, the entity name whose merge statement to
// run). Errors must be classified with Transient or Permanent; anything
// unclassified is treated as permanent.
//
// Every transaction must be a merge-by-key upsert so that re-delivering the
// same batch, whether from a retry, a crash-restart, or duplicate input
// rows, never creates duplicate entities.
type Sink interface {
	RunTransaction(ctx context.Context, op any, batch []map[string]any) error
}

// BatchFunc supplies the next batch of sink payloads, returning io.EOF when
// the sequence is exhausted. Empty batches are allowed and skipped.
type BatchFunc func(ctx context.Context) ([]map[string]any, error)

// RunStats summarizes one Execute run.
type RunStats struct {
	ProcessedCount int64
	BatchCount     int64
	ErrorCount     int64
	Elapsed        time.Duration
	Throughput     float64 // records per second
}

// Executor applies batches against a Sink as idempotent transactions with
// bounded retry. Transient failures are retried with exponential backoff;
// exhaustion and permanent failures downgrade to counted per-batch errors
// and never abort the run.
type Executor struct {
	Sink        Sink
	MaxRetries  int           // total attempts per batch, minimum 1
	BaseBackoff time.Duration // first retry delay, doubled per attempt
	MaxBackoff  time.Duration // optional cap, default 30s
	Log         *logrus.Entry

	// OnBatch, when set, is invoked after every batch attempt resolves
	// (commit or final failure) with a snapshot of the running stats.
	OnBatch func(stats RunStats)
}

// Execute pulls batches from next until io.EOF and applies each against the
// sink. It returns the accumulated statistics and a non-nil error only for
// conditions that abort the whole file task: a source error or context
// cancellation. Cancellation is honored at batch boundaries; an in-flight
// transaction is allowed to finish.
func (e *Executor) Execute(ctx context.Context, op any, next BatchFunc) (RunStats, error) {
	log := e.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	var stats RunStats
	start := time.Now()
	defer func() {
		stats.Elapsed = time.Since(start)
		if secs := stats.Elapsed.Seconds(); secs > 0 {
			stats.Throughput = float64(stats.ProcessedCount) / secs
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		batch, err := next(ctx)
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("batch source failed: %w", err)
		}
		if len(batch) == 0 {
			continue
		}

		if err := e.runBatch(ctx, op, batch); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.ErrorCount++
			log.Errorf("Batch of %d records failed: %v", len(batch), err)
		} else {
			stats.BatchCount++
			stats.ProcessedCount += int64(len(batch))
			if stats.BatchCount%progressLogInterval == 0 {
				elapsed := time.Since(start)
				rate := float64(stats.ProcessedCount) / elapsed.Seconds()
				log.Infof("Processed %d batches, %d records, %.1f records/sec",
					stats.BatchCount, stats.ProcessedCount, rate)
			}
		}

		if e.OnBatch != nil {
			e.OnBatch(stats)
		}
	}
}

// runBatch applies one batch, retrying transient failures with exponential
// backoff up to MaxRetries total attempts. Each retry re-runs the whole
// batch; the upsert contract makes that safe.
func (e *Executor) runBatch(ctx context.Context, op any, batch []map[string]any) error {
	maxRetries := e.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	maxBackoff := e.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	log := e.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := e.Sink.RunTransaction(ctx, op, batch)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}

		wait := e.BaseBackoff << (attempt - 1)
		if wait > maxBackoff {
			wait = maxBackoff
		}
		log.Warnf("Transient failure on attempt %d/%d, retrying in %s: %v", attempt, maxRetries, wait, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", maxRetries, lastErr)
}
