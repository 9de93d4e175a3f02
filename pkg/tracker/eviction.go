package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/rpcpool/banking-stage-sidecar/pkg/common"
	"github.com/rpcpool/banking-stage-sidecar/pkg/storage"
)

// RunEviction runs the periodic eviction/flush job until ctx is cancelled.
// Only connection-level storage failures are returned; per-batch failures
// are logged inside the tick and the job keeps running.
func (t *Tracker) RunEviction(ctx context.Context) error {
	scheduler := gocron.NewScheduler(time.UTC)
	fatal := make(chan error, 1)

	_, err := scheduler.Every(t.config.EvictionInterval).Do(func() {
		if err := t.evictOnce(ctx); err != nil {
			select {
			case fatal <- err:
			default:
			}
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule eviction job: %w", err)
	}

	scheduler.StartAsync()
	defer scheduler.Stop()

	select {
	case <-ctx.Done():
		return nil
	case err := <-fatal:
		return err
	}
}

// evictOnce performs one tick: select every entry old enough relative to the
// watermark that no further events are expected for it, remove it, and
// persist it. The lag window is a heuristic, not a proof; events arriving
// after eviction are lost.
func (t *Tracker) evictOnce(ctx context.Context) error {
	watermark := t.Watermark()

	evicted := t.index.EvictOlderThan(watermark, t.config.LagWindowSlots)
	if len(evicted) == 0 {
		return nil
	}

	t.log.WithFields(logrus.Fields{
		"count":     len(evicted),
		"watermark": watermark,
	}).Debug("Saving transaction infos")

	return t.flush(ctx, evicted)
}

// FlushAll evicts and persists the whole index regardless of age. Part of
// the shutdown drain, after the block processor has finished.
func (t *Tracker) FlushAll(ctx context.Context) error {
	evicted := t.index.EvictAll()
	if len(evicted) == 0 {
		return nil
	}

	t.log.WithField("count", len(evicted)).Info("Flushing remaining transaction infos")

	return t.flush(ctx, evicted)
}

// flush persists evicted entries in fixed-size batches. Batches are
// independent: a failed batch is logged and never re-inserted, and the
// remaining batches are still attempted. Only a lost storage connection
// aborts the tick.
func (t *Tracker) flush(ctx context.Context, evicted []*TransactionInfo) error {
	for start := 0; start < len(evicted); start += t.config.BatchSize {
		end := start + t.config.BatchSize
		if end > len(evicted) {
			end = len(evicted)
		}

		batch := make([]storage.TransactionRecord, 0, end-start)
		for _, info := range evicted[start:end] {
			batch = append(batch, info.Record())
		}

		if err := t.sink.SaveTransactions(ctx, batch); err != nil {
			if errors.Is(err, storage.ErrConnectionLost) {
				return err
			}

			t.log.WithError(err).WithField("batch_size", len(batch)).Error("Error saving transaction batch")

			continue
		}

		common.TransactionsEvicted.Add(float64(len(batch)))
	}

	common.TrackedTransactions.Set(float64(t.index.Len()))

	return nil
}
