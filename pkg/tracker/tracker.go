// Package tracker implements the streaming correlation pipeline: the
// concurrent transaction index, the per-slot error tally, the delayed block
// processor, and the slot-windowed eviction/flush job.
package tracker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rpcpool/banking-stage-sidecar/pkg/common"
	"github.com/rpcpool/banking-stage-sidecar/pkg/geyser"
	"github.com/rpcpool/banking-stage-sidecar/pkg/storage"
)

// Tracker owns the pipeline's shared state and its long-lived tasks.
type Tracker struct {
	log    logrus.FieldLogger
	config *Config

	index *TransactionIndex
	tally *ErrorTally
	queue *DelayQueue[*geyser.BlockUpdate]
	sink  storage.Sink

	// watermark is the slot of the most recently fully-processed block.
	// Advanced with a monotone max, read by the eviction job.
	watermark atomic.Uint64
}

// New creates a tracker writing to sink.
func New(log logrus.FieldLogger, config *Config, sink storage.Sink) *Tracker {
	return &Tracker{
		log:    log.WithField("component", "tracker"),
		config: config,
		index:  NewTransactionIndex(),
		tally:  NewErrorTally(),
		queue:  NewDelayQueue[*geyser.BlockUpdate](),
		sink:   sink,
	}
}

// Watermark returns the slot up to which block processing is known complete.
func (t *Tracker) Watermark() uint64 {
	return t.watermark.Load()
}

// HandleUpdate is the event-loop callback for each feed message.
func (t *Tracker) HandleUpdate(update *geyser.Update) {
	switch {
	case update.BankingTransactionError != nil:
		t.handleNotification(update.BankingTransactionError)
	case update.Block != nil:
		t.enqueueBlock(update.Block)
	}
}

// handleNotification updates the error tally and the transaction index for
// one banking-stage notification. Events without an error cause are non-error
// reports on the same channel and are intentionally ignored.
func (t *Tracker) handleNotification(n *geyser.BankingTransactionError) {
	if n.Error == nil {
		return
	}

	if n.Signature == "" {
		common.MalformedEvents.WithLabelValues("notification_without_signature").Inc()

		return
	}

	common.BankingStageErrorEventCount.Inc()

	t.tally.RecordError(n.Slot)
	t.index.UpsertNotification(n.Signature, n.Slot, *n.Error)

	common.TrackedTransactions.Set(float64(t.index.Len()))
}

// enqueueBlock stamps the block with its release deadline and hands it to
// the delayed processor.
func (t *Tracker) enqueueBlock(block *geyser.BlockUpdate) {
	t.log.WithField("slot", block.Slot).Debug("Got block")

	common.BlockTxs.Set(float64(len(block.Transactions)))
	common.BankingStageBlocksCounter.Inc()

	if !t.queue.Push(block, time.Now().Add(t.config.BlockHoldDuration)) {
		t.log.WithField("slot", block.Slot).Warn("Delay queue closed, dropping block")

		return
	}

	common.DelayQueueDepth.Set(float64(t.queue.Len()))
}

// CloseQueue stops accepting blocks and waives the hold for anything still
// queued. Called when ingestion stops so the drain completes promptly.
func (t *Tracker) CloseQueue() {
	t.queue.Close()
}

// RunBlockProcessor consumes released blocks until the queue is closed and
// drained or ctx is cancelled. Only connection-level storage failures are
// returned; everything else is logged and the pipeline continues.
func (t *Tracker) RunBlockProcessor(ctx context.Context) error {
	for {
		block, ok := t.queue.Pop(ctx)
		if !ok {
			return ctx.Err()
		}

		common.DelayQueueDepth.Set(float64(t.queue.Len()))

		if err := t.processBlock(ctx, block); err != nil {
			return err
		}
	}
}

func (t *Tracker) processBlock(ctx context.Context, block *geyser.BlockUpdate) error {
	valid := block.Transactions[:0]

	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if tx.Signature == "" {
			common.MalformedEvents.WithLabelValues("transaction_without_signature").Inc()
			t.log.WithField("slot", block.Slot).Warn("Skipping block transaction without signature")

			continue
		}

		t.index.MergeInclusion(tx.Signature, block.Slot, tx)
		valid = append(valid, *tx)
	}

	block.Transactions = valid

	var bankingErrors *int64

	if count, ok := t.tally.Take(block.Slot); ok {
		v := int64(count)
		bankingErrors = &v
	}

	info := newBlockInfo(block, bankingErrors)

	if info.BankingStageErrors != nil {
		common.BankingStageErrorCount.Add(float64(*info.BankingStageErrors))
	}

	common.TxErrorCount.Add(float64(info.ProcessedTransactions - info.SuccessfulTransactions))

	if err := t.sink.SaveBlock(ctx, info.Record()); err != nil {
		if errors.Is(err, storage.ErrConnectionLost) {
			return err
		}

		// At-most-once: the block is not retried, data for this slot is lost.
		t.log.WithError(err).WithField("slot", block.Slot).Error("Error saving block")
	}

	t.advanceWatermark(block.Slot)

	return nil
}

// advanceWatermark moves the watermark to slot unless it is already ahead;
// out-of-order processing must never move it backwards.
func (t *Tracker) advanceWatermark(slot uint64) {
	for {
		current := t.watermark.Load()
		if slot <= current {
			return
		}

		if t.watermark.CompareAndSwap(current, slot) {
			return
		}
	}
}
