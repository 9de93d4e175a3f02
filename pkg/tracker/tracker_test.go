package tracker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"testing/synctest"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpcpool/banking-stage-sidecar/pkg/geyser"
	"github.com/rpcpool/banking-stage-sidecar/pkg/storage"
)

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return log
}

func newTestTracker(sink storage.Sink) *Tracker {
	return New(newTestLogger(), &Config{
		BlockHoldDuration: 30 * time.Second,
		EvictionInterval:  time.Minute,
		LagWindowSlots:    300,
		BatchSize:         8,
	}, sink)
}

func notification(signature string, slot uint64, cause string) *geyser.Update {
	return &geyser.Update{
		BankingTransactionError: &geyser.BankingTransactionError{
			Slot:      slot,
			Signature: signature,
			Error:     &cause,
		},
	}
}

func blockUpdate(slot uint64, signatures ...string) *geyser.Update {
	block := &geyser.BlockUpdate{
		Slot:           slot,
		BlockHash:      fmt.Sprintf("hash%d", slot),
		LeaderIdentity: "leader",
	}

	for _, sig := range signatures {
		block.Transactions = append(block.Transactions, geyser.BlockTransaction{Signature: sig})
	}

	return &geyser.Update{Block: block}
}

func TestErrorBeforeHoldElapsesIsCounted(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sink := storage.NewMockSink()
		tr := newTestTracker(sink)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan error, 1)

		go func() { done <- tr.RunBlockProcessor(ctx) }()

		tr.HandleUpdate(blockUpdate(100, "tx1", "tx2"))

		// The notification lands 2s after the block, well inside the 30s hold.
		time.Sleep(2 * time.Second)
		tr.HandleUpdate(notification("tx1", 100, "AccountInUse"))

		time.Sleep(29 * time.Second)
		synctest.Wait()

		blocks := sink.SavedBlocks()
		require.Len(t, blocks, 1)
		require.NotNil(t, blocks[0].BankingStageErrors)
		assert.Equal(t, int64(1), *blocks[0].BankingStageErrors)
		assert.Equal(t, int64(2), blocks[0].ProcessedTransactions)
		assert.Equal(t, uint64(100), tr.Watermark())

		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

func TestErrorAfterHoldElapsesIsMissed(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sink := storage.NewMockSink()
		tr := newTestTracker(sink)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() { _ = tr.RunBlockProcessor(ctx) }()

		tr.HandleUpdate(blockUpdate(100, "tx1", "tx2"))

		// 31s after block arrival: the block was already processed at 30s.
		time.Sleep(31 * time.Second)
		tr.HandleUpdate(notification("tx1", 100, "AccountInUse"))
		synctest.Wait()

		blocks := sink.SavedBlocks()
		require.Len(t, blocks, 1)
		assert.Nil(t, blocks[0].BankingStageErrors)
	})
}

func TestBlocksProcessedInArrivalOrder(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sink := storage.NewMockSink()
		tr := newTestTracker(sink)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() { _ = tr.RunBlockProcessor(ctx) }()

		tr.HandleUpdate(blockUpdate(100))
		tr.HandleUpdate(blockUpdate(101))
		tr.HandleUpdate(blockUpdate(102))

		time.Sleep(31 * time.Second)
		synctest.Wait()

		blocks := sink.SavedBlocks()
		require.Len(t, blocks, 3)
		assert.Equal(t, int64(100), blocks[0].Slot)
		assert.Equal(t, int64(101), blocks[1].Slot)
		assert.Equal(t, int64(102), blocks[2].Slot)
		assert.Equal(t, uint64(102), tr.Watermark())
	})
}

func TestDrainReleasesHeldBlocks(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sink := storage.NewMockSink()
		tr := newTestTracker(sink)

		tr.HandleUpdate(blockUpdate(100))
		tr.HandleUpdate(blockUpdate(101))
		tr.CloseQueue()

		start := time.Now()
		require.NoError(t, tr.RunBlockProcessor(context.Background()))

		// The hold is waived on drain.
		assert.Equal(t, time.Duration(0), time.Since(start))
		assert.Len(t, sink.SavedBlocks(), 2)
	})
}

func TestMalformedTransactionSkipped(t *testing.T) {
	sink := storage.NewMockSink()
	tr := newTestTracker(sink)

	block := &geyser.BlockUpdate{
		Slot:      100,
		BlockHash: "h",
		Transactions: []geyser.BlockTransaction{
			{Signature: "tx1"},
			{Signature: ""},
		},
	}

	require.NoError(t, tr.processBlock(context.Background(), block))

	blocks := sink.SavedBlocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, int64(1), blocks[0].ProcessedTransactions)
}

func TestBlockPersistFailureIsNotFatal(t *testing.T) {
	sink := storage.NewMockSink()
	sink.SaveBlockFunc = func(ctx context.Context, block storage.BlockRecord) error {
		return errors.New("disk full")
	}

	tr := newTestTracker(sink)

	require.NoError(t, tr.processBlock(context.Background(), &geyser.BlockUpdate{Slot: 100}))

	// The block is lost but the pipeline advances.
	assert.Equal(t, uint64(100), tr.Watermark())
}

func TestBlockPersistConnectionLossIsFatal(t *testing.T) {
	sink := storage.NewMockSink()
	sink.SaveBlockFunc = func(ctx context.Context, block storage.BlockRecord) error {
		return fmt.Errorf("copy: %w", storage.ErrConnectionLost)
	}

	tr := newTestTracker(sink)

	err := tr.processBlock(context.Background(), &geyser.BlockUpdate{Slot: 100})
	assert.ErrorIs(t, err, storage.ErrConnectionLost)
}

func TestWatermarkNeverRegresses(t *testing.T) {
	tr := newTestTracker(storage.NewMockSink())

	tr.advanceWatermark(100)
	tr.advanceWatermark(90)

	assert.Equal(t, uint64(100), tr.Watermark())

	tr.advanceWatermark(101)
	assert.Equal(t, uint64(101), tr.Watermark())
}

func TestNotificationWithoutErrorIgnored(t *testing.T) {
	tr := newTestTracker(storage.NewMockSink())

	tr.HandleUpdate(&geyser.Update{
		BankingTransactionError: &geyser.BankingTransactionError{Slot: 100, Signature: "tx1"},
	})

	assert.Equal(t, 0, tr.index.Len())

	_, ok := tr.tally.Take(100)
	assert.False(t, ok)
}

func TestEvictionBatchSizes(t *testing.T) {
	sink := storage.NewMockSink()
	tr := newTestTracker(sink)

	for i := 0; i < 20; i++ {
		tr.HandleUpdate(notification(fmt.Sprintf("tx%d", i), 650, "AccountInUse"))
	}

	tr.advanceWatermark(1000)
	require.NoError(t, tr.evictOnce(context.Background()))

	batches := sink.SavedTransactionBatches()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 8)
	assert.Len(t, batches[1], 8)
	assert.Len(t, batches[2], 4)
	assert.Equal(t, 0, tr.index.Len())
}

func TestNeverIncludedTransactionStillEvicted(t *testing.T) {
	sink := storage.NewMockSink()
	tr := newTestTracker(sink)

	tr.HandleUpdate(notification("tx1", 650, "AccountInUse"))
	tr.advanceWatermark(1000)

	require.NoError(t, tr.evictOnce(context.Background()))

	batches := sink.SavedTransactionBatches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)

	record := batches[0][0]
	assert.Equal(t, "tx1", record.Signature)
	assert.False(t, record.IsExecuted)
	assert.False(t, record.IsConfirmed)
	assert.Nil(t, record.ProcessedSlot)
	assert.Equal(t, int64(650), record.FirstNotificationSlot)
	assert.Equal(t, 0, tr.index.Len())
}

func TestEvictionRetainsFreshEntries(t *testing.T) {
	sink := storage.NewMockSink()
	tr := newTestTracker(sink)

	tr.HandleUpdate(notification("fresh", 950, "AccountInUse"))
	tr.advanceWatermark(1000)

	require.NoError(t, tr.evictOnce(context.Background()))

	assert.Empty(t, sink.SavedTransactionBatches())
	assert.Equal(t, 1, tr.index.Len())
}

func TestFailedBatchDoesNotBlockLaterBatches(t *testing.T) {
	sink := storage.NewMockSink()

	calls := 0
	sink.SaveTransactionsFunc = func(ctx context.Context, txs []storage.TransactionRecord) error {
		calls++
		if calls == 1 {
			return errors.New("bad batch")
		}

		return nil
	}

	tr := newTestTracker(sink)

	for i := 0; i < 20; i++ {
		tr.HandleUpdate(notification(fmt.Sprintf("tx%d", i), 650, "AccountInUse"))
	}

	tr.advanceWatermark(1000)
	require.NoError(t, tr.evictOnce(context.Background()))

	// All three batches were attempted; the failed one is not re-inserted.
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, tr.index.Len())
}

func TestEvictionConnectionLossIsFatal(t *testing.T) {
	sink := storage.NewMockSink()
	sink.SaveTransactionsFunc = func(ctx context.Context, txs []storage.TransactionRecord) error {
		return fmt.Errorf("copy: %w", storage.ErrConnectionLost)
	}

	tr := newTestTracker(sink)

	tr.HandleUpdate(notification("tx1", 650, "AccountInUse"))
	tr.advanceWatermark(1000)

	assert.ErrorIs(t, tr.evictOnce(context.Background()), storage.ErrConnectionLost)
}

func TestFlushAllIgnoresAge(t *testing.T) {
	sink := storage.NewMockSink()
	tr := newTestTracker(sink)

	tr.HandleUpdate(notification("fresh", 999, "AccountInUse"))
	tr.advanceWatermark(1000)

	require.NoError(t, tr.FlushAll(context.Background()))

	batches := sink.SavedTransactionBatches()
	require.Len(t, batches, 1)
	assert.Equal(t, 0, tr.index.Len())
}
