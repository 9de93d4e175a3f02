package storage

import (
	"context"
	"sync"
)

// MockSink is a mock implementation of Sink for testing. It should only be
// used in test files, not in production code.
type MockSink struct {
	// Function fields that can be set by tests
	SaveTransactionsFunc func(ctx context.Context, txs []TransactionRecord) error
	SaveBlockFunc        func(ctx context.Context, block BlockRecord) error
	StartFunc            func(ctx context.Context) error
	StopFunc             func(ctx context.Context) error

	mu sync.Mutex

	// Track calls for assertions
	TransactionBatches [][]TransactionRecord
	Blocks             []BlockRecord
}

// NewMockSink creates a new mock sink that accepts everything.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// SaveTransactions implements Sink.
func (m *MockSink) SaveTransactions(ctx context.Context, txs []TransactionRecord) error {
	m.mu.Lock()
	batch := make([]TransactionRecord, len(txs))
	copy(batch, txs)
	m.TransactionBatches = append(m.TransactionBatches, batch)
	m.mu.Unlock()

	if m.SaveTransactionsFunc != nil {
		return m.SaveTransactionsFunc(ctx, txs)
	}

	return nil
}

// SaveBlock implements Sink.
func (m *MockSink) SaveBlock(ctx context.Context, block BlockRecord) error {
	m.mu.Lock()
	m.Blocks = append(m.Blocks, block)
	m.mu.Unlock()

	if m.SaveBlockFunc != nil {
		return m.SaveBlockFunc(ctx, block)
	}

	return nil
}

// Start implements Sink.
func (m *MockSink) Start(ctx context.Context) error {
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}

	return nil
}

// Stop implements Sink.
func (m *MockSink) Stop(ctx context.Context) error {
	if m.StopFunc != nil {
		return m.StopFunc(ctx)
	}

	return nil
}

// SavedTransactionBatches returns a snapshot of all batches received.
func (m *MockSink) SavedTransactionBatches() [][]TransactionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]TransactionRecord, len(m.TransactionBatches))
	copy(out, m.TransactionBatches)

	return out
}

// SavedBlocks returns a snapshot of all block records received.
func (m *MockSink) SavedBlocks() []BlockRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]BlockRecord, len(m.Blocks))
	copy(out, m.Blocks)

	return out
}
