// Package storage defines the bulk-persistence contract for enriched
// transaction and block records, shared by the postgres and clickhouse sinks.
package storage

import (
	"context"
	"errors"
)

// ErrConnectionLost marks a sink failure at the connection level. It is
// unrecoverable within the process: the caller surfaces it to the top level,
// which exits non-zero for an external supervisor to restart. Per-item
// failures are returned unwrapped and are not fatal.
var ErrConnectionLost = errors.New("storage connection lost")

// Sink is the bulk-load interface for the pipeline's output. Persistence is
// at-most-once: callers never retry a failed batch or block.
type Sink interface {
	// SaveTransactions bulk-loads one batch of evicted transaction records.
	SaveTransactions(ctx context.Context, txs []TransactionRecord) error
	// SaveBlock persists a single derived block record.
	SaveBlock(ctx context.Context, block BlockRecord) error
	// Start establishes the underlying connection.
	Start(ctx context.Context) error
	// Stop closes the underlying connection.
	Stop(ctx context.Context) error
}
