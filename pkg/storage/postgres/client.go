// Package postgres implements the bulk-load storage sink on PostgreSQL,
// using binary COPY into the banking_stage_results schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/rpcpool/banking-stage-sidecar/pkg/common"
	"github.com/rpcpool/banking-stage-sidecar/pkg/storage"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

// Client is the postgres Sink implementation.
type Client struct {
	log    logrus.FieldLogger
	config *storage.PostgresConfig
	pool   *pgxpool.Pool
}

// New creates a postgres sink. The connection is established in Start.
func New(log logrus.FieldLogger, config *storage.PostgresConfig) *Client {
	return &Client{
		log:    log.WithField("component", "postgres"),
		config: config,
	}
}

// Start connects and pings. Credentials come from the configured DSN, or the
// PG_CONFIG environment variable when the DSN is unset.
func (c *Client) Start(ctx context.Context) error {
	dsn := c.config.DSN
	if dsn == "" {
		dsn = os.Getenv("PG_CONFIG")
	}

	if dsn == "" {
		return fmt.Errorf("postgres dsn not configured and PG_CONFIG not set")
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse postgres config: %w", err)
	}

	poolConfig.MaxConns = c.config.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return fmt.Errorf("ping postgres: %w", err)
	}

	c.pool = pool
	c.log.Info("Connected to postgres")

	return nil
}

// Stop closes the pool.
func (c *Client) Stop(ctx context.Context) error {
	if c.pool != nil {
		c.pool.Close()
	}

	return nil
}

// SaveTransactions bulk-loads one batch of transaction records.
func (c *Client) SaveTransactions(ctx context.Context, txs []storage.TransactionRecord) error {
	if len(txs) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(txs))
	for i := range txs {
		tx := &txs[i]
		rows = append(rows, []any{
			tx.Signature,
			tx.Errors,
			tx.IsExecuted,
			tx.IsConfirmed,
			tx.FirstNotificationSlot,
			tx.CURequested,
			tx.PrioritizationFees,
			tx.UTCTimestamp,
			tx.AccountsUsed,
			tx.ProcessedSlot,
		})
	}

	return c.copyRows(ctx, storage.TransactionsTable, storage.TransactionColumns(), rows)
}

// SaveBlock persists a single block record.
func (c *Client) SaveBlock(ctx context.Context, block storage.BlockRecord) error {
	rows := [][]any{{
		block.BlockHash,
		block.Slot,
		block.LeaderIdentity,
		block.SuccessfulTransactions,
		block.BankingStageErrors,
		block.ProcessedTransactions,
		block.TotalCUUsed,
		block.TotalCURequested,
		block.HeavilyWritelockedAccounts,
		block.HeavilyReadlockedAccounts,
		block.SuppInfos,
	}}

	return c.copyRows(ctx, storage.BlocksTable, storage.BlockColumns(), rows)
}

func (c *Client) copyRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	start := time.Now()

	_, err := c.pool.CopyFrom(
		ctx,
		pgx.Identifier{storage.SchemaName, table},
		columns,
		pgx.CopyFromRows(rows),
	)

	status := statusSuccess
	if err != nil {
		status = statusFailed
	}

	common.StorageOperations.WithLabelValues(storage.DriverPostgres, "copy_"+table, status).Inc()
	common.StorageOperationDuration.WithLabelValues(storage.DriverPostgres, "copy_"+table).Observe(time.Since(start).Seconds())

	if err != nil {
		if isConnectionError(err) {
			return fmt.Errorf("copy into %s: %v: %w", table, err, storage.ErrConnectionLost)
		}

		return fmt.Errorf("copy into %s: %w", table, err)
	}

	common.StorageRowsWritten.WithLabelValues(storage.DriverPostgres, table).Add(float64(len(rows)))

	return nil
}

// isConnectionError classifies failures that mean the underlying connection
// is gone for good. These are surfaced as fatal; the process does not attempt
// in-process reconnection.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	return pgconn.SafeToRetry(err)
}
