// Package clickhouse implements the bulk-load storage sink on ClickHouse as
// an alternative to postgres, batching rows through the native protocol.
package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/rpcpool/banking-stage-sidecar/pkg/common"
	"github.com/rpcpool/banking-stage-sidecar/pkg/storage"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

// Client is the clickhouse Sink implementation.
type Client struct {
	log    logrus.FieldLogger
	config *storage.ClickHouseConfig
	conn   driver.Conn
}

// New creates a clickhouse sink. The connection is established in Start.
func New(log logrus.FieldLogger, config *storage.ClickHouseConfig) *Client {
	return &Client{
		log:    log.WithField("component", "clickhouse"),
		config: config,
	}
}

// Start connects and pings.
func (c *Client) Start(ctx context.Context) error {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{c.config.Addr},
		Auth: clickhouse.Auth{
			Database: c.config.Database,
			Username: c.config.Username,
			Password: c.config.Password,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	c.conn = conn
	c.log.WithField("addr", c.config.Addr).Info("Connected to clickhouse")

	return nil
}

// Stop closes the connection.
func (c *Client) Stop(ctx context.Context) error {
	if c.conn != nil {
		return c.conn.Close()
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

	return c.insertRows(ctx, storage.TransactionsTable, storage.TransactionColumns(), rows)
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

	return c.insertRows(ctx, storage.BlocksTable, storage.BlockColumns(), rows)
}

func (c *Client) insertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	start := time.Now()
	err := c.doInsert(ctx, table, columns, rows)

	status := statusSuccess
	if err != nil {
		status = statusFailed
	}

	common.StorageOperations.WithLabelValues(storage.DriverClickHouse, "insert_"+table, status).Inc()
	common.StorageOperationDuration.WithLabelValues(storage.DriverClickHouse, "insert_"+table).Observe(time.Since(start).Seconds())

	if err != nil {
		if isConnectionError(err) {
			return fmt.Errorf("insert into %s: %v: %w", table, err, storage.ErrConnectionLost)
		}

		return fmt.Errorf("insert into %s: %w", table, err)
	}

	common.StorageRowsWritten.WithLabelValues(storage.DriverClickHouse, table).Add(float64(len(rows)))

	return nil
}

func (c *Client) doInsert(ctx context.Context, table string, columns []string, rows [][]any) error {
	query := fmt.Sprintf(
		"INSERT INTO %s.%s (%s)",
		c.config.Database, table, strings.Join(columns, ", "),
	)

	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return err
		}
	}

	return batch.Send()
}

// isConnectionError classifies failures that mean the underlying connection
// is gone for good.
func isConnectionError(err error) bool {
	if errors.Is(err, clickhouse.ErrAcquireConnTimeout) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}
