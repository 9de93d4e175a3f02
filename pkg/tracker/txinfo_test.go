package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpcpool/banking-stage-sidecar/pkg/geyser"
)

func TestTransactionInfoRecord(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	info := newTransactionInfo("sig1", 100, now)
	info.addNotification(100, "AccountInUse")
	info.addNotification(100, "AccountInUse")
	info.addNotification(101, "AccountInUse")

	info.addInclusion(103, &geyser.BlockTransaction{
		Signature:         "sig1",
		CURequested:       uintPtr(200000),
		PrioritizationFee: uintPtr(42),
		Accounts: []geyser.AccountMeta{
			{Key: "bob", Writable: false},
			{Key: "alice", Writable: true},
		},
	})

	record := info.Record()

	assert.Equal(t, "sig1", record.Signature)
	assert.True(t, record.IsExecuted)
	assert.True(t, record.IsConfirmed)
	assert.Equal(t, int64(100), record.FirstNotificationSlot)
	assert.Equal(t, now, record.UTCTimestamp)

	require.NotNil(t, record.CURequested)
	assert.Equal(t, int64(200000), *record.CURequested)
	require.NotNil(t, record.PrioritizationFees)
	assert.Equal(t, int64(42), *record.PrioritizationFees)
	require.NotNil(t, record.ProcessedSlot)
	assert.Equal(t, int64(103), *record.ProcessedSlot)

	// Stable ordering: by slot, then cause / by account key.
	assert.JSONEq(t,
		`[{"error":"AccountInUse","slot":100,"count":2},{"error":"AccountInUse","slot":101,"count":1}]`,
		record.Errors)
	assert.JSONEq(t,
		`[{"key":"alice","writable":true},{"key":"bob","writable":false}]`,
		record.AccountsUsed)
}

func TestTransactionInfoRecordDefaults(t *testing.T) {
	info := newTransactionInfo("sig1", 7, time.Now().UTC())
	record := info.Record()

	assert.False(t, record.IsExecuted)
	assert.False(t, record.IsConfirmed)
	assert.Nil(t, record.CURequested)
	assert.Nil(t, record.PrioritizationFees)
	assert.Nil(t, record.ProcessedSlot)
	assert.Equal(t, "[]", record.Errors)
	assert.Equal(t, "[]", record.AccountsUsed)
}
