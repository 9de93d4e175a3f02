package storage

import (
	"encoding/json"
	"time"
)

// Table names under the banking_stage_results schema.
const (
	SchemaName        = "banking_stage_results"
	TransactionsTable = "transaction_infos"
	BlocksTable       = "blocks"
)

// TransactionRecord is one persisted transaction row. Column order is part
// of the bulk-load contract and must not change.
type TransactionRecord struct {
	Signature             string
	Errors                string // JSON list of {error, slot, count}
	IsExecuted            bool
	IsConfirmed           bool
	FirstNotificationSlot int64
	CURequested           *int64
	PrioritizationFees    *int64
	UTCTimestamp          time.Time
	AccountsUsed          string // JSON list of {key, writable}
	ProcessedSlot         *int64
}

// TransactionColumns returns the transaction_infos column names in insert
// order.
func TransactionColumns() []string {
	return []string{
		"signature", "errors", "is_executed", "is_confirmed",
		"first_notification_slot", "cu_requested", "prioritization_fees",
		"utc_timestamp", "accounts_used", "processed_slot",
	}
}

// BlockRecord is one persisted block row.
type BlockRecord struct {
	BlockHash                  string
	Slot                       int64
	LeaderIdentity             string
	SuccessfulTransactions     int64
	BankingStageErrors         *int64
	ProcessedTransactions      int64
	TotalCUUsed                int64
	TotalCURequested           int64
	HeavilyWritelockedAccounts string // JSON
	HeavilyReadlockedAccounts  string // JSON
	SuppInfos                  string // JSON
}

// BlockColumns returns the blocks column names in insert order.
func BlockColumns() []string {
	return []string{
		"block_hash", "slot", "leader_identity", "successful_transactions",
		"banking_stage_errors", "processed_transactions", "total_cu_used",
		"total_cu_requested", "heavily_writelocked_accounts",
		"heavily_readlocked_accounts", "supp_infos",
	}
}

// TransactionErrorData is the persisted form of one (error, slot) failure
// observation.
type TransactionErrorData struct {
	Error string `json:"error"`
	Slot  uint64 `json:"slot"`
	Count int    `json:"count"`
}

// AccountUsed is the persisted form of one account touched by a transaction.
type AccountUsed struct {
	Key      string `json:"key"`
	Writable bool   `json:"writable"`
}

// MarshalJSONOrEmpty encodes v to JSON, falling back to an empty string
// rather than failing the whole record when encoding is impossible.
func MarshalJSONOrEmpty(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(data)
}
