package geyser

// Update is one decoded message from the geyser feed. Exactly one of the
// fields is set; an empty update is skipped by the consumer.
type Update struct {
	BankingTransactionError *BankingTransactionError `json:"banking_transaction_error,omitempty"`
	Block                   *BlockUpdate             `json:"block,omitempty"`
}

// BankingTransactionError is one observed banking-stage attempt for a
// transaction. Error is nil when the upstream reports a non-error event on
// the same channel; those are ignored.
type BankingTransactionError struct {
	Slot      uint64  `json:"slot"`
	Signature string  `json:"signature"`
	Error     *string `json:"error,omitempty"`
}

// BlockUpdate is the finalized contents of one slot's block.
type BlockUpdate struct {
	Slot           uint64             `json:"slot"`
	BlockHash      string             `json:"block_hash"`
	LeaderIdentity string             `json:"leader_identity"`
	Transactions   []BlockTransaction `json:"transactions"`
}

// BlockTransaction is one transaction as included in a block.
type BlockTransaction struct {
	Signature string `json:"signature"`
	// Error is empty for successful transactions.
	Error             string        `json:"error,omitempty"`
	CUConsumed        *uint64       `json:"cu_consumed,omitempty"`
	CURequested       *uint64       `json:"cu_requested,omitempty"`
	PrioritizationFee *uint64       `json:"prioritization_fee,omitempty"`
	Accounts          []AccountMeta `json:"accounts,omitempty"`
}

// Succeeded reports whether the transaction executed without error.
func (t *BlockTransaction) Succeeded() bool {
	return t.Error == ""
}

// AccountMeta is an account touched by a transaction with its lock mode.
type AccountMeta struct {
	Key      string `json:"key"`
	Writable bool   `json:"writable"`
}

// subscribeRequest mirrors the upstream subscription message: transaction
// contents for every block, no accounts, no entries, plus the unfiltered
// banking-stage error feed.
type subscribeRequest struct {
	Blocks                   blockFilter `json:"blocks"`
	BankingTransactionErrors bool        `json:"banking_transaction_errors"`
	Commitment               string      `json:"commitment"`
}

type blockFilter struct {
	IncludeTransactions bool `json:"include_transactions"`
	IncludeAccounts     bool `json:"include_accounts"`
	IncludeEntries      bool `json:"include_entries"`
}
