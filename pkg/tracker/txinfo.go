package tracker

import (
	"sort"
	"time"

	"github.com/rpcpool/banking-stage-sidecar/pkg/geyser"
	"github.com/rpcpool/banking-stage-sidecar/pkg/storage"
)

// ErrorKey identifies one distinct failure observation: a banking-stage
// error cause seen at a particular slot.
type ErrorKey struct {
	Error string
	Slot  uint64
}

// TransactionInfo accumulates everything observed for one signature: any
// number of error notifications and at most one block inclusion. An entry
// exists iff at least one event was observed for the signature. It is owned
// by the index until eviction, at which point ownership moves to the
// persistence batch.
type TransactionInfo struct {
	Signature string
	// Errors is a multiset of failure observations keyed by (cause, slot).
	Errors      map[ErrorKey]int
	IsExecuted  bool
	IsConfirmed bool
	// FirstNotificationSlot is the slot of the earliest event ever observed
	// for this signature. Set once, never decreased; the eviction window is
	// measured against it.
	FirstNotificationSlot uint64
	CURequested           *uint64
	PrioritizationFees    *uint64
	// AccountsUsed maps account key to its writable flag, from block
	// inclusion.
	AccountsUsed  map[string]bool
	ProcessedSlot *uint64
	// UTCTimestamp is the wall-clock time of first observation.
	UTCTimestamp time.Time
}

func newTransactionInfo(signature string, slot uint64, now time.Time) *TransactionInfo {
	return &TransactionInfo{
		Signature:             signature,
		Errors:                make(map[ErrorKey]int),
		AccountsUsed:          make(map[string]bool),
		FirstNotificationSlot: slot,
		UTCTimestamp:          now,
	}
}

// addNotification merges one error notification into the aggregate.
func (t *TransactionInfo) addNotification(slot uint64, cause string) {
	t.Errors[ErrorKey{Error: cause, Slot: slot}]++
}

// addInclusion merges the block-inclusion data for this signature. Errors
// accumulated so far are left untouched.
func (t *TransactionInfo) addInclusion(blockSlot uint64, tx *geyser.BlockTransaction) {
	t.IsExecuted = true
	t.IsConfirmed = tx.Succeeded()

	if tx.CURequested != nil {
		v := *tx.CURequested
		t.CURequested = &v
	}

	if tx.PrioritizationFee != nil {
		v := *tx.PrioritizationFee
		t.PrioritizationFees = &v
	}

	for _, acc := range tx.Accounts {
		t.AccountsUsed[acc.Key] = acc.Writable
	}

	slot := blockSlot
	t.ProcessedSlot = &slot
}

// Record converts the aggregate into its persisted row form.
func (t *TransactionInfo) Record() storage.TransactionRecord {
	errs := make([]storage.TransactionErrorData, 0, len(t.Errors))
	for key, count := range t.Errors {
		errs = append(errs, storage.TransactionErrorData{
			Error: key.Error,
			Slot:  key.Slot,
			Count: count,
		})
	}

	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Slot != errs[j].Slot {
			return errs[i].Slot < errs[j].Slot
		}

		return errs[i].Error < errs[j].Error
	})

	accounts := make([]storage.AccountUsed, 0, len(t.AccountsUsed))
	for key, writable := range t.AccountsUsed {
		accounts = append(accounts, storage.AccountUsed{Key: key, Writable: writable})
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Key < accounts[j].Key })

	record := storage.TransactionRecord{
		Signature:             t.Signature,
		Errors:                storage.MarshalJSONOrEmpty(errs),
		IsExecuted:            t.IsExecuted,
		IsConfirmed:           t.IsConfirmed,
		FirstNotificationSlot: int64(t.FirstNotificationSlot),
		UTCTimestamp:          t.UTCTimestamp,
		AccountsUsed:          storage.MarshalJSONOrEmpty(accounts),
	}

	if t.CURequested != nil {
		v := int64(*t.CURequested)
		record.CURequested = &v
	}

	if t.PrioritizationFees != nil {
		v := int64(*t.PrioritizationFees)
		record.PrioritizationFees = &v
	}

	if t.ProcessedSlot != nil {
		v := int64(*t.ProcessedSlot)
		record.ProcessedSlot = &v
	}

	return record
}
