package tracker

import (
	"sort"

	"github.com/rpcpool/banking-stage-sidecar/pkg/geyser"
	"github.com/rpcpool/banking-stage-sidecar/pkg/storage"
)

// heavyAccountLimit caps the frequency-ranked account lists persisted per
// block.
const heavyAccountLimit = 10

// AccountUsage is one entry of the lock-contention ranking.
type AccountUsage struct {
	Key   string `json:"key"`
	Count uint64 `json:"count"`
}

// FeeStats summarizes the prioritization fees paid inside one block; stored
// as the block's supplemental info.
type FeeStats struct {
	MinPrioritizationFee    uint64 `json:"min_prioritization_fee"`
	MedianPrioritizationFee uint64 `json:"median_prioritization_fee"`
	MaxPrioritizationFee    uint64 `json:"max_prioritization_fee"`
}

// BlockInfo is the derived per-slot record. Built once by the block
// processor after the hold interval elapses, persisted once, then discarded.
type BlockInfo struct {
	BlockHash      string
	Slot           uint64
	LeaderIdentity string
	// BankingStageErrors is nil when no error notification was ever tallied
	// for the slot before processing.
	BankingStageErrors         *int64
	ProcessedTransactions      int64
	SuccessfulTransactions     int64
	TotalCUUsed                int64
	TotalCURequested           int64
	HeavilyWritelockedAccounts []AccountUsage
	HeavilyReadlockedAccounts  []AccountUsage
	SupInfo                    FeeStats
}

// newBlockInfo derives the immutable block record from the raw block
// contents and the tallied banking-stage error count. Transactions without a
// signature have already been filtered out by the caller.
func newBlockInfo(block *geyser.BlockUpdate, bankingErrors *int64) *BlockInfo {
	info := &BlockInfo{
		BlockHash:          block.BlockHash,
		Slot:               block.Slot,
		LeaderIdentity:     block.LeaderIdentity,
		BankingStageErrors: bankingErrors,
	}

	writeLocked := make(map[string]uint64)
	readLocked := make(map[string]uint64)
	fees := make([]uint64, 0, len(block.Transactions))

	for i := range block.Transactions {
		tx := &block.Transactions[i]

		info.ProcessedTransactions++

		if tx.Succeeded() {
			info.SuccessfulTransactions++
		}

		if tx.CUConsumed != nil {
			info.TotalCUUsed += int64(*tx.CUConsumed)
		}

		if tx.CURequested != nil {
			info.TotalCURequested += int64(*tx.CURequested)
		}

		if tx.PrioritizationFee != nil {
			fees = append(fees, *tx.PrioritizationFee)
		}

		for _, acc := range tx.Accounts {
			if acc.Writable {
				writeLocked[acc.Key]++
			} else {
				readLocked[acc.Key]++
			}
		}
	}

	info.HeavilyWritelockedAccounts = rankAccounts(writeLocked)
	info.HeavilyReadlockedAccounts = rankAccounts(readLocked)
	info.SupInfo = feeStats(fees)

	return info
}

// rankAccounts returns the most frequently locked accounts, highest count
// first, ties broken by key for deterministic output.
func rankAccounts(counts map[string]uint64) []AccountUsage {
	ranked := make([]AccountUsage, 0, len(counts))
	for key, count := range counts {
		ranked = append(ranked, AccountUsage{Key: key, Count: count})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}

		return ranked[i].Key < ranked[j].Key
	})

	if len(ranked) > heavyAccountLimit {
		ranked = ranked[:heavyAccountLimit]
	}

	return ranked
}

func feeStats(fees []uint64) FeeStats {
	if len(fees) == 0 {
		return FeeStats{}
	}

	sort.Slice(fees, func(i, j int) bool { return fees[i] < fees[j] })

	return FeeStats{
		MinPrioritizationFee:    fees[0],
		MedianPrioritizationFee: fees[len(fees)/2],
		MaxPrioritizationFee:    fees[len(fees)-1],
	}
}

// Record converts the block info into its persisted row form.
func (b *BlockInfo) Record() storage.BlockRecord {
	return storage.BlockRecord{
		BlockHash:                  b.BlockHash,
		Slot:                       int64(b.Slot),
		LeaderIdentity:             b.LeaderIdentity,
		SuccessfulTransactions:     b.SuccessfulTransactions,
		BankingStageErrors:         b.BankingStageErrors,
		ProcessedTransactions:      b.ProcessedTransactions,
		TotalCUUsed:                b.TotalCUUsed,
		TotalCURequested:           b.TotalCURequested,
		HeavilyWritelockedAccounts: storage.MarshalJSONOrEmpty(b.HeavilyWritelockedAccounts),
		HeavilyReadlockedAccounts:  storage.MarshalJSONOrEmpty(b.HeavilyReadlockedAccounts),
		SuppInfos:                  storage.MarshalJSONOrEmpty(b.SupInfo),
	}
}
