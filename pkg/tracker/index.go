package tracker

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/rpcpool/banking-stage-sidecar/pkg/geyser"
)

// shardCount trades memory for contention: unrelated signatures almost never
// share a lock, so the event loop and the eviction job do not serialize
// against each other.
const shardCount = 64

// TransactionIndex is the concurrent mapping from transaction signature to
// its TransactionInfo aggregate. Mutations to the same key are serialized by
// the owning shard's lock; readers never observe a torn entry because every
// access to an entry happens under that lock.
type TransactionIndex struct {
	shards [shardCount]indexShard
}

type indexShard struct {
	mu      sync.Mutex
	entries map[string]*TransactionInfo
}

// NewTransactionIndex creates an empty index.
func NewTransactionIndex() *TransactionIndex {
	idx := &TransactionIndex{}
	for i := range idx.shards {
		idx.shards[i].entries = make(map[string]*TransactionInfo)
	}

	return idx
}

func (idx *TransactionIndex) shard(signature string) *indexShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(signature))

	return &idx.shards[h.Sum32()%shardCount]
}

// UpsertNotification records one error notification for a signature. The
// first event for a signature creates the entry and pins
// FirstNotificationSlot; later events only grow the error multiset.
func (idx *TransactionIndex) UpsertNotification(signature string, slot uint64, cause string) {
	s := idx.shard(signature)

	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.entries[signature]
	if !ok {
		info = newTransactionInfo(signature, slot, time.Now().UTC())
		s.entries[signature] = info
	}

	info.addNotification(slot, cause)
}

// UpsertInclusion records the block-inclusion data for a signature. When no
// entry exists yet (a transaction whose only signal is inclusion), a minimal
// entry is created with FirstNotificationSlot = blockSlot.
func (idx *TransactionIndex) UpsertInclusion(signature string, blockSlot uint64, tx *geyser.BlockTransaction) {
	s := idx.shard(signature)

	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.entries[signature]
	if !ok {
		info = newTransactionInfo(signature, blockSlot, time.Now().UTC())
		s.entries[signature] = info
	}

	info.addInclusion(blockSlot, tx)
}

// MergeInclusion is UpsertInclusion restricted to signatures already being
// tracked. Returns false when the signature is unknown, in which case the
// transaction's statistics are simply absent from the final aggregate.
func (idx *TransactionIndex) MergeInclusion(signature string, blockSlot uint64, tx *geyser.BlockTransaction) bool {
	s := idx.shard(signature)

	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.entries[signature]
	if !ok {
		return false
	}

	info.addInclusion(blockSlot, tx)

	return true
}

// Len returns the number of tracked signatures.
func (idx *TransactionIndex) Len() int {
	total := 0

	for i := range idx.shards {
		s := &idx.shards[i]
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}

	return total
}

// EvictOlderThan removes and returns every entry whose first observed slot is
// more than lag slots behind watermark. Removal happens under the shard lock,
// so an evicted entry's final state is exactly what a racing upsert last
// wrote; once returned, the entry is owned by the caller.
func (idx *TransactionIndex) EvictOlderThan(watermark, lag uint64) []*TransactionInfo {
	var evicted []*TransactionInfo

	for i := range idx.shards {
		s := &idx.shards[i]
		s.mu.Lock()

		for signature, info := range s.entries {
			if watermark > info.FirstNotificationSlot && watermark-info.FirstNotificationSlot > lag {
				evicted = append(evicted, info)
				delete(s.entries, signature)
			}
		}

		s.mu.Unlock()
	}

	return evicted
}

// EvictAll removes and returns every entry. Used by the shutdown drain.
func (idx *TransactionIndex) EvictAll() []*TransactionInfo {
	var evicted []*TransactionInfo

	for i := range idx.shards {
		s := &idx.shards[i]
		s.mu.Lock()

		for signature, info := range s.entries {
			evicted = append(evicted, info)
			delete(s.entries, signature)
		}

		s.mu.Unlock()
	}

	return evicted
}
