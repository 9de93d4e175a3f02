package tracker

import "sync"

const tallyShards = 16

// ErrorTally counts distinct banking-stage error events per slot. Written by
// the notification handler, drained exactly once per slot by the block
// processor after the delay queue releases that slot's block.
type ErrorTally struct {
	shards [tallyShards]tallyShard
}

type tallyShard struct {
	mu     sync.Mutex
	counts map[uint64]uint64
}

// NewErrorTally creates an empty tally.
func NewErrorTally() *ErrorTally {
	t := &ErrorTally{}
	for i := range t.shards {
		t.shards[i].counts = make(map[uint64]uint64)
	}

	return t
}

func (t *ErrorTally) shard(slot uint64) *tallyShard {
	return &t.shards[slot%tallyShards]
}

// RecordError increments the error count for slot, initializing to 1 if
// absent.
func (t *ErrorTally) RecordError(slot uint64) {
	s := t.shard(slot)

	s.mu.Lock()
	s.counts[slot]++
	s.mu.Unlock()
}

// Take atomically reads and removes the count for slot. ok is false when no
// errors were ever recorded for the slot; that is the common case, not a
// fault.
func (t *ErrorTally) Take(slot uint64) (count uint64, ok bool) {
	s := t.shard(slot)

	s.mu.Lock()
	defer s.mu.Unlock()

	count, ok = s.counts[slot]
	if ok {
		delete(s.counts, slot)
	}

	return count, ok
}
