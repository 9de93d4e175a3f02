package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTallyRecordAndTake(t *testing.T) {
	tally := NewErrorTally()

	tally.RecordError(100)
	tally.RecordError(100)
	tally.RecordError(101)

	count, ok := tally.Take(100)
	assert.True(t, ok)
	assert.Equal(t, uint64(2), count)

	// Take removes the entry.
	_, ok = tally.Take(100)
	assert.False(t, ok)

	count, ok = tally.Take(101)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), count)
}

func TestErrorTallyTakeAbsentSlot(t *testing.T) {
	tally := NewErrorTally()

	count, ok := tally.Take(42)
	assert.False(t, ok)
	assert.Zero(t, count)
}

func TestErrorTallyConcurrentRecorders(t *testing.T) {
	tally := NewErrorTally()

	const writers = 16

	const perWriter = 500

	var wg sync.WaitGroup

	for w := 0; w < writers; w++ {
		wg.Go(func() {
			for i := 0; i < perWriter; i++ {
				tally.RecordError(7)
			}
		})
	}

	wg.Wait()

	count, ok := tally.Take(7)
	assert.True(t, ok)
	assert.Equal(t, uint64(writers*perWriter), count)
}
