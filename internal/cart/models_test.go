package cart

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusPaid))
	assert.False(t, CanTransition(StatusPaid, StatusPending))
	assert.False(t, CanTransition(StatusPaid, StatusPaid))
}

func TestTotalSumsLineSubtotals(t *testing.T) {
	items := []Item{
		{ProductID: 1, PriceCents: 2500, Quantity: 2},
		{ProductID: 2, PriceCents: 5990, Quantity: 1},
	}
	assert.Equal(t, 5000, items[0].SubtotalCents())
	assert.Equal(t, 10990, Total(items))
	assert.Zero(t, Total(nil))
}

func TestUserLocksSerializePerUser(t *testing.T) {
	locks := NewUserLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("user-a")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
