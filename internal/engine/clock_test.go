package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_NewClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, uint64(0), c.Current(), "new clock should start at 0")
	assert.Equal(t, uint64(1), c.Peek())
}

func TestClock_NewClockAt(t *testing.T) {
	c := NewClockAt(100)
	assert.Equal(t, uint64(100), c.Current(), "clock should start at specified value")
	assert.Equal(t, uint64(101), c.Next())
}

func TestClock_Next_Incrementing(t *testing.T) {
	c := NewClock()

	assert.Equal(t, uint64(1), c.Next())
	assert.Equal(t, uint64(2), c.Next())
	assert.Equal(t, uint64(3), c.Next())
	assert.Equal(t, uint64(3), c.Current())
}

func TestClock_PeekDoesNotAdvance(t *testing.T) {
	c := NewClock()
	c.Next()

	assert.Equal(t, uint64(2), c.Peek())
	assert.Equal(t, uint64(2), c.Peek())
	assert.Equal(t, uint64(1), c.Current())
}

func TestClock_Reset(t *testing.T) {
	c := NewClockAt(7)
	c.Reset()
	assert.Equal(t, uint64(0), c.Current())
}

func TestClock_ThreadSafe(t *testing.T) {
	c := NewClock()
	const goroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	seqs := make(chan uint64, goroutines*callsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				seqs <- c.Next()
			}
		}()
	}

	wg.Wait()
	close(seqs)

	seen := make(map[uint64]bool)
	for seq := range seqs {
		assert.False(t, seen[seq], "seq %d generated twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, goroutines*callsPerGoroutine)
}
