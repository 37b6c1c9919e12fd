package clock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLamportTick tests that local events advance the clock
func TestLamportTick(t *testing.T) {
	l := NewLamport()

	assert.Equal(t, uint64(1), l.Tick())
	assert.Equal(t, uint64(2), l.Tick())
	assert.Equal(t, uint64(3), l.Tick())
	assert.Equal(t, uint64(3), l.Now())
}

// TestLamportObserve tests merging remote timestamps
func TestLamportObserve(t *testing.T) {
	l := NewLamport()
	l.Tick() // 1

	// remote clock ahead : jump past it
	assert.Equal(t, uint64(11), l.Observe(10))

	// remote clock behind : keep moving forward
	assert.Equal(t, uint64(12), l.Observe(2))
}

// TestLamportConcurrent tests that concurrent ticks never repeat a value
func TestLamportConcurrent(t *testing.T) {
	l := NewLamport()

	const n = 100
	seen := make([]uint64, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			seen[idx] = l.Tick()
		}(i)
	}
	wg.Wait()

	unique := make(map[uint64]struct{}, n)
	for _, v := range seen {
		unique[v] = struct{}{}
	}
	assert.Len(t, unique, n, "every tick must produce a distinct timestamp")
	assert.Equal(t, uint64(n), l.Now())
}

// TestClockElapsed tests that the monotonic clock moves forward
func TestClockElapsed(t *testing.T) {
	c := NewClock()

	first := c.Elapsed()
	second := c.Elapsed()
	assert.GreaterOrEqual(t, second, first)
}
