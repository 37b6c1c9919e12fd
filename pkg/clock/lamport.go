package clock

import "sync"

// lamport is a logical clock used to order permission requests
// across peers without relying on wall time
// ties between equal timestamps are broken by node ID at the caller
type Lamport struct {
	mu      sync.Mutex
	counter uint64
}

func NewLamport() *Lamport {
	return &Lamport{}
}

// advances the clock for a local event and returns the new value
func (l *Lamport) Tick() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counter++
	return l.counter
}

// merges a timestamp observed on a received message
// the clock jumps past the remote value so causality is preserved
func (l *Lamport) Observe(remote uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if remote > l.counter {
		l.counter = remote
	}
	l.counter++
	return l.counter
}

// current value without advancing
func (l *Lamport) Now() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.counter
}
