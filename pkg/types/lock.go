package types

import "time"

// owner metadata stamped into the lock file after a successful acquisition
// advisory only : flock(2) state decides ownership, not this record
// it exists so an operator can see who holds (or leaked) the lock
type LockInfo struct {
	OwnerID    string    `json:"owner_id"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}
