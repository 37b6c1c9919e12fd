// Package journal keeps a durable record of completed critical sections.
// It answers "who touched the resource, when, and for how long" after
// the processes involved are gone.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketAccessLog = []byte("access_log")

// one completed critical section
type Record struct {
	Seq        uint64        `json:"seq"`
	WorkerID   string        `json:"worker_id"`
	Lamport    uint64        `json:"lamport,omitempty"`
	AcquiredAt time.Time     `json:"acquired_at"`
	ReleasedAt time.Time     `json:"released_at"`
	Held       time.Duration `json:"held"`
	Bytes      int           `json:"bytes"`
}

type Journal struct {
	db *bolt.DB
}

// Open opens (or creates) the journal database. The bbolt file lock
// serializes writers, so concurrent workers can share one journal path;
// the open timeout keeps a crashed holder from blocking forever.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAccessLog)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal %s: %w", path, err)
	}

	return &Journal{db: db}, nil
}

// Append stores one record under the next sequence number and returns it.
func (j *Journal) Append(rec Record) (uint64, error) {
	var seq uint64

	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccessLog)

		var err error
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		rec.Seq = seq

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("append journal record: %w", err)
	}

	return seq, nil
}

// Recent returns up to n records, newest first.
func (j *Journal) Recent(n int) ([]Record, error) {
	var records []Record

	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAccessLog).Cursor()

		for k, v := c.Last(); k != nil && len(records) < n; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	return records, nil
}

// Count returns the number of stored records.
func (j *Journal) Count() (int, error) {
	var n int
	err := j.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketAccessLog).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("stat journal: %w", err)
	}
	return n, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// big-endian keys keep bbolt iteration in sequence order
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
