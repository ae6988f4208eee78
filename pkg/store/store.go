// Package store keeps a persistent history of command invocations in a
// bolt database, one sequence per channel.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketInvocation = "invocation"

// ErrNoMatchingInvocation is returned when a lookup matches no history item.
var ErrNoMatchingInvocation = errors.New("no matching invocation")

// Invocation is one history item.
type Invocation struct {
	// Seq is the per-channel sequence number, assigned on Add.
	Seq int `json:"-"`
	// Caller identifies who invoked the command.
	Caller string `json:"caller"`
	// Text is the command line as typed, without the prefix.
	Text string `json:"text"`
	// Status records how the invocation ended: "ok" or "error".
	Status string `json:"status"`
	// When the invocation happened.
	When time.Time `json:"when"`
}

// DB is a bolt-backed invocation history store. It is safe for concurrent
// use.
type DB struct {
	db *bolt.DB
}

// Open opens the database file at path, creating it if needed.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketInvocation))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

// Close closes the database.
func (s *DB) Close() error {
	return s.db.Close()
}

// Add appends an invocation to the history of channel and returns its
// sequence number.
func (s *DB) Add(channel string, inv Invocation) (int, error) {
	var seq uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket([]byte(bucketInvocation)).CreateBucketIfNotExists([]byte(channel))
		if err != nil {
			return err
		}
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		value, err := json.Marshal(inv)
		if err != nil {
			return err
		}
		return b.Put(marshalSeq(seq), value)
	})
	return int(seq), err
}

// Get returns the invocation with the given sequence number in channel.
func (s *DB) Get(channel string, seq int) (Invocation, error) {
	var inv Invocation
	err := s.view(channel, func(b *bolt.Bucket) error {
		if b == nil {
			return ErrNoMatchingInvocation
		}
		v := b.Get(marshalSeq(uint64(seq)))
		if v == nil {
			return ErrNoMatchingInvocation
		}
		return unmarshalInvocation(marshalSeq(uint64(seq)), v, &inv)
	})
	return inv, err
}

// Recent returns up to limit invocations from channel, most recent first.
func (s *DB) Recent(channel string, limit int) ([]Invocation, error) {
	var invs []Invocation
	err := s.view(channel, func(b *bolt.Bucket) error {
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(invs) < limit; k, v = c.Prev() {
			var inv Invocation
			if err := unmarshalInvocation(k, v, &inv); err != nil {
				return err
			}
			invs = append(invs, inv)
		}
		return nil
	})
	return invs, err
}

// Del deletes the invocation with the given sequence number in channel.
func (s *DB) Del(channel string, seq int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketInvocation)).Bucket([]byte(channel))
		if b == nil {
			return ErrNoMatchingInvocation
		}
		return b.Delete(marshalSeq(uint64(seq)))
	})
}

// view runs f within a read transaction. The bucket is nil when the channel
// has no recorded invocations yet.
func (s *DB) view(channel string, f func(*bolt.Bucket) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return f(tx.Bucket([]byte(bucketInvocation)).Bucket([]byte(channel)))
	})
}

func unmarshalInvocation(k, v []byte, inv *Invocation) error {
	if err := json.Unmarshal(v, inv); err != nil {
		return err
	}
	inv.Seq = int(binary.BigEndian.Uint64(k))
	return nil
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
