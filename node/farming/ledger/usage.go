package ledger

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"

	"github.com/Yoga07/safe-farming/node/farming/crdt"
	"github.com/Yoga07/safe-farming/types/farming"
)

// UsageCounter tracks the bytes stored network-wide as a G-Counter. Each
// replica records into its own slot; merged totals feed the rate curve.
type UsageCounter struct {
	mu      sync.RWMutex
	counter *crdt.GCounter
}

func NewUsageCounter() *UsageCounter {
	return &UsageCounter{counter: crdt.NewGCounter()}
}

// Record adds delta bytes to replica's slot.
func (u *UsageCounter) Record(replica farming.ReplicaID, delta uint64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.counter.Increment(replica, delta); err != nil {
		return errors.Wrap(err, "record")
	}
	bytesRecorded.WithLabelValues(string(replica)).Add(float64(delta))
	return nil
}

// Total returns the bytes stored across all replicas.
func (u *UsageCounter) Total() uint64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.counter.Value()
}

// Slot returns a single replica's recorded bytes.
func (u *UsageCounter) Slot(replica farming.ReplicaID) uint64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.counter.Get(replica)
}

// Merge joins other into u. Other is copied under its own lock first, so two
// counters can merge into each other concurrently.
func (u *UsageCounter) Merge(other *UsageCounter) {
	if other == nil || other == u {
		return
	}
	remote := other.Clone()

	u.mu.Lock()
	defer u.mu.Unlock()
	u.counter.Merge(remote.counter)
	merges.WithLabelValues("usage").Inc()
}

func (u *UsageCounter) Clone() *UsageCounter {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return &UsageCounter{counter: u.counter.Clone()}
}

func (u *UsageCounter) Equal(other *UsageCounter) bool {
	a, b := u.Clone(), other.Clone()
	return a.counter.Equal(b.counter)
}

// WriteCanonical appends the counter, type prefix included, to buf.
func (u *UsageCounter) WriteCanonical(buf *bytes.Buffer) error {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if err := farming.WriteTypePrefix(buf, farming.UsageCounterType); err != nil {
		return err
	}
	return u.counter.WriteCanonical(buf)
}

// ReadCanonical replaces the counter with one written by WriteCanonical.
func (u *UsageCounter) ReadCanonical(buf *bytes.Buffer) error {
	if err := farming.ReadTypePrefix(buf, farming.UsageCounterType); err != nil {
		return err
	}
	counter := crdt.NewGCounter()
	if err := counter.ReadCanonical(buf); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.counter = counter
	return nil
}

func (u *UsageCounter) ToCanonicalBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := u.WriteCanonical(buf); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}
	return buf.Bytes(), nil
}

func (u *UsageCounter) FromCanonicalBytes(data []byte) error {
	if err := u.ReadCanonical(bytes.NewBuffer(data)); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}
	return nil
}
