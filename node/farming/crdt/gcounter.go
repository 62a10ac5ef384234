// Package crdt holds the state-based counters the reward state is built
// from. Every merge is a join: commutative, associative and idempotent.
package crdt

import (
	"bytes"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/Yoga07/safe-farming/types/farming"
)

// GCounter is a grow-only counter with one slot per replica. Merge takes the
// pointwise maximum; the value is the sum of all slots.
type GCounter struct {
	slots map[farming.ReplicaID]uint64
}

func NewGCounter() *GCounter {
	return &GCounter{slots: make(map[farming.ReplicaID]uint64)}
}

// Increment adds delta to the replica's own slot. A slot that would overflow
// is left unchanged. A zero delta never creates a slot.
func (g *GCounter) Increment(replica farming.ReplicaID, delta uint64) error {
	if delta == 0 {
		return nil
	}
	current := g.slots[replica]
	if delta > math.MaxUint64-current {
		return errors.Wrap(farming.ErrExcessiveValue, "increment")
	}
	g.slots[replica] = current + delta
	return nil
}

// Get returns the value of a single replica's slot.
func (g *GCounter) Get(replica farming.ReplicaID) uint64 {
	return g.slots[replica]
}

// Value returns the sum of all slots, saturating at math.MaxUint64.
func (g *GCounter) Value() uint64 {
	var total uint64
	for _, v := range g.slots {
		if v > math.MaxUint64-total {
			return math.MaxUint64
		}
		total += v
	}
	return total
}

// Merge joins other into g.
func (g *GCounter) Merge(other *GCounter) {
	if other == nil {
		return
	}
	for replica, v := range other.slots {
		if v > g.slots[replica] {
			g.slots[replica] = v
		}
	}
}

// Replicas returns the replicas holding a non-zero slot, sorted.
func (g *GCounter) Replicas() []farming.ReplicaID {
	replicas := make([]farming.ReplicaID, 0, len(g.slots))
	for replica, v := range g.slots {
		if v != 0 {
			replicas = append(replicas, replica)
		}
	}
	sort.Slice(replicas, func(i, j int) bool { return replicas[i] < replicas[j] })
	return replicas
}

func (g *GCounter) Clone() *GCounter {
	c := &GCounter{slots: make(map[farming.ReplicaID]uint64, len(g.slots))}
	for replica, v := range g.slots {
		c.slots[replica] = v
	}
	return c
}

// Equal reports whether both counters hold the same slots. Zero slots are
// treated as absent.
func (g *GCounter) Equal(other *GCounter) bool {
	for replica, v := range g.slots {
		if other.slots[replica] != v {
			return false
		}
	}
	for replica, v := range other.slots {
		if g.slots[replica] != v {
			return false
		}
	}
	return true
}

// writeSlots appends the slots in replica order, without a type prefix.
func (g *GCounter) writeSlots(buf *bytes.Buffer) error {
	replicas := g.Replicas()
	if err := farming.WriteCount(buf, len(replicas)); err != nil {
		return err
	}
	for _, replica := range replicas {
		if err := farming.WriteBytes(buf, []byte(replica)); err != nil {
			return err
		}
		if err := farming.WriteUint64(buf, g.slots[replica]); err != nil {
			return err
		}
	}
	return nil
}

func (g *GCounter) readSlots(buf *bytes.Buffer) error {
	// 4 byte length + 8 byte value per slot
	n, err := farming.ReadCount(buf, 12)
	if err != nil {
		return err
	}
	g.slots = make(map[farming.ReplicaID]uint64, n)
	for i := 0; i < n; i++ {
		replica, err := farming.ReadBytes(buf)
		if err != nil {
			return err
		}
		v, err := farming.ReadUint64(buf)
		if err != nil {
			return err
		}
		if v != 0 {
			g.slots[farming.ReplicaID(replica)] = v
		}
	}
	return nil
}

// WriteCanonical appends the counter, type prefix included, to buf.
func (g *GCounter) WriteCanonical(buf *bytes.Buffer) error {
	if err := farming.WriteTypePrefix(buf, farming.GCounterType); err != nil {
		return err
	}
	return g.writeSlots(buf)
}

// ReadCanonical reads a counter written by WriteCanonical.
func (g *GCounter) ReadCanonical(buf *bytes.Buffer) error {
	if err := farming.ReadTypePrefix(buf, farming.GCounterType); err != nil {
		return err
	}
	return g.readSlots(buf)
}

func (g *GCounter) ToCanonicalBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := g.WriteCanonical(buf); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}
	return buf.Bytes(), nil
}

func (g *GCounter) FromCanonicalBytes(data []byte) error {
	if err := g.ReadCanonical(bytes.NewBuffer(data)); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}
	return nil
}
