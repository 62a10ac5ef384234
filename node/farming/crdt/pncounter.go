package crdt

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/Yoga07/safe-farming/types/farming"
)

// PNCounter is a pair of grow-only counters. Its value is the credited total
// minus the debited total; the balance is derived, never stored. Credits
// are slotted by replica, debits by the key passed to Debit.
type PNCounter struct {
	Credited *GCounter
	Debited  *GCounter
}

func NewPNCounter() *PNCounter {
	return &PNCounter{Credited: NewGCounter(), Debited: NewGCounter()}
}

// Credit adds to the replica's credited slot.
func (p *PNCounter) Credit(replica farming.ReplicaID, amount uint64) error {
	return errors.Wrap(p.Credited.Increment(replica, amount), "credit")
}

// Debit records amount under key in the debited half. Debits are keyed by
// what they settle rather than by replica, so recording the same debit on
// several replicas merges to a single debit. Recording a key again never
// lowers or adds to it.
func (p *PNCounter) Debit(key string, amount uint64) error {
	slot := farming.ReplicaID(key)
	current := p.Debited.Get(slot)
	if amount <= current {
		return nil
	}
	return errors.Wrap(p.Debited.Increment(slot, amount-current), "debit")
}

// Value returns credited minus debited, clamped at zero. A merged view can
// briefly observe a debit before the credit it was drawn against.
func (p *PNCounter) Value() uint64 {
	credited := p.Credited.Value()
	debited := p.Debited.Value()
	if debited >= credited {
		return 0
	}
	return credited - debited
}

// Merge joins both halves independently.
func (p *PNCounter) Merge(other *PNCounter) {
	if other == nil {
		return
	}
	p.Credited.Merge(other.Credited)
	p.Debited.Merge(other.Debited)
}

func (p *PNCounter) Clone() *PNCounter {
	return &PNCounter{
		Credited: p.Credited.Clone(),
		Debited:  p.Debited.Clone(),
	}
}

func (p *PNCounter) Equal(other *PNCounter) bool {
	return p.Credited.Equal(other.Credited) && p.Debited.Equal(other.Debited)
}

// WriteCanonical appends the counter, type prefix included, to buf.
func (p *PNCounter) WriteCanonical(buf *bytes.Buffer) error {
	if err := farming.WriteTypePrefix(buf, farming.PNCounterType); err != nil {
		return err
	}
	if err := p.Credited.WriteCanonical(buf); err != nil {
		return err
	}
	return p.Debited.WriteCanonical(buf)
}

// ReadCanonical reads a counter written by WriteCanonical.
func (p *PNCounter) ReadCanonical(buf *bytes.Buffer) error {
	if err := farming.ReadTypePrefix(buf, farming.PNCounterType); err != nil {
		return err
	}
	p.Credited = NewGCounter()
	if err := p.Credited.ReadCanonical(buf); err != nil {
		return err
	}
	p.Debited = NewGCounter()
	return p.Debited.ReadCanonical(buf)
}

func (p *PNCounter) ToCanonicalBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := p.WriteCanonical(buf); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}
	return buf.Bytes(), nil
}

func (p *PNCounter) FromCanonicalBytes(data []byte) error {
	if err := p.ReadCanonical(bytes.NewBuffer(data)); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}
	return nil
}
