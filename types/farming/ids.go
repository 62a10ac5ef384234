package farming

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"
)

// ReplicaID identifies an independent process holding a copy of the reward
// state. Each replica only ever increments its own counter slots.
type ReplicaID string

// AccountID identifies the account a vault is rewarded to, usually the hex
// encoding of the account's public key.
type AccountID string

// EventID uniquely identifies a reward event across the network.
type EventID [32]byte

// NewEventID derives an event id from the vault, the chunk it stored and a
// vault-local stamp. The parts are length prefixed so distinct tuples never
// collide.
func NewEventID(vault AccountID, chunk []byte, stamp uint64) EventID {
	h := sha3.New256()
	writeLengthPrefixed(h, []byte("safe-farming/event"))
	writeLengthPrefixed(h, []byte(vault))
	writeLengthPrefixed(h, chunk)
	var s [8]byte
	binary.BigEndian.PutUint64(s[:], stamp)
	h.Write(s[:])

	var id EventID
	copy(id[:], h.Sum(nil))
	return id
}

func (e EventID) String() string {
	return hex.EncodeToString(e[:])
}

// ProposalID binds a payout proposal to the coordinator that raised it.
// Sequence increases monotonically per coordinator.
type ProposalID struct {
	Replica  ReplicaID
	Sequence uint64
}

func (p ProposalID) String() string {
	return fmt.Sprintf("%s/%d", p.Replica, p.Sequence)
}

// Less orders proposal ids by replica then sequence.
func (p ProposalID) Less(o ProposalID) bool {
	if p.Replica != o.Replica {
		return p.Replica < o.Replica
	}
	return p.Sequence < o.Sequence
}

func writeLengthPrefixed(w io.Writer, b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	w.Write(l[:])
	w.Write(b)
}
