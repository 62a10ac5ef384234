package farming

// Canonical type constants for the replicated and exchanged farming types.
// These are used as prefixes in ToCanonicalBytes() serialization.
const (
	// CRDT types
	GCounterType     uint32 = 0x0A01
	PNCounterType    uint32 = 0x0A02
	UsageCounterType uint32 = 0x0A03
	RewardLedgerType uint32 = 0x0A04

	// Protocol types
	RewardEventType       uint32 = 0x0A05
	PayoutProposalType    uint32 = 0x0A06
	SignatureShareType    uint32 = 0x0A07
	PayoutCertificateType uint32 = 0x0A08
	RejectionType         uint32 = 0x0A09
	ReplicaStateType      uint32 = 0x0A0A
)

// StateVersion is written after the type prefix of replicated state so
// replicas can refuse snapshots they cannot interpret.
const StateVersion byte = 1
