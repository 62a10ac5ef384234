package farming

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/shopspring/decimal"
)

// RewardEvent reports that a vault stored ByteSize bytes on behalf of the
// network. ObservedRate is the rate the reporting replica saw when the event
// was raised; a zero rate asks the receiving engine to use its own view.
type RewardEvent struct {
	ID           EventID
	Account      AccountID
	ByteSize     uint64
	ObservedRate decimal.Decimal
}

// PayoutProposal is a request to release Amount from Account. Snapshot is the
// balance the proposer observed when raising it. Proposals are transient and
// never merged.
type PayoutProposal struct {
	ID       ProposalID
	Account  AccountID
	Amount   uint64
	Snapshot uint64
	Expiry   time.Time
}

// SignatureShare is one signer's partial signature over a proposal's payout
// message.
type SignatureShare struct {
	ProposalID ProposalID
	SignerID   uint32
	Partial    []byte
}

// Rejection is a signer's authenticated veto of a proposal. Vetoes only have
// an effect when the coordinator is configured with a veto threshold.
type Rejection struct {
	ProposalID ProposalID
	SignerID   uint32
	Partial    []byte
}

// PayoutCertificate authorizes the release of Amount from Account. It
// verifies against the quorum's master public key regardless of which
// signers contributed.
type PayoutCertificate struct {
	ProposalID ProposalID
	Account    AccountID
	Amount     uint64
	Expiry     time.Time
	Signature  []byte
}

// Message returns the byte string the certificate's signature covers.
func (c *PayoutCertificate) Message() []byte {
	return PayoutMessage(c.ProposalID, c.Account, c.Amount, c.Expiry)
}

// Message returns the byte string signers sign for the proposal.
func (p *PayoutProposal) Message() []byte {
	return PayoutMessage(p.ID, p.Account, p.Amount, p.Expiry)
}

// ProposalState is the lifecycle state of a signing round.
type ProposalState string

const (
	ProposalStateProposed   ProposalState = "proposed"
	ProposalStateCollecting ProposalState = "collecting"
	ProposalStateCertified  ProposalState = "certified"
	ProposalStateExpired    ProposalState = "expired"
	ProposalStateRejected   ProposalState = "rejected"
)

// Terminal reports whether no further transition leaves the state.
func (s ProposalState) Terminal() bool {
	switch s {
	case ProposalStateCertified, ProposalStateExpired, ProposalStateRejected:
		return true
	}
	return false
}

// ProposalOutcome is published to subscribers when a round reaches a
// terminal state. Certificate is only set for certified rounds.
type ProposalOutcome struct {
	Proposal    *PayoutProposal
	State       ProposalState
	Certificate *PayoutCertificate
}

const (
	payoutDomain = "safe-farming/payout/v1"
	rejectDomain = "safe-farming/reject/v1"
)

// PayoutMessage is the domain separated message signed for a payout.
func PayoutMessage(
	id ProposalID,
	account AccountID,
	amount uint64,
	expiry time.Time,
) []byte {
	return signingMessage(payoutDomain, id, account, amount, expiry)
}

// RejectMessage is the domain separated message signed for a veto. It never
// collides with a payout message for the same proposal.
func RejectMessage(
	id ProposalID,
	account AccountID,
	amount uint64,
	expiry time.Time,
) []byte {
	return signingMessage(rejectDomain, id, account, amount, expiry)
}

func signingMessage(
	domain string,
	id ProposalID,
	account AccountID,
	amount uint64,
	expiry time.Time,
) []byte {
	buf := new(bytes.Buffer)
	writeLengthPrefixed(buf, []byte(domain))
	writeLengthPrefixed(buf, []byte(id.Replica))
	binary.Write(buf, binary.BigEndian, id.Sequence)
	writeLengthPrefixed(buf, []byte(account))
	binary.Write(buf, binary.BigEndian, amount)
	binary.Write(buf, binary.BigEndian, expiry.UnixNano())
	return buf.Bytes()
}
