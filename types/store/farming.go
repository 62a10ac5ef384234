package store

import (
	"github.com/Yoga07/safe-farming/types/farming"
)

// FarmingStore persists a replica's reward state and the payout
// certificates it applied.
type FarmingStore interface {
	NewTransaction() (Transaction, error)

	// Replicated state snapshot, one per replica
	PutSnapshot(txn Transaction, replica farming.ReplicaID, data []byte) error
	GetSnapshot(replica farming.ReplicaID) ([]byte, error)

	// Highest proposal sequence handed out by a replica's coordinator
	PutSequence(txn Transaction, replica farming.ReplicaID, sequence uint64) error
	GetSequence(replica farming.ReplicaID) (uint64, error)

	// Applied certificates, keyed by proposal id
	PutCertificate(txn Transaction, cert *farming.PayoutCertificate) error
	GetCertificate(id farming.ProposalID) (*farming.PayoutCertificate, error)
	RangeCertificates() (TypedIterator[*farming.PayoutCertificate], error)
	DeleteCertificate(txn Transaction, id farming.ProposalID) error
}
