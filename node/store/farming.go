package store

import (
	"encoding/binary"
	"slices"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Yoga07/safe-farming/types/farming"
	"github.com/Yoga07/safe-farming/types/store"
)

var _ store.FarmingStore = (*PebbleFarmingStore)(nil)

type PebbleFarmingStore struct {
	db     store.KVDB
	logger *zap.Logger
}

type PebbleCertificateIterator struct {
	i store.Iterator
}

var _ store.TypedIterator[*farming.PayoutCertificate] = (*PebbleCertificateIterator)(nil)

func NewPebbleFarmingStore(
	db store.KVDB,
	logger *zap.Logger,
) *PebbleFarmingStore {
	return &PebbleFarmingStore{
		db,
		logger,
	}
}

func snapshotKey(replica farming.ReplicaID) []byte {
	key := []byte{FARMING, FARMING_SNAPSHOT}
	key = append(key, []byte(replica)...)
	return key
}

func sequenceKey(replica farming.ReplicaID) []byte {
	key := []byte{FARMING, FARMING_SEQUENCE}
	key = append(key, []byte(replica)...)
	return key
}

// certificateKey orders certificates by issuing replica, then sequence.
func certificateKey(id farming.ProposalID) []byte {
	key := []byte{FARMING, FARMING_CERTIFICATE}
	key = binary.BigEndian.AppendUint16(key, uint16(len(id.Replica)))
	key = append(key, []byte(id.Replica)...)
	key = binary.BigEndian.AppendUint64(key, id.Sequence)
	return key
}

func (p *PebbleFarmingStore) NewTransaction() (store.Transaction, error) {
	return p.db.NewBatch(false), nil
}

func (p *PebbleFarmingStore) PutSnapshot(
	txn store.Transaction,
	replica farming.ReplicaID,
	data []byte,
) error {
	if err := txn.Set(snapshotKey(replica), data); err != nil {
		return errors.Wrap(err, "put snapshot")
	}
	return nil
}

func (p *PebbleFarmingStore) GetSnapshot(
	replica farming.ReplicaID,
) ([]byte, error) {
	data, closer, err := p.db.Get(snapshotKey(replica))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "get snapshot")
	}
	defer closer.Close()

	return slices.Clone(data), nil
}

func (p *PebbleFarmingStore) PutSequence(
	txn store.Transaction,
	replica farming.ReplicaID,
	sequence uint64,
) error {
	if err := txn.Set(
		sequenceKey(replica),
		binary.BigEndian.AppendUint64(nil, sequence),
	); err != nil {
		return errors.Wrap(err, "put sequence")
	}
	return nil
}

func (p *PebbleFarmingStore) GetSequence(
	replica farming.ReplicaID,
) (uint64, error) {
	data, closer, err := p.db.Get(sequenceKey(replica))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, store.ErrNotFound
		}
		return 0, errors.Wrap(err, "get sequence")
	}
	defer closer.Close()

	if len(data) != 8 {
		return 0, errors.Wrap(store.ErrInvalidData, "get sequence")
	}
	return binary.BigEndian.Uint64(data), nil
}

func (p *PebbleFarmingStore) PutCertificate(
	txn store.Transaction,
	cert *farming.PayoutCertificate,
) error {
	data, err := cert.ToCanonicalBytes()
	if err != nil {
		return errors.Wrap(err, "put certificate")
	}

	if err := txn.Set(certificateKey(cert.ProposalID), data); err != nil {
		return errors.Wrap(err, "put certificate")
	}
	return nil
}

func (p *PebbleFarmingStore) GetCertificate(
	id farming.ProposalID,
) (*farming.PayoutCertificate, error) {
	data, closer, err := p.db.Get(certificateKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "get certificate")
	}
	defer closer.Close()

	cert := &farming.PayoutCertificate{}
	if err := cert.FromCanonicalBytes(slices.Clone(data)); err != nil {
		return nil, errors.Wrap(
			errors.Wrap(err, store.ErrInvalidData.Error()),
			"get certificate",
		)
	}
	return cert, nil
}

func (p *PebbleFarmingStore) RangeCertificates() (
	store.TypedIterator[*farming.PayoutCertificate],
	error,
) {
	iter, err := p.db.NewIter(
		[]byte{FARMING, FARMING_CERTIFICATE},
		[]byte{FARMING, FARMING_CERTIFICATE + 1},
	)
	if err != nil {
		return nil, errors.Wrap(err, "range certificates")
	}

	return &PebbleCertificateIterator{i: iter}, nil
}

func (p *PebbleFarmingStore) DeleteCertificate(
	txn store.Transaction,
	id farming.ProposalID,
) error {
	return errors.Wrap(txn.Delete(certificateKey(id)), "delete certificate")
}

func (p *PebbleCertificateIterator) First() bool {
	return p.i.First()
}

func (p *PebbleCertificateIterator) Next() bool {
	return p.i.Next()
}

func (p *PebbleCertificateIterator) Valid() bool {
	return p.i.Valid()
}

func (p *PebbleCertificateIterator) Value() (
	*farming.PayoutCertificate,
	error,
) {
	if !p.i.Valid() {
		return nil, store.ErrNotFound
	}

	cert := &farming.PayoutCertificate{}
	if err := cert.FromCanonicalBytes(slices.Clone(p.i.Value())); err != nil {
		return nil, errors.Wrap(
			errors.Wrap(err, store.ErrInvalidData.Error()),
			"get certificate iterator value",
		)
	}

	return cert, nil
}

func (p *PebbleCertificateIterator) Close() error {
	return errors.Wrap(p.i.Close(), "closing certificate iterator")
}
