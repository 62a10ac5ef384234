package mocks

import (
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/Yoga07/safe-farming/types/farming"
	"github.com/Yoga07/safe-farming/types/store"
)

type MockFarmingStore struct {
	mock.Mock
}

// NewTransaction implements store.FarmingStore.
func (m *MockFarmingStore) NewTransaction() (store.Transaction, error) {
	args := m.Called()
	return args.Get(0).(store.Transaction), args.Error(1)
}

// PutSnapshot implements store.FarmingStore.
func (m *MockFarmingStore) PutSnapshot(
	txn store.Transaction,
	replica farming.ReplicaID,
	data []byte,
) error {
	args := m.Called(txn, replica, data)
	return args.Error(0)
}

// GetSnapshot implements store.FarmingStore.
func (m *MockFarmingStore) GetSnapshot(
	replica farming.ReplicaID,
) ([]byte, error) {
	args := m.Called(replica)
	return args.Get(0).([]byte), args.Error(1)
}

// PutSequence implements store.FarmingStore.
func (m *MockFarmingStore) PutSequence(
	txn store.Transaction,
	replica farming.ReplicaID,
	sequence uint64,
) error {
	args := m.Called(txn, replica, sequence)
	return args.Error(0)
}

// GetSequence implements store.FarmingStore.
func (m *MockFarmingStore) GetSequence(
	replica farming.ReplicaID,
) (uint64, error) {
	args := m.Called(replica)
	return args.Get(0).(uint64), args.Error(1)
}

// PutCertificate implements store.FarmingStore.
func (m *MockFarmingStore) PutCertificate(
	txn store.Transaction,
	cert *farming.PayoutCertificate,
) error {
	args := m.Called(txn, cert)
	return args.Error(0)
}

// GetCertificate implements store.FarmingStore.
func (m *MockFarmingStore) GetCertificate(
	id farming.ProposalID,
) (*farming.PayoutCertificate, error) {
	args := m.Called(id)
	return args.Get(0).(*farming.PayoutCertificate), args.Error(1)
}

// RangeCertificates implements store.FarmingStore.
func (m *MockFarmingStore) RangeCertificates() (
	store.TypedIterator[*farming.PayoutCertificate],
	error,
) {
	args := m.Called()
	return args.Get(0).(store.TypedIterator[*farming.PayoutCertificate]),
		args.Error(1)
}

// DeleteCertificate implements store.FarmingStore.
func (m *MockFarmingStore) DeleteCertificate(
	txn store.Transaction,
	id farming.ProposalID,
) error {
	args := m.Called(txn, id)
	return args.Error(0)
}

type MockTransaction struct {
	mock.Mock
}

func (m *MockTransaction) Get(key []byte) ([]byte, io.Closer, error) {
	args := m.Called(key)
	return args.Get(0).([]byte), args.Get(1).(io.Closer), args.Error(2)
}

func (m *MockTransaction) Set(key []byte, value []byte) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *MockTransaction) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransaction) Delete(key []byte) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockTransaction) Abort() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransaction) NewIter(
	lowerBound []byte,
	upperBound []byte,
) (store.Iterator, error) {
	args := m.Called(lowerBound, upperBound)
	return args.Get(0).(store.Iterator), args.Error(1)
}

func (m *MockTransaction) DeleteRange(
	lowerBound []byte,
	upperBound []byte,
) error {
	args := m.Called(lowerBound, upperBound)
	return args.Error(0)
}

var _ store.FarmingStore = (*MockFarmingStore)(nil)
var _ store.Transaction = (*MockTransaction)(nil)
