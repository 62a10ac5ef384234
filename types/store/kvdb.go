package store

import (
	"io"

	"github.com/pkg/errors"
)

var (
	ErrNotFound    = errors.New("item not found")
	ErrInvalidData = errors.New("invalid data")
)

// KVDB is an ordered key-value store.
type KVDB interface {
	Get(key []byte) ([]byte, io.Closer, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewBatch(indexed bool) Transaction
	NewIter(lowerBound []byte, upperBound []byte) (Iterator, error)
	DeleteRange(start, end []byte) error
	Compact(start, end []byte, parallelize bool) error
	CompactAll() error
	Close() error
}

type Transaction interface {
	Get(key []byte) ([]byte, io.Closer, error)
	Set(key []byte, value []byte) error
	Commit() error
	Delete(key []byte) error
	Abort() error
	NewIter(lowerBound []byte, upperBound []byte) (Iterator, error)
	DeleteRange(lowerBound []byte, upperBound []byte) error
}
