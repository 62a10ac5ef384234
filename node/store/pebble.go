package store

import (
	"io"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Yoga07/safe-farming/config"
	"github.com/Yoga07/safe-farming/types/store"
)

type PebbleDB struct {
	config *config.DBConfig
	db     *pebble.DB
	write  *pebble.WriteOptions
}

// NewPebbleDB opens the store at config.Path, creating it when missing. With
// InMemoryDONOTUSE set nothing touches the disk.
func NewPebbleDB(logger *zap.Logger, config *config.DBConfig) *PebbleDB {
	opts := &pebble.Options{}
	if config.InMemoryDONOTUSE {
		logger.Warn("using in-memory store, state will not survive restarts")
		opts.FS = vfs.NewMem()
	} else if _, err := os.Stat(config.Path); err == nil {
		logger.Info("store found", zap.String("path", config.Path))
	} else if os.IsNotExist(err) {
		logger.Warn("store not found, creating", zap.String("path", config.Path))
	} else {
		logger.Error(
			"could not stat store path",
			zap.String("path", config.Path),
			zap.Error(err),
		)
	}

	db, err := pebble.Open(config.Path, opts)
	if err != nil {
		logger.Error("could not open store", zap.Error(err))
		panic(err)
	}

	return &PebbleDB{
		config: config,
		db:     db,
		write:  &pebble.WriteOptions{Sync: config.SyncWrites},
	}
}

func (p *PebbleDB) Get(key []byte) ([]byte, io.Closer, error) {
	return p.db.Get(key)
}

func (p *PebbleDB) Set(key, value []byte) error {
	return p.db.Set(key, value, p.write)
}

func (p *PebbleDB) Delete(key []byte) error {
	return p.db.Delete(key, p.write)
}

func (p *PebbleDB) NewBatch(indexed bool) store.Transaction {
	if indexed {
		return &PebbleTransaction{
			b:     p.db.NewIndexedBatch(),
			write: p.write,
		}
	} else {
		return &PebbleTransaction{
			b:     p.db.NewBatch(),
			write: p.write,
		}
	}
}

func (p *PebbleDB) NewIter(lowerBound []byte, upperBound []byte) (
	store.Iterator,
	error,
) {
	return p.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
}

func (p *PebbleDB) Compact(start, end []byte, parallelize bool) error {
	return p.db.Compact(start, end, parallelize)
}

func (p *PebbleDB) Close() error {
	return p.db.Close()
}

func (p *PebbleDB) DeleteRange(start, end []byte) error {
	return p.db.DeleteRange(start, end, p.write)
}

func (p *PebbleDB) CompactAll() error {
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return errors.Wrap(err, "compact all")
	}

	var first, last []byte
	if iter.First() {
		first = append(first, iter.Key()...)
	}
	if iter.Last() {
		last = append(last, iter.Key()...)
	}
	if err := iter.Close(); err != nil {
		return errors.Wrap(err, "compact all")
	}

	if first == nil {
		return nil
	}

	// Compact's end bound is exclusive.
	last = append(last, 0xff)
	if err := p.Compact(first, last, false); err != nil {
		return errors.Wrap(err, "compact all")
	}

	return nil
}

var _ store.KVDB = (*PebbleDB)(nil)

type PebbleTransaction struct {
	b     *pebble.Batch
	write *pebble.WriteOptions
}

func (t *PebbleTransaction) Get(key []byte) ([]byte, io.Closer, error) {
	return t.b.Get(key)
}

func (t *PebbleTransaction) Set(key []byte, value []byte) error {
	return t.b.Set(key, value, t.write)
}

func (t *PebbleTransaction) Commit() error {
	return t.b.Commit(t.write)
}

func (t *PebbleTransaction) Delete(key []byte) error {
	return t.b.Delete(key, t.write)
}

func (t *PebbleTransaction) Abort() error {
	return t.b.Close()
}

func (t *PebbleTransaction) NewIter(lowerBound []byte, upperBound []byte) (
	store.Iterator,
	error,
) {
	return t.b.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
}

func (t *PebbleTransaction) DeleteRange(
	lowerBound []byte,
	upperBound []byte,
) error {
	return t.b.DeleteRange(lowerBound, upperBound, t.write)
}

var _ store.Transaction = (*PebbleTransaction)(nil)
