package utils

import (
	"io"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Yoga07/safe-farming/config"
	"github.com/Yoga07/safe-farming/node/crypto/threshold"
	"github.com/Yoga07/safe-farming/node/farming"
	"github.com/Yoga07/safe-farming/node/farming/quorum"
	"github.com/Yoga07/safe-farming/node/store"
)

// Replica is a read view of a replica's persisted state. The node must not
// be running while it is open.
type Replica struct {
	Engine *farming.Engine
	Store  *store.PebbleFarmingStore
	closer io.Closer
}

func (r *Replica) Close() error {
	return r.closer.Close()
}

// LoadVerifier parses the quorum's public key set from cfg.
func LoadVerifier(cfg *config.Config) (*threshold.PublicKeySet, error) {
	q := cfg.Farming.Quorum
	if len(q.Members) == 0 {
		return nil, errors.New("load verifier: no quorum members configured")
	}
	set, err := threshold.ParsePublicKeySet(q.Threshold, q.MasterPublicKey, q.Members)
	return set, errors.Wrap(err, "load verifier")
}

// OpenReplica restores the persisted state of the configured replica.
func OpenReplica(cfg *config.Config) (*Replica, error) {
	verifier, err := LoadVerifier(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open replica")
	}

	logger := zap.NewNop()
	db := store.NewPebbleDB(logger, cfg.DB)
	farmingStore := store.NewPebbleFarmingStore(db, logger)

	engine, err := farming.NewEngine(
		logger,
		clockwork.NewRealClock(),
		cfg.Farming,
		verifier,
		quorum.NewLocalNetwork(logger, nil, false),
		nil,
		farmingStore,
	)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "open replica")
	}

	if err := engine.Load(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "open replica")
	}

	return &Replica{Engine: engine, Store: farmingStore, closer: db}, nil
}
