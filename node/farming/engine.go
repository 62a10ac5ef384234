// Package farming ties the reward state of one replica together: it credits
// reward events at the current rate, exchanges replica snapshots, raises
// payout proposals and applies the certificates the signer quorum produces.
package farming

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Yoga07/safe-farming/config"
	"github.com/Yoga07/safe-farming/node/farming/ledger"
	"github.com/Yoga07/safe-farming/node/farming/quorum"
	"github.com/Yoga07/safe-farming/node/farming/rate"
	ftypes "github.com/Yoga07/safe-farming/types/farming"
	"github.com/Yoga07/safe-farming/types/store"
)

const outcomeSubscriber = "engine"

// sequenceStore persists the coordinator's proposal sequence in its own
// transaction.
type sequenceStore struct {
	store store.FarmingStore
}

func (s sequenceStore) SaveSequence(
	replica ftypes.ReplicaID,
	sequence uint64,
) error {
	txn, err := s.store.NewTransaction()
	if err != nil {
		return errors.Wrap(err, "save sequence")
	}
	if err := s.store.PutSequence(txn, replica, sequence); err != nil {
		txn.Abort()
		return errors.Wrap(err, "save sequence")
	}
	return errors.Wrap(txn.Commit(), "save sequence")
}

// Engine is a farming replica. All methods are safe for concurrent use.
type Engine struct {
	logger   *zap.Logger
	clock    clockwork.Clock
	config   *config.FarmingConfig
	replica  ftypes.ReplicaID
	verifier ftypes.ThresholdVerifier
	store    store.FarmingStore

	usage       *ledger.UsageCounter
	ledger      *ledger.RewardLedger
	curve       rate.Curve
	rewards     *rate.StorageRewards
	coordinator *quorum.Coordinator
	signer      *quorum.Signer

	// Serializes event handling and proposals, each of which reads state
	// before writing it.
	eventMu   sync.Mutex
	proposeMu sync.Mutex
	persistMu sync.Mutex

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ quorum.ShareSink = (*Engine)(nil)

// NewEngine creates a replica. key is nil when this process holds no key
// share, farmingStore is nil when state is not persisted.
func NewEngine(
	logger *zap.Logger,
	clock clockwork.Clock,
	cfg *config.FarmingConfig,
	verifier ftypes.ThresholdVerifier,
	broadcaster ftypes.Broadcaster,
	key ftypes.ThresholdSigner,
	farmingStore store.FarmingStore,
) (*Engine, error) {
	curve, err := rate.NewCurve(cfg.Capacity, cfg.RateCurve)
	if err != nil {
		return nil, errors.Wrap(err, "new engine")
	}

	replica := ftypes.ReplicaID(cfg.ReplicaId)
	logger = logger.With(zap.String("replica", cfg.ReplicaId))

	e := &Engine{
		logger:   logger,
		clock:    clock,
		config:   cfg,
		replica:  replica,
		verifier: verifier,
		store:    farmingStore,
		usage:    ledger.NewUsageCounter(),
		ledger: ledger.NewRewardLedger(
			logger.Named("ledger"),
			clock,
			cfg.AppliedRetention,
		),
		curve:   curve,
		rewards: rate.NewStorageRewards(cfg.BaseCost),
	}

	e.coordinator = quorum.NewCoordinator(
		logger.Named("quorum"),
		clock,
		quorum.CoordinatorConfig{
			Replica:          replica,
			Expiry:           cfg.ProposalExpiry,
			RoundRetention:   cfg.RoundRetention,
			VetoThreshold:    cfg.Quorum.VetoThreshold,
			AppliedRetention: cfg.AppliedRetention,
		},
		verifier,
		broadcaster,
	)
	if farmingStore != nil {
		e.coordinator.WithSequenceStore(sequenceStore{store: farmingStore})
	}

	if key != nil {
		e.signer = quorum.NewSigner(
			logger.Named("signer"),
			clock,
			key,
			e.ledger,
			cfg.AppliedRetention,
		)
	}

	return e, nil
}

// Ledger exposes the replica's ledger as seen by signers.
func (e *Engine) Ledger() quorum.LedgerView {
	return e.ledger
}

// Signer returns the local signer, nil when this process holds no key share.
func (e *Engine) Signer() *quorum.Signer {
	return e.signer
}

// CurrentRate returns the reward rate at the replica's view of total usage.
func (e *Engine) CurrentRate() decimal.Decimal {
	r := e.curve.Rate(e.usage.Total())
	currentRate.Set(r.InexactFloat64())
	return r
}

func (e *Engine) TotalUsage() uint64 {
	return e.usage.Total()
}

func (e *Engine) Balance(account ftypes.AccountID) uint64 {
	return e.ledger.Balance(account)
}

// Available returns the balance not bound to open payout rounds.
func (e *Engine) Available(account ftypes.AccountID) uint64 {
	balance := e.ledger.Balance(account)
	reserved := e.coordinator.Reserved(account)
	if reserved >= balance {
		return 0
	}
	return balance - reserved
}

func (e *Engine) Accounts() []ftypes.AccountID {
	return e.ledger.Accounts()
}

// HandleRewardEvent credits the event's account for the bytes it stored and
// records them in this replica's usage slot. A repeated event credits
// nothing and is not an error.
func (e *Engine) HandleRewardEvent(event *ftypes.RewardEvent) (uint64, error) {
	e.eventMu.Lock()
	defer e.eventMu.Unlock()

	if e.ledger.HasEvent(event.ID) {
		rewardEventsTotal.WithLabelValues("duplicate").Inc()
		e.logger.Debug(
			"ignoring duplicate reward event",
			zap.String("event", event.ID.String()),
		)
		return 0, nil
	}

	r := e.CurrentRate()
	if !event.ObservedRate.IsZero() {
		r = decimal.Min(event.ObservedRate, e.curve.MaxRate())
	}

	cost, err := e.rewards.WorkCost(event.ByteSize)
	if err != nil {
		rewardEventsTotal.WithLabelValues("error").Inc()
		return 0, errors.Wrap(err, "handle reward event")
	}
	reward, err := e.rewards.TotalReward(r, cost)
	if err != nil {
		rewardEventsTotal.WithLabelValues("error").Inc()
		return 0, errors.Wrap(err, "handle reward event")
	}

	if err := e.ledger.Accumulate(event, reward, e.replica); err != nil {
		if errors.Is(err, ftypes.ErrDuplicateEvent) {
			rewardEventsTotal.WithLabelValues("duplicate").Inc()
			return 0, nil
		}
		rewardEventsTotal.WithLabelValues("error").Inc()
		return 0, errors.Wrap(err, "handle reward event")
	}

	if err := e.usage.Record(e.replica, event.ByteSize); err != nil {
		e.logger.Error(
			"could not record usage for credited event",
			zap.String("event", event.ID.String()),
			zap.Error(err),
		)
	}
	totalUsage.Set(float64(e.usage.Total()))
	rewardEventsTotal.WithLabelValues("credited").Inc()

	e.logger.Debug(
		"credited reward event",
		zap.String("event", event.ID.String()),
		zap.String("account", string(event.Account)),
		zap.Uint64("bytes", event.ByteSize),
		zap.String("rate", r.String()),
		zap.Uint64("reward", reward),
	)

	return reward, nil
}

// AddAccount registers account with work already done for it, so that it
// takes part in shared rewards before it has earned any.
func (e *Engine) AddAccount(account ftypes.AccountID, work uint64) error {
	e.eventMu.Lock()
	defer e.eventMu.Unlock()

	if err := e.ledger.AddAccount(account, work, e.replica); err != nil {
		return errors.Wrap(err, "add account")
	}
	e.logger.Info(
		"added account",
		zap.String("account", string(account)),
		zap.Uint64("work", work),
	)
	return nil
}

// HandleSharedReward prices numBytes at the current rate and splits the
// reward between all known accounts in proportion to the work recorded for
// them.
func (e *Engine) HandleSharedReward(
	id ftypes.EventID,
	numBytes uint64,
) (map[ftypes.AccountID]uint64, error) {
	e.eventMu.Lock()
	defer e.eventMu.Unlock()

	if e.ledger.HasEvent(id) {
		rewardEventsTotal.WithLabelValues("duplicate").Inc()
		return nil, nil
	}

	cost, err := e.rewards.WorkCost(numBytes)
	if err != nil {
		return nil, errors.Wrap(err, "handle shared reward")
	}
	total, err := e.rewards.TotalReward(e.CurrentRate(), cost)
	if err != nil {
		return nil, errors.Wrap(err, "handle shared reward")
	}

	shares, err := rate.Distribute(total, e.ledger.Work())
	if err != nil {
		return nil, errors.Wrap(err, "handle shared reward")
	}

	if err := e.ledger.Distribute(id, shares, e.replica); err != nil {
		if errors.Is(err, ftypes.ErrDuplicateEvent) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "handle shared reward")
	}

	if err := e.usage.Record(e.replica, numBytes); err != nil {
		e.logger.Error(
			"could not record usage for shared reward",
			zap.String("event", id.String()),
			zap.Error(err),
		)
	}
	totalUsage.Set(float64(e.usage.Total()))
	rewardEventsTotal.WithLabelValues("credited").Inc()

	return shares, nil
}

// ProposePayout opens a signing round releasing amount from account. The
// amount must be covered by the balance left after open rounds.
func (e *Engine) ProposePayout(
	ctx context.Context,
	account ftypes.AccountID,
	amount uint64,
) (*ftypes.PayoutProposal, error) {
	e.proposeMu.Lock()
	defer e.proposeMu.Unlock()

	proposal, err := e.ledger.ProposeDebitWithReserve(
		account,
		amount,
		e.coordinator.Reserved(account),
	)
	if err != nil {
		return nil, errors.Wrap(err, "propose payout")
	}

	bound, err := e.coordinator.Propose(ctx, proposal)
	if bound != nil {
		payoutsProposed.Inc()
	}
	if err != nil {
		return bound, errors.Wrap(err, "propose payout")
	}
	return bound, nil
}

// ProposeClaim proposes paying out the whole available balance of account.
func (e *Engine) ProposeClaim(
	ctx context.Context,
	account ftypes.AccountID,
) (*ftypes.PayoutProposal, error) {
	available := e.Available(account)
	if available == 0 {
		return nil, errors.Wrapf(
			ftypes.ErrInsufficientBalance,
			"propose claim: nothing available for %s",
			account,
		)
	}
	return e.ProposePayout(ctx, account, available)
}

// HandleProposal returns the local signer's share for a proposal raised by
// another replica.
func (e *Engine) HandleProposal(
	proposal *ftypes.PayoutProposal,
) (*ftypes.SignatureShare, error) {
	if e.signer == nil {
		return nil, errors.New("handle proposal: replica holds no key share")
	}
	share, err := e.signer.HandleProposal(proposal)
	return share, errors.Wrap(err, "handle proposal")
}

func (e *Engine) SubmitShare(share *ftypes.SignatureShare) error {
	return e.coordinator.SubmitShare(share)
}

func (e *Engine) SubmitRejection(rejection *ftypes.Rejection) error {
	return e.coordinator.SubmitRejection(rejection)
}

func (e *Engine) Status(id ftypes.ProposalID) (ftypes.ProposalState, error) {
	return e.coordinator.Status(id)
}

func (e *Engine) Certificate(
	id ftypes.ProposalID,
) (*ftypes.PayoutCertificate, error) {
	return e.coordinator.Certificate(id)
}

// Subscribe returns a channel of terminal round outcomes, used by external
// settlement.
func (e *Engine) Subscribe(id string) <-chan *ftypes.ProposalOutcome {
	return e.coordinator.Subscribe(id)
}

func (e *Engine) Unsubscribe(id string) {
	e.coordinator.Unsubscribe(id)
}

// ApplyCertificate verifies cert against the quorum's master key and debits
// its account once. It reports whether this call performed the debit.
func (e *Engine) ApplyCertificate(cert *ftypes.PayoutCertificate) (bool, error) {
	if err := e.verifier.Verify(cert.Message(), cert.Signature); err != nil {
		certificatesHandled.WithLabelValues("invalid").Inc()
		return false, errors.Wrap(err, "apply certificate")
	}

	applied, err := e.ledger.ApplyCertificate(cert, e.replica)
	if err != nil {
		certificatesHandled.WithLabelValues("refused").Inc()
		return false, errors.Wrap(err, "apply certificate")
	}
	e.coordinator.MarkApplied(cert.ProposalID)

	if !applied {
		certificatesHandled.WithLabelValues("replayed").Inc()
		return false, nil
	}
	certificatesHandled.WithLabelValues("applied").Inc()

	if e.store != nil {
		if err := e.persistCertificate(cert); err != nil {
			e.logger.Error(
				"could not persist applied certificate",
				zap.String("proposal", cert.ProposalID.String()),
				zap.Error(err),
			)
		}
	}

	return true, nil
}

// Snapshot encodes the replica's usage and ledger for exchange with peers.
func (e *Engine) Snapshot() ([]byte, error) {
	state := &ReplicaState{
		Replica: e.replica,
		Usage:   e.usage,
		Ledger:  e.ledger,
	}
	data, err := state.ToCanonicalBytes()
	if err != nil {
		return nil, errors.Wrap(err, "snapshot")
	}
	snapshotSize.Observe(float64(len(data)))
	return data, nil
}

// MergeSnapshot joins a peer's snapshot into local state. Merging the same
// snapshot again changes nothing.
func (e *Engine) MergeSnapshot(data []byte) error {
	state := &ReplicaState{
		Usage:  ledger.NewUsageCounter(),
		Ledger: ledger.NewRewardLedger(zap.NewNop(), e.clock, e.config.AppliedRetention),
	}
	if err := state.FromCanonicalBytes(data); err != nil {
		snapshotsMerged.WithLabelValues("invalid").Inc()
		return errors.Wrap(err, "merge snapshot")
	}

	e.usage.Merge(state.Usage)
	e.ledger.Merge(state.Ledger)
	e.coordinator.RestoreSequence(e.ledger.LastSequence(e.replica))
	totalUsage.Set(float64(e.usage.Total()))
	snapshotsMerged.WithLabelValues("merged").Inc()

	e.logger.Debug(
		"merged replica snapshot",
		zap.String("from", string(state.Replica)),
		zap.Uint64("total_usage", e.usage.Total()),
	)
	return nil
}

// Load merges the last persisted snapshot of this replica, if any, and
// resumes proposal ids after the highest one stored or applied.
func (e *Engine) Load() error {
	if e.store == nil {
		return nil
	}

	data, err := e.store.GetSnapshot(e.replica)
	switch {
	case errors.Is(err, store.ErrNotFound):
		e.logger.Info("no persisted state, starting empty")
	case err != nil:
		return errors.Wrap(err, "load")
	default:
		if err := e.MergeSnapshot(data); err != nil {
			return errors.Wrap(err, "load")
		}
		e.logger.Info(
			"restored persisted state",
			zap.Int("accounts", len(e.ledger.Accounts())),
			zap.Uint64("total_usage", e.usage.Total()),
		)
	}

	sequence, err := e.store.GetSequence(e.replica)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return errors.Wrap(err, "load")
	}
	e.coordinator.RestoreSequence(
		max(sequence, e.ledger.LastSequence(e.replica)),
	)
	return nil
}

// Persist writes the current snapshot to the store.
func (e *Engine) Persist() error {
	if e.store == nil {
		return nil
	}

	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	data, err := e.Snapshot()
	if err != nil {
		return errors.Wrap(err, "persist")
	}

	txn, err := e.store.NewTransaction()
	if err != nil {
		return errors.Wrap(err, "persist")
	}
	if err := e.store.PutSnapshot(txn, e.replica, data); err != nil {
		txn.Abort()
		return errors.Wrap(err, "persist")
	}
	return errors.Wrap(txn.Commit(), "persist")
}

func (e *Engine) persistCertificate(cert *ftypes.PayoutCertificate) error {
	txn, err := e.store.NewTransaction()
	if err != nil {
		return err
	}
	if err := e.store.PutCertificate(txn, cert); err != nil {
		txn.Abort()
		return err
	}
	return txn.Commit()
}

// Start applies certified payouts as they are formed, unless auto apply is
// disabled, and persists and prunes state every snapshot interval.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.running = true

	outcomes := e.coordinator.Subscribe(outcomeSubscriber)

	e.wg.Add(2)
	go e.processOutcomes(outcomes)
	go e.maintain()

	e.logger.Info(
		"farming engine started",
		zap.Uint64("capacity", e.config.Capacity),
		zap.String("curve", e.config.RateCurve.Shape),
		zap.Int("threshold", e.verifier.Threshold()),
		zap.Bool("signer", e.signer != nil),
	)
	return nil
}

// Stop halts background work, closes subscriber channels and persists the
// final state.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	e.coordinator.Stop()

	if err := e.Persist(); err != nil {
		return errors.Wrap(err, "stop")
	}
	e.logger.Info("farming engine stopped")
	return nil
}

func (e *Engine) processOutcomes(outcomes <-chan *ftypes.ProposalOutcome) {
	defer e.wg.Done()
	defer e.coordinator.Unsubscribe(outcomeSubscriber)

	for {
		select {
		case <-e.ctx.Done():
			return
		case outcome, ok := <-outcomes:
			if !ok {
				return
			}
			if outcome.State != ftypes.ProposalStateCertified ||
				e.config.DisableAutoApply {
				continue
			}

			if _, err := e.ApplyCertificate(outcome.Certificate); err != nil {
				e.logger.Warn(
					"could not apply certified payout",
					zap.String("proposal", outcome.Proposal.ID.String()),
					zap.Error(err),
				)
			}
		}
	}
}

func (e *Engine) maintain() {
	defer e.wg.Done()

	ticker := e.clock.NewTicker(e.config.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.Chan():
			if err := e.Persist(); err != nil {
				e.logger.Error("could not persist state", zap.Error(err))
			}
			prunedIds := e.ledger.Prune()
			prunedRounds := e.coordinator.Prune()
			if prunedIds > 0 || prunedRounds > 0 {
				e.logger.Debug(
					"pruned expired state",
					zap.Int("applied_ids", prunedIds),
					zap.Int("rounds", prunedRounds),
				)
			}
		}
	}
}
