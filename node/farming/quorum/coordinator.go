// Package quorum runs the threshold signing rounds that authorize payouts.
// A coordinator binds a proposal to an id and an expiry, broadcasts it to the
// signer set and counts verified shares until the threshold is met or the
// round expires.
package quorum

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Yoga07/safe-farming/types/farming"
)

// Size of each subscriber's outcome buffer.
const subscriberBuffer = 100

type round struct {
	proposal    *farming.PayoutProposal
	state       farming.ProposalState
	shares      map[uint32]*farming.SignatureShare
	vetoes      map[uint32]struct{}
	certificate *farming.PayoutCertificate
	timer       clockwork.Timer
	applied     bool
	closedAt    time.Time
}

// holdsReservation reports whether the round still binds part of its
// account's balance. An unapplied certificate stays reserved until its
// expiry plus retention, after which no replica accepts it.
func (r *round) holdsReservation(now time.Time, retention time.Duration) bool {
	switch r.state {
	case farming.ProposalStateProposed, farming.ProposalStateCollecting:
		return true
	case farming.ProposalStateCertified:
		if r.applied {
			return false
		}
		return retention <= 0 || !now.After(r.proposal.Expiry.Add(retention))
	}
	return false
}

// SequenceStore records the highest proposal sequence handed out so that ids
// are never reused across restarts.
type SequenceStore interface {
	SaveSequence(replica farming.ReplicaID, sequence uint64) error
}

type CoordinatorConfig struct {
	Replica farming.ReplicaID
	// How long a round collects shares.
	Expiry time.Duration
	// How long terminal rounds remain queryable.
	RoundRetention time.Duration
	// Authenticated rejections that terminate a round, zero disables vetoes.
	VetoThreshold int
	// How long past expiry an unapplied certificate keeps its reservation,
	// zero holds it until applied.
	AppliedRetention time.Duration
}

// Coordinator drives signing rounds for the proposals raised by one replica.
// All methods are safe for concurrent use; none blocks on the network except
// Propose, which hands the proposal to the broadcaster.
type Coordinator struct {
	logger      *zap.Logger
	clock       clockwork.Clock
	config      CoordinatorConfig
	verifier    farming.ThresholdVerifier
	broadcaster farming.Broadcaster
	sequences   SequenceStore

	mu          sync.Mutex
	sequence    uint64
	rounds      map[farming.ProposalID]*round
	subscribers map[string]chan *farming.ProposalOutcome
	listeners   []TransitionListener
	stopped     bool
}

func NewCoordinator(
	logger *zap.Logger,
	clock clockwork.Clock,
	config CoordinatorConfig,
	verifier farming.ThresholdVerifier,
	broadcaster farming.Broadcaster,
) *Coordinator {
	return &Coordinator{
		logger:      logger.With(zap.String("replica", string(config.Replica))),
		clock:       clock,
		config:      config,
		verifier:    verifier,
		broadcaster: broadcaster,
		rounds:      make(map[farming.ProposalID]*round),
		subscribers: make(map[string]chan *farming.ProposalOutcome),
	}
}

// WithSequenceStore persists every sequence before it is bound to a proposal.
func (c *Coordinator) WithSequenceStore(s SequenceStore) *Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequences = s
	return c
}

// RestoreSequence raises the sequence counter to at least sequence. It never
// lowers it.
func (c *Coordinator) RestoreSequence(sequence uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sequence > c.sequence {
		c.logger.Info(
			"restored proposal sequence",
			zap.Uint64("from", c.sequence),
			zap.Uint64("to", sequence),
		)
		c.sequence = sequence
	}
}

// Sequence returns the last sequence bound to a proposal.
func (c *Coordinator) Sequence() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequence
}

// AddListener registers a listener for round transitions.
func (c *Coordinator) AddListener(listener TransitionListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Subscribe returns a channel receiving the outcome of every round that
// reaches a terminal state. Outcomes are dropped for a subscriber whose
// buffer is full.
func (c *Coordinator) Subscribe(id string) <-chan *farming.ProposalOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan *farming.ProposalOutcome, subscriberBuffer)
	if old, ok := c.subscribers[id]; ok {
		close(old)
	}
	c.subscribers[id] = ch
	return ch
}

// Unsubscribe closes and removes a subscriber.
func (c *Coordinator) Unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.subscribers[id]; ok {
		close(ch)
		delete(c.subscribers, id)
	}
}

// Propose binds proposal to a fresh id and expiry, opens a round for it and
// broadcasts it to the signer set. The bound proposal is returned even when
// the broadcast fails; the round then stays open until it expires.
func (c *Coordinator) Propose(
	ctx context.Context,
	proposal *farming.PayoutProposal,
) (*farming.PayoutProposal, error) {
	if proposal.Amount == 0 {
		return nil, errors.Wrap(farming.ErrInvalidAmount, "propose")
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, errors.New("propose: coordinator stopped")
	}
	c.pruneLocked()

	sequence := c.sequence + 1
	if c.sequences != nil {
		if err := c.sequences.SaveSequence(c.config.Replica, sequence); err != nil {
			c.mu.Unlock()
			return nil, errors.Wrap(err, "propose")
		}
	}
	c.sequence = sequence
	bound := *proposal
	bound.ID = farming.ProposalID{Replica: c.config.Replica, Sequence: sequence}
	bound.Expiry = c.clock.Now().Add(c.config.Expiry)

	r := &round{
		proposal: &bound,
		state:    farming.ProposalStateProposed,
		shares:   make(map[uint32]*farming.SignatureShare),
		vetoes:   make(map[uint32]struct{}),
	}
	c.rounds[bound.ID] = r
	id := bound.ID
	r.timer = c.clock.AfterFunc(c.config.Expiry, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if r, ok := c.rounds[id]; ok {
			c.expireLocked(r)
		}
	})
	roundsStarted.Inc()
	openRounds.Inc()

	// Collect before broadcasting so shares from synchronous signers count.
	c.transitionLocked(r, EventBroadcast)
	c.mu.Unlock()

	c.logger.Info(
		"proposed payout",
		zap.String("proposal", id.String()),
		zap.String("account", string(bound.Account)),
		zap.Uint64("amount", bound.Amount),
		zap.Time("expiry", bound.Expiry),
	)

	out := bound
	if err := c.broadcaster.BroadcastProposal(ctx, &out); err != nil {
		c.logger.Warn(
			"broadcast of payout proposal failed, round stays open until expiry",
			zap.String("proposal", id.String()),
			zap.Error(err),
		)
		return &bound, errors.Wrap(err, "propose")
	}

	return &bound, nil
}

// SubmitShare counts a signer's share toward its round. At the threshold the
// certificate is formed and published to subscribers; shares arriving after
// certification are ignored.
func (c *Coordinator) SubmitShare(share *farming.SignatureShare) error {
	c.mu.Lock()
	r, err := c.openRoundLocked(share.ProposalID)
	if err != nil {
		c.mu.Unlock()
		sharesRefused.WithLabelValues(reason(err)).Inc()
		return errors.Wrap(err, "submit share")
	}
	if r.state == farming.ProposalStateCertified {
		c.mu.Unlock()
		sharesRefused.WithLabelValues("late").Inc()
		return nil
	}
	if _, ok := r.shares[share.SignerID]; ok {
		c.mu.Unlock()
		sharesRefused.WithLabelValues("duplicate").Inc()
		return errors.Wrapf(
			farming.ErrDuplicateShare,
			"submit share: signer %d",
			share.SignerID,
		)
	}
	message := r.proposal.Message()
	c.mu.Unlock()

	if err := c.verifier.VerifyShare(
		share.SignerID,
		message,
		share.Partial,
	); err != nil {
		sharesRefused.WithLabelValues("invalid").Inc()
		c.logger.Warn(
			"refused invalid signature share",
			zap.String("proposal", share.ProposalID.String()),
			zap.Uint32("signer", share.SignerID),
			zap.Error(err),
		)
		return errors.Wrap(err, "submit share")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// The round may have moved on while the share was verified.
	r, err = c.openRoundLocked(share.ProposalID)
	if err != nil {
		sharesRefused.WithLabelValues(reason(err)).Inc()
		return errors.Wrap(err, "submit share")
	}
	if r.state == farming.ProposalStateCertified {
		sharesRefused.WithLabelValues("late").Inc()
		return nil
	}
	if _, ok := r.shares[share.SignerID]; ok {
		sharesRefused.WithLabelValues("duplicate").Inc()
		return errors.Wrapf(
			farming.ErrDuplicateShare,
			"submit share: signer %d",
			share.SignerID,
		)
	}

	r.shares[share.SignerID] = share
	sharesAccepted.Inc()
	c.logger.Debug(
		"accepted signature share",
		zap.String("proposal", share.ProposalID.String()),
		zap.Uint32("signer", share.SignerID),
		zap.Int("shares", len(r.shares)),
		zap.Int("threshold", c.verifier.Threshold()),
	)

	if len(r.shares) < c.verifier.Threshold() {
		return nil
	}

	shares := make([]*farming.SignatureShare, 0, len(r.shares))
	for _, s := range r.shares {
		shares = append(shares, s)
	}
	cert, err := Aggregate(r.proposal, shares, c.verifier)
	if err != nil {
		c.logger.Error(
			"could not aggregate verified shares",
			zap.String("proposal", share.ProposalID.String()),
			zap.Error(err),
		)
		return errors.Wrap(err, "submit share")
	}

	r.certificate = cert
	c.transitionLocked(r, EventQuorumReached)
	c.logger.Info(
		"payout certified",
		zap.String("proposal", cert.ProposalID.String()),
		zap.String("account", string(cert.Account)),
		zap.Uint64("amount", cert.Amount),
	)
	return nil
}

// SubmitRejection counts a signer's authenticated veto. Vetoes are ignored
// unless a veto threshold is configured.
func (c *Coordinator) SubmitRejection(rejection *farming.Rejection) error {
	if c.config.VetoThreshold <= 0 {
		return nil
	}

	c.mu.Lock()
	r, err := c.openRoundLocked(rejection.ProposalID)
	if err != nil {
		c.mu.Unlock()
		return errors.Wrap(err, "submit rejection")
	}
	if r.state.Terminal() {
		c.mu.Unlock()
		return nil
	}
	if _, ok := r.vetoes[rejection.SignerID]; ok {
		c.mu.Unlock()
		return errors.Wrapf(
			farming.ErrDuplicateShare,
			"submit rejection: signer %d",
			rejection.SignerID,
		)
	}
	p := r.proposal
	message := farming.RejectMessage(p.ID, p.Account, p.Amount, p.Expiry)
	c.mu.Unlock()

	if err := c.verifier.VerifyShare(
		rejection.SignerID,
		message,
		rejection.Partial,
	); err != nil {
		return errors.Wrap(err, "submit rejection")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	r, err = c.openRoundLocked(rejection.ProposalID)
	if err != nil {
		return errors.Wrap(err, "submit rejection")
	}
	if r.state.Terminal() {
		return nil
	}
	r.vetoes[rejection.SignerID] = struct{}{}
	if len(r.vetoes) >= c.config.VetoThreshold {
		c.transitionLocked(r, EventVetoReached)
		c.logger.Info(
			"payout rejected by signers",
			zap.String("proposal", rejection.ProposalID.String()),
			zap.Int("vetoes", len(r.vetoes)),
		)
	}
	return nil
}

// Status returns the round's state, expiring it first when its deadline has
// passed.
func (c *Coordinator) Status(id farming.ProposalID) (farming.ProposalState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rounds[id]
	if !ok {
		return "", errors.Wrapf(farming.ErrUnknownProposal, "status: %s", id)
	}
	c.checkExpiryLocked(r)
	return r.state, nil
}

// Proposal returns the bound proposal of a known round.
func (c *Coordinator) Proposal(id farming.ProposalID) (*farming.PayoutProposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rounds[id]
	if !ok {
		return nil, errors.Wrapf(farming.ErrUnknownProposal, "proposal: %s", id)
	}
	p := *r.proposal
	return &p, nil
}

// Certificate returns the certificate of a certified round.
func (c *Coordinator) Certificate(
	id farming.ProposalID,
) (*farming.PayoutCertificate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rounds[id]
	if !ok {
		return nil, errors.Wrapf(farming.ErrUnknownProposal, "certificate: %s", id)
	}
	c.checkExpiryLocked(r)

	switch r.state {
	case farming.ProposalStateCertified:
		return r.certificate, nil
	case farming.ProposalStateExpired:
		return nil, errors.Wrapf(farming.ErrProposalExpired, "certificate: %s", id)
	case farming.ProposalStateRejected:
		return nil, errors.Wrapf(farming.ErrProposalRejected, "certificate: %s", id)
	default:
		return nil, errors.Wrapf(
			farming.ErrBelowThreshold,
			"certificate: %s has %d of %d shares",
			id,
			len(r.shares),
			c.verifier.Threshold(),
		)
	}
}

// Reserved returns the amount of account's balance bound to rounds that are
// still collecting or certified but not yet applied or past retention.
func (c *Coordinator) Reserved(account farming.AccountID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	var reserved uint64
	for _, r := range c.rounds {
		c.checkExpiryLocked(r)
		if r.proposal.Account == account &&
			r.holdsReservation(now, c.config.AppliedRetention) {
			reserved += r.proposal.Amount
		}
	}
	return reserved
}

// MarkApplied releases the reservation of a certified round once its
// certificate has been debited.
func (c *Coordinator) MarkApplied(id farming.ProposalID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.rounds[id]; ok {
		r.applied = true
	}
}

// Prune forgets terminal rounds older than the round retention.
func (c *Coordinator) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked()
}

// Stop cancels all expiry timers and closes subscriber channels.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	for _, r := range c.rounds {
		if r.timer != nil {
			r.timer.Stop()
		}
	}
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
}

func (c *Coordinator) openRoundLocked(id farming.ProposalID) (*round, error) {
	r, ok := c.rounds[id]
	if !ok {
		return nil, errors.Wrapf(farming.ErrUnknownProposal, "%s", id)
	}
	c.checkExpiryLocked(r)

	switch r.state {
	case farming.ProposalStateExpired:
		return nil, errors.Wrapf(farming.ErrProposalExpired, "%s", id)
	case farming.ProposalStateRejected:
		return nil, errors.Wrapf(farming.ErrProposalRejected, "%s", id)
	}
	return r, nil
}

func (c *Coordinator) checkExpiryLocked(r *round) {
	if !r.state.Terminal() && !c.clock.Now().Before(r.proposal.Expiry) {
		c.expireLocked(r)
	}
}

func (c *Coordinator) expireLocked(r *round) {
	if r.state.Terminal() {
		return
	}
	c.transitionLocked(r, EventExpiry)
	c.logger.Info(
		"payout proposal expired",
		zap.String("proposal", r.proposal.ID.String()),
		zap.Int("shares", len(r.shares)),
		zap.Int("threshold", c.verifier.Threshold()),
	)
}

func (c *Coordinator) transitionLocked(r *round, event Event) {
	from := r.state
	to, err := next(from, event)
	if err != nil {
		c.logger.Error(
			"invalid round transition",
			zap.String("proposal", r.proposal.ID.String()),
			zap.Error(err),
		)
		return
	}
	r.state = to

	for _, listener := range c.listeners {
		listener.OnTransition(r.proposal.ID, from, to, event)
	}

	if !to.Terminal() {
		return
	}

	r.closedAt = c.clock.Now()
	if r.timer != nil {
		r.timer.Stop()
	}
	openRounds.Dec()
	roundOutcomes.WithLabelValues(string(to)).Inc()

	outcome := &farming.ProposalOutcome{
		Proposal:    r.proposal,
		State:       to,
		Certificate: r.certificate,
	}
	for id, ch := range c.subscribers {
		select {
		case ch <- outcome:
		default:
			c.logger.Warn(
				"subscriber buffer full, dropping outcome",
				zap.String("subscriber", id),
				zap.String("proposal", r.proposal.ID.String()),
			)
		}
	}
}

func (c *Coordinator) pruneLocked() int {
	now := c.clock.Now()
	pruned := 0
	for id, r := range c.rounds {
		if r.state.Terminal() &&
			!r.holdsReservation(now, c.config.AppliedRetention) &&
			now.Sub(r.closedAt) > c.config.RoundRetention {
			delete(c.rounds, id)
			pruned++
		}
	}
	return pruned
}

func reason(err error) string {
	switch {
	case errors.Is(err, farming.ErrUnknownProposal):
		return "unknown"
	case errors.Is(err, farming.ErrProposalExpired):
		return "expired"
	case errors.Is(err, farming.ErrProposalRejected):
		return "rejected"
	}
	return "other"
}
