package quorum

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Yoga07/safe-farming/types/farming"
)

// LedgerView is the part of a replica's ledger a signer consults before
// signing.
type LedgerView interface {
	Balance(account farming.AccountID) uint64
	IsApplied(id farming.ProposalID) bool
}

type signedProposal struct {
	proposal *farming.PayoutProposal
	share    *farming.SignatureShare
}

// Signer holds one key share of the signer set and signs proposals its own
// ledger view agrees with.
type Signer struct {
	logger *zap.Logger
	clock  clockwork.Clock
	key    farming.ThresholdSigner
	ledger LedgerView
	// How long past expiry a signed proposal stays reserved while it is
	// not applied. A certificate formed from the share is still accepted
	// by replicas for that long.
	retention time.Duration

	mu     sync.Mutex
	signed map[farming.ProposalID]*signedProposal
}

func NewSigner(
	logger *zap.Logger,
	clock clockwork.Clock,
	key farming.ThresholdSigner,
	ledger LedgerView,
	retention time.Duration,
) *Signer {
	return &Signer{
		logger:    logger.With(zap.Uint32("signer", key.Index())),
		clock:     clock,
		key:       key,
		ledger:    ledger,
		retention: retention,
		signed:    make(map[farming.ProposalID]*signedProposal),
	}
}

func (s *Signer) Index() uint32 {
	return s.key.Index()
}

// HandleProposal returns this signer's share for proposal, or ErrAbstain
// when its ledger view does not support the payout. A proposal signed
// before yields the same share again.
func (s *Signer) HandleProposal(
	proposal *farming.PayoutProposal,
) (*farming.SignatureShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()

	if prior, ok := s.signed[proposal.ID]; ok {
		if *prior.proposal == *proposal {
			return prior.share, nil
		}
		return nil, s.abstain(proposal, "conflicting proposal under a signed id")
	}

	if proposal.Amount == 0 {
		return nil, s.abstain(proposal, "zero amount")
	}
	if !s.clock.Now().Before(proposal.Expiry) {
		return nil, s.abstain(proposal, "expired")
	}
	if s.ledger.IsApplied(proposal.ID) {
		return nil, s.abstain(proposal, "already applied")
	}

	balance := s.ledger.Balance(proposal.Account)
	reserved := s.reservedLocked(proposal.Account)
	if reserved > balance || proposal.Amount > balance-reserved {
		s.logger.Debug(
			"balance does not cover proposal",
			zap.String("proposal", proposal.ID.String()),
			zap.Uint64("balance", balance),
			zap.Uint64("reserved", reserved),
			zap.Uint64("amount", proposal.Amount),
		)
		return nil, s.abstain(proposal, "insufficient balance")
	}

	partial, err := s.key.SignShare(proposal.Message())
	if err != nil {
		return nil, errors.Wrap(err, "handle proposal")
	}

	p := *proposal
	share := &farming.SignatureShare{
		ProposalID: proposal.ID,
		SignerID:   s.key.Index(),
		Partial:    partial,
	}
	s.signed[proposal.ID] = &signedProposal{proposal: &p, share: share}
	signerDecisions.WithLabelValues("signed").Inc()

	return share, nil
}

// Reject produces this signer's veto of proposal.
func (s *Signer) Reject(
	proposal *farming.PayoutProposal,
) (*farming.Rejection, error) {
	partial, err := s.key.SignShare(farming.RejectMessage(
		proposal.ID,
		proposal.Account,
		proposal.Amount,
		proposal.Expiry,
	))
	if err != nil {
		return nil, errors.Wrap(err, "reject")
	}
	signerDecisions.WithLabelValues("rejected").Inc()

	return &farming.Rejection{
		ProposalID: proposal.ID,
		SignerID:   s.key.Index(),
		Partial:    partial,
	}, nil
}

// Reserved returns the amount this signer has signed for account that is
// neither applied nor past its expiry plus retention.
func (s *Signer) Reserved(account farming.AccountID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()
	return s.reservedLocked(account)
}

func (s *Signer) abstain(proposal *farming.PayoutProposal, why string) error {
	signerDecisions.WithLabelValues("abstained").Inc()
	s.logger.Info(
		"abstaining from proposal",
		zap.String("proposal", proposal.ID.String()),
		zap.String("account", string(proposal.Account)),
		zap.String("reason", why),
	)
	return errors.Wrapf(farming.ErrAbstain, "handle proposal: %s", why)
}

func (s *Signer) reservedLocked(account farming.AccountID) uint64 {
	var reserved uint64
	for _, signed := range s.signed {
		if signed.proposal.Account == account {
			reserved += signed.proposal.Amount
		}
	}
	return reserved
}

// releaseLocked drops reservations for proposals that were applied or whose
// certificate can no longer be applied anywhere.
func (s *Signer) releaseLocked() {
	now := s.clock.Now()
	for id, signed := range s.signed {
		if s.ledger.IsApplied(id) ||
			now.After(signed.proposal.Expiry.Add(s.retention)) {
			delete(s.signed, id)
		}
	}
}
