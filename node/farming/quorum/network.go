package quorum

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Yoga07/safe-farming/types/farming"
)

// ShareSink receives the shares and vetoes produced for a broadcast
// proposal.
type ShareSink interface {
	SubmitShare(share *farming.SignatureShare) error
	SubmitRejection(rejection *farming.Rejection) error
}

// LocalNetwork is an in-process Broadcaster delivering proposals to signers
// running in the same process.
type LocalNetwork struct {
	logger *zap.Logger
	// Abstaining signers send a veto instead of staying silent.
	veto bool

	mu      sync.RWMutex
	signers []*Signer
	sink    ShareSink
}

var _ farming.Broadcaster = (*LocalNetwork)(nil)

func NewLocalNetwork(
	logger *zap.Logger,
	signers []*Signer,
	veto bool,
) *LocalNetwork {
	return &LocalNetwork{
		logger:  logger,
		signers: signers,
		veto:    veto,
	}
}

// AddSigner adds a signer to receive future proposals.
func (n *LocalNetwork) AddSigner(signer *Signer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signers = append(n.signers, signer)
}

// Attach sets where produced shares are delivered.
func (n *LocalNetwork) Attach(sink ShareSink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sink = sink
}

// BroadcastProposal hands proposal to every signer concurrently and submits
// the resulting shares. Abstentions and refused shares are not errors.
func (n *LocalNetwork) BroadcastProposal(
	ctx context.Context,
	proposal *farming.PayoutProposal,
) error {
	n.mu.RLock()
	sink := n.sink
	signers := n.signers
	n.mu.RUnlock()
	if sink == nil {
		return errors.New("broadcast proposal: no share sink attached")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, signer := range signers {
		signer := signer
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			share, err := signer.HandleProposal(proposal)
			if errors.Is(err, farming.ErrAbstain) {
				if n.veto {
					return n.reject(sink, signer, proposal)
				}
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "signer %d", signer.Index())
			}

			if err := sink.SubmitShare(share); err != nil {
				n.logger.Debug(
					"share not counted",
					zap.String("proposal", proposal.ID.String()),
					zap.Uint32("signer", signer.Index()),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	return errors.Wrap(g.Wait(), "broadcast proposal")
}

func (n *LocalNetwork) reject(
	sink ShareSink,
	signer *Signer,
	proposal *farming.PayoutProposal,
) error {
	rejection, err := signer.Reject(proposal)
	if err != nil {
		return errors.Wrapf(err, "signer %d", signer.Index())
	}
	if err := sink.SubmitRejection(rejection); err != nil {
		n.logger.Debug(
			"rejection not counted",
			zap.String("proposal", proposal.ID.String()),
			zap.Uint32("signer", signer.Index()),
			zap.Error(err),
		)
	}
	return nil
}
