package quorum

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/Yoga07/safe-farming/types/farming"
)

// Aggregate forms a certificate from shares over proposal. Shares for other
// proposals, repeated signers and shares that fail verification are ignored;
// with fewer than the threshold of distinct valid shares it returns
// ErrBelowThreshold. Exactly the threshold lowest signer ids are combined.
func Aggregate(
	proposal *farming.PayoutProposal,
	shares []*farming.SignatureShare,
	verifier farming.ThresholdVerifier,
) (*farming.PayoutCertificate, error) {
	start := time.Now()
	defer func() {
		aggregationDuration.Observe(time.Since(start).Seconds())
	}()

	message := proposal.Message()

	sorted := make([]*farming.SignatureShare, 0, len(shares))
	for _, share := range shares {
		if share != nil && share.ProposalID == proposal.ID {
			sorted = append(sorted, share)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SignerID < sorted[j].SignerID
	})

	valid := make(map[uint32][]byte, verifier.Threshold())
	for _, share := range sorted {
		if len(valid) == verifier.Threshold() {
			break
		}
		if _, ok := valid[share.SignerID]; ok {
			continue
		}
		if err := verifier.VerifyShare(share.SignerID, message, share.Partial); err != nil {
			continue
		}
		valid[share.SignerID] = share.Partial
	}

	if len(valid) < verifier.Threshold() {
		return nil, errors.Wrapf(
			farming.ErrBelowThreshold,
			"aggregate: %d of %d valid shares",
			len(valid),
			verifier.Threshold(),
		)
	}

	signature, err := verifier.Combine(message, valid)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate")
	}

	return &farming.PayoutCertificate{
		ProposalID: proposal.ID,
		Account:    proposal.Account,
		Amount:     proposal.Amount,
		Expiry:     proposal.Expiry,
		Signature:  signature,
	}, nil
}
