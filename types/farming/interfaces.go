package farming

import "context"

// ThresholdVerifier checks partial and aggregate signatures of a t-of-n
// signer set. Signer ids run from 1 to Size().
type ThresholdVerifier interface {
	Threshold() int
	Size() int
	VerifyShare(signer uint32, message []byte, partial []byte) error
	Combine(message []byte, partials map[uint32][]byte) ([]byte, error)
	Verify(message []byte, signature []byte) error
}

// ThresholdSigner holds one secret key share of the signer set.
type ThresholdSigner interface {
	Index() uint32
	SignShare(message []byte) ([]byte, error)
}

// Broadcaster delivers proposals to the signer set. Shares come back through
// the coordinator's SubmitShare.
type Broadcaster interface {
	BroadcastProposal(ctx context.Context, proposal *PayoutProposal) error
}
