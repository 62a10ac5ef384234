package farming

import "github.com/pkg/errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateEvent      = errors.New("duplicate event")
	ErrInvalidShare        = errors.New("invalid signature share")
	ErrDuplicateShare      = errors.New("duplicate signature share")
	ErrProposalExpired     = errors.New("proposal expired")
	ErrProposalRejected    = errors.New("proposal rejected")
	ErrUnknownProposal     = errors.New("unknown proposal")
	ErrBelowThreshold      = errors.New("below signing threshold")
	ErrInvalidCertificate  = errors.New("invalid payout certificate")
	ErrCertificateStale    = errors.New("payout certificate past retention")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrExcessiveValue      = errors.New("value exceeds representable range")
	ErrAbstain             = errors.New("signer abstains")
	ErrInvalidData         = errors.New("invalid data")
	ErrAccountExists       = errors.New("account exists")
)
