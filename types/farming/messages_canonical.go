package farming

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func (e *RewardEvent) ToCanonicalBytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	// Write type prefix
	if err := WriteTypePrefix(buf, RewardEventType); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write id
	if _, err := buf.Write(e.ID[:]); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write account
	if err := WriteBytes(buf, []byte(e.Account)); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write byte_size
	if err := WriteUint64(buf, e.ByteSize); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write observed_rate
	if err := WriteBytes(buf, []byte(e.ObservedRate.String())); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	return buf.Bytes(), nil
}

func (e *RewardEvent) FromCanonicalBytes(data []byte) error {
	buf := bytes.NewBuffer(data)

	if err := ReadTypePrefix(buf, RewardEventType); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	if _, err := io.ReadFull(buf, e.ID[:]); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	account, err := ReadBytes(buf)
	if err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}
	e.Account = AccountID(account)

	if e.ByteSize, err = ReadUint64(buf); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	rate, err := ReadBytes(buf)
	if err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}
	if e.ObservedRate, err = decimal.NewFromString(string(rate)); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	return nil
}

func (p *PayoutProposal) ToCanonicalBytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	// Write type prefix
	if err := WriteTypePrefix(buf, PayoutProposalType); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write id
	if err := WriteProposalID(buf, p.ID); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write account
	if err := WriteBytes(buf, []byte(p.Account)); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write amount and snapshot
	if err := WriteUint64(buf, p.Amount); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}
	if err := WriteUint64(buf, p.Snapshot); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write expiry
	if err := WriteTime(buf, p.Expiry); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	return buf.Bytes(), nil
}

func (p *PayoutProposal) FromCanonicalBytes(data []byte) error {
	buf := bytes.NewBuffer(data)

	if err := ReadTypePrefix(buf, PayoutProposalType); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	var err error
	if p.ID, err = ReadProposalID(buf); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	account, err := ReadBytes(buf)
	if err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}
	p.Account = AccountID(account)

	if p.Amount, err = ReadUint64(buf); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}
	if p.Snapshot, err = ReadUint64(buf); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	if p.Expiry, err = ReadTime(buf); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	return nil
}

func (s *SignatureShare) ToCanonicalBytes() ([]byte, error) {
	return partialToCanonicalBytes(
		SignatureShareType,
		s.ProposalID,
		s.SignerID,
		s.Partial,
	)
}

func (s *SignatureShare) FromCanonicalBytes(data []byte) error {
	var err error
	s.ProposalID, s.SignerID, s.Partial, err = partialFromCanonicalBytes(
		SignatureShareType,
		data,
	)
	return err
}

func (r *Rejection) ToCanonicalBytes() ([]byte, error) {
	return partialToCanonicalBytes(
		RejectionType,
		r.ProposalID,
		r.SignerID,
		r.Partial,
	)
}

func (r *Rejection) FromCanonicalBytes(data []byte) error {
	var err error
	r.ProposalID, r.SignerID, r.Partial, err = partialFromCanonicalBytes(
		RejectionType,
		data,
	)
	return err
}

func partialToCanonicalBytes(
	typePrefix uint32,
	id ProposalID,
	signer uint32,
	partial []byte,
) ([]byte, error) {
	buf := new(bytes.Buffer)

	// Write type prefix
	if err := WriteTypePrefix(buf, typePrefix); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write proposal_id
	if err := WriteProposalID(buf, id); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write signer_id
	if err := WriteCount(buf, int(signer)); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write partial
	if err := WriteBytes(buf, partial); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	return buf.Bytes(), nil
}

func partialFromCanonicalBytes(
	typePrefix uint32,
	data []byte,
) (ProposalID, uint32, []byte, error) {
	buf := bytes.NewBuffer(data)

	if err := ReadTypePrefix(buf, typePrefix); err != nil {
		return ProposalID{}, 0, nil, errors.Wrap(err, "from canonical bytes")
	}

	id, err := ReadProposalID(buf)
	if err != nil {
		return ProposalID{}, 0, nil, errors.Wrap(err, "from canonical bytes")
	}

	signer, err := ReadCount(buf, 0)
	if err != nil {
		return ProposalID{}, 0, nil, errors.Wrap(err, "from canonical bytes")
	}

	partial, err := ReadBytes(buf)
	if err != nil {
		return ProposalID{}, 0, nil, errors.Wrap(err, "from canonical bytes")
	}

	return id, uint32(signer), partial, nil
}

func (c *PayoutCertificate) ToCanonicalBytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	// Write type prefix
	if err := WriteTypePrefix(buf, PayoutCertificateType); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write proposal_id
	if err := WriteProposalID(buf, c.ProposalID); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write account
	if err := WriteBytes(buf, []byte(c.Account)); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write amount
	if err := WriteUint64(buf, c.Amount); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write expiry
	if err := WriteTime(buf, c.Expiry); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write signature
	if err := WriteBytes(buf, c.Signature); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	return buf.Bytes(), nil
}

func (c *PayoutCertificate) FromCanonicalBytes(data []byte) error {
	buf := bytes.NewBuffer(data)

	if err := ReadTypePrefix(buf, PayoutCertificateType); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	var err error
	if c.ProposalID, err = ReadProposalID(buf); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	account, err := ReadBytes(buf)
	if err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}
	c.Account = AccountID(account)

	if c.Amount, err = ReadUint64(buf); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	if c.Expiry, err = ReadTime(buf); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	if c.Signature, err = ReadBytes(buf); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	return nil
}
