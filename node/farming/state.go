package farming

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/Yoga07/safe-farming/node/farming/ledger"
	ftypes "github.com/Yoga07/safe-farming/types/farming"
)

// ReplicaState is the unit of state exchange between replicas: everything a
// peer needs to converge with the sender.
type ReplicaState struct {
	Replica ftypes.ReplicaID
	Usage   *ledger.UsageCounter
	Ledger  *ledger.RewardLedger
}

func (s *ReplicaState) ToCanonicalBytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	// Write type prefix
	if err := ftypes.WriteTypePrefix(buf, ftypes.ReplicaStateType); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write version
	if err := buf.WriteByte(ftypes.StateVersion); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write replica
	if err := ftypes.WriteBytes(buf, []byte(s.Replica)); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write usage
	if err := s.Usage.WriteCanonical(buf); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	// Write ledger
	if err := s.Ledger.WriteCanonical(buf); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}

	return buf.Bytes(), nil
}

// FromCanonicalBytes decodes into s. Usage and Ledger must be set; their
// contents are replaced.
func (s *ReplicaState) FromCanonicalBytes(data []byte) error {
	buf := bytes.NewBuffer(data)

	if err := ftypes.ReadTypePrefix(buf, ftypes.ReplicaStateType); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	version, err := buf.ReadByte()
	if err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}
	if version != ftypes.StateVersion {
		return errors.Wrapf(
			ftypes.ErrInvalidData,
			"from canonical bytes: unsupported state version %d",
			version,
		)
	}

	replica, err := ftypes.ReadBytes(buf)
	if err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}
	s.Replica = ftypes.ReplicaID(replica)

	if err := s.Usage.ReadCanonical(buf); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	if err := s.Ledger.ReadCanonical(buf); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}

	if buf.Len() != 0 {
		return errors.Wrap(ftypes.ErrInvalidData, "from canonical bytes: trailing data")
	}

	return nil
}
