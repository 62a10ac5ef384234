package farming

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
)

// WriteTypePrefix writes the canonical uint32 type prefix.
func WriteTypePrefix(buf *bytes.Buffer, typePrefix uint32) error {
	return binary.Write(buf, binary.BigEndian, typePrefix)
}

// ReadTypePrefix reads a type prefix and checks it matches expected.
func ReadTypePrefix(buf *bytes.Buffer, expected uint32) error {
	var typePrefix uint32
	if err := binary.Read(buf, binary.BigEndian, &typePrefix); err != nil {
		return err
	}
	if typePrefix != expected {
		return errors.Wrap(ErrInvalidData, "invalid type prefix")
	}
	return nil
}

// WriteBytes writes a uint32 length prefixed byte field.
func WriteBytes(buf *bytes.Buffer, b []byte) error {
	if err := binary.Write(buf, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := buf.Write(b)
	return err
}

// ReadBytes reads a uint32 length prefixed byte field. The length is bounded
// by the remaining input.
func ReadBytes(buf *bytes.Buffer) ([]byte, error) {
	var l uint32
	if err := binary.Read(buf, binary.BigEndian, &l); err != nil {
		return nil, err
	}
	if int(l) > buf.Len() {
		return nil, errors.Wrap(ErrInvalidData, "length exceeds input")
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(buf, b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteUint64 writes a big endian uint64.
func WriteUint64(buf *bytes.Buffer, v uint64) error {
	return binary.Write(buf, binary.BigEndian, v)
}

// ReadUint64 reads a big endian uint64.
func ReadUint64(buf *bytes.Buffer) (uint64, error) {
	var v uint64
	err := binary.Read(buf, binary.BigEndian, &v)
	return v, err
}

// ReadCount reads a uint32 element count. Each element occupies at least
// minSize bytes, which bounds the count by the remaining input.
func ReadCount(buf *bytes.Buffer, minSize int) (int, error) {
	var n uint32
	if err := binary.Read(buf, binary.BigEndian, &n); err != nil {
		return 0, err
	}
	if minSize > 0 && int(n) > buf.Len()/minSize {
		return 0, errors.Wrap(ErrInvalidData, "count exceeds input")
	}
	return int(n), nil
}

// WriteCount writes a uint32 element count.
func WriteCount(buf *bytes.Buffer, n int) error {
	return binary.Write(buf, binary.BigEndian, uint32(n))
}

// WriteTime writes a timestamp as unix nanoseconds.
func WriteTime(buf *bytes.Buffer, t time.Time) error {
	return binary.Write(buf, binary.BigEndian, t.UnixNano())
}

// ReadTime reads a timestamp written by WriteTime, in UTC.
func ReadTime(buf *bytes.Buffer) (time.Time, error) {
	var n int64
	if err := binary.Read(buf, binary.BigEndian, &n); err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

// WriteProposalID writes a proposal id field.
func WriteProposalID(buf *bytes.Buffer, id ProposalID) error {
	if err := WriteBytes(buf, []byte(id.Replica)); err != nil {
		return err
	}
	return WriteUint64(buf, id.Sequence)
}

// ReadProposalID reads a proposal id field.
func ReadProposalID(buf *bytes.Buffer) (ProposalID, error) {
	replica, err := ReadBytes(buf)
	if err != nil {
		return ProposalID{}, err
	}
	seq, err := ReadUint64(buf)
	if err != nil {
		return ProposalID{}, err
	}
	return ProposalID{Replica: ReplicaID(replica), Sequence: seq}, nil
}
