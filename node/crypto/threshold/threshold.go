// Package threshold implements t-of-n BLS signatures over BLS12-381 with
// signatures in G1 and keys in G2. Any t partial signatures over the same
// message combine into one signature that verifies against the master key.
package threshold

import (
	"encoding/hex"
	"io"
	"sort"

	"github.com/cloudflare/circl/ecc/bls12381"
	"github.com/pkg/errors"

	"github.com/Yoga07/safe-farming/types/farming"
)

// Domain separation tag for hashing messages to G1.
var dst = []byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_")

func hashToG1(message []byte) *bls12381.G1 {
	h := new(bls12381.G1)
	h.Hash(message, dst)
	return h
}

// PublicKeySet holds the master public key and the public key share of every
// signer. Signer i (1-based) holds the evaluation of the secret polynomial at
// x = i.
type PublicKeySet struct {
	threshold int
	master    *bls12381.G2
	shares    []*bls12381.G2
}

var _ farming.ThresholdVerifier = (*PublicKeySet)(nil)

// KeyShare is one signer's secret key share.
type KeyShare struct {
	index  uint32
	secret *bls12381.Scalar
}

var _ farming.ThresholdSigner = (*KeyShare)(nil)

// Deal generates a fresh key set for n signers with threshold t. It stands in
// for the external key ceremony in tests and development networks.
func Deal(
	rand io.Reader,
	threshold int,
	n int,
) (*PublicKeySet, []*KeyShare, error) {
	if threshold < 1 || threshold > n {
		return nil, nil, errors.Errorf("deal: threshold %d outside 1..%d", threshold, n)
	}

	coeffs := make([]*bls12381.Scalar, threshold)
	for i := range coeffs {
		coeffs[i] = new(bls12381.Scalar)
		if err := coeffs[i].Random(rand); err != nil {
			return nil, nil, errors.Wrap(err, "deal")
		}
	}

	set := &PublicKeySet{
		threshold: threshold,
		master:    new(bls12381.G2),
		shares:    make([]*bls12381.G2, n),
	}
	set.master.ScalarMult(coeffs[0], bls12381.G2Generator())

	keys := make([]*KeyShare, n)
	for i := 1; i <= n; i++ {
		x := new(bls12381.Scalar)
		x.SetUint64(uint64(i))

		// Horner evaluation of the polynomial at x
		secret := new(bls12381.Scalar)
		secret.Set(coeffs[threshold-1])
		for j := threshold - 2; j >= 0; j-- {
			secret.Mul(secret, x)
			secret.Add(secret, coeffs[j])
		}

		keys[i-1] = &KeyShare{index: uint32(i), secret: secret}
		set.shares[i-1] = keys[i-1].PublicKey()
	}

	return set, keys, nil
}

// ParsePublicKeySet decodes a key set from hex encoded compressed G2 points.
func ParsePublicKeySet(
	threshold int,
	masterHex string,
	membersHex []string,
) (*PublicKeySet, error) {
	if threshold < 1 || threshold > len(membersHex) {
		return nil, errors.Errorf(
			"parse public key set: threshold %d outside 1..%d",
			threshold,
			len(membersHex),
		)
	}

	master, err := parseG2(masterHex)
	if err != nil {
		return nil, errors.Wrap(err, "parse public key set: master")
	}

	set := &PublicKeySet{
		threshold: threshold,
		master:    master,
		shares:    make([]*bls12381.G2, len(membersHex)),
	}
	for i, memberHex := range membersHex {
		if set.shares[i], err = parseG2(memberHex); err != nil {
			return nil, errors.Wrapf(err, "parse public key set: member %d", i+1)
		}
	}

	return set, nil
}

func parseG2(s string) (*bls12381.G2, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	p := new(bls12381.G2)
	if err := p.SetBytes(b); err != nil {
		return nil, err
	}
	if p.IsIdentity() {
		return nil, errors.New("identity key")
	}
	return p, nil
}

// ParseKeyShare decodes a hex encoded secret key share for signer index.
func ParseKeyShare(index uint32, secretHex string) (*KeyShare, error) {
	if index == 0 {
		return nil, errors.New("parse key share: signer index starts at 1")
	}
	b, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, errors.Wrap(err, "parse key share")
	}
	secret := new(bls12381.Scalar)
	if err := secret.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(err, "parse key share")
	}
	if secret.IsZero() == 1 {
		return nil, errors.New("parse key share: zero secret")
	}
	return &KeyShare{index: index, secret: secret}, nil
}

func (k *KeyShare) Index() uint32 {
	return k.index
}

// PublicKey returns the G2 public key share matching the secret.
func (k *KeyShare) PublicKey() *bls12381.G2 {
	pk := new(bls12381.G2)
	pk.ScalarMult(k.secret, bls12381.G2Generator())
	return pk
}

// SecretHex encodes the secret share for provisioning.
func (k *KeyShare) SecretHex() string {
	b, _ := k.secret.MarshalBinary()
	return hex.EncodeToString(b)
}

// SignShare returns the compressed partial signature over message.
func (k *KeyShare) SignShare(message []byte) ([]byte, error) {
	sig := new(bls12381.G1)
	sig.ScalarMult(k.secret, hashToG1(message))
	return sig.BytesCompressed(), nil
}

func (p *PublicKeySet) Threshold() int {
	return p.threshold
}

func (p *PublicKeySet) Size() int {
	return len(p.shares)
}

// MasterHex encodes the master public key.
func (p *PublicKeySet) MasterHex() string {
	return hex.EncodeToString(p.master.BytesCompressed())
}

// MembersHex encodes the public key shares in signer order.
func (p *PublicKeySet) MembersHex() []string {
	out := make([]string, len(p.shares))
	for i, share := range p.shares {
		out[i] = hex.EncodeToString(share.BytesCompressed())
	}
	return out
}

// verify checks e(sig, g2) == e(H(m), pk).
func verify(pk *bls12381.G2, message []byte, signature []byte) bool {
	sig := new(bls12381.G1)
	if err := sig.SetBytes(signature); err != nil {
		return false
	}
	if sig.IsIdentity() {
		return false
	}
	return bls12381.ProdPairFrac(
		[]*bls12381.G1{sig, hashToG1(message)},
		[]*bls12381.G2{bls12381.G2Generator(), pk},
		[]int{1, -1},
	).IsIdentity()
}

// VerifyShare checks a partial signature against the signer's key share.
func (p *PublicKeySet) VerifyShare(
	signer uint32,
	message []byte,
	partial []byte,
) error {
	if signer == 0 || int(signer) > len(p.shares) {
		return errors.Wrapf(farming.ErrInvalidShare, "unknown signer %d", signer)
	}
	if !verify(p.shares[signer-1], message, partial) {
		return errors.Wrapf(farming.ErrInvalidShare, "signer %d", signer)
	}
	return nil
}

// Verify checks an aggregate signature against the master public key.
func (p *PublicKeySet) Verify(message []byte, signature []byte) error {
	if !verify(p.master, message, signature) {
		return errors.Wrap(farming.ErrInvalidCertificate, "verify")
	}
	return nil
}

// Combine interpolates the lowest t signer indices of partials at zero. The
// partials are expected to be verified already; the combined signature is
// checked against the master key before it is returned.
func (p *PublicKeySet) Combine(
	message []byte,
	partials map[uint32][]byte,
) ([]byte, error) {
	if len(partials) < p.threshold {
		return nil, errors.Wrapf(
			farming.ErrBelowThreshold,
			"combine: %d of %d",
			len(partials),
			p.threshold,
		)
	}

	indices := make([]uint32, 0, len(partials))
	for index := range partials {
		if index == 0 || int(index) > len(p.shares) {
			return nil, errors.Wrapf(farming.ErrInvalidShare, "combine: signer %d", index)
		}
		indices = append(indices, index)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	indices = indices[:p.threshold]

	xs := make([]*bls12381.Scalar, len(indices))
	for i, index := range indices {
		xs[i] = new(bls12381.Scalar)
		xs[i].SetUint64(uint64(index))
	}

	combined := new(bls12381.G1)
	combined.SetIdentity()
	for i, index := range indices {
		sig := new(bls12381.G1)
		if err := sig.SetBytes(partials[index]); err != nil {
			return nil, errors.Wrapf(farming.ErrInvalidShare, "combine: signer %d", index)
		}

		term := new(bls12381.G1)
		term.ScalarMult(lagrangeAtZero(xs, i), sig)
		combined.Add(combined, term)
	}

	signature := combined.BytesCompressed()
	if err := p.Verify(message, signature); err != nil {
		return nil, errors.Wrap(err, "combine")
	}
	return signature, nil
}

// lagrangeAtZero returns Π_{j≠i} x_j / (x_j − x_i).
func lagrangeAtZero(xs []*bls12381.Scalar, i int) *bls12381.Scalar {
	num := new(bls12381.Scalar)
	num.SetOne()
	den := new(bls12381.Scalar)
	den.SetOne()
	diff := new(bls12381.Scalar)
	for j, x := range xs {
		if j == i {
			continue
		}
		num.Mul(num, x)
		diff.Sub(x, xs[i])
		den.Mul(den, diff)
	}
	den.Inv(den)
	num.Mul(num, den)
	return num
}
