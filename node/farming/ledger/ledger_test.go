package ledger

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Yoga07/safe-farming/types/farming"
)

const retention = time.Hour

func newTestLedger(clock clockwork.Clock) *RewardLedger {
	return NewRewardLedger(zap.NewNop(), clock, retention)
}

func event(account farming.AccountID, stamp uint64) *farming.RewardEvent {
	return &farming.RewardEvent{
		ID:       farming.NewEventID(account, []byte("chunk"), stamp),
		Account:  account,
		ByteSize: 100,
	}
}

func certificate(
	clock clockwork.Clock,
	account farming.AccountID,
	seq uint64,
	amount uint64,
) *farming.PayoutCertificate {
	return &farming.PayoutCertificate{
		ProposalID: farming.ProposalID{Replica: "coordinator", Sequence: seq},
		Account:    account,
		Amount:     amount,
		Expiry:     clock.Now().Add(time.Minute),
		Signature:  []byte{1},
	}
}

func TestUsageCounterScenarioA(t *testing.T) {
	r1 := NewUsageCounter()
	r2 := NewUsageCounter()
	require.NoError(t, r1.Record("R1", 100))
	require.NoError(t, r2.Record("R2", 50))

	a := r1.Clone()
	a.Merge(r2)
	b := r2.Clone()
	b.Merge(r1)

	assert.Equal(t, uint64(150), a.Total())
	assert.Equal(t, uint64(150), b.Total())
	assert.True(t, a.Equal(b))

	// Re-delivery changes nothing.
	a.Merge(r2)
	a.Merge(a)
	assert.Equal(t, uint64(150), a.Total())
	assert.Equal(t, uint64(100), a.Slot("R1"))
}

func TestUsageCounterSerialization(t *testing.T) {
	u := NewUsageCounter()
	require.NoError(t, u.Record("R1", 10))
	require.NoError(t, u.Record("R2", 20))

	data, err := u.ToCanonicalBytes()
	require.NoError(t, err)

	decoded := NewUsageCounter()
	require.NoError(t, decoded.FromCanonicalBytes(data))
	assert.True(t, u.Equal(decoded))
	assert.Equal(t, uint64(30), decoded.Total())
}

func TestAccumulateIsIdempotentPerEvent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewRewardLedger(zap.New(core), clockwork.NewFakeClock(), retention)
	e := event("acct", 1)

	require.NoError(t, l.Accumulate(e, 50, "R1"))
	err := l.Accumulate(e, 50, "R1")
	assert.True(t, errors.Is(err, farming.ErrDuplicateEvent))
	assert.Equal(t, uint64(50), l.Balance("acct"))
	assert.True(t, l.HasEvent(e.ID))
	assert.Equal(t, 1, logs.FilterMessage("accumulated reward").Len())

	// A merged replica refuses the same event too.
	other := newTestLedger(clockwork.NewFakeClock())
	other.Merge(l)
	err = other.Accumulate(e, 50, "R2")
	assert.True(t, errors.Is(err, farming.ErrDuplicateEvent))
	assert.Equal(t, uint64(50), other.Balance("acct"))
}

func TestProposeDebitScenarioC(t *testing.T) {
	l := newTestLedger(clockwork.NewFakeClock())
	require.NoError(t, l.Credit("acct", 50, "R1"))

	_, err := l.ProposeDebit("acct", 80)
	assert.True(t, errors.Is(err, farming.ErrInsufficientBalance))

	proposal, err := l.ProposeDebit("acct", 30)
	require.NoError(t, err)
	assert.Equal(t, farming.AccountID("acct"), proposal.Account)
	assert.Equal(t, uint64(30), proposal.Amount)
	assert.Equal(t, uint64(50), proposal.Snapshot)
	assert.Equal(t, uint64(50), l.Balance("acct"), "proposing never debits")

	_, err = l.ProposeDebitWithReserve("acct", 30, 30)
	assert.True(t, errors.Is(err, farming.ErrInsufficientBalance))

	_, err = l.ProposeDebit("acct", 0)
	assert.True(t, errors.Is(err, farming.ErrInvalidAmount))
}

func TestApplyCertificateExactlyOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newTestLedger(clock)
	require.NoError(t, l.Credit("acct", 50, "R1"))
	cert := certificate(clock, "acct", 1, 30)

	applied, err := l.ApplyCertificate(cert, "R1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, uint64(20), l.Balance("acct"))

	applied, err = l.ApplyCertificate(cert, "R1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, uint64(20), l.Balance("acct"))

	// Applying on a second replica after merging is also a no-op, and the
	// merged debit shows up once.
	other := newTestLedger(clock)
	other.Merge(l)
	applied, err = other.ApplyCertificate(cert, "R2")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, uint64(20), other.Balance("acct"))
	assert.True(t, other.IsApplied(cert.ProposalID))
}

func TestApplyCertificateRefusals(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newTestLedger(clock)
	require.NoError(t, l.Credit("acct", 50, "R1"))

	_, err := l.ApplyCertificate(certificate(clock, "acct", 1, 51), "R1")
	assert.True(t, errors.Is(err, farming.ErrInsufficientBalance))

	_, err = l.ApplyCertificate(certificate(clock, "nobody", 2, 1), "R1")
	assert.True(t, errors.Is(err, farming.ErrInsufficientBalance))

	stale := certificate(clock, "acct", 3, 10)
	clock.Advance(time.Minute + retention + time.Second)
	_, err = l.ApplyCertificate(stale, "R1")
	assert.True(t, errors.Is(err, farming.ErrCertificateStale))

	assert.Equal(t, uint64(50), l.Balance("acct"))
}

func TestConcurrentApplyConverges(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r1 := newTestLedger(clock)
	require.NoError(t, r1.Credit("acct", 100, "R1"))
	r2 := newTestLedger(clock)
	r2.Merge(r1)

	cert := certificate(clock, "acct", 1, 30)
	applied, err := r1.ApplyCertificate(cert, "R1")
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = r2.ApplyCertificate(cert, "R2")
	require.NoError(t, err)
	assert.True(t, applied)

	left := merged(r1, r2)
	right := merged(r2, r1)
	assert.Equal(t, uint64(70), left.Balance("acct"))
	assert.True(t, left.Equal(right))

	// Distinct payouts applied on different replicas both count.
	_, err = r1.ApplyCertificate(certificate(clock, "acct", 2, 20), "R1")
	require.NoError(t, err)
	_, err = r2.ApplyCertificate(certificate(clock, "acct", 3, 10), "R2")
	require.NoError(t, err)
	r1.Merge(r2)
	assert.Equal(t, uint64(40), r1.Balance("acct"))
}

func TestLastSequence(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newTestLedger(clock)
	require.NoError(t, l.Credit("acct", 100, "R1"))
	assert.Equal(t, uint64(0), l.LastSequence("coordinator"))

	for _, seq := range []uint64{3, 9, 4} {
		_, err := l.ApplyCertificate(certificate(clock, "acct", seq, 1), "R1")
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(9), l.LastSequence("coordinator"))
	assert.Equal(t, uint64(0), l.LastSequence("R1"))
}

func TestAddAccountRecordsWork(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newTestLedger(clock)

	require.NoError(t, l.AddAccount("a", 2, "R1"))
	err := l.AddAccount("a", 1, "R1")
	assert.True(t, errors.Is(err, farming.ErrAccountExists))
	require.NoError(t, l.AddAccount("b", 0, "R1"))
	assert.Equal(t, []farming.AccountID{"a", "b"}, l.Accounts())
	assert.Equal(t, uint64(0), l.Balance("a"))

	require.NoError(t, l.Accumulate(event("b", 1), 5, "R1"))
	require.NoError(t, l.Distribute(
		farming.NewEventID("vault", []byte("chunk"), 1),
		map[farming.AccountID]uint64{"a": 4, "b": 0},
		"R1",
	))
	assert.Equal(t, map[farming.AccountID]uint64{"a": 3, "b": 1}, l.Work())

	other := newTestLedger(clock)
	require.NoError(t, other.AddAccount("b", 5, "R2"))
	other.Merge(l)
	assert.Equal(t, map[farming.AccountID]uint64{"a": 3, "b": 6}, other.Work())

	data, err := other.ToCanonicalBytes()
	require.NoError(t, err)
	decoded := newTestLedger(clock)
	require.NoError(t, decoded.FromCanonicalBytes(data))
	assert.True(t, other.Equal(decoded))
	assert.Equal(t, other.Work(), decoded.Work())
}

func TestPruneKeepsReplayProtection(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newTestLedger(clock)
	require.NoError(t, l.Credit("acct", 50, "R1"))
	cert := certificate(clock, "acct", 1, 30)

	_, err := l.ApplyCertificate(cert, "R1")
	require.NoError(t, err)

	assert.Equal(t, 0, l.Prune())
	clock.Advance(time.Minute + retention + time.Second)
	assert.Equal(t, 1, l.Prune())
	assert.False(t, l.IsApplied(cert.ProposalID))

	// Forgotten, but the certificate is stale now and cannot debit again.
	_, err = l.ApplyCertificate(cert, "R1")
	assert.True(t, errors.Is(err, farming.ErrCertificateStale))
	assert.Equal(t, uint64(20), l.Balance("acct"))
}

func TestDistributeCreditsOnce(t *testing.T) {
	l := newTestLedger(clockwork.NewFakeClock())
	id := farming.NewEventID("vault", []byte("chunk"), 1)
	amounts := map[farming.AccountID]uint64{"a": 3, "b": 7}

	require.NoError(t, l.Distribute(id, amounts, "R1"))
	err := l.Distribute(id, amounts, "R1")
	assert.True(t, errors.Is(err, farming.ErrDuplicateEvent))

	assert.Equal(t, uint64(3), l.Balance("a"))
	assert.Equal(t, uint64(7), l.Balance("b"))
	assert.Equal(t, []farming.AccountID{"a", "b"}, l.Accounts())
}

// randomLedger builds a ledger from a random sequence of credits and
// certificate applications on one replica.
func randomLedger(r *rand.Rand, clock clockwork.Clock, replica farming.ReplicaID) *RewardLedger {
	l := newTestLedger(clock)
	for i := 0; i < 20; i++ {
		account := farming.AccountID(fmt.Sprintf("acct-%d", r.Intn(3)))
		switch r.Intn(3) {
		case 0, 1:
			_ = l.Accumulate(event(account, uint64(r.Intn(30))), uint64(r.Intn(100)), replica)
		case 2:
			cert := certificate(clock, account, uint64(r.Intn(10)), uint64(r.Intn(80)+1))
			_, _ = l.ApplyCertificate(cert, replica)
		}
	}
	return l
}

func merged(a, b *RewardLedger) *RewardLedger {
	out := a.Clone()
	out.Merge(b)
	return out
}

func TestRewardLedgerSemilattice(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		a := randomLedger(r, clock, "R1")
		b := randomLedger(r, clock, "R2")
		c := randomLedger(r, clock, "R3")

		assert.True(t, merged(a, b).Equal(merged(b, a)), "commutative")
		assert.True(t, merged(merged(a, b), c).Equal(merged(a, merged(b, c))), "associative")
		assert.True(t, merged(a, a).Equal(a), "idempotent")
	}
}

func TestBalanceNeverNegative(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 50; i++ {
		l := randomLedger(r, clock, "R1")
		for _, account := range l.Accounts() {
			counter := l.accounts[account]
			assert.GreaterOrEqual(
				t,
				counter.Credited.Value(),
				counter.Debited.Value(),
				"a single replica never debits more than it credited",
			)
		}
	}
}

func TestRewardLedgerSerialization(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := randomLedger(rand.New(rand.NewSource(5)), clock, "R1")

	data, err := l.ToCanonicalBytes()
	require.NoError(t, err)

	decoded := newTestLedger(clock)
	require.NoError(t, decoded.FromCanonicalBytes(data))
	assert.True(t, l.Equal(decoded))

	again, err := decoded.ToCanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, data, again)

	assert.Error(t, decoded.FromCanonicalBytes(data[:len(data)-1]))
}
