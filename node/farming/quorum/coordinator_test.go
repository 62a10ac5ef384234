package quorum

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Yoga07/safe-farming/node/crypto/threshold"
	"github.com/Yoga07/safe-farming/types/farming"
)

const (
	testExpiry    = 30 * time.Second
	testRetention = time.Hour
)

type recordingBroadcaster struct {
	mu        sync.Mutex
	proposals []*farming.PayoutProposal
	err       error
}

func (b *recordingBroadcaster) BroadcastProposal(
	ctx context.Context,
	proposal *farming.PayoutProposal,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.proposals = append(b.proposals, proposal)
	return b.err
}

type recordingListener struct {
	transitions []Transition
}

func (l *recordingListener) OnTransition(
	id farming.ProposalID,
	from farming.ProposalState,
	to farming.ProposalState,
	event Event,
) {
	l.transitions = append(l.transitions, Transition{From: from, Event: event, To: to})
}

type fixture struct {
	clock       *clockwork.FakeClock
	set         *threshold.PublicKeySet
	keys        []*threshold.KeyShare
	broadcaster *recordingBroadcaster
	coordinator *Coordinator
}

func newFixture(t *testing.T, vetoThreshold int) *fixture {
	set, keys, err := threshold.Deal(rand.Reader, 3, 5)
	require.NoError(t, err)

	f := &fixture{
		clock:       clockwork.NewFakeClockAt(time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)),
		set:         set,
		keys:        keys,
		broadcaster: &recordingBroadcaster{},
	}
	f.coordinator = NewCoordinator(
		zap.NewNop(),
		f.clock,
		CoordinatorConfig{
			Replica:          "R1",
			Expiry:           testExpiry,
			RoundRetention:   time.Minute,
			VetoThreshold:    vetoThreshold,
			AppliedRetention: testRetention,
		},
		set,
		f.broadcaster,
	)
	t.Cleanup(f.coordinator.Stop)
	return f
}

func (f *fixture) propose(t *testing.T, amount uint64) *farming.PayoutProposal {
	proposal, err := f.coordinator.Propose(
		context.Background(),
		&farming.PayoutProposal{Account: "acct", Amount: amount, Snapshot: 50},
	)
	require.NoError(t, err)
	return proposal
}

func (f *fixture) share(
	t *testing.T,
	proposal *farming.PayoutProposal,
	signer int,
) *farming.SignatureShare {
	partial, err := f.keys[signer-1].SignShare(proposal.Message())
	require.NoError(t, err)
	return &farming.SignatureShare{
		ProposalID: proposal.ID,
		SignerID:   uint32(signer),
		Partial:    partial,
	}
}

func (f *fixture) rejection(
	t *testing.T,
	proposal *farming.PayoutProposal,
	signer int,
) *farming.Rejection {
	partial, err := f.keys[signer-1].SignShare(farming.RejectMessage(
		proposal.ID,
		proposal.Account,
		proposal.Amount,
		proposal.Expiry,
	))
	require.NoError(t, err)
	return &farming.Rejection{
		ProposalID: proposal.ID,
		SignerID:   uint32(signer),
		Partial:    partial,
	}
}

func TestProposeBindsAndBroadcasts(t *testing.T) {
	f := newFixture(t, 0)
	listener := &recordingListener{}
	f.coordinator.AddListener(listener)

	first := f.propose(t, 30)
	second := f.propose(t, 10)

	assert.Equal(t, farming.ProposalID{Replica: "R1", Sequence: 1}, first.ID)
	assert.Equal(t, farming.ProposalID{Replica: "R1", Sequence: 2}, second.ID)
	assert.Equal(t, f.clock.Now().Add(testExpiry), first.Expiry)
	require.Len(t, f.broadcaster.proposals, 2)
	assert.Equal(t, first, f.broadcaster.proposals[0])

	state, err := f.coordinator.Status(first.ID)
	require.NoError(t, err)
	assert.Equal(t, farming.ProposalStateCollecting, state)
	assert.Contains(t, listener.transitions, Transition{
		From:  farming.ProposalStateProposed,
		Event: EventBroadcast,
		To:    farming.ProposalStateCollecting,
	})

	_, err = f.coordinator.Propose(context.Background(), &farming.PayoutProposal{Account: "acct"})
	assert.True(t, errors.Is(err, farming.ErrInvalidAmount))
}

func TestCertifiesAtExactlyThreshold(t *testing.T) {
	f := newFixture(t, 0)
	outcomes := f.coordinator.Subscribe("test")
	proposal := f.propose(t, 30)

	require.NoError(t, f.coordinator.SubmitShare(f.share(t, proposal, 1)))
	require.NoError(t, f.coordinator.SubmitShare(f.share(t, proposal, 4)))

	// A repeated signer and a share over another message never count.
	err := f.coordinator.SubmitShare(f.share(t, proposal, 1))
	assert.True(t, errors.Is(err, farming.ErrDuplicateShare))

	bad := f.share(t, proposal, 2)
	bad.Partial, err = f.keys[1].SignShare([]byte("something else"))
	require.NoError(t, err)
	err = f.coordinator.SubmitShare(bad)
	assert.True(t, errors.Is(err, farming.ErrInvalidShare))

	wrongSigner := f.share(t, proposal, 3)
	wrongSigner.SignerID = 5
	err = f.coordinator.SubmitShare(wrongSigner)
	assert.True(t, errors.Is(err, farming.ErrInvalidShare))

	outOfSet := f.share(t, proposal, 3)
	outOfSet.SignerID = 9
	err = f.coordinator.SubmitShare(outOfSet)
	assert.True(t, errors.Is(err, farming.ErrInvalidShare))

	_, err = f.coordinator.Certificate(proposal.ID)
	assert.True(t, errors.Is(err, farming.ErrBelowThreshold))
	state, err := f.coordinator.Status(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, farming.ProposalStateCollecting, state)

	require.NoError(t, f.coordinator.SubmitShare(f.share(t, proposal, 2)))

	state, err = f.coordinator.Status(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, farming.ProposalStateCertified, state)

	cert, err := f.coordinator.Certificate(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, proposal.ID, cert.ProposalID)
	assert.Equal(t, uint64(30), cert.Amount)
	assert.NoError(t, f.set.Verify(cert.Message(), cert.Signature))

	select {
	case outcome := <-outcomes:
		assert.Equal(t, farming.ProposalStateCertified, outcome.State)
		assert.Equal(t, cert, outcome.Certificate)
	default:
		t.Fatal("no outcome published")
	}

	// Late shares are ignored.
	require.NoError(t, f.coordinator.SubmitShare(f.share(t, proposal, 5)))
	again, err := f.coordinator.Certificate(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, cert, again)
}

func TestRoundExpiresBelowThreshold(t *testing.T) {
	f := newFixture(t, 0)
	proposal := f.propose(t, 30)

	require.NoError(t, f.coordinator.SubmitShare(f.share(t, proposal, 1)))
	require.NoError(t, f.coordinator.SubmitShare(f.share(t, proposal, 2)))
	assert.Equal(t, uint64(30), f.coordinator.Reserved("acct"))

	f.clock.Advance(testExpiry + time.Second)

	state, err := f.coordinator.Status(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, farming.ProposalStateExpired, state)

	err = f.coordinator.SubmitShare(f.share(t, proposal, 3))
	assert.True(t, errors.Is(err, farming.ErrProposalExpired))
	_, err = f.coordinator.Certificate(proposal.ID)
	assert.True(t, errors.Is(err, farming.ErrProposalExpired))
	assert.Equal(t, uint64(0), f.coordinator.Reserved("acct"))
}

func TestVetoRejectsRound(t *testing.T) {
	f := newFixture(t, 2)
	outcomes := f.coordinator.Subscribe("test")
	proposal := f.propose(t, 30)

	// A payout share is not a valid veto.
	payoutShare := f.share(t, proposal, 1)
	err := f.coordinator.SubmitRejection(&farming.Rejection{
		ProposalID: proposal.ID,
		SignerID:   1,
		Partial:    payoutShare.Partial,
	})
	assert.True(t, errors.Is(err, farming.ErrInvalidShare))

	require.NoError(t, f.coordinator.SubmitRejection(f.rejection(t, proposal, 1)))
	err = f.coordinator.SubmitRejection(f.rejection(t, proposal, 1))
	assert.True(t, errors.Is(err, farming.ErrDuplicateShare))
	require.NoError(t, f.coordinator.SubmitRejection(f.rejection(t, proposal, 2)))

	state, err := f.coordinator.Status(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, farming.ProposalStateRejected, state)

	_, err = f.coordinator.Certificate(proposal.ID)
	assert.True(t, errors.Is(err, farming.ErrProposalRejected))
	err = f.coordinator.SubmitShare(f.share(t, proposal, 3))
	assert.True(t, errors.Is(err, farming.ErrProposalRejected))
	assert.Equal(t, uint64(0), f.coordinator.Reserved("acct"))

	outcome := <-outcomes
	assert.Equal(t, farming.ProposalStateRejected, outcome.State)
	assert.Nil(t, outcome.Certificate)
}

func TestVetoesIgnoredWhenDisabled(t *testing.T) {
	f := newFixture(t, 0)
	proposal := f.propose(t, 30)

	for signer := 1; signer <= 5; signer++ {
		require.NoError(t, f.coordinator.SubmitRejection(f.rejection(t, proposal, signer)))
	}

	state, err := f.coordinator.Status(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, farming.ProposalStateCollecting, state)
}

func TestReservationReleasedOnApply(t *testing.T) {
	f := newFixture(t, 0)
	proposal := f.propose(t, 30)
	f.propose(t, 5)
	assert.Equal(t, uint64(35), f.coordinator.Reserved("acct"))
	assert.Equal(t, uint64(0), f.coordinator.Reserved("other"))

	for signer := 1; signer <= 3; signer++ {
		require.NoError(t, f.coordinator.SubmitShare(f.share(t, proposal, signer)))
	}
	assert.Equal(t, uint64(35), f.coordinator.Reserved("acct"))

	f.coordinator.MarkApplied(proposal.ID)
	assert.Equal(t, uint64(5), f.coordinator.Reserved("acct"))
}

func TestUnappliedCertificateReleasedAfterRetention(t *testing.T) {
	f := newFixture(t, 0)
	proposal := f.propose(t, 30)
	for signer := 1; signer <= 3; signer++ {
		require.NoError(t, f.coordinator.SubmitShare(f.share(t, proposal, signer)))
	}

	f.clock.Advance(testExpiry)
	assert.Equal(t, uint64(30), f.coordinator.Reserved("acct"))
	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, 0, f.coordinator.Prune())

	f.clock.Advance(testRetention)
	assert.Equal(t, uint64(0), f.coordinator.Reserved("acct"))
	assert.Equal(t, 1, f.coordinator.Prune())
	_, err := f.coordinator.Status(proposal.ID)
	assert.True(t, errors.Is(err, farming.ErrUnknownProposal))
}

type memorySequences struct {
	saved map[farming.ReplicaID]uint64
	err   error
}

func (m *memorySequences) SaveSequence(replica farming.ReplicaID, sequence uint64) error {
	if m.err != nil {
		return m.err
	}
	m.saved[replica] = sequence
	return nil
}

func TestSequencePersistedAndRestored(t *testing.T) {
	f := newFixture(t, 0)
	sequences := &memorySequences{saved: map[farming.ReplicaID]uint64{}}
	f.coordinator.WithSequenceStore(sequences)

	f.coordinator.RestoreSequence(7)
	f.coordinator.RestoreSequence(3)
	assert.Equal(t, uint64(7), f.coordinator.Sequence())

	proposal := f.propose(t, 10)
	assert.Equal(t, farming.ProposalID{Replica: "R1", Sequence: 8}, proposal.ID)
	assert.Equal(t, uint64(8), sequences.saved["R1"])

	sequences.err = errors.New("disk full")
	_, err := f.coordinator.Propose(
		context.Background(),
		&farming.PayoutProposal{Account: "acct", Amount: 10},
	)
	require.Error(t, err)
	assert.Equal(t, uint64(8), f.coordinator.Sequence())
	assert.Len(t, f.broadcaster.proposals, 1)
}

func TestBroadcastFailureKeepsRoundOpen(t *testing.T) {
	f := newFixture(t, 0)
	f.broadcaster.err = errors.New("no route to signers")

	proposal, err := f.coordinator.Propose(
		context.Background(),
		&farming.PayoutProposal{Account: "acct", Amount: 10},
	)
	require.Error(t, err)
	require.NotNil(t, proposal)

	state, err := f.coordinator.Status(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, farming.ProposalStateCollecting, state)

	f.clock.Advance(testExpiry)
	state, err = f.coordinator.Status(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, farming.ProposalStateExpired, state)
}

func TestUnknownProposal(t *testing.T) {
	f := newFixture(t, 0)
	id := farming.ProposalID{Replica: "R9", Sequence: 1}

	_, err := f.coordinator.Status(id)
	assert.True(t, errors.Is(err, farming.ErrUnknownProposal))
	err = f.coordinator.SubmitShare(&farming.SignatureShare{ProposalID: id, SignerID: 1})
	assert.True(t, errors.Is(err, farming.ErrUnknownProposal))
	_, err = f.coordinator.Certificate(id)
	assert.True(t, errors.Is(err, farming.ErrUnknownProposal))
}

func TestPruneForgetsOldRounds(t *testing.T) {
	f := newFixture(t, 0)
	proposal := f.propose(t, 30)

	f.clock.Advance(testExpiry)
	_, err := f.coordinator.Status(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.coordinator.Prune())

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, f.coordinator.Prune())
	_, err = f.coordinator.Status(proposal.ID)
	assert.True(t, errors.Is(err, farming.ErrUnknownProposal))
}

func TestTransitionTable(t *testing.T) {
	for _, state := range []farming.ProposalState{
		farming.ProposalStateCertified,
		farming.ProposalStateExpired,
		farming.ProposalStateRejected,
	} {
		for _, event := range []Event{EventBroadcast, EventQuorumReached, EventExpiry, EventVetoReached} {
			_, err := next(state, event)
			assert.Error(t, err, "%s is terminal", state)
		}
	}

	to, err := next(farming.ProposalStateCollecting, EventQuorumReached)
	require.NoError(t, err)
	assert.Equal(t, farming.ProposalStateCertified, to)

	_, err = next(farming.ProposalStateProposed, EventQuorumReached)
	assert.Error(t, err)
}
