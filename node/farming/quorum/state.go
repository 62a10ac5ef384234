package quorum

import (
	"github.com/pkg/errors"

	"github.com/Yoga07/safe-farming/types/farming"
)

// Event represents an event that can move a signing round between states
type Event string

const (
	EventBroadcast     Event = "broadcast"
	EventQuorumReached Event = "quorum_reached"
	EventExpiry        Event = "expiry"
	EventVetoReached   Event = "veto_reached"
)

// Transition is one edge of the round lifecycle.
type Transition struct {
	From  farming.ProposalState
	Event Event
	To    farming.ProposalState
}

// transitions is the complete round lifecycle. Certified, expired and
// rejected are terminal.
var transitions = []Transition{
	{farming.ProposalStateProposed, EventBroadcast, farming.ProposalStateCollecting},
	{farming.ProposalStateProposed, EventExpiry, farming.ProposalStateExpired},
	{farming.ProposalStateCollecting, EventQuorumReached, farming.ProposalStateCertified},
	{farming.ProposalStateCollecting, EventExpiry, farming.ProposalStateExpired},
	{farming.ProposalStateCollecting, EventVetoReached, farming.ProposalStateRejected},
}

var transitionTable = func() map[farming.ProposalState]map[Event]farming.ProposalState {
	table := map[farming.ProposalState]map[Event]farming.ProposalState{}
	for _, t := range transitions {
		if table[t.From] == nil {
			table[t.From] = map[Event]farming.ProposalState{}
		}
		table[t.From][t.Event] = t.To
	}
	return table
}()

// next returns the state event leads to from state.
func next(
	state farming.ProposalState,
	event Event,
) (farming.ProposalState, error) {
	to, ok := transitionTable[state][event]
	if !ok {
		return state, errors.Errorf("no transition from %s on %s", state, event)
	}
	return to, nil
}

// TransitionListener is notified of every round transition. Listeners are
// called with the coordinator's lock held and must not call back into it.
type TransitionListener interface {
	OnTransition(
		id farming.ProposalID,
		from farming.ProposalState,
		to farming.ProposalState,
		event Event,
	)
}
