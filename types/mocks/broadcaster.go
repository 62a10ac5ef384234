package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Yoga07/safe-farming/types/farming"
)

type MockBroadcaster struct {
	mock.Mock
}

// BroadcastProposal implements farming.Broadcaster.
func (m *MockBroadcaster) BroadcastProposal(
	ctx context.Context,
	proposal *farming.PayoutProposal,
) error {
	args := m.Called(ctx, proposal)
	return args.Error(0)
}

var _ farming.Broadcaster = (*MockBroadcaster)(nil)
