package hub

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"temp_chat/internal"
	"temp_chat/internal/events"
	"temp_chat/internal/protocol"
	"temp_chat/mocks"
)

func TestHub_EmitsMembershipEventsInOrder(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockEventSink(ctrl)
	h, err := New(Config{HostUsername: "host", UserLimit: 2}, testLogger(), sink, nil)
	req.NoError(err)
	t.Cleanup(h.Shutdown)

	// Given the host expects a join then an exit, and nothing else
	gomock.InOrder(
		sink.EXPECT().Emit(events.Join, protocol.JoinMessage{Joined: "alice"}).Times(1),
		sink.EXPECT().Emit(events.ClientExit, events.ClientExitPayload{Username: "alice"}).Times(1),
	)

	id, err := h.Attach(&fakeSink{})
	req.NoError(err)

	// When alice joins, is refused a second join, then leaves
	join := protocol.Join{Username: "alice", PublicKey: internal.EncodePublicKeyPEM(&testMemberKey(t).PublicKey)}
	h.dispatch(MessageEvent{kind: inboxFrame, connID: id, frame: join})
	h.dispatch(MessageEvent{kind: inboxFrame, connID: id, frame: join})
	h.dispatch(MessageEvent{kind: inboxFrame, connID: id, frame: protocol.Exit{}})

	// Then a late socket error for the same connection is silent
	h.dispatch(MessageEvent{kind: inboxDisconnect, connID: id})
	req.Equal(0, h.Members())
}
