package hub

import "temp_chat/internal/protocol"

type inboxKind int

const (
	inboxFrame inboxKind = iota
	inboxDisconnect
	inboxHost
)

// MessageEvent is one unit of work for the consumer loop.
type MessageEvent struct {
	kind    inboxKind
	connID  string
	frame   protocol.Inbound
	message protocol.UserMessage
}
