package hub

import (
	"context"
	"encoding/json"
	"errors"

	"temp_chat/internal"
	"temp_chat/internal/events"
	"temp_chat/internal/key_exchange"
	"temp_chat/internal/protocol"
)

func (h *Hub) dispatch(msg MessageEvent) {
	switch msg.kind {
	case inboxFrame:
		h.handleFrame(msg.connID, msg.frame)
	case inboxDisconnect:
		h.teardown(msg.connID)
	case inboxHost:
		h.handleHostMessage(msg.message)
	}
}

func (h *Hub) handleFrame(id string, frame protocol.Inbound) {
	switch f := frame.(type) {
	case protocol.Join:
		h.handleJoin(id, f)
	case protocol.EncData:
		h.handleEncData(id, f)
	case protocol.Exit:
		h.teardown(id)
	default:
		h.log.Debug("ignoring unexpected frame", "conn_id", id, "tag", frame.Tag())
	}
}

func (h *Hub) handleJoin(id string, join protocol.Join) {
	admission := Admission{Username: join.Username}
	admission.PublicKey, admission.KeyErr = internal.ParsePublicKeyPEM(join.PublicKey)
	if admission.KeyErr == nil {
		thumbprint, err := key_exchange.Thumbprint(admission.PublicKey)
		if err != nil {
			admission.KeyErr = err
		}
		admission.Thumbprint = thumbprint
	}

	member, err := h.registry.Promote(id, h.userLimit(), admission)
	if err != nil {
		h.log.Info("join rejected", "conn_id", id, "username", join.Username, "reason", err)
		h.replyError(id, err)
		return
	}

	wrapped, err := h.groupKey().WrapFor(admission.PublicKey)
	if err != nil {
		h.log.Error("failed to wrap group key", "conn_id", id, "error", err)
		h.registry.Demote(id)
		h.replyError(id, ErrKeyWrapFailed)
		return
	}
	if err := h.unicast(id, protocol.KeyMessage{WrappedKey: wrapped}); err != nil {
		h.log.Warn("failed to deliver key message", "conn_id", id, "error", err)
		h.teardown(id)
		return
	}

	h.log.Info("member joined", "conn_id", id, "username", member.Username, "key", member.Thumbprint)
	joined := protocol.JoinMessage{Joined: member.Username}
	h.broadcastFrame(joined)
	h.events.Emit(events.Join, joined)
	if h.observer != nil {
		h.observer.MemberJoined(context.Background(), member)
	}
}

func (h *Hub) handleEncData(id string, data protocol.EncData) {
	member, ok := h.registry.Lookup(id)
	if !ok || !member.Registered {
		h.replyError(id, ErrNotRegistered)
		return
	}

	plaintext, err := h.groupKey().Open(data.Nonce, data.Data)
	if err != nil {
		h.log.Info("undecryptable message", "conn_id", id, "error", err)
		h.replyError(id, ErrDecryptFailed)
		return
	}

	var message protocol.UserMessage
	if err := json.Unmarshal(plaintext, &message); err != nil {
		h.log.Debug("dropping malformed user message", "conn_id", id, "error", err)
		return
	}

	if err := h.publish(member.Username, message); err != nil {
		h.replyError(id, err)
	}
}

func (h *Hub) handleHostMessage(message protocol.UserMessage) {
	if err := h.publish(h.hostUsername(), message); err != nil {
		h.log.Warn("host message rejected", "reason", err)
		h.events.Emit(events.Error, events.ErrorPayload{ErrorMsg: err.Error()})
	}
}

// publish builds the BroadcastMessage for sender, seals it under the group
// key and fans it out.
func (h *Hub) publish(sender string, message protocol.UserMessage) error {
	if err := validate.Struct(message); err != nil {
		return ErrMessageTooLong
	}

	broadcast := protocol.BroadcastMessage{
		Sender:    sender,
		Content:   message.Content,
		Timestamp: h.now().Format(protocol.TimestampLayout),
	}
	plaintext, err := json.Marshal(broadcast)
	if err != nil {
		h.log.Error("failed to marshal broadcast message", "error", err)
		return ErrEncryptFailed
	}

	nonce, ciphertext, err := h.groupKey().Seal(plaintext)
	if err != nil {
		h.log.Error("failed to seal broadcast message", "error", err)
		return ErrEncryptFailed
	}

	h.broadcastFrame(protocol.EncData{Nonce: nonce, Data: ciphertext})
	h.events.Emit(events.NewMessage, broadcast)
	return nil
}

// replyError sends an Error frame to one session. A session that cannot even
// receive its error is torn down.
func (h *Hub) replyError(id string, cause error) {
	var protocolErr ProtocolError
	if !errors.As(cause, &protocolErr) {
		protocolErr = ProtocolError(cause.Error())
	}
	if err := h.unicast(id, protocol.Error{ErrorMsg: protocolErr.Error()}); err != nil {
		h.log.Warn("failed to send error frame", "conn_id", id, "error", err)
		h.teardown(id)
	}
}

func (h *Hub) unicast(id string, frame protocol.Outbound) error {
	encoded, err := protocol.EncodeOutbound(frame)
	if err != nil {
		return err
	}
	return h.registry.Send(id, encoded)
}

// teardown handles Exit and failed sockets alike: announce a registered
// member's departure, then remove the session and close its socket.
func (h *Hub) teardown(id string) {
	member, ok := h.registry.Lookup(id)
	if !ok {
		return
	}
	if member.Registered {
		h.events.Emit(events.ClientExit, events.ClientExitPayload{Username: member.Username})
	}
	h.registry.Remove(id)
	h.log.Info("client disconnected", "conn_id", id, "username", member.Username, "total_sessions", h.registry.Len())
	if member.Registered && h.observer != nil {
		h.observer.MemberLeft(context.Background(), member)
	}
}
