package hub

import "temp_chat/internal/protocol"

// Broadcast sends frame to every registered session. A failing recipient is
// logged and skipped; the ids of failed recipients are returned.
func (h *Hub) Broadcast(frame []byte) (failed []string) {
	h.registry.ForEachRegistered(func(member SessionView, sink Sink) {
		if err := sink.Send(frame); err != nil {
			h.log.Warn("failed to broadcast to client", "conn_id", member.ID, "error", err)
			failed = append(failed, member.ID)
		}
	})
	return failed
}

// broadcastFrame encodes and broadcasts frame, then tears down the sessions
// that could not take it.
func (h *Hub) broadcastFrame(frame protocol.Outbound) {
	encoded, err := protocol.EncodeOutbound(frame)
	if err != nil {
		h.log.Error("failed to encode broadcast frame", "tag", frame.Tag(), "error", err)
		return
	}
	for _, id := range h.Broadcast(encoded) {
		h.teardown(id)
	}
}
