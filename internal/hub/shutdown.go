package hub

import (
	"context"

	"temp_chat/internal/protocol"
)

// Shutdown tells every registered member the chat is over, closes every
// socket, empties the registry, destroys the group key and stops the
// consumer. Only the first call has any effect.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		frame, err := protocol.EncodeOutbound(protocol.Shutdown{})
		if err != nil {
			h.log.Error("failed to encode shutdown frame", "error", err)
		}

		for _, entry := range h.registry.Drain() {
			member, sink := entry.A, entry.B
			if member.Registered && frame != nil {
				if err := sink.Send(frame); err != nil {
					h.log.Warn("failed to send shutdown to client", "conn_id", member.ID, "error", err)
				}
			}
			if err := sink.Close(); err != nil {
				h.log.Error("error closing client socket", "conn_id", member.ID, "error", err)
			}
		}

		h.stateMu.Lock()
		h.state.key.Destroy()
		h.state.hostUsername = ""
		h.state.userLimit = 0
		h.stateMu.Unlock()

		close(h.done)
		if h.observer != nil {
			h.observer.ChatClosed(context.Background())
		}
		h.log.Info("chat shut down")
	})
}
