package main

import (
	"fmt"

	"temp_chat/internal/events"
	"temp_chat/internal/protocol"
)

type role int

const (
	roleHost role = iota
	roleGuest
)

// options is the parsed command line.
type options struct {
	role     role
	link     string
	username string
	limit    int
	password string
}

const quitCommand = "/quit"

// formatEvent renders a chat event as one console line. Events with nothing
// to show return false.
func formatEvent(evt events.Event) (string, bool) {
	switch evt.Name {
	case events.NewMessage:
		msg, ok := evt.Payload.(protocol.BroadcastMessage)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("[%s] %s: %s", msg.Timestamp, msg.Sender, msg.Content), true
	case events.Join:
		msg, ok := evt.Payload.(protocol.JoinMessage)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("* %s joined", msg.Joined), true
	case events.ClientExit:
		payload, ok := evt.Payload.(events.ClientExitPayload)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("* %s left", payload.Username), true
	case events.Error:
		payload, ok := evt.Payload.(events.ErrorPayload)
		if !ok {
			return "", false
		}
		return "! " + payload.ErrorMsg, true
	case events.Shutdown:
		return "* chat closed", true
	}
	return "", false
}
