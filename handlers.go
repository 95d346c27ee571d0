package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"temp_chat/internal/events"
)

// commands is what the shell needs from the app for either role.
type commands interface {
	HostMessage(content string) error
	SendMessage(content string) error
}

// runShell forwards typed lines to the chat and prints chat events until the
// user quits, the chat ends or ctx is cancelled.
func runShell(ctx context.Context, in io.Reader, out io.Writer, r role, cmds commands, evts <-chan events.Event, log *slog.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-evts:
			if line, ok := formatEvent(evt); ok {
				fmt.Fprintln(out, line)
			}
			if evt.Name == events.Shutdown {
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == quitCommand {
				return nil
			}
			send := cmds.SendMessage
			if r == roleHost {
				send = cmds.HostMessage
			}
			if err := send(line); err != nil {
				log.Debug("message not sent", "error", err)
				fmt.Fprintln(out, "! "+err.Error())
			}
		}
	}
}
