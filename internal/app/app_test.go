package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"temp_chat/internal/database"
	"temp_chat/internal/events"
	"temp_chat/internal/hub"
	"temp_chat/internal/joinlink"
	"temp_chat/internal/key_exchange"
	"temp_chat/internal/protocol"
	"temp_chat/internal/tunnel"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func upgradeHandler(h *hub.Hub) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = h.Accept(conn)
	})
}

func testOptions(sink events.Sink) Options {
	return Options{
		PortMin: 30000,
		PortMax: 39999,
		Codec:   joinlink.NewCodec(key_exchange.Argon2id{Time: 1, MemoryKiB: 64, Threads: 1}),
		Events:  sink,
		Handler: upgradeHandler,
		Log:     testLogger(),
	}
}

func waitFor(t *testing.T, sink *events.Channel, name string) events.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt := <-sink.Events():
			if evt.Name == name {
				return evt
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for "+name)
		}
	}
}

func TestCreateChat_RejectsInvalidSettings(t *testing.T) {
	a := New(testOptions(nil))
	tests := []struct {
		name     string
		username string
		limit    int
		password string
	}{
		{"empty username", "", 5, "pw"},
		{"long username", strings.Repeat("a", 16), 5, "pw"},
		{"zero limit", "host", 0, "pw"},
		{"limit above 250", "host", 251, "pw"},
		{"empty password", "host", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.CreateChat(context.Background(), tt.username, tt.limit, tt.password)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestApp_HostAndGuestLifecycle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db, err := database.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	req.NoError(err)
	t.Cleanup(func() { _ = database.Close(db) })

	hostEvents := events.NewChannel(testLogger(), 64)
	hostOpts := testOptions(hostEvents)
	hostOpts.DB = db
	host := New(hostOpts)

	// Given a host created a chat
	link, err := host.CreateChat(ctx, "host", 3, "secret")
	req.NoError(err)
	req.True(strings.HasPrefix(link, joinlink.Scheme))
	relayURL, err := hostOpts.Codec.Decode(link, "secret")
	req.NoError(err)
	req.Regexp(`^http://127\.0\.0\.1:3\d{4}$`, relayURL)

	_, err = host.CreateChat(ctx, "host", 3, "secret")
	req.ErrorIs(err, ErrChatRunning)

	// When a guest joins through the link
	guestEvents := events.NewChannel(testLogger(), 64)
	guest := New(testOptions(guestEvents))
	req.NoError(guest.JoinChat(ctx, "guest", link, "secret"))
	req.Equal(protocol.JoinMessage{Joined: "guest"}, waitFor(t, guestEvents, events.Join).Payload)
	req.Equal(protocol.JoinMessage{Joined: "guest"}, waitFor(t, hostEvents, events.Join).Payload)
	req.Equal(1, host.Members())

	// Then both sides can talk
	req.NoError(host.HostMessage("welcome"))
	msg := waitFor(t, guestEvents, events.NewMessage).Payload.(protocol.BroadcastMessage)
	req.Equal("host", msg.Sender)
	req.Equal("welcome", msg.Content)
	own := waitFor(t, hostEvents, events.NewMessage).Payload.(protocol.BroadcastMessage)
	req.Equal("host", own.Sender)
	req.Equal("welcome", own.Content)

	req.NoError(guest.SendMessage("thanks"))
	msg = waitFor(t, hostEvents, events.NewMessage).Payload.(protocol.BroadcastMessage)
	req.Equal("guest", msg.Sender)
	req.Equal("thanks", msg.Content)
	echo := waitFor(t, guestEvents, events.NewMessage).Payload.(protocol.BroadcastMessage)
	req.Equal("guest", echo.Sender)

	// When the host shuts the chat down
	req.NoError(host.Shutdown(ctx))

	// Then the guest is told and the host can no longer speak
	waitFor(t, guestEvents, events.Shutdown)
	waitFor(t, hostEvents, events.Shutdown)
	req.ErrorIs(host.HostMessage("late"), ErrNoChat)
	req.ErrorIs(host.Shutdown(ctx), ErrNoChat)

	// Then the ledger shows a closed chat with one finished membership
	var chats []database.ChatRecord
	req.NoError(db.Find(&chats).Error)
	req.Len(chats, 1)
	req.NotNil(chats[0].ClosedAt)
	var members []database.MemberRecord
	req.NoError(db.Find(&members).Error)
	req.Len(members, 1)
	req.Equal("guest", members[0].Username)
	req.NotEmpty(members[0].Thumbprint)
	req.NotNil(members[0].LeftAt)

	// Then a new chat may be created
	_, err = host.CreateChat(ctx, "host", 3, "secret")
	req.NoError(err)
	req.NoError(host.Shutdown(ctx))
}

func TestCreateChat_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	opts := testOptions(nil)
	opts.PortMin, opts.PortMax = port, port
	_, err = New(opts).CreateChat(context.Background(), "host", 3, "secret")

	require.EqualError(t, err, fmt.Sprintf("Unable to bind to port %d", port))
}

type failingOpener struct{}

func (failingOpener) Open(context.Context, int, string, int) (tunnel.Tunnel, error) {
	return nil, errors.New("connection refused")
}

func TestCreateChat_TunnelFailure(t *testing.T) {
	opts := testOptions(nil)
	opts.Opener = failingOpener{}
	a := New(opts)

	_, err := a.CreateChat(context.Background(), "host", 3, "secret")

	require.EqualError(t, err, "Unable to open up tunnel: connection refused")
	require.ErrorIs(t, a.HostMessage("hi"), ErrNoChat)
}

func TestGuestCommandsWithoutChat(t *testing.T) {
	a := New(testOptions(nil))
	require.Error(t, a.SendMessage("hi"))
	require.Error(t, a.LeaveChat())
}
