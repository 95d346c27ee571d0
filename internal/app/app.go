// Package app implements the user-level commands: create or join a chat,
// speak as the host and shut the chat down.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"temp_chat/internal/database"
	"temp_chat/internal/events"
	"temp_chat/internal/hub"
	"temp_chat/internal/joinlink"
	"temp_chat/internal/member"
	"temp_chat/internal/tunnel"
)

// Error is a command failure shown to the user as is.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrChatRunning  Error = "Chat already running"
	ErrNoChat       Error = "No chat running"
	ErrInvalidInput Error = "Invalid chat settings"
	ErrNoHandler    Error = "Relay handler not configured"
)

const shutdownTimeout = 5 * time.Second

// HandlerFunc builds the relay's HTTP handler for a running hub.
type HandlerFunc func(h *hub.Hub) http.Handler

type Options struct {
	Host       string
	PortMin    int
	PortMax    int
	ExtraConns int
	SendBuffer int
	Opener     tunnel.Opener
	Codec      *joinlink.Codec
	DB         *gorm.DB
	Events     events.Sink
	Handler    HandlerFunc
	Log        *slog.Logger
}

type createRequest struct {
	Username  string `validate:"required,max=15"`
	UserLimit int    `validate:"min=1,max=250"`
	Password  string `validate:"required"`
}

var validate = validator.New()

type App struct {
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	chat   *runningChat
	member *member.Member
}

type runningChat struct {
	id       string
	hub      *hub.Hub
	server   *http.Server
	tunnel   tunnel.Tunnel
	cancel   context.CancelFunc
	finished chan struct{}
}

func New(opts Options) *App {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.Codec == nil {
		opts.Codec = joinlink.NewCodec(nil)
	}
	if opts.Opener == nil {
		opts.Opener = tunnel.Local{Host: opts.Host}
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.PortMin <= 0 || opts.PortMax < opts.PortMin {
		opts.PortMin, opts.PortMax = 10000, 20000
	}
	return &App{opts: opts, log: opts.Log}
}

// CreateChat starts a relay on a random port, opens the tunnel and returns the
// password protected join link.
func (a *App) CreateChat(ctx context.Context, username string, userLimit int, password string) (string, error) {
	if err := validate.Struct(createRequest{Username: username, UserLimit: userLimit, Password: password}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if a.opts.Handler == nil {
		return "", ErrNoHandler
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chat != nil {
		return "", ErrChatRunning
	}

	port := a.opts.PortMin + rand.IntN(a.opts.PortMax-a.opts.PortMin+1)
	listener, err := net.Listen("tcp", net.JoinHostPort(a.opts.Host, strconv.Itoa(port)))
	if err != nil {
		a.log.Error("failed to bind relay port", "port", port, "error", err)
		return "", Error(fmt.Sprintf("Unable to bind to port %d", port))
	}
	a.log.Info("started listening", "port", port)

	chatID, err := tunnel.NewSubdomain()
	if err != nil {
		_ = listener.Close()
		return "", err
	}
	tun, err := a.opts.Opener.Open(ctx, port, chatID, userLimit+a.opts.ExtraConns)
	if err != nil {
		_ = listener.Close()
		return "", Error(fmt.Sprintf("Unable to open up tunnel: %v", err))
	}

	var observer hub.Observer
	if a.opts.DB != nil {
		ledger, err := database.StartChat(ctx, a.opts.DB, a.log, chatID, username, userLimit)
		if err != nil {
			a.log.Error("failed to record chat", "chat_id", chatID, "error", err)
		} else {
			observer = ledger
		}
	}

	h, err := hub.New(hub.Config{HostUsername: username, UserLimit: userLimit, SendBuffer: a.opts.SendBuffer},
		a.log.With("chat_id", chatID), a.opts.Events, observer)
	if err != nil {
		if observer != nil {
			observer.ChatClosed(ctx)
		}
		_ = tun.Close()
		_ = listener.Close()
		return "", err
	}

	link, err := a.opts.Codec.Encode(tun.URL(), password)
	if err != nil {
		h.Shutdown()
		_ = tun.Close()
		_ = listener.Close()
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	chat := &runningChat{
		id:       chatID,
		hub:      h,
		server:   &http.Server{Handler: a.opts.Handler(h), ReadHeaderTimeout: 10 * time.Second},
		tunnel:   tun,
		cancel:   cancel,
		finished: make(chan struct{}),
	}
	go func() {
		defer close(chat.finished)
		h.Run(runCtx)
	}()
	go func() {
		if err := chat.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("relay server stopped", "error", err)
		}
	}()

	a.chat = chat
	a.log.Info("chat created", "chat_id", chatID, "url", tun.URL(), "user_limit", userLimit)
	return link, nil
}

// HostMessage broadcasts content from the host.
func (a *App) HostMessage(content string) error {
	a.mu.Lock()
	chat := a.chat
	a.mu.Unlock()
	if chat == nil {
		return ErrNoChat
	}
	return chat.hub.HostMessage(content)
}

// Members returns the number of joined members of the running chat.
func (a *App) Members() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chat == nil {
		return 0
	}
	return a.chat.hub.Members()
}

// Shutdown ends the running chat: members are told, sockets closed, the key
// destroyed, then the server and tunnel are stopped.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	chat := a.chat
	a.chat = nil
	a.mu.Unlock()
	if chat == nil {
		return ErrNoChat
	}

	chat.hub.Shutdown()
	chat.cancel()
	<-chat.finished

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	var errs []error
	if err := chat.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop relay server: %w", err))
	}
	if err := chat.tunnel.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close tunnel: %w", err))
	}
	a.opts.Events.Emit(events.Shutdown, nil)
	a.log.Info("chat closed", "chat_id", chat.id)
	return errors.Join(errs...)
}

// JoinChat connects to another host's chat. Events are forwarded to the
// application sink.
func (a *App) JoinChat(ctx context.Context, username, link, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.member != nil {
		select {
		case <-a.member.Done():
		default:
			return ErrChatRunning
		}
	}
	m, err := member.Join(ctx, username, link, password, member.Options{
		Codec:  a.opts.Codec,
		Events: a.opts.Events,
		Log:    a.log.With("username", username),
	})
	if err != nil {
		return err
	}
	a.member = m
	return nil
}

// SendMessage sends content to the chat joined with JoinChat.
func (a *App) SendMessage(content string) error {
	m, err := a.joined()
	if err != nil {
		return err
	}
	return m.Send(content)
}

// LeaveChat exits the chat joined with JoinChat.
func (a *App) LeaveChat() error {
	m, err := a.joined()
	if err != nil {
		return err
	}
	a.opts.Events.Emit(events.ClientExit, events.ClientExitPayload{Username: m.Username()})
	return m.Exit()
}

func (a *App) joined() (*member.Member, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.member == nil {
		return nil, member.ErrNotJoined
	}
	return a.member, nil
}
