package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"temp_chat/internal/events"
	"temp_chat/internal/key_exchange"
	"temp_chat/internal/protocol"
)

const defaultSendBuffer = 256

// Observer is told about membership changes, e.g. to keep an audit ledger.
type Observer interface {
	MemberJoined(ctx context.Context, member SessionView)
	MemberLeft(ctx context.Context, member SessionView)
	ChatClosed(ctx context.Context)
}

type Config struct {
	HostUsername string
	UserLimit    int
	SendBuffer   int
}

// chatState is the group key, host name and user limit of one chat. It is
// guarded by Hub.stateMu and never locked together with the registry.
type chatState struct {
	key          *key_exchange.GroupKey
	hostUsername string
	userLimit    int
}

// Hub is one running chat. Connection goroutines feed the inBox and a single
// consumer (Run) applies every frame in arrival order.
type Hub struct {
	log        *slog.Logger
	events     events.Sink
	observer   Observer
	registry   *Registry
	sendBuffer int
	now        func() time.Time

	stateMu sync.Mutex
	state   chatState

	inBox        chan MessageEvent
	done         chan struct{}
	shutdownOnce sync.Once
}

// New creates the chat and generates its group key.
func New(cfg Config, log *slog.Logger, sink events.Sink, observer Observer) (*Hub, error) {
	key, err := key_exchange.NewGroupKey()
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = events.Discard
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	return &Hub{
		log:        log,
		events:     sink,
		observer:   observer,
		registry:   NewRegistry(log),
		sendBuffer: cfg.SendBuffer,
		now:        time.Now,
		state: chatState{
			key:          key,
			hostUsername: cfg.HostUsername,
			userLimit:    cfg.UserLimit,
		},
		inBox: make(chan MessageEvent, cfg.SendBuffer),
		done:  make(chan struct{}),
	}, nil
}

// Run consumes the inBox until ctx is cancelled or Shutdown is called.
// Cancelling ctx shuts the chat down.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-h.done:
			h.log.Info("hub shutting down")
			return
		case msg := <-h.inBox:
			h.dispatch(msg)
		}
	}
}

// Accept registers a websocket as an unregistered session and starts its
// pumps.
func (h *Hub) Accept(conn *websocket.Conn) error {
	client := NewClient(conn, h.sendBuffer, h.log)
	id, err := h.Attach(client)
	if err != nil {
		_ = conn.Close()
		return err
	}
	client.id = id

	go client.WritePump()
	go client.ReadPump(h)
	return nil
}

// Attach registers any Sink as an unregistered session.
func (h *Hub) Attach(sink Sink) (string, error) {
	id, err := h.registry.Register(sink)
	if err != nil {
		return "", err
	}
	h.log.Info("client connected", "conn_id", id, "total_sessions", h.registry.Len())
	return id, nil
}

// Deliver queues a decoded frame from connection id. It reports false once
// the chat is shut down.
func (h *Hub) Deliver(id string, frame protocol.Inbound) bool {
	return h.enqueue(MessageEvent{kind: inboxFrame, connID: id, frame: frame})
}

// Disconnect queues the teardown of a connection whose socket failed.
func (h *Hub) Disconnect(id string) {
	h.enqueue(MessageEvent{kind: inboxDisconnect, connID: id})
}

// HostMessage queues a message typed by the chat creator.
func (h *Hub) HostMessage(content string) error {
	if !h.enqueue(MessageEvent{kind: inboxHost, message: protocol.UserMessage{Content: content}}) {
		return ErrChatClosed
	}
	return nil
}

func (h *Hub) enqueue(msg MessageEvent) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.inBox <- msg:
		return true
	case <-h.done:
		return false
	}
}

// Members returns the number of registered sessions.
func (h *Hub) Members() int {
	return h.registry.CountRegistered()
}

// Done is closed once the chat has shut down.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) groupKey() *key_exchange.GroupKey {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.state.key
}

func (h *Hub) userLimit() int {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.state.userLimit
}

func (h *Hub) hostUsername() string {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.state.hostUsername
}
