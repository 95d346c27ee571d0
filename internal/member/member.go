// Package member is the joining side of a chat: it opens a join link,
// performs the key handshake and relays encrypted traffic.
package member

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"temp_chat/internal"
	"temp_chat/internal/events"
	"temp_chat/internal/joinlink"
	"temp_chat/internal/key_exchange"
	"temp_chat/internal/protocol"
)

const writeWait = 10 * time.Second

// Error is a member-side failure shown to the user as is.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrNotJoined       Error = "Not joined yet"
	ErrMessageTooLong  Error = "Message too long"
	ErrConnection      Error = "Couldn't connect to chat"
	ErrKeyUnwrapFailed Error = "Couldn't decrypt chat key"
	ErrClosed          Error = "Connection to chat closed"
)

type Options struct {
	Codec  *joinlink.Codec
	Dialer *websocket.Dialer
	Events events.Sink
	Log    *slog.Logger
}

// Member is one joined (or joining) connection to a relay.
type Member struct {
	username string
	log      *slog.Logger
	events   events.Sink
	conn     *websocket.Conn
	key      *rsa.PrivateKey

	mu     sync.Mutex
	cipher *key_exchange.GroupCipher

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Join decodes link with password, connects to the relay and sends the join
// request. The group key arrives asynchronously; a join event is emitted
// once the relay announces the member.
func Join(ctx context.Context, username, link, password string, opts Options) (*Member, error) {
	codec := opts.Codec
	if codec == nil {
		codec = joinlink.NewCodec(nil)
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	sink := opts.Events
	if sink == nil {
		sink = events.Discard
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	relayURL, err := codec.Decode(link, password)
	if err != nil {
		return nil, err
	}

	key, err := key_exchange.GenerateMemberKey()
	if err != nil {
		return nil, err
	}

	conn, _, err := dialer.DialContext(ctx, websocketURL(relayURL), nil)
	if err != nil {
		log.Warn("failed to connect to relay", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	m := &Member{
		username: username,
		log:      log,
		events:   sink,
		conn:     conn,
		key:      key,
		done:     make(chan struct{}),
	}
	if err := m.write(protocol.Join{Username: username, PublicKey: internal.EncodePublicKeyPEM(&key.PublicKey)}); err != nil {
		m.close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	go m.readLoop()
	return m, nil
}

// websocketURL rewrites an http(s) relay URL to ws(s).
func websocketURL(relayURL string) string {
	switch {
	case strings.HasPrefix(relayURL, "https://"):
		return "wss://" + strings.TrimPrefix(relayURL, "https://")
	case strings.HasPrefix(relayURL, "http://"):
		return "ws://" + strings.TrimPrefix(relayURL, "http://")
	default:
		return relayURL
	}
}

func (m *Member) Username() string { return m.username }

// Joined reports whether the group key has been received.
func (m *Member) Joined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cipher != nil
}

// Done is closed once the connection is gone.
func (m *Member) Done() <-chan struct{} { return m.done }

// Send encrypts content under the group key and sends it to the relay.
func (m *Member) Send(content string) error {
	m.mu.Lock()
	cipher := m.cipher
	m.mu.Unlock()
	if cipher == nil {
		return ErrNotJoined
	}
	if utf8.RuneCountInString(content) > protocol.MaxContentLength {
		return ErrMessageTooLong
	}

	plaintext, err := json.Marshal(protocol.UserMessage{Content: content})
	if err != nil {
		return err
	}
	nonce, ciphertext, err := cipher.Seal(plaintext)
	if err != nil {
		return err
	}
	return m.write(protocol.EncData{Nonce: nonce, Data: ciphertext})
}

// Exit leaves the chat and closes the connection.
func (m *Member) Exit() error {
	select {
	case <-m.done:
		return nil
	default:
	}
	err := m.write(protocol.Exit{})
	m.close()
	return err
}

func (m *Member) write(frame protocol.Inbound) error {
	encoded, err := protocol.EncodeInbound(frame)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	_ = m.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return m.conn.WriteMessage(websocket.TextMessage, encoded)
}

func (m *Member) close() {
	m.closeOnce.Do(func() {
		m.writeMu.Lock()
		close(m.done)
		closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = m.conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(writeWait))
		m.writeMu.Unlock()
		_ = m.conn.Close()
	})
}

func (m *Member) readLoop() {
	defer m.close()
	for {
		_, message, err := m.conn.ReadMessage()
		if err != nil {
			select {
			case <-m.done:
			default:
				m.log.Warn("relay connection lost", "error", err)
				m.events.Emit(events.Error, events.ErrorPayload{ErrorMsg: ErrClosed.Error()})
			}
			return
		}

		frame, err := protocol.DecodeOutbound(message)
		if err != nil {
			m.log.Debug("dropping malformed frame", "error", err)
			continue
		}
		if !m.handle(frame) {
			return
		}
	}
}

// handle applies one relay frame and reports whether to keep reading.
func (m *Member) handle(frame protocol.Outbound) bool {
	switch f := frame.(type) {
	case protocol.KeyMessage:
		raw, err := key_exchange.UnwrapKey(m.key, f.WrappedKey)
		if err != nil {
			m.log.Error("failed to unwrap group key", "error", err)
			m.events.Emit(events.Error, events.ErrorPayload{ErrorMsg: ErrKeyUnwrapFailed.Error()})
			return true
		}
		cipher, err := key_exchange.NewGroupCipher(raw)
		if err != nil {
			m.log.Error("failed to build group cipher", "error", err)
			m.events.Emit(events.Error, events.ErrorPayload{ErrorMsg: ErrKeyUnwrapFailed.Error()})
			return true
		}
		m.mu.Lock()
		m.cipher = cipher
		m.mu.Unlock()
	case protocol.EncData:
		m.mu.Lock()
		cipher := m.cipher
		m.mu.Unlock()
		if cipher == nil {
			m.log.Debug("message before key, dropping")
			return true
		}
		plaintext, err := cipher.Open(f.Nonce, f.Data)
		if err != nil {
			m.log.Warn("undecryptable broadcast", "error", err)
			return true
		}
		var msg protocol.BroadcastMessage
		if err := json.Unmarshal(plaintext, &msg); err != nil {
			m.log.Debug("dropping malformed broadcast", "error", err)
			return true
		}
		m.events.Emit(events.NewMessage, msg)
	case protocol.JoinMessage:
		m.events.Emit(events.Join, f)
	case protocol.Error:
		m.events.Emit(events.Error, events.ErrorPayload{ErrorMsg: f.ErrorMsg})
	case protocol.Shutdown:
		m.log.Info("chat shut down by host")
		m.events.Emit(events.Shutdown, nil)
		return false
	}
	return true
}
