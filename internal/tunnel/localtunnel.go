package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultServer     = "https://loca.lt"
	defaultRetryDelay = time.Second
)

// Localtunnel opens tunnels through a localtunnel server: the server assigns
// a public URL and a TCP port, and every connection made to that port is
// piped to the local relay.
type Localtunnel struct {
	Server     string
	LocalHost  string
	Client     *http.Client
	RetryDelay time.Duration
	Log        *slog.Logger
}

type assignment struct {
	ID           string `json:"id"`
	Port         int    `json:"port"`
	MaxConnCount int    `json:"max_conn_count"`
	URL          string `json:"url"`
	Message      string `json:"message"`
}

func (lt *Localtunnel) Open(ctx context.Context, localPort int, subdomain string, maxConns int) (Tunnel, error) {
	server := lt.Server
	if server == "" {
		server = DefaultServer
	}
	base, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parse tunnel server %q: %w", server, err)
	}

	assigned, err := lt.request(ctx, base, subdomain)
	if err != nil {
		return nil, err
	}

	conns := maxConns
	if assigned.MaxConnCount > 0 && assigned.MaxConnCount < conns {
		conns = assigned.MaxConnCount
	}
	if conns <= 0 {
		conns = 1
	}

	log := lt.Log
	if log == nil {
		log = slog.Default()
	}
	localHost := lt.LocalHost
	if localHost == "" {
		localHost = "127.0.0.1"
	}
	retry := lt.RetryDelay
	if retry <= 0 {
		retry = defaultRetryDelay
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t := &remote{
		url:    assigned.URL,
		remote: net.JoinHostPort(base.Hostname(), strconv.Itoa(assigned.Port)),
		local:  net.JoinHostPort(localHost, strconv.Itoa(localPort)),
		retry:  retry,
		log:    log.With("tunnel_id", assigned.ID),
		cancel: cancel,
		active: make(map[net.Conn]struct{}),
	}
	for range conns {
		t.wg.Add(1)
		go t.serve(runCtx)
	}
	t.log.Info("tunnel opened", "url", t.url, "connections", conns)
	return t, nil
}

func (lt *Localtunnel) request(ctx context.Context, base *url.URL, subdomain string) (assignment, error) {
	endpoint := base.JoinPath(subdomain)
	if subdomain == "" {
		endpoint = base.JoinPath("/")
		endpoint.RawQuery = "new"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return assignment{}, fmt.Errorf("build tunnel request: %w", err)
	}

	client := lt.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return assignment{}, fmt.Errorf("request tunnel: %w", err)
	}
	defer resp.Body.Close()

	var assigned assignment
	if err := json.NewDecoder(resp.Body).Decode(&assigned); err != nil {
		return assignment{}, fmt.Errorf("decode tunnel assignment: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if assigned.Message != "" {
			return assignment{}, errors.New(assigned.Message)
		}
		return assignment{}, fmt.Errorf("tunnel server returned %s", resp.Status)
	}
	if assigned.URL == "" || assigned.Port == 0 {
		return assignment{}, errors.New("tunnel server returned an incomplete assignment")
	}
	return assigned, nil
}

type remote struct {
	url    string
	remote string
	local  string
	retry  time.Duration
	log    *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[net.Conn]struct{}
	closed bool
}

func (t *remote) URL() string { return t.url }

// Close stops redialing and cuts every piped connection.
func (t *remote) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.cancel()
	for conn := range t.active {
		_ = conn.Close()
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.log.Info("tunnel closed", "url", t.url)
	return nil
}

// serve keeps one connection slot to the tunnel server busy until the tunnel
// is closed.
func (t *remote) serve(ctx context.Context) {
	defer t.wg.Done()
	var dialer net.Dialer
	for ctx.Err() == nil {
		if err := t.pipeOnce(ctx, &dialer); err != nil && ctx.Err() == nil {
			t.log.Debug("tunnel connection failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(t.retry):
			}
		}
	}
}

func (t *remote) pipeOnce(ctx context.Context, dialer *net.Dialer) error {
	upstream, err := dialer.DialContext(ctx, "tcp", t.remote)
	if err != nil {
		return fmt.Errorf("dial tunnel server: %w", err)
	}
	if !t.track(upstream) {
		_ = upstream.Close()
		return nil
	}
	defer t.untrack(upstream)

	// The server only hands traffic over once data arrives, so the local side
	// is dialed lazily on the first byte.
	first := make([]byte, 32*1024)
	n, err := upstream.Read(first)
	if err != nil {
		return fmt.Errorf("read tunnel connection: %w", err)
	}

	local, err := dialer.DialContext(ctx, "tcp", t.local)
	if err != nil {
		return fmt.Errorf("dial local relay: %w", err)
	}
	if !t.track(local) {
		_ = local.Close()
		return nil
	}
	defer t.untrack(local)

	if _, err := local.Write(first[:n]); err != nil {
		return fmt.Errorf("forward to local relay: %w", err)
	}

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(local, upstream)
		_ = local.Close()
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(upstream, local)
		_ = upstream.Close()
		done <- struct{}{}
	}()
	<-done
	<-done
	return nil
}

func (t *remote) track(conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.active[conn] = struct{}{}
	return true
}

func (t *remote) untrack(conn net.Conn) {
	t.mu.Lock()
	delete(t.active, conn)
	t.mu.Unlock()
	_ = conn.Close()
}
