// Package tunnel exposes the relay's local port under a public base URL.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"strconv"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	subdomainAlphabet = "1234567890abcdefghijklmnopqrstuvwxyz"
	subdomainLength   = 16
)

// Tunnel is an open public route to a local port.
type Tunnel interface {
	URL() string
	Close() error
}

// Opener opens a tunnel to localPort. maxConns bounds the number of
// concurrent connections the tunnel carries.
type Opener interface {
	Open(ctx context.Context, localPort int, subdomain string, maxConns int) (Tunnel, error)
}

// NewSubdomain returns a random chat id usable as a tunnel subdomain.
func NewSubdomain() (string, error) {
	id, err := gonanoid.Generate(subdomainAlphabet, subdomainLength)
	if err != nil {
		return "", fmt.Errorf("generate subdomain: %w", err)
	}
	return id, nil
}

// Local exposes nothing and hands back the direct address of the relay.
type Local struct {
	Host string
}

func (l Local) Open(_ context.Context, localPort int, _ string, _ int) (Tunnel, error) {
	host := l.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return direct("http://" + net.JoinHostPort(host, strconv.Itoa(localPort))), nil
}

type direct string

func (d direct) URL() string  { return string(d) }
func (d direct) Close() error { return nil }
