package hub

//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../../mocks/mock_sink.go -package=mocks

import "crypto/rsa"

// Sink is the outbound half of a member connection. Send must not block.
type Sink interface {
	Send(frame []byte) error
	Close() error
}

// Session is one accepted connection. It is owned by the Registry and never
// handed out; callers get a SessionView copy.
type Session struct {
	id         string
	username   string
	registered bool
	publicKey  *rsa.PublicKey
	thumbprint string
	sink       Sink
}

type SessionView struct {
	ID         string
	Username   string
	Registered bool
	Thumbprint string
}

func (s *Session) view() SessionView {
	return SessionView{
		ID:         s.id,
		Username:   s.username,
		Registered: s.registered,
		Thumbprint: s.thumbprint,
	}
}

// Admission is a join request after its public key has been parsed.
type Admission struct {
	Username   string
	PublicKey  *rsa.PublicKey
	KeyErr     error
	Thumbprint string
}

type admissionRule struct {
	Username string `validate:"required,max=15"`
}
