package hub

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var validate = validator.New()

// Registry maps connection ids to sessions. Every membership mutation of one
// chat goes through its single lock.
type Registry struct {
	log      *slog.Logger
	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Register stores a new unregistered session and returns its id.
func (r *Registry) Register(sink Sink) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrChatClosed
	}
	id := uuid.NewString()
	for r.sessions[id] != nil {
		id = uuid.NewString()
	}
	r.sessions[id] = &Session{id: id, sink: sink}
	r.log.Debug("session registered", "conn_id", id, "total_sessions", len(r.sessions))
	return id, nil
}

func (r *Registry) Lookup(id string) (SessionView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return SessionView{}, false
	}
	return session.view(), true
}

// Remove deletes the session and closes its sink. Removing an unknown id is a
// no-op.
func (r *Registry) Remove(id string) (SessionView, bool) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return SessionView{}, false
	}
	if err := session.sink.Close(); err != nil {
		r.log.Error("failed to close session sink", "conn_id", id, "error", err)
	}
	return session.view(), true
}

// ForEachRegistered calls fn for every registered session. fn runs on a
// snapshot taken under the lock, so it may block without stalling the
// registry.
func (r *Registry) ForEachRegistered(fn func(SessionView, Sink)) {
	r.mu.Lock()
	registered := lo.Filter(lo.Values(r.sessions), func(s *Session, _ int) bool {
		return s.registered
	})
	snapshot := lo.Map(registered, func(s *Session, _ int) lo.Tuple2[SessionView, Sink] {
		return lo.T2(s.view(), s.sink)
	})
	r.mu.Unlock()

	for _, entry := range snapshot {
		fn(entry.A, entry.B)
	}
}

func (r *Registry) CountRegistered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countRegistered()
}

func (r *Registry) countRegistered() int {
	return lo.CountBy(lo.Values(r.sessions), func(s *Session) bool {
		return s.registered
	})
}

// Promote validates a join and registers the session in one critical
// section, so concurrent joins cannot overshoot limit. Checks run in a fixed
// order and stop at the first failure: capacity, public key, duplicate
// username, username length.
func (r *Registry) Promote(id string, limit int, admission Admission) (SessionView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return SessionView{}, ErrChatClosed
	}
	session, ok := r.sessions[id]
	if !ok {
		return SessionView{}, ErrConnectionClosed
	}
	if session.registered {
		return SessionView{}, ErrAlreadyJoined
	}
	if r.countRegistered()+1 > limit {
		return SessionView{}, ErrMaxJoins
	}
	if admission.KeyErr != nil || admission.PublicKey == nil {
		return SessionView{}, ErrInvalidPublicKey
	}
	_, taken := lo.Find(lo.Values(r.sessions), func(s *Session) bool {
		return s.registered && s.username == admission.Username
	})
	if taken {
		return SessionView{}, ErrUsernameTaken
	}
	if err := validate.Struct(admissionRule{Username: admission.Username}); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 && invalid[0].Tag() == "required" {
			return SessionView{}, ErrUsernameRequired
		}
		return SessionView{}, ErrUsernameTooLong
	}

	session.username = admission.Username
	session.registered = true
	session.publicKey = admission.PublicKey
	session.thumbprint = admission.Thumbprint
	return session.view(), nil
}

// Demote reverts a Promote whose key delivery failed.
func (r *Registry) Demote(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		session.username = ""
		session.registered = false
		session.publicKey = nil
		session.thumbprint = ""
	}
}

// Send unicasts frame to one session.
func (r *Registry) Send(id string, frame []byte) error {
	r.mu.Lock()
	session, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return ErrConnectionClosed
	}
	return session.sink.Send(frame)
}

// Drain empties the registry for good and returns what it held. Later
// Register and Promote calls fail with ErrChatClosed.
func (r *Registry) Drain() []lo.Tuple2[SessionView, Sink] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	drained := lo.MapToSlice(r.sessions, func(_ string, s *Session) lo.Tuple2[SessionView, Sink] {
		return lo.T2(s.view(), s.sink)
	})
	r.sessions = make(map[string]*Session)
	return drained
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
