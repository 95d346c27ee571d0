package key_exchange

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

var ErrKeyDestroyed = errors.New("group key destroyed")

// GroupKey is the symmetric key shared by every registered member of one
// chat. It lives in a guarded memguard buffer and never leaves this type
// except wrapped under a member's RSA public key.
type GroupKey struct {
	mu     sync.RWMutex
	buf    *memguard.LockedBuffer
	cipher *GroupCipher
}

// NewGroupKey generates the key. It is called exactly once per chat.
func NewGroupKey() (*GroupKey, error) {
	buf := memguard.NewBufferRandom(GroupKeySize)
	cipher, err := NewGroupCipher(buf.Bytes())
	if err != nil {
		buf.Destroy()
		return nil, err
	}
	return &GroupKey{buf: buf, cipher: cipher}, nil
}

func (k *GroupKey) Seal(plaintext []byte) ([]byte, []byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.cipher == nil {
		return nil, nil, ErrKeyDestroyed
	}
	return k.cipher.Seal(plaintext)
}

func (k *GroupKey) Open(nonce, ciphertext []byte) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.cipher == nil {
		return nil, ErrKeyDestroyed
	}
	return k.cipher.Open(nonce, ciphertext)
}

// WrapFor encrypts the group key for a single member.
func (k *GroupKey) WrapFor(pub *rsa.PublicKey) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.cipher == nil {
		return nil, ErrKeyDestroyed
	}
	wrapped, err := WrapKey(pub, k.buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to wrap group key: %w", err)
	}
	return wrapped, nil
}

// Alive reports whether the key material is still present.
func (k *GroupKey) Alive() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cipher != nil && k.buf.IsAlive()
}

// Destroy zeroes and releases the key. Safe to call more than once.
func (k *GroupKey) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cipher = nil
	if k.buf != nil {
		k.buf.Destroy()
	}
}
