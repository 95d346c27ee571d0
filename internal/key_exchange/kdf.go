package key_exchange

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeyDeriver turns a join-link password into a GroupKeySize cipher key.
type KeyDeriver interface {
	DeriveKey(password string, salt []byte) ([]byte, error)
}

// Argon2id derives the key with argon2id, salted with the link nonce.
type Argon2id struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultArgon2id follows the RFC 9106 second recommended option.
var DefaultArgon2id = Argon2id{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}

func (a Argon2id) DeriveKey(password string, salt []byte) ([]byte, error) {
	if a.Time == 0 || a.MemoryKiB == 0 || a.Threads == 0 {
		return nil, fmt.Errorf("invalid argon2id parameters: t=%d m=%d p=%d", a.Time, a.MemoryKiB, a.Threads)
	}
	if len(salt) < 8 {
		return nil, fmt.Errorf("argon2id salt too short: %d", len(salt))
	}
	return argon2.IDKey([]byte(password), salt, a.Time, a.MemoryKiB, a.Threads, GroupKeySize), nil
}

// PaddedPassword zero-pads or truncates the raw password bytes to the key
// size. It is not a KDF; it only exists to open links minted by older hosts.
type PaddedPassword struct{}

func (PaddedPassword) DeriveKey(password string, _ []byte) ([]byte, error) {
	key := make([]byte, GroupKeySize)
	copy(key, password)
	return key, nil
}
