package key_exchange

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/tink-crypto/tink-go/v2/daead/subtle"
)

const (
	// GroupKeySize is the AES-256-SIV key length: two AES-256 keys, one for
	// the synthetic IV and one for CTR encryption.
	GroupKeySize = 64
	NonceSize    = 16
)

var (
	ErrDecrypt = errors.New("failed to decrypt using group key")
	ErrEncrypt = errors.New("failed to encrypt using group key")
)

// GroupCipher is the misuse-resistant AEAD every chat payload is sealed with.
// The per-message nonce is bound into the synthetic IV as associated data, so
// a repeated nonce leaks only plaintext equality.
type GroupCipher struct {
	siv *subtle.AESSIV
}

func NewGroupCipher(key []byte) (*GroupCipher, error) {
	if len(key) != GroupKeySize {
		return nil, fmt.Errorf("invalid group key size: %d", len(key))
	}
	siv, err := subtle.NewAESSIV(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init aes-siv: %w", err)
	}
	return &GroupCipher{siv: siv}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (c *GroupCipher) Seal(plaintext []byte) (nonce, ciphertext []byte, err error) {
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to create nonce: %w", err)
	}
	return c.SealWithNonce(nonce, plaintext)
}

func (c *GroupCipher) SealWithNonce(nonce, plaintext []byte) ([]byte, []byte, error) {
	if len(nonce) != NonceSize {
		return nil, nil, fmt.Errorf("%w: nonce must be %d bytes", ErrEncrypt, NonceSize)
	}
	ciphertext, err := c.siv.EncryptDeterministically(plaintext, nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	return nonce, ciphertext, nil
}

// Open authenticates and decrypts. A wrong key, a tampered ciphertext or a
// corrupted nonce all yield ErrDecrypt.
func (c *GroupCipher) Open(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", ErrDecrypt, NonceSize)
	}
	plaintext, err := c.siv.DecryptDeterministically(ciphertext, nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}
