// Package joinlink encodes the relay's public URL into a password protected
// join link of the form temp://<hex nonce>_<hex ciphertext>.
package joinlink

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"temp_chat/internal/key_exchange"
)

const Scheme = "temp://"

// Error is a join-link failure whose text is shown to the user as is.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrFormat   Error = "URL is in incorrect format"
	ErrDecode   Error = "Could not decode URL"
	ErrPassword Error = "Incorrect password supplied"
	ErrUTF8     Error = "Decrypted URL is not valid UTF-8"
	ErrEncrypt  Error = "Couldn't encrypt join url"
)

type Codec struct {
	kdf key_exchange.KeyDeriver
}

// NewCodec builds a codec deriving link keys with kdf, or with the default
// argon2id parameters when kdf is nil.
func NewCodec(kdf key_exchange.KeyDeriver) *Codec {
	if kdf == nil {
		kdf = key_exchange.DefaultArgon2id
	}
	return &Codec{kdf: kdf}
}

func (c *Codec) Encode(url, password string) (string, error) {
	nonce, ciphertext, err := c.seal(url, password)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s_%s", Scheme, hex.EncodeToString(nonce), hex.EncodeToString(ciphertext)), nil
}

func (c *Codec) seal(url, password string) ([]byte, []byte, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	cipher, err := c.cipherFor(password, nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	_, ciphertext, err := cipher.SealWithNonce(nonce, []byte(url))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	return nonce, ciphertext, nil
}

func (c *Codec) Decode(link, password string) (string, error) {
	fields := strings.SplitN(strings.TrimPrefix(strings.TrimSpace(link), Scheme), "_", 2)
	if len(fields) != 2 {
		return "", ErrFormat
	}

	nonce, nonceErr := hex.DecodeString(fields[0])
	ciphertext, dataErr := hex.DecodeString(fields[1])
	if nonceErr != nil || dataErr != nil || len(nonce) != key_exchange.NonceSize {
		return "", ErrDecode
	}

	cipher, err := c.cipherFor(password, nonce)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	plaintext, err := cipher.Open(nonce, ciphertext)
	if err != nil {
		if errors.Is(err, key_exchange.ErrDecrypt) {
			return "", ErrPassword
		}
		return "", fmt.Errorf("%w: %v", ErrPassword, err)
	}
	if !utf8.Valid(plaintext) {
		return "", ErrUTF8
	}
	return string(plaintext), nil
}

func (c *Codec) cipherFor(password string, nonce []byte) (*key_exchange.GroupCipher, error) {
	key, err := c.kdf.DeriveKey(password, nonce)
	if err != nil {
		return nil, err
	}
	return key_exchange.NewGroupCipher(key)
}

func randomNonce() ([]byte, error) {
	nonce := make([]byte, key_exchange.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}
