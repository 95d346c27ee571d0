package key_exchange

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, GroupKeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestGroupCipher_RoundTrip(t *testing.T) {
	req := require.New(t)
	cipher, err := NewGroupCipher(randomKey(t))
	req.NoError(err)

	for _, content := range []string{"", "hello", strings.Repeat("é", 5000)} {
		nonce, ciphertext, err := cipher.Seal([]byte(content))
		req.NoError(err)
		req.Len(nonce, NonceSize)

		plaintext, err := cipher.Open(nonce, ciphertext)
		req.NoError(err)
		req.Equal(content, string(plaintext))
	}
}

func TestGroupCipher_FreshNoncePerMessage(t *testing.T) {
	req := require.New(t)
	cipher, err := NewGroupCipher(randomKey(t))
	req.NoError(err)

	firstNonce, firstCiphertext, err := cipher.Seal([]byte("same"))
	req.NoError(err)
	secondNonce, secondCiphertext, err := cipher.Seal([]byte("same"))
	req.NoError(err)

	req.NotEqual(firstNonce, secondNonce)
	req.NotEqual(firstCiphertext, secondCiphertext)
}

func TestGroupCipher_WrongKeyFails(t *testing.T) {
	req := require.New(t)
	sender, err := NewGroupCipher(randomKey(t))
	req.NoError(err)
	other, err := NewGroupCipher(randomKey(t))
	req.NoError(err)

	nonce, ciphertext, err := sender.Seal([]byte("secret"))
	req.NoError(err)

	plaintext, err := other.Open(nonce, ciphertext)
	req.ErrorIs(err, ErrDecrypt)
	req.Nil(plaintext)
}

func TestGroupCipher_TamperFails(t *testing.T) {
	req := require.New(t)
	cipher, err := NewGroupCipher(randomKey(t))
	req.NoError(err)

	nonce, ciphertext, err := cipher.Seal([]byte("payload"))
	req.NoError(err)

	tampered := bytes.Clone(ciphertext)
	tampered[len(tampered)-1] ^= 0xff
	_, err = cipher.Open(nonce, tampered)
	req.ErrorIs(err, ErrDecrypt)

	corrupted := bytes.Clone(nonce)
	corrupted[0] ^= 0xff
	_, err = cipher.Open(corrupted, ciphertext)
	req.ErrorIs(err, ErrDecrypt)

	_, err = cipher.Open(nonce[:4], ciphertext)
	req.ErrorIs(err, ErrDecrypt)
}

func TestNewGroupCipher_RejectsShortKey(t *testing.T) {
	_, err := NewGroupCipher(make([]byte, 32))
	require.Error(t, err)
}
