package key_exchange

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// MemberKeyBits is the size of the RSA key each member generates locally.
const MemberKeyBits = 2048

func GenerateMemberKey() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, MemberKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate member key: %w", err)
	}
	return key, nil
}

// WrapKey encrypts key under pub with PKCS#1 v1.5 padding.
func WrapKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, pub, key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt with member public key: %w", err)
	}
	return wrapped, nil
}

// UnwrapKey recovers a group key wrapped by WrapKey.
func UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	key, err := rsa.DecryptPKCS1v15(rand.Reader, priv, wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt wrapped key: %w", err)
	}
	if len(key) != GroupKeySize {
		return nil, fmt.Errorf("unwrapped key has size %d, want %d", len(key), GroupKeySize)
	}
	return key, nil
}

// Thumbprint returns the RFC 7638 SHA-256 JWK thumbprint of pub, base64url
// encoded. It identifies a member key in logs without exposing the key.
func Thumbprint(pub *rsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute jwk thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
