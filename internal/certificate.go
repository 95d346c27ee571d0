package internal

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

var ErrNotRSAKey = errors.New("public key isn't an RSA key")

/*
Lê uma chave pública RSA em PEM, aceitando PKCS#1 ("RSA PUBLIC KEY") e PKIX ("PUBLIC KEY")
*/
func ParsePublicKeyPEM(encoded string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(encoded))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("invalid PKCS#1 public key: %w", err)
		}
		return key, nil
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("invalid PKIX public key: %w", err)
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, ErrNotRSAKey
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
}

/*
Codifica a chave pública RSA em PEM PKCS#1, o formato enviado no join
*/
func EncodePublicKeyPEM(key *rsa.PublicKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(key),
	}))
}
