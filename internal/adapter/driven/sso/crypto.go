package sso

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

// DefaultPublicKey is the identity provider's password-encryption key, as
// published in its login page.
const DefaultPublicKey = `-----BEGIN PUBLIC KEY-----
MIGfMA0GCSqGSIb3DQEBAQUAA4GNADCBiQKBgQC9t16RqQWUE/J1IyOfoNHc4r/h
6RPnXcWTJ4IbhQVUsEqMMm65F0hiytAgozXmVw68yPJywbpblDrx9zl1wdRcdHCo
UvmPdr9/oCQtpQyVc7BXZIN6wJlD6MTeMeni+N0toNPxfXjiAawjNHGZZuT8wQpN
EMwsVyJ/lonXaVdGZwIDAQAB
-----END PUBLIC KEY-----`

// pkcs1v15Overhead is the padding cost of RSAES-PKCS1-v1_5.
const pkcs1v15Overhead = 11

// Encryptor encrypts form values under a fixed RSA public key using
// PKCS#1 v1.5 padding. Padding is random, so two encryptions of the same
// plaintext differ.
type Encryptor struct {
	pub *rsa.PublicKey
}

// NewEncryptor parses a PEM-encoded PKIX public key. Returns a *driven.CryptoError
// if the key is malformed or not RSA.
func NewEncryptor(pemKey string) (*Encryptor, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, &driven.CryptoError{Err: errors.New("public key: no PEM block found")}
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, &driven.CryptoError{Err: fmt.Errorf("public key: %w", err)}
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, &driven.CryptoError{Err: fmt.Errorf("public key: expected RSA, got %T", parsed)}
	}

	return &Encryptor{pub: pub}, nil
}

// MaxPlaintextSize is the longest plaintext, in bytes, the key can encrypt.
func (e *Encryptor) MaxPlaintextSize() int {
	return e.pub.Size() - pkcs1v15Overhead
}

// Encrypt returns the base64 (standard alphabet) ciphertext of plaintext.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if len(plaintext) > e.MaxPlaintextSize() {
		return "", &driven.CryptoError{Err: fmt.Errorf("plaintext is %d bytes, key allows at most %d", len(plaintext), e.MaxPlaintextSize())}
	}

	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, e.pub, []byte(plaintext))
	if err != nil {
		return "", &driven.CryptoError{Err: err}
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
