package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SessionStore = (*SessionRepo)(nil)

// encryptedPrefix marks a session value sealed with AES-256-GCM.
const encryptedPrefix = "enc:v1:"

// SessionRepo is the SQLite implementation of the SessionStore port. The session
// id lives in the state table under model.StateKeySessionID. With a key it is
// encrypted with AES-256-GCM before write; without one it is stored as is.
type SessionRepo struct {
	state *StateRepo
	key   []byte // 32-byte AES-256 key; nil stores plaintext.
}

// NewSessionRepo creates a new SessionRepo. key must be 32 bytes, or nil.
func NewSessionRepo(db *DB, key []byte) *SessionRepo {
	return &SessionRepo{state: NewStateRepo(db), key: key}
}

// Get returns the stored session id, or "" when none is stored. A plaintext
// value is returned as is even when a key is configured, so enabling
// encryption does not discard an existing session.
func (r *SessionRepo) Get(ctx context.Context) (string, error) {
	value, ok, err := r.state.Get(ctx, model.StateKeySessionID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	sealed, isSealed := strings.CutPrefix(value, encryptedPrefix)
	if !isSealed {
		return value, nil
	}
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	plaintext, err := r.decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("decrypt session id: %w", err)
	}
	return plaintext, nil
}

// Set stores or replaces the session id.
func (r *SessionRepo) Set(ctx context.Context, sessionID string) error {
	value := sessionID
	if r.key != nil {
		sealed, err := r.encrypt(sessionID)
		if err != nil {
			return err
		}
		value = encryptedPrefix + sealed
	}
	return r.state.Set(ctx, model.StateKeySessionID, value)
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *SessionRepo) encrypt(plaintext string) (string, error) {
	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *SessionRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}
	return string(plaintext), nil
}

func (r *SessionRepo) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
