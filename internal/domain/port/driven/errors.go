package driven

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by a NoticeSource when the page has no element
// matching the notice selector.
var ErrNotFound = errors.New("not found")

// ErrCorruptState is returned by a StateStore when a persisted value exists
// but cannot be decoded into the expected shape.
var ErrCorruptState = errors.New("persisted state is corrupt")

// ErrEncryptionKeyNotSet is returned by a SessionStore that holds an encrypted
// value but was constructed without a key.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set SEEWATCH_SECRET_KEY")

// TransportError is a network failure or a non-2xx HTTP response.
// StatusCode is zero when no response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 && e.Err == nil {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsStatus reports whether err (or any wrapped error) is a TransportError with
// the given HTTP status code.
func IsStatus(err error, code int) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode == code
	}
	return false
}

// HandshakeError means the identity provider answered, but not in the shape
// the login flow expects: a redirect parameter or JSON field is missing.
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string {
	return "sso handshake: " + e.Reason
}

// DecodeError means a payload could not be parsed. Raw keeps the body for diagnosis.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode payload: %v (raw: %q)", e.Err, truncate(e.Raw, 256))
}

func (e *DecodeError) Unwrap() error { return e.Err }

// APIError is an envelope that parsed fine but carried a non-success code.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal api: code %d: %s", e.Code, e.Message)
}

// CryptoError is a key or padding problem while encrypting credentials.
type CryptoError struct {
	Err error
}

func (e *CryptoError) Error() string {
	return "encrypt credentials: " + e.Err.Error()
}

func (e *CryptoError) Unwrap() error { return e.Err }

// BackendError tags a delivery failure with the notifier that produced it.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("notifier %s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// FanoutError aggregates every backend failure of one fanout.
type FanoutError struct {
	Errs []error
}

func (e *FanoutError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d notifier(s) failed: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *FanoutError) Unwrap() []error { return e.Errs }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
