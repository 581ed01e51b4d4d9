package driven

import (
	"context"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
)

// StateStore is the key/value persistence of what has already been reported.
type StateStore interface {
	// Get returns ("", false, nil) when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error

	// LoadLectures returns the remembered lecture set, or an empty set when none
	// was saved. A value that cannot be decoded yields an error wrapping ErrCorruptState.
	LoadLectures(ctx context.Context) ([]model.Lecture, error)
	SaveLectures(ctx context.Context, lectures []model.Lecture) error
}

// SessionStore persists the portal session id between runs.
type SessionStore interface {
	// Get returns ("", nil) when no session id is stored.
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, sessionID string) error
}
