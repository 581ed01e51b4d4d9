package driven

import (
	"context"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
)

// Notifier is one notification backend.
type Notifier interface {
	// Name is the identifier matched (case-insensitively) against the enabled list.
	Name() string
	// Configured reports whether the backend's secret settings are present.
	// An unconfigured backend is skipped, not failed.
	Configured() bool
	// Send delivers msg. Callers never pass an empty message.
	Send(ctx context.Context, msg model.Message) error
}
