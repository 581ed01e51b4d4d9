package application

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

// Fanout delivers one message to every enabled notification backend at once.
// Backends run independently: a failing backend neither cancels nor delays
// its siblings, and every failure is reported.
type Fanout struct {
	backends []driven.Notifier
	enabled  map[string]struct{}
}

// NewFanout creates a Fanout over backends. enabled lists backend names,
// matched case-insensitively; a backend missing from it is skipped.
func NewFanout(enabled []string, backends ...driven.Notifier) *Fanout {
	set := make(map[string]struct{}, len(enabled))
	for _, name := range enabled {
		set[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	return &Fanout{backends: backends, enabled: set}
}

// Send delivers msg and returns a *driven.FanoutError holding one
// *driven.BackendError per failed backend, in backend order. Disabled and
// unconfigured backends, and empty messages, are skipped without error.
func (f *Fanout) Send(ctx context.Context, msg model.Message) error {
	if msg.Empty() {
		slog.Info("nothing to send", "kind", string(msg.Kind))
		return nil
	}

	// errgroup.Group without WithContext: no shared cancellation between sends.
	var g errgroup.Group
	errs := make([]error, len(f.backends))

	for i, b := range f.backends {
		if !f.isEnabled(b) {
			slog.Debug("notifier disabled, skipping", "backend", b.Name())
			continue
		}
		if !b.Configured() {
			slog.Info("notifier not configured, skipping", "backend", b.Name())
			continue
		}

		g.Go(func() error {
			if err := b.Send(ctx, msg); err != nil {
				slog.Error("notifier failed", "backend", b.Name(), "kind", string(msg.Kind), "error", err)
				errs[i] = &driven.BackendError{Backend: b.Name(), Err: err}
				return nil
			}
			slog.Info("notifier delivered", "backend", b.Name(), "kind", string(msg.Kind), "count", msg.Count)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return &driven.FanoutError{Errs: failed}
	}
	return nil
}

func (f *Fanout) isEnabled(b driven.Notifier) bool {
	_, ok := f.enabled[strings.ToLower(b.Name())]
	return ok
}
