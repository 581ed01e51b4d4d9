package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
)

const (
	appName = "seewatch"
	// localTimeout is how long the desktop notification stays visible.
	localTimeout = 3000 * time.Millisecond
)

// Local shows a desktop notification: D-Bus on freedesktop systems, the native
// notification center elsewhere.
type Local struct {
	markup  bool
	desktop Desktop
}

// NewLocal creates the desktop backend for the running OS.
func NewLocal() *Local {
	if freedesktop(runtime.GOOS) {
		return NewLocalWithDesktop(runtime.GOOS, DBusDesktop{AppName: appName, Timeout: localTimeout})
	}
	beeep.AppName = appName
	return NewLocalWithDesktop(runtime.GOOS, BeeepDesktop{})
}

// NewLocalWithDesktop creates a Local backend that formats bodies for goos and
// shows them through d. Intended for tests.
func NewLocalWithDesktop(goos string, d Desktop) *Local {
	return &Local{markup: freedesktop(goos), desktop: d}
}

// Name returns the backend identifier.
func (l *Local) Name() string { return NameLocal }

// Configured is always true: the desktop backend needs no secret.
func (l *Local) Configured() bool { return true }

// Send shows msg.LocalTitle with one bullet per line.
func (l *Local) Send(ctx context.Context, msg model.Message) error {
	slog.Info("showing desktop notification", "kind", string(msg.Kind), "count", msg.Count)

	if err := l.desktop.Show(ctx, msg.LocalTitle, l.body(msg.Lines)); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}
	return nil
}

// body lists each line as a bullet. Freedesktop servers parse the body as
// markup, so lines are escaped there.
func (l *Local) body(lines []string) string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if l.markup {
			out = append(out, "• "+html.EscapeString(line))
			continue
		}
		out = append(out, "- "+line)
	}
	return strings.Join(out, "\n")
}

func freedesktop(goos string) bool {
	switch goos {
	case "linux", "freebsd", "netbsd", "openbsd", "illumos":
		return true
	}
	return false
}
