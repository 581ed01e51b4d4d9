package notify

import (
	"context"
	"fmt"
	"time"

	fdo "github.com/esiqveland/notify"
	"github.com/gen2brain/beeep"
	"github.com/godbus/dbus/v5"
)

// Desktop shows a single desktop notification.
type Desktop interface {
	Show(ctx context.Context, title, body string) error
}

// DBusDesktop posts to the freedesktop notification service on the session bus.
type DBusDesktop struct {
	AppName string
	Timeout time.Duration
}

var _ Desktop = DBusDesktop{}

// Show opens a private session-bus connection for one notification.
func (d DBusDesktop) Show(ctx context.Context, title, body string) error {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("connecting to session bus: %w", err)
	}
	defer conn.Close() //nolint:errcheck // best-effort close

	if _, err := fdo.SendNotification(conn, fdo.Notification{
		AppName:       d.AppName,
		Summary:       title,
		Body:          body,
		ExpireTimeout: d.Timeout,
	}); err != nil {
		return err
	}
	return nil
}

// BeeepDesktop uses the platform notification center (macOS, Windows).
type BeeepDesktop struct{}

var _ Desktop = BeeepDesktop{}

// Show ignores ctx; beeep calls are not cancellable.
func (BeeepDesktop) Show(_ context.Context, title, body string) error {
	return beeep.Notify(title, body, "")
}
