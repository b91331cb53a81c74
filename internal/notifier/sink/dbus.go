package sink

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"alertd/internal/notifier"
)

// Urgency levels of the freedesktop notification spec.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

const (
	dbusDest   = "org.freedesktop.Notifications"
	dbusPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	dbusNotify = "org.freedesktop.Notifications.Notify"
)

// DBus talks to the session notification daemon directly so urgency and
// sound hints reach it.
type DBus struct {
	conn    *dbus.Conn
	appName string
	icon    string
}

// NewDBus connects to the session bus. It fails when no notification
// daemon owns the well-known name.
func NewDBus(appName, defaultIcon string) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("dbus session bus: %w", err)
	}
	var has bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, dbusDest).Store(&has); err != nil || !has {
		_ = conn.Close()
		if err == nil {
			err = fmt.Errorf("%s has no owner", dbusDest)
		}
		return nil, fmt.Errorf("dbus notifications: %w", err)
	}
	return &DBus{conn: conn, appName: appName, icon: defaultIcon}, nil
}

func (d *DBus) Name() string { return "dbus" }

func (d *DBus) Show(ctx context.Context, n notifier.Notification) error {
	icon := n.Icon
	if icon == "" {
		icon = d.icon
	}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(urgencyOf(n))),
	}
	if n.Silent {
		hints["suppress-sound"] = dbus.MakeVariant(true)
	}
	obj := d.conn.Object(dbusDest, dbusPath)
	call := obj.CallWithContext(ctx, dbusNotify, 0,
		d.appName, uint32(0), icon, n.Title, n.Body, []string{}, hints, int32(-1))
	if call.Err != nil {
		return call.Err
	}
	var id uint32
	return call.Store(&id)
}

func (d *DBus) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

func urgencyOf(n notifier.Notification) Urgency {
	if n.High() {
		return UrgencyCritical
	}
	return UrgencyNormal
}
