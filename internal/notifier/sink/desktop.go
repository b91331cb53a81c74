package sink

import (
	"context"

	"github.com/gen2brain/beeep"

	"alertd/internal/notifier"
)

// Backend shows desktop notifications.
type Backend interface {
	// Notify sends a standard notification.
	Notify(title, message, iconPath string) error
	// Alert sends a notification with the system alert sound.
	Alert(title, message, iconPath string) error
}

// beeepBackend calls beeep directly.
type beeepBackend struct{}

func (beeepBackend) Notify(title, message, iconPath string) error {
	return beeep.Notify(title, message, iconPath)
}

func (beeepBackend) Alert(title, message, iconPath string) error {
	return beeep.Alert(title, message, iconPath)
}

// Desktop is the cross-platform sink. High priority notifications use the
// alert variant unless they are silent.
type Desktop struct {
	backend Backend
	icon    string
}

// NewDesktop returns a beeep-backed sink. defaultIcon is used when a
// notification carries no icon of its own.
func NewDesktop(appName, defaultIcon string) *Desktop {
	if appName != "" {
		beeep.AppName = appName
	}
	return &Desktop{backend: beeepBackend{}, icon: defaultIcon}
}

// NewDesktopWith is NewDesktop with an injected backend.
func NewDesktopWith(b Backend, defaultIcon string) *Desktop {
	return &Desktop{backend: b, icon: defaultIcon}
}

func (d *Desktop) Name() string { return "beeep" }

func (d *Desktop) Show(ctx context.Context, n notifier.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	icon := n.Icon
	if icon == "" {
		icon = d.icon
	}
	if n.High() && !n.Silent {
		return d.backend.Alert(n.Title, n.Body, icon)
	}
	return d.backend.Notify(n.Title, n.Body, icon)
}
