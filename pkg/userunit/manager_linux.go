//go:build linux

package userunit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager talks to the per-user systemd instance over D-Bus.
type Manager struct {
	mu   sync.RWMutex
	conn *dbus.Conn
}

// NewManager connects to the user session bus.
func NewManager(ctx context.Context) (*Manager, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd user instance: %w", err)
	}
	return &Manager{conn: conn}, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return nil
}

func (m *Manager) getConn() (*dbus.Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return nil, fmt.Errorf("systemd connection is closed")
	}
	return m.conn, nil
}

// Install writes the unit file, reloads the user daemon and enables the unit.
func (m *Manager) Install(ctx context.Context, u Unit) (string, error) {
	conn, err := m.getConn()
	if err != nil {
		return "", err
	}
	path, err := u.Path()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(u.Render()), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return path, fmt.Errorf("failed to reload systemd daemon: %w", err)
	}
	if _, _, err := conn.EnableUnitFilesContext(ctx, []string{u.FileName()}, false, true); err != nil {
		return path, fmt.Errorf("failed to enable %s: %w", u.Name, err)
	}
	return path, nil
}

// Uninstall stops and disables the unit and removes its file.
func (m *Manager) Uninstall(ctx context.Context, u Unit) error {
	conn, err := m.getConn()
	if err != nil {
		return err
	}
	if _, err := conn.StopUnitContext(ctx, u.FileName(), "replace", nil); err != nil && !isNoSuchUnitErr(err) {
		return fmt.Errorf("failed to stop %s: %w", u.Name, err)
	}
	if _, err := conn.DisableUnitFilesContext(ctx, []string{u.FileName()}, false); err != nil && !isNoSuchUnitErr(err) {
		return fmt.Errorf("failed to disable %s: %w", u.Name, err)
	}
	path, err := u.Path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return conn.ReloadContext(ctx)
}

func (m *Manager) Start(ctx context.Context, u Unit) error {
	conn, err := m.getConn()
	if err != nil {
		return err
	}
	if _, err := conn.StartUnitContext(ctx, u.FileName(), "replace", nil); err != nil {
		return fmt.Errorf("failed to start %s: %w", u.Name, err)
	}
	return nil
}

func (m *Manager) Stop(ctx context.Context, u Unit) error {
	conn, err := m.getConn()
	if err != nil {
		return err
	}
	if _, err := conn.StopUnitContext(ctx, u.FileName(), "replace", nil); err != nil {
		return fmt.Errorf("failed to stop %s: %w", u.Name, err)
	}
	return nil
}

func (m *Manager) Restart(ctx context.Context, u Unit) error {
	conn, err := m.getConn()
	if err != nil {
		return err
	}
	if _, err := conn.RestartUnitContext(ctx, u.FileName(), "replace", nil); err != nil {
		return fmt.Errorf("failed to restart %s: %w", u.Name, err)
	}
	return nil
}

// Status reads the unit properties. A unit that was never installed reports
// LoadState "not-found" rather than an error.
func (m *Manager) Status(ctx context.Context, u Unit) (Status, error) {
	conn, err := m.getConn()
	if err != nil {
		return Status{}, err
	}
	props, err := conn.GetUnitPropertiesContext(ctx, u.FileName())
	if err != nil {
		if isNoSuchUnitErr(err) {
			return Status{Name: u.Name, Active: "unknown", SubState: "not-found", LoadState: "not-found"}, nil
		}
		return Status{}, fmt.Errorf("failed to get status for %s: %w", u.Name, err)
	}
	return statusFromProps(u.Name, props), nil
}

func isNoSuchUnitErr(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	return strings.Contains(es, "NoSuchUnit") || strings.Contains(es, "not-found") || strings.Contains(es, "not loaded")
}
