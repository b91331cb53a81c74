//go:build !linux

package userunit

import "context"

type Manager struct{}

func NewManager(context.Context) (*Manager, error) { return nil, ErrUnsupported }

func (m *Manager) Close() error                                  { return nil }
func (m *Manager) Install(context.Context, Unit) (string, error) { return "", ErrUnsupported }
func (m *Manager) Uninstall(context.Context, Unit) error         { return ErrUnsupported }
func (m *Manager) Start(context.Context, Unit) error             { return ErrUnsupported }
func (m *Manager) Stop(context.Context, Unit) error              { return ErrUnsupported }
func (m *Manager) Restart(context.Context, Unit) error           { return ErrUnsupported }
func (m *Manager) Status(context.Context, Unit) (Status, error)  { return Status{}, ErrUnsupported }
