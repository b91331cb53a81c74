package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"alertd/pkg/userunit"
)

const unitName = "alertd"

func serviceCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the alertd systemd user unit",
	}

	withManager := func(fn func(ctx context.Context, out io.Writer, m *userunit.Manager, u userunit.Unit) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			u, err := currentUnit(g)
			if err != nil {
				return err
			}
			ctx, cancel := g.ctx(cmd.Context())
			defer cancel()
			m, err := userunit.NewManager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(ctx, cmd.OutOrStdout(), m, u)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "install",
			Short: "Write, enable and start the user unit",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, out io.Writer, m *userunit.Manager, u userunit.Unit) error {
				path, err := m.Install(ctx, u)
				if err != nil {
					return err
				}
				if err := m.Restart(ctx, u); err != nil {
					return err
				}
				fmt.Fprintln(out, "installed", path)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "uninstall",
			Short: "Stop, disable and remove the user unit",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, out io.Writer, m *userunit.Manager, u userunit.Unit) error {
				return m.Uninstall(ctx, u)
			}),
		},
		&cobra.Command{
			Use:   "start",
			Short: "Start the user unit",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, out io.Writer, m *userunit.Manager, u userunit.Unit) error {
				return m.Start(ctx, u)
			}),
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the user unit",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, out io.Writer, m *userunit.Manager, u userunit.Unit) error {
				return m.Stop(ctx, u)
			}),
		},
		&cobra.Command{
			Use:   "restart",
			Short: "Restart the user unit",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, out io.Writer, m *userunit.Manager, u userunit.Unit) error {
				return m.Restart(ctx, u)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the user unit state",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, out io.Writer, m *userunit.Manager, u userunit.Unit) error {
				st, err := m.Status(ctx, u)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s (%s), load=%s enabled=%v\n", st.Name, st.Active, st.SubState, st.LoadState, st.Enabled)
				if !st.ActiveSince.IsZero() {
					fmt.Fprintln(out, "active since", st.ActiveSince.Local().Format("2006-01-02 15:04:05"))
				}
				return nil
			}),
		},
	)
	return cmd
}

func currentUnit(g *globals) (userunit.Unit, error) {
	exe, err := os.Executable()
	if err != nil {
		return userunit.Unit{}, err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	cfgPath, err := filepath.Abs(g.cfgPath)
	if err != nil {
		return userunit.Unit{}, err
	}
	return userunit.Unit{
		Name:        unitName,
		Description: "alertd notification poller",
		ExecStart:   exe,
		Args:        []string{"run", "--config", cfgPath},
		Env:         unitEnv(),
	}, nil
}

// envPassthrough lists variables copied into the installed unit.
var envPassthrough = []string{"API_URL", "WEB_URL", "USER_ID", "EMAIL", "PORT"}

func unitEnv() map[string]string {
	env := map[string]string{}
	for _, k := range envPassthrough {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			env[k] = v
		}
	}
	return env
}
