// Command alertd polls a notification API and shows new records as desktop
// notifications.
//
// Usage:
//
//	alertd                      # run the daemon (same as "alertd run")
//	alertd status
//	alertd notify "Build done" --body "all green"
//	alertd config set --interval 30000 --types meeting,sales_consultation
//	alertd settings             # interactive form
//	alertd service install
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"alertd/internal/app"
	"alertd/internal/config"
	"alertd/internal/control"
)

type globals struct {
	cfgPath string
	addr    string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "alertd",
		Short:         "Notification poller and desktop notifier",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env only fills variables that are not already set.
			_ = godotenv.Load(".env")
			if g.cfgPath == "" {
				g.cfgPath = defaultConfigPath()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), g)
		},
	}
	root.PersistentFlags().StringVar(&g.cfgPath, "config", os.Getenv("ALERTD_CONFIG"), "path to settings file (json or yaml)")
	root.PersistentFlags().StringVar(&g.addr, "addr", "", "local server address (default: server.addr from the settings file)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 15*time.Second, "request timeout for client commands")

	root.AddCommand(
		runCmd(g),
		statusCmd(g),
		notifyCmd(g),
		configCmd(g),
		settingsCmd(g),
		testNotificationCmd(g),
		testAPICmd(g),
		clearHistoryCmd(g),
		historyCmd(g),
		serviceCmd(g),
	)
	return root
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "alertd", "settings.json")
	}
	return "./alertd.json"
}

func runCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the poller, notifier and local server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), g)
		},
	}
}

func runDaemon(parent context.Context, g *globals) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := app.New(g.cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(parent); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	case <-parent.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

// serverAddr resolves the daemon address from --addr or the settings file.
func (g *globals) serverAddr() (string, error) {
	if g.addr != "" {
		return g.addr, nil
	}
	cfg, err := config.NewConfigManager(g.cfgPath).Parse()
	switch {
	case errors.Is(err, os.ErrNotExist):
		return config.Default().Server.Addr, nil
	case err != nil:
		return "", fmt.Errorf("read %s: %w", g.cfgPath, err)
	case !cfg.Server.Enabled:
		return "", fmt.Errorf("local server is disabled in %s", g.cfgPath)
	}
	return cfg.Server.Addr, nil
}

func (g *globals) client() (*control.Client, error) {
	addr, err := g.serverAddr()
	if err != nil {
		return nil, err
	}
	return control.NewClient(addr), nil
}

func (g *globals) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, g.timeout)
}
