package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"alertd/internal/config"
	"alertd/internal/control"
	"alertd/internal/settings"
)

func statusCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and scheduler state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.ctx(cmd.Context())
			defer cancel()
			st, err := cl.Status(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprintln(cmd.OutOrStdout(), settings.RenderStatus(st))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func notifyCmd(g *globals) *cobra.Command {
	var req control.NotifyRequest
	cmd := &cobra.Command{
		Use:   "notify <title>",
		Short: "Show a notification through the running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Title = args[0]
			cl, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.ctx(cmd.Context())
			defer cancel()
			id, err := cl.Notify(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "queued", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Body, "body", "", "notification body")
	cmd.Flags().StringVar(&req.Icon, "icon", "", "icon path or name")
	cmd.Flags().BoolVar(&req.Silent, "silent", false, "suppress sound")
	return cmd
}

func configCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change polling settings",
	}
	cmd.AddCommand(configGetCmd(g), configSetCmd(g))
	return cmd
}

func configGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the current polling settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.ctx(cmd.Context())
			defer cancel()
			pc, err := cl.GetConfig(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pc)
		},
	}
}

func configSetCmd(g *globals) *cobra.Command {
	var (
		apiURL, email, userID, types string
		interval                     int
		enabled, repeat              bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change polling settings; only the given flags are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var p config.PollPatch
			f := cmd.Flags()
			if f.Changed("api-url") {
				p.APIURL = &apiURL
			}
			if f.Changed("email") {
				p.Email = &email
			}
			if f.Changed("user-id") {
				p.UserID = &userID
			}
			if f.Changed("interval") {
				p.PollingInterval = &interval
			}
			if f.Changed("types") {
				p.Types = &types
			}
			if f.Changed("enabled") {
				p.Enabled = &enabled
			}
			if f.Changed("repeat") {
				p.RepeatNotifications = &repeat
			}
			if p.Empty() {
				return errors.New("nothing to change; pass at least one flag")
			}

			cl, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.ctx(cmd.Context())
			defer cancel()
			pc, err := cl.UpdateConfig(ctx, p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pc)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "", "notification API endpoint")
	cmd.Flags().StringVar(&email, "email", "", "identity email")
	cmd.Flags().StringVar(&userID, "user-id", "", "identity user id")
	cmd.Flags().IntVar(&interval, "interval", 0, "polling interval in milliseconds")
	cmd.Flags().StringVar(&types, "types", "", `comma-separated types or "all"`)
	cmd.Flags().BoolVar(&enabled, "enabled", true, "enable polling")
	cmd.Flags().BoolVar(&repeat, "repeat", true, "repeat already-seen notifications every cycle")
	return cmd
}

func settingsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Edit polling settings interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.ctx(cmd.Context())
			pc, err := cl.GetConfig(ctx)
			cancel()
			if err != nil {
				return err
			}

			patch, err := settings.Run(cmd.Context(), pc)
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
				return nil
			}
			if err != nil {
				return err
			}

			ctx, cancel = g.ctx(cmd.Context())
			defer cancel()
			if _, err := cl.UpdateConfig(ctx, patch); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settings saved")
			return nil
		},
	}
}

func testNotificationCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notification",
		Short: "Send the built-in test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.ctx(cmd.Context())
			defer cancel()
			if err := cl.TestNotification(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "test notification queued")
			return nil
		},
	}
}

func testAPICmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "test-api",
		Short: "Check connectivity to the notification API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.ctx(cmd.Context())
			defer cancel()
			pr, err := cl.TestAPIConnection(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), pr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), settings.RenderProbe(pr))
			if !pr.Success {
				return errors.New("api check failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func clearHistoryCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-history",
		Short: "Forget seen notifications and re-poll",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.ctx(cmd.Context())
			defer cancel()
			res, err := cl.ClearProcessed(ctx)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("cleared %d seen notification(s)", res.ClearedCount)
			if res.OldLastChecked != "" {
				msg += fmt.Sprintf(" (watermark was %s)", res.OldLastChecked)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func historyCmd(g *globals) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent deliveries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.ctx(cmd.Context())
			defer cancel()
			items, err := cl.History(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), items)
			}
			fmt.Fprintln(cmd.OutOrStdout(), settings.RenderHistory(items))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
