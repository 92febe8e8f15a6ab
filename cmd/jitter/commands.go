package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/loykin/jitter/internal/gesture"
	"github.com/loykin/jitter/internal/replay"
	"github.com/loykin/jitter/pkg/client"
)

func newAPIClient(cmd *cobra.Command, f APIFlags) (*client.Client, error) {
	cfg := client.DefaultConfig()
	if f.APIUrl != "" {
		cfg.BaseURL = f.APIUrl
	}
	if f.APITimeout > 0 {
		cfg.Timeout = f.APITimeout
	}
	if f.CACert != "" || f.Insecure {
		cfg.TLS = &client.TLSClientConfig{CACert: f.CACert, SkipVerify: f.Insecure}
	}
	cfg.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	c, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	if !c.IsReachable(cmd.Context()) {
		return nil, fmt.Errorf("server not reachable at %s - start it first with 'jitter serve'", cfg.BaseURL)
	}
	return c, nil
}

func runNotify(cmd *cobra.Command, f NotifyFlags) error {
	cat, err := gesture.ParseCategory(f.Category)
	if err != nil {
		return err
	}
	phase, err := gesture.ParsePhase(f.Phase)
	if err != nil {
		return err
	}
	rec, err := replay.Entry{
		Category:  cat,
		Phase:     phase,
		ID:        gesture.ID(f.ID),
		Progress:  f.Progress,
		Radius:    f.Radius,
		Clockwise: f.Clockwise,
		Speed:     f.Speed,
	}.Record()
	if err != nil {
		return err
	}
	c, err := newAPIClient(cmd, f.APIFlags)
	if err != nil {
		return err
	}
	if err := c.Notify(cmd.Context(), rec); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s\n", cat, f.ID, phase)
	return nil
}

func runBatch(cmd *cobra.Command, f BatchFlags) error {
	cat, err := gesture.ParseCategory(f.Category)
	if err != nil {
		return err
	}
	c, err := newAPIClient(cmd, f.APIFlags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	var out any
	switch cat {
	case gesture.CategoryCircle:
		var q client.BatchQuery
		if cmd.Flags().Changed("min-progress") {
			q.MinProgress = &f.MinProgress
		}
		if cmd.Flags().Changed("min-radius") {
			q.MinRadius = &f.MinRadius
		}
		out, err = c.CircleBatch(ctx, q)
	case gesture.CategorySwipe:
		out, err = c.SwipeBatch(ctx)
	case gesture.CategoryScreenTap:
		out, err = c.ScreenTapBatch(ctx)
	case gesture.CategoryKeyTap:
		out, err = c.KeyTapBatch(ctx)
	}
	if err != nil {
		return err
	}
	printJSON(cmd.OutOrStdout(), out)
	return nil
}

func runStatus(cmd *cobra.Command, f APIFlags) error {
	c, err := newAPIClient(cmd, f)
	if err != nil {
		return err
	}
	st, err := c.Status(cmd.Context())
	if err != nil {
		return err
	}
	printJSON(cmd.OutOrStdout(), st)
	return nil
}

func runConsumption(cmd *cobra.Command, f ConsumptionFlags) error {
	c, err := newAPIClient(cmd, f.APIFlags)
	if err != nil {
		return err
	}
	flags, err := c.SetConsumption(cmd.Context(), f.Category, f.Enabled)
	if err != nil {
		return err
	}
	printJSON(cmd.OutOrStdout(), flags)
	return nil
}

func runReset(cmd *cobra.Command, f APIFlags) error {
	c, err := newAPIClient(cmd, f)
	if err != nil {
		return err
	}
	if err := c.Reset(cmd.Context()); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "reset")
	return nil
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}
