package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/jitter/internal/config"
	"github.com/loykin/jitter/internal/gesture"
	"github.com/loykin/jitter/internal/replay"
	"github.com/loykin/jitter/internal/system"
)

type deliveryLine struct {
	Tick     int              `json:"tick"`
	Category gesture.Category `json:"category"`
	Gestures []gesture.Record `json:"gestures"`
}

func runReplay(cmd *cobra.Command, f ReplayFlags) error {
	cfg, err := config.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	file := cfg.Replay.File
	if f.File != "" {
		file = f.File
	}
	if file == "" {
		return errors.New("no stream file: use --file or set [replay].file")
	}
	entries, err := replay.Load(file)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.close(context.Background())

	opts := replay.Options{
		ProducerFPS: cfg.Replay.ProducerFPS,
		ConsumerFPS: cfg.Replay.ConsumerFPS,
		Logger:      eng.log,
	}
	if f.ProducerFPS > 0 {
		opts.ProducerFPS = f.ProducerFPS
	}
	if f.ConsumerFPS > 0 {
		opts.ConsumerFPS = f.ConsumerFPS
	}
	var filter system.Filter
	if cmd.Flags().Changed("min-progress") {
		filter.MinProgress = &f.MinProgress
	}
	if cmd.Flags().Changed("min-radius") {
		filter.MinRadius = &f.MinRadius
	}
	opts.CircleFilter = filter

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	if !f.Quiet {
		opts.OnDelivery = func(d replay.Delivery) {
			_ = enc.Encode(deliveryLine{Tick: d.Tick, Category: d.Category, Gestures: d.Records})
		}
	}
	sum, err := replay.Play(cmd.Context(), eng.sys, entries, opts)
	if err != nil {
		return err
	}
	printJSON(out, sum)
	return nil
}
