package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-ar-overlay/internal/arview"
	"github.com/i474232898/weather-ar-overlay/internal/config"
	"github.com/i474232898/weather-ar-overlay/internal/overlay"
	"github.com/i474232898/weather-ar-overlay/internal/refresher"
)

type simulateOptions struct {
	duration    time.Duration
	every       time.Duration
	anchorAfter time.Duration
	offline     bool
}

func simulateCmd() *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive the panel from synthetic sensors and print frames as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.SensorSource = config.SourceSynthetic

			var fetcher refresher.Fetcher
			if opts.offline {
				fetcher = offlineFetcher()
			}
			a := buildApp(cfg, newLogger(cfg.LogLevel), overlay.PermissionGranted, fetcher)
			return simulate(cmd.Context(), a.screen, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().DurationVar(&opts.duration, "duration", 5*time.Second, "How long to run")
	cmd.Flags().DurationVar(&opts.every, "every", 100*time.Millisecond, "Frame print interval")
	cmd.Flags().DurationVar(&opts.anchorAfter, "anchor-after", time.Second, "Anchor the panel after this delay (0 disables)")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use a fixed snapshot instead of the weather providers")
	return cmd
}

// simFrame is one printed line.
type simFrame struct {
	Elapsed string       `json:"elapsed"`
	Frame   arview.Frame `json:"frame"`
}

func simulate(ctx context.Context, screen *arview.Controller, w io.Writer, opts simulateOptions) error {
	if opts.every <= 0 {
		opts.every = 100 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	if err := screen.Activate(ctx); err != nil {
		return err
	}
	defer screen.Deactivate()

	enc := json.NewEncoder(w)
	ticker := time.NewTicker(opts.every)
	defer ticker.Stop()

	start := time.Now()
	anchored := opts.anchorAfter <= 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if !anchored && now.Sub(start) >= opts.anchorAfter {
				screen.AnchorHere(ctx)
				anchored = true
			}
			line := simFrame{
				Elapsed: now.Sub(start).Truncate(time.Millisecond).String(),
				Frame:   screen.Frame(now),
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
	}
}
