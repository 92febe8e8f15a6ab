package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with every subcommand attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createReplayCommand(globalFlags),
		createNotifyCommand(),
		createBatchCommand(),
		createStatusCommand(),
		createConsumptionCommand(),
		createResetCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "jitter",
		Short: "Buffered gesture delivery engine",
		Long: `Jitter buffers gesture notifications from a high-rate recognizer and hands
them to slower consumers in batches, delivering each gesture once.

Examples:
  jitter serve --config=jitter.toml          # Start the HTTP server
  jitter replay --file=session.jsonl         # Play a recorded stream locally
  jitter notify --category=circle --id=1 --phase=start --progress=0.4
  jitter batch --category=circle --min-progress=1
  jitter status --api-url=http://remote:8480/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the jitter HTTP server",
		Long: `Start the HTTP server exposing the producer and consumer endpoints.
Configuration comes from the TOML file and JITTER_* environment variables.

Examples:
  jitter serve                          # Defaults, listens on 127.0.0.1:8480
  jitter serve jitter.toml              # Start with a specific config file
  jitter serve --listen=:9000           # Override [server].listen`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				f.ConfigPath = args[0]
			}
			return runServe(cmd.Context(), *f, nil)
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "", "override the API listen address")
	return cmd
}

func createReplayCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &ReplayFlags{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Play a recorded gesture stream through a local engine",
		Long: `Play a JSON lines or YAML gesture stream into an in-process engine at the
producer rate while draining every enabled category at the consumer rate.
Each non-empty batch is printed as one JSON line.

Examples:
  jitter replay --file=session.jsonl
  jitter replay --file=session.yaml --producer-fps=60 --consumer-fps=10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return runReplay(cmd, *f)
		},
	}
	cmd.Flags().StringVar(&f.File, "file", "", "stream file (overrides [replay].file)")
	cmd.Flags().Float64Var(&f.ProducerFPS, "producer-fps", 0, "producer frame rate (overrides config)")
	cmd.Flags().Float64Var(&f.ConsumerFPS, "consumer-fps", 0, "consumer poll rate (overrides config)")
	cmd.Flags().Float64Var(&f.MinProgress, "min-progress", 0, "circle progress threshold")
	cmd.Flags().Float64Var(&f.MinRadius, "min-radius", 0, "circle radius threshold")
	cmd.Flags().BoolVar(&f.Quiet, "quiet", false, "print only the summary")
	return cmd
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "server URL (default http://127.0.0.1:8480/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().StringVar(&f.CACert, "ca-cert", "", "CA certificate for HTTPS servers")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS certificate verification")
}

func createNotifyCommand() *cobra.Command {
	f := &NotifyFlags{}
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send one gesture notification to a server",
		Long: `Send a single gesture frame to a running server, as a recognizer would.

Examples:
  jitter notify --category=circle --id=7 --phase=start --progress=0.3 --radius=20
  jitter notify --category=key_tap --id=9 --phase=stop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotify(cmd, *f)
		},
	}
	cmd.Flags().StringVar(&f.Category, "category", "", "gesture category (circle, swipe, screen_tap, key_tap)")
	cmd.Flags().Int64Var(&f.ID, "id", 0, "gesture id")
	cmd.Flags().StringVar(&f.Phase, "phase", "start", "start, update or stop")
	cmd.Flags().Float64Var(&f.Progress, "progress", 0, "progress (circle turns, tap completion)")
	cmd.Flags().Float64Var(&f.Radius, "radius", 0, "circle radius")
	cmd.Flags().BoolVar(&f.Clockwise, "clockwise", false, "circle rotation sense")
	cmd.Flags().Float64Var(&f.Speed, "speed", 0, "swipe speed")
	addAPIFlags(cmd, &f.APIFlags)
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func createBatchCommand() *cobra.Command {
	f := &BatchFlags{}
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Drain the next batch of one category from a server",
		Long: `Drain and print the next batch of a category. With consumption enabled the
returned gestures are not delivered again until they restart.

Examples:
  jitter batch --category=swipe
  jitter batch --category=circle --min-progress=1 --min-radius=15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, *f)
		},
	}
	cmd.Flags().StringVar(&f.Category, "category", "", "gesture category")
	cmd.Flags().Float64Var(&f.MinProgress, "min-progress", 0, "circle progress threshold")
	cmd.Flags().Float64Var(&f.MinRadius, "min-radius", 0, "circle radius threshold")
	addAPIFlags(cmd, &f.APIFlags)
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func createStatusCommand() *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-category buffer statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createConsumptionCommand() *cobra.Command {
	f := &ConsumptionFlags{}
	cmd := &cobra.Command{
		Use:   "consumption",
		Short: "Turn gesture consumption on or off",
		Long: `Toggle whether drains mark delivered gestures as consumed.

Examples:
  jitter consumption --enabled=false                 # All categories
  jitter consumption --category=swipe --enabled=true`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsumption(cmd, *f)
		},
	}
	cmd.Flags().StringVar(&f.Category, "category", "", "gesture category (default all)")
	cmd.Flags().BoolVar(&f.Enabled, "enabled", true, "consumption flag")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createResetCommand() *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Empty every buffer and consumption ledger on a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd, *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}
