package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jsp-lqk/metapipe-grid/config"
)

type flags struct {
	configFile  string
	envFile     string
	codec       string
	metricsAddr string
	verbose     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "metapipe-grid",
		Short:         "Key/value grid client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.configFile, "config", "c", "", "TOML config file (defaults to GRID_* environment)")
	root.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "env file read when no config file is given")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")

	demo := &cobra.Command{
		Use:   "demo",
		Short: "Write and read users through every collection kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return runDemo(ctx, cfg, f, newLogger(f.verbose))
		},
	}
	demo.Flags().StringVar(&f.codec, "codec", "json", "codec: json, jsoniter, bson, or snappy+<codec>")
	demo.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	root.AddCommand(demo)

	root.SetContext(context.Background())
	return root
}

func loadConfig(f flags) (*config.Value, error) {
	if f.configFile != "" {
		return config.Load(f.configFile)
	}
	return config.FromEnv(f.envFile)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
