package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chupacca/pcmatrix/internal/config"
	"github.com/chupacca/pcmatrix/internal/logger"
	"github.com/chupacca/pcmatrix/internal/shutdown"
	"github.com/chupacca/pcmatrix/internal/supervisor"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() (*cobra.Command, error) {
	defaults, err := config.Default()
	if err != nil {
		return nil, err
	}

	var cfgFile string
	rootCmd := &cobra.Command{
		Use:   "pcmatrix [flags] [source_dir [sink_dir]]",
		Short: "Run matrix task descriptors through a bounded worker pipeline",
		Long: `pcmatrix reads task descriptors from a directory, queues them in a
fixed-capacity buffer and lets a pool of workers generate, sum, average or
display the matrices they describe. One result file per task is written to
the sink directory.`,
		Version:      version,
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVar(&cfgFile, "config-file", "", "YAML config file. Flags given on the command line take precedence.")

	v, err := config.BindFlags(rootCmd.Flags(), defaults)
	if err != nil {
		return nil, fmt.Errorf("error while binding flags: %w", err)
	}

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			v.Set("source.dir", args[0])
		}
		if len(args) > 1 {
			v.Set("sink.dir", args[1])
		}
		c, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		return run(cmd.Context(), c)
	}
	return rootCmd, nil
}

func run(ctx context.Context, c *config.Config) error {
	if err := logger.Init(c.Logging); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Close()

	ctx, cancel := shutdown.WithSignal(ctx)
	defer cancel()

	s, err := supervisor.New(c)
	if err != nil {
		logger.Errorf("startup failed: %v", err)
		return err
	}
	if err := s.Run(ctx); err != nil {
		logger.Errorf("pipeline stopped: %v", err)
		return err
	}
	return nil
}
