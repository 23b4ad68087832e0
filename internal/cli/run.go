package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roadbook/roadbook/internal/config"
	"github.com/roadbook/roadbook/internal/localstate"
	"github.com/roadbook/roadbook/internal/network"
	"github.com/roadbook/roadbook/internal/queue"
	"github.com/roadbook/roadbook/internal/remote"
	"github.com/roadbook/roadbook/internal/sched"
	"github.com/roadbook/roadbook/internal/syncer"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the sync client",
		Long: `Start the roadbook sync client.

The client opens the durable mutation queue, probes the remote for
reachability, and drains pending changes strictly in order whenever the
network allows.

Example:
  roadbook run --config ./roadbook.yaml
  roadbook run --config /tmp/test.yaml --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(opts, cmd)
		},
	}

	return cmd
}

func runClient(opts *RunOptions, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger.Info("opening mutation queue", "path", cfg.Database.Path)
	q, err := queue.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open mutation queue", err)
	}
	defer func() {
		if closeErr := q.Close(); closeErr != nil {
			logger.Error("error closing mutation queue", "error", closeErr)
		}
	}()

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	scheduler := sched.TimerScheduler{}

	var source network.Source
	if cfg.Network.ProbeURL != "" {
		prober := network.NewProber(cfg.Network.ProbeURL, cfg.Network.Interval(), scheduler, logger)
		prober.Start(ctx)
		defer prober.Stop()
		source = prober
	} else {
		// No probe configured: assume reachable and let dispatch failures
		// drive the retry path.
		source = network.NewSwitch(true)
	}

	store := remote.NewHTTPStore(cfg.Remote.BaseURL)
	local := localstate.NewMemory()

	mgr, err := syncer.New(ctx, q,
		remote.NewExecutor(store),
		syncer.NewResolver(store, local, logger),
		source, scheduler,
		syncer.WithLogger(logger),
		syncer.WithBackoff(cfg.Backoff.Base(), cfg.Backoff.Cap()),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start sync manager", err)
	}
	defer mgr.Close()

	logger.Info("sync client started", "remote", cfg.Remote.BaseURL, "db", cfg.Database.Path)
	fmt.Fprintln(cmd.OutOrStdout(), "Sync client started. Draining pending changes...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	mgr.ProcessQueue(ctx)

	<-ctx.Done()
	logger.Info("sync client stopped", "status", string(mgr.Status()))
	return nil
}
