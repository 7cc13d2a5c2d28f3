package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mscrnt/dimmctl/pkg/agent"
	"github.com/mscrnt/dimmctl/pkg/db"
	"github.com/mscrnt/dimmctl/pkg/monitor"
)

type monitorFlags struct {
	interval   time.Duration
	statusFile string
	channel    string
	noHistory  bool
	serve      bool
}

func monitorCmd(a *app) *cobra.Command {
	var flags monitorFlags

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Keep the lighting in step with the module temperature",
		Long: `Poll the devices on a schedule, record their readings and switch each
lighting-capable module to the level configured for its temperature.

Levels come from the monitor section of the configuration file. Each has a
minimum temperature; the highest level at or below the current reading
applies.

When enabled in the configuration, or with --serve, the status agent
serves the latest readings over mutual TLS.

Examples:
  # Watch Vengeance RGB modules every 5 seconds
  dimmctl monitor --unsafe smbus,vengeance_rgb

  # Also publish a one line summary for status bars
  dimmctl monitor --unsafe smbus,vengeance_rgb --status-file /run/user/1000/dimms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("interval") {
				a.cfg.Monitor.Interval = flags.interval
			}
			if flags.statusFile != "" {
				a.cfg.Monitor.StatusFile = flags.statusFile
			}
			if flags.serve {
				a.cfg.Agent.Enabled = true
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runMonitor(ctx, a, flags)
		},
	}

	cmd.Flags().DurationVar(&flags.interval, "interval", 5*time.Second, "Polling interval (at least 1s)")
	cmd.Flags().StringVar(&flags.statusFile, "status-file", "", "Write a one line summary here every poll")
	cmd.Flags().StringVar(&flags.channel, "channel", "led", "Lighting channel levels are applied to")
	cmd.Flags().BoolVar(&flags.noHistory, "no-history", false, "Do not record readings")
	cmd.Flags().BoolVar(&flags.serve, "serve", false, "Start the status agent")

	return cmd
}

func runMonitor(ctx context.Context, a *app, flags monitorFlags) error {
	devs, err := a.requireDevices()
	if err != nil {
		return err
	}

	levels, err := a.cfg.Levels()
	if err != nil {
		return err
	}

	opts := monitor.Options{
		Levels:     levels,
		Channel:    flags.channel,
		StatusFile: a.cfg.Monitor.StatusFile,
		Unsafe:     a.tokens(),
	}

	var database *db.DB
	if !flags.noHistory {
		database, err = a.openDB()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()
		opts.Recorder = database
		a.log.Infof("recording readings to %s", database.Path())
	}

	controller := monitor.NewController(devs, opts)
	runner := monitor.NewRunner(controller, a.cfg.Monitor.Interval)

	if database != nil && a.cfg.Monitor.Retention > 0 {
		retention := a.cfg.Monitor.Retention
		err := runner.AddJob("prune", "@hourly", func(context.Context) error {
			n, err := database.Prune(time.Now().Add(-retention))
			if err == nil && n > 0 {
				a.log.Infof("pruned %d readings older than %s", n, retention)
			}
			return err
		})
		if err != nil {
			return err
		}
	}

	var server *agent.Server
	if a.cfg.Agent.Enabled {
		sources := agent.Sources{Devices: controller}
		if database != nil {
			sources.Readings = database
		}
		server, err = agent.NewServer(a.cfg.AgentServerConfig(), sources)
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(ctx)
	})

	if server != nil {
		g.Go(server.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
