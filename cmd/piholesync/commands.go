package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/thomaslazar/pihole-dnspropagate/internal/adapters/api"
	"github.com/thomaslazar/pihole-dnspropagate/internal/adapters/pihole"
	"github.com/thomaslazar/pihole-dnspropagate/internal/application/propagation"
	"github.com/thomaslazar/pihole-dnspropagate/internal/application/scheduler"
	"github.com/thomaslazar/pihole-dnspropagate/internal/config"
	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
	"github.com/thomaslazar/pihole-dnspropagate/internal/infrastructure/logging"
	"github.com/thomaslazar/pihole-dnspropagate/internal/ports"
)

// app carries what the commands share: how to load configuration and build
// the coordinator, and the exit code of the last command.
type app struct {
	loadConfig     func() (*config.Config, error)
	newCoordinator func(cfg *config.Config) (ports.Coordinator, error)
	exitCode       int
}

func newApp() *app {
	return &app{
		loadConfig:     config.LoadConfig,
		newCoordinator: newCoordinator,
	}
}

func newCoordinator(cfg *config.Config) (ports.Coordinator, error) {
	primary, secondaries, err := cfg.Nodes()
	if err != nil {
		return nil, err
	}
	factory := pihole.NewClientFactory(cfg.Sync.RequestTimeout)
	return propagation.NewService(factory, primary, secondaries), nil
}

func (a *app) root() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "piholesync",
		Short:         "Propagate local DNS records from a primary Pi-hole to its secondaries",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runServe,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the health endpoint until interrupted",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}

	var dryRun bool
	syncNowCmd := &cobra.Command{
		Use:   "sync-now",
		Short: "Run an immediate synchronization against configured Pi-hole instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSyncNow(cmd, dryRun)
		},
	}
	syncNowCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report intended changes without uploading")

	rootCmd.AddCommand(serveCmd, syncNowCmd)
	return rootCmd
}

// setup loads configuration and installs the configured logger.
func (a *app) setup() (*config.Config, io.Closer, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	closer, err := logging.Setup(logging.Options{Level: cfg.App.LogLevel, File: cfg.App.LogFile})
	if err != nil {
		return nil, nil, err
	}
	return cfg, closer, nil
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	cfg, closer, err := a.setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	coordinator, err := a.newCoordinator(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state := scheduler.NewRunState()
	sched := scheduler.NewScheduler(scheduler.NewRunner(coordinator, state), scheduler.Options{
		Interval: cfg.Sync.Interval,
		Cron:     cfg.Sync.Cron,
		DryRun:   cfg.Sync.DryRun,
	})
	server := api.NewServer(cfg.App.HealthPort, cfg.App.AllowedOrigin, api.NewHandler(state))

	log.Info().
		Int("secondaries", len(cfg.Secondaries)).
		Dur("interval", cfg.Sync.Interval).
		Str("cron", cfg.Sync.Cron).
		Bool("dry_run", cfg.Sync.DryRun).
		Msg("piholesync.starting")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// The scheduler keeps running when the health port is unavailable.
		if err := server.Run(ctx); err != nil {
			log.Error().Err(err).Msg("health.listener.failed")
		}
	}()

	sched.Run(ctx)
	wg.Wait()
	log.Info().Msg("piholesync.stopped")
	return nil
}

func (a *app) runSyncNow(cmd *cobra.Command, dryRun bool) error {
	cfg, closer, err := a.setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	coordinator, err := a.newCoordinator(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := scheduler.NewRunner(coordinator, scheduler.NewRunState())
	outcome, result, err := runner.RunOnce(ctx, dryRun || cfg.Sync.DryRun)
	a.exitCode = outcome.ExitCode()

	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		log.Warn().Msg("cli.sync.rejected")
	case outcome == scheduler.OutcomeCanceled:
		log.Warn().Err(err).Msg("cli.sync.canceled")
	case err != nil:
		log.Error().Err(err).Msg("cli.sync.failed")
	case outcome == scheduler.OutcomePartialFailure:
		log.Error().Int("failed", len(result.Failed())).Msg("cli.sync.partial_failure")
	default:
		log.Info().Msg("cli.sync.success")
	}

	if result != nil {
		fmt.Fprintln(cmd.OutOrStdout(), formatResult(result))
	}
	return nil
}

// formatResult renders one row per node.
func formatResult(result *teleporter.SyncResult) string {
	lines := []string{"Node|Status|Hosts|Aliases|Error"}
	for _, o := range append([]teleporter.NodeOutcome{result.Primary}, result.Secondaries...) {
		lines = append(lines, fmt.Sprintf("%s|%s|%s|%s|%s",
			o.Node,
			o.Status,
			countChange(o.Before, o.After, func(c teleporter.RecordCounts) int { return c.Hosts }),
			countChange(o.Before, o.After, func(c teleporter.RecordCounts) int { return c.Aliases }),
			strings.ReplaceAll(o.Error, "|", "/"),
		))
	}
	table := columnize.SimpleFormat(lines)
	if result.DryRun {
		table = "dry run: no changes were uploaded\n" + table
	}
	return table
}

func countChange(before, after *teleporter.RecordCounts, pick func(teleporter.RecordCounts) int) string {
	switch {
	case before == nil && after == nil:
		return "-"
	case before == nil:
		return fmt.Sprintf("%d", pick(*after))
	case after == nil:
		return fmt.Sprintf("%d", pick(*before))
	case pick(*before) == pick(*after):
		return fmt.Sprintf("%d", pick(*after))
	}
	return fmt.Sprintf("%d -> %d", pick(*before), pick(*after))
}
