// Command henbackupd is the Lifecycle entry point (C9): load config,
// build a redacting logger, wire the Engine Invoker / Daemon / Control
// API together, install a termination signal handler, and block until
// shutdown completes.
//
// Grounded on the teacher's cmd/docbuilder/commands/daemon.go RunDaemon
// function.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/gallofeliz/hen-backup/internal/api"
	"github.com/gallofeliz/hen-backup/internal/config"
	"github.com/gallofeliz/hen-backup/internal/daemon"
	"github.com/gallofeliz/hen-backup/internal/engine"
	"github.com/gallofeliz/hen-backup/internal/logging"
	"github.com/gallofeliz/hen-backup/internal/metrics"
)

var version = "dev"

// CLI is the root kong command definition.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	EnvFile string           `name:"env-file" help:"Optional .env file to load before config" default:".env"`
	Binary  string           `help:"Snapshot engine binary name" default:"restic"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run RunCmd `cmd:"" default:"withargs" help:"Start the backup orchestrator daemon"`
}

// RunCmd is the (sole, default) daemon-start command.
type RunCmd struct{}

func (r *RunCmd) Run(root *CLI) error {
	return runDaemon(root.Config, root.EnvFile, root.Binary)
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Description("henbackupd: backup orchestrator daemon around a restic-like snapshot engine."),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}

func runDaemon(configPath, envFile, binary string) error {
	if envFile != "" {
		_ = godotenv.Load(envFile) // optional: absence is not an error
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Host.Log.Level)
	slog.SetDefault(logger)

	registry := engine.NewProcessRegistry()
	invoker := engine.NewInvoker(binary, registry, logger)

	d, err := daemon.New(cfg, logger, invoker, registry)
	if err != nil {
		return fmt.Errorf("build daemon: %w", err)
	}

	// The same registry backs both the recorder's registrations and the
	// /metrics scrape handler; a private NewPrometheusRecorder(nil)
	// registry and promhttp.Handler()'s DefaultGatherer are not the same
	// registry, so this pairing is required, not cosmetic.
	metricsRegistry := prom.NewRegistry()
	var recorder metrics.Recorder = metrics.NewPrometheusRecorder(metricsRegistry)
	d.SetRecorder(recorder)

	if cfg.Host.API != nil {
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.Host.API.Port)
		server := api.NewServer(addr, d, cfg.Host.API.Credentials, recorder, metrics.Handler(metricsRegistry))
		d.SetAPI(server)
		go func() {
			if startErr := server.Start(); startErr != nil {
				logger.Error("control API stopped", slog.String("error", startErr.Error()))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	logger.Info("daemon started, waiting for shutdown signal")
	<-ctx.Done()
	logger.Info("shutdown signal received, stopping daemon")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}

	logger.Info("daemon stopped successfully")
	return nil
}
