package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/train-control/tcc/internal/adapter/simtrack"
	"github.com/train-control/tcc/internal/api"
	"github.com/train-control/tcc/internal/audit"
	"github.com/train-control/tcc/internal/auth"
	"github.com/train-control/tcc/internal/config"
	"github.com/train-control/tcc/internal/control"
	"github.com/train-control/tcc/internal/controller"
	"github.com/train-control/tcc/internal/logging"
	"github.com/train-control/tcc/internal/metrics"
	"github.com/train-control/tcc/internal/program"
	"github.com/train-control/tcc/internal/telemetry"
)

type runOptions struct {
	noKeyboard bool
	connect    bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the orchestrator",
		Long: `Run the orchestrator against the simulated track.

Commands are read one per line from stdin (try "help") and accepted on the
HTTP API when api.enabled is set. EXIT, "quit", end of input or a signal stop
the process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.noKeyboard, "no-keyboard", false, "do not read commands from stdin")
	cmd.Flags().BoolVar(&opts.connect, "connect", true, "connect to the vehicle at startup")
	return cmd
}

func run(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	scanner, err := simtrack.NewScanner(cfg.Simulator, logger)
	if err != nil {
		return err
	}

	o, err := control.NewOrchestrator(cfg, scanner, m, logger)
	if err != nil {
		return err
	}
	o.AddReporter(logging.NewConsoleReporter(cmd.OutOrStdout()))

	hub := telemetry.NewHub(&cfg.Timing, m, logger)
	defer hub.Stop()
	hub.SetSnapshot(o.TelemetrySnapshot)
	o.SetTelemetry(hub)

	if cfg.Audit.Path != "" {
		auditLogger, err := audit.NewLogger(cfg.Audit, logger)
		if err != nil {
			return err
		}
		defer func() { _ = auditLogger.Close() }()
		o.SetAuditLogger(auditLogger)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.AddStopper(cancel)

	if err := loadPrograms(ctx, cfg.Programs, o, logger); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	if cfg.API.Enabled {
		server, err := newAPIServer(cfg, o, hub, reg, logger)
		if err != nil {
			return err
		}
		go func() { serverErr <- server.Start(cfg.API.Addr) }()
		defer func() {
			stopCtx, cancelStop := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelStop()
			if err := server.Stop(stopCtx); err != nil {
				logger.Warn("API shutdown failed", zap.Error(err))
			}
		}()
	}

	if opts.noKeyboard {
		if opts.connect {
			o.Connect(nil)
		}
	} else {
		kc := controller.New(o, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		kc.ConnectOnStart = opts.connect
		if f, ok := cmd.InOrStdin().(*os.File); ok {
			kc.ShowPrompt = term.IsTerminal(int(f.Fd()))
		}
		o.AddStopper(kc.Stop)
		go func() {
			if err := kc.Run(ctx); err != nil {
				logger.Error("keyboard controller failed", zap.Error(err))
			}
			cancel()
		}()
	}

	logger.Info("tcc started", zap.String("version", version), zap.Bool("api", cfg.API.Enabled))

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("HTTP API: %w", err)
		}
	}

	o.Disconnect()
	o.Wait()
	logger.Info("tcc stopped")
	return runErr
}

func loadPrograms(ctx context.Context, cfg config.ProgramsConfig, o *control.Orchestrator, logger *zap.Logger) error {
	if cfg.File == "" {
		return nil
	}

	programs, err := program.LoadFile(cfg.File)
	if err != nil {
		return err
	}
	for _, p := range programs {
		if err := o.Program(p); err != nil {
			return fmt.Errorf("programs file %s: %w", cfg.File, err)
		}
	}
	logger.Info("programs loaded", zap.String("file", cfg.File), zap.Int("count", len(programs)))

	if cfg.Watch {
		go func() {
			err := program.Watch(ctx, cfg.File, logger, func(programs []program.Program) {
				for _, p := range programs {
					if err := o.Program(p); err != nil {
						logger.Warn("program rejected", zap.Error(err))
					}
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("programs watch stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

func newAPIServer(cfg *config.Config, o *control.Orchestrator, hub *telemetry.Hub, reg *prometheus.Registry, logger *zap.Logger) (*api.Server, error) {
	opts := api.Options{
		Control:        o,
		Telemetry:      hub,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ConnectTimeout: cfg.Timing.ScanTimeout + time.Second,
		ReadTimeout:    cfg.API.ReadTimeout,
		WriteTimeout:   cfg.API.WriteTimeout,
		Version:        version,
		Logger:         logger,
	}
	if cfg.Auth.Enabled {
		verifier, err := auth.NewVerifierFromConfig(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to configure auth: %w", err)
		}
		opts.Auth = auth.NewMiddleware(verifier)
	}
	return api.NewServer(opts), nil
}
