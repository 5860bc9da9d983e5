package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"sentinel-hq/aegis/pkg/admission"
	"sentinel-hq/aegis/pkg/audit"
	"sentinel-hq/aegis/pkg/cache"
	"sentinel-hq/aegis/pkg/config"
	"sentinel-hq/aegis/pkg/guard"
	"sentinel-hq/aegis/pkg/proxy/handlers"
	"sentinel-hq/aegis/pkg/scan"
	"sentinel-hq/aegis/pkg/scan/analyzers"
	"sentinel-hq/aegis/pkg/server"
	"sentinel-hq/aegis/pkg/telemetry/logging"
	"sentinel-hq/aegis/pkg/telemetry/metrics"
	"sentinel-hq/aegis/pkg/upstream"
	"sentinel-hq/aegis/pkg/upstream/ollama"
	"sentinel-hq/aegis/pkg/upstream/openai"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Aegis proxy server",
	Long: `Start the Aegis proxy server with the specified configuration.

The server listens on the configured address and relays inference
requests to the backend through admission control and content scanning.

Examples:
  # Start with default config
  aegis run

  # Start with custom config
  aegis run --config /etc/aegis/config.yaml

  # Override listen address
  aegis run --listen 0.0.0.0:8080

  # Validate config without starting server
  aegis run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	if _, err := logging.Setup(cfg.Telemetry.Logging); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var m *metrics.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		m = metrics.New(&cfg.Telemetry.Metrics)
	}

	// Analyzer pipeline, in fixed registration order.
	pipeline := scan.NewPipeline(cfg.Scan.FailClosed)
	pipeline.Register(analyzers.NewInjection(), true, false)
	pipeline.Register(analyzers.NewToxicity(0), true, true)
	pipeline.Register(analyzers.NewSecrets(), true, true)
	pipeline.Register(analyzers.NewPII(0), true, true)
	pipeline.Register(analyzers.NewRefusal(), false, true)
	pipeline.ApplyConfig(&cfg.Scan)
	pipeline.SetMetrics(m)

	// Admission controller with memory-derived or fixed default limit.
	parallelLimit, err := resolveParallelLimit(cfg.Admission.ParallelLimit)
	if err != nil {
		return err
	}
	controller := admission.NewController(parallelLimit, int64(cfg.Admission.QueueLimit))
	controller.SetMetrics(m)
	for model, limits := range cfg.Admission.ModelOverrides {
		controller.UpdateLimits(model, int64(limits.ParallelLimit), int64(limits.QueueLimit))
	}
	slog.Info("admission controller initialized",
		"default_parallel_limit", parallelLimit,
		"default_queue_limit", cfg.Admission.QueueLimit,
		"model_overrides", len(cfg.Admission.ModelOverrides),
	)

	// Verdict cache.
	store, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer store.Close()
	if m != nil {
		m.RegisterCacheSize(func() (string, int64) {
			stats := store.Stats(context.Background())
			return stats.ActiveBackend, stats.Size
		})
	}

	// Block-event audit log.
	recorder, err := audit.New(cfg.Audit)
	if err != nil {
		return fmt.Errorf("failed to initialize audit log: %w", err)
	}
	defer recorder.Stop()

	// Backend clients, one base client shared by both dialects.
	base := upstream.NewClient(cfg.Upstream)
	defer base.Close()
	openaiClient := openai.New(base)
	ollamaClient := ollama.New(base)

	g := guard.New(controller, store, pipeline, cfg.Cache.TTL, cfg.Scan.StreamWindow)
	g.SetMetrics(m)
	g.SetAudit(recorder)

	// Hot reload of analyzer toggles, scan policy, and admission limits.
	watcher, err := config.NewWatcher(cfgFile)
	if err != nil {
		slog.Warn("config watcher unavailable, hot reload disabled", "error", err)
	} else {
		defer watcher.Stop()
		go func() {
			err := watcher.Watch(ctx, func(newCfg *config.Config) {
				if err := applyReload(newCfg, pipeline, controller); err != nil {
					slog.Warn("config reload not applied", "error", err)
					return
				}
				slog.Info("configuration reloaded",
					"fail_closed", newCfg.Scan.FailClosed,
					"analyzers", pipeline.Names(),
					"model_overrides", len(newCfg.Admission.ModelOverrides),
				)
			})
			if err != nil {
				slog.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	h := handlers.New(g, openaiClient, ollamaClient, controller, store, pipeline, recorder)
	srv := server.New(&cfg.Proxy, h, m)

	slog.Info("aegis starting",
		"version", Version,
		"listen_address", cfg.Proxy.ListenAddress,
		"upstream", cfg.Upstream.BaseURL,
		"cache_backend", cfg.Cache.Backend,
		"fail_closed", cfg.Scan.FailClosed,
	)
	return srv.Start(ctx)
}

// applyReload pushes a reloaded configuration into the running components:
// analyzer enable flags and scan policy, then default and per-model
// admission limits. In-flight requests keep the tickets they hold.
func applyReload(cfg *config.Config, pipeline *scan.Pipeline, controller *admission.Controller) error {
	pipeline.ApplyConfig(&cfg.Scan)

	parallelLimit, err := resolveParallelLimit(cfg.Admission.ParallelLimit)
	if err != nil {
		return err
	}
	controller.UpdateDefaultLimits(parallelLimit, int64(cfg.Admission.QueueLimit))
	for model, limits := range cfg.Admission.ModelOverrides {
		controller.UpdateLimits(model, int64(limits.ParallelLimit), int64(limits.QueueLimit))
	}
	return nil
}

// resolveParallelLimit turns the configured default parallel limit into a
// number: "auto" derives it from total system memory, anything else must
// be a positive integer.
func resolveParallelLimit(value string) (int64, error) {
	if value == "auto" {
		limit := admission.DefaultParallelLimit()
		slog.Info("parallel limit derived from system memory", "limit", limit)
		return limit, nil
	}
	limit, err := strconv.ParseInt(value, 10, 64)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("invalid parallel_limit %q: must be \"auto\" or a positive integer", value)
	}
	return limit, nil
}
