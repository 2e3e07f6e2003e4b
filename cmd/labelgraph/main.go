// Package main provides the labelgraph binary entry point.
// Labelgraph maintains a label hierarchy with derived-label rules and
// publishes change notifications over NATS.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/c360studio/labelgraph/bus"
	"github.com/c360studio/labelgraph/config"
	"github.com/c360studio/labelgraph/label"
	"github.com/c360studio/labelgraph/notify"
	"github.com/c360studio/labelgraph/registry"
	"github.com/c360studio/labelgraph/storage"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "labelgraph"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Label ancestry engine",
		Long: `Labelgraph maintains a registry of labels organized into a parent
hierarchy. It compiles the declared graph into ancestor closures
(collapsing cycles into equivalence classes), evaluates derived-label
rules against those closures, and notifies consumers when either
changes.

Label records persist in NATS JetStream KV; hierarchy, rules, and
area-backing labels come from a YAML config file that is watched and
hot-reloaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "labelgraph.yaml", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and report per-label diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(configPath, logLevel)
		},
	})

	showCmd := &cobra.Command{
		Use:   "show [pattern]",
		Short: "Print computed ancestry for labels matching a glob pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "**"
			if len(args) == 1 {
				pattern = args[0]
			}
			return runShow(configPath, logLevel, pattern)
		},
	}
	cmd.AddCommand(showCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func setupLogging(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(configPath, logLevel string) error {
	logger := setupLogging(logLevel)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()

	changeBus := bus.New(logger)
	opts := []label.Option{label.WithMetrics(prometheus.DefaultRegisterer)}

	var nc *nats.Conn
	if url := natsURL(cfg); url != "" {
		logger.Info("Connecting to NATS", "url", url)
		nc, err = nats.Connect(url,
			nats.Name(appName),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return wrapNATSError(err, url)
		}
		defer nc.Close()

		js, err := jetstream.New(nc)
		if err != nil {
			return fmt.Errorf("create JetStream context: %w", err)
		}
		store, err := storage.NewStore(ctx, js)
		if err != nil {
			return fmt.Errorf("create label store: %w", err)
		}
		opts = append(opts, label.WithStore(store))
	} else {
		logger.Warn("No NATS URL configured, running without persistence or external notifications")
	}

	labels := label.New(logger, changeBus, opts...)
	if err := labels.Load(ctx, cfg.Settings()); err != nil {
		return fmt.Errorf("load label registry: %w", err)
	}

	// Consumer wiring order matters: devices refresh before entities so
	// entities observe fresh device labels.
	areas := registry.NewAreaRegistry(logger, labels, changeBus)
	defer areas.Close()
	devices := registry.NewDeviceRegistry(logger, labels, changeBus)
	defer devices.Close()
	entities := registry.NewEntityRegistry(logger, labels, devices, changeBus)
	defer entities.Close()

	if nc != nil {
		publisher := notify.NewPublisher(nc, logger)
		publisher.Attach(changeBus)
		defer publisher.Detach()
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	watcher, err := config.NewWatcher(configPath, logger)
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	err = watcher.Start(signalCtx, func(next *config.Config) {
		if err := labels.Reload(next.Settings()); err != nil {
			logger.Error("Config reload failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	defer watcher.Stop()

	logger.Info("Labelgraph ready",
		"version", Version,
		"labels", len(labels.List()),
		"config", configPath)

	<-signalCtx.Done()
	logger.Info("Received shutdown signal")

	logger.Info("Labelgraph shutdown complete")
	return nil
}

func runValidate(configPath, logLevel string) error {
	logger := setupLogging(logLevel)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Load without a store: per-label diagnostics (special ids, bad
	// rule expressions) surface as warnings from the registry.
	labels := label.New(logger, nil)
	if err := labels.Load(context.Background(), cfg.Settings()); err != nil {
		return err
	}

	fmt.Printf("%s: OK (%d labels, %d rules, %d areas)\n",
		configPath, len(cfg.Labels), len(cfg.Rules), len(cfg.Areas))
	return nil
}

func runShow(configPath, logLevel, pattern string) error {
	logger := setupLogging(logLevel)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Offline view: seed the registry with every label the config
	// mentions so the hierarchy can be inspected without NATS.
	labels := label.New(logger, nil)
	if err := labels.Load(context.Background(), cfg.Settings()); err != nil {
		return err
	}
	for id := range configLabelIDs(cfg) {
		if _, err := labels.Create(context.Background(), id); err != nil {
			return fmt.Errorf("seed label %s: %w", id, err)
		}
	}

	var ids []string
	for _, entry := range labels.List() {
		ok, err := doublestar.Match(pattern, entry.ID)
		if err != nil {
			return fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if ok {
			ids = append(ids, entry.ID)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		ancestry, ok := labels.AncestryOf(id)
		if !ok {
			continue
		}
		switch ancestry.State {
		case label.AncestryLeaf:
			fmt.Printf("%s: leaf\n", id)
		case label.AncestryResolved:
			fmt.Printf("%s: ancestors=%v", id, ancestry.Ancestors.Sorted())
			if ancestry.Equivalents != nil {
				fmt.Printf(" equivalents=%v", ancestry.Equivalents.Sorted())
			}
			fmt.Println()
		default:
			fmt.Printf("%s: unknown\n", id)
		}
	}
	return nil
}

// configLabelIDs collects every label id the config mentions: hierarchy
// keys, their parents, rule keys, and area-backing labels.
func configLabelIDs(cfg *config.Config) label.IDSet {
	ids := label.NewIDSet()
	for id, lc := range cfg.Labels {
		ids.Add(id)
		for _, parent := range lc.Parents {
			ids.Add(parent)
		}
	}
	for id := range cfg.Rules {
		ids.Add(id)
	}
	for _, id := range cfg.Areas {
		ids.Add(id)
	}
	for id := range ids {
		if label.IsSpecial(id) {
			ids.Discard(id)
		}
	}
	return ids
}

func natsURL(cfg *config.Config) string {
	// Environment variable override takes precedence
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}
	if envURL := os.Getenv("LABELGRAPH_NATS_URL"); envURL != "" {
		return envURL
	}
	return cfg.NATS.URL
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set NATS_URL environment variable to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}
