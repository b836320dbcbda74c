package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/packrelay/internal/config"
	"github.com/roach88/packrelay/internal/engine"
	"github.com/roach88/packrelay/internal/httpapi"
	"github.com/roach88/packrelay/internal/metrics"
	"github.com/roach88/packrelay/internal/relay"
	"github.com/roach88/packrelay/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
	Listen     string
	MaxLimit   int
	LogFormat  string
	LogLevel   string

	// IDGenerator overrides how sessions are named (for testing).
	// If nil, defaults to relay.UUIDv7Generator.
	IDGenerator relay.IDGenerator
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		Long: `Open the database, start the single-writer ingest loop, and serve HTTP
and WebSocket clients until interrupted.

Flags override values from the config file.

Examples:
  packrelay serve --db ./relay.db
  packrelay serve --config relay.yaml --listen 127.0.0.1:7777`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address")
	cmd.Flags().IntVar(&opts.MaxLimit, "max-limit", 0, "maximum events returned per filter")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	return cmd
}

// loadServeConfig reads the config file and applies flags that were set.
func loadServeConfig(opts *ServeOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Storage.Path = opts.Database
	}
	if flags.Changed("listen") {
		cfg.Server.Listen = opts.Listen
	}
	if flags.Changed("max-limit") {
		cfg.Query.MaxLimit = opts.MaxLimit
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.LogFormat
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadServeConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format, opts.Verbose))

	slog.Info("opening database", "path", cfg.Storage.Path)
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	eng := engine.New(st,
		engine.WithMaxLimit(cfg.Query.MaxLimit),
		engine.WithQueueSize(cfg.Ingest.QueueSize),
	)

	handlerOpts := []relay.HandlerOption{relay.WithReadLimit(cfg.Server.ReadLimit)}
	if opts.IDGenerator != nil {
		handlerOpts = append(handlerOpts, relay.WithIDGenerator(opts.IDGenerator))
	}
	api := httpapi.New(st, eng,
		httpapi.WithInfo(httpapi.Info{Name: cfg.Relay.Name, Description: cfg.Relay.Description}),
		httpapi.WithSubscriptions(relay.NewHandler(eng, handlerOpts...)),
		httpapi.WithMetrics(cfg.Metrics.Enabled),
	)

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
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
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// The writer outlives the listener so that requests still in flight
	// during shutdown can finish their writes.
	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := eng.Run(engineCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ingest loop: %w", err)
		}
		return nil
	})

	if cfg.Metrics.Enabled {
		collector := metrics.NewStorageCollector(st)
		g.Go(func() error {
			collector.Start(gctx, cfg.SampleInterval())
			return nil
		})
	}

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "timeout", cfg.ShutdownTimeout())

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancelShutdown()
		err := srv.Shutdown(shutdownCtx)
		stopEngine()
		if err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	slog.Info("relay started",
		"listen", ln.Addr().String(),
		"db", cfg.Storage.Path,
		"max_limit", eng.MaxLimit(),
		"metrics", cfg.Metrics.Enabled,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Relay listening on %s\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "relay error", err)
	}

	slog.Info("relay stopped gracefully")
	return nil
}
