// Command mdserver serves content pages with Markdown negotiation, the
// alternate .md routes and the Markdown REST API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/markdown-negotiation/internal/app"
	"github.com/Sternrassler/markdown-negotiation/internal/config"
	"github.com/Sternrassler/markdown-negotiation/pkg/logging"
	"github.com/Sternrassler/markdown-negotiation/pkg/server"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// purgeInterval is how often expired transient rows are deleted.
const purgeInterval = time.Hour

func main() {
	configPath := flag.String("config", "", "path to YAML config (default: CONFIG_PATH, ./local.yaml, env)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mdserver: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Log.Level)
	logCfg.Pretty = cfg.Log.Pretty
	logCfg.Service = "mdserver"
	logger := logging.Setup(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Startup failed")
	}
	if err := d.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// daemon owns the listener, the HTTP server and the background jobs.
type daemon struct {
	cfg      *config.Config
	app      *app.App
	http     *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

func newDaemon(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*daemon, error) {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := server.Options{
		Service:    a.Service,
		Dispatcher: a.Dispatcher,
		Settings:   a.Settings,
		Version:    app.Version,
		BaseURL:    cfg.HTTP.BaseURL,
		OpsToken:   cfg.Ops.Token,
		IPHeaders:  cfg.RateLimit.IPHeaders,
		Logger:     logging.NewLogger("http"),
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Addr())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("listen %s: %w", cfg.HTTP.Addr(), err)
	}

	return &daemon{
		cfg: cfg,
		app: a,
		http: &http.Server{
			Handler:           server.New(opts),
			ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
			ReadTimeout:       cfg.HTTP.ReadTimeout,
			WriteTimeout:      cfg.HTTP.WriteTimeout,
		},
		listener: ln,
		logger:   logger,
	}, nil
}

// Addr is the bound listener address.
func (d *daemon) Addr() string { return d.listener.Addr().String() }

// Run serves until ctx is cancelled, then drains connections within the
// configured shutdown timeout.
func (d *daemon) Run(ctx context.Context) error {
	defer d.app.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.logger.Info().
			Str("addr", d.Addr()).
			Str("version", app.Version).
			Str("cache_driver", d.app.Cache.Driver()).
			Msg("Starting mdserver")
		if err := d.http.Serve(d.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		d.logger.Info().Msg("Shutting down")
		return d.http.Shutdown(shutdownCtx)
	})

	if interval := d.cfg.Content.ReloadInterval; interval > 0 {
		g.Go(func() error {
			d.app.WatchContent(gctx, interval)
			return nil
		})
	}

	g.Go(func() error {
		d.purgeLoop(gctx)
		return nil
	})

	return g.Wait()
}

func (d *daemon) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.app.PurgeExpired(ctx)
			if err != nil {
				d.logger.Warn().Err(err).Msg("Transient cache purge failed")
				continue
			}
			if n > 0 {
				d.logger.Debug().Int64("rows", n).Msg("Purged expired cache rows")
			}
		}
	}
}
