package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/yuriy-kovalchuk/dyndns-switch/internal/api"
	"github.com/yuriy-kovalchuk/dyndns-switch/internal/config"
	"github.com/yuriy-kovalchuk/dyndns-switch/internal/dns"
	_ "github.com/yuriy-kovalchuk/dyndns-switch/internal/dns/providers"
	"github.com/yuriy-kovalchuk/dyndns-switch/internal/failover"
	"github.com/yuriy-kovalchuk/dyndns-switch/internal/health"
)

var Version = "dev"

// startupBackoff spaces out provider initialization attempts.
var startupBackoff = wait.Backoff{
	Steps:    5,
	Duration: 2 * time.Second,
	Factor:   2.0,
	Jitter:   0.1,
}

func main() {
	opts := zap.Options{
		Development: true,
		TimeEncoder: zapcore.ISO8601TimeEncoder,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(ctrl.SetupSignalHandler()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := ctrl.Log.WithName("setup")

	log.Info("starting dyndns-switch", "version", Version)

	cfg, path, err := config.Load()
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}
	log.Info("loaded config", "path", path, "providers", len(cfg.Providers), "hosts", len(cfg.Hosts))

	providers := make([]dns.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := dns.NewProvider(pc.Type, pc.Name, ctrl.Log.WithName("dns-"+pc.Name), pc.Settings)
		if err != nil {
			return fmt.Errorf("unable to create DNS provider %s: %w", pc.Name, err)
		}
		providers = append(providers, p)
	}
	registry := dns.NewRegistry(ctrl.Log.WithName("registry"), providers...)
	registry.IsolateFailures = cfg.Refresh.IsolateFailures

	retriable := func(error) bool { return ctx.Err() == nil }
	if err := retry.OnError(startupBackoff, retriable, func() error {
		err := registry.InitializeAll(ctx)
		if err != nil {
			log.Error(err, "provider initialization failed")
		}
		return err
	}); err != nil {
		return fmt.Errorf("unable to initialize DNS providers: %w", err)
	}

	targets := make([]failover.Target, 0, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		targets = append(targets, failover.Target{Identity: h.Identity, Bootstrap: h.Bootstrap})
	}
	prober := health.NewPingProber(ctrl.Log.WithName("ping"), cfg.Monitor.PacketCount, cfg.Monitor.ProbeTimeout)

	var controller *failover.Controller
	if err := retry.OnError(startupBackoff, retriable, func() error {
		controller, err = failover.New(ctx, ctrl.Log.WithName("failover"), registry, prober, targets,
			failover.WithMonitorInterval(cfg.Monitor.Interval),
			failover.WithRefreshInterval(cfg.Refresh.Interval),
		)
		return err
	}); err != nil {
		return fmt.Errorf("unable to set up failover controller: %w", err)
	}

	router := api.NewRouter(ctrl.Log.WithName("api"), controller, api.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return controller.Run(ctx)
	})
	g.Go(func() error {
		return api.Serve(ctx, ctrl.Log.WithName("api"), cfg.HTTP.BindAddress, router)
	})

	log.Info("running")
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dyndns-switch exited with error: %w", err)
	}
	return nil
}
