// Command demo-server runs the demo widgets on a shared real-time loop and
// serves their snapshots over gRPC and HTTP Server-Sent Events.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/livedemo/internal/catalog"
	"github.com/signalsfoundry/livedemo/internal/host"
	"github.com/signalsfoundry/livedemo/internal/logging"
	"github.com/signalsfoundry/livedemo/internal/observability"
	"github.com/signalsfoundry/livedemo/timectrl"
)

// Config holds the server settings parsed from flags.
type Config struct {
	GRPCAddress    string
	HTTPAddress    string
	MetricsAddress string
	CatalogPath    string
	WatchCatalog   bool
	Seed           int64
	Tick           time.Duration
	Buffer         int
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.GRPCAddress, "grpc-addr", ":50051", "TCP address the WidgetService gRPC server listens on")
	flag.StringVar(&cfg.HTTPAddress, "http-addr", ":8080", "HTTP address for /widgets and SSE streams")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics (empty disables)")
	flag.StringVar(&cfg.CatalogPath, "catalog", "", "Path to a widget catalog YAML file (default: embedded catalog)")
	flag.BoolVar(&cfg.WatchCatalog, "watch-catalog", false, "Reload -catalog on change; new subscriptions use the latest revision")
	flag.Int64Var(&cfg.Seed, "seed", 0, "Seed for widget randomness (0 seeds from the clock)")
	flag.DurationVar(&cfg.Tick, "tick", 16*time.Millisecond, "Event loop tick")
	flag.IntVar(&cfg.Buffer, "buffer", 32, "Snapshots a subscriber may lag before older ones are dropped")
	flag.Parse()

	// Local runs keep LOG_LEVEL and LIVEDEMO_TRACING_* in an optional .env file.
	_ = godotenv.Load()
	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddress), logging.Err(err))
		os.Exit(1)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.HTTPAddress), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, prometheus.DefaultRegisterer, grpcLis, httpLis); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. Listeners are owned by run.
func run(ctx context.Context, cfg Config, log logging.Logger, reg prometheus.Registerer, grpcLis, httpLis net.Listener) error {
	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		return err
	}

	widgets, err := observability.NewWidgetCollector(reg)
	if err != nil {
		return err
	}
	rpc, err := observability.NewRPCCollector(reg)
	if err != nil {
		return err
	}

	hub := host.NewHub(cat,
		host.WithClock(timectrl.NewTimeController(time.Now(), cfg.Tick, timectrl.RealTime)),
		host.WithSeed(cfg.Seed),
		host.WithBuffer(cfg.Buffer),
		host.WithHubLogger(log),
		host.WithHubRecorder(widgets),
	)
	grpcSrv, health := host.NewGRPCServer(hub, log, rpc)
	httpSrv := &http.Server{
		Handler:           host.NewHTTPHandler(hub, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := metricsServer(cfg.MetricsAddress, widgets)

	log.Info(ctx, "starting demo server",
		logging.String("grpc_addr", grpcLis.Addr().String()),
		logging.String("http_addr", httpLis.Addr().String()),
		logging.String("metrics_addr", cfg.MetricsAddress),
		logging.Int("widgets", len(cat.Widgets)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return grpcSrv.Serve(grpcLis) })
	g.Go(func() error {
		if err := httpSrv.Serve(httpLis); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.WatchCatalog && cfg.CatalogPath != "" {
		g.Go(func() error { return catalog.Watch(gctx, cfg.CatalogPath, hub.SetCatalog, log) })
	}
	if metricsSrv != nil {
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.WithoutCancel(gctx), "shutting down demo server")
		health.Shutdown()
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		grpcSrv.GracefulStop()
		return nil
	})
	return g.Wait()
}

func metricsServer(addr string, collector *observability.WidgetCollector) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
