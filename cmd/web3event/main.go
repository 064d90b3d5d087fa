package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/smyja/web3event/internal/analytics"
	"github.com/smyja/web3event/internal/api"
	"github.com/smyja/web3event/internal/browser"
	"github.com/smyja/web3event/internal/circuitbreaker"
	"github.com/smyja/web3event/internal/config"
	"github.com/smyja/web3event/internal/cron"
	"github.com/smyja/web3event/internal/dispatcher"
	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/eventbrite"
	"github.com/smyja/web3event/internal/logging"
	"github.com/smyja/web3event/internal/logstream"
	"github.com/smyja/web3event/internal/luma"
	"github.com/smyja/web3event/internal/metrics"
	"github.com/smyja/web3event/internal/output"
	"github.com/smyja/web3event/internal/reconciler"
	"github.com/smyja/web3event/internal/scheduler"
	"github.com/smyja/web3event/internal/source"
	"github.com/smyja/web3event/internal/store/memory"
	"github.com/smyja/web3event/internal/transport/channel"
)

// cronParserAdapter adapts internal/cron.Parser to scheduler.CronParser interface.
type cronParserAdapter struct {
	parser *cron.Parser
}

func (a *cronParserAdapter) Parse(expression string, timezone string) (scheduler.CronSchedule, error) {
	sched, err := a.parser.Parse(expression, timezone)
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// redisPinger adapts a redis client to api.HealthChecker.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`web3event - web3 event scraper for Eventbrite and Luma

Usage:
  web3event <command>

Commands:
  serve      Start the HTTP API, dispatcher and optional sweeps
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  HTTP_ADDR                 HTTP server address (default: ":8000", or ":$PORT")
  OUTPUT_DIR                Directory for scraped event files (default: "event_data")
  CATALOG_PATH              YAML file overriding cities and tags (optional)
  LOG_LEVEL                 debug, info, warn, error (default: "info")
  LOG_FORMAT                json or console (default: "json")

  SETTLE_DELAY              Wait after each page load (default: "10s")
  SETTLE_MODE               fixed or idle (default: "fixed")
  IDLE_QUIET                Network quiet period in idle mode (default: "2s")
  PAGE_DELAY                Pause between listing pages (default: "2s")
  FETCH_TIMEOUT             Event detail request timeout (default: "30s")
  BROWSER_HEADLESS          Run Chrome headless (default: "true")
  CHROME_PATH               Chrome binary (default: autodetect)

  DISPATCHER_WORKERS        Jobs run concurrently (default: "1")
  EVENTBUS_BUFFER_SIZE      Queued jobs before POST /jobs is refused (default: "100")
  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  DISPATCHER_DRAIN_TIMEOUT  Time to fail queued jobs on shutdown (default: "30s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")
  REDIS_ADDR                Redis address or URL for analytics (optional)

  SWEEP_CRON                Cron expression for scheduled sweeps (optional)
  SWEEP_TIMEZONE            Time zone of SWEEP_CRON (default: "UTC")
  SWEEP_PROVIDERS           Comma-separated providers to sweep (default: "eventbrite")
  TICK_INTERVAL             Sweep scheduler tick interval (default: "30s")

  RECONCILE_ENABLED         Fail stuck jobs and prune old ones (default: "false")
  RECONCILE_INTERVAL        How often to reconcile (default: "5m")
  RECONCILE_THRESHOLD       Age before an in-progress job is stuck (default: "2h")
  RECONCILE_BATCH_SIZE      Max stuck jobs failed per cycle (default: "100")
  RECONCILE_RETENTION       How long finished jobs are kept (default: "24h")

  WEBHOOK_SECRET            HMAC key for completion callbacks (optional)
  WEBHOOK_TIMEOUT           Callback request timeout (default: "10s")
  CIRCUIT_BREAKER_THRESHOLD Failures before a callback URL is skipped, 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN  How long a tripped URL is skipped (default: "2m")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	zlog.Logger = logger
	log := logging.Component(logger, "web3event")

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(log, &cfg)

	// Initialize metrics sink (no-op unless enabled)
	var sink metrics.Sink = metrics.NewNoopSink()
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer, logging.Component(logger, "metrics"))
		log.Info().Str("port", cfg.MetricsPort).Str("path", cfg.MetricsPath).Msg("metrics enabled")

		// Start metrics HTTP server on separate port
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", metricsServer.Addr).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
	} else {
		log.Info().Msg("METRICS_ENABLED not set; metrics disabled")
	}

	store := memory.New()
	bus := channel.NewJobBus(cfg.EventBusBufferSize, channel.WithMetrics(sink))
	hub := logstream.NewHub()

	browsers := browser.NewChromeFactory(browser.Options{
		Headless: cfg.BrowserHeadless,
		ExecPath: cfg.ChromePath,
	})

	ebOpts := eventbrite.Options{
		SettleDelay: cfg.SettleDelay,
		PageDelay:   cfg.PageDelay,
	}
	if cfg.SettleMode == config.SettleModeIdle {
		ebOpts.IdleQuiet = cfg.IdleQuiet
	}
	detail := eventbrite.NewDetailClient(cfg.FetchTimeout).WithMetrics(sink)
	sources := source.NewRegistry(
		eventbrite.NewSource(browsers, detail, ebOpts).WithMetrics(sink),
		luma.NewSource(browsers, catalog, luma.Options{
			SettleDelay: cfg.SettleDelay,
			DetailDelay: cfg.PageDelay,
		}).
			WithDetails(luma.NewDetailClient(cfg.FetchTimeout, browser.DefaultUserAgent)),
	)

	notifier := dispatcher.NewWebhookNotifier(cfg.WebhookSecret, cfg.WebhookTimeout, logging.Component(logger, "webhook")).
		WithMetrics(sink)
	if cfg.CircuitBreakerThreshold > 0 {
		notifier = notifier.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
	}

	disp := dispatcher.New(store, sources, logging.Component(logger, "dispatcher")).
		WithArtifacts(output.NewFileSink(cfg.OutputDir)).
		WithLogHub(hub).
		WithNotifier(notifier).
		WithMetrics(sink).
		WithWorkers(cfg.DispatcherWorkers).
		WithDrainTimeout(cfg.DispatcherDrainTimeout)

	// dispatcherCtx also bounds inline scrapes and websocket streams.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()

	apiHandler := api.NewHandler(store, bus, catalog, logging.Component(logger, "api")).
		WithRunner(disp).
		WithLogStream(hub).
		WithBaseContext(dispatcherCtx)

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		opts, err := redisOptions(cfg.RedisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: REDIS_ADDR: %v\n", err)
			return exitInvalidConfig
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		disp = disp.WithAnalytics(analytics.NewRedisSink(redisClient, logging.Component(logger, "analytics")))
		apiHandler = apiHandler.WithHealthChecker("redis", redisPinger{client: redisClient})
		log.Info().Str("redis", opts.Addr).Msg("analytics enabled")
	} else {
		log.Info().Msg("REDIS_ADDR not set; analytics disabled")
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.CORS(apiHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	var schedulerWg sync.WaitGroup
	var dispatcherWg sync.WaitGroup
	var reconcilerWg sync.WaitGroup
	var cancelScheduler, cancelReconciler context.CancelFunc

	dispatcherWg.Add(1)
	go func() {
		defer dispatcherWg.Done()
		disp.Run(dispatcherCtx, bus.Channel())
	}()

	// Start sweep scheduler if a schedule is configured
	if cfg.SweepCron != "" {
		providers := make([]domain.Provider, len(cfg.SweepProviders))
		for i, p := range cfg.SweepProviders {
			providers[i] = domain.Provider(p)
		}
		sched := scheduler.New(
			scheduler.Config{
				TickInterval: cfg.TickInterval,
				Expression:   cfg.SweepCron,
				Timezone:     cfg.SweepTimezone,
				Providers:    providers,
				Catalog:      catalog,
			},
			store,
			&cronParserAdapter{parser: cron.NewParser()},
			bus,
			logging.Component(logger, "scheduler"),
		).WithMetrics(sink)

		var schedulerCtx context.Context
		schedulerCtx, cancelScheduler = context.WithCancel(context.Background())
		schedulerWg.Add(1)
		go func() {
			defer schedulerWg.Done()
			if err := sched.Run(schedulerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("scheduler stopped")
			}
		}()
	} else {
		log.Info().Msg("SWEEP_CRON not set; scheduled sweeps disabled")
	}

	// Start reconciler if enabled
	if cfg.ReconcileEnabled {
		var reconcilerCtx context.Context
		reconcilerCtx, cancelReconciler = context.WithCancel(context.Background())
		recon := reconciler.New(
			reconciler.Config{
				Interval:  cfg.ReconcileInterval,
				Threshold: cfg.ReconcileThreshold,
				BatchSize: cfg.ReconcileBatchSize,
				Retention: cfg.ReconcileRetention,
			},
			store,
			logging.Component(logger, "reconciler"),
		).WithMetrics(sink)
		reconcilerWg.Add(1)
		go func() {
			defer reconcilerWg.Done()
			recon.Run(reconcilerCtx)
		}()
	} else {
		log.Info().Msg("RECONCILE_ENABLED not set; reconciler disabled")
	}

	log.Info().
		Str("http", cfg.HTTPAddr).
		Int("workers", cfg.DispatcherWorkers).
		Int("cities", len(catalog.Cities)).
		Str("output_dir", cfg.OutputDir).
		Msg("started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Info().Str("signal", received.String()).Msg("shutting down")

	// Phase 1: Stop scheduler (no new sweep jobs)
	if cancelScheduler != nil {
		log.Info().Msg("stopping scheduler...")
		cancelScheduler()
		schedulerWg.Wait()
		log.Info().Msg("scheduler stopped")
	}

	// Phase 2: Stop reconciler
	if cancelReconciler != nil {
		log.Info().Msg("stopping reconciler...")
		cancelReconciler()
		reconcilerWg.Wait()
		log.Info().Msg("reconciler stopped")
	}

	// Phase 3: Stop dispatcher. Running jobs fail, queued jobs are drained.
	log.Info().Msg("stopping dispatcher (draining jobs)...")
	cancelDispatcher()
	dispatcherWg.Wait()
	log.Info().Msg("dispatcher stopped")

	// Phase 4: Stop HTTP server with graceful shutdown
	log.Info().Msg("stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	log.Info().Msg("http server stopped")

	// Phase 5: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Info().Msg("stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics server shutdown error")
		}
		log.Info().Msg("metrics server stopped")
	}

	log.Info().Msg("stopped")
	return exitSuccess
}

// redisOptions accepts either a bare host:port or a redis:// URL.
func redisOptions(addr string) (*redis.Options, error) {
	if strings.Contains(addr, "://") {
		return redis.ParseURL(addr)
	}
	return &redis.Options{Addr: addr}, nil
}

// logConfigWarnings reports settings that are valid but risky in production.
func logConfigWarnings(log zerolog.Logger, cfg *config.Config) {
	if !cfg.ReconcileEnabled {
		log.Warn().Msg("WARNING [P0]: RECONCILE_ENABLED=false; a job whose browser hangs stays in_progress until restart and finished jobs are never pruned from memory")
	}
	if !cfg.MetricsEnabled {
		log.Warn().Msg("WARNING [P1]: METRICS_ENABLED=false; no visibility into scrape failures or queue saturation")
	}
	if cfg.WebhookSecret == "" {
		log.Warn().Msg("WARNING [P1]: WEBHOOK_SECRET is empty; completion callbacks are signed with an empty key")
	}
	if cfg.DispatcherWorkers > 1 {
		log.Info().Msgf("INFO: DISPATCHER_WORKERS=%d; each running job launches its own Chrome", cfg.DispatcherWorkers)
	}
	if cfg.SettleMode == config.SettleModeIdle {
		log.Info().Msgf("INFO: SETTLE_MODE=idle; page loads settle after %s of network quiet, at most %s", cfg.IdleQuietStr, cfg.SettleDelayStr)
	}
	if !cfg.BrowserHeadless {
		log.Info().Msg("INFO: BROWSER_HEADLESS=false; Chrome windows will open on this host")
	}
	if cfg.CircuitBreakerThreshold == 0 {
		log.Info().Msg("INFO: CIRCUIT_BREAKER_THRESHOLD=0; callbacks to failing URLs are always attempted")
	}
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")

	if cfg.SweepCron != "" {
		sched, err := cron.NewParser().Parse(cfg.SweepCron, cfg.SweepTimezone)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return exitInvalidConfig
		}
		fmt.Println("next sweeps:")
		for _, t := range cron.Upcoming(sched, time.Now(), 3) {
			fmt.Printf("  %s\n", t.Format(time.RFC3339))
		}
	}
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("web3event version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
