package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/api"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/circuitbreaker"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/config"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/cron"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/distribution"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/leaderelection"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/metrics"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/monitor"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/queue"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/report"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/scheduler"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/store/postgres"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/worker"
)

// Version information (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes
const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitInvalidConfig)
	}

	switch os.Args[1] {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "help", "-h", "--help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(exitInvalidConfig)
	}
}

func printUsage() {
	fmt.Println(`backhouse - job scheduling and reporting pipeline for The Backroom Leeds

Usage:
  backhouse <command>

Commands:
  serve     Start the scheduler, worker pool and HTTP API
  validate  Validate configuration and exit
  config    Print effective configuration (secrets masked)
  version   Print version information
  help      Show this help message

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  REDIS_ADDR                Redis address for the task queue (required)
  HTTP_ADDR                 HTTP listen address (default: ":8080", falls back to PORT)
  VENUE_TIMEZONE            IANA timezone for schedules and report periods (default: "Europe/London")

  WORKER_CONCURRENCY        Worker pool goroutine count (default: "3")
  TICK_INTERVAL             Recurring job emitter tick (default: "30s")
  DEQUEUE_WAIT              Worker blocking dequeue wait (default: "5s")
  DRAIN_TIMEOUT             Worker pool drain timeout on shutdown (default: "30s")

  DB_OP_TIMEOUT             Database connect/ping timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")

  HTTP_SHUTDOWN_TIMEOUT     HTTP server graceful shutdown timeout (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  EXECUTION_RETENTION_DAYS  Default retention for the weekly cleanup job (default: "30")
  JANITOR_INTERVAL          Queue maintenance cycle interval (default: "5s")
  STALE_CLAIM_THRESHOLD     Age before a claimed task is requeued (default: "15m")
  JANITOR_BATCH_SIZE        Max delayed tasks promoted per cycle (default: "100")

  SMTP_ADDR                 SMTP server address for report and alert email (optional)
  SMTP_FROM                 From address for outbound email

  CIRCUIT_BREAKER_THRESHOLD Failures before a destination opens; 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN  Open state cooldown before a probe (default: "2m")

  LEADER_LOCK_KEY           Advisory lock key shared by all instances (default: "918273")
  LEADER_RETRY_INTERVAL     Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL Leader connection ping interval (default: "2s")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Validate() already checked the timezone.
	loc, err := time.LoadLocation(cfg.VenueTimezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid venue timezone: %v\n", err)
		return exitInvalidConfig
	}

	// Connect to PostgreSQL
	store, err := postgres.Open(context.Background(), cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBOpTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}
	defer store.Close()
	store.DB().SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	log.Printf("backhouse: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	q := queue.NewRedisQueue(redisClient, "backhouse")
	if err := q.Ping(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to redis: %v\n", err)
		return exitRuntimeError
	}
	log.Printf("backhouse: queue connected (redis=%s)", cfg.RedisAddr)

	// Initialize metrics sink (optional)
	var sink metrics.Sink = metrics.NoopSink{}
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("backhouse: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("backhouse: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("backhouse: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("backhouse: METRICS_ENABLED not set; metrics disabled")
	}

	// Report distribution with per-destination circuit breaking
	var breaker *circuitbreaker.Breaker
	if cfg.CircuitBreakerThreshold > 0 {
		breaker = circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}

	var mailer *distribution.Mailer
	if cfg.SMTPAddr != "" {
		mailer = distribution.NewMailer(cfg.SMTPAddr, cfg.SMTPFrom, breaker)
		log.Printf("backhouse: email distribution enabled (smtp=%s)", cfg.SMTPAddr)
	} else {
		log.Println("backhouse: SMTP_ADDR not set; email distribution disabled")
	}
	dist := distribution.NewDistributor(mailer, distribution.NewWebhookSender(breaker))

	mon := monitor.New(store).WithNotifier(dist).WithMetrics(sink)

	renderer := report.NewStubRenderer("")
	dailyGen := report.NewDailyGenerator(store, store, renderer, loc).WithDistributor(dist).WithMetrics(sink)
	weeklyGen := report.NewWeeklyGenerator(store, store, renderer, loc).WithDistributor(dist).WithMetrics(sink)

	// Register job handlers
	registry := scheduler.NewRegistry()
	handlers := []struct {
		jobType domain.JobType
		handler scheduler.Handler
	}{
		{domain.JobTypeDailySummary, worker.DailySummaryHandler(dailyGen, loc)},
		{domain.JobTypeWeeklySummary, worker.WeeklySummaryHandler(weeklyGen, loc)},
		{domain.JobTypeAggregation, worker.AggregationHandler(store, loc)},
		{domain.JobTypeCleanup, worker.CleanupHandler(mon, cfg.ExecutionRetentionDays)},
	}
	for _, h := range handlers {
		if err := registry.Register(h.jobType, h.handler); err != nil {
			fmt.Fprintf(os.Stderr, "failed to register handler: %v\n", err)
			return exitRuntimeError
		}
	}

	pool := worker.NewPool(q, registry, mon, sink, cfg.WorkerConcurrency, cfg.DequeueWait)

	sched := scheduler.New(q, cron.NewParser(), cfg.VenueTimezone, cfg.TickInterval).
		WithWorkerProber(pool)
	if err := sched.RegisterDefaultJobs(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register default jobs: %v\n", err)
		return exitRuntimeError
	}

	janitor := queue.NewJanitor(queue.JanitorConfig{
		Interval:            cfg.JanitorInterval,
		StaleClaimThreshold: cfg.StaleClaimThreshold,
		BatchSize:           cfg.JanitorBatchSize,
	}, q)

	// Only the elected instance emits recurring jobs and runs the janitor.
	// The worker pool and HTTP API run on every instance.
	var leaderWg sync.WaitGroup
	elector := leaderelection.New(
		store.DB(),
		cfg.LeaderLockKey,
		cfg.LeaderRetryInterval,
		cfg.LeaderHeartbeatInterval,
		func(leaderCtx context.Context) {
			leaderWg.Add(2)
			go func() {
				defer leaderWg.Done()
				sched.Run(leaderCtx)
			}()
			go func() {
				defer leaderWg.Done()
				janitor.Run(leaderCtx)
			}()
		},
		leaderWg.Wait,
	)

	// Start HTTP server with API handler
	apiHandler := api.NewHandler(sched, mon)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}
	go func() {
		log.Printf("backhouse: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("backhouse: http server error: %v", err)
		}
	}()

	// Use separate contexts for the elector and worker pool to enable ordered shutdown.
	electorCtx, cancelElector := context.WithCancel(context.Background())
	poolCtx, cancelPool := context.WithCancel(context.Background())

	var electorWg sync.WaitGroup
	electorWg.Add(1)
	go func() {
		defer electorWg.Done()
		elector.Run(electorCtx)
	}()

	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(poolCtx)
	}()

	log.Printf("backhouse: started (tick=%s, workers=%d, http=%s, tz=%s)",
		cfg.TickInterval, cfg.WorkerConcurrency, cfg.HTTPAddr, cfg.VenueTimezone)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("backhouse: received signal %v, shutting down", received)

	// Phase 1: Stop the elector (no new recurring emissions, janitor stops)
	log.Println("backhouse: stopping elector...")
	cancelElector()
	electorWg.Wait()
	log.Println("backhouse: elector stopped")

	// Phase 2: Stop the worker pool (drains in-flight tasks before returning)
	log.Println("backhouse: stopping worker pool (draining tasks)...")
	cancelPool()
	select {
	case <-poolDone:
		log.Println("backhouse: worker pool stopped")
	case <-time.After(cfg.DrainTimeout):
		log.Printf("backhouse: worker pool drain timed out after %s", cfg.DrainTimeout)
	}

	// Phase 3: Stop HTTP server with graceful shutdown
	log.Println("backhouse: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("backhouse: http server shutdown error: %v", err)
	}
	log.Println("backhouse: http server stopped")

	// Phase 4: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("backhouse: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("backhouse: metrics server shutdown error: %v", err)
		}
		log.Println("backhouse: metrics server stopped")
	}

	log.Println("backhouse: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
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
	fmt.Printf("backhouse version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
