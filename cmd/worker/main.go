package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/circuitbreaker"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/config"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/distribution"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/metrics"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/monitor"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/queue"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/report"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/scheduler"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/store/postgres"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/worker"
)

// Standalone worker process. Consumes tasks from the shared queue without
// running the emitter, janitor or HTTP API. Use it to scale report
// processing independently of the main backhouse instance.
func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}

	loc, err := time.LoadLocation(cfg.VenueTimezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid venue timezone: %v\n", err)
		return 2
	}

	store, err := postgres.Open(context.Background(), cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBOpTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return 1
	}
	defer store.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	q := queue.NewRedisQueue(redisClient, "backhouse")
	if err := q.Ping(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to redis: %v\n", err)
		return 1
	}

	var sink metrics.Sink = metrics.NoopSink{}
	if cfg.MetricsEnabled {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		go func() {
			log.Printf("worker: metrics server listening on :%s", cfg.MetricsPort)
			if err := http.ListenAndServe(":"+cfg.MetricsPort, metricsMux); err != nil {
				log.Printf("worker: metrics server error: %v", err)
			}
		}()
	}

	var breaker *circuitbreaker.Breaker
	if cfg.CircuitBreakerThreshold > 0 {
		breaker = circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}

	var mailer *distribution.Mailer
	if cfg.SMTPAddr != "" {
		mailer = distribution.NewMailer(cfg.SMTPAddr, cfg.SMTPFrom, breaker)
	} else {
		log.Println("worker: SMTP_ADDR not set; email distribution disabled")
	}
	dist := distribution.NewDistributor(mailer, distribution.NewWebhookSender(breaker))

	mon := monitor.New(store).WithNotifier(dist).WithMetrics(sink)

	renderer := report.NewStubRenderer("")
	dailyGen := report.NewDailyGenerator(store, store, renderer, loc).WithDistributor(dist).WithMetrics(sink)
	weeklyGen := report.NewWeeklyGenerator(store, store, renderer, loc).WithDistributor(dist).WithMetrics(sink)

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
			return 1
		}
	}

	pool := worker.NewPool(q, registry, mon, sink, cfg.WorkerConcurrency, cfg.DequeueWait)

	poolCtx, cancelPool := context.WithCancel(context.Background())
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(poolCtx)
	}()

	log.Printf("worker: started (workers=%d, redis=%s, tz=%s)",
		cfg.WorkerConcurrency, cfg.RedisAddr, cfg.VenueTimezone)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("worker: received signal %v, shutting down", received)

	cancelPool()
	select {
	case <-poolDone:
		log.Println("worker: pool stopped")
	case <-time.After(cfg.DrainTimeout):
		log.Printf("worker: pool drain timed out after %s", cfg.DrainTimeout)
	}

	log.Println("worker: stopped")
	return 0
}
