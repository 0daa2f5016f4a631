package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/router"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchbox/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/resilience"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var host string
	var port int
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve <folder>",
		Short: "Index a folder and serve the search UI and HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("watch") {
				cfg.Index.Watch = watch
			}
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "address to listen on")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "port to listen on")
	cmd.Flags().BoolVar(&watch, "watch", false, "detect changes with filesystem events instead of a scan per query")
	return cmd
}

// server holds everything serve starts, so shutdown can stop it in order.
type server struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	checker *health.Checker
	breaker resilience.CircuitBreakerConfig

	engine     *indexer.Engine
	cache      *cache.QueryCache
	aggregator *analytics.Aggregator
	collector  *analytics.Collector
	history    analytics.History

	// sinkCtx outlives request handling so sinks see the collector's final
	// events before they stop.
	sinkCtx    context.Context
	stopSinks  context.CancelFunc
	sinkDone   []func()
	closers    []func() error
	httpServer *http.Server
}

func serve(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	s := &server{cfg: cfg, checker: health.NewChecker()}
	s.sinkCtx, s.stopSinks = context.WithCancel(context.WithoutCancel(ctx))
	defer s.shutdown()

	if cfg.Metrics.Enabled {
		s.metrics = metrics.New(nil)
	}
	s.breaker = resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, to resilience.State) {
			if s.metrics != nil {
				s.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	}

	s.startAnalytics()
	engine, err := indexer.NewEngine(ctx, cfg.Index, indexer.WithRebuildHook(s.observeRebuild))
	if err != nil {
		return err
	}
	s.engine = engine
	s.checker.Register("index", health.DirCheck(engine.Root()))
	s.startHistory(ctx)
	s.startCache(ctx)

	out := cmd.OutOrStdout()
	st := engine.Status()
	fmt.Fprintf(out, "Indexed %q: %d docs\n", st.Root, st.Documents)

	var opts []handler.Option
	if s.cache != nil {
		opts = append(opts, handler.WithCache(s.cache))
	}
	if s.collector != nil {
		opts = append(opts, handler.WithCollector(s.collector))
	}
	if s.metrics != nil {
		opts = append(opts, handler.WithMetrics(s.metrics))
	}
	deps := router.Deps{
		Search:  handler.New(engine, executor.New(engine, cfg.Search), cfg.Search, opts...),
		Health:  s.checker,
		Metrics: s.metrics,
		Timeout: cfg.Server.WriteTimeout,
	}
	if s.aggregator != nil {
		deps.Analytics = analytics.NewHandler(s.aggregator, s.history)
	}
	if s.metrics != nil {
		if cfg.Metrics.Port > 0 {
			ms, err := metrics.Listen(net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Metrics.Port)), s.metrics)
			if err != nil {
				return err
			}
			s.closers = append(s.closers, func() error {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return ms.Shutdown(shutdownCtx)
			})
		} else {
			deps.ServeMetrics = true
		}
	}
	if n := cfg.Server.ReindexPerMinute; n > 0 {
		deps.ReindexLimiter = ratelimit.New(ctx, n, time.Minute)
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.httpServer = &http.Server{
		Handler:      router.New(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	fmt.Fprintf(out, "Serving http://%s\n", ln.Addr())
	fmt.Fprintln(out, "API: /api/v1/search?q=hello  /api/v1/reindex  /api/v1/raw?path=...")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}
	return nil
}

func (s *server) observeRebuild(stats index.BuildStats, err error) {
	if s.metrics != nil {
		s.metrics.ObserveRebuild(stats.Indexed, stats.Terms, stats.Skipped, stats.Duration, err)
	}
	if s.collector == nil {
		return
	}
	event := analytics.RebuildEvent{
		Type:       analytics.EventRebuild,
		Documents:  stats.Indexed,
		Skipped:    stats.Skipped,
		Terms:      stats.Terms,
		DurationMs: stats.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.collector.Track(event)
}

func (s *server) startAnalytics() {
	cfg := s.cfg
	if !cfg.Analytics.Enabled {
		return
	}
	s.aggregator = analytics.NewAggregator()
	sinks := []analytics.Sink{s.aggregator}

	if cfg.Analytics.PublishToKafka {
		producer := kafka.NewProducer(cfg.Kafka, "")
		breaker := resilience.NewCircuitBreaker("kafka-events", s.breaker)
		batch := collector.NewBatchCollector(guardedPublisher{producer, breaker}, 100, 5*time.Second)
		batch.Start(s.sinkCtx)
		s.sinkDone = append(s.sinkDone, batch.Close)
		s.closers = append(s.closers, producer.Close)
		sinks = append(sinks, batch)
		slog.Info("publishing analytics events", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	s.collector = analytics.NewCollector(cfg.Analytics.BufferSize, sinks...)
	if s.metrics != nil {
		s.collector.OnDrop(s.metrics.AnalyticsDropped.Inc)
	}
	s.collector.Start(s.sinkCtx)
}

// startHistory restores and periodically persists analytics to PostgreSQL.
// An unreachable database only disables history.
func (s *server) startHistory(ctx context.Context) {
	cfg := s.cfg
	if s.aggregator == nil || !cfg.Analytics.PersistSnapshots {
		return
	}
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, analytics history disabled", "error", err)
		return
	}
	s.closers = append(s.closers, db.Close)
	s.checker.Register("postgres", health.PingCheck("postgres", 2*time.Second, health.StatusDegraded, db.Ping))

	store := aggregator.NewStore(db, s.engine.Root(), cfg.Analytics.SnapshotRetention)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Warn("analytics history disabled", "error", err)
		return
	}
	prev, err := store.LatestSnapshot(ctx)
	switch {
	case err != nil:
		slog.Warn("could not restore analytics", "error", err)
	case prev != nil:
		s.aggregator.Seed(*prev)
		slog.Info("analytics restored", "total_searches", prev.TotalSearches)
	}
	done := store.StartPeriodicSave(s.sinkCtx, s.aggregator, cfg.Analytics.SnapshotInterval)
	s.sinkDone = append(s.sinkDone, func() { <-done })
	s.history = store
}

// startCache picks the result cache backend. Redis falls back to the
// in-process LRU when it cannot be reached at startup.
func (s *server) startCache(ctx context.Context) {
	cfg := s.cfg
	var store cache.Store
	switch cfg.Cache.Backend {
	case "", "none":
		return
	case "redis":
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using in-process cache", "addr", cfg.Redis.Addr, "error", err)
			break
		}
		s.closers = append(s.closers, client.Close)
		s.checker.Register("redis", health.PingCheck("redis", time.Second, health.StatusDegraded, client.Ping))
		store = cache.NewRedisStore(client, cfg.Cache.TTL, resilience.NewCircuitBreaker("redis-cache", s.breaker))
	}
	if store == nil {
		lru, err := cache.NewLRUStore(cfg.Cache.Size)
		if err != nil {
			slog.Warn("result cache disabled", "error", err)
			return
		}
		store = lru
	}
	s.cache = cache.New(store, cache.Namespace(s.engine.Root(), cfg.Search))
	slog.Info("result cache enabled", "backend", store.Name())
}

// shutdown stops intake first, then drains analytics, then closes clients.
func (s *server) shutdown() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		cancel()
	}
	if s.engine != nil {
		_ = s.engine.Close()
	}
	if s.collector != nil {
		s.collector.Close()
	}
	s.stopSinks()
	for _, wait := range s.sinkDone {
		wait()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	slog.Info("searchbox stopped")
}

// guardedPublisher stops hammering an unreachable broker.
type guardedPublisher struct {
	producer *kafka.Producer
	breaker  *resilience.CircuitBreaker
}

func (g guardedPublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	return g.breaker.Execute(func() error {
		return g.producer.PublishBatch(ctx, events)
	})
}
