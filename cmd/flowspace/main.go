package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	cfhttp "github.com/templehubsakshi/FlowSpace/internal/adapter/http"
	"github.com/templehubsakshi/FlowSpace/internal/adapter/memstore"
	cfnats "github.com/templehubsakshi/FlowSpace/internal/adapter/nats"
	cfotel "github.com/templehubsakshi/FlowSpace/internal/adapter/otel"
	"github.com/templehubsakshi/FlowSpace/internal/adapter/postgres"
	cfredis "github.com/templehubsakshi/FlowSpace/internal/adapter/redis"
	"github.com/templehubsakshi/FlowSpace/internal/adapter/ristretto"
	"github.com/templehubsakshi/FlowSpace/internal/adapter/tiered"
	"github.com/templehubsakshi/FlowSpace/internal/adapter/ws"
	"github.com/templehubsakshi/FlowSpace/internal/config"
	"github.com/templehubsakshi/FlowSpace/internal/logger"
	"github.com/templehubsakshi/FlowSpace/internal/middleware"
	"github.com/templehubsakshi/FlowSpace/internal/port/broadcast"
	"github.com/templehubsakshi/FlowSpace/internal/port/cache"
	"github.com/templehubsakshi/FlowSpace/internal/port/database"
	"github.com/templehubsakshi/FlowSpace/internal/resilience"
	"github.com/templehubsakshi/FlowSpace/internal/service"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const cachePrefix = "flowspace:"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"redis", cfg.Redis.Enabled,
		"nats", cfg.NATS.Enabled,
		"presence_mode", cfg.Realtime.PresenceMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOTEL, err := cfotel.Init(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Storage ---

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()

	// shared backs the membership oracle and board snapshots. With Redis it
	// is tiered, and the short L1 lifetime bounds cross-instance staleness.
	var (
		shared    cache.Cache         = l1
		seq       broadcast.Sequencer = ws.NewMemorySequencer()
		redisPing cfhttp.HealthCheck
	)
	if cfg.Redis.Enabled {
		rc, err := cfredis.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = rc.Close() }()
		shared = tiered.New(l1, cfredis.NewCache(rc, cachePrefix), cfg.Cache.L1TTL)
		seq = cfredis.NewSequencer(rc, cachePrefix)
		redisPing = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
		slog.Info("redis connected")
	}

	// --- Services ---

	auth, err := service.NewAuthService(store, &cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	defer auth.Close()

	members := service.NewMembershipService(store, shared, cfg.Cache.MembershipTTL)
	notify := service.NewNotificationService(store, cfg.Notifications.Retention)

	hub := ws.NewHub(ws.Options{
		SendBuffer:     cfg.Realtime.SendBuffer,
		WriteTimeout:   cfg.Realtime.WriteTimeout,
		PingInterval:   cfg.Realtime.PingInterval,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		PresenceMode:   cfg.Realtime.PresenceMode,
		OriginPatterns: originPatterns(cfg.Server.CORSOrigin),
	}, members, seq)
	hub.SetMetrics(metrics)
	notify.SetBroadcaster(hub)

	tasks := service.NewTaskService(store, members, notify, shared, cfg.Cache.BoardTTL)
	tasks.SetMetrics(metrics)
	spaces := service.NewWorkspaceService(store, members, notify)
	spaces.SetEvictor(hub)

	health := cfhttp.NewHealth(version, hub.ConnectionCount)
	health.Add("store", store.Ping)
	if redisPing != nil {
		health.Add("redis", redisPing)
	}

	if cfg.NATS.Enabled {
		queue, err := cfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Drain() }()

		breaker := resilience.NewBreaker("nats-relay", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
		relay := hub.AttachRelay(queue, cfg.NATS.SubjectPrefix, breaker)
		if err := relay.Start(ctx); err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		defer relay.Stop()

		health.Add("nats", func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("disconnected")
			}
			if breaker.State() == resilience.StateOpen {
				return errors.New("relay circuit open")
			}
			return nil
		})
		slog.Info("nats relay started", "prefix", cfg.NATS.SubjectPrefix)
	}

	stopSweep, err := notify.StartSweeper(ctx, cfg.Notifications.SweepSchedule)
	if err != nil {
		return fmt.Errorf("notification sweeper: %w", err)
	}
	defer stopSweep()

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		Auth:          auth,
		Members:       members,
		Workspaces:    spaces,
		Tasks:         tasks,
		Notifications: notify,
		Health:        health,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(middleware.Auth(auth))
	r.Use(limiter.Handler)

	cfhttp.MountRoutes(r, handlers)
	r.Get(middleware.WSPath, hub.HandleWS)

	addr := ":" + cfg.Server.Port
	// No read or write timeout: websocket connections outlive any single
	// deadline, and the hub sets its own per-frame write deadline.
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// openStore connects the configured storage driver. The returned func
// releases it.
func openStore(ctx context.Context, cfg *config.Config) (database.Store, func(), error) {
	switch cfg.Storage.Driver {
	case "memory":
		slog.Warn("using in-memory storage, data is lost on restart")
		return memstore.New(), func() {}, nil
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		slog.Info("postgres connected")
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")
		return postgres.NewStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// originPatterns turns the CORS origin list into websocket origin
// patterns, which match on host only.
func originPatterns(origins string) []string {
	var patterns []string
	for _, o := range strings.Split(origins, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		patterns = append(patterns, o)
	}
	return patterns
}
