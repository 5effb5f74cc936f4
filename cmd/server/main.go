// Command server runs the gate pass service: the HTTP surface, the outbox
// worker, and the expiration sweeper, all sharing one process lifecycle.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gatepass/internal/directory"
	"gatepass/internal/escalation"
	"gatepass/internal/gate"
	"gatepass/internal/jwttoken"
	"gatepass/internal/notify"
	"gatepass/internal/platform/config"
	"gatepass/internal/platform/httpserver"
	"gatepass/internal/platform/logger"
	"gatepass/internal/platform/metrics"
	"gatepass/internal/platform/postgres"
	"gatepass/internal/platform/redis"
	"gatepass/internal/policy"
	"gatepass/internal/request"
	"gatepass/internal/scheduler"
	transport "gatepass/internal/transport/http"
	"gatepass/internal/trust"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(parseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	} else {
		log.Warn("no postgres DSN configured; using in-memory stores")
	}

	rdb, err := redis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	m := metrics.New()

	// Stores: Postgres and Redis when configured, memory otherwise.
	var (
		requestStore     request.Store
		restrictionStore request.RestrictionStore
		tokenCache       request.TokenCache
		policyStore      policy.Store
		calendarStore    policy.CalendarStore
		trustStore       trust.Store
		cooldownStore    trust.CooldownStore
		leaveStore       escalation.LeaveStore
		delegationStore  escalation.DelegationStore
		logStore         gate.LogStore
		outbox           notify.OutboxStore
	)
	if db != nil {
		requestStore = request.NewPostgresStore(db)
		restrictionStore = request.NewPostgresRestrictions(db)
		policyStore = policy.NewPostgresStore(db)
		calendarStore = policy.NewPostgresCalendar(db)
		trustStore = trust.NewPostgresStore(db)
		leaveStore = escalation.NewPostgresLeaveStore(db)
		delegationStore = escalation.NewPostgresDelegationStore(db)
		logStore = gate.NewPostgresLogStore(db)
		outbox = notify.NewPostgresOutbox(db)
	} else {
		requestStore = request.NewInMemoryStore()
		restrictionStore = request.NewInMemoryRestrictions()
		policyStore = policy.NewInMemoryStore()
		calendarStore = policy.NewInMemoryCalendar()
		trustStore = trust.NewInMemoryStore()
		leaveStore = escalation.NewInMemoryLeaveStore()
		delegationStore = escalation.NewInMemoryDelegationStore()
		logStore = gate.NewInMemoryLogStore()
		outbox = notify.NewInMemoryOutbox()
	}
	if rdb != nil {
		cooldownStore = trust.NewRedisCooldown(rdb.Client, cfg.Lifecycle.CooldownWindow)
		tokenCache = request.NewRedisTokenCache(rdb.Client)
	} else {
		cooldownStore = trust.NewInMemoryCooldown()
		tokenCache = request.NewInMemoryTokenCache()
	}

	var producer notify.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = notify.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
	} else {
		log.Warn("no kafka brokers configured; events go to the log")
		producer = notify.NewLogProducer(log)
	}
	defer producer.Close()

	publisher := notify.NewOutboxPublisher(outbox, log)
	worker := notify.NewWorker(outbox, producer, log, notify.WithWorkerMetrics(m))

	// The campus directory is an external system; until its client is wired
	// in, the in-memory directory serves fixtures loaded by ops tooling.
	dir := directory.NewInMemory()

	ledger, err := trust.NewLedger(trustStore, cooldownStore, publisher,
		trust.WithLogger(log),
		trust.WithCooldownRule(cfg.Lifecycle.CooldownWindow, cfg.Lifecycle.CooldownLimit),
	)
	if err != nil {
		return err
	}

	resolver, err := escalation.NewResolver(leaveStore, delegationStore, dir, escalation.WithLogger(log))
	if err != nil {
		return err
	}

	engine := policy.NewEngine(policyStore, calendarStore, cfg.Calendar.RestDays)

	requestSvc, err := request.NewService(requestStore, restrictionStore, tokenCache, dir,
		engine, resolver, ledger, publisher, cfg.Lifecycle,
		request.WithLogger(log),
		request.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	gateSvc, err := gate.NewService(requestStore, tokenCache, logStore, dir, engine, publisher, cfg.Gate,
		gate.WithLogger(log),
		gate.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	sweeper, err := scheduler.NewSweeper(requestStore, publisher, cfg.Sweep,
		scheduler.WithLogger(log),
		scheduler.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	checks := map[string]transport.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = rdb.Health
	}

	router := transport.NewRouter(transport.RouterConfig{
		Requests:  requestSvc,
		Gate:      gateSvc,
		Trust:     ledger,
		Validator: jwttoken.NewValidator(cfg.JWTSigningKey),
		Logger:    log,
		Checks:    checks,
	})
	server := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return worker.Run(ctx)
	})

	g.Go(func() error {
		runner := scheduler.NewRunner(sweeper.Task(), cfg.Sweep.Interval, cfg.Sweep.Jitter, log)
		return runner.Run(ctx)
	})

	return g.Wait()
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
