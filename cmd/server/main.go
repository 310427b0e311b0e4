package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"authority/internal/auth/handler"
	"authority/internal/auth/lockout"
	"authority/internal/auth/otp"
	"authority/internal/auth/password"
	"authority/internal/auth/permission"
	"authority/internal/auth/service"
	"authority/internal/auth/store/credential"
	permissionstore "authority/internal/auth/store/permission"
	"authority/internal/auth/store/revocation"
	userstore "authority/internal/auth/store/user"
	jwttoken "authority/internal/jwt_token"
	"authority/internal/platform/config"
	"authority/internal/platform/httpserver"
	"authority/internal/platform/kafka"
	"authority/internal/platform/logger"
	"authority/internal/platform/metrics"
	"authority/internal/platform/postgres"
	"authority/internal/platform/redis"
	"authority/migrations"
	"authority/pkg/platform/audit"
	"authority/pkg/platform/audit/publisher"
	"authority/pkg/platform/circuit"
	"authority/pkg/platform/httputil"
	"authority/pkg/platform/middleware/metadata"
	"authority/pkg/platform/middleware/requesttime"
)

const (
	memoryStoreCapacity     = 100_000
	revocationStoreCapacity = 1_000_000
	auditBufferSize         = 1024
	shutdownTimeout         = 10 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	// credentials holds OTP codes, lockout records and the permission cache.
	// revocations holds blacklist records only and never evicts them.
	credentials credential.Store
	revocations credential.Store
	redis       *redis.Client
	db          *sql.DB
	kafka       *kgo.Client
}

func (i *infra) close() {
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
	if i.kafka != nil {
		i.kafka.Close()
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	deps, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	auditPublisher := publisher.NewPublisher(auditSink(cfg, deps, log),
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	defer auditPublisher.Close()

	users, groups := repositories(deps.db)

	tokens, err := jwttoken.NewJWTService(jwttoken.Config{
		Secret:     cfg.JWT.Secret,
		Algorithm:  cfg.JWT.Algorithm,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessTokenTTL,
		SessionTTL: cfg.JWT.SessionTokenTTL,
		RefreshTTL: cfg.JWT.RefreshTokenTTL,
	})
	if err != nil {
		return err
	}

	revocations := revocation.NewRegistry(deps.revocations, revocation.TTLs{
		Access:  cfg.JWT.AccessTokenTTL,
		Session: cfg.JWT.SessionTokenTTL,
		Refresh: cfg.JWT.RefreshTokenTTL,
	}, revocation.WithLogger(log), revocation.WithMetrics(m))

	resolver := permission.NewResolver(groups, deps.credentials,
		permission.WithTTL(cfg.Auth.PermissionCacheTTL),
		permission.WithLogger(log),
		permission.WithMetrics(m),
	)

	otpService := otp.New(deps.credentials, otp.Config{
		TTL:           cfg.OTP.TTL,
		MasterCode:    cfg.OTP.MasterCode,
		FastCode:      cfg.OTP.FastCode,
		BypassEnabled: cfg.OTP.BypassEnabled,
		Production:    cfg.IsProduction(),
	}, otp.WithLogger(log), otp.WithMetrics(m), otp.WithAuditPublisher(auditPublisher),
		otp.WithLockout(lockout.New(deps.credentials, lockout.Config{
			AttemptsPerWindow: cfg.OTP.MaxAttempts,
			WindowDuration:    cfg.OTP.LockoutDuration,
			LockDuration:      cfg.OTP.LockoutDuration,
		}, lockout.WithLogger(log), lockout.WithAuditPublisher(auditPublisher))),
	)

	authService := service.New(users, password.NewHasher(cfg.Auth.BcryptCost), tokens, revocations, resolver,
		service.Config{
			MaxSessions:        cfg.Auth.MaxSessions,
			LoginHistoryLimit:  cfg.Auth.LoginHistoryLimit,
			EnforceTokenOrigin: cfg.Auth.EnforceTokenOrigin,
		},
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithAuditPublisher(auditPublisher),
		service.WithOTP(otpService),
	)

	r := chi.NewRouter()
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Get("/health", health(deps))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	handler.New(authService, authService, log,
		handler.WithOTPEcho(!cfg.IsProduction()),
		handler.WithOTPTTL(cfg.OTP.TTL),
	).Register(r)

	srv := httpserver.New(cfg.Addr, r, httpserver.WithErrorLog(log))
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting authority", "addr", cfg.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// connect opens the optional backends. Each one that is not configured falls
// back to an in-process replacement suited to a single instance.
func connect(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	deps := &infra{}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		deps.redis = redisClient
		deps.credentials = credential.WithBreaker(
			credential.WithTimeout(credential.NewRedisStore(redisClient.Client), cfg.Auth.CacheOpTimeout),
			circuit.New("redis", circuit.WithCooldown(time.Second)),
			log,
		)
		deps.revocations = deps.credentials
		log.Info("credential store: redis")
	} else {
		deps.credentials = credential.NewMemoryStore(memoryStoreCapacity, cfg.JWT.RefreshTokenTTL)
		deps.revocations = credential.NewMemoryStore(revocationStoreCapacity, 0, credential.WithoutEviction())
		log.Warn("credential store: in-process; revocations are not shared between instances")
	}

	deps.db, err = postgres.Open(ctx, cfg.Database)
	if err != nil {
		deps.close()
		return nil, err
	}
	if deps.db == nil {
		log.Warn("repositories: in-memory; users and groups are lost on restart")
	} else if err := migrations.Run(ctx, deps.db, log); err != nil {
		deps.close()
		return nil, err
	}

	deps.kafka, err = kafka.NewClient(cfg.Kafka)
	if err != nil {
		deps.close()
		return nil, err
	}
	if deps.kafka != nil {
		if err := kafka.EnsureTopics(ctx, deps.kafka, cfg.Kafka.AuditTopic); err != nil {
			deps.close()
			return nil, err
		}
	}
	return deps, nil
}

func repositories(db *sql.DB) (service.UserStore, permission.Store) {
	if db == nil {
		return userstore.New(), permissionstore.NewInMemoryStore()
	}
	return userstore.NewPostgres(db), permissionstore.NewPostgresStore(db)
}

func auditSink(cfg config.Server, deps *infra, log *slog.Logger) audit.Sink {
	if deps.kafka == nil {
		return audit.NewLogSink(log)
	}
	return kafka.NewAuditSink(deps.kafka, cfg.Kafka.AuditTopic, log)
}

func health(deps *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if deps.redis != nil {
			if err := deps.redis.Health(ctx); err != nil {
				status["redis"] = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}
		if deps.db != nil {
			if err := deps.db.PingContext(ctx); err != nil {
				status["database"] = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}
		if code != http.StatusOK {
			status["status"] = "degraded"
		}
		httputil.WriteJSON(w, code, status)
	}
}
