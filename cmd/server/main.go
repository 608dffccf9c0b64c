// Command server runs the compliance ledger API with its background loops:
// the delivery sweep, the deadline breach escalation, and the key rotation
// pass.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/internal/compliance"
	compliancehandler "github.com/Mawilis/legal-doc-system-sub010/internal/compliance/handler"
	"github.com/Mawilis/legal-doc-system-sub010/internal/dispatch"
	"github.com/Mawilis/legal-doc-system-sub010/internal/dispatch/providers"
	"github.com/Mawilis/legal-doc-system-sub010/internal/fieldcrypt"
	jwttoken "github.com/Mawilis/legal-doc-system-sub010/internal/jwt_token"
	"github.com/Mawilis/legal-doc-system-sub010/internal/ledger"
	ledgerpublisher "github.com/Mawilis/legal-doc-system-sub010/internal/ledger/publisher"
	"github.com/Mawilis/legal-doc-system-sub010/internal/platform/config"
	"github.com/Mawilis/legal-doc-system-sub010/internal/platform/httpserver"
	"github.com/Mawilis/legal-doc-system-sub010/internal/platform/logger"
	"github.com/Mawilis/legal-doc-system-sub010/internal/platform/postgres"
	platformredis "github.com/Mawilis/legal-doc-system-sub010/internal/platform/redis"
	httptransport "github.com/Mawilis/legal-doc-system-sub010/internal/transport/http"
	"github.com/Mawilis/legal-doc-system-sub010/internal/workflow"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
)

const (
	breachSweepInterval = time.Minute
	rotationInterval    = time.Hour
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		// Config failures happen before the structured logger exists.
		os.Stderr.WriteString("startup: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.Env)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: PostgreSQL and Redis when configured, in-memory otherwise.
	var (
		ledgerStore   ledger.Store
		artifactStore compliance.ArtifactStore
		attemptStore  dispatch.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Error("schema setup failed", "error", err)
			os.Exit(1)
		}
		ledgerStore = ledger.NewPostgresStore(db)
		artifactStore = compliance.NewPostgresStore(db)
	} else {
		log.Warn("LEDGER_DATABASE_URL not set, using in-memory stores")
		ledgerStore = ledger.NewInMemoryStore()
		artifactStore = compliance.NewInMemoryStore()
	}

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		attemptStore = dispatch.NewRedisStore(redisClient.Client)
	} else {
		attemptStore = dispatch.NewInMemoryStore()
	}

	// Ledger with optional Kafka fan-out.
	ledgerOpts := []ledger.ServiceOption{ledger.WithMetrics(ledger.NewMetrics())}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := ledgerpublisher.NewKafka(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := kafka.Close(flushCtx); err != nil {
				log.Error("kafka flush on shutdown failed", "error", err)
			}
		}()
		ledgerOpts = append(ledgerOpts, ledger.WithPublisher(kafka))
	}
	ledgerSvc := ledger.NewService(ledgerStore, log, ledgerOpts...)

	// Field encryption.
	keyring, err := fieldcrypt.NewKeyring(cfg.MasterKey, cfg.KeyRotationInterval, time.Now())
	if err != nil {
		log.Error("keyring setup failed", "error", err)
		os.Exit(1)
	}
	fieldSvc := fieldcrypt.NewService(keyring, log, fieldcrypt.WithMetrics(fieldcrypt.NewMetrics()))

	// Compliance service and dispatcher reference each other: the service
	// schedules escalations, the dispatcher reports parent state through it.
	engine := workflow.NewEngine(cfg.DeadlineOverrides)
	complianceOpts := []compliance.Option{compliance.WithMetrics(compliance.NewMetrics())}
	if cfg.EscalationWebhookURL != "" {
		complianceOpts = append(complianceOpts, compliance.WithDefaultEscalationTargets([]compliance.EscalationTarget{
			{Channel: dispatch.ChannelWebhook, Recipient: cfg.EscalationWebhookURL},
		}))
	}
	complianceSvc := compliance.NewService(artifactStore, engine, fieldSvc, ledgerSvc, log, complianceOpts...)
	dispatcher := dispatch.New(attemptStore, ledgerSvc, complianceSvc, dispatch.Config{
		MaxRetries:  cfg.DispatchMaxRetries,
		BackoffBase: cfg.DispatchBackoff,
		SystemActor: domain.SystemActorID,
	}, log, dispatch.WithMetrics(dispatch.NewMetrics()))
	complianceSvc.SetDispatcher(dispatcher)

	sweeper := dispatch.NewSweeper(dispatcher, map[dispatch.Channel]dispatch.Provider{
		dispatch.ChannelEmail:   providers.NewLog(log),
		dispatch.ChannelSMS:     providers.NewLog(log),
		dispatch.ChannelPush:    providers.NewLog(log),
		dispatch.ChannelWebhook: providers.NewWebhook(),
	}, log)

	validator := jwttoken.NewJWTService(cfg.JWTSigningKey, "compliance-ledger", "ledger-api")
	router := httptransport.NewRouter(compliancehandler.New(complianceSvc, validator, log))
	srv := httpserver.New(cfg.Addr, router)

	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("dispatch sweeper stopped", "error", err)
		}
	}()
	go runPeriodic(ctx, breachSweepInterval, func() {
		if escalated, err := complianceSvc.EscalateBreaches(ctx); err != nil {
			log.Error("breach sweep failed", "error", err)
		} else if escalated > 0 {
			log.Info("deadline breaches escalated", "count", escalated)
		}
	})
	go runPeriodic(ctx, rotationInterval, func() {
		if migrated, failed, err := complianceSvc.RotateKeys(ctx); err != nil {
			log.Error("key rotation pass failed", "error", err)
		} else if migrated > 0 || failed > 0 {
			log.Info("key rotation pass finished", "migrated", migrated, "failed", failed)
		}
	})

	go func() {
		log.Info("compliance ledger listening", "addr", cfg.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

func runPeriodic(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
