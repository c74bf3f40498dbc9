// The presentio server: the enrollment orchestration service for school
// biometric attendance fleets.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/presentio/presentio/internal/application/service"
	"github.com/presentio/presentio/internal/broadcast"
	"github.com/presentio/presentio/internal/config"
	"github.com/presentio/presentio/internal/device"
	domainservice "github.com/presentio/presentio/internal/domain/service"
	"github.com/presentio/presentio/internal/infrastructure/crypto"
	"github.com/presentio/presentio/internal/infrastructure/monitoring"
	"github.com/presentio/presentio/internal/infrastructure/notify"
	"github.com/presentio/presentio/internal/infrastructure/persistence/postgres"
	redisinfra "github.com/presentio/presentio/internal/infrastructure/persistence/redis"
	"github.com/presentio/presentio/internal/infrastructure/registry"
	httpiface "github.com/presentio/presentio/internal/interfaces/http"
	"github.com/presentio/presentio/internal/interfaces/http/handlers"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/logger"
)

func main() {
	// The logger comes up before the config so config errors are loggable;
	// the configured level is applied right after loading.
	log, err := monitoring.NewZapLogger(&config.LogConfig{Level: "info", Format: "json"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	cfg, err := config.LoadConfig(log)
	if err != nil {
		log.Fatal(ctx, "failed to load configuration", err)
	}
	log.SetLevel(constants.LogLevel(cfg.Log.Level))

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal(ctx, "server exited with error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, log *monitoring.ZapLogger) error {
	shutdownTracing, err := monitoring.InitTracing(&cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	metrics := monitoring.NewMetrics()

	db, err := postgres.Connect(&cfg.Database, log)
	if err != nil {
		return err
	}

	sessionRepo := postgres.NewSessionRepository(db, log)
	templateRepo := postgres.NewTemplateRepository(db, log)
	deviceRepo := postgres.NewDeviceRepository(db, log)
	studentRepo := postgres.NewStudentRepository(db, log)

	var (
		livenessCache registry.LivenessCache
		deviceLease   domainservice.DeviceLease
	)
	if cfg.Redis.Enabled {
		conn, err := redisinfra.Connect(&cfg.Redis, log)
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()
		livenessCache = redisinfra.NewLivenessCache(conn, constants.LivenessCacheTTL, log)
		deviceLease = redisinfra.NewDeviceLease(conn, log)
	}

	deviceRegistry := registry.NewDeviceRegistry(
		deviceRepo, studentRepo, livenessCache, constants.DeviceLivenessWindow, log,
	)

	var keys crypto.KeyProvider
	if cfg.Vault.Enabled {
		keys, err = crypto.NewVaultKeyProvider(&cfg.Vault, log)
	} else {
		keys, err = crypto.NewStaticKeyProvider(&cfg.Vault)
	}
	if err != nil {
		return err
	}
	cipher := crypto.NewTemplateCipher(keys, log)

	var notifier domainservice.EnrollmentNotifier
	if cfg.Kafka.Enabled {
		kafkaNotifier := notify.NewKafkaNotifier(&cfg.Kafka, log)
		defer func() { _ = kafkaNotifier.Close() }()
		notifier = kafkaNotifier
	} else {
		notifier = notify.NewNoopNotifier()
	}

	var factory device.LinkFactory
	if cfg.Device.Mode == "sim" {
		factory = &device.SimLinkFactory{
			Config: device.SimConfig{
				Latency:     cfg.Device.SimLatency,
				SuccessRate: cfg.Device.SimSuccessRate,
			},
			Log: log,
		}
	} else {
		factory = &device.NetLinkFactory{
			Config: device.NetLinkConfig{
				CommSecret:     cfg.Device.CommSecret,
				ConnectTimeout: cfg.Device.ConnectTimeout,
				CommandTimeout: cfg.Device.CommandTimeout,
			},
			Log: log,
		}
	}

	pool := device.NewPool(deviceRegistry, factory, deviceLease, device.PoolConfig{
		AcquireTimeout: cfg.Enrollment.AcquireTimeout,
		IdleTimeout:    cfg.Device.IdleTimeout,
		LeaseTTL:       cfg.Enrollment.LeaseTTL,
	}, log)
	defer pool.Close()

	broadcaster := broadcast.NewBroadcaster(metrics, log)

	enrollmentService := service.NewEnrollmentAppService(
		sessionRepo, templateRepo, studentRepo,
		deviceRegistry, pool, cipher, broadcaster, notifier, metrics,
		service.OrchestratorConfig{
			StageTimeout:      cfg.Enrollment.StageTimeout,
			CancelGracePeriod: cfg.Enrollment.CancelGracePeriod,
		},
		log,
	)
	bulkService := service.NewBulkService(enrollmentService, log)
	templateService := service.NewTemplateAppService(
		templateRepo, studentRepo, deviceRegistry, pool, cipher, log,
	)
	managementService := service.NewManagementService(studentRepo, deviceRepo, log)

	router := httpiface.NewRouter(cfg, httpiface.Handlers{
		Enrollment: handlers.NewEnrollmentHandler(enrollmentService, bulkService, broadcaster, log),
		Template:   handlers.NewTemplateHandler(templateService, log),
		Management: handlers.NewManagementHandler(managementService, log),
		Health:     handlers.NewHealthHandler(db),
	}, metrics, log)

	// No server-wide write timeout: the progress stream holds its response
	// open for the life of the subscription.
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.Info(gCtx, "server listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
