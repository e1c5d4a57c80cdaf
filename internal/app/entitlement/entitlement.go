// Package entitlement собирает HTTP-приложение подсистемы тарифных планов:
// подключения к хранилищу, кешу и брокеру, бизнес-сервисы и маршруты.
package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-engine/internal/cache"
	"github.com/magabrotheeeer/entitlement-engine/internal/config"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/entitlement-engine/internal/migrations"
	"github.com/magabrotheeeer/entitlement-engine/internal/paymentgateway"
	checkoutservice "github.com/magabrotheeeer/entitlement-engine/internal/services/checkout"
	entitlementservice "github.com/magabrotheeeer/entitlement-engine/internal/services/entitlement"
	planchangeservice "github.com/magabrotheeeer/entitlement-engine/internal/services/planchange"
	quotaservice "github.com/magabrotheeeer/entitlement-engine/internal/services/quota"
	reconcilerservice "github.com/magabrotheeeer/entitlement-engine/internal/services/reconciler"
	webhookservice "github.com/magabrotheeeer/entitlement-engine/internal/services/webhook"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/repository"
)

// App инкапсулирует HTTP-сервер и его зависимости.
type App struct {
	server     *http.Server
	logger     *slog.Logger
	db         *repository.Storage
	amqpConn   *amqp.Connection
	reconciler *reconcilerservice.Service
}

// New создает приложение: подключается к PostgreSQL, Redis и RabbitMQ,
// прогоняет миграции и собирает сервисы с маршрутами.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	amqpConn, err := rabbitmq.Connect(cfg.RabbitMQURL, 5, 3*time.Second)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(amqpConn, rabbitmq.GetNotificationQueues())
	if err != nil {
		return nil, err
	}
	publisher := rabbitmq.NewNotificationPublisher(ch)

	gatewayClient := paymentgateway.NewClient(cfg.PaymentGateway)
	maker := jwt.NewMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	entitlementSvc := entitlementservice.New(db, cacheRedis, logger)
	quotaSvc := quotaservice.New(db, cacheRedis, logger)
	checkoutSvc := checkoutservice.New(db, gatewayClient, cacheRedis, cfg.PaymentGateway, cfg.PlatformBaseURL, logger)
	webhookSvc := webhookservice.New(db, cacheRedis, cfg.Reconciler.GracePeriod, logger)
	reconcilerSvc := reconcilerservice.New(db, webhookSvc, publisher, cacheRedis, cfg.Reconciler, logger)
	planchangeSvc := planchangeservice.New(db, cacheRedis, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, &Services{
		Entitlement: entitlementSvc,
		Quota:       quotaSvc,
		Checkout:    checkoutSvc,
		Webhook:     webhookSvc,
		Reconciler:  reconcilerSvc,
		PlanChange:  planchangeSvc,
		Storage:     db,
		Maker:       maker,
	}, cfg.WebhookSecret)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:     srv,
		logger:     logger,
		db:         db,
		amqpConn:   amqpConn,
		reconciler: reconcilerSvc,
	}, nil
}

// Run запускает HTTP-сервер и фоновую сверку. Блокируется до отмены
// контекста, после чего останавливает сервер с таймаутом.
func (a *App) Run(ctx context.Context) error {
	go a.reconciler.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.amqpConn.Close()
		_ = a.db.DB.Close()
		return err
	}
}
