// Package entitlement предоставляет маршруты для основного приложения.
package entitlement

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/posting/create"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/active"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/cancel"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/checkout"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/downgrade"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/health"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/plans"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/reconcile"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/upgrade"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/webhookreceive"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/jwt"
	checkoutservice "github.com/magabrotheeeer/entitlement-engine/internal/services/checkout"
	entitlementservice "github.com/magabrotheeeer/entitlement-engine/internal/services/entitlement"
	planchangeservice "github.com/magabrotheeeer/entitlement-engine/internal/services/planchange"
	quotaservice "github.com/magabrotheeeer/entitlement-engine/internal/services/quota"
	reconcilerservice "github.com/magabrotheeeer/entitlement-engine/internal/services/reconciler"
	webhookservice "github.com/magabrotheeeer/entitlement-engine/internal/services/webhook"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/repository"
)

// Services перечисляет зависимости, необходимые маршрутам приложения.
type Services struct {
	Entitlement *entitlementservice.Service
	Quota       *quotaservice.Service
	Checkout    *checkoutservice.Service
	Webhook     *webhookservice.Service
	Reconciler  *reconcilerservice.Service
	PlanChange  *planchangeservice.Service
	Storage     *repository.Storage
	Maker       jwt.Maker
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, svc *Services, webhookSecret string) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Get("/health", health.New(logger, svc.Storage).ServeHTTP)
		r.Get("/plans", plans.New(logger, svc.Storage).ServeHTTP)
		r.Get("/subscriptions/active/{companyID}", active.New(logger, svc.Entitlement).ServeHTTP)

		// Группа с ограничением частоты запросов
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/subscriptions/checkout", checkout.New(logger, svc.Checkout).ServeHTTP)
			r.Post("/postings", create.New(logger, svc.Quota).ServeHTTP)
		})

		// Управление планами под JWT с ролью admin
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(svc.Maker, logger))
			r.Use(middlewarectx.RequireAdmin(logger))
			r.Post("/subscriptions/cancel", cancel.New(logger, svc.PlanChange).ServeHTTP)
			r.Post("/subscriptions/upgrade", upgrade.New(logger, svc.PlanChange).ServeHTTP)
			r.Post("/subscriptions/downgrade", downgrade.New(logger, svc.PlanChange).ServeHTTP)
			r.Post("/subscriptions/reconcile", reconcile.New(logger, svc.Reconciler).ServeHTTP)
		})

		// Webhook endpoint (подпись вместо аутентификации)
		r.Post("/subscriptions/webhook", webhookreceive.New(logger, svc.Webhook, webhookSecret).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
