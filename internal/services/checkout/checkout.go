// Package checkout инициирует оформление подписки. Для платных моделей
// создается назначение плана в статусе ожидания оплаты и платёжное
// намерение на стороне шлюза; оба действия атомарны: если шлюз
// недоступен, назначение не сохраняется. Пробный период активируется
// сразу, без обращения к шлюзу.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/cache"
	"github.com/magabrotheeeer/entitlement-engine/internal/config"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/enddate"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/plancatalog"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/metrics"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/paymentgateway"
)

// ErrCheckoutConflict возвращается, когда у компании уже есть
// незавершённое оформление того же плана.
var ErrCheckoutConflict = errors.New("checkout already in progress for this plan")

// ErrPaymentMethodRequired возвращается, когда платная модель оплаты
// пришла без способа оплаты.
var ErrPaymentMethodRequired = errors.New("payment method is required")

// Repository определяет методы хранилища, используемые сервисом.
type Repository interface {
	GetPlanDefinition(ctx context.Context, id string) (*models.PlanDefinition, error)
	FindPendingEntitlement(ctx context.Context, companyID, planDefinitionID string) (*models.Entitlement, error)
	CreateEntitlementWithin(ctx context.Context, entry models.Entitlement, fn func(created *models.Entitlement) error) (string, error)
}

// Gateway описывает клиент платёжного шлюза.
type Gateway interface {
	CreateCheckout(ctx context.Context, req paymentgateway.CreateCheckoutRequest) (*paymentgateway.CreateCheckoutResponse, error)
}

// Cache описывает методы для сброса кэша.
type Cache interface {
	Invalidate(key string) error
}

// Service оформляет платные подписки через платёжный шлюз.
type Service struct {
	repo    Repository
	gateway Gateway
	cache   Cache
	cfg     config.PaymentGateway
	baseURL string
	log     *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, gateway Gateway, cacheClient Cache, cfg config.PaymentGateway, baseURL string, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		cache:   cacheClient,
		cfg:     cfg,
		baseURL: baseURL,
		log:     log,
	}
}

// Start создает назначение плана в статусе PENDING и платёжное
// намерение на стороне шлюза. Вызов шлюза выполняется внутри
// транзакции хранилища: отказ шлюза откатывает назначение целиком.
func (s *Service) Start(ctx context.Context, req models.DummyCheckout) (*models.CheckoutResult, error) {
	const op = "services.checkout.Start"

	plan, err := s.repo.GetPlanDefinition(ctx, req.PlanDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pending, err := s.repo.FindPendingEntitlement(ctx, req.CompanyID, req.PlanDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if pending != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrCheckoutConflict)
	}

	category := models.CategoryThirtyDays
	if req.Category != "" {
		category = models.PlanCategory(req.Category)
	}

	if req.PaymentModel == string(models.PaymentModelTrial) {
		return s.startTrial(ctx, req, plan, category)
	}
	if req.PaymentMethod == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrPaymentMethodRequired)
	}

	entry := models.Entitlement{
		CompanyID:        req.CompanyID,
		PlanDefinitionID: req.PlanDefinitionID,
		Category:         category,
		Mode:             models.ModeCustomer,
		StartAt:          time.Now().UTC(),
		PaymentStatus:    models.PaymentPending,
	}

	var result models.CheckoutResult
	id, err := s.repo.CreateEntitlementWithin(ctx, entry, func(created *models.Entitlement) error {
		resp, gwErr := s.createWithRetry(ctx, s.buildRequest(req, plan, created))
		if gwErr != nil {
			return gwErr
		}
		result = models.CheckoutResult{
			EntitlementID: created.ID,
			RedirectURL:   resp.Confirmation.ConfirmationURL,
			PixPayload:    resp.Confirmation.PixPayload,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result.EntitlementID = id

	s.invalidateActive(req.CompanyID)
	metrics.CheckoutsStartedTotal.Inc()
	s.log.Info("checkout started",
		slog.String("entitlement_id", id),
		slog.String("company_id", req.CompanyID),
		slog.String("plan", plan.Name))
	return &result, nil
}

// startTrial активирует пробный план без обращения к шлюзу. Пробный
// период не тарифицируется, поэтому назначение сразу считается
// оплаченным, а дата окончания выставляется по длительности категории.
func (s *Service) startTrial(ctx context.Context, req models.DummyCheckout, plan *models.PlanDefinition, category models.PlanCategory) (*models.CheckoutResult, error) {
	const op = "services.checkout.startTrial"

	startAt := time.Now().UTC()
	trialDays := 0
	if days := plancatalog.DurationOf(category); days != plancatalog.Unbounded {
		trialDays = days
	}
	entry := models.Entitlement{
		CompanyID:        req.CompanyID,
		PlanDefinitionID: req.PlanDefinitionID,
		Category:         category,
		Mode:             models.ModeTrial,
		StartAt:          startAt,
		EndAt:            enddate.Compute(models.ModeTrial, startAt, enddate.Options{TrialDays: trialDays}),
		PaymentStatus:    models.PaymentPaid,
	}
	id, err := s.repo.CreateEntitlementWithin(ctx, entry, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.invalidateActive(req.CompanyID)
	metrics.CheckoutsStartedTotal.Inc()
	s.log.Info("trial started",
		slog.String("entitlement_id", id),
		slog.String("company_id", req.CompanyID),
		slog.String("plan", plan.Name))
	return &models.CheckoutResult{EntitlementID: id}, nil
}

// createWithRetry делает один повтор с паузой при недоступности шлюза.
func (s *Service) createWithRetry(ctx context.Context, req paymentgateway.CreateCheckoutRequest) (*paymentgateway.CreateCheckoutResponse, error) {
	resp, err := s.gateway.CreateCheckout(ctx, req)
	if err == nil {
		return resp, nil
	}
	if !errors.Is(err, paymentgateway.ErrGatewayUnavailable) {
		return nil, err
	}
	s.log.Warn("payment gateway unavailable, retrying", sl.Err(err))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Second):
	}
	return s.gateway.CreateCheckout(ctx, req)
}

func (s *Service) buildRequest(req models.DummyCheckout, plan *models.PlanDefinition, created *models.Entitlement) paymentgateway.CreateCheckoutRequest {
	confirmationType := "redirect"
	if req.PaymentMethod == "pix" {
		confirmationType = "pix"
	}
	return paymentgateway.CreateCheckoutRequest{
		// Ключ совпадает с назначением: повтор после сбоя шлюза не
		// создаст второе платёжное намерение.
		IdempotenceKey: created.ID,
		Amount: paymentgateway.Amount{
			Value:    strconv.FormatFloat(plan.Price, 'f', 2, 64),
			Currency: "BRL",
		},
		PaymentMethod: req.PaymentMethod,
		Recurring:     req.PaymentModel == string(models.PaymentModelRecurring),
		Description:   plan.Name,
		Confirmation: paymentgateway.Confirmation{
			Type:      confirmationType,
			ReturnURL: s.returnURL(req),
		},
		Metadata: map[string]string{
			"entitlement_id": created.ID,
			"company_id":     created.CompanyID,
		},
	}
}

// returnURL выбирает адрес возврата: явный из запроса, затем из
// настроек шлюза, затем базовый адрес платформы.
func (s *Service) returnURL(req models.DummyCheckout) string {
	if req.SuccessURL != "" {
		return req.SuccessURL
	}
	if s.cfg.DefaultReturnURL != "" {
		return s.cfg.DefaultReturnURL
	}
	return s.baseURL
}

func (s *Service) invalidateActive(companyID string) {
	key := cache.ActiveEntitlementKey(companyID)
	if err := s.cache.Invalidate(key); err != nil {
		s.log.Warn("failed to invalidate entitlement cache", slog.String("key", key), sl.Err(err))
	}
}
