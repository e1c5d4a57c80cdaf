// Package entitlement содержит бизнес-логику управления назначениями
// тарифных планов. Все остальные компоненты подсистемы читают и меняют
// планы только через этот сервис, не обращаясь к хранилищу напрямую.
package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/cache"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/enddate"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/plancatalog"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// Repository определяет методы хранилища, используемые сервисом.
type Repository interface {
	CreateEntitlement(ctx context.Context, entry models.Entitlement) (string, error)
	FindActiveEntitlement(ctx context.Context, companyID string) (*models.Entitlement, error)
	ReadEntitlement(ctx context.Context, id string) (*models.Entitlement, error)
	UpdateEntitlement(ctx context.Context, id string, patch models.EntitlementPatch) (int, error)
	DeactivateEntitlement(ctx context.Context, id string) (int, error)
	GetPlanDefinition(ctx context.Context, id string) (*models.PlanDefinition, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Service реализует операции над назначениями планов с кешированием
// активного плана компании.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// CreateParams описывает данные нового назначения плана.
type CreateParams struct {
	CompanyID        string
	PlanDefinitionID string
	Category         models.PlanCategory
	Mode             models.PlanMode
	StartAt          time.Time
	PaymentStatus    models.PaymentStatus
	NextBillingAt    *time.Time
	GraceUntil       *time.Time
	Observation      string
}

// Create назначает компании новый план. Прежний активный план
// деактивируется в той же транзакции хранилища, поэтому инвариант
// "не более одного активного плана" сохраняется при конкурентных вызовах.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Entitlement, error) {
	const op = "services.entitlement.Create"

	if !plancatalog.IsKnown(params.Category) {
		return nil, fmt.Errorf("%s: unknown plan category %q", op, params.Category)
	}
	if _, err := s.repo.GetPlanDefinition(ctx, params.PlanDefinitionID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	entry := s.buildEntry(params)
	id, err := s.repo.CreateEntitlement(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	entry.ID = id
	entry.Active = true

	s.log.Info("created new entitlement",
		slog.String("id", id),
		slog.String("company_id", params.CompanyID),
		slog.String("mode", string(params.Mode)))

	s.invalidateActive(params.CompanyID)
	return &entry, nil
}

func (s *Service) buildEntry(params CreateParams) models.Entitlement {
	endAt := enddate.Compute(params.Mode, params.StartAt, enddate.Options{
		TrialDays:     trialDaysFor(params.Mode, params.Category),
		NextBillingAt: params.NextBillingAt,
		GraceUntil:    params.GraceUntil,
	})
	return models.Entitlement{
		CompanyID:        params.CompanyID,
		PlanDefinitionID: params.PlanDefinitionID,
		Category:         params.Category,
		Mode:             params.Mode,
		StartAt:          params.StartAt,
		EndAt:            endAt,
		PaymentStatus:    params.PaymentStatus,
		NextBillingAt:    params.NextBillingAt,
		GraceUntil:       params.GraceUntil,
		Observation:      params.Observation,
	}
}

// trialDaysFor возвращает длительность пробного периода по категории.
// Для небессрочных категорий пробный период равен длительности категории.
func trialDaysFor(mode models.PlanMode, category models.PlanCategory) int {
	if mode != models.ModeTrial {
		return 0
	}
	if days := plancatalog.DurationOf(category); days != plancatalog.Unbounded {
		return days
	}
	return 0
}

// FindActive возвращает действующий план компании, используя кеш.
// Возвращает repository.ErrNoActiveEntitlement, если плана нет.
func (s *Service) FindActive(ctx context.Context, companyID string) (*models.Entitlement, error) {
	cacheKey := cache.ActiveEntitlementKey(companyID)

	var cached models.Entitlement
	found, err := s.cache.Get(cacheKey, &cached)
	if err != nil {
		s.log.Warn("failed to read entitlement from cache", slog.String("key", cacheKey), sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	result, err := s.repo.FindActiveEntitlement(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(cacheKey, *result, time.Hour); err != nil {
		s.log.Warn("failed to cache entitlement", slog.String("key", cacheKey), sl.Err(err))
	}
	return result, nil
}

// Update применяет частичное обновление плана. При смене категории или
// даты начала дата окончания пересчитывается по правилам режима плана.
func (s *Service) Update(ctx context.Context, id string, patch models.EntitlementPatch) (*models.Entitlement, error) {
	const op = "services.entitlement.Update"

	current, err := s.repo.ReadEntitlement(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if patch.Category != nil && !plancatalog.IsKnown(*patch.Category) {
		return nil, fmt.Errorf("%s: unknown plan category %q", op, *patch.Category)
	}

	if patch.Category != nil || patch.StartAt != nil {
		category := current.Category
		if patch.Category != nil {
			category = *patch.Category
		}
		startAt := current.StartAt
		if patch.StartAt != nil {
			startAt = *patch.StartAt
		}
		patch.EndAt = enddate.Compute(current.Mode, startAt, enddate.Options{
			TrialDays:     trialDaysFor(current.Mode, category),
			NextBillingAt: current.NextBillingAt,
			GraceUntil:    current.GraceUntil,
		})
	}

	if _, err := s.repo.UpdateEntitlement(ctx, id, patch); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateActive(current.CompanyID)

	updated, err := s.repo.ReadEntitlement(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

// Deactivate снимает признак активности плана и сбрасывает кеш компании.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	const op = "services.entitlement.Deactivate"

	current, err := s.repo.ReadEntitlement(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.repo.DeactivateEntitlement(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateActive(current.CompanyID)

	s.log.Info("deactivated entitlement",
		slog.String("id", id), slog.String("company_id", current.CompanyID))
	return nil
}

func (s *Service) invalidateActive(companyID string) {
	cacheKey := cache.ActiveEntitlementKey(companyID)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate entitlement cache", slog.String("key", cacheKey), sl.Err(err))
	}
}
