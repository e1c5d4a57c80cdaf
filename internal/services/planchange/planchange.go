// Package planchange реализует смену тарифного плана действующей
// подписки: повышение, понижение и отмену. Понижение приводит
// опубликованные вакансии в соответствие с лимитами нового плана.
package planchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/entitlement-engine/internal/cache"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/plancatalog"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/repository"
)

// ErrNoActivePlan возвращается, когда у компании нет действующего плана.
var ErrNoActivePlan = errors.New("company has no active plan")

// ErrSamePlan возвращается при попытке сменить план на тот же самый.
var ErrSamePlan = errors.New("company already on this plan")

// Repository определяет методы хранилища, используемые сервисом.
type Repository interface {
	FindActiveEntitlement(ctx context.Context, companyID string) (*models.Entitlement, error)
	GetPlanDefinition(ctx context.Context, id string) (*models.PlanDefinition, error)
	CreateEntitlement(ctx context.Context, entry models.Entitlement) (string, error)
	DeactivateEntitlement(ctx context.Context, id string) (int, error)
	CountSlotConsuming(ctx context.Context, companyID string) (int, error)
	CountFeaturedActive(ctx context.Context, companyID string) (int, error)
	DemotePostings(ctx context.Context, companyID string, count int) (int, error)
	DemoteFeaturedPostings(ctx context.Context, companyID string, count int) (int, error)
	DemoteAllPostings(ctx context.Context, companyID string) (int, error)
}

// Cache описывает методы для сброса кэша.
type Cache interface {
	Invalidate(key string) error
}

// Service выполняет операции смены плана.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, cacheClient Cache, log *slog.Logger) *Service {
	return &Service{repo: repo, cache: cacheClient, log: log}
}

// Upgrade переводит компанию на план с большими лимитами. Новое
// назначение наследует режим, категорию и платежные атрибуты
// текущего; прежнее деактивируется в той же транзакции хранилища.
func (s *Service) Upgrade(ctx context.Context, req models.DummyPlanChange) (*models.Entitlement, error) {
	const op = "services.planchange.Upgrade"

	created, _, err := s.switchPlan(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("plan upgraded",
		slog.String("company_id", req.CompanyID),
		slog.String("entitlement_id", created.ID))
	return created, nil
}

// Downgrade переводит компанию на план с меньшими лимитами. Излишек
// опубликованных вакансий снимается с публикации, излишек выделенных
// теряет выделение. Первыми понижаются опубликованные последними.
func (s *Service) Downgrade(ctx context.Context, req models.DummyPlanChange) (*models.Entitlement, error) {
	const op = "services.planchange.Downgrade"

	created, plan, err := s.switchPlan(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.enforceQuotas(ctx, req.CompanyID, plan); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("plan downgraded",
		slog.String("company_id", req.CompanyID),
		slog.String("entitlement_id", created.ID))
	return created, nil
}

// Cancel завершает подписку компании: план деактивируется, все
// вакансии снимаются с публикации.
func (s *Service) Cancel(ctx context.Context, req models.DummyCancel) error {
	const op = "services.planchange.Cancel"

	current, err := s.active(ctx, req.CompanyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.repo.DeactivateEntitlement(ctx, current.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	demoted, err := s.repo.DemoteAllPostings(ctx, req.CompanyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateActive(req.CompanyID)

	s.log.Info("subscription cancelled",
		slog.String("company_id", req.CompanyID),
		slog.String("entitlement_id", current.ID),
		slog.String("reason", req.Reason),
		slog.Int("postings_demoted", demoted))
	return nil
}

func (s *Service) switchPlan(ctx context.Context, req models.DummyPlanChange) (*models.Entitlement, *models.PlanDefinition, error) {
	current, err := s.active(ctx, req.CompanyID)
	if err != nil {
		return nil, nil, err
	}
	if current.PlanDefinitionID == req.PlanDefinitionID {
		return nil, nil, ErrSamePlan
	}
	plan, err := s.repo.GetPlanDefinition(ctx, req.PlanDefinitionID)
	if err != nil {
		return nil, nil, err
	}

	entry := models.Entitlement{
		CompanyID:        current.CompanyID,
		PlanDefinitionID: plan.ID,
		Category:         current.Category,
		Mode:             current.Mode,
		StartAt:          current.StartAt,
		EndAt:            current.EndAt,
		PaymentStatus:    current.PaymentStatus,
		NextBillingAt:    current.NextBillingAt,
		GraceUntil:       current.GraceUntil,
		Observation:      current.Observation,
	}
	id, err := s.repo.CreateEntitlement(ctx, entry)
	if err != nil {
		return nil, nil, err
	}
	entry.ID = id
	entry.Active = true
	s.invalidateActive(req.CompanyID)
	return &entry, plan, nil
}

// enforceQuotas приводит вакансии компании к лимитам нового плана.
func (s *Service) enforceQuotas(ctx context.Context, companyID string, plan *models.PlanDefinition) error {
	if plan.JobSlotQuota != plancatalog.Unbounded {
		used, err := s.repo.CountSlotConsuming(ctx, companyID)
		if err != nil {
			return err
		}
		if used > plan.JobSlotQuota {
			demoted, err := s.repo.DemotePostings(ctx, companyID, used-plan.JobSlotQuota)
			if err != nil {
				return err
			}
			s.log.Info("excess postings demoted",
				slog.String("company_id", companyID), slog.Int("count", demoted))
		}
	}

	featured, err := s.repo.CountFeaturedActive(ctx, companyID)
	if err != nil {
		return err
	}
	excess := 0
	switch {
	case !plan.FeaturedAllowed:
		excess = featured
	case plan.FeaturedSlotQuota != nil && featured > *plan.FeaturedSlotQuota:
		excess = featured - *plan.FeaturedSlotQuota
	}
	if excess > 0 {
		demoted, err := s.repo.DemoteFeaturedPostings(ctx, companyID, excess)
		if err != nil {
			return err
		}
		s.log.Info("excess featured postings demoted",
			slog.String("company_id", companyID), slog.Int("count", demoted))
	}
	return nil
}

func (s *Service) active(ctx context.Context, companyID string) (*models.Entitlement, error) {
	current, err := s.repo.FindActiveEntitlement(ctx, companyID)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveEntitlement) {
			return nil, ErrNoActivePlan
		}
		return nil, err
	}
	return current, nil
}

func (s *Service) invalidateActive(companyID string) {
	key := cache.ActiveEntitlementKey(companyID)
	if err := s.cache.Invalidate(key); err != nil {
		s.log.Warn("failed to invalidate entitlement cache", slog.String("key", key), sl.Err(err))
	}
}
