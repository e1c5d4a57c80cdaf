// Package quota проверяет лимиты тарифного плана при публикации вакансий.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/cache"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/plancatalog"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/metrics"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/repository"
)

// ErrNoActivePlan возвращается, когда у компании нет действующего плана.
var ErrNoActivePlan = errors.New("company has no active plan")

// ErrFeatureNotAllowed возвращается, когда план не разрешает
// выделенные вакансии.
var ErrFeatureNotAllowed = errors.New("plan does not allow featured postings")

// QuotaExceededError сообщает об исчерпании лимита плана.
type QuotaExceededError struct {
	Resource string
	Limit    int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded, limit %d", e.Resource, e.Limit)
}

// Repository определяет методы хранилища, используемые сервисом.
type Repository interface {
	FindActiveEntitlement(ctx context.Context, companyID string) (*models.Entitlement, error)
	GetPlanDefinition(ctx context.Context, id string) (*models.PlanDefinition, error)
	CountSlotConsuming(ctx context.Context, companyID string) (int, error)
	CountFeatured(ctx context.Context, companyID, entitlementID string) (int, error)
	CreatePostingChecked(ctx context.Context, posting models.JobPosting, jobSlotQuota int, featuredSlotQuota *int) (string, error)
}

// Cache описывает методы для кеширования определений планов.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
}

// Service отвечает на вопрос "может ли компания опубликовать еще одну
// вакансию" и регистрирует новые вакансии с учетом лимитов плана.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, cacheClient Cache, log *slog.Logger) *Service {
	return &Service{repo: repo, cache: cacheClient, log: log}
}

// AuthorizeJobPosting проверяет, остались ли у компании слоты вакансий.
// Проверка консультативная: окончательное решение принимается в
// RegisterPosting под блокировкой строки плана.
func (s *Service) AuthorizeJobPosting(ctx context.Context, companyID string) error {
	const op = "services.quota.AuthorizeJobPosting"

	_, plan, err := s.activePlan(ctx, companyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if plan.JobSlotQuota == plancatalog.Unbounded {
		return nil
	}

	used, err := s.repo.CountSlotConsuming(ctx, companyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if used >= plan.JobSlotQuota {
		metrics.QuotaRejectionsTotal.WithLabelValues("job_slots").Inc()
		return fmt.Errorf("%s: %w", op, &QuotaExceededError{Resource: "job slot", Limit: plan.JobSlotQuota})
	}
	return nil
}

// AuthorizeFeaturedPosting проверяет лимит выделенных вакансий.
// Счетчик привязан к текущему назначению плана, поэтому после смены
// плана отсчет начинается заново.
func (s *Service) AuthorizeFeaturedPosting(ctx context.Context, companyID string) error {
	const op = "services.quota.AuthorizeFeaturedPosting"

	ent, plan, err := s.activePlan(ctx, companyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !plan.FeaturedAllowed {
		metrics.QuotaRejectionsTotal.WithLabelValues("featured_not_allowed").Inc()
		return fmt.Errorf("%s: %w", op, ErrFeatureNotAllowed)
	}
	if plan.FeaturedSlotQuota == nil {
		return nil
	}

	used, err := s.repo.CountFeatured(ctx, companyID, ent.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if used >= *plan.FeaturedSlotQuota {
		metrics.QuotaRejectionsTotal.WithLabelValues("featured_slots").Inc()
		return fmt.Errorf("%s: %w", op, &QuotaExceededError{Resource: "featured slot", Limit: *plan.FeaturedSlotQuota})
	}
	return nil
}

// RegisterPosting создает вакансию, атомарно проверяя лимиты плана.
// Подсчет и вставка выполняются в одной транзакции под блокировкой
// строки активного плана, поэтому две конкурентные публикации не могут
// обе пройти через последний свободный слот.
func (s *Service) RegisterPosting(ctx context.Context, posting models.JobPosting) (string, error) {
	const op = "services.quota.RegisterPosting"

	_, plan, err := s.activePlan(ctx, posting.CompanyID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if posting.Featured && !plan.FeaturedAllowed {
		metrics.QuotaRejectionsTotal.WithLabelValues("featured_not_allowed").Inc()
		return "", fmt.Errorf("%s: %w", op, ErrFeatureNotAllowed)
	}

	featuredQuota := plan.FeaturedSlotQuota
	if !posting.Featured {
		featuredQuota = nil
	}
	id, err := s.repo.CreatePostingChecked(ctx, posting, plan.JobSlotQuota, featuredQuota)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrJobSlotLimitReached):
			metrics.QuotaRejectionsTotal.WithLabelValues("job_slots").Inc()
			return "", fmt.Errorf("%s: %w", op, &QuotaExceededError{Resource: "job slot", Limit: plan.JobSlotQuota})
		case errors.Is(err, repository.ErrFeaturedLimitReached):
			metrics.QuotaRejectionsTotal.WithLabelValues("featured_slots").Inc()
			limit := 0
			if plan.FeaturedSlotQuota != nil {
				limit = *plan.FeaturedSlotQuota
			}
			return "", fmt.Errorf("%s: %w", op, &QuotaExceededError{Resource: "featured slot", Limit: limit})
		case errors.Is(err, repository.ErrNoActiveEntitlement):
			return "", fmt.Errorf("%s: %w", op, ErrNoActivePlan)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("registered job posting",
		slog.String("id", id),
		slog.String("company_id", posting.CompanyID),
		slog.Bool("featured", posting.Featured))
	return id, nil
}

func (s *Service) activePlan(ctx context.Context, companyID string) (*models.Entitlement, *models.PlanDefinition, error) {
	ent, err := s.repo.FindActiveEntitlement(ctx, companyID)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveEntitlement) {
			return nil, nil, ErrNoActivePlan
		}
		return nil, nil, err
	}
	plan, err := s.planDefinition(ctx, ent.PlanDefinitionID)
	if err != nil {
		return nil, nil, err
	}
	return ent, plan, nil
}

// planDefinition возвращает определение плана, используя кеш. Каталог
// планов проверяется на каждую публикацию вакансии, а меняется редко.
func (s *Service) planDefinition(ctx context.Context, id string) (*models.PlanDefinition, error) {
	key := cache.PlanDefinitionKey(id)

	var cached models.PlanDefinition
	found, err := s.cache.Get(key, &cached)
	if err != nil {
		s.log.Warn("failed to read plan definition from cache", slog.String("key", key), sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	plan, err := s.repo.GetPlanDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(key, *plan, time.Hour); err != nil {
		s.log.Warn("failed to cache plan definition", slog.String("key", key), sl.Err(err))
	}
	return plan, nil
}
