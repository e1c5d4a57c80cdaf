// Package reconciler содержит фоновую службу сверки состояния планов.
// Она страхует систему от пропущенных или недоставленных уведомлений
// шлюза: периодически деактивирует просроченные планы, гасит зависшие
// оформления и доигрывает необработанные события из журнала.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/cache"
	"github.com/magabrotheeeer/entitlement-engine/internal/config"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/metrics"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// Repository определяет методы хранилища, используемые службой.
type Repository interface {
	FindGraceExpiredEntitlements(ctx context.Context) ([]*models.Entitlement, error)
	FindStalePendingEntitlements(ctx context.Context, olderThan time.Duration) ([]*models.Entitlement, error)
	FindExpiredTrialEntitlements(ctx context.Context) ([]*models.Entitlement, error)
	FindExpiringEntitlements(ctx context.Context, window time.Duration) ([]*models.EntitlementInfo, error)
	ListUnprocessedGatewayEvents(ctx context.Context, limit int) ([]*models.GatewayEvent, error)
	MarkEntitlementUnpaid(ctx context.Context, id string, status models.PaymentStatus, graceUntil, endAt *time.Time) (int, error)
	DeactivateEntitlement(ctx context.Context, id string) (int, error)
	DemoteAllPostings(ctx context.Context, companyID string) (int, error)
}

// EventProcessor повторно применяет записанные события шлюза.
type EventProcessor interface {
	ProcessRaw(ctx context.Context, eventID string, body []byte) error
}

// Publisher отправляет уведомления об истечении планов.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// Cache описывает методы для сброса кэша.
type Cache interface {
	Invalidate(key string) error
}

const replayBatchSize = 100

// Service выполняет периодическую сверку состояния планов.
type Service struct {
	repo      Repository
	processor EventProcessor
	publisher Publisher
	cache     Cache
	cfg       config.Reconciler
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, processor EventProcessor, publisher Publisher,
	cacheClient Cache, cfg config.Reconciler, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		processor: processor,
		publisher: publisher,
		cache:     cacheClient,
		cfg:       cfg,
		log:       log,
	}
}

// Run запускает цикл сверки с заданным интервалом. Первый проход
// выполняется сразу после старта. Блокируется до отмены контекста.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("reconciler started", slog.Duration("interval", s.cfg.Interval))

	if err := s.RunOnce(ctx); err != nil {
		s.log.Error("reconciliation pass failed", sl.Err(err))
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("reconciliation pass failed", sl.Err(err))
			}
		}
	}
}

// RunOnce выполняет один проход сверки. Ошибка по отдельной записи
// логируется и не прерывает обработку остальных: проход возвращает
// ошибку только когда недоступна сама выборка.
func (s *Service) RunOnce(ctx context.Context) error {
	const op = "services.reconciler.RunOnce"

	if err := s.deactivateGraceExpired(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.failStalePending(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.deactivateExpiredTrials(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.notifyExpiring(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.replayUnprocessedEvents(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// deactivateGraceExpired завершает планы, у которых истек льготный
// период после неудачной оплаты.
func (s *Service) deactivateGraceExpired(ctx context.Context) error {
	entries, err := s.repo.FindGraceExpiredEntitlements(ctx)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if err := s.terminate(ctx, ent, "grace_expired"); err != nil {
			s.log.Error("failed to terminate entitlement",
				slog.String("id", ent.ID), sl.Err(err))
		}
	}
	return nil
}

// failStalePending переводит в FAILED оформления, по которым шлюз так
// и не прислал результат оплаты.
func (s *Service) failStalePending(ctx context.Context) error {
	entries, err := s.repo.FindStalePendingEntitlements(ctx, s.cfg.PendingTTL)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if _, err := s.repo.MarkEntitlementUnpaid(ctx, ent.ID, models.PaymentFailed, nil, nil); err != nil {
			s.log.Error("failed to fail stale pending entitlement",
				slog.String("id", ent.ID), sl.Err(err))
			continue
		}
		if _, err := s.repo.DeactivateEntitlement(ctx, ent.ID); err != nil {
			s.log.Error("failed to deactivate stale pending entitlement",
				slog.String("id", ent.ID), sl.Err(err))
			continue
		}
		// Ожидающее назначение тоже дает квоту, поэтому опубликованные
		// под ним вакансии снимаются вместе с ним.
		demoted, err := s.repo.DemoteAllPostings(ctx, ent.CompanyID)
		if err != nil {
			s.log.Error("failed to demote postings of stale pending entitlement",
				slog.String("id", ent.ID), sl.Err(err))
			continue
		}
		s.invalidateActive(ent.CompanyID)
		metrics.ReconcilerDeactivationsTotal.WithLabelValues("stale_pending").Inc()
		s.log.Info("stale pending checkout failed",
			slog.String("id", ent.ID),
			slog.String("company_id", ent.CompanyID),
			slog.Int("postings_demoted", demoted))
	}
	return nil
}

func (s *Service) deactivateExpiredTrials(ctx context.Context) error {
	entries, err := s.repo.FindExpiredTrialEntitlements(ctx)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if err := s.terminate(ctx, ent, "trial_expired"); err != nil {
			s.log.Error("failed to terminate trial entitlement",
				slog.String("id", ent.ID), sl.Err(err))
		}
	}
	return nil
}

// terminate деактивирует план, снимает вакансии компании с публикации
// и отправляет уведомление об истечении.
func (s *Service) terminate(ctx context.Context, ent *models.Entitlement, reason string) error {
	if _, err := s.repo.DeactivateEntitlement(ctx, ent.ID); err != nil {
		return err
	}
	demoted, err := s.repo.DemoteAllPostings(ctx, ent.CompanyID)
	if err != nil {
		return err
	}
	s.invalidateActive(ent.CompanyID)
	metrics.ReconcilerDeactivationsTotal.WithLabelValues(reason).Inc()

	info := models.EntitlementInfo{CompanyID: ent.CompanyID}
	if ent.EndAt != nil {
		info.EndAt = *ent.EndAt
	}
	if err := s.publisher.Publish(rabbitmq.RoutingKeyExpired, info); err != nil {
		s.log.Error("failed to publish expiration notification",
			slog.String("company_id", ent.CompanyID), sl.Err(err))
	}

	s.log.Info("entitlement expired",
		slog.String("id", ent.ID),
		slog.String("company_id", ent.CompanyID),
		slog.String("reason", reason),
		slog.Int("postings_demoted", demoted))
	return nil
}

// notifyExpiring рассылает напоминания о планах, истекающих в пределах
// окна уведомления.
func (s *Service) notifyExpiring(ctx context.Context) error {
	entries, err := s.repo.FindExpiringEntitlements(ctx, s.cfg.ExpiringWindow)
	if err != nil {
		return err
	}
	for _, info := range entries {
		if err := s.publisher.Publish(rabbitmq.RoutingKeyExpiring, info); err != nil {
			s.log.Error("failed to publish expiring notification",
				slog.String("company_id", info.CompanyID), sl.Err(err))
		}
	}
	if len(entries) > 0 {
		s.log.Info("expiring notifications sent", slog.Int("count", len(entries)))
	}
	return nil
}

// replayUnprocessedEvents доигрывает события, записанные в журнал,
// но не примененные: например, когда процесс упал между записью и
// обработкой.
func (s *Service) replayUnprocessedEvents(ctx context.Context) error {
	events, err := s.repo.ListUnprocessedGatewayEvents(ctx, replayBatchSize)
	if err != nil {
		return err
	}
	for _, event := range events {
		if err := s.processor.ProcessRaw(ctx, event.EventID, event.Payload); err != nil {
			s.log.Error("failed to replay gateway event",
				slog.String("event_id", event.EventID), sl.Err(err))
		}
	}
	if len(events) > 0 {
		s.log.Info("replayed unprocessed gateway events", slog.Int("count", len(events)))
	}
	return nil
}

func (s *Service) invalidateActive(companyID string) {
	key := cache.ActiveEntitlementKey(companyID)
	if err := s.cache.Invalidate(key); err != nil {
		s.log.Warn("failed to invalidate entitlement cache", slog.String("key", key), sl.Err(err))
	}
}
