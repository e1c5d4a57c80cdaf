// Package webhook обрабатывает уведомления платёжного шлюза о
// состоянии платежей и подписок. Обработка идемпотентна: каждое
// событие фиксируется в журнале и применяется не более одного раза,
// а состояние назначения выставляется абсолютными значениями,
// поэтому повтор или переупорядочивание доставки безопасны.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/cache"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/plancatalog"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/metrics"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// ErrMissingEntitlement возвращается, когда событие не содержит
// ссылки на назначение плана.
var ErrMissingEntitlement = errors.New("event has no entitlement reference")

// Payload описывает тело уведомления шлюза.
type Payload struct {
	ID     string `json:"id"`    // Идентификатор события на стороне шлюза
	Event  string `json:"event"` // payment.approved, payment.rejected и др.
	Object struct {
		ID            string            `json:"id"`
		Status        string            `json:"status"`
		Metadata      map[string]string `json:"metadata"`
		NextBillingAt *time.Time        `json:"next_billing_at,omitempty"`
	} `json:"object"`
}

// Repository определяет методы хранилища, используемые сервисом.
type Repository interface {
	RecordGatewayEvent(ctx context.Context, eventID string, payload []byte) (bool, error)
	GatewayEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkGatewayEventProcessed(ctx context.Context, eventID string) error
	ReadEntitlement(ctx context.Context, id string) (*models.Entitlement, error)
	MarkEntitlementPaid(ctx context.Context, id string, nextBillingAt, endAt *time.Time) (int, error)
	MarkEntitlementUnpaid(ctx context.Context, id string, status models.PaymentStatus, graceUntil, endAt *time.Time) (int, error)
	DeactivateEntitlement(ctx context.Context, id string) (int, error)
	DemoteAllPostings(ctx context.Context, companyID string) (int, error)
}

// Cache описывает методы для сброса кэша.
type Cache interface {
	Invalidate(key string) error
}

// Service применяет события шлюза к назначениям планов.
type Service struct {
	repo        Repository
	cache       Cache
	gracePeriod time.Duration
	log         *slog.Logger
	now         func() time.Time
}

// New создает новый экземпляр Service.
func New(repo Repository, cacheClient Cache, gracePeriod time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		cache:       cacheClient,
		gracePeriod: gracePeriod,
		log:         log,
		now:         time.Now,
	}
}

// Process разбирает тело уведомления, регистрирует событие в журнале
// дедупликации и применяет его. Повторная доставка уже обработанного
// события завершается успешно без побочных эффектов. Ошибка
// возвращается только до надежной записи события; после записи
// сбой применения не считается отказом в приеме.
func (s *Service) Process(ctx context.Context, body []byte) error {
	const op = "services.webhook.Process"

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unparsable", "rejected").Inc()
		return fmt.Errorf("%s: decode payload: %w", op, err)
	}
	if payload.ID == "" {
		metrics.WebhookEventsTotal.WithLabelValues(payload.Event, "rejected").Inc()
		return fmt.Errorf("%s: event without id", op)
	}

	created, err := s.repo.RecordGatewayEvent(ctx, payload.ID, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !created {
		processed, err := s.repo.GatewayEventProcessed(ctx, payload.ID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if processed {
			metrics.WebhookEventsTotal.WithLabelValues(payload.Event, "duplicate").Inc()
			s.log.Info("duplicate gateway event skipped", slog.String("event_id", payload.ID))
			return nil
		}
	}

	// Событие надежно записано: любые дальнейшие сбои не должны
	// приводить к отказу шлюзу. Необработанное событие останется в
	// журнале с processed=false и будет дообработано службой сверки.
	if err := s.apply(ctx, payload); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(payload.Event, "deferred").Inc()
		s.log.Error("gateway event recorded but not applied, left for replay",
			slog.String("event_id", payload.ID),
			slog.String("event", payload.Event),
			sl.Err(err))
		return nil
	}
	if err := s.repo.MarkGatewayEventProcessed(ctx, payload.ID); err != nil {
		s.log.Error("failed to mark gateway event processed, left for replay",
			slog.String("event_id", payload.ID), sl.Err(err))
		return nil
	}
	metrics.WebhookEventsTotal.WithLabelValues(payload.Event, "processed").Inc()
	return nil
}

// ProcessRaw применяет ранее записанное событие из журнала. Используется
// службой сверки для повторной обработки зависших событий.
func (s *Service) ProcessRaw(ctx context.Context, eventID string, body []byte) error {
	const op = "services.webhook.ProcessRaw"

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%s: decode payload: %w", op, err)
	}
	if err := s.apply(ctx, payload); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.MarkGatewayEventProcessed(ctx, eventID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.WebhookEventsTotal.WithLabelValues(payload.Event, "replayed").Inc()
	return nil
}

func (s *Service) apply(ctx context.Context, payload Payload) error {
	switch payload.Event {
	case "payment.approved", "payment.authorized":
		return s.applyPaid(ctx, payload)
	case "payment.rejected":
		return s.applyRejected(ctx, payload)
	case "payment.refunded", "payment.chargeback", "subscription.cancelled":
		return s.applyTerminal(ctx, payload)
	default:
		s.log.Info("unknown gateway event ignored",
			slog.String("event_id", payload.ID), slog.String("event", payload.Event))
		return nil
	}
}

func (s *Service) entitlement(ctx context.Context, payload Payload) (*models.Entitlement, error) {
	id := payload.Object.Metadata["entitlement_id"]
	if id == "" {
		return nil, ErrMissingEntitlement
	}
	return s.repo.ReadEntitlement(ctx, id)
}

// applyPaid подтверждает оплату: план становится активным и оплаченным,
// льготный период сбрасывается, дата окончания пересчитывается от
// следующего списания либо от длительности категории.
func (s *Service) applyPaid(ctx context.Context, payload Payload) error {
	ent, err := s.entitlement(ctx, payload)
	if err != nil {
		return err
	}

	endAt := payload.Object.NextBillingAt
	if endAt == nil {
		if days := plancatalog.DurationOf(ent.Category); days != plancatalog.Unbounded {
			v := s.now().UTC().AddDate(0, 0, days)
			endAt = &v
		}
	}
	if _, err := s.repo.MarkEntitlementPaid(ctx, ent.ID, payload.Object.NextBillingAt, endAt); err != nil {
		return err
	}
	s.invalidateActive(ent.CompanyID)
	s.log.Info("payment confirmed",
		slog.String("entitlement_id", ent.ID), slog.String("event_id", payload.ID))
	return nil
}

// applyRejected обрабатывает отказ в оплате. Первичный отказ переводит
// ожидающее назначение в FAILED и деактивирует его. Отказ по действующей
// подписке мягкий: план остается активным до конца льготного периода.
func (s *Service) applyRejected(ctx context.Context, payload Payload) error {
	ent, err := s.entitlement(ctx, payload)
	if err != nil {
		return err
	}

	if ent.PaymentStatus == models.PaymentPending {
		if _, err := s.repo.MarkEntitlementUnpaid(ctx, ent.ID, models.PaymentFailed, nil, nil); err != nil {
			return err
		}
		if _, err := s.repo.DeactivateEntitlement(ctx, ent.ID); err != nil {
			return err
		}
		demoted, err := s.repo.DemoteAllPostings(ctx, ent.CompanyID)
		if err != nil {
			return err
		}
		s.invalidateActive(ent.CompanyID)
		s.log.Info("checkout payment rejected, entitlement deactivated",
			slog.String("entitlement_id", ent.ID),
			slog.Int("postings_demoted", demoted))
		return nil
	}

	graceUntil := s.now().UTC().Add(s.gracePeriod)
	if ent.GraceUntil != nil && ent.GraceUntil.After(graceUntil) {
		graceUntil = *ent.GraceUntil
	}
	endAt := graceUntil
	if ent.EndAt != nil && ent.EndAt.After(endAt) {
		endAt = *ent.EndAt
	}
	if _, err := s.repo.MarkEntitlementUnpaid(ctx, ent.ID, models.PaymentFailed, &graceUntil, &endAt); err != nil {
		return err
	}
	s.invalidateActive(ent.CompanyID)
	s.log.Info("payment rejected, grace period granted",
		slog.String("entitlement_id", ent.ID),
		slog.Time("grace_until", graceUntil))
	return nil
}

// applyTerminal обрабатывает необратимые события: возврат средств,
// чарджбек и отмену подписки на стороне шлюза. План деактивируется,
// все вакансии компании снимаются с публикации.
func (s *Service) applyTerminal(ctx context.Context, payload Payload) error {
	ent, err := s.entitlement(ctx, payload)
	if err != nil {
		return err
	}

	if _, err := s.repo.MarkEntitlementUnpaid(ctx, ent.ID, models.PaymentCancelled, nil, nil); err != nil {
		return err
	}
	if _, err := s.repo.DeactivateEntitlement(ctx, ent.ID); err != nil {
		return err
	}
	demoted, err := s.repo.DemoteAllPostings(ctx, ent.CompanyID)
	if err != nil {
		return err
	}
	s.invalidateActive(ent.CompanyID)
	s.log.Info("entitlement terminated by gateway event",
		slog.String("entitlement_id", ent.ID),
		slog.String("event", payload.Event),
		slog.Int("postings_demoted", demoted))
	return nil
}

func (s *Service) invalidateActive(companyID string) {
	key := cache.ActiveEntitlementKey(companyID)
	if err := s.cache.Invalidate(key); err != nil {
		s.log.Warn("failed to invalidate entitlement cache", slog.String("key", key), sl.Err(err))
	}
}
