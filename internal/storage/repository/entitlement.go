package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// ErrNoActiveEntitlement возвращается, когда у компании нет действующего плана.
var ErrNoActiveEntitlement = errors.New("no active entitlement")

const entitlementColumns = `id, company_id, plan_definition_id, category, mode,
			      start_at, end_at, active, payment_status, next_billing_at,
			      grace_until, observation, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntitlement(row rowScanner) (*models.Entitlement, error) {
	var e models.Entitlement
	var category, mode, status string
	if err := row.Scan(&e.ID, &e.CompanyID, &e.PlanDefinitionID, &category, &mode,
		&e.StartAt, &e.EndAt, &e.Active, &status, &e.NextBillingAt,
		&e.GraceUntil, &e.Observation, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Category = models.PlanCategory(category)
	e.Mode = models.PlanMode(mode)
	e.PaymentStatus = models.PaymentStatus(status)
	return &e, nil
}

// CreateEntitlement атомарно деактивирует прежний активный план компании
// и вставляет новый с active=true. Порядок "деактивировать, затем создать"
// выполняется в одной транзакции: строки активного плана блокируются
// FOR UPDATE, поэтому два конкурентных вызова для одной компании
// сериализуются. Для компании без планов блокировать нечего — гонку
// закрывает частичный уникальный индекс по (company_id) WHERE active.
func (s *Storage) CreateEntitlement(ctx context.Context, entry models.Entitlement) (string, error) {
	return s.CreateEntitlementWithin(ctx, entry, nil)
}

// CreateEntitlementWithin выполняет ту же вставку, но перед фиксацией
// транзакции вызывает fn с созданной записью. Ошибка fn откатывает
// транзакцию целиком: используется оформлением оплаты, чтобы сбой вызова
// шлюза не оставил осиротевший план со статусом PENDING.
func (s *Storage) CreateEntitlementWithin(ctx context.Context, entry models.Entitlement, fn func(created *models.Entitlement) error) (string, error) {
	const op = "storage.CreateEntitlementWithin"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM entitlements WHERE company_id = $1 AND active FOR UPDATE`, entry.CompanyID)
		if err != nil {
			return err
		}
		var priorIDs []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			priorIDs = append(priorIDs, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, id := range priorIDs {
			if _, err := tx.ExecContext(ctx,
				`UPDATE entitlements
				 SET active = false, end_at = NOW(), updated_at = NOW()
				 WHERE id = $1`, id); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entitlements (id, company_id, plan_definition_id, category, mode,
			     start_at, end_at, active, payment_status, next_billing_at, grace_until, observation)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8, $9, $10, $11)`,
			entry.ID, entry.CompanyID, entry.PlanDefinitionID, string(entry.Category), string(entry.Mode),
			entry.StartAt, entry.EndAt, string(entry.PaymentStatus),
			entry.NextBillingAt, entry.GraceUntil, entry.Observation); err != nil {
			return err
		}

		if fn != nil {
			created := entry
			created.Active = true
			return fn(&created)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return entry.ID, nil
}

// FindActiveEntitlement возвращает действующий план компании:
// active=true и дата окончания либо не задана, либо в будущем.
// Возвращает ErrNoActiveEntitlement, если такого плана нет.
func (s *Storage) FindActiveEntitlement(ctx context.Context, companyID string) (*models.Entitlement, error) {
	const op = "storage.FindActiveEntitlement"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + entitlementColumns + `
			  FROM entitlements
			  WHERE company_id = $1
			    AND active = true
			    AND (end_at IS NULL OR end_at > NOW())`
	row := s.DB.QueryRowContext(ctx, query, companyID)

	result, err := scanEntitlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveEntitlement
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ReadEntitlement возвращает план по его ID.
func (s *Storage) ReadEntitlement(ctx context.Context, id string) (*models.Entitlement, error) {
	const op = "storage.ReadEntitlement"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + entitlementColumns + ` FROM entitlements WHERE id = $1`
	result, err := scanEntitlement(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateEntitlement применяет частичное обновление плана и возвращает
// количество изменённых строк. Разрешённый набор полей ограничен
// models.EntitlementPatch; пересчёт end_at выполняет сервисный слой.
func (s *Storage) UpdateEntitlement(ctx context.Context, id string, patch models.EntitlementPatch) (int, error) {
	const op = "storage.UpdateEntitlement"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	set := "updated_at = NOW()"
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		set += fmt.Sprintf(", %s = $%d", column, len(args))
	}
	if patch.PlanDefinitionID != nil {
		add("plan_definition_id", *patch.PlanDefinitionID)
	}
	if patch.Category != nil {
		add("category", string(*patch.Category))
	}
	if patch.StartAt != nil {
		add("start_at", *patch.StartAt)
	}
	if patch.EndAt != nil {
		add("end_at", *patch.EndAt)
	}
	if patch.Observation != nil {
		add("observation", *patch.Observation)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE entitlements SET %s WHERE id = $%d`, set, len(args))
	result, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// DeactivateEntitlement снимает признак активности плана.
// Прошедшая дата окончания сохраняется, будущая или пустая заменяется
// текущим моментом. Повторный вызов для уже неактивного плана ничего
// не меняет, поэтому конкурентные прогоны сверки безопасны.
func (s *Storage) DeactivateEntitlement(ctx context.Context, id string) (int, error) {
	const op = "storage.DeactivateEntitlement"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE entitlements
			  SET active = false,
			      end_at = CASE WHEN end_at IS NOT NULL AND end_at < NOW() THEN end_at ELSE NOW() END,
			      updated_at = NOW()
			  WHERE id = $1 AND active = true`
	result, err := s.DB.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// MarkEntitlementPaid переводит план в статус PAID по событию шлюза.
// Все значения абсолютные (берутся из события), поэтому повторное
// применение того же события не меняет итоговое состояние.
func (s *Storage) MarkEntitlementPaid(ctx context.Context, id string, nextBillingAt, endAt *time.Time) (int, error) {
	const op = "storage.MarkEntitlementPaid"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE entitlements
			  SET payment_status = $1, active = true, next_billing_at = $2,
			      end_at = $3, grace_until = NULL, updated_at = NOW()
			  WHERE id = $4`
	result, err := s.DB.ExecContext(ctx, query, string(models.PaymentPaid), nextBillingAt, endAt, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// MarkEntitlementUnpaid переводит план в статус FAILED или CANCELLED,
// выставляя льготный период и дату окончания абсолютными значениями.
func (s *Storage) MarkEntitlementUnpaid(ctx context.Context, id string, status models.PaymentStatus, graceUntil, endAt *time.Time) (int, error) {
	const op = "storage.MarkEntitlementUnpaid"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE entitlements
			  SET payment_status = $1, grace_until = $2, end_at = $3, updated_at = NOW()
			  WHERE id = $4`
	result, err := s.DB.ExecContext(ctx, query, string(status), graceUntil, endAt, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// FindPendingEntitlement возвращает план компании со статусом PENDING
// для выбранного тарифа, если оформление ещё не завершено.
func (s *Storage) FindPendingEntitlement(ctx context.Context, companyID, planDefinitionID string) (*models.Entitlement, error) {
	const op = "storage.FindPendingEntitlement"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + entitlementColumns + `
			  FROM entitlements
			  WHERE company_id = $1
			    AND plan_definition_id = $2
			    AND active = true
			    AND payment_status = $3`
	row := s.DB.QueryRowContext(ctx, query, companyID, planDefinitionID, string(models.PaymentPending))
	result, err := scanEntitlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// FindGraceExpiredEntitlements находит оплачиваемые планы, у которых
// льготный период уже закончился, но план всё ещё активен.
func (s *Storage) FindGraceExpiredEntitlements(ctx context.Context) ([]*models.Entitlement, error) {
	const op = "storage.FindGraceExpiredEntitlements"
	return s.listEntitlements(ctx, op, `SELECT `+entitlementColumns+`
			  FROM entitlements
			  WHERE mode = $1
			    AND active = true
			    AND grace_until IS NOT NULL
			    AND grace_until < NOW()`, string(models.ModeCustomer))
}

// FindStalePendingEntitlements находит планы, зависшие в статусе PENDING
// дольше порога: вебхук от шлюза так и не пришёл или был потерян.
func (s *Storage) FindStalePendingEntitlements(ctx context.Context, olderThan time.Duration) ([]*models.Entitlement, error) {
	const op = "storage.FindStalePendingEntitlements"
	return s.listEntitlements(ctx, op, `SELECT `+entitlementColumns+`
			  FROM entitlements
			  WHERE payment_status = $1
			    AND active = true
			    AND created_at < NOW() - $2::interval`,
		string(models.PaymentPending), fmt.Sprintf("%f seconds", olderThan.Seconds()))
}

// FindExpiredTrialEntitlements находит пробные планы с прошедшей датой окончания.
func (s *Storage) FindExpiredTrialEntitlements(ctx context.Context) ([]*models.Entitlement, error) {
	const op = "storage.FindExpiredTrialEntitlements"
	return s.listEntitlements(ctx, op, `SELECT `+entitlementColumns+`
			  FROM entitlements
			  WHERE mode = $1
			    AND active = true
			    AND end_at IS NOT NULL
			    AND end_at < NOW()`, string(models.ModeTrial))
}

func (s *Storage) listEntitlements(ctx context.Context, op, query string, args ...any) ([]*models.Entitlement, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Entitlement
	for rows.Next() {
		item, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// FindExpiringEntitlements находит активные планы, истекающие в пределах окна,
// вместе с названием тарифа для писем-уведомлений.
func (s *Storage) FindExpiringEntitlements(ctx context.Context, window time.Duration) ([]*models.EntitlementInfo, error) {
	const op = "storage.FindExpiringEntitlements"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT e.company_id, p.name, e.end_at
			  FROM entitlements e
			  JOIN plan_definitions p ON p.id = e.plan_definition_id
			  WHERE e.active = true
			    AND e.end_at IS NOT NULL
			    AND e.end_at > NOW()
			    AND e.end_at <= NOW() + $1::interval`
	rows, err := s.DB.QueryContext(ctx, query, fmt.Sprintf("%f seconds", window.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.EntitlementInfo
	for rows.Next() {
		var si models.EntitlementInfo
		if err := rows.Scan(&si.CompanyID, &si.PlanName, &si.EndAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &si)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
