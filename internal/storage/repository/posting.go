package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// Ошибки проверки квот. Числовые лимиты известны вызывающему сервису,
// поэтому здесь достаточно сигнальных значений.
var (
	// ErrJobSlotLimitReached — все слоты вакансий плана заняты.
	ErrJobSlotLimitReached = errors.New("job slot limit reached")
	// ErrFeaturedLimitReached — все слоты выделенных вакансий заняты.
	ErrFeaturedLimitReached = errors.New("featured slot limit reached")
)

// CountSlotConsuming возвращает число вакансий компании, занимающих слот
// (опубликованные и находящиеся на модерации).
func (s *Storage) CountSlotConsuming(ctx context.Context, companyID string) (int, error) {
	const op = "storage.CountSlotConsuming"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*) FROM job_postings
			  WHERE company_id = $1 AND status IN ($2, $3)`
	var count int
	err := s.DB.QueryRowContext(ctx, query, companyID,
		string(models.PostingPendingReview), string(models.PostingPublished)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// CountFeatured возвращает число выделенных вакансий компании в рамках
// конкретного плана. Смена плана начинает отсчёт выделенных слотов заново,
// поэтому выборка ограничена entitlement_id.
func (s *Storage) CountFeatured(ctx context.Context, companyID, entitlementID string) (int, error) {
	const op = "storage.CountFeatured"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*) FROM job_postings
			  WHERE company_id = $1
			    AND entitlement_id = $2
			    AND featured = true
			    AND status IN ($3, $4)`
	var count int
	err := s.DB.QueryRowContext(ctx, query, companyID, entitlementID,
		string(models.PostingPendingReview), string(models.PostingPublished)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// CountFeaturedActive возвращает число выделенных вакансий компании,
// занимающих слот, независимо от плана. Используется при даунгрейде,
// когда выделение прежнего плана нужно сверить с квотой нового.
func (s *Storage) CountFeaturedActive(ctx context.Context, companyID string) (int, error) {
	const op = "storage.CountFeaturedActive"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*) FROM job_postings
			  WHERE company_id = $1
			    AND featured = true
			    AND status IN ($2, $3)`
	var count int
	err := s.DB.QueryRowContext(ctx, query, companyID,
		string(models.PostingPendingReview), string(models.PostingPublished)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// CreatePostingChecked вставляет вакансию, предварительно проверив квоты
// плана внутри одной транзакции. Строка активного плана компании блокируется
// FOR UPDATE, поэтому подсчёт и вставка сериализованы: два конкурентных
// создания не могут оба пройти проверку и совместно превысить квоту.
func (s *Storage) CreatePostingChecked(ctx context.Context, posting models.JobPosting, jobSlotQuota int, featuredSlotQuota *int) (string, error) {
	const op = "storage.CreatePostingChecked"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if posting.ID == "" {
		posting.ID = uuid.New().String()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var entitlementID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM entitlements
			 WHERE company_id = $1 AND active = true
			 FOR UPDATE`, posting.CompanyID).Scan(&entitlementID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoActiveEntitlement
		}
		if err != nil {
			return err
		}

		var slotCount int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM job_postings
			 WHERE company_id = $1 AND status IN ($2, $3)`,
			posting.CompanyID, string(models.PostingPendingReview), string(models.PostingPublished),
		).Scan(&slotCount); err != nil {
			return err
		}
		if slotCount >= jobSlotQuota {
			return ErrJobSlotLimitReached
		}

		if posting.Featured {
			if featuredSlotQuota == nil {
				return ErrFeaturedLimitReached
			}
			var featuredCount int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM job_postings
				 WHERE company_id = $1 AND entitlement_id = $2 AND featured = true
				   AND status IN ($3, $4)`,
				posting.CompanyID, entitlementID,
				string(models.PostingPendingReview), string(models.PostingPublished),
			).Scan(&featuredCount); err != nil {
				return err
			}
			if featuredCount >= *featuredSlotQuota {
				return ErrFeaturedLimitReached
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO job_postings (id, company_id, entitlement_id, title, status, featured)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			posting.ID, posting.CompanyID, entitlementID, posting.Title,
			string(models.PostingPendingReview), posting.Featured)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return posting.ID, nil
}

// DemotePostings снимает с публикации count вакансий компании, переводя их
// в черновики. Первыми снимаются опубликованные позже остальных: так
// дольше всего видимые объявления сохраняют публикацию при даунгрейде.
// Вакансии на модерации без даты публикации снимаются раньше всех.
func (s *Storage) DemotePostings(ctx context.Context, companyID string, count int) (int, error) {
	const op = "storage.DemotePostings"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE job_postings
			  SET status = $1, featured = false
			  WHERE id IN (
			      SELECT id FROM job_postings
			      WHERE company_id = $2 AND status IN ($3, $4)
			      ORDER BY published_at DESC NULLS FIRST, created_at DESC
			      LIMIT $5
			  )`
	result, err := s.DB.ExecContext(ctx, query, string(models.PostingDraft), companyID,
		string(models.PostingPendingReview), string(models.PostingPublished), count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// DemoteFeaturedPostings снимает признак выделения с count вакансий компании,
// начиная с опубликованных позже остальных. Сами вакансии остаются в прежнем
// статусе: при даунгрейде теряется только выделение.
func (s *Storage) DemoteFeaturedPostings(ctx context.Context, companyID string, count int) (int, error) {
	const op = "storage.DemoteFeaturedPostings"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE job_postings
			  SET featured = false
			  WHERE id IN (
			      SELECT id FROM job_postings
			      WHERE company_id = $1 AND featured = true AND status IN ($2, $3)
			      ORDER BY published_at DESC NULLS FIRST, created_at DESC
			      LIMIT $4
			  )`
	result, err := s.DB.ExecContext(ctx, query, companyID,
		string(models.PostingPendingReview), string(models.PostingPublished), count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// DemoteAllPostings переводит все занимающие слот вакансии компании
// в черновики. Используется при отмене подписки, когда плана не остаётся.
func (s *Storage) DemoteAllPostings(ctx context.Context, companyID string) (int, error) {
	const op = "storage.DemoteAllPostings"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE job_postings
			  SET status = $1, featured = false
			  WHERE company_id = $2 AND status IN ($3, $4)`
	result, err := s.DB.ExecContext(ctx, query, string(models.PostingDraft), companyID,
		string(models.PostingPendingReview), string(models.PostingPublished))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
