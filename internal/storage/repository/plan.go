package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// ErrPlanNotFound возвращается при запросе несуществующего тарифного плана.
var ErrPlanNotFound = errors.New("plan definition not found")

// GetPlanDefinition возвращает тарифный план по его ID.
func (s *Storage) GetPlanDefinition(ctx context.Context, id string) (*models.PlanDefinition, error) {
	const op = "storage.GetPlanDefinition"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, name, price, job_slot_quota, featured_allowed, featured_slot_quota
			  FROM plan_definitions WHERE id = $1`
	row := s.DB.QueryRowContext(ctx, query, id)

	var result models.PlanDefinition
	err := row.Scan(&result.ID, &result.Name, &result.Price,
		&result.JobSlotQuota, &result.FeaturedAllowed, &result.FeaturedSlotQuota)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}

// ListPlanDefinitions возвращает все тарифные планы.
func (s *Storage) ListPlanDefinitions(ctx context.Context) ([]*models.PlanDefinition, error) {
	const op = "storage.ListPlanDefinitions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, name, price, job_slot_quota, featured_allowed, featured_slot_quota
			  FROM plan_definitions
			  ORDER BY price`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.PlanDefinition
	for rows.Next() {
		var item models.PlanDefinition
		if err := rows.Scan(&item.ID, &item.Name, &item.Price,
			&item.JobSlotQuota, &item.FeaturedAllowed, &item.FeaturedSlotQuota); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
