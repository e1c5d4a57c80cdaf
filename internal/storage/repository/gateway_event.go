package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// RecordGatewayEvent сохраняет событие шлюза в журнал идемпотентности.
// Возвращает false, если событие с таким ID уже было записано:
// повторная доставка не должна приводить к повторной обработке.
func (s *Storage) RecordGatewayEvent(ctx context.Context, eventID string, payload []byte) (bool, error) {
	const op = "storage.RecordGatewayEvent"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO gateway_events (event_id, payload)
			  VALUES ($1, $2)
			  ON CONFLICT (event_id) DO NOTHING`
	result, err := s.DB.ExecContext(ctx, query, eventID, payload)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// GatewayEventProcessed сообщает, было ли событие уже успешно обработано.
func (s *Storage) GatewayEventProcessed(ctx context.Context, eventID string) (bool, error) {
	const op = "storage.GatewayEventProcessed"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT processed FROM gateway_events WHERE event_id = $1`
	var processed bool
	if err := s.DB.QueryRowContext(ctx, query, eventID).Scan(&processed); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return processed, nil
}

// MarkGatewayEventProcessed отмечает событие как успешно обработанное.
func (s *Storage) MarkGatewayEventProcessed(ctx context.Context, eventID string) error {
	const op = "storage.MarkGatewayEventProcessed"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE gateway_events SET processed = true WHERE event_id = $1`
	if _, err := s.DB.ExecContext(ctx, query, eventID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListUnprocessedGatewayEvents возвращает события, обработка которых
// завершилась ошибкой. Сырые тела сохранены и пригодны для повтора.
func (s *Storage) ListUnprocessedGatewayEvents(ctx context.Context, limit int) ([]*models.GatewayEvent, error) {
	const op = "storage.ListUnprocessedGatewayEvents"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT event_id, payload, processed, received_at
			  FROM gateway_events
			  WHERE processed = false
			  ORDER BY received_at
			  LIMIT $1`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.GatewayEvent
	for rows.Next() {
		var ev models.GatewayEvent
		if err := rows.Scan(&ev.EventID, &ev.Payload, &ev.Processed, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
