// Package enddate вычисляет дату окончания действия тарифного плана.
// Функции пакета чистые и детерминированные: результат зависит только
// от аргументов, что позволяет проверять правила табличными тестами.
package enddate

import (
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// DefaultTrialDays — минимальная длительность пробного периода в днях.
const DefaultTrialDays = 7

// Options содержит необязательные входные данные расчёта.
type Options struct {
	TrialDays     int        // Запрошенная длительность пробного периода, 0 — не задана
	NextBillingAt *time.Time // Дата следующего списания
	GraceUntil    *time.Time // Дата окончания льготного периода
}

// Compute возвращает дату окончания плана либо nil для бессрочного.
//
// Правила:
//   - TRIAL: startAt + max(TrialDays, DefaultTrialDays);
//   - PARTNER: nil, отзыв партнёрского плана выполняется явно;
//   - CUSTOMER: max(NextBillingAt, GraceUntil) из переданных дат —
//     льготный период, если он позже даты списания, побеждает,
//     чтобы компания не была отключена раньше явно выданной отсрочки;
//     без обеих дат план открытый и управляется событиями оплаты.
func Compute(mode models.PlanMode, startAt time.Time, opts Options) *time.Time {
	switch mode {
	case models.ModeTrial:
		days := opts.TrialDays
		if days < DefaultTrialDays {
			days = DefaultTrialDays
		}
		end := startAt.AddDate(0, 0, days)
		return &end
	case models.ModePartner:
		return nil
	case models.ModeCustomer:
		return latest(opts.NextBillingAt, opts.GraceUntil)
	}
	return nil
}

func latest(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.After(*a) {
		return b
	}
	return a
}
