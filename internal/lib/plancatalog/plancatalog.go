// Package plancatalog содержит справочник категорий тарифных планов.
// Справочник неизменяемый: каждая категория отображается ровно в одну
// длительность в днях, отсутствие отображения — ошибка программирования.
package plancatalog

import (
	"fmt"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// Unbounded обозначает план без ограничения по времени.
const Unbounded = -1

var durations = map[models.PlanCategory]int{
	models.CategorySevenDays:   7,
	models.CategoryFifteenDays: 15,
	models.CategoryThirtyDays:  30,
	models.CategorySixtyDays:   60,
	models.CategoryNinetyDays:  90,
	models.CategoryPartner:     Unbounded,
}

// DurationOf возвращает длительность категории в днях либо Unbounded.
// Паникует на неизвестной категории: справочник полный по построению,
// и такая ошибка означает рассинхронизацию кода, а не ошибку данных.
func DurationOf(category models.PlanCategory) int {
	days, ok := durations[category]
	if !ok {
		panic(fmt.Sprintf("plancatalog: unknown plan category %q", category))
	}
	return days
}

// CategoryOf возвращает категорию по длительности в днях.
// Паникует, если длительности нет в справочнике.
func CategoryOf(days int) models.PlanCategory {
	for category, d := range durations {
		if d == days {
			return category
		}
	}
	panic(fmt.Sprintf("plancatalog: no plan category for duration %d", days))
}

// IsKnown сообщает, зарегистрирована ли категория в справочнике.
// Используется при валидации внешних данных, где паника неуместна.
func IsKnown(category models.PlanCategory) bool {
	_, ok := durations[category]
	return ok
}
