package models

// PlanCategory определяет категорию длительности тарифного плана.
// Полный перечень и соответствие длительностям хранится в lib/plancatalog.
type PlanCategory string

const (
	// CategorySevenDays — план на 7 дней.
	CategorySevenDays PlanCategory = "SEVEN_DAYS"
	// CategoryFifteenDays — план на 15 дней.
	CategoryFifteenDays PlanCategory = "FIFTEEN_DAYS"
	// CategoryThirtyDays — план на 30 дней.
	CategoryThirtyDays PlanCategory = "THIRTY_DAYS"
	// CategorySixtyDays — план на 60 дней.
	CategorySixtyDays PlanCategory = "SIXTY_DAYS"
	// CategoryNinetyDays — план на 90 дней.
	CategoryNinetyDays PlanCategory = "NINETY_DAYS"
	// CategoryPartner — партнёрский план без ограничения по времени.
	CategoryPartner PlanCategory = "PARTNER"
)

// PlanDefinition представляет покупаемый тарифный план с его квотами.
// Инвариант: FeaturedSlotQuota равен nil при FeaturedAllowed=false,
// а при наличии не превышает JobSlotQuota.
type PlanDefinition struct {
	ID                string  // Уникальный идентификатор плана
	Name              string  // Название плана
	Price             float64 // Цена плана
	JobSlotQuota      int     // Максимум одновременных вакансий
	FeaturedAllowed   bool    // Разрешены ли выделенные вакансии
	FeaturedSlotQuota *int    // Квота выделенных вакансий, nil если не разрешены
}
