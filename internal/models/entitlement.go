// Package models содержит доменные структуры тарифного плана компании,
// а также вспомогательные типы для приёма данных из JSON-запросов.
package models

import "time"

// PlanMode определяет режим назначения тарифного плана.
type PlanMode string

const (
	// ModeTrial — пробный период с фиксированной длительностью.
	ModeTrial PlanMode = "TRIAL"
	// ModePartner — партнёрский план без даты окончания.
	ModePartner PlanMode = "PARTNER"
	// ModeCustomer — оплачиваемый план, управляемый событиями платёжного шлюза.
	ModeCustomer PlanMode = "CUSTOMER"
)

// PaymentStatus определяет статус оплаты тарифного плана.
type PaymentStatus string

const (
	// PaymentPending — счёт создан, оплата ещё не подтверждена шлюзом.
	PaymentPending PaymentStatus = "PENDING"
	// PaymentPaid — оплата подтверждена.
	PaymentPaid PaymentStatus = "PAID"
	// PaymentFailed — оплата отклонена.
	PaymentFailed PaymentStatus = "FAILED"
	// PaymentCancelled — оплата возвращена или подписка отменена шлюзом.
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Entitlement представляет собой назначение тарифного плана компании.
// Записи не удаляются: деактивация выставляет Active=false и фиксирует EndAt,
// история планов компании сохраняется целиком.
// Инвариант: у компании в любой момент не более одной записи с Active=true.
type Entitlement struct {
	ID               string         // Уникальный идентификатор записи
	CompanyID        string         // Идентификатор компании
	PlanDefinitionID string         // Идентификатор купленного плана
	Category         PlanCategory   // Категория длительности плана
	Mode             PlanMode       // Режим назначения плана
	StartAt          time.Time      // Дата начала действия
	EndAt            *time.Time     // Дата окончания, nil — бессрочно
	Active           bool           // Признак действующего плана
	PaymentStatus    PaymentStatus  // Статус оплаты
	NextBillingAt    *time.Time     // Дата следующего списания
	GraceUntil       *time.Time     // Дата окончания льготного периода
	Observation      string         // Свободный комментарий
	CreatedAt        time.Time      // Дата создания записи
	UpdatedAt        time.Time      // Дата последнего изменения
}

// EntitlementPatch описывает частичное обновление записи плана.
// Обновлять разрешено только перечисленные поля; nil означает "не менять".
type EntitlementPatch struct {
	PlanDefinitionID *string
	Category         *PlanCategory
	StartAt          *time.Time
	EndAt            *time.Time
	Observation      *string
}

// EntitlementInfo агрегирует данные плана для уведомлений об истечении.
type EntitlementInfo struct {
	CompanyID string
	PlanName  string
	EndAt     time.Time
}
