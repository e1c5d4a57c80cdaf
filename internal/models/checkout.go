package models

// PaymentModel определяет модель оплаты, выбранную при оформлении.
type PaymentModel string

const (
	// PaymentModelOneOff — разовая оплата за фиксированный период.
	PaymentModelOneOff PaymentModel = "one_off"
	// PaymentModelRecurring — регулярные списания.
	PaymentModelRecurring PaymentModel = "recurring"
	// PaymentModelTrial — бесплатный пробный период без списаний.
	PaymentModelTrial PaymentModel = "trial"
)

// DummyCheckout используется для приёма данных оформления подписки из JSON-запроса.
type DummyCheckout struct {
	CompanyID        string `json:"company_id" validate:"required,uuid"`                      // Идентификатор компании
	PlanDefinitionID string `json:"plan_definition_id" validate:"required,uuid"`              // Идентификатор плана
	PaymentMethod    string `json:"payment_method,omitempty" validate:"omitempty,oneof=card pix boleto"` // Способ оплаты, не нужен для trial
	PaymentModel     string `json:"payment_model" validate:"required,oneof=one_off recurring trial"`
	Category         string `json:"category,omitempty" validate:"omitempty,oneof=SEVEN_DAYS FIFTEEN_DAYS THIRTY_DAYS SIXTY_DAYS NINETY_DAYS"` // Категория длительности, по умолчанию THIRTY_DAYS
	SuccessURL       string `json:"success_url,omitempty" validate:"omitempty,url"` // URL возврата после оплаты
	FailureURL       string `json:"failure_url,omitempty" validate:"omitempty,url"` // URL возврата при отказе
}

// CheckoutResult содержит артефакт продолжения оплаты,
// возвращаемый клиенту после создания платёжного намерения.
type CheckoutResult struct {
	EntitlementID string `json:"entitlement_id"`
	RedirectURL   string `json:"redirect_url,omitempty"` // Ссылка на страницу оплаты
	PixPayload    string `json:"pix_payload,omitempty"`  // Код PIX для оплаты без редиректа
}

// DummyPlanChange используется для приёма данных смены плана из JSON-запроса.
type DummyPlanChange struct {
	CompanyID        string `json:"company_id" validate:"required,uuid"`
	PlanDefinitionID string `json:"plan_definition_id" validate:"required,uuid"`
}

// DummyCancel используется для приёма данных отмены подписки из JSON-запроса.
type DummyCancel struct {
	CompanyID string `json:"company_id" validate:"required,uuid"`
	Reason    string `json:"reason,omitempty"`
}
