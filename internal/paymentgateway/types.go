package paymentgateway

// Amount представляет денежную сумму в формате шлюза.
type Amount struct {
	Value    string `json:"value"`    // Сумма строкой, например "100.00"
	Currency string `json:"currency"` // Валюта
}

// Confirmation описывает способ продолжения оплаты.
// Для карт это редирект на страницу шлюза, для PIX — готовый код.
type Confirmation struct {
	Type            string `json:"type"`                       // redirect | pix
	ReturnURL       string `json:"return_url,omitempty"`       // Куда вернуть плательщика
	ConfirmationURL string `json:"confirmation_url,omitempty"` // Ссылка на страницу оплаты
	PixPayload      string `json:"pix_payload,omitempty"`      // Код PIX
}

// CreateCheckoutRequest — запрос на создание платёжного намерения.
// IdempotenceKey передается заголовком и должен быть одинаковым при
// повторе одного и того же оформления, чтобы шлюз не создал второе
// намерение.
type CreateCheckoutRequest struct {
	IdempotenceKey string            `json:"-"`
	Amount         Amount            `json:"amount"`
	PaymentMethod  string            `json:"payment_method"` // card | pix | boleto
	Recurring      bool              `json:"recurring"`      // Регулярные списания
	Description    string            `json:"description,omitempty"`
	Confirmation   Confirmation      `json:"confirmation"`
	Metadata       map[string]string `json:"metadata,omitempty"` // entitlement_id, company_id и др.
}

// CreateCheckoutResponse — ответ шлюза на создание платёжного намерения.
type CreateCheckoutResponse struct {
	ID           string       `json:"id"`     // Идентификатор платежа на стороне шлюза
	Status       string       `json:"status"` // pending на момент создания
	Amount       Amount       `json:"amount"`
	Confirmation Confirmation `json:"confirmation"`
}
