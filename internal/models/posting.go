package models

import "time"

// PostingStatus определяет статус вакансии компании.
type PostingStatus string

const (
	// PostingDraft — черновик, слот не занимает.
	PostingDraft PostingStatus = "draft"
	// PostingPendingReview — на модерации, слот занимает.
	PostingPendingReview PostingStatus = "pending_review"
	// PostingPublished — опубликована, слот занимает.
	PostingPublished PostingStatus = "published"
	// PostingClosed — закрыта, слот не занимает.
	PostingClosed PostingStatus = "closed"
)

// SlotConsumingStatuses перечисляет статусы вакансий, занимающих слот квоты.
var SlotConsumingStatuses = []PostingStatus{PostingPendingReview, PostingPublished}

// JobPosting представляет вакансию в объёме, необходимом для учёта квот.
// Полный CRUD вакансий живёт в основной платформе; здесь хранится только то,
// что нужно для подсчёта занятых слотов и каскадного снятия с публикации.
type JobPosting struct {
	ID            string        // Уникальный идентификатор вакансии
	CompanyID     string        // Идентификатор компании
	EntitlementID *string       // План, в рамках которого вакансия выделена
	Title         string        // Заголовок вакансии
	Status        PostingStatus // Текущий статус
	Featured      bool          // Признак выделенной вакансии
	PublishedAt   *time.Time    // Дата публикации
	CreatedAt     time.Time     // Дата создания
}

// DummyPosting используется для приёма данных регистрации вакансии из JSON-запроса.
type DummyPosting struct {
	CompanyID string `json:"company_id" validate:"required,uuid"` // Идентификатор компании
	Title     string `json:"title" validate:"required"`           // Заголовок вакансии
	Featured  bool   `json:"featured"`                            // Признак выделенной вакансии
}
