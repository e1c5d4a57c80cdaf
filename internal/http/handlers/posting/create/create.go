// Package create реализует HTTP-обработчик создания вакансии.
//
// Handler принимает JSON-запрос с данными вакансии, валидирует их и
// вызывает бизнес-логику регистрации с атомарной проверкой лимитов плана.
// Вакансия создается в статусе pending_review и сразу занимает слот.
package create

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/services/quota"
)

// Handler управляет HTTP-запросами на создание вакансий.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики регистрации вакансии.
type Service interface {
	RegisterPosting(ctx context.Context, posting models.JobPosting) (string, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать вакансию
// @Description Создает вакансию с атомарной проверкой лимитов действующего плана компании.
// @Tags Postings
// @Accept  json
// @Produce  json
// @Param request body models.DummyPosting true "Данные вакансии"
// @Success 200 {object} response.Response "Идентификатор созданной вакансии"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 402 {object} response.ErrorResponse "Нет действующего плана"
// @Failure 403 {object} response.ErrorResponse "План не разрешает выделенные вакансии"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 409 {object} response.ErrorResponse "Лимит плана исчерпан"
// @Router /postings [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.posting.create"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyPosting
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.Any("request", req))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	posting := models.JobPosting{
		CompanyID: req.CompanyID,
		Title:     req.Title,
		Featured:  req.Featured,
	}
	id, err := h.service.RegisterPosting(r.Context(), posting)
	if err != nil {
		var quotaErr *quota.QuotaExceededError
		switch {
		case errors.Is(err, quota.ErrNoActivePlan):
			log.Error("no active plan", sl.Err(err))
			w.WriteHeader(http.StatusPaymentRequired)
			render.JSON(w, r, response.Error("company has no active plan"))
		case errors.Is(err, quota.ErrFeatureNotAllowed):
			log.Error("featured postings not allowed", sl.Err(err))
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("plan does not allow featured postings"))
		case errors.As(err, &quotaErr):
			log.Error("plan quota exceeded", sl.Err(err))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(quotaErr.Error()))
		default:
			log.Error("failed to create posting", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not create posting"))
		}
		return
	}

	log.Info("posting created", slog.String("id", id))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"posting_id": id,
	}))
}
