// Package downgrade реализует HTTP-обработчик понижения тарифного плана.
//
// Помимо смены плана обработчик приводит вакансии компании к лимитам
// нового плана: излишек снимается с публикации.
package downgrade

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
	"github.com/magabrotheeeer/entitlement-engine/internal/services/planchange"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/repository"
)

// Handler управляет HTTP-запросами на понижение плана.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики понижения плана.
type Service interface {
	Downgrade(ctx context.Context, req models.DummyPlanChange) (*models.Entitlement, error)
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
// @Summary Понизить тарифный план
// @Description Переводит компанию на план с меньшими лимитами и снимает с публикации излишек вакансий.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body models.DummyPlanChange true "Данные смены плана"
// @Success 200 {object} response.Response "Новое назначение плана"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Не авторизован"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 404 {object} response.ErrorResponse "План или подписка не найдены"
// @Failure 409 {object} response.ErrorResponse "Компания уже на этом плане"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /subscriptions/downgrade [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.downgrade"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyPlanChange
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	created, err := h.service.Downgrade(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, planchange.ErrNoActivePlan):
			log.Error("no active plan", sl.Err(err))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("company has no active plan"))
		case errors.Is(err, repository.ErrPlanNotFound):
			log.Error("plan not found", sl.Err(err))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("plan not found"))
		case errors.Is(err, planchange.ErrSamePlan):
			log.Error("company already on this plan", sl.Err(err))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("company already on this plan"))
		default:
			log.Error("failed to downgrade plan", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not downgrade plan"))
		}
		return
	}

	log.Info("plan downgraded", slog.String("entitlement_id", created.ID))
	render.JSON(w, r, response.OKWithData(created))
}
