// Package active реализует HTTP-обработчик чтения действующего плана компании.
package active

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/repository"
)

// Handler управляет HTTP-запросами на чтение действующего плана.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики чтения плана.
type Service interface {
	FindActive(ctx context.Context, companyID string) (*models.Entitlement, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Получить действующий план компании
// @Description Возвращает активное назначение плана. Просроченные планы не возвращаются.
// @Tags Subscriptions
// @Produce  json
// @Param companyID path string true "Идентификатор компании"
// @Success 200 {object} response.Response "Действующее назначение плана"
// @Failure 400 {object} response.ErrorResponse "Некорректный идентификатор"
// @Failure 404 {object} response.ErrorResponse "Нет действующего плана"
// @Router /subscriptions/active/{companyID} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.active"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	companyID := chi.URLParam(r, "companyID")
	if _, err := uuid.Parse(companyID); err != nil {
		log.Error("invalid company id", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid company id"))
		return
	}

	result, err := h.service.FindActive(r.Context(), companyID)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveEntitlement) {
			log.Info("no active plan", slog.String("company_id", companyID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("company has no active plan"))
			return
		}
		log.Error("failed to read active plan", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read active plan"))
		return
	}

	render.JSON(w, r, response.OKWithData(result))
}
