// Package reconcile реализует служебный HTTP-обработчик ручного запуска
// прохода сверки. Доступен только администраторам.
package reconcile

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
)

// Handler управляет HTTP-запросами на запуск сверки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс службы сверки.
type Service interface {
	RunOnce(ctx context.Context) error
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Запустить проход сверки
// @Description Немедленно выполняет один проход сверки состояния планов. Требует роли admin.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response "Сверка выполнена"
// @Failure 401 {object} response.ErrorResponse "Не авторизован"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 500 {object} response.ErrorResponse "Ошибка сверки"
// @Router /subscriptions/reconcile [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.reconcile"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if err := h.service.RunOnce(r.Context()); err != nil {
		log.Error("reconciliation pass failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("reconciliation failed"))
		return
	}

	log.Info("reconciliation pass finished")
	render.JSON(w, r, response.OK())
}
