// Package webhookreceive реализует HTTP-обработчик уведомлений платёжного шлюза.
//
// Handler читает сырое тело запроса, проверяет подпись HMAC-SHA256 из заголовка
// X-Api-Signature и передает событие сервису обработки. После фиксации события
// в журнале обработчик отвечает 200 OK, иначе шлюз продолжит повторную доставку.
package webhookreceive

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/entitlement-engine/internal/lib/signature"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
)

// SignatureHeader — заголовок с подписью тела уведомления.
const SignatureHeader = "X-Api-Signature"

// Service описывает интерфейс обработки событий шлюза.
type Service interface {
	Process(ctx context.Context, body []byte) error
}

// Handler принимает уведомления платёжного шлюза.
type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string // Секрет для проверки подписи; пустой отключает проверку
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// ServeHTTP godoc
// @Summary Принять уведомление платёжного шлюза
// @Description Проверяет подпись уведомления и применяет событие к назначению плана. Обработка идемпотентна.
// @Tags Webhooks
// @Accept  json
// @Success 200 "Событие принято"
// @Failure 400 "Нечитаемое тело запроса"
// @Failure 401 "Неверная подпись"
// @Router /subscriptions/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.webhookreceive"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer func() { _ = r.Body.Close() }()

	if h.webhookSecret != "" {
		sig := r.Header.Get(SignatureHeader)
		if sig == "" || !signature.Verify(body, sig, h.webhookSecret) {
			log.Error("invalid or missing webhook signature")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	if err := h.service.Process(r.Context(), body); err != nil {
		log.Error("failed to process webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info("webhook processed")
	w.WriteHeader(http.StatusOK)
}
