package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/paymentgateway"
	checkoutsvc "github.com/magabrotheeeer/entitlement-engine/internal/services/checkout"
)

// MockService реализует интерфейс checkout.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Start(ctx context.Context, req models.DummyCheckout) (*models.CheckoutResult, error) {
	args := m.Called(ctx, req)
	if res := args.Get(0); res != nil {
		return res.(*models.CheckoutResult), args.Error(1)
	}
	return nil, args.Error(1)
}

const validBody = `{
	"company_id": "2fa85f64-5717-4562-b3fc-2c963f66afa6",
	"plan_definition_id": "3fa85f64-5717-4562-b3fc-2c963f66afa6",
	"payment_method": "card",
	"payment_model": "recurring"
}`

func TestCheckoutHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешное оформление",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("Start", mock.Anything, mock.AnythingOfType("models.DummyCheckout")).
					Return(&models.CheckoutResult{
						EntitlementID: "ent-1",
						RedirectURL:   "https://gateway.example/pay/1",
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   `"redirect_url":"https://gateway.example/pay/1"`,
		},
		{
			name: "пробный период без способа оплаты",
			body: `{
				"company_id": "2fa85f64-5717-4562-b3fc-2c963f66afa6",
				"plan_definition_id": "3fa85f64-5717-4562-b3fc-2c963f66afa6",
				"payment_model": "trial"
			}`,
			setupMock: func(m *MockService) {
				m.On("Start", mock.Anything, mock.MatchedBy(func(req models.DummyCheckout) bool {
					return req.PaymentModel == "trial" && req.PaymentMethod == ""
				})).Return(&models.CheckoutResult{EntitlementID: "ent-trial"}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   `"entitlement_id":"ent-trial"`,
		},
		{
			name:           "некорректный JSON",
			body:           "{broken",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"invalid request body"`,
		},
		{
			name: "неизвестный способ оплаты",
			body: `{
				"company_id": "2fa85f64-5717-4562-b3fc-2c963f66afa6",
				"plan_definition_id": "3fa85f64-5717-4562-b3fc-2c963f66afa6",
				"payment_method": "cash",
				"payment_model": "one_off"
			}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `PaymentMethod`,
		},
		{
			name: "повторное оформление",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("Start", mock.Anything, mock.Anything).
					Return(nil, checkoutsvc.ErrCheckoutConflict)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"error":"checkout already in progress"`,
		},
		{
			name: "шлюз недоступен",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("Start", mock.Anything, mock.Anything).
					Return(nil, paymentgateway.ErrGatewayUnavailable)
			},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `"error":"payment gateway unavailable"`,
		},
		{
			name: "внутренняя ошибка",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("Start", mock.Anything, mock.Anything).
					Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"error":"could not start checkout"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			tt.setupMock(service)
			handler := New(logger, service)

			req := httptest.NewRequest(http.MethodPost, "/subscriptions/checkout", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			service.AssertExpectations(t)
		})
	}
}
