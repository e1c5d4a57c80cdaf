package webhookreceive

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

	"github.com/magabrotheeeer/entitlement-engine/internal/lib/signature"
)

// MockService реализует интерфейс webhookreceive.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Process(ctx context.Context, body []byte) error {
	args := m.Called(ctx, body)
	return args.Error(0)
}

const secret = "webhook-secret"

const eventBody = `{"id":"evt-1","event":"payment.approved","object":{"metadata":{"entitlement_id":"ent-1"}}}`

func TestWebhookHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		body           string
		signature      string
		secret         string
		setupMock      func(*MockService)
		expectedStatus int
	}{
		{
			name:      "валидная подпись",
			body:      eventBody,
			signature: signature.Sign([]byte(eventBody), secret),
			secret:    secret,
			setupMock: func(m *MockService) {
				m.On("Process", mock.Anything, []byte(eventBody)).Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "отсутствует подпись",
			body:           eventBody,
			signature:      "",
			secret:         secret,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "подпись от другого секрета",
			body:           eventBody,
			signature:      signature.Sign([]byte(eventBody), "wrong-secret"),
			secret:         secret,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:      "проверка отключена без секрета",
			body:      eventBody,
			signature: "",
			secret:    "",
			setupMock: func(m *MockService) {
				m.On("Process", mock.Anything, []byte(eventBody)).Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:      "ошибка до записи события",
			body:      eventBody,
			signature: signature.Sign([]byte(eventBody), secret),
			secret:    secret,
			setupMock: func(m *MockService) {
				m.On("Process", mock.Anything, mock.Anything).Return(errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			tt.setupMock(service)
			handler := New(logger, service, tt.secret)

			req := httptest.NewRequest(http.MethodPost, "/subscriptions/webhook", strings.NewReader(tt.body))
			if tt.signature != "" {
				req.Header.Set(SignatureHeader, tt.signature)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			service.AssertExpectations(t)
		})
	}
}
