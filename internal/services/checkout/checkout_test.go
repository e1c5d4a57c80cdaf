package checkout

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-engine/internal/config"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/paymentgateway"
)

type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) GetPlanDefinition(ctx context.Context, id string) (*models.PlanDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlanDefinition), args.Error(1)
}

func (m *RepoMock) FindPendingEntitlement(ctx context.Context, companyID, planDefinitionID string) (*models.Entitlement, error) {
	args := m.Called(ctx, companyID, planDefinitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entitlement), args.Error(1)
}

func (m *RepoMock) CreateEntitlementWithin(ctx context.Context, entry models.Entitlement, fn func(created *models.Entitlement) error) (string, error) {
	args := m.Called(ctx, entry, fn)
	if args.Error(1) != nil {
		return "", args.Error(1)
	}
	created := entry
	created.ID = args.String(0)
	if fn != nil {
		if err := fn(&created); err != nil {
			return "", err
		}
	}
	return args.String(0), nil
}

type GatewayMock struct {
	mock.Mock
}

func (m *GatewayMock) CreateCheckout(ctx context.Context, req paymentgateway.CreateCheckoutRequest) (*paymentgateway.CreateCheckoutResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentgateway.CreateCheckoutResponse), args.Error(1)
}

type CacheMock struct {
	mock.Mock
}

func (m *CacheMock) Invalidate(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&discardWriter{}, nil))
}

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

const (
	companyID = "2fa85f64-5717-4562-b3fc-2c963f66afa6"
	planID    = "3fa85f64-5717-4562-b3fc-2c963f66afa6"
)

func newService(repo *RepoMock, gw *GatewayMock, cacheMock *CacheMock) *Service {
	cfg := config.PaymentGateway{DefaultReturnURL: "https://platform.example/billing"}
	return New(repo, gw, cacheMock, cfg, "https://platform.example", discardLogger())
}

func TestStart(t *testing.T) {
	repo := new(RepoMock)
	gw := new(GatewayMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, gw, cacheMock)

	repo.On("GetPlanDefinition", mock.Anything, planID).
		Return(&models.PlanDefinition{ID: planID, Name: "Plano 30 dias", Price: 99.9}, nil)
	repo.On("FindPendingEntitlement", mock.Anything, companyID, planID).Return(nil, nil)
	repo.On("CreateEntitlementWithin", mock.Anything, mock.AnythingOfType("models.Entitlement"), mock.Anything).
		Return("ent-1", nil)
	gw.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(req paymentgateway.CreateCheckoutRequest) bool {
		return req.Amount.Value == "99.90" &&
			req.IdempotenceKey == "ent-1" &&
			req.Metadata["entitlement_id"] == "ent-1" &&
			req.Confirmation.ReturnURL == "https://platform.example/billing"
	})).Return(&paymentgateway.CreateCheckoutResponse{
		ID:     "gw-1",
		Status: "pending",
		Confirmation: paymentgateway.Confirmation{
			Type:            "redirect",
			ConfirmationURL: "https://gateway.example/pay/gw-1",
		},
	}, nil)
	cacheMock.On("Invalidate", mock.Anything).Return(nil)

	result, err := svc.Start(context.Background(), models.DummyCheckout{
		CompanyID:        companyID,
		PlanDefinitionID: planID,
		PaymentMethod:    "card",
		PaymentModel:     "recurring",
	})
	require.NoError(t, err)
	assert.Equal(t, "ent-1", result.EntitlementID)
	assert.Equal(t, "https://gateway.example/pay/gw-1", result.RedirectURL)
	repo.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestStart_PixReturnsPayload(t *testing.T) {
	repo := new(RepoMock)
	gw := new(GatewayMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, gw, cacheMock)

	repo.On("GetPlanDefinition", mock.Anything, planID).
		Return(&models.PlanDefinition{ID: planID, Name: "Plano PIX", Price: 50}, nil)
	repo.On("FindPendingEntitlement", mock.Anything, companyID, planID).Return(nil, nil)
	repo.On("CreateEntitlementWithin", mock.Anything, mock.Anything, mock.Anything).
		Return("ent-2", nil)
	gw.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(req paymentgateway.CreateCheckoutRequest) bool {
		return req.Confirmation.Type == "pix"
	})).Return(&paymentgateway.CreateCheckoutResponse{
		ID: "gw-2",
		Confirmation: paymentgateway.Confirmation{
			Type:       "pix",
			PixPayload: "00020126580014br.gov.bcb.pix",
		},
	}, nil)
	cacheMock.On("Invalidate", mock.Anything).Return(nil)

	result, err := svc.Start(context.Background(), models.DummyCheckout{
		CompanyID:        companyID,
		PlanDefinitionID: planID,
		PaymentMethod:    "pix",
		PaymentModel:     "one_off",
	})
	require.NoError(t, err)
	assert.Empty(t, result.RedirectURL)
	assert.Equal(t, "00020126580014br.gov.bcb.pix", result.PixPayload)
}

func TestStart_TrialActivatesWithoutGateway(t *testing.T) {
	repo := new(RepoMock)
	gw := new(GatewayMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, gw, cacheMock)

	repo.On("GetPlanDefinition", mock.Anything, planID).
		Return(&models.PlanDefinition{ID: planID, Name: "Plano Trial"}, nil)
	repo.On("FindPendingEntitlement", mock.Anything, companyID, planID).Return(nil, nil)
	repo.On("CreateEntitlementWithin", mock.Anything, mock.MatchedBy(func(entry models.Entitlement) bool {
		return entry.Mode == models.ModeTrial &&
			entry.PaymentStatus == models.PaymentPaid &&
			entry.EndAt != nil &&
			entry.EndAt.Equal(entry.StartAt.AddDate(0, 0, 7))
	}), mock.Anything).Return("ent-trial", nil)
	cacheMock.On("Invalidate", mock.Anything).Return(nil)

	result, err := svc.Start(context.Background(), models.DummyCheckout{
		CompanyID:        companyID,
		PlanDefinitionID: planID,
		PaymentModel:     "trial",
		Category:         string(models.CategorySevenDays),
	})
	require.NoError(t, err)
	assert.Equal(t, "ent-trial", result.EntitlementID)
	assert.Empty(t, result.RedirectURL)
	gw.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestStart_PaidModelRequiresPaymentMethod(t *testing.T) {
	repo := new(RepoMock)
	gw := new(GatewayMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, gw, cacheMock)

	repo.On("GetPlanDefinition", mock.Anything, planID).
		Return(&models.PlanDefinition{ID: planID, Name: "Plano"}, nil)
	repo.On("FindPendingEntitlement", mock.Anything, companyID, planID).Return(nil, nil)

	_, err := svc.Start(context.Background(), models.DummyCheckout{
		CompanyID:        companyID,
		PlanDefinitionID: planID,
		PaymentModel:     "one_off",
	})
	require.ErrorIs(t, err, ErrPaymentMethodRequired)
	gw.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
}

func TestStart_PendingConflict(t *testing.T) {
	repo := new(RepoMock)
	gw := new(GatewayMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, gw, cacheMock)

	repo.On("GetPlanDefinition", mock.Anything, planID).
		Return(&models.PlanDefinition{ID: planID, Name: "Plano"}, nil)
	repo.On("FindPendingEntitlement", mock.Anything, companyID, planID).
		Return(&models.Entitlement{ID: "ent-old", PaymentStatus: models.PaymentPending}, nil)

	_, err := svc.Start(context.Background(), models.DummyCheckout{
		CompanyID:        companyID,
		PlanDefinitionID: planID,
		PaymentMethod:    "card",
		PaymentModel:     "one_off",
	})
	require.ErrorIs(t, err, ErrCheckoutConflict)
	gw.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
}

func TestStart_GatewayFailureRollsBack(t *testing.T) {
	repo := new(RepoMock)
	gw := new(GatewayMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, gw, cacheMock)

	repo.On("GetPlanDefinition", mock.Anything, planID).
		Return(&models.PlanDefinition{ID: planID, Name: "Plano"}, nil)
	repo.On("FindPendingEntitlement", mock.Anything, companyID, planID).Return(nil, nil)
	repo.On("CreateEntitlementWithin", mock.Anything, mock.Anything, mock.Anything).
		Return("ent-3", nil)
	gw.On("CreateCheckout", mock.Anything, mock.Anything).
		Return(nil, paymentgateway.ErrGatewayUnavailable).Twice()

	_, err := svc.Start(context.Background(), models.DummyCheckout{
		CompanyID:        companyID,
		PlanDefinitionID: planID,
		PaymentMethod:    "card",
		PaymentModel:     "one_off",
	})
	require.ErrorIs(t, err, paymentgateway.ErrGatewayUnavailable)
	gw.AssertNumberOfCalls(t, "CreateCheckout", 2)
	cacheMock.AssertNotCalled(t, "Invalidate", mock.Anything)
}
