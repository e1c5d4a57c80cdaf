package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) RecordGatewayEvent(ctx context.Context, eventID string, payload []byte) (bool, error) {
	args := m.Called(ctx, eventID, payload)
	return args.Bool(0), args.Error(1)
}

func (m *RepoMock) GatewayEventProcessed(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *RepoMock) MarkGatewayEventProcessed(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *RepoMock) ReadEntitlement(ctx context.Context, id string) (*models.Entitlement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entitlement), args.Error(1)
}

func (m *RepoMock) MarkEntitlementPaid(ctx context.Context, id string, nextBillingAt, endAt *time.Time) (int, error) {
	args := m.Called(ctx, id, nextBillingAt, endAt)
	return args.Int(0), args.Error(1)
}

func (m *RepoMock) MarkEntitlementUnpaid(ctx context.Context, id string, status models.PaymentStatus, graceUntil, endAt *time.Time) (int, error) {
	args := m.Called(ctx, id, status, graceUntil, endAt)
	return args.Int(0), args.Error(1)
}

func (m *RepoMock) DeactivateEntitlement(ctx context.Context, id string) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *RepoMock) DemoteAllPostings(ctx context.Context, companyID string) (int, error) {
	args := m.Called(ctx, companyID)
	return args.Int(0), args.Error(1)
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

func eventBody(eventID, event, entitlementID string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"event":%q,"object":{"id":"gw-obj","status":"done","metadata":{"entitlement_id":%q}}}`,
		eventID, event, entitlementID))
}

func newService(repo *RepoMock, cacheMock *CacheMock) *Service {
	svc := New(repo, cacheMock, 72*time.Hour, discardLogger())
	svc.now = func() time.Time {
		return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestProcess_PaymentApproved(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, cacheMock)

	body := eventBody("evt-1", "payment.approved", "ent-1")
	repo.On("RecordGatewayEvent", mock.Anything, "evt-1", body).Return(true, nil)
	repo.On("ReadEntitlement", mock.Anything, "ent-1").
		Return(&models.Entitlement{
			ID:            "ent-1",
			CompanyID:     "company-1",
			Category:      models.CategoryThirtyDays,
			Mode:          models.ModeCustomer,
			PaymentStatus: models.PaymentPending,
		}, nil)
	wantEnd := time.Date(2025, 4, 9, 12, 0, 0, 0, time.UTC)
	repo.On("MarkEntitlementPaid", mock.Anything, "ent-1", (*time.Time)(nil), mock.MatchedBy(func(endAt *time.Time) bool {
		return endAt != nil && endAt.Equal(wantEnd)
	})).Return(1, nil)
	repo.On("MarkGatewayEventProcessed", mock.Anything, "evt-1").Return(nil)
	cacheMock.On("Invalidate", "entitlement:active:company-1").Return(nil)

	err := svc.Process(context.Background(), body)
	require.NoError(t, err)
	repo.AssertExpectations(t)
	cacheMock.AssertExpectations(t)
}

func TestProcess_DuplicateEventSkipped(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, cacheMock)

	body := eventBody("evt-1", "payment.approved", "ent-1")
	repo.On("RecordGatewayEvent", mock.Anything, "evt-1", body).Return(false, nil)
	repo.On("GatewayEventProcessed", mock.Anything, "evt-1").Return(true, nil)

	err := svc.Process(context.Background(), body)
	require.NoError(t, err)
	repo.AssertNotCalled(t, "ReadEntitlement", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkEntitlementPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_RecordedButUnprocessedIsRetried(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, cacheMock)

	body := eventBody("evt-1", "payment.approved", "ent-1")
	repo.On("RecordGatewayEvent", mock.Anything, "evt-1", body).Return(false, nil)
	repo.On("GatewayEventProcessed", mock.Anything, "evt-1").Return(false, nil)
	repo.On("ReadEntitlement", mock.Anything, "ent-1").
		Return(&models.Entitlement{ID: "ent-1", CompanyID: "company-1", Category: models.CategoryThirtyDays}, nil)
	repo.On("MarkEntitlementPaid", mock.Anything, "ent-1", (*time.Time)(nil), mock.Anything).Return(1, nil)
	repo.On("MarkGatewayEventProcessed", mock.Anything, "evt-1").Return(nil)
	cacheMock.On("Invalidate", mock.Anything).Return(nil)

	err := svc.Process(context.Background(), body)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProcess_RejectedPendingDeactivates(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, cacheMock)

	// Отказ по неоплаченному чекауту не должен оставить назначение
	// активным: без end_at и льготного периода его не снимет ни один
	// из проходов сверки.
	body := eventBody("evt-2", "payment.rejected", "ent-1")
	repo.On("RecordGatewayEvent", mock.Anything, "evt-2", body).Return(true, nil)
	repo.On("ReadEntitlement", mock.Anything, "ent-1").
		Return(&models.Entitlement{
			ID:            "ent-1",
			CompanyID:     "company-1",
			PaymentStatus: models.PaymentPending,
			Active:        true,
		}, nil)
	repo.On("MarkEntitlementUnpaid", mock.Anything, "ent-1", models.PaymentFailed,
		(*time.Time)(nil), (*time.Time)(nil)).Return(1, nil)
	repo.On("DeactivateEntitlement", mock.Anything, "ent-1").Return(1, nil)
	repo.On("DemoteAllPostings", mock.Anything, "company-1").Return(0, nil)
	repo.On("MarkGatewayEventProcessed", mock.Anything, "evt-2").Return(nil)
	cacheMock.On("Invalidate", "entitlement:active:company-1").Return(nil)

	err := svc.Process(context.Background(), body)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProcess_RejectedActiveGetsGracePeriod(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, cacheMock)

	wantGrace := time.Date(2025, 3, 13, 12, 0, 0, 0, time.UTC)

	body := eventBody("evt-3", "payment.rejected", "ent-1")
	repo.On("RecordGatewayEvent", mock.Anything, "evt-3", body).Return(true, nil)
	repo.On("ReadEntitlement", mock.Anything, "ent-1").
		Return(&models.Entitlement{
			ID:            "ent-1",
			CompanyID:     "company-1",
			PaymentStatus: models.PaymentPaid,
			Active:        true,
		}, nil)
	repo.On("MarkEntitlementUnpaid", mock.Anything, "ent-1", models.PaymentFailed,
		mock.MatchedBy(func(g *time.Time) bool { return g != nil && g.Equal(wantGrace) }),
		mock.MatchedBy(func(e *time.Time) bool { return e != nil && e.Equal(wantGrace) }),
	).Return(1, nil)
	repo.On("MarkGatewayEventProcessed", mock.Anything, "evt-3").Return(nil)
	cacheMock.On("Invalidate", mock.Anything).Return(nil)

	err := svc.Process(context.Background(), body)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProcess_GraceNeverShrinks(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, cacheMock)

	existing := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	body := eventBody("evt-4", "payment.rejected", "ent-1")
	repo.On("RecordGatewayEvent", mock.Anything, "evt-4", body).Return(true, nil)
	repo.On("ReadEntitlement", mock.Anything, "ent-1").
		Return(&models.Entitlement{
			ID:            "ent-1",
			CompanyID:     "company-1",
			PaymentStatus: models.PaymentFailed,
			GraceUntil:    &existing,
			Active:        true,
		}, nil)
	repo.On("MarkEntitlementUnpaid", mock.Anything, "ent-1", models.PaymentFailed,
		mock.MatchedBy(func(g *time.Time) bool { return g != nil && g.Equal(existing) }),
		mock.Anything,
	).Return(1, nil)
	repo.On("MarkGatewayEventProcessed", mock.Anything, "evt-4").Return(nil)
	cacheMock.On("Invalidate", mock.Anything).Return(nil)

	err := svc.Process(context.Background(), body)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProcess_ChargebackTerminates(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, cacheMock)

	body := eventBody("evt-5", "payment.chargeback", "ent-1")
	repo.On("RecordGatewayEvent", mock.Anything, "evt-5", body).Return(true, nil)
	repo.On("ReadEntitlement", mock.Anything, "ent-1").
		Return(&models.Entitlement{ID: "ent-1", CompanyID: "company-1", PaymentStatus: models.PaymentPaid}, nil)
	repo.On("MarkEntitlementUnpaid", mock.Anything, "ent-1", models.PaymentCancelled,
		(*time.Time)(nil), (*time.Time)(nil)).Return(1, nil)
	repo.On("DeactivateEntitlement", mock.Anything, "ent-1").Return(1, nil)
	repo.On("DemoteAllPostings", mock.Anything, "company-1").Return(3, nil)
	repo.On("MarkGatewayEventProcessed", mock.Anything, "evt-5").Return(nil)
	cacheMock.On("Invalidate", mock.Anything).Return(nil)

	err := svc.Process(context.Background(), body)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProcess_UnknownEventIsAcknowledged(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, cacheMock)

	body := eventBody("evt-6", "payout.created", "ent-1")
	repo.On("RecordGatewayEvent", mock.Anything, "evt-6", body).Return(true, nil)
	repo.On("MarkGatewayEventProcessed", mock.Anything, "evt-6").Return(nil)

	err := svc.Process(context.Background(), body)
	require.NoError(t, err)
	repo.AssertNotCalled(t, "ReadEntitlement", mock.Anything, mock.Anything)
}

func TestProcess_RecordedEventApplyFailureDeferred(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, cacheMock)

	// После записи события в журнал сбой применения не должен
	// превращаться в отказ шлюзу: событие остается с processed=false
	// и будет переиграно службой сверки.
	body := eventBody("evt-8", "payment.approved", "ent-1")
	repo.On("RecordGatewayEvent", mock.Anything, "evt-8", body).Return(true, nil)
	repo.On("ReadEntitlement", mock.Anything, "ent-1").
		Return(nil, fmt.Errorf("connection reset"))

	err := svc.Process(context.Background(), body)
	require.NoError(t, err)
	repo.AssertNotCalled(t, "MarkGatewayEventProcessed", mock.Anything, mock.Anything)
}

func TestProcess_RecordFailureIsAnError(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, cacheMock)

	body := eventBody("evt-9", "payment.approved", "ent-1")
	repo.On("RecordGatewayEvent", mock.Anything, "evt-9", body).
		Return(false, fmt.Errorf("connection reset"))

	err := svc.Process(context.Background(), body)
	require.Error(t, err)
	repo.AssertNotCalled(t, "ReadEntitlement", mock.Anything, mock.Anything)
}

func TestProcess_InvalidBody(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, cacheMock)

	err := svc.Process(context.Background(), []byte("not json"))
	require.Error(t, err)
	repo.AssertNotCalled(t, "RecordGatewayEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessRaw_Replay(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	svc := newService(repo, cacheMock)

	body := eventBody("evt-7", "payment.approved", "ent-1")
	repo.On("ReadEntitlement", mock.Anything, "ent-1").
		Return(&models.Entitlement{ID: "ent-1", CompanyID: "company-1", Category: models.CategorySevenDays}, nil)
	repo.On("MarkEntitlementPaid", mock.Anything, "ent-1", (*time.Time)(nil), mock.Anything).Return(1, nil)
	repo.On("MarkGatewayEventProcessed", mock.Anything, "evt-7").Return(nil)
	cacheMock.On("Invalidate", mock.Anything).Return(nil)

	err := svc.ProcessRaw(context.Background(), "evt-7", body)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}
