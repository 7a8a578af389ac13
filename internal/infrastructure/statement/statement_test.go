package statement

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/marketrelay/backend/internal/infrastructure/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var (
	periodStart = time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	closedAt    = time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
)

type MockBatchReader struct {
	mock.Mock
}

func (m *MockBatchReader) Get(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.SettlementBatch), args.Error(1)
}

func (m *MockBatchReader) ListCommissions(ctx context.Context, tenantID, id uuid.UUID) ([]commission.Commission, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]commission.Commission), args.Error(1)
}

func confirmed(tenantID, partnerID uuid.UUID, orderAmount, amount string) commission.Commission {
	return commission.Commission{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		ConversionID:        "relay:TAOBAO:" + uuid.NewString()[:8],
		PartnerID:           partnerID,
		OrderID:             uuid.New(),
		OrderDate:           periodStart.Add(36 * time.Hour),
		ReferralCode:        "SPRING",
		Status:              commission.StatusConfirmed,
		OrderAmount:         decimal.RequireFromString(orderAmount),
		CommissionAmount:    decimal.RequireFromString(amount),
		CommissionRate:      decimal.RequireFromString("0.1"),
		Currency:            "CNY",
	}
}

func closedBatch(t *testing.T) (*settlement.SettlementBatch, []commission.Commission) {
	t.Helper()
	tenantID := uuid.New()
	payee := settlement.Payee{Type: settlement.SettlementTypePartner, ID: uuid.New()}
	b, err := settlement.NewSettlementBatch(tenantID, payee, settlement.Period{Start: periodStart, End: periodEnd}, "CNY", closedAt)
	require.NoError(t, err)

	commissions := []commission.Commission{
		confirmed(tenantID, payee.ID, "100", "10"),
		confirmed(tenantID, payee.ID, "50.5", "5.05"),
	}
	summary, err := b.Summarize(commissions)
	require.NoError(t, err)
	require.NoError(t, b.Close(summary, decimal.RequireFromString("0.05"), closedAt))
	b.ClearDomainEvents()
	return b, commissions
}

func TestBuildWorkbook(t *testing.T) {
	b, commissions := closedBatch(t)

	data, err := BuildWorkbook(b, commissions)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, CommissionsSheet}, f.GetSheetList())

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Batch Number", b.BatchNumber}, summary[0])
	assert.Equal(t, []string{"Settlement Type", "Partner"}, summary[1])
	assert.Equal(t, []string{"Period", "2026-02-23 to 2026-03-01"}, summary[3])
	assert.Equal(t, []string{"Commission Count", "2"}, summary[7])
	assert.Equal(t, []string{"Total Order Amount", "150.50"}, summary[8])
	assert.Equal(t, []string{"Commission Amount", "15.05"}, summary[9])
	assert.Equal(t, []string{"Net Amount", b.NetAmount.StringFixed(2)}, summary[11])

	rows, err := f.GetRows(CommissionsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Commission ID", rows[0][0])
	assert.Equal(t, commissions[1].ID.String(), rows[2][0])
	assert.Equal(t, "2026-02-24", rows[2][3])
	assert.Equal(t, "5.05", rows[2][7])
	assert.Equal(t, "CONFIRMED", rows[2][9])
}

func TestBuildWorkbook_EmptyBatch(t *testing.T) {
	b, err := settlement.NewSettlementBatch(uuid.New(), settlement.Payee{Type: settlement.SettlementTypeSeller, ID: uuid.New()},
		settlement.Period{Start: periodStart, End: periodEnd}, "", closedAt)
	require.NoError(t, err)
	require.NoError(t, b.Close(settlement.Summary{TotalAmount: decimal.Zero, CommissionAmount: decimal.Zero}, decimal.Zero, closedAt))

	data, err := BuildWorkbook(b, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(CommissionsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExporter_HandleUploadsOnce(t *testing.T) {
	b, commissions := closedBatch(t)
	reader := new(MockBatchReader)
	store := storage.NewMemory()
	exporter := NewExporter(reader, store, "statements", nil)

	reader.On("Get", mock.Anything, b.TenantID, b.ID).Return(b, nil)
	reader.On("ListCommissions", mock.Anything, b.TenantID, b.ID).Return(commissions, nil).Once()

	evt := settlement.NewSettlementBatchClosedEvent(b)
	require.NoError(t, exporter.Handle(context.Background(), evt))
	require.NoError(t, exporter.Handle(context.Background(), evt))

	key := "statements/" + b.TenantID.String() + "/" + b.BatchNumber + ".xlsx"
	obj, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, ContentType, obj.ContentType)
	assert.NotEmpty(t, obj.Body)
	reader.AssertExpectations(t)

	url, _, err := exporter.DownloadURL(context.Background(), b.TenantID, b.ID, time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, key)
}

func TestExporter_RejectsOpenBatch(t *testing.T) {
	b, err := settlement.NewSettlementBatch(uuid.New(), settlement.Payee{Type: settlement.SettlementTypePartner, ID: uuid.New()},
		settlement.Period{Start: periodStart, End: periodEnd}, "CNY", closedAt)
	require.NoError(t, err)
	reader := new(MockBatchReader)
	reader.On("Get", mock.Anything, b.TenantID, b.ID).Return(b, nil)

	_, err = NewExporter(reader, storage.NewMemory(), "", nil).Export(context.Background(), b.TenantID, b.ID)
	sc, ok := shared.IsStateConflict(err)
	require.True(t, ok)
	assert.Equal(t, "OPEN", sc.CurrentState)
}

func TestExporter_DownloadURLBeforeExport(t *testing.T) {
	b, _ := closedBatch(t)
	reader := new(MockBatchReader)
	reader.On("Get", mock.Anything, b.TenantID, b.ID).Return(b, nil)

	_, _, err := NewExporter(reader, storage.NewMemory(), "s", nil).DownloadURL(context.Background(), b.TenantID, b.ID, time.Minute)
	assert.True(t, IsNotGenerated(err))
}

func TestExporter_PropagatesLoadError(t *testing.T) {
	reader := new(MockBatchReader)
	reader.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(nil, shared.ErrNotFound)

	_, err := NewExporter(reader, storage.NewMemory(), "s", nil).Export(context.Background(), uuid.New(), uuid.New())
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestExporter_Subscription(t *testing.T) {
	e := NewExporter(nil, nil, "", nil)
	assert.Equal(t, []string{settlement.EventTypeSettlementBatchClosed}, e.EventTypes())
	assert.Equal(t, "settlement_statement", e.HandlerName())
}
