package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBatchRepo keeps batches in memory and enforces the conditional
// OPEN -> CLOSED update the real repository performs
type fakeBatchRepo struct {
	mu         sync.Mutex
	batches    map[uuid.UUID]settlement.SettlementBatch
	settleable map[uuid.UUID][]commission.Commission
	keys       map[settlement.SettlementType][]settlement.PayeeKey
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{
		batches:    make(map[uuid.UUID]settlement.SettlementBatch),
		settleable: make(map[uuid.UUID][]commission.Commission),
		keys:       make(map[settlement.SettlementType][]settlement.PayeeKey),
	}
}

func (f *fakeBatchRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok || b.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return &b, nil
}

func (f *fakeBatchRepo) FindAll(context.Context, uuid.UUID, settlement.Filter) ([]settlement.SettlementBatch, int64, error) {
	return nil, 0, nil
}

func (f *fakeBatchRepo) FindActive(_ context.Context, tenantID uuid.UUID, payee settlement.Payee, period settlement.Period, currency string) (*settlement.SettlementBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.batches {
		if b.TenantID == tenantID && b.Payee == payee && b.Period == period && b.Currency == currency && b.Status != settlement.StatusCancelled {
			found := b
			return &found, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeBatchRepo) Create(ctx context.Context, b *settlement.SettlementBatch) error {
	if _, err := f.FindActive(ctx, b.TenantID, b.Payee, b.Period, b.Currency); err == nil {
		return shared.ErrAlreadyExists
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[b.ID] = *b
	return nil
}

func (f *fakeBatchRepo) FindSettleable(_ context.Context, _ uuid.UUID, payee settlement.Payee, _ settlement.Period, currency string) ([]commission.Commission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found []commission.Commission
	for _, c := range f.settleable[payee.ID] {
		if c.Currency == currency {
			found = append(found, c)
		}
	}
	return found, nil
}

func (f *fakeBatchRepo) FindCommissions(context.Context, uuid.UUID, uuid.UUID) ([]commission.Commission, error) {
	return nil, nil
}

func (f *fakeBatchRepo) CloseWithCommissions(_ context.Context, b *settlement.SettlementBatch, _ []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batches[b.ID].Status != settlement.StatusOpen {
		return settlement.ErrTransitionLost
	}
	f.batches[b.ID] = *b
	var rest []commission.Commission
	for _, c := range f.settleable[b.Payee.ID] {
		if c.Currency != b.Currency {
			rest = append(rest, c)
		}
	}
	f.settleable[b.Payee.ID] = rest
	return nil
}

func (f *fakeBatchRepo) SaveTransition(_ context.Context, b *settlement.SettlementBatch, from settlement.Status, _ settlement.CommissionEffect, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batches[b.ID].Status != from {
		return settlement.ErrTransitionLost
	}
	f.batches[b.ID] = *b
	return nil
}

func (f *fakeBatchRepo) ListPayeesWithSettleable(_ context.Context, settlementType settlement.SettlementType, _ settlement.Period) ([]settlement.PayeeKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[settlementType], nil
}

func settleableFor(t *testing.T, tenantID uuid.UUID, payee settlement.Payee, currency string, amount int64) commission.Commission {
	t.Helper()
	event := commission.ConversionEvent{
		ConversionID: "relay:MEMORY:" + uuid.NewString()[:8],
		TenantID:     tenantID,
		PartnerID:    uuid.New(),
		OrderID:      uuid.New(),
		OrderDate:    testPeriod.Start.Add(36 * time.Hour),
		OrderAmount:  decimal.NewFromInt(amount),
		Currency:     currency,
	}
	switch payee.Type {
	case settlement.SettlementTypePartner:
		event.PartnerID = payee.ID
	case settlement.SettlementTypeSeller:
		event.SellerID = &payee.ID
	case settlement.SettlementTypeSupplier:
		event.SupplierID = &payee.ID
	}
	c, err := commission.NewCommission(event, &commission.Policy{
		ID: "default", Type: commission.PolicyTypeFlatRate, Rate: decimal.RequireFromString("0.1"),
	}, testPeriod.Start)
	require.NoError(t, err)
	require.NoError(t, c.Confirm(testPeriod.Start.Add(48*time.Hour)))
	c.ClearDomainEvents()
	return *c
}

func TestService_ClosePreviousPeriod(t *testing.T) {
	repo := newFakeBatchRepo()
	svc := NewService(repo, Config{PeriodLength: settlement.PeriodWeekly}, nil)
	svc.SetClock(func() time.Time { return testNow })
	ctx := context.Background()
	tenantID := uuid.New()

	// A: no batch yet. B: already OPEN. C: closed earlier by an operator. D: owed in two currencies.
	payeeA := settlement.Payee{Type: settlement.SettlementTypePartner, ID: uuid.New()}
	payeeB := settlement.Payee{Type: settlement.SettlementTypePartner, ID: uuid.New()}
	payeeC := settlement.Payee{Type: settlement.SettlementTypePartner, ID: uuid.New()}
	payeeD := settlement.Payee{Type: settlement.SettlementTypeSeller, ID: uuid.New()}

	repo.settleable[payeeA.ID] = []commission.Commission{settleableFor(t, tenantID, payeeA, "CNY", 200)}
	repo.settleable[payeeB.ID] = []commission.Commission{settleableFor(t, tenantID, payeeB, "CNY", 300)}
	repo.settleable[payeeD.ID] = []commission.Commission{
		settleableFor(t, tenantID, payeeD, "CNY", 100),
		settleableFor(t, tenantID, payeeD, "USD", 100),
	}
	repo.keys[settlement.SettlementTypePartner] = []settlement.PayeeKey{
		{TenantID: tenantID, Payee: payeeA, Currency: "CNY"},
		{TenantID: tenantID, Payee: payeeB, Currency: "CNY"},
		{TenantID: tenantID, Payee: payeeC, Currency: "CNY"},
	}
	repo.keys[settlement.SettlementTypeSeller] = []settlement.PayeeKey{
		{TenantID: tenantID, Payee: payeeD, Currency: "CNY"},
		{TenantID: tenantID, Payee: payeeD, Currency: "USD"},
	}

	existingB, err := svc.OpenBatch(ctx, OpenBatchCommand{TenantID: tenantID, Payee: payeeB, Period: testPeriod})
	require.NoError(t, err)
	closedC, err := settlement.NewSettlementBatch(tenantID, payeeC, testPeriod, "CNY", testNow)
	require.NoError(t, err)
	closedC.Status = settlement.StatusClosed
	require.NoError(t, repo.Create(ctx, closedC))

	summary, err := svc.ClosePreviousPeriod(ctx)

	require.NoError(t, err)
	assert.Equal(t, testPeriod, summary.Period)
	assert.Equal(t, PeriodCloseSummary{Period: testPeriod, Payees: 5, Opened: 3, Closed: 4, Skipped: 1, Failed: 0}, summary)

	batchA, err := repo.FindActive(ctx, tenantID, payeeA, testPeriod, "CNY")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusClosed, batchA.Status)
	assert.True(t, decimal.NewFromInt(20).Equal(batchA.CommissionAmount))

	batchB, err := repo.FindByID(ctx, tenantID, existingB.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusClosed, batchB.Status)

	for _, currency := range []string{"CNY", "USD"} {
		batchD, err := repo.FindActive(ctx, tenantID, payeeD, testPeriod, currency)
		require.NoError(t, err, currency)
		assert.Equal(t, settlement.StatusClosed, batchD.Status, currency)
		assert.Equal(t, 1, batchD.CommissionCount, currency)
	}
}

func TestService_ClosePreviousPeriod_RerunIsNoop(t *testing.T) {
	repo := newFakeBatchRepo()
	svc := NewService(repo, Config{PeriodLength: settlement.PeriodWeekly}, nil)
	svc.SetClock(func() time.Time { return testNow })
	tenantID := uuid.New()
	payee := settlement.Payee{Type: settlement.SettlementTypePartner, ID: uuid.New()}
	repo.settleable[payee.ID] = []commission.Commission{settleableFor(t, tenantID, payee, "CNY", 50)}
	repo.keys[settlement.SettlementTypePartner] = []settlement.PayeeKey{{TenantID: tenantID, Payee: payee, Currency: "CNY"}}

	first, err := svc.ClosePreviousPeriod(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Closed)

	second, err := svc.ClosePreviousPeriod(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Opened)
	assert.Equal(t, 0, second.Closed)
	assert.Equal(t, 1, second.Skipped)
}
