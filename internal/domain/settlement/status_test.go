package settlement

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/stretchr/testify/assert"
)

func TestStatus_Whitelist(t *testing.T) {
	all := []Status{StatusOpen, StatusClosed, StatusProcessing, StatusPaid, StatusFailed, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusOpen, StatusClosed}:       true,
		{StatusOpen, StatusCancelled}:    true,
		{StatusClosed, StatusProcessing}: true,
		{StatusClosed, StatusCancelled}:  true,
		{StatusProcessing, StatusPaid}:   true,
		{StatusProcessing, StatusFailed}: true,
		{StatusFailed, StatusProcessing}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestPayee_Owns(t *testing.T) {
	partnerID, sellerID, supplierID := uuid.New(), uuid.New(), uuid.New()
	c := &commission.Commission{PartnerID: partnerID, SellerID: &sellerID, SupplierID: &supplierID}

	assert.True(t, Payee{Type: SettlementTypePartner, ID: partnerID}.Owns(c))
	assert.True(t, Payee{Type: SettlementTypeSeller, ID: sellerID}.Owns(c))
	assert.True(t, Payee{Type: SettlementTypeSupplier, ID: supplierID}.Owns(c))
	assert.False(t, Payee{Type: SettlementTypeSeller, ID: partnerID}.Owns(c), "contexts never mix")

	c.SellerID = nil
	assert.False(t, Payee{Type: SettlementTypeSeller, ID: sellerID}.Owns(c))
}

func TestPreviousPeriod(t *testing.T) {
	at := time.Date(2026, 3, 18, 15, 4, 0, 0, time.UTC) // a Wednesday

	monthly := PreviousPeriod(at, PeriodMonthly, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), monthly.Start)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), monthly.End)

	weekly := PreviousPeriod(at, PeriodWeekly, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), weekly.Start)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), weekly.End)

	daily := PreviousPeriod(at, PeriodDaily, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC), daily.Start)
	assert.Equal(t, time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC), daily.End)

	january := PreviousPeriod(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), PeriodMonthly, nil)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), january.Start)
}

func TestPeriod(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	p, err := NewPeriod(start, start.AddDate(0, 1, 0))
	assert.NoError(t, err)
	assert.True(t, p.Contains(start))
	assert.False(t, p.Contains(p.End))
	assert.True(t, p.Covers(start.AddDate(0, 0, -30)))
	assert.False(t, p.Covers(p.End))

	_, err = NewPeriod(start, start)
	assert.Error(t, err)
	_, err = NewPeriod(time.Time{}, start)
	assert.Error(t, err)
}
