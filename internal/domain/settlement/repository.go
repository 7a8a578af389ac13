package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
)

// ErrTransitionLost means another writer changed the batch status first. The
// caller reloads the batch to report the state it is actually in.
var ErrTransitionLost = errors.New("settlement: batch status changed concurrently")

// ErrCommissionSetChanged means a selected commission was cancelled or claimed
// while the batch was closing; nothing was written.
var ErrCommissionSetChanged = errors.New("settlement: commission set changed during close")

// CommissionEffect is what a batch transition does to its stamped commissions
type CommissionEffect int

const (
	// EffectNone leaves commissions untouched
	EffectNone CommissionEffect = iota
	// EffectPay marks every stamped commission PAID
	EffectPay
	// EffectRelease clears the batch stamp so commissions can be batched again
	EffectRelease
)

// Filter narrows batch listings
type Filter struct {
	Status         *Status
	SettlementType *SettlementType
	PayeeID        *uuid.UUID
	Page           int
	PageSize       int
	OrderBy        string
	OrderDir       string
}

// PayeeKey identifies a payee ledger within a tenant. A payee owed in two
// currencies gets one batch per currency.
type PayeeKey struct {
	TenantID uuid.UUID
	Payee    Payee
	Currency string
}

// Repository persists settlement batches together with the commission stamps
// they own. Every status change is a conditional update on the previous status
// so concurrent writers cannot both win.
type Repository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*SettlementBatch, error)
	FindAll(ctx context.Context, tenantID uuid.UUID, filter Filter) ([]SettlementBatch, int64, error)
	// FindActive returns the non-cancelled batch for the payee, period and
	// currency or shared.ErrNotFound
	FindActive(ctx context.Context, tenantID uuid.UUID, payee Payee, period Period, currency string) (*SettlementBatch, error)
	// Create inserts an OPEN batch; a live batch for the same payee, period and
	// currency returns shared.ErrAlreadyExists
	Create(ctx context.Context, b *SettlementBatch) error
	// FindSettleable returns CONFIRMED, unstamped commissions of the payee in
	// currency with an order date before the end of the period
	FindSettleable(ctx context.Context, tenantID uuid.UUID, payee Payee, period Period, currency string) ([]commission.Commission, error)
	// FindCommissions returns the commissions stamped with the batch
	FindCommissions(ctx context.Context, tenantID, batchID uuid.UUID) ([]commission.Commission, error)
	// CloseWithCommissions persists OPEN -> CLOSED and stamps the summarized
	// commissions in one transaction
	CloseWithCommissions(ctx context.Context, b *SettlementBatch, commissionIDs []uuid.UUID) error
	// SaveTransition persists a status change from `from` and applies effect to
	// the stamped commissions in the same transaction
	SaveTransition(ctx context.Context, b *SettlementBatch, from Status, effect CommissionEffect, at time.Time) error
	// ListPayeesWithSettleable returns, across tenants, the payee ledgers of the
	// given type with settleable commissions ordered before the end of the period
	ListPayeesWithSettleable(ctx context.Context, settlementType SettlementType, period Period) ([]PayeeKey, error)
}
