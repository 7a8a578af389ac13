package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/marketrelay/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormOrderRelayRepository implements relay.Repository using GORM. With an
// outbox encoder, the pending events of a relay are written to the outbox in
// the same transaction as the relay row.
type GormOrderRelayRepository struct {
	db     *gorm.DB
	outbox shared.EventEncoder
}

// NewGormOrderRelayRepository creates a new GormOrderRelayRepository
func NewGormOrderRelayRepository(db *gorm.DB) *GormOrderRelayRepository {
	return &GormOrderRelayRepository{db: db}
}

// WithOutbox returns a repository that records relay events in the outbox
func (r *GormOrderRelayRepository) WithOutbox(enc shared.EventEncoder) *GormOrderRelayRepository {
	return &GormOrderRelayRepository{db: r.db, outbox: enc}
}

// FindByID finds a relay within a tenant
func (r *GormOrderRelayRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error) {
	var model models.OrderRelayModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByExternalOrder finds the relay created for a channel order
func (r *GormOrderRelayRepository) FindByExternalOrder(ctx context.Context, tenantID uuid.UUID, code channel.Code, externalOrderID string) (*relay.OrderRelay, error) {
	var model models.OrderRelayModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND channel_code = ? AND external_order_id = ?", tenantID, code.String(), externalOrderID).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByOrderID finds a relay by its internal order id
func (r *GormOrderRelayRepository) FindByOrderID(ctx context.Context, tenantID, orderID uuid.UUID) (*relay.OrderRelay, error) {
	var model models.OrderRelayModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindAll lists relays for a tenant, newest first unless the filter sorts otherwise
func (r *GormOrderRelayRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter relay.Filter) ([]relay.OrderRelay, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.OrderRelayModel{}).Scopes(ForTenant(tenantID))
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.SupplierID != nil {
		query = query.Where("supplier_id = ?", *filter.SupplierID)
	}
	if filter.ChannelCode != nil {
		query = query.Where("channel_code = ?", filter.ChannelCode.String())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var relayModels []models.OrderRelayModel
	if err := paginate(query.Preload("Items").Order(relaySort.clause(filter.OrderBy, filter.OrderDir)), filter.Page, filter.PageSize).
		Find(&relayModels).Error; err != nil {
		return nil, 0, err
	}
	return toOrderRelays(relayModels), total, nil
}

// FindDispatchDue returns CREATED relays whose next attempt is due and whose
// dispatch lease, if any, has passed, oldest first
func (r *GormOrderRelayRepository) FindDispatchDue(ctx context.Context, now time.Time, limit int) ([]relay.OrderRelay, error) {
	if limit <= 0 {
		limit = 50
	}
	var relayModels []models.OrderRelayModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ?", relay.StatusCreated.String()).
		Where("(next_attempt_at IS NULL OR next_attempt_at <= ?)", now).
		Where("(dispatch_lease_until IS NULL OR dispatch_lease_until <= ?)", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&relayModels).Error; err != nil {
		return nil, err
	}
	return toOrderRelays(relayModels), nil
}

// Create inserts the relay, its items and its outbox entries in one transaction
func (r *GormOrderRelayRepository) Create(ctx context.Context, or *relay.OrderRelay) error {
	model := models.OrderRelayModelFromDomain(or)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return translateError(err)
		}
		return writeOutbox(tx, r.outbox, or.GetDomainEvents(), or.UpdatedAt)
	})
}

// Save persists relay state. Items are immutable once created and are not rewritten.
func (r *GormOrderRelayRepository) Save(ctx context.Context, or *relay.OrderRelay) error {
	model := models.OrderRelayModelFromDomain(or)
	model.Items = nil
	model.Version = or.Version + 1
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveVersioned(tx, model, or.ID, or.Version); err != nil {
			return err
		}
		return writeOutbox(tx, r.outbox, or.GetDomainEvents(), or.UpdatedAt)
	})
	if err != nil {
		return err
	}
	or.IncrementVersion()
	return nil
}

func toOrderRelays(relayModels []models.OrderRelayModel) []relay.OrderRelay {
	relays := make([]relay.OrderRelay, len(relayModels))
	for i := range relayModels {
		relays[i] = *relayModels[i].ToDomain()
	}
	return relays
}
