package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCommissionRepository implements commission.Repository using GORM
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewGormCommissionRepository creates a new GormCommissionRepository
func NewGormCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// FindByID finds a commission within a tenant
func (r *GormCommissionRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*commission.Commission, error) {
	var model models.CommissionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByConversionID finds the commission computed for a conversion
func (r *GormCommissionRepository) FindByConversionID(ctx context.Context, tenantID uuid.UUID, conversionID string) (*commission.Commission, error) {
	var model models.CommissionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND conversion_id = ?", tenantID, conversionID).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByOrderID lists commissions earned on an order
func (r *GormCommissionRepository) FindByOrderID(ctx context.Context, tenantID, orderID uuid.UUID) ([]commission.Commission, error) {
	var commModels []models.CommissionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID).
		Order("created_at ASC").
		Find(&commModels).Error; err != nil {
		return nil, err
	}
	return toCommissions(commModels), nil
}

// FindAll lists commissions for a tenant, newest order first
func (r *GormCommissionRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter commission.Filter) ([]commission.Commission, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.CommissionModel{}).Scopes(ForTenant(tenantID))
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.PartnerID != nil {
		query = query.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.SupplierID != nil {
		query = query.Where("supplier_id = ?", *filter.SupplierID)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.SettlementBatchID != nil {
		query = query.Where("settlement_batch_id = ?", *filter.SettlementBatchID)
	}
	if filter.OrderDateFrom != nil {
		query = query.Where("order_date >= ?", *filter.OrderDateFrom)
	}
	if filter.OrderDateTo != nil {
		query = query.Where("order_date < ?", *filter.OrderDateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var commModels []models.CommissionModel
	if err := paginate(query.Order(commissionSort.clause(filter.OrderBy, filter.OrderDir)), filter.Page, filter.PageSize).
		Find(&commModels).Error; err != nil {
		return nil, 0, err
	}
	return toCommissions(commModels), total, nil
}

// FindHoldExpired returns PENDING commissions whose hold ended at or before
// now, keyset-paged on (hold_until, id) so rows a sweep leaves pending do not
// hide the ones behind them
func (r *GormCommissionRepository) FindHoldExpired(ctx context.Context, now time.Time, after *commission.HoldCursor, limit int) ([]commission.Commission, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).
		Where("status = ? AND hold_until <= ?", commission.StatusPending.String(), now)
	if after != nil {
		holdUntil := after.HoldUntil.UTC()
		query = query.Where("(hold_until > ? OR (hold_until = ? AND id > ?))", holdUntil, holdUntil, after.ID)
	}
	var commModels []models.CommissionModel
	if err := query.
		Order("hold_until ASC").
		Order("id ASC").
		Limit(limit).
		Find(&commModels).Error; err != nil {
		return nil, err
	}
	return toCommissions(commModels), nil
}

// Create inserts a commission
func (r *GormCommissionRepository) Create(ctx context.Context, c *commission.Commission) error {
	model := models.CommissionModelFromDomain(c)
	return translateError(r.db.WithContext(ctx).Create(model).Error)
}

// Save persists commission state guarded by its version
func (r *GormCommissionRepository) Save(ctx context.Context, c *commission.Commission) error {
	model := models.CommissionModelFromDomain(c)
	model.Version = c.Version + 1
	if err := saveVersioned(r.db.WithContext(ctx), model, c.ID, c.Version); err != nil {
		return err
	}
	c.IncrementVersion()
	return nil
}

func toCommissions(commModels []models.CommissionModel) []commission.Commission {
	commissions := make([]commission.Commission, len(commModels))
	for i := range commModels {
		commissions[i] = *commModels[i].ToDomain()
	}
	return commissions
}
