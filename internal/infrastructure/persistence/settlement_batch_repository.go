package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/marketrelay/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSettlementBatchRepository implements settlement.Repository using GORM.
// Batch status changes and the commission writes they imply share one
// transaction.
type GormSettlementBatchRepository struct {
	db *gorm.DB
}

// NewGormSettlementBatchRepository creates a new GormSettlementBatchRepository
func NewGormSettlementBatchRepository(db *gorm.DB) *GormSettlementBatchRepository {
	return &GormSettlementBatchRepository{db: db}
}

// payeeColumn returns the commissions column that identifies a payee of the type
func payeeColumn(t settlement.SettlementType) (string, error) {
	switch t {
	case settlement.SettlementTypePartner:
		return "partner_id", nil
	case settlement.SettlementTypeSeller:
		return "seller_id", nil
	case settlement.SettlementTypeSupplier:
		return "supplier_id", nil
	default:
		return "", shared.NewDomainError("INVALID_SETTLEMENT_TYPE", fmt.Sprintf("unknown settlement type %q", t))
	}
}

// FindByID finds a batch within a tenant
func (r *GormSettlementBatchRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
	var model models.SettlementBatchModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindAll lists batches for a tenant, latest period first
func (r *GormSettlementBatchRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter settlement.Filter) ([]settlement.SettlementBatch, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SettlementBatchModel{}).Scopes(ForTenant(tenantID))
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.SettlementType != nil {
		query = query.Where("settlement_type = ?", filter.SettlementType.String())
	}
	if filter.PayeeID != nil {
		query = query.Where("payee_id = ?", *filter.PayeeID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var batchModels []models.SettlementBatchModel
	if err := paginate(query.Order(batchSort.clause(filter.OrderBy, filter.OrderDir)), filter.Page, filter.PageSize).
		Find(&batchModels).Error; err != nil {
		return nil, 0, err
	}
	batches := make([]settlement.SettlementBatch, len(batchModels))
	for i := range batchModels {
		batches[i] = *batchModels[i].ToDomain()
	}
	return batches, total, nil
}

// FindActive returns the live batch for a payee, period and currency
func (r *GormSettlementBatchRepository) FindActive(ctx context.Context, tenantID uuid.UUID, payee settlement.Payee, period settlement.Period, currency string) (*settlement.SettlementBatch, error) {
	var model models.SettlementBatchModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND settlement_type = ? AND payee_id = ?", tenantID, payee.Type.String(), payee.ID).
		Where("period_start = ? AND period_end = ? AND currency = ?", period.Start, period.End, strings.ToUpper(currency)).
		Where("status <> ?", settlement.StatusCancelled.String()).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// Create inserts an OPEN batch
func (r *GormSettlementBatchRepository) Create(ctx context.Context, b *settlement.SettlementBatch) error {
	model := models.SettlementBatchModelFromDomain(b)
	return translateError(r.db.WithContext(ctx).Create(model).Error)
}

// FindSettleable returns the commissions a batch for payee and period would
// take. Unstamped commissions from earlier periods are carried into it.
func (r *GormSettlementBatchRepository) FindSettleable(ctx context.Context, tenantID uuid.UUID, payee settlement.Payee, period settlement.Period, currency string) ([]commission.Commission, error) {
	column, err := payeeColumn(payee.Type)
	if err != nil {
		return nil, err
	}
	var commModels []models.CommissionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND "+column+" = ?", tenantID, payee.ID).
		Where("status = ? AND settlement_batch_id IS NULL", commission.StatusConfirmed.String()).
		Where("currency = ? AND order_date < ?", strings.ToUpper(currency), period.End).
		Order("order_date ASC").
		Find(&commModels).Error; err != nil {
		return nil, err
	}
	return toCommissions(commModels), nil
}

// FindCommissions returns the commissions stamped with a batch
func (r *GormSettlementBatchRepository) FindCommissions(ctx context.Context, tenantID, batchID uuid.UUID) ([]commission.Commission, error) {
	var commModels []models.CommissionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND settlement_batch_id = ?", tenantID, batchID).
		Order("order_date ASC").
		Find(&commModels).Error; err != nil {
		return nil, err
	}
	return toCommissions(commModels), nil
}

// CloseWithCommissions moves the batch OPEN -> CLOSED and stamps the
// summarized commissions. Either both happen or neither does.
func (r *GormSettlementBatchRepository) CloseWithCommissions(ctx context.Context, b *settlement.SettlementBatch, commissionIDs []uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateBatchFrom(tx, b, settlement.StatusOpen); err != nil {
			return err
		}
		if len(commissionIDs) == 0 {
			return nil
		}
		result := tx.Model(&models.CommissionModel{}).
			Where("tenant_id = ? AND id IN ?", b.TenantID, commissionIDs).
			Where("status = ? AND settlement_batch_id IS NULL", commission.StatusConfirmed.String()).
			Updates(map[string]any{
				"settlement_batch_id": b.ID,
				"updated_at":          b.UpdatedAt,
				"version":             gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != int64(len(commissionIDs)) {
			return settlement.ErrCommissionSetChanged
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.IncrementVersion()
	return nil
}

// SaveTransition moves the batch out of `from` and applies the commission effect
func (r *GormSettlementBatchRepository) SaveTransition(ctx context.Context, b *settlement.SettlementBatch, from settlement.Status, effect settlement.CommissionEffect, at time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateBatchFrom(tx, b, from); err != nil {
			return err
		}
		stamped := tx.Model(&models.CommissionModel{}).
			Where("tenant_id = ? AND settlement_batch_id = ?", b.TenantID, b.ID).
			Where("status = ?", commission.StatusConfirmed.String())
		switch effect {
		case settlement.EffectPay:
			return stamped.Updates(map[string]any{
				"status":     commission.StatusPaid.String(),
				"paid_at":    at,
				"updated_at": at,
				"version":    gorm.Expr("version + 1"),
			}).Error
		case settlement.EffectRelease:
			return stamped.Updates(map[string]any{
				"settlement_batch_id": nil,
				"updated_at":          at,
				"version":             gorm.Expr("version + 1"),
			}).Error
		default:
			return nil
		}
	})
	if err != nil {
		return err
	}
	b.IncrementVersion()
	return nil
}

// updateBatchFrom writes the batch state if the row is still in status `from`
// at the loaded version
func updateBatchFrom(tx *gorm.DB, b *settlement.SettlementBatch, from settlement.Status) error {
	columns := models.StatusTimestampColumns(b)
	columns["version"] = b.Version + 1
	result := tx.Model(&models.SettlementBatchModel{}).
		Where("id = ? AND status = ? AND version = ?", b.ID, from.String(), b.Version).
		Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return settlement.ErrTransitionLost
	}
	return nil
}

type payeeRow struct {
	TenantID uuid.UUID
	PayeeID  uuid.UUID
	Currency string
}

// ListPayeesWithSettleable groups settleable commissions ordered before the
// period end by tenant, payee and currency
func (r *GormSettlementBatchRepository) ListPayeesWithSettleable(ctx context.Context, settlementType settlement.SettlementType, period settlement.Period) ([]settlement.PayeeKey, error) {
	column, err := payeeColumn(settlementType)
	if err != nil {
		return nil, err
	}
	var rows []payeeRow
	if err := r.db.WithContext(ctx).
		Model(&models.CommissionModel{}).
		Select("tenant_id, "+column+" AS payee_id, currency").
		Where(column+" IS NOT NULL").
		Where("status = ? AND settlement_batch_id IS NULL", commission.StatusConfirmed.String()).
		Where("order_date < ?", period.End).
		Group("tenant_id, " + column + ", currency").
		Order("tenant_id, " + column + ", currency").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	keys := make([]settlement.PayeeKey, len(rows))
	for i, row := range rows {
		keys[i] = settlement.PayeeKey{
			TenantID: row.TenantID,
			Payee:    settlement.Payee{Type: settlementType, ID: row.PayeeID},
			Currency: row.Currency,
		}
	}
	return keys, nil
}
