package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/marketrelay/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormChannelAccountRepository implements channel.AccountRepository using GORM
type GormChannelAccountRepository struct {
	db *gorm.DB
}

// NewGormChannelAccountRepository creates a new GormChannelAccountRepository
func NewGormChannelAccountRepository(db *gorm.DB) *GormChannelAccountRepository {
	return &GormChannelAccountRepository{db: db}
}

// FindByID finds an account within a tenant
func (r *GormChannelAccountRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*channel.Account, error) {
	var model models.ChannelAccountModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindAll lists accounts for a tenant, newest first
func (r *GormChannelAccountRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]channel.Account, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ChannelAccountModel{}).Scopes(ForTenant(tenantID))
	if filter.Search != "" {
		query = query.Where("name LIKE ?", "%"+filter.Search+"%")
	}
	if code, ok := filter.Filters["channel_code"].(string); ok && code != "" {
		query = query.Where("channel_code = ?", channel.NormalizeCode(code))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var accModels []models.ChannelAccountModel
	if err := paginate(query.Order(accountSort.clause(filter.OrderBy, filter.OrderDir)), filter.Page, filter.PageSize).
		Find(&accModels).Error; err != nil {
		return nil, 0, err
	}

	accounts := make([]channel.Account, len(accModels))
	for i := range accModels {
		accounts[i] = *accModels[i].ToDomain()
	}
	return accounts, total, nil
}

// FindEnabled returns every enabled account across tenants
func (r *GormChannelAccountRepository) FindEnabled(ctx context.Context) ([]channel.Account, error) {
	var accModels []models.ChannelAccountModel
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&accModels).Error; err != nil {
		return nil, err
	}
	accounts := make([]channel.Account, len(accModels))
	for i := range accModels {
		accounts[i] = *accModels[i].ToDomain()
	}
	return accounts, nil
}

// Save inserts a new account or updates an existing one
func (r *GormChannelAccountRepository) Save(ctx context.Context, account *channel.Account) error {
	model := models.ChannelAccountModelFromDomain(account)
	return translateError(r.db.WithContext(ctx).Save(model).Error)
}
