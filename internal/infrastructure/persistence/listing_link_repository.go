package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormListingLinkRepository implements channel.ListingLinkRepository using GORM
type GormListingLinkRepository struct {
	db *gorm.DB
}

// NewGormListingLinkRepository creates a new GormListingLinkRepository
func NewGormListingLinkRepository(db *gorm.DB) *GormListingLinkRepository {
	return &GormListingLinkRepository{db: db}
}

// FindByID finds a listing link within a tenant
func (r *GormListingLinkRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*channel.ListingLink, error) {
	var model models.ListingLinkModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByAccount lists the links of an account
func (r *GormListingLinkRepository) FindByAccount(ctx context.Context, tenantID, accountID uuid.UUID) ([]channel.ListingLink, error) {
	var linkModels []models.ListingLinkModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND account_id = ?", tenantID, accountID).
		Order("created_at ASC").
		Find(&linkModels).Error; err != nil {
		return nil, err
	}
	return toListingLinks(linkModels), nil
}

// FindByIDs loads the given links; unknown ids are skipped
func (r *GormListingLinkRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]channel.ListingLink, error) {
	if len(ids) == 0 {
		return []channel.ListingLink{}, nil
	}
	var linkModels []models.ListingLinkModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&linkModels).Error; err != nil {
		return nil, err
	}
	return toListingLinks(linkModels), nil
}

// FindByExternalProductID resolves a channel product back to its link
func (r *GormListingLinkRepository) FindByExternalProductID(ctx context.Context, tenantID, accountID uuid.UUID, externalProductID string) (*channel.ListingLink, error) {
	var model models.ListingLinkModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND account_id = ? AND external_product_id = ?", tenantID, accountID, externalProductID).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// Save inserts or updates a link. A second link for the same account and
// product returns shared.ErrAlreadyExists.
func (r *GormListingLinkRepository) Save(ctx context.Context, link *channel.ListingLink) error {
	model := models.ListingLinkModelFromDomain(link)
	return translateError(r.db.WithContext(ctx).Save(model).Error)
}

func toListingLinks(linkModels []models.ListingLinkModel) []channel.ListingLink {
	links := make([]channel.ListingLink, len(linkModels))
	for i := range linkModels {
		links[i] = *linkModels[i].ToDomain()
	}
	return links
}
