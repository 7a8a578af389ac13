package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
)

// TenantAggregateModel holds the columns every tenant-scoped aggregate
// table shares. Tables that need the tenant in a composite index declare
// the columns themselves and use RestoreTenantAggregateRoot instead.
type TenantAggregateModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid;index"`
	Version   int        `gorm:"not null;default:1"`
	CreatedAt time.Time  `gorm:"not null"`
	UpdatedAt time.Time  `gorm:"not null"`
}

func (m *TenantAggregateModel) FromDomainTenantAggregateRoot(t shared.TenantAggregateRoot) {
	*m = TenantAggregateModel{
		ID:        t.ID,
		TenantID:  t.TenantID,
		CreatedBy: t.CreatedBy,
		Version:   t.Version,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (m *TenantAggregateModel) PopulateTenantAggregateRoot(t *shared.TenantAggregateRoot) {
	*t = RestoreTenantAggregateRoot(m.ID, m.TenantID, m.CreatedBy, m.Version, m.CreatedAt, m.UpdatedAt)
}

// RestoreTenantAggregateRoot rebuilds the embedded root of a loaded
// aggregate. Pending events start empty.
func RestoreTenantAggregateRoot(id, tenantID uuid.UUID, createdBy *uuid.UUID, version int, createdAt, updatedAt time.Time) shared.TenantAggregateRoot {
	root := shared.TenantAggregateRoot{TenantID: tenantID, CreatedBy: createdBy}
	root.ID = id
	root.CreatedAt = createdAt
	root.UpdatedAt = updatedAt
	root.Version = version
	return root
}
