package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormBacklogProvider implements BacklogProvider with grouped counts on the
// relay and commission tables.
type GormBacklogProvider struct {
	db *gorm.DB
}

// NewGormBacklogProvider creates a new GormBacklogProvider.
func NewGormBacklogProvider(db *gorm.DB) *GormBacklogProvider {
	return &GormBacklogProvider{db: db}
}

// CountRelaysByStatus returns relay counts per status.
func (p *GormBacklogProvider) CountRelaysByStatus(ctx context.Context) (map[string]int64, error) {
	return p.countByStatus(ctx, "order_relays")
}

// CountCommissionsByStatus returns commission counts per status.
func (p *GormBacklogProvider) CountCommissionsByStatus(ctx context.Context) (map[string]int64, error) {
	return p.countByStatus(ctx, "commissions")
}

func (p *GormBacklogProvider) countByStatus(ctx context.Context, table string) (map[string]int64, error) {
	type result struct {
		Status string `gorm:"column:status"`
		Count  int64  `gorm:"column:count"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table(table).
		Select("status, COUNT(*) AS count").
		Group("status").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	m := make(map[string]int64, len(results))
	for _, r := range results {
		m[r.Status] = r.Count
	}
	return m, nil
}
