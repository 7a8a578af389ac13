// Package models holds the GORM table mappings. Domain aggregates carry
// no ORM concerns; each model converts to and from its aggregate and the
// repositories only ever hand aggregates back to callers.
//
// Channel tables embed TenantAggregateModel. Relay, commission and
// settlement tables flatten the tenant columns so they can join composite
// indexes and rebuild the root with RestoreTenantAggregateRoot.
package models

// All returns every model in migration order, for AutoMigrate in tests
func All() []any {
	return []any{
		&ChannelAccountModel{},
		&ListingLinkModel{},
		&OrderRelayModel{},
		&OrderRelayItemModel{},
		&CommissionModel{},
		&SettlementBatchModel{},
		&OutboxEntryModel{},
	}
}
