package channel

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
)

// Account is a seller's account on one channel. It carries the credentials the
// connector needs and the watermark from which the next order import resumes.
type Account struct {
	shared.TenantAggregateRoot
	SellerID       uuid.UUID
	SupplierID     uuid.UUID
	ChannelCode    Code
	Name           string
	Credentials    map[string]string
	Enabled        bool
	LastImportedAt *time.Time
	LastPolledAt   *time.Time
	LastPollError  string
	// ImportCursor resumes an import that stopped at the page cap. While it
	// is set the watermark stays put and ImportHighWater holds the newest
	// order date seen so far.
	ImportCursor    string
	ImportHighWater *time.Time
}

// NewAccount creates an enabled channel account
func NewAccount(tenantID, sellerID, supplierID uuid.UUID, code Code, name string, credentials map[string]string) (*Account, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}
	if sellerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SELLER", "Seller ID is required")
	}
	if supplierID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SUPPLIER", "Supplier ID is required")
	}
	if !code.IsValid() || code == CodeInternal {
		return nil, shared.NewDomainError("INVALID_CHANNEL_CODE", "Channel code is invalid")
	}
	if name == "" {
		name = code.String()
	}
	if len(name) > 100 {
		return nil, shared.NewDomainError("INVALID_NAME", "Account name cannot exceed 100 characters")
	}

	creds := make(map[string]string, len(credentials))
	for k, v := range credentials {
		creds[k] = v
	}

	return &Account{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		SellerID:            sellerID,
		SupplierID:          supplierID,
		ChannelCode:         code,
		Name:                name,
		Credentials:         creds,
		Enabled:             true,
	}, nil
}

// Credential returns a credential value or empty string
func (a *Account) Credential(key string) string {
	if a.Credentials == nil {
		return ""
	}
	return a.Credentials[key]
}

// Enable enables order polling and exports for the account
func (a *Account) Enable() {
	a.Enabled = true
	a.touch()
}

// Disable stops order polling and exports for the account
func (a *Account) Disable() {
	a.Enabled = false
	a.touch()
}

// AdvanceWatermark moves the import watermark forward. It never moves backwards,
// so a page that returns older orders cannot cause re-import from an earlier point.
func (a *Account) AdvanceWatermark(orderDate time.Time) bool {
	if a.LastImportedAt != nil && !orderDate.After(*a.LastImportedAt) {
		return false
	}
	t := orderDate
	a.LastImportedAt = &t
	a.touch()
	return true
}

// ResumeImport records where an unfinished import continues. The
// watermark does not move until the import reaches its last page.
func (a *Account) ResumeImport(cursor string, newest time.Time) {
	a.ImportCursor = cursor
	a.ImportHighWater = laterOf(a.ImportHighWater, newest)
	a.touch()
}

// CompleteImport ends the import run and advances the watermark to the
// newest order date seen across all of its pages
func (a *Account) CompleteImport(newest time.Time) bool {
	high := laterOf(a.ImportHighWater, newest)
	a.ImportCursor = ""
	a.ImportHighWater = nil
	a.touch()
	if high == nil {
		return false
	}
	return a.AdvanceWatermark(*high)
}

// RestartImport drops an unfinished import so the next one starts again
// from the watermark
func (a *Account) RestartImport() {
	a.ImportCursor = ""
	a.ImportHighWater = nil
	a.touch()
}

// Importing reports whether an import stopped at the page cap is pending
func (a *Account) Importing() bool {
	return a.ImportCursor != ""
}

func laterOf(current *time.Time, t time.Time) *time.Time {
	if t.IsZero() || (current != nil && !t.After(*current)) {
		return current
	}
	return &t
}

// RecordPollSuccess records a completed poll
func (a *Account) RecordPollSuccess(at time.Time) {
	a.LastPolledAt = &at
	a.LastPollError = ""
	a.touch()
}

// RecordPollFailure records a failed poll
func (a *Account) RecordPollFailure(at time.Time, errMsg string) {
	a.LastPolledAt = &at
	a.LastPollError = errMsg
	a.touch()
}

func (a *Account) touch() {
	a.UpdatedAt = time.Now()
}
