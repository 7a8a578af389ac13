package settlement

import (
	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/shared"
)

// SettlementType selects which party a batch pays
type SettlementType string

const (
	SettlementTypeSeller   SettlementType = "SELLER"
	SettlementTypeSupplier SettlementType = "SUPPLIER"
	SettlementTypePartner  SettlementType = "PARTNER"
)

// AllSettlementTypes lists every settlement context
var AllSettlementTypes = []SettlementType{SettlementTypeSeller, SettlementTypeSupplier, SettlementTypePartner}

// IsValid returns true if the settlement type is valid
func (t SettlementType) IsValid() bool {
	switch t {
	case SettlementTypeSeller, SettlementTypeSupplier, SettlementTypePartner:
		return true
	default:
		return false
	}
}

// String returns the string representation of SettlementType
func (t SettlementType) String() string {
	return string(t)
}

// Payee is the party a batch settles with
type Payee struct {
	Type SettlementType `json:"settlement_type"`
	ID   uuid.UUID      `json:"payee_id"`
}

// NewPayee validates and builds a payee
func NewPayee(settlementType SettlementType, id uuid.UUID) (Payee, error) {
	if !settlementType.IsValid() {
		return Payee{}, shared.NewDomainError("INVALID_SETTLEMENT_TYPE", "Unknown settlement type: "+settlementType.String())
	}
	if id == uuid.Nil {
		return Payee{}, shared.NewDomainError("INVALID_PAYEE", "Payee ID is required")
	}
	return Payee{Type: settlementType, ID: id}, nil
}

// Owns reports whether a commission belongs to this payee's settlement context
func (p Payee) Owns(c *commission.Commission) bool {
	switch p.Type {
	case SettlementTypePartner:
		return c.PartnerID == p.ID
	case SettlementTypeSeller:
		return c.SellerID != nil && *c.SellerID == p.ID
	case SettlementTypeSupplier:
		return c.SupplierID != nil && *c.SupplierID == p.ID
	default:
		return false
	}
}
