package relay

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeOrderRelay is the aggregate type name used in events
const AggregateTypeOrderRelay = "OrderRelay"

// Item is a line item carried by a relay
type Item struct {
	ID                uuid.UUID
	RelayID           uuid.UUID
	ProductID         *uuid.UUID
	ExternalProductID string
	ExternalSkuID     string
	Title             string
	Quantity          int
	UnitPrice         decimal.Decimal
	TotalPrice        decimal.Decimal
	Options           map[string]string
}

// TrackingInfo is the supplier's shipment information
type TrackingInfo struct {
	Carrier        string     `json:"carrier"`
	TrackingNumber string     `json:"tracking_number"`
	TrackingURL    string     `json:"tracking_url,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
}

// Validate checks the tracking info is usable
func (t TrackingInfo) Validate() error {
	if t.Carrier == "" || t.TrackingNumber == "" {
		return shared.NewDomainError("INVALID_TRACKING", "Carrier and tracking number are required")
	}
	return nil
}

// OrderRelay forwards one order from a seller to a supplier
type OrderRelay struct {
	shared.TenantAggregateRoot
	SellerID          uuid.UUID
	SupplierID        uuid.UUID
	ChannelCode       channel.Code
	ExternalOrderID   string
	OrderID           uuid.UUID
	OrderDate         time.Time
	Status            Status
	Buyer             channel.BuyerContact
	ShippingAddress   channel.Address
	TotalAmount       decimal.Decimal
	Currency          string
	ReferralCode      string
	PartnerID         *uuid.UUID
	Metadata          map[string]string
	Items             []Item
	RetryCount        int
	LastError         string
	NextAttemptAt     *time.Time
	SupplierReference string
	Tracking          *TrackingInfo
	DispatchedAt      *time.Time
	AcknowledgedAt    *time.Time
	FulfilledAt       *time.Time
	FailedAt          *time.Time
	FailureReason     string
	CancelledAt       *time.Time
	CancelReason      string
	// DispatchLeaseUntil marks a supplier call in flight; no other
	// dispatcher may call the supplier for this relay before it passes
	DispatchLeaseUntil *time.Time
}

// NewOrderRelay builds a CREATED relay from an external order. orderID is the
// internal order id; uuid.Nil assigns a fresh one.
func NewOrderRelay(tenantID, sellerID, supplierID, orderID uuid.UUID, code channel.Code, order channel.ExternalOrder) (*OrderRelay, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}
	if sellerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SELLER", "Seller ID is required")
	}
	if supplierID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SUPPLIER", "Supplier ID is required")
	}
	if !code.IsValid() {
		return nil, shared.NewDomainError("INVALID_CHANNEL_CODE", "Channel code is invalid")
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if orderID == uuid.Nil {
		orderID = uuid.New()
	}
	currency := order.Currency
	if currency == "" {
		currency = "CNY"
	}

	r := &OrderRelay{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		SellerID:            sellerID,
		SupplierID:          supplierID,
		ChannelCode:         code,
		ExternalOrderID:     order.ExternalOrderID,
		OrderID:             orderID,
		OrderDate:           order.OrderDate,
		Status:              StatusCreated,
		Buyer:               order.Buyer,
		ShippingAddress:     order.ShippingAddress,
		TotalAmount:         order.TotalAmount,
		Currency:            currency,
		ReferralCode:        order.MetadataValue(channel.MetadataReferralCode),
		Metadata:            copyMap(order.Metadata),
	}
	if raw := order.MetadataValue(channel.MetadataPartnerID); raw != "" {
		if partnerID, err := uuid.Parse(raw); err == nil {
			r.PartnerID = &partnerID
		}
	}

	r.Items = make([]Item, 0, len(order.Items))
	for _, it := range order.Items {
		item := Item{
			ID:                uuid.New(),
			RelayID:           r.ID,
			ExternalProductID: it.ExternalProductID,
			ExternalSkuID:     it.ExternalSkuID,
			Title:             it.Title,
			Quantity:          it.Quantity,
			UnitPrice:         it.UnitPrice,
			TotalPrice:        it.TotalPrice,
			Options:           copyMap(it.Options),
		}
		if raw, ok := it.Options[channel.MetadataProductID]; ok {
			if productID, err := uuid.Parse(raw); err == nil {
				item.ProductID = &productID
			}
		}
		r.Items = append(r.Items, item)
	}
	if r.TotalAmount.IsZero() {
		r.TotalAmount = r.ItemsTotal()
	}

	r.AddDomainEvent(NewRelayCreatedEvent(r))
	return r, nil
}

// ItemsTotal sums the line totals
func (r *OrderRelay) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.TotalPrice)
	}
	return total
}

// PrimaryProductID returns the first resolved catalog product id, if any
func (r *OrderRelay) PrimaryProductID() *uuid.UUID {
	for _, it := range r.Items {
		if it.ProductID != nil {
			return it.ProductID
		}
	}
	return nil
}

// IsDispatchDue reports whether the dispatch worker should attempt this relay now
func (r *OrderRelay) IsDispatchDue(now time.Time) bool {
	if r.Status != StatusCreated {
		return false
	}
	if r.DispatchLeaseUntil != nil && r.DispatchLeaseUntil.After(now) {
		return false
	}
	return r.NextAttemptAt == nil || !r.NextAttemptAt.After(now)
}

// StateDispatching is reported as the current state when a dispatch is
// refused because another one holds the lease
const StateDispatching = "DISPATCHING"

// ClaimDispatch takes the dispatch lease until at+lease. It fails with a
// state conflict when the relay is not CREATED or a lease is still held.
func (r *OrderRelay) ClaimDispatch(at time.Time, lease time.Duration) error {
	if r.Status != StatusCreated {
		return shared.NewStateConflictError(AggregateTypeOrderRelay, "dispatch", r.Status.String())
	}
	if r.DispatchLeaseUntil != nil && r.DispatchLeaseUntil.After(at) {
		return shared.NewStateConflictError(AggregateTypeOrderRelay, "dispatch", StateDispatching)
	}
	until := at.Add(lease)
	r.DispatchLeaseUntil = &until
	r.touch(at)
	return nil
}

// RecordDispatchSuccess moves CREATED -> DISPATCHED
func (r *OrderRelay) RecordDispatchSuccess(supplierReference string, at time.Time) error {
	if err := r.transition("dispatch", StatusDispatched); err != nil {
		return err
	}
	r.SupplierReference = supplierReference
	r.DispatchedAt = &at
	r.LastError = ""
	r.NextAttemptAt = nil
	r.DispatchLeaseUntil = nil
	r.touch(at)
	r.AddDomainEvent(NewRelayDispatchedEvent(r))
	return nil
}

// RecordDispatchFailure counts a failed dispatch attempt. The relay stays CREATED
// until retryCount reaches maxRetries, then moves to FAILED. It returns true when
// the retry budget is exhausted by this attempt.
func (r *OrderRelay) RecordDispatchFailure(errMsg string, maxRetries int, nextAttemptAt, at time.Time) (bool, error) {
	if r.Status != StatusCreated {
		return false, shared.NewStateConflictError(AggregateTypeOrderRelay, "dispatch", r.Status.String())
	}
	r.RetryCount++
	r.LastError = errMsg
	r.DispatchLeaseUntil = nil
	if maxRetries > 0 && r.RetryCount >= maxRetries {
		r.Status = StatusFailed
		r.FailedAt = &at
		r.FailureReason = "dispatch retries exhausted: " + errMsg
		r.NextAttemptAt = nil
		r.touch(at)
		r.AddDomainEvent(NewRelayDispatchExhaustedEvent(r))
		return true, nil
	}
	r.NextAttemptAt = &nextAttemptAt
	r.touch(at)
	return false, nil
}

// Acknowledge moves DISPATCHED -> ACKNOWLEDGED
func (r *OrderRelay) Acknowledge(at time.Time) error {
	if err := r.transition("acknowledge", StatusAcknowledged); err != nil {
		return err
	}
	r.AcknowledgedAt = &at
	r.touch(at)
	r.AddDomainEvent(NewRelayAcknowledgedEvent(r))
	return nil
}

// MarkFulfilled moves ACKNOWLEDGED -> FULFILLED and stores the tracking info
func (r *OrderRelay) MarkFulfilled(tracking TrackingInfo, at time.Time) error {
	if !r.Status.CanTransitionTo(StatusFulfilled) {
		return shared.NewStateConflictError(AggregateTypeOrderRelay, "fulfill", r.Status.String())
	}
	if err := tracking.Validate(); err != nil {
		return err
	}
	r.Status = StatusFulfilled
	r.Tracking = &tracking
	r.FulfilledAt = &at
	r.touch(at)
	r.AddDomainEvent(NewRelayFulfilledEvent(r))
	return nil
}

// MarkFailed moves DISPATCHED | ACKNOWLEDGED -> FAILED
func (r *OrderRelay) MarkFailed(reason string, at time.Time) error {
	if r.Status != StatusDispatched && r.Status != StatusAcknowledged {
		return shared.NewStateConflictError(AggregateTypeOrderRelay, "fail", r.Status.String())
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Failure reason is required")
	}
	r.Status = StatusFailed
	r.FailedAt = &at
	r.FailureReason = reason
	r.touch(at)
	r.AddDomainEvent(NewRelayFailedEvent(r))
	return nil
}

// Cancel moves CREATED | DISPATCHED -> CANCELLED
func (r *OrderRelay) Cancel(reason string, at time.Time) error {
	if err := r.transition("cancel", StatusCancelled); err != nil {
		return err
	}
	r.CancelledAt = &at
	r.CancelReason = reason
	r.NextAttemptAt = nil
	r.touch(at)
	r.AddDomainEvent(NewRelayCancelledEvent(r))
	return nil
}

// ResetForRedispatch moves FAILED -> CREATED with a fresh retry budget
func (r *OrderRelay) ResetForRedispatch(at time.Time) error {
	if err := r.transition("reset", StatusCreated); err != nil {
		return err
	}
	r.RetryCount = 0
	r.LastError = ""
	r.NextAttemptAt = nil
	r.FailedAt = nil
	r.FailureReason = ""
	r.touch(at)
	r.AddDomainEvent(NewRelayResetEvent(r))
	return nil
}

func (r *OrderRelay) transition(operation string, next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return shared.NewStateConflictError(AggregateTypeOrderRelay, operation, r.Status.String())
	}
	r.Status = next
	return nil
}

func (r *OrderRelay) touch(at time.Time) {
	r.UpdatedAt = at
}

func copyMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
