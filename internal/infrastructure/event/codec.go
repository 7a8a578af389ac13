package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/domain/shared"
)

// ErrUnknownEventType is returned when decoding a type nobody registered
var ErrUnknownEventType = errors.New("unknown event type")

// Envelope is the wire form of an event leaving the process. The header
// fields repeat what the payload carries so consumers can route without
// decoding it.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Codec encodes events into envelopes and decodes them back into the
// concrete type registered for the envelope's event type
type Codec struct {
	mu    sync.RWMutex
	ctors map[string]func() shared.DomainEvent
}

func NewCodec() *Codec {
	return &Codec{ctors: make(map[string]func() shared.DomainEvent)}
}

// Register maps eventTypes to a constructor of an empty event value.
// Registering a type again replaces its constructor.
func (c *Codec) Register(newEvent func() shared.DomainEvent, eventTypes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range eventTypes {
		c.ctors[t] = newEvent
	}
}

// Knows reports whether eventType can be decoded
func (c *Codec) Knows(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ctors[eventType]
	return ok
}

// Types lists registered event types in order
func (c *Codec) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.ctors))
}

// Envelope wraps e. Encoding does not require e's type to be registered.
func (c *Codec) Envelope(e shared.DomainEvent) (*Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.EventType(), err)
	}
	return &Envelope{
		EventID:       e.EventID(),
		EventType:     e.EventType(),
		AggregateID:   e.AggregateID(),
		AggregateType: e.AggregateType(),
		TenantID:      e.TenantID(),
		OccurredAt:    e.OccurredAt().UTC(),
		Payload:       payload,
	}, nil
}

// Encode returns the envelope of e as JSON
func (c *Codec) Encode(e shared.DomainEvent) ([]byte, error) {
	env, err := c.Envelope(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses envelope JSON into the registered event type
func (c *Codec) Decode(data []byte) (shared.DomainEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return c.Open(&env)
}

// Open decodes the payload of env
func (c *Codec) Open(env *Envelope) (shared.DomainEvent, error) {
	c.mu.RLock()
	newEvent, ok := c.ctors[env.EventType]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.EventType)
	}

	e := newEvent()
	if err := json.Unmarshal(env.Payload, e); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return e, nil
}

// DomainCodec knows every relay, commission and settlement event
func DomainCodec() *Codec {
	c := NewCodec()
	c.Register(func() shared.DomainEvent { return &relay.RelayCreatedEvent{} }, relay.EventTypeRelayCreated)
	c.Register(func() shared.DomainEvent { return &relay.RelayStatusEvent{} },
		relay.EventTypeRelayDispatched,
		relay.EventTypeRelayDispatchExhausted,
		relay.EventTypeRelayAcknowledged,
		relay.EventTypeRelayFulfilled,
		relay.EventTypeRelayFailed,
		relay.EventTypeRelayCancelled,
		relay.EventTypeRelayReset,
	)
	c.Register(func() shared.DomainEvent { return &commission.CommissionEvent{} },
		commission.EventTypeCommissionCreated,
		commission.EventTypeCommissionConfirmed,
		commission.EventTypeCommissionCancelled,
	)
	c.Register(func() shared.DomainEvent { return &settlement.BatchEvent{} },
		settlement.EventTypeSettlementBatchOpened,
		settlement.EventTypeSettlementBatchClosed,
		settlement.EventTypeSettlementBatchProcessing,
		settlement.EventTypeSettlementBatchPaid,
		settlement.EventTypeSettlementBatchFailed,
		settlement.EventTypeSettlementBatchCancelled,
	)
	return c
}
