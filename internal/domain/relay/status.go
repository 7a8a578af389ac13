package relay

// Status represents the status of an order relay
type Status string

const (
	StatusCreated      Status = "CREATED"
	StatusDispatched   Status = "DISPATCHED"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusFulfilled    Status = "FULFILLED"
	StatusFailed       Status = "FAILED"
	StatusCancelled    Status = "CANCELLED"
)

// transitions is the whitelist of legal status changes
var transitions = map[Status][]Status{
	StatusCreated:      {StatusDispatched, StatusCancelled, StatusFailed},
	StatusDispatched:   {StatusAcknowledged, StatusFailed, StatusCancelled},
	StatusAcknowledged: {StatusFulfilled, StatusFailed},
	StatusFailed:       {StatusCreated},
}

// IsValid returns true if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusDispatched, StatusAcknowledged,
		StatusFulfilled, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusFulfilled || s == StatusCancelled
}

// CanTransitionTo reports whether the whitelist allows s -> next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// VoidsOrder reports whether the relay status means the order will not be paid out
func (s Status) VoidsOrder() bool {
	return s == StatusCancelled
}
