package settlement

// Status represents the status of a settlement batch
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusClosed     Status = "CLOSED"
	StatusProcessing Status = "PROCESSING"
	StatusPaid       Status = "PAID"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusOpen:       {StatusClosed, StatusCancelled},
	StatusClosed:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusPaid, StatusFailed},
	StatusFailed:     {StatusProcessing},
}

// IsValid returns true if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusProcessing, StatusPaid, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for PAID and CANCELLED
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
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

// HoldsCommissions reports whether commissions stamped with a batch in this
// status are locked to it
func (s Status) HoldsCommissions() bool {
	switch s {
	case StatusClosed, StatusProcessing, StatusFailed, StatusPaid:
		return true
	default:
		return false
	}
}
