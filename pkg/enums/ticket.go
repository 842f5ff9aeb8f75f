package enums

import "fmt"

// TicketType maps to the ticket_type enum in Postgres.
type TicketType string

const (
	TicketTypeSingle   TicketType = "single"
	TicketTypeMulti    TicketType = "multi"
	TicketTypeTimepass TicketType = "timepass"
	TicketTypeCredit   TicketType = "credit"
)

var validTicketTypes = []TicketType{
	TicketTypeSingle,
	TicketTypeMulti,
	TicketTypeTimepass,
	TicketTypeCredit,
}

// IsValid reports whether the value matches the canonical ticket_type enum.
func (t TicketType) IsValid() bool {
	for _, candidate := range validTicketTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTicketType converts raw input into TicketType.
func ParseTicketType(value string) (TicketType, error) {
	for _, candidate := range validTicketTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ticket type %q", value)
}

// TicketStatus maps to the ticket_status enum in Postgres.
type TicketStatus string

const (
	TicketStatusActive    TicketStatus = "active"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusRefunded  TicketStatus = "refunded"
	TicketStatusExpired   TicketStatus = "expired"
)

var validTicketStatuses = []TicketStatus{
	TicketStatusActive,
	TicketStatusCancelled,
	TicketStatusRefunded,
	TicketStatusExpired,
}

// IsValid reports whether the value matches the canonical ticket_status enum.
func (s TicketStatus) IsValid() bool {
	for _, candidate := range validTicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTicketStatus converts raw input into TicketStatus.
func ParseTicketStatus(value string) (TicketStatus, error) {
	for _, candidate := range validTicketStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ticket status %q", value)
}

// TimepassPolicy decides how a timepass ticket's minutes are consumed per
// scan. The rule is package-level configuration, not a global constant.
type TimepassPolicy string

const (
	// TimepassPolicyFixedDecrement burns a fixed number of minutes per scan.
	TimepassPolicyFixedDecrement TimepassPolicy = "fixed_decrement"
	// TimepassPolicyEntryExit pairs an entry scan with an exit scan and burns
	// the elapsed minutes on exit.
	TimepassPolicyEntryExit TimepassPolicy = "entry_exit"
)

var validTimepassPolicies = []TimepassPolicy{
	TimepassPolicyFixedDecrement,
	TimepassPolicyEntryExit,
}

// IsValid reports whether the value matches the canonical timepass_policy enum.
func (p TimepassPolicy) IsValid() bool {
	for _, candidate := range validTimepassPolicies {
		if candidate == p {
			return true
		}
	}
	return false
}
