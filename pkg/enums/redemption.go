package enums

import "fmt"

// RedemptionResult maps to the redemption_result enum in Postgres.
type RedemptionResult string

const (
	RedemptionResultPass RedemptionResult = "pass"
	RedemptionResultFail RedemptionResult = "fail"
)

// IsValid reports whether the value matches the canonical redemption_result enum.
func (r RedemptionResult) IsValid() bool {
	return r == RedemptionResultPass || r == RedemptionResultFail
}

// RedemptionReason maps to the redemption_reason enum in Postgres. Populated
// only when the result is fail.
type RedemptionReason string

const (
	RedemptionReasonExpired          RedemptionReason = "expired"
	RedemptionReasonDuplicateUse     RedemptionReason = "duplicate_use"
	RedemptionReasonWrongDevice      RedemptionReason = "wrong_device"
	RedemptionReasonNotStarted       RedemptionReason = "not_started"
	RedemptionReasonExhausted        RedemptionReason = "exhausted"
	RedemptionReasonInvalidSignature RedemptionReason = "invalid_signature"
	RedemptionReasonCancelled        RedemptionReason = "cancelled"
	RedemptionReasonRefunded         RedemptionReason = "refunded"
)

var validRedemptionReasons = []RedemptionReason{
	RedemptionReasonExpired,
	RedemptionReasonDuplicateUse,
	RedemptionReasonWrongDevice,
	RedemptionReasonNotStarted,
	RedemptionReasonExhausted,
	RedemptionReasonInvalidSignature,
	RedemptionReasonCancelled,
	RedemptionReasonRefunded,
}

// IsValid reports whether the value matches the canonical redemption_reason enum.
func (r RedemptionReason) IsValid() bool {
	for _, candidate := range validRedemptionReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRedemptionReason converts raw input into RedemptionReason.
func ParseRedemptionReason(value string) (RedemptionReason, error) {
	for _, candidate := range validRedemptionReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid redemption reason %q", value)
}

// IsFraudSignal reports whether repeated occurrences of this failure reason
// are worth surfacing to the fraud notification stream.
func (r RedemptionReason) IsFraudSignal() bool {
	switch r {
	case RedemptionReasonExhausted, RedemptionReasonDuplicateUse, RedemptionReasonInvalidSignature:
		return true
	default:
		return false
	}
}
