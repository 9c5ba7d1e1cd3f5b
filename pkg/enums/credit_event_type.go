package enums

import "fmt"

// CreditEventType classifies immutable credit ledger entries.
type CreditEventType string

const (
	// CreditEventContributionApproved is issued when a moderator approves a
	// vehicle contribution. It is the only automatic issuance path.
	CreditEventContributionApproved CreditEventType = "contribution_approved"
	// CreditEventManualAdjustment covers direct admin corrections.
	CreditEventManualAdjustment CreditEventType = "manual_adjustment"
)

var validCreditEventTypes = []CreditEventType{
	CreditEventContributionApproved,
	CreditEventManualAdjustment,
}

// String implements fmt.Stringer.
func (c CreditEventType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CreditEventType.
func (c CreditEventType) IsValid() bool {
	for _, candidate := range validCreditEventTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCreditEventType converts raw input into a CreditEventType.
func ParseCreditEventType(value string) (CreditEventType, error) {
	for _, candidate := range validCreditEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit event type %q", value)
}
