package enums

import "fmt"

// ContributionStatus describes the lifecycle state of a contribution.
// The status is monotonic: once a contribution leaves pending it never
// transitions again.
type ContributionStatus string

const (
	ContributionStatusPending   ContributionStatus = "pending"
	ContributionStatusApproved  ContributionStatus = "approved"
	ContributionStatusRejected  ContributionStatus = "rejected"
	ContributionStatusCancelled ContributionStatus = "cancelled"
)

var validContributionStatuses = []ContributionStatus{
	ContributionStatusPending,
	ContributionStatusApproved,
	ContributionStatusRejected,
	ContributionStatusCancelled,
}

// String implements fmt.Stringer.
func (s ContributionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ContributionStatus.
func (s ContributionStatus) IsValid() bool {
	for _, candidate := range validContributionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s ContributionStatus) IsTerminal() bool {
	return s == ContributionStatusApproved ||
		s == ContributionStatusRejected ||
		s == ContributionStatusCancelled
}

// ParseContributionStatus converts raw input into a ContributionStatus.
func ParseContributionStatus(value string) (ContributionStatus, error) {
	for _, candidate := range validContributionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid contribution status %q", value)
}
