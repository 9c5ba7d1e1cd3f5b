package enums

import "fmt"

// OutboxEventType names the domain events handed to the notification
// collaborator.
type OutboxEventType string

const (
	OutboxEventContributionSubmitted OutboxEventType = "contribution.submitted"
	OutboxEventContributionApproved  OutboxEventType = "contribution.approved"
	OutboxEventContributionRejected  OutboxEventType = "contribution.rejected"
	OutboxEventImageApproved         OutboxEventType = "image_contribution.approved"
	OutboxEventImageRejected         OutboxEventType = "image_contribution.rejected"
)

var validOutboxEventTypes = []OutboxEventType{
	OutboxEventContributionSubmitted,
	OutboxEventContributionApproved,
	OutboxEventContributionRejected,
	OutboxEventImageApproved,
	OutboxEventImageRejected,
}

// IsValid reports whether the value is a known OutboxEventType.
func (o OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType names the entity an outbox event refers to.
type OutboxAggregateType string

const (
	OutboxAggregateContribution      OutboxAggregateType = "contribution"
	OutboxAggregateImageContribution OutboxAggregateType = "image_contribution"
)

// IsValid reports whether the value is a known OutboxAggregateType.
func (o OutboxAggregateType) IsValid() bool {
	return o == OutboxAggregateContribution || o == OutboxAggregateImageContribution
}
