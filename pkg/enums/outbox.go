package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateTeamCart      OutboxAggregateType = "team_cart"
	AggregateTeamCartOrder OutboxAggregateType = "team_cart_order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateTeamCart,
	AggregateTeamCartOrder,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventTeamCartConverted   OutboxEventType = "team_cart_converted"
	EventTeamCartOrderVoided OutboxEventType = "team_cart_order_voided"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTeamCartConverted,
	EventTeamCartOrderVoided,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// DeadLetterReason records why the relay moved a row to outbox_dlq.
type DeadLetterReason string

const (
	DeadLetterMaxAttempts DeadLetterReason = "max_attempts"
	DeadLetterRejected    DeadLetterReason = "non_retryable"
)

// IsValid reports whether the reason exists in outbox_dlq_error_reason_enum.
func (r DeadLetterReason) IsValid() bool {
	return r == DeadLetterMaxAttempts || r == DeadLetterRejected
}
