// Package registry knows every outbox event the services emit: which
// aggregate it belongs to, which Redis channel carries it, and how to decode
// its payload.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/teamcart-backend/pkg/redis"
)

// ErrUndeliverable marks rows that will never resolve, however often retried.
var ErrUndeliverable = errors.New("undeliverable outbox event")

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Channel       string
	decode        func(json.RawMessage) (any, error)
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry() *EventRegistry {
	reg := &EventRegistry{entries: map[enums.OutboxEventType]EventDescriptor{}}
	register[payloads.TeamCartConvertedEvent](reg, enums.EventTeamCartConverted, enums.AggregateTeamCartOrder)
	register[payloads.TeamCartOrderVoidedEvent](reg, enums.EventTeamCartOrderVoided, enums.AggregateTeamCartOrder)
	return reg
}

func register[T any](reg *EventRegistry, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) {
	reg.entries[eventType] = EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Channel:       redis.OutboxChannel(string(eventType)),
		decode: func(data json.RawMessage) (any, error) {
			v := new(T)
			if err := json.Unmarshal(data, v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// Descriptor returns the registration for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row against its registration and decodes the payload.
// Every error wraps ErrUndeliverable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, undeliverable("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, undeliverable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, undeliverable("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, undeliverable("decode envelope: %v", err)
	}
	if envelope.EventID == "" || envelope.Version < 1 {
		return nil, undeliverable("envelope missing event id or version")
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, undeliverable("payload missing for %s", event.EventType)
	}
	payload, err := desc.decode(data)
	if err != nil {
		return nil, undeliverable("decode %s payload: %v", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func undeliverable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUndeliverable, fmt.Sprintf(format, args...))
}
