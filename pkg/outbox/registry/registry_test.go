package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox/payloads"
)

func TestResolveConvertedEvent(t *testing.T) {
	reg := NewEventRegistry()
	orderID := uuid.New()
	data, err := json.Marshal(payloads.TeamCartConvertedEvent{
		TeamCartID: uuid.New(),
		OrderID:    orderID,
		Currency:   enums.CurrencyUSD,
		Total:      "15.00",
	})
	require.NoError(t, err)

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventTeamCartConverted,
		AggregateType: enums.AggregateTeamCartOrder,
		AggregateID:   orderID,
		Payload:       envelope(t, 1, data),
	})
	require.NoError(t, err)
	assert.Equal(t, "tc:outbox:team_cart_converted", resolved.Descriptor.Channel)
	payload, ok := resolved.Payload.(*payloads.TeamCartConvertedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, orderID, payload.OrderID)
	assert.Equal(t, "15.00", payload.Total)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())

	desc, ok := reg.Descriptor(enums.EventTeamCartConverted)
	require.True(t, ok)
	assert.Equal(t, enums.AggregateTeamCartOrder, desc.AggregateType)
}

func TestResolveRejectsBadRows(t *testing.T) {
	reg := NewEventRegistry()
	valid := envelope(t, 1, []byte(`{"order_id":"00000000-0000-0000-0000-000000000000"}`))

	cases := map[string]models.OutboxEvent{
		"unknown event type": {
			EventType:     enums.OutboxEventType("team_cart_archived"),
			AggregateType: enums.AggregateTeamCart,
			AggregateID:   uuid.New(),
			Payload:       valid,
		},
		"aggregate mismatch": {
			EventType:     enums.EventTeamCartConverted,
			AggregateType: enums.AggregateTeamCart,
			AggregateID:   uuid.New(),
			Payload:       valid,
		},
		"missing aggregate id": {
			EventType:     enums.EventTeamCartConverted,
			AggregateType: enums.AggregateTeamCartOrder,
			Payload:       valid,
		},
		"null payload": {
			EventType:     enums.EventTeamCartConverted,
			AggregateType: enums.AggregateTeamCartOrder,
			AggregateID:   uuid.New(),
			Payload:       envelope(t, 1, []byte("null")),
		},
		"unversioned envelope": {
			EventType:     enums.EventTeamCartConverted,
			AggregateType: enums.AggregateTeamCartOrder,
			AggregateID:   uuid.New(),
			Payload:       envelope(t, 0, []byte(`{}`)),
		},
		"payload of the wrong shape": {
			EventType:     enums.EventTeamCartConverted,
			AggregateType: enums.AggregateTeamCartOrder,
			AggregateID:   uuid.New(),
			Payload:       envelope(t, 1, []byte(`{"order_id":42}`)),
		},
		"garbage envelope": {
			EventType:     enums.EventTeamCartConverted,
			AggregateType: enums.AggregateTeamCartOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`not-json`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			require.ErrorIs(t, err, ErrUndeliverable)
		})
	}
}

func envelope(t *testing.T, version int, data []byte) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return raw
}

func TestVoidedOrderEventIsRegistered(t *testing.T) {
	desc, ok := NewEventRegistry().Descriptor(enums.EventTeamCartOrderVoided)
	require.True(t, ok)
	assert.Equal(t, enums.AggregateTeamCartOrder, desc.AggregateType)
	assert.Equal(t, "tc:outbox:team_cart_order_voided", desc.Channel)
}
