package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/teamcart-backend/pkg/db"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox/registry"
	tcredis "github.com/angelmondragon/teamcart-backend/pkg/redis"
)

func TestRelayDeliversEmittedEventOverRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))

	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	sub := raw.Subscribe(ctx, tcredis.OutboxChannel(string(enums.EventTeamCartConverted)))
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	orderID := uuid.New()
	emitter := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	require.NoError(t, emitter.Emit(ctx, conn, outbox.DomainEvent{
		EventType:     enums.EventTeamCartConverted,
		AggregateType: enums.AggregateTeamCartOrder,
		AggregateID:   orderID,
		Data:          payloads.TeamCartConvertedEvent{OrderID: orderID, Total: "15.00"},
	}))

	r, err := New(Params{
		Logger:      logger.Nop(),
		DB:          db.Wrap(conn),
		Redis:       tcredis.Wrap(raw),
		Events:      outbox.NewRepository(conn),
		DeadLetters: outbox.NewDLQRepository(conn),
		Registry:    registry.NewEventRegistry(),
	})
	require.NoError(t, err)

	handled, err := r.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	delivered, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(delivered.Payload), &msg))
	assert.Equal(t, orderID.String(), msg.AggregateID)
	assert.Equal(t, string(enums.EventTeamCartConverted), msg.EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(msg.Envelope, &envelope))
	var data payloads.TeamCartConvertedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "15.00", data.Total)

	handled, err = r.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, handled, "published rows are not relayed twice")
}
