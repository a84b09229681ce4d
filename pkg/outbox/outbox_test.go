package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return conn
}

type convertedData struct {
	OrderID uuid.UUID `json:"order_id"`
}

func TestEmitWritesEnvelope(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), logger.Nop())
	aggregate := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Role: "host"}

	err := svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventTeamCartConverted,
		AggregateType: enums.AggregateTeamCartOrder,
		AggregateID:   aggregate,
		Actor:         actor,
		Data:          convertedData{OrderID: aggregate},
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.NotEqual(t, uuid.Nil, rows[0].ID)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor.UserID, envelope.Actor.UserID)

	var data convertedData
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, aggregate, data.OrderID)
}

func TestEmitRejectsMissingTxAndUnknownType(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventTeamCartConverted}))
	require.Error(t, svc.Emit(context.Background(), db, DomainEvent{EventType: "mystery"}))
}

func TestEmitOnceSkipsDuplicates(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), logger.Nop())
	event := DomainEvent{
		EventType:     enums.EventTeamCartConverted,
		AggregateType: enums.AggregateTeamCartOrder,
		AggregateID:   uuid.New(),
		Data:          map[string]string{"k": "v"},
	}
	require.NoError(t, svc.EmitOnce(context.Background(), db, event))
	require.NoError(t, svc.EmitOnce(context.Background(), db, event))

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func seedEvent(t *testing.T, db *gorm.DB, attempts int) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventTeamCartConverted,
		AggregateType: enums.AggregateTeamCartOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		AttemptCount:  attempts,
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	fresh := seedEvent(t, db, 0)
	retrying := seedEvent(t, db, 2)
	exhausted := seedEvent(t, db, 3)

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{fresh.ID, retrying.ID}, ids)
	assert.NotContains(t, ids, exhausted.ID)

	require.NoError(t, repo.MarkPublishedTx(db, fresh.ID))
	require.NoError(t, repo.MarkFailedTx(db, retrying.ID, errors.New("redis down")))

	var got models.OutboxEvent
	require.NoError(t, db.First(&got, "id = ?", retrying.ID).Error)
	assert.Equal(t, 3, got.AttemptCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "redis down", *got.LastError)

	terminal := seedEvent(t, db, 0)
	require.NoError(t, repo.MarkTerminalTx(db, terminal.ID, errors.New("bad payload"), 3))

	rows, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, db.First(&got, "id = ?", fresh.ID).Error)
	assert.NotNil(t, got.PublishedAt)
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	published := seedEvent(t, db, 0)
	seedEvent(t, db, 5)
	pending := seedEvent(t, db, 1)
	require.NoError(t, repo.MarkPublishedTx(db, published.ID))

	deleted, err := repo.DeletePublishedBefore(context.Background(), db, time.Now().UTC().Add(-time.Hour), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	deleted, err = repo.DeletePublishedBefore(context.Background(), db, time.Now().UTC().Add(time.Hour), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, pending.ID, remaining[0].ID)
}

func TestDLQRepositoryTruncatesMessages(t *testing.T) {
	db := newTestDB(t)
	repo := NewDLQRepository(db)
	eventID := uuid.New()
	long := make([]byte, maxErrorLen+50)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	require.NoError(t, repo.InsertTx(db, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventTeamCartConverted,
		AggregateType: enums.AggregateTeamCartOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.DeadLetterMaxAttempts,
		ErrorMessage:  &msg,
		FailedAt:      time.Now().UTC(),
	}))

	entry, err := repo.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Len(t, *entry.ErrorMessage, maxErrorLen)

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
	require.Error(t, repo.InsertTx(nil, models.OutboxDLQ{}))
}

func TestRetractOnlyDropsPendingEvents(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), logger.Nop())
	ctx := context.Background()

	pending := seedEvent(t, db, 0)
	retracted, err := svc.Retract(ctx, db, pending.EventType, pending.AggregateType, pending.AggregateID)
	require.NoError(t, err)
	assert.True(t, retracted)
	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("id = ?", pending.ID).Count(&count).Error)
	assert.Zero(t, count)

	relayed := seedEvent(t, db, 0)
	require.NoError(t, NewRepository(db).MarkPublishedTx(db, relayed.ID))
	retracted, err = svc.Retract(ctx, db, relayed.EventType, relayed.AggregateType, relayed.AggregateID)
	require.NoError(t, err)
	assert.False(t, retracted)
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("id = ?", relayed.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = svc.Retract(ctx, nil, relayed.EventType, relayed.AggregateType, relayed.AggregateID)
	require.Error(t, err)
}
