// Package relay moves committed outbox rows onto Redis pub/sub channels.
// Delivery is at least once: a row is marked published in the transaction
// that claimed it, so a crash between PUBLISH and COMMIT sends it again.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 5 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

// Message is the body published on tc:outbox:<eventType>.
type Message struct {
	OutboxID      string          `json:"outboxId"`
	EventType     string          `json:"eventType"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	CreatedAt     time.Time       `json:"createdAt"`
	Envelope      json.RawMessage `json:"envelope"`
}

type database interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type publisher interface {
	Ping(context.Context) error
	Publish(ctx context.Context, channel string, payload []byte) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type Params struct {
	Logger      *logger.Logger
	DB          database
	Redis       publisher
	Events      eventStore
	DeadLetters deadLetterStore
	Registry    resolver

	BatchSize      int
	PollInterval   time.Duration
	MaxAttempts    int
	PublishTimeout time.Duration
}

type Relay struct {
	logg     *logger.Logger
	db       database
	redis    publisher
	events   eventStore
	dead     deadLetterStore
	registry resolver

	batchSize      int
	pollInterval   time.Duration
	maxAttempts    int
	publishTimeout time.Duration
	now            func() time.Time
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Redis == nil:
		return nil, errors.New("redis client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}
	return &Relay{
		logg:           p.Logger,
		db:             p.DB,
		redis:          p.Redis,
		events:         p.Events,
		dead:           p.DeadLetters,
		registry:       p.Registry,
		batchSize:      orDefault(p.BatchSize, defaultBatchSize),
		pollInterval:   orDefault(p.PollInterval, defaultPollInterval),
		maxAttempts:    orDefault(p.MaxAttempts, defaultMaxAttempts),
		publishTimeout: orDefault(p.PublishTimeout, defaultPublishTimeout),
		now:            time.Now,
	}, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Run polls until ctx is done. Full batches are followed immediately by the
// next one; failing batches back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	wait := r.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		handled, err := r.RelayOnce(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait = nextBackoff(wait, r.pollInterval)
		case handled == r.batchSize:
			wait = r.pollInterval
			continue
		default:
			wait = r.pollInterval
		}
		if err := sleep(ctx, wait+jitter()); err != nil {
			return err
		}
	}
}

// RelayOnce claims and settles one batch, returning how many rows it handled.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := r.settle(ctx, tx, row, r.deliver(ctx, row)); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

// outcome of one delivery. deadLetter is set when the row must not be retried.
type outcome struct {
	channel    string
	err        error
	deadLetter enums.DeadLetterReason
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) outcome {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return outcome{err: err, deadLetter: enums.DeadLetterRejected}
	}
	channel := resolved.Descriptor.Channel
	if channel == "" {
		return outcome{err: fmt.Errorf("no channel configured for %s", row.EventType), deadLetter: enums.DeadLetterRejected}
	}
	body, err := json.Marshal(Message{
		OutboxID:      row.ID.String(),
		EventType:     string(row.EventType),
		AggregateType: string(row.AggregateType),
		AggregateID:   row.AggregateID.String(),
		CreatedAt:     row.CreatedAt,
		Envelope:      row.Payload,
	})
	if err != nil {
		return outcome{channel: channel, err: err, deadLetter: enums.DeadLetterRejected}
	}

	pubCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()
	if err := r.redis.Publish(pubCtx, channel, body); err != nil {
		if row.AttemptCount+1 >= r.maxAttempts {
			return outcome{channel: channel, err: fmt.Errorf("max publish attempts reached: %w", err), deadLetter: enums.DeadLetterMaxAttempts}
		}
		return outcome{channel: channel, err: err}
	}
	return outcome{channel: channel}
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, out outcome) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
		"channel":        out.channel,
	})

	switch {
	case out.err == nil:
		if err := r.events.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Debug(logCtx, "outbox event published")

	case out.deadLetter != "":
		logCtx = r.logg.WithFields(logCtx, map[string]any{"error_reason": out.deadLetter, "error": out.err.Error()})
		r.logg.Warn(logCtx, "outbox event dead-lettered")
		msg := out.err.Error()
		if err := r.dead.InsertTx(tx, models.OutboxDLQ{
			EventID:       row.ID,
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			Payload:       row.Payload,
			ErrorReason:   out.deadLetter,
			ErrorMessage:  &msg,
			AttemptCount:  row.AttemptCount,
			FailedAt:      r.now().UTC(),
		}); err != nil {
			return fmt.Errorf("insert dlq %s: %w", row.ID, err)
		}
		if err := r.events.MarkTerminalTx(tx, row.ID, out.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", row.ID, err)
		}

	default:
		r.logg.Warn(r.logg.WithField(logCtx, "error", out.err.Error()), "outbox publish failed, will retry")
		if err := r.events.MarkFailedTx(tx, row.ID, out.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", row.ID, err)
		}
	}
	return nil
}

func nextBackoff(current, base time.Duration) time.Duration {
	if current < base {
		current = base
	}
	return min(current*2, maxBackoff)
}

func jitter() time.Duration {
	return rand.N(jitterWindow)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
