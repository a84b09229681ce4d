package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

const (
	OutboxRetentionJobName = "outbox-retention"

	defaultOutboxRetention   = 30 * 24 * time.Hour
	defaultOutboxMinAttempts = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type OutboxRetentionParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPruner
	// Retention is how long relayed and dead rows are kept. Zero means 30 days.
	Retention time.Duration
	// MinAttempts marks an unpublished row as dead. Match the relay's max attempts.
	MinAttempts int
	// Every defaults to once a day.
	Every time.Duration
}

// OutboxRetention deletes outbox rows the relay is finished with.
type OutboxRetention struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxPruner
	retention   time.Duration
	minAttempts int
	every       time.Duration
	now         func() time.Time
}

func NewOutboxRetention(params OutboxRetentionParams) (*OutboxRetention, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &OutboxRetention{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   params.Retention,
		minAttempts: params.MinAttempts,
		every:       params.Every,
		now:         time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.minAttempts <= 0 {
		job.minAttempts = defaultOutboxMinAttempts
	}
	if job.every <= 0 {
		job.every = 24 * time.Hour
	}
	return job, nil
}

func (j *OutboxRetention) Name() string { return OutboxRetentionJobName }

func (j *OutboxRetention) Every() time.Duration { return j.every }

func (j *OutboxRetention) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		deleted, err = j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts)
		return err
	})
	if err != nil {
		return err
	}
	if deleted > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"min_attempts": j.minAttempts,
			"rows_deleted": deleted,
		})
		j.logg.Info(logCtx, "pruned outbox rows")
	}
	return nil
}
