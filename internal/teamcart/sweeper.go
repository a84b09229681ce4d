package teamcart

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	SweeperJobName           = "teamcart-expiry"
	defaultSweeperBatchSize  = 100
	defaultSweeperMaxBatches = 10
)

type cartExpirer interface {
	Expire(ctx context.Context, cartID uuid.UUID) (*TeamCart, error)
	Convert(ctx context.Context, cmd ConvertCommand) (*TeamCart, error)
}

type expiryLister interface {
	ListExpiringBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// SweeperParams configure the expiry sweeper job.
type SweeperParams struct {
	Engine     cartExpirer
	Store      expiryLister
	Clock      Clock
	Logger     *logger.Logger
	Metrics    *metrics.TeamCartMetrics
	BatchSize  int
	MaxBatches int
}

// Sweeper expires stale carts through the same Expire transition interactive
// callers use. It runs as a cron job.
type Sweeper struct {
	engine     cartExpirer
	store      expiryLister
	clock      Clock
	logg       *logger.Logger
	metrics    *metrics.TeamCartMetrics
	batchSize  int
	maxBatches int
}

func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Engine == nil {
		return nil, fmt.Errorf("team cart engine required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("team cart store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = SystemClock
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweeperBatchSize
	}
	maxBatches := params.MaxBatches
	if maxBatches <= 0 {
		maxBatches = defaultSweeperMaxBatches
	}
	return &Sweeper{
		engine:     params.Engine,
		store:      params.Store,
		clock:      clock,
		logg:       params.Logger,
		metrics:    params.Metrics,
		batchSize:  batchSize,
		maxBatches: maxBatches,
	}, nil
}

func (s *Sweeper) Name() string { return SweeperJobName }

// Run processes up to maxBatches pages. Carts that stay in the index (not
// due, awaiting conversion, failed) are remembered so later pages reach past
// them instead of re-reading the same head of the index.
func (s *Sweeper) Run(ctx context.Context) error {
	cutoff := s.clock.Now()
	seen := make(map[uuid.UUID]struct{})
	var errs []error
	processed := 0

	for batch := 0; batch < s.maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return multierr.Append(multierr.Combine(errs...), err)
		}
		limit := s.batchSize + len(seen)
		ids, err := s.store.ListExpiringBefore(ctx, cutoff, limit)
		if err != nil {
			return multierr.Append(multierr.Combine(errs...), fmt.Errorf("list expiring carts: %w", err))
		}

		fresh := 0
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			fresh++
			if err := s.sweepOne(ctx, id); err != nil {
				errs = append(errs, err)
			}
		}
		processed += fresh
		if fresh == 0 || len(ids) < limit {
			break
		}
	}

	if processed > 0 {
		s.logg.Info(s.logg.WithField(ctx, "carts", processed), "teamcart.sweep_complete")
	}
	return multierr.Combine(errs...)
}

func (s *Sweeper) sweepOne(ctx context.Context, cartID uuid.UUID) error {
	cctx := s.logg.WithCartID(ctx, cartID.String())

	cart, err := s.engine.Expire(cctx, cartID)
	switch {
	case err == nil:
		s.metrics.IncSwept(cart.Status.String())
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		s.metrics.IncSwept("evicted")
		return nil
	case ConflictReason(err) == ReasonNotDue:
		s.metrics.IncSwept("not_due")
		return nil
	case ConflictReason(err) == ReasonAwaitingConversion:
		converted, convErr := s.engine.Convert(cctx, ConvertCommand{CartID: cartID, ExpectedVersion: AnyVersion})
		if convErr != nil {
			s.metrics.IncSwept("failed")
			s.logg.Error(cctx, "teamcart.sweep_convert_failed", convErr)
			return fmt.Errorf("convert team cart %s: %w", cartID, convErr)
		}
		s.metrics.IncSwept(converted.Status.String())
		return nil
	default:
		s.metrics.IncSwept("failed")
		s.logg.Error(cctx, "teamcart.sweep_expire_failed", err)
		return fmt.Errorf("expire team cart %s: %w", cartID, err)
	}
}
