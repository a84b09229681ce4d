// Package bootstrap assembles the team cart engine from config for the
// binaries that drive it.
package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/teamcart-backend/internal/coupons"
	"github.com/angelmondragon/teamcart-backend/internal/realtime"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart/sharetoken"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart/store"
	"github.com/angelmondragon/teamcart-backend/internal/teamcartorders"
	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/angelmondragon/teamcart-backend/pkg/db"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/metrics"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox"
	"github.com/angelmondragon/teamcart-backend/pkg/redis"
)

type TeamCart struct {
	Engine  *teamcart.Engine
	Store   *store.RedisStore
	Metrics *metrics.TeamCartMetrics
}

// NewTeamCart wires the engine to redis for cart state, postgres for coupons
// and orders, and redis pub/sub for realtime notifications. Metrics register
// on reg, so call it once per process.
func NewTeamCart(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*TeamCart, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if dbClient == nil || redisClient == nil {
		return nil, fmt.Errorf("database and redis clients required")
	}

	settings, err := teamcart.SettingsFromConfig(cfg.TeamCart)
	if err != nil {
		return nil, fmt.Errorf("team cart settings: %w", err)
	}

	cartStore, err := store.NewRedisStore(redisClient.Cmdable(), cfg.TeamCart.AuditRetention)
	if err != nil {
		return nil, fmt.Errorf("team cart store: %w", err)
	}

	tokens, err := sharetoken.NewService(cfg.ShareToken)
	if err != nil {
		return nil, fmt.Errorf("share tokens: %w", err)
	}

	converter, err := teamcartorders.NewAdapter(teamcartorders.AdapterParams{
		DB:     dbClient,
		Repo:   teamcartorders.NewRepository(dbClient.DB()),
		Outbox: outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("order adapter: %w", err)
	}

	notifier, err := realtime.NewNotifier(redisClient)
	if err != nil {
		return nil, fmt.Errorf("realtime notifier: %w", err)
	}

	cartMetrics := metrics.NewTeamCartMetrics(reg)

	engine, err := teamcart.NewEngine(teamcart.EngineParams{
		Store:       cartStore,
		ShareTokens: tokens,
		Coupons:     coupons.NewService(coupons.NewRepository(dbClient.DB())),
		Converter:   converter,
		Notifier:    notifier,
		Logger:      logg,
		Metrics:     cartMetrics,
		Settings:    settings,
	})
	if err != nil {
		return nil, fmt.Errorf("team cart engine: %w", err)
	}

	return &TeamCart{Engine: engine, Store: cartStore, Metrics: cartMetrics}, nil
}
