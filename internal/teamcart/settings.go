package teamcart

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

const (
	defaultTTL           = time.Hour
	defaultPaymentWindow = 15 * time.Minute
	defaultMemberCap     = 20
	defaultRetryBudget   = 4
	defaultNotifyTimeout = 2 * time.Second
)

// Settings tune the engine's lifecycle policy.
type Settings struct {
	TTL                 time.Duration
	MaxDeadline         time.Duration
	PaymentWindow       time.Duration
	MemberCap           int
	RetryBudget         int
	LockedExpiryOutcome enums.TeamCartStatus
	AllowCashOnDelivery bool
	DefaultCurrency     enums.Currency
	TaxRateBps          int64
	Delivery            DeliveryFeePolicy
	NotifyTimeout       time.Duration
}

// SettingsFromConfig parses the env-driven configuration.
func SettingsFromConfig(cfg config.TeamCartConfig) (Settings, error) {
	currency, err := enums.ParseCurrency(cfg.DefaultCurrency)
	if err != nil {
		return Settings{}, err
	}
	fee, err := parseAmount(cfg.DeliveryFee)
	if err != nil {
		return Settings{}, fmt.Errorf("delivery fee: %w", err)
	}
	freeAbove, err := parseAmount(cfg.FreeDeliveryAbove)
	if err != nil {
		return Settings{}, fmt.Errorf("free delivery threshold: %w", err)
	}
	outcome := enums.TeamCartStatusExpired
	if strings.EqualFold(strings.TrimSpace(cfg.LockedExpiryOutcome), config.LockedExpiryCancelled) {
		outcome = enums.TeamCartStatusCancelled
	}
	return Settings{
		TTL:                 cfg.TTL,
		MaxDeadline:         cfg.MaxDeadline,
		PaymentWindow:       cfg.PaymentWindow,
		MemberCap:           cfg.MemberCap,
		RetryBudget:         cfg.RetryBudget,
		LockedExpiryOutcome: outcome,
		AllowCashOnDelivery: cfg.AllowCashOnDelivery,
		DefaultCurrency:     currency,
		TaxRateBps:          cfg.TaxRateBps,
		Delivery:            DeliveryFeePolicy{Flat: fee, FreeAbove: freeAbove},
		NotifyTimeout:       cfg.NotifyTimeout,
	}, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %s must not be negative", raw)
	}
	return amount, nil
}

func (s Settings) withDefaults() Settings {
	if s.TTL <= 0 {
		s.TTL = defaultTTL
	}
	if s.PaymentWindow <= 0 {
		s.PaymentWindow = defaultPaymentWindow
	}
	if s.MemberCap <= 0 {
		s.MemberCap = defaultMemberCap
	}
	if s.RetryBudget <= 0 {
		s.RetryBudget = defaultRetryBudget
	}
	if s.NotifyTimeout <= 0 {
		s.NotifyTimeout = defaultNotifyTimeout
	}
	if !s.DefaultCurrency.IsValid() {
		s.DefaultCurrency = enums.CurrencyUSD
	}
	if s.LockedExpiryOutcome != enums.TeamCartStatusCancelled {
		s.LockedExpiryOutcome = enums.TeamCartStatusExpired
	}
	return s
}
