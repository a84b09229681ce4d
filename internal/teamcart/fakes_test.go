package teamcart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type storedCart struct {
	cart    *TeamCart
	version int64
}

type memoryStore struct {
	mu       sync.Mutex
	carts    map[uuid.UUID]*storedCart
	afterGet func()
	getErr   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{carts: map[uuid.UUID]*storedCart{}}
}

func (s *memoryStore) Create(_ context.Context, cart *TeamCart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[cart.ID]; ok {
		return ErrCartExists
	}
	s.carts[cart.ID] = &storedCart{cart: cart.Clone(), version: 0}
	return nil
}

func (s *memoryStore) Get(_ context.Context, cartID uuid.UUID) (*TeamCart, int64, error) {
	s.mu.Lock()
	if s.getErr != nil {
		err := s.getErr
		s.mu.Unlock()
		return nil, 0, err
	}
	stored, ok := s.carts[cartID]
	var (
		cart    *TeamCart
		version int64
	)
	if ok {
		cart = stored.cart.Clone()
		cart.Version = stored.version
		version = stored.version
	}
	hook := s.afterGet
	s.mu.Unlock()

	if !ok {
		return nil, 0, ErrCartNotFound
	}
	if hook != nil {
		hook()
	}
	return cart, version, nil
}

func (s *memoryStore) CompareAndSwap(_ context.Context, cartID uuid.UUID, expected int64, next *TeamCart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.carts[cartID]
	if !ok {
		return ErrCartNotFound
	}
	if stored.version != expected {
		return ErrVersionConflict
	}
	if next.Version != expected+1 {
		return fmt.Errorf("next version %d must follow %d", next.Version, expected)
	}
	stored.cart = next.Clone()
	stored.version = next.Version
	return nil
}

func (s *memoryStore) ListExpiringBefore(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var live []*TeamCart
	for _, stored := range s.carts {
		if stored.cart.Status.IsTerminal() || stored.cart.ExpiresAt.After(cutoff) {
			continue
		}
		live = append(live, stored.cart)
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].ExpiresAt.Equal(live[j].ExpiresAt) {
			return live[i].ExpiresAt.Before(live[j].ExpiresAt)
		}
		return live[i].ID.String() < live[j].ID.String()
	})
	var ids []uuid.UUID
	for i := 0; i < len(live) && i < limit; i++ {
		ids = append(ids, live[i].ID)
	}
	return ids, nil
}

func (s *memoryStore) Touch(_ context.Context, cartID uuid.UUID, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.carts[cartID]
	if !ok {
		return ErrCartNotFound
	}
	if stored.cart.Status == enums.TeamCartStatusOpen && expiresAt.After(stored.cart.ExpiresAt) {
		stored.cart.ExpiresAt = expiresAt
	}
	return nil
}

func (s *memoryStore) version(cartID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carts[cartID].version
}

func (s *memoryStore) setAfterGet(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterGet = hook
}

type prefixTokens struct{}

const tokenPrefix = "share-"

func (prefixTokens) Issue(cartID uuid.UUID) (string, error) {
	return tokenPrefix + cartID.String(), nil
}

func (prefixTokens) Resolve(token string) (uuid.UUID, error) {
	if !strings.HasPrefix(token, tokenPrefix) {
		return uuid.Nil, errors.New("malformed token")
	}
	return uuid.Parse(strings.TrimPrefix(token, tokenPrefix))
}

type fakeOrder struct {
	id      uuid.UUID
	version int64
}

// fakeConverter keys orders by cart id and version like the SQL adapter.
type fakeConverter struct {
	mu     sync.Mutex
	calls  map[uuid.UUID]int
	orders map[uuid.UUID]fakeOrder
	voided []uuid.UUID
	err    error
}

func newFakeConverter() *fakeConverter {
	return &fakeConverter{calls: map[uuid.UUID]int{}, orders: map[uuid.UUID]fakeOrder{}}
}

func (c *fakeConverter) Convert(_ context.Context, snapshot *TeamCart) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[snapshot.ID]++
	if c.err != nil {
		return uuid.Nil, c.err
	}
	if existing, ok := c.orders[snapshot.ID]; ok {
		switch {
		case existing.version == snapshot.Version:
			return existing.id, nil
		case existing.version > snapshot.Version:
			return uuid.Nil, errors.New("stale snapshot")
		}
		c.voided = append(c.voided, existing.id)
	}
	order := fakeOrder{id: uuid.New(), version: snapshot.Version}
	c.orders[snapshot.ID] = order
	return order.id, nil
}

func (c *fakeConverter) Void(_ context.Context, cartID, orderID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.orders[cartID]; ok && existing.id == orderID {
		delete(c.orders, cartID)
		c.voided = append(c.voided, orderID)
	}
	return nil
}

// liveOrder reports the order currently persisted for the cart.
func (c *fakeConverter) liveOrder(cartID uuid.UUID) (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	order, ok := c.orders[cartID]
	return order.id, ok
}

func (c *fakeConverter) voidedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.voided)
}

func (c *fakeConverter) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *fakeConverter) callCount(cartID uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[cartID]
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *recordingNotifier) record(event string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) NotifyCartUpdated(_ context.Context, _ uuid.UUID, version int64) error {
	return n.record(fmt.Sprintf("updated:%d", version))
}

func (n *recordingNotifier) NotifyLocked(context.Context, uuid.UUID) error {
	return n.record("locked")
}

func (n *recordingNotifier) NotifyReadyToConfirm(context.Context, uuid.UUID) error {
	return n.record("ready_to_confirm")
}

func (n *recordingNotifier) NotifyPaymentEvent(_ context.Context, _, _ uuid.UUID, status enums.PaymentStatus) error {
	return n.record("payment:" + status.String())
}

func (n *recordingNotifier) NotifyConverted(context.Context, uuid.UUID, uuid.UUID) error {
	return n.record("converted")
}

func (n *recordingNotifier) NotifyExpired(context.Context, uuid.UUID) error {
	return n.record("expired")
}

func (n *recordingNotifier) NotifyCancelled(context.Context, uuid.UUID) error {
	return n.record("cancelled")
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e == event {
			total++
		}
	}
	return total
}

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// couponTable prices codes with a flat discount above a minimum subtotal.
type couponTable struct {
	mu      sync.Mutex
	coupons map[string]tableCoupon
}

type tableCoupon struct {
	id          uuid.UUID
	discount    decimal.Decimal
	minSubtotal decimal.Decimal
}

func newCouponTable() *couponTable {
	return &couponTable{coupons: map[string]tableCoupon{}}
}

func (c *couponTable) add(code, discount, minSubtotal string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coupons[code] = tableCoupon{
		id:          uuid.New(),
		discount:    decimal.RequireFromString(discount),
		minSubtotal: decimal.RequireFromString(minSubtotal),
	}
}

func (c *couponTable) remove(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.coupons, code)
}

func (c *couponTable) Evaluate(_ context.Context, code string, _ uuid.UUID, subtotal decimal.Decimal, _ enums.Currency) (CouponEvaluation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	coupon, ok := c.coupons[code]
	if !ok {
		return CouponEvaluation{}, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	eval := CouponEvaluation{CouponID: coupon.id, Code: code}
	if subtotal.LessThan(coupon.minSubtotal) {
		eval.Reason = "subtotal below coupon minimum"
		return eval, nil
	}
	eval.Eligible = true
	eval.Discount = decimal.Min(coupon.discount, subtotal)
	return eval, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine    *Engine
	store     *memoryStore
	converter *fakeConverter
	notifier  *recordingNotifier
	coupons   *couponTable
	clock     *manualClock
	settings  Settings
}

func testSettings() Settings {
	return Settings{
		TTL:                 time.Hour,
		MaxDeadline:         24 * time.Hour,
		PaymentWindow:       15 * time.Minute,
		MemberCap:           8,
		RetryBudget:         4,
		LockedExpiryOutcome: enums.TeamCartStatusExpired,
		AllowCashOnDelivery: true,
		DefaultCurrency:     enums.CurrencyUSD,
	}
}

func newHarness(t *testing.T, tweaks ...func(*Settings)) *harness {
	t.Helper()
	settings := testSettings()
	for _, tweak := range tweaks {
		tweak(&settings)
	}
	h := &harness{
		store:     newMemoryStore(),
		converter: newFakeConverter(),
		notifier:  &recordingNotifier{},
		coupons:   newCouponTable(),
		clock:     &manualClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
		settings:  settings,
	}
	engine, err := NewEngine(EngineParams{
		Store:       h.store,
		ShareTokens: prefixTokens{},
		Coupons:     h.coupons,
		Converter:   h.converter,
		Notifier:    h.notifier,
		Clock:       h.clock,
		Logger:      logger.Nop(),
		Settings:    settings,
	})
	require.NoError(t, err)
	h.engine = engine
	return h
}

func (h *harness) create(t *testing.T, host uuid.UUID) *CreateResult {
	t.Helper()
	res, err := h.engine.Create(context.Background(), CreateCommand{
		RestaurantID: uuid.New(),
		HostUserID:   host,
		HostName:     "Host",
	})
	require.NoError(t, err)
	return res
}

func (h *harness) join(t *testing.T, token string, name string) uuid.UUID {
	t.Helper()
	user := uuid.New()
	_, err := h.engine.Join(context.Background(), JoinCommand{ShareToken: token, UserID: user, DisplayName: name})
	require.NoError(t, err)
	return user
}

func (h *harness) addItem(t *testing.T, cartID, user uuid.UUID, price string, quantity int) *TeamCart {
	t.Helper()
	cart, err := h.engine.AddItem(context.Background(), AddItemCommand{
		CartID:          cartID,
		ExpectedVersion: AnyVersion,
		UserID:          user,
		MenuItemID:      uuid.New(),
		Name:            "Pho",
		Quantity:        quantity,
		BasePrice:       decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return cart
}

func (h *harness) ready(t *testing.T, cartID, user uuid.UUID) *TeamCart {
	t.Helper()
	cart, err := h.engine.SetMemberReady(context.Background(), SetMemberReadyCommand{
		CartID:          cartID,
		ExpectedVersion: AnyVersion,
		UserID:          user,
		Ready:           true,
	})
	require.NoError(t, err)
	return cart
}

func (h *harness) lock(t *testing.T, cartID, user uuid.UUID) *TeamCart {
	t.Helper()
	cart, err := h.engine.Lock(context.Background(), LockCommand{CartID: cartID, ExpectedVersion: AnyVersion, UserID: user})
	require.NoError(t, err)
	return cart
}

func (h *harness) pay(t *testing.T, cartID, user uuid.UUID, amount decimal.Decimal) *TeamCart {
	t.Helper()
	cart, err := h.engine.RecordMemberPayment(context.Background(), RecordPaymentCommand{
		CartID:          cartID,
		ExpectedVersion: AnyVersion,
		UserID:          user,
		Outcome: PaymentOutcome{
			Status:        enums.PaymentStatusPaid,
			Method:        enums.PaymentMethodOnline,
			Amount:        amount,
			TransactionID: "txn-" + user.String()[:8],
		},
	})
	require.NoError(t, err)
	return cart
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, pkgerrors.CodeOf(err), err.Error())
}

func requireReason(t *testing.T, err error, reason string) {
	t.Helper()
	requireCode(t, err, pkgerrors.CodeStateConflict)
	require.Equal(t, reason, ConflictReason(err))
}

func usd(amount string) decimal.Decimal {
	return decimal.RequireFromString(amount)
}
