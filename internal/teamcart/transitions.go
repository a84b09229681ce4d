package teamcart

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Create opens a new cart with the host as its only member, at version 0.
func (e *Engine) Create(ctx context.Context, cmd CreateCommand) (*CreateResult, error) {
	result, err := e.create(ctx, cmd)
	e.observe(ctx, "create", err)
	return result, err
}

func (e *Engine) create(ctx context.Context, cmd CreateCommand) (*CreateResult, error) {
	if cmd.RestaurantID == uuid.Nil {
		return nil, validation("restaurant id is required")
	}
	if cmd.HostUserID == uuid.Nil {
		return nil, validation("host user id is required")
	}
	hostName, err := cleanDisplayName(cmd.HostName)
	if err != nil {
		return nil, err
	}
	currency := cmd.Currency
	if currency == "" {
		currency = e.settings.DefaultCurrency
	}
	if !currency.IsValid() {
		return nil, validation("unsupported currency")
	}

	now := e.clock.Now()
	expiresAt := now.Add(e.settings.TTL)
	if cmd.Deadline != nil {
		deadline := cmd.Deadline.UTC()
		if !deadline.After(now) {
			return nil, validation("deadline must be in the future")
		}
		if e.settings.MaxDeadline > 0 && deadline.After(now.Add(e.settings.MaxDeadline)) {
			return nil, validation("deadline is too far in the future")
		}
		expiresAt = deadline
		cmd.Deadline = &deadline
	}

	cartID := uuid.New()
	token, err := e.tokens.Issue(cartID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue share token")
	}

	cart := &TeamCart{
		ID:           cartID,
		RestaurantID: cmd.RestaurantID,
		HostUserID:   cmd.HostUserID,
		Status:       enums.TeamCartStatusOpen,
		ShareToken:   token,
		Deadline:     cmd.Deadline,
		ExpiresAt:    expiresAt,
		Currency:     currency,
		Members: []Member{{
			UserID:        cmd.HostUserID,
			DisplayName:   hostName,
			Role:          enums.MemberRoleHost,
			PaymentStatus: enums.PaymentStatusPending,
			JoinedAt:      now,
		}},
		Items:     []Item{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Create(ctx, cart); err != nil {
		return nil, storeError(err)
	}
	e.logg.Info(e.logg.WithCartID(ctx, cartID.String()), "teamcart.created")
	return &CreateResult{Cart: cart, ShareToken: token}, nil
}

// Join adds the caller as a guest. The token alone identifies the cart.
func (e *Engine) Join(ctx context.Context, cmd JoinCommand) (*TeamCart, error) {
	if cmd.UserID == uuid.Nil {
		return nil, validation("user id is required")
	}
	name, err := cleanDisplayName(cmd.DisplayName)
	if err != nil {
		return nil, err
	}
	cartID, err := e.tokens.Resolve(cmd.ShareToken)
	if err != nil {
		unauthorized := pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid share token")
		e.observe(ctx, "join", unauthorized)
		return nil, unauthorized
	}

	return e.mutate(ctx, "join", cartID, AnyVersion, func(ctx context.Context, cart *TeamCart, now time.Time, _ *changeSet) error {
		if err := e.requireOpen(cart, now, "join"); err != nil {
			return err
		}
		if subtle.ConstantTimeCompare([]byte(cart.ShareToken), []byte(cmd.ShareToken)) != 1 {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid share token")
		}
		if cart.IsMember(cmd.UserID) {
			return stateConflict(ReasonAlreadyMember, "user already joined this team cart")
		}
		if len(cart.Members) >= e.settings.MemberCap {
			return stateConflict(ReasonMemberCapReached, "team cart is full")
		}
		cart.Members = append(cart.Members, Member{
			UserID:        cmd.UserID,
			DisplayName:   name,
			Role:          enums.MemberRoleGuest,
			PaymentStatus: enums.PaymentStatusPending,
			JoinedAt:      now,
		})
		e.slide(cart, now)
		return e.reprice(ctx, cart, false)
	})
}

func (e *Engine) AddItem(ctx context.Context, cmd AddItemCommand) (*TeamCart, error) {
	return e.mutate(ctx, "add_item", cmd.CartID, cmd.ExpectedVersion, func(ctx context.Context, cart *TeamCart, now time.Time, _ *changeSet) error {
		if err := e.requireOpenMember(cart, now, "add_item", cmd.UserID); err != nil {
			return err
		}
		item, err := newItem(cmd, cart.Currency)
		if err != nil {
			return err
		}
		cart.Items = append(cart.Items, item)
		e.slide(cart, now)
		return e.reprice(ctx, cart, true)
	})
}

func (e *Engine) RemoveItem(ctx context.Context, cmd RemoveItemCommand) (*TeamCart, error) {
	return e.mutate(ctx, "remove_item", cmd.CartID, cmd.ExpectedVersion, func(ctx context.Context, cart *TeamCart, now time.Time, _ *changeSet) error {
		idx, err := e.editableItem(cart, now, "remove_item", cmd.UserID, cmd.ItemID)
		if err != nil {
			return err
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		e.slide(cart, now)
		return e.reprice(ctx, cart, true)
	})
}

func (e *Engine) UpdateQuantity(ctx context.Context, cmd UpdateQuantityCommand) (*TeamCart, error) {
	return e.mutate(ctx, "update_quantity", cmd.CartID, cmd.ExpectedVersion, func(ctx context.Context, cart *TeamCart, now time.Time, _ *changeSet) error {
		if err := validateQuantity(cmd.Quantity); err != nil {
			return err
		}
		idx, err := e.editableItem(cart, now, "update_quantity", cmd.UserID, cmd.ItemID)
		if err != nil {
			return err
		}
		item := &cart.Items[idx]
		item.Quantity = cmd.Quantity
		item.LineTotal = quantize(item.computeLineTotal(), cart.Currency)
		e.slide(cart, now)
		return e.reprice(ctx, cart, true)
	})
}

func (e *Engine) SetMemberReady(ctx context.Context, cmd SetMemberReadyCommand) (*TeamCart, error) {
	return e.mutate(ctx, "set_member_ready", cmd.CartID, cmd.ExpectedVersion, func(ctx context.Context, cart *TeamCart, now time.Time, changes *changeSet) error {
		if err := e.requireOpenMember(cart, now, "set_member_ready", cmd.UserID); err != nil {
			return err
		}
		wasReady := cart.allReady() && len(cart.Items) > 0
		cart.Member(cmd.UserID).IsReady = cmd.Ready
		if !wasReady && cart.allReady() && len(cart.Items) > 0 {
			changes.emit(event{kind: eventReadyToConfirm})
		}
		e.slide(cart, now)
		return nil
	})
}

func (e *Engine) ApplyCoupon(ctx context.Context, cmd ApplyCouponCommand) (*TeamCart, error) {
	return e.mutate(ctx, "apply_coupon", cmd.CartID, cmd.ExpectedVersion, func(ctx context.Context, cart *TeamCart, now time.Time, _ *changeSet) error {
		if err := e.requireOpenMember(cart, now, "apply_coupon", cmd.UserID); err != nil {
			return err
		}
		code := strings.TrimSpace(cmd.Code)
		if code == "" {
			return validation("coupon code is required")
		}
		if e.coupons == nil {
			return pkgerrors.New(pkgerrors.CodeDependency, "coupon pricing unavailable")
		}
		eval, err := e.coupons.Evaluate(ctx, code, cart.RestaurantID, itemsSubtotal(cart.Items, cart.Currency), cart.Currency)
		if err != nil {
			if pkgerrors.As(err) != nil {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "coupon evaluation failed")
		}
		if !eval.Eligible {
			return validation("coupon is not eligible for this cart").
				WithDetails(map[string]any{"reason": eval.Reason})
		}
		couponID := eval.CouponID
		cart.AppliedCouponID = &couponID
		cart.AppliedCouponCode = eval.Code
		if cart.AppliedCouponCode == "" {
			cart.AppliedCouponCode = code
		}
		cart.DiscountAmount = eval.Discount
		cart.CouponNote = ""
		e.slide(cart, now)
		return e.reprice(ctx, cart, false)
	})
}

func (e *Engine) RemoveCoupon(ctx context.Context, cmd RemoveCouponCommand) (*TeamCart, error) {
	return e.mutate(ctx, "remove_coupon", cmd.CartID, cmd.ExpectedVersion, func(ctx context.Context, cart *TeamCart, now time.Time, _ *changeSet) error {
		if err := e.requireOpenMember(cart, now, "remove_coupon", cmd.UserID); err != nil {
			return err
		}
		if cart.AppliedCouponCode == "" {
			return stateConflict(ReasonNoCoupon, "no coupon applied")
		}
		cart.AppliedCouponID = nil
		cart.AppliedCouponCode = ""
		cart.CouponNote = ""
		cart.DiscountAmount = decimal.Zero
		e.slide(cart, now)
		return e.reprice(ctx, cart, false)
	})
}

func (e *Engine) SetTip(ctx context.Context, cmd SetTipCommand) (*TeamCart, error) {
	return e.mutate(ctx, "set_tip", cmd.CartID, cmd.ExpectedVersion, func(ctx context.Context, cart *TeamCart, now time.Time, _ *changeSet) error {
		if err := e.requireOpenMember(cart, now, "set_tip", cmd.UserID); err != nil {
			return err
		}
		if !cart.IsHost(cmd.UserID) {
			return forbidden("only the host can set the tip")
		}
		if cmd.Amount.IsNegative() || !fitsMinorUnits(cmd.Amount, cart.Currency) {
			return validation("tip must be a non-negative amount in the cart currency")
		}
		cart.TipAmount = cmd.Amount
		e.slide(cart, now)
		return e.reprice(ctx, cart, false)
	})
}

func (e *Engine) Lock(ctx context.Context, cmd LockCommand) (*TeamCart, error) {
	return e.mutate(ctx, "lock", cmd.CartID, cmd.ExpectedVersion, func(ctx context.Context, cart *TeamCart, now time.Time, changes *changeSet) error {
		if err := e.requireOpenMember(cart, now, "lock", cmd.UserID); err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return stateConflict(ReasonNoItems, "team cart has no items")
		}
		if !cart.allReady() {
			var waiting []string
			for _, m := range cart.Members {
				if !m.IsReady {
					waiting = append(waiting, m.UserID.String())
				}
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "not every member is ready").
				WithDetails(map[string]any{"reason": ReasonMembersNotReady, "waiting_for": waiting})
		}
		cart.Status = enums.TeamCartStatusLocked
		lockedAt := now
		cart.LockedAt = &lockedAt
		cart.ExpiresAt = now.Add(e.settings.PaymentWindow)
		changes.emit(event{kind: eventLocked})
		return nil
	})
}

// RecordMemberPayment stores one member's payment outcome. When it settles
// the last member, conversion runs inside the same write.
func (e *Engine) RecordMemberPayment(ctx context.Context, cmd RecordPaymentCommand) (*TeamCart, error) {
	return e.mutate(ctx, "record_member_payment", cmd.CartID, cmd.ExpectedVersion, func(ctx context.Context, cart *TeamCart, now time.Time, changes *changeSet) error {
		if cart.Status != enums.TeamCartStatusLocked {
			return invalidTransition("record_member_payment", cart.Status)
		}
		if !now.Before(cart.ExpiresAt) {
			return stateConflict(ReasonPaymentWindowClosed, "payment window has closed")
		}
		member := cart.Member(cmd.UserID)
		if member == nil {
			return notFound("member not found in team cart")
		}
		if member.PaymentStatus == enums.PaymentStatusPaid {
			return stateConflict(ReasonAlreadyPaid, "member has already paid")
		}
		if cart.AllSettled() {
			return stateConflict(ReasonAwaitingConversion, "team cart is settled and awaiting conversion")
		}
		if err := e.applyPayment(cart, member, cmd.Outcome); err != nil {
			return err
		}
		changes.emit(event{kind: eventPayment, userID: cmd.UserID, status: member.PaymentStatus})

		if cart.AllSettled() {
			if err := e.convertInPlace(ctx, cart, now, changes); err != nil {
				cart.ConversionError = err.Error()
				e.logg.Error(ctx, "teamcart.auto_convert_failed", err)
			}
		}
		return nil
	})
}

func (e *Engine) applyPayment(cart *TeamCart, member *Member, outcome PaymentOutcome) error {
	if outcome.Amount.IsNegative() || !fitsMinorUnits(outcome.Amount, cart.Currency) {
		return validation("payment amount must be a non-negative amount in the cart currency")
	}
	method := outcome.Method
	if method == "" {
		method = enums.PaymentMethodOnline
	}
	if !method.IsValid() {
		return validation("unsupported payment method")
	}

	switch outcome.Status {
	case enums.PaymentStatusPaid:
		if method != enums.PaymentMethodOnline {
			return validation("only online payments can be recorded as paid")
		}
		if !outcome.Amount.Equal(member.QuotedAmount) {
			return validation("paid amount must equal the member's quoted amount").
				WithDetails(map[string]any{"quoted_amount": FormatAmount(member.QuotedAmount, cart.Currency)})
		}
		if strings.TrimSpace(outcome.TransactionID) == "" {
			return validation("online payments require a transaction id")
		}
		member.OnlineTransactionID = outcome.TransactionID
	case enums.PaymentStatusCommitted:
		if method == enums.PaymentMethodCashOnDelivery {
			if !e.settings.AllowCashOnDelivery {
				return validation("cash on delivery is not available")
			}
			if !outcome.Amount.Equal(member.QuotedAmount) {
				return validation("cash on delivery must cover the member's quoted amount").
					WithDetails(map[string]any{"quoted_amount": FormatAmount(member.QuotedAmount, cart.Currency)})
			}
		}
	case enums.PaymentStatusFailed:
	default:
		return validation("payment status must be committed, paid or failed")
	}

	member.PaymentStatus = outcome.Status
	member.PaymentMethod = method
	member.CommittedAmount = outcome.Amount
	if outcome.Status == enums.PaymentStatusFailed {
		member.CommittedAmount = decimal.Zero
	}

	cod := decimal.Zero
	for _, m := range cart.Members {
		if m.PaymentStatus == enums.PaymentStatusCommitted && m.PaymentMethod == enums.PaymentMethodCashOnDelivery {
			cod = cod.Add(m.CommittedAmount)
		}
	}
	cart.CashOnDeliveryPortion = cod
	return nil
}

// Convert retries conversion of a settled Locked cart. Converting an already
// converted cart returns it unchanged.
func (e *Engine) Convert(ctx context.Context, cmd ConvertCommand) (*TeamCart, error) {
	return e.mutate(ctx, "convert", cmd.CartID, cmd.ExpectedVersion, func(ctx context.Context, cart *TeamCart, now time.Time, changes *changeSet) error {
		if cart.Status == enums.TeamCartStatusConverted {
			return errUnchanged
		}
		if cart.Status != enums.TeamCartStatusLocked {
			return invalidTransition("convert", cart.Status)
		}
		if cmd.UserID != uuid.Nil && !cart.IsMember(cmd.UserID) {
			return forbidden("only members can convert this team cart")
		}
		if !cart.AllSettled() {
			return stateConflict(ReasonNotSettled, "not every member has settled")
		}
		if err := e.convertInPlace(ctx, cart, now, changes); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order conversion failed")
		}
		return nil
	})
}

func (e *Engine) convertInPlace(ctx context.Context, cart *TeamCart, now time.Time, changes *changeSet) error {
	orderID, err := e.converter.Convert(ctx, cart.Clone())
	if err != nil {
		return err
	}
	changes.order = orderID
	cart.Status = enums.TeamCartStatusConverted
	cart.OrderID = &orderID
	cart.ConversionError = ""
	terminated := now
	cart.TerminatedAt = &terminated
	changes.emit(event{kind: eventConverted, orderID: orderID})
	return nil
}

// Expire is shared by the sweeper and interactive callers. Terminal carts are
// returned unchanged without error.
func (e *Engine) Expire(ctx context.Context, cartID uuid.UUID) (*TeamCart, error) {
	return e.mutate(ctx, "expire", cartID, AnyVersion, func(ctx context.Context, cart *TeamCart, now time.Time, changes *changeSet) error {
		if cart.Status.IsTerminal() {
			return errUnchanged
		}
		if now.Before(cart.ExpiresAt) {
			return stateConflict(ReasonNotDue, "team cart has not expired yet")
		}
		outcome := enums.TeamCartStatusExpired
		if cart.Status == enums.TeamCartStatusLocked {
			if cart.AllSettled() {
				return stateConflict(ReasonAwaitingConversion, "team cart is settled and awaiting conversion")
			}
			outcome = e.settings.LockedExpiryOutcome
		}
		cart.Status = outcome
		terminated := now
		cart.TerminatedAt = &terminated
		if outcome == enums.TeamCartStatusCancelled {
			changes.emit(event{kind: eventCancelled})
		} else {
			changes.emit(event{kind: eventExpired})
		}
		return nil
	})
}

func (e *Engine) Cancel(ctx context.Context, cmd CancelCommand) (*TeamCart, error) {
	return e.mutate(ctx, "cancel", cmd.CartID, cmd.ExpectedVersion, func(ctx context.Context, cart *TeamCart, now time.Time, changes *changeSet) error {
		switch cart.Status {
		case enums.TeamCartStatusOpen:
		case enums.TeamCartStatusLocked:
			if cart.anyPaid() {
				return stateConflict(ReasonPaymentsCaptured, "cannot cancel after a member has paid")
			}
			if cart.AllSettled() {
				return stateConflict(ReasonAwaitingConversion, "team cart is settled and awaiting conversion")
			}
		default:
			return invalidTransition("cancel", cart.Status)
		}
		if !cart.IsHost(cmd.UserID) {
			return forbidden("only the host can cancel the team cart")
		}
		cart.Status = enums.TeamCartStatusCancelled
		terminated := now
		cart.TerminatedAt = &terminated
		changes.emit(event{kind: eventCancelled})
		return nil
	})
}

func (e *Engine) requireOpen(cart *TeamCart, now time.Time, command string) error {
	if cart.Status != enums.TeamCartStatusOpen {
		return invalidTransition(command, cart.Status)
	}
	if !now.Before(cart.ExpiresAt) {
		return stateConflict(ReasonCartExpired, "team cart has expired")
	}
	return nil
}

func (e *Engine) requireOpenMember(cart *TeamCart, now time.Time, command string, userID uuid.UUID) error {
	if err := e.requireOpen(cart, now, command); err != nil {
		return err
	}
	if !cart.IsMember(userID) {
		return forbidden("caller is not a member of this team cart")
	}
	return nil
}

// editableItem finds an item the caller may change: their own, or any item
// when the caller is the host.
func (e *Engine) editableItem(cart *TeamCart, now time.Time, command string, userID, itemID uuid.UUID) (int, error) {
	if err := e.requireOpenMember(cart, now, command, userID); err != nil {
		return -1, err
	}
	idx := cart.itemIndex(itemID)
	if idx < 0 {
		return -1, notFound("item not found in team cart")
	}
	if cart.Items[idx].AddedByUserID != userID && !cart.IsHost(userID) {
		return -1, forbidden("only the host or the member who added an item can change it")
	}
	return idx, nil
}

// slide re-derives ExpiresAt unless a hard deadline pins it.
func (e *Engine) slide(cart *TeamCart, now time.Time) {
	if cart.Deadline != nil {
		return
	}
	cart.ExpiresAt = now.Add(e.settings.TTL)
}

// reprice recomputes the quote. With reevaluate set, a kept coupon is checked
// again against the new subtotal and yields no discount when it lapses.
func (e *Engine) reprice(ctx context.Context, cart *TeamCart, reevaluate bool) error {
	discount := cart.DiscountAmount
	switch {
	case cart.AppliedCouponCode == "":
		discount = decimal.Zero
		cart.CouponNote = ""
	case reevaluate && e.coupons != nil:
		eval, err := e.coupons.Evaluate(ctx, cart.AppliedCouponCode, cart.RestaurantID, itemsSubtotal(cart.Items, cart.Currency), cart.Currency)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			discount = decimal.Zero
			cart.CouponNote = "coupon no longer exists"
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "coupon evaluation failed")
		case !eval.Eligible:
			discount = decimal.Zero
			cart.CouponNote = eval.Reason
		default:
			discount = eval.Discount
			cart.CouponNote = ""
		}
	}

	quote := CalculateQuote(QuoteInput{
		Currency:   cart.Currency,
		Items:      cart.Items,
		Members:    cart.Members,
		Discount:   discount,
		Tip:        cart.TipAmount,
		TaxRateBps: e.settings.TaxRateBps,
		Delivery:   e.settings.Delivery,
	})
	cart.applyQuote(quote)
	return nil
}

func itemsSubtotal(items []Item, currency enums.Currency) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(quantize(item.computeLineTotal(), currency))
	}
	return subtotal
}

func newItem(cmd AddItemCommand, currency enums.Currency) (Item, error) {
	if cmd.MenuItemID == uuid.Nil {
		return Item{}, validation("menu item id is required")
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Item{}, validation("item name is required")
	}
	if err := validateQuantity(cmd.Quantity); err != nil {
		return Item{}, err
	}
	if cmd.BasePrice.IsNegative() || !fitsMinorUnits(cmd.BasePrice, currency) {
		return Item{}, validation("base price must be a non-negative amount in the cart currency")
	}
	for _, c := range cmd.Customizations {
		if c.GroupID == uuid.Nil || c.ChoiceID == uuid.Nil {
			return Item{}, validation("customization group and choice ids are required")
		}
		if !fitsMinorUnits(c.PriceAdjustment, currency) {
			return Item{}, validation("customization adjustment has too many decimal places")
		}
	}
	item := Item{
		ID:             uuid.New(),
		AddedByUserID:  cmd.UserID,
		MenuItemID:     cmd.MenuItemID,
		Name:           name,
		Quantity:       cmd.Quantity,
		BasePrice:      cmd.BasePrice,
		Customizations: append([]Customization(nil), cmd.Customizations...),
	}
	if item.UnitPrice().IsNegative() {
		return Item{}, validation("customizations cannot make the unit price negative")
	}
	item.LineTotal = quantize(item.computeLineTotal(), currency)
	return item, nil
}

func validateQuantity(quantity int) error {
	if quantity <= 0 {
		return validation("quantity must be positive")
	}
	if quantity > maxItemQuantity {
		return validation("quantity is too large")
	}
	return nil
}

func cleanDisplayName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", validation("display name is required")
	}
	if len([]rune(name)) > maxDisplayNameLength {
		return "", validation("display name is too long")
	}
	return name, nil
}
