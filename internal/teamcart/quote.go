package teamcart

import (
	"sort"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const basisPoints = 10000

// DeliveryFeePolicy charges a flat fee unless the discounted subtotal reaches
// FreeAbove. A zero FreeAbove disables the waiver.
type DeliveryFeePolicy struct {
	Flat      decimal.Decimal
	FreeAbove decimal.Decimal
}

func (p DeliveryFeePolicy) feeFor(discountedSubtotal decimal.Decimal) decimal.Decimal {
	if p.FreeAbove.IsPositive() && discountedSubtotal.GreaterThanOrEqual(p.FreeAbove) {
		return decimal.Zero
	}
	if p.Flat.IsNegative() {
		return decimal.Zero
	}
	return p.Flat
}

// QuoteInput is everything the calculator needs. Members must be in join order.
type QuoteInput struct {
	Currency   enums.Currency
	Items      []Item
	Members    []Member
	Discount   decimal.Decimal
	Tip        decimal.Decimal
	TaxRateBps int64
	Delivery   DeliveryFeePolicy
}

type Share struct {
	UserID uuid.UUID
	Amount decimal.Decimal
}

type Quote struct {
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
	DeliveryFee decimal.Decimal
	Tip         decimal.Decimal
	Total       decimal.Decimal
	Shares      []Share
}

// CalculateQuote prices a cart. It is pure: the same input always yields the
// same quote, and the shares always sum to Total in minor units.
func CalculateQuote(in QuoteInput) Quote {
	cur := in.Currency

	weights := make(map[uuid.UUID]int64, len(in.Members))
	var subtotalMinor int64
	for _, item := range in.Items {
		line := toMinor(item.computeLineTotal(), cur)
		subtotalMinor += line
		weights[item.AddedByUserID] += line
	}

	discountMinor := toMinor(in.Discount, cur)
	if discountMinor < 0 {
		discountMinor = 0
	}
	if discountMinor > subtotalMinor {
		discountMinor = subtotalMinor
	}
	taxable := subtotalMinor - discountMinor
	taxMinor := roundHalfUpDiv(taxable*in.TaxRateBps, basisPoints)

	var feeMinor int64
	if len(in.Items) > 0 {
		feeMinor = toMinor(in.Delivery.feeFor(fromMinor(taxable, cur)), cur)
	}
	tipMinor := toMinor(in.Tip, cur)
	if tipMinor < 0 {
		tipMinor = 0
	}

	totalMinor := taxable + taxMinor + feeMinor + tipMinor

	memberWeights := make([]int64, len(in.Members))
	for i, m := range in.Members {
		memberWeights[i] = weights[m.UserID]
	}
	allocated := allocateMinor(totalMinor, memberWeights)

	shares := make([]Share, len(in.Members))
	for i, m := range in.Members {
		shares[i] = Share{UserID: m.UserID, Amount: fromMinor(allocated[i], cur)}
	}

	return Quote{
		Subtotal:    fromMinor(subtotalMinor, cur),
		Discount:    fromMinor(discountMinor, cur),
		Tax:         fromMinor(taxMinor, cur),
		DeliveryFee: fromMinor(feeMinor, cur),
		Tip:         fromMinor(tipMinor, cur),
		Total:       fromMinor(totalMinor, cur),
		Shares:      shares,
	}
}

func roundHalfUpDiv(numerator, denominator int64) int64 {
	if numerator <= 0 {
		return 0
	}
	return (numerator + denominator/2) / denominator
}

// allocateMinor splits total across weights with the largest-remainder
// method. Zero total weight means an even split. Remainder ties go to the
// lower index, which callers arrange to be join order.
func allocateMinor(total int64, weights []int64) []int64 {
	n := len(weights)
	out := make([]int64, n)
	if n == 0 || total <= 0 {
		return out
	}

	effective := make([]int64, n)
	var sum int64
	for i, w := range weights {
		if w > 0 {
			effective[i] = w
			sum += w
		}
	}
	if sum == 0 {
		for i := range effective {
			effective[i] = 1
		}
		sum = int64(n)
	}

	totalDec := decimal.NewFromInt(total)
	sumDec := decimal.NewFromInt(sum)
	remainders := make([]decimal.Decimal, n)
	var assigned int64
	for i, w := range effective {
		q, r := totalDec.Mul(decimal.NewFromInt(w)).QuoRem(sumDec, 0)
		out[i] = q.IntPart()
		remainders[i] = r
		assigned += out[i]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})

	for leftover, k := total-assigned, 0; leftover > 0; leftover, k = leftover-1, k+1 {
		out[order[k%n]]++
	}
	return out
}

// applyQuote writes a quote onto the cart and bumps QuoteVersion.
func (c *TeamCart) applyQuote(q Quote) {
	c.Subtotal = q.Subtotal
	c.DiscountAmount = q.Discount
	c.TaxAmount = q.Tax
	c.DeliveryFee = q.DeliveryFee
	c.TipAmount = q.Tip
	c.Total = q.Total
	for _, share := range q.Shares {
		if m := c.Member(share.UserID); m != nil {
			m.QuotedAmount = share.Amount
		}
	}
	c.QuoteVersion++
}
