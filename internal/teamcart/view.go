package teamcart

import (
	"time"
	"unicode/utf8"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/google/uuid"
)

// View is the client-facing snapshot: amounts as fixed-precision strings and
// the share token masked for everyone but the host.
type View struct {
	ID                    string       `json:"id"`
	RestaurantID          string       `json:"restaurantId"`
	HostUserID            string       `json:"hostUserId"`
	Status                string       `json:"status"`
	ShareToken            string       `json:"shareToken"`
	Deadline              *time.Time   `json:"deadline,omitempty"`
	ExpiresAt             time.Time    `json:"expiresAt"`
	Version               int64        `json:"version"`
	QuoteVersion          int64        `json:"quoteVersion"`
	Currency              string       `json:"currency"`
	Subtotal              string       `json:"subtotal"`
	DiscountAmount        string       `json:"discountAmount"`
	TaxAmount             string       `json:"taxAmount"`
	DeliveryFee           string       `json:"deliveryFee"`
	TipAmount             string       `json:"tipAmount"`
	Total                 string       `json:"total"`
	CashOnDeliveryPortion string       `json:"cashOnDeliveryPortion"`
	AppliedCouponCode     string       `json:"appliedCouponCode,omitempty"`
	CouponNote            string       `json:"couponNote,omitempty"`
	ReadyToLock           bool         `json:"readyToLock"`
	AllSettled            bool         `json:"allSettled"`
	OrderID               string       `json:"orderId,omitempty"`
	ConversionError       string       `json:"conversionError,omitempty"`
	Members               []MemberView `json:"members"`
	Items                 []ItemView   `json:"items"`
}

type MemberView struct {
	UserID          string `json:"userId"`
	DisplayName     string `json:"displayName"`
	Role            string `json:"role"`
	IsReady         bool   `json:"isReady"`
	PaymentStatus   string `json:"paymentStatus"`
	PaymentMethod   string `json:"paymentMethod,omitempty"`
	QuotedAmount    string `json:"quotedAmount"`
	CommittedAmount string `json:"committedAmount"`
}

type ItemView struct {
	ID             string              `json:"id"`
	AddedByUserID  string              `json:"addedByUserId"`
	MenuItemID     string              `json:"menuItemId"`
	Name           string              `json:"name"`
	Quantity       int                 `json:"quantity"`
	BasePrice      string              `json:"basePrice"`
	LineTotal      string              `json:"lineTotal"`
	Customizations []CustomizationView `json:"customizations,omitempty"`
}

type CustomizationView struct {
	GroupName       string `json:"groupName"`
	ChoiceName      string `json:"choiceName"`
	PriceAdjustment string `json:"priceAdjustment"`
}

func NewView(cart *TeamCart, viewerID uuid.UUID) *View {
	cur := cart.Currency
	token := MaskToken(cart.ShareToken)
	if viewerID != uuid.Nil && viewerID == cart.HostUserID {
		token = cart.ShareToken
	}

	v := &View{
		ID:                    cart.ID.String(),
		RestaurantID:          cart.RestaurantID.String(),
		HostUserID:            cart.HostUserID.String(),
		Status:                cart.Status.String(),
		ShareToken:            token,
		Deadline:              cart.Deadline,
		ExpiresAt:             cart.ExpiresAt,
		Version:               cart.Version,
		QuoteVersion:          cart.QuoteVersion,
		Currency:              cur.String(),
		Subtotal:              FormatAmount(cart.Subtotal, cur),
		DiscountAmount:        FormatAmount(cart.DiscountAmount, cur),
		TaxAmount:             FormatAmount(cart.TaxAmount, cur),
		DeliveryFee:           FormatAmount(cart.DeliveryFee, cur),
		TipAmount:             FormatAmount(cart.TipAmount, cur),
		Total:                 FormatAmount(cart.Total, cur),
		CashOnDeliveryPortion: FormatAmount(cart.CashOnDeliveryPortion, cur),
		AppliedCouponCode:     cart.AppliedCouponCode,
		CouponNote:            cart.CouponNote,
		ReadyToLock:           cart.Status == enums.TeamCartStatusOpen && cart.allReady() && len(cart.Items) > 0,
		AllSettled:            cart.AllSettled(),
		ConversionError:       cart.ConversionError,
		Members:               make([]MemberView, 0, len(cart.Members)),
		Items:                 make([]ItemView, 0, len(cart.Items)),
	}
	if cart.OrderID != nil {
		v.OrderID = cart.OrderID.String()
	}
	for _, m := range cart.Members {
		v.Members = append(v.Members, MemberView{
			UserID:          m.UserID.String(),
			DisplayName:     m.DisplayName,
			Role:            m.Role.String(),
			IsReady:         m.IsReady,
			PaymentStatus:   m.PaymentStatus.String(),
			PaymentMethod:   m.PaymentMethod.String(),
			QuotedAmount:    FormatAmount(m.QuotedAmount, cur),
			CommittedAmount: FormatAmount(m.CommittedAmount, cur),
		})
	}
	for _, item := range cart.Items {
		iv := ItemView{
			ID:            item.ID.String(),
			AddedByUserID: item.AddedByUserID.String(),
			MenuItemID:    item.MenuItemID.String(),
			Name:          item.Name,
			Quantity:      item.Quantity,
			BasePrice:     FormatAmount(item.BasePrice, cur),
			LineTotal:     FormatAmount(item.LineTotal, cur),
		}
		for _, c := range item.Customizations {
			iv.Customizations = append(iv.Customizations, CustomizationView{
				GroupName:       c.GroupName,
				ChoiceName:      c.ChoiceName,
				PriceAdjustment: FormatAmount(c.PriceAdjustment, cur),
			})
		}
		v.Items = append(v.Items, iv)
	}
	return v
}

// MaskToken keeps the first and last four characters, e.g. "abcd…wxyz".
func MaskToken(token string) string {
	if utf8.RuneCountInString(token) <= 8 {
		return "…"
	}
	runes := []rune(token)
	return string(runes[:4]) + "…" + string(runes[len(runes)-4:])
}
