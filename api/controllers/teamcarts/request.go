package teamcarts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
)

type createRequest struct {
	RestaurantID uuid.UUID  `json:"restaurantId" validate:"required"`
	HostName     string     `json:"hostName" validate:"max=64"`
	Currency     string     `json:"currency" validate:"omitempty,len=3"`
	Deadline     *time.Time `json:"deadline"`
}

type createResponse struct {
	Cart       *teamcart.View `json:"cart"`
	ShareToken string         `json:"shareToken"`
}

type joinRequest struct {
	ShareToken  string `json:"shareToken" validate:"required,max=2048"`
	DisplayName string `json:"displayName" validate:"max=64"`
}

// versioned is embedded in every command that pins the caller's view.
type versioned struct {
	ExpectedVersion *int64 `json:"expectedVersion" validate:"required,gte=0"`
}

func (v versioned) expected() int64 {
	if v.ExpectedVersion == nil {
		return 0
	}
	return *v.ExpectedVersion
}

type customizationRequest struct {
	GroupID         uuid.UUID `json:"groupId" validate:"required"`
	ChoiceID        uuid.UUID `json:"choiceId" validate:"required"`
	GroupName       string    `json:"groupName" validate:"max=128"`
	ChoiceName      string    `json:"choiceName" validate:"max=128"`
	PriceAdjustment string    `json:"priceAdjustment"`
}

type addItemRequest struct {
	versioned
	MenuItemID     uuid.UUID              `json:"menuItemId" validate:"required"`
	Name           string                 `json:"name" validate:"required,max=200"`
	Quantity       int                    `json:"quantity" validate:"gte=1,lte=999"`
	BasePrice      string                 `json:"basePrice" validate:"required,amount"`
	Customizations []customizationRequest `json:"customizations" validate:"max=32,dive"`
}

type updateQuantityRequest struct {
	versioned
	Quantity int `json:"quantity" validate:"gte=1,lte=999"`
}

type readyRequest struct {
	versioned
	Ready *bool `json:"ready" validate:"required"`
}

type couponRequest struct {
	versioned
	Code string `json:"code" validate:"required,max=64"`
}

type tipRequest struct {
	versioned
	Amount string `json:"amount" validate:"required,amount"`
}

type cashOnDeliveryRequest struct {
	versioned
	Amount string `json:"amount" validate:"required,amount"`
}

type versionOnlyRequest struct {
	versioned
}

func (r createRequest) command(host uuid.UUID, hostName string) teamcart.CreateCommand {
	name := strings.TrimSpace(r.HostName)
	if name == "" {
		name = hostName
	}
	return teamcart.CreateCommand{
		RestaurantID: r.RestaurantID,
		HostUserID:   host,
		HostName:     name,
		Currency:     enums.Currency(strings.ToUpper(strings.TrimSpace(r.Currency))),
		Deadline:     r.Deadline,
	}
}

func (r addItemRequest) command(cartID, userID uuid.UUID) (teamcart.AddItemCommand, error) {
	price, err := parseAmount("basePrice", r.BasePrice)
	if err != nil {
		return teamcart.AddItemCommand{}, err
	}
	customizations := make([]teamcart.Customization, 0, len(r.Customizations))
	for _, c := range r.Customizations {
		adjustment := decimal.Zero
		if strings.TrimSpace(c.PriceAdjustment) != "" {
			adjustment, err = parseAmount("priceAdjustment", c.PriceAdjustment)
			if err != nil {
				return teamcart.AddItemCommand{}, err
			}
		}
		customizations = append(customizations, teamcart.Customization{
			GroupID:         c.GroupID,
			ChoiceID:        c.ChoiceID,
			GroupName:       c.GroupName,
			ChoiceName:      c.ChoiceName,
			PriceAdjustment: adjustment,
		})
	}
	return teamcart.AddItemCommand{
		CartID:          cartID,
		ExpectedVersion: r.expected(),
		UserID:          userID,
		MenuItemID:      r.MenuItemID,
		Name:            r.Name,
		Quantity:        r.Quantity,
		BasePrice:       price,
		Customizations:  customizations,
	}, nil
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount").
			WithDetails(map[string]any{"field": field})
	}
	return amount, nil
}
