package teamcartorders

import (
	"context"
	"errors"

	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists converted team cart orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByTeamCartID(ctx context.Context, teamCartID uuid.UUID) (*models.TeamCartOrder, error)
	Create(ctx context.Context, order *models.TeamCartOrder) error
	Delete(ctx context.Context, orderID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByTeamCartID returns nil without error when the cart has no order yet.
func (r *repository) FindByTeamCartID(ctx context.Context, teamCartID uuid.UUID) (*models.TeamCartOrder, error) {
	var order models.TeamCartOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments").
		Where("team_cart_id = ?", teamCartID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// Create inserts the order together with its items and payments.
func (r *repository) Create(ctx context.Context, order *models.TeamCartOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// Delete removes the order with its items and payments.
func (r *repository) Delete(ctx context.Context, orderID uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("order_id = ?", orderID).Delete(&models.TeamCartOrderItem{}).Error; err != nil {
		return err
	}
	if err := db.Where("order_id = ?", orderID).Delete(&models.TeamCartOrderPayment{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", orderID).Delete(&models.TeamCartOrder{}).Error
}
