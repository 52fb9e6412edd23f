package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	Category      string           `json:"category"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discountPrice,omitempty"`
	Stock         int              `json:"stock"`
	IsActive      bool             `json:"isActive"`
	IsFeatured    bool             `json:"isFeatured"`
	IsPopular     bool             `json:"isPopular"`
	Rating        decimal.Decimal  `json:"rating"`
	ReviewCount   int              `json:"reviewCount"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// EffectivePrice is the price a customer pays for one unit right now.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice != nil && p.DiscountPrice.IsPositive() && p.DiscountPrice.LessThan(p.Price) {
		return *p.DiscountPrice
	}
	return p.Price
}

// Snapshot denormalises the product into an order line.
func (p Product) Snapshot(quantity int) ShopItem {
	return ShopItem{
		ProductID: p.ID,
		Name:      p.Name,
		Category:  p.Category,
		Price:     p.EffectivePrice(),
		Quantity:  quantity,
	}
}
