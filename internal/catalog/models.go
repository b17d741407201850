package catalog

import (
	"fmt"
	"time"
)

type Product struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Color      string    `json:"color"`
	PriceCents int       `json:"price_cents"`
	Stock      int       `json:"stock"`
	ImageURL   string    `json:"image_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BRL renders integer cents as the customer-facing price.
func BRL(cents int) string {
	return fmt.Sprintf("R$ %.2f", float64(cents)/100)
}
