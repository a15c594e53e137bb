package domain

import "time"

const DefaultLowStockThreshold = 10

type Product struct {
	ID                int64     `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Description       string    `db:"description" json:"description"`
	Price             int64     `db:"price" json:"price"`
	Quantity          int32     `db:"quantity" json:"quantity"`
	PurchasedCount    int32     `db:"purchased_count" json:"purchased_count"`
	LowStockThreshold int32     `db:"low_stock_threshold" json:"low_stock_threshold"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// IsLowStock reports whether the remaining quantity is at or below the threshold.
func (p *Product) IsLowStock() bool {
	return IsLowStock(p.Quantity, p.LowStockThreshold)
}

func IsLowStock(quantity, threshold int32) bool {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return quantity <= threshold
}

// StockLevel is the ledger state of one product right after a purchase.
type StockLevel struct {
	ProductID         int64
	Name              string
	Quantity          int32
	PurchasedCount    int32
	LowStockThreshold int32
}

func (s StockLevel) IsLowStock() bool {
	return IsLowStock(s.Quantity, s.LowStockThreshold)
}
