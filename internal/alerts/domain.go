package alerts

import "time"

// LowStockAlert is a product whose available quantity has fallen to or below
// its threshold.
type LowStockAlert struct {
	ProductID                int64   `json:"product_id"`
	SKU                      string  `json:"sku"`
	Name                     string  `json:"name"`
	Available                float64 `json:"available"`
	Threshold                float64 `json:"threshold"`
	ReorderPoint             float64 `json:"reorder_point"`
	SuggestedReorderQuantity float64 `json:"suggested_reorder_qty"`
}

// ExpiryAlert is a batch with remaining stock that is expiring or expired.
type ExpiryAlert struct {
	BatchID           int64     `json:"batch_id"`
	ProductID         int64     `json:"product_id"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	BatchNumber       string    `json:"batch_number,omitempty"`
	AvailableQuantity float64   `json:"available_quantity"`
	ExpiryDate        time.Time `json:"expiry_date"`
}
