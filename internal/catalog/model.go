// Package catalog is the read-only boundary to the product registry. Product
// identity and restocking thresholds are owned by the catalog collaborator;
// the ledger only references products by id.
package catalog

import "time"

// Product carries the catalog fields the ledger and alerting need.
type Product struct {
	ID                       int64     `json:"id"`
	SKU                      string    `json:"sku"`
	Name                     string    `json:"name"`
	LowStockThreshold        float64   `json:"low_stock_threshold"`
	ReorderPoint             float64   `json:"reorder_point"`
	SuggestedReorderQuantity float64   `json:"suggested_reorder_quantity"`
	IsActive                 bool      `json:"is_active"`
	CreatedAt                time.Time `json:"created_at"`
}
