package ledger

import (
	"fmt"
	"math"
	"sort"
)

// sortForConsumption orders candidate batches for allocation: earliest expiry
// first, batches without an expiry date after all dated ones, then ascending
// received date and id as the FIFO fallback.
func sortForConsumption(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		switch {
		case a.HasExpiry() && b.HasExpiry():
			if !a.ExpiryDate.Equal(b.ExpiryDate) {
				return a.ExpiryDate.Before(b.ExpiryDate)
			}
		case a.HasExpiry():
			return true
		case b.HasExpiry():
			return false
		}
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		return a.ID < b.ID
	})
}

// planAllocation walks ordered batches and computes the per-batch quantities
// needed to satisfy the request. It mutates nothing: the plan is validated
// against the snapshot in full before any write happens. A shortfall returns
// ErrInsufficientStock wrapped with the missing quantity.
func planAllocation(batches []Batch, quantity float64) ([]BatchAllocation, error) {
	candidates := make([]Batch, 0, len(batches))
	var available float64
	for _, b := range batches {
		if !b.IsActive || b.AvailableQuantity <= qtyEpsilon {
			continue
		}
		candidates = append(candidates, b)
		available += b.AvailableQuantity
	}
	if available+qtyEpsilon < quantity {
		return nil, fmt.Errorf("%w: requested %v, available %v", ErrInsufficientStock, quantity, available)
	}

	sortForConsumption(candidates)

	var allocations []BatchAllocation
	remaining := quantity
	for _, b := range candidates {
		if remaining <= qtyEpsilon {
			break
		}
		take := math.Min(remaining, b.AvailableQuantity)
		allocations = append(allocations, BatchAllocation{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			Quantity:    take,
			UnitCost:    b.UnitCost,
		})
		remaining -= take
	}
	if remaining > qtyEpsilon {
		return nil, fmt.Errorf("%w: requested %v, available %v", ErrInsufficientStock, quantity, available)
	}
	return allocations, nil
}
