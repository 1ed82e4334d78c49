package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func activeBatch(id int64, available float64, expiry, received string) Batch {
	b := Batch{
		ID:                id,
		ProductID:         1,
		Quantity:          available,
		AvailableQuantity: available,
		UnitCost:          decimal.NewFromInt(10),
		ReceivedAt:        day(received),
		IsActive:          true,
	}
	if expiry != "" {
		b.ExpiryDate = day(expiry)
	}
	return b
}

func TestPlanAllocationExpiryBeforeReceipt(t *testing.T) {
	// Three batches: the one expiring soonest wins even though it arrived
	// last, and the undated batch is drained only after every dated one.
	batches := []Batch{
		activeBatch(1, 10, "", "2026-01-01"),
		activeBatch(2, 10, "2026-06-01", "2026-02-01"),
		activeBatch(3, 10, "2026-03-01", "2026-03-01"),
	}

	allocations, err := planAllocation(batches, 25)
	require.NoError(t, err)
	require.Len(t, allocations, 3)
	require.Equal(t, int64(3), allocations[0].BatchID)
	require.Equal(t, int64(2), allocations[1].BatchID)
	require.Equal(t, int64(1), allocations[2].BatchID)
	require.InDelta(t, 10, allocations[0].Quantity, qtyEpsilon)
	require.InDelta(t, 10, allocations[1].Quantity, qtyEpsilon)
	require.InDelta(t, 5, allocations[2].Quantity, qtyEpsilon)
}

func TestPlanAllocationReceiptThenIDTieBreak(t *testing.T) {
	batches := []Batch{
		activeBatch(7, 5, "", "2026-02-01"),
		activeBatch(4, 5, "", "2026-01-01"),
		activeBatch(3, 5, "", "2026-01-01"),
	}

	allocations, err := planAllocation(batches, 12)
	require.NoError(t, err)
	require.Len(t, allocations, 3)
	require.Equal(t, int64(3), allocations[0].BatchID)
	require.Equal(t, int64(4), allocations[1].BatchID)
	require.Equal(t, int64(7), allocations[2].BatchID)
	require.InDelta(t, 2, allocations[2].Quantity, qtyEpsilon)
}

func TestPlanAllocationExactDrain(t *testing.T) {
	batches := []Batch{activeBatch(1, 8, "2026-05-01", "2026-01-01")}

	allocations, err := planAllocation(batches, 8)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	require.InDelta(t, 8, allocations[0].Quantity, qtyEpsilon)
}

func TestPlanAllocationInsufficient(t *testing.T) {
	batches := []Batch{
		activeBatch(1, 3, "2026-05-01", "2026-01-01"),
		activeBatch(2, 4, "", "2026-01-02"),
	}

	allocations, err := planAllocation(batches, 7.5)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Nil(t, allocations)
}

func TestPlanAllocationSkipsInactiveAndDrained(t *testing.T) {
	drained := activeBatch(1, 0, "2026-01-01", "2026-01-01")
	inactive := activeBatch(2, 50, "2026-01-02", "2026-01-01")
	inactive.IsActive = false
	live := activeBatch(3, 6, "2026-09-01", "2026-01-03")

	allocations, err := planAllocation([]Batch{drained, inactive, live}, 6)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	require.Equal(t, int64(3), allocations[0].BatchID)
}
