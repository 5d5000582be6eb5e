package service

import (
	"sort"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
)

// BatchSelection is one batch's contribution to an allocation plan
type BatchSelection struct {
	Batch    *domain.StockBatch `json:"batch"`
	Quantity int                `json:"quantity"`
}

// AllocationPlan is the result of a FEFO planning pass. It is a pure read:
// nothing is mutated, so callers can use it for previews and what-if checks.
type AllocationPlan struct {
	DrugID         string           `json:"drug_id"`
	Requested      int              `json:"requested"`
	Selections     []BatchSelection `json:"selections"`
	TotalAvailable int              `json:"total_available"`
	CanFulfill     bool             `json:"can_fulfill"`
}

// PlanAllocation selects batches for a requested quantity using
// First-Expiry-First-Out: dated batches before perpetual-shelf-life ones,
// and among dated batches the soonest expiry first. Batches with identical
// expiry dates keep their incoming order. Only ACTIVE batches with a
// positive effective availability (available minus reserved) participate.
func PlanAllocation(drugID string, batches []*domain.StockBatch, quantity int) AllocationPlan {
	plan := AllocationPlan{DrugID: drugID, Requested: quantity}

	candidates := make([]*domain.StockBatch, 0, len(batches))
	for _, b := range batches {
		if b.Status != domain.BatchStatusActive {
			continue
		}
		if b.EffectiveAvailable() <= 0 {
			continue
		}
		candidates = append(candidates, b)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.NoExpiry != b.NoExpiry {
			return !a.NoExpiry
		}
		if a.NoExpiry {
			return false
		}
		return a.ExpiryDate.Before(*b.ExpiryDate)
	})

	remaining := quantity
	for _, b := range candidates {
		available := b.EffectiveAvailable()
		plan.TotalAvailable += available

		if remaining <= 0 {
			continue
		}

		take := available
		if take > remaining {
			take = remaining
		}
		plan.Selections = append(plan.Selections, BatchSelection{Batch: b, Quantity: take})
		remaining -= take
	}

	plan.CanFulfill = plan.TotalAvailable >= quantity
	return plan
}
