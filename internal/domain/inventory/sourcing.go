package inventory

import "github.com/google/uuid"

// BatchCapacity is the free capacity of one purchase-order batch
type BatchCapacity struct {
	BatchID   uuid.UUID
	Available int
}

// Draw is a quantity taken from (or given back to) one batch
type Draw struct {
	BatchID  uuid.UUID
	SourceID uuid.UUID // zero for new draws
	Quantity int
}

// PlanFIFO consumes quantity from batches in the given order, which callers
// supply oldest first. It returns the draws and whatever could not be placed.
func PlanFIFO(batches []BatchCapacity, quantity int) ([]Draw, int) {
	remaining := quantity
	draws := make([]Draw, 0, len(batches))
	for _, b := range batches {
		if remaining <= 0 {
			break
		}
		if b.Available <= 0 {
			continue
		}
		take := min(b.Available, remaining)
		draws = append(draws, Draw{BatchID: b.BatchID, Quantity: take})
		remaining -= take
	}
	return draws, remaining
}

// SourceHolding is an existing attribution as seen by a release plan
type SourceHolding struct {
	SourceID uuid.UUID
	BatchID  uuid.UUID
	Quantity int
}

// PlanLIFORelease gives back quantity starting with the most recent holding.
// Holdings are supplied oldest first. It returns the releases and whatever
// could not be released.
func PlanLIFORelease(holdings []SourceHolding, quantity int) ([]Draw, int) {
	remaining := quantity
	releases := make([]Draw, 0, len(holdings))
	for i := len(holdings) - 1; i >= 0 && remaining > 0; i-- {
		h := holdings[i]
		if h.Quantity <= 0 {
			continue
		}
		give := min(h.Quantity, remaining)
		releases = append(releases, Draw{BatchID: h.BatchID, SourceID: h.SourceID, Quantity: give})
		remaining -= give
	}
	return releases, remaining
}
