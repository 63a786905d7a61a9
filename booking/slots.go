package booking

import "context"

// SlotIndex answers conflict questions over the stored reservation set.
// It is read-only; exclusivity comes from the caller holding the resource
// lock in the same transaction.
type SlotIndex struct{}

// Conflict returns the first active reservation on resourceID that overlaps
// slot, or nil.
func (SlotIndex) Conflict(ctx context.Context, r ReservationReader, resourceID ResourceID, slot Slot) (*Reservation, error) {
	candidates, err := r.FindOverlapping(ctx, resourceID, slot)
	if err != nil {
		return nil, err
	}
	// Stores already filter, but the predicate is cheap to hold here too.
	for i := range candidates {
		c := candidates[i]
		if c.ResourceID == resourceID && c.Status.HoldsSlot() && c.Slot().Overlaps(slot) {
			return &c, nil
		}
	}
	return nil, nil
}

// HasConflict reports whether any active reservation on resourceID
// overlaps [slot.Start, slot.End).
func (s SlotIndex) HasConflict(ctx context.Context, r ReservationReader, resourceID ResourceID, slot Slot) (bool, error) {
	c, err := s.Conflict(ctx, r, resourceID, slot)
	return c != nil, err
}

// check wraps a found conflict in a SlotConflictError.
func (s SlotIndex) check(ctx context.Context, r ReservationReader, resourceID ResourceID, slot Slot) error {
	c, err := s.Conflict(ctx, r, resourceID, slot)
	if err != nil {
		return err
	}
	if c != nil {
		return &SlotConflictError{ResourceID: resourceID, Slot: slot, ConflictingID: c.ID}
	}
	return nil
}
