package bids

import "github.com/google/uuid"

// Decide applies the acceptance rules to a candidate bid. It is a pure
// function: currentHighest is whatever the caller last observed (nil when the
// auction has no bids) and may be stale by the time the insert executes, so
// the store's conditional insert remains the authoritative gate for the
// amount rule. Authorization, which the store cannot check, is final here.
func Decide(candidate *PlaceBidCommand, currentHighest *Bid, principal Principal) error {
	if candidate == nil {
		return ErrNilBid
	}
	if candidate.Amount <= 0 {
		return ErrInvalidBidAmount
	}
	if currentHighest != nil && candidate.Amount <= currentHighest.Amount {
		return ErrBidTooLow
	}
	if !Authorize(principal, candidate.UserID) {
		return ErrUnauthorized
	}
	return nil
}

// Authorize checks whether a principal may act on a bid owned by ownerID.
// Admins may act on behalf of any user.
func Authorize(principal Principal, ownerID uuid.UUID) bool {
	return principal.Admin || principal.UserID == ownerID
}
