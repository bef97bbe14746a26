package bids

import "fmt"

// Validation errors
var (
	ErrNilBid           = fmt.Errorf("bid cannot be nil")
	ErrInvalidBidAmount = fmt.Errorf("bid amount must be positive")
	ErrBidTooLow        = fmt.Errorf("bid amount must be higher than current highest bid")
	ErrUnauthorized     = fmt.Errorf("principal is not allowed to perform this operation")
)

// Conflict errors surfaced by the store
var (
	// ErrBidNotHighest means another bid won the conditional insert: by the
	// time the insert executed, an equal or higher amount was already stored.
	ErrBidNotHighest = fmt.Errorf("bid is not higher than the stored highest bid")
	ErrDuplicateBid  = fmt.Errorf("a bid with this id already exists")
)
