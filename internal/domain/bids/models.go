package bids

import (
	"time"

	"github.com/google/uuid"
)

// Bid is an accepted bid. It is immutable once stored; the only transition
// after acceptance is deletion.
type Bid struct {
	ID          uuid.UUID `db:"id"`
	AuctionID   uuid.UUID `db:"auction_id"`
	UserID      uuid.UUID `db:"user_id"`
	Amount      int64     `db:"amount"` // in cents
	SubmittedAt time.Time `db:"submitted_at"`
}

// Principal is the authenticated identity attempting an operation. Identity
// resolution happens outside this service; the core trusts this input.
type Principal struct {
	UserID uuid.UUID
	Admin  bool
}

// PlaceBidCommand represents the command to place a bid
type PlaceBidCommand struct {
	ID        uuid.UUID // optional; generated when zero
	AuctionID uuid.UUID
	UserID    uuid.UUID
	Amount    int64
}

// PlacementResult is the outcome of a successful placement. Notified reports
// whether the accepted event reached the broker on the fast path; a false
// value leaves the outbox entry pending for the relay to re-drive.
type PlacementResult struct {
	Bid      *Bid
	Notified bool
}
