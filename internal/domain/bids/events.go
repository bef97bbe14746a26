package bids

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventTypeBidAccepted is the routing key for accepted-bid events.
const EventTypeBidAccepted = "bid.accepted"

// BidAcceptedEvent is the wire contract owed to downstream consumers: the
// full bid record as JSON. Field names are stable; renaming any of them
// breaks every consumer.
type BidAcceptedEvent struct {
	ID          uuid.UUID `json:"id"`
	AuctionID   uuid.UUID `json:"auctionId"`
	UserID      uuid.UUID `json:"userId"`
	Amount      int64     `json:"amount"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// NewBidAcceptedEvent builds the event for an accepted bid.
func NewBidAcceptedEvent(bid *Bid) *BidAcceptedEvent {
	return &BidAcceptedEvent{
		ID:          bid.ID,
		AuctionID:   bid.AuctionID,
		UserID:      bid.UserID,
		Amount:      bid.Amount,
		SubmittedAt: bid.SubmittedAt.UTC(),
	}
}

// Marshal serializes the event payload.
func (e *BidAcceptedEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
