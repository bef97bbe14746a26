package bids

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/micromaend/bidding-service/pkg/events"
)

// BidRepository defines the interface for bid persistence
type BidRepository interface {
	// ConditionalInsert inserts the bid if and only if no stored bid for the
	// same auction has an equal or higher amount. The check and the insert
	// are one indivisible operation: implementations must serialize
	// concurrent inserts per auction so that callers never race a separate
	// read against a separate write. Returns ErrBidNotHighest when the bid
	// lost, ErrDuplicateBid when the id is already taken.
	ConditionalInsert(ctx context.Context, tx pgx.Tx, bid *Bid) error

	// Remove deletes a bid by id. Removing an absent id is not an error;
	// the returned bool reports whether a row was deleted.
	Remove(ctx context.Context, bidID uuid.UUID) (bool, error)

	// FindByAuction retrieves all bids for an auction, in no defined order.
	FindByAuction(ctx context.Context, auctionID uuid.UUID) ([]*Bid, error)

	// FindByUser retrieves all bids placed by a user.
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*Bid, error)

	// HighestByAuction retrieves the bid with the maximum amount for an
	// auction, ties broken by earliest submission. Returns (nil, nil) when
	// the auction has no bids.
	HighestByAuction(ctx context.Context, auctionID uuid.UUID) (*Bid, error)
}

// OutboxRepository defines the interface for outbox event persistence
type OutboxRepository interface {
	// SaveEvent saves an outbox event within a transaction
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error

	// GetPendingEvents retrieves pending events for processing
	// Uses SELECT FOR UPDATE SKIP LOCKED to prevent race conditions
	GetPendingEvents(ctx context.Context, tx pgx.Tx, limit int) ([]*events.OutboxEvent, error)

	// UpdateEventStatus updates the status of an event
	UpdateEventStatus(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, status events.OutboxStatus) error
}

// EventPublisher defines the interface for publishing events to a message broker
type EventPublisher interface {
	// Publish publishes a message to the broker
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}
