package bids

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/micromaend/bidding-service/pkg/database"
	"github.com/micromaend/bidding-service/pkg/events"
)

// Exchange is the broker exchange accepted-bid events are routed through.
const Exchange = "bidding.events"

// DefaultPublishTimeout bounds the fast-path notification attempt so a slow
// broker cannot hold up the caller once the bid is durable.
const DefaultPublishTimeout = 5 * time.Second

// Service implements the bid acceptance protocol. A placement either becomes
// durable (with the notification attempted afterwards) or leaves no trace;
// the notification outcome never gates acceptance.
type Service struct {
	txManager      database.TransactionManager
	bidRepo        BidRepository
	outboxRepo     OutboxRepository
	publisher      EventPublisher
	publishTimeout time.Duration
	logger         *slog.Logger
}

// NewService creates a new bid service
func NewService(
	txManager database.TransactionManager,
	bidRepo BidRepository,
	outboxRepo OutboxRepository,
	publisher EventPublisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		txManager:      txManager,
		bidRepo:        bidRepo,
		outboxRepo:     outboxRepo,
		publisher:      publisher,
		publishTimeout: DefaultPublishTimeout,
		logger:         logger,
	}
}

// PlaceBid validates the candidate, inserts it atomically together with its
// outbox event, then attempts the fast-path publish. The early validation
// against the last observed highest bid only rejects obviously losing
// candidates; the store's conditional insert is what enforces the strictly
// increasing order under concurrency.
func (s *Service) PlaceBid(ctx context.Context, cmd *PlaceBidCommand, principal Principal) (*PlacementResult, error) {
	if cmd == nil {
		return nil, ErrNilBid
	}

	currentHighest, err := s.bidRepo.HighestByAuction(ctx, cmd.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read current highest bid: %w", err)
	}

	if err := Decide(cmd, currentHighest, principal); err != nil {
		if errors.Is(err, ErrBidTooLow) {
			s.logger.Info("bid rejected below current highest",
				"auction_id", cmd.AuctionID, "amount", cmd.Amount)
		}
		return nil, err
	}

	bid := &Bid{
		ID:          cmd.ID,
		AuctionID:   cmd.AuctionID,
		UserID:      cmd.UserID,
		Amount:      cmd.Amount,
		SubmittedAt: time.Now().UTC(),
	}
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}

	payload, err := NewBidAcceptedEvent(bid).Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &events.OutboxEvent{
		ID:        uuid.New(),
		EventType: EventTypeBidAccepted,
		Payload:   payload,
		Status:    events.OutboxStatusPending,
		CreatedAt: time.Now(),
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // Rollback if commit is not called
	}()

	if err := s.bidRepo.ConditionalInsert(ctx, tx, bid); err != nil {
		return nil, err
	}

	if err := s.outboxRepo.SaveEvent(ctx, tx, outboxEvent); err != nil {
		return nil, fmt.Errorf("failed to save outbox event: %w", err)
	}

	// After this point the bid is durable and nothing may undo it.
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("bid accepted",
		"bid_id", bid.ID, "auction_id", bid.AuctionID, "amount", bid.Amount)

	notified := s.publishAccepted(ctx, bid, outboxEvent)
	return &PlacementResult{Bid: bid, Notified: notified}, nil
}

// publishAccepted attempts the fast-path notification. On failure the outbox
// entry stays pending and the relay re-drives it later.
func (s *Service) publishAccepted(ctx context.Context, bid *Bid, event *events.OutboxEvent) bool {
	pubCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, Exchange, event.EventType, event.Payload); err != nil {
		s.logger.Warn("bid accepted but notification failed",
			"bid_id", bid.ID, "error", err)
		return false
	}

	// Mark the outbox entry so the relay does not send the event again.
	// A failure here only costs a duplicate delivery, which at-least-once
	// consumers must tolerate anyway. Caller cancellation must not stop the
	// bookkeeping of an already published event.
	markCtx := context.WithoutCancel(ctx)
	tx, err := s.txManager.BeginTx(markCtx)
	if err != nil {
		s.logger.Warn("failed to mark outbox event published", "event_id", event.ID, "error", err)
		return true
	}
	defer func() {
		_ = tx.Rollback(markCtx)
	}()

	if err := s.outboxRepo.UpdateEventStatus(markCtx, tx, event.ID, events.OutboxStatusPublished); err != nil {
		s.logger.Warn("failed to mark outbox event published", "event_id", event.ID, "error", err)
		return true
	}
	if err := tx.Commit(markCtx); err != nil {
		s.logger.Warn("failed to mark outbox event published", "event_id", event.ID, "error", err)
	}
	return true
}

// DeleteBid permanently removes a bid. Only elevated principals may delete;
// deleting an absent id is an idempotent success, reported through the
// returned bool.
func (s *Service) DeleteBid(ctx context.Context, bidID uuid.UUID, principal Principal) (bool, error) {
	if !principal.Admin {
		return false, ErrUnauthorized
	}

	deleted, err := s.bidRepo.Remove(ctx, bidID)
	if err != nil {
		return false, fmt.Errorf("failed to delete bid: %w", err)
	}
	return deleted, nil
}

// ListByAuction returns all bids for an auction, in no defined order.
func (s *Service) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]*Bid, error) {
	return s.bidRepo.FindByAuction(ctx, auctionID)
}

// ListByUser returns all bids placed by a user.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Bid, error) {
	return s.bidRepo.FindByUser(ctx, userID)
}

// HighestForAuction returns the current highest bid, or nil when the auction
// has none. Deletion can change the answer between calls, so callers should
// re-query rather than cache it.
func (s *Service) HighestForAuction(ctx context.Context, auctionID uuid.UUID) (*Bid, error) {
	return s.bidRepo.HighestByAuction(ctx, auctionID)
}
