package bids

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	userID := uuid.New()
	auctionID := uuid.New()
	otherUser := uuid.New()

	highest := &Bid{
		ID:          uuid.New(),
		AuctionID:   auctionID,
		UserID:      otherUser,
		Amount:      500,
		SubmittedAt: time.Now(),
	}

	tests := []struct {
		name           string
		candidate      *PlaceBidCommand
		currentHighest *Bid
		principal      Principal
		wantErr        error
	}{
		{
			name:           "nil candidate",
			candidate:      nil,
			currentHighest: nil,
			principal:      Principal{UserID: userID},
			wantErr:        ErrNilBid,
		},
		{
			name:           "valid bid - higher than current highest",
			candidate:      &PlaceBidCommand{AuctionID: auctionID, UserID: userID, Amount: 1000},
			currentHighest: highest,
			principal:      Principal{UserID: userID},
			wantErr:        nil,
		},
		{
			name:           "valid bid - first bid on auction",
			candidate:      &PlaceBidCommand{AuctionID: auctionID, UserID: userID, Amount: 1},
			currentHighest: nil,
			principal:      Principal{UserID: userID},
			wantErr:        nil,
		},
		{
			name:           "invalid bid - equal to current highest",
			candidate:      &PlaceBidCommand{AuctionID: auctionID, UserID: userID, Amount: 500},
			currentHighest: highest,
			principal:      Principal{UserID: userID},
			wantErr:        ErrBidTooLow,
		},
		{
			name:           "invalid bid - lower than current highest",
			candidate:      &PlaceBidCommand{AuctionID: auctionID, UserID: userID, Amount: 100},
			currentHighest: highest,
			principal:      Principal{UserID: userID},
			wantErr:        ErrBidTooLow,
		},
		{
			name:           "invalid bid - zero amount",
			candidate:      &PlaceBidCommand{AuctionID: auctionID, UserID: userID, Amount: 0},
			currentHighest: nil,
			principal:      Principal{UserID: userID},
			wantErr:        ErrInvalidBidAmount,
		},
		{
			name:           "invalid bid - negative amount",
			candidate:      &PlaceBidCommand{AuctionID: auctionID, UserID: userID, Amount: -100},
			currentHighest: nil,
			principal:      Principal{UserID: userID},
			wantErr:        ErrInvalidBidAmount,
		},
		{
			name:           "unauthorized - bidding as another user",
			candidate:      &PlaceBidCommand{AuctionID: auctionID, UserID: otherUser, Amount: 1000},
			currentHighest: highest,
			principal:      Principal{UserID: userID},
			wantErr:        ErrUnauthorized,
		},
		{
			name:           "authorized - admin bidding on behalf of another user",
			candidate:      &PlaceBidCommand{AuctionID: auctionID, UserID: otherUser, Amount: 1000},
			currentHighest: highest,
			principal:      Principal{UserID: userID, Admin: true},
			wantErr:        nil,
		},
		{
			name:           "amount rule checked before authorization",
			candidate:      &PlaceBidCommand{AuctionID: auctionID, UserID: otherUser, Amount: 100},
			currentHighest: highest,
			principal:      Principal{UserID: userID},
			wantErr:        ErrBidTooLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Decide(tt.candidate, tt.currentHighest, tt.principal)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()

	assert.True(t, Authorize(Principal{UserID: owner}, owner))
	assert.False(t, Authorize(Principal{UserID: stranger}, owner))
	assert.True(t, Authorize(Principal{UserID: stranger, Admin: true}, owner))
}
