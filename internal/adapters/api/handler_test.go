package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/micromaend/bidding-service/internal/domain/bids"
	"github.com/micromaend/bidding-service/pkg/auth"
)

type mockBidService struct {
	mock.Mock
}

func (m *mockBidService) PlaceBid(ctx context.Context, cmd *bids.PlaceBidCommand, principal bids.Principal) (*bids.PlacementResult, error) {
	args := m.Called(ctx, cmd, principal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bids.PlacementResult), args.Error(1)
}

func (m *mockBidService) DeleteBid(ctx context.Context, bidID uuid.UUID, principal bids.Principal) (bool, error) {
	args := m.Called(ctx, bidID, principal)
	return args.Bool(0), args.Error(1)
}

func (m *mockBidService) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]*bids.Bid, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*bids.Bid), args.Error(1)
}

func (m *mockBidService) ListByUser(ctx context.Context, userID uuid.UUID) ([]*bids.Bid, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*bids.Bid), args.Error(1)
}

func (m *mockBidService) HighestForAuction(ctx context.Context, auctionID uuid.UUID) (*bids.Bid, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bids.Bid), args.Error(1)
}

type handlerFixture struct {
	service *mockBidService
	server  http.Handler
	key     *rsa.PrivateKey
}

const handlerTestIssuer = "https://identity.micromaend.dev"

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(
		pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}),
		handlerTestIssuer,
	)
	require.NoError(t, err)

	service := &mockBidService{}
	handler := NewHandler(service, slog.Default())
	return &handlerFixture{
		service: service,
		server:  handler.Routes(verifier),
		key:     key,
	}
}

func (f *handlerFixture) token(t *testing.T, userID uuid.UUID, admin bool) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    handlerTestIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Admin: admin,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(f.key)
	require.NoError(t, err)
	return token
}

func (f *handlerFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestPlaceBidEndpoint(t *testing.T) {
	userID := uuid.New()
	auctionID := uuid.New()

	t.Run("Created", func(t *testing.T) {
		f := newHandlerFixture(t)
		bid := &bids.Bid{
			ID:          uuid.New(),
			AuctionID:   auctionID,
			UserID:      userID,
			Amount:      100,
			SubmittedAt: time.Now().UTC(),
		}
		f.service.On("PlaceBid", mock.Anything, mock.MatchedBy(func(cmd *bids.PlaceBidCommand) bool {
			return cmd.AuctionID == auctionID && cmd.UserID == userID && cmd.Amount == 100
		}), bids.Principal{UserID: userID}).
			Return(&bids.PlacementResult{Bid: bid, Notified: true}, nil)

		rec := f.do(t, http.MethodPost, "/bidding", f.token(t, userID, false), placeBidRequest{
			AuctionID: auctionID.String(),
			UserID:    userID.String(),
			Amount:    100,
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		resp := decodeBody[placeBidResponse](t, rec)
		assert.True(t, resp.Notified)
		assert.Equal(t, bid.ID.String(), resp.Bid.ID)
		assert.Equal(t, int64(100), resp.Bid.Amount)
		f.service.AssertExpectations(t)
	})

	t.Run("CreatedButNotNotified", func(t *testing.T) {
		f := newHandlerFixture(t)
		bid := &bids.Bid{ID: uuid.New(), AuctionID: auctionID, UserID: userID, Amount: 100}
		f.service.On("PlaceBid", mock.Anything, mock.Anything, mock.Anything).
			Return(&bids.PlacementResult{Bid: bid, Notified: false}, nil)

		rec := f.do(t, http.MethodPost, "/bidding", f.token(t, userID, false), placeBidRequest{
			AuctionID: auctionID.String(),
			UserID:    userID.String(),
			Amount:    100,
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.False(t, decodeBody[placeBidResponse](t, rec).Notified)
	})

	t.Run("DomainErrorsMapToStatuses", func(t *testing.T) {
		cases := []struct {
			name       string
			err        error
			wantStatus int
			wantReason string
		}{
			{"TooLow", bids.ErrBidTooLow, http.StatusConflict, "amount_too_low"},
			{"LostRace", fmt.Errorf("placing: %w", bids.ErrBidNotHighest), http.StatusConflict, "amount_too_low"},
			{"DuplicateID", bids.ErrDuplicateBid, http.StatusConflict, "duplicate_id"},
			{"InvalidAmount", bids.ErrInvalidBidAmount, http.StatusBadRequest, "invalid_bid"},
			{"Unauthorized", bids.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
			{"Infrastructure", fmt.Errorf("connection refused"), http.StatusInternalServerError, "internal"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				f := newHandlerFixture(t)
				f.service.On("PlaceBid", mock.Anything, mock.Anything, mock.Anything).
					Return(nil, tc.err)

				rec := f.do(t, http.MethodPost, "/bidding", f.token(t, userID, false), placeBidRequest{
					AuctionID: auctionID.String(),
					UserID:    userID.String(),
					Amount:    100,
				})

				require.Equal(t, tc.wantStatus, rec.Code)
				assert.Equal(t, tc.wantReason, decodeBody[errorResponse](t, rec).Reason)
			})
		}
	})

	t.Run("MalformedBody", func(t *testing.T) {
		f := newHandlerFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/bidding", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID, false))
		rec := httptest.NewRecorder()

		f.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		f.service.AssertNotCalled(t, "PlaceBid")
	})

	t.Run("NonUUIDAuctionID", func(t *testing.T) {
		f := newHandlerFixture(t)
		rec := f.do(t, http.MethodPost, "/bidding", f.token(t, userID, false), placeBidRequest{
			AuctionID: "auction-42",
			UserID:    userID.String(),
			Amount:    100,
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		f.service.AssertNotCalled(t, "PlaceBid")
	})

	t.Run("NoToken", func(t *testing.T) {
		f := newHandlerFixture(t)
		rec := f.do(t, http.MethodPost, "/bidding", "", placeBidRequest{
			AuctionID: auctionID.String(),
			UserID:    userID.String(),
			Amount:    100,
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		f.service.AssertNotCalled(t, "PlaceBid")
	})
}

func TestDeleteBidEndpoint(t *testing.T) {
	adminID := uuid.New()
	bidID := uuid.New()

	t.Run("Deleted", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.service.On("DeleteBid", mock.Anything, bidID, bids.Principal{UserID: adminID, Admin: true}).
			Return(true, nil)

		rec := f.do(t, http.MethodDelete, "/bidding/"+bidID.String(), f.token(t, adminID, true), nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decodeBody[deleteBidResponse](t, rec).Deleted)
	})

	t.Run("AbsentBidIsStillOK", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.service.On("DeleteBid", mock.Anything, bidID, mock.Anything).Return(false, nil)

		rec := f.do(t, http.MethodDelete, "/bidding/"+bidID.String(), f.token(t, adminID, true), nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, decodeBody[deleteBidResponse](t, rec).Deleted)
	})

	t.Run("NonAdminForbidden", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.service.On("DeleteBid", mock.Anything, bidID, mock.Anything).
			Return(false, bids.ErrUnauthorized)

		rec := f.do(t, http.MethodDelete, "/bidding/"+bidID.String(), f.token(t, uuid.New(), false), nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("MalformedID", func(t *testing.T) {
		f := newHandlerFixture(t)
		rec := f.do(t, http.MethodDelete, "/bidding/not-a-uuid", f.token(t, adminID, true), nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		f.service.AssertNotCalled(t, "DeleteBid")
	})
}

func TestListEndpoints(t *testing.T) {
	userID := uuid.New()
	auctionID := uuid.New()

	t.Run("ByAuction", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.service.On("ListByAuction", mock.Anything, auctionID).Return([]*bids.Bid{
			{ID: uuid.New(), AuctionID: auctionID, UserID: userID, Amount: 100},
			{ID: uuid.New(), AuctionID: auctionID, UserID: userID, Amount: 200},
		}, nil)

		rec := f.do(t, http.MethodGet, "/bidding/auctions/"+auctionID.String(), f.token(t, userID, false), nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[[]bidResponse](t, rec), 2)
	})

	t.Run("ByAuctionEmptyIsEmptyArray", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.service.On("ListByAuction", mock.Anything, auctionID).Return([]*bids.Bid{}, nil)

		rec := f.do(t, http.MethodGet, "/bidding/auctions/"+auctionID.String(), f.token(t, userID, false), nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("ByUser", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.service.On("ListByUser", mock.Anything, userID).Return([]*bids.Bid{
			{ID: uuid.New(), AuctionID: auctionID, UserID: userID, Amount: 100},
		}, nil)

		rec := f.do(t, http.MethodGet, "/bidding/users/"+userID.String(), f.token(t, userID, false), nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[[]bidResponse](t, rec), 1)
	})
}

func TestHighestForAuctionEndpoint(t *testing.T) {
	userID := uuid.New()
	auctionID := uuid.New()

	t.Run("Found", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.service.On("HighestForAuction", mock.Anything, auctionID).
			Return(&bids.Bid{ID: uuid.New(), AuctionID: auctionID, UserID: userID, Amount: 500}, nil)

		rec := f.do(t, http.MethodGet, "/bidding/auctions/"+auctionID.String()+"/highest", f.token(t, userID, false), nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(500), decodeBody[bidResponse](t, rec).Amount)
	})

	t.Run("NoBidsIsNotFound", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.service.On("HighestForAuction", mock.Anything, auctionID).Return(nil, nil)

		rec := f.do(t, http.MethodGet, "/bidding/auctions/"+auctionID.String()+"/highest", f.token(t, userID, false), nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "no_bids", decodeBody[errorResponse](t, rec).Reason)
	})
}
