package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/micromaend/bidding-service/internal/domain/bids"
	"github.com/micromaend/bidding-service/pkg/auth"
)

// BidService is the slice of the domain service the HTTP surface needs.
type BidService interface {
	PlaceBid(ctx context.Context, cmd *bids.PlaceBidCommand, principal bids.Principal) (*bids.PlacementResult, error)
	DeleteBid(ctx context.Context, bidID uuid.UUID, principal bids.Principal) (bool, error)
	ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]*bids.Bid, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*bids.Bid, error)
	HighestForAuction(ctx context.Context, auctionID uuid.UUID) (*bids.Bid, error)
}

// Handler exposes the bidding operations over JSON/HTTP.
type Handler struct {
	service BidService
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service BidService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes registers the bidding endpoints on a mux, all behind the auth
// middleware.
func (h *Handler) Routes(verifier *auth.Verifier) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /bidding", h.placeBid)
	mux.HandleFunc("DELETE /bidding/{bidID}", h.deleteBid)
	mux.HandleFunc("GET /bidding/auctions/{auctionID}", h.listByAuction)
	mux.HandleFunc("GET /bidding/auctions/{auctionID}/highest", h.highestForAuction)
	mux.HandleFunc("GET /bidding/users/{userID}", h.listByUser)
	return auth.Middleware(verifier)(mux)
}

type placeBidRequest struct {
	ID        string `json:"id,omitempty"`
	AuctionID string `json:"auctionId"`
	UserID    string `json:"userId"`
	Amount    int64  `json:"amount"`
}

type bidResponse struct {
	ID          string    `json:"id"`
	AuctionID   string    `json:"auctionId"`
	UserID      string    `json:"userId"`
	Amount      int64     `json:"amount"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type placeBidResponse struct {
	Bid      bidResponse `json:"bid"`
	Notified bool        `json:"notified"`
}

type deleteBidResponse struct {
	Deleted bool `json:"deleted"`
}

type errorResponse struct {
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

func (h *Handler) placeBid(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal in request")
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_body", err.Error())
		return
	}

	cmd, err := req.toCommand()
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_body", err.Error())
		return
	}

	result, err := h.service.PlaceBid(r.Context(), cmd, principal)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, placeBidResponse{
		Bid:      toBidResponse(result.Bid),
		Notified: result.Notified,
	})
}

func (h *Handler) deleteBid(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal in request")
		return
	}

	bidID, err := uuid.Parse(r.PathValue("bidID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_id", "bid id must be a UUID")
		return
	}

	deleted, err := h.service.DeleteBid(r.Context(), bidID, principal)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	// Deleting an absent bid is an idempotent success.
	writeJSON(w, http.StatusOK, deleteBidResponse{Deleted: deleted})
}

func (h *Handler) listByAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(r.PathValue("auctionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_id", "auction id must be a UUID")
		return
	}

	result, err := h.service.ListByAuction(r.Context(), auctionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBidResponses(result))
}

func (h *Handler) listByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_id", "user id must be a UUID")
		return
	}

	result, err := h.service.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBidResponses(result))
}

func (h *Handler) highestForAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(r.PathValue("auctionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_id", "auction id must be a UUID")
		return
	}

	bid, err := h.service.HighestForAuction(r.Context(), auctionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if bid == nil {
		writeError(w, http.StatusNotFound, "no_bids", "auction has no bids")
		return
	}
	writeJSON(w, http.StatusOK, toBidResponse(bid))
}

// writeServiceError maps domain errors to HTTP statuses with machine-readable
// reasons, so callers can distinguish "too low" from "unauthorized" from
// infrastructure failure.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bids.ErrNilBid), errors.Is(err, bids.ErrInvalidBidAmount):
		writeError(w, http.StatusBadRequest, "invalid_bid", err.Error())
	case errors.Is(err, bids.ErrBidTooLow), errors.Is(err, bids.ErrBidNotHighest):
		writeError(w, http.StatusConflict, "amount_too_low", err.Error())
	case errors.Is(err, bids.ErrDuplicateBid):
		writeError(w, http.StatusConflict, "duplicate_id", err.Error())
	case errors.Is(err, bids.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (r *placeBidRequest) toCommand() (*bids.PlaceBidCommand, error) {
	cmd := &bids.PlaceBidCommand{Amount: r.Amount}

	var err error
	if r.ID != "" {
		if cmd.ID, err = uuid.Parse(r.ID); err != nil {
			return nil, errors.New("id must be a UUID")
		}
	}
	if cmd.AuctionID, err = uuid.Parse(r.AuctionID); err != nil {
		return nil, errors.New("auctionId must be a UUID")
	}
	if cmd.UserID, err = uuid.Parse(r.UserID); err != nil {
		return nil, errors.New("userId must be a UUID")
	}
	return cmd, nil
}

func toBidResponse(bid *bids.Bid) bidResponse {
	return bidResponse{
		ID:          bid.ID.String(),
		AuctionID:   bid.AuctionID.String(),
		UserID:      bid.UserID.String(),
		Amount:      bid.Amount,
		SubmittedAt: bid.SubmittedAt,
	}
}

func toBidResponses(list []*bids.Bid) []bidResponse {
	result := make([]bidResponse, 0, len(list))
	for _, bid := range list {
		result = append(result, toBidResponse(bid))
	}
	return result
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, errorResponse{Reason: reason, Error: message})
}
