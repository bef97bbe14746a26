package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/micromaend/bidding-service/internal/domain/bids"
	pkgdb "github.com/micromaend/bidding-service/pkg/database"
)

const uniqueViolation = "23505"

// PostgresBidRepository implements bids.BidRepository using pgx
type PostgresBidRepository struct {
	pool *pgxpool.Pool // Keep pool for read-only operations
}

// NewPostgresBidRepository creates a new PostgreSQL bid repository
func NewPostgresBidRepository(pool *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{pool: pool}
}

// ConditionalInsert inserts the bid only if it beats every stored bid for its
// auction. Concurrent inserts on the same auction serialize on a per-auction
// advisory lock held for the rest of the transaction, so the max re-check and
// the insert are one indivisible step; inserts on unrelated auctions take
// distinct lock keys and do not block each other. The unique
// (auction_id, amount) index backstops the invariant for writers that bypass
// this method.
func (r *PostgresBidRepository) ConditionalInsert(ctx context.Context, tx pgx.Tx, bid *bids.Bid) error {
	_, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`,
		bid.AuctionID,
	)
	if err != nil {
		return fmt.Errorf("failed to acquire auction lock: %w", err)
	}

	var currentHighest int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(amount), 0) FROM bids WHERE auction_id = $1`,
		bid.AuctionID,
	).Scan(&currentHighest)
	if err != nil {
		return fmt.Errorf("failed to read highest amount: %w", err)
	}

	if bid.Amount <= currentHighest {
		return bids.ErrBidNotHighest
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bids (id, auction_id, user_id, amount, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		bid.ID,
		bid.AuctionID,
		bid.UserID,
		bid.Amount,
		bid.SubmittedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "bids_pkey" {
				return bids.ErrDuplicateBid
			}
			return bids.ErrBidNotHighest
		}
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// Remove deletes a bid by id. The returned bool reports whether a row
// existed; an absent id is not an error.
func (r *PostgresBidRepository) Remove(ctx context.Context, bidID uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM bids WHERE id = $1`, bidID)
	if err != nil {
		return false, fmt.Errorf("failed to delete bid: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// FindByAuction retrieves all bids for an auction
func (r *PostgresBidRepository) FindByAuction(ctx context.Context, auctionID uuid.UUID) ([]*bids.Bid, error) {
	return r.findBy(ctx, `auction_id`, auctionID)
}

// FindByUser retrieves all bids placed by a user
func (r *PostgresBidRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*bids.Bid, error) {
	return r.findBy(ctx, `user_id`, userID)
}

func (r *PostgresBidRepository) findBy(ctx context.Context, column string, id uuid.UUID) ([]*bids.Bid, error) {
	query := fmt.Sprintf(`
		SELECT id, auction_id, user_id, amount, submitted_at
		FROM bids
		WHERE %s = $1
	`, column)
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var result []*bids.Bid
	for rows.Next() {
		bid, scanErr := scanBid(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		result = append(result, bid)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}

	return result, nil
}

// HighestByAuction retrieves the highest bid for an auction, ties broken by
// earliest submission. Returns (nil, nil) when the auction has no bids.
func (r *PostgresBidRepository) HighestByAuction(ctx context.Context, auctionID uuid.UUID) (*bids.Bid, error) {
	return r.highestByAuction(ctx, r.pool, auctionID)
}

// highestByAuction is the internal implementation that works with any DBTX,
// so the same query can run inside a transaction when needed.
func (r *PostgresBidRepository) highestByAuction(ctx context.Context, db pkgdb.DBTX, auctionID uuid.UUID) (*bids.Bid, error) {
	row := db.QueryRow(ctx, `
		SELECT id, auction_id, user_id, amount, submitted_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, submitted_at ASC
		LIMIT 1
	`, auctionID)

	bid, err := scanBid(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return bid, nil
}

func scanBid(row pgx.Row) (*bids.Bid, error) {
	var bid bids.Bid
	if err := row.Scan(
		&bid.ID,
		&bid.AuctionID,
		&bid.UserID,
		&bid.Amount,
		&bid.SubmittedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan bid: %w", err)
	}
	return &bid, nil
}
