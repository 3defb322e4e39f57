package pg

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
)

//go:embed schema.sql
var schemaSQL string

var _ port.Ledger = (*PgRepo)(nil)

type PgRepo struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

func (p *PgRepo) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// InitSchema creates the ledger tables if they do not exist.
func (p *PgRepo) InitSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("pg: init schema: %w", err)
	}
	return nil
}

func (p *PgRepo) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PgRepo) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (p *PgRepo) UpsertLivestream(ctx context.Context, ls *domain.Livestream) error {
	if ls == nil {
		return errors.New("nil livestream")
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO livestreams(id, host_id, title)
VALUES($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET host_id = EXCLUDED.host_id, title = EXCLUDED.title
`, ls.ID, ls.HostID, ls.Title)
	return err
}

func (p *PgRepo) UpsertItem(ctx context.Context, it *domain.AuctionItem) error {
	if it == nil {
		return errors.New("nil item")
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO items(id, livestream_id, title, starting_price, shipping_cost, category, status, mode, end_at, winner_id, final_price)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11)
ON CONFLICT (id) DO UPDATE SET
  livestream_id = EXCLUDED.livestream_id,
  title = EXCLUDED.title,
  starting_price = EXCLUDED.starting_price,
  shipping_cost = EXCLUDED.shipping_cost,
  category = EXCLUDED.category,
  status = EXCLUDED.status,
  mode = EXCLUDED.mode,
  end_at = EXCLUDED.end_at,
  winner_id = EXCLUDED.winner_id,
  final_price = EXCLUDED.final_price
`, it.ID, it.LivestreamID, it.Title, it.StartingPrice, it.ShippingCost, it.Category,
		string(it.Status), string(it.Mode), it.EndAt, it.WinnerID, it.FinalPrice)
	return err
}

func (p *PgRepo) UpdateItemStatus(ctx context.Context, livestreamID, itemID string, upd domain.ItemUpdate) error {
	res, err := p.pool.Exec(ctx, `
UPDATE items
SET status = $1,
    end_at = COALESCE($2, end_at),
    winner_id = COALESCE(NULLIF($3,''), winner_id),
    final_price = COALESCE($4, final_price)
WHERE id = $5 AND livestream_id = $6
`, string(upd.Status), upd.EndAt, upd.WinnerID, upd.FinalPrice, itemID, livestreamID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return errors.New("item not found")
	}
	return nil
}

func (p *PgRepo) SaveBid(ctx context.Context, b *domain.Bid) error {
	if b == nil {
		return errors.New("nil bid")
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO bids(id, auction_id, livestream_id, bidder_id, bidder_name, amount, ts, origin, valid)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING
`, b.ID, b.AuctionID, b.LivestreamID, b.BidderID, b.BidderName, b.Amount, b.Timestamp, string(b.Origin), b.Valid)
	return err
}

func (p *PgRepo) GetItem(ctx context.Context, livestreamID, itemID string) (*domain.AuctionItem, error) {
	var it domain.AuctionItem
	var status, mode string
	var winner *string
	err := p.pool.QueryRow(ctx, `
SELECT id, livestream_id, title, starting_price, shipping_cost, category, status, mode, end_at, winner_id, final_price
FROM items
WHERE id = $1 AND livestream_id = $2
`, itemID, livestreamID).Scan(&it.ID, &it.LivestreamID, &it.Title, &it.StartingPrice, &it.ShippingCost,
		&it.Category, &status, &mode, &it.EndAt, &winner, &it.FinalPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	it.Status = domain.ItemStatus(status)
	it.Mode = domain.AuctionMode(mode)
	if winner != nil {
		it.WinnerID = *winner
	}
	return &it, nil
}

func (p *PgRepo) GetLivestream(ctx context.Context, livestreamID string) (*domain.Livestream, error) {
	var ls domain.Livestream
	err := p.pool.QueryRow(ctx, `SELECT id, host_id, title FROM livestreams WHERE id = $1`, livestreamID).
		Scan(&ls.ID, &ls.HostID, &ls.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ls, nil
}

// CreateOrder inserts the order for a sold item, or returns the id of the one
// already there with created false.
func (p *PgRepo) CreateOrder(ctx context.Context, itemID, livestreamID, buyerID string, amount decimal.Decimal) (string, bool, error) {
	var id string
	created := false
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
INSERT INTO orders(id, item_id, livestream_id, buyer_id, amount, status, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (item_id) DO UPDATE SET item_id = EXCLUDED.item_id
RETURNING id, (xmax = 0)
`, uuid.NewString(), itemID, livestreamID, buyerID, amount, string(domain.OrderPending), time.Now().UTC()).Scan(&id, &created)
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("pg: create order: %w", err)
	}
	return id, created, nil
}

func (p *PgRepo) UpdateUserStats(ctx context.Context, userID string, saleAmount decimal.Decimal) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_stats(user_id, sales, total_sales)
VALUES($1, 1, $2)
ON CONFLICT (user_id) DO UPDATE SET
  sales = user_stats.sales + 1,
  total_sales = user_stats.total_sales + EXCLUDED.total_sales
`, userID, saleAmount)
	return err
}

// ListBids returns an auction's bids oldest first.
func (p *PgRepo) ListBids(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, auction_id, livestream_id, bidder_id, bidder_name, amount, ts, origin, valid
FROM bids
WHERE auction_id = $1
ORDER BY ts ASC, id ASC
`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Bid
	for rows.Next() {
		var b domain.Bid
		var origin string
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.LivestreamID, &b.BidderID, &b.BidderName, &b.Amount, &b.Timestamp, &origin, &b.Valid); err != nil {
			return nil, err
		}
		b.Origin = domain.BidOrigin(origin)
		res = append(res, b)
	}
	return res, rows.Err()
}
