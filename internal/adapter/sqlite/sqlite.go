// Package sqlite is a single-file Ledger for local runs and demos.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
)

//go:embed schema.sql
var schemaSQL string

var _ port.Ledger = (*Repo)(nil)

type Repo struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
// SQLite allows one writer, so the pool is held to a single connection.
func Open(path string) (*Repo, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: connect: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repo) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *Repo) UpsertLivestream(ctx context.Context, ls *domain.Livestream) error {
	if ls == nil {
		return errors.New("nil livestream")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO livestreams(id, host_id, title) VALUES(?,?,?)
ON CONFLICT(id) DO UPDATE SET host_id = excluded.host_id, title = excluded.title
`, ls.ID, ls.HostID, ls.Title)
	return err
}

func (r *Repo) UpsertItem(ctx context.Context, it *domain.AuctionItem) error {
	if it == nil {
		return errors.New("nil item")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO items(id, livestream_id, title, starting_price, shipping_cost, category, status, mode, end_at, winner_id, final_price)
VALUES(?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  livestream_id = excluded.livestream_id,
  title = excluded.title,
  starting_price = excluded.starting_price,
  shipping_cost = excluded.shipping_cost,
  category = excluded.category,
  status = excluded.status,
  mode = excluded.mode,
  end_at = excluded.end_at,
  winner_id = excluded.winner_id,
  final_price = excluded.final_price
`, it.ID, it.LivestreamID, it.Title, it.StartingPrice.String(), it.ShippingCost.String(), it.Category,
		string(it.Status), string(it.Mode), nullMillis(it.EndAt), nullString(it.WinnerID), it.FinalPrice)
	return err
}

func (r *Repo) UpdateItemStatus(ctx context.Context, livestreamID, itemID string, upd domain.ItemUpdate) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE items
SET status = ?,
    end_at = COALESCE(?, end_at),
    winner_id = COALESCE(?, winner_id),
    final_price = COALESCE(?, final_price)
WHERE id = ? AND livestream_id = ?
`, string(upd.Status), nullMillis(upd.EndAt), nullString(upd.WinnerID), upd.FinalPrice, itemID, livestreamID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("item not found")
	}
	return nil
}

func (r *Repo) SaveBid(ctx context.Context, b *domain.Bid) error {
	if b == nil {
		return errors.New("nil bid")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO bids(id, auction_id, livestream_id, bidder_id, bidder_name, amount, ts, origin, valid)
VALUES(?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO NOTHING
`, b.ID, b.AuctionID, b.LivestreamID, b.BidderID, b.BidderName, b.Amount.String(), b.Timestamp, string(b.Origin), b.Valid)
	return err
}

func (r *Repo) GetItem(ctx context.Context, livestreamID, itemID string) (*domain.AuctionItem, error) {
	var it domain.AuctionItem
	var status, mode string
	var endAt sql.NullInt64
	var winner sql.NullString
	err := r.db.QueryRowContext(ctx, `
SELECT id, livestream_id, title, starting_price, shipping_cost, category, status, mode, end_at, winner_id, final_price
FROM items WHERE id = ? AND livestream_id = ?
`, itemID, livestreamID).Scan(&it.ID, &it.LivestreamID, &it.Title, &it.StartingPrice, &it.ShippingCost,
		&it.Category, &status, &mode, &endAt, &winner, &it.FinalPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	it.Status = domain.ItemStatus(status)
	it.Mode = domain.AuctionMode(mode)
	it.WinnerID = winner.String
	if endAt.Valid {
		t := time.UnixMilli(endAt.Int64).UTC()
		it.EndAt = &t
	}
	return &it, nil
}

func (r *Repo) GetLivestream(ctx context.Context, livestreamID string) (*domain.Livestream, error) {
	var ls domain.Livestream
	err := r.db.QueryRowContext(ctx, `SELECT id, host_id, title FROM livestreams WHERE id = ?`, livestreamID).
		Scan(&ls.ID, &ls.HostID, &ls.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ls, nil
}

func (r *Repo) CreateOrder(ctx context.Context, itemID, livestreamID, buyerID string, amount decimal.Decimal) (string, bool, error) {
	var id string
	created := false
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO orders(id, item_id, livestream_id, buyer_id, amount, status, created_at)
VALUES(?,?,?,?,?,?,?)
ON CONFLICT(item_id) DO NOTHING
`, uuid.NewString(), itemID, livestreamID, buyerID, amount.String(), string(domain.OrderPending), time.Now().UnixMilli())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n == 1
		return tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE item_id = ?`, itemID).Scan(&id)
	})
	if err != nil {
		return "", false, fmt.Errorf("sqlite: create order: %w", err)
	}
	return id, created, nil
}

// UpdateUserStats adds one sale. Totals are summed as decimals in Go since the
// column holds text.
func (r *Repo) UpdateUserStats(ctx context.Context, userID string, saleAmount decimal.Decimal) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		sales, total, err := userStats(ctx, tx, userID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO user_stats(user_id, sales, total_sales) VALUES(?,?,?)
ON CONFLICT(user_id) DO UPDATE SET sales = excluded.sales, total_sales = excluded.total_sales
`, userID, sales+1, total.Add(saleAmount).String())
		return err
	})
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func userStats(ctx context.Context, q queryRower, userID string) (int, decimal.Decimal, error) {
	var sales int
	var total decimal.Decimal
	err := q.QueryRowContext(ctx, `SELECT sales, total_sales FROM user_stats WHERE user_id = ?`, userID).Scan(&sales, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, decimal.Zero, nil
	}
	return sales, total, err
}

// UserStats returns the seller aggregate for userID.
func (r *Repo) UserStats(ctx context.Context, userID string) (int, decimal.Decimal, error) {
	return userStats(ctx, r.db, userID)
}

// ListBids returns an auction's bids oldest first.
func (r *Repo) ListBids(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, auction_id, livestream_id, bidder_id, bidder_name, amount, ts, origin, valid
FROM bids WHERE auction_id = ? ORDER BY ts ASC, rowid ASC
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

// Order returns the order created for itemID, if any.
func (r *Repo) Order(ctx context.Context, itemID string) (*domain.Order, error) {
	var o domain.Order
	var status string
	var created int64
	err := r.db.QueryRowContext(ctx, `
SELECT id, item_id, livestream_id, buyer_id, amount, status, created_at FROM orders WHERE item_id = ?
`, itemID).Scan(&o.ID, &o.ItemID, &o.LivestreamID, &o.BuyerID, &o.Amount, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = time.UnixMilli(created).UTC()
	return &o, nil
}
