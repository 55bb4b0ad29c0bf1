package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgtype"
)

const insertPurchase = `
INSERT INTO purchases (raffle_id, buyer, start_index, end_index, count, amount, tx_hash, log_index, block_number)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (tx_hash, log_index) DO NOTHING
`

// InsertPurchaseParams carries the fields taken from a TicketsBought event.
type InsertPurchaseParams struct {
	RaffleID    pgtype.Numeric
	Buyer       string
	StartIndex  int32
	EndIndex    int32
	Count       int32
	Amount      pgtype.Numeric
	TxHash      string
	LogIndex    uint32
	BlockNumber uint64
}

// InsertPurchase inserts a purchase row, returning whether a new row was
// actually written (false on a locator collision, the idempotent re-apply
// case).
func (q *Queries) InsertPurchase(ctx context.Context, arg InsertPurchaseParams) (bool, error) {
	tag, err := q.db.Exec(ctx, insertPurchase,
		arg.RaffleID, arg.Buyer, arg.StartIndex, arg.EndIndex, arg.Count, arg.Amount,
		arg.TxHash, arg.LogIndex, arg.BlockNumber,
	)
	if err != nil {
		return false, fmt.Errorf("inserting purchase: %s", err)
	}
	return tag.RowsAffected() == 1, nil
}

const listPurchasesByRaffle = `
SELECT id, raffle_id, buyer, start_index, end_index, count, amount, tx_hash, log_index, block_number
FROM purchases
WHERE raffle_id = $1
ORDER BY block_number ASC, log_index ASC
`

// ListPurchasesByRaffle returns every purchase for a raffle in locator
// order, the order the winning range search relies on.
func (q *Queries) ListPurchasesByRaffle(ctx context.Context, raffleID pgtype.Numeric) ([]Purchase, error) {
	rows, err := q.db.Query(ctx, listPurchasesByRaffle, raffleID)
	if err != nil {
		return nil, fmt.Errorf("listing purchases: %s", err)
	}
	defer rows.Close()

	var out []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(
			&p.ID, &p.RaffleID, &p.Buyer, &p.StartIndex, &p.EndIndex, &p.Count, &p.Amount,
			&p.TxHash, &p.LogIndex, &p.BlockNumber,
		); err != nil {
			return nil, fmt.Errorf("scanning purchase row: %s", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
