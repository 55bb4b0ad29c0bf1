package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgtype"
)

const insertRefund = `
INSERT INTO refunds (raffle_id, buyer, ticket_count, amount, tx_hash, log_index, block_number)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (tx_hash, log_index) DO NOTHING
`

// InsertRefundParams carries the fields taken from a RefundClaimed event.
type InsertRefundParams struct {
	RaffleID    pgtype.Numeric
	Buyer       string
	TicketCount int32
	Amount      pgtype.Numeric
	TxHash      string
	LogIndex    uint32
	BlockNumber uint64
}

// InsertRefund inserts a refund row, returning whether a new row was
// actually written.
func (q *Queries) InsertRefund(ctx context.Context, arg InsertRefundParams) (bool, error) {
	tag, err := q.db.Exec(ctx, insertRefund,
		arg.RaffleID, arg.Buyer, arg.TicketCount, arg.Amount, arg.TxHash, arg.LogIndex, arg.BlockNumber,
	)
	if err != nil {
		return false, fmt.Errorf("inserting refund: %s", err)
	}
	return tag.RowsAffected() == 1, nil
}

const listRefundsByRaffle = `
SELECT id, raffle_id, buyer, ticket_count, amount, tx_hash, log_index, block_number
FROM refunds
WHERE raffle_id = $1
ORDER BY block_number ASC, log_index ASC
`

// ListRefundsByRaffle returns every refund for a raffle in locator order.
func (q *Queries) ListRefundsByRaffle(ctx context.Context, raffleID pgtype.Numeric) ([]Refund, error) {
	rows, err := q.db.Query(ctx, listRefundsByRaffle, raffleID)
	if err != nil {
		return nil, fmt.Errorf("listing refunds: %s", err)
	}
	defer rows.Close()

	var out []Refund
	for rows.Next() {
		var r Refund
		if err := rows.Scan(
			&r.ID, &r.RaffleID, &r.Buyer, &r.TicketCount, &r.Amount, &r.TxHash, &r.LogIndex, &r.BlockNumber,
		); err != nil {
			return nil, fmt.Errorf("scanning refund row: %s", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
