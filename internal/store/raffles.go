package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgtype"
)

func toTimestamp(unixSeconds int64) time.Time {
	return time.Unix(unixSeconds, 0).UTC()
}

const insertRaffle = `
INSERT INTO raffles (
	raffle_id, raffle_address, creator, end_time, ticket_price, max_tickets,
	fee_bps, fee_recipient, status, total_tickets, pot, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'ACTIVE', 0, 0, now(), now())
ON CONFLICT (raffle_id) DO NOTHING
`

// InsertRaffleParams carries the fields taken from a RaffleCreated event.
type InsertRaffleParams struct {
	RaffleID      pgtype.Numeric
	RaffleAddress string
	Creator       string
	EndTime       int64 // unix seconds, as carried on-chain
	TicketPrice   pgtype.Numeric
	MaxTickets    int32
	FeeBps        int16
	FeeRecipient  string
}

// InsertRaffle inserts a newly observed raffle. A pre-existing raffle_id is
// a no-op, per the projection policy for RaffleCreated.
func (q *Queries) InsertRaffle(ctx context.Context, arg InsertRaffleParams) error {
	_, err := q.db.Exec(ctx, insertRaffle,
		arg.RaffleID, arg.RaffleAddress, arg.Creator, toTimestamp(arg.EndTime),
		arg.TicketPrice, arg.MaxTickets, arg.FeeBps, arg.FeeRecipient,
	)
	if err != nil {
		return fmt.Errorf("inserting raffle: %s", err)
	}
	return nil
}

const getRaffleByID = `SELECT
	raffle_id, raffle_address, creator, end_time, ticket_price, max_tickets,
	fee_bps, fee_recipient, status, total_tickets, pot, request_id, request_tx,
	randomness, randomness_tx, winning_index, winner, finalized_tx,
	provider_request_id, provider_request_tx, provider_fulfill_tx, proof_data,
	created_at, updated_at
FROM raffles WHERE raffle_id = $1`

// GetRaffleByID returns a single raffle, or pgx.ErrNoRows.
func (q *Queries) GetRaffleByID(ctx context.Context, raffleID pgtype.Numeric) (Raffle, error) {
	return scanRaffle(q.db.QueryRow(ctx, getRaffleByID, raffleID))
}

const getRaffleByAddress = `SELECT
	raffle_id, raffle_address, creator, end_time, ticket_price, max_tickets,
	fee_bps, fee_recipient, status, total_tickets, pot, request_id, request_tx,
	randomness, randomness_tx, winning_index, winner, finalized_tx,
	provider_request_id, provider_request_tx, provider_fulfill_tx, proof_data,
	created_at, updated_at
FROM raffles WHERE lower(raffle_address) = lower($1)`

// GetRaffleByAddress returns a single raffle by its contract address, used
// by the provider-event matching rule when no raffle_id is present.
func (q *Queries) GetRaffleByAddress(ctx context.Context, address string) (Raffle, error) {
	return scanRaffle(q.db.QueryRow(ctx, getRaffleByAddress, address))
}

// scannableRow is the subset of pgx.Row this package needs, so helpers can
// take either a QueryRow result or a Rows cursor positioned on a row.
type scannableRow interface {
	Scan(dest ...interface{}) error
}

func scanRaffle(row scannableRow) (Raffle, error) {
	var r Raffle
	err := row.Scan(
		&r.RaffleID, &r.RaffleAddress, &r.Creator, &r.EndTime, &r.TicketPrice, &r.MaxTickets,
		&r.FeeBps, &r.FeeRecipient, &r.Status, &r.TotalTickets, &r.Pot, &r.RequestID, &r.RequestTx,
		&r.Randomness, &r.RandomnessTx, &r.WinningIndex, &r.Winner, &r.FinalizedTx,
		&r.ProviderRequestID, &r.ProviderRequestTx, &r.ProviderFulfillTx, &r.ProofData,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return Raffle{}, err
	}
	return r, nil
}

const listRaffles = `SELECT
	raffle_id, raffle_address, creator, end_time, ticket_price, max_tickets,
	fee_bps, fee_recipient, status, total_tickets, pot, request_id, request_tx,
	randomness, randomness_tx, winning_index, winner, finalized_tx,
	provider_request_id, provider_request_tx, provider_fulfill_tx, proof_data,
	created_at, updated_at
FROM raffles
WHERE ($1 = '' OR status = $1)
ORDER BY raffle_id ASC
LIMIT $2 OFFSET $3`

// ListRafflesParams filters and paginates the raffle listing.
type ListRafflesParams struct {
	Status Status // empty matches every status
	Limit  int32
	Offset int32
}

// ListRaffles backs GET /v1/raffles.
func (q *Queries) ListRaffles(ctx context.Context, arg ListRafflesParams) ([]Raffle, error) {
	rows, err := q.db.Query(ctx, listRaffles, string(arg.Status), arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing raffles: %s", err)
	}
	defer rows.Close()

	var out []Raffle
	for rows.Next() {
		r, err := scanRaffle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning raffle row: %s", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const addTicketsAndPot = `UPDATE raffles SET total_tickets = total_tickets + $2, pot = pot + $3, updated_at = now() WHERE raffle_id = $1`

// AddTicketsAndPot increments the running total_tickets and pot counters on
// a successful ticket purchase insert.
func (q *Queries) AddTicketsAndPot(ctx context.Context, raffleID pgtype.Numeric, count int32, amount pgtype.Numeric) error {
	if _, err := q.db.Exec(ctx, addTicketsAndPot, raffleID, count, amount); err != nil {
		return fmt.Errorf("adding tickets and pot: %s", err)
	}
	return nil
}

const subtractTicketsAndPot = `UPDATE raffles SET total_tickets = total_tickets - $2, pot = pot - $3, updated_at = now() WHERE raffle_id = $1`

// SubtractTicketsAndPot decrements the running total_tickets and pot
// counters on a successful refund insert, the symmetric inverse of
// AddTicketsAndPot, so both counters track the sum across Purchases minus
// Refunds at all times.
func (q *Queries) SubtractTicketsAndPot(ctx context.Context, raffleID pgtype.Numeric, count int32, amount pgtype.Numeric) error {
	if _, err := q.db.Exec(ctx, subtractTicketsAndPot, raffleID, count, amount); err != nil {
		return fmt.Errorf("subtracting tickets and pot: %s", err)
	}
	return nil
}

const closeRaffle = `UPDATE raffles SET status = 'CLOSED', updated_at = now() WHERE raffle_id = $1 AND status = 'ACTIVE'`

// CloseRaffle moves a raffle from ACTIVE to CLOSED. Any other current
// status makes this a no-op, per the conditional-update policy.
func (q *Queries) CloseRaffle(ctx context.Context, raffleID pgtype.Numeric) error {
	if _, err := q.db.Exec(ctx, closeRaffle, raffleID); err != nil {
		return fmt.Errorf("closing raffle: %s", err)
	}
	return nil
}

const setRandomnessRequested = `UPDATE raffles SET status = 'RANDOM_REQUESTED', request_id = $2, request_tx = $3, updated_at = now() WHERE raffle_id = $1 AND status = 'CLOSED'`

// SetRandomnessRequested moves a raffle from CLOSED to RANDOM_REQUESTED.
func (q *Queries) SetRandomnessRequested(ctx context.Context, raffleID, requestID pgtype.Numeric, requestTx string) error {
	if _, err := q.db.Exec(ctx, setRandomnessRequested, raffleID, requestID, requestTx); err != nil {
		return fmt.Errorf("setting randomness requested: %s", err)
	}
	return nil
}

const setRandomnessFulfilled = `
UPDATE raffles SET
	status = 'RANDOM_FULFILLED',
	randomness = $2,
	randomness_tx = $3,
	winning_index = COALESCE(winning_index, CASE WHEN total_tickets > 0 THEN (($2::numeric) % total_tickets)::int ELSE NULL END),
	updated_at = now()
WHERE raffle_id = $1 AND status = 'RANDOM_REQUESTED'
`

// SetRandomnessFulfilled moves a raffle from RANDOM_REQUESTED to
// RANDOM_FULFILLED, deriving winning_index = randomness mod total_tickets
// when it isn't already set.
func (q *Queries) SetRandomnessFulfilled(ctx context.Context, raffleID, randomness pgtype.Numeric, randomnessTx string) error {
	if _, err := q.db.Exec(ctx, setRandomnessFulfilled, raffleID, randomness, randomnessTx); err != nil {
		return fmt.Errorf("setting randomness fulfilled: %s", err)
	}
	return nil
}

const setWinner = `UPDATE raffles SET winner = $2, winning_index = $3, updated_at = now() WHERE raffle_id = $1`

// SetWinner records the WinnerSelected event's winner and winning index.
// Unconditional: the raffle must already be past RANDOM_FULFILLED for this
// event to make sense on chain, but recording it never regresses status.
func (q *Queries) SetWinner(ctx context.Context, raffleID pgtype.Numeric, winner string, winningIndex int32) error {
	if _, err := q.db.Exec(ctx, setWinner, raffleID, winner, winningIndex); err != nil {
		return fmt.Errorf("setting winner: %s", err)
	}
	return nil
}

const finalizeRaffle = `UPDATE raffles SET status = 'FINALIZED', finalized_tx = $2, updated_at = now() WHERE raffle_id = $1 AND status != 'REFUNDING' AND status != 'FINALIZED'`

// FinalizeRaffle moves a raffle to FINALIZED on PayoutsCompleted. A raffle
// already in REFUNDING must never be regressed to FINALIZED (contracts
// disagreeing with the lattice are stored but not applied, per the
// contracts-as-source-of-truth decision).
func (q *Queries) FinalizeRaffle(ctx context.Context, raffleID pgtype.Numeric, finalizedTx string) error {
	if _, err := q.db.Exec(ctx, finalizeRaffle, raffleID, finalizedTx); err != nil {
		return fmt.Errorf("finalizing raffle: %s", err)
	}
	return nil
}

const setRefunding = `UPDATE raffles SET status = 'REFUNDING', updated_at = now() WHERE raffle_id = $1 AND status != 'FINALIZED' AND status != 'REFUNDING'`

// SetRefunding moves a raffle to the terminal REFUNDING branch from any
// status other than FINALIZED. A raffle already FINALIZED or REFUNDING is a
// no-op.
func (q *Queries) SetRefunding(ctx context.Context, raffleID pgtype.Numeric) error {
	if _, err := q.db.Exec(ctx, setRefunding, raffleID); err != nil {
		return fmt.Errorf("setting refunding: %s", err)
	}
	return nil
}

const setProviderRequestLink = `UPDATE raffles SET provider_request_id = $2, provider_request_tx = $3, updated_at = now() WHERE raffle_id = $1`

// SetProviderRequestLink records the provider-side request_id/tx on the
// matched raffle, once a Provider.RandomnessRequested event is linked to it.
func (q *Queries) SetProviderRequestLink(ctx context.Context, raffleID pgtype.Numeric, requestID, txHash string) error {
	if _, err := q.db.Exec(ctx, setProviderRequestLink, raffleID, requestID, txHash); err != nil {
		return fmt.Errorf("setting provider request link: %s", err)
	}
	return nil
}

const setProviderFulfillLink = `UPDATE raffles SET provider_fulfill_tx = $2, proof_data = $3, updated_at = now() WHERE raffle_id = $1`

// SetProviderFulfillLink records the provider-side fulfillment tx/proof on
// the matched raffle.
func (q *Queries) SetProviderFulfillLink(ctx context.Context, raffleID pgtype.Numeric, txHash string, proof *string) error {
	if _, err := q.db.Exec(ctx, setProviderFulfillLink, raffleID, txHash, proof); err != nil {
		return fmt.Errorf("setting provider fulfill link: %s", err)
	}
	return nil
}
