package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgtype"
)

const insertRandomnessRequest = `
INSERT INTO randomness_requests (request_id, raffle_id, raffle_address, provider_address, tx_hash, log_index, block_number)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (tx_hash, log_index) DO NOTHING
`

// InsertRandomnessRequestParams carries the fields taken from a
// Provider.RandomnessRequested event. RequestID is a string since provider
// request ids may exceed 64 bits and carry no arithmetic meaning.
type InsertRandomnessRequestParams struct {
	RequestID       string
	RaffleID        *pgtype.Numeric
	RaffleAddress   *string
	ProviderAddress string
	TxHash          string
	LogIndex        uint32
	BlockNumber     uint64
}

// InsertRandomnessRequest inserts a provider request row, returning whether
// a new row was actually written.
func (q *Queries) InsertRandomnessRequest(ctx context.Context, arg InsertRandomnessRequestParams) (bool, error) {
	tag, err := q.db.Exec(ctx, insertRandomnessRequest,
		arg.RequestID, arg.RaffleID, arg.RaffleAddress, arg.ProviderAddress,
		arg.TxHash, arg.LogIndex, arg.BlockNumber,
	)
	if err != nil {
		return false, fmt.Errorf("inserting randomness request: %s", err)
	}
	return tag.RowsAffected() == 1, nil
}

const listRandomnessRequests = `
SELECT id, request_id, raffle_id, raffle_address, provider_address, tx_hash, log_index, block_number
FROM randomness_requests
WHERE ($1 = '' OR request_id = $1)
  AND ($2 = '' OR lower(raffle_address) = lower($2))
  AND ($3 = '' OR raffle_id::text = $3)
ORDER BY block_number ASC, log_index ASC
LIMIT $4 OFFSET $5
`

// ListRandomnessRequestsParams filters GET /v1/randomness/requests. Each
// filter is optional; an empty string disables it.
type ListRandomnessRequestsParams struct {
	RequestID     string
	RaffleAddress string
	RaffleID      string
	Limit         int32
	Offset        int32
}

// ListRandomnessRequests backs GET /v1/randomness/requests.
func (q *Queries) ListRandomnessRequests(ctx context.Context, arg ListRandomnessRequestsParams) ([]RandomnessRequest, error) {
	rows, err := q.db.Query(ctx, listRandomnessRequests,
		arg.RequestID, arg.RaffleAddress, arg.RaffleID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing randomness requests: %s", err)
	}
	defer rows.Close()

	var out []RandomnessRequest
	for rows.Next() {
		var r RandomnessRequest
		if err := rows.Scan(
			&r.ID, &r.RequestID, &r.RaffleID, &r.RaffleAddress, &r.ProviderAddress,
			&r.TxHash, &r.LogIndex, &r.BlockNumber,
		); err != nil {
			return nil, fmt.Errorf("scanning randomness request row: %s", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const insertRandomnessFulfillment = `
INSERT INTO randomness_fulfillments (request_id, randomness, proof, raffle_address, provider_address, tx_hash, log_index, block_number)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (tx_hash, log_index) DO NOTHING
`

// InsertRandomnessFulfillmentParams carries the fields taken from a
// Provider.RandomnessDelivered event. Randomness is stored as a decimal
// string, never a narrowed machine integer.
type InsertRandomnessFulfillmentParams struct {
	RequestID       string
	Randomness      string
	Proof           *string
	RaffleAddress   *string
	ProviderAddress string
	TxHash          string
	LogIndex        uint32
	BlockNumber     uint64
}

// InsertRandomnessFulfillment inserts a provider fulfillment row, returning
// whether a new row was actually written.
func (q *Queries) InsertRandomnessFulfillment(ctx context.Context, arg InsertRandomnessFulfillmentParams) (bool, error) {
	tag, err := q.db.Exec(ctx, insertRandomnessFulfillment,
		arg.RequestID, arg.Randomness, arg.Proof, arg.RaffleAddress, arg.ProviderAddress,
		arg.TxHash, arg.LogIndex, arg.BlockNumber,
	)
	if err != nil {
		return false, fmt.Errorf("inserting randomness fulfillment: %s", err)
	}
	return tag.RowsAffected() == 1, nil
}

const listRandomnessFulfillments = `
SELECT id, request_id, randomness, proof, raffle_address, provider_address, tx_hash, log_index, block_number
FROM randomness_fulfillments
WHERE ($1 = '' OR request_id = $1)
  AND ($2 = '' OR lower(raffle_address) = lower($2))
ORDER BY block_number ASC, log_index ASC
LIMIT $3 OFFSET $4
`

// ListRandomnessFulfillmentsParams filters
// GET /v1/randomness/fulfillments.
type ListRandomnessFulfillmentsParams struct {
	RequestID     string
	RaffleAddress string
	Limit         int32
	Offset        int32
}

// ListRandomnessFulfillments backs GET /v1/randomness/fulfillments.
func (q *Queries) ListRandomnessFulfillments(ctx context.Context, arg ListRandomnessFulfillmentsParams) ([]RandomnessFulfillment, error) {
	rows, err := q.db.Query(ctx, listRandomnessFulfillments,
		arg.RequestID, arg.RaffleAddress, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing randomness fulfillments: %s", err)
	}
	defer rows.Close()

	var out []RandomnessFulfillment
	for rows.Next() {
		var r RandomnessFulfillment
		if err := rows.Scan(
			&r.ID, &r.RequestID, &r.Randomness, &r.Proof, &r.RaffleAddress, &r.ProviderAddress,
			&r.TxHash, &r.LogIndex, &r.BlockNumber,
		); err != nil {
			return nil, fmt.Errorf("scanning randomness fulfillment row: %s", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
