// Package api is the Read API: a thin, read-only query layer over the
// projection maintained by the indexer core. It owns no invariants of the
// data model — every row it serves is treated as read-only (spec.md §3,
// "Ownership") — and exists only to the extent that its contract (pagination
// bounds, derived fields, numeric-string formatting) constrains that model.
package api

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/raffleprotocol/raffle-indexer/internal/store"
)

// ErrNotFound is returned by Gateway methods when the requested row doesn't
// exist. Controllers map it to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrInvalidArgument is returned for malformed query parameters. Controllers
// map it to HTTP 400.
var ErrInvalidArgument = errors.New("invalid argument")

// MaxLimit is the upper bound on any paginated listing's limit parameter,
// per spec.md §6 ("GET /v1/raffles with limit<=100").
const MaxLimit = 100

// DefaultLimit is used when a listing request omits limit.
const DefaultLimit = 20

// Gateway is the Read API's view of the projection. It is satisfied by
// *PostgresGateway against the real database, and by a fake in controller
// tests.
type Gateway interface {
	ListRaffles(ctx context.Context, status string, limit, offset int32) ([]RaffleDTO, error)
	GetRaffle(ctx context.Context, raffleID *big.Int) (RaffleDTO, error)
	ListPurchases(ctx context.Context, raffleID *big.Int) ([]PurchaseDTO, error)
	GetProof(ctx context.Context, raffleID *big.Int) (ProofDTO, error)
	ListRandomnessRequests(ctx context.Context, requestID, raffleAddress, raffleID string, limit, offset int32) ([]RandomnessRequestDTO, error)
	ListRandomnessFulfillments(ctx context.Context, requestID, raffleAddress string, limit, offset int32) ([]RandomnessFulfillmentDTO, error)
}

// PostgresGateway implements Gateway over the projection's Postgres pool.
type PostgresGateway struct {
	q           *store.Queries
	explorerURL string
}

// NewPostgresGateway returns a Gateway reading from pool. explorerBaseURL
// may be empty, in which case ExplorerURL fields are omitted.
func NewPostgresGateway(pool *pgxpool.Pool, explorerBaseURL string) *PostgresGateway {
	return &PostgresGateway{q: store.New(pool), explorerURL: explorerBaseURL}
}

func (g *PostgresGateway) txURL(txHash string) string {
	if g.explorerURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", g.explorerURL, txHash)
}

// ListRaffles backs GET /v1/raffles.
func (g *PostgresGateway) ListRaffles(ctx context.Context, status string, limit, offset int32) ([]RaffleDTO, error) {
	rows, err := g.q.ListRaffles(ctx, store.ListRafflesParams{
		Status: store.Status(status),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing raffles: %w", err)
	}
	out := make([]RaffleDTO, 0, len(rows))
	for _, r := range rows {
		dto, err := raffleToDTO(r, g.txURL)
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}

// GetRaffle backs GET /v1/raffles/{id}.
func (g *PostgresGateway) GetRaffle(ctx context.Context, raffleID *big.Int) (RaffleDTO, error) {
	r, err := g.q.GetRaffleByID(ctx, store.NumericFromBigInt(raffleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return RaffleDTO{}, ErrNotFound
	}
	if err != nil {
		return RaffleDTO{}, fmt.Errorf("getting raffle: %w", err)
	}
	return raffleToDTO(r, g.txURL)
}

// ListPurchases backs GET /v1/raffles/{id}/purchases.
func (g *PostgresGateway) ListPurchases(ctx context.Context, raffleID *big.Int) ([]PurchaseDTO, error) {
	if _, err := g.q.GetRaffleByID(ctx, store.NumericFromBigInt(raffleID)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("checking raffle existence: %w", err)
	}
	rows, err := g.q.ListPurchasesByRaffle(ctx, store.NumericFromBigInt(raffleID))
	if err != nil {
		return nil, fmt.Errorf("listing purchases: %w", err)
	}
	out := make([]PurchaseDTO, 0, len(rows))
	for _, p := range rows {
		dto, err := purchaseToDTO(p, g.txURL)
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}

// GetProof backs GET /v1/raffles/{id}/proof. When the stored winning_index
// is null, it is derived as randomness mod total_tickets (spec.md §6); the
// purchase range containing that index is then found by binary search over
// the raffle's non-overlapping, sorted purchase ranges.
func (g *PostgresGateway) GetProof(ctx context.Context, raffleID *big.Int) (ProofDTO, error) {
	r, err := g.q.GetRaffleByID(ctx, store.NumericFromBigInt(raffleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ProofDTO{}, ErrNotFound
	}
	if err != nil {
		return ProofDTO{}, fmt.Errorf("getting raffle: %w", err)
	}

	proof := ProofDTO{RaffleID: NewDecimal(raffleID), TotalTickets: r.TotalTickets}

	randomness, err := store.BigIntFromNumeric(r.Randomness)
	if err != nil {
		return ProofDTO{}, fmt.Errorf("reading randomness: %w", err)
	}
	if randomness == nil {
		return proof, nil
	}
	d := NewDecimal(randomness)
	proof.Randomness = &d

	winningIndex := r.WinningIndex
	if winningIndex == nil && r.TotalTickets > 0 {
		mod := new(big.Int).Mod(randomness, big.NewInt(int64(r.TotalTickets)))
		wi := int32(mod.Int64())
		winningIndex = &wi
	}
	proof.WinningIndex = winningIndex
	if winningIndex == nil {
		return proof, nil
	}

	purchases, err := g.q.ListPurchasesByRaffle(ctx, store.NumericFromBigInt(raffleID))
	if err != nil {
		return ProofDTO{}, fmt.Errorf("listing purchases: %w", err)
	}
	if wr := findWinningRange(purchases, *winningIndex); wr != nil {
		proof.WinningRange = wr
	}
	return proof, nil
}

// findWinningRange binary-searches a raffle's purchase rows, sorted by
// (block_number, log_index) ascending, for the one whose [start_index,
// end_index] interval contains idx. The ranges are non-overlapping and
// contiguous (spec.md §3 invariant 2), so a plain binary search on
// start_index suffices.
func findWinningRange(purchases []store.Purchase, idx int32) *WinningRangeDTO {
	lo, hi := 0, len(purchases)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		p := purchases[mid]
		switch {
		case idx < p.StartIndex:
			hi = mid - 1
		case idx > p.EndIndex:
			lo = mid + 1
		default:
			return &WinningRangeDTO{Buyer: p.Buyer, StartIndex: p.StartIndex, EndIndex: p.EndIndex}
		}
	}
	return nil
}

// ListRandomnessRequests backs GET /v1/randomness/requests.
func (g *PostgresGateway) ListRandomnessRequests(
	ctx context.Context,
	requestID, raffleAddress, raffleID string,
	limit, offset int32,
) ([]RandomnessRequestDTO, error) {
	rows, err := g.q.ListRandomnessRequests(ctx, store.ListRandomnessRequestsParams{
		RequestID:     requestID,
		RaffleAddress: raffleAddress,
		RaffleID:      raffleID,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing randomness requests: %w", err)
	}
	out := make([]RandomnessRequestDTO, 0, len(rows))
	for _, r := range rows {
		dto := RandomnessRequestDTO{
			ID:              r.ID,
			RequestID:       r.RequestID,
			RaffleAddress:   r.RaffleAddress,
			ProviderAddress: r.ProviderAddress,
			TxHash:          r.TxHash,
			LogIndex:        r.LogIndex,
			BlockNumber:     r.BlockNumber,
		}
		if r.RaffleID != nil {
			v, err := store.BigIntFromNumeric(*r.RaffleID)
			if err != nil {
				return nil, fmt.Errorf("reading raffle id: %w", err)
			}
			if v != nil {
				s := v.String()
				dto.RaffleID = &s
			}
		}
		out = append(out, dto)
	}
	return out, nil
}

// ListRandomnessFulfillments backs GET /v1/randomness/fulfillments.
func (g *PostgresGateway) ListRandomnessFulfillments(
	ctx context.Context,
	requestID, raffleAddress string,
	limit, offset int32,
) ([]RandomnessFulfillmentDTO, error) {
	rows, err := g.q.ListRandomnessFulfillments(ctx, store.ListRandomnessFulfillmentsParams{
		RequestID:     requestID,
		RaffleAddress: raffleAddress,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing randomness fulfillments: %w", err)
	}
	out := make([]RandomnessFulfillmentDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, RandomnessFulfillmentDTO{
			ID:              r.ID,
			RequestID:       r.RequestID,
			Randomness:      r.Randomness,
			Proof:           r.Proof,
			RaffleAddress:   r.RaffleAddress,
			ProviderAddress: r.ProviderAddress,
			TxHash:          r.TxHash,
			LogIndex:        r.LogIndex,
			BlockNumber:     r.BlockNumber,
		})
	}
	return out, nil
}

func raffleToDTO(r store.Raffle, txURL func(string) string) (RaffleDTO, error) {
	ticketPrice, err := DecimalFromNumeric(r.TicketPrice)
	if err != nil {
		return RaffleDTO{}, fmt.Errorf("decoding ticket_price: %w", err)
	}
	pot, err := DecimalFromNumeric(r.Pot)
	if err != nil {
		return RaffleDTO{}, fmt.Errorf("decoding pot: %w", err)
	}
	raffleID, err := DecimalFromNumeric(r.RaffleID)
	if err != nil {
		return RaffleDTO{}, fmt.Errorf("decoding raffle_id: %w", err)
	}

	dto := RaffleDTO{
		RaffleID:      raffleID,
		RaffleAddress: r.RaffleAddress,
		Creator:       r.Creator,
		EndTime:       r.EndTime,
		TicketPrice:   ticketPrice,
		MaxTickets:    r.MaxTickets,
		FeeBps:        r.FeeBps,
		FeeRecipient:  r.FeeRecipient,
		Status:        string(r.Status),
		TotalTickets:  r.TotalTickets,
		Pot:           pot,
		RequestTx:     r.RequestTx,
		RandomnessTx:  r.RandomnessTx,
		WinningIndex:  r.WinningIndex,
		Winner:        r.Winner,
		FinalizedTx:   r.FinalizedTx,

		ProviderRequestID: r.ProviderRequestID,
		ProviderRequestTx: r.ProviderRequestTx,
		ProviderFulfillTx: r.ProviderFulfillTx,
		ProofData:         r.ProofData,

		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}

	if r.RequestID.Status == pgtype.Present {
		v, err := DecimalFromNumeric(r.RequestID)
		if err != nil {
			return RaffleDTO{}, fmt.Errorf("decoding request_id: %w", err)
		}
		dto.RequestID = &v
	}
	if r.Randomness.Status == pgtype.Present {
		v, err := DecimalFromNumeric(r.Randomness)
		if err != nil {
			return RaffleDTO{}, fmt.Errorf("decoding randomness: %w", err)
		}
		dto.Randomness = &v
	}
	if r.FinalizedTx != nil {
		dto.ExplorerURL = txURL(*r.FinalizedTx)
	}
	return dto, nil
}

func purchaseToDTO(p store.Purchase, txURL func(string) string) (PurchaseDTO, error) {
	raffleID, err := DecimalFromNumeric(p.RaffleID)
	if err != nil {
		return PurchaseDTO{}, fmt.Errorf("decoding raffle_id: %w", err)
	}
	amount, err := DecimalFromNumeric(p.Amount)
	if err != nil {
		return PurchaseDTO{}, fmt.Errorf("decoding amount: %w", err)
	}
	return PurchaseDTO{
		ID:          p.ID,
		RaffleID:    raffleID,
		Buyer:       p.Buyer,
		StartIndex:  p.StartIndex,
		EndIndex:    p.EndIndex,
		Count:       p.Count,
		Amount:      amount,
		TxHash:      p.TxHash,
		LogIndex:    p.LogIndex,
		BlockNumber: p.BlockNumber,
		ExplorerURL: txURL(p.TxHash),
	}, nil
}
