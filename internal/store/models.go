package store

import (
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgtype"
)

// Status is the raffle lifecycle lattice, stored as a string column.
type Status string

// The raffle status lattice: ACTIVE -> CLOSED -> RANDOM_REQUESTED ->
// RANDOM_FULFILLED -> FINALIZED, with REFUNDING reachable from CLOSED or
// RANDOM_REQUESTED and terminal.
const (
	StatusActive          Status = "ACTIVE"
	StatusClosed          Status = "CLOSED"
	StatusRandomRequested Status = "RANDOM_REQUESTED"
	StatusRandomFulfilled Status = "RANDOM_FULFILLED"
	StatusFinalized       Status = "FINALIZED"
	StatusRefunding       Status = "REFUNDING"
)

// IndexerState is the singleton checkpoint row.
type IndexerState struct {
	LastProcessedBlock uint64
	UpdatedAt          time.Time
}

// Raffle is one row per raffle discovered on chain.
type Raffle struct {
	RaffleID          pgtype.Numeric
	RaffleAddress     string
	Creator           string
	EndTime           time.Time
	TicketPrice       pgtype.Numeric
	MaxTickets        int32
	FeeBps            int16
	FeeRecipient      string
	Status            Status
	TotalTickets      int32
	Pot               pgtype.Numeric
	RequestID         pgtype.Numeric
	RequestTx         *string
	Randomness        pgtype.Numeric
	RandomnessTx      *string
	WinningIndex      *int32
	Winner            *string
	FinalizedTx       *string
	ProviderRequestID *string
	ProviderRequestTx *string
	ProviderFulfillTx *string
	ProofData         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Purchase is one row per TicketsBought event.
type Purchase struct {
	ID          int64
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

// Refund is one row per RefundClaimed event.
type Refund struct {
	ID          int64
	RaffleID    pgtype.Numeric
	Buyer       string
	TicketCount int32
	Amount      pgtype.Numeric
	TxHash      string
	LogIndex    uint32
	BlockNumber uint64
}

// RandomnessRequest is one row per RandomnessRequested from the provider.
type RandomnessRequest struct {
	ID              int64
	RequestID       string
	RaffleID        *pgtype.Numeric
	RaffleAddress   *string
	ProviderAddress string
	TxHash          string
	LogIndex        uint32
	BlockNumber     uint64
}

// RandomnessFulfillment is one row per RandomnessDelivered from the provider.
type RandomnessFulfillment struct {
	ID              int64
	RequestID       string
	Randomness      string
	Proof           *string
	RaffleAddress   *string
	ProviderAddress string
	TxHash          string
	LogIndex        uint32
	BlockNumber     uint64
}

// RawEvent is one row per observed log, decoded or not. EventJSON is only
// populated when the log decoded successfully.
type RawEvent struct {
	TxHash      string
	LogIndex    uint32
	BlockNumber uint64
	Address     string
	Topic0      string
	Data        []byte
	EventJSON   []byte
}

// NumericFromBigInt converts an arbitrary-precision integer to the pgtype
// wire representation used for every payment/randomness column, so no
// payload value is ever narrowed to a machine integer on its way to disk.
func NumericFromBigInt(v *big.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{Status: pgtype.Null}
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Exp: 0, Status: pgtype.Present}
}

// BigIntFromNumeric converts a pgtype.Numeric column back to *big.Int. It
// requires the value to have no fractional component, which always holds
// for this schema since every numeric column here is an integer counter.
func BigIntFromNumeric(n pgtype.Numeric) (*big.Int, error) {
	if n.Status != pgtype.Present {
		return nil, nil
	}
	if n.Exp == 0 {
		return new(big.Int).Set(n.Int), nil
	}
	scaled := new(big.Int).Set(n.Int)
	if n.Exp > 0 {
		mul := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil)
		return scaled.Mul(scaled, mul), nil
	}
	div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil)
	q, r := new(big.Int).QuoRem(scaled, div, new(big.Int))
	if r.Sign() != 0 {
		return nil, fmt.Errorf("numeric value %s has a fractional component", n.Int)
	}
	return q, nil
}

// DecimalString renders a big.Int as a base-10 string, the wire format used
// for every token amount and randomness value returned by the Read API.
func DecimalString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
