package api

import "time"

// RaffleDTO is the JSON shape of one raffle row. Every arbitrary-precision
// field is a Decimal so it serializes as a string, never a JSON number.
type RaffleDTO struct {
	RaffleID      Decimal   `json:"raffle_id"`
	RaffleAddress string    `json:"raffle_address"`
	Creator       string    `json:"creator"`
	EndTime       time.Time `json:"end_time"`
	TicketPrice   Decimal   `json:"ticket_price"`
	MaxTickets    int32     `json:"max_tickets"`
	FeeBps        int16     `json:"fee_bps"`
	FeeRecipient  string    `json:"fee_recipient"`
	Status        string    `json:"status"`
	TotalTickets  int32     `json:"total_tickets"`
	Pot           Decimal   `json:"pot"`

	RequestID    *Decimal `json:"request_id,omitempty"`
	RequestTx    *string  `json:"request_tx,omitempty"`
	Randomness   *Decimal `json:"randomness,omitempty"`
	RandomnessTx *string  `json:"randomness_tx,omitempty"`
	WinningIndex *int32   `json:"winning_index,omitempty"`
	Winner       *string  `json:"winner,omitempty"`
	FinalizedTx  *string  `json:"finalized_tx,omitempty"`

	ProviderRequestID *string `json:"provider_request_id,omitempty"`
	ProviderRequestTx *string `json:"provider_request_tx,omitempty"`
	ProviderFulfillTx *string `json:"provider_fulfill_tx,omitempty"`
	ProofData         *string `json:"proof_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ExplorerURL string `json:"explorer_url,omitempty"`
}

// PurchaseDTO is the JSON shape of one purchase row.
type PurchaseDTO struct {
	ID          int64   `json:"id"`
	RaffleID    Decimal `json:"raffle_id"`
	Buyer       string  `json:"buyer"`
	StartIndex  int32   `json:"start_index"`
	EndIndex    int32   `json:"end_index"`
	Count       int32   `json:"count"`
	Amount      Decimal `json:"amount"`
	TxHash      string  `json:"tx_hash"`
	LogIndex    uint32  `json:"log_index"`
	BlockNumber uint64  `json:"block_number"`
	ExplorerURL string  `json:"explorer_url,omitempty"`
}

// WinningRangeDTO is the purchase range containing the winning ticket
// index, returned by GET /v1/raffles/{id}/proof.
type WinningRangeDTO struct {
	Buyer      string `json:"buyer"`
	StartIndex int32  `json:"start_index"`
	EndIndex   int32  `json:"end_index"`
}

// ProofDTO is the JSON shape of GET /v1/raffles/{id}/proof.
type ProofDTO struct {
	RaffleID     Decimal          `json:"raffle_id"`
	Randomness   *Decimal         `json:"randomness,omitempty"`
	TotalTickets int32            `json:"total_tickets"`
	WinningIndex *int32           `json:"winning_index,omitempty"`
	WinningRange *WinningRangeDTO `json:"winning_range,omitempty"`
}

// RandomnessRequestDTO is the JSON shape of one provider request row.
type RandomnessRequestDTO struct {
	ID              int64   `json:"id"`
	RequestID       string  `json:"request_id"`
	RaffleID        *string `json:"raffle_id,omitempty"`
	RaffleAddress   *string `json:"raffle_address,omitempty"`
	ProviderAddress string  `json:"provider_address"`
	TxHash          string  `json:"tx_hash"`
	LogIndex        uint32  `json:"log_index"`
	BlockNumber     uint64  `json:"block_number"`
}

// RandomnessFulfillmentDTO is the JSON shape of one provider fulfillment
// row. Randomness is carried as the raw decimal string the projector
// already stores, not re-parsed through big.Int, so no precision can be
// lost formatting it.
type RandomnessFulfillmentDTO struct {
	ID              int64   `json:"id"`
	RequestID       string  `json:"request_id"`
	Randomness      string  `json:"randomness"`
	Proof           *string `json:"proof,omitempty"`
	RaffleAddress   *string `json:"raffle_address,omitempty"`
	ProviderAddress string  `json:"provider_address"`
	TxHash          string  `json:"tx_hash"`
	LogIndex        uint32  `json:"log_index"`
	BlockNumber     uint64  `json:"block_number"`
}
