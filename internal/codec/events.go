// Package codec decodes raw EVM logs into the indexer's closed set of typed
// events, using ABI metadata loaded once at startup.
package codec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ContractKind identifies which of the three contracts a log was emitted by.
type ContractKind string

// The three contract kinds the indexer subscribes to.
const (
	Factory  ContractKind = "factory"
	Raffle   ContractKind = "raffle"
	Provider ContractKind = "provider"
)

// Event is implemented by every member of the closed event sum. Raw carries
// the originating log so the caller always has the event locator
// (tx hash, log index, block number) available.
type Event interface {
	// EventName returns the ABI event name this value was decoded from.
	EventName() string
	// Log returns the raw log this event was decoded from.
	Log() types.Log
}

type base struct {
	Raw types.Log
}

// Log implements Event.
func (b base) Log() types.Log { return b.Raw }

// setRaw stamps the originating log onto a freshly decoded event. It is
// reached through the logSetter interface rather than direct field access
// so decode.go can populate it generically across the event registries.
func (b *base) setRaw(l types.Log) { b.Raw = l }

// logSetter is implemented by every *Event via the embedded *base.
type logSetter interface {
	setRaw(types.Log)
}

// FactoryRaffleCreated is emitted by the factory contract once per raffle.
type FactoryRaffleCreated struct {
	base
	RaffleId     *big.Int
	Raffle       common.Address
	Creator      common.Address
	EndTime      *big.Int
	TicketPrice  *big.Int
	MaxTickets   *big.Int
	FeeBps       *big.Int
	FeeRecipient common.Address
}

// EventName implements Event.
func (FactoryRaffleCreated) EventName() string { return "RaffleCreated" }

// RaffleTicketsBought is emitted by a raffle contract on every ticket
// purchase.
type RaffleTicketsBought struct {
	base
	RaffleId    *big.Int
	Buyer       common.Address
	StartIndex  *big.Int
	EndIndex    *big.Int
	Count       *big.Int
	AmountPaid  *big.Int
}

// EventName implements Event.
func (RaffleTicketsBought) EventName() string { return "TicketsBought" }

// RaffleClosed is emitted once a raffle stops selling tickets.
type RaffleClosed struct {
	base
	RaffleId     *big.Int
	TotalTickets *big.Int
	Pot          *big.Int
}

// EventName implements Event.
func (RaffleClosed) EventName() string { return "RaffleClosed" }

// RaffleRandomnessRequested is emitted by a raffle contract when it asks the
// randomness provider for a random value.
type RaffleRandomnessRequested struct {
	base
	RaffleId  *big.Int
	RequestId *big.Int
}

// EventName implements Event.
func (RaffleRandomnessRequested) EventName() string { return "RandomnessRequested" }

// RaffleRandomnessFulfilled is emitted once a raffle contract receives its
// randomness back from the provider.
type RaffleRandomnessFulfilled struct {
	base
	RaffleId   *big.Int
	RequestId  *big.Int
	Randomness *big.Int
}

// EventName implements Event.
func (RaffleRandomnessFulfilled) EventName() string { return "RandomnessFulfilled" }

// RaffleWinnerSelected is emitted once a raffle determines its winner.
type RaffleWinnerSelected struct {
	base
	RaffleId     *big.Int
	Winner       common.Address
	WinningIndex *big.Int
	PrizeAmount  *big.Int
	FeeAmount    *big.Int
}

// EventName implements Event.
func (RaffleWinnerSelected) EventName() string { return "WinnerSelected" }

// RafflePayoutsCompleted is emitted once all payouts for a raffle have been
// sent.
type RafflePayoutsCompleted struct {
	base
	RaffleId *big.Int
}

// EventName implements Event.
func (RafflePayoutsCompleted) EventName() string { return "PayoutsCompleted" }

// RaffleRefundClaimed is emitted every time a buyer claims a refund.
type RaffleRefundClaimed struct {
	base
	RaffleId    *big.Int
	Buyer       common.Address
	TicketCount *big.Int
	Amount      *big.Int
}

// EventName implements Event.
func (RaffleRefundClaimed) EventName() string { return "RefundClaimed" }

// RaffleRefundsStarted is emitted once a raffle opens its refund window.
type RaffleRefundsStarted struct {
	base
	RaffleId  *big.Int
	Timestamp *big.Int
}

// EventName implements Event.
func (RaffleRefundsStarted) EventName() string { return "RefundsStarted" }

// ProviderRandomnessRequested is emitted by the randomness provider contract
// when a raffle requests randomness from it.
type ProviderRandomnessRequested struct {
	base
	RequestId *big.Int
	RaffleId  *big.Int
	Raffle    common.Address
}

// EventName implements Event.
func (ProviderRandomnessRequested) EventName() string { return "RandomnessRequested" }

// ProviderRandomnessDelivered is emitted by the randomness provider contract
// once it delivers randomness back to a raffle.
type ProviderRandomnessDelivered struct {
	base
	RequestId  *big.Int
	Randomness *big.Int
	Proof      []byte
	Raffle     common.Address
}

// EventName implements Event.
func (ProviderRandomnessDelivered) EventName() string { return "RandomnessDelivered" }
