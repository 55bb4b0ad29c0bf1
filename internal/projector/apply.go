package projector

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/raffleprotocol/raffle-indexer/internal/codec"
	"github.com/raffleprotocol/raffle-indexer/internal/store"
)

func locator(l types.Log) (txHash string, logIndex uint32, blockNumber uint64) {
	return l.TxHash.Hex(), uint32(l.Index), l.BlockNumber
}

// ApplyRawEvent persists the unconditional pre-decode record of a log. It is
// called for every observed log, decoded or not, so an unknown topic0 is
// still preserved per the error taxonomy. ev is nil when the log's topic0
// did not match any known event; when present, its typed fields are stored
// alongside the raw log as event_json for debugging and export.
func (b *Batch) ApplyRawEvent(ctx context.Context, l types.Log, ev codec.Event) error {
	var topic0 string
	if len(l.Topics) > 0 {
		topic0 = l.Topics[0].Hex()
	}

	var eventJSON []byte
	if ev != nil {
		j, err := codec.MarshalEventJSON(ev)
		if err != nil {
			return fmt.Errorf("marshaling decoded event for storage: %w", err)
		}
		eventJSON = j
	}

	txHash, logIndex, blockNumber := locator(l)
	return b.runWithinSavepoint(ctx, "raw_event", func(ctx context.Context) error {
		return b.q.InsertRawEvent(ctx, store.InsertRawEventParams{
			TxHash:      txHash,
			LogIndex:    logIndex,
			BlockNumber: blockNumber,
			Address:     l.Address.Hex(),
			Topic0:      topic0,
			Data:        l.Data,
			EventJSON:   eventJSON,
		})
	})
}

// ApplyRaffleCreated inserts a new raffle. A pre-existing raffle_id is a
// no-op.
func (b *Batch) ApplyRaffleCreated(ctx context.Context, ev codec.FactoryRaffleCreated) error {
	params := store.InsertRaffleParams{
		RaffleID:      store.NumericFromBigInt(ev.RaffleId),
		RaffleAddress: ev.Raffle.Hex(),
		Creator:       ev.Creator.Hex(),
		EndTime:       ev.EndTime.Int64(),
		TicketPrice:   store.NumericFromBigInt(ev.TicketPrice),
		MaxTickets:    int32(ev.MaxTickets.Int64()),
		FeeBps:        int16(ev.FeeBps.Int64()),
		FeeRecipient:  ev.FeeRecipient.Hex(),
	}
	return b.runWithinSavepoint(ctx, "raffle_created", func(ctx context.Context) error {
		return b.q.InsertRaffle(ctx, params)
	})
}

// ApplyTicketsBought inserts a purchase and, only on first insertion (the
// locator is not a duplicate), adds its count and amount to the raffle's
// running totals.
func (b *Batch) ApplyTicketsBought(ctx context.Context, ev codec.RaffleTicketsBought) error {
	raffleID := store.NumericFromBigInt(ev.RaffleId)
	count := int32(ev.Count.Int64())
	amount := store.NumericFromBigInt(ev.AmountPaid)
	txHash, logIndex, blockNumber := locator(ev.Log())

	params := store.InsertPurchaseParams{
		RaffleID:    raffleID,
		Buyer:       ev.Buyer.Hex(),
		StartIndex:  int32(ev.StartIndex.Int64()),
		EndIndex:    int32(ev.EndIndex.Int64()),
		Count:       count,
		Amount:      amount,
		TxHash:      txHash,
		LogIndex:    logIndex,
		BlockNumber: blockNumber,
	}
	return b.runWithinSavepoint(ctx, "tickets_bought", func(ctx context.Context) error {
		inserted, err := b.q.InsertPurchase(ctx, params)
		if err != nil {
			return fmt.Errorf("inserting purchase: %w", err)
		}
		if !inserted {
			b.duplicateNoops++
			return nil
		}
		return b.q.AddTicketsAndPot(ctx, raffleID, count, amount)
	})
}

// ApplyRaffleClosed moves a raffle from ACTIVE to CLOSED.
func (b *Batch) ApplyRaffleClosed(ctx context.Context, ev codec.RaffleClosed) error {
	raffleID := store.NumericFromBigInt(ev.RaffleId)
	return b.runWithinSavepoint(ctx, "raffle_closed", func(ctx context.Context) error {
		return b.q.CloseRaffle(ctx, raffleID)
	})
}

// ApplyRandomnessRequested moves a raffle from CLOSED to RANDOM_REQUESTED.
func (b *Batch) ApplyRandomnessRequested(ctx context.Context, ev codec.RaffleRandomnessRequested) error {
	raffleID := store.NumericFromBigInt(ev.RaffleId)
	requestID := store.NumericFromBigInt(ev.RequestId)
	txHash, _, _ := locator(ev.Log())
	return b.runWithinSavepoint(ctx, "randomness_requested", func(ctx context.Context) error {
		return b.q.SetRandomnessRequested(ctx, raffleID, requestID, txHash)
	})
}

// ApplyRandomnessFulfilled moves a raffle from RANDOM_REQUESTED to
// RANDOM_FULFILLED, deriving winning_index when it isn't already set.
func (b *Batch) ApplyRandomnessFulfilled(ctx context.Context, ev codec.RaffleRandomnessFulfilled) error {
	raffleID := store.NumericFromBigInt(ev.RaffleId)
	randomness := store.NumericFromBigInt(ev.Randomness)
	txHash, _, _ := locator(ev.Log())
	return b.runWithinSavepoint(ctx, "randomness_fulfilled", func(ctx context.Context) error {
		return b.q.SetRandomnessFulfilled(ctx, raffleID, randomness, txHash)
	})
}

// ApplyWinnerSelected records the winner and winning index.
func (b *Batch) ApplyWinnerSelected(ctx context.Context, ev codec.RaffleWinnerSelected) error {
	raffleID := store.NumericFromBigInt(ev.RaffleId)
	winningIndex := int32(0)
	if ev.WinningIndex != nil {
		winningIndex = int32(ev.WinningIndex.Int64())
	}
	return b.runWithinSavepoint(ctx, "winner_selected", func(ctx context.Context) error {
		return b.q.SetWinner(ctx, raffleID, ev.Winner.Hex(), winningIndex)
	})
}

// ApplyPayoutsCompleted moves a raffle to FINALIZED, unless it has already
// branched into REFUNDING.
func (b *Batch) ApplyPayoutsCompleted(ctx context.Context, ev codec.RafflePayoutsCompleted) error {
	raffleID := store.NumericFromBigInt(ev.RaffleId)
	txHash, _, _ := locator(ev.Log())
	return b.runWithinSavepoint(ctx, "payouts_completed", func(ctx context.Context) error {
		return b.q.FinalizeRaffle(ctx, raffleID, txHash)
	})
}

// ApplyRefundClaimed inserts a refund and, only on first insertion, moves
// the raffle into REFUNDING (unless it is already FINALIZED) and subtracts
// the refunded tickets and amount from the raffle's running totals, so
// total_tickets/pot keep tracking the sum across Purchases minus Refunds.
func (b *Batch) ApplyRefundClaimed(ctx context.Context, ev codec.RaffleRefundClaimed) error {
	raffleID := store.NumericFromBigInt(ev.RaffleId)
	ticketCount := int32(ev.TicketCount.Int64())
	amount := store.NumericFromBigInt(ev.Amount)
	txHash, logIndex, blockNumber := locator(ev.Log())

	params := store.InsertRefundParams{
		RaffleID:    raffleID,
		Buyer:       ev.Buyer.Hex(),
		TicketCount: ticketCount,
		Amount:      amount,
		TxHash:      txHash,
		LogIndex:    logIndex,
		BlockNumber: blockNumber,
	}
	return b.runWithinSavepoint(ctx, "refund_claimed", func(ctx context.Context) error {
		inserted, err := b.q.InsertRefund(ctx, params)
		if err != nil {
			return fmt.Errorf("inserting refund: %w", err)
		}
		if !inserted {
			b.duplicateNoops++
			return nil
		}
		if err := b.q.SubtractTicketsAndPot(ctx, raffleID, ticketCount, amount); err != nil {
			return fmt.Errorf("subtracting refunded tickets and pot: %w", err)
		}
		return b.q.SetRefunding(ctx, raffleID)
	})
}

// ApplyRefundsStarted moves a raffle into REFUNDING.
func (b *Batch) ApplyRefundsStarted(ctx context.Context, ev codec.RaffleRefundsStarted) error {
	raffleID := store.NumericFromBigInt(ev.RaffleId)
	return b.runWithinSavepoint(ctx, "refunds_started", func(ctx context.Context) error {
		return b.q.SetRefunding(ctx, raffleID)
	})
}

// ApplyProviderRandomnessRequested inserts a provider-side request row and,
// when it can be matched to a known raffle, links the provider request id
// and tx onto that raffle. Matching prefers raffle_id when present,
// otherwise falls back to a case-insensitive raffle_address match.
func (b *Batch) ApplyProviderRandomnessRequested(ctx context.Context, ev codec.ProviderRandomnessRequested) error {
	requestID := ev.RequestId.String()
	raffleAddr := ev.Raffle.Hex()
	txHash, logIndex, blockNumber := locator(ev.Log())

	var raffleIDNumeric *pgtype.Numeric
	if ev.RaffleId != nil && ev.RaffleId.Sign() != 0 {
		n := store.NumericFromBigInt(ev.RaffleId)
		raffleIDNumeric = &n
	}

	params := store.InsertRandomnessRequestParams{
		RequestID:       requestID,
		RaffleID:        raffleIDNumeric,
		RaffleAddress:   &raffleAddr,
		ProviderAddress: ev.Log().Address.Hex(),
		TxHash:          txHash,
		LogIndex:        logIndex,
		BlockNumber:     blockNumber,
	}

	return b.runWithinSavepoint(ctx, "provider_randomness_requested", func(ctx context.Context) error {
		if _, err := b.q.InsertRandomnessRequest(ctx, params); err != nil {
			return fmt.Errorf("inserting provider randomness request: %w", err)
		}
		raffle, err := b.matchRaffle(ctx, ev.RaffleId, raffleAddr)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil // unmatched raffle address: skip linkage, per the unknown-raffle-address decision
			}
			return fmt.Errorf("matching raffle for provider request link: %w", err)
		}
		return b.q.SetProviderRequestLink(ctx, raffle.RaffleID, requestID, txHash)
	})
}

// ApplyProviderRandomnessDelivered inserts a provider-side fulfillment row
// and, when matched to a known raffle by address, links the fulfillment tx
// and proof onto that raffle.
func (b *Batch) ApplyProviderRandomnessDelivered(ctx context.Context, ev codec.ProviderRandomnessDelivered) error {
	requestID := ev.RequestId.String()
	raffleAddr := ev.Raffle.Hex()
	randomness := store.DecimalString(ev.Randomness)
	txHash, logIndex, blockNumber := locator(ev.Log())

	var proof *string
	if len(ev.Proof) > 0 {
		s := fmt.Sprintf("0x%x", ev.Proof)
		proof = &s
	}

	params := store.InsertRandomnessFulfillmentParams{
		RequestID:       requestID,
		Randomness:      randomness,
		Proof:           proof,
		RaffleAddress:   &raffleAddr,
		ProviderAddress: ev.Log().Address.Hex(),
		TxHash:          txHash,
		LogIndex:        logIndex,
		BlockNumber:     blockNumber,
	}

	return b.runWithinSavepoint(ctx, "provider_randomness_delivered", func(ctx context.Context) error {
		if _, err := b.q.InsertRandomnessFulfillment(ctx, params); err != nil {
			return fmt.Errorf("inserting provider randomness fulfillment: %w", err)
		}
		raffle, err := b.matchRaffle(ctx, nil, raffleAddr)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil // unmatched raffle address: skip linkage, per the unknown-raffle-address decision
			}
			return fmt.Errorf("matching raffle for provider fulfill link: %w", err)
		}
		return b.q.SetProviderFulfillLink(ctx, raffle.RaffleID, txHash, proof)
	})
}

// matchRaffle resolves the provider matching rule: prefer raffle_id when
// present, otherwise match raffle_address case-insensitively.
func (b *Batch) matchRaffle(ctx context.Context, raffleID *big.Int, raffleAddr string) (store.Raffle, error) {
	if raffleID != nil && raffleID.Sign() != 0 {
		return b.q.GetRaffleByID(ctx, store.NumericFromBigInt(raffleID))
	}
	return b.q.GetRaffleByAddress(ctx, raffleAddr)
}
