package projector_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/raffleprotocol/raffle-indexer/internal/codec"
	"github.com/raffleprotocol/raffle-indexer/internal/projector"
	"github.com/raffleprotocol/raffle-indexer/internal/store"
	"github.com/raffleprotocol/raffle-indexer/internal/teststore"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	dbURL, err := teststore.URL(ctx)
	require.NoError(t, err)
	pool, err := pgxpool.Connect(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// rawLog builds a minimal locator-bearing log for stamping onto a
// hand-constructed event, since these tests build events directly rather
// than decoding them.
func rawLog(address common.Address, block uint64, txHash string, index uint) types.Log {
	return types.Log{
		Address:     address,
		BlockNumber: block,
		TxHash:      common.HexToHash(txHash),
		Index:       index,
	}
}

func applyInBatch(t *testing.T, pool *pgxpool.Pool, f func(ctx context.Context, b *projector.Batch) error) {
	t.Helper()
	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	b := projector.Open(tx)
	require.NoError(t, f(ctx, b))
	require.NoError(t, tx.Commit(ctx))
}

func raffleAddr() common.Address {
	return common.HexToAddress("0xra11e000000000000000000000000000000001")
}

func createRaffle(t *testing.T, pool *pgxpool.Pool, raffleID int64) {
	t.Helper()
	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.FactoryRaffleCreated{
			RaffleId:     big.NewInt(raffleID),
			Raffle:       raffleAddr(),
			Creator:      common.HexToAddress("0xc0c0000000000000000000000000000000c0c0"),
			EndTime:      big.NewInt(1700000000),
			TicketPrice:  big.NewInt(1_000_000),
			MaxTickets:   big.NewInt(10),
			FeeBps:       big.NewInt(200),
			FeeRecipient: common.HexToAddress("0xfee0000000000000000000000000000000fee0"),
		}
		ev.Raw = rawLog(common.HexToAddress("0xfac70000000000000000000000000000000001"), 100, "0x01", 2)
		return b.ApplyRaffleCreated(ctx, ev)
	})
}

func buyTickets(t *testing.T, pool *pgxpool.Pool, raffleID int64, buyer common.Address, start, end, count int64, amount int64, txHash string, logIndex uint) {
	t.Helper()
	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.RaffleTicketsBought{
			RaffleId:   big.NewInt(raffleID),
			Buyer:      buyer,
			StartIndex: big.NewInt(start),
			EndIndex:   big.NewInt(end),
			Count:      big.NewInt(count),
			AmountPaid: big.NewInt(amount),
		}
		ev.Raw = rawLog(raffleAddr(), 100, txHash, logIndex)
		return b.ApplyTicketsBought(ctx, ev)
	})
}

// TestE2EWin walks the literal scenario from spec.md §8's "E2E win":
// two purchases, close, randomness request+fulfill, winner, payouts.
func TestE2EWin(t *testing.T) {
	pool := testPool(t)
	const raffleID = 1

	createRaffle(t, pool, raffleID)
	alice := common.HexToAddress("0xa11ce00000000000000000000000000000a11c")
	bob := common.HexToAddress("0xb0b0000000000000000000000000000000b0b0")
	buyTickets(t, pool, raffleID, alice, 0, 2, 3, 3_000_000, "0x10", 0)
	buyTickets(t, pool, raffleID, bob, 3, 4, 2, 2_000_000, "0x11", 0)

	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.RaffleClosed{RaffleId: big.NewInt(raffleID), TotalTickets: big.NewInt(5), Pot: big.NewInt(5_000_000)}
		ev.Raw = rawLog(raffleAddr(), 101, "0x12", 0)
		return b.ApplyRaffleClosed(ctx, ev)
	})
	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.RaffleRandomnessRequested{RaffleId: big.NewInt(raffleID), RequestId: big.NewInt(42)}
		ev.Raw = rawLog(raffleAddr(), 102, "0x13", 0)
		return b.ApplyRandomnessRequested(ctx, ev)
	})
	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.RaffleRandomnessFulfilled{RaffleId: big.NewInt(raffleID), RequestId: big.NewInt(42), Randomness: big.NewInt(3)}
		ev.Raw = rawLog(raffleAddr(), 103, "0x14", 0)
		return b.ApplyRandomnessFulfilled(ctx, ev)
	})
	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.RaffleWinnerSelected{
			RaffleId: big.NewInt(raffleID), Winner: bob, WinningIndex: big.NewInt(3),
			PrizeAmount: big.NewInt(4_900_000), FeeAmount: big.NewInt(100_000),
		}
		ev.Raw = rawLog(raffleAddr(), 104, "0x15", 0)
		return b.ApplyWinnerSelected(ctx, ev)
	})
	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.RafflePayoutsCompleted{RaffleId: big.NewInt(raffleID)}
		ev.Raw = rawLog(raffleAddr(), 105, "0x16", 0)
		return b.ApplyPayoutsCompleted(ctx, ev)
	})

	q := store.New(pool)
	raffle, err := q.GetRaffleByID(context.Background(), store.NumericFromBigInt(big.NewInt(raffleID)))
	require.NoError(t, err)
	require.Equal(t, store.StatusFinalized, raffle.Status)
	require.NotNil(t, raffle.Winner)
	require.Equal(t, bob.Hex(), *raffle.Winner)
	require.NotNil(t, raffle.WinningIndex)
	require.EqualValues(t, 3, *raffle.WinningIndex)

	purchases, err := q.ListPurchasesByRaffle(context.Background(), store.NumericFromBigInt(big.NewInt(raffleID)))
	require.NoError(t, err)
	require.Len(t, purchases, 2)
	require.EqualValues(t, 0, purchases[0].StartIndex)
	require.EqualValues(t, 2, purchases[0].EndIndex)
	require.EqualValues(t, 3, purchases[1].StartIndex)
	require.EqualValues(t, 4, purchases[1].EndIndex)
}

// TestRefundPath covers spec.md §8's "Refund path": once a refund is
// claimed, the raffle enters REFUNDING and a subsequent RandomnessFulfilled
// for the same raffle must not move it back out.
func TestRefundPath(t *testing.T) {
	pool := testPool(t)
	const raffleID = 2

	createRaffle(t, pool, raffleID)
	alice := common.HexToAddress("0xa11ce00000000000000000000000000000a11c")
	bob := common.HexToAddress("0xb0b0000000000000000000000000000000b0b0")
	buyTickets(t, pool, raffleID, alice, 0, 2, 3, 3_000_000, "0x20", 0)
	buyTickets(t, pool, raffleID, bob, 3, 4, 2, 2_000_000, "0x21", 0)

	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.RaffleClosed{RaffleId: big.NewInt(raffleID), TotalTickets: big.NewInt(5), Pot: big.NewInt(5_000_000)}
		ev.Raw = rawLog(raffleAddr(), 101, "0x22", 0)
		return b.ApplyRaffleClosed(ctx, ev)
	})
	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.RaffleRandomnessRequested{RaffleId: big.NewInt(raffleID), RequestId: big.NewInt(42)}
		ev.Raw = rawLog(raffleAddr(), 102, "0x23", 0)
		return b.ApplyRandomnessRequested(ctx, ev)
	})
	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.RaffleRefundClaimed{RaffleId: big.NewInt(raffleID), Buyer: alice, TicketCount: big.NewInt(3), Amount: big.NewInt(3_000_000)}
		ev.Raw = rawLog(raffleAddr(), 103, "0x24", 0)
		return b.ApplyRefundClaimed(ctx, ev)
	})

	q := store.New(pool)
	raffle, err := q.GetRaffleByID(context.Background(), store.NumericFromBigInt(big.NewInt(raffleID)))
	require.NoError(t, err)
	require.Equal(t, store.StatusRefunding, raffle.Status)
	// Alice's refund must be subtracted back out of total_tickets/pot, per
	// spec.md §3 invariant 3 ("sum across Purchases minus Refunds").
	require.EqualValues(t, 2, raffle.TotalTickets)
	gotPot, err := store.BigIntFromNumeric(raffle.Pot)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(2_000_000), gotPot)

	// A late RandomnessFulfilled for the same raffle must not move it back
	// out of REFUNDING: the conditional WHERE status = 'RANDOM_REQUESTED'
	// makes this a no-op, per the contracts-as-source-of-truth decision.
	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.RaffleRandomnessFulfilled{RaffleId: big.NewInt(raffleID), RequestId: big.NewInt(42), Randomness: big.NewInt(3)}
		ev.Raw = rawLog(raffleAddr(), 104, "0x25", 0)
		return b.ApplyRandomnessFulfilled(ctx, ev)
	})

	raffle, err = q.GetRaffleByID(context.Background(), store.NumericFromBigInt(big.NewInt(raffleID)))
	require.NoError(t, err)
	require.Equal(t, store.StatusRefunding, raffle.Status)
}

// TestDuplicateLogIsIdempotent covers spec.md §8's "Duplicate log": applying
// the identical TicketsBought locator twice must produce exactly one
// Purchase row and increment total_tickets/pot exactly once.
func TestDuplicateLogIsIdempotent(t *testing.T) {
	pool := testPool(t)
	const raffleID = 3

	createRaffle(t, pool, raffleID)
	alice := common.HexToAddress("0xa11ce00000000000000000000000000000a11c")
	buyTickets(t, pool, raffleID, alice, 0, 2, 3, 3_000_000, "0xab", 5)
	buyTickets(t, pool, raffleID, alice, 0, 2, 3, 3_000_000, "0xab", 5) // identical locator

	q := store.New(pool)
	purchases, err := q.ListPurchasesByRaffle(context.Background(), store.NumericFromBigInt(big.NewInt(raffleID)))
	require.NoError(t, err)
	require.Len(t, purchases, 1)

	raffle, err := q.GetRaffleByID(context.Background(), store.NumericFromBigInt(big.NewInt(raffleID)))
	require.NoError(t, err)
	require.EqualValues(t, 3, raffle.TotalTickets)
	pot, err := store.BigIntFromNumeric(raffle.Pot)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(3_000_000), pot)
}

// TestDuplicateNoopsCounted covers spec.md §7's "out-of-order/duplicate
// events ... counted as a metric": applying the same purchase locator twice
// within one Batch must report exactly one duplicate no-op, and must not
// double the raffle's running totals.
func TestDuplicateNoopsCounted(t *testing.T) {
	pool := testPool(t)
	const raffleID = 5

	createRaffle(t, pool, raffleID)
	alice := common.HexToAddress("0xa11ce00000000000000000000000000000a11c")

	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	b := projector.Open(tx)

	ev := codec.RaffleTicketsBought{
		RaffleId: big.NewInt(raffleID), Buyer: alice,
		StartIndex: big.NewInt(0), EndIndex: big.NewInt(2),
		Count: big.NewInt(3), AmountPaid: big.NewInt(3_000_000),
	}
	ev.Raw = rawLog(raffleAddr(), 100, "0xcc", 0)
	require.NoError(t, b.ApplyTicketsBought(ctx, ev))
	require.NoError(t, b.ApplyTicketsBought(ctx, ev)) // identical locator
	require.NoError(t, tx.Commit(ctx))

	require.Equal(t, 1, b.DuplicateNoops())

	q := store.New(pool)
	raffle, err := q.GetRaffleByID(ctx, store.NumericFromBigInt(big.NewInt(raffleID)))
	require.NoError(t, err)
	require.EqualValues(t, 3, raffle.TotalTickets)
}

// TestProviderLinkage covers spec.md §8's "Provider linkage" scenario,
// including the requirement that the randomness value round-trips as an
// exact decimal string with no precision loss.
func TestProviderLinkage(t *testing.T) {
	pool := testPool(t)
	const raffleID = 4

	createRaffle(t, pool, raffleID)
	providerAddr := common.HexToAddress("0xfeed000000000000000000000000000000feed")

	hugeRandomness, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.ProviderRandomnessRequested{
			RequestId: big.NewInt(0xdead),
			RaffleId:  big.NewInt(raffleID),
			Raffle:    raffleAddr(),
		}
		ev.Raw = rawLog(providerAddr, 200, "0x30", 0)
		return b.ApplyProviderRandomnessRequested(ctx, ev)
	})
	applyInBatch(t, pool, func(ctx context.Context, b *projector.Batch) error {
		ev := codec.ProviderRandomnessDelivered{
			RequestId:  big.NewInt(0xdead),
			Randomness: hugeRandomness,
			Proof:      []byte{0xAA},
			Raffle:     raffleAddr(),
		}
		ev.Raw = rawLog(providerAddr, 201, "0x31", 0)
		return b.ApplyProviderRandomnessDelivered(ctx, ev)
	})

	q := store.New(pool)
	raffle, err := q.GetRaffleByID(context.Background(), store.NumericFromBigInt(big.NewInt(raffleID)))
	require.NoError(t, err)
	require.NotNil(t, raffle.ProviderRequestTx)
	require.NotNil(t, raffle.ProviderFulfillTx)
	require.NotNil(t, raffle.ProofData)
	require.Equal(t, "0xaa", *raffle.ProofData)

	fulfillments, err := q.ListRandomnessFulfillments(context.Background(), store.ListRandomnessFulfillmentsParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, fulfillments, 1)
	require.Equal(t, "123456789012345678901234567890", fulfillments[0].Randomness)
}

// TestCheckpointAdvancesOnlyInsideCommittedBatch exercises the checkpoint
// read/write path a Batch uses, matching spec.md §8's checkpoint-safety
// property: a rolled-back transaction must leave the checkpoint unmoved.
func TestCheckpointAdvancesOnlyInsideCommittedBatch(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	q := store.New(pool)
	height, err := q.GetLastProcessedBlock(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, height)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	b := projector.Open(tx)
	require.NoError(t, b.SetLastProcessedBlock(ctx, 500))
	require.NoError(t, tx.Rollback(ctx))

	height, err = q.GetLastProcessedBlock(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, height, "a rolled-back batch must not advance the checkpoint")

	tx, err = pool.Begin(ctx)
	require.NoError(t, err)
	b = projector.Open(tx)
	require.NoError(t, b.SetLastProcessedBlock(ctx, 500))
	require.NoError(t, tx.Commit(ctx))

	height, err = q.GetLastProcessedBlock(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 500, height)
}
