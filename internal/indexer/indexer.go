// Package indexer drives the event indexing core: reading the checkpoint,
// fetching and decoding logs for one block range, projecting them inside a
// single transaction, and advancing the checkpoint, forever, until asked to
// stop.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/raffleprotocol/raffle-indexer/internal/chain"
	"github.com/raffleprotocol/raffle-indexer/internal/codec"
	"github.com/raffleprotocol/raffle-indexer/internal/eventfeed"
	"github.com/raffleprotocol/raffle-indexer/internal/projector"
	"github.com/raffleprotocol/raffle-indexer/internal/store"
)

// Indexer is the long-running daemon. One instance owns the checkpoint and
// the in-memory set of discovered raffle addresses; no other component
// mutates either.
type Indexer struct {
	log    zerolog.Logger
	pool   *pgxpool.Pool
	rpc    *chain.RPC
	feed   *eventfeed.Feed
	config Config
	m      *instruments

	lock           sync.Mutex
	daemonCtx      context.Context
	daemonCancel   context.CancelFunc
	daemonCanceled chan struct{}
}

// New returns an Indexer. Discovered raffle addresses are rebuilt when the
// loop starts, from the raffle rows already projected into the raffles
// table — they are never persisted separately.
func New(pool *pgxpool.Pool, rpc *chain.RPC, feed *eventfeed.Feed, config Config) (*Indexer, error) {
	m, err := newInstruments()
	if err != nil {
		return nil, fmt.Errorf("initializing indexer metrics: %s", err)
	}
	return &Indexer{
		log:    logger.With().Str("component", "indexer").Logger(),
		pool:   pool,
		rpc:    rpc,
		feed:   feed,
		config: config,
		m:      m,
	}, nil
}

// StartSync launches the background polling loop. It returns once the loop
// has started; the loop itself runs until StopSync is called.
func (ix *Indexer) StartSync() error {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	if ix.daemonCtx != nil {
		return fmt.Errorf("indexer already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	ix.daemonCtx = ctx
	ix.daemonCancel = cancel
	ix.daemonCanceled = make(chan struct{})

	go ix.run(ctx)

	ix.log.Info().Msg("indexer started")
	return nil
}

// StopSync signals the loop to finish its current tick's commit (or roll
// back cleanly) and then exit, blocking until it has.
func (ix *Indexer) StopSync() {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	if ix.daemonCtx == nil {
		return
	}

	ix.log.Debug().Msg("stopping indexer gracefully...")
	ix.daemonCancel()
	<-ix.daemonCanceled

	ix.daemonCtx = nil
	ix.daemonCancel = nil
	ix.daemonCanceled = nil

	ix.log.Debug().Msg("indexer stopped")
}

func (ix *Indexer) run(ctx context.Context) {
	defer close(ix.daemonCanceled)

	knownRaffleAddrs, err := ix.rebuildRaffleAddressSet(ctx)
	if err != nil {
		ix.log.Error().Err(err).Msg("rebuilding raffle address set, starting with an empty set")
		knownRaffleAddrs = nil
	}

	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		advanced, newAddrs, err := ix.tick(ctx, knownRaffleAddrs)
		if err != nil {
			var malformed *codec.MalformedEventError
			if errors.As(err, &malformed) {
				// A recognized signature that fails to decode means the ABI
				// has drifted from the chain or the node is corrupting data;
				// retrying would just fail the same way forever. Per the
				// error taxonomy, this is fatal: log with full context and
				// exit non-zero rather than project garbage.
				ix.log.Fatal().Err(err).Msg("fatal codec error, exiting")
			}
			ix.m.transientFailures.Add(ctx, 1)
			backoff := ix.backoffFor(consecutiveFailures)
			consecutiveFailures++
			ix.log.Warn().Err(err).Dur("backoff", backoff).Msg("tick failed, retrying after backoff")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			continue
		}
		consecutiveFailures = 0
		knownRaffleAddrs = newAddrs

		if !advanced {
			if !sleepOrDone(ctx, ix.config.PollInterval) {
				return
			}
		}
	}
}

// backoffFor returns the exponential backoff for the n-th consecutive
// transient tick failure, doubling from FailedBatchBackoff and capped at
// PollInterval (spec.md §7: "retry the same tick with exponential backoff
// capped at the poll interval").
func (ix *Indexer) backoffFor(consecutiveFailures int) time.Duration {
	backoff := ix.config.FailedBatchBackoff
	for i := 0; i < consecutiveFailures; i++ {
		backoff *= 2
		if backoff >= ix.config.PollInterval {
			return ix.config.PollInterval
		}
	}
	return backoff
}

// rebuildRaffleAddressSet reloads the discovered-address set at startup
// from the raffle_address column of up to 100000 rows of the raffles table,
// since the set is never persisted on its own. It does not query the chain.
func (ix *Indexer) rebuildRaffleAddressSet(ctx context.Context) ([]common.Address, error) {
	q := store.New(ix.pool)
	height, err := q.GetLastProcessedBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %s", err)
	}
	from := height
	if ix.config.StartBlock > from {
		from = ix.config.StartBlock
	}
	// Addresses created at or before the checkpoint are already reflected
	// in the raffles table; rely on it directly rather than re-scanning
	// the whole chain history.
	rows, err := q.ListRaffles(ctx, store.ListRafflesParams{Limit: 100000, Offset: 0})
	if err != nil {
		return nil, fmt.Errorf("listing known raffles: %s", err)
	}
	addrs := make([]common.Address, 0, len(rows))
	for _, r := range rows {
		addrs = append(addrs, common.HexToAddress(r.RaffleAddress))
	}
	ix.log.Info().Uint64("from_checkpoint", from).Int("known_raffles", len(addrs)).Msg("rebuilt raffle address set")
	return addrs, nil
}

// tick performs one iteration of the algorithm in §4.5: determine the block
// range, fetch and decode logs, apply them in a single transaction, and
// advance the checkpoint. It returns whether it made progress (false means
// the chain head hasn't advanced past the checkpoint, so the caller should
// sleep a full poll interval).
func (ix *Indexer) tick(ctx context.Context, knownRaffleAddrs []common.Address) (bool, []common.Address, error) {
	q := store.New(ix.pool)
	checkpoint, err := q.GetLastProcessedBlock(ctx)
	if err != nil {
		return false, knownRaffleAddrs, fmt.Errorf("reading checkpoint: %s", err)
	}

	from := checkpoint + 1
	if ix.config.StartBlock > from {
		from = ix.config.StartBlock
	}

	head, err := ix.rpc.LatestBlock(ctx)
	if err != nil {
		return false, knownRaffleAddrs, err
	}
	ix.m.chainHead.Store(int64(head))

	if from > head {
		return false, knownRaffleAddrs, nil
	}

	to := from + ix.config.BatchSize - 1
	if to > head {
		to = head
	}

	blocks, allRaffleAddrs, err := ix.feed.Fetch(ctx, from, to, knownRaffleAddrs)
	if err != nil {
		return false, knownRaffleAddrs, fmt.Errorf("fetching batch [%d, %d]: %w", from, to, err)
	}

	if err := ix.applyBatch(ctx, to, blocks); err != nil {
		return false, knownRaffleAddrs, fmt.Errorf("applying batch [%d, %d]: %w", from, to, err)
	}

	ix.log.Debug().
		Uint64("from_block", from).
		Uint64("to_block", to).
		Uint64("head", head).
		Int("raffle_count", len(allRaffleAddrs)).
		Msg("applied batch")

	return true, allRaffleAddrs, nil
}

// applyBatch opens one transaction, writes every log's RawEvent row,
// applies every decoded event via the Projector, advances the checkpoint to
// toBlock, and commits. A failure anywhere rolls back the whole transaction
// so the checkpoint is never partially advanced.
func (ix *Indexer) applyBatch(ctx context.Context, toBlock uint64, blocks []eventfeed.BlockEvents) error {
	tx, err := ix.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("opening transaction: %s", err)
	}
	defer func() {
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, context.Canceled) {
			ix.log.Debug().Err(rerr).Msg("rollback after commit (expected no-op)")
		}
	}()

	b := projector.Open(tx)

	for _, be := range blocks {
		for _, txn := range be.Txns {
			for _, le := range txn.Logs {
				if err := b.ApplyRawEvent(ctx, le.Raw, le.Event); err != nil {
					return fmt.Errorf("persisting raw event (tx %s, index %d): %w", txn.TxHash.Hex(), le.Raw.Index, err)
				}
				if le.Event == nil {
					continue
				}
				if err := ix.applyEvent(ctx, b, le.Event); err != nil {
					return fmt.Errorf("applying %s (tx %s): %w", le.Event.EventName(), txn.TxHash.Hex(), err)
				}
				ix.m.eventsDecoded.Add(ctx, 1, attribute.String("event", le.Event.EventName()))
			}
		}
	}

	if err := b.SetLastProcessedBlock(ctx, toBlock); err != nil {
		return fmt.Errorf("advancing checkpoint to %d: %w", toBlock, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing batch: %s", err)
	}
	if n := b.DuplicateNoops(); n > 0 {
		ix.m.duplicateNoops.Add(ctx, int64(n))
	}
	return nil
}

// applyEvent dispatches a decoded event to the Batch method matching its
// concrete type. An event type reaching the default case means the codec
// and the projector's type switch have drifted apart; that's a programmer
// error, not a chain condition, so it's returned as a fatal error rather
// than silently skipped.
func (ix *Indexer) applyEvent(ctx context.Context, b *projector.Batch, ev codec.Event) error {
	switch e := ev.(type) {
	case codec.FactoryRaffleCreated:
		return b.ApplyRaffleCreated(ctx, e)
	case codec.RaffleTicketsBought:
		return b.ApplyTicketsBought(ctx, e)
	case codec.RaffleClosed:
		return b.ApplyRaffleClosed(ctx, e)
	case codec.RaffleRandomnessRequested:
		return b.ApplyRandomnessRequested(ctx, e)
	case codec.RaffleRandomnessFulfilled:
		return b.ApplyRandomnessFulfilled(ctx, e)
	case codec.RaffleWinnerSelected:
		return b.ApplyWinnerSelected(ctx, e)
	case codec.RafflePayoutsCompleted:
		return b.ApplyPayoutsCompleted(ctx, e)
	case codec.RaffleRefundClaimed:
		return b.ApplyRefundClaimed(ctx, e)
	case codec.RaffleRefundsStarted:
		return b.ApplyRefundsStarted(ctx, e)
	case codec.ProviderRandomnessRequested:
		return b.ApplyProviderRandomnessRequested(ctx, e)
	case codec.ProviderRandomnessDelivered:
		return b.ApplyProviderRandomnessDelivered(ctx, e)
	default:
		return fmt.Errorf("no projector method registered for event type %T", ev)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
