// Package projector translates decoded chain events into idempotent
// row-level operations against the store, one Postgres transaction per
// polling tick.
package projector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/raffleprotocol/raffle-indexer/internal/store"
)

// Batch is a transaction-scoped handle applying one tick's decoded events.
// It owns every invariant of the data model: conditional status updates
// make out-of-order or duplicate events no-ops instead of errors.
type Batch struct {
	log zerolog.Logger
	tx  pgx.Tx
	q   *store.Queries

	duplicateNoops int
}

// Open starts a Batch inside tx. The caller commits or rolls back tx once
// every event in the tick (and the checkpoint advance) has been applied.
func Open(tx pgx.Tx) *Batch {
	return &Batch{
		log: logger.With().Str("component", "projector").Logger(),
		tx:  tx,
		q:   store.New(tx),
	}
}

// GetLastProcessedBlock reads the checkpoint within this transaction.
func (b *Batch) GetLastProcessedBlock(ctx context.Context) (uint64, error) {
	return b.q.GetLastProcessedBlock(ctx)
}

// SetLastProcessedBlock advances the checkpoint within this transaction.
// The caller is responsible for invoking this only after every event of the
// batch's block range has been applied, and before commit.
func (b *Batch) SetLastProcessedBlock(ctx context.Context, height uint64) error {
	return b.q.SetLastProcessedBlock(ctx, height)
}

// DuplicateNoops returns the number of events this Batch applied that turned
// out to be idempotent re-applies (a purchase or refund whose locator was
// already stored), for the caller to report as a metric per the error
// taxonomy's "out-of-order/duplicate events are counted as a metric".
func (b *Batch) DuplicateNoops() int {
	return b.duplicateNoops
}

// runWithinSavepoint isolates one event's application: out-of-order and
// duplicate events are already handled as no-ops by each statement's
// conditional WHERE clause or ON CONFLICT DO NOTHING, so nothing here
// needs to interpret "zero rows affected" specially. A genuine SQL error
// (a transient DB failure, a constraint violation) rolls back only this
// event's savepoint and is propagated to the caller, which per the error
// taxonomy aborts and retries the whole tick rather than committing a
// partially-applied batch.
func (b *Batch) runWithinSavepoint(ctx context.Context, name string, f func(ctx context.Context) error) error {
	if _, err := b.tx.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("creating savepoint %s: %s", name, err)
	}
	if err := f(ctx); err != nil {
		if _, rerr := b.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rerr != nil {
			return fmt.Errorf("rolling back savepoint %s: %s", name, rerr)
		}
		return fmt.Errorf("applying event at savepoint %s: %w", name, err)
	}
	if _, err := b.tx.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("releasing savepoint %s: %s", name, err)
	}
	return nil
}
