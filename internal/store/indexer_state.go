package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
)

const getLastProcessedBlock = `SELECT last_processed_block FROM indexer_state LIMIT 1`

// GetLastProcessedBlock returns the persisted checkpoint, or 0 if the
// singleton row hasn't been installed yet.
func (q *Queries) GetLastProcessedBlock(ctx context.Context) (uint64, error) {
	row := q.db.QueryRow(ctx, getLastProcessedBlock)
	var height uint64
	if err := row.Scan(&height); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("scanning last processed block: %s", err)
	}
	return height, nil
}

const updateLastProcessedBlock = `UPDATE indexer_state SET last_processed_block = $1, updated_at = now()`

const insertLastProcessedBlock = `INSERT INTO indexer_state (last_processed_block, updated_at) VALUES ($1, now())`

// SetLastProcessedBlock advances the checkpoint, inserting the singleton row
// if it doesn't exist yet. Callers MUST invoke this inside the same
// transaction that applied the batch's projections.
func (q *Queries) SetLastProcessedBlock(ctx context.Context, height uint64) error {
	tag, err := q.db.Exec(ctx, updateLastProcessedBlock, height)
	if err != nil {
		return fmt.Errorf("updating last processed block: %s", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := q.db.Exec(ctx, insertLastProcessedBlock, height); err != nil {
		return fmt.Errorf("inserting last processed block: %s", err)
	}
	return nil
}
