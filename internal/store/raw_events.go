package store

import (
	"context"
	"fmt"
)

const insertRawEvent = `
INSERT INTO raw_events (tx_hash, log_index, block_number, address, topic0, data, event_json)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (tx_hash, log_index) DO NOTHING
`

// InsertRawEventParams carries the unconditional, pre-decode record of a
// log: this row is written for every log regardless of whether it decoded
// successfully, so an unknown topic0 is still preserved. EventJSON is nil
// when the log's topic0 did not match any known event.
type InsertRawEventParams struct {
	TxHash      string
	LogIndex    uint32
	BlockNumber uint64
	Address     string
	Topic0      string
	Data        []byte
	EventJSON   []byte
}

// InsertRawEvent inserts the raw-log record. A locator collision is a
// silent no-op, consistent with every other event table's idempotence.
func (q *Queries) InsertRawEvent(ctx context.Context, arg InsertRawEventParams) error {
	_, err := q.db.Exec(ctx, insertRawEvent,
		arg.TxHash, arg.LogIndex, arg.BlockNumber, arg.Address, arg.Topic0, arg.Data, arg.EventJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting raw event: %s", err)
	}
	return nil
}
