// Package eventfeed fetches and decodes raw EVM logs for one polling tick,
// resolving newly created raffle addresses within the same tick so their
// earliest events are never missed.
package eventfeed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/raffleprotocol/raffle-indexer/internal/chain"
	"github.com/raffleprotocol/raffle-indexer/internal/codec"
)

// Config controls batching and backoff for the feed.
type Config struct {
	// MaxBlocksPerBatch records the configured batch size, mirroring the
	// teacher's MaxBlocksFetchSize knob. Fetch does not consult it: the
	// block range is chosen by the caller.
	MaxBlocksPerBatch uint64
	// ChainAPIBackoff is not consulted by Fetch, which makes no retries; an
	// RPC failure is returned to the caller.
	ChainAPIBackoff time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxBlocksPerBatch: 2000,
		ChainAPIBackoff:   3 * time.Second,
	}
}

// LogEvent pairs one raw log with its decoded event. Event is nil when the
// log's topic0 didn't match any signature known for the contract kind it was
// fetched under; the raw log is still carried so it can be persisted.
type LogEvent struct {
	Raw   types.Log
	Event codec.Event
}

// TxnEvents groups the logs carried by a single transaction, in log-index
// order.
type TxnEvents struct {
	TxHash common.Hash
	Logs   []LogEvent
}

// BlockEvents groups the events observed in a single block, ordered by log
// index within each transaction, transactions ordered by first appearance.
type BlockEvents struct {
	BlockNumber uint64
	Txns        []TxnEvents
}

// Feed fetches and decodes events for the factory, the known raffle
// addresses, and (optionally) the randomness provider.
type Feed struct {
	log     zerolog.Logger
	rpc     *chain.RPC
	decoder *codec.Decoder
	config  Config

	factoryAddress common.Address
	providerAddr   *common.Address

	factoryTopics  []common.Hash
	raffleTopics   []common.Hash
	providerTopics []common.Hash
}

// New returns a Feed. providerAddr may be nil, disabling the provider filter
// group entirely, as spec'd for a missing randomness provider artifact.
func New(
	rpc *chain.RPC,
	decoder *codec.Decoder,
	factoryAddress common.Address,
	providerAddr *common.Address,
	config Config,
) (*Feed, error) {
	factoryTopics, err := decoder.Topics(codec.Factory)
	if err != nil {
		return nil, fmt.Errorf("resolving factory topics: %s", err)
	}
	raffleTopics, err := decoder.Topics(codec.Raffle)
	if err != nil {
		return nil, fmt.Errorf("resolving raffle topics: %s", err)
	}
	var providerTopics []common.Hash
	if providerAddr != nil {
		providerTopics, err = decoder.Topics(codec.Provider)
		if err != nil {
			return nil, fmt.Errorf("resolving provider topics: %s", err)
		}
	}

	return &Feed{
		log:            logger.With().Str("component", "eventfeed").Logger(),
		rpc:            rpc,
		decoder:        decoder,
		config:         config,
		factoryAddress: factoryAddress,
		providerAddr:   providerAddr,
		factoryTopics:  factoryTopics,
		raffleTopics:   raffleTopics,
		providerTopics: providerTopics,
	}, nil
}

// decodedLog pairs a raw log with its successfully decoded event, or nil if
// its topic0 was unrecognized for the contract kind it was fetched under.
type decodedLog struct {
	raw   types.Log
	event codec.Event
}

// Fetch retrieves and decodes every log in [fromBlock, toBlock] across the
// factory, the known raffle addresses plus any raffles created within this
// same range, and the provider. It returns the ordered batch of decoded
// events plus the full (known ∪ newly discovered) raffle address set for the
// caller to keep in memory and reuse on the next tick.
//
// This is the two-pass discovery strategy from the design notes: the
// factory's logs are always fetched and decoded first, so any
// RaffleCreated addresses minted inside this very range are folded into the
// raffle-address filter before the raffle pass runs, and their earliest
// events (e.g. a same-block first purchase) are never missed.
func (f *Feed) Fetch(
	ctx context.Context,
	fromBlock, toBlock uint64,
	knownRaffleAddrs []common.Address,
) ([]BlockEvents, []common.Address, error) {
	factoryLogs, err := f.rpc.GetLogs(ctx, fromBlock, toBlock, []common.Address{f.factoryAddress}, f.factoryTopics)
	if err != nil {
		return nil, nil, err
	}

	allRaffleAddrs, newRaffleAddrs, err := f.discoverRaffleAddresses(factoryLogs, knownRaffleAddrs)
	if err != nil {
		return nil, nil, err
	}
	if len(newRaffleAddrs) > 0 {
		f.log.Info().
			Int("count", len(newRaffleAddrs)).
			Uint64("from_block", fromBlock).
			Uint64("to_block", toBlock).
			Msg("discovered new raffle addresses in this batch")
	}

	var raffleLogs, providerLogs []types.Log
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if len(allRaffleAddrs) == 0 {
			return nil
		}
		var err error
		raffleLogs, err = f.rpc.GetLogs(egCtx, fromBlock, toBlock, allRaffleAddrs, f.raffleTopics)
		return err
	})
	eg.Go(func() error {
		if f.providerAddr == nil {
			return nil
		}
		var err error
		providerLogs, err = f.rpc.GetLogs(egCtx, fromBlock, toBlock, []common.Address{*f.providerAddr}, f.providerTopics)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	decoded := make([]decodedLog, 0, len(factoryLogs)+len(raffleLogs)+len(providerLogs))
	decoded, err = f.decodeAll(decoded, codec.Factory, factoryLogs)
	if err != nil {
		return nil, nil, err
	}
	decoded, err = f.decodeAll(decoded, codec.Raffle, raffleLogs)
	if err != nil {
		return nil, nil, err
	}
	decoded, err = f.decodeAll(decoded, codec.Provider, providerLogs)
	if err != nil {
		return nil, nil, err
	}

	decoded = dedupeLogs(decoded)
	sort.SliceStable(decoded, func(i, j int) bool {
		if decoded[i].raw.BlockNumber != decoded[j].raw.BlockNumber {
			return decoded[i].raw.BlockNumber < decoded[j].raw.BlockNumber
		}
		return decoded[i].raw.Index < decoded[j].raw.Index
	})

	return packEvents(decoded), allRaffleAddrs, nil
}

// discoverRaffleAddresses decodes factory logs just enough to pull out
// RaffleCreated addresses, merging them with the known set. Decode errors
// here are fatal (a RaffleCreated signature that doesn't unpack means the
// factory ABI is wrong), exactly as a malformed known-signature event is
// everywhere else.
func (f *Feed) discoverRaffleAddresses(
	factoryLogs []types.Log,
	knownRaffleAddrs []common.Address,
) ([]common.Address, []common.Address, error) {
	seen := make(map[common.Address]bool, len(knownRaffleAddrs))
	all := make([]common.Address, 0, len(knownRaffleAddrs))
	for _, a := range knownRaffleAddrs {
		if !seen[a] {
			seen[a] = true
			all = append(all, a)
		}
	}

	var newAddrs []common.Address
	for _, l := range factoryLogs {
		ev, err := f.decoder.Decode(codec.Factory, l)
		if err != nil {
			var unk *codec.UnknownTopicError
			if isUnknownTopic(err, &unk) {
				continue
			}
			return nil, nil, fmt.Errorf("decoding factory log for raffle discovery: %w", err)
		}
		created, ok := ev.(codec.FactoryRaffleCreated)
		if !ok {
			continue
		}
		if !seen[created.Raffle] {
			seen[created.Raffle] = true
			all = append(all, created.Raffle)
			newAddrs = append(newAddrs, created.Raffle)
		}
	}
	return all, newAddrs, nil
}

func (f *Feed) decodeAll(into []decodedLog, kind codec.ContractKind, logs []types.Log) ([]decodedLog, error) {
	for _, l := range logs {
		ev, err := f.decoder.Decode(kind, l)
		if err != nil {
			var unk *codec.UnknownTopicError
			if isUnknownTopic(err, &unk) {
				f.log.Warn().
					Str("contract_kind", string(kind)).
					Str("topic0", l.Topics[0].Hex()).
					Str("tx_hash", l.TxHash.Hex()).
					Msg("unknown event signature for subscribed contract, persisting raw log only")
				into = append(into, decodedLog{raw: l, event: nil})
				continue
			}
			return nil, fmt.Errorf("decoding %s log (tx %s, index %d): %w", kind, l.TxHash.Hex(), l.Index, err)
		}
		into = append(into, decodedLog{raw: l, event: ev})
	}
	return into, nil
}

func isUnknownTopic(err error, target **codec.UnknownTopicError) bool {
	if u, ok := err.(*codec.UnknownTopicError); ok {
		*target = u
		return true
	}
	return false
}

// dedupeLogs removes logs sharing the same (block_number, tx_hash, log_index)
// locator, a defensive measure against RPC providers that return duplicate
// rows for a range, mirroring the teacher's removeDuplicateLogs.
func dedupeLogs(in []decodedLog) []decodedLog {
	type locator struct {
		block uint64
		tx    common.Hash
		index uint
	}
	seen := make(map[locator]bool, len(in))
	out := make([]decodedLog, 0, len(in))
	for _, dl := range in {
		key := locator{block: dl.raw.BlockNumber, tx: dl.raw.TxHash, index: dl.raw.Index}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, dl)
	}
	return out
}

// packEvents groups a flat, locator-ordered slice of decoded logs into
// per-block, per-transaction event groups, mirroring the teacher's
// packEvents.
func packEvents(logs []decodedLog) []BlockEvents {
	if len(logs) == 0 {
		return nil
	}

	var ret []BlockEvents
	var cur *BlockEvents
	for _, dl := range logs {
		if cur == nil || cur.BlockNumber != dl.raw.BlockNumber {
			ret = append(ret, BlockEvents{BlockNumber: dl.raw.BlockNumber})
			cur = &ret[len(ret)-1]
		}
		if len(cur.Txns) == 0 || cur.Txns[len(cur.Txns)-1].TxHash != dl.raw.TxHash {
			cur.Txns = append(cur.Txns, TxnEvents{TxHash: dl.raw.TxHash})
		}
		last := &cur.Txns[len(cur.Txns)-1]
		last.Logs = append(last.Logs, LogEvent{Raw: dl.raw, Event: dl.event})
	}
	return ret
}
