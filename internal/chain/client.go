// Package chain provides the indexer's narrow, timeout-bounded view of an
// EVM JSON-RPC endpoint.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the set of RPC operations the indexer needs. It is satisfied by
// *ethclient.Client against a real node, and by a fake in tests.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// RecoverableError wraps a transient RPC failure (timeout, transport,
// rate-limit) that the caller should retry on the next tick unchanged.
type RecoverableError struct {
	Op  string
	Err error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *RecoverableError) Unwrap() error { return e.Err }

// Dial connects to an HTTP(S) JSON-RPC endpoint.
func Dial(rpcURL string) (Client, error) {
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc endpoint: %s", err)
	}
	return c, nil
}

// RPC wraps a Client with the indexer's timeout policy: every call gets an
// independent, configurable deadline, and every failure of the underlying
// call is returned wrapped in a *RecoverableError.
type RPC struct {
	client  Client
	timeout time.Duration
}

// New returns an RPC wrapping client with the given per-call timeout.
func New(client Client, timeout time.Duration) *RPC {
	return &RPC{client: client, timeout: timeout}
}

// ChainID returns the node's reported chain id. Called once at startup; a
// mismatch against the configured chain id is fatal (checked by the caller).
func (r *RPC) ChainID(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	id, err := r.client.ChainID(ctx)
	if err != nil {
		return 0, &RecoverableError{Op: "chain_id", Err: err}
	}
	return id.Uint64(), nil
}

// LatestBlock returns the current head block number.
func (r *RPC) LatestBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	h, err := r.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, &RecoverableError{Op: "latest_block", Err: err}
	}
	return h.Number.Uint64(), nil
}

// GetLogs fetches logs for [fromBlock, toBlock] filtered to the given
// contract addresses and, when non-empty, restricted to topic0 values in
// topics.
func (r *RPC) GetLogs(
	ctx context.Context,
	fromBlock, toBlock uint64,
	addresses []common.Address,
	topics []common.Hash,
) ([]types.Log, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topics) > 0 {
		query.Topics = [][]common.Hash{topics}
	}

	logs, err := r.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, &RecoverableError{Op: "get_logs", Err: err}
	}
	return logs, nil
}
