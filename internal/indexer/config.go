package indexer

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config parameterizes one running Indexer, as spec'd in §6 of the
// original design: batch size, poll interval, start block, and the
// factory/provider addresses the feed subscribes to.
type Config struct {
	FactoryAddress  common.Address
	ProviderAddress *common.Address
	StartBlock      uint64
	BatchSize       uint64
	PollInterval    time.Duration
	// FailedBatchBackoff is the exponential-backoff base applied when a
	// batch fails with a transient error, capped at PollInterval.
	FailedBatchBackoff time.Duration
}
