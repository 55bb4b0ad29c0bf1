package indexer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"
	"go.uber.org/atomic"

	"github.com/raffleprotocol/raffle-indexer/internal/metrics"
)

// instruments holds the indexer daemon's OpenTelemetry instruments: an
// observable gauge for the live chain head, and counters for decoded events
// and transient tick failures.
type instruments struct {
	chainHead         *atomic.Int64
	eventsDecoded     instrument.Int64Counter
	transientFailures instrument.Int64Counter
	duplicateNoops    instrument.Int64Counter
}

func newInstruments() (*instruments, error) {
	meter := global.MeterProvider().Meter("raffleindexer")
	m := &instruments{chainHead: atomic.NewInt64(0)}

	chainHeadGauge, err := meter.Int64ObservableGauge("raffleindexer.indexer.chain.head")
	if err != nil {
		return nil, fmt.Errorf("creating chain head gauge: %s", err)
	}
	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(chainHeadGauge, m.chainHead.Load(), metrics.BaseAttrs...)
			return nil
		},
		[]instrument.Asynchronous{chainHeadGauge}...,
	)
	if err != nil {
		return nil, fmt.Errorf("registering chain head callback: %s", err)
	}

	m.eventsDecoded, err = meter.Int64Counter("raffleindexer.indexer.events.decoded")
	if err != nil {
		return nil, fmt.Errorf("creating events decoded counter: %s", err)
	}
	m.transientFailures, err = meter.Int64Counter("raffleindexer.indexer.tick.transient_failures")
	if err != nil {
		return nil, fmt.Errorf("creating transient failures counter: %s", err)
	}
	m.duplicateNoops, err = meter.Int64Counter("raffleindexer.indexer.events.duplicate_noops")
	if err != nil {
		return nil, fmt.Errorf("creating duplicate no-ops counter: %s", err)
	}

	return m, nil
}
