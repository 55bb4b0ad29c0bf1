package codec

import (
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// UnknownTopicError means topic0 didn't match any event this contract kind
// is known to emit. Per the error taxonomy, this is never fatal: the caller
// logs a warning, persists the raw log, and moves on.
type UnknownTopicError struct {
	Kind   ContractKind
	Topic0 common.Hash
}

func (e *UnknownTopicError) Error() string {
	return fmt.Sprintf("unknown topic0 %s for contract kind %s", e.Topic0, e.Kind)
}

// MalformedEventError means topic0 matched a known signature but the log's
// data/topics couldn't be unpacked into it. This is always fatal: a
// recognized signature that fails to decode indicates either ABI drift or
// node corruption, and it is safer to stop than to project garbage.
type MalformedEventError struct {
	Kind      ContractKind
	EventName string
	Err       error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s.%s payload: %s", e.Kind, e.EventName, e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// registry maps an event name to the concrete Go type used to decode it.
type registry map[string]reflect.Type

var factoryRegistry = registry{
	"RaffleCreated": reflect.TypeOf(FactoryRaffleCreated{}),
}

var raffleRegistry = registry{
	"TicketsBought":       reflect.TypeOf(RaffleTicketsBought{}),
	"RaffleClosed":        reflect.TypeOf(RaffleClosed{}),
	"RandomnessRequested": reflect.TypeOf(RaffleRandomnessRequested{}),
	"RandomnessFulfilled": reflect.TypeOf(RaffleRandomnessFulfilled{}),
	"WinnerSelected":      reflect.TypeOf(RaffleWinnerSelected{}),
	"PayoutsCompleted":    reflect.TypeOf(RafflePayoutsCompleted{}),
	"RefundClaimed":       reflect.TypeOf(RaffleRefundClaimed{}),
	"RefundsStarted":      reflect.TypeOf(RaffleRefundsStarted{}),
}

var providerRegistry = registry{
	"RandomnessRequested": reflect.TypeOf(ProviderRandomnessRequested{}),
	"RandomnessDelivered": reflect.TypeOf(ProviderRandomnessDelivered{}),
}

// Decoder decodes raw logs into typed Events using the ABI metadata loaded
// at startup.
type Decoder struct {
	abis *ABIs
}

// NewDecoder returns a Decoder backed by the given loaded ABIs.
func NewDecoder(abis *ABIs) *Decoder {
	return &Decoder{abis: abis}
}

// Topics returns the topic0 set this decoder recognizes for the given
// contract kind, for use as an eth_getLogs topic filter. Returns nil if the
// kind has no ABI loaded (i.e. the provider).
func (d *Decoder) Topics(kind ContractKind) ([]common.Hash, error) {
	var a *abi.ABI
	var reg registry
	switch kind {
	case Factory:
		a, reg = &d.abis.Factory, factoryRegistry
	case Raffle:
		a, reg = &d.abis.Raffle, raffleRegistry
	case Provider:
		if d.abis.Provider == nil {
			return nil, nil
		}
		a, reg = d.abis.Provider, providerRegistry
	default:
		return nil, fmt.Errorf("unknown contract kind %s", kind)
	}

	topics := make([]common.Hash, 0, len(reg))
	for name := range reg {
		ev, ok := a.Events[name]
		if !ok {
			return nil, fmt.Errorf("event %s not found in %s abi", name, kind)
		}
		topics = append(topics, ev.ID)
	}
	return topics, nil
}

// Decode decodes one raw log as having been emitted by a contract of the
// given kind. Returns *UnknownTopicError for a topic0 this kind doesn't
// recognize, and *MalformedEventError if the signature is known but the
// payload doesn't unpack.
func (d *Decoder) Decode(kind ContractKind, l types.Log) (Event, error) {
	if len(l.Topics) == 0 {
		return nil, &MalformedEventError{Kind: kind, EventName: "<none>", Err: fmt.Errorf("log has no topics")}
	}

	var a *abi.ABI
	var reg registry
	switch kind {
	case Factory:
		a, reg = &d.abis.Factory, factoryRegistry
	case Raffle:
		a, reg = &d.abis.Raffle, raffleRegistry
	case Provider:
		if d.abis.Provider == nil {
			return nil, fmt.Errorf("decoding provider log without a loaded provider abi")
		}
		a, reg = d.abis.Provider, providerRegistry
	default:
		return nil, fmt.Errorf("unknown contract kind %s", kind)
	}

	eventDescr, err := a.EventByID(l.Topics[0])
	if err != nil {
		return nil, &UnknownTopicError{Kind: kind, Topic0: l.Topics[0]}
	}
	typ, ok := reg[eventDescr.Name]
	if !ok {
		return nil, &UnknownTopicError{Kind: kind, Topic0: l.Topics[0]}
	}

	ptr := reflect.New(typ)
	iface := ptr.Interface()

	if len(l.Data) > 0 {
		if err := a.UnpackIntoInterface(iface, eventDescr.Name, l.Data); err != nil {
			return nil, &MalformedEventError{Kind: kind, EventName: eventDescr.Name, Err: err}
		}
	}

	var indexed abi.Arguments
	for _, arg := range eventDescr.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(l.Topics) > 1 {
		if err := abi.ParseTopics(iface, indexed, l.Topics[1:]); err != nil {
			return nil, &MalformedEventError{Kind: kind, EventName: eventDescr.Name, Err: err}
		}
	}

	if setter, ok := iface.(logSetter); ok {
		setter.setRaw(l)
	}

	ev, ok := ptr.Elem().Interface().(Event)
	if !ok {
		return nil, fmt.Errorf("decoded type %s does not implement Event", typ)
	}
	return ev, nil
}
