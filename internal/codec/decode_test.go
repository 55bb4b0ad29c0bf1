package codec

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

const factoryABIJSON = `[
	{"type":"event","name":"RaffleCreated","inputs":[
		{"name":"raffleId","type":"uint256"},
		{"name":"raffle","type":"address"},
		{"name":"creator","type":"address"},
		{"name":"endTime","type":"uint256"},
		{"name":"ticketPrice","type":"uint256"},
		{"name":"maxTickets","type":"uint256"},
		{"name":"feeBps","type":"uint256"},
		{"name":"feeRecipient","type":"address"}
	]}
]`

const raffleABIJSON = `[
	{"type":"event","name":"TicketsBought","inputs":[
		{"name":"raffleId","type":"uint256"},
		{"name":"buyer","type":"address"},
		{"name":"startIndex","type":"uint256"},
		{"name":"endIndex","type":"uint256"},
		{"name":"count","type":"uint256"},
		{"name":"amountPaid","type":"uint256"}
	]},
	{"type":"event","name":"RaffleClosed","inputs":[
		{"name":"raffleId","type":"uint256"},
		{"name":"totalTickets","type":"uint256"},
		{"name":"pot","type":"uint256"}
	]},
	{"type":"event","name":"RandomnessRequested","inputs":[
		{"name":"raffleId","type":"uint256"},
		{"name":"requestId","type":"uint256"}
	]},
	{"type":"event","name":"RandomnessFulfilled","inputs":[
		{"name":"raffleId","type":"uint256"},
		{"name":"requestId","type":"uint256"},
		{"name":"randomness","type":"uint256"}
	]},
	{"type":"event","name":"WinnerSelected","inputs":[
		{"name":"raffleId","type":"uint256"},
		{"name":"winner","type":"address"},
		{"name":"winningIndex","type":"uint256"},
		{"name":"prizeAmount","type":"uint256"},
		{"name":"feeAmount","type":"uint256"}
	]},
	{"type":"event","name":"PayoutsCompleted","inputs":[
		{"name":"raffleId","type":"uint256"}
	]},
	{"type":"event","name":"RefundClaimed","inputs":[
		{"name":"raffleId","type":"uint256"},
		{"name":"buyer","type":"address"},
		{"name":"ticketCount","type":"uint256"},
		{"name":"amount","type":"uint256"}
	]},
	{"type":"event","name":"RefundsStarted","inputs":[
		{"name":"raffleId","type":"uint256"},
		{"name":"timestamp","type":"uint256"}
	]}
]`

const providerABIJSON = `[
	{"type":"event","name":"RandomnessRequested","inputs":[
		{"name":"requestId","type":"uint256"},
		{"name":"raffleId","type":"uint256"},
		{"name":"raffle","type":"address"}
	]},
	{"type":"event","name":"RandomnessDelivered","inputs":[
		{"name":"requestId","type":"uint256"},
		{"name":"randomness","type":"uint256"},
		{"name":"proof","type":"bytes"},
		{"name":"raffle","type":"address"}
	]}
]`

func testABIs(t *testing.T) *ABIs {
	t.Helper()
	factory, err := abi.JSON(strings.NewReader(factoryABIJSON))
	require.NoError(t, err)
	raffle, err := abi.JSON(strings.NewReader(raffleABIJSON))
	require.NoError(t, err)
	provider, err := abi.JSON(strings.NewReader(providerABIJSON))
	require.NoError(t, err)
	return &ABIs{Factory: factory, Raffle: raffle, Provider: &provider}
}

// buildLog packs args as a fully non-indexed event and attaches the event
// signature as topic0, mirroring how the contracts in this system emit
// (all event fields observed so far are non-indexed data).
func buildLog(t *testing.T, a abi.ABI, eventName string, args ...interface{}) types.Log {
	t.Helper()
	ev, ok := a.Events[eventName]
	require.True(t, ok, "event %s not declared in test abi", eventName)
	data, err := ev.Inputs.Pack(args...)
	require.NoError(t, err)
	return types.Log{
		Topics:      []common.Hash{ev.ID},
		Data:        data,
		BlockNumber: 100,
		TxHash:      common.HexToHash("0xaaaa"),
		Index:       3,
		Address:     common.HexToAddress("0xffff"),
	}
}

func TestDecodeFactoryRaffleCreated(t *testing.T) {
	abis := testABIs(t)
	d := NewDecoder(abis)

	raffleAddr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	creator := common.HexToAddress("0x2222222222222222222222222222222222222222")
	feeRecipient := common.HexToAddress("0x3333333333333333333333333333333333333333")

	l := buildLog(t, abis.Factory, "RaffleCreated",
		big.NewInt(42), raffleAddr, creator,
		big.NewInt(1700000000), big.NewInt(1_000000000000000000),
		big.NewInt(500), big.NewInt(250), feeRecipient,
	)

	ev, err := d.Decode(Factory, l)
	require.NoError(t, err)

	created, ok := ev.(FactoryRaffleCreated)
	require.True(t, ok)
	require.Equal(t, "RaffleCreated", created.EventName())
	require.Equal(t, big.NewInt(42), created.RaffleId)
	require.Equal(t, raffleAddr, created.Raffle)
	require.Equal(t, creator, created.Creator)
	require.Equal(t, feeRecipient, created.FeeRecipient)
	require.Equal(t, l, created.Log())
}

func TestDecodeTicketsBought(t *testing.T) {
	abis := testABIs(t)
	d := NewDecoder(abis)

	buyer := common.HexToAddress("0x4444444444444444444444444444444444444444")
	l := buildLog(t, abis.Raffle, "TicketsBought",
		big.NewInt(42), buyer, big.NewInt(10), big.NewInt(14),
		big.NewInt(5), big.NewInt(5_000000000000000000),
	)

	ev, err := d.Decode(Raffle, l)
	require.NoError(t, err)

	bought, ok := ev.(RaffleTicketsBought)
	require.True(t, ok)
	require.Equal(t, buyer, bought.Buyer)
	require.Equal(t, big.NewInt(10), bought.StartIndex)
	require.Equal(t, big.NewInt(14), bought.EndIndex)
	require.Equal(t, big.NewInt(5), bought.Count)
}

func TestDecodeUnknownTopic(t *testing.T) {
	abis := testABIs(t)
	d := NewDecoder(abis)

	l := types.Log{
		Topics: []common.Hash{common.HexToHash("0xdeadbeef")},
		Data:   nil,
	}
	_, err := d.Decode(Raffle, l)
	require.Error(t, err)

	var unknown *UnknownTopicError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, Raffle, unknown.Kind)
}

func TestDecodeMalformedEvent(t *testing.T) {
	abis := testABIs(t)
	d := NewDecoder(abis)

	ev := abis.Raffle.Events["TicketsBought"]
	l := types.Log{
		Topics: []common.Hash{ev.ID},
		Data:   []byte{0x01, 0x02}, // too short to unpack six uint256/address words
	}
	_, err := d.Decode(Raffle, l)
	require.Error(t, err)

	var malformed *MalformedEventError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, "TicketsBought", malformed.EventName)
}

func TestDecodeProviderWithoutLoadedABI(t *testing.T) {
	abis := testABIs(t)
	abis.Provider = nil
	d := NewDecoder(abis)

	_, err := d.Decode(Provider, types.Log{Topics: []common.Hash{common.HexToHash("0x01")}})
	require.Error(t, err)
}

func TestTopicsCoverage(t *testing.T) {
	abis := testABIs(t)
	d := NewDecoder(abis)

	topics, err := d.Topics(Raffle)
	require.NoError(t, err)
	require.Len(t, topics, len(raffleRegistry))

	topics, err = d.Topics(Provider)
	require.NoError(t, err)
	require.Len(t, topics, len(providerRegistry))

	abis.Provider = nil
	topics, err = d.Topics(Provider)
	require.NoError(t, err)
	require.Nil(t, topics)
}
