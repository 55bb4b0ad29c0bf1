package codec

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestMarshalEventJSONOmitsRaw(t *testing.T) {
	abis := testABIs(t)
	d := NewDecoder(abis)

	l := buildLog(t, abis.Raffle, "RaffleClosed", big.NewInt(7), big.NewInt(100), big.NewInt(5_000000000000000000))
	ev, err := d.Decode(Raffle, l)
	require.NoError(t, err)

	out, err := MarshalEventJSON(ev)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &m))
	_, hasRaw := m["Raw"]
	require.False(t, hasRaw, "Raw field must not appear in marshaled event JSON")

	closed := ev.(RaffleClosed)
	require.Equal(t, big.NewInt(7), closed.RaffleId)
}

func TestMarshalEventJSONWithBytesField(t *testing.T) {
	abis := testABIs(t)
	d := NewDecoder(abis)

	raffleAddr := common.HexToAddress("0x5555555555555555555555555555555555555555")
	l := buildLog(t, abis.Provider, "RandomnessDelivered", big.NewInt(1), big.NewInt(999), []byte{0xde, 0xad}, raffleAddr)
	ev, err := d.Decode(Provider, l)
	require.NoError(t, err)

	out, err := MarshalEventJSON(ev)
	require.NoError(t, err)
	require.Contains(t, string(out), "Randomness")
}
