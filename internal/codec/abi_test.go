package codec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, dir, name, abiJSON string) {
	t.Helper()
	body := `{"contractName":"x","abi":` + abiJSON + `}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoadArtifactsWithProvider(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "factory.json", factoryABIJSON)
	writeArtifact(t, dir, "raffle.json", raffleABIJSON)
	writeArtifact(t, dir, "provider.json", providerABIJSON)

	abis, err := LoadArtifacts(dir)
	require.NoError(t, err)
	require.NotNil(t, abis.Provider)
	require.Contains(t, abis.Factory.Events, "RaffleCreated")
	require.Contains(t, abis.Raffle.Events, "TicketsBought")
	require.Contains(t, abis.Provider.Events, "RandomnessDelivered")
}

func TestLoadArtifactsWithoutProvider(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "factory.json", factoryABIJSON)
	writeArtifact(t, dir, "raffle.json", raffleABIJSON)

	abis, err := LoadArtifacts(dir)
	require.NoError(t, err)
	require.Nil(t, abis.Provider)
}

func TestLoadArtifactsBareArray(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "factory.json"), []byte(factoryABIJSON), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raffle.json"), []byte(raffleABIJSON), 0o600))

	abis, err := LoadArtifacts(dir)
	require.NoError(t, err)
	require.Contains(t, abis.Factory.Events, "RaffleCreated")
}

func TestLoadArtifactsMissingFactory(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadArtifacts(dir)
	require.Error(t, err)
}
