package codec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// artifact mirrors the subset of a Hardhat/Foundry build artifact this
// loader cares about: the contract's ABI.
type artifact struct {
	ABI json.RawMessage `json:"abi"`
}

// loadABI reads a single {"abi": [...]}-shaped JSON artifact file and parses
// its ABI. Artifacts may also be a bare ABI array, which is accepted as a
// fallback for hand-authored fixtures.
func loadABI(path string) (abi.ABI, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path is operator-configured, not user input
	if err != nil {
		return abi.ABI{}, fmt.Errorf("reading artifact %s: %s", path, err)
	}

	var body []byte
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		body = raw
	} else {
		var a artifact
		if err := json.Unmarshal(raw, &a); err != nil {
			return abi.ABI{}, fmt.Errorf("parsing artifact %s: %s", path, err)
		}
		body = a.ABI
	}

	parsed, err := abi.JSON(strings.NewReader(string(body)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parsing abi in %s: %s", path, err)
	}
	return parsed, nil
}

// ABIs holds the decoded ABI for each contract kind the indexer knows about.
// The provider ABI is optional: its absence simply disables the provider
// filter and its two event types, it does not fail startup.
type ABIs struct {
	Factory  abi.ABI
	Raffle   abi.ABI
	Provider *abi.ABI
}

// LoadArtifacts loads ABI metadata once at startup from a well-known
// artifact directory. It expects "factory.json" and "raffle.json" to exist;
// "provider.json" is optional.
func LoadArtifacts(dir string) (*ABIs, error) {
	factory, err := loadABI(filepath.Join(dir, "factory.json"))
	if err != nil {
		return nil, fmt.Errorf("loading factory artifact: %s", err)
	}
	raffle, err := loadABI(filepath.Join(dir, "raffle.json"))
	if err != nil {
		return nil, fmt.Errorf("loading raffle artifact: %s", err)
	}

	abis := &ABIs{Factory: factory, Raffle: raffle}

	providerPath := filepath.Join(dir, "provider.json")
	if _, err := os.Stat(providerPath); err == nil {
		provider, err := loadABI(providerPath)
		if err != nil {
			return nil, fmt.Errorf("loading provider artifact: %s", err)
		}
		abis.Provider = &provider
	}

	return abis, nil
}
