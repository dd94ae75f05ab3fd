package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

// Genesis is the initial state of a node: who administers the permission
// registry, which accounts start funded and which capabilities are granted
// up front.
type Genesis struct {
	Admin    string            `yaml:"admin"`
	Balances map[string]string `yaml:"balances"`
	Grants   []Grant           `yaml:"grants"`
}

type Grant struct {
	Identity     string   `yaml:"identity"`
	Capabilities []string `yaml:"capabilities"`
}

// LoadGenesis reads a YAML genesis file.
func LoadGenesis(path string) (Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("read genesis: %w", err)
	}
	var g Genesis
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return Genesis{}, fmt.Errorf("parse genesis %s: %w", path, err)
	}
	return g, nil
}

type genesisState struct {
	admin    common.Address
	balances map[common.Address]*uint256.Int
	grants   map[common.Address][]domain.Capability
}

func (g Genesis) resolve() (genesisState, error) {
	if !common.IsHexAddress(g.Admin) {
		return genesisState{}, fmt.Errorf("genesis admin %q: %w", g.Admin, errInvalidAddress)
	}
	admin := common.HexToAddress(g.Admin)
	if admin == (common.Address{}) {
		return genesisState{}, fmt.Errorf("genesis admin: %w", domain.ErrZeroAddress)
	}

	state := genesisState{
		admin:    admin,
		balances: make(map[common.Address]*uint256.Int, len(g.Balances)),
		grants:   make(map[common.Address][]domain.Capability, len(g.Grants)),
	}
	for addr, amount := range g.Balances {
		if !common.IsHexAddress(addr) {
			return genesisState{}, fmt.Errorf("genesis balance %q: %w", addr, errInvalidAddress)
		}
		value, err := uint256.FromDecimal(amount)
		if err != nil {
			return genesisState{}, fmt.Errorf("genesis balance of %s: %w", addr, err)
		}
		state.balances[common.HexToAddress(addr)] = value
	}
	for _, grant := range g.Grants {
		if !common.IsHexAddress(grant.Identity) {
			return genesisState{}, fmt.Errorf("genesis grant %q: %w", grant.Identity, errInvalidAddress)
		}
		id := common.HexToAddress(grant.Identity)
		for _, name := range grant.Capabilities {
			c, err := domain.ParseCapability(name)
			if err != nil {
				return genesisState{}, fmt.Errorf("genesis grant for %s: %w", id.Hex(), err)
			}
			state.grants[id] = append(state.grants[id], c)
		}
	}
	return state, nil
}

var errInvalidAddress = errors.New("invalid address")
