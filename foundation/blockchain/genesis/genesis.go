// Package genesis maintains access to the genesis file and the consensus
// parameters it carries.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"
)

// UnitsPerCoin is the number of base units in one coin.
const UnitsPerCoin = 100_000_000

// Genesis represents the genesis file. It is immutable once loaded and is
// shared by every ledger and miner on the node.
type Genesis struct {
	Date             time.Time `json:"date"`
	TimeStamp        int64     `json:"timestamp"`         // Timestamp of the genesis block in unix milliseconds.
	InitialTarget    string    `json:"initial_target"`    // Hex encoded proof of work target for the first blocks.
	SecondsPerBlock  int64     `json:"seconds_per_block"` // Expected time between blocks.
	RetargetInterval uint64    `json:"retarget_interval"` // Number of blocks between target adjustments.
	MaxTargetChange  float64   `json:"max_target_change"` // Largest fraction a single adjustment may move the target.
	MaxBlockSize     int       `json:"max_block_size"`    // Largest serialized block in bytes.
	MaxChainLength   int       `json:"max_chain_length"`  // Blocks retained before the front is pruned.
	InitialReward    uint64    `json:"initial_reward"`    // Coinbase amount for the first halving era.
	HalvingInterval  uint64    `json:"halving_interval"`  // Number of blocks per halving era.
}

// Default returns the consensus parameters of the public network.
func Default() Genesis {
	return Genesis{
		Date:             time.UnixMilli(1764244761572).UTC(),
		TimeStamp:        1764244761572,
		InitialTarget:    "0000cfffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
		SecondsPerBlock:  60,
		RetargetInterval: 40,
		MaxTargetChange:  0.25,
		MaxBlockSize:     5000,
		MaxChainLength:   50,
		InitialReward:    50 * UnitsPerCoin,
		HalvingInterval:  100_000,
	}
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decode genesis: %w", err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the parameters can drive a chain.
func (g Genesis) Validate() error {
	if _, err := g.target(); err != nil {
		return err
	}

	switch {
	case g.SecondsPerBlock <= 0:
		return errors.New("genesis: seconds_per_block must be positive")
	case g.RetargetInterval == 0:
		return errors.New("genesis: retarget_interval must be positive")
	case g.MaxChainLength <= 0:
		return errors.New("genesis: max_chain_length must be positive")
	case g.RetargetInterval > uint64(g.MaxChainLength):
		return errors.New("genesis: retarget_interval must not exceed max_chain_length")
	case g.MaxTargetChange <= 0 || g.MaxTargetChange >= 1:
		return errors.New("genesis: max_target_change must be within (0, 1)")
	case g.MaxBlockSize <= 0:
		return errors.New("genesis: max_block_size must be positive")
	case g.HalvingInterval == 0:
		return errors.New("genesis: halving_interval must be positive")
	}

	return nil
}

// Target returns the initial proof of work target. Validate must have
// accepted the genesis.
func (g Genesis) Target() *big.Int {
	t, err := g.target()
	if err != nil {
		return new(big.Int)
	}
	return t
}

// BlockReward returns the coinbase amount for the block at the index.
func (g Genesis) BlockReward(index uint64) uint64 {
	halvings := index / g.HalvingInterval
	if halvings >= 64 {
		return 0
	}
	return g.InitialReward >> halvings
}

// ExpectedRetargetMillis is the time one retarget interval should take.
func (g Genesis) ExpectedRetargetMillis() int64 {
	return g.SecondsPerBlock * int64(g.RetargetInterval) * 1000
}

func (g Genesis) target() (*big.Int, error) {
	t, ok := new(big.Int).SetString(strings.TrimPrefix(g.InitialTarget, "0x"), 16)
	if !ok || t.Sign() <= 0 {
		return nil, fmt.Errorf("genesis: invalid initial_target %q", g.InitialTarget)
	}

	if t.BitLen() > 256 {
		return nil, errors.New("genesis: initial_target exceeds 256 bits")
	}

	return t, nil
}
