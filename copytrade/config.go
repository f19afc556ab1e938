package copytrade

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/Scotty108/cascadian/monitor"
	"github.com/Scotty108/cascadian/types"
)

// ConsensusMode selects how many watched wallets must agree before a copy
// trade is attempted.
type ConsensusMode string

const (
	ConsensusAny      ConsensusMode = "any"
	ConsensusTwoAgree ConsensusMode = "two_agree"
	ConsensusNOfM     ConsensusMode = "n_of_m"
	ConsensusAll      ConsensusMode = "all"
)

// Config is the engine's immutable configuration.
type Config struct {
	// Wallets is the watch list. Entries must be 0x-prefixed hex addresses;
	// they are lowercased and deduplicated at engine construction.
	Wallets []string

	ConsensusMode ConsensusMode
	NRequired     int // used iff ConsensusMode == n_of_m

	MinSourceNotionalUsd decimal.Decimal // per-event filter
	MaxCopyPerTradeUsd   decimal.Decimal // per-execution cap

	DryRun        bool // selects the execution adapter
	EnableLogging bool // persist non-executing decisions to the log store

	// ConditionAllowList restricts processing to these condition ids when
	// non-empty.
	ConditionAllowList []string

	// Monitor supplies the default exit-rule percentages.
	Monitor monitor.Config
}

// canonicalWallets validates, lowercases and dedupes the watch list.
func (c *Config) canonicalWallets() ([]string, error) {
	if len(c.Wallets) == 0 {
		return nil, fmt.Errorf("copytrade: watch list is empty")
	}
	seen := make(map[string]bool, len(c.Wallets))
	out := make([]string, 0, len(c.Wallets))
	for _, w := range c.Wallets {
		norm := types.NormalizeWallet(w)
		if !common.IsHexAddress(norm) {
			return nil, fmt.Errorf("copytrade: invalid wallet address %q", w)
		}
		if seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out, nil
}

// requiredCount maps the consensus mode to the number of distinct wallets
// that must bet the same way before the trigger fires.
func (c *Config) requiredCount(walletCount int) int {
	switch c.ConsensusMode {
	case ConsensusAny:
		return 1
	case ConsensusTwoAgree:
		return 2
	case ConsensusNOfM:
		if c.NRequired > 0 {
			return c.NRequired
		}
		return 1
	case ConsensusAll:
		return walletCount
	default:
		return 1
	}
}
