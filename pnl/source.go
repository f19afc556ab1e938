package pnl

import (
	"context"

	"github.com/Scotty108/cascadian/types"
)

// EventSource supplies the raw event stream for a wallet. The OLAP client
// implements it against the fact tables; tests use an in-memory source.
type EventSource interface {
	// FillsForWallet returns the wallet's order-book fills.
	FillsForWallet(ctx context.Context, wallet string) ([]types.TradeEvent, error)

	// ConditionEvents returns split / merge / redemption events attributed
	// directly to the wallet or sharing a transaction hash with any of the
	// given fills (proxy attribution).
	ConditionEvents(ctx context.Context, wallet string, txHashes []string) ([]types.TradeEvent, error)

	// ProxyTransfers returns ERC-1155 transfers into the wallet from known
	// proxy contracts. Each is a token acquisition at the split price.
	ProxyTransfers(ctx context.Context, wallet string) ([]types.TradeEvent, error)

	// Resolutions returns settled payouts for the given conditions.
	// Conditions with unparseable or deleted payouts are simply absent.
	Resolutions(ctx context.Context, conditionIDs []string) (map[string]types.Resolution, error)

	// OutcomeCounts returns the outcome arity per condition from the
	// token-to-condition map. Missing conditions default to binary.
	OutcomeCounts(ctx context.Context, conditionIDs []string) (map[string]int, error)
}
