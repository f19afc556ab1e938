// walletpnl computes PnL reports for one or more wallets against the OLAP
// event store and prints them as JSON, one report per line.
//
// Usage:
//
//	walletpnl -dsn postgres://... 0xwallet1 0xwallet2
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Scotty108/cascadian/internal/olap"
	"github.com/Scotty108/cascadian/pnl"
)

func main() {
	dsn := flag.String("dsn", "", "OLAP DSN (default: OLAP_DSN env)")
	override := flag.String("price", "", "price overrides as condition=price, comma-separated")
	concurrency := flag.Int("concurrency", 4, "batch concurrency")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found")
	}

	wallets := flag.Args()
	if len(wallets) == 0 {
		log.Fatal().Msg("Usage: walletpnl [-dsn ...] wallet [wallet...]")
	}

	store, err := olap.Open(*dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("OLAP store unavailable")
	}
	defer store.Close()

	opts := &pnl.Options{}
	if *override != "" {
		opts.PriceOverrides = make(map[string]decimal.Decimal)
		for _, pair := range strings.Split(*override, ",") {
			parts := strings.SplitN(pair, "=", 2)
			if len(parts) != 2 {
				log.Fatal().Str("override", pair).Msg("Bad price override, want condition=price")
			}
			price, err := decimal.NewFromString(parts[1])
			if err != nil {
				log.Fatal().Err(err).Str("override", pair).Msg("Bad price override")
			}
			opts.PriceOverrides[strings.ToLower(parts[0])] = price
		}
	}

	engine := pnl.NewEngine(store)
	results := engine.ComputeBatch(context.Background(), wallets, opts, *concurrency)

	enc := json.NewEncoder(os.Stdout)
	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			enc.Encode(map[string]any{"success": false, "wallet": r.Wallet, "error": r.Err.Error()})
			continue
		}
		enc.Encode(r.Report)
	}
	if failures > 0 {
		log.Warn().Int("failures", failures).Msg("Some wallets failed")
		os.Exit(1)
	}
}
