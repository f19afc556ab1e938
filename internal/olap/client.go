// Package olap is the read-only client for the columnar fact tables the PnL
// engine and leaderboard pipeline consume, plus the single write path: the
// atomic leaderboard table publish.
//
// Transient query failures are retried once; on repeated failure the error
// surfaces and callers treat the result as "no data".
package olap

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Scotty108/cascadian/leaderboard"
	"github.com/Scotty108/cascadian/types"
)

// LeaderboardTable is the published leaderboard relation; the refresh builds
// LeaderboardTable+"_new" and renames it into place.
const LeaderboardTable = "wallet_leaderboard"

// Client wraps the OLAP connection.
type Client struct {
	db *sql.DB
}

// Open connects using the given DSN, falling back to OLAP_DSN.
func Open(dsn string) (*Client, error) {
	if dsn == "" {
		dsn = os.Getenv("OLAP_DSN")
	}
	if dsn == "" {
		return nil, fmt.Errorf("olap: no DSN configured")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("olap: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("olap: ping: %w", err)
	}
	log.Info().Msg("💾 OLAP store connected")
	return &Client{db: db}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// queryRetry runs fn, retrying once on failure.
func queryRetry(ctx context.Context, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		log.Debug().Err(err).Msg("OLAP query failed, retrying once")
		return fn(ctx)
	}
	return nil
}

const eventColumns = `
	e.event_id, e.wallet_address, e.tx_hash, e.block_number, e.timestamp,
	COALESCE(NULLIF(e.condition_id, ''), m.condition_id, ''),
	COALESCE(e.outcome_index, m.outcome_index, -1),
	e.token_id, e.side, e.role, e.tokens, e.usdc, e.source_type`

const eventFrom = `
	FROM trade_events e
	LEFT JOIN token_condition_map m ON m.token_id = e.token_id`

func (c *Client) scanEvents(rows *sql.Rows) ([]types.TradeEvent, error) {
	defer rows.Close()
	out := make([]types.TradeEvent, 0)
	for rows.Next() {
		var ev types.TradeEvent
		var side, role, source string
		if err := rows.Scan(
			&ev.EventID, &ev.WalletAddress, &ev.TxHash, &ev.BlockNumber, &ev.Timestamp,
			&ev.ConditionID, &ev.OutcomeIndex, &ev.TokenID,
			&side, &role, &ev.Tokens, &ev.USDC, &source,
		); err != nil {
			return nil, err
		}
		ev.Side = types.Side(strings.ToLower(side))
		ev.Role = types.Role(strings.ToLower(role))
		ev.SourceType = types.SourceType(source)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// FillsForWallet returns the wallet's order-book fills, deduplicated by
// event id.
func (c *Client) FillsForWallet(ctx context.Context, wallet string) ([]types.TradeEvent, error) {
	var out []types.TradeEvent
	err := queryRetry(ctx, func(ctx context.Context) error {
		rows, err := c.db.QueryContext(ctx, `
			SELECT DISTINCT ON (e.event_id)`+eventColumns+eventFrom+`
			WHERE lower(e.wallet_address) = $1 AND e.source_type = 'CLOB'
			ORDER BY e.event_id`,
			types.NormalizeWallet(wallet))
		if err != nil {
			return err
		}
		out, err = c.scanEvents(rows)
		return err
	})
	return out, err
}

// ConditionEvents returns splits, merges and redemptions attributed to the
// wallet directly or via a shared transaction hash (proxy attribution).
func (c *Client) ConditionEvents(ctx context.Context, wallet string, txHashes []string) ([]types.TradeEvent, error) {
	var out []types.TradeEvent
	err := queryRetry(ctx, func(ctx context.Context) error {
		rows, err := c.db.QueryContext(ctx, `
			SELECT DISTINCT ON (e.event_id)`+eventColumns+eventFrom+`
			WHERE e.source_type IN ('PositionSplit', 'PositionsMerge', 'PayoutRedemption')
			  AND (lower(e.wallet_address) = $1 OR lower(e.tx_hash) = ANY($2))
			ORDER BY e.event_id`,
			types.NormalizeWallet(wallet), pq.Array(txHashes))
		if err != nil {
			return err
		}
		out, err = c.scanEvents(rows)
		return err
	})
	return out, err
}

// ProxyTransfers returns ERC-1155 transfers into the wallet from known
// proxy contracts.
func (c *Client) ProxyTransfers(ctx context.Context, wallet string) ([]types.TradeEvent, error) {
	var out []types.TradeEvent
	err := queryRetry(ctx, func(ctx context.Context) error {
		rows, err := c.db.QueryContext(ctx, `
			SELECT DISTINCT ON (e.event_id)`+eventColumns+eventFrom+`
			WHERE lower(e.wallet_address) = $1 AND e.source_type = 'ERC1155Transfer'
			ORDER BY e.event_id`,
			types.NormalizeWallet(wallet))
		if err != nil {
			return err
		}
		out, err = c.scanEvents(rows)
		return err
	})
	return out, err
}

// Resolutions returns settled, undeleted payout vectors for the given
// conditions. Payout vectors that fail to parse are skipped with a warning,
// never aborting the caller.
func (c *Client) Resolutions(ctx context.Context, conditionIDs []string) (map[string]types.Resolution, error) {
	out := make(map[string]types.Resolution)
	if len(conditionIDs) == 0 {
		return out, nil
	}
	err := queryRetry(ctx, func(ctx context.Context) error {
		rows, err := c.db.QueryContext(ctx, `
			SELECT condition_id, payout_numerators, resolved_at
			FROM condition_resolutions
			WHERE condition_id = ANY($1) AND NOT is_deleted`,
			pq.Array(conditionIDs))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var conditionID, rawPayouts string
			var resolvedAt time.Time
			if err := rows.Scan(&conditionID, &rawPayouts, &resolvedAt); err != nil {
				return err
			}
			payouts, err := parsePayouts(rawPayouts)
			if err != nil {
				log.Warn().Str("condition", conditionID).Err(err).Msg("Skipping unparseable resolution")
				continue
			}
			out[conditionID] = types.Resolution{
				ConditionID: conditionID,
				Payouts:     payouts,
				ResolvedAt:  resolvedAt,
			}
		}
		return rows.Err()
	})
	return out, err
}

// parsePayouts decodes a JSON payout vector and normalises it to sum to 1.
func parsePayouts(raw string) ([]decimal.Decimal, error) {
	var nums []json.Number
	if err := json.Unmarshal([]byte(raw), &nums); err != nil {
		return nil, fmt.Errorf("parse payouts %q: %w", raw, err)
	}
	if len(nums) == 0 {
		return nil, fmt.Errorf("empty payout vector")
	}
	payouts := make([]decimal.Decimal, len(nums))
	sum := decimal.Zero
	for i, n := range nums {
		d, err := decimal.NewFromString(n.String())
		if err != nil || d.Sign() < 0 {
			return nil, fmt.Errorf("bad payout numerator %q", n)
		}
		payouts[i] = d
		sum = sum.Add(d)
	}
	if sum.Sign() <= 0 {
		return nil, fmt.Errorf("payout vector sums to zero")
	}
	for i := range payouts {
		payouts[i] = payouts[i].Div(sum)
	}
	return payouts, nil
}

// OutcomeCounts returns the outcome arity per condition from the
// token-to-condition map.
func (c *Client) OutcomeCounts(ctx context.Context, conditionIDs []string) (map[string]int, error) {
	out := make(map[string]int)
	if len(conditionIDs) == 0 {
		return out, nil
	}
	err := queryRetry(ctx, func(ctx context.Context) error {
		rows, err := c.db.QueryContext(ctx, `
			SELECT condition_id, COUNT(DISTINCT outcome_index)
			FROM token_condition_map
			WHERE condition_id = ANY($1)
			GROUP BY condition_id`,
			pq.Array(conditionIDs))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var conditionID string
			var count int
			if err := rows.Scan(&conditionID, &count); err != nil {
				return err
			}
			out[conditionID] = count
		}
		return rows.Err()
	})
	return out, err
}

// LoadFactRows loads the leaderboard fact table.
func (c *Client) LoadFactRows(ctx context.Context) ([]leaderboard.TradeRow, error) {
	var out []leaderboard.TradeRow
	err := queryRetry(ctx, func(ctx context.Context) error {
		rows, err := c.db.QueryContext(ctx, `
			SELECT wallet, condition_id, entry_time, COALESCE(resolved_at, 'epoch'::timestamptz),
			       is_closed, cost_usd, pnl_usd
			FROM trade_facts`)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var r leaderboard.TradeRow
			var resolvedAt time.Time
			if err := rows.Scan(&r.Wallet, &r.ConditionID, &r.EntryTime, &resolvedAt,
				&r.IsClosed, &r.CostUsd, &r.PnlUsd); err != nil {
				return err
			}
			if resolvedAt.Unix() > 0 {
				r.ResolvedAt = resolvedAt
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// PublishLeaderboard builds the new leaderboard under a _new suffix and
// swaps it in with the three-step rename. The rename is the single atomic
// point at which readers see the new board.
func (c *Client) PublishLeaderboard(ctx context.Context, version string, entries []leaderboard.Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("publish leaderboard: begin: %w", err)
	}
	defer tx.Rollback()

	newTable := LeaderboardTable + "_new"
	oldTable := LeaderboardTable + "_old"

	stmts := []string{
		`DROP TABLE IF EXISTS ` + newTable,
		`CREATE TABLE ` + newTable + ` (
			wallet TEXT PRIMARY KEY,
			rank INT NOT NULL,
			version TEXT NOT NULL,
			active_days INT NOT NULL,
			markets_traded INT NOT NULL,
			resolved_trades INT NOT NULL,
			lifetime JSONB NOT NULL,
			last_14d JSONB NOT NULL,
			last_7d JSONB NOT NULL,
			refreshed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("publish leaderboard: %w", err)
		}
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO `+newTable+`
			(wallet, rank, version, active_days, markets_traded, resolved_trades, lifetime, last_14d, last_7d)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return fmt.Errorf("publish leaderboard: prepare: %w", err)
	}
	defer insert.Close()

	for _, e := range entries {
		lifetime, _ := json.Marshal(e.Lifetime)
		last14, _ := json.Marshal(e.Last14)
		last7, _ := json.Marshal(e.Last7)
		if _, err := insert.ExecContext(ctx, e.Wallet, e.Rank, version,
			e.ActiveDays, e.MarketsTraded, e.ResolvedTrades,
			lifetime, last14, last7); err != nil {
			return fmt.Errorf("publish leaderboard: insert %s: %w", e.Wallet, err)
		}
	}

	swap := []string{
		`DROP TABLE IF EXISTS ` + oldTable,
		`ALTER TABLE IF EXISTS ` + LeaderboardTable + ` RENAME TO ` + oldTable,
		`ALTER TABLE ` + newTable + ` RENAME TO ` + LeaderboardTable,
		`DROP TABLE IF EXISTS ` + oldTable,
	}
	for _, stmt := range swap {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("publish leaderboard: swap: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("publish leaderboard: commit: %w", err)
	}
	log.Info().Int("wallets", len(entries)).Str("version", version).Msg("Leaderboard published")
	return nil
}
