// Package leaderboard ranks the player against a fixed field of synthetic
// competitors by portfolio value.
package leaderboard

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/model"
)

type competitor struct {
	id, name      string
	value, profit int64
	trades, level int
}

var competitors = []competitor{
	{"1", "WallStreetWolf", 12500, 2500, 15, 5},
	{"2", "StockGuru", 9800, -200, 8, 3},
	{"3", "BullMarket", 11000, 1000, 12, 4},
	{"4", "TraderPro", 9500, -500, 5, 2},
}

// Seed builds the initial board: the four competitors plus the player at
// the starting balance, ranked.
func Seed(playerID, playerName string, startingBalance decimal.Decimal) []model.LeaderboardEntry {
	entries := make([]model.LeaderboardEntry, 0, len(competitors)+1)
	for _, c := range competitors {
		entries = append(entries, model.LeaderboardEntry{
			ID:             c.id,
			Name:           c.name,
			PortfolioValue: decimal.NewFromInt(c.value),
			Profit:         decimal.NewFromInt(c.profit),
			Trades:         c.trades,
			Level:          c.level,
		})
	}
	entries = append(entries, model.LeaderboardEntry{
		ID:             playerID,
		Name:           playerName,
		PortfolioValue: startingBalance,
		Profit:         decimal.Zero,
		Level:          1,
		IsPlayer:       true,
	})
	Recompute(entries)
	return entries
}

// Recompute sorts entries by portfolio value, highest first, keeping the
// existing order among ties, and assigns rank = position + 1.
func Recompute(entries []model.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PortfolioValue.GreaterThan(entries[j].PortfolioValue)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// UpdatePlayer refreshes the real player's row from p, re-ranks, and
// returns the player's rank. Competitor rows are left as they are. If the
// board has no player row one is appended.
func UpdatePlayer(entries []model.LeaderboardEntry, p *model.Player, value, profit decimal.Decimal) ([]model.LeaderboardEntry, int) {
	idx := -1
	for i := range entries {
		if entries[i].IsPlayer {
			idx = i
			break
		}
	}
	if idx < 0 {
		entries = append(entries, model.LeaderboardEntry{IsPlayer: true})
		idx = len(entries) - 1
	}

	e := &entries[idx]
	e.ID = p.ID
	e.Name = p.Name
	e.PortfolioValue = value
	e.Profit = profit
	e.Trades = len(p.Trades)
	e.Level = p.Level

	Recompute(entries)
	return entries, PlayerRank(entries)
}

// PlayerRank returns the player's rank, or 0 if the board has no player row.
func PlayerRank(entries []model.LeaderboardEntry) int {
	for _, e := range entries {
		if e.IsPlayer {
			return e.Rank
		}
	}
	return 0
}

// Clone copies a board so it can be handed out of the session lock.
func Clone(entries []model.LeaderboardEntry) []model.LeaderboardEntry {
	return append([]model.LeaderboardEntry(nil), entries...)
}
