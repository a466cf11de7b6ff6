// Package progression awards experience, levels and one-shot achievements.
package progression

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/model"
)

const (
	// XPPerTrade is awarded for every completed trade.
	XPPerTrade = 10
	// MaxProfitBonus caps the extra XP from a profitable sell.
	MaxProfitBonus = 100
	// StartingLevel is the level of a new player.
	StartingLevel = 1
)

var profitPerBonusXP = decimal.NewFromInt(10)

// XPForLevel is the experience needed to advance into level.
func XPForLevel(level int) int {
	return level * 100
}

// XPToNext is how much more experience p needs for the next level.
func XPToNext(p *model.Player) int {
	return XPForLevel(p.Level+1) - p.XP
}

// AddXP credits amount to the player and applies as many level-ups as the
// balance allows, carrying the remainder. It returns the number of levels gained.
func AddXP(p *model.Player, amount int) int {
	if amount <= 0 {
		return 0
	}
	if p.Level < StartingLevel {
		p.Level = StartingLevel
	}
	p.XP += amount
	gained := 0
	for p.XP >= XPForLevel(p.Level+1) {
		p.XP -= XPForLevel(p.Level + 1)
		p.Level++
		gained++
	}
	return gained
}

// TradeXP is the experience earned by one trade: a flat amount plus, for a
// profitable sell, one point per 10 of profit up to MaxProfitBonus.
func TradeXP(t model.Trade) int {
	xp := XPPerTrade
	if t.Action == model.ActionSell && t.Profit != nil && t.Profit.IsPositive() {
		bonus := t.Profit.Div(profitPerBonusXP).Floor().IntPart()
		if bonus > MaxProfitBonus {
			bonus = MaxProfitBonus
		}
		xp += int(bonus)
	}
	return xp
}

// Facts are the derived values achievement rules need beyond the player itself.
type Facts struct {
	TotalProfit decimal.Decimal
	Rank        int
}

type rule struct {
	model.Achievement
	met func(p *model.Player, f Facts) bool
}

var (
	profitTarget  = decimal.NewFromInt(500)
	balanceTarget = decimal.NewFromInt(15000)
)

var rules = []rule{
	{
		Achievement: model.Achievement{ID: "first_trade", Name: "First Trade", Description: "Make your first trade", XP: 50},
		met:         func(p *model.Player, _ Facts) bool { return len(p.Trades) >= 1 },
	},
	{
		Achievement: model.Achievement{ID: "profit_500", Name: "Profit Maker", Description: "Make $500 profit", XP: 100},
		met:         func(_ *model.Player, f Facts) bool { return f.TotalProfit.GreaterThanOrEqual(profitTarget) },
	},
	{
		Achievement: model.Achievement{ID: "balance_15000", Name: "Balance Master", Description: "Reach $15,000 balance", XP: 150},
		met:         func(p *model.Player, _ Facts) bool { return p.Balance.GreaterThanOrEqual(balanceTarget) },
	},
	{
		Achievement: model.Achievement{ID: "trader_10", Name: "Active Trader", Description: "Make 10 trades", XP: 200},
		met:         func(p *model.Player, _ Facts) bool { return len(p.Trades) >= 10 },
	},
	{
		Achievement: model.Achievement{ID: "diversify_5", Name: "Diversifier", Description: "Own 5 different stocks", XP: 250},
		met:         func(p *model.Player, _ Facts) bool { return len(p.Portfolio) >= 5 },
	},
	{
		Achievement: model.Achievement{ID: "top_3", Name: "Top Ranker", Description: "Reach top 3 in leaderboard", XP: 500},
		met:         func(_ *model.Player, f Facts) bool { return f.Rank >= 1 && f.Rank <= 3 },
	},
}

// Catalog returns a fresh, unearned copy of every achievement.
func Catalog() []model.Achievement {
	out := make([]model.Achievement, len(rules))
	for i, r := range rules {
		out[i] = r.Achievement
	}
	return out
}

// Reconcile aligns a stored achievement list with the catalog: unknown IDs
// are dropped, missing ones are added unearned, earned state is kept.
func Reconcile(stored []model.Achievement) []model.Achievement {
	earned := make(map[string]model.Achievement, len(stored))
	for _, a := range stored {
		if a.Earned {
			earned[a.ID] = a
		}
	}
	out := Catalog()
	for i, a := range out {
		if e, ok := earned[a.ID]; ok {
			out[i].Earned = true
			out[i].EarnedAt = e.EarnedAt
		}
	}
	return out
}

// Unlock reports one achievement earned by Evaluate.
type Unlock struct {
	Achievement  model.Achievement
	LevelsGained int
}

// Evaluate checks every unearned achievement against p and f, marks the
// ones now satisfied as earned at now, and credits their XP. Already earned
// achievements are never re-awarded.
func Evaluate(p *model.Player, f Facts, now time.Time) []Unlock {
	if len(p.Achievements) == 0 {
		p.Achievements = Catalog()
	}
	var unlocked []Unlock
	for i := range p.Achievements {
		a := &p.Achievements[i]
		if a.Earned {
			continue
		}
		r, ok := find(a.ID)
		if !ok || !r.met(p, f) {
			continue
		}
		ts := now
		a.Earned = true
		a.EarnedAt = &ts
		levels := AddXP(p, a.XP)
		unlocked = append(unlocked, Unlock{Achievement: *a, LevelsGained: levels})
	}
	return unlocked
}

// EarnedCount is the number of achievements p holds.
func EarnedCount(p *model.Player) int {
	n := 0
	for _, a := range p.Achievements {
		if a.Earned {
			n++
		}
	}
	return n
}

func find(id string) (rule, bool) {
	for _, r := range rules {
		if r.ID == id {
			return r, true
		}
	}
	return rule{}, false
}
