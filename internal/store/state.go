package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/leaderboard"
	"github.com/stockgame/engine/internal/model"
	"github.com/stockgame/engine/internal/progression"
)

// Logical keys. Each decodes independently so one bad value never costs
// the rest of the state.
const (
	KeySchemaVersion = "meta.schema_version"
	KeyProfile       = "player.profile"
	KeyBalance       = "player.balance"
	KeyPortfolio     = "player.portfolio"
	KeyTrades        = "player.trades"
	KeyXP            = "player.xp"
	KeyLevel         = "player.level"
	KeyAchievements  = "player.achievements"
	KeyQuotes        = "market.quotes"
	KeyHistory       = "market.history"
	KeyLeaderboard   = "leaderboard"
	KeyTheme         = "ui.theme"
)

type profileRecord struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
	Rank     int       `json:"rank"`
}

// Defaults supplies the values used for absent or unreadable keys.
type Defaults struct {
	StartingBalance decimal.Decimal
	PlayerName      string
	NewID           func() string
	Now             func() time.Time
}

// StateStore maps a model.GameState onto the logical keys of a KV.
type StateStore struct {
	kv       KV
	defaults Defaults
	log      *slog.Logger
}

// NewStateStore wraps kv. A nil logger uses slog.Default().
func NewStateStore(kv KV, defaults Defaults, logger *slog.Logger) *StateStore {
	if defaults.NewID == nil {
		defaults.NewID = uuid.NewString
	}
	if defaults.Now == nil {
		defaults.Now = func() time.Time { return time.Now().UTC() }
	}
	if defaults.PlayerName == "" {
		defaults.PlayerName = "Trader"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StateStore{kv: kv, defaults: defaults, log: logger}
}

// LoadResult is a decoded state plus what had to be defaulted.
type LoadResult struct {
	State model.GameState

	// Fresh is true when no player profile was stored.
	Fresh bool

	// Defaulted lists keys that were absent or unreadable.
	Defaulted []string

	// MigratedFrom is the stored schema version when a migration ran, else 0.
	MigratedFrom int
}

// Load reads every key, substituting defaults for anything absent or
// malformed. It never fails; read problems are logged as ErrPersistenceRead.
func (s *StateStore) Load(ctx context.Context) LoadResult {
	var res LoadResult
	st := &res.State

	version, found := s.readVersion(ctx, &res)

	var prof profileRecord
	if !s.read(ctx, KeyProfile, &prof, &res) || prof.ID == "" {
		res.Fresh = true
		prof = profileRecord{
			ID:       s.defaults.NewID(),
			Name:     s.defaults.PlayerName,
			JoinedAt: s.defaults.Now(),
		}
	}
	p := &st.Player
	p.ID, p.Name, p.JoinedAt, p.Rank = prof.ID, prof.Name, prof.JoinedAt, prof.Rank

	if !s.read(ctx, KeyBalance, &p.Balance, &res) {
		p.Balance = s.defaults.StartingBalance
	}
	if !s.read(ctx, KeyPortfolio, &p.Portfolio, &res) || p.Portfolio == nil {
		p.Portfolio = make(map[string]model.Holding)
	}
	for sym, h := range p.Portfolio {
		if h.Shares <= 0 {
			s.log.Warn("dropping empty holding", "symbol", sym, "shares", h.Shares)
			delete(p.Portfolio, sym)
		}
	}
	if !s.read(ctx, KeyTrades, &p.Trades, &res) || p.Trades == nil {
		p.Trades = []model.Trade{}
	}
	if !s.read(ctx, KeyXP, &p.XP, &res) || p.XP < 0 {
		p.XP = 0
	}
	if !s.read(ctx, KeyLevel, &p.Level, &res) || p.Level < progression.StartingLevel {
		p.Level = progression.StartingLevel
	}
	s.read(ctx, KeyAchievements, &p.Achievements, &res)
	p.Achievements = progression.Reconcile(p.Achievements)

	if !s.read(ctx, KeyQuotes, &st.Quotes, &res) || st.Quotes == nil {
		st.Quotes = make(map[string]model.Quote)
	}
	if !s.read(ctx, KeyHistory, &st.History, &res) || st.History == nil {
		st.History = make(map[string][]model.HistoryPoint)
	}
	if !s.read(ctx, KeyLeaderboard, &st.Leaderboard, &res) || len(st.Leaderboard) == 0 {
		st.Leaderboard = leaderboard.Seed(p.ID, p.Name, s.defaults.StartingBalance)
	}
	if !s.read(ctx, KeyTheme, &st.Theme, &res) || (st.Theme != model.ThemeDark && st.Theme != model.ThemeLight) {
		st.Theme = model.ThemeDark
	}

	// Stored state predating the version key is version 1.
	if !found && !res.Fresh {
		version = 1
	}
	if version > 0 && version < model.SchemaVersion {
		s.migrate(st, version)
		res.MigratedFrom = version
	}
	st.Version = model.SchemaVersion
	return res
}

// Save overwrites every key with the given state.
func (s *StateStore) Save(ctx context.Context, st *model.GameState) error {
	p := &st.Player
	parts := map[string]any{
		KeyProfile:      profileRecord{ID: p.ID, Name: p.Name, JoinedAt: p.JoinedAt, Rank: p.Rank},
		KeyBalance:      p.Balance,
		KeyPortfolio:    p.Portfolio,
		KeyTrades:       p.Trades,
		KeyXP:           p.XP,
		KeyLevel:        p.Level,
		KeyAchievements: p.Achievements,
		KeyQuotes:       st.Quotes,
		KeyHistory:      st.History,
		KeyLeaderboard:  st.Leaderboard,
		KeyTheme:        st.Theme,
	}
	values := make(map[string]string, len(parts)+1)
	values[KeySchemaVersion] = strconv.Itoa(model.SchemaVersion)
	for k, v := range parts {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", k, err)
		}
		values[k] = string(data)
	}
	if err := setAll(ctx, s.kv, values); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Reset removes all stored state.
func (s *StateStore) Reset(ctx context.Context) error {
	if err := s.kv.Clear(ctx); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	return nil
}

func (s *StateStore) readVersion(ctx context.Context, res *LoadResult) (int, bool) {
	raw, err := s.kv.Get(ctx, KeySchemaVersion)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("state read failed", "key", KeySchemaVersion, "err", fmt.Errorf("%w: %v", ErrPersistenceRead, err))
		}
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		s.log.Warn("state read failed", "key", KeySchemaVersion, "err", fmt.Errorf("%w: bad version %q", ErrPersistenceRead, raw))
		res.Defaulted = append(res.Defaulted, KeySchemaVersion)
		return 1, true
	}
	return v, true
}

// read decodes key into dst and reports success. Absent keys are recorded
// silently; unreadable ones are logged.
func (s *StateStore) read(ctx context.Context, key string, dst any, res *LoadResult) bool {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		res.Defaulted = append(res.Defaulted, key)
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("state read failed", "key", key, "err", fmt.Errorf("%w: %v", ErrPersistenceRead, err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		res.Defaulted = append(res.Defaulted, key)
		s.log.Warn("state decode failed", "key", key, "err", fmt.Errorf("%w: %v", ErrPersistenceRead, err))
		return false
	}
	return true
}

// migrate upgrades a decoded state from an older schema in place.
func (s *StateStore) migrate(st *model.GameState, from int) {
	s.log.Info("migrating stored state", "from", from, "to", model.SchemaVersion)
	if from < 2 {
		// v1 history points carried only date and price.
		for sym, series := range st.History {
			for i := range series {
				pt := &series[i]
				if pt.Close.IsZero() {
					pt.Close = pt.Price
				}
				if pt.Open.IsZero() {
					pt.Open = pt.Price
				}
				if pt.High.IsZero() {
					pt.High = pt.Price
				}
				if pt.Low.IsZero() {
					pt.Low = pt.Price
				}
			}
			st.History[sym] = series
		}
	}
}
