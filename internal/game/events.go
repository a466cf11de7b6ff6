package game

// Event types pushed to subscribers.
const (
	EventPriceTick           = "price_tick"
	EventTradeExecuted       = "trade_executed"
	EventAchievementUnlocked = "achievement_unlocked"
	EventLevelUp             = "level_up"
)

// Event is a state change worth pushing to connected clients.
type Event struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Notifier receives events after the session lock is released. Publish
// must not block.
type Notifier interface {
	Publish(Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(Event) {}
