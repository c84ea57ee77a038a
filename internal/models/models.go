package models

import "time"

// Статусы подписки пользователя
const (
	SubscriptionTrial    = "trial"
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
)

// Статусы аккаунта (удаление только мягкое)
const (
	AccountActive  = "active"
	AccountDeleted = "deleted"
)

// Направления мастер-сделки
const (
	TradeBuy  = "Buy"
	TradeSell = "Sell"
)

// TradeStatusActive - статус открытой (не рассчитанной) сделки
const TradeStatusActive = "active"

// User представляет пользователя журнала
type User struct {
	UID                string    `json:"uid"`
	Email              string    `json:"email"`
	Joined             time.Time `json:"joined"`
	SubscriptionStatus string    `json:"subscriptionStatus"`
	CurrentBalance     *float64  `json:"currentBalance,omitempty"` // nil если баланс еще не задан
	AccountStatus      string    `json:"accountStatus"`
}

// Balance возвращает текущий баланс, 0 если он не задан
func (u User) Balance() float64 {
	if u.CurrentBalance == nil {
		return 0
	}

	return *u.CurrentBalance
}

// MasterTrade - торговый сигнал, который рассылается всем подписчикам
type MasterTrade struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "Buy" или "Sell"
	Price     float64   `json:"price"`
	TP        float64   `json:"tp"`
	SL        float64   `json:"sl"`
	RR        *float64  `json:"rr,omitempty"` // reward:risk, nil если не вычислен
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Trade - дочерняя сделка пользователя, созданная из мастер-сделки
type Trade struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	ParentID  string     `json:"parentId"`
	Risk      float64    `json:"risk"`
	Reward    float64    `json:"reward"`
	Type      string     `json:"type"`
	SL        float64    `json:"sl"`
	TP        float64    `json:"tp"`
	Price     float64    `json:"price"`
	RR        *float64   `json:"rr,omitempty"`
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	SettledAt *time.Time `json:"settledAt,omitempty"`
	Amount    *float64   `json:"amount,omitempty"` // итог расчета, nil для void
}

// IsSettled возвращает true если сделка уже рассчитана
func (t Trade) IsSettled() bool {
	return t.SettledAt != nil
}

// Dashboard - накопительная статистика пользователя
type Dashboard struct {
	UserID         string    `json:"userId"`
	CurrentBalance float64   `json:"currentBalance"`
	PrevBalance    *float64  `json:"prevBalance,omitempty"`
	Balances       []float64 `json:"balances"` // последние снимки баланса, самый свежий в конце

	CurrentTotalTrades     int `json:"currentTotalTrades"`
	CurrentActiveDays      int `json:"currentActiveDays"`
	CurrentTotalWins       int `json:"currentTotalWins"`
	CurrentTotalLosses     int `json:"currentTotalLosses"`
	CurrentTotalBreakevens int `json:"currentTotalBreakevens"`
	CurrentWinStreak       int `json:"currentWinStreak"`

	PrevMonthTotalTrades     int `json:"prevMonthTotalTrades"`
	PrevMonthActiveDays      int `json:"prevMonthActiveDays"`
	PrevMonthTotalWins       int `json:"prevMonthTotalWins"`
	PrevMonthTotalLosses     int `json:"prevMonthTotalLosses"`
	PrevMonthTotalBreakevens int `json:"prevMonthTotalBreakevens"`
	PrevMonthWinStreak       int `json:"prevMonthWinStreak"`

	// RolledPeriod - месяц (YYYY-MM) последнего rollover, повторный rollover в том же месяце пропускается
	RolledPeriod string `json:"rolledPeriod,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// ActivityLog представляет запись в логе активности
type ActivityLog struct {
	ID        int       `json:"id"`
	UserID    *string   `json:"userId,omitempty"`
	Level     string    `json:"level"`  // "INFO", "WARN", "ERROR"
	Action    string    `json:"action"` // "fanout", "settlement", "rollover", etc.
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"` // JSON с дополнительной информацией
	CreatedAt time.Time `json:"createdAt"`
}
