package model

import "time"

const (
	// DefaultEase is the starting ease factor of a freshly minted card.
	DefaultEase = 2.5
)

// Card is a spaced-repetition card derived from a card marker in a node's
// content. The primary key doubles as the inline anchor embedded in the
// content, so a re-parse of unchanged content resolves to the same row.
type Card struct {
	ID           string `gorm:"primaryKey;uuid;not null" json:"id"`
	NodeID       string `gorm:"uuid;not null;index:idx_cards_node_id" json:"node_id"`
	Module       string `gorm:"not null;index:idx_cards_module" json:"module"`
	Front        string `gorm:"not null" json:"front"`
	Back         string    `json:"back,omitempty"`
	DueAt        time.Time `json:"due_at"`
	IntervalDays float64   `json:"interval_days"`
	Ease         float64   `json:"ease"`
	Repetitions  int       `json:"repetitions"`
	Lapses       int       `json:"lapses"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *Card) TableName() string {
	return "cards"
}

// NewCardState resets the scheduling fields to their initial values, leaving
// identity and body untouched.
func (c *Card) NewCardState(now time.Time) {
	c.DueAt = now
	c.IntervalDays = 0
	c.Ease = DefaultEase
	c.Repetitions = 0
	c.Lapses = 0
}

// CardStats is an aggregate view over a set of cards.
type CardStats struct {
	Total int64 `json:"total"`
	Due   int64 `json:"due"`
	New   int64 `json:"new"`
}
