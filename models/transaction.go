package models

import "time"

// Transaction causal labels.
const (
	CausalAuthorReward   = "author-reward"
	CausalCuratorComment = "curator-reward-comment"
	CausalCuratorVote    = "curator-reward-vote"
)

// Transaction is one wallet credit. Transactions are append-only.
type Transaction struct {
	Causal    string    `json:"causal"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Post      int64     `json:"post"`
}

// LedgerEntry stores a credited transaction in the optional SQL ledger.
type LedgerEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:32;index;not null" json:"username"`
	Causal    string    `gorm:"size:32;not null" json:"causal"`
	Amount    float64   `gorm:"not null" json:"amount"`
	PostID    int64     `gorm:"index;not null" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName pins the table used by the ledger.
func (LedgerEntry) TableName() string { return "ledger_entries" }
