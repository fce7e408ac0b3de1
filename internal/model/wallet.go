package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's point and credit balances. One wallet per user,
// created lazily on first reference. Points are mutated only through the
// ledger credit path; Version backs the optimistic lock on that path.
type Wallet struct {
	UserID    uint64          `gorm:"primaryKey;column:user_id" json:"user_id"`
	Points    decimal.Decimal `gorm:"type:numeric(10,2);not null;default:'0'" json:"points"`
	Credit    decimal.Decimal `gorm:"type:numeric(10,2);not null;default:'0'" json:"credit"`
	Version   uint64          `gorm:"not null;default:0" json:"-"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "reward_wallet" }
