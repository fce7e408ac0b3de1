package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one append-only ledger entry. Every wallet points change
// produces exactly one of these in the same database transaction, so the
// wallet balance always equals the sum of its entries.
type Transaction struct {
	ID           uint64          `gorm:"primaryKey" json:"id"`
	WalletID     uint64          `gorm:"not null;index" json:"wallet_id"`
	ChangeAmount decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"change_amount"`
	Reason       string          `gorm:"size:100;not null" json:"reason"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"timestamp"`
}

func (Transaction) TableName() string { return "reward_transaction" }
