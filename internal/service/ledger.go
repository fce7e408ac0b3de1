package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ecocycle/rvm-loyalty/internal/model"
	"github.com/ecocycle/rvm-loyalty/internal/repo"
)

// How many times a credit is retried after losing an optimistic-lock race.
const creditAttempts = 3

// How many ledger entries the wallet endpoint shows.
const recentTransactionLimit = 5

// LedgerService owns all wallet balance mutation. Nothing else in the
// codebase writes wallet points, so the balance always matches the sum of
// the transaction log.
type LedgerService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewLedgerService returns LedgerService.
func NewLedgerService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{repo: r, log: logger}
}

// GetOrCreate returns the user's wallet, creating a zero-balance one on
// first reference. Calling it repeatedly never creates a second wallet.
func (s *LedgerService) GetOrCreate(ctx context.Context, userID uint64) (*model.Wallet, error) {
	var out *model.Wallet
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.getOrCreateTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LedgerService) getOrCreateTx(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error) {
	w, err := s.repo.GetWallet(ctx, tx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	w = &model.Wallet{UserID: userID, Points: decimal.Zero, Credit: decimal.Zero}
	if err := s.repo.CreateWallet(ctx, tx, w); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			// lost a create race; the row exists now
			return s.repo.GetWallet(ctx, tx, userID)
		}
		return nil, err
	}
	return w, nil
}

// Credit adjusts the wallet balance and appends the matching ledger entry
// in one transaction, retrying the whole unit on version conflicts.
func (s *LedgerService) Credit(ctx context.Context, userID uint64, amount decimal.Decimal, reason string) (*model.Transaction, error) {
	var entry *model.Transaction
	var balance decimal.Decimal
	var err error
	for i := 0; i < creditAttempts; i++ {
		err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
			e, b, cerr := s.CreditTx(ctx, tx, userID, amount, reason)
			if cerr != nil {
				return cerr
			}
			entry, balance = e, b
			return nil
		})
		if !errors.Is(err, repo.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	s.cacheBalance(ctx, userID, balance)
	return entry, nil
}

// CreditTx performs one credit attempt inside the caller's transaction and
// returns the new balance. The balance update and the ledger insert commit
// or roll back together; a version conflict surfaces as repo.ErrConflict
// for the caller to retry. The redis copy is the caller's to refresh once
// the transaction has committed.
func (s *LedgerService) CreditTx(ctx context.Context, tx *gorm.DB, userID uint64, amount decimal.Decimal, reason string) (*model.Transaction, decimal.Decimal, error) {
	w, err := s.getOrCreateTx(ctx, tx, userID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	newPoints := w.Points.Add(amount)
	if err := s.repo.UpdateWalletPoints(ctx, tx, userID, newPoints, w.Version); err != nil {
		return nil, decimal.Zero, err
	}
	entry := &model.Transaction{
		WalletID:     userID,
		ChangeAmount: amount,
		Reason:       reason,
	}
	if err := s.repo.CreateTransaction(ctx, tx, entry); err != nil {
		return nil, decimal.Zero, err
	}
	return entry, newPoints, nil
}

// cacheBalance refreshes the redis copy after a committed balance change.
// Best effort; a cache miss just falls back to the database.
func (s *LedgerService) cacheBalance(ctx context.Context, userID uint64, balance decimal.Decimal) {
	if err := s.repo.CacheBalance(ctx, userID, balance); err != nil {
		s.log.Warnf("cache balance wallet=%d: %v", userID, err)
	}
}

// Wallet returns the wallet plus its most recent ledger entries, creating
// the wallet on first access.
func (s *LedgerService) Wallet(ctx context.Context, userID uint64) (*model.Wallet, []model.Transaction, error) {
	w, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	txs, err := s.repo.RecentTransactions(ctx, w.UserID, recentTransactionLimit)
	if err != nil {
		return nil, nil, err
	}
	return w, txs, nil
}

// Points returns the current point balance, served from the cache when
// warm.
func (s *LedgerService) Points(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	if bal, err := s.repo.GetCachedBalance(ctx, userID); err == nil {
		return bal, nil
	}
	w, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	s.cacheBalance(ctx, userID, w.Points)
	return w.Points, nil
}

// ListWallets returns every wallet (admin view).
func (s *LedgerService) ListWallets(ctx context.Context) ([]model.Wallet, error) {
	return s.repo.ListWallets(ctx)
}
