package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ecocycle/rvm-loyalty/internal/model"
	"github.com/ecocycle/rvm-loyalty/internal/repo"
)

func TestGetOrCreate_Idempotent(t *testing.T) {
	env, ctx := newTestEnv(t)
	user := env.seedUser(t, "sara@example.com")

	w1, err := env.ledger.GetOrCreate(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, w1.Points.IsZero())

	w2, err := env.ledger.GetOrCreate(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, w1.UserID, w2.UserID)

	var wallets int64
	require.NoError(t, env.db.Model(&model.Wallet{}).Count(&wallets).Error)
	assert.Equal(t, int64(1), wallets)
}

func TestCredit_BalanceMatchesLedgerSum(t *testing.T) {
	env, ctx := newTestEnv(t)
	user := env.seedUser(t, "sara@example.com")

	amounts := []string{"2.50", "3.00", "0.75"}
	for _, amt := range amounts {
		_, err := env.ledger.Credit(ctx, user.ID, dec(amt), "recycling_plastic")
		require.NoError(t, err)
	}

	w, err := env.ledger.GetOrCreate(ctx, user.ID)
	require.NoError(t, err)

	var sum decimal.Decimal
	row := env.db.Model(&model.Transaction{}).
		Select("COALESCE(SUM(change_amount), 0)").
		Where("wallet_id = ?", user.ID).Row()
	require.NoError(t, row.Scan(&sum))
	assert.True(t, w.Points.Equal(sum), "wallet %s != ledger sum %s", w.Points, sum)
	assert.True(t, w.Points.Equal(dec("6.25")))
}

func TestWallet_RecentTransactionsCapped(t *testing.T) {
	env, ctx := newTestEnv(t)
	user := env.seedUser(t, "sara@example.com")

	for i := 0; i < 7; i++ {
		_, err := env.ledger.Credit(ctx, user.ID, dec("1.00"), "recycling_glass")
		require.NoError(t, err)
	}
	_, txs, err := env.ledger.Wallet(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 5)
	// newest first
	for i := 1; i < len(txs); i++ {
		assert.GreaterOrEqual(t, txs[i-1].ID, txs[i].ID)
	}
}

// staleReadRepo misses the wallet on the first read, as when a concurrent
// request inserts the row between our read and our insert.
type staleReadRepo struct {
	repo.RepositoryInterface
	misses int
}

func (r *staleReadRepo) GetWallet(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error) {
	if r.misses > 0 {
		r.misses--
		return nil, gorm.ErrRecordNotFound
	}
	return r.RepositoryInterface.GetWallet(ctx, tx, userID)
}

func TestGetOrCreate_RecoversFromCreateRace(t *testing.T) {
	env, ctx := newTestEnv(t)
	user := env.seedUser(t, "sara@example.com")
	_, err := env.ledger.Credit(ctx, user.ID, dec("4.00"), "recycling_metal")
	require.NoError(t, err)

	// the insert hits the existing row without poisoning the transaction
	// and the loser re-reads the winner's wallet
	stale := &staleReadRepo{RepositoryInterface: env.repo, misses: 1}
	ledger := NewLedgerService(stale, env.ledger.log)
	w, err := ledger.GetOrCreate(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, w.Points.Equal(dec("4.00")), "wallet = %s", w.Points)

	var wallets int64
	require.NoError(t, env.db.Model(&model.Wallet{}).Count(&wallets).Error)
	assert.Equal(t, int64(1), wallets)
}

// flakyRepo wraps the real repository and injects failures on selected
// writes.
type flakyRepo struct {
	repo.RepositoryInterface
	failLedgerInsert bool
	conflictsLeft    int
}

func (f *flakyRepo) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	if f.failLedgerInsert {
		return errors.New("injected ledger failure")
	}
	return f.RepositoryInterface.CreateTransaction(ctx, tx, t)
}

func (f *flakyRepo) UpdateWalletPoints(ctx context.Context, tx *gorm.DB, userID uint64, newPoints decimal.Decimal, oldVersion uint64) error {
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return repo.ErrConflict
	}
	return f.RepositoryInterface.UpdateWalletPoints(ctx, tx, userID, newPoints, oldVersion)
}

func TestCredit_LedgerInsertFailureRollsBackBalance(t *testing.T) {
	env, ctx := newTestEnv(t)
	user := env.seedUser(t, "sara@example.com")

	_, err := env.ledger.Credit(ctx, user.ID, dec("4.00"), "recycling_metal")
	require.NoError(t, err)

	flaky := &flakyRepo{RepositoryInterface: env.repo, failLedgerInsert: true}
	ledger := NewLedgerService(flaky, env.ledger.log)

	_, err = ledger.Credit(ctx, user.ID, dec("9.00"), "recycling_metal")
	require.Error(t, err)

	// the balance write rolled back with the failed insert
	w, err := env.ledger.GetOrCreate(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, w.Points.Equal(dec("4.00")), "wallet = %s", w.Points)
	var txs int64
	require.NoError(t, env.db.Model(&model.Transaction{}).Count(&txs).Error)
	assert.Equal(t, int64(1), txs)
}

func TestCredit_RetriesAfterVersionConflict(t *testing.T) {
	env, ctx := newTestEnv(t)
	user := env.seedUser(t, "sara@example.com")

	flaky := &flakyRepo{RepositoryInterface: env.repo, conflictsLeft: 1}
	ledger := NewLedgerService(flaky, env.ledger.log)

	_, err := ledger.Credit(ctx, user.ID, dec("2.00"), "recycling_paper")
	require.NoError(t, err)

	w, err := env.ledger.GetOrCreate(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, w.Points.Equal(dec("2.00")))
}

func TestCredit_ConflictExhaustionSurfaces(t *testing.T) {
	env, ctx := newTestEnv(t)
	user := env.seedUser(t, "sara@example.com")

	flaky := &flakyRepo{RepositoryInterface: env.repo, conflictsLeft: 100}
	ledger := NewLedgerService(flaky, env.ledger.log)

	_, err := ledger.Credit(ctx, user.ID, dec("2.00"), "recycling_paper")
	assert.ErrorIs(t, err, repo.ErrConflict)
}
