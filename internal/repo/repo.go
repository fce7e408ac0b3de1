package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ecocycle/rvm-loyalty/internal/model"
)

// ErrConflict is returned when a wallet write lost a race: a
// version-checked update touched no rows, or an insert hit an existing
// row. Callers retry.
var ErrConflict = errors.New("wallet version conflict")

// MachineFilter narrows ListMachines. Zero values mean "no filter".
type MachineFilter struct {
	Status     string
	Location   string
	RecentOnly bool
	Now        time.Time
}

// ActivityFilter narrows ListActivities (admin history queries).
type ActivityFilter struct {
	UserID    uint64
	MachineID uint64
	From      time.Time
	To        time.Time
}

// SummaryTotals are the lifetime aggregates over a user's activities.
type SummaryTotals struct {
	Weight decimal.Decimal
	Points decimal.Decimal
	Count  int64
}

// RepositoryInterface restricts Repo methods so services can be unit
// tested against wrappers that fail selectively.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	GetWallet(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error)
	CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error
	UpdateWalletPoints(ctx context.Context, tx *gorm.DB, userID uint64, newPoints decimal.Decimal, oldVersion uint64) error
	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	RecentTransactions(ctx context.Context, walletID uint64, limit int) ([]model.Transaction, error)
	ListWallets(ctx context.Context) ([]model.Wallet, error)

	GetMaterial(ctx context.Context, tx *gorm.DB, id uint64) (*model.Material, error)
	ListMaterials(ctx context.Context, activeOnly bool) ([]model.Material, error)
	CreateMaterial(ctx context.Context, m *model.Material) error
	SaveMaterial(ctx context.Context, m *model.Material) error

	GetMachine(ctx context.Context, tx *gorm.DB, id uint64) (*model.Machine, error)
	ListMachines(ctx context.Context, f MachineFilter) ([]model.Machine, error)
	MarkMachineUsed(ctx context.Context, tx *gorm.DB, machineID uint64, at time.Time) error
	CreateMachine(ctx context.Context, m *model.Machine) error
	SaveMachine(ctx context.Context, m *model.Machine) error
	DeleteMachine(ctx context.Context, id uint64) error

	CreateActivity(ctx context.Context, tx *gorm.DB, a *model.Activity) error
	ActivityByIdemKey(ctx context.Context, tx *gorm.DB, userID uint64, key string) (*model.Activity, error)
	GetActivity(ctx context.Context, id uint64) (*model.Activity, error)
	ListActivities(ctx context.Context, f ActivityFilter) ([]model.Activity, error)
	DeleteActivity(ctx context.Context, id uint64) error
	UserSummaryTotals(ctx context.Context, userID uint64) (SummaryTotals, error)

	CreateUser(ctx context.Context, u *model.User) error
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id uint64) (*model.User, error)
	SaveUser(ctx context.Context, u *model.User) error
	ListUsers(ctx context.Context) ([]model.User, error)
	DeleteUser(ctx context.Context, id uint64) error

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheBalance(ctx context.Context, walletID uint64, points decimal.Decimal) error
	GetCachedBalance(ctx context.Context, walletID uint64) (decimal.Decimal, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// conn picks the open transaction when one is passed, the pool otherwise.
func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// --- wallet & ledger ---

// GetWallet loads a wallet by owner.
func (r *Repository) GetWallet(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.conn(ctx, tx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWallet inserts a zero-balance wallet. ON CONFLICT DO NOTHING
// keeps a lost create race from aborting the surrounding transaction on
// postgres; the loser sees ErrConflict and re-reads the winner's row.
func (r *Repository) CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error {
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(w)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// UpdateWalletPoints writes the new balance with an optimistic version
// check. ErrConflict means a concurrent credit got there first.
func (r *Repository) UpdateWalletPoints(ctx context.Context, tx *gorm.DB, userID uint64, newPoints decimal.Decimal, oldVersion uint64) error {
	res := r.conn(ctx, tx).
		Model(&model.Wallet{}).
		Where("user_id = ? AND version = ?", userID, oldVersion).
		Updates(map[string]interface{}{
			"points":     newPoints,
			"version":    oldVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// CreateTransaction appends a ledger entry.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return r.conn(ctx, tx).Create(t).Error
}

// RecentTransactions returns the newest entries for a wallet.
func (r *Repository) RecentTransactions(ctx context.Context, walletID uint64, limit int) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// ListWallets returns all wallets (admin view).
func (r *Repository) ListWallets(ctx context.Context) ([]model.Wallet, error) {
	var ws []model.Wallet
	err := r.db.WithContext(ctx).Order("user_id").Find(&ws).Error
	return ws, err
}

// --- material catalog ---

func (r *Repository) GetMaterial(ctx context.Context, tx *gorm.DB, id uint64) (*model.Material, error) {
	var m model.Material
	if err := r.conn(ctx, tx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMaterials returns the catalog ordered by name, optionally only the
// materials still accepted for deposits.
func (r *Repository) ListMaterials(ctx context.Context, activeOnly bool) ([]model.Material, error) {
	q := r.db.WithContext(ctx).Order("name")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var ms []model.Material
	err := q.Find(&ms).Error
	return ms, err
}

func (r *Repository) CreateMaterial(ctx context.Context, m *model.Material) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repository) SaveMaterial(ctx context.Context, m *model.Material) error {
	return r.db.WithContext(ctx).Save(m).Error
}

// --- machine registry ---

func (r *Repository) GetMachine(ctx context.Context, tx *gorm.DB, id uint64) (*model.Machine, error) {
	var m model.Machine
	if err := r.conn(ctx, tx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMachines applies the filter and orders most recently used first,
// never-used machines last.
func (r *Repository) ListMachines(ctx context.Context, f MachineFilter) ([]model.Machine, error) {
	q := r.db.WithContext(ctx).Model(&model.Machine{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Location != "" {
		q = q.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(f.Location)+"%")
	}
	if f.RecentOnly {
		now := f.Now
		if now.IsZero() {
			now = time.Now()
		}
		q = q.Where("last_usage >= ?", now.Add(-24*time.Hour))
	}
	var ms []model.Machine
	err := q.Order("last_usage DESC NULLS LAST").Find(&ms).Error
	return ms, err
}

// MarkMachineUsed overwrites last_usage; later deposits simply overwrite
// earlier ones.
func (r *Repository) MarkMachineUsed(ctx context.Context, tx *gorm.DB, machineID uint64, at time.Time) error {
	return r.conn(ctx, tx).
		Model(&model.Machine{}).
		Where("id = ?", machineID).
		Update("last_usage", at).Error
}

func (r *Repository) CreateMachine(ctx context.Context, m *model.Machine) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repository) SaveMachine(ctx context.Context, m *model.Machine) error {
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *Repository) DeleteMachine(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&model.Machine{}, id).Error
}

// --- activities ---

func (r *Repository) CreateActivity(ctx context.Context, tx *gorm.DB, a *model.Activity) error {
	return r.conn(ctx, tx).Create(a).Error
}

// ActivityByIdemKey finds an earlier deposit recorded under the same key,
// if any. Empty keys never match.
func (r *Repository) ActivityByIdemKey(ctx context.Context, tx *gorm.DB, userID uint64, key string) (*model.Activity, error) {
	if key == "" {
		return nil, nil
	}
	var a model.Activity
	err := r.conn(ctx, tx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetActivity(ctx context.Context, id uint64) (*model.Activity, error) {
	var a model.Activity
	err := r.db.WithContext(ctx).
		Preload("Machine").Preload("Material").
		First(&a, id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) ListActivities(ctx context.Context, f ActivityFilter) ([]model.Activity, error) {
	q := r.db.WithContext(ctx).Model(&model.Activity{}).
		Preload("Machine").Preload("Material")
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.MachineID != 0 {
		q = q.Where("machine_id = ?", f.MachineID)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To)
	}
	var as []model.Activity
	err := q.Order("created_at DESC, id DESC").Find(&as).Error
	return as, err
}

func (r *Repository) DeleteActivity(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&model.Activity{}, id).Error
}

// UserSummaryTotals folds a user's whole deposit history in the database.
func (r *Repository) UserSummaryTotals(ctx context.Context, userID uint64) (SummaryTotals, error) {
	var row struct {
		Weight decimal.Decimal
		Points decimal.Decimal
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Activity{}).
		Select("COALESCE(SUM(weight), 0) AS weight, COALESCE(SUM(points_earned), 0) AS points, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return SummaryTotals{}, err
	}
	return SummaryTotals{Weight: row.Weight, Points: row.Points, Count: row.Count}, nil
}

// --- users ---

func (r *Repository) CreateUser(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) UserByID(ctx context.Context, id uint64) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) SaveUser(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Save(u).Error
}

func (r *Repository) ListUsers(ctx context.Context) ([]model.User, error) {
	var us []model.User
	err := r.db.WithContext(ctx).Order("id").Find(&us).Error
	return us, err
}

func (r *Repository) DeleteUser(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&model.User{}, id).Error
}

// --- outbox ---

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return r.conn(ctx, tx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.ID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// --- balance cache ---

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, walletID uint64, points decimal.Decimal) error {
	return r.rdb.Set(ctx, fmt.Sprintf("points:%d", walletID), points.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, walletID uint64) (decimal.Decimal, error) {
	str, err := r.rdb.Get(ctx, fmt.Sprintf("points:%d", walletID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}
