package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ecocycle/rvm-loyalty/internal/model"
	"github.com/ecocycle/rvm-loyalty/internal/repo"
)

type testEnv struct {
	db       *gorm.DB
	repo     *repo.Repository
	ledger   *LedgerService
	deposits *DepositService
	catalog  *CatalogService
	machines *MachineService
	users    *UserService
}

func newTestEnv(t *testing.T) (*testEnv, context.Context) {
	t.Helper()
	// per-test in-memory database; one connection so sqlite serializes
	// concurrent transactions instead of returning busy errors
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Material{}, &model.Machine{},
		&model.Wallet{}, &model.Transaction{}, &model.Activity{},
		&model.OutboxEvent{},
	))

	rdb, _ := redismock.NewClientMock()
	log := zap.NewNop().Sugar()
	r := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	ledger := NewLedgerService(r, log)

	env := &testEnv{
		db:       db,
		repo:     r,
		ledger:   ledger,
		deposits: NewDepositService(r, ledger, log),
		catalog:  NewCatalogService(r, log),
		machines: NewMachineService(r, log),
		users:    NewUserService(r, ledger, log),
	}
	return env, context.Background()
}

func (e *testEnv) seedMaterial(t *testing.T, name, rate string, active bool) *model.Material {
	t.Helper()
	m := &model.Material{Name: name, PointsPerKG: decimal.RequireFromString(rate), IsActive: active}
	require.NoError(t, e.db.Create(m).Error)
	return m
}

func (e *testEnv) seedMachine(t *testing.T, name, location, status string) *model.Machine {
	t.Helper()
	m := &model.Machine{Name: name, Location: location, Status: status}
	require.NoError(t, e.db.Create(m).Error)
	return m
}

func (e *testEnv) seedUser(t *testing.T, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "x", FirstName: "Test", LastName: "User"}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
