package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ecocycle/rvm-loyalty/internal/auth"
	"github.com/ecocycle/rvm-loyalty/internal/model"
	"github.com/ecocycle/rvm-loyalty/internal/repo"
	"github.com/ecocycle/rvm-loyalty/internal/service"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	ledger := service.NewLedgerService(r, log)
	svcs := Services{
		Users:    service.NewUserService(r, ledger, log),
		Ledger:   ledger,
		Deposits: service.NewDepositService(r, ledger, log),
		Catalog:  service.NewCatalogService(r, log),
		Machines: service.NewMachineService(r, log),
	}
	mgr := auth.NewManager("test-secret", time.Hour)

	router := gin.New()
	RegisterHandlers(router, svcs, mgr)
	return router, db
}

func doJSON(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func registerUser(t *testing.T, r *gin.Engine, email string) string {
	t.Helper()
	w := doJSON(r, "POST", "/v1/auth/register", "", gin.H{
		"email": email, "password": "s3cret-pass", "password_confirm": "s3cret-pass",
		"first_name": "Test", "last_name": "User",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestAuth(t *testing.T) {
	r, _ := setupRouter(t)
	registerUser(t, r, "nadia@example.com")

	// duplicate registration
	w := doJSON(r, "POST", "/v1/auth/register", "", gin.H{
		"email": "nadia@example.com", "password": "s3cret-pass", "password_confirm": "s3cret-pass",
		"first_name": "Test", "last_name": "User",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// login
	w = doJSON(r, "POST", "/v1/auth/login", "", gin.H{"email": "nadia@example.com", "password": "s3cret-pass"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, "POST", "/v1/auth/login", "", gin.H{"email": "nadia@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// protected routes need a token
	w = doJSON(r, "GET", "/v1/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = doJSON(r, "GET", "/v1/wallet", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDepositFlow(t *testing.T) {
	r, db := setupRouter(t)
	token := registerUser(t, r, "nadia@example.com")

	machine := &model.Machine{Name: "Maadi", Location: "Cairo", Status: model.MachineActive}
	require.NoError(t, db.Create(machine).Error)
	plastic := &model.Material{Name: "Plastic", PointsPerKG: decimal.RequireFromString("1.00"), IsActive: true}
	require.NoError(t, db.Create(plastic).Error)

	w := doJSON(r, "POST", "/v1/deposit", token, gin.H{
		"machine_id": machine.ID, "material_id": plastic.ID, "weight": "2.5",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var dep struct {
		PointsEarned string `json:"points_earned"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dep))
	assert.True(t, decimal.RequireFromString(dep.PointsEarned).Equal(decimal.RequireFromString("2.50")))

	// wallet reflects the credit with one recent transaction
	w = doJSON(r, "GET", "/v1/wallet", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var wallet struct {
		Points             string              `json:"points"`
		RecentTransactions []model.Transaction `json:"recent_transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallet))
	assert.True(t, decimal.RequireFromString(wallet.Points).Equal(decimal.RequireFromString("2.50")))
	require.Len(t, wallet.RecentTransactions, 1)
	assert.Equal(t, "recycling_plastic", wallet.RecentTransactions[0].Reason)

	// lightweight balance endpoint agrees with the wallet
	w = doJSON(r, "GET", "/v1/points", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pts struct {
		Points string `json:"points"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pts))
	assert.True(t, decimal.RequireFromString(pts.Points).Equal(decimal.RequireFromString("2.50")))

	// summary folds the history
	w = doJSON(r, "GET", "/v1/summary", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum struct {
		DepositsCount int64  `json:"deposits_count"`
		TotalPoints   string `json:"total_points_earned"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, int64(1), sum.DepositsCount)
	assert.True(t, decimal.RequireFromString(sum.TotalPoints).Equal(decimal.RequireFromString("2.50")))

	// own activity history
	w = doJSON(r, "GET", "/v1/activities", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var acts []model.Activity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acts))
	assert.Len(t, acts, 1)
}

func TestDepositValidationStatuses(t *testing.T) {
	r, db := setupRouter(t)
	token := registerUser(t, r, "nadia@example.com")

	down := &model.Machine{Name: "Broken", Location: "Giza", Status: model.MachineMaintenance}
	require.NoError(t, db.Create(down).Error)
	plastic := &model.Material{Name: "Plastic", PointsPerKG: decimal.RequireFromString("1.00"), IsActive: true}
	require.NoError(t, db.Create(plastic).Error)

	// machine under maintenance
	w := doJSON(r, "POST", "/v1/deposit", token, gin.H{
		"machine_id": down.ID, "material_id": plastic.ID, "weight": "1.0",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// unknown machine
	w = doJSON(r, "POST", "/v1/deposit", token, gin.H{
		"machine_id": 999, "material_id": plastic.ID, "weight": "1.0",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// sub-gram weight
	active := &model.Machine{Name: "OK", Location: "Cairo", Status: model.MachineActive}
	require.NoError(t, db.Create(active).Error)
	w = doJSON(r, "POST", "/v1/deposit", token, gin.H{
		"machine_id": active.ID, "material_id": plastic.ID, "weight": "0.0001",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// unparseable weight
	w = doJSON(r, "POST", "/v1/deposit", token, gin.H{
		"machine_id": active.ID, "material_id": plastic.ID, "weight": "heavy",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAccess(t *testing.T) {
	r, db := setupRouter(t)
	token := registerUser(t, r, "nadia@example.com")

	// regular users are locked out
	w := doJSON(r, "GET", "/v1/admin/users", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	require.NoError(t, db.Model(&model.User{}).
		Where("email = ?", "nadia@example.com").
		Update("role", model.RoleAdmin).Error)

	w = doJSON(r, "GET", "/v1/admin/users", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// admin manages the catalog
	w = doJSON(r, "POST", "/v1/admin/materials", token, gin.H{"name": "Glass", "points_per_kg": "2.00"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = doJSON(r, "POST", "/v1/admin/materials", token, gin.H{"name": "Dust", "points_per_kg": "0.001"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// and the fleet
	w = doJSON(r, "POST", "/v1/admin/rvms", token, gin.H{"name": "New", "location": "Heliopolis, Cairo"})
	require.Equal(t, http.StatusCreated, w.Code)
	var m model.Machine
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, model.MachineActive, m.Status)
}
