package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ecocycle/rvm-loyalty/internal/auth"
	"github.com/ecocycle/rvm-loyalty/internal/repo"
	"github.com/ecocycle/rvm-loyalty/internal/service"
)

// Services bundles everything the handlers need.
type Services struct {
	Users    *service.UserService
	Ledger   *service.LedgerService
	Deposits *service.DepositService
	Catalog  *service.CatalogService
	Machines *service.MachineService
}

func RegisterHandlers(r *gin.Engine, svcs Services, mgr *auth.Manager) {
	v1 := r.Group("/v1")
	v1.POST("/auth/register", registerHandler(svcs.Users, mgr))
	v1.POST("/auth/login", loginHandler(svcs.Users, mgr))

	authed := v1.Group("", AuthMiddleware(mgr))
	{
		authed.GET("/profile", profileHandler(svcs.Users))
		authed.PUT("/profile", updateProfileHandler(svcs.Users))
		authed.GET("/summary", summaryHandler(svcs.Users))
		authed.GET("/wallet", walletHandler(svcs.Ledger))
		authed.GET("/points", pointsHandler(svcs.Ledger))
		authed.POST("/deposit", depositHandler(svcs.Deposits))
		authed.GET("/activities", activitiesHandler(svcs.Deposits))
		authed.GET("/activities/:id", activityHandler(svcs.Deposits))
		authed.GET("/materials", materialsHandler(svcs.Catalog))
		authed.GET("/materials/:id", materialHandler(svcs.Catalog))
		authed.GET("/rvms", machinesHandler(svcs.Machines))
		authed.GET("/rvms/:id", machineHandler(svcs.Machines))
	}

	admin := authed.Group("/admin", RequireAdmin(svcs.Users))
	registerAdminHandlers(admin, svcs)
}

// fail maps service errors onto HTTP statuses.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, service.ErrMachineNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrMachineUnavailable),
		errors.Is(err, service.ErrMaterialInvalid),
		errors.Is(err, service.ErrInvalidWeight),
		errors.Is(err, service.ErrInvalidRate),
		errors.Is(err, service.ErrInvalidStatus):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, repo.ErrConflict), errors.Is(err, service.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// --- auth ---

type registerReq struct {
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" binding:"required"`
	FirstName       string `json:"first_name" binding:"required"`
	LastName        string `json:"last_name" binding:"required"`
	Phone           string `json:"phone"`
}

func registerHandler(users *service.UserService, mgr *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Password != req.PasswordConfirm {
			c.JSON(http.StatusBadRequest, gin.H{"error": "passwords don't match"})
			return
		}
		u, err := users.Register(c, service.RegisterInput{
			Email:     req.Email,
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
		})
		if err != nil {
			fail(c, err)
			return
		}
		token, err := mgr.Generate(u.ID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": token, "user": u})
	}
}

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func loginHandler(users *service.UserService, mgr *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u, err := users.Login(c, req.Email, req.Password)
		if err != nil {
			fail(c, err)
			return
		}
		token, err := mgr.Generate(u.ID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": u})
	}
}

// --- profile & summary ---

func profileHandler(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := users.Get(c, currentUser(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

type profileReq struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

func updateProfileHandler(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req profileReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u, err := users.UpdateProfile(c, currentUser(c), req.FirstName, req.LastName, req.Phone)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

func summaryHandler(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := users.Summarize(c, currentUser(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

// --- wallet ---

func walletHandler(ledger *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, txs, err := ledger.Wallet(c, currentUser(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"points":              w.Points,
			"credit":              w.Credit,
			"recent_transactions": txs,
		})
	}
}

// pointsHandler is the lightweight balance lookup, served from the redis
// cache when warm.
func pointsHandler(ledger *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		pts, err := ledger.Points(c, currentUser(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"points": pts})
	}
}

// --- deposits ---

type depositReq struct {
	MachineID      uint64 `json:"machine_id" binding:"required"`
	MaterialID     uint64 `json:"material_id" binding:"required"`
	Weight         string `json:"weight" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

func depositHandler(deposits *service.DepositService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req depositReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		weight, err := decimal.NewFromString(req.Weight)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid weight"})
			return
		}
		a, err := deposits.RecordDeposit(c, currentUser(c), service.DepositInput{
			MachineID:      req.MachineID,
			MaterialID:     req.MaterialID,
			Weight:         weight,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"message":       "deposit recorded",
			"activity":      a,
			"points_earned": a.PointsEarned,
		})
	}
}

func activitiesHandler(deposits *service.DepositService) gin.HandlerFunc {
	return func(c *gin.Context) {
		as, err := deposits.ListUserActivities(c, currentUser(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, as)
	}
}

func activityHandler(deposits *service.DepositService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		a, err := deposits.GetUserActivity(c, currentUser(c), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// --- catalog ---

func materialsHandler(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ms, err := catalog.ListActive(c)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, ms)
	}
}

func materialHandler(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		m, err := catalog.Get(c, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

// --- machines ---

func machinesHandler(machines *service.MachineService) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := repo.MachineFilter{
			Status:     c.Query("status"),
			Location:   c.Query("location"),
			RecentOnly: c.Query("recent") != "",
		}
		ms, err := machines.List(c, f)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, ms)
	}
}

func machineHandler(machines *service.MachineService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		m, err := machines.Get(c, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}
