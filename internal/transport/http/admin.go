package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ecocycle/rvm-loyalty/internal/model"
	"github.com/ecocycle/rvm-loyalty/internal/repo"
	"github.com/ecocycle/rvm-loyalty/internal/service"
)

// registerAdminHandlers mounts the management API. Activities are
// read-and-delete only here: history is not editable, so the ledger can
// never drift from what the admin surface rewrote.
func registerAdminHandlers(g *gin.RouterGroup, svcs Services) {
	g.GET("/users", adminListUsers(svcs.Users))
	g.GET("/users/:id", adminGetUser(svcs.Users))
	g.PUT("/users/:id/role", adminSetRole(svcs.Users))
	g.DELETE("/users/:id", adminDeleteUser(svcs.Users))

	g.GET("/rvms", adminListMachines(svcs.Machines))
	g.POST("/rvms", adminCreateMachine(svcs.Machines))
	g.PUT("/rvms/:id", adminUpdateMachine(svcs.Machines))
	g.DELETE("/rvms/:id", adminDeleteMachine(svcs.Machines))

	g.GET("/materials", adminListMaterials(svcs.Catalog))
	g.POST("/materials", adminCreateMaterial(svcs.Catalog))
	g.PUT("/materials/:id", adminUpdateMaterial(svcs.Catalog))
	g.POST("/materials/:id/deactivate", adminDeactivateMaterial(svcs.Catalog))

	g.GET("/activities", adminListActivities(svcs.Deposits))
	g.GET("/activities/:id", adminGetActivity(svcs.Deposits))
	g.DELETE("/activities/:id", adminDeleteActivity(svcs.Deposits))

	g.GET("/wallets", adminListWallets(svcs.Ledger))
}

// --- users ---

func adminListUsers(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		us, err := users.List(c)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, us)
	}
}

func adminGetUser(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		u, err := users.Get(c, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

func adminSetRole(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req struct {
			Role string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u, err := users.SetRole(c, id, req.Role)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

func adminDeleteUser(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := users.Delete(c, id); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- machines ---

type machineReq struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Status   string `json:"status"`
}

func adminListMachines(machines *service.MachineService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ms, err := machines.List(c, repo.MachineFilter{Status: c.Query("status")})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, ms)
	}
}

func adminCreateMachine(machines *service.MachineService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req machineReq
		if err := c.ShouldBindJSON(&req); err != nil || req.Location == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "location is required"})
			return
		}
		m := &model.Machine{Name: req.Name, Location: req.Location, Status: req.Status}
		if err := machines.Create(c, m); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, m)
	}
}

func adminUpdateMachine(machines *service.MachineService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req machineReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		m, err := machines.Update(c, id, req.Name, req.Location, req.Status)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

func adminDeleteMachine(machines *service.MachineService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := machines.Delete(c, id); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- materials ---

type materialReq struct {
	Name        string `json:"name"`
	PointsPerKG string `json:"points_per_kg"`
	IsActive    *bool  `json:"is_active"`
}

func adminListMaterials(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ms, err := catalog.ListAll(c)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, ms)
	}
}

func adminCreateMaterial(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req materialReq
		if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}
		rate, err := decimal.NewFromString(req.PointsPerKG)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid points_per_kg"})
			return
		}
		m := &model.Material{Name: req.Name, PointsPerKG: rate, IsActive: true}
		if req.IsActive != nil {
			m.IsActive = *req.IsActive
		}
		if err := catalog.Create(c, m); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, m)
	}
}

func adminUpdateMaterial(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req materialReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rate, err := decimal.NewFromString(req.PointsPerKG)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid points_per_kg"})
			return
		}
		active := true
		if req.IsActive != nil {
			active = *req.IsActive
		}
		m, err := catalog.Update(c, id, req.Name, rate, active)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

func adminDeactivateMaterial(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		m, err := catalog.Deactivate(c, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

// --- activities ---

func adminListActivities(deposits *service.DepositService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f repo.ActivityFilter
		if v := c.Query("user"); v != "" {
			f.UserID, _ = strconv.ParseUint(v, 10, 64)
		}
		if v := c.Query("rvm"); v != "" {
			f.MachineID, _ = strconv.ParseUint(v, 10, 64)
		}
		if v := c.Query("start_date"); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
				return
			}
			f.From = t
		}
		if v := c.Query("end_date"); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date"})
				return
			}
			// inclusive end of day
			f.To = t.Add(24*time.Hour - time.Nanosecond)
		}
		as, err := deposits.ListActivities(c, f)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, as)
	}
}

func adminGetActivity(deposits *service.DepositService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		act, err := deposits.GetActivity(c, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, act)
	}
}

func adminDeleteActivity(deposits *service.DepositService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := deposits.DeleteActivity(c, id); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- wallets ---

func adminListWallets(ledger *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := ledger.ListWallets(c)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, ws)
	}
}
