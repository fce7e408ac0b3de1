package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ecocycle/rvm-loyalty/internal/auth"
	"github.com/ecocycle/rvm-loyalty/internal/config"
)

func NewRouter(svcs Services, mgr *auth.Manager, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, svcs, mgr)
	return r
}
