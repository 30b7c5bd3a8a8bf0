package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/gamemaster/internal/config"
	"github.com/wfunc/gamemaster/internal/content"
	"github.com/wfunc/gamemaster/internal/metrics"
	"github.com/wfunc/gamemaster/internal/middleware"
	"github.com/wfunc/gamemaster/internal/repository"
	ws "github.com/wfunc/gamemaster/internal/websocket"
	"go.uber.org/zap"
)

// Deps 路由依赖
type Deps struct {
	Repos     *repository.Manager
	Content   content.Store
	Hub       *ws.Hub
	WebSocket *config.WebSocketConfig
	Logger    *zap.Logger
}

// Router API路由器
type Router struct {
	engine      *gin.Engine
	repos       *repository.Manager
	gameHandler *GameHandler
	wsHandler   *WebSocketHandler
	log         *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(deps Deps) *Router {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.AccessLog(log))
	engine.Use(middleware.Recovery(log))

	router := &Router{
		engine:      engine,
		repos:       deps.Repos,
		gameHandler: NewGameHandler(deps.Repos, deps.Content, log),
		log:         log,
	}
	if deps.Hub != nil {
		wsCfg := deps.WebSocket
		if wsCfg == nil {
			wsCfg = &config.WebSocketConfig{}
		}
		router.wsHandler = NewWebSocketHandler(deps.Hub, deps.Repos, wsCfg, log)
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查与指标
	r.engine.GET("/health", r.healthCheck)
	r.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API v1路由组，只读
	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/games/:owner", r.gameHandler.ListByOwner)

		game := v1.Group("/game/:id")
		{
			game.GET("", r.gameHandler.Get)
			game.GET("/current-level", r.gameHandler.CurrentLevel)
			game.GET("/levels", r.gameHandler.Levels)
			game.GET("/interactions", r.gameHandler.Interactions)
		}
	}

	// WebSocket路由
	if r.wsHandler != nil {
		r.engine.GET("/ws/games/:id", r.wsHandler.ServeGame)
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	// 检查数据库连接
	sqlDB, err := r.repos.GetDB().DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"message": "数据库ping失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// Handler 返回HTTP处理器
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
