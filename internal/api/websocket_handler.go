package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/gamemaster/internal/config"
	"github.com/wfunc/gamemaster/internal/repository"
	ws "github.com/wfunc/gamemaster/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler 游戏进度推送处理器
type WebSocketHandler struct {
	hub      *ws.Hub
	repos    *repository.Manager
	upgrader websocket.Upgrader
	opts     ws.ClientOptions
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *ws.Hub, repos *repository.Manager, cfg *config.WebSocketConfig, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:   hub,
		repos: repos,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin: func(r *http.Request) bool {
				// 推送内容均为公开的链上进度
				return true
			},
		},
		opts:   ws.OptionsFromConfig(cfg),
		logger: logger,
	}
}

// ServeGame 订阅指定游戏的进度推送
func (h *WebSocketHandler) ServeGame(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}

	// 只允许订阅已存在的游戏
	if _, err := h.repos.Games().FindByID(c.Request.Context(), gameID); err != nil {
		respondError(c, err)
		return
	}

	// 升级为WebSocket连接
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket升级失败",
			zap.Uint64("game_id", gameID),
			zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, gameID)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	// 启动读写协程
	go client.WritePump(h.opts)
	go client.ReadPump(h.opts)

	h.logger.Debug("WebSocket连接建立",
		zap.String("client_id", client.ID),
		zap.Uint64("game_id", gameID),
		zap.String("ip", c.ClientIP()))
}
