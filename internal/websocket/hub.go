package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/gamemaster/internal/engine"
	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心，按游戏推送进度
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 游戏ID到客户端的映射
	gameClients map[uint64]map[string]*Client
	gameMu      sync.RWMutex

	// 进度广播通道
	broadcast chan *Message

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	pingInterval time.Duration
	done         chan struct{}

	// 日志
	logger *zap.Logger
}

// Client WebSocket客户端
type Client struct {
	ID     string          // 客户端ID
	GameID uint64          // 订阅的游戏ID
	Hub    *Hub            // Hub引用
	Conn   *websocket.Conn // WebSocket连接
	Send   chan []byte     // 发送通道

	closeOnce sync.Once
}

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"` // 消息类型
	GameID    uint64          `json:"game_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"` // 消息数据
	Timestamp int64           `json:"timestamp"`      // 时间戳
}

// MessageType 消息类型
const (
	// 系统消息
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"

	// 进度消息
	MessageTypeProgress = "progress"
)

// broadcastBuffer 广播通道容量
const broadcastBuffer = 256

// NewHub 创建Hub，pingInterval 为应用层心跳间隔，0 表示不发送
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:      make(map[string]*Client),
		gameClients:  make(map[uint64]map[string]*Client),
		broadcast:    make(chan *Message, broadcastBuffer),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		pingInterval: pingInterval,
		done:         make(chan struct{}),
		logger:       logger,
	}
}

// Run 运行Hub直到 ctx 结束，结束时关闭全部客户端
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var heartbeat <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.sendToGame(message)

		case <-heartbeat:
			h.pingAll()
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.gameMu.Lock()
	if h.gameClients[client.GameID] == nil {
		h.gameClients[client.GameID] = make(map[string]*Client)
	}
	h.gameClients[client.GameID][client.ID] = client
	h.gameMu.Unlock()

	h.logger.Info("客户端已连接",
		zap.String("client_id", client.ID),
		zap.Uint64("game_id", client.GameID))

	h.deliver(client, &Message{
		Type:      MessageTypeConnected,
		GameID:    client.GameID,
		Timestamp: time.Now().Unix(),
	})
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[client.ID]
	delete(h.clients, client.ID)
	h.clientsMu.Unlock()
	if !ok {
		return
	}

	h.gameMu.Lock()
	if subs := h.gameClients[client.GameID]; subs != nil {
		delete(subs, client.ID)
		if len(subs) == 0 {
			delete(h.gameClients, client.GameID)
		}
	}
	h.gameMu.Unlock()

	client.closeSend()
	h.logger.Info("客户端已断开",
		zap.String("client_id", client.ID),
		zap.Uint64("game_id", client.GameID))
}

// sendToGame 发送消息给订阅该游戏的全部客户端
func (h *Hub) sendToGame(message *Message) {
	h.gameMu.RLock()
	subs := make([]*Client, 0, len(h.gameClients[message.GameID]))
	for _, client := range h.gameClients[message.GameID] {
		subs = append(subs, client)
	}
	h.gameMu.RUnlock()

	for _, client := range subs {
		h.deliver(client, message)
	}
}

// deliver 投递到客户端发送缓冲区，缓冲区满时断开该客户端
func (h *Hub) deliver(client *Client, message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	select {
	case client.Send <- data:
	default:
		h.logger.Warn("客户端发送缓冲区满，断开连接",
			zap.String("client_id", client.ID),
			zap.Uint64("game_id", client.GameID))
		h.unregisterClient(client)
	}
}

// pingAll 发送应用层心跳
func (h *Hub) pingAll() {
	h.clientsMu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		all = append(all, client)
	}
	h.clientsMu.RUnlock()

	ping := &Message{Type: MessageTypePing, Timestamp: time.Now().Unix()}
	for _, client := range all {
		h.deliver(client, ping)
	}
}

// closeAll 关闭全部客户端
func (h *Hub) closeAll() {
	h.clientsMu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		all = append(all, client)
	}
	h.clientsMu.RUnlock()

	for _, client := range all {
		h.unregisterClient(client)
	}
}

// Notify 推送进度通知，广播通道满时丢弃
func (h *Hub) Notify(n engine.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("序列化进度通知失败", zap.Error(err))
		return
	}

	message := &Message{
		Type:      MessageTypeProgress,
		GameID:    n.GameID,
		Data:      data,
		Timestamp: n.Timestamp.Unix(),
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("广播通道已满，丢弃进度通知",
			zap.Uint64("game_id", n.GameID),
			zap.String("type", string(n.Type)))
	}
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// GetGameCount 获取订阅指定游戏的连接数
func (h *Hub) GetGameCount(gameID uint64) int {
	h.gameMu.RLock()
	defer h.gameMu.RUnlock()
	return len(h.gameClients[gameID])
}

// Register 注册客户端（公开方法），Hub 已停止时返回 false
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销客户端（公开方法）
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
