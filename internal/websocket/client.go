package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/gamemaster/internal/config"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrInvalidMessage = errors.New("无效的消息格式")
)

// 默认连接参数
const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 4096
	sendBuffer            = 64
)

// ClientOptions 连接参数
type ClientOptions struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

// OptionsFromConfig 从配置构造连接参数，ping 周期必须小于 pong 超时
func OptionsFromConfig(cfg *config.WebSocketConfig) ClientOptions {
	opts := ClientOptions{
		WriteWait:      cfg.WriteTimeout,
		PongWait:       cfg.PongTimeout,
		PingPeriod:     cfg.PingInterval,
		MaxMessageSize: cfg.MaxMessageSize,
	}
	return opts.withDefaults()
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	return o
}

// NewClient 创建订阅指定游戏的客户端
func NewClient(hub *Hub, conn *websocket.Conn, gameID uint64) *Client {
	return &Client{
		ID:     uuid.New().String(),
		GameID: gameID,
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
	}
}

// closeSend 关闭发送通道，只执行一次
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// ReadPump 读取消息，退出时注销客户端，连接由 WritePump 关闭
func (c *Client) ReadPump(opts ClientOptions) {
	opts = opts.withDefaults()
	defer c.Hub.Unregister(c)

	c.Conn.SetReadLimit(opts.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.logger.Debug("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}

		if err := c.handleMessage(message); err != nil {
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	}
}

// WritePump 写入消息，发送通道关闭后发送关闭帧
func (c *Client) WritePump(opts ClientOptions) {
	opts = opts.withDefaults()
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				// Hub关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理客户端消息，订阅是只读的，只接受心跳
func (c *Client) handleMessage(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		c.Hub.logger.Warn("收到无效的WebSocket消息",
			zap.String("client_id", c.ID))
		c.sendError("消息格式错误")
		return ErrInvalidMessage
	}

	switch msg.Type {
	case MessageTypePing:
		c.trySend(&Message{Type: MessageTypePong, GameID: c.GameID, Timestamp: time.Now().Unix()})
	case MessageTypePong:
		c.Hub.logger.Debug("收到pong", zap.String("client_id", c.ID))
	default:
		c.sendError("不支持的消息类型: " + msg.Type)
	}
	return nil
}

// sendError 发送错误消息
func (c *Client) sendError(message string) {
	data, _ := json.Marshal(map[string]string{"error": message})
	c.trySend(&Message{
		Type:      MessageTypeError,
		GameID:    c.GameID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// trySend 从读协程直接回复，发送通道满或已关闭时放弃
func (c *Client) trySend(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	defer func() {
		// 发送通道已被 Hub 关闭
		_ = recover()
	}()
	select {
	case c.Send <- data:
	default:
	}
}
