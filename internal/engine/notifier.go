package engine

import (
	"time"
)

// NotificationType 进度通知类型
type NotificationType string

const (
	NotifyLevelAssigned        NotificationType = "level_assigned"
	NotifyInteractionEvaluated NotificationType = "interaction_evaluated"
	NotifyGameCompleted        NotificationType = "game_completed"
)

// Notification 游戏进度变化
type Notification struct {
	Type          NotificationType `json:"type"`
	GameID        uint64           `json:"game_id"`
	LevelIndex    int              `json:"level_index"`
	LevelID       uint64           `json:"level_id,omitempty"`
	InteractionID uint64           `json:"interaction_id,omitempty"`
	Passed        bool             `json:"passed,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	TxHash        string           `json:"tx_hash,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Notifier 进度通知接收方，实现不得阻塞
type Notifier interface {
	Notify(n Notification)
}

// NopNotifier 丢弃全部通知
type NopNotifier struct{}

// Notify 丢弃通知
func (NopNotifier) Notify(Notification) {}

// NotifierFunc 函数适配器
type NotifierFunc func(n Notification)

// Notify 调用函数
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}
