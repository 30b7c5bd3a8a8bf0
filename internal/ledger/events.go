// Package ledger 链上合约客户端：事件拉取与交易写入
package ledger

import (
	"context"
	"fmt"
)

// EventKind 事件类型
type EventKind string

// 合约事件
const (
	KindLevelCreated       EventKind = "LevelCreated"
	KindGameCreated        EventKind = "GameCreated"
	KindInteractionCreated EventKind = "InteractionCreated"
)

// 合约写入方法
const (
	MethodAssignLevel       = "assignLevel"
	MethodUpdateInteraction = "updateInteraction"
	MethodAddLevel          = "addLevel"
)

// LevelCreated 新关卡上链
type LevelCreated struct {
	LevelID    uint64
	ContentRef string
	Difficulty int
}

// GameCreated 新游戏上链
type GameCreated struct {
	GameID uint64
	Owner  string
}

// InteractionCreated 玩家提交行动
type InteractionCreated struct {
	GameID             uint64
	InteractionID      uint64
	Player             string
	AssignedLevelIndex int
	Action             string // 内联文本或内容句柄
}

// Event 已解码的链上事件，三个载荷字段中只有与 Kind 对应的一个非空
type Event struct {
	Kind     EventKind
	Block    uint64
	TxHash   string
	LogIndex uint

	LevelCreated       *LevelCreated
	GameCreated        *GameCreated
	InteractionCreated *InteractionCreated
}

// String 事件标识，用于日志
func (e Event) String() string {
	return fmt.Sprintf("%s@%d#%d", e.Kind, e.Block, e.LogIndex)
}

// Writer 链上写入接口，返回交易哈希
type Writer interface {
	AssignLevel(ctx context.Context, gameID, levelID uint64) (string, error)
	UpdateInteraction(ctx context.Context, gameID, interactionID uint64, passed bool, reason string) (string, error)
	AddLevel(ctx context.Context, contentRef string, difficulty int) (string, error)
}

// Dispatcher 事件批次的处理方
type Dispatcher interface {
	// Dispatch 处理批次，返回需要重投的事件
	Dispatch(ctx context.Context, batch []Event) []Event
	// DeadLetter 重投次数用尽的事件，游标将越过它
	DeadLetter(ev Event, attempts int)
}
