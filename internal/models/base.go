package models

import (
	"time"
)

// BaseModel 自增主键的基础模型
type BaseModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// 关卡难度范围
const (
	MinDifficulty = 1
	MaxDifficulty = 10
)

// 每局游戏的关卡数量，最后一关的下标为 FinalLevelIndex
const (
	LevelsPerGame   = 10
	FinalLevelIndex = LevelsPerGame - 1
)

// ValidDifficulty 判断难度是否在允许范围内
func ValidDifficulty(d int) bool {
	return d >= MinDifficulty && d <= MaxDifficulty
}

// AllModels 返回需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&Level{},
		&Game{},
		&AssignedLevel{},
		&Interaction{},
		&LedgerCursor{},
	}
}
