package models

import (
	"time"
)

// Level 关卡表，主键为链上的 levelId
type Level struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ContentRef string    `gorm:"size:1024;not null" json:"content_ref"` // 内容存储句柄或内联挑战文本
	Difficulty int       `gorm:"not null;index" json:"difficulty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName 指定表名
func (Level) TableName() string {
	return "levels"
}

// Game 游戏表，主键为链上的 gameId
type Game struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Owner          string    `gorm:"size:64;not null;index" json:"owner"`
	IsActive       bool      `gorm:"not null;default:true;index" json:"is_active"`
	LevelsAssigned int       `gorm:"not null;default:0" json:"levels_assigned"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Game) TableName() string {
	return "games"
}

// IsFinished 是否已完成全部关卡
func (g *Game) IsFinished() bool {
	return !g.IsActive
}

// AssignedLevel 游戏关卡分配记录
//
// LevelIndex 是该关卡在本局中的下标，(game_id, level_index) 唯一，
// 当前关卡即下标最大的一条记录。
type AssignedLevel struct {
	BaseModel
	GameID     uint64 `gorm:"not null;uniqueIndex:idx_assigned_game_index,priority:1" json:"game_id"`
	LevelIndex int    `gorm:"not null;uniqueIndex:idx_assigned_game_index,priority:2" json:"level_index"`
	LevelID    uint64 `gorm:"not null;index" json:"level_id"`
	Completed  bool   `gorm:"not null;default:false" json:"completed"`

	// 关联
	Level *Level `gorm:"foreignKey:LevelID" json:"level,omitempty"`
}

// TableName 指定表名
func (AssignedLevel) TableName() string {
	return "assigned_levels"
}
