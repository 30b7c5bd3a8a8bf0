package models

// InteractionStatus 交互处理进度
type InteractionStatus string

// 交互处理状态：received → evaluated → reported
const (
	InteractionReceived  InteractionStatus = "received"  // 已接收，尚未裁决
	InteractionEvaluated InteractionStatus = "evaluated" // 已裁决，结果尚未上链
	InteractionReported  InteractionStatus = "reported"  // 结果已上链
)

// Interaction 玩家交互记录
type Interaction struct {
	BaseModel
	GameID             uint64            `gorm:"not null;uniqueIndex:idx_interaction_game_id,priority:1" json:"game_id"`
	InteractionID      uint64            `gorm:"not null;uniqueIndex:idx_interaction_game_id,priority:2" json:"interaction_id"`
	Player             string            `gorm:"size:64;not null;index" json:"player"`
	AssignedLevelIndex int               `gorm:"not null" json:"assigned_level_index"`
	Action             string            `gorm:"type:text" json:"action"`
	Result             string            `gorm:"type:text" json:"result"`                         // 裁判给出的理由
	IsComplete         bool              `gorm:"not null;default:false" json:"is_complete"`         // 是否通过
	Status             InteractionStatus `gorm:"size:20;not null;default:'received';index" json:"status"`
}

// TableName 指定表名
func (Interaction) TableName() string {
	return "interactions"
}

// IsReported 结果是否已经上链
func (i *Interaction) IsReported() bool {
	return i.Status == InteractionReported
}

// HasVerdict 是否已有裁决结果
func (i *Interaction) HasVerdict() bool {
	return i.Status == InteractionEvaluated || i.Status == InteractionReported
}

// LedgerCursor 链上事件拉取游标
type LedgerCursor struct {
	BaseModel
	Name     string `gorm:"size:64;not null;uniqueIndex" json:"name"`
	Block    uint64 `gorm:"not null;default:0" json:"block"`    // 下一个待拉取的区块
	Attempts int    `gorm:"not null;default:0" json:"attempts"` // 当前窗口已失败的投递次数
}

// TableName 指定表名
func (LedgerCursor) TableName() string {
	return "ledger_cursors"
}
