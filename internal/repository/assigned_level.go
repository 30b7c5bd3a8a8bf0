package repository

import (
	"context"
	"fmt"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/models"
	"gorm.io/gorm"
)

// AssignedLevelRepository 关卡分配仓储接口
type AssignedLevelRepository interface {
	BaseRepository
	// Append 追加一条分配记录，(game_id, level_index) 冲突时返回 ErrAlreadyExists
	Append(ctx context.Context, gameID uint64, levelIndex int, levelID uint64) (*models.AssignedLevel, error)
	// Current 返回下标最大的分配记录
	Current(ctx context.Context, gameID uint64) (*models.AssignedLevel, error)
	FindByIndex(ctx context.Context, gameID uint64, levelIndex int) (*models.AssignedLevel, error)
	// MarkCompleted 将指定下标标记为完成，只会从 false 变为 true
	MarkCompleted(ctx context.Context, gameID uint64, levelIndex int) (bool, error)
	ListByGame(ctx context.Context, gameID uint64) ([]*models.AssignedLevel, error)
}

// assignedLevelRepo 关卡分配仓储实现
type assignedLevelRepo struct {
	*BaseRepo
}

// NewAssignedLevelRepository 创建关卡分配仓储
func NewAssignedLevelRepository(db *gorm.DB) AssignedLevelRepository {
	return &assignedLevelRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Append 追加分配记录
func (r *assignedLevelRepo) Append(ctx context.Context, gameID uint64, levelIndex int, levelID uint64) (*models.AssignedLevel, error) {
	// 先检查槽位，避免依赖各驱动不同的唯一约束错误
	var count int64
	err := r.conn(ctx).
		Model(&models.AssignedLevel{}).
		Where("game_id = ? AND level_index = ?", gameID, levelIndex).
		Count(&count).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrDatabaseQuery, fmt.Sprintf("游戏: %d", gameID))
	}
	if count > 0 {
		return nil, apperrors.Newf(apperrors.ErrAlreadyExists, "游戏 %d 的第 %d 关已分配", gameID, levelIndex)
	}

	assigned := &models.AssignedLevel{
		GameID:     gameID,
		LevelIndex: levelIndex,
		LevelID:    levelID,
	}
	if err := r.conn(ctx).Create(assigned).Error; err != nil {
		return nil, writeErr(err, apperrors.ErrDatabaseInsert, fmt.Sprintf("游戏: %d 关卡: %d", gameID, levelID))
	}
	return assigned, nil
}

// Current 获取当前关卡
func (r *assignedLevelRepo) Current(ctx context.Context, gameID uint64) (*models.AssignedLevel, error) {
	var assigned models.AssignedLevel
	err := r.conn(ctx).
		Preload("Level").
		Where("game_id = ?", gameID).
		Order("level_index DESC").
		First(&assigned).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrNoAssignedLevel, fmt.Sprintf("游戏: %d", gameID))
	}
	return &assigned, nil
}

// FindByIndex 按下标查找分配记录
func (r *assignedLevelRepo) FindByIndex(ctx context.Context, gameID uint64, levelIndex int) (*models.AssignedLevel, error) {
	var assigned models.AssignedLevel
	err := r.conn(ctx).
		Preload("Level").
		Where("game_id = ? AND level_index = ?", gameID, levelIndex).
		First(&assigned).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrNoAssignedLevel, fmt.Sprintf("游戏: %d 下标: %d", gameID, levelIndex))
	}
	return &assigned, nil
}

// MarkCompleted 标记关卡完成
func (r *assignedLevelRepo) MarkCompleted(ctx context.Context, gameID uint64, levelIndex int) (bool, error) {
	result := r.conn(ctx).
		Model(&models.AssignedLevel{}).
		Where("game_id = ? AND level_index = ? AND completed = ?", gameID, levelIndex, false).
		Update("completed", true)
	if result.Error != nil {
		return false, writeErr(result.Error, apperrors.ErrDatabaseUpdate, fmt.Sprintf("游戏: %d 下标: %d", gameID, levelIndex))
	}
	return result.RowsAffected > 0, nil
}

// ListByGame 获取游戏的全部分配记录
func (r *assignedLevelRepo) ListByGame(ctx context.Context, gameID uint64) ([]*models.AssignedLevel, error) {
	var list []*models.AssignedLevel
	err := r.conn(ctx).
		Preload("Level").
		Where("game_id = ?", gameID).
		Order("level_index ASC").
		Find(&list).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrDatabaseQuery, fmt.Sprintf("游戏: %d", gameID))
	}
	return list, nil
}
