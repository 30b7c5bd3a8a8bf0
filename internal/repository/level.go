package repository

import (
	"context"
	"fmt"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LevelRepository 关卡仓储接口
type LevelRepository interface {
	BaseRepository
	// CreateIfAbsent 按 levelId 插入关卡，已存在时返回 false
	CreateIfAbsent(ctx context.Context, level *models.Level) (bool, error)
	FindByID(ctx context.Context, id uint64) (*models.Level, error)
	// PickRandom 在指定难度中随机选择一个关卡，pick(n) 返回 [0,n) 内的下标
	PickRandom(ctx context.Context, difficulty int, pick func(n int) int) (*models.Level, error)
	CountByDifficulty(ctx context.Context) (map[int]int64, error)
}

// levelRepo 关卡仓储实现
type levelRepo struct {
	*BaseRepo
}

// NewLevelRepository 创建关卡仓储
func NewLevelRepository(db *gorm.DB) LevelRepository {
	return &levelRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// CreateIfAbsent 插入关卡
func (r *levelRepo) CreateIfAbsent(ctx context.Context, level *models.Level) (bool, error) {
	result := r.conn(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(level)
	if result.Error != nil {
		return false, writeErr(result.Error, apperrors.ErrDatabaseInsert, fmt.Sprintf("关卡: %d", level.ID))
	}
	return result.RowsAffected > 0, nil
}

// FindByID 根据ID查找关卡
func (r *levelRepo) FindByID(ctx context.Context, id uint64) (*models.Level, error) {
	var level models.Level
	err := r.conn(ctx).First(&level, "id = ?", id).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrNotFound, fmt.Sprintf("关卡: %d", id))
	}
	return &level, nil
}

// PickRandom 随机选择关卡
func (r *levelRepo) PickRandom(ctx context.Context, difficulty int, pick func(n int) int) (*models.Level, error) {
	var count int64
	err := r.conn(ctx).
		Model(&models.Level{}).
		Where("difficulty = ?", difficulty).
		Count(&count).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrDatabaseQuery, fmt.Sprintf("难度: %d", difficulty))
	}
	if count == 0 {
		return nil, apperrors.Newf(apperrors.ErrNoLevelAvailable, "难度: %d", difficulty)
	}

	offset := pick(int(count))
	if offset < 0 || offset >= int(count) {
		offset = 0
	}

	var level models.Level
	err = r.conn(ctx).
		Where("difficulty = ?", difficulty).
		Order("id ASC").
		Offset(offset).
		Limit(1).
		Take(&level).Error
	if err != nil {
		// 计数与读取之间关卡不会被删除，找不到说明存储异常
		return nil, queryErr(err, apperrors.ErrDatabaseQuery, fmt.Sprintf("难度: %d", difficulty))
	}
	return &level, nil
}

// CountByDifficulty 统计每个难度的关卡数量
func (r *levelRepo) CountByDifficulty(ctx context.Context) (map[int]int64, error) {
	var rows []struct {
		Difficulty int
		Total      int64
	}
	err := r.conn(ctx).
		Model(&models.Level{}).
		Select("difficulty, COUNT(*) AS total").
		Group("difficulty").
		Scan(&rows).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrDatabaseQuery, "统计关卡")
	}

	counts := make(map[int]int64, models.MaxDifficulty)
	for d := models.MinDifficulty; d <= models.MaxDifficulty; d++ {
		counts[d] = 0
	}
	for _, row := range rows {
		counts[row.Difficulty] = row.Total
	}
	return counts, nil
}
