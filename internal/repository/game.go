package repository

import (
	"context"
	"fmt"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameRepository 游戏仓储接口
type GameRepository interface {
	BaseRepository
	// CreateIfAbsent 按 gameId 插入游戏，已存在时返回 false
	CreateIfAbsent(ctx context.Context, game *models.Game) (bool, error)
	FindByID(ctx context.Context, id uint64) (*models.Game, error)
	// FindByOwner 按拥有者查询，新游戏在前
	FindByOwner(ctx context.Context, owner string, pagination *Pagination) ([]*models.Game, error)
	IncrementLevelsAssigned(ctx context.Context, id uint64) error
	// Finalize 结束游戏，只会从 active 变为 inactive 一次
	Finalize(ctx context.Context, id uint64) (bool, error)
	// FindUnassigned 查询尚未分配任何关卡的活跃游戏
	FindUnassigned(ctx context.Context, limit int) ([]*models.Game, error)
	// FindAwaitingNext 查询当前关卡已完成但尚未分配下一关的活跃游戏
	FindAwaitingNext(ctx context.Context, limit int) ([]*models.Game, error)
}

// gameRepo 游戏仓储实现
type gameRepo struct {
	*BaseRepo
}

// NewGameRepository 创建游戏仓储
func NewGameRepository(db *gorm.DB) GameRepository {
	return &gameRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// CreateIfAbsent 插入游戏
func (r *gameRepo) CreateIfAbsent(ctx context.Context, game *models.Game) (bool, error) {
	result := r.conn(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(game)
	if result.Error != nil {
		return false, writeErr(result.Error, apperrors.ErrDatabaseInsert, fmt.Sprintf("游戏: %d", game.ID))
	}
	return result.RowsAffected > 0, nil
}

// FindByID 根据ID查找游戏
func (r *gameRepo) FindByID(ctx context.Context, id uint64) (*models.Game, error) {
	var game models.Game
	err := r.conn(ctx).First(&game, "id = ?", id).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrGameNotFound, fmt.Sprintf("游戏: %d", id))
	}
	return &game, nil
}

// FindByOwner 根据拥有者查找游戏
func (r *gameRepo) FindByOwner(ctx context.Context, owner string, pagination *Pagination) ([]*models.Game, error) {
	var games []*models.Game
	query := r.conn(ctx).
		Model(&models.Game{}).
		Where("LOWER(owner) = LOWER(?)", owner).
		Session(&gorm.Session{})

	if pagination != nil {
		if err := query.Count(&pagination.Total).Error; err != nil {
			return nil, queryErr(err, apperrors.ErrDatabaseQuery, "统计游戏")
		}
		query = query.Scopes(Paginate(pagination))
	}

	err := query.Order("id DESC").Find(&games).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrDatabaseQuery, fmt.Sprintf("拥有者: %s", owner))
	}
	return games, nil
}

// IncrementLevelsAssigned 已分配关卡数加一
func (r *gameRepo) IncrementLevelsAssigned(ctx context.Context, id uint64) error {
	result := r.conn(ctx).
		Model(&models.Game{}).
		Where("id = ?", id).
		Update("levels_assigned", gorm.Expr("levels_assigned + ?", 1))
	if result.Error != nil {
		return writeErr(result.Error, apperrors.ErrDatabaseUpdate, fmt.Sprintf("游戏: %d", id))
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.ErrGameNotFound, "游戏: %d", id)
	}
	return nil
}

// Finalize 结束游戏
func (r *gameRepo) Finalize(ctx context.Context, id uint64) (bool, error) {
	result := r.conn(ctx).
		Model(&models.Game{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if result.Error != nil {
		return false, writeErr(result.Error, apperrors.ErrDatabaseUpdate, fmt.Sprintf("游戏: %d", id))
	}
	return result.RowsAffected > 0, nil
}

// FindUnassigned 查询未分配关卡的游戏
func (r *gameRepo) FindUnassigned(ctx context.Context, limit int) ([]*models.Game, error) {
	var games []*models.Game
	err := r.conn(ctx).
		Where("is_active = ? AND levels_assigned = ?", true, 0).
		Order("id ASC").
		Limit(limit).
		Find(&games).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrDatabaseQuery, "查询未分配关卡的游戏")
	}
	return games, nil
}

// FindAwaitingNext 查询等待下一关的游戏
func (r *gameRepo) FindAwaitingNext(ctx context.Context, limit int) ([]*models.Game, error) {
	var games []*models.Game
	err := r.conn(ctx).
		Model(&models.Game{}).
		Select("games.*").
		Joins("JOIN assigned_levels ON assigned_levels.game_id = games.id AND assigned_levels.level_index = games.levels_assigned - 1").
		Where("games.is_active = ? AND games.levels_assigned > ? AND games.levels_assigned < ?", true, 0, models.LevelsPerGame).
		Where("assigned_levels.completed = ?", true).
		Order("games.id ASC").
		Limit(limit).
		Find(&games).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrDatabaseQuery, "查询等待下一关的游戏")
	}
	return games, nil
}
