package repository

import (
	"context"
	"fmt"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InteractionRepository 交互仓储接口
type InteractionRepository interface {
	BaseRepository
	// Claim 按 (game_id, interaction_id) 登记交互，返回已存储的记录
	Claim(ctx context.Context, interaction *models.Interaction) (*models.Interaction, error)
	Find(ctx context.Context, gameID, interactionID uint64) (*models.Interaction, error)
	// SaveVerdict 记录裁决结果，仅对 received 状态生效
	SaveVerdict(ctx context.Context, id uint, passed bool, reason string) error
	// MarkReported 标记结果已上链
	MarkReported(ctx context.Context, id uint) error
	ListByGame(ctx context.Context, gameID uint64, pagination *Pagination) ([]*models.Interaction, error)
}

// interactionRepo 交互仓储实现
type interactionRepo struct {
	*BaseRepo
}

// NewInteractionRepository 创建交互仓储
func NewInteractionRepository(db *gorm.DB) InteractionRepository {
	return &interactionRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Claim 登记交互
func (r *interactionRepo) Claim(ctx context.Context, interaction *models.Interaction) (*models.Interaction, error) {
	if interaction.Status == "" {
		interaction.Status = models.InteractionReceived
	}

	err := r.conn(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(interaction).Error
	if err != nil {
		return nil, writeErr(err, apperrors.ErrDatabaseInsert,
			fmt.Sprintf("游戏: %d 交互: %d", interaction.GameID, interaction.InteractionID))
	}

	return r.Find(ctx, interaction.GameID, interaction.InteractionID)
}

// Find 查找交互
func (r *interactionRepo) Find(ctx context.Context, gameID, interactionID uint64) (*models.Interaction, error) {
	var interaction models.Interaction
	err := r.conn(ctx).
		Where("game_id = ? AND interaction_id = ?", gameID, interactionID).
		First(&interaction).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrNotFound, fmt.Sprintf("游戏: %d 交互: %d", gameID, interactionID))
	}
	return &interaction, nil
}

// SaveVerdict 记录裁决
func (r *interactionRepo) SaveVerdict(ctx context.Context, id uint, passed bool, reason string) error {
	err := r.conn(ctx).
		Model(&models.Interaction{}).
		Where("id = ? AND status = ?", id, models.InteractionReceived).
		Updates(map[string]interface{}{
			"result":      reason,
			"is_complete": passed,
			"status":      models.InteractionEvaluated,
		}).Error
	return writeErr(err, apperrors.ErrDatabaseUpdate, fmt.Sprintf("交互记录: %d", id))
}

// MarkReported 标记已上链
func (r *interactionRepo) MarkReported(ctx context.Context, id uint) error {
	err := r.conn(ctx).
		Model(&models.Interaction{}).
		Where("id = ?", id).
		Update("status", models.InteractionReported).Error
	return writeErr(err, apperrors.ErrDatabaseUpdate, fmt.Sprintf("交互记录: %d", id))
}

// ListByGame 获取游戏的交互记录，新记录在前
func (r *interactionRepo) ListByGame(ctx context.Context, gameID uint64, pagination *Pagination) ([]*models.Interaction, error) {
	var list []*models.Interaction
	query := r.conn(ctx).
		Model(&models.Interaction{}).
		Where("game_id = ?", gameID).
		Session(&gorm.Session{})

	if pagination != nil {
		if err := query.Count(&pagination.Total).Error; err != nil {
			return nil, queryErr(err, apperrors.ErrDatabaseQuery, "统计交互")
		}
		query = query.Scopes(Paginate(pagination))
	}

	err := query.Order("interaction_id DESC").Find(&list).Error
	if err != nil {
		return nil, queryErr(err, apperrors.ErrDatabaseQuery, fmt.Sprintf("游戏: %d", gameID))
	}
	return list, nil
}
