package repository

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CursorRepository 事件游标仓储接口
type CursorRepository interface {
	BaseRepository
	// Load 读取游标，不存在时返回 (0, false, nil)
	Load(ctx context.Context, name string) (uint64, bool, error)
	// Save 推进游标并清零失败次数
	Save(ctx context.Context, name string, block uint64) error
	// RecordFailure 记录从 block 开始的窗口投递失败一次，返回该窗口累计失败次数
	RecordFailure(ctx context.Context, name string, block uint64) (int, error)
}

// cursorRepo 事件游标仓储实现
type cursorRepo struct {
	*BaseRepo
}

// NewCursorRepository 创建事件游标仓储
func NewCursorRepository(db *gorm.DB) CursorRepository {
	return &cursorRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Load 读取游标
func (r *cursorRepo) Load(ctx context.Context, name string) (uint64, bool, error) {
	var cursor models.LedgerCursor
	err := r.conn(ctx).Where("name = ?", name).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, queryErr(err, apperrors.ErrDatabaseQuery, "游标: "+name)
	}
	return cursor.Block, true, nil
}

// Save 保存游标
func (r *cursorRepo) Save(ctx context.Context, name string, block uint64) error {
	cursor := &models.LedgerCursor{Name: name, Block: block}
	err := r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"block":      block,
				"attempts":   0,
				"updated_at": time.Now(),
			}),
		}).
		Create(cursor).Error
	return writeErr(err, apperrors.ErrDatabaseUpdate, "游标: "+name)
}

// RecordFailure 记录窗口投递失败
func (r *cursorRepo) RecordFailure(ctx context.Context, name string, block uint64) (int, error) {
	attempts := 1
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var cursor models.LedgerCursor
		err := tx.Where("name = ?", name).First(&cursor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.LedgerCursor{Name: name, Block: block, Attempts: attempts}).Error
		}
		if err != nil {
			return err
		}

		// 游标位置变化后重新计数
		if cursor.Block == block {
			attempts = cursor.Attempts + 1
		}
		return tx.Model(&cursor).Updates(map[string]interface{}{
			"block":    block,
			"attempts": attempts,
		}).Error
	})
	if err != nil {
		return 0, writeErr(err, apperrors.ErrDatabaseUpdate, "游标: "+name)
	}
	return attempts, nil
}
