package repository

import (
	"context"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"gorm.io/gorm"
)

// Transaction 事务内的仓储视图，只在 WithTransaction 的回调中有效
type Transaction struct {
	tx *gorm.DB

	level         LevelRepository
	game          GameRepository
	assignedLevel AssignedLevelRepository
	interaction   InteractionRepository
	cursor        CursorRepository
}

// runInTransaction 在单个数据库事务中执行 fn
//
// fn 返回的错误原样返回并回滚；fn 中的 panic 会在回滚后继续抛出。
// 开启或提交事务失败时返回 ErrTransaction。
func runInTransaction(ctx context.Context, db *gorm.DB, fn func(tx *Transaction) error) error {
	var fnErr error
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&Transaction{tx: tx})
		return fnErr
	})
	if err == nil || fnErr != nil {
		return err
	}
	return apperrors.Wrap(err, apperrors.ErrTransaction, "执行事务")
}

// GetDB 获取事务中的数据库实例
func (t *Transaction) GetDB() *gorm.DB {
	return t.tx
}

// Levels 获取事务中的关卡仓储
func (t *Transaction) Levels() LevelRepository {
	if t.level == nil {
		t.level = NewLevelRepository(t.tx)
	}
	return t.level
}

// Games 获取事务中的游戏仓储
func (t *Transaction) Games() GameRepository {
	if t.game == nil {
		t.game = NewGameRepository(t.tx)
	}
	return t.game
}

// AssignedLevels 获取事务中的关卡分配仓储
func (t *Transaction) AssignedLevels() AssignedLevelRepository {
	if t.assignedLevel == nil {
		t.assignedLevel = NewAssignedLevelRepository(t.tx)
	}
	return t.assignedLevel
}

// Interactions 获取事务中的交互仓储
func (t *Transaction) Interactions() InteractionRepository {
	if t.interaction == nil {
		t.interaction = NewInteractionRepository(t.tx)
	}
	return t.interaction
}

// Cursors 获取事务中的游标仓储
func (t *Transaction) Cursors() CursorRepository {
	if t.cursor == nil {
		t.cursor = NewCursorRepository(t.tx)
	}
	return t.cursor
}
