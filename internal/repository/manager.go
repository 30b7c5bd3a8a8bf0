package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db *gorm.DB

	// 仓储实例（使用懒加载）
	levelOnce sync.Once
	level     LevelRepository

	gameOnce sync.Once
	game     GameRepository

	assignedLevelOnce sync.Once
	assignedLevel     AssignedLevelRepository

	interactionOnce sync.Once
	interaction     InteractionRepository

	cursorOnce sync.Once
	cursor     CursorRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// GetDB 获取数据库实例
func (m *Manager) GetDB() *gorm.DB {
	return m.db
}

// Levels 获取关卡仓储
func (m *Manager) Levels() LevelRepository {
	m.levelOnce.Do(func() {
		m.level = NewLevelRepository(m.db)
	})
	return m.level
}

// Games 获取游戏仓储
func (m *Manager) Games() GameRepository {
	m.gameOnce.Do(func() {
		m.game = NewGameRepository(m.db)
	})
	return m.game
}

// AssignedLevels 获取关卡分配仓储
func (m *Manager) AssignedLevels() AssignedLevelRepository {
	m.assignedLevelOnce.Do(func() {
		m.assignedLevel = NewAssignedLevelRepository(m.db)
	})
	return m.assignedLevel
}

// Interactions 获取交互仓储
func (m *Manager) Interactions() InteractionRepository {
	m.interactionOnce.Do(func() {
		m.interaction = NewInteractionRepository(m.db)
	})
	return m.interaction
}

// Cursors 获取事件游标仓储
func (m *Manager) Cursors() CursorRepository {
	m.cursorOnce.Do(func() {
		m.cursor = NewCursorRepository(m.db)
	})
	return m.cursor
}

// WithTransaction 在事务中执行操作，fn 返回错误或 panic 时回滚
func (m *Manager) WithTransaction(ctx context.Context, fn func(tx *Transaction) error) error {
	return runInTransaction(ctx, m.db, fn)
}
