package database

import (
	"fmt"

	"github.com/wfunc/gamemaster/internal/logger"
	"github.com/wfunc/gamemaster/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}

	log := logger.WithModule("database")

	// 获取迁移锁，避免多个进程同时迁移
	if dbPath := sqlitePath(db); dbPath != "" {
		CleanupStaleLocks(dbPath)
		lock := newFileLock(dbPath)
		if err := lock.acquire(); err != nil {
			log.Error("无法获取迁移锁", zap.Error(err))
			return err
		}
		defer lock.release()
	}

	log.Info("开始数据库迁移...")

	for _, model := range models.AllModels() {
		if err := db.AutoMigrate(model); err != nil {
			log.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return fmt.Errorf("迁移 %T 失败: %w", model, err)
		}
		log.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes(db, log)

	log.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建查询用的辅助索引
func createIndexes(db *gorm.DB, log *zap.Logger) {
	indexes := map[string]string{
		"idx_games_owner_id":         "CREATE INDEX IF NOT EXISTS idx_games_owner_id ON games(owner, id)",
		"idx_levels_difficulty_id":   "CREATE INDEX IF NOT EXISTS idx_levels_difficulty_id ON levels(difficulty, id)",
		"idx_interactions_game_stat": "CREATE INDEX IF NOT EXISTS idx_interactions_game_stat ON interactions(game_id, status)",
	}

	for name, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			log.Warn("创建索引失败", zap.String("index", name), zap.Error(err))
		}
	}
}

// sqlitePath 返回SQLite数据库文件路径，其他驱动或内存库返回空
func sqlitePath(db *gorm.DB) string {
	if db.Dialector.Name() != "sqlite" {
		return ""
	}

	sqlDB, err := db.DB()
	if err != nil {
		return ""
	}

	row := sqlDB.QueryRow("PRAGMA database_list")
	var seq int
	var name, file string
	if err := row.Scan(&seq, &name, &file); err != nil {
		return ""
	}
	return file
}

// DropAllTables 删除所有表（仅用于测试环境）
func DropAllTables(db *gorm.DB) error {
	all := models.AllModels()
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("删除表 %T 失败: %w", all[i], err)
		}
	}
	return nil
}
