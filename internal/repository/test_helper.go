package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/gamemaster/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 为测试套件设置内存数据库
//
// 内存库的每个连接都是独立的数据库，因此连接池限制为单连接。
func SetupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		panic(err)
	}

	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// SeedLevels 按难度批量创建关卡，id 从 firstID 开始递增
func SeedLevels(t *testing.T, db *gorm.DB, firstID uint64, difficulties ...int) []*models.Level {
	t.Helper()
	levels := make([]*models.Level, 0, len(difficulties))
	for i, d := range difficulties {
		levels = append(levels, &models.Level{
			ID:         firstID + uint64(i),
			ContentRef: "challenge for level",
			Difficulty: d,
		})
	}
	require.NoError(t, db.Create(&levels).Error)
	return levels
}

// AssertGame 验证游戏状态
func AssertGame(t *testing.T, db *gorm.DB, id uint64, active bool, levelsAssigned int) {
	t.Helper()
	var game models.Game
	require.NoError(t, db.First(&game, "id = ?", id).Error)
	assert.Equal(t, active, game.IsActive, "game %d is_active", id)
	assert.Equal(t, levelsAssigned, game.LevelsAssigned, "game %d levels_assigned", id)
}
