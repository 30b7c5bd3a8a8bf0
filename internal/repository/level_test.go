package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/models"
	"gorm.io/gorm"
)

// LevelRepositoryTestSuite 关卡仓储测试套件
type LevelRepositoryTestSuite struct {
	suite.Suite
	db        *gorm.DB
	levelRepo LevelRepository
}

func (suite *LevelRepositoryTestSuite) SetupTest() {
	suite.db = SetupTestDB()
	suite.levelRepo = NewLevelRepository(suite.db)
}

func (suite *LevelRepositoryTestSuite) TearDownTest() {
	CleanupTestDB(suite.db)
}

// TestCreateIfAbsent 测试重复投递的关卡事件
func (suite *LevelRepositoryTestSuite) TestCreateIfAbsent() {
	ctx := context.Background()

	created, err := suite.levelRepo.CreateIfAbsent(ctx, &models.Level{ID: 7, ContentRef: "slay the wyrm", Difficulty: 1})
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), created)

	created, err = suite.levelRepo.CreateIfAbsent(ctx, &models.Level{ID: 7, ContentRef: "other", Difficulty: 5})
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), created)

	level, err := suite.levelRepo.FindByID(ctx, 7)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "slay the wyrm", level.ContentRef)
	assert.Equal(suite.T(), 1, level.Difficulty)

	_, err = suite.levelRepo.FindByID(ctx, 8)
	assert.True(suite.T(), apperrors.Is(err, apperrors.ErrNotFound))
}

// TestPickRandom 测试按难度随机选择
func (suite *LevelRepositoryTestSuite) TestPickRandom() {
	ctx := context.Background()
	SeedLevels(suite.T(), suite.db, 10, 2, 1, 2, 2)

	// 难度2的关卡按 id 排序为 10, 12, 13
	var seen []int
	level, err := suite.levelRepo.PickRandom(ctx, 2, func(n int) int {
		seen = append(seen, n)
		return 1
	})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), uint64(12), level.ID)
	assert.Equal(suite.T(), []int{3}, seen)

	level, err = suite.levelRepo.PickRandom(ctx, 1, func(n int) int { return 0 })
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), uint64(11), level.ID)

	// 越界下标退回第一个
	level, err = suite.levelRepo.PickRandom(ctx, 2, func(n int) int { return 99 })
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), uint64(10), level.ID)
}

// TestPickRandomEmptyPool 测试空关卡池
func (suite *LevelRepositoryTestSuite) TestPickRandomEmptyPool() {
	SeedLevels(suite.T(), suite.db, 1, 1)

	_, err := suite.levelRepo.PickRandom(context.Background(), 3, func(n int) int { return 0 })
	assert.Error(suite.T(), err)
	assert.True(suite.T(), apperrors.Is(err, apperrors.ErrNoLevelAvailable))
	assert.False(suite.T(), apperrors.IsRetryable(err))
}

// TestCountByDifficulty 测试难度统计
func (suite *LevelRepositoryTestSuite) TestCountByDifficulty() {
	SeedLevels(suite.T(), suite.db, 1, 1, 1, 4, 10)

	counts, err := suite.levelRepo.CountByDifficulty(context.Background())
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), counts, models.MaxDifficulty)
	assert.Equal(suite.T(), int64(2), counts[1])
	assert.Equal(suite.T(), int64(1), counts[4])
	assert.Equal(suite.T(), int64(1), counts[10])
	assert.Equal(suite.T(), int64(0), counts[5])
}

func TestLevelRepositorySuite(t *testing.T) {
	suite.Run(t, new(LevelRepositoryTestSuite))
}
