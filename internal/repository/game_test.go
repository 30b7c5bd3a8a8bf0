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

// GameRepositoryTestSuite 游戏仓储测试套件
type GameRepositoryTestSuite struct {
	suite.Suite
	db           *gorm.DB
	gameRepo     GameRepository
	assignedRepo AssignedLevelRepository
}

func (suite *GameRepositoryTestSuite) SetupTest() {
	suite.db = SetupTestDB()
	suite.gameRepo = NewGameRepository(suite.db)
	suite.assignedRepo = NewAssignedLevelRepository(suite.db)
}

func (suite *GameRepositoryTestSuite) TearDownTest() {
	CleanupTestDB(suite.db)
}

func (suite *GameRepositoryTestSuite) createGame(id uint64, owner string) {
	created, err := suite.gameRepo.CreateIfAbsent(context.Background(), &models.Game{ID: id, Owner: owner, IsActive: true})
	suite.Require().NoError(err)
	suite.Require().True(created)
}

// TestGameRepository_CreateIfAbsent 测试重复创建游戏
func (suite *GameRepositoryTestSuite) TestGameRepository_CreateIfAbsent() {
	ctx := context.Background()

	suite.createGame(42, "0xA")

	created, err := suite.gameRepo.CreateIfAbsent(ctx, &models.Game{ID: 42, Owner: "0xB", IsActive: true})
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), created)

	found, err := suite.gameRepo.FindByID(ctx, 42)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "0xA", found.Owner)
	assert.True(suite.T(), found.IsActive)
	assert.Zero(suite.T(), found.LevelsAssigned)
}

// TestGameRepository_FindByID 测试不存在的游戏
func (suite *GameRepositoryTestSuite) TestGameRepository_FindByID() {
	_, err := suite.gameRepo.FindByID(context.Background(), 404)
	assert.Error(suite.T(), err)
	assert.True(suite.T(), apperrors.Is(err, apperrors.ErrGameNotFound))
}

// TestGameRepository_FindByOwner 测试按拥有者查询
func (suite *GameRepositoryTestSuite) TestGameRepository_FindByOwner() {
	ctx := context.Background()

	suite.createGame(1, "0xAbC")
	suite.createGame(3, "0xabc")
	suite.createGame(2, "0xdef")

	games, err := suite.gameRepo.FindByOwner(ctx, "0xABC", nil)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), games, 2)
	assert.Equal(suite.T(), uint64(3), games[0].ID)
	assert.Equal(suite.T(), uint64(1), games[1].ID)

	page := NewPagination(1, 1)
	games, err = suite.gameRepo.FindByOwner(ctx, "0xabc", page)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), games, 1)
	assert.Equal(suite.T(), int64(2), page.Total)
}

// TestGameRepository_Increment 测试已分配关卡计数
func (suite *GameRepositoryTestSuite) TestGameRepository_Increment() {
	ctx := context.Background()
	suite.createGame(7, "0xA")

	assert.NoError(suite.T(), suite.gameRepo.IncrementLevelsAssigned(ctx, 7))
	assert.NoError(suite.T(), suite.gameRepo.IncrementLevelsAssigned(ctx, 7))
	AssertGame(suite.T(), suite.db, 7, true, 2)

	err := suite.gameRepo.IncrementLevelsAssigned(ctx, 8)
	assert.True(suite.T(), apperrors.Is(err, apperrors.ErrGameNotFound))
}

// TestGameRepository_Finalize 测试结束游戏只生效一次
func (suite *GameRepositoryTestSuite) TestGameRepository_Finalize() {
	ctx := context.Background()
	suite.createGame(9, "0xA")

	changed, err := suite.gameRepo.Finalize(ctx, 9)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), changed)

	changed, err = suite.gameRepo.Finalize(ctx, 9)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), changed)
	AssertGame(suite.T(), suite.db, 9, false, 0)
}

// TestGameRepository_Stalled 测试查询需要补分配关卡的游戏
func (suite *GameRepositoryTestSuite) TestGameRepository_Stalled() {
	ctx := context.Background()
	SeedLevels(suite.T(), suite.db, 100, 1, 2)

	// 游戏1：尚未分配
	suite.createGame(1, "0xA")

	// 游戏2：第0关已完成，等待下一关
	suite.createGame(2, "0xA")
	_, err := suite.assignedRepo.Append(ctx, 2, 0, 100)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.gameRepo.IncrementLevelsAssigned(ctx, 2))
	_, err = suite.assignedRepo.MarkCompleted(ctx, 2, 0)
	suite.Require().NoError(err)

	// 游戏3：第0关进行中
	suite.createGame(3, "0xA")
	_, err = suite.assignedRepo.Append(ctx, 3, 0, 100)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.gameRepo.IncrementLevelsAssigned(ctx, 3))

	// 游戏4：已结束
	suite.createGame(4, "0xA")
	_, err = suite.gameRepo.Finalize(ctx, 4)
	suite.Require().NoError(err)

	unassigned, err := suite.gameRepo.FindUnassigned(ctx, 10)
	assert.NoError(suite.T(), err)
	if assert.Len(suite.T(), unassigned, 1) {
		assert.Equal(suite.T(), uint64(1), unassigned[0].ID)
	}

	awaiting, err := suite.gameRepo.FindAwaitingNext(ctx, 10)
	assert.NoError(suite.T(), err)
	if assert.Len(suite.T(), awaiting, 1) {
		assert.Equal(suite.T(), uint64(2), awaiting[0].ID)
		assert.Equal(suite.T(), 1, awaiting[0].LevelsAssigned)
	}
}

func TestGameRepositorySuite(t *testing.T) {
	suite.Run(t, new(GameRepositoryTestSuite))
}
