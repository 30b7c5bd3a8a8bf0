package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/gamemaster/internal/content"
	"github.com/wfunc/gamemaster/internal/models"
	"github.com/wfunc/gamemaster/internal/repository"
	"go.uber.org/zap"
)

// GameHandler 游戏查询处理器
type GameHandler struct {
	repos   *repository.Manager
	content content.Store
	logger  *zap.Logger
}

// NewGameHandler 创建游戏查询处理器
func NewGameHandler(repos *repository.Manager, store content.Store, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		repos:   repos,
		content: store,
		logger:  logger,
	}
}

// CurrentLevelResponse 当前关卡响应
type CurrentLevelResponse struct {
	GameID      uint64 `json:"game_id"`
	LevelIndex  int    `json:"level_index"`
	LevelID     uint64 `json:"level_id"`
	Difficulty  int    `json:"difficulty"`
	Completed   bool   `json:"completed"`
	IsActive    bool   `json:"is_active"`
	Description string `json:"description"`
}

// ListByOwner 按拥有者查询游戏，新游戏在前
func (h *GameHandler) ListByOwner(c *gin.Context) {
	owner := c.Param("owner")
	pagination := parsePagination(c)

	games, err := h.repos.Games().FindByOwner(c.Request.Context(), owner, pagination)
	if err != nil {
		respondError(c, err)
		return
	}
	if games == nil {
		games = []*models.Game{}
	}
	listResponse(c, games, pagination)
}

// Get 查询单个游戏
func (h *GameHandler) Get(c *gin.Context) {
	id, ok := parseGameID(c)
	if !ok {
		return
	}

	game, err := h.repos.Games().FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, game)
}

// CurrentLevel 查询游戏当前关卡及其挑战描述
func (h *GameHandler) CurrentLevel(c *gin.Context) {
	id, ok := parseGameID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	game, err := h.repos.Games().FindByID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	current, err := h.repos.AssignedLevels().Current(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := CurrentLevelResponse{
		GameID:     id,
		LevelIndex: current.LevelIndex,
		LevelID:    current.LevelID,
		Completed:  current.Completed,
		IsActive:   game.IsActive,
	}
	if current.Level != nil {
		resp.Difficulty = current.Level.Difficulty
		description, err := content.Resolve(ctx, h.content, current.Level.ContentRef)
		if err != nil {
			h.logger.Warn("读取关卡描述失败",
				zap.Uint64("game_id", id),
				zap.Uint64("level_id", current.LevelID),
				zap.Error(err))
			respondError(c, err)
			return
		}
		resp.Description = description
	}
	c.JSON(http.StatusOK, resp)
}

// Levels 查询游戏的关卡分配历史
func (h *GameHandler) Levels(c *gin.Context) {
	id, ok := parseGameID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.repos.Games().FindByID(ctx, id); err != nil {
		respondError(c, err)
		return
	}

	list, err := h.repos.AssignedLevels().ListByGame(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []*models.AssignedLevel{}
	}
	c.JSON(http.StatusOK, gin.H{"records": list})
}

// Interactions 查询游戏的交互记录，新记录在前
func (h *GameHandler) Interactions(c *gin.Context) {
	id, ok := parseGameID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	pagination := parsePagination(c)

	if _, err := h.repos.Games().FindByID(ctx, id); err != nil {
		respondError(c, err)
		return
	}

	list, err := h.repos.Interactions().ListByGame(ctx, id, pagination)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []*models.Interaction{}
	}
	listResponse(c, list, pagination)
}
