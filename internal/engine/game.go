package engine

import (
	"context"

	"github.com/wfunc/gamemaster/internal/ledger"
	"github.com/wfunc/gamemaster/internal/models"
	"go.uber.org/zap"
)

// HandleGameCreated 记录新游戏并分配第一关
//
// 游戏记录先于链上写入落库，分配失败时留下 levels_assigned = 0 的活跃游戏，
// 由对账任务补上第一关，事件本身不再重投。
func (e *Engine) HandleGameCreated(ctx context.Context, ev ledger.GameCreated) Outcome {
	log := e.logger.With(
		zap.String("event", string(ledger.KindGameCreated)),
		zap.Uint64("game_id", ev.GameID),
	)

	created, err := e.repos.Games().CreateIfAbsent(ctx, &models.Game{
		ID:       ev.GameID,
		Owner:    ev.Owner,
		IsActive: true,
	})
	if err != nil {
		return failed(err)
	}

	if !created {
		game, err := e.repos.Games().FindByID(ctx, ev.GameID)
		if err != nil {
			return failed(err)
		}
		if game.LevelsAssigned > 0 {
			log.Debug("游戏已存在且已分配关卡")
			return duplicate()
		}
	} else {
		log.Info("游戏已记录", zap.String("owner", ev.Owner))
	}

	assigned, err := e.AssignSlot(ctx, ev.GameID, 0)
	if err != nil {
		return deferred(err)
	}
	if !assigned {
		return duplicate()
	}
	return processed()
}
