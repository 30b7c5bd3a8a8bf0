package engine

import (
	"context"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/models"
	"github.com/wfunc/gamemaster/internal/repository"
	"go.uber.org/zap"
)

// slotDifficulty 第 slot 个槽位的关卡难度
func slotDifficulty(slot int) int {
	if slot == 0 {
		return models.MinDifficulty
	}
	return NextDifficulty(slot - 1)
}

// AssignSlot 在游戏锁内为第 slot 个槽位分配关卡
//
// 槽位已被占用时返回 false 且不产生任何写入。
func (e *Engine) AssignSlot(ctx context.Context, gameID uint64, slot int) (bool, error) {
	unlock := e.locker.Lock(gameKey(gameID))
	defer unlock()
	return e.assignSlotLocked(ctx, gameID, slot)
}

// assignSlotLocked 选关、上链、追加分配记录，调用方需持有游戏锁
func (e *Engine) assignSlotLocked(ctx context.Context, gameID uint64, slot int) (bool, error) {
	if slot < 0 || slot >= models.LevelsPerGame {
		return false, apperrors.Newf(apperrors.ErrInvalidLevel, "游戏 %d 的槽位 %d 超出范围", gameID, slot)
	}

	game, err := e.repos.Games().FindByID(ctx, gameID)
	if err != nil {
		return false, err
	}
	if game.LevelsAssigned > slot {
		return false, nil
	}
	if game.IsFinished() {
		return false, apperrors.Newf(apperrors.ErrGameInactive, "游戏: %d", gameID)
	}
	if game.LevelsAssigned < slot {
		return false, apperrors.Newf(apperrors.ErrInvalidLevel,
			"游戏 %d 已分配 %d 关，无法分配槽位 %d", gameID, game.LevelsAssigned, slot)
	}

	// 上一关未完成时不能分配下一关
	if slot > 0 {
		prev, err := e.repos.AssignedLevels().FindByIndex(ctx, gameID, slot-1)
		if err != nil {
			return false, err
		}
		if !prev.Completed {
			return false, apperrors.Newf(apperrors.ErrInvalidLevel, "游戏 %d 的第 %d 关尚未完成", gameID, slot-1)
		}
	}

	difficulty := slotDifficulty(slot)
	level, err := e.repos.Levels().PickRandom(ctx, difficulty, e.pick)
	if err != nil {
		return false, err
	}

	txHash, err := e.ledger.AssignLevel(ctx, gameID, level.ID)
	if err != nil {
		return false, err
	}

	pctx, cancel := detach(ctx)
	defer cancel()
	err = e.repos.WithTransaction(pctx, func(tx *repository.Transaction) error {
		if _, err := tx.AssignedLevels().Append(pctx, gameID, slot, level.ID); err != nil {
			return err
		}
		return tx.Games().IncrementLevelsAssigned(pctx, gameID)
	})
	if err != nil {
		// 链上已分配而本地未记录，需要人工核对
		e.logger.Error("关卡已上链但本地记录失败",
			zap.Uint64("game_id", gameID),
			zap.Int("level_index", slot),
			zap.Uint64("level_id", level.ID),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
		return false, err
	}

	e.logger.Info("关卡已分配",
		zap.Uint64("game_id", gameID),
		zap.Int("level_index", slot),
		zap.Uint64("level_id", level.ID),
		zap.Int("difficulty", difficulty),
		zap.String("tx_hash", txHash),
	)
	e.notify(Notification{
		Type:       NotifyLevelAssigned,
		GameID:     gameID,
		LevelIndex: slot,
		LevelID:    level.ID,
		TxHash:     txHash,
	})
	return true, nil
}
