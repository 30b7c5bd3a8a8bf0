package engine

import (
	"context"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/ledger"
	"github.com/wfunc/gamemaster/internal/models"
	"go.uber.org/zap"
)

// HandleLevelCreated 记录新关卡，重复投递时不做任何修改
//
// 内容句柄只在裁决时读取，本地内容存储暂时缺少正文不影响关卡入库。
func (e *Engine) HandleLevelCreated(ctx context.Context, ev ledger.LevelCreated) Outcome {
	log := e.logger.With(
		zap.String("event", string(ledger.KindLevelCreated)),
		zap.Uint64("level_id", ev.LevelID),
	)

	if !models.ValidDifficulty(ev.Difficulty) {
		return failed(apperrors.Newf(apperrors.ErrInvalidLevel, "关卡 %d 难度无效: %d", ev.LevelID, ev.Difficulty))
	}
	if ev.ContentRef == "" {
		return failed(apperrors.Newf(apperrors.ErrInvalidLevel, "关卡 %d 没有内容", ev.LevelID))
	}

	created, err := e.repos.Levels().CreateIfAbsent(ctx, &models.Level{
		ID:         ev.LevelID,
		ContentRef: ev.ContentRef,
		Difficulty: ev.Difficulty,
	})
	if err != nil {
		return failed(err)
	}
	if !created {
		log.Debug("关卡已存在")
		return duplicate()
	}

	log.Info("关卡已记录", zap.Int("difficulty", ev.Difficulty))
	return processed()
}
