package engine

import (
	"context"

	"github.com/wfunc/gamemaster/internal/content"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/ledger"
	"github.com/wfunc/gamemaster/internal/models"
	"github.com/wfunc/gamemaster/internal/oracle"
	"github.com/wfunc/gamemaster/internal/repository"
	"go.uber.org/zap"
)

// interactionStep 交互处理的步骤
type interactionStep int

const (
	stepEvaluate interactionStep = iota // 读取内容并裁决
	stepReport                          // 裁决结果上链
	stepDone                            // 已完成
)

// resumeSteps 按持久化状态决定从哪一步继续
var resumeSteps = map[models.InteractionStatus]interactionStep{
	models.InteractionReceived:  stepEvaluate,
	models.InteractionEvaluated: stepReport,
	models.InteractionReported:  stepDone,
}

func resumeStep(status models.InteractionStatus) interactionStep {
	if step, ok := resumeSteps[status]; ok {
		return step
	}
	return stepEvaluate
}

// HandleInteractionCreated 裁决玩家行动，回写链上并推进关卡
//
// 每个 (gameId, interactionId) 在进程内串行处理，持久化状态保证重投时
// 不会重复裁决或重复上链；已上链的交互直接按重复事件返回。
func (e *Engine) HandleInteractionCreated(ctx context.Context, ev ledger.InteractionCreated) Outcome {
	log := e.logger.With(
		zap.String("event", string(ledger.KindInteractionCreated)),
		zap.Uint64("game_id", ev.GameID),
		zap.Uint64("interaction_id", ev.InteractionID),
		zap.Int("level_index", ev.AssignedLevelIndex),
	)

	unlock := e.locker.Lock(interactionKey(ev.GameID, ev.InteractionID))
	defer unlock()

	row, err := e.repos.Interactions().Claim(ctx, &models.Interaction{
		GameID:             ev.GameID,
		InteractionID:      ev.InteractionID,
		Player:             ev.Player,
		AssignedLevelIndex: ev.AssignedLevelIndex,
		Action:             ev.Action,
	})
	if err != nil {
		return failed(err)
	}

	var verdict oracle.Verdict
	switch resumeStep(row.Status) {
	case stepDone:
		log.Debug("交互结果已上链")
		return duplicate()

	case stepReport:
		// 重投时沿用已保存的裁决，不再调用裁判
		verdict = oracle.Verdict{Passed: row.IsComplete, Reason: row.Result}
		log.Info("沿用已保存的裁决", zap.Bool("passed", verdict.Passed))

	default:
		verdict, err = e.evaluate(ctx, ev)
		if err != nil {
			return failed(err)
		}
		if err := e.repos.Interactions().SaveVerdict(ctx, row.ID, verdict.Passed, verdict.Reason); err != nil {
			return failed(err)
		}
	}

	txHash, err := e.ledger.UpdateInteraction(ctx, ev.GameID, ev.InteractionID, verdict.Passed, verdict.Reason)
	if err != nil {
		// 链上未确认，本地关卡状态保持不变
		return failed(err)
	}
	log = log.With(zap.String("tx_hash", txHash))

	e.notify(Notification{
		Type:          NotifyInteractionEvaluated,
		GameID:        ev.GameID,
		LevelIndex:    ev.AssignedLevelIndex,
		InteractionID: ev.InteractionID,
		Passed:        verdict.Passed,
		Reason:        verdict.Reason,
		TxHash:        txHash,
	})

	if !verdict.Passed {
		pctx, cancel := detach(ctx)
		defer cancel()
		if err := e.repos.Interactions().MarkReported(pctx, row.ID); err != nil {
			return failed(err)
		}
		log.Info("未通过关卡", zap.String("reason", verdict.Reason))
		return processed()
	}

	log.Info("通过关卡", zap.String("reason", verdict.Reason))
	return e.advance(ctx, row.ID, ev.GameID, ev.AssignedLevelIndex)
}

// evaluate 读取挑战与行动内容并调用裁判
func (e *Engine) evaluate(ctx context.Context, ev ledger.InteractionCreated) (oracle.Verdict, error) {
	assigned, err := e.repos.AssignedLevels().FindByIndex(ctx, ev.GameID, ev.AssignedLevelIndex)
	if err != nil {
		return oracle.Verdict{}, err
	}
	if assigned.Level == nil {
		return oracle.Verdict{}, apperrors.Newf(apperrors.ErrNotFound, "关卡: %d", assigned.LevelID)
	}

	challenge, err := content.Resolve(ctx, e.content, assigned.Level.ContentRef)
	if err != nil {
		return e.unreadable(ev, "关卡内容", err)
	}

	action, err := content.Resolve(ctx, e.content, ev.Action)
	if err != nil {
		return e.unreadable(ev, "玩家行动", err)
	}

	return e.judge.Evaluate(ctx, ev.AssignedLevelIndex, challenge, action), nil
}

// unreadable 内容读取失败：句柄不存在时按未通过裁决，存储故障时等待重投
func (e *Engine) unreadable(ev ledger.InteractionCreated, what string, err error) (oracle.Verdict, error) {
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return oracle.Verdict{}, apperrors.Wrap(err, apperrors.ErrContentStore, "读取"+what)
	}
	e.logger.Warn("内容句柄不存在，按未通过处理",
		zap.String("content", what),
		zap.Uint64("game_id", ev.GameID),
		zap.Uint64("interaction_id", ev.InteractionID),
		zap.Error(err),
	)
	return oracle.FailedVerdict, nil
}

// advance 通过后标记完成，终局时结束游戏，否则分配下一关
//
// 整个过程持有游戏锁。交互在这里被标记为已上链，之后分配下一关失败
// 不会再经由重投恢复，返回 deferred 由对账任务补上。
func (e *Engine) advance(ctx context.Context, rowID uint, gameID uint64, levelIndex int) Outcome {
	unlock := e.locker.Lock(gameKey(gameID))
	defer unlock()

	final := levelIndex == models.FinalLevelIndex
	var finished bool

	pctx, cancel := detach(ctx)
	defer cancel()
	err := e.repos.WithTransaction(pctx, func(tx *repository.Transaction) error {
		if err := tx.Interactions().MarkReported(pctx, rowID); err != nil {
			return err
		}
		if _, err := tx.AssignedLevels().MarkCompleted(pctx, gameID, levelIndex); err != nil {
			return err
		}
		if final {
			var err error
			finished, err = tx.Games().Finalize(pctx, gameID)
			return err
		}
		return nil
	})
	if err != nil {
		return failed(err)
	}

	if final {
		if finished {
			e.logger.Info("游戏完成", zap.Uint64("game_id", gameID))
			e.notify(Notification{Type: NotifyGameCompleted, GameID: gameID, LevelIndex: levelIndex})
		}
		return processed()
	}

	assigned, err := e.assignSlotLocked(ctx, gameID, levelIndex+1)
	if err != nil {
		return deferred(err)
	}
	if !assigned {
		e.logger.Debug("下一关已分配，跳过",
			zap.Uint64("game_id", gameID),
			zap.Int("level_index", levelIndex+1),
		)
	}
	return processed()
}
