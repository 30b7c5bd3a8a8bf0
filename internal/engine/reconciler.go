package engine

import (
	"context"
	"time"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/metrics"
	"github.com/wfunc/gamemaster/internal/models"
	"go.uber.org/zap"
)

// stallKind 游戏停滞的类型
type stallKind string

const (
	stallUnassigned   stallKind = "unassigned"    // 已创建但没有第一关
	stallAwaitingNext stallKind = "awaiting_next" // 当前关已通过但没有下一关
)

// DefaultReconcileBatch 单轮对账处理的游戏上限
const DefaultReconcileBatch = 100

// Reconciler 对账任务，定期为停滞的游戏补分配关卡
//
// 关卡池为空或链上写入失败导致的停滞都会在这里重试，直到分配成功。
type Reconciler struct {
	engine   *Engine
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

// NewReconciler 创建对账任务
func NewReconciler(engine *Engine, interval time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		engine:   engine,
		interval: interval,
		batch:    DefaultReconcileBatch,
		logger:   logger,
	}
}

// Run 定期执行对账直到 ctx 结束，interval 为 0 时直接返回
func (r *Reconciler) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.Info("对账任务已关闭")
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				r.logger.Warn("对账失败", zap.Error(err))
			}
		}
	}
}

// ReconcileOnce 执行一轮对账，返回补分配成功的游戏数
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	fixed := 0
	for _, kind := range []stallKind{stallUnassigned, stallAwaitingNext} {
		games, err := r.find(ctx, kind)
		if err != nil {
			return fixed, err
		}

		for _, game := range games {
			if ctx.Err() != nil {
				return fixed, ctx.Err()
			}
			if r.repair(ctx, kind, game) {
				fixed++
			}
		}
	}
	return fixed, nil
}

func (r *Reconciler) find(ctx context.Context, kind stallKind) ([]*models.Game, error) {
	games := r.engine.repos.Games()
	switch kind {
	case stallUnassigned:
		return games.FindUnassigned(ctx, r.batch)
	default:
		return games.FindAwaitingNext(ctx, r.batch)
	}
}

// repair 为停滞的游戏分配下一个槽位
func (r *Reconciler) repair(ctx context.Context, kind stallKind, game *models.Game) bool {
	slot := game.LevelsAssigned
	log := r.logger.With(
		zap.String("stall", string(kind)),
		zap.Uint64("game_id", game.ID),
		zap.Int("level_index", slot),
	)

	assigned, err := r.engine.AssignSlot(ctx, game.ID, slot)
	switch {
	case err != nil:
		metrics.ReconcileCounter.WithLabelValues("error").Inc()
		if apperrors.Is(err, apperrors.ErrNoLevelAvailable) {
			log.Warn("关卡池为空，等待下一轮对账", zap.Int("difficulty", slotDifficulty(slot)))
		} else {
			log.Error("补分配关卡失败", zap.Error(err))
		}
		return false
	case !assigned:
		metrics.ReconcileCounter.WithLabelValues("skipped").Inc()
		return false
	default:
		metrics.ReconcileCounter.WithLabelValues("ok").Inc()
		log.Info("已补分配关卡")
		return true
	}
}
