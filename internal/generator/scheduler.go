// Package generator 定时生成新关卡并上链
package generator

import (
	"context"
	"math/rand"
	"time"

	"github.com/wfunc/gamemaster/internal/config"
	"github.com/wfunc/gamemaster/internal/content"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/ledger"
	"github.com/wfunc/gamemaster/internal/metrics"
	"github.com/wfunc/gamemaster/internal/models"
	"github.com/wfunc/gamemaster/internal/oracle"
	"github.com/wfunc/gamemaster/internal/repository"
	"go.uber.org/zap"
)

// Designer 关卡设计接口
type Designer interface {
	GenerateLevel(ctx context.Context, theme string, baseDifficulty int) (oracle.LevelDraft, error)
}

// Generated 一次生成的结果
type Generated struct {
	Theme      string
	Target     int // 请求的难度
	Difficulty int // 实际上链的难度
	Handle     string
	TxHash     string
}

// Scheduler 关卡生成调度器
//
// 每轮选择关卡数量最少的难度，按随机主题生成描述，写入内容存储后以句柄调用 addLevel。
// 上链后的 LevelCreated 事件再由引擎记录到本地。
type Scheduler struct {
	designer Designer
	store    content.Store
	ledger   ledger.Writer
	levels   repository.LevelRepository
	themes   []string
	interval time.Duration
	pick     func(n int) int
	logger   *zap.Logger
}

// NewScheduler 创建调度器
func NewScheduler(designer Designer, store content.Store, writer ledger.Writer,
	levels repository.LevelRepository, cfg *config.GeneratorConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	themes := cfg.Themes
	if len(themes) == 0 {
		themes = config.DefaultThemes
	}
	return &Scheduler{
		designer: designer,
		store:    store,
		ledger:   writer,
		levels:   levels,
		themes:   themes,
		interval: cfg.Interval,
		pick:     rand.Intn,
		logger:   logger,
	}
}

// Run 定期生成关卡直到 ctx 结束
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.interval = time.Hour
	}
	s.logger.Info("关卡生成已启动", zap.Duration("interval", s.interval), zap.Int("themes", len(s.themes)))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.GenerateOnce(ctx); err != nil {
			s.logger.Warn("生成关卡失败", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// GenerateOnce 生成并提交一个关卡
func (s *Scheduler) GenerateOnce(ctx context.Context) (*Generated, error) {
	result, err := s.generate(ctx)
	metrics.GeneratedLevelCounter.WithLabelValues(metrics.Result(err)).Inc()
	return result, err
}

func (s *Scheduler) generate(ctx context.Context) (*Generated, error) {
	counts, err := s.levels.CountByDifficulty(ctx)
	if err != nil {
		return nil, err
	}

	out := &Generated{
		Theme:  s.themes[s.pick(len(s.themes))],
		Target: ThinnestDifficulty(counts),
	}

	draft, err := s.designer.GenerateLevel(ctx, out.Theme, out.Target)
	if err != nil {
		return nil, err
	}
	out.Difficulty = draft.Difficulty

	out.Handle, err = s.store.Put(ctx, draft.Description)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrContentStore, "保存关卡描述")
	}

	out.TxHash, err = s.ledger.AddLevel(ctx, out.Handle, out.Difficulty)
	if err != nil {
		return nil, err
	}

	s.logger.Info("新关卡已提交",
		zap.String("theme", out.Theme),
		zap.Int("target", out.Target),
		zap.Int("difficulty", out.Difficulty),
		zap.String("handle", out.Handle),
		zap.String("tx_hash", out.TxHash),
	)
	return out, nil
}

// ThinnestDifficulty 返回关卡数量最少的难度，数量相同时取较低的难度
func ThinnestDifficulty(counts map[int]int64) int {
	best := models.MinDifficulty
	for d := models.MinDifficulty; d <= models.MaxDifficulty; d++ {
		if counts[d] < counts[best] {
			best = d
		}
	}
	return best
}
