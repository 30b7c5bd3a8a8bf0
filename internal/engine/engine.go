// Package engine 进度引擎：处理链上事件，调用裁判，回写链上并维护本地镜像
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/wfunc/gamemaster/internal/content"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/ledger"
	"github.com/wfunc/gamemaster/internal/oracle"
	"github.com/wfunc/gamemaster/internal/repository"
	"go.uber.org/zap"
)

// OutcomeKind 事件处理结果类型
type OutcomeKind string

const (
	OutcomeProcessed OutcomeKind = "processed" // 已处理
	OutcomeDuplicate OutcomeKind = "duplicate" // 重复投递，未产生副作用
	OutcomeFailed    OutcomeKind = "failed"    // 处理失败
	OutcomeDeferred  OutcomeKind = "deferred"  // 已落库，剩余步骤由对账任务补上
)

// Outcome 单个事件的处理结果
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// Retryable 失败是否可以通过重投恢复
func (o Outcome) Retryable() bool {
	return o.Kind == OutcomeFailed && apperrors.IsRetryable(o.Err)
}

func processed() Outcome { return Outcome{Kind: OutcomeProcessed} }

func duplicate() Outcome { return Outcome{Kind: OutcomeDuplicate} }

func failed(err error) Outcome { return Outcome{Kind: OutcomeFailed, Err: err} }

func deferred(err error) Outcome { return Outcome{Kind: OutcomeDeferred, Err: err} }

// persistTimeout 链上写入成功后本地落库的时限
const persistTimeout = 10 * time.Second

// detach 链上写入成功后的本地落库不随调用方取消，避免链上与本地镜像分叉
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

// Deps 引擎依赖，全部显式注入
type Deps struct {
	Repos    *repository.Manager
	Content  content.Store
	Ledger   ledger.Writer
	Judge    oracle.Evaluator
	Notifier Notifier
	Locker   Locker
	Logger   *zap.Logger
}

// Options 引擎选项
type Options struct {
	// Pick 在 [0,n) 中均匀选取，为空时使用 math/rand
	Pick func(n int) int
}

// Engine 进度引擎
type Engine struct {
	repos    *repository.Manager
	content  content.Store
	ledger   ledger.Writer
	judge    oracle.Evaluator
	notifier Notifier
	locker   Locker
	logger   *zap.Logger
	pick     func(n int) int
}

// New 创建进度引擎
func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Repos == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "缺少本地存储")
	}
	if deps.Ledger == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "缺少链上写入端")
	}
	if deps.Judge == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "缺少裁判")
	}

	e := &Engine{
		repos:    deps.Repos,
		content:  deps.Content,
		ledger:   deps.Ledger,
		judge:    deps.Judge,
		notifier: deps.Notifier,
		locker:   deps.Locker,
		logger:   deps.Logger,
		pick:     opts.Pick,
	}
	if e.notifier == nil {
		e.notifier = NopNotifier{}
	}
	if e.locker == nil {
		e.locker = NewKeyedLocker()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.pick == nil {
		e.pick = rand.Intn
	}
	return e, nil
}

// NextDifficulty 通过下标为 levelIndex 的关卡后，下一关的难度
//
// 难度从 1 开始而下标从 0 开始，因此通过第 i 关解锁难度 i+2。
func NextDifficulty(levelIndex int) int {
	return levelIndex + 2
}

// Handle 按事件类型分发到对应的处理函数
func (e *Engine) Handle(ctx context.Context, ev ledger.Event) Outcome {
	switch {
	case ev.Kind == ledger.KindLevelCreated && ev.LevelCreated != nil:
		return e.HandleLevelCreated(ctx, *ev.LevelCreated)
	case ev.Kind == ledger.KindGameCreated && ev.GameCreated != nil:
		return e.HandleGameCreated(ctx, *ev.GameCreated)
	case ev.Kind == ledger.KindInteractionCreated && ev.InteractionCreated != nil:
		return e.HandleInteractionCreated(ctx, *ev.InteractionCreated)
	default:
		return failed(apperrors.Newf(apperrors.ErrEventDecode, "无法处理的事件 %s", ev))
	}
}

func (e *Engine) notify(n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	e.notifier.Notify(n)
}

func gameKey(gameID uint64) string {
	return fmt.Sprintf("game:%d", gameID)
}

func interactionKey(gameID, interactionID uint64) string {
	return fmt.Sprintf("interaction:%d:%d", gameID, interactionID)
}
