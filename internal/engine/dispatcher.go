package engine

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/ledger"
	"github.com/wfunc/gamemaster/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler 单个事件的处理方
type Handler interface {
	Handle(ctx context.Context, ev ledger.Event) Outcome
}

// ErrorSink 未成功处理的事件的接收方
type ErrorSink interface {
	// Report 处理失败或交由对账任务的事件
	Report(ev ledger.Event, outcome Outcome)
	// DeadLetter 重投次数用尽、不再投递的事件
	DeadLetter(ev ledger.Event, attempts int)
}

// LogSink 将失败写入日志与指标
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink 创建日志接收方
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Report 记录失败的事件，附带重放所需的标识
func (s *LogSink) Report(ev ledger.Event, outcome Outcome) {
	if outcome.Kind != OutcomeFailed && outcome.Kind != OutcomeDeferred {
		return
	}
	metrics.ObserveFailure(string(ev.Kind), outcome.Err)

	fields := append(eventFields(ev),
		zap.String("outcome", string(outcome.Kind)),
		zap.Int("code", int(apperrors.GetCode(outcome.Err))),
		zap.Bool("retryable", outcome.Retryable()),
		zap.Error(outcome.Err),
	)
	switch {
	case apperrors.IsCritical(outcome.Err):
		s.logger.Error("依赖不可用，事件处理失败", fields...)
	case apperrors.Is(outcome.Err, apperrors.ErrNoLevelAvailable):
		s.logger.Warn("关卡池为空，需要补充关卡", fields...)
	case outcome.Kind == OutcomeDeferred:
		s.logger.Warn("事件已落库，剩余步骤交由对账任务", fields...)
	default:
		s.logger.Error("事件处理失败", fields...)
	}
}

// DeadLetter 记录放弃重投的事件，需要人工重放
func (s *LogSink) DeadLetter(ev ledger.Event, attempts int) {
	metrics.DeadLetterCounter.WithLabelValues(string(ev.Kind)).Inc()
	s.logger.Error("事件重投次数用尽，已跳过",
		append(eventFields(ev), zap.Int("attempts", attempts))...)
}

// eventFields 事件的日志字段
func eventFields(ev ledger.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("event", string(ev.Kind)),
		zap.Uint64("block", ev.Block),
		zap.String("tx_hash", ev.TxHash),
		zap.Uint("log_index", ev.LogIndex),
	}
	switch {
	case ev.LevelCreated != nil:
		fields = append(fields, zap.Uint64("level_id", ev.LevelCreated.LevelID))
	case ev.GameCreated != nil:
		fields = append(fields, zap.Uint64("game_id", ev.GameCreated.GameID))
	case ev.InteractionCreated != nil:
		fields = append(fields,
			zap.Uint64("game_id", ev.InteractionCreated.GameID),
			zap.Uint64("interaction_id", ev.InteractionCreated.InteractionID),
		)
	}
	return fields
}

// Dispatcher 并发处理事件批次
//
// 每个事件在独立的 goroutine 中处理，一个事件失败或 panic 不影响其他事件。
// 批次内的新关卡先于其他事件处理，便于同一批次中的游戏选到它们。
type Dispatcher struct {
	handler Handler
	sink    ErrorSink
	limit   int
	logger  *zap.Logger
}

// NewDispatcher 创建事件分发器，limit <= 0 表示不限制并发
func NewDispatcher(handler Handler, sink ErrorSink, limit int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = NewLogSink(logger)
	}
	return &Dispatcher{
		handler: handler,
		sink:    sink,
		limit:   limit,
		logger:  logger,
	}
}

// Dispatch 处理一个批次，全部事件结束后按链上顺序返回需要重投的事件
func (d *Dispatcher) Dispatch(ctx context.Context, batch []ledger.Event) []ledger.Event {
	var levels, others []ledger.Event
	for _, ev := range batch {
		if ev.Kind == ledger.KindLevelCreated {
			levels = append(levels, ev)
		} else {
			others = append(others, ev)
		}
	}

	var pending []ledger.Event
	for _, phase := range [][]ledger.Event{levels, others} {
		pending = append(pending, d.runPhase(ctx, phase)...)
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Block != pending[j].Block {
			return pending[i].Block < pending[j].Block
		}
		return pending[i].LogIndex < pending[j].LogIndex
	})
	return pending
}

// DeadLetter 转交重投次数用尽的事件
func (d *Dispatcher) DeadLetter(ev ledger.Event, attempts int) {
	d.sink.DeadLetter(ev, attempts)
}

// runPhase 并发处理一组事件，返回其中可重投的失败
func (d *Dispatcher) runPhase(ctx context.Context, events []ledger.Event) []ledger.Event {
	if len(events) == 0 {
		return nil
	}

	var (
		g     errgroup.Group
		mu    sync.Mutex
		retry []ledger.Event
	)
	if d.limit > 0 {
		g.SetLimit(d.limit)
	}
	for _, ev := range events {
		ev := ev
		g.Go(func() error {
			outcome := d.run(ctx, ev)
			if outcome.Kind == OutcomeFailed || outcome.Kind == OutcomeDeferred {
				d.sink.Report(ev, outcome)
			}
			if outcome.Retryable() {
				mu.Lock()
				retry = append(retry, ev)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return retry
}

// run 处理单个事件，panic 转换为失败结果
func (d *Dispatcher) run(ctx context.Context, ev ledger.Event) (outcome Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("事件处理panic",
				append(eventFields(ev), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))...)
			outcome = failed(apperrors.Newf(apperrors.ErrPanic, "%v", r))
		}
		metrics.ObserveEvent(string(ev.Kind), string(outcome.Kind), time.Since(start))
	}()

	return d.handler.Handle(ctx, ev)
}
