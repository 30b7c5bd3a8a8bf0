package oracle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// FailedReason 裁决失败时的默认理由
const FailedReason = "evaluation failed"

// Verdict 裁决结果
type Verdict struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// FailedVerdict 裁判输出无法解析或超时时的默认裁决
var FailedVerdict = Verdict{Passed: false, Reason: FailedReason}

// Evaluator 评判玩家行动的接口，实现不得返回错误
type Evaluator interface {
	Evaluate(ctx context.Context, levelNumber int, challenge, action string) Verdict
}

// VerdictObserver 裁决结果观察者，用于指标统计
type VerdictObserver func(v Verdict, failClosed bool, elapsed time.Duration)

// Judge 基于大模型的裁判
type Judge struct {
	completer Completer
	timeout   time.Duration
	logger    *zap.Logger
	observe   VerdictObserver
}

// NewJudge 创建裁判
func NewJudge(completer Completer, timeout time.Duration, logger *zap.Logger) *Judge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{
		completer: completer,
		timeout:   timeout,
		logger:    logger,
	}
}

// OnVerdict 设置裁决观察者
func (j *Judge) OnVerdict(fn VerdictObserver) {
	j.observe = fn
}

// Evaluate 评判玩家行动，任何失败都返回 FailedVerdict
func (j *Judge) Evaluate(ctx context.Context, levelNumber int, challenge, action string) Verdict {
	start := time.Now()

	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	verdict, err := j.evaluate(ctx, levelNumber, challenge, action)
	failClosed := err != nil
	if failClosed {
		j.logger.Warn("裁决失败，按未通过处理",
			zap.Int("level_number", levelNumber),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		verdict = FailedVerdict
	}

	if j.observe != nil {
		j.observe(verdict, failClosed, time.Since(start))
	}
	return verdict
}

func (j *Judge) evaluate(ctx context.Context, levelNumber int, challenge, action string) (v Verdict, err error) {
	// 补全实现中的 panic 同样按失败处理
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("裁判调用panic: %v", r)
		}
	}()

	raw, err := j.completer.Complete(ctx, judgeSystemPrompt, judgeUserPrompt(levelNumber, challenge, action))
	if err != nil {
		return Verdict{}, err
	}
	if err := ctx.Err(); err != nil {
		return Verdict{}, fmt.Errorf("裁判调用超时: %w", err)
	}
	return Decode([]byte(raw))
}

// Decode 严格解码裁决结果，缺少字段或类型错误时返回 ErrOracleMalformed
func Decode(raw []byte) (Verdict, error) {
	var v Verdict
	if err := decodeStrict("verdict", verdictSchema, raw, &v); err != nil {
		return Verdict{}, err
	}
	return v, nil
}
