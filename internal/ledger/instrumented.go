package ledger

import (
	"context"
	"time"

	"github.com/wfunc/gamemaster/internal/logger"
	"github.com/wfunc/gamemaster/internal/metrics"
)

// InstrumentedWriter 为写入记录日志与指标
type InstrumentedWriter struct {
	next Writer
}

// Instrument 包装写入实现
func Instrument(next Writer) *InstrumentedWriter {
	return &InstrumentedWriter{next: next}
}

// AssignLevel 分配关卡
func (w *InstrumentedWriter) AssignLevel(ctx context.Context, gameID, levelID uint64) (string, error) {
	start := time.Now()
	txHash, err := w.next.AssignLevel(ctx, gameID, levelID)
	w.observe(MethodAssignLevel, txHash, start, err)
	return txHash, err
}

// UpdateInteraction 写入裁决
func (w *InstrumentedWriter) UpdateInteraction(ctx context.Context, gameID, interactionID uint64, passed bool, reason string) (string, error) {
	start := time.Now()
	txHash, err := w.next.UpdateInteraction(ctx, gameID, interactionID, passed, reason)
	w.observe(MethodUpdateInteraction, txHash, start, err)
	return txHash, err
}

// AddLevel 新增关卡
func (w *InstrumentedWriter) AddLevel(ctx context.Context, contentRef string, difficulty int) (string, error) {
	start := time.Now()
	txHash, err := w.next.AddLevel(ctx, contentRef, difficulty)
	w.observe(MethodAddLevel, txHash, start, err)
	return txHash, err
}

func (w *InstrumentedWriter) observe(method, txHash string, start time.Time, err error) {
	elapsed := time.Since(start)
	metrics.ObserveLedgerWrite(method, err, elapsed)
	logger.LogLedgerWrite(method, txHash, elapsed, err)
}
