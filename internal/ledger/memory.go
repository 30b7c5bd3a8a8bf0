package ledger

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
)

// Write 一次写入记录
type Write struct {
	Method        string
	GameID        uint64
	LevelID       uint64
	InteractionID uint64
	Passed        bool
	Reason        string
	ContentRef    string
	Difficulty    int
	TxHash        string
}

// MemoryLedger 内存实现的写入端，记录全部写入并可注入失败，用于测试与本地演示
type MemoryLedger struct {
	mu       sync.Mutex
	writes   []Write
	failures map[string][]error
	seq      uint64
}

// NewMemoryLedger 创建内存账本
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{failures: make(map[string][]error)}
}

// FailNext 让指定方法的下一次调用返回 err，err 为空时使用 ErrLedgerWrite
func (m *MemoryLedger) FailNext(method string, err error) {
	if err == nil {
		err = apperrors.New(apperrors.ErrLedgerWrite, method+" 交易回滚")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = append(m.failures[method], err)
}

// AssignLevel 记录关卡分配
func (m *MemoryLedger) AssignLevel(ctx context.Context, gameID, levelID uint64) (string, error) {
	return m.record(ctx, Write{Method: MethodAssignLevel, GameID: gameID, LevelID: levelID})
}

// UpdateInteraction 记录裁决写入
func (m *MemoryLedger) UpdateInteraction(ctx context.Context, gameID, interactionID uint64, passed bool, reason string) (string, error) {
	return m.record(ctx, Write{
		Method:        MethodUpdateInteraction,
		GameID:        gameID,
		InteractionID: interactionID,
		Passed:        passed,
		Reason:        reason,
	})
}

// AddLevel 记录新增关卡
func (m *MemoryLedger) AddLevel(ctx context.Context, contentRef string, difficulty int) (string, error) {
	return m.record(ctx, Write{Method: MethodAddLevel, ContentRef: contentRef, Difficulty: difficulty})
}

func (m *MemoryLedger) record(ctx context.Context, w Write) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrLedgerWrite, w.Method)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if queue := m.failures[w.Method]; len(queue) > 0 {
		m.failures[w.Method] = queue[1:]
		return "", queue[0]
	}

	m.seq++
	w.TxHash = fmt.Sprintf("0x%064x", m.seq)
	m.writes = append(m.writes, w)
	return w.TxHash, nil
}

// Writes 返回指定方法的成功写入，method 为空时返回全部
func (m *MemoryLedger) Writes(method string) []Write {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Write
	for _, w := range m.writes {
		if method == "" || w.Method == method {
			out = append(out, w)
		}
	}
	return out
}

// Reset 清空记录与待注入的失败
func (m *MemoryLedger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
	m.failures = make(map[string][]error)
	m.seq = 0
}
