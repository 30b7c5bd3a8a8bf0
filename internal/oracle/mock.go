package oracle

import (
	"context"
	"sync"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
)

// MockReply 预设的补全结果
type MockReply struct {
	Content string
	Err     error
	// Block 为 true 时阻塞直到 ctx 结束
	Block bool
}

// MockCall 一次补全调用的记录
type MockCall struct {
	System string
	User   string
}

// MockCompleter 按先进先出顺序返回预设结果的补全实现，用于测试
type MockCompleter struct {
	mu      sync.Mutex
	replies []MockReply
	calls   []MockCall
}

// NewMockCompleter 创建测试用补全实现
func NewMockCompleter(replies ...MockReply) *MockCompleter {
	return &MockCompleter{replies: replies}
}

// Complete 返回下一个预设结果，队列为空时返回错误
func (m *MockCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{System: system, User: user})

	if len(m.replies) == 0 {
		m.mu.Unlock()
		return "", apperrors.New(apperrors.ErrOracleCall, "没有预设结果")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	m.mu.Unlock()

	if reply.Block {
		<-ctx.Done()
		return "", apperrors.Wrap(ctx.Err(), apperrors.ErrTimeout, "裁判服务")
	}
	return reply.Content, reply.Err
}

// Add 追加预设结果
func (m *MockCompleter) Add(replies ...MockReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
}

// Calls 返回全部调用记录
func (m *MockCompleter) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
