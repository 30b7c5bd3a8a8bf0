package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/ledger"
	"github.com/wfunc/gamemaster/internal/models"
	"github.com/wfunc/gamemaster/internal/repository"
)

// handlerFunc 函数适配器
type handlerFunc func(ctx context.Context, ev ledger.Event) Outcome

func (f handlerFunc) Handle(ctx context.Context, ev ledger.Event) Outcome {
	return f(ctx, ev)
}

// recordingSink 记录失败与死信
type recordingSink struct {
	mu       sync.Mutex
	outcomes []Outcome
	dead     []ledger.Event
}

func (s *recordingSink) Report(_ ledger.Event, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
}

func (s *recordingSink) DeadLetter(ev ledger.Event, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = append(s.dead, ev)
}

func gameEvent(id uint64) ledger.Event {
	return ledger.Event{Kind: ledger.KindGameCreated, GameCreated: &ledger.GameCreated{GameID: id, Owner: "0xa"}}
}

func TestDispatcher_IsolatesFailures(t *testing.T) {
	var handled atomic.Int32
	handler := handlerFunc(func(_ context.Context, ev ledger.Event) Outcome {
		handled.Add(1)
		switch ev.GameCreated.GameID {
		case 1:
			panic("boom")
		case 2:
			return failed(apperrors.New(apperrors.ErrNoLevelAvailable))
		default:
			return processed()
		}
	})
	sink := &recordingSink{}
	d := NewDispatcher(handler, sink, 2, nil)

	pending := d.Dispatch(context.Background(), []ledger.Event{gameEvent(1), gameEvent(2), gameEvent(3), gameEvent(4)})
	assert.Empty(t, pending)
	assert.Equal(t, int32(4), handled.Load())

	require.Len(t, sink.outcomes, 2)
	var panicked bool
	for _, out := range sink.outcomes {
		assert.Equal(t, OutcomeFailed, out.Kind)
		if apperrors.Is(out.Err, apperrors.ErrPanic) {
			panicked = true
		}
	}
	assert.True(t, panicked)
}

func TestDispatcher_ReportsRetryable(t *testing.T) {
	handler := handlerFunc(func(_ context.Context, ev ledger.Event) Outcome {
		switch ev.GameCreated.GameID {
		case 1, 3:
			return failed(apperrors.New(apperrors.ErrLedgerWrite))
		case 4:
			return failed(apperrors.New(apperrors.ErrLedgerRevert))
		case 5:
			return deferred(apperrors.New(apperrors.ErrLedgerWrite))
		default:
			return duplicate()
		}
	})
	sink := &recordingSink{}
	d := NewDispatcher(handler, sink, 0, nil)

	first, second := gameEvent(1), gameEvent(3)
	first.Block, second.Block = 12, 10
	pending := d.Dispatch(context.Background(), []ledger.Event{first, gameEvent(2), second, gameEvent(4), gameEvent(5)})
	require.Len(t, pending, 2)
	assert.Equal(t, uint64(3), pending[0].GameCreated.GameID)
	assert.Equal(t, uint64(1), pending[1].GameCreated.GameID)
	assert.Len(t, sink.outcomes, 4)

	assert.Empty(t, d.Dispatch(context.Background(), []ledger.Event{gameEvent(2)}))
	assert.Empty(t, d.Dispatch(context.Background(), nil))

	d.DeadLetter(first, 5)
	require.Len(t, sink.dead, 1)
	assert.Equal(t, uint64(1), sink.dead[0].GameCreated.GameID)
}

func TestDispatcher_RespectsLimit(t *testing.T) {
	var running, peak atomic.Int32
	handler := handlerFunc(func(context.Context, ledger.Event) Outcome {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return processed()
	})

	batch := make([]ledger.Event, 8)
	for i := range batch {
		batch[i] = gameEvent(uint64(i))
	}
	NewDispatcher(handler, nil, 3, nil).Dispatch(context.Background(), batch)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

// 同一批次中的新关卡先于游戏处理
func TestDispatcher_LevelsFirst(t *testing.T) {
	db := repository.SetupTestDB()
	defer repository.CleanupTestDB(db)

	memLedger := ledger.NewMemoryLedger()
	e, err := New(Deps{
		Repos:  repository.NewManager(db),
		Ledger: memLedger,
		Judge:  &scriptedJudge{},
	}, Options{})
	require.NoError(t, err)

	sink := &recordingSink{}
	pending := NewDispatcher(e, sink, 4, nil).Dispatch(context.Background(), []ledger.Event{
		gameEvent(42),
		{Kind: ledger.KindLevelCreated, LevelCreated: &ledger.LevelCreated{LevelID: 7, ContentRef: "gate", Difficulty: 1}},
	})
	assert.Empty(t, pending)
	assert.Empty(t, sink.outcomes)

	repository.AssertGame(t, db, 42, true, 1)
	writes := memLedger.Writes(ledger.MethodAssignLevel)
	require.Len(t, writes, 1)
	assert.Equal(t, uint64(7), writes[0].LevelID)

	var level models.Level
	require.NoError(t, db.First(&level, "id = ?", 7).Error)
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(nil)
	sink.Report(gameEvent(1), failed(apperrors.New(apperrors.ErrNoLevelAvailable)))
	sink.Report(gameEvent(1), failed(apperrors.New(apperrors.ErrLedgerWrite)))
	sink.Report(gameEvent(1), failed(apperrors.New(apperrors.ErrDatabaseConnect)))
	sink.Report(gameEvent(1), deferred(apperrors.New(apperrors.ErrLedgerRevert)))
	sink.Report(gameEvent(1), processed())
	sink.DeadLetter(gameEvent(1), 5)
}

func TestKeyedLocker(t *testing.T) {
	l := NewKeyedLocker()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("game:42")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, lockedKeys(l))

	// 不同的键互不阻塞
	unlockA := l.Lock("game:1")
	done := make(chan struct{})
	go func() {
		unlockB := l.Lock("game:2")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}

	// 解锁函数可以重复调用
	unlockA()
	unlockA()
	assert.Equal(t, 0, lockedKeys(l))
}

func lockedKeys(l *KeyedLocker) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
