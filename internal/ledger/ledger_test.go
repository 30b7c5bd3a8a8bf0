package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/gamemaster/internal/config"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/metrics"
	"github.com/wfunc/gamemaster/internal/models"
	"github.com/wfunc/gamemaster/internal/repository"
	"gorm.io/gorm"
)

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testOwner    = common.HexToAddress("0x000000000000000000000000000000000000A0a0")
)

// buildLog 按 ABI 编码一条事件日志
func buildLog(t *testing.T, name string, block uint64, index uint, args ...interface{}) types.Log {
	t.Helper()
	contractABI, err := ContractABI()
	require.NoError(t, err)

	ev := contractABI.Events[name]
	topics := []common.Hash{ev.ID}
	var data []interface{}
	for i, input := range ev.Inputs {
		if !input.Indexed {
			data = append(data, args[i])
			continue
		}
		switch v := args[i].(type) {
		case *big.Int:
			topics = append(topics, common.BigToHash(v))
		case common.Address:
			topics = append(topics, common.BytesToHash(v.Bytes()))
		default:
			t.Fatalf("unsupported indexed arg %T", v)
		}
	}

	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)

	return types.Log{
		Address:     testContract,
		Topics:      topics,
		Data:        packed,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block*1000) + int64(index))),
		Index:       index,
	}
}

func levelLog(t *testing.T, block uint64, index uint, levelID int64, ref string, difficulty int64) types.Log {
	return buildLog(t, "LevelCreated", block, index, big.NewInt(levelID), ref, big.NewInt(difficulty))
}

func gameLog(t *testing.T, block uint64, index uint, gameID int64) types.Log {
	return buildLog(t, "GameCreated", block, index, big.NewInt(gameID), testOwner)
}

func TestDecodeLog(t *testing.T) {
	ev, err := DecodeLog(levelLog(t, 10, 0, 7, "A goblin guards the gate", 1))
	require.NoError(t, err)
	assert.Equal(t, KindLevelCreated, ev.Kind)
	assert.Equal(t, uint64(10), ev.Block)
	assert.Equal(t, &LevelCreated{LevelID: 7, ContentRef: "A goblin guards the gate", Difficulty: 1}, ev.LevelCreated)
	assert.Nil(t, ev.GameCreated)

	ev, err = DecodeLog(gameLog(t, 11, 2, 42))
	require.NoError(t, err)
	assert.Equal(t, KindGameCreated, ev.Kind)
	assert.Equal(t, uint(2), ev.LogIndex)
	assert.Equal(t, &GameCreated{GameID: 42, Owner: "0x000000000000000000000000000000000000a0a0"}, ev.GameCreated)

	ev, err = DecodeLog(buildLog(t, "InteractionCreated", 12, 0,
		big.NewInt(42), big.NewInt(1), testOwner, big.NewInt(0), "fight"))
	require.NoError(t, err)
	assert.Equal(t, &InteractionCreated{
		GameID:             42,
		InteractionID:      1,
		Player:             "0x000000000000000000000000000000000000a0a0",
		AssignedLevelIndex: 0,
		Action:             "fight",
	}, ev.InteractionCreated)
	assert.Equal(t, "InteractionCreated@12#0", ev.String())
}

func TestDecodeLogErrors(t *testing.T) {
	_, err := DecodeLog(types.Log{})
	assert.True(t, apperrors.Is(err, apperrors.ErrEventDecode))

	_, err = DecodeLog(types.Log{Topics: []common.Hash{common.HexToHash("0xdeadbeef")}})
	assert.True(t, apperrors.Is(err, apperrors.ErrEventDecode))

	log := levelLog(t, 1, 0, 7, "x", 1)
	log.Data = log.Data[:16]
	_, err = DecodeLog(log)
	assert.True(t, apperrors.Is(err, apperrors.ErrEventDecode))

	huge := new(big.Int).Lsh(big.NewInt(1), 100)
	_, err = DecodeLog(buildLog(t, "LevelCreated", 1, 0, huge, "x", big.NewInt(1)))
	assert.True(t, apperrors.Is(err, apperrors.ErrEventDecode))
}

func TestEventTopics(t *testing.T) {
	topics, err := EventTopics()
	require.NoError(t, err)
	require.Len(t, topics, 3)
	assert.Equal(t, levelLog(t, 1, 0, 1, "x", 1).Topics[0], topics[0])
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger()

	tx1, err := m.AssignLevel(ctx, 42, 7)
	require.NoError(t, err)
	tx2, err := m.UpdateInteraction(ctx, 42, 1, false, "no magic used")
	require.NoError(t, err)
	assert.NotEqual(t, tx1, tx2)

	m.FailNext(MethodAssignLevel, nil)
	_, err = m.AssignLevel(ctx, 42, 8)
	assert.True(t, apperrors.Is(err, apperrors.ErrLedgerWrite))
	assert.True(t, apperrors.IsRetryable(err))

	_, err = m.AddLevel(ctx, "handle", 3)
	require.NoError(t, err)

	assigns := m.Writes(MethodAssignLevel)
	require.Len(t, assigns, 1)
	assert.Equal(t, uint64(7), assigns[0].LevelID)
	assert.Len(t, m.Writes(""), 3)

	m.Reset()
	assert.Empty(t, m.Writes(""))
}

func TestInstrumentedWriter(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger()
	w := Instrument(m)

	okBefore := testutil.ToFloat64(metrics.LedgerWriteCounter.WithLabelValues(MethodAddLevel, "ok"))
	errBefore := testutil.ToFloat64(metrics.LedgerWriteCounter.WithLabelValues(MethodAssignLevel, "error"))

	txHash, err := w.AddLevel(ctx, "handle", 2)
	require.NoError(t, err)
	assert.NotEmpty(t, txHash)

	m.FailNext(MethodAssignLevel, errors.New("nonce too low"))
	_, err = w.AssignLevel(ctx, 1, 2)
	assert.Error(t, err)

	_, err = w.UpdateInteraction(ctx, 1, 1, true, "clever")
	require.NoError(t, err)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.LedgerWriteCounter.WithLabelValues(MethodAddLevel, "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(metrics.LedgerWriteCounter.WithLabelValues(MethodAssignLevel, "error")))
	assert.Len(t, m.Writes(""), 2)
}

// fakeChain 可控的节点
type fakeChain struct {
	mu      sync.Mutex
	head    uint64
	logs    []types.Log
	queries []ethereum.FilterQuery
	err     error
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, c.err
}

func (c *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	if c.err != nil {
		return nil, c.err
	}
	var out []types.Log
	for _, l := range c.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

// recordingDispatcher 记录收到的批次，retry 为真时整批返回重投
type recordingDispatcher struct {
	batches     [][]Event
	retry       []bool
	alwaysRetry bool
	dead        []Event
	deadAfter   []int
}

func (d *recordingDispatcher) Dispatch(_ context.Context, batch []Event) []Event {
	d.batches = append(d.batches, batch)
	retry := d.alwaysRetry
	if len(d.retry) > 0 {
		retry = d.retry[0]
		d.retry = d.retry[1:]
	}
	if retry {
		return batch
	}
	return nil
}

func (d *recordingDispatcher) DeadLetter(ev Event, attempts int) {
	d.dead = append(d.dead, ev)
	d.deadAfter = append(d.deadAfter, attempts)
}

// PollerTestSuite 事件拉取测试套件
type PollerTestSuite struct {
	suite.Suite
	db         *gorm.DB
	cursors    repository.CursorRepository
	chain      *fakeChain
	dispatcher *recordingDispatcher
	poller     *Poller
}

func (suite *PollerTestSuite) SetupTest() {
	suite.db = repository.SetupTestDB()
	suite.cursors = repository.NewCursorRepository(suite.db)
	suite.chain = &fakeChain{}
	suite.dispatcher = &recordingDispatcher{}
	suite.poller = NewPoller(suite.chain, testContract, suite.cursors, suite.dispatcher, &config.LedgerConfig{
		StartBlock:  100,
		BatchBlocks: 10,
	}, nil)
}

func (suite *PollerTestSuite) TearDownTest() {
	repository.CleanupTestDB(suite.db)
}

func (suite *PollerTestSuite) cursor() uint64 {
	block, found, err := suite.cursors.Load(context.Background(), DefaultCursorName)
	suite.Require().NoError(err)
	suite.Require().True(found)
	return block
}

// TestPollOnce_Windows 测试按窗口推进游标
func (suite *PollerTestSuite) TestPollOnce_Windows() {
	ctx := context.Background()
	suite.chain.head = 115
	suite.chain.logs = []types.Log{
		gameLog(suite.T(), 104, 1, 42),
		levelLog(suite.T(), 104, 0, 7, "gate", 1),
		levelLog(suite.T(), 112, 0, 8, "bridge", 2),
	}

	caughtUp, err := suite.poller.PollOnce(ctx)
	suite.NoError(err)
	suite.False(caughtUp)
	suite.Equal(uint64(110), suite.cursor())

	q := suite.chain.queries[0]
	suite.Equal(uint64(100), q.FromBlock.Uint64())
	suite.Equal(uint64(109), q.ToBlock.Uint64())
	suite.Equal([]common.Address{testContract}, q.Addresses)

	// 同一区块内按 log index 排序
	suite.Require().Len(suite.dispatcher.batches, 1)
	batch := suite.dispatcher.batches[0]
	suite.Require().Len(batch, 2)
	suite.Equal(KindLevelCreated, batch[0].Kind)
	suite.Equal(KindGameCreated, batch[1].Kind)

	caughtUp, err = suite.poller.PollOnce(ctx)
	suite.NoError(err)
	suite.True(caughtUp)
	suite.Equal(uint64(116), suite.cursor())
	suite.Len(suite.dispatcher.batches, 2)

	// 已追上链头，不再拉取
	caughtUp, err = suite.poller.PollOnce(ctx)
	suite.NoError(err)
	suite.True(caughtUp)
	suite.Len(suite.chain.queries, 2)
}

// TestPollOnce_HoldsCursorOnRetry 测试可重投失败时游标不推进
func (suite *PollerTestSuite) TestPollOnce_HoldsCursorOnRetry() {
	ctx := context.Background()
	suite.chain.head = 105
	suite.chain.logs = []types.Log{gameLog(suite.T(), 101, 0, 42)}
	suite.dispatcher.retry = []bool{true, false}

	_, err := suite.poller.PollOnce(ctx)
	suite.Error(err)
	suite.Equal(uint64(100), suite.cursor())

	_, err = suite.poller.PollOnce(ctx)
	suite.NoError(err)
	suite.Equal(uint64(106), suite.cursor())
	suite.Len(suite.dispatcher.batches, 2)
	suite.Equal(suite.dispatcher.batches[0], suite.dispatcher.batches[1])
	suite.Empty(suite.dispatcher.dead)

	var cursor models.LedgerCursor
	suite.Require().NoError(suite.db.First(&cursor, "name = ?", DefaultCursorName).Error)
	suite.Equal(0, cursor.Attempts)
}

// TestPollOnce_DeadLetter 测试同一窗口失败达到上限后跳过失败事件
func (suite *PollerTestSuite) TestPollOnce_DeadLetter() {
	ctx := context.Background()
	suite.poller.cfg.MaxRedeliveries = 3
	suite.chain.head = 115
	suite.chain.logs = []types.Log{
		gameLog(suite.T(), 101, 0, 42),
		gameLog(suite.T(), 112, 0, 43),
	}
	suite.dispatcher.alwaysRetry = true

	for i := 1; i < 3; i++ {
		_, err := suite.poller.PollOnce(ctx)
		suite.Error(err)
		suite.Equal(uint64(100), suite.cursor())
	}
	suite.Empty(suite.dispatcher.dead)

	// 第三次失败后放行
	_, err := suite.poller.PollOnce(ctx)
	suite.NoError(err)
	suite.Equal(uint64(110), suite.cursor())
	suite.Require().Len(suite.dispatcher.dead, 1)
	suite.Equal(uint64(42), suite.dispatcher.dead[0].GameCreated.GameID)
	suite.Equal([]int{3}, suite.dispatcher.deadAfter)

	// 下一个窗口重新计数
	suite.dispatcher.alwaysRetry = false
	suite.dispatcher.retry = []bool{true}
	_, err = suite.poller.PollOnce(ctx)
	suite.Error(err)
	suite.Equal(uint64(110), suite.cursor())

	_, err = suite.poller.PollOnce(ctx)
	suite.NoError(err)
	suite.Equal(uint64(116), suite.cursor())
	suite.Len(suite.dispatcher.dead, 1)
	last := suite.dispatcher.batches[len(suite.dispatcher.batches)-1]
	suite.Require().Len(last, 1)
	suite.Equal(uint64(43), last[0].GameCreated.GameID)
}

// TestPollOnce_Confirmations 测试确认数
func (suite *PollerTestSuite) TestPollOnce_Confirmations() {
	suite.poller.cfg.Confirmations = 3
	suite.chain.head = 102

	caughtUp, err := suite.poller.PollOnce(context.Background())
	suite.NoError(err)
	suite.True(caughtUp)
	suite.Empty(suite.chain.queries)

	suite.chain.head = 104
	_, err = suite.poller.PollOnce(context.Background())
	suite.NoError(err)
	suite.Equal(uint64(102), suite.cursor())
}

// TestPollOnce_SkipsUndecodable 测试跳过无法解码的日志
func (suite *PollerTestSuite) TestPollOnce_SkipsUndecodable() {
	suite.chain.head = 100
	bad := levelLog(suite.T(), 100, 0, 7, "x", 1)
	bad.Data = nil
	removed := gameLog(suite.T(), 100, 2, 43)
	removed.Removed = true
	suite.chain.logs = []types.Log{bad, gameLog(suite.T(), 100, 1, 42), removed}

	_, err := suite.poller.PollOnce(context.Background())
	suite.NoError(err)
	suite.Require().Len(suite.dispatcher.batches, 1)
	suite.Require().Len(suite.dispatcher.batches[0], 1)
	suite.Equal(uint64(42), suite.dispatcher.batches[0][0].GameCreated.GameID)
}

// TestPollOnce_ChainError 测试节点错误
func (suite *PollerTestSuite) TestPollOnce_ChainError() {
	suite.chain.err = errors.New("connection refused")
	_, err := suite.poller.PollOnce(context.Background())
	suite.True(apperrors.Is(err, apperrors.ErrLedgerRead))
}

// TestRun_StopsOnCancel 测试取消后退出
func (suite *PollerTestSuite) TestRun_StopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := suite.poller.Run(ctx)
	suite.ErrorIs(err, context.Canceled)
}

func TestPollerTestSuite(t *testing.T) {
	suite.Run(t, new(PollerTestSuite))
}
