package ledger

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/wfunc/gamemaster/internal/config"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/metrics"
	"github.com/wfunc/gamemaster/internal/repository"
	"go.uber.org/zap"
)

const (
	// DefaultCursorName 默认游标名称
	DefaultCursorName = "gamemaster"
	// DefaultMaxRedeliveries 同一窗口默认的投递上限
	DefaultMaxRedeliveries = 5
)

// ChainReader 事件拉取所需的节点接口，*ethclient.Client 满足该接口
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Poller 按区块窗口拉取合约事件，并在批次处理完成后推进游标
//
// 批次内存在可重投的失败时游标不推进，下一轮会重新投递整个窗口，
// 事件处理方需要保证幂等。同一窗口失败次数达到上限后，失败事件转入死信，
// 游标继续推进，避免单个事件阻塞后续所有事件。
type Poller struct {
	chain      ChainReader
	address    common.Address
	cursors    repository.CursorRepository
	dispatcher Dispatcher
	cfg        *config.LedgerConfig
	logger     *zap.Logger
	name       string
}

// NewPoller 创建事件拉取器
func NewPoller(chain ChainReader, address common.Address, cursors repository.CursorRepository,
	dispatcher Dispatcher, cfg *config.LedgerConfig, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		chain:      chain,
		address:    address,
		cursors:    cursors,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		name:       DefaultCursorName,
	}
}

// Run 循环拉取直到 ctx 结束
func (p *Poller) Run(ctx context.Context) error {
	interval := p.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	p.logger.Info("事件拉取已启动",
		zap.String("contract", p.address.Hex()),
		zap.Duration("interval", interval),
	)

	for {
		caughtUp, err := p.PollOnce(ctx)
		if err != nil {
			p.logger.Warn("拉取事件失败", zap.Error(err))
		}

		// 落后时立即拉取下一个窗口
		wait := interval
		if err == nil && !caughtUp {
			wait = 0
		}

		select {
		case <-ctx.Done():
			p.logger.Info("事件拉取已停止")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// PollOnce 拉取并处理一个区块窗口，返回是否已追上链头
func (p *Poller) PollOnce(ctx context.Context) (bool, error) {
	from, err := p.cursor(ctx)
	if err != nil {
		return false, err
	}

	head, err := p.chain.BlockNumber(ctx)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrLedgerRead, "读取最新区块")
	}
	if head < p.cfg.Confirmations {
		return true, nil
	}
	safe := head - p.cfg.Confirmations
	if from > safe {
		return true, nil
	}

	batch := p.cfg.BatchBlocks
	if batch == 0 {
		batch = 500
	}
	to := from + batch - 1
	if to > safe {
		to = safe
	}

	events, err := p.fetch(ctx, from, to)
	if err != nil {
		return false, err
	}

	if len(events) > 0 {
		if pending := p.dispatcher.Dispatch(ctx, events); len(pending) > 0 {
			if err := p.redeliver(ctx, from, to, pending); err != nil {
				return false, err
			}
		}
	}

	if err := p.cursors.Save(ctx, p.name, to+1); err != nil {
		return false, err
	}
	metrics.CursorGauge.Set(float64(to + 1))

	p.logger.Debug("区块窗口处理完成",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Int("events", len(events)),
	)
	return to == safe, nil
}

// redeliver 记录窗口失败；未达上限时返回错误保持游标，达到上限后转交死信并放行
func (p *Poller) redeliver(ctx context.Context, from, to uint64, pending []Event) error {
	attempts, err := p.cursors.RecordFailure(ctx, p.name, from)
	if err != nil {
		return err
	}

	limit := p.cfg.MaxRedeliveries
	if limit <= 0 {
		limit = DefaultMaxRedeliveries
	}
	if attempts < limit {
		p.logger.Warn("批次中存在可重投的失败，游标保持不变",
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Int("pending", len(pending)),
			zap.Int("attempts", attempts),
		)
		return apperrors.Newf(apperrors.ErrLedgerRead, "区块 %d-%d 需要重投 (%d/%d)", from, to, attempts, limit)
	}

	for _, ev := range pending {
		p.dispatcher.DeadLetter(ev, attempts)
	}
	p.logger.Error("重投次数用尽，跳过失败事件",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Int("skipped", len(pending)),
		zap.Int("attempts", attempts),
	)
	return nil
}

func (p *Poller) cursor(ctx context.Context) (uint64, error) {
	block, found, err := p.cursors.Load(ctx, p.name)
	if err != nil {
		return 0, err
	}
	if !found {
		return p.cfg.StartBlock, nil
	}
	return block, nil
}

func (p *Poller) fetch(ctx context.Context, from, to uint64) ([]Event, error) {
	topics, err := EventTopics()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrEventDecode)
	}

	logs, err := p.chain.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{p.address},
		Topics:    [][]common.Hash{topics},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrLedgerRead, "拉取日志")
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	events := make([]Event, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		ev, err := DecodeLog(log)
		if err != nil {
			// 无法解码的日志重投也不会成功，记录后跳过
			p.logger.Error("解码事件失败",
				zap.Uint64("block", log.BlockNumber),
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.Error(err),
			)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
