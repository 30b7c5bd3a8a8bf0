package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/wfunc/gamemaster/internal/config"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"go.uber.org/zap"
)

// EthClient 基于 go-ethereum 的合约客户端，同时提供事件读取与交易写入
type EthClient struct {
	rpc      *ethclient.Client
	contract *bind.BoundContract
	address  common.Address
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	cfg      *config.LedgerConfig
	logger   *zap.Logger

	// 串行发送，保证 nonce 顺序
	sendMu sync.Mutex
}

// Dial 连接节点并绑定合约
func Dial(ctx context.Context, cfg *config.LedgerConfig, logger *zap.Logger) (*EthClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, apperrors.Newf(apperrors.ErrConfigValidate, "无效的合约地址: %s", cfg.ContractAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrConfigValidate, "私钥格式错误")
	}

	conn, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrLedgerConnect, cfg.RPCURL)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = conn.ChainID(ctx)
		if err != nil {
			conn.Close()
			return nil, apperrors.Wrap(err, apperrors.ErrLedgerConnect, "读取链ID")
		}
	}

	contractABI, err := ContractABI()
	if err != nil {
		conn.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrLedgerConnect, "加载ABI")
	}

	address := common.HexToAddress(cfg.ContractAddress)
	client := &EthClient{
		rpc:      conn,
		contract: bind.NewBoundContract(address, contractABI, conn, conn, conn),
		address:  address,
		key:      key,
		chainID:  chainID,
		cfg:      cfg,
		logger:   logger,
	}

	logger.Info("链上客户端已连接",
		zap.String("contract", address.Hex()),
		zap.String("sender", crypto.PubkeyToAddress(key.PublicKey).Hex()),
		zap.String("chain_id", chainID.String()),
	)
	return client, nil
}

// Address 合约地址
func (c *EthClient) Address() common.Address {
	return c.address
}

// RPC 底层节点连接，供事件拉取使用
func (c *EthClient) RPC() *ethclient.Client {
	return c.rpc
}

// Close 关闭连接
func (c *EthClient) Close() {
	c.rpc.Close()
}

// AssignLevel 为游戏分配关卡
func (c *EthClient) AssignLevel(ctx context.Context, gameID, levelID uint64) (string, error) {
	return c.transact(ctx, MethodAssignLevel, new(big.Int).SetUint64(gameID), new(big.Int).SetUint64(levelID))
}

// UpdateInteraction 写入裁决结果
func (c *EthClient) UpdateInteraction(ctx context.Context, gameID, interactionID uint64, passed bool, reason string) (string, error) {
	return c.transact(ctx, MethodUpdateInteraction,
		new(big.Int).SetUint64(gameID), new(big.Int).SetUint64(interactionID), passed, reason)
}

// AddLevel 新增关卡
func (c *EthClient) AddLevel(ctx context.Context, contentRef string, difficulty int) (string, error) {
	return c.transact(ctx, MethodAddLevel, contentRef, big.NewInt(int64(difficulty)))
}

func (c *EthClient) transact(ctx context.Context, method string, args ...interface{}) (string, error) {
	if c.cfg.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.TxTimeout)
		defer cancel()
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrLedgerWrite, method)
	}
	opts.Context = ctx

	c.sendMu.Lock()
	tx, err := c.contract.Transact(opts, method, args...)
	c.sendMu.Unlock()
	if err != nil {
		return "", apperrors.Wrap(err, txErrCode(err), method)
	}

	txHash := tx.Hash().Hex()
	if !c.cfg.WaitMined {
		return txHash, nil
	}

	start := time.Now()
	receipt, err := bind.WaitMined(ctx, c.rpc, tx)
	if err != nil {
		return txHash, apperrors.Wrapf(err, apperrors.ErrLedgerWrite, "%s 等待回执", method)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, apperrors.Newf(apperrors.ErrLedgerRevert, "%s 交易回滚: %s", method, txHash)
	}

	c.logger.Debug("交易已上链",
		zap.String("method", method),
		zap.String("tx_hash", txHash),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
		zap.Duration("wait", time.Since(start)),
	)
	return txHash, nil
}

// revertMessage 节点在合约执行回滚时返回的错误信息
const revertMessage = "execution reverted"

// txErrCode 区分合约拒绝与可重试的提交失败
//
// 估算 gas 时的回滚由合约状态决定，重发同样的交易只会再次失败。
func txErrCode(err error) apperrors.ErrorCode {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) || strings.Contains(err.Error(), revertMessage) {
		return apperrors.ErrLedgerRevert
	}
	return apperrors.ErrLedgerWrite
}
