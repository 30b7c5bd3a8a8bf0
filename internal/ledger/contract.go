package ledger

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
)

//go:embed gamemaster.abi.json
var contractABIJSON []byte

var (
	parsedABI    abi.ABI
	parsedABIErr error
	parseABIOnce sync.Once
)

// ContractABI 返回合约 ABI
func ContractABI() (abi.ABI, error) {
	parseABIOnce.Do(func() {
		parsedABI, parsedABIErr = abi.JSON(bytes.NewReader(contractABIJSON))
	})
	return parsedABI, parsedABIErr
}

// EventTopics 三类事件的 topic0，用于日志过滤
func EventTopics() ([]common.Hash, error) {
	contractABI, err := ContractABI()
	if err != nil {
		return nil, err
	}

	kinds := []EventKind{KindLevelCreated, KindGameCreated, KindInteractionCreated}
	topics := make([]common.Hash, 0, len(kinds))
	for _, kind := range kinds {
		ev, ok := contractABI.Events[string(kind)]
		if !ok {
			return nil, fmt.Errorf("ABI中缺少事件 %s", kind)
		}
		topics = append(topics, ev.ID)
	}
	return topics, nil
}

// DecodeLog 将合约日志解码为事件
func DecodeLog(log types.Log) (Event, error) {
	contractABI, err := ContractABI()
	if err != nil {
		return Event{}, apperrors.Wrap(err, apperrors.ErrEventDecode, "加载ABI")
	}

	if len(log.Topics) == 0 {
		return Event{}, apperrors.New(apperrors.ErrEventDecode, "日志没有topic")
	}

	ev, err := contractABI.EventByID(log.Topics[0])
	if err != nil {
		return Event{}, apperrors.Wrap(err, apperrors.ErrEventDecode, log.Topics[0].Hex())
	}

	fields := make(map[string]interface{})
	if len(log.Data) > 0 {
		if err := contractABI.UnpackIntoMap(fields, ev.Name, log.Data); err != nil {
			return Event{}, apperrors.Wrap(err, apperrors.ErrEventDecode, ev.Name)
		}
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
		return Event{}, apperrors.Wrap(err, apperrors.ErrEventDecode, ev.Name)
	}

	out := Event{
		Kind:     EventKind(ev.Name),
		Block:    log.BlockNumber,
		TxHash:   log.TxHash.Hex(),
		LogIndex: log.Index,
	}

	d := fieldDecoder{event: ev.Name, fields: fields}
	switch out.Kind {
	case KindLevelCreated:
		out.LevelCreated = &LevelCreated{
			LevelID:    d.uintField("levelId"),
			ContentRef: d.stringField("contentRef"),
			Difficulty: int(d.uintField("difficulty")),
		}
	case KindGameCreated:
		out.GameCreated = &GameCreated{
			GameID: d.uintField("gameId"),
			Owner:  d.addressField("owner"),
		}
	case KindInteractionCreated:
		out.InteractionCreated = &InteractionCreated{
			GameID:             d.uintField("gameId"),
			InteractionID:      d.uintField("interactionId"),
			Player:             d.addressField("player"),
			AssignedLevelIndex: int(d.uintField("assignedLevelIndex")),
			Action:             d.stringField("action"),
		}
	default:
		return Event{}, apperrors.Newf(apperrors.ErrEventDecode, "未知事件 %s", ev.Name)
	}

	if d.err != nil {
		return Event{}, d.err
	}
	return out, nil
}

// fieldDecoder 从解包结果中按类型取值，记录第一个错误
type fieldDecoder struct {
	event  string
	fields map[string]interface{}
	err    error
}

func (d *fieldDecoder) fail(name, want string) {
	if d.err == nil {
		d.err = apperrors.Newf(apperrors.ErrEventDecode, "%s.%s 不是 %s: %T", d.event, name, want, d.fields[name])
	}
}

func (d *fieldDecoder) uintField(name string) uint64 {
	v, ok := d.fields[name].(*big.Int)
	if !ok {
		d.fail(name, "uint256")
		return 0
	}
	if !v.IsUint64() {
		d.fail(name, "uint64")
		return 0
	}
	return v.Uint64()
}

func (d *fieldDecoder) stringField(name string) string {
	v, ok := d.fields[name].(string)
	if !ok {
		d.fail(name, "string")
		return ""
	}
	return v
}

func (d *fieldDecoder) addressField(name string) string {
	v, ok := d.fields[name].(common.Address)
	if !ok {
		d.fail(name, "address")
		return ""
	}
	return strings.ToLower(v.Hex())
}
