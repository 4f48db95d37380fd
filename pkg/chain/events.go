package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var errNoTopics = errors.New("chain: log has no topics")

// DecodedEvent 是从收据日志中解析出的合约事件。
type DecodedEvent struct {
	Name     string
	Args     map[string]interface{}
	Address  common.Address
	TxHash   common.Hash
	LogIndex uint
}

// Uint64 读取 uint256 类型的参数，超出 uint64 范围时返回 false。
func (e *DecodedEvent) Uint64(arg string) (uint64, bool) {
	v, ok := e.Args[arg].(*big.Int)
	if !ok || v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}

// parseLog 按合约 ABI 解析单条日志：topic0 定位事件，data 解出非 indexed 参数，其余 topic 解出 indexed 参数。
func parseLog(contract abi.ABI, l *types.Log) (*DecodedEvent, error) {
	if l == nil || len(l.Topics) == 0 {
		return nil, errNoTopics
	}
	ev, err := contract.EventByID(l.Topics[0])
	if err != nil {
		return nil, err
	}

	args := make(map[string]interface{})
	if err := contract.UnpackIntoMap(args, ev.Name, l.Data); err != nil {
		return nil, fmt.Errorf("unpack %s data: %w", ev.Name, err)
	}
	var indexed abi.Arguments
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(l.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("%s: expected %d indexed topics, got %d", ev.Name, len(indexed), len(l.Topics)-1)
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse %s topics: %w", ev.Name, err)
	}

	return &DecodedEvent{
		Name:     ev.Name,
		Args:     args,
		Address:  l.Address,
		TxHash:   l.TxHash,
		LogIndex: l.Index,
	}, nil
}

// findEvent 依次尝试解析收据中的每条日志，返回第一个名称匹配的事件。
// 解析失败的日志属于其他合约或事件，直接跳过；address 非零时只接受该合约发出的日志。
func findEvent(contract abi.ABI, address common.Address, receipt *types.Receipt, name string) (*DecodedEvent, bool) {
	if receipt == nil {
		return nil, false
	}
	for _, l := range receipt.Logs {
		if l == nil {
			continue
		}
		if address != (common.Address{}) && l.Address != address {
			continue
		}
		ev, err := parseLog(contract, l)
		if err != nil {
			continue
		}
		if ev.Name == name {
			return ev, true
		}
	}
	return nil, false
}
