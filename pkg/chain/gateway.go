// Package chain 封装了与问答合约交互的交易提交、确认等待和事件解析。
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"chainqa-go/internal/config"
	"chainqa-go/pkg/log"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// sendTimeout 限制单次广播的时间。
const sendTimeout = 30 * time.Second

var (
	ErrSubmission   = errors.New("chain: transaction submission failed")
	ErrConfirmation = errors.New("chain: transaction confirmation failed")
	ErrReverted     = errors.New("chain: transaction reverted")
)

// Backend 是网关依赖的节点能力，*ethclient.Client 满足该接口。
type Backend interface {
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// PendingTx 是已广播、尚未确认的交易。
type PendingTx struct {
	Hash        common.Hash
	Tx          *types.Transaction
	SubmittedAt time.Time
}

// Gateway 定义了编排流程使用的链上操作。
type Gateway interface {
	// SubmitAnswer 在签名之前失败时返回 nil；广播失败时同时返回已签名交易和错误，
	// 此时交易可能已经到达节点。
	SubmitAnswer(ctx context.Context, chainQuestionID uint64, contentHash [32]byte) (*PendingTx, error)
	// AwaitConfirmation 是整个流程中唯一允许长时间阻塞的操作，受 ConfirmTimeout 约束。
	AwaitConfirmation(ctx context.Context, tx *PendingTx) (*types.Receipt, error)
	// DecodeEvent 没有匹配的事件时返回 false，这不是错误。
	DecodeEvent(receipt *types.Receipt, eventName string) (*DecodedEvent, bool)
}

// Options 是网关的运行参数。
type Options struct {
	ContractAddress common.Address
	PrivateKey      *ecdsa.PrivateKey
	// GasLimit 为 0 时通过 EstimateGas 估算。
	GasLimit       uint64
	Confirmations  uint64
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// OptionsFromConfig 从配置中解析私钥和合约地址。
func OptionsFromConfig(cfg config.ChainConfig) (Options, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return Options{}, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return Options{}, fmt.Errorf("invalid private key: %w", err)
	}
	return Options{
		ContractAddress: common.HexToAddress(cfg.ContractAddress),
		PrivateKey:      key,
		GasLimit:        cfg.GasLimit,
		Confirmations:   cfg.Confirmations,
		ConfirmTimeout:  cfg.ConfirmTimeout(),
		PollInterval:    cfg.PollInterval(),
	}, nil
}

// Dial 连接 RPC 节点并创建网关。
func Dial(ctx context.Context, cfg config.ChainConfig) (Gateway, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the Ethereum client: %w", err)
	}
	return NewGateway(ctx, client, opts)
}

type gateway struct {
	backend  Backend
	contract abi.ABI
	opts     Options
	from     common.Address
	signer   types.Signer

	// 串行化 nonce 获取、签名和广播，避免并发请求复用同一个 nonce
	sendMu sync.Mutex
}

// NewGateway 创建一个新的 Gateway 实例，chain id 在创建时从节点获取一次。
func NewGateway(ctx context.Context, backend Backend, opts Options) (Gateway, error) {
	if opts.PrivateKey == nil {
		return nil, errors.New("chain: private key is required")
	}
	contract, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}

	g := &gateway{
		backend:  backend,
		contract: contract,
		opts:     opts,
		from:     crypto.PubkeyToAddress(opts.PrivateKey.PublicKey),
		signer:   types.LatestSignerForChainID(chainID),
	}
	log.Infof("[ChainGateway] 初始化完成, chainId: %s, contract: %s, sender: %s", chainID, opts.ContractAddress.Hex(), g.from.Hex())
	return g, nil
}

// SubmitAnswer 调用合约 postAnswer(questionId, contentHash) 并广播交易。
func (g *gateway) SubmitAnswer(ctx context.Context, chainQuestionID uint64, contentHash [32]byte) (*PendingTx, error) {
	data, err := g.contract.Pack(MethodPostAnswer, new(big.Int).SetUint64(chainQuestionID), contentHash)
	if err != nil {
		return nil, fmt.Errorf("%w: pack call data: %w", ErrSubmission, err)
	}

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	nonce, err := g.backend.PendingNonceAt(ctx, g.from)
	if err != nil {
		return nil, fmt.Errorf("%w: get nonce: %w", ErrSubmission, err)
	}
	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get gas price: %w", ErrSubmission, err)
	}
	gasLimit := g.opts.GasLimit
	if gasLimit == 0 {
		to := g.opts.ContractAddress
		gasLimit, err = g.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:     g.from,
			To:       &to,
			GasPrice: gasPrice,
			Data:     data,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: estimate gas: %w", ErrSubmission, err)
		}
	}

	to := g.opts.ContractAddress
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signedTx, err := types.SignTx(tx, g.signer, g.opts.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: sign transaction: %w", ErrSubmission, err)
	}
	pending := &PendingTx{Hash: signedTx.Hash(), Tx: signedTx, SubmittedAt: time.Now()}

	// 签名后交易哈希已确定，广播不再跟随请求取消，只受 sendTimeout 约束
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := g.backend.SendTransaction(sendCtx, signedTx); err != nil {
		// 节点可能已经收到交易，返回哈希供调用方记录和对账
		return pending, fmt.Errorf("%w: send transaction %s: %w", ErrSubmission, pending.Hash.Hex(), err)
	}

	log.Infow("[ChainGateway] 交易已广播",
		"txHash", signedTx.Hash().Hex(),
		"nonce", nonce,
		"chainQuestionId", chainQuestionID,
	)
	return pending, nil
}

// AwaitConfirmation 等待交易被打包，并在需要时等待额外的确认块。
func (g *gateway) AwaitConfirmation(ctx context.Context, tx *PendingTx) (*types.Receipt, error) {
	if tx == nil || tx.Tx == nil {
		return nil, fmt.Errorf("%w: no pending transaction", ErrConfirmation)
	}
	ctx, cancel := context.WithTimeout(ctx, g.opts.ConfirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, g.backend, tx.Tx)
	if err != nil {
		return nil, fmt.Errorf("%w: wait mined %s: %w", ErrConfirmation, tx.Hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %w: %s", ErrConfirmation, ErrReverted, tx.Hash.Hex())
	}

	if g.opts.Confirmations > 1 && receipt.BlockNumber != nil {
		target := receipt.BlockNumber.Uint64() + g.opts.Confirmations - 1
		if err := g.waitForBlock(ctx, target); err != nil {
			return nil, fmt.Errorf("%w: wait for %d confirmations: %w", ErrConfirmation, g.opts.Confirmations, err)
		}
	}

	log.Infow("[ChainGateway] 交易已确认",
		"txHash", receipt.TxHash.Hex(),
		"block", receipt.BlockNumber,
		"gasUsed", receipt.GasUsed,
		"elapsed", time.Since(tx.SubmittedAt).String(),
	)
	return receipt, nil
}

func (g *gateway) waitForBlock(ctx context.Context, target uint64) error {
	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()
	for {
		head, err := g.backend.BlockNumber(ctx)
		if err == nil && head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *gateway) DecodeEvent(receipt *types.Receipt, eventName string) (*DecodedEvent, bool) {
	return findEvent(g.contract, g.opts.ContractAddress, receipt, eventName)
}
