package token

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrInvalidPrivateKey = errors.New("token: invalid private key")
	ErrRPCConnection     = errors.New("token: RPC connection failed")
	ErrTimeout           = errors.New("token: confirmation timed out")
	ErrNotCustodian      = errors.New("token: transfer from non-custody address")
)

// ERC20 minimal ABI for transfer and balanceOf.
const erc20ABI = `[
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const (
	// DefaultGasLimit for ERC20 transfers.
	DefaultGasLimit = uint64(100000)

	// confirmationTimeout bounds the receipt wait; the entry point fails
	// (and rolls back) when it elapses.
	confirmationTimeout = 30 * time.Second

	// confirmationPollInterval between receipt checks.
	confirmationPollInterval = 2 * time.Second
)

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// ERC20Config configures the on-chain adapter.
type ERC20Config struct {
	RPCURL     string
	PrivateKey string // hex, with or without 0x prefix
	ChainID    int64
	Contract   string
}

// ERC20Option configures the adapter.
type ERC20Option func(*ERC20)

// WithClient sets a custom Ethereum client (useful for testing).
func WithClient(client EthClient) ERC20Option {
	return func(t *ERC20) { t.client = client }
}

// ERC20 settles transfers against an on-chain stablecoin contract. The
// adapter signs with the custody key, so it can only move funds out of the
// custody address; create-side deposits are verified, not pulled.
type ERC20 struct {
	client     EthClient
	privateKey *ecdsa.PrivateKey
	custody    common.Address
	chainID    *big.Int
	contract   common.Address
	parsedABI  abi.ABI
}

// NewERC20 creates an on-chain token adapter.
func NewERC20(cfg ERC20Config, opts ...ERC20Option) (*ERC20, error) {
	key := strings.TrimPrefix(cfg.PrivateKey, "0x")
	if len(key) != 64 {
		return nil, fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}
	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrInvalidPrivateKey)
	}
	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing ERC20 ABI: %w", err)
	}

	t := &ERC20{
		privateKey: privateKey,
		custody:    crypto.PubkeyToAddress(*publicKey),
		chainID:    big.NewInt(cfg.ChainID),
		contract:   common.HexToAddress(cfg.Contract),
		parsedABI:  parsedABI,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		t.client = client
	}
	return t, nil
}

// Custody returns the address the adapter signs for.
func (t *ERC20) Custody() common.Address { return t.custody }

// Transfer sends amount from the custody address to the recipient and waits
// for the transaction to be mined. A reverted or unmined transaction is an
// error, which fails the enclosing entry point.
func (t *ERC20) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if from != t.custody {
		return ErrNotCustodian
	}

	data, err := t.parsedABI.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("%w: pack: %v", ErrTransferFailed, err)
	}

	nonce, err := t.client.PendingNonceAt(ctx, t.custody)
	if err != nil {
		return fmt.Errorf("%w: nonce: %v", ErrTransferFailed, err)
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("%w: gas price: %v", ErrTransferFailed, err)
	}
	gasLimit, err := t.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  t.custody,
		To:    &t.contract,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, t.contract, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(t.chainID), t.privateKey)
	if err != nil {
		return fmt.Errorf("%w: sign: %v", ErrTransferFailed, err)
	}
	if err := t.client.SendTransaction(ctx, signedTx); err != nil {
		return fmt.Errorf("%w: send: %v", ErrTransferFailed, err)
	}

	return t.waitMined(ctx, signedTx.Hash())
}

func (t *ERC20) waitMined(ctx context.Context, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, confirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(confirmationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: tx %s", ErrTimeout, hash.Hex())
			}
			return ctx.Err()
		case <-ticker.C:
			receipt, err := t.client.TransactionReceipt(ctx, hash)
			if err != nil {
				continue // not yet mined
			}
			if receipt.Status == 0 {
				return fmt.Errorf("%w: tx %s reverted", ErrTransferFailed, hash.Hex())
			}
			return nil
		}
	}
}

// BalanceOf reads the contract balance of addr.
func (t *ERC20) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	data, err := t.parsedABI.Pack("balanceOf", addr)
	if err != nil {
		return nil, fmt.Errorf("packing balanceOf call: %w", err)
	}
	result, err := t.client.CallContract(ctx, ethereum.CallMsg{
		To:   &t.contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling balanceOf: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}

var _ Token = (*ERC20)(nil)
