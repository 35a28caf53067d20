package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/RyuseiKamei/MeowChain/internal/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// The token surface is deliberately tiny: balance reads and transfers.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const receiptPollInterval = 2 * time.Second

var ErrTransferReverted = errors.New("transfer transaction reverted")

// Client talks to the token contract on behalf of the custodial treasury
// wallet. The signing key is supplied through configuration and held in
// memory only; it is never logged or persisted.
type Client struct {
	rpc     *ethclient.Client
	token   common.Address
	abi     abi.ABI
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
}

func NewClient(cfg config.Config) (*Client, error) {
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("invalid token address %q", cfg.TokenAddress)
	}
	if cfg.TreasuryKey == "" {
		return nil, errors.New("treasury key not configured")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.TreasuryKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse treasury key: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	if cfg.TreasuryAddress != "" && !strings.EqualFold(from.Hex(), cfg.TreasuryAddress) {
		log.Printf("treasury key derives %s, expected %s", from.Hex(), cfg.TreasuryAddress)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, err
	}

	rpc, err := ethclient.Dial(cfg.ChainRPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}

	return &Client{
		rpc:     rpc,
		token:   common.HexToAddress(cfg.TokenAddress),
		abi:     parsed,
		key:     key,
		from:    from,
		chainID: big.NewInt(cfg.ChainID),
	}, nil
}

func (c *Client) SenderAddress() string {
	return c.from.Hex()
}

func (c *Client) TokenBalance(ctx context.Context, address string) (*big.Int, error) {
	data, err := c.abi.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	results, err := c.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, err
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected balanceOf return type")
	}
	return balance, nil
}

func (c *Client) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	return c.rpc.BalanceAt(ctx, common.HexToAddress(address), nil)
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.rpc.SuggestGasPrice(ctx)
}

func (c *Client) EstimateTransferGas(ctx context.Context, recipient string, amount *big.Int) (uint64, error) {
	data, err := c.abi.Pack("transfer", common.HexToAddress(recipient), amount)
	if err != nil {
		return 0, err
	}
	return c.rpc.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &c.token, Data: data})
}

func (c *Client) SubmitTransfer(ctx context.Context, recipient string, amount *big.Int, gasLimit uint64, gasPrice *big.Int) (string, error) {
	nonce, err := c.rpc.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", err
	}
	data, err := c.abi.Pack("transfer", common.HexToAddress(recipient), amount)
	if err != nil {
		return "", err
	}

	tx := types.NewTransaction(nonce, c.token, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", err
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return "", err
	}
	return signed.Hash().Hex(), nil
}

// AwaitConfirmation blocks until the transaction is mined or the context
// ends. A mined-but-reverted transfer is an error.
func (c *Client) AwaitConfirmation(ctx context.Context, txHash string) error {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return ErrTransferReverted
			}
			return nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
