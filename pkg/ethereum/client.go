// Package ethereum wraps the JSON-RPC client used to query on-chain
// balances and submit outbound transfers from the hot wallet.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/custodia/exchange-middleware/pkg/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// nativeDecimals is the base unit scale of the chain's native asset.
const nativeDecimals = 18

const nativeTransferGas = 21000

// Client represents the chain client backed by a single hot wallet.
type Client struct {
	config     *config.EthereumConfig
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	logger     *zap.Logger
}

// NewClient creates a new chain client.
func NewClient(cfg *config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(cfg.HotWalletPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load hot wallet key: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	logger.Info("Connected to Ethereum",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("hot_wallet", address.Hex()))

	return &Client{
		config:     cfg,
		client:     client,
		privateKey: privateKey,
		address:    address,
		chainID:    big.NewInt(cfg.ChainID),
		logger:     logger,
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// HotWalletAddress returns the address funds are sent from.
func (c *Client) HotWalletAddress() string {
	return c.address.Hex()
}

// NativeBalance returns the native asset balance of an address.
func (c *Client) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}

	wei, err := c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query native balance: %w", err)
	}
	return FromBaseUnits(wei, nativeDecimals), nil
}

// SendNative transfers native funds from the hot wallet. It returns
// the transaction hash on success. A failure after the transaction
// was handed to the node is reported as ErrAmbiguousSubmit.
func (c *Client) SendNative(ctx context.Context, toAddress string, amount decimal.Decimal) (string, error) {
	if !common.IsHexAddress(toAddress) {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, toAddress)
	}
	to := common.HexToAddress(toAddress)
	value := ToBaseUnits(amount, nativeDecimals)

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.suggestGasPrice(ctx)
	if err != nil {
		return "", err
	}

	gasLimit := c.config.GasLimit
	if gasLimit == 0 {
		gasLimit = nativeTransferGas
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		// A timeout here means the node may have accepted the
		// transaction before the connection dropped.
		if ctx.Err() != nil || IsRetryable(err) {
			return "", fmt.Errorf("%w: %s", ErrAmbiguousSubmit, err.Error())
		}
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	hash := signed.Hash().Hex()
	c.logger.Info("Native transfer submitted",
		zap.String("tx_hash", hash),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()))
	return hash, nil
}

func (c *Client) suggestGasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}

	if c.config.MaxGasPrice != "" {
		maxGasPrice := new(big.Int)
		maxGasPrice.SetString(c.config.MaxGasPrice, 10)
		if gasPrice.Cmp(maxGasPrice) > 0 {
			c.logger.Warn("Suggested gas price exceeds maximum",
				zap.String("suggested", gasPrice.String()),
				zap.String("max", maxGasPrice.String()))
			gasPrice = maxGasPrice
		}
	}
	return gasPrice, nil
}

// ToBaseUnits converts a decimal token amount to integer base units.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts integer base units to a decimal token amount.
func FromBaseUnits(units *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(units, -decimals)
}
