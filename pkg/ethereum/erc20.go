package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const erc20ABI = `[
	{
		"constant": true,
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

const tokenTransferGas = 90000

var erc20, _ = abi.JSON(strings.NewReader(erc20ABI))

// TokenBalance returns the ERC-20 balance of holder at the given
// token contract, scaled by the token's decimals.
func (c *Client) TokenBalance(ctx context.Context, contractAddress, holder string, decimals int32) (decimal.Decimal, error) {
	if !common.IsHexAddress(contractAddress) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAddress, contractAddress)
	}
	if !common.IsHexAddress(holder) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAddress, holder)
	}

	data, err := erc20.Pack("balanceOf", common.HexToAddress(holder))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	contract := common.HexToAddress(contractAddress)
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	values, err := erc20.Unpack("balanceOf", result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}
	units, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected balanceOf result type %T", values[0])
	}
	return FromBaseUnits(units, decimals), nil
}

// SendToken transfers ERC-20 tokens from the hot wallet. It returns
// the transaction hash on success. A failure after the transaction
// was handed to the node is reported as ErrAmbiguousSubmit.
func (c *Client) SendToken(ctx context.Context, contractAddress, toAddress string, amount decimal.Decimal, decimals int32) (string, error) {
	if !common.IsHexAddress(contractAddress) {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, contractAddress)
	}
	if !common.IsHexAddress(toAddress) {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, toAddress)
	}

	data, err := erc20.Pack("transfer", common.HexToAddress(toAddress), ToBaseUnits(amount, decimals))
	if err != nil {
		return "", fmt.Errorf("failed to pack transfer call: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.suggestGasPrice(ctx)
	if err != nil {
		return "", err
	}

	gasLimit := c.config.GasLimit
	if gasLimit == 0 || gasLimit < tokenTransferGas {
		gasLimit = tokenTransferGas
	}

	contract := common.HexToAddress(contractAddress)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		if ctx.Err() != nil || IsRetryable(err) {
			return "", fmt.Errorf("%w: %s", ErrAmbiguousSubmit, err.Error())
		}
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	hash := signed.Hash().Hex()
	c.logger.Info("Token transfer submitted",
		zap.String("tx_hash", hash),
		zap.String("token_contract", contract.Hex()),
		zap.String("to", toAddress),
		zap.String("amount", amount.String()))
	return hash, nil
}
