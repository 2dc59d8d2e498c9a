package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"xswap/config"
	"xswap/pkg/types"
)

const (
	defaultGasLimit     = uint64(100000)
	receiptPollInterval = 2 * time.Second
)

const erc20BalanceOfABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}]`

// backend is the part of ethclient the wallet needs
type backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// EVMWallet signs with a local private key and sends through an RPC endpoint
type EVMWallet struct {
	chainID    *big.Int
	network    config.EVMNetwork
	client     backend
	privateKey *ecdsa.PrivateKey
	address    common.Address
	logger     *slog.Logger

	receiptPoll time.Duration
}

// NewEVMWallet connects to the network's RPC endpoint
func NewEVMWallet(chainID int, network config.EVMNetwork, logger *slog.Logger) (*EVMWallet, error) {
	if network.RPCUrl == "" {
		return nil, fmt.Errorf("RPC URL not configured for network %d", chainID)
	}

	// Connect to the RPC endpoint
	client, err := ethclient.Dial(network.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	w, err := newEVMWallet(chainID, network, client, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return w, nil
}

func newEVMWallet(chainID int, network config.EVMNetwork, client backend, logger *slog.Logger) (*EVMWallet, error) {
	if network.PrivateKey == "" {
		return nil, fmt.Errorf("private key not configured for network %d", chainID)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(network.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &EVMWallet{
		chainID:    big.NewInt(int64(chainID)),
		network:    network,
		client:     client,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		logger:     logger.With(slog.String("component", "wallet"), slog.Int64("chain", int64(chainID))),

		receiptPoll: receiptPollInterval,
	}, nil
}

// Address returns the lowercase hex account address
func (e *EVMWallet) Address() string {
	return strings.ToLower(e.address.Hex())
}

// SignTypedData hashes data per EIP-712 and signs it. The recovery id is
// shifted to 27/28.
func (e *EVMWallet) SignTypedData(ctx context.Context, data apitypes.TypedData) (string, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return "", fmt.Errorf("failed to hash typed data: %w", err)
	}

	sig, err := crypto.Sign(hash, e.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[64] += 27

	return hexutil.Encode(sig), nil
}

// SendTransaction signs and broadcasts tx, returning its hash
func (e *EVMWallet) SendTransaction(ctx context.Context, tx types.TxPayload) (string, error) {
	if !common.IsHexAddress(tx.To) {
		return "", fmt.Errorf("invalid transaction target: %s", tx.To)
	}
	to := common.HexToAddress(tx.To)

	var data []byte
	if tx.Data != "" {
		decoded, err := hexutil.Decode(tx.Data)
		if err != nil {
			return "", fmt.Errorf("invalid transaction data: %w", err)
		}
		data = decoded
	}

	value := big.NewInt(0)
	if tx.Value != "" {
		parsed, ok := math.ParseBig256(tx.Value)
		if !ok || parsed.Sign() < 0 {
			return "", fmt.Errorf("invalid transaction value: %s", tx.Value)
		}
		value = parsed
	}

	// Get nonce
	nonce, err := e.client.PendingNonceAt(ctx, e.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	// Get gas price
	gasPrice, err := e.getGasPrice(ctx)
	if err != nil {
		return "", err
	}

	gasLimit := defaultGasLimit
	if e.network.GasLimit != nil {
		gasLimit = *e.network.GasLimit
	} else {
		msg := ethereum.CallMsg{
			From:  e.address,
			To:    &to,
			Value: value,
			Data:  data,
		}
		estimatedGas, err := e.client.EstimateGas(ctx, msg)
		if err == nil {
			gasLimit = estimatedGas * 120 / 100 // Add 20% buffer
		} else {
			e.logger.WarnContext(ctx, "gas estimation failed, using default", slog.Any("error", err))
		}
	}

	unsigned := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := ethtypes.SignTx(unsigned, ethtypes.NewEIP155Signer(e.chainID), e.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	e.logger.InfoContext(ctx, "transaction sent", slog.String("tx", signedTx.Hash().Hex()), slog.String("to", tx.To))
	return signedTx.Hash().Hex(), nil
}

// WaitForReceipt polls until the transaction is mined or ctx ends
func (e *EVMWallet) WaitForReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(e.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			out := &types.Receipt{
				TxHash:  txHash,
				Success: receipt.Status == ethtypes.ReceiptStatusSuccessful,
			}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return out, nil
		case errors.Is(err, ethereum.NotFound):
			// still pending
		default:
			return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TokenBalance returns the ERC20 balance of the wallet in raw units
func (e *EVMWallet) TokenBalance(ctx context.Context, token string) (*big.Int, error) {
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("invalid token contract address: %s", token)
	}
	tokenAddress := common.HexToAddress(token)

	parsedABI, err := abi.JSON(strings.NewReader(erc20BalanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse balanceOf ABI: %w", err)
	}

	data, err := parsedABI.Pack("balanceOf", e.address)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf data: %w", err)
	}

	result, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddress, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

// getGasPrice returns the configured gas price or the network suggestion
func (e *EVMWallet) getGasPrice(ctx context.Context) (*big.Int, error) {
	if e.network.GasPrice != nil {
		return big.NewInt(*e.network.GasPrice), nil
	}

	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	return gasPrice, nil
}

// Close closes the client connection
func (e *EVMWallet) Close() {
	if e.client != nil {
		e.client.Close()
	}
}
