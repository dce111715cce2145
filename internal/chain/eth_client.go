package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Selector surface of the escrow factory. Only the shapes this service
// submits; the full ABI lives with the contract deployment.
const factoryABIJSON = `[
  {
    "type": "function",
    "name": "createEscrow",
    "inputs": [
      {"name": "orderHash", "type": "bytes32"},
      {"name": "secretHash", "type": "bytes32"},
      {"name": "owner", "type": "address"},
      {"name": "counterparty", "type": "address"},
      {"name": "asset", "type": "address"},
      {"name": "amount", "type": "uint256"},
      {"name": "safetyDeposit", "type": "uint256"},
      {"name": "timelocks", "type": "uint256"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "withdraw",
    "inputs": [
      {"name": "escrow", "type": "address"},
      {"name": "secret", "type": "bytes32"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "cancel",
    "inputs": [{"name": "escrow", "type": "address"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "implementation",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "address"}]
  }
]`

// EthClient drives the escrow factory on an EVM chain through a keyed
// transactor.
type EthClient struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	abi      abi.ABI
	address  common.Address
	chainID  *big.Int
	signer   *Signer
}

type EthClientConfig struct {
	RPCURL         string
	FactoryAddress string
	Signer         *Signer
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.FactoryAddress == "" {
		return nil, fmt.Errorf("escrow factory address is required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer is required for escrow submissions")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	address := common.HexToAddress(cfg.FactoryAddress)
	return &EthClient{
		client:   cli,
		contract: bind.NewBoundContract(address, parsedABI, cli, cli, cli),
		abi:      parsedABI,
		address:  address,
		chainID:  chainID,
		signer:   cfg.Signer,
	}, nil
}

func (c *EthClient) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *EthClient) Transact(ctx context.Context, method string, args ...any) (common.Hash, error) {
	opts, err := c.signer.TransactOpts(ctx, c.chainID)
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return common.Hash{}, classifySubmitError(method, err)
	}
	return tx.Hash(), nil
}

func (c *EthClient) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("fetch receipt %s: %w", txHash.Hex(), err)
	}
	return receipt, nil
}

func (c *EthClient) FilterLogs(ctx context.Context, fromBlock uint64, topics []common.Hash) ([]*types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
	}
	if len(topics) > 0 {
		query.Topics = [][]common.Hash{topics}
	}

	raw, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}
	logs := make([]*types.Log, len(raw))
	for i := range raw {
		logs[i] = &raw[i]
	}
	return logs, nil
}

func (c *EthClient) Call(ctx context.Context, method string, args ...any) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
}

// Ping verifies node reachability for health reporting.
func (c *EthClient) Ping(ctx context.Context) error {
	_, err := c.client.BlockNumber(ctx)
	return err
}

// classifySubmitError maps node responses onto the retry taxonomy. Nonce
// races and transport errors are transient; everything else is reported
// as a submission failure and left to the policy.
func classifySubmitError(method string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "nonce too low") {
		return fmt.Errorf("%s: %w", method, ErrNonceTooLow)
	}
	if strings.Contains(msg, "already withdrawn") || strings.Contains(msg, "already cancelled") {
		return fmt.Errorf("%s: %w", method, ErrAlreadySettled)
	}
	return &SubmissionError{Method: method, Err: err}
}
