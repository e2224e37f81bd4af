package connector

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// This is an Execution client binding that can call a contract function
type IContractCaller interface {
	// Calls a contract function, typically using eth_call
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ContractCallerConnector runs eth_call through a go-ethereum style contract
// caller such as *ethclient.Client.
type ContractCallerConnector struct {
	client IContractCaller
	url    string
}

func NewContractCallerConnector(client IContractCaller) *ContractCallerConnector {
	return &ContractCallerConnector{client: client}
}

// DialContractCallerConnector connects an *ethclient.Client to the given url.
func DialContractCallerConnector(ctx context.Context, url string) (*ContractCallerConnector, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}

	return &ContractCallerConnector{client: client, url: url}, nil
}

func (c *ContractCallerConnector) EthCall(ctx context.Context, to common.Address, data []byte, block rpc.BlockNumber) ([]byte, error) {
	msg := ethereum.CallMsg{
		To:   &to,
		Data: data,
	}

	response, err := c.client.CallContract(ctx, msg, toBigBlockNumber(block))
	if err != nil {
		return nil, wrapError(err, "eth_call", c.url)
	}

	return response, nil
}

type chainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// ChainID returns the chain id reported by the client, if the wrapped caller
// can report one. *ethclient.Client can.
func (c *ContractCallerConnector) ChainID(ctx context.Context) (uint64, error) {
	reader, ok := c.client.(chainIDReader)
	if !ok {
		return 0, errors.New("contract caller does not report chain id")
	}

	chainID, err := reader.ChainID(ctx)
	if err != nil {
		return 0, wrapError(err, "eth_chainId", c.url)
	}

	return chainID.Uint64(), nil
}

// toBigBlockNumber maps latest to nil. Other tags keep their negative value,
// which ethclient turns back into the tag.
func toBigBlockNumber(block rpc.BlockNumber) *big.Int {
	if block == rpc.LatestBlockNumber {
		return nil
	}
	return big.NewInt(block.Int64())
}
