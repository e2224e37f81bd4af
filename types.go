package multicall

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/rocket-pool/multicall-batcher/codec"
)

// This is the transport the batching core depends on. It performs a single
// read-only call, typically using eth_call, and returns the raw return data.
type Connector interface {
	// Calls the contract at `to` with the given calldata against the given block
	EthCall(ctx context.Context, to common.Address, data []byte, block rpc.BlockNumber) ([]byte, error)
}

// A single read-only contract call to batch through the multicall contract
type Call struct {
	// The contract to call
	To common.Address `json:"to"`

	// The ABI encoded calldata
	Data []byte `json:"data"`

	// Gas the call is estimated to consume, used to pack calls into chunks
	Gas uint64 `json:"gas"`
}

// The result of a call executed through multicallWithGas
type ResultWithGas struct {
	// The return data of the call
	ReturnData []byte

	// Gas the call actually consumed on chain
	GasUsed *uint256.Int
}

// indexedCall is a call tagged with its position in the caller's input.
// The index is assigned once per batch and restores the output order.
type indexedCall struct {
	Call
	index int
}

func toIndexedCalls(calls []Call) []indexedCall {
	items := make([]indexedCall, len(calls))
	for i, call := range calls {
		items[i] = indexedCall{call, i}
	}
	return items
}

func (c Call) toCodecCall() codec.Call {
	return codec.Call{Target: c.To, Data: c.Data}
}

func toCodecCalls(calls []Call) []codec.Call {
	result := make([]codec.Call, len(calls))
	for i, call := range calls {
		result[i] = call.toCodecCall()
	}
	return result
}
