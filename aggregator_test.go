package multicall

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/rocket-pool/multicall-batcher/codec"
)

var testMulticallAddress = common.HexToAddress("0x5ba1e12693dc8f9c48aad8770482f4739beed696")

type aggregatorRequest struct {
	method    codec.Method
	calls     []codec.Call
	gasBuffer uint64
	block     rpc.BlockNumber
}

// simulatedAggregator is a Connector that plays the multicall contract. It
// decodes the calldata it receives and answers with encoded responses.
type simulatedAggregator struct {
	mu       sync.Mutex
	requests []aggregatorRequest

	// number of leading calls executed by multicallWithGasLimitation, all if nil
	executed func(calls []codec.Call) int

	// return data of a call, the calldata itself if nil
	respond func(call codec.Call) []byte

	// fail this many requests before answering
	failures int

	// fail every request
	alwaysFail bool

	// answer gas limited chunks with no results at all
	dropResults bool

	gasLeft    *uint256.Int
	gasLeftErr error
	probes     int
}

func (a *simulatedAggregator) EthCall(ctx context.Context, to common.Address, data []byte, block rpc.BlockNumber) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if to != testMulticallAddress {
		return nil, errors.Errorf("unexpected contract %v", to.Hex())
	}

	if string(data) == string(codec.PackGasLeft()) {
		a.probes++
		if a.gasLeftErr != nil {
			return nil, a.gasLeftErr
		}
		return codec.EncodeUint256(a.gasLeft), nil
	}

	method, calls, gasBuffer, err := codec.UnpackCalls(data)
	if err != nil {
		return nil, err
	}

	a.requests = append(a.requests, aggregatorRequest{method, calls, gasBuffer, block})

	if a.alwaysFail {
		return nil, errors.New("connection reset by peer")
	}

	if a.failures > 0 {
		a.failures--
		return nil, errors.New("too many requests")
	}

	results := make([][]byte, len(calls))
	for i, call := range calls {
		results[i] = a.result(call)
	}

	switch method {
	case codec.MethodMulticall:
		return codec.EncodeResults(results), nil

	case codec.MethodMulticallWithGas:
		gasUsed := make([]*uint256.Int, len(calls))
		for i, call := range calls {
			gasUsed[i] = uint256.NewInt(uint64(21000 + len(call.Data)))
		}
		return codec.EncodeResultsWithGasUsed(results, gasUsed), nil
	}

	executed := len(calls)
	if a.executed != nil {
		executed = a.executed(calls)
	}

	if a.dropResults {
		return codec.EncodeResultsWithLastSuccessIndex(nil, uint256.NewInt(uint64(len(calls)-1))), nil
	}

	// the contract leaves the results it did not get to empty and wraps 0 - 1
	for i := executed; i < len(results); i++ {
		results[i] = []byte{}
	}
	lastSuccessIndex := new(uint256.Int).Sub(uint256.NewInt(uint64(executed)), uint256.NewInt(1))

	return codec.EncodeResultsWithLastSuccessIndex(results, lastSuccessIndex), nil
}

func (a *simulatedAggregator) result(call codec.Call) []byte {
	if a.respond != nil {
		return a.respond(call)
	}
	return common.CopyBytes(call.Data)
}

func (a *simulatedAggregator) recorded() []aggregatorRequest {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]aggregatorRequest(nil), a.requests...)
}

// testCalls returns n calls estimating gas each, with calldata 0x01, 0x02, ...
func testCalls(n int, gas uint64) []Call {
	calls := make([]Call, n)
	for i := range calls {
		calls[i] = Call{
			To:   common.BigToAddress(common.Big1),
			Data: []byte{byte(i + 1)},
			Gas:  gas,
		}
	}
	return calls
}

func chunkSizes(requests []aggregatorRequest) []int {
	sizes := make([]int, len(requests))
	for i, r := range requests {
		sizes[i] = len(r.calls)
	}
	return sizes
}
