package multicall

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocket-pool/multicall-batcher/codec"
)

func callData(calls []Call) [][]byte {
	data := make([][]byte, len(calls))
	for i, call := range calls {
		data[i] = call.Data
	}
	return data
}

func TestCallByGasLimitFullSuccess(t *testing.T) {
	aggregator := &simulatedAggregator{}
	service := NewMultiCallService(aggregator, testMulticallAddress)
	calls := testCalls(10, 100)

	results, err := service.CallByGasLimit(context.Background(), calls, 410, Params{MaxChunkSize: 3, Parallelism: 1})
	require.NoError(t, err)
	assert.Equal(t, callData(calls), results)

	requests := aggregator.recorded()
	assert.Equal(t, []int{3, 3, 3, 1}, chunkSizes(requests))
	for _, r := range requests {
		assert.Equal(t, codec.MethodMulticallWithGasLimitation, r.method)
		assert.Equal(t, DefaultGasBuffer, r.gasBuffer)
		assert.Equal(t, rpc.LatestBlockNumber, r.block)
	}
}

func TestCallByGasLimitPartialRecovery(t *testing.T) {
	// stop after two calls in {01,02,03} and {04,05,06}, after one in {07,08,09}
	executedByFirst := map[byte]int{0x01: 2, 0x04: 2, 0x07: 1}

	aggregator := &simulatedAggregator{
		executed: func(calls []codec.Call) int {
			if executed, ok := executedByFirst[calls[0].Data[0]]; ok && len(calls) == 3 {
				return executed
			}
			return len(calls)
		},
	}
	service := NewMultiCallService(aggregator, testMulticallAddress)
	calls := testCalls(10, 100)

	results, err := service.CallByGasLimit(context.Background(), calls, 300, Params{MaxChunkSize: 3, Parallelism: 1})
	require.NoError(t, err)
	assert.Equal(t, callData(calls), results)

	requests := aggregator.recorded()
	require.Len(t, requests, 8)
	assert.Equal(t, []int{3, 3, 3, 1}, chunkSizes(requests[:4]))

	// carried calls go out in smaller chunks
	var carried []byte
	for _, r := range requests[4:] {
		assert.Less(t, len(r.calls), 3)
		for _, call := range r.calls {
			carried = append(carried, call.Data[0])
		}
	}
	assert.Equal(t, []byte{0x03, 0x06, 0x08, 0x09}, carried)
}

func TestCallByGasLimitUnrecoverableSplit(t *testing.T) {
	aggregator := &simulatedAggregator{
		executed: func([]codec.Call) int { return 0 },
	}
	service := NewMultiCallService(aggregator, testMulticallAddress)

	_, err := service.CallByGasLimit(context.Background(), testCalls(4, 100), 1000, Params{MaxChunkSize: 3})
	assert.ErrorIs(t, err, ErrUnrecoverableSplit)

	// rounds with max chunk size 3 and 1
	assert.Len(t, aggregator.recorded(), 2+4)
}

func TestCallByGasLimitRetriesExceeded(t *testing.T) {
	aggregator := &simulatedAggregator{alwaysFail: true}
	service := NewMultiCallService(aggregator, testMulticallAddress)

	_, err := service.CallByGasLimit(context.Background(), testCalls(3, 100), 1000, Params{RetriesLimit: 4})
	assert.ErrorIs(t, err, ErrRetriesExceeded)

	var retriesErr *RetriesExceededError
	require.True(t, errors.As(err, &retriesErr))
	assert.Equal(t, 4, retriesErr.Attempts)
	assert.Len(t, aggregator.recorded(), 4)
}

func TestCallByGasLimitTransientFailure(t *testing.T) {
	aggregator := &simulatedAggregator{failures: 2}
	service := NewMultiCallService(aggregator, testMulticallAddress)
	calls := testCalls(3, 100)

	results, err := service.CallByGasLimit(context.Background(), calls, 1000, Params{RetriesLimit: 3})
	require.NoError(t, err)
	assert.Equal(t, callData(calls), results)

	// retries never resplit
	assert.Equal(t, []int{3, 3, 3}, chunkSizes(aggregator.recorded()))
}

func TestCallByGasLimitMissingResults(t *testing.T) {
	aggregator := &simulatedAggregator{dropResults: true}
	service := NewMultiCallService(aggregator, testMulticallAddress)

	_, err := service.CallByGasLimit(context.Background(), testCalls(2, 100), 1000, Params{RetriesLimit: 2})
	assert.ErrorIs(t, err, ErrRetriesExceeded)
	assert.Len(t, aggregator.recorded(), 2)
}

func TestCallByGasLimitOverflow(t *testing.T) {
	aggregator := &simulatedAggregator{}
	service := NewMultiCallService(aggregator, testMulticallAddress)

	_, err := service.CallByGasLimit(context.Background(), testCalls(1, 500), 300, Params{})
	assert.ErrorIs(t, err, ErrChunkGasOverflow)
	assert.Empty(t, aggregator.recorded())
}

func TestCallByGasLimitEmpty(t *testing.T) {
	aggregator := &simulatedAggregator{}
	service := NewMultiCallService(aggregator, testMulticallAddress)

	results, err := service.CallByGasLimit(context.Background(), nil, 300, Params{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, aggregator.recorded())
}

func TestCallByGasLimitInvalidParams(t *testing.T) {
	service := NewMultiCallService(&simulatedAggregator{}, testMulticallAddress)

	_, err := service.CallByGasLimit(context.Background(), testCalls(1, 1), 300, Params{MaxChunkSize: -1})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = service.CallByGasLimit(context.Background(), testCalls(1, 1), 300, Params{Parallelism: -1})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestCallByGasLimitBlockNumber(t *testing.T) {
	aggregator := &simulatedAggregator{}
	service := NewMultiCallService(aggregator, testMulticallAddress)
	block := rpc.BlockNumber(19_000_000)

	_, err := service.CallByGasLimit(context.Background(), testCalls(2, 1), 300, Params{BlockNumber: &block, GasBuffer: 1_000_000})
	require.NoError(t, err)

	requests := aggregator.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, block, requests[0].block)
	assert.Equal(t, uint64(1_000_000), requests[0].gasBuffer)
}

func TestCallByGasLimitParallel(t *testing.T) {
	aggregator := &simulatedAggregator{
		executed: func(calls []codec.Call) int { return (len(calls) + 1) / 2 },
	}
	service := NewMultiCallService(aggregator, testMulticallAddress)
	calls := testCalls(200, 10)

	results, err := service.CallByGasLimit(context.Background(), calls, 1000, Params{MaxChunkSize: 16, Parallelism: 4})
	require.NoError(t, err)
	assert.Equal(t, callData(calls), results)
}

func TestCallWithGasLimitation(t *testing.T) {
	aggregator := &simulatedAggregator{gasLeft: uint256.NewInt(DefaultGasBuffer + 410)}
	service := NewMultiCallService(aggregator, testMulticallAddress)
	calls := testCalls(10, 100)

	results, err := service.CallWithGasLimitation(context.Background(), calls, GasLimitParams{}, Params{MaxChunkSize: 500, Parallelism: 1})
	require.NoError(t, err)
	assert.Equal(t, callData(calls), results)

	assert.Equal(t, 1, aggregator.probes)
	assert.Equal(t, []int{5, 5}, chunkSizes(aggregator.recorded()))
}

func TestCallWithGasLimitationMisconfigured(t *testing.T) {
	aggregator := &simulatedAggregator{}
	service := NewMultiCallService(aggregator, testMulticallAddress)

	_, err := service.CallWithGasLimitation(context.Background(), testCalls(1, 1), GasLimitParams{GasLimit: 1000, GasBuffer: 1000}, Params{})
	assert.ErrorIs(t, err, ErrGasBudgetMisconfigured)
	assert.Empty(t, aggregator.recorded())
}

func TestCallByChunks(t *testing.T) {
	aggregator := &simulatedAggregator{}
	service := NewMultiCallService(aggregator, testMulticallAddress)
	calls := testCalls(5, 1_000_000_000)

	results, err := service.CallByChunks(context.Background(), calls, ChunkParams{ChunkSize: 2, Parallelism: 1})
	require.NoError(t, err)
	assert.Equal(t, callData(calls), results)

	requests := aggregator.recorded()
	assert.Equal(t, []int{2, 2, 1}, chunkSizes(requests))
	for _, r := range requests {
		assert.Equal(t, codec.MethodMulticall, r.method)
	}
}

func TestCallByChunksRetriesExceeded(t *testing.T) {
	aggregator := &simulatedAggregator{alwaysFail: true}
	service := NewMultiCallService(aggregator, testMulticallAddress)

	_, err := service.CallByChunks(context.Background(), testCalls(3, 0), ChunkParams{RetriesLimit: 2})
	assert.ErrorIs(t, err, ErrRetriesExceeded)
	assert.Len(t, aggregator.recorded(), 2)
}

func TestCallByChunksEmpty(t *testing.T) {
	aggregator := &simulatedAggregator{}
	service := NewMultiCallService(aggregator, testMulticallAddress)

	results, err := service.CallByChunks(context.Background(), []Call{}, ChunkParams{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, aggregator.recorded())
}

func TestCallWithGasUsed(t *testing.T) {
	aggregator := &simulatedAggregator{}
	service := NewMultiCallService(aggregator, testMulticallAddress)
	calls := testCalls(3, 0)
	calls[1].Data = []byte{0x02, 0x02, 0x02}

	results, err := service.CallWithGasUsed(context.Background(), calls, ChunkParams{ChunkSize: 2, Parallelism: 1})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, result := range results {
		assert.Equal(t, calls[i].Data, result.ReturnData)
		assert.Equal(t, uint64(21000+len(calls[i].Data)), result.GasUsed.Uint64())
	}

	for _, r := range aggregator.recorded() {
		assert.Equal(t, codec.MethodMulticallWithGas, r.method)
	}
}

func TestExecutedCount(t *testing.T) {
	assert.Equal(t, 0, executedCount(nil, 3))
	assert.Equal(t, 0, executedCount(new(uint256.Int).SetAllOne(), 3))
	assert.Equal(t, 1, executedCount(uint256.NewInt(0), 3))
	assert.Equal(t, 2, executedCount(uint256.NewInt(1), 3))
	assert.Equal(t, 3, executedCount(uint256.NewInt(2), 3))
	assert.Equal(t, 3, executedCount(uint256.NewInt(7), 3))
	assert.Equal(t, 3, executedCount(new(uint256.Int).Lsh(uint256.NewInt(1), 100), 3))
}

// attemptsByChunk counts requests by the calldata of the first call of each chunk.
func attemptsByChunk(requests []aggregatorRequest) map[byte]int {
	attempts := make(map[byte]int)
	for _, r := range requests {
		attempts[r.calls[0].Data[0]]++
	}
	return attempts
}

func TestCallByGasLimitRetriesExceededEveryChunk(t *testing.T) {
	for _, parallelism := range []int{0, 1, 2} {
		aggregator := &simulatedAggregator{alwaysFail: true}
		service := NewMultiCallService(aggregator, testMulticallAddress)

		_, err := service.CallByGasLimit(context.Background(), testCalls(6, 100), 1000, Params{MaxChunkSize: 2, RetriesLimit: 3, Parallelism: parallelism})
		assert.ErrorIs(t, err, ErrRetriesExceeded)

		requests := aggregator.recorded()
		assert.Len(t, requests, 9, "parallelism %v", parallelism)
		assert.Equal(t, map[byte]int{0x01: 3, 0x03: 3, 0x05: 3}, attemptsByChunk(requests), "parallelism %v", parallelism)
	}
}

func TestCallByChunksRetriesExceededEveryChunk(t *testing.T) {
	for _, parallelism := range []int{0, 1} {
		aggregator := &simulatedAggregator{alwaysFail: true}
		service := NewMultiCallService(aggregator, testMulticallAddress)

		_, err := service.CallByChunks(context.Background(), testCalls(6, 0), ChunkParams{ChunkSize: 2, RetriesLimit: 3, Parallelism: parallelism})
		assert.ErrorIs(t, err, ErrRetriesExceeded)

		assert.Equal(t, map[byte]int{0x01: 3, 0x03: 3, 0x05: 3}, attemptsByChunk(aggregator.recorded()), "parallelism %v", parallelism)
	}
}

func TestCallByGasLimitCancelledContext(t *testing.T) {
	aggregator := &simulatedAggregator{}
	service := NewMultiCallService(aggregator, testMulticallAddress)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.CallByGasLimit(ctx, testCalls(6, 100), 1000, Params{MaxChunkSize: 2, Parallelism: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, aggregator.recorded())
}

func TestCallByGasLimitZeroGasLimit(t *testing.T) {
	aggregator := &simulatedAggregator{}
	service := NewMultiCallService(aggregator, testMulticallAddress)

	_, err := service.CallByGasLimit(context.Background(), testCalls(2, 100), 0, Params{})
	assert.ErrorIs(t, err, ErrGasBudgetMisconfigured)
	assert.NotErrorIs(t, err, ErrChunkGasOverflow)
	assert.Empty(t, aggregator.recorded())
}

func TestCallByGasLimitNoGasBuffer(t *testing.T) {
	aggregator := &simulatedAggregator{}
	service := NewMultiCallService(aggregator, testMulticallAddress)

	_, err := service.CallByGasLimit(context.Background(), testCalls(2, 100), 1000, Params{GasBuffer: 5000, NoGasBuffer: true})
	require.NoError(t, err)

	requests := aggregator.recorded()
	require.Len(t, requests, 1)
	assert.Zero(t, requests[0].gasBuffer)
}

func TestCallWithGasLimitationNoGasBuffer(t *testing.T) {
	aggregator := &simulatedAggregator{}
	service := NewMultiCallService(aggregator, testMulticallAddress)
	calls := testCalls(10, 100)

	results, err := service.CallWithGasLimitation(context.Background(), calls, GasLimitParams{GasLimit: 1000, NoGasBuffer: true}, Params{NoGasBuffer: true, Parallelism: 1})
	require.NoError(t, err)
	assert.Equal(t, callData(calls), results)

	// 1000 gas per chunk, closed by the tenth call
	assert.Equal(t, []int{10}, chunkSizes(aggregator.recorded()))
}
