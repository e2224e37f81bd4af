package multicall

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rocket-pool/multicall-batcher/codec"
)

// MultiCallService batches read-only calls through a multicall contract.
// Calls are packed into chunks by count and gas, the chunks run concurrently,
// and calls the contract did not get to because of its gas buffer are retried
// in smaller chunks until every call has a result.
//
// A service holds no per-batch state and is safe for concurrent use.
type MultiCallService struct {
	// The transport to the execution client
	connector Connector

	// The multicall contract address
	address common.Address

	// Resolves the gas ceiling when the caller does not provide one
	gasLimit *GasLimitService

	logger *logrus.Logger
}

// Creates a new MultiCallService for the multicall contract at the provided address
func NewMultiCallService(connector Connector, address common.Address, opt ...LogOption) *MultiCallService {
	logger := NewLogger(opt...)

	return &MultiCallService{
		connector: connector,
		address:   address,
		gasLimit:  NewGasLimitService(connector, address, WithLogger(logger)),
		logger:    logger,
	}
}

// WithGasLimitService replaces the gas limit resolver, e.g. to enable probe caching.
func (s *MultiCallService) WithGasLimitService(gasLimit *GasLimitService) *MultiCallService {
	s.gasLimit = gasLimit
	return s
}

// Address returns the multicall contract address.
func (s *MultiCallService) Address() common.Address {
	return s.address
}

// CallWithGasLimitation resolves the gas ceiling from gasParams, then runs CallByGasLimit.
func (s *MultiCallService) CallWithGasLimitation(ctx context.Context, calls []Call, gasParams GasLimitParams, params Params) ([][]byte, error) {
	gasLimit, err := s.gasLimit.CalculateGasLimit(ctx, gasParams, blockNumberOrLatest(params.BlockNumber))
	if err != nil {
		return nil, err
	}

	return s.CallByGasLimit(ctx, calls, gasLimit, params)
}

// CallByGasLimit executes the calls through multicallWithGasLimitation, keeping
// the estimated gas of every chunk under gasLimit. The i-th result belongs to
// the i-th call.
//
// Calls the contract reports as not executed are carried into the next round,
// which halves the max chunk size. Transport and decoding failures are only
// retried per chunk and never cause a resplit.
func (s *MultiCallService) CallByGasLimit(ctx context.Context, calls []Call, gasLimit uint64, params Params) ([][]byte, error) {
	params, err := normalize(params)
	if err != nil {
		return nil, err
	}

	if params.NoGasBuffer {
		params.GasBuffer = 0
	}

	if gasLimit == 0 {
		return nil, errors.Wrap(ErrGasBudgetMisconfigured, "gas limit 0")
	}

	block := blockNumberOrLatest(params.BlockNumber)
	results := make([][]byte, len(calls))
	outstanding := toIndexedCalls(calls)
	maxChunkSize := params.MaxChunkSize

	for round := 0; len(outstanding) > 0; round++ {
		chunks, err := splitByGasAndSize(outstanding, gasLimit, maxChunkSize)
		if err != nil {
			return nil, err
		}

		s.logger.WithFields(logrus.Fields{
			"round":        round,
			"outstanding":  len(outstanding),
			"chunks":       len(chunks),
			"maxChunkSize": maxChunkSize,
			"gasLimit":     gasLimit,
		}).Debug("Executing multicall round")

		outcomes, err := executeChunks(ctx, params.Parallelism, chunks, func(ctx context.Context, chunk []indexedCall) (*codec.Outcome, error) {
			return callWithRetries(ctx, s.logger, params.RetriesLimit, params.RetryInterval, func(ctx context.Context) (*codec.Outcome, error) {
				return s.callWithGasLimitation(ctx, chunk, params.GasBuffer, block)
			})
		})
		if err != nil {
			return nil, err
		}

		var notExecuted []indexedCall
		for i, chunk := range chunks {
			executed := executedCount(outcomes[i].LastSuccessIndex, len(chunk))

			for j, item := range chunk[:executed] {
				results[item.index] = outcomes[i].Results[j]
			}

			notExecuted = append(notExecuted, chunk[executed:]...)
		}

		if len(notExecuted) == 0 {
			break
		}

		maxChunkSize /= 2
		if maxChunkSize == 0 {
			return nil, errors.Wrapf(ErrUnrecoverableSplit, "%v calls not executed", len(notExecuted))
		}

		s.logger.WithFields(logrus.Fields{
			"round":        round,
			"notExecuted":  len(notExecuted),
			"maxChunkSize": maxChunkSize,
		}).Debug("Not all calls executed, splitting into smaller chunks")

		outstanding = notExecuted
	}

	return results, nil
}

// CallByChunks executes the calls through multicall in chunks of fixed size.
// Each chunk succeeds or fails as a whole, and the batch fails once any chunk
// runs out of retries. The gas estimates of the calls are ignored.
func (s *MultiCallService) CallByChunks(ctx context.Context, calls []Call, params ChunkParams) ([][]byte, error) {
	return callByChunks(ctx, s, calls, params, s.callMulticall)
}

// CallWithGasUsed works like CallByChunks against multicallWithGas, and also
// returns the gas each call consumed.
func (s *MultiCallService) CallWithGasUsed(ctx context.Context, calls []Call, params ChunkParams) ([]ResultWithGas, error) {
	return callByChunks(ctx, s, calls, params, s.callMulticallWithGas)
}

func callByChunks[R any](
	ctx context.Context,
	s *MultiCallService,
	calls []Call,
	params ChunkParams,
	call func(context.Context, []Call, rpc.BlockNumber) ([]R, error),
) ([]R, error) {
	params, err := normalize(params)
	if err != nil {
		return nil, err
	}

	chunks, err := splitBySize(calls, params.ChunkSize)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"calls":     len(calls),
		"chunks":    len(chunks),
		"chunkSize": params.ChunkSize,
	}).Debug("Executing chunked multicall")

	block := blockNumberOrLatest(params.BlockNumber)
	outcomes, err := executeChunks(ctx, params.Parallelism, chunks, func(ctx context.Context, chunk []Call) ([]R, error) {
		return callWithRetries(ctx, s.logger, params.RetriesLimit, params.RetryInterval, func(ctx context.Context) ([]R, error) {
			return call(ctx, chunk, block)
		})
	})
	if err != nil {
		return nil, err
	}

	results := make([]R, 0, len(calls))
	for _, outcome := range outcomes {
		results = append(results, outcome...)
	}

	return results, nil
}

// executeChunks runs fn on every chunk concurrently, with at most parallelism
// chunks in flight if parallelism is positive. Outcomes are returned in chunk
// order. A failing chunk does not cancel its siblings, every chunk runs to
// completion and the first error is returned.
func executeChunks[C, R any](ctx context.Context, parallelism int, chunks []C, fn func(context.Context, C) (R, error)) ([]R, error) {
	outcomes := make([]R, len(chunks))

	var group errgroup.Group
	if parallelism > 0 {
		group.SetLimit(parallelism)
	}

	for i, chunk := range chunks {
		i, chunk := i, chunk

		group.Go(func() error {
			outcome, err := fn(ctx, chunk)
			if err != nil {
				return err
			}

			outcomes[i] = outcome
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return outcomes, nil
}

// executedCount converts the lastSuccessIndex reported for a chunk of chunkSize
// calls into the number of calls executed. The contract reports 2^256-1 when it
// stopped before the first call.
func executedCount(lastSuccessIndex *uint256.Int, chunkSize int) int {
	if lastSuccessIndex == nil || lastSuccessIndex.Eq(maxUint256) {
		return 0
	}

	if !lastSuccessIndex.IsUint64() || lastSuccessIndex.Uint64() >= uint64(chunkSize) {
		return chunkSize
	}

	return int(lastSuccessIndex.Uint64()) + 1
}

var maxUint256 = new(uint256.Int).SetAllOne()

func (s *MultiCallService) callWithGasLimitation(ctx context.Context, chunk []indexedCall, gasBuffer uint64, block rpc.BlockNumber) (*codec.Outcome, error) {
	calls := make([]codec.Call, len(chunk))
	for i, item := range chunk {
		calls[i] = item.toCodecCall()
	}

	payload := codec.PackMulticallWithGasLimitation(calls, gasBuffer)

	response, err := s.connector.EthCall(ctx, s.address, payload, block)
	if err != nil {
		return nil, errors.WithMessage(err, "Failed to call multicallWithGasLimitation")
	}

	outcome, err := codec.DecodeMulticallWithGasLimitation(response)
	if err != nil {
		return nil, errors.WithMessage(err, "Failed to decode multicallWithGasLimitation response")
	}

	if executed := executedCount(outcome.LastSuccessIndex, len(chunk)); len(outcome.Results) < executed {
		return nil, errors.Errorf("received %d results for %d executed calls", len(outcome.Results), executed)
	}

	return outcome, nil
}

func (s *MultiCallService) callMulticall(ctx context.Context, chunk []Call, block rpc.BlockNumber) ([][]byte, error) {
	payload := codec.PackMulticall(toCodecCalls(chunk))

	response, err := s.connector.EthCall(ctx, s.address, payload, block)
	if err != nil {
		return nil, errors.WithMessage(err, "Failed to call multicall")
	}

	results, err := codec.DecodeMulticall(response)
	if err != nil {
		return nil, errors.WithMessage(err, "Failed to decode multicall response")
	}

	if len(results) != len(chunk) {
		return nil, errors.Errorf("received %d results which mismatches chunk size %d", len(results), len(chunk))
	}

	return results, nil
}

func (s *MultiCallService) callMulticallWithGas(ctx context.Context, chunk []Call, block rpc.BlockNumber) ([]ResultWithGas, error) {
	payload := codec.PackMulticallWithGas(toCodecCalls(chunk))

	response, err := s.connector.EthCall(ctx, s.address, payload, block)
	if err != nil {
		return nil, errors.WithMessage(err, "Failed to call multicallWithGas")
	}

	outcome, err := codec.DecodeMulticallWithGas(response)
	if err != nil {
		return nil, errors.WithMessage(err, "Failed to decode multicallWithGas response")
	}

	if len(outcome.Results) != len(chunk) || len(outcome.GasUsed) != len(chunk) {
		return nil, errors.Errorf("received %d results and %d gas used which mismatches chunk size %d", len(outcome.Results), len(outcome.GasUsed), len(chunk))
	}

	results := make([]ResultWithGas, len(chunk))
	for i := range chunk {
		results[i] = ResultWithGas{
			ReturnData: outcome.Results[i],
			GasUsed:    outcome.GasUsed[i],
		}
	}

	return results, nil
}
