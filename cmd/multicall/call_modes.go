package main

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	multicall "github.com/rocket-pool/multicall-batcher"
)

func callWithGasLimitation(ctx context.Context, service *multicall.MultiCallService, calls []multicall.Call, block *rpc.BlockNumber) ([]callOutput, error) {
	gasParams := multicall.GasLimitParams{
		GasLimit:    callArgs.gasLimit,
		MaxGasLimit: callArgs.maxGasLimit,
		GasBuffer:   callArgs.gasBuffer,
		NoGasBuffer: callArgs.noGasBuffer,
	}
	params := multicall.Params{
		MaxChunkSize: callArgs.maxChunkSize,
		RetriesLimit: callArgs.retries,
		BlockNumber:  block,
		GasBuffer:    callArgs.gasBuffer,
		NoGasBuffer:  callArgs.noGasBuffer,
		Parallelism:  callArgs.parallelism,
	}

	results, err := service.CallWithGasLimitation(ctx, calls, gasParams, params)
	if err != nil {
		return nil, err
	}

	outputs := make([]callOutput, len(results))
	for i, result := range results {
		outputs[i] = callOutput{ReturnData: result}
	}

	return outputs, nil
}

func callByChunks(ctx context.Context, service *multicall.MultiCallService, calls []multicall.Call, block *rpc.BlockNumber) ([]callOutput, error) {
	params := multicall.ChunkParams{
		ChunkSize:    callArgs.chunkSize,
		RetriesLimit: callArgs.retries,
		BlockNumber:  block,
		Parallelism:  callArgs.parallelism,
	}

	if !callArgs.withGasUsed {
		results, err := service.CallByChunks(ctx, calls, params)
		if err != nil {
			return nil, err
		}

		outputs := make([]callOutput, len(results))
		for i, result := range results {
			outputs[i] = callOutput{ReturnData: result}
		}
		return outputs, nil
	}

	results, err := service.CallWithGasUsed(ctx, calls, params)
	if err != nil {
		return nil, err
	}

	outputs := make([]callOutput, len(results))
	for i, result := range results {
		outputs[i] = callOutput{
			ReturnData: result.ReturnData,
			GasUsed:    (*hexutil.Big)(result.GasUsed.ToBig()),
		}
	}

	return outputs, nil
}
