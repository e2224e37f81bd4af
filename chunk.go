package multicall

import (
	"github.com/pkg/errors"
)

// splitByGasAndSize greedily packs calls, in order, into chunks of at most
// maxChunkSize calls. A chunk is closed by the call that makes its cumulative
// gas reach gasLimit, so the gas of every call except the closing one stays
// strictly below gasLimit.
func splitByGasAndSize(items []indexedCall, gasLimit uint64, maxChunkSize int) ([][]indexedCall, error) {
	if maxChunkSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidParams, "max chunk size %v", maxChunkSize)
	}

	var (
		chunks  [][]indexedCall
		current []indexedCall
		gasUsed uint64
	)

	for _, item := range items {
		if item.Gas >= gasLimit {
			return nil, errors.Wrapf(ErrChunkGasOverflow, "call %v to %v estimates %v gas, limit %v", item.index, item.To.Hex(), item.Gas, gasLimit)
		}

		if len(current) == maxChunkSize {
			chunks = append(chunks, current)
			current, gasUsed = nil, 0
		}

		current = append(current, item)

		// gasUsed < gasLimit holds here, so the subtraction can not wrap
		if item.Gas >= gasLimit-gasUsed {
			chunks = append(chunks, current)
			current, gasUsed = nil, 0
			continue
		}

		gasUsed += item.Gas
	}

	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	return chunks, nil
}

// splitBySize partitions calls, in order, into chunks of chunkSize calls.
// Only the last chunk may be shorter.
func splitBySize[T any](items []T, chunkSize int) ([][]T, error) {
	if chunkSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidParams, "chunk size %v", chunkSize)
	}

	chunks := make([][]T, 0, (len(items)+chunkSize-1)/chunkSize)
	for i := 0; i < len(items); i += chunkSize {
		end := min(i+chunkSize, len(items))
		chunks = append(chunks, items[i:end:end])
	}

	return chunks, nil
}
