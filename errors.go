package multicall

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// A single call estimates more gas than any chunk can carry
	ErrChunkGasOverflow = errors.New("multicall: call gas exceeds chunk gas limit")

	// A chunk failed on every attempt
	ErrRetriesExceeded = errors.New("multicall: retries exceeded")

	// Chunks were halved down to zero while calls are still not executed
	ErrUnrecoverableSplit = errors.New("multicall: exceeded chunks split")

	// The gas ceiling left after subtracting the gas buffer is not positive
	ErrGasBudgetMisconfigured = errors.New("multicall: gas limit does not cover gas buffer")

	// Params failed validation
	ErrInvalidParams = errors.New("multicall: invalid params")
)

// RetriesExceededError is returned when a chunk fails on every attempt.
// It matches ErrRetriesExceeded and unwraps to the last failure.
type RetriesExceededError struct {
	Attempts int
	Cause    error
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrRetriesExceeded, e.Attempts, e.Cause)
}

func (e *RetriesExceededError) Unwrap() error {
	return e.Cause
}

func (e *RetriesExceededError) Is(target error) bool {
	return target == ErrRetriesExceeded
}
