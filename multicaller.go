package multicall

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// A contract call registered with a MultiCaller
type registeredCall struct {
	Call
	Method     string
	UnpackFunc func([]byte) error
}

// MultiCaller collects ABI encoded contract calls and executes them in as few
// multicalls as the gas limit allows, unpacking every result into the output
// provided when the call was added.
type MultiCaller struct {
	// The multicall service the calls are executed with
	service *MultiCallService

	// The collection of calls to batch and execute during the next Execute()
	calls []registeredCall
}

// Creates a new MultiCaller that executes its calls with the provided service
func NewMultiCaller(service *MultiCallService) *MultiCaller {
	return &MultiCaller{
		service: service,
		calls:   []registeredCall{},
	}
}

// Adds a contract call to the batch of calls to query during the next run.
// gas is the estimated gas of the call, used to pack calls into chunks.
func (mc *MultiCaller) AddCall(contractAddress common.Address, abi *abi.ABI, output any, gas uint64, method string, args ...interface{}) error {
	callData, err := abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("error adding call [%s]: %w", method, err)
	}
	call := registeredCall{
		Call: Call{
			To:   contractAddress,
			Data: callData,
			Gas:  gas,
		},
		Method: method,
		UnpackFunc: func(rawData []byte) error {
			return abi.UnpackIntoInterface(output, method, rawData)
		},
	}
	mc.calls = append(mc.calls, call)
	return nil
}

// Len returns the number of calls added since the last run.
func (mc *MultiCaller) Len() int {
	return len(mc.calls)
}

// Invokes all of the previously added contract calls and unpacks their results.
// Upon completion, successful or not, the internal list of calls is cleared.
func (mc *MultiCaller) Execute(ctx context.Context, gasParams GasLimitParams, params Params) error {
	calls := mc.calls
	mc.calls = []registeredCall{}

	requests := make([]Call, len(calls))
	for i, c := range calls {
		requests[i] = c.Call
	}

	results, err := mc.service.CallWithGasLimitation(ctx, requests, gasParams, params)
	if err != nil {
		return fmt.Errorf("error executing multicall: %w", err)
	}

	// Unpack the individual call results per function
	for i, c := range calls {
		if err := c.UnpackFunc(results[i]); err != nil {
			return fmt.Errorf("error unpacking response for contract %s, method %s: %w", c.To.Hex(), c.Method, err)
		}
	}

	return nil
}
