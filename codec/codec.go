// Package codec encodes and decodes the payloads of the multicall aggregator
// contract by hand. Only the fixed shapes the aggregator uses are supported:
// (address,bytes)[] calls, bytes[] results, uint256 scalars and uint256[].
//
// General purpose ABI packers reflect over every value and are too slow for
// batches with thousands of calls, so the layout is written out explicitly.
package codec

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// WordSize is the size of an ABI word in bytes.
const WordSize = 32

// Call is a single (target, calldata) tuple of the aggregator call array.
type Call struct {
	Target common.Address `json:"target"`
	Data   []byte         `json:"data"`
}

// Outcome is a decoded aggregator response. Fields that the decoded method
// does not return are left nil.
type Outcome struct {
	// Raw return data of each executed call, in call order
	Results [][]byte

	// Index (inclusive) of the last call executed before the gas buffer was hit
	LastSuccessIndex *uint256.Int

	// Gas consumed by each call
	GasUsed []*uint256.Int
}

// Method identifies an aggregator contract method.
type Method int

const (
	// multicall(calls[]) returns (bytes[] results)
	MethodMulticall Method = iota

	// multicallWithGasLimitation(calls[], gasBuffer) returns (bytes[] results, uint256 lastSuccessIndex)
	MethodMulticallWithGasLimitation

	// multicallWithGas(calls[]) returns (bytes[] results, uint256[] gasUsed)
	MethodMulticallWithGas

	// gasLeft() returns (uint256)
	MethodGasLeft
)

var methodSignatures = map[Method]string{
	MethodMulticall:                  "multicall((address,bytes)[])",
	MethodMulticallWithGasLimitation: "multicallWithGasLimitation((address,bytes)[],uint256)",
	MethodMulticallWithGas:           "multicallWithGas((address,bytes)[])",
	MethodGasLeft:                    "gasLeft()",
}

var methodSelectors = func() map[Method][]byte {
	selectors := make(map[Method][]byte, len(methodSignatures))
	for method, signature := range methodSignatures {
		selectors[method] = crypto.Keccak256([]byte(signature))[:4]
	}
	return selectors
}()

// Signature returns the canonical signature the selector is derived from.
func (m Method) Signature() string {
	return methodSignatures[m]
}

// Selector returns the 4-byte function selector of the method.
func (m Method) Selector() []byte {
	return common.CopyBytes(methodSelectors[m])
}

func (m Method) String() string {
	switch m {
	case MethodMulticall:
		return "multicall"
	case MethodMulticallWithGasLimitation:
		return "multicallWithGasLimitation"
	case MethodMulticallWithGas:
		return "multicallWithGas"
	case MethodGasLeft:
		return "gasLeft"
	default:
		return "unknown"
	}
}

// methodBySelector matches the first 4 bytes of a payload against the known selectors.
func methodBySelector(selector []byte) (Method, bool) {
	for method, s := range methodSelectors {
		if bytes.Equal(s, selector) {
			return method, true
		}
	}
	return 0, false
}

// paddedLength rounds n up to a whole number of words.
func paddedLength(n int) int {
	return (n + WordSize - 1) / WordSize * WordSize
}
