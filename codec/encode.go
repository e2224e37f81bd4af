package codec

import (
	"encoding/binary"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// tupleHeadSize is the fixed part of an encoded (address,bytes) tuple:
// address word, offset to the bytes field and the bytes length.
const tupleHeadSize = 3 * WordSize

// tupleDataOffset is the offset of the bytes field from the start of its tuple.
// Every tuple has exactly one dynamic field after the address.
const tupleDataOffset = 2 * WordSize

// EncodeCalls encodes the argument block of multicall(calls[]) and
// multicallWithGas(calls[]), without the method selector.
func EncodeCalls(calls []Call) []byte {
	return encodeCalls(calls, nil)
}

// EncodeCallsWithGasBuffer encodes the argument block of
// multicallWithGasLimitation(calls[], gasBuffer), without the method selector.
func EncodeCallsWithGasBuffer(calls []Call, gasBuffer uint64) []byte {
	return encodeCalls(calls, &gasBuffer)
}

// Pack returns the full calldata of method. gasBuffer is only encoded for
// multicallWithGasLimitation and calls are ignored for gasLeft.
func Pack(method Method, calls []Call, gasBuffer uint64) ([]byte, error) {
	switch method {
	case MethodMulticall:
		return PackMulticall(calls), nil
	case MethodMulticallWithGasLimitation:
		return PackMulticallWithGasLimitation(calls, gasBuffer), nil
	case MethodMulticallWithGas:
		return PackMulticallWithGas(calls), nil
	case MethodGasLeft:
		return PackGasLeft(), nil
	}

	return nil, errors.Wrapf(ErrUnknownSelector, "method %v", method)
}

// PackMulticall returns the full calldata of multicall(calls[]).
func PackMulticall(calls []Call) []byte {
	return withSelector(MethodMulticall, EncodeCalls(calls))
}

// PackMulticallWithGasLimitation returns the full calldata of multicallWithGasLimitation(calls[], gasBuffer).
func PackMulticallWithGasLimitation(calls []Call, gasBuffer uint64) []byte {
	return withSelector(MethodMulticallWithGasLimitation, EncodeCallsWithGasBuffer(calls, gasBuffer))
}

// PackMulticallWithGas returns the full calldata of multicallWithGas(calls[]).
func PackMulticallWithGas(calls []Call) []byte {
	return withSelector(MethodMulticallWithGas, EncodeCalls(calls))
}

// PackGasLeft returns the full calldata of gasLeft().
func PackGasLeft() []byte {
	return MethodGasLeft.Selector()
}

func withSelector(method Method, args []byte) []byte {
	payload := make([]byte, 4+len(args))
	copy(payload, methodSelectors[method])
	copy(payload[4:], args)
	return payload
}

func encodeCalls(calls []Call, gasBuffer *uint64) []byte {
	headWords := 2 + len(calls) // array offset, array length, element offsets
	if gasBuffer != nil {
		headWords++
	}

	size := headWords * WordSize
	for _, call := range calls {
		size += tupleHeadSize + paddedLength(len(call.Data))
	}

	// zero filled, so padding and high bytes come for free
	data := make([]byte, size)
	offset := 0

	// offset to the dynamic array, the scalar gas buffer sits in between
	if gasBuffer != nil {
		putUint64(data[offset:], 2*WordSize)
		offset += WordSize

		putUint64(data[offset:], *gasBuffer)
		offset += WordSize
	} else {
		putUint64(data[offset:], WordSize)
		offset += WordSize
	}

	putUint64(data[offset:], uint64(len(calls)))
	offset += WordSize

	// element offsets are relative to the first word after the array length
	elementOffset := WordSize * len(calls)
	for _, call := range calls {
		putUint64(data[offset:], uint64(elementOffset))
		offset += WordSize

		elementOffset += tupleHeadSize + paddedLength(len(call.Data))
	}

	for _, call := range calls {
		copy(data[offset+WordSize-len(call.Target):], call.Target[:])
		offset += WordSize

		putUint64(data[offset:], tupleDataOffset)
		offset += WordSize

		putUint64(data[offset:], uint64(len(call.Data)))
		offset += WordSize

		copy(data[offset:], call.Data)
		offset += paddedLength(len(call.Data))
	}

	return data
}

// EncodeResults encodes the return block of multicall: a single bytes[].
func EncodeResults(results [][]byte) []byte {
	array := encodeBytesArray(results)

	data := make([]byte, WordSize, WordSize+len(array))
	putUint64(data, WordSize)

	return append(data, array...)
}

// EncodeResultsWithLastSuccessIndex encodes the return block of
// multicallWithGasLimitation: (bytes[] results, uint256 lastSuccessIndex).
func EncodeResultsWithLastSuccessIndex(results [][]byte, lastSuccessIndex *uint256.Int) []byte {
	array := encodeBytesArray(results)

	data := make([]byte, 2*WordSize, 2*WordSize+len(array))
	putUint64(data, 2*WordSize)
	putUint256(data[WordSize:], lastSuccessIndex)

	return append(data, array...)
}

// EncodeResultsWithGasUsed encodes the return block of multicallWithGas:
// (bytes[] results, uint256[] gasUsed).
func EncodeResultsWithGasUsed(results [][]byte, gasUsed []*uint256.Int) []byte {
	array := encodeBytesArray(results)

	data := make([]byte, 2*WordSize, 2*WordSize+len(array)+(1+len(gasUsed))*WordSize)
	putUint64(data, 2*WordSize)
	putUint64(data[WordSize:], uint64(2*WordSize+len(array)))
	data = append(data, array...)

	words := make([]byte, (1+len(gasUsed))*WordSize)
	putUint64(words, uint64(len(gasUsed)))
	for i, gas := range gasUsed {
		putUint256(words[(i+1)*WordSize:], gas)
	}

	return append(data, words...)
}

// EncodeUint256 encodes a single uint256 return value, e.g. of gasLeft().
func EncodeUint256(value *uint256.Int) []byte {
	data := make([]byte, WordSize)
	putUint256(data, value)
	return data
}

func encodeBytesArray(elements [][]byte) []byte {
	size := (1 + len(elements)) * WordSize
	for _, element := range elements {
		size += WordSize + paddedLength(len(element))
	}

	data := make([]byte, size)
	putUint64(data, uint64(len(elements)))

	offset := (1 + len(elements)) * WordSize
	for i, element := range elements {
		putUint64(data[(i+1)*WordSize:], uint64(offset-WordSize))

		putUint64(data[offset:], uint64(len(element)))
		copy(data[offset+WordSize:], element)

		offset += WordSize + paddedLength(len(element))
	}

	return data
}

// putUint64 writes v as a big-endian word into the first 32 bytes of word,
// which must be zeroed.
func putUint64(word []byte, v uint64) {
	binary.BigEndian.PutUint64(word[WordSize-8:WordSize], v)
}

func putUint256(word []byte, v *uint256.Int) {
	if v == nil {
		v = new(uint256.Int)
	}
	b := v.Bytes32()
	copy(word[:WordSize], b[:])
}
