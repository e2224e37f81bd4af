package codec

import (
	"encoding/binary"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// DecodeResults decodes the return block of the given aggregator method.
func DecodeResults(data []byte, method Method) (*Outcome, error) {
	switch method {
	case MethodMulticall:
		results, err := DecodeMulticall(data)
		if err != nil {
			return nil, err
		}
		return &Outcome{Results: results}, nil
	case MethodMulticallWithGasLimitation:
		return DecodeMulticallWithGasLimitation(data)
	case MethodMulticallWithGas:
		return DecodeMulticallWithGas(data)
	default:
		return nil, errors.Wrapf(ErrUnknownSelector, "method %d", method)
	}
}

// DecodeMulticall decodes the bytes[] returned by multicall.
func DecodeMulticall(data []byte) ([][]byte, error) {
	// array offset + array length
	if len(data) < 2*WordSize {
		return nil, errors.Wrapf(ErrInputTooShort, "%d bytes", len(data))
	}

	r := reader(data)

	arrayOffset, err := r.readUint(0)
	if err != nil {
		return nil, err
	}

	return r.bytesArray(arrayOffset)
}

// DecodeMulticallWithGasLimitation decodes the (bytes[], uint256) returned by multicallWithGasLimitation.
func DecodeMulticallWithGasLimitation(data []byte) (*Outcome, error) {
	// array offset + lastSuccessIndex + array length
	if len(data) < 3*WordSize {
		return nil, errors.Wrapf(ErrInputTooShort, "%d bytes", len(data))
	}

	r := reader(data)

	arrayOffset, err := r.readUint(0)
	if err != nil {
		return nil, err
	}

	lastSuccessIndex, err := r.readUint256(WordSize)
	if err != nil {
		return nil, err
	}

	results, err := r.bytesArray(arrayOffset)
	if err != nil {
		return nil, err
	}

	return &Outcome{Results: results, LastSuccessIndex: lastSuccessIndex}, nil
}

// DecodeMulticallWithGas decodes the (bytes[], uint256[]) returned by multicallWithGas.
func DecodeMulticallWithGas(data []byte) (*Outcome, error) {
	// offset + length for each array
	if len(data) < 4*WordSize {
		return nil, errors.Wrapf(ErrInputTooShort, "%d bytes", len(data))
	}

	r := reader(data)

	resultsOffset, err := r.readUint(0)
	if err != nil {
		return nil, err
	}

	gasUsedOffset, err := r.readUint(WordSize)
	if err != nil {
		return nil, err
	}

	results, err := r.bytesArray(resultsOffset)
	if err != nil {
		return nil, err
	}

	length, err := r.length(gasUsedOffset)
	if err != nil {
		return nil, err
	}

	gasUsed := make([]*uint256.Int, 0, length)
	for i := uint64(0); i < length; i++ {
		pos, err := r.offset(gasUsedOffset, (i+1)*WordSize)
		if err != nil {
			return nil, err
		}

		gas, err := r.readUint256(pos)
		if err != nil {
			return nil, err
		}

		gasUsed = append(gasUsed, gas)
	}

	return &Outcome{Results: results, GasUsed: gasUsed}, nil
}

// DecodeGasLeft decodes the uint256 returned by gasLeft.
func DecodeGasLeft(data []byte) (*uint256.Int, error) {
	if len(data) < WordSize {
		return nil, errors.Wrapf(ErrInputTooShort, "%d bytes", len(data))
	}

	return reader(data).readUint256(0)
}

// UnpackCalls identifies the method of a full calldata payload and decodes its
// call array, along with the gas buffer for multicallWithGasLimitation.
func UnpackCalls(payload []byte) (Method, []Call, uint64, error) {
	if len(payload) < 4 {
		return 0, nil, 0, errors.Wrapf(ErrInputTooShort, "%d bytes", len(payload))
	}

	method, ok := methodBySelector(payload[:4])
	if !ok || method == MethodGasLeft {
		return 0, nil, 0, errors.Wrapf(ErrUnknownSelector, "%x", payload[:4])
	}

	calls, gasBuffer, err := DecodeCalls(payload[4:], method == MethodMulticallWithGasLimitation)
	if err != nil {
		return 0, nil, 0, err
	}

	return method, calls, gasBuffer, nil
}

// DecodeCalls decodes an argument block produced by EncodeCalls, or by
// EncodeCallsWithGasBuffer if withGasBuffer is set.
func DecodeCalls(data []byte, withGasBuffer bool) ([]Call, uint64, error) {
	minSize := 2 * WordSize
	if withGasBuffer {
		minSize += WordSize
	}
	if len(data) < minSize {
		return nil, 0, errors.Wrapf(ErrInputTooShort, "%d bytes", len(data))
	}

	r := reader(data)

	arrayOffset, err := r.readUint(0)
	if err != nil {
		return nil, 0, err
	}

	var gasBuffer uint64
	if withGasBuffer {
		word, err := r.readUint256(WordSize)
		if err != nil {
			return nil, 0, err
		}
		if !word.IsUint64() {
			return nil, 0, errors.Wrapf(ErrValueOutOfRange, "gas buffer %v", word)
		}
		gasBuffer = word.Uint64()
	}

	length, err := r.length(arrayOffset)
	if err != nil {
		return nil, 0, err
	}

	calls := make([]Call, 0, length)
	for i := uint64(0); i < length; i++ {
		tuple, err := r.element(arrayOffset, i)
		if err != nil {
			return nil, 0, err
		}

		word, err := r.word(tuple)
		if err != nil {
			return nil, 0, err
		}
		for _, b := range word[:WordSize-common.AddressLength] {
			if b != 0 {
				return nil, 0, errors.Wrapf(ErrInvalidAddress, "call %d", i)
			}
		}

		dataOffset, err := r.readUint(tuple + WordSize)
		if err != nil {
			return nil, 0, err
		}

		lengthPos, err := r.offset(tuple, dataOffset)
		if err != nil {
			return nil, 0, err
		}

		callData, err := r.bytes(lengthPos)
		if err != nil {
			return nil, 0, err
		}

		calls = append(calls, Call{
			Target: common.BytesToAddress(word),
			Data:   callData,
		})
	}

	return calls, gasBuffer, nil
}

// reader reads ABI words at byte positions with explicit bounds checks.
type reader []byte

// word returns the 32 bytes starting at pos.
func (r reader) word(pos uint64) ([]byte, error) {
	end, carry := bits.Add64(pos, WordSize, 0)
	if carry != 0 || end > uint64(len(r)) {
		return nil, errors.Wrapf(ErrOutOfBounds, "word at byte %d, input %d bytes", pos, len(r))
	}

	return r[pos:end], nil
}

// readUint reads a word used as an offset or a length. Such values can never
// address anything in the input if they exceed 64 bits.
func (r reader) readUint(pos uint64) (uint64, error) {
	word, err := r.word(pos)
	if err != nil {
		return 0, err
	}

	for _, b := range word[:WordSize-8] {
		if b != 0 {
			return 0, errors.Wrapf(ErrOutOfBounds, "value at byte %d exceeds 64 bits", pos)
		}
	}

	return binary.BigEndian.Uint64(word[WordSize-8:]), nil
}

func (r reader) readUint256(pos uint64) (*uint256.Int, error) {
	word, err := r.word(pos)
	if err != nil {
		return nil, err
	}

	return new(uint256.Int).SetBytes32(word), nil
}

// offset returns base+relative, failing on overflow.
func (r reader) offset(base, relative uint64) (uint64, error) {
	pos, carry := bits.Add64(base, relative, 0)
	if carry != 0 {
		return 0, errors.Wrapf(ErrOutOfBounds, "offset %d from byte %d", relative, base)
	}

	return pos, nil
}

// length reads the length word of the dynamic array at pos. Lengths that can
// not be backed by the remaining input are rejected before any allocation.
func (r reader) length(pos uint64) (uint64, error) {
	length, err := r.readUint(pos)
	if err != nil {
		return 0, err
	}

	if length > uint64(len(r))/WordSize {
		return 0, errors.Wrapf(ErrOutOfBounds, "array length %d at byte %d, input %d bytes", length, pos, len(r))
	}

	return length, nil
}

// element returns the absolute position of the i-th element of the array of
// dynamic values whose length word is at arrayPos.
func (r reader) element(arrayPos, i uint64) (uint64, error) {
	head := arrayPos + WordSize

	relative, err := r.readUint(head + i*WordSize)
	if err != nil {
		return 0, err
	}

	return r.offset(head, relative)
}

// bytes reads a length prefixed byte string whose length word is at pos.
// The result is a copy and never aliases the input.
func (r reader) bytes(pos uint64) ([]byte, error) {
	length, err := r.readUint(pos)
	if err != nil {
		return nil, err
	}

	// zero length decodes to the empty bytes value
	if length == 0 {
		return []byte{}, nil
	}

	start := pos + WordSize
	end, carry := bits.Add64(start, length, 0)
	if carry != 0 || end > uint64(len(r)) {
		return nil, errors.Wrapf(ErrBufferOverrun, "%d bytes at byte %d, input %d bytes", length, start, len(r))
	}

	return common.CopyBytes(r[start:end]), nil
}

// bytesArray decodes the bytes[] whose length word is at pos.
func (r reader) bytesArray(pos uint64) ([][]byte, error) {
	length, err := r.length(pos)
	if err != nil {
		return nil, err
	}

	results := make([][]byte, 0, length)
	for i := uint64(0); i < length; i++ {
		lengthPos, err := r.element(pos, i)
		if err != nil {
			return nil, err
		}

		element, err := r.bytes(lengthPos)
		if err != nil {
			return nil, err
		}

		results = append(results, element)
	}

	return results, nil
}
