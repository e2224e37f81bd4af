package multicall

import (
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-playground/validator/v10"
	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// Gas reserved for the multicall contract itself
	DefaultGasBuffer uint64 = 3_000_000

	// Upper bound on the gas of a single multicall, to stay clear of node call timeouts
	DefaultMaxGasLimit uint64 = 150_000_000
)

var validate = validator.New()

// Params of the gas limited calling convention
type Params struct {
	// Max number of calls within a single multicall, halved on every retry round
	MaxChunkSize int `default:"500" validate:"gt=0"`

	// Number of attempts per chunk
	RetriesLimit int `default:"3" validate:"gt=0"`

	// Block to run the calls against, nil for the latest block
	BlockNumber *rpc.BlockNumber

	// Gas the multicall contract keeps in reserve before it stops executing calls
	GasBuffer uint64 `default:"3000000"`

	// Send a gas buffer of 0, GasBuffer is ignored
	NoGasBuffer bool

	// Max number of chunks in flight, 0 for no limit
	Parallelism int `validate:"gte=0"`

	// Delay between attempts of a failed chunk, 0 to retry immediately
	RetryInterval time.Duration
}

// Params of the all-or-nothing chunked calling convention
type ChunkParams struct {
	// Number of calls within a single multicall
	ChunkSize int `default:"100" validate:"gt=0"`

	// Number of attempts per chunk
	RetriesLimit int `default:"3" validate:"gt=0"`

	// Block to run the calls against, nil for the latest block
	BlockNumber *rpc.BlockNumber

	// Max number of chunks in flight, 0 for no limit
	Parallelism int `validate:"gte=0"`

	// Delay between attempts of a failed chunk, 0 to retry immediately
	RetryInterval time.Duration
}

// Params to resolve the gas ceiling of a single multicall
type GasLimitParams struct {
	// Gas limit to use as is instead of probing the multicall contract
	GasLimit uint64

	// Upper bound of the resolved gas limit
	MaxGasLimit uint64 `default:"150000000"`

	// Safety margin subtracted from the resolved gas limit
	GasBuffer uint64 `default:"3000000"`

	// Subtract nothing from the resolved gas limit, GasBuffer is ignored
	NoGasBuffer bool
}

func normalize[T any](params T) (T, error) {
	defaults.SetDefaults(&params)

	if err := validate.Struct(params); err != nil {
		return params, errors.Wrap(ErrInvalidParams, err.Error())
	}

	return params, nil
}

func blockNumberOrLatest(block *rpc.BlockNumber) rpc.BlockNumber {
	if block == nil {
		return rpc.LatestBlockNumber
	}
	return *block
}

// ParseBlockNumber parses a block tag (latest, pending, earliest, safe, finalized),
// a decimal block number or a 0x prefixed hex block number.
func ParseBlockNumber(value string) (rpc.BlockNumber, error) {
	value = strings.ToLower(strings.TrimSpace(value))

	switch value {
	case "", "latest":
		return rpc.LatestBlockNumber, nil
	case "pending":
		return rpc.PendingBlockNumber, nil
	case "earliest":
		return rpc.EarliestBlockNumber, nil
	case "safe":
		return rpc.SafeBlockNumber, nil
	case "finalized":
		return rpc.FinalizedBlockNumber, nil
	}

	var (
		number uint64
		err    error
	)
	if strings.HasPrefix(value, "0x") {
		number, err = hexutil.DecodeUint64(value)
	} else {
		number, err = strconv.ParseUint(value, 10, 64)
	}
	if err != nil {
		return 0, errors.WithMessagef(err, "invalid block number %q", value)
	}

	if number > math.MaxInt64 {
		return 0, errors.Errorf("block number %v out of range", number)
	}

	return rpc.BlockNumber(number), nil
}

type LogOption struct {
	LogLevel logrus.Level
	Logger   *logrus.Logger
}

// NewLogger returns the logger of the first option, or a logger with the given
// level writing to stderr. Without options all output is discarded.
func NewLogger(opt ...LogOption) *logrus.Logger {
	logger := logrus.New()
	if len(opt) == 0 {
		logger.Out = io.Discard
		return logger
	}
	if opt[0].Logger != nil {
		return opt[0].Logger
	}
	logger.SetLevel(opt[0].LogLevel)
	return logger
}
