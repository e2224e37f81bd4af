package multicall

import (
	"context"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rocket-pool/multicall-batcher/codec"
)

// GasLimitService resolves the gas ceiling of a single multicall.
type GasLimitService struct {
	connector Connector
	address   common.Address
	logger    *logrus.Logger

	// successful gasLeft probes by block, nil if caching is disabled
	cache *expirable.LRU[rpc.BlockNumber, uint64]
}

type GasLimitOption func(*GasLimitService)

// WithLogger sets the logger used to report failed probes.
func WithLogger(logger *logrus.Logger) GasLimitOption {
	return func(s *GasLimitService) {
		s.logger = logger
	}
}

// WithProbeCache caches up to size successful gasLeft probes per block for ttl.
func WithProbeCache(size int, ttl time.Duration) GasLimitOption {
	return func(s *GasLimitService) {
		s.cache = expirable.NewLRU[rpc.BlockNumber, uint64](size, nil, ttl)
	}
}

func NewGasLimitService(connector Connector, address common.Address, opts ...GasLimitOption) *GasLimitService {
	s := &GasLimitService{
		connector: connector,
		address:   address,
		logger:    NewLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CalculateGasLimit returns params.GasLimit, or the gas left reported by the
// multicall contract at the given block if not set, clamped to
// params.MaxGasLimit and reduced by params.GasBuffer (0 with params.NoGasBuffer).
func (s *GasLimitService) CalculateGasLimit(ctx context.Context, params GasLimitParams, block rpc.BlockNumber) (uint64, error) {
	params, err := normalize(params)
	if err != nil {
		return 0, err
	}

	if params.NoGasBuffer {
		params.GasBuffer = 0
	}

	gasLimit := params.GasLimit
	if gasLimit == 0 {
		gasLimit = s.FetchGasLimit(ctx, block)
	}

	gasLimit = min(gasLimit, params.MaxGasLimit)

	if gasLimit <= params.GasBuffer {
		return 0, errors.Wrapf(ErrGasBudgetMisconfigured, "gas limit %v, gas buffer %v", gasLimit, params.GasBuffer)
	}

	return gasLimit - params.GasBuffer, nil
}

// FetchGasLimit probes the multicall contract for the gas left within an
// eth_call. The probe is best effort: any failure falls back to DefaultGasLimit.
func (s *GasLimitService) FetchGasLimit(ctx context.Context, block rpc.BlockNumber) uint64 {
	if s.cache != nil {
		if gasLimit, ok := s.cache.Get(block); ok {
			return gasLimit
		}
	}

	gasLimit, err := s.fetchGasLeft(ctx, block)
	if err != nil {
		s.logger.WithError(err).WithField("default", DefaultGasLimit).Warn("Cannot get gas left, using default gas limit")
		return DefaultGasLimit
	}

	if s.cache != nil {
		s.cache.Add(block, gasLimit)
	}

	return gasLimit
}

func (s *GasLimitService) fetchGasLeft(ctx context.Context, block rpc.BlockNumber) (uint64, error) {
	response, err := s.connector.EthCall(ctx, s.address, codec.PackGasLeft(), block)
	if err != nil {
		return 0, errors.WithMessage(err, "Failed to call gasLeft")
	}

	gasLeft, err := codec.DecodeGasLeft(response)
	if err != nil {
		return 0, errors.WithMessage(err, "Failed to decode gasLeft response")
	}

	// anything beyond 64 bits is clamped by the max gas limit anyway
	if !gasLeft.IsUint64() {
		return math.MaxUint64, nil
	}

	return gasLeft.Uint64(), nil
}
