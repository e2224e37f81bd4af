package connector

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	providers "github.com/openweb3/go-rpc-provider/provider_wrapper"
	"github.com/pkg/errors"
)

// RPCCaller is the part of an openweb3 provider the connector needs.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// ProviderConnector runs eth_call through an openweb3 JSON-RPC provider.
type ProviderConnector struct {
	provider RPCCaller
	url      string
}

// NewProviderConnector creates a provider for the given url. Errors returned
// by the provider are wrapped into *CallError.
func NewProviderConnector(url string, option ...providers.Option) (*ProviderConnector, error) {
	var opt providers.Option
	if len(option) > 0 {
		opt = option[0]
	}

	provider, err := providers.NewProviderWithOption(url, opt)
	if err != nil {
		return nil, err
	}

	c := &ProviderConnector{provider: provider, url: url}
	provider.HookCallContext(c.callErrorMiddleware)

	return c, nil
}

// NewProviderConnectorWith wraps an existing provider.
func NewProviderConnectorWith(provider RPCCaller, url string) *ProviderConnector {
	return &ProviderConnector{provider: provider, url: url}
}

func (c *ProviderConnector) URL() string {
	return c.url
}

type callArgs struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

func (c *ProviderConnector) EthCall(ctx context.Context, to common.Address, data []byte, block rpc.BlockNumber) ([]byte, error) {
	var result hexutil.Bytes

	args := callArgs{To: to, Data: data}
	if err := c.provider.CallContext(ctx, &result, "eth_call", args, block.String()); err != nil {
		return nil, c.callError(err, "eth_call")
	}

	return result, nil
}

// ChainID returns the chain id reported by eth_chainId.
func (c *ProviderConnector) ChainID(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64

	if err := c.provider.CallContext(ctx, &result, "eth_chainId"); err != nil {
		return 0, c.callError(err, "eth_chainId")
	}

	return uint64(result), nil
}

// callError wraps err unless the middleware already did.
func (c *ProviderConnector) callError(err error, method string) error {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return err
	}
	return wrapError(err, method, c.url)
}

func (c *ProviderConnector) callErrorMiddleware(handler providers.CallContextFunc) providers.CallContextFunc {
	return func(ctx context.Context, result interface{}, method string, args ...interface{}) error {
		err := handler(ctx, result, method, args...)
		return wrapError(err, method, c.url)
	}
}
