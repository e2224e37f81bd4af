package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	providers "github.com/openweb3/go-rpc-provider/provider_wrapper"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	multicall "github.com/rocket-pool/multicall-batcher"
	"github.com/rocket-pool/multicall-batcher/connector"
)

const (
	transportEthClient = "ethclient"
	transportProvider  = "provider"
)

var (
	logLevel         string
	logColorDisabled bool

	nodeArgs struct {
		url       string
		multicall string
		chainID   uint64
		transport string
		block     string

		requestTimeout time.Duration
		timeout        time.Duration
	}

	rootCmd = &cobra.Command{
		Use:   "multicall",
		Short: "Batch read-only contract calls through a gas aware multicall contract",
		PersistentPreRun: func(*cobra.Command, []string) {
			initLog()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logrus.InfoLevel.String(), "Log level")
	rootCmd.PersistentFlags().BoolVar(&logColorDisabled, "log-color-disabled", false, "Force to disable colorful logs")

	rootCmd.PersistentFlags().StringVar(&nodeArgs.url, "url", "http://127.0.0.1:8545", "Execution client RPC URL")
	rootCmd.PersistentFlags().StringVar(&nodeArgs.multicall, "multicall", "", "Multicall contract address, the known contract of the chain if empty")
	rootCmd.PersistentFlags().Uint64Var(&nodeArgs.chainID, "chain-id", 0, "Chain id to look up the multicall contract for, queried from the node if 0")
	rootCmd.PersistentFlags().StringVar(&nodeArgs.transport, "transport", transportEthClient, "RPC transport, ethclient or provider")
	rootCmd.PersistentFlags().StringVar(&nodeArgs.block, "block", "latest", "Block number or tag to call against")
	rootCmd.PersistentFlags().DurationVar(&nodeArgs.requestTimeout, "request-timeout", 30*time.Second, "Timeout of a single RPC request, provider transport only")
	rootCmd.PersistentFlags().DurationVar(&nodeArgs.timeout, "timeout", 0, "cli task timeout, 0 for no timeout")
}

func initLog() {
	formatter := logrus.TextFormatter{
		FullTimestamp: true,
	}

	if logColorDisabled {
		formatter.DisableColors = true
	} else {
		formatter.ForceColors = true
	}

	logrus.SetFormatter(&formatter)

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.WithError(err).WithField("level", logLevel).Fatal("Failed to parse log level")
	}

	logrus.SetLevel(level)
}

func newContext() (context.Context, context.CancelFunc) {
	if nodeArgs.timeout > 0 {
		return context.WithTimeout(context.Background(), nodeArgs.timeout)
	}
	return context.WithCancel(context.Background())
}

func newConnector(ctx context.Context) (multicall.Connector, error) {
	switch nodeArgs.transport {
	case transportEthClient:
		return connector.DialContractCallerConnector(ctx, nodeArgs.url)
	case transportProvider:
		return connector.NewProviderConnector(nodeArgs.url, providers.Option{
			RequestTimeout: nodeArgs.requestTimeout,
		})
	}

	return nil, errors.Errorf("unknown transport %q", nodeArgs.transport)
}

type chainIDReader interface {
	ChainID(ctx context.Context) (uint64, error)
}

// multicallAddress returns --multicall if set, otherwise the known contract of
// --chain-id, or of the chain the node reports.
func multicallAddress(ctx context.Context, conn multicall.Connector) (common.Address, error) {
	if nodeArgs.multicall != "" {
		if !common.IsHexAddress(nodeArgs.multicall) {
			return common.Address{}, errors.Errorf("invalid multicall address %q", nodeArgs.multicall)
		}
		return common.HexToAddress(nodeArgs.multicall), nil
	}

	chainID := nodeArgs.chainID
	if chainID == 0 {
		reader, ok := conn.(chainIDReader)
		if !ok {
			return common.Address{}, errors.New("transport can not report chain id, set --chain-id or --multicall")
		}

		var err error
		if chainID, err = reader.ChainID(ctx); err != nil {
			return common.Address{}, errors.WithMessage(err, "Failed to get chain id")
		}
	}

	address, ok := multicall.MulticallAddress(chainID)
	if !ok {
		return common.Address{}, errors.Errorf("no known multicall contract on chain %v, supported chains %v", chainID, multicall.SupportedChainIDs())
	}

	return address, nil
}

func blockNumber() (*rpc.BlockNumber, error) {
	block, err := multicall.ParseBlockNumber(nodeArgs.block)
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// mustConnect connects to the node and logs fatal on any failure.
func mustConnect(ctx context.Context) (multicall.Connector, common.Address) {
	conn, err := newConnector(ctx)
	if err != nil {
		logrus.WithError(err).WithField("url", nodeArgs.url).Fatal("Failed to connect to execution client")
	}

	address, err := multicallAddress(ctx, conn)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to resolve multicall address")
	}

	return conn, address
}

// Execute is the command line entrypoint.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
