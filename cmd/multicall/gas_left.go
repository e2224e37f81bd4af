package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	multicall "github.com/rocket-pool/multicall-batcher"
)

var (
	gasLeftArgs struct {
		maxGasLimit uint64
		gasBuffer   uint64
	}

	gasLeftCmd = &cobra.Command{
		Use:   "gas-left",
		Short: "Print the gas limit available to a single multicall",
		Run:   gasLeft,
	}
)

func init() {
	gasLeftCmd.Flags().Uint64Var(&gasLeftArgs.maxGasLimit, "max-gas-limit", multicall.DefaultMaxGasLimit, "Upper bound of the gas limit of a single multicall")
	gasLeftCmd.Flags().Uint64Var(&gasLeftArgs.gasBuffer, "gas-buffer", multicall.DefaultGasBuffer, "Gas the multicall contract keeps in reserve")

	rootCmd.AddCommand(gasLeftCmd)
}

func gasLeft(*cobra.Command, []string) {
	ctx, cancel := newContext()
	defer cancel()

	block, err := blockNumber()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to parse block number")
	}

	conn, address := mustConnect(ctx)
	service := multicall.NewGasLimitService(conn, address, multicall.WithLogger(logrus.StandardLogger()))

	gasLimit, err := service.CalculateGasLimit(ctx, multicall.GasLimitParams{
		MaxGasLimit: gasLeftArgs.maxGasLimit,
		GasBuffer:   gasLeftArgs.gasBuffer,
	}, *block)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to calculate gas limit")
	}

	fmt.Println(gasLimit)
}
