package main

import (
	"encoding/json"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	multicall "github.com/rocket-pool/multicall-batcher"
)

var (
	callArgs struct {
		input  string
		output string

		gasLimit    uint64
		maxGasLimit uint64
		gasBuffer   uint64
		noGasBuffer bool

		maxChunkSize int
		chunkSize    int
		retries      int
		parallelism  int
		chunked      bool
		withGasUsed  bool
	}

	callCmd = &cobra.Command{
		Use:   "call",
		Short: "Execute a JSON list of contract calls in gas limited multicall chunks",
		Run:   call,
	}
)

func init() {
	callCmd.Flags().StringVar(&callArgs.input, "input", "", `JSON file of calls, e.g. [{"to":"0x..","data":"0x..","gas":30000}]`)
	callCmd.MarkFlagRequired("input")
	callCmd.Flags().StringVar(&callArgs.output, "output", "", "File to write the JSON results to, stdout if empty")

	callCmd.Flags().Uint64Var(&callArgs.gasLimit, "gas-limit", 0, "Gas limit of a single multicall, 0 to probe the multicall contract")
	callCmd.Flags().Uint64Var(&callArgs.maxGasLimit, "max-gas-limit", multicall.DefaultMaxGasLimit, "Upper bound of the gas limit of a single multicall")
	callCmd.Flags().Uint64Var(&callArgs.gasBuffer, "gas-buffer", multicall.DefaultGasBuffer, "Gas the multicall contract keeps in reserve")
	callCmd.Flags().BoolVar(&callArgs.noGasBuffer, "no-gas-buffer", false, "Use a gas buffer of 0, overrides --gas-buffer")

	callCmd.Flags().IntVar(&callArgs.maxChunkSize, "max-chunk-size", 500, "Max number of calls within a single gas limited multicall")
	callCmd.Flags().IntVar(&callArgs.chunkSize, "chunk-size", 0, "Number of calls within a single all or nothing multicall, 0 for the default of 100")
	callCmd.Flags().IntVar(&callArgs.retries, "retries", 3, "Number of attempts per chunk")
	callCmd.Flags().IntVar(&callArgs.parallelism, "parallelism", 0, "Max number of chunks in flight, 0 for no limit")

	callCmd.Flags().BoolVar(&callArgs.chunked, "chunked", false, "Use all or nothing chunks of --chunk-size calls and ignore gas")
	callCmd.Flags().BoolVar(&callArgs.withGasUsed, "with-gas-used", false, "Use all or nothing chunks and report the gas used by every call")
	callCmd.MarkFlagsMutuallyExclusive("chunked", "with-gas-used")

	rootCmd.AddCommand(callCmd)
}

type callInput struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
	Gas  uint64         `json:"gas"`
}

type callOutput struct {
	ReturnData hexutil.Bytes `json:"returnData"`
	GasUsed    *hexutil.Big  `json:"gasUsed,omitempty"`
}

func readCalls(file string) ([]multicall.Call, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithMessage(err, "Failed to read input file")
	}

	var inputs []callInput
	if err := json.Unmarshal(content, &inputs); err != nil {
		return nil, errors.WithMessage(err, "Failed to parse input file")
	}

	calls := make([]multicall.Call, len(inputs))
	for i, input := range inputs {
		calls[i] = multicall.Call{To: input.To, Data: input.Data, Gas: input.Gas}
	}

	return calls, nil
}

func writeOutputs(file string, outputs []callOutput) error {
	content, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		return err
	}

	if file == "" {
		_, err = os.Stdout.Write(append(content, '\n'))
		return err
	}

	return os.WriteFile(file, content, 0644)
}

func call(*cobra.Command, []string) {
	ctx, cancel := newContext()
	defer cancel()

	calls, err := readCalls(callArgs.input)
	if err != nil {
		logrus.WithError(err).WithField("input", callArgs.input).Fatal("Failed to load calls")
	}

	block, err := blockNumber()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to parse block number")
	}

	conn, address := mustConnect(ctx)
	service := multicall.NewMultiCallService(conn, address, multicall.LogOption{Logger: logrus.StandardLogger()})

	var outputs []callOutput
	switch {
	case callArgs.chunked || callArgs.withGasUsed:
		outputs, err = callByChunks(ctx, service, calls, block)
	default:
		outputs, err = callWithGasLimitation(ctx, service, calls, block)
	}
	if err != nil {
		logrus.WithError(err).Fatal("Failed to execute multicall")
	}

	logrus.WithField("calls", len(calls)).Info("Multicall completed")

	if err := writeOutputs(callArgs.output, outputs); err != nil {
		logrus.WithError(err).Fatal("Failed to write results")
	}
}
