package multicall

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Gas limit used when the multicall contract can not be probed for gas left
const DefaultGasLimit uint64 = 25_000_000

// Deployed multicall contracts by chain id
var multicallAddresses = map[uint64]common.Address{
	// Ethereum mainnet
	1: common.HexToAddress("0x8d035edd8e09c3283463dade67cc0d49d6868063"),
	// Ethereum Kovan testnet
	42: common.HexToAddress("0x4760676f65dd07d29889DaAD1E4D08bcE6bA9b14"),
	// BNB Smart Chain mainnet
	56: common.HexToAddress("0x804708de7af615085203fa2b18eae59c5738e2a9"),
	// Polygon mainnet
	137: common.HexToAddress("0x0196e8a9455a90d392b46df8560c867e7df40b34"),
}

// MulticallAddress returns the known multicall contract on the given chain.
func MulticallAddress(chainID uint64) (common.Address, bool) {
	address, ok := multicallAddresses[chainID]
	return address, ok
}

// SupportedChainIDs returns the chains with a known multicall contract, in ascending order.
func SupportedChainIDs() []uint64 {
	ids := make([]uint64, 0, len(multicallAddresses))
	for id := range multicallAddresses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
