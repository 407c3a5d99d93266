/**
 * @description
 * Static contract deployment metadata for the two supported network
 * profiles. Each profile carries the DailyCopToken child contract and the
 * Relayer contract that performs third-party-paid token transfers. The
 * profile is selected once at process start and never mutated.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/accounts/abi: ABI parsing for the
 *   token and relayer bindings.
 * - github.com/ethereum/go-ethereum/common: Address handling.
 */

package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Supported network profiles.
const (
	NetworkTestnet = "TESTNET"
	NetworkMainnet = "MAINNET"
)

// tokenName is the EIP-712 domain name the DailyCopToken contract verifies
// permits under.
const tokenName = "DailyCopToken"

// tokenABIJSON covers the slice of the DailyCopToken ABI this service
// touches: the per-owner permit nonce counter.
const tokenABIJSON = `[
	{"inputs":[{"internalType":"address","name":"owner","type":"address"}],"name":"nonces","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// relayerABIJSON covers the relayer entry point used for gasless transfers.
const relayerABIJSON = `[
	{"inputs":[
		{"internalType":"address","name":"owner","type":"address"},
		{"internalType":"address","name":"recipient","type":"address"},
		{"internalType":"uint256","name":"amount","type":"uint256"},
		{"internalType":"uint256","name":"deadline","type":"uint256"},
		{"internalType":"uint8","name":"v","type":"uint8"},
		{"internalType":"bytes32","name":"r","type":"bytes32"},
		{"internalType":"bytes32","name":"s","type":"bytes32"}
	],"name":"transferWithPermit","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// Deployed contract addresses per network (Mumbai for TESTNET, Polygon
// mainnet for MAINNET).
var (
	tokenAddressTestnet   = common.HexToAddress("0x7c9f4C87d911613Fe9ca58b579f737911AAD2D43")
	relayerAddressTestnet = common.HexToAddress("0x39AF5dB4DDdFb18B13a5D2d6D099d70A3Bc649cf")
	tokenAddressMainnet   = common.HexToAddress("0x1659fF2e0F6E089D62E7C6db6B2e0F7c0e45a7a9")
	relayerAddressMainnet = common.HexToAddress("0xB1e90E8d5F4a32C34e0bD0b6885A167b6A9cFd27")
)

// ContractBinding pairs a deployed address with its parsed ABI descriptor.
type ContractBinding struct {
	Address common.Address
	ABI     abi.ABI
}

// Contracts bundles the token and relayer bindings for one network profile.
type Contracts struct {
	Token   ContractBinding
	Relayer ContractBinding
}

// ContractsForNetwork resolves the immutable contract bindings for the given
// network profile. An unknown profile is a startup-fatal misconfiguration
// surfaced to the caller as an error.
func ContractsForNetwork(network string) (Contracts, error) {
	tokenABI, err := abi.JSON(strings.NewReader(tokenABIJSON))
	if err != nil {
		return Contracts{}, fmt.Errorf("parse token abi: %w", err)
	}
	relayerABI, err := abi.JSON(strings.NewReader(relayerABIJSON))
	if err != nil {
		return Contracts{}, fmt.Errorf("parse relayer abi: %w", err)
	}

	switch strings.ToUpper(strings.TrimSpace(network)) {
	case NetworkTestnet:
		return Contracts{
			Token:   ContractBinding{Address: tokenAddressTestnet, ABI: tokenABI},
			Relayer: ContractBinding{Address: relayerAddressTestnet, ABI: relayerABI},
		}, nil
	case NetworkMainnet:
		return Contracts{
			Token:   ContractBinding{Address: tokenAddressMainnet, ABI: tokenABI},
			Relayer: ContractBinding{Address: relayerAddressMainnet, ABI: relayerABI},
		}, nil
	default:
		return Contracts{}, fmt.Errorf("unknown network profile %q (want TESTNET or MAINNET)", network)
	}
}
