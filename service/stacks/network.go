package stacks

import (
	"fmt"
	"strings"
)

// Network selects which Stacks chain a command talks to.
// It fixes the transaction version byte, the chain id, the address
// version and the default Hiro API base URL.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

const (
	mainnetAPIBaseURL = "https://api.hiro.so"
	testnetAPIBaseURL = "https://api.testnet.hiro.so"

	// DefaultExplorerURL is the Hiro explorer used for reporting transaction links.
	DefaultExplorerURL = "https://explorer.hiro.so"
)

// Address versions for single-sig (P2PKH) accounts.
const (
	AddressVersionMainnetSingleSig byte = 22 // SP...
	AddressVersionTestnetSingleSig byte = 26 // ST...
)

// ParseNetwork normalizes a network name. Only "mainnet" and "testnet" are accepted.
func ParseNetwork(s string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(s))) {
	case Mainnet:
		return Mainnet, nil
	case Testnet:
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown network %q (expected mainnet or testnet)", s)
	}
}

// String returns the lower-case network name.
func (n Network) String() string {
	return string(n)
}

// TransactionVersion is the leading byte of every serialized transaction.
func (n Network) TransactionVersion() byte {
	if n == Mainnet {
		return 0x00
	}
	return 0x80
}

// ChainID is the 4-byte chain identifier written after the version byte.
func (n Network) ChainID() uint32 {
	if n == Mainnet {
		return 0x00000001
	}
	return 0x80000000
}

// AddressVersion is the c32check version used for single-sig addresses.
func (n Network) AddressVersion() byte {
	if n == Mainnet {
		return AddressVersionMainnetSingleSig
	}
	return AddressVersionTestnetSingleSig
}

// APIBaseURL returns the public Hiro API for the network.
func (n Network) APIBaseURL() string {
	if n == Mainnet {
		return mainnetAPIBaseURL
	}
	return testnetAPIBaseURL
}

// ExplorerTxURL builds an explorer link for a transaction id on this network.
// An empty explorerURL falls back to DefaultExplorerURL.
func (n Network) ExplorerTxURL(explorerURL, txID string) string {
	if explorerURL == "" {
		explorerURL = DefaultExplorerURL
	}
	return fmt.Sprintf("%s/txid/%s?chain=%s", strings.TrimRight(explorerURL, "/"), txID, n)
}
