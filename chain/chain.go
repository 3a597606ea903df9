// Package chain identifies which of the six networks a swap operates on and
// maps that tag to the consensus parameters and default service endpoints
// each downstream component needs.
package chain

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/bullbitcoin/swapcore/swaperr"
)

// Chain is the network a swap script or swap transaction is built for.
type Chain int

const (
	// Bitcoin is Bitcoin mainnet.
	Bitcoin Chain = iota

	// BitcoinTestnet is Bitcoin testnet3.
	BitcoinTestnet

	// BitcoinRegtest is a Bitcoin regtest instance; callers must supply a
	// custom endpoint URL for any chain-client built against it.
	BitcoinRegtest

	// Liquid is the Liquid sidechain mainnet.
	Liquid

	// LiquidTestnet is Liquid testnet.
	LiquidTestnet

	// LiquidRegtest is a Liquid regtest/elementsregtest instance; callers
	// must supply a custom endpoint URL for any chain-client built
	// against it.
	LiquidRegtest
)

// String implements fmt.Stringer.
func (c Chain) String() string {
	switch c {
	case Bitcoin:
		return "Bitcoin"
	case BitcoinTestnet:
		return "BitcoinTestnet"
	case BitcoinRegtest:
		return "BitcoinRegtest"
	case Liquid:
		return "Liquid"
	case LiquidTestnet:
		return "LiquidTestnet"
	case LiquidRegtest:
		return "LiquidRegtest"
	default:
		return "Unknown"
	}
}

// IsLiquid reports whether c is one of the three Liquid variants.
func (c Chain) IsLiquid() bool {
	return c == Liquid || c == LiquidTestnet || c == LiquidRegtest
}

// IsRegtest reports whether c requires a caller-supplied endpoint.
func (c Chain) IsRegtest() bool {
	return c == BitcoinRegtest || c == LiquidRegtest
}

// BitcoinParams returns the *chaincfg.Params this chain maps to on the
// Bitcoin side. Liquid variants have no meaningful Bitcoin network params
// and return a dedicated Protocol error: mixing a Liquid tag into a
// Bitcoin-only operation is a caller bug, not a recoverable condition.
func (c Chain) BitcoinParams() (*chaincfg.Params, error) {
	switch c {
	case Bitcoin:
		return &chaincfg.MainNetParams, nil
	case BitcoinTestnet:
		return &chaincfg.TestNet3Params, nil
	case BitcoinRegtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, swaperr.New(
			swaperr.Protocol, "Liquid chain used for Bitcoin operations",
		)
	}
}
