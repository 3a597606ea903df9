package chainclient

import (
	"time"

	"github.com/bullbitcoin/swapcore/chain"
	"github.com/bullbitcoin/swapcore/swaperr"
)

// Default Electrum endpoints, all TLS with domain validation.
const (
	DefaultElectrumBitcoinNode        = "wes.bullbitcoin.com:50002"
	DefaultElectrumBitcoinTestnetNode = "electrum.blockstream.info:60002"
	DefaultElectrumLiquidNode         = "blockstream.info:995"
	DefaultElectrumLiquidTestnetNode  = "blockstream.info:465"

	// DefaultElectrumTimeout bounds each Electrum round-trip.
	DefaultElectrumTimeout = 10 * time.Second
)

// Default Esplora endpoints.
const (
	DefaultEsploraBitcoinURL        = "https://blockstream.info/api"
	DefaultEsploraBitcoinTestnetURL = "https://blockstream.info/testnet/api"
	DefaultEsploraLiquidURL         = "https://blockstream.info/liquid/api"
	DefaultEsploraLiquidTestnetURL  = "https://blockstream.info/liquidtestnet/api"

	// DefaultEsploraTimeout bounds each Esplora request.
	DefaultEsploraTimeout = 30 * time.Second
)

// ElectrumConfig describes how to reach an Electrum server.
type ElectrumConfig struct {
	// Network is the chain this endpoint serves. See DefaultElectrumConfig
	// for the regtest mapping quirk.
	Network chain.Chain

	// URL is the host:port of the server.
	URL string

	// UseTLS selects a TLS connection over plaintext TCP.
	UseTLS bool

	// ValidateDomain controls TLS certificate domain validation.
	ValidateDomain bool

	// Timeout bounds each call to the server.
	Timeout time.Duration
}

// DefaultElectrumConfig returns the stock endpoint for network. Regtest
// chains carry no default endpoint and require regtestURL.
//
// Both regtest chains are mapped to BitcoinTestnet-shaped parameters here,
// matching long-standing behavior that peers depend on; the LiquidRegtest
// fallback is logged when taken. The mapping is specific to the Electrum
// config.
func DefaultElectrumConfig(network chain.Chain,
	regtestURL string) (*ElectrumConfig, error) {

	if network.IsRegtest() && regtestURL == "" {
		return nil, swaperr.New(swaperr.Electrum,
			"Regtest requires using a custom url")
	}

	cfg := &ElectrumConfig{
		Network:        network,
		UseTLS:         true,
		ValidateDomain: true,
		Timeout:        DefaultElectrumTimeout,
	}

	switch network {
	case chain.Bitcoin:
		cfg.URL = DefaultElectrumBitcoinNode
	case chain.BitcoinTestnet:
		cfg.URL = DefaultElectrumBitcoinTestnetNode
	case chain.BitcoinRegtest:
		cfg.Network = chain.BitcoinTestnet
		cfg.URL = regtestURL
		cfg.UseTLS = false
		cfg.ValidateDomain = false
	case chain.Liquid:
		cfg.URL = DefaultElectrumLiquidNode
	case chain.LiquidTestnet:
		cfg.URL = DefaultElectrumLiquidTestnetNode
	case chain.LiquidRegtest:
		log.Warnf("Electrum config for LiquidRegtest falls back to " +
			"BitcoinTestnet-shaped parameters")
		cfg.Network = chain.BitcoinTestnet
		cfg.URL = regtestURL
		cfg.UseTLS = false
		cfg.ValidateDomain = false
	}

	return cfg, nil
}

// EsploraConfig describes how to reach an Esplora REST instance.
type EsploraConfig struct {
	// Network is the chain this endpoint serves.
	Network chain.Chain

	// URL is the API base, e.g. https://blockstream.info/api.
	URL string

	// Timeout bounds each request.
	Timeout time.Duration
}

// DefaultEsploraConfig returns the stock endpoint for network. Regtest
// chains carry no default endpoint and require regtestURL.
func DefaultEsploraConfig(network chain.Chain,
	regtestURL string) (*EsploraConfig, error) {

	if network.IsRegtest() && regtestURL == "" {
		return nil, swaperr.New(swaperr.Esplora,
			"Regtest requires using a custom url")
	}

	cfg := &EsploraConfig{
		Network: network,
		Timeout: DefaultEsploraTimeout,
	}

	switch network {
	case chain.Bitcoin:
		cfg.URL = DefaultEsploraBitcoinURL
	case chain.BitcoinTestnet:
		cfg.URL = DefaultEsploraBitcoinTestnetURL
	case chain.BitcoinRegtest:
		cfg.URL = regtestURL
	case chain.Liquid:
		cfg.URL = DefaultEsploraLiquidURL
	case chain.LiquidTestnet:
		cfg.URL = DefaultEsploraLiquidTestnetURL
	case chain.LiquidRegtest:
		cfg.URL = regtestURL
	}

	return cfg, nil
}
