package chain

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/stretchr/testify/require"
)

func TestBitcoinParams(t *testing.T) {
	params, err := Bitcoin.BitcoinParams()
	require.NoError(t, err)
	require.Equal(t, &chaincfg.MainNetParams, params)

	params, err = BitcoinTestnet.BitcoinParams()
	require.NoError(t, err)
	require.Equal(t, &chaincfg.TestNet3Params, params)

	params, err = BitcoinRegtest.BitcoinParams()
	require.NoError(t, err)
	require.Equal(t, &chaincfg.RegressionNetParams, params)
}

// Liquid tags have no Bitcoin network parameters; feeding one into a
// Bitcoin-only operation is a protocol error, not a silent remap.
func TestBitcoinParamsRejectsLiquid(t *testing.T) {
	for _, c := range []Chain{Liquid, LiquidTestnet, LiquidRegtest} {
		_, err := c.BitcoinParams()
		require.Error(t, err, c.String())
		require.True(t, swaperr.Is(err, swaperr.Protocol))
	}
}

func TestPredicates(t *testing.T) {
	require.True(t, Liquid.IsLiquid())
	require.True(t, LiquidRegtest.IsLiquid())
	require.False(t, Bitcoin.IsLiquid())

	require.True(t, BitcoinRegtest.IsRegtest())
	require.True(t, LiquidRegtest.IsRegtest())
	require.False(t, LiquidTestnet.IsRegtest())
}
