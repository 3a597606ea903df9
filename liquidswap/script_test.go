package liquidswap

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/bullbitcoin/swapcore/chain"
	"github.com/bullbitcoin/swapcore/preimage"
	"github.com/bullbitcoin/swapcore/swapscript"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-elements/network"
)

func testParams(t *testing.T) Params {
	t.Helper()

	sender, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	receiver, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	blinding, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	pre, err := preimage.New()
	require.NoError(t, err)

	return Params{
		SwapType:       swapscript.ReverseSubmarine,
		Side:           swapscript.SideNone,
		Hashlock:       pre.Hash160(),
		SenderPubkey:   sender.PubKey(),
		ReceiverPubkey: receiver.PubKey(),
		Locktime:       1000,
		BlindingKey:    blinding,
	}
}

func TestNetworkMapping(t *testing.T) {
	net, err := Network(chain.Liquid)
	require.NoError(t, err)
	require.Equal(t, &network.Liquid, net)

	net, err = Network(chain.LiquidRegtest)
	require.NoError(t, err)
	require.Equal(t, &network.Regtest, net)

	_, err = Network(chain.Bitcoin)
	require.Error(t, err)
}

func TestBuildRequiresBlindingKey(t *testing.T) {
	p := testParams(t)
	p.BlindingKey = nil

	_, err := NewUnverified(p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "blinding key")
}

func TestOutputScriptShape(t *testing.T) {
	s, err := NewUnverified(testParams(t))
	require.NoError(t, err)

	script := s.OutputScript()
	require.Len(t, script, 34)
	require.Equal(t, byte(0x51), script[0])
	require.Equal(t, byte(0x20), script[1])
}

// TestTapTweakDomainSeparation checks that the Elements tweak differs from
// what the Bitcoin tag would produce for the same keys and leaves: signing a
// Liquid spend with the Bitcoin tweak would yield an unspendable signature.
func TestTapTweakDomainSeparation(t *testing.T) {
	p := testParams(t)

	liquid, err := NewUnverified(p)
	require.NoError(t, err)

	bitcoin, err := swapscript.NewUnverified(swapscript.Params{
		SwapType:       p.SwapType,
		Side:           p.Side,
		Hashlock:       p.Hashlock,
		SenderPubkey:   p.SenderPubkey,
		ReceiverPubkey: p.ReceiverPubkey,
		Locktime:       p.Locktime,
	})
	require.NoError(t, err)

	// Same internal key either way: aggregation is consensus-agnostic.
	require.Equal(t, bitcoin.InternalKey(), liquid.InternalKey())
	require.NotEqual(t, bitcoin.TapTweak(), liquid.TapTweak())
	require.NotEqual(t, bitcoin.OutputKey(), liquid.OutputKey())
}

func TestMusigSignerOrderMatchesBitcoin(t *testing.T) {
	p := testParams(t)

	s, err := NewUnverified(p)
	require.NoError(t, err)

	require.Equal(t, swapscript.MusigKeyOrder(
		p.SwapType, p.Side, p.SenderPubkey, p.ReceiverPubkey,
	), s.MusigSigners())
}
