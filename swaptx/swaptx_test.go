package swaptx

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/bullbitcoin/swapcore/preimage"
	"github.com/bullbitcoin/swapcore/swapscript"
	"github.com/bullbitcoin/swapcore/utxo"
	"github.com/stretchr/testify/require"
)

// testHarness is the common fixture: an HTLC of the given swap type where
// the local key is the receiver (claim side) and the remote key is the
// sender; for Submarine the roles are swapped.
type testHarness struct {
	script    *swapscript.SwapScript
	localKey  *btcec.PrivateKey
	remoteKey *btcec.PrivateKey
	pre       *preimage.Preimage
}

func newHarness(t *testing.T, swapType swapscript.SwapType) *testHarness {
	t.Helper()

	localKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	remoteKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	pre, err := preimage.New()
	require.NoError(t, err)

	sender, receiver := remoteKey.PubKey(), localKey.PubKey()
	if swapType == swapscript.Submarine {
		sender, receiver = localKey.PubKey(), remoteKey.PubKey()
	}

	script, err := swapscript.NewUnverified(swapscript.Params{
		SwapType:       swapType,
		Side:           swapscript.SideNone,
		Hashlock:       pre.Hash160(),
		SenderPubkey:   sender,
		ReceiverPubkey: receiver,
		Locktime:       2500,
	})
	require.NoError(t, err)

	return &testHarness{
		script:    script,
		localKey:  localKey,
		remoteKey: remoteKey,
		pre:       pre,
	}
}

// fund fabricates a lockup UTXO paying the harness script.
func (h *testHarness) fund(t *testing.T, value int64, index uint32) utxo.Entry {
	t.Helper()

	addr, err := h.script.ToAddress(&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	var txid chainhash.Hash
	txid[0] = byte(index + 1)

	return utxo.Entry{
		OutPoint: wire.OutPoint{Hash: txid, Index: index},
		Output:   wire.TxOut{Value: value, PkScript: pkScript},
	}
}

func destAddr(t *testing.T) btcutil.Address {
	t.Helper()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	tweaked := txscript.ComputeTaprootKeyNoScript(key.PubKey())

	addr, err := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(tweaked), &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)
	return addr
}

func testCtx() context.Context {
	return context.Background()
}

func TestNewClaimRejectsSubmarine(t *testing.T) {
	h := newHarness(t, swapscript.Submarine)

	_, err := NewClaim(
		h.script, destAddr(t),
		[]utxo.Entry{h.fund(t, 100_000, 0)},
		&chaincfg.RegressionNetParams,
	)
	require.Error(t, err)
}

func TestNewRefundRejectsReverse(t *testing.T) {
	h := newHarness(t, swapscript.ReverseSubmarine)

	_, err := NewRefund(
		h.script, destAddr(t),
		[]utxo.Entry{h.fund(t, 100_000, 0)},
		&chaincfg.RegressionNetParams,
	)
	require.Error(t, err)
}

func TestClaimConsumesOnlyFirstUTXO(t *testing.T) {
	h := newHarness(t, swapscript.ReverseSubmarine)

	tx, err := NewClaim(
		h.script, destAddr(t),
		[]utxo.Entry{h.fund(t, 100_000, 0), h.fund(t, 50_000, 1)},
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)
	require.Len(t, tx.UTXOs, 1)
}

func TestNonCooperativeClaimWitness(t *testing.T) {
	h := newHarness(t, swapscript.ReverseSubmarine)

	tx, err := NewClaim(
		h.script, destAddr(t),
		[]utxo.Entry{h.fund(t, 100_000, 0)},
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	signed, err := SignClaim(
		testCtx(), tx, h.localKey, h.pre, AbsoluteFee(1_000), nil,
	)
	require.NoError(t, err)

	require.Len(t, signed.TxIn, 1)
	require.Len(t, signed.TxOut, 1)
	require.EqualValues(t, 99_000, signed.TxOut[0].Value)

	// witness = [sig, preimage, claim_leaf, control_block]
	witness := signed.TxIn[0].Witness
	require.Len(t, witness, 4)
	require.Len(t, witness[0], 64)
	require.Equal(t, h.pre.Bytes(), witness[1])
	require.Equal(t, h.script.ClaimLeaf().Script, witness[2])
	// Depth-1 tree: control block is 33 + 32 bytes.
	require.Len(t, witness[3], 65)
}

func TestClaimWithoutPreimageFails(t *testing.T) {
	h := newHarness(t, swapscript.ReverseSubmarine)

	tx, err := NewClaim(
		h.script, destAddr(t),
		[]utxo.Entry{h.fund(t, 100_000, 0)},
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	digestOnly := preimage.FromSHA256(h.pre.SHA256())
	_, err = SignClaim(
		testCtx(), tx, h.localKey, digestOnly, AbsoluteFee(1_000), nil,
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "No preimage")
}

func TestNonCooperativeRefundSweep(t *testing.T) {
	h := newHarness(t, swapscript.Submarine)

	tx, err := NewRefund(
		h.script, destAddr(t),
		[]utxo.Entry{h.fund(t, 60_000, 0), h.fund(t, 40_000, 1)},
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	signed, err := SignRefund(
		testCtx(), tx, h.localKey, AbsoluteFee(2_000), nil,
	)
	require.NoError(t, err)

	require.Len(t, signed.TxIn, 2)
	require.Len(t, signed.TxOut, 1)
	require.EqualValues(t, 98_000, signed.TxOut[0].Value)
	require.EqualValues(t, h.script.Locktime, signed.LockTime)
	for _, in := range signed.TxIn {
		require.EqualValues(t, scriptPathSequence, in.Sequence)
		require.Len(t, in.Witness, 3)
	}
}

// TestRateFeeNoOverpayment is testable property 4: for every rate, the fee
// implied by the final transaction is at least the requested rate and
// overshoots by less than one virtual byte's worth.
func TestRateFeeNoOverpayment(t *testing.T) {
	for _, rate := range []float64{1, 2, 5.5, 25} {
		h := newHarness(t, swapscript.ReverseSubmarine)

		tx, err := NewClaim(
			h.script, destAddr(t),
			[]utxo.Entry{h.fund(t, 1_000_000, 0)},
			&chaincfg.RegressionNetParams,
		)
		require.NoError(t, err)

		signed, err := SignClaim(
			testCtx(), tx, h.localKey, h.pre, RateFee(rate), nil,
		)
		require.NoError(t, err)

		fee := 1_000_000 - signed.TxOut[0].Value
		size := measure(signed)

		require.GreaterOrEqual(t, float64(fee), float64(size)*rate,
			"rate %v underpaid", rate)
		require.Less(t, float64(fee)-float64(size)*rate, float64(size),
			"rate %v overpaid", rate)
	}
}

// TestRefundFeeEqualsValue is the boundary case: sweeping UTXOs whose total
// value equals the absolute fee leaves nothing to pay out and must fail.
func TestRefundFeeEqualsValue(t *testing.T) {
	h := newHarness(t, swapscript.Submarine)

	tx, err := NewRefund(
		h.script, destAddr(t),
		[]utxo.Entry{h.fund(t, 10_000, 0)},
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	_, err = SignRefund(testCtx(), tx, h.localKey, AbsoluteFee(10_000), nil)
	require.Error(t, err)
}
