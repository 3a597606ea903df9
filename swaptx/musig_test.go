package swaptx

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/bullbitcoin/swapcore/boltz"
	"github.com/bullbitcoin/swapcore/musig"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/bullbitcoin/swapcore/swapscript"
	"github.com/bullbitcoin/swapcore/utxo"
	"github.com/stretchr/testify/require"
)

// mockPeer implements the service's side of the MuSig2 exchange with real
// cryptography: it recomputes the sighash of the transaction it is handed
// and produces a genuine partial signature with the harness's remote key.
// With tamper set it flips a byte of the partial signature instead.
type mockPeer struct {
	t *testing.T

	script    *swapscript.SwapScript
	remoteKey *btcec.PrivateKey
	htlcOut   wire.TxOut

	tamper bool
	calls  int
}

func (m *mockPeer) sign(pubNonceHex, txHexStr string) (*boltz.PartialSigResponse, error) {
	m.calls++

	raw, err := hex.DecodeString(txHexStr)
	require.NoError(m.t, err)
	tx := wire.NewMsgTx(wire.TxVersion)
	require.NoError(m.t, tx.Deserialize(bytes.NewReader(raw)))

	prevOuts := txscript.NewCannedPrevOutputFetcher(
		m.htlcOut.PkScript, m.htlcOut.Value,
	)
	sigHashes := txscript.NewTxSigHashes(tx, prevOuts)
	sigHash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, txscript.SigHashDefault, tx, 0, prevOuts,
	)
	require.NoError(m.t, err)

	var msg [32]byte
	copy(msg[:], sigHash)

	callerNonce, err := musig.ParsePubNonce(pubNonceHex)
	require.NoError(m.t, err)

	nonces, err := musig2.GenNonces(
		musig2.WithPublicKey(m.remoteKey.PubKey()),
	)
	require.NoError(m.t, err)

	aggNonce, err := musig2.AggregateNonces([][musig2.PubNonceSize]byte{
		callerNonce, nonces.PubNonce,
	})
	require.NoError(m.t, err)

	partialSig, err := musig2.Sign(
		nonces.SecNonce, m.remoteKey, aggNonce,
		m.script.MusigSigners(), msg,
		musig2.WithTweaks(musig2.KeyTweakDesc{
			Tweak:   m.script.TapTweak(),
			IsXOnly: true,
		}),
	)
	require.NoError(m.t, err)

	sigHex, err := musig.EncodePartialSig(partialSig)
	require.NoError(m.t, err)

	if m.tamper {
		sigBytes, _ := hex.DecodeString(sigHex)
		sigBytes[10] ^= 0x01
		sigHex = hex.EncodeToString(sigBytes)
	}

	return &boltz.PartialSigResponse{
		PubNonce:         hex.EncodeToString(nonces.PubNonce[:]),
		PartialSignature: sigHex,
	}, nil
}

func (m *mockPeer) GetReversePartialSig(_ context.Context, _, _, pubNonceHex,
	txHexStr string) (*boltz.PartialSigResponse, error) {

	return m.sign(pubNonceHex, txHexStr)
}

func (m *mockPeer) GetSubmarinePartialSig(_ context.Context, _ string, _ int,
	pubNonceHex, txHexStr string) (*boltz.PartialSigResponse, error) {

	return m.sign(pubNonceHex, txHexStr)
}

func (m *mockPeer) GetChainPartialSig(_ context.Context, _ string, _ int,
	pubNonceHex, txHexStr string) (*boltz.PartialSigResponse, error) {

	return m.sign(pubNonceHex, txHexStr)
}

func (m *mockPeer) PostChainClaimTxDetails(_ context.Context, _, _, _,
	_ string, toSign boltz.ToSign) (*boltz.PartialSigResponse, error) {

	return m.sign(toSign.PubNonce, toSign.Transaction)
}

// TestCooperativeClaimS5 is scenario S5: the mocked peer co-signs honestly
// and the resulting one-input, one-output transaction carries a single
// 64-byte witness signature that verifies against the Taproot output key.
func TestCooperativeClaimS5(t *testing.T) {
	h := newHarness(t, swapscript.ReverseSubmarine)
	entry := h.fund(t, 100_000, 0)

	tx, err := NewClaim(
		h.script, destAddr(t), []utxo.Entry{entry},
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	peer := &mockPeer{
		t:         t,
		script:    h.script,
		remoteKey: h.remoteKey,
		htlcOut:   entry.Output,
	}

	signed, err := SignClaim(
		testCtx(), tx, h.localKey, h.pre, AbsoluteFee(1_000),
		&Cooperative{Server: peer, SwapID: "s5"},
	)
	require.NoError(t, err)
	require.Equal(t, 1, peer.calls)

	require.Len(t, signed.TxIn, 1)
	require.Len(t, signed.TxOut, 1)
	require.Len(t, signed.TxIn[0].Witness, 1)
	require.Len(t, signed.TxIn[0].Witness[0], 64)
	require.EqualValues(t, coopSequence, signed.TxIn[0].Sequence)
	require.Zero(t, signed.LockTime)

	// Independently verify the witness signature against the key-spend
	// sighash and the tap-tweaked output key.
	prevOuts := txscript.NewCannedPrevOutputFetcher(
		entry.Output.PkScript, entry.Output.Value,
	)
	sigHashes := txscript.NewTxSigHashes(signed, prevOuts)
	sigHash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, txscript.SigHashDefault, signed, 0, prevOuts,
	)
	require.NoError(t, err)

	sig, err := schnorr.ParseSignature(signed.TxIn[0].Witness[0])
	require.NoError(t, err)
	require.True(t, sig.Verify(sigHash, h.script.OutputKey()))
}

// TestCooperativeClaimPeerAttackS6 is scenario S6: a syntactically valid but
// incorrect partial signature from the peer must be rejected before any
// transaction is produced.
func TestCooperativeClaimPeerAttackS6(t *testing.T) {
	h := newHarness(t, swapscript.ReverseSubmarine)
	entry := h.fund(t, 100_000, 0)

	tx, err := NewClaim(
		h.script, destAddr(t), []utxo.Entry{entry},
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	peer := &mockPeer{
		t:         t,
		script:    h.script,
		remoteKey: h.remoteKey,
		htlcOut:   entry.Output,
		tamper:    true,
	}

	_, err = SignClaim(
		testCtx(), tx, h.localKey, h.pre, AbsoluteFee(1_000),
		&Cooperative{Server: peer, SwapID: "s6"},
	)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.Protocol))
	require.Contains(t, err.Error(),
		"Invalid partial-sig received from Boltz")
}

// TestCooperativeRefund exercises the per-input key-path refund against the
// submarine endpoint.
func TestCooperativeRefund(t *testing.T) {
	h := newHarness(t, swapscript.Submarine)
	entry := h.fund(t, 100_000, 0)

	tx, err := NewRefund(
		h.script, destAddr(t), []utxo.Entry{entry},
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	peer := &mockPeer{
		t:         t,
		script:    h.script,
		remoteKey: h.remoteKey,
		htlcOut:   entry.Output,
	}

	signed, err := SignRefund(
		testCtx(), tx, h.localKey, AbsoluteFee(1_000),
		&Cooperative{Server: peer, SwapID: "coop-refund"},
	)
	require.NoError(t, err)
	require.Zero(t, signed.LockTime)
	require.Len(t, signed.TxIn[0].Witness, 1)
	require.Len(t, signed.TxIn[0].Witness[0], 64)
}

// TestPartialSignRoundTrip drives the standalone helper from the service's
// perspective: the service aggregates the caller's partial signature with
// its own and the result must verify against the output key.
func TestPartialSignRoundTrip(t *testing.T) {
	h := newHarness(t, swapscript.Submarine)

	var msg [32]byte
	for i := range msg {
		msg[i] = byte(i)
	}

	// Service side: nonce first.
	serviceNonces, err := musig2.GenNonces(
		musig2.WithPublicKey(h.remoteKey.PubKey()),
	)
	require.NoError(t, err)

	sigHex, nonceHex, err := PartialSign(
		h.script, h.localKey,
		hex.EncodeToString(serviceNonces.PubNonce[:]),
		hex.EncodeToString(msg[:]),
	)
	require.NoError(t, err)

	callerNonce, err := musig.ParsePubNonce(nonceHex)
	require.NoError(t, err)
	callerSig, err := musig.ParsePartialSig(sigHex)
	require.NoError(t, err)

	aggNonce, err := musig2.AggregateNonces([][musig2.PubNonceSize]byte{
		callerNonce, serviceNonces.PubNonce,
	})
	require.NoError(t, err)

	tweak := musig2.KeyTweakDesc{Tweak: h.script.TapTweak(), IsXOnly: true}

	// The caller's partial signature must verify in isolation.
	require.True(t, callerSig.Verify(
		callerNonce, aggNonce, h.script.MusigSigners(),
		h.localKey.PubKey(), msg, musig2.WithTweaks(tweak),
	))

	serviceSig, err := musig2.Sign(
		serviceNonces.SecNonce, h.remoteKey, aggNonce,
		h.script.MusigSigners(), msg, musig2.WithTweaks(tweak),
	)
	require.NoError(t, err)

	finalSig := musig2.CombineSigs(
		serviceSig.R,
		[]*musig2.PartialSignature{callerSig, serviceSig},
		musig2.WithTweakedCombine(
			msg, h.script.MusigSigners(),
			[]musig2.KeyTweakDesc{tweak}, false,
		),
	)
	require.True(t, finalSig.Verify(msg[:], h.script.OutputKey()))
}
