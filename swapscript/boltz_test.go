package swapscript

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/bullbitcoin/swapcore/boltz"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/stretchr/testify/require"
)

// TestSubmarineFromResponseS3 is scenario S3 end to end: the response's hex
// leaves yield the expected hashlock and locktime, and the reconstructed
// script's address matches the response's address field.
func TestSubmarineFromResponseS3(t *testing.T) {
	ourKey := randKey(t)
	serviceKey := randKey(t)

	var hashlock [20]byte
	for i := range hashlock {
		hashlock[i] = byte(0xa0 + i)
	}
	const locktime = 99999999

	claimScript, refundScript, err := LeafScripts(
		Submarine, hashlock, ourKey, serviceKey, locktime,
	)
	require.NoError(t, err)

	// Derive the address the service would advertise by building the
	// same script locally first.
	reference, err := NewUnverified(Params{
		SwapType:       Submarine,
		SenderPubkey:   ourKey,
		ReceiverPubkey: serviceKey,
		Hashlock:       hashlock,
		Locktime:       locktime,
	})
	require.NoError(t, err)
	refAddr, err := reference.ToAddress(&chaincfg.TestNet3Params)
	require.NoError(t, err)

	resp := &boltz.CreateSubmarineResponse{
		ID:             "s3swap",
		Address:        refAddr.EncodeAddress(),
		ClaimPublicKey: hex.EncodeToString(serviceKey.SerializeCompressed()),
		SwapTree: boltz.SwapTree{
			ClaimLeaf:  boltz.Leaf{Output: hex.EncodeToString(claimScript)},
			RefundLeaf: boltz.Leaf{Output: hex.EncodeToString(refundScript)},
		},
		TimeoutBlockHeight: locktime,
	}

	script, err := NewSubmarineFromResponse(
		resp, ourKey, &chaincfg.TestNet3Params,
	)
	require.NoError(t, err)

	require.Equal(t, Submarine, script.SwapType)
	require.Equal(t, hashlock, script.Hashlock)
	require.EqualValues(t, locktime, script.Locktime)

	addr, err := script.ToAddress(&chaincfg.TestNet3Params)
	require.NoError(t, err)
	require.Equal(t, resp.Address, addr.EncodeAddress())
}

func TestSubmarineFromResponseRejectsWrongAddress(t *testing.T) {
	ourKey := randKey(t)
	serviceKey := randKey(t)

	var hashlock [20]byte
	claimScript, refundScript, err := LeafScripts(
		Submarine, hashlock, ourKey, serviceKey, 100,
	)
	require.NoError(t, err)

	// An address derived from an unrelated script must not verify.
	unrelated, err := NewUnverified(Params{
		SwapType:       Submarine,
		SenderPubkey:   randKey(t),
		ReceiverPubkey: randKey(t),
		Hashlock:       hashlock,
		Locktime:       100,
	})
	require.NoError(t, err)
	wrongAddr, err := unrelated.ToAddress(&chaincfg.TestNet3Params)
	require.NoError(t, err)

	resp := &boltz.CreateSubmarineResponse{
		Address:        wrongAddr.EncodeAddress(),
		ClaimPublicKey: hex.EncodeToString(serviceKey.SerializeCompressed()),
		SwapTree: boltz.SwapTree{
			ClaimLeaf:  boltz.Leaf{Output: hex.EncodeToString(claimScript)},
			RefundLeaf: boltz.Leaf{Output: hex.EncodeToString(refundScript)},
		},
	}

	_, err = NewSubmarineFromResponse(resp, ourKey, &chaincfg.TestNet3Params)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.Protocol))
	require.Contains(t, err.Error(), "Taproot construction Failed")
}

// TestParseLocktimeLiteralPush pins the byte-literal decoding rule: the
// push following OP_CHECKSIGVERIFY is read as unsigned little-endian, so
// bytes 00 e1 f5 05 decode to 0x05f5e100.
func TestParseLocktimeLiteralPush(t *testing.T) {
	sender := randKey(t)

	builder := txscript.NewScriptBuilder()
	builder.AddData(xOnly(sender))
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddData([]byte{0x00, 0xe1, 0xf5, 0x05})
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	script, err := builder.Script()
	require.NoError(t, err)

	locktime, err := ParseLocktime(script)
	require.NoError(t, err)
	require.EqualValues(t, uint32(0x05f5e100), locktime)
}

func TestParseTreeMissingHashlock(t *testing.T) {
	resp := &boltz.CreateSubmarineResponse{
		ClaimPublicKey: hex.EncodeToString(randKey(t).SerializeCompressed()),
		SwapTree: boltz.SwapTree{
			// A claim leaf with no 20-byte push.
			ClaimLeaf:  boltz.Leaf{Output: "51"},
			RefundLeaf: boltz.Leaf{Output: "51"},
		},
	}

	_, err := NewSubmarineFromResponse(
		resp, randKey(t), &chaincfg.TestNet3Params,
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "No hashlock")
}

func TestChainFromResponseSides(t *testing.T) {
	ourKey := randKey(t)
	serverKey := randKey(t)

	var hashlock [20]byte
	claimScript, refundScript, err := LeafScripts(
		Chain, hashlock, ourKey, serverKey, 500,
	)
	require.NoError(t, err)

	details := &boltz.ChainSwapDetails{
		ServerPublicKey: hex.EncodeToString(serverKey.SerializeCompressed()),
		SwapTree: boltz.SwapTree{
			ClaimLeaf:  boltz.Leaf{Output: hex.EncodeToString(claimScript)},
			RefundLeaf: boltz.Leaf{Output: hex.EncodeToString(refundScript)},
		},
	}

	lockup, err := NewChainFromResponse(
		SideLockup, details, ourKey, &chaincfg.TestNet3Params,
	)
	require.NoError(t, err)
	require.Equal(t, ourKey, lockup.SenderPubkey)
	require.Equal(t, serverKey, lockup.ReceiverPubkey)

	claim, err := NewChainFromResponse(
		SideClaim, details, ourKey, &chaincfg.TestNet3Params,
	)
	require.NoError(t, err)
	require.Equal(t, serverKey, claim.SenderPubkey)
	require.Equal(t, ourKey, claim.ReceiverPubkey)

	_, err = NewChainFromResponse(
		SideNone, details, ourKey, &chaincfg.TestNet3Params,
	)
	require.Error(t, err)
}
