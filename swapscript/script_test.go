package swapscript

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func randKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestMusigKeyOrder(t *testing.T) {
	sender := randKey(t)
	receiver := randKey(t)

	cases := []struct {
		name     string
		swapType SwapType
		side     Side
		want     []*btcec.PublicKey
	}{
		{"reverse", ReverseSubmarine, SideNone, []*btcec.PublicKey{sender, receiver}},
		{"chain-claim", Chain, SideClaim, []*btcec.PublicKey{sender, receiver}},
		{"submarine", Submarine, SideNone, []*btcec.PublicKey{receiver, sender}},
		{"chain-lockup", Chain, SideLockup, []*btcec.PublicKey{receiver, sender}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := musigKeyOrder(c.swapType, c.side, sender, receiver)
			require.Equal(t, c.want, got)
		})
	}
}

// TestSubmarineScriptS3 is scenario S3: a submarine claim leaf pushing a
// 20-byte hash h and a refund leaf built with locktime 99999999 parse back to
// hashlock = h, locktime = 99999999.
func TestSubmarineScriptS3(t *testing.T) {
	sender := randKey(t)
	receiver := randKey(t)

	var hashlock [20]byte
	for i := range hashlock {
		hashlock[i] = byte(i + 1)
	}
	const locktime = 99999999

	claimScript, err := claimLeafScript(Submarine, hashlock, receiver)
	require.NoError(t, err)
	refundScript, err := refundLeafScript(sender, locktime)
	require.NoError(t, err)

	parsedHashlock, err := ParseHashlock(claimScript)
	require.NoError(t, err)
	require.Equal(t, hashlock, parsedHashlock)

	parsedLocktime, err := ParseLocktime(refundScript)
	require.NoError(t, err)
	require.EqualValues(t, locktime, parsedLocktime)

	s, err := NewUnverified(Params{
		SwapType:       Submarine,
		SenderPubkey:   sender,
		ReceiverPubkey: receiver,
		Hashlock:       hashlock,
		Locktime:       locktime,
	})
	require.NoError(t, err)
	require.Equal(t, Submarine, s.SwapType)
	require.Equal(t, hashlock, s.Hashlock)

	addr, err := s.ToAddress(&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.NotNil(t, addr)
}

func TestVerifiedMismatchFails(t *testing.T) {
	sender := randKey(t)
	receiver := randKey(t)

	var hashlock [20]byte
	params := Params{
		SwapType:       Submarine,
		SenderPubkey:   sender,
		ReceiverPubkey: receiver,
		Hashlock:       hashlock,
		Locktime:       100,
	}

	unrelated, err := NewUnverified(Params{
		SwapType:       Submarine,
		SenderPubkey:   randKey(t),
		ReceiverPubkey: randKey(t),
		Hashlock:       hashlock,
		Locktime:       100,
	})
	require.NoError(t, err)

	badAddr, err := unrelated.ToAddress(&chaincfg.RegressionNetParams)
	require.NoError(t, err)

	_, err = NewVerified(params, badAddr)
	require.Error(t, err)
}
