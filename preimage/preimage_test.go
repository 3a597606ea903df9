package preimage

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err31 := FromBytes(make([]byte, 31))
	require.Error(t, err31)

	_, err33 := FromBytes(make([]byte, 33))
	require.Error(t, err33)
}

func TestFromBytesDigestsMatch(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	p, err := FromBytes(raw)
	require.NoError(t, err)

	wantSHA := sha256.Sum256(raw)
	require.Equal(t, wantSHA, p.SHA256())
	require.Equal(t, ripemd160Sum(wantSHA[:]), p.Hash160())
}

// TestFromSHA256DigestOnly is scenario S2 from the swap-script contract: a
// digest-only preimage constructed from SHA256(32 zero bytes) must have no
// known bytes and a HASH-160 of the digest.
func TestFromSHA256DigestOnly(t *testing.T) {
	var zero [32]byte
	h := sha256.Sum256(zero[:])

	p := FromSHA256(h)
	require.False(t, p.Known())
	require.Nil(t, p.Bytes())
	require.Equal(t, ripemd160Sum(h[:]), p.Hash160())
	require.Equal(t, h, p.SHA256())
}

func TestHexRoundTrip(t *testing.T) {
	p1, err := New()
	require.NoError(t, err)

	hexStr, err := p1.ToHex()
	require.NoError(t, err)

	p2, err := FromHex(hexStr)
	require.NoError(t, err)

	require.Equal(t, p1.Bytes(), p2.Bytes())
	require.Equal(t, p1.SHA256(), p2.SHA256())
	require.Equal(t, p1.Hash160(), p2.Hash160())
}

func TestToHexFailsWithoutBytes(t *testing.T) {
	var zero [32]byte
	p := FromSHA256(sha256.Sum256(zero[:]))

	_, err := p.ToHex()
	require.Error(t, err)
}
