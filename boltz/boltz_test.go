package boltz

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestLeafScriptDecodes(t *testing.T) {
	leaf := Leaf{Output: "a914000000000000000000000000000000000000000087"}
	script, err := leaf.Script()
	require.NoError(t, err)
	require.Len(t, script, 23)

	_, err = Leaf{Output: "zz"}.Script()
	require.Error(t, err)
}

func TestParsePublicKey(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	parsed, err := ParsePublicKey(
		hex.EncodeToString(key.PubKey().SerializeCompressed()),
	)
	require.NoError(t, err)
	require.Equal(t, key.PubKey(), parsed)

	_, err = ParsePublicKey("02abcd")
	require.Error(t, err)
}

func TestParseBlindingKey(t *testing.T) {
	blinding, err := ParseBlindingKey("")
	require.NoError(t, err)
	require.Nil(t, blinding)

	raw := make([]byte, 32)
	raw[31] = 7
	blinding, err = ParseBlindingKey(hex.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, raw, blinding[:])

	_, err = ParseBlindingKey("00ff")
	require.Error(t, err)
}
