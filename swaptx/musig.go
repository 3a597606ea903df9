package swaptx

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/bullbitcoin/swapcore/boltz"
	"github.com/bullbitcoin/swapcore/musig"
	"github.com/bullbitcoin/swapcore/swapscript"
)

// Cooperative carries the service handles for a MuSig2 key-path spend: the
// out-of-band channel to the peer's partial-signature endpoints plus the
// swap id they are keyed by.
//
// For Chain-swap claims the exchange is symmetric: the service only releases
// its partial signature once the caller has countersigned the service's own
// claim transaction, so PubNonce and PartialSig must carry the caller's
// contribution for that transaction (as produced by PartialSign).
type Cooperative struct {
	Server boltz.PartialSigServer
	SwapID string

	PubNonce   string
	PartialSig string
}

// musigSession pins the MuSig2 aggregation parameters of script: signer
// order, the BIP-341 tap tweak, and the output key the final signature must
// match.
func musigSession(script *swapscript.SwapScript) *musig.Session {
	return &musig.Session{
		Signers:   script.MusigSigners(),
		Tweak:     script.TapTweak(),
		OutputKey: script.OutputKey(),
	}
}

// PartialSign is the standalone MuSig2 step used during a chain swap when
// the caller acts as the peer for the service's own claim signing: it
// computes the caller's partial signature over msgHex, the 32-byte sighash
// the service computed for its claim transaction, without touching a local
// transaction. It returns the hex-encoded partial signature and public
// nonce.
func PartialSign(script *swapscript.SwapScript, keys *btcec.PrivateKey,
	peerPubNonceHex, msgHex string) (string, string, error) {

	return musigSession(script).PartialSign(keys, peerPubNonceHex, msgHex)
}
