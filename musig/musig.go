// Package musig implements the two-party MuSig2 round used for cooperative
// key-path spends: nonce commitment, the exchange with the remote peer,
// verification of the peer's partial signature, local co-signing, and
// aggregation into a single Schnorr signature verified against the Taproot
// output key.
//
// The package is consensus-agnostic: the caller supplies the participant
// keys in service aggregation order and the already-computed x-only taproot
// tweak, so the same round serves Bitcoin and Liquid scripts, whose tagged
// hashes differ.
package musig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/bullbitcoin/swapcore/boltz"
	"github.com/bullbitcoin/swapcore/swaperr"
)

// Exchange trades the caller's hex-encoded public nonce (and, out of band,
// the transaction it commits to) for the peer's nonce and partial signature.
type Exchange func(pubNonceHex string) (*boltz.PartialSigResponse, error)

// Session pins the aggregation parameters of one swap script: the
// participant keys in the exact order the service aggregates them, the
// x-only taproot tweak applied after aggregation, and the resulting output
// key every final signature must verify against.
type Session struct {
	Signers   []*btcec.PublicKey
	Tweak     [32]byte
	OutputKey *btcec.PublicKey
}

// secNonce holds the one-shot MuSig2 secret nonce. It is consumed by take,
// which zeroes the buffer; a second take panics, because signing twice with
// one nonce leaks the private key and must never be reachable.
type secNonce struct {
	nonce [musig2.SecNonceSize]byte
	used  bool
}

func (n *secNonce) take() [musig2.SecNonceSize]byte {
	if n.used {
		panic("musig2 secret nonce reused")
	}
	n.used = true

	out := n.nonce
	for i := range n.nonce {
		n.nonce[i] = 0
	}
	return out
}

func (s *Session) tweakDesc() musig2.KeyTweakDesc {
	return musig2.KeyTweakDesc{Tweak: s.Tweak, IsXOnly: true}
}

// genNonces draws a nonce pair bound to the signing key and the message it
// will sign.
func genNonces(keys *btcec.PrivateKey,
	msg [32]byte) (*musig2.Nonces, *secNonce, error) {

	nonces, err := musig2.GenNonces(
		musig2.WithPublicKey(keys.PubKey()),
		musig2.WithNonceSecretKeyAux(keys),
		musig2.WithNonceMessageAux(msg),
	)
	if err != nil {
		return nil, nil, swaperr.Wrap(swaperr.Generic,
			"failed to generate musig2 nonces", err)
	}
	return nonces, &secNonce{nonce: nonces.SecNonce}, nil
}

// SignInput runs one full cooperative round for msg: commit to a nonce,
// trade it with the peer via exchange, verify the peer's partial signature
// against peerKey, co-sign, aggregate, and verify the aggregate against the
// session's output key before returning the 64-byte Schnorr signature.
func (s *Session) SignInput(keys *btcec.PrivateKey, msg [32]byte,
	exchange Exchange, peerKey *btcec.PublicKey) ([]byte, error) {

	tweak := s.tweakDesc()

	// The nonce commitment happens strictly before the transaction is
	// handed to the peer inside exchange.
	nonces, sn, err := genNonces(keys, msg)
	if err != nil {
		return nil, err
	}

	resp, err := exchange(hex.EncodeToString(nonces.PubNonce[:]))
	if err != nil {
		return nil, err
	}

	peerNonce, err := ParsePubNonce(resp.PubNonce)
	if err != nil {
		return nil, err
	}
	peerSig, err := ParsePartialSig(resp.PartialSignature)
	if err != nil {
		return nil, err
	}

	aggNonce, err := musig2.AggregateNonces([][musig2.PubNonceSize]byte{
		peerNonce, nonces.PubNonce,
	})
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Generic,
			"failed to aggregate musig2 nonces", err)
	}

	if !peerSig.Verify(
		peerNonce, aggNonce, s.Signers, peerKey, msg,
		musig2.WithTweaks(tweak),
	) {
		return nil, swaperr.New(swaperr.Protocol,
			"Invalid partial-sig received from Boltz")
	}

	ourSig, err := musig2.Sign(
		sn.take(), keys, aggNonce, s.Signers, msg,
		musig2.WithTweaks(tweak),
	)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Generic,
			"musig2 partial signing failed", err)
	}

	finalSig := musig2.CombineSigs(
		ourSig.R, []*musig2.PartialSignature{peerSig, ourSig},
		musig2.WithTweakedCombine(
			msg, s.Signers, []musig2.KeyTweakDesc{tweak}, false,
		),
	)

	if !finalSig.Verify(msg[:], s.OutputKey) {
		return nil, swaperr.New(swaperr.Protocol,
			"Aggregated signature does not verify against output key")
	}
	return finalSig.Serialize(), nil
}

// PartialSign computes the caller's partial signature over a 32-byte message
// the peer supplied, without a transaction of the caller's own: the step a
// chain swap needs when the caller countersigns the service's claim
// transaction. It returns the hex-encoded partial signature and public
// nonce.
func (s *Session) PartialSign(keys *btcec.PrivateKey, peerPubNonceHex,
	msgHex string) (string, string, error) {

	msgBytes, err := hex.DecodeString(msgHex)
	if err != nil {
		return "", "", swaperr.Wrap(swaperr.Hex,
			"invalid transaction hash hex", err)
	}
	if len(msgBytes) != 32 {
		return "", "", swaperr.Newf(swaperr.Protocol,
			"transaction hash is not 32 bytes (got %d)", len(msgBytes))
	}
	var msg [32]byte
	copy(msg[:], msgBytes)

	peerNonce, err := ParsePubNonce(peerPubNonceHex)
	if err != nil {
		return "", "", err
	}

	nonces, sn, err := genNonces(keys, msg)
	if err != nil {
		return "", "", err
	}

	aggNonce, err := musig2.AggregateNonces([][musig2.PubNonceSize]byte{
		peerNonce, nonces.PubNonce,
	})
	if err != nil {
		return "", "", swaperr.Wrap(swaperr.Generic,
			"failed to aggregate musig2 nonces", err)
	}

	ourSig, err := musig2.Sign(
		sn.take(), keys, aggNonce, s.Signers, msg,
		musig2.WithTweaks(s.tweakDesc()),
	)
	if err != nil {
		return "", "", swaperr.Wrap(swaperr.Generic,
			"musig2 partial signing failed", err)
	}

	sigHex, err := EncodePartialSig(ourSig)
	if err != nil {
		return "", "", err
	}
	return sigHex, hex.EncodeToString(nonces.PubNonce[:]), nil
}

// ParsePubNonce decodes a hex-encoded 66-byte MuSig2 public nonce.
func ParsePubNonce(s string) ([musig2.PubNonceSize]byte, error) {
	var nonce [musig2.PubNonceSize]byte

	b, err := hex.DecodeString(s)
	if err != nil {
		return nonce, swaperr.Wrap(swaperr.Hex, "invalid pub nonce hex", err)
	}
	if len(b) != musig2.PubNonceSize {
		return nonce, swaperr.Newf(swaperr.Protocol,
			"pub nonce is not %d bytes (got %d)",
			musig2.PubNonceSize, len(b))
	}
	copy(nonce[:], b)
	return nonce, nil
}

// ParsePartialSig decodes a hex-encoded 32-byte MuSig2 partial signature.
func ParsePartialSig(s string) (*musig2.PartialSignature, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Hex, "invalid partial sig hex", err)
	}

	var sig musig2.PartialSignature
	if err := sig.Decode(bytes.NewReader(b)); err != nil {
		return nil, swaperr.Wrap(swaperr.Protocol,
			"invalid partial signature", err)
	}
	return &sig, nil
}

// EncodePartialSig returns the 32-byte hex wire form of sig.
func EncodePartialSig(sig *musig2.PartialSignature) (string, error) {
	var buf bytes.Buffer
	if err := sig.Encode(&buf); err != nil {
		return "", swaperr.Wrap(swaperr.Generic,
			"failed to encode partial signature", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// TaggedHash is BIP-340 tagged hashing: sha256(sha256(tag) || sha256(tag) ||
// chunks...). Bitcoin and Elements use it with different tags, which is why
// the tag is a parameter rather than baked in.
func TaggedHash(tag string, chunks ...[]byte) [32]byte {
	tagDigest := sha256.Sum256([]byte(tag))

	h := sha256.New()
	h.Write(tagDigest[:])
	h.Write(tagDigest[:])
	for _, c := range chunks {
		h.Write(c)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
