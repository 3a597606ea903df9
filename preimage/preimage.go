// Package preimage implements the 32-byte HTLC preimage and its digests.
package preimage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/lightningnetwork/lnd/zpay32"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // RIPEMD160 is consensus-mandated by HASH160.
)

// Preimage is the triple {bytes?, sha256, hash160}. bytes is nil when the
// value is unknown but its digests are pinned -- the submarine claim side
// receives only the payment hash from the invoice it is fulfilling, never
// the preimage itself.
type Preimage struct {
	bytes   []byte
	sha256  [32]byte
	hash160 [20]byte
}

// New draws 32 cryptographically strong random bytes and returns the
// resulting Preimage.
func New() (*Preimage, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, swaperr.Wrap(swaperr.Generic, "failed to draw preimage randomness", err)
	}
	return FromBytes(b)
}

// FromBytes builds a Preimage from a known 32-byte value, computing both
// digests. It fails unless len(b) == 32.
func FromBytes(b []byte) (*Preimage, error) {
	if len(b) != 32 {
		return nil, swaperr.Newf(swaperr.Protocol, "Decoded Preimage input is not 32 bytes (got %d)", len(b))
	}

	cp := make([]byte, 32)
	copy(cp, b)

	s := sha256.Sum256(cp)
	h := ripemd160Sum(s[:])

	return &Preimage{bytes: cp, sha256: s, hash160: h}, nil
}

// FromHex decodes a hex string and defers to FromBytes.
func FromHex(s string) (*Preimage, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Hex, "invalid preimage hex", err)
	}
	return FromBytes(b)
}

// FromSHA256 builds a digest-only Preimage: bytes is nil, hash160 is
// RIPEMD160(d). This is the form used on the claim side of a submarine swap,
// where only the payment hash -- never the preimage -- is known up front.
func FromSHA256(d [32]byte) *Preimage {
	return &Preimage{sha256: d, hash160: ripemd160Sum(d[:])}
}

// FromSHA256Bytes is the slice-accepting variant of FromSHA256.
func FromSHA256Bytes(d []byte) (*Preimage, error) {
	if len(d) != 32 {
		return nil, swaperr.Newf(swaperr.Protocol, "sha256 digest is not 32 bytes (got %d)", len(d))
	}
	var arr [32]byte
	copy(arr[:], d)
	return FromSHA256(arr), nil
}

// FromInvoice parses a BOLT-11 invoice, projects its 32-byte payment hash,
// and defers to FromSHA256. Invoice parsing itself is an external
// collaborator's concern; this is the one point the swap core reaches into
// it, to recover the digest the HTLC is locked to.
func FromInvoice(invoice string) (*Preimage, error) {
	// The invoice's HRP prefix (lnbc/lntb/lnbcrt) must match the network
	// params passed to Decode. The swap core does not know in advance
	// which network an arbitrary invoice string belongs to, so it tries
	// each in turn; this never weakens the result because PaymentHash is
	// independent of network.
	var (
		inv    *zpay32.Invoice
		err    error
		params = []*chaincfg.Params{
			&chaincfg.MainNetParams,
			&chaincfg.TestNet3Params,
			&chaincfg.RegressionNetParams,
		}
	)
	for _, p := range params {
		inv, err = zpay32.Decode(invoice, p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Protocol, "failed to decode invoice", err)
	}
	if inv.PaymentHash == nil {
		return nil, swaperr.New(swaperr.Protocol, "invoice has no payment hash")
	}
	return FromSHA256(*inv.PaymentHash), nil
}

// Bytes returns the raw preimage, or nil if this is a digest-only value.
func (p *Preimage) Bytes() []byte {
	if p.bytes == nil {
		return nil
	}
	cp := make([]byte, len(p.bytes))
	copy(cp, p.bytes)
	return cp
}

// Known reports whether the raw bytes of the preimage are known.
func (p *Preimage) Known() bool {
	return p.bytes != nil
}

// SHA256 returns the SHA-256 digest of the preimage.
func (p *Preimage) SHA256() [32]byte {
	return p.sha256
}

// Hash160 returns RIPEMD160(SHA256(bytes)), the hashlock value pinned into
// the HTLC scripts.
func (p *Preimage) Hash160() [20]byte {
	return p.hash160
}

// ToHex returns the hex encoding of the raw preimage bytes, or an error if
// this is a digest-only value.
func (p *Preimage) ToHex() (string, error) {
	if p.bytes == nil {
		return "", swaperr.New(swaperr.Protocol, "No preimage")
	}
	return hex.EncodeToString(p.bytes), nil
}

func ripemd160Sum(b []byte) [20]byte {
	r := ripemd160.New()
	r.Write(b)
	var out [20]byte
	copy(out[:], r.Sum(nil))
	return out
}
