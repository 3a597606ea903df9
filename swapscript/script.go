// Package swapscript derives and verifies the Taproot HTLC output used by
// every swap shape: it reconstructs the claim and refund leaves, aggregates
// the two participant keys with MuSig2, assembles the depth-1 script tree,
// and checks the resulting output key against the service's advertised
// lockup address.
package swapscript

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/bullbitcoin/swapcore/swaperr"
)

// SwapType is the shape of the swap this script belongs to.
type SwapType int

const (
	// Submarine is a user-pays-on-chain, counterparty-pays-Lightning swap.
	Submarine SwapType = iota

	// ReverseSubmarine is a user-pays-Lightning, counterparty-pays-on-chain
	// swap.
	ReverseSubmarine

	// Chain is an on-chain-to-on-chain swap across Bitcoin and Liquid.
	Chain
)

// Side distinguishes the two legs of a Chain swap. It is meaningless for
// Submarine and ReverseSubmarine, which always carry SideNone.
type Side int

const (
	// SideNone applies to non-Chain swaps, where side carries no meaning.
	SideNone Side = iota

	// SideLockup is the leg of a Chain swap where the caller funds the
	// HTLC.
	SideLockup

	// SideClaim is the leg of a Chain swap where the caller claims the
	// HTLC.
	SideClaim
)

// SwapScript is the reconstructed Taproot HTLC descriptor for one swap.
type SwapScript struct {
	SwapType SwapType
	Side     Side

	// FundingAddress is the service-declared lockup address used for
	// local verification. It is nil in a regtest context, where
	// verification is intentionally skipped -- see NewUnverified.
	FundingAddress btcutil.Address

	Hashlock       [20]byte
	SenderPubkey   *btcec.PublicKey
	ReceiverPubkey *btcec.PublicKey
	Locktime       uint32

	// BlindingKey is set only for the Liquid variant of a swap script.
	BlindingKey *[32]byte

	claimLeaf  txscript.TapLeaf
	refundLeaf txscript.TapLeaf
	tree       *txscript.IndexedTapScriptTree

	internalKey *btcec.PublicKey
	outputKey   *btcec.PublicKey
}

// Params bundles the inputs needed to reconstruct a SwapScript. It mirrors
// the load-bearing fields of the service's create-swap response.
type Params struct {
	SwapType       SwapType
	Side           Side
	Hashlock       [20]byte
	SenderPubkey   *btcec.PublicKey
	ReceiverPubkey *btcec.PublicKey
	Locktime       uint32
	BlindingKey    *[32]byte
}

// NewVerified builds a SwapScript and checks its computed Taproot output key
// against fundingAddress, the service's advertised lockup address. A
// mismatch is the core's primary authentication of the service-provided
// swap -- every downstream signature is gated on this equality -- and fails
// with Protocol("Taproot construction Failed").
func NewVerified(p Params, fundingAddress btcutil.Address) (*SwapScript, error) {
	s, err := build(p)
	if err != nil {
		return nil, err
	}
	s.FundingAddress = fundingAddress

	want, err := xOnlyFromAddress(fundingAddress)
	if err != nil {
		return nil, err
	}
	got := schnorr.SerializePubKey(s.outputKey)
	if !bytesEqual(want, got) {
		return nil, swaperr.Newf(
			swaperr.Protocol,
			"Taproot construction Failed. Lockup Pubkey: %x, Claim Pubkey %x",
			s.SenderPubkey.SerializeCompressed(), s.ReceiverPubkey.SerializeCompressed(),
		)
	}
	return s, nil
}

// NewUnverified builds a SwapScript without checking a funding address. It
// is the regtest escape hatch named explicitly in its own constructor so
// that production call-sites -- which always go through NewVerified --
// cannot accidentally skip the authentication check.
func NewUnverified(p Params) (*SwapScript, error) {
	return build(p)
}

func build(p Params) (*SwapScript, error) {
	if p.SenderPubkey == nil || p.ReceiverPubkey == nil {
		return nil, swaperr.New(swaperr.Protocol, "sender and receiver pubkeys are required")
	}

	claimScript, err := claimLeafScript(p.SwapType, p.Hashlock, p.ReceiverPubkey)
	if err != nil {
		return nil, err
	}
	refundScript, err := refundLeafScript(p.SenderPubkey, p.Locktime)
	if err != nil {
		return nil, err
	}

	claimLeaf := txscript.NewBaseTapLeaf(claimScript)
	refundLeaf := txscript.NewBaseTapLeaf(refundScript)

	internalKey, outputKey, tree, err := assembleTaproot(
		musigKeyOrder(p.SwapType, p.Side, p.SenderPubkey, p.ReceiverPubkey),
		claimLeaf, refundLeaf,
	)
	if err != nil {
		return nil, err
	}

	return &SwapScript{
		SwapType:       p.SwapType,
		Side:           p.Side,
		Hashlock:       p.Hashlock,
		SenderPubkey:   p.SenderPubkey,
		ReceiverPubkey: p.ReceiverPubkey,
		Locktime:       p.Locktime,
		BlindingKey:    p.BlindingKey,
		claimLeaf:      claimLeaf,
		refundLeaf:     refundLeaf,
		tree:           tree,
		internalKey:    internalKey,
		outputKey:      outputKey,
	}, nil
}

// ToAddress returns the P2TR address this swap script pays to, on the given
// network. When FundingAddress was supplied at construction, this always
// equals it bit-for-bit -- that equality is precisely what NewVerified
// checked.
func (s *SwapScript) ToAddress(net *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(s.outputKey), net)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Address, "failed to derive taproot address", err)
	}
	return addr, nil
}

// OutputKey returns the tap-tweaked Taproot output key.
func (s *SwapScript) OutputKey() *btcec.PublicKey {
	return s.outputKey
}

// InternalKey returns the untweaked, key-aggregated internal key.
func (s *SwapScript) InternalKey() *btcec.PublicKey {
	return s.internalKey
}

// ClaimLeaf returns the reconstructed claim leaf.
func (s *SwapScript) ClaimLeaf() txscript.TapLeaf {
	return s.claimLeaf
}

// RefundLeaf returns the reconstructed refund leaf.
func (s *SwapScript) RefundLeaf() txscript.TapLeaf {
	return s.refundLeaf
}

// ControlBlockFor returns the serialized control block spending leaf from
// this script's tree, as obtained from the Taproot spend info.
func (s *SwapScript) ControlBlockFor(leaf txscript.TapLeaf) ([]byte, error) {
	return controlBlockBytes(s.internalKey, s.tree, leaf)
}

// RootHash returns the script tree's Taproot merkle root, needed to
// reconstruct the same key-path tap tweak a cooperative MuSig2 signing
// session must apply.
func (s *SwapScript) RootHash() [32]byte {
	return s.tree.RootNode.TapHash()
}

// MusigSigners returns the two participant keys in the key-aggregation
// order the service expects for this script's swap type and side. A
// cooperative signing session must aggregate keys in exactly this order, or
// its output key will not match OutputKey.
func (s *SwapScript) MusigSigners() []*btcec.PublicKey {
	return musigKeyOrder(s.SwapType, s.Side, s.SenderPubkey, s.ReceiverPubkey)
}

func xOnlyFromAddress(addr btcutil.Address) ([]byte, error) {
	taprootAddr, ok := addr.(*btcutil.AddressTaproot)
	if !ok {
		return nil, swaperr.New(swaperr.Address, "funding address is not a taproot address")
	}
	return taprootAddr.WitnessProgram(), nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
