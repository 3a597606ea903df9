// Package liquidswap is the Liquid rendition of the swap-script engine: the
// same two-leaf HTLC as the Bitcoin variant, assembled with the Elements
// tapscript leaf version and spent with Elements taproot sighashes, plus the
// confidential-transaction layer the sidechain adds (blinding keys on the
// lockup address, unblinding of the HTLC output, an explicit fee output).
package liquidswap

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/bullbitcoin/swapcore/boltz"
	"github.com/bullbitcoin/swapcore/chain"
	"github.com/bullbitcoin/swapcore/musig"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/bullbitcoin/swapcore/swapscript"
	"github.com/vulpemventures/go-elements/address"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/taproot"
)

// Network maps a Liquid chain tag to its go-elements network parameters.
func Network(c chain.Chain) (*network.Network, error) {
	switch c {
	case chain.Liquid:
		return &network.Liquid, nil
	case chain.LiquidTestnet:
		return &network.Testnet, nil
	case chain.LiquidRegtest:
		return &network.Regtest, nil
	default:
		return nil, swaperr.New(swaperr.Protocol,
			"Bitcoin chain used for Liquid operations")
	}
}

// SwapScript is the reconstructed Liquid Taproot HTLC descriptor for one
// swap. Field semantics match the Bitcoin variant; BlindingKey is the
// additional confidential-transaction secret the service shares so the
// caller can unblind the HTLC output and derive the confidential lockup
// address.
type SwapScript struct {
	SwapType swapscript.SwapType
	Side     swapscript.Side

	// FundingAddress is the service-declared lockup address, empty in a
	// regtest context where verification is skipped.
	FundingAddress string

	Hashlock       [20]byte
	SenderPubkey   *btcec.PublicKey
	ReceiverPubkey *btcec.PublicKey
	Locktime       uint32

	BlindingKey *btcec.PrivateKey

	claimLeaf  taproot.TapElementsLeaf
	refundLeaf taproot.TapElementsLeaf
	tree       *taproot.IndexedElementsTapScriptTree

	internalKey *btcec.PublicKey
	outputKey   *btcec.PublicKey
}

// Params bundles the inputs needed to reconstruct a Liquid SwapScript.
type Params struct {
	SwapType       swapscript.SwapType
	Side           swapscript.Side
	Hashlock       [20]byte
	SenderPubkey   *btcec.PublicKey
	ReceiverPubkey *btcec.PublicKey
	Locktime       uint32
	BlindingKey    *btcec.PrivateKey
}

// NewVerified builds a Liquid SwapScript and checks the computed Taproot
// output script against the script paying fundingAddress. As on Bitcoin,
// this equality is the core's authentication of the service-provided swap.
func NewVerified(p Params, fundingAddress string) (*SwapScript, error) {
	s, err := build(p)
	if err != nil {
		return nil, err
	}
	s.FundingAddress = fundingAddress

	want, err := address.ToOutputScript(fundingAddress)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Address,
			"failed to parse lockup address", err)
	}
	if !bytes.Equal(want, s.outputScript()) {
		return nil, swaperr.Newf(
			swaperr.Protocol,
			"Taproot construction Failed. Lockup Pubkey: %x, Claim Pubkey %x",
			s.SenderPubkey.SerializeCompressed(),
			s.ReceiverPubkey.SerializeCompressed(),
		)
	}
	return s, nil
}

// NewUnverified builds a Liquid SwapScript without checking a funding
// address; the regtest escape hatch.
func NewUnverified(p Params) (*SwapScript, error) {
	return build(p)
}

func build(p Params) (*SwapScript, error) {
	if p.SenderPubkey == nil || p.ReceiverPubkey == nil {
		return nil, swaperr.New(swaperr.Protocol,
			"sender and receiver pubkeys are required")
	}
	if p.BlindingKey == nil {
		return nil, swaperr.New(swaperr.Protocol,
			"Liquid swap scripts require a blinding key")
	}

	claimScript, refundScript, err := swapscript.LeafScripts(
		p.SwapType, p.Hashlock, p.SenderPubkey, p.ReceiverPubkey,
		p.Locktime,
	)
	if err != nil {
		return nil, err
	}

	claimLeaf := taproot.NewBaseTapElementsLeaf(claimScript)
	refundLeaf := taproot.NewBaseTapElementsLeaf(refundScript)

	keys := swapscript.MusigKeyOrder(
		p.SwapType, p.Side, p.SenderPubkey, p.ReceiverPubkey,
	)
	aggKey, _, _, err := musig2.AggregateKeys(keys, false)
	if err != nil {
		return nil, swaperr.Wrap(
			swaperr.Taproot, "Could not finalize taproot constructions", err,
		)
	}
	internalKey := aggKey.FinalKey

	tree := taproot.AssembleTaprootScriptTree(claimLeaf, refundLeaf)
	rootHash := tree.RootNode.TapHash()

	outputKey := taproot.ComputeTaprootOutputKey(internalKey, rootHash[:])

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

// outputScript is the segwit v1 script paying this swap's output key.
func (s *SwapScript) outputScript() []byte {
	xonly := schnorr.SerializePubKey(s.outputKey)
	script := make([]byte, 0, 34)
	script = append(script, 0x51, 0x20) // OP_1 PUSH32
	return append(script, xonly...)
}

// OutputScript returns the script_pubkey of the swap's Taproot output.
func (s *SwapScript) OutputScript() []byte {
	return s.outputScript()
}

// ToAddress returns the confidential (blech32m) P2TR address this swap
// script pays to on the given network, blinded to the swap's blinding key.
func (s *SwapScript) ToAddress(net *network.Network) (string, error) {
	blindingPub := s.BlindingKey.PubKey()

	addr, err := address.ToBlech32(&address.Blech32{
		Prefix:    net.Blech32,
		Version:   1,
		PublicKey: blindingPub.SerializeCompressed(),
		Program:   schnorr.SerializePubKey(s.outputKey),
	})
	if err != nil {
		return "", swaperr.Wrap(swaperr.Address,
			"failed to derive confidential taproot address", err)
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
func (s *SwapScript) ClaimLeaf() taproot.TapElementsLeaf {
	return s.claimLeaf
}

// RefundLeaf returns the reconstructed refund leaf.
func (s *SwapScript) RefundLeaf() taproot.TapElementsLeaf {
	return s.refundLeaf
}

// ControlBlockFor returns the serialized control block spending leaf from
// this script's tree.
func (s *SwapScript) ControlBlockFor(leaf taproot.TapElementsLeaf) ([]byte, error) {
	leafHash := leaf.TapHash()
	proofIdx, ok := s.tree.LeafProofIndex[leafHash]
	if !ok {
		return nil, swaperr.New(swaperr.Taproot,
			"Control block calculation failed")
	}
	proof := s.tree.LeafMerkleProofs[proofIdx]

	controlBlock := proof.ToControlBlock(s.internalKey)
	cbBytes, err := controlBlock.ToBytes()
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Taproot,
			"Control block calculation failed", err)
	}
	return cbBytes, nil
}

// RootHash returns the script tree's merkle root.
func (s *SwapScript) RootHash() [32]byte {
	return s.tree.RootNode.TapHash()
}

// MusigSigners returns the participant keys in service aggregation order.
func (s *SwapScript) MusigSigners() []*btcec.PublicKey {
	return swapscript.MusigKeyOrder(
		s.SwapType, s.Side, s.SenderPubkey, s.ReceiverPubkey,
	)
}

// TapTweak returns the Elements-tagged taproot tweak this script's key-path
// spend applies to the aggregated internal key. Elements domain-separates
// its tagged hashes from Bitcoin's, so the Bitcoin tag cannot be reused.
func (s *SwapScript) TapTweak() [32]byte {
	root := s.RootHash()
	return musig.TaggedHash(
		"TapTweak/elements",
		schnorr.SerializePubKey(s.internalKey), root[:],
	)
}

// NewSubmarineFromResponse reconstructs a Liquid submarine HTLC from the
// service's create-swap response, mirroring the Bitcoin constructor plus the
// blinding key carried in the response.
func NewSubmarineFromResponse(resp *boltz.CreateSubmarineResponse,
	ourPubkey *btcec.PublicKey) (*SwapScript, error) {

	hashlock, locktime, err := parseTree(resp.SwapTree)
	if err != nil {
		return nil, err
	}
	claimPubkey, err := boltz.ParsePublicKey(resp.ClaimPublicKey)
	if err != nil {
		return nil, err
	}
	blindingKey, err := parseBlindingKey(resp.BlindingKey)
	if err != nil {
		return nil, err
	}

	params := Params{
		SwapType:       swapscript.Submarine,
		Side:           swapscript.SideNone,
		Hashlock:       hashlock,
		SenderPubkey:   ourPubkey,
		ReceiverPubkey: claimPubkey,
		Locktime:       locktime,
		BlindingKey:    blindingKey,
	}
	if resp.Address == "" {
		return NewUnverified(params)
	}
	return NewVerified(params, resp.Address)
}

// NewReverseFromResponse reconstructs a Liquid reverse-submarine HTLC from
// the service's create-swap response.
func NewReverseFromResponse(resp *boltz.CreateReverseResponse,
	ourPubkey *btcec.PublicKey) (*SwapScript, error) {

	hashlock, locktime, err := parseTree(resp.SwapTree)
	if err != nil {
		return nil, err
	}
	refundPubkey, err := boltz.ParsePublicKey(resp.RefundPublicKey)
	if err != nil {
		return nil, err
	}
	blindingKey, err := parseBlindingKey(resp.BlindingKey)
	if err != nil {
		return nil, err
	}

	params := Params{
		SwapType:       swapscript.ReverseSubmarine,
		Side:           swapscript.SideNone,
		Hashlock:       hashlock,
		SenderPubkey:   refundPubkey,
		ReceiverPubkey: ourPubkey,
		Locktime:       locktime,
		BlindingKey:    blindingKey,
	}
	if resp.LockupAddress == "" {
		return NewUnverified(params)
	}
	return NewVerified(params, resp.LockupAddress)
}

// NewChainFromResponse reconstructs one Liquid leg of a chain-swap HTLC.
func NewChainFromResponse(side swapscript.Side,
	details *boltz.ChainSwapDetails,
	ourPubkey *btcec.PublicKey) (*SwapScript, error) {

	if side == swapscript.SideNone {
		return nil, swaperr.New(swaperr.Protocol,
			"chain swap scripts require a Lockup or Claim side")
	}

	hashlock, locktime, err := parseTree(details.SwapTree)
	if err != nil {
		return nil, err
	}
	serverPubkey, err := boltz.ParsePublicKey(details.ServerPublicKey)
	if err != nil {
		return nil, err
	}
	blindingKey, err := parseBlindingKey(details.BlindingKey)
	if err != nil {
		return nil, err
	}

	sender, receiver := ourPubkey, serverPubkey
	if side == swapscript.SideClaim {
		sender, receiver = serverPubkey, ourPubkey
	}

	params := Params{
		SwapType:       swapscript.Chain,
		Side:           side,
		Hashlock:       hashlock,
		SenderPubkey:   sender,
		ReceiverPubkey: receiver,
		Locktime:       locktime,
		BlindingKey:    blindingKey,
	}
	if details.LockupAddress == "" {
		return NewUnverified(params)
	}
	return NewVerified(params, details.LockupAddress)
}

func parseTree(tree boltz.SwapTree) ([20]byte, uint32, error) {
	var hashlock [20]byte

	claimScript, err := tree.ClaimLeaf.Script()
	if err != nil {
		return hashlock, 0, err
	}
	refundScript, err := tree.RefundLeaf.Script()
	if err != nil {
		return hashlock, 0, err
	}

	hashlock, err = swapscript.ParseHashlock(claimScript)
	if err != nil {
		return hashlock, 0, err
	}
	locktime, err := swapscript.ParseLocktime(refundScript)
	if err != nil {
		return hashlock, 0, err
	}
	return hashlock, locktime, nil
}

func parseBlindingKey(s string) (*btcec.PrivateKey, error) {
	raw, err := boltz.ParseBlindingKey(s)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, swaperr.New(swaperr.Protocol,
			"Liquid swap response is missing the blinding key")
	}
	priv, _ := btcec.PrivKeyFromBytes(raw[:])
	return priv, nil
}
