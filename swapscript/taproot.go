package swapscript

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/bullbitcoin/swapcore/musig"
	"github.com/bullbitcoin/swapcore/swaperr"
)

// musigKeyOrder returns the key-aggregation order the service expects for a
// given swap type and side. This asymmetry must match the service exactly
// or partial signatures will not aggregate into a valid output-key
// signature; it is deliberately codified in this single helper rather than
// re-derived at each call site.
//
//	Reverse, any                 -> [sender, receiver]
//	Chain + Claim                -> [sender, receiver]
//	Submarine, any                -> [receiver, sender]
//	Chain + Lockup (non-claim)    -> [receiver, sender]
func musigKeyOrder(swapType SwapType, side Side, sender, receiver *btcec.PublicKey) []*btcec.PublicKey {
	senderReceiverOrder := swapType == ReverseSubmarine ||
		(swapType == Chain && side == SideClaim)

	if senderReceiverOrder {
		return []*btcec.PublicKey{sender, receiver}
	}
	return []*btcec.PublicKey{receiver, sender}
}

// MusigKeyOrder is the exported form of musigKeyOrder for sibling packages
// that assemble the same two-party tree over a different consensus encoding.
func MusigKeyOrder(swapType SwapType, side Side, sender,
	receiver *btcec.PublicKey) []*btcec.PublicKey {

	return musigKeyOrder(swapType, side, sender, receiver)
}

// assembleTaproot builds the MuSig2 key-aggregation cache over keys (already
// in the order musigKeyOrder produced), assembles the depth-1 two-leaf
// script tree, and computes the Taproot output key.
func assembleTaproot(keys []*btcec.PublicKey, claimLeaf,
	refundLeaf txscript.TapLeaf) (*btcec.PublicKey, *btcec.PublicKey,
	*txscript.IndexedTapScriptTree, error) {

	aggKey, _, _, err := musig2.AggregateKeys(keys, false)
	if err != nil {
		return nil, nil, nil, swaperr.Wrap(
			swaperr.Taproot, "Could not finalize taproot constructions", err,
		)
	}
	internalKey := aggKey.FinalKey

	tree := txscript.AssembleTaprootScriptTree(claimLeaf, refundLeaf)
	rootHash := tree.RootNode.TapHash()

	outputKey := txscript.ComputeTaprootOutputKey(internalKey, rootHash[:])

	return internalKey, outputKey, tree, nil
}

// controlBlockBytes returns the serialized control block for leaf, derived
// from tree's merkle proof and internalKey.
func controlBlockBytes(internalKey *btcec.PublicKey,
	tree *txscript.IndexedTapScriptTree, leaf txscript.TapLeaf) ([]byte, error) {

	leafHash := leaf.TapHash()
	proofIdx, ok := tree.LeafProofIndex[leafHash]
	if !ok {
		return nil, swaperr.New(swaperr.Taproot, "Control block calculation failed")
	}
	proof := tree.LeafMerkleProofs[proofIdx]

	controlBlock := proof.ToControlBlock(internalKey)

	cbBytes, err := controlBlock.ToBytes()
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Taproot, "Control block calculation failed", err)
	}
	return cbBytes, nil
}

// TapTweak returns the BIP-341 taproot tweak this script's key-path spend
// applies to the aggregated internal key: the TapTweak-tagged hash of the
// x-only internal key and the script tree's merkle root.
func (s *SwapScript) TapTweak() [32]byte {
	root := s.RootHash()
	return musig.TaggedHash(
		"TapTweak", schnorr.SerializePubKey(s.internalKey), root[:],
	)
}

// schnorrSerialize is the x-only projection of a compressed secp256k1 point.
func schnorrSerialize(pub *btcec.PublicKey) []byte {
	return schnorr.SerializePubKey(pub)
}
