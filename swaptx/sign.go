package swaptx

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/bullbitcoin/swapcore/boltz"
	"github.com/bullbitcoin/swapcore/preimage"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/bullbitcoin/swapcore/swapscript"
)

// scriptPathSequence is the input sequence of every script-path spend. Zero
// keeps nLockTime active, which the refund leaf's CLTV requires.
const scriptPathSequence uint32 = 0

// coopSequence opts a key-path spend into BIP-125 replacement without
// activating nLockTime; key-path spends carry no CLTV.
const coopSequence uint32 = wire.MaxTxInSequenceNum - 2

// SignClaim builds and signs the claim transaction. With coop == nil the
// spend is non-cooperative: script path via the claim leaf, revealing the
// preimage. With coop set, the spend is a cooperative key-path MuSig2
// co-signature with the remote server; the preimage is still surrendered to
// the server as part of the exchange.
func SignClaim(ctx context.Context, tx *SwapTx, keys *btcec.PrivateKey,
	pre *preimage.Preimage, fee Fee, coop *Cooperative) (*wire.MsgTx, error) {

	if tx.Kind != KindClaim {
		return nil, swaperr.New(swaperr.Protocol,
			"Cannot sign claim with refund-type SwapTx")
	}

	if coop == nil {
		return signNonCooperativeClaim(tx, keys, pre, fee)
	}
	return signCooperativeClaim(ctx, tx, keys, pre, fee, coop)
}

// SignRefund builds and signs the refund transaction sweeping every UTXO in
// tx.UTXOs. With coop == nil the spend is script path via the refund leaf
// and only valid once the script's locktime has passed; with coop set, the
// spend is a cooperative key-path MuSig2 co-signature valid immediately.
func SignRefund(ctx context.Context, tx *SwapTx, keys *btcec.PrivateKey,
	fee Fee, coop *Cooperative) (*wire.MsgTx, error) {

	if tx.Kind != KindRefund {
		return nil, swaperr.New(swaperr.Protocol,
			"Cannot sign refund with claim-type SwapTx")
	}

	if coop == nil {
		return signNonCooperativeRefund(tx, keys, fee)
	}
	return signCooperativeRefund(ctx, tx, keys, fee, coop)
}

// signNonCooperativeClaim builds and signs the script-path claim: witness =
// [sig, preimage, claim_leaf, control_block]. The preimage must be known --
// a digest-only preimage cannot claim on either path, since the cooperative
// exchange also sends the preimage to the server.
func signNonCooperativeClaim(tx *SwapTx, keys *btcec.PrivateKey,
	pre *preimage.Preimage, fee Fee) (*wire.MsgTx, error) {

	if !pre.Known() {
		return nil, swaperr.New(swaperr.Protocol, "No preimage")
	}

	leaf := tx.Script.ClaimLeaf()
	controlBlock, err := tx.Script.ControlBlockFor(leaf)
	if err != nil {
		return nil, err
	}

	witnessFor := func(i int) witnessBuilder {
		return func(sig []byte) [][]byte {
			return [][]byte{sig, pre.Bytes(), leaf.Script, controlBlock}
		}
	}

	return tx.signScriptPath(keys, 0, scriptPathSequence, leaf, witnessFor, fee)
}

// signNonCooperativeRefund builds and signs the script-path refund sweep:
// witness = [sig, refund_leaf, control_block] per input, locktime set to the
// value parsed out of the refund leaf so CHECKLOCKTIMEVERIFY is satisfied.
func signNonCooperativeRefund(tx *SwapTx, keys *btcec.PrivateKey,
	fee Fee) (*wire.MsgTx, error) {

	leaf := tx.Script.RefundLeaf()
	controlBlock, err := tx.Script.ControlBlockFor(leaf)
	if err != nil {
		return nil, err
	}

	witnessFor := func(i int) witnessBuilder {
		return func(sig []byte) [][]byte {
			return [][]byte{sig, leaf.Script, controlBlock}
		}
	}

	return tx.signScriptPath(
		keys, tx.Script.Locktime, scriptPathSequence, leaf, witnessFor, fee,
	)
}

// signScriptPath resolves the fee, builds the placeholder-witnessed
// transaction at each iteration, computes the Tapscript sighash for leaf
// against every input, signs with key, and swaps the real signature into the
// witness the fee loop already sized correctly.
func (tx *SwapTx) signScriptPath(key *btcec.PrivateKey, locktime, sequence uint32,
	leaf txscript.TapLeaf, witnessFor func(i int) witnessBuilder, fee Fee) (*wire.MsgTx, error) {

	var finalTx *wire.MsgTx
	if _, err := resolveFee(tx.totalInputValue(), fee, func(proposedFee int64) (int64, error) {
		built, err := tx.assemble(proposedFee, locktime, sequence, witnessFor)
		if err != nil {
			return 0, err
		}
		finalTx = built
		return measure(built), nil
	}); err != nil {
		return nil, err
	}

	prevOuts := tx.prevOutFetcher()
	sigHashes := txscript.NewTxSigHashes(finalTx, prevOuts)

	for i := range finalTx.TxIn {
		sigHash, err := txscript.CalcTapscriptSignaturehash(
			sigHashes, txscript.SigHashDefault, finalTx, i, prevOuts, leaf,
		)
		if err != nil {
			return nil, swaperr.Wrap(swaperr.Generic, "failed to compute sighash", err)
		}

		sig, err := schnorr.Sign(key, sigHash)
		if err != nil {
			return nil, swaperr.Wrap(swaperr.Generic, "failed to sign input", err)
		}

		finalTx.TxIn[i].Witness = witnessFor(i)(sig.Serialize())
	}

	return finalTx, nil
}

// coopWitness is the witness stack of every key-path spend: a single 64-byte
// Schnorr signature.
func coopWitness(i int) witnessBuilder {
	return func(sig []byte) [][]byte {
		return [][]byte{sig}
	}
}

// buildCooperative resolves the fee and assembles the key-path transaction
// with stub witnesses, locktime cleared and RBF signalled.
func (tx *SwapTx) buildCooperative(fee Fee) (*wire.MsgTx, error) {
	var finalTx *wire.MsgTx
	if _, err := resolveFee(tx.totalInputValue(), fee, func(proposedFee int64) (int64, error) {
		built, err := tx.assemble(proposedFee, 0, coopSequence, coopWitness)
		if err != nil {
			return 0, err
		}
		finalTx = built
		return measure(built), nil
	}); err != nil {
		return nil, err
	}
	return finalTx, nil
}

// keySpendSighash computes the BIP-341 key-path sighash of input idx over
// all prevouts.
func (tx *SwapTx) keySpendSighash(msgTx *wire.MsgTx, idx int) ([32]byte, error) {
	var msg [32]byte

	prevOuts := tx.prevOutFetcher()
	sigHashes := txscript.NewTxSigHashes(msgTx, prevOuts)

	sigHash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, txscript.SigHashDefault, msgTx, idx, prevOuts,
	)
	if err != nil {
		return msg, swaperr.Wrap(swaperr.Generic,
			"failed to compute key-spend sighash", err)
	}
	copy(msg[:], sigHash)
	return msg, nil
}

func txHex(msgTx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := msgTx.Serialize(&buf); err != nil {
		return "", swaperr.Wrap(swaperr.Generic,
			"failed to serialize transaction", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// signCooperativeClaim performs the key-path MuSig2 claim: one input, one
// exchange with the server, witness = [aggregated 64-byte signature].
func signCooperativeClaim(ctx context.Context, tx *SwapTx,
	keys *btcec.PrivateKey, pre *preimage.Preimage, fee Fee,
	coop *Cooperative) (*wire.MsgTx, error) {

	claimTx, err := tx.buildCooperative(fee)
	if err != nil {
		return nil, err
	}

	msg, err := tx.keySpendSighash(claimTx, 0)
	if err != nil {
		return nil, err
	}

	serialized, err := txHex(claimTx)
	if err != nil {
		return nil, err
	}

	preimageHex, err := pre.ToHex()
	if err != nil {
		return nil, err
	}

	exchange := func(pubNonceHex string) (*boltz.PartialSigResponse, error) {
		switch tx.Script.SwapType {
		case swapscript.ReverseSubmarine:
			return coop.Server.GetReversePartialSig(
				ctx, coop.SwapID, preimageHex, pubNonceHex, serialized,
			)

		case swapscript.Chain:
			if coop.PubNonce == "" || coop.PartialSig == "" {
				return nil, swaperr.New(swaperr.Protocol,
					"Chain swap claim needs a partial_sig")
			}
			return coop.Server.PostChainClaimTxDetails(
				ctx, coop.SwapID, preimageHex,
				coop.PubNonce, coop.PartialSig,
				boltz.ToSign{
					PubNonce:    pubNonceHex,
					Transaction: serialized,
					Index:       0,
				},
			)

		default:
			return nil, swaperr.Newf(swaperr.Protocol,
				"Cannot get partial sig for %v Swap",
				tx.Script.SwapType)
		}
	}

	// The server signs as the sender on the claim leg.
	sig, err := musigSession(tx.Script).SignInput(
		keys, msg, exchange, tx.Script.SenderPubkey,
	)
	if err != nil {
		return nil, err
	}

	claimTx.TxIn[0].Witness = wire.TxWitness{sig}
	return claimTx, nil
}

// signCooperativeRefund performs the key-path MuSig2 refund, one exchange
// per swept input. The peer endpoint depends on the swap type; reverse
// swaps have no caller refund leg and are rejected at construction.
func signCooperativeRefund(ctx context.Context, tx *SwapTx,
	keys *btcec.PrivateKey, fee Fee,
	coop *Cooperative) (*wire.MsgTx, error) {

	refundTx, err := tx.buildCooperative(fee)
	if err != nil {
		return nil, err
	}

	serialized, err := txHex(refundTx)
	if err != nil {
		return nil, err
	}

	for i := range refundTx.TxIn {
		msg, err := tx.keySpendSighash(refundTx, i)
		if err != nil {
			return nil, err
		}

		index := i
		exchange := func(pubNonceHex string) (*boltz.PartialSigResponse, error) {
			switch tx.Script.SwapType {
			case swapscript.Chain:
				return coop.Server.GetChainPartialSig(
					ctx, coop.SwapID, index, pubNonceHex, serialized,
				)

			case swapscript.Submarine:
				return coop.Server.GetSubmarinePartialSig(
					ctx, coop.SwapID, index, pubNonceHex, serialized,
				)

			default:
				return nil, swaperr.Newf(swaperr.Protocol,
					"Cannot get partial sig for %v Swap",
					tx.Script.SwapType)
			}
		}

		// The server signs as the receiver on the refund leg.
		sig, err := musigSession(tx.Script).SignInput(
			keys, msg, exchange, tx.Script.ReceiverPubkey,
		)
		if err != nil {
			return nil, err
		}

		refundTx.TxIn[i].Witness = wire.TxWitness{sig}
	}

	return refundTx, nil
}
