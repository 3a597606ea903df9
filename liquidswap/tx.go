package liquidswap

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/bullbitcoin/swapcore/boltz"
	"github.com/bullbitcoin/swapcore/chainclient"
	"github.com/bullbitcoin/swapcore/musig"
	"github.com/bullbitcoin/swapcore/preimage"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/bullbitcoin/swapcore/swapscript"
	"github.com/bullbitcoin/swapcore/swaptx"
	"github.com/vulpemventures/go-elements/address"
	"github.com/vulpemventures/go-elements/confidential"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/transaction"
)

const (
	scriptPathSequence uint32 = 0
	coopSequence       uint32 = 0xfffffffd
)

// unblinded is the cleartext view of the HTLC output, recovered with the
// swap's blinding key when the lockup was confidential.
type unblinded struct {
	value uint64
	asset []byte

	assetBlinder []byte
	valueBlinder []byte
}

// SwapTx is a Liquid claim or refund transaction under construction against
// the HTLC output the chain client resolved.
type SwapTx struct {
	Kind          swaptx.Kind
	Script        *SwapScript
	OutputAddress string
	UTXO          *chainclient.LiquidUTXO
	GenesisHash   chainhash.Hash
	Network       *network.Network

	input unblinded
}

// NewClaim builds a Liquid claim SwapTx: it resolves the HTLC UTXO and the
// genesis hash through client and unblinds the output with the script's
// blinding key. Submarine swaps have no claim leg for the caller and are
// rejected.
func NewClaim(ctx context.Context, script *SwapScript, claimAddress string,
	client chainclient.LiquidClient,
	net *network.Network) (*SwapTx, error) {

	if script.SwapType == swapscript.Submarine {
		return nil, swaperr.New(swaperr.Protocol,
			"Claim transactions cannot be constructed for Submarine swaps.")
	}
	return build(ctx, swaptx.KindClaim, script, claimAddress, client, net)
}

// NewRefund builds a Liquid refund SwapTx. ReverseSubmarine swaps have no
// refund leg for the caller and are rejected.
func NewRefund(ctx context.Context, script *SwapScript, refundAddress string,
	client chainclient.LiquidClient,
	net *network.Network) (*SwapTx, error) {

	if script.SwapType == swapscript.ReverseSubmarine {
		return nil, swaperr.New(swaperr.Protocol,
			"Refund Txs cannot be constructed for Reverse Submarine Swaps.")
	}
	return build(ctx, swaptx.KindRefund, script, refundAddress, client, net)
}

func build(ctx context.Context, kind swaptx.Kind, script *SwapScript,
	outputAddress string, client chainclient.LiquidClient,
	net *network.Network) (*SwapTx, error) {

	if _, err := address.ToOutputScript(outputAddress); err != nil {
		return nil, swaperr.Wrap(swaperr.Address, "validation failed", err)
	}

	scriptAddr, err := script.ToAddress(net)
	if err != nil {
		return nil, err
	}

	htlcUTXO, err := client.GetAddressUTXO(ctx, scriptAddr)
	if err != nil {
		return nil, err
	}
	if htlcUTXO == nil {
		return nil, swaperr.New(swaperr.Protocol,
			"No Liquid UTXO detected for this script")
	}

	genesis, err := client.GetGenesisHash(ctx)
	if err != nil {
		return nil, err
	}

	input, err := unblindOutput(htlcUTXO.Output, script.BlindingKey)
	if err != nil {
		return nil, err
	}

	return &SwapTx{
		Kind:          kind,
		Script:        script,
		OutputAddress: outputAddress,
		UTXO:          htlcUTXO,
		GenesisHash:   genesis,
		Network:       net,
		input:         input,
	}, nil
}

// unblindOutput recovers the cleartext value and asset of out. An explicit
// output is passed through; a confidential one is unblinded with blindKey.
func unblindOutput(out *transaction.TxOutput,
	blindKey *btcec.PrivateKey) (unblinded, error) {

	zero := make([]byte, 32)

	if len(out.RangeProof) == 0 && len(out.Value) > 0 && out.Value[0] == 0x01 {
		value, err := elementsutil.ValueFromBytes(out.Value)
		if err != nil {
			return unblinded{}, swaperr.Wrap(swaperr.Generic,
				"failed to decode explicit value", err)
		}
		asset := make([]byte, 32)
		// Explicit asset bytes are 0x01-prefixed, internal byte order.
		copy(asset, out.Asset[1:])
		return unblinded{
			value:        value,
			asset:        asset,
			assetBlinder: zero,
			valueBlinder: zero,
		}, nil
	}

	res, err := confidential.UnblindOutputWithKey(out, blindKey.Serialize())
	if err != nil {
		return unblinded{}, swaperr.Wrap(swaperr.Protocol,
			"failed to unblind lockup output", err)
	}
	return unblinded{
		value:        res.Value,
		asset:        res.Asset,
		assetBlinder: res.AssetBlindingFactor,
		valueBlinder: res.ValueBlindingFactor,
	}, nil
}

// assemble builds the transaction skeleton: one input spending the HTLC, a
// payment output to OutputAddress, and Liquid's explicit fee output. The
// payment output is blinded whenever the destination address is
// confidential.
func (tx *SwapTx) assemble(absoluteFee int64, locktime, sequence uint32,
	witness func(sig []byte) [][]byte) (*transaction.Transaction, error) {

	outputValue := int64(tx.input.value) - absoluteFee
	if outputValue <= 0 {
		return nil, swaperr.New(swaperr.Generic,
			"insufficient funds to cover fee")
	}

	msgTx := transaction.NewTx(2)
	msgTx.Locktime = locktime

	input := transaction.NewTxInput(tx.UTXO.TxID[:], tx.UTXO.Vout)
	input.Sequence = sequence
	msgTx.AddInput(input)

	script, err := address.ToOutputScript(tx.OutputAddress)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Address,
			"failed to build output script", err)
	}

	valueBytes, err := elementsutil.ValueToBytes(uint64(outputValue))
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Generic,
			"failed to encode output value", err)
	}
	assetBytes := append([]byte{0x01}, tx.input.asset...)

	payment := transaction.NewTxOutput(assetBytes, valueBytes, script)

	if blindPub := confidentialKey(tx.OutputAddress); blindPub != nil {
		err := blindOutput(
			payment, uint64(outputValue), tx.input, blindPub,
		)
		if err != nil {
			return nil, err
		}
	}
	msgTx.AddOutput(payment)

	feeBytes, err := elementsutil.ValueToBytes(uint64(absoluteFee))
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Generic,
			"failed to encode fee value", err)
	}
	msgTx.AddOutput(transaction.NewTxOutput(assetBytes, feeBytes, nil))

	msgTx.Inputs[0].Witness = witness(make([]byte, 64))

	return msgTx, nil
}

// confidentialKey returns the blinding public key of addr, or nil when the
// address is unconfidential.
func confidentialKey(addr string) []byte {
	conf, err := address.FromConfidential(addr)
	if err != nil {
		return nil
	}
	return conf.BlindingKey
}

// sighash computes the Elements taproot sighash of input 0. leafHash
// selects script-path; nil selects key-path.
func (tx *SwapTx) sighash(msgTx *transaction.Transaction,
	leafHash *chainhash.Hash) [32]byte {

	genesis := tx.GenesisHash
	return msgTx.HashForWitnessV1(
		0,
		[][]byte{tx.UTXO.Output.Script},
		[][]byte{tx.UTXO.Output.Asset},
		[][]byte{tx.UTXO.Output.Value},
		txscript.SigHashDefault,
		&genesis,
		leafHash,
		nil,
	)
}

// resolve runs the shared fee-by-vsize convergence against this
// transaction's own assembly.
func (tx *SwapTx) resolve(fee swaptx.Fee, locktime, sequence uint32,
	witness func(sig []byte) [][]byte) (*transaction.Transaction, error) {

	var finalTx *transaction.Transaction
	_, err := swaptx.Resolve(
		int64(tx.input.value), fee,
		func(proposedFee int64) (int64, error) {
			built, err := tx.assemble(
				proposedFee, locktime, sequence, witness,
			)
			if err != nil {
				return 0, err
			}
			finalTx = built
			return int64(built.VirtualSize()), nil
		},
	)
	if err != nil {
		return nil, err
	}
	return finalTx, nil
}

// SignClaim builds and signs the Liquid claim transaction, script-path when
// coop is nil and key-path MuSig2 otherwise.
func SignClaim(ctx context.Context, tx *SwapTx, keys *btcec.PrivateKey,
	pre *preimage.Preimage, fee swaptx.Fee,
	coop *swaptx.Cooperative) (*transaction.Transaction, error) {

	if tx.Kind != swaptx.KindClaim {
		return nil, swaperr.New(swaperr.Protocol,
			"Cannot sign claim with refund-type SwapTx")
	}

	if coop == nil {
		if !pre.Known() {
			return nil, swaperr.New(swaperr.Protocol, "No preimage")
		}

		leaf := tx.Script.ClaimLeaf()
		controlBlock, err := tx.Script.ControlBlockFor(leaf)
		if err != nil {
			return nil, err
		}

		witness := func(sig []byte) [][]byte {
			return [][]byte{sig, pre.Bytes(), leaf.Script, controlBlock}
		}
		claimTx, err := tx.resolve(fee, 0, scriptPathSequence, witness)
		if err != nil {
			return nil, err
		}

		leafHash := leaf.TapHash()
		msg := tx.sighash(claimTx, &leafHash)

		sig, err := schnorr.Sign(keys, msg[:])
		if err != nil {
			return nil, swaperr.Wrap(swaperr.Generic,
				"failed to sign input", err)
		}
		claimTx.Inputs[0].Witness = witness(sig.Serialize())
		return claimTx, nil
	}

	return tx.signCooperative(ctx, keys, pre, fee, coop)
}

// SignRefund builds and signs the Liquid refund transaction, script-path
// (locktime armed) when coop is nil and key-path MuSig2 otherwise.
func SignRefund(ctx context.Context, tx *SwapTx, keys *btcec.PrivateKey,
	fee swaptx.Fee,
	coop *swaptx.Cooperative) (*transaction.Transaction, error) {

	if tx.Kind != swaptx.KindRefund {
		return nil, swaperr.New(swaperr.Protocol,
			"Cannot sign refund with claim-type SwapTx")
	}

	if coop == nil {
		leaf := tx.Script.RefundLeaf()
		controlBlock, err := tx.Script.ControlBlockFor(leaf)
		if err != nil {
			return nil, err
		}

		witness := func(sig []byte) [][]byte {
			return [][]byte{sig, leaf.Script, controlBlock}
		}
		refundTx, err := tx.resolve(
			fee, tx.Script.Locktime, scriptPathSequence, witness,
		)
		if err != nil {
			return nil, err
		}

		leafHash := leaf.TapHash()
		msg := tx.sighash(refundTx, &leafHash)

		sig, err := schnorr.Sign(keys, msg[:])
		if err != nil {
			return nil, swaperr.Wrap(swaperr.Generic,
				"failed to sign input", err)
		}
		refundTx.Inputs[0].Witness = witness(sig.Serialize())
		return refundTx, nil
	}

	return tx.signCooperative(ctx, keys, nil, fee, coop)
}

// signCooperative performs the key-path MuSig2 spend, claim or refund: the
// single exchange with the server, partial-sig verification, aggregation,
// witness = [64-byte signature].
func (tx *SwapTx) signCooperative(ctx context.Context, keys *btcec.PrivateKey,
	pre *preimage.Preimage, fee swaptx.Fee,
	coop *swaptx.Cooperative) (*transaction.Transaction, error) {

	witness := func(sig []byte) [][]byte {
		return [][]byte{sig}
	}
	msgTx, err := tx.resolve(fee, 0, coopSequence, witness)
	if err != nil {
		return nil, err
	}

	msg := tx.sighash(msgTx, nil)

	serialized, err := msgTx.ToHex()
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Generic,
			"failed to serialize transaction", err)
	}

	var (
		exchange musig.Exchange
		peerKey  *btcec.PublicKey
	)
	switch {
	case tx.Kind == swaptx.KindClaim &&
		tx.Script.SwapType == swapscript.ReverseSubmarine:

		preimageHex, err := pre.ToHex()
		if err != nil {
			return nil, err
		}
		peerKey = tx.Script.SenderPubkey
		exchange = func(pubNonceHex string) (*boltz.PartialSigResponse, error) {
			return coop.Server.GetReversePartialSig(
				ctx, coop.SwapID, preimageHex, pubNonceHex, serialized,
			)
		}

	case tx.Kind == swaptx.KindClaim &&
		tx.Script.SwapType == swapscript.Chain:

		preimageHex, err := pre.ToHex()
		if err != nil {
			return nil, err
		}
		if coop.PubNonce == "" || coop.PartialSig == "" {
			return nil, swaperr.New(swaperr.Protocol,
				"Chain swap claim needs a partial_sig")
		}
		peerKey = tx.Script.SenderPubkey
		exchange = func(pubNonceHex string) (*boltz.PartialSigResponse, error) {
			return coop.Server.PostChainClaimTxDetails(
				ctx, coop.SwapID, preimageHex,
				coop.PubNonce, coop.PartialSig,
				boltz.ToSign{
					PubNonce:    pubNonceHex,
					Transaction: serialized,
					Index:       0,
				},
			)
		}

	case tx.Kind == swaptx.KindRefund &&
		tx.Script.SwapType == swapscript.Submarine:

		peerKey = tx.Script.ReceiverPubkey
		exchange = func(pubNonceHex string) (*boltz.PartialSigResponse, error) {
			return coop.Server.GetSubmarinePartialSig(
				ctx, coop.SwapID, 0, pubNonceHex, serialized,
			)
		}

	case tx.Kind == swaptx.KindRefund &&
		tx.Script.SwapType == swapscript.Chain:

		peerKey = tx.Script.ReceiverPubkey
		exchange = func(pubNonceHex string) (*boltz.PartialSigResponse, error) {
			return coop.Server.GetChainPartialSig(
				ctx, coop.SwapID, 0, pubNonceHex, serialized,
			)
		}

	default:
		return nil, swaperr.Newf(swaperr.Protocol,
			"Cannot get partial sig for %v Swap", tx.Script.SwapType)
	}

	session := &musig.Session{
		Signers:   tx.Script.MusigSigners(),
		Tweak:     tx.Script.TapTweak(),
		OutputKey: tx.Script.OutputKey(),
	}
	sig, err := session.SignInput(keys, msg, exchange, peerKey)
	if err != nil {
		return nil, err
	}

	msgTx.Inputs[0].Witness = [][]byte{sig}
	log.Debugf("Cooperatively signed liquid %v for swap %s",
		tx.Kind, coop.SwapID)
	return msgTx, nil
}
