package swaptx

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/bullbitcoin/swapcore/swaperr"
)

// sigStub is the zero-valued placeholder used in place of a not-yet-computed
// signature while the fee iteration measures virtual size. Every signature
// this package produces -- script-path Schnorr or MuSig2 key-path -- is
// exactly 64 bytes, so swapping the real bytes in afterwards never changes
// the transaction's size.
var sigStub = make([]byte, witnessStubSize)

// witnessBuilder produces the witness stack for one input, given whether the
// caller wants the placeholder (estimation) or the final signature bytes.
type witnessBuilder func(sig []byte) [][]byte

// assemble builds the unsigned (or placeholder-witnessed) wire.MsgTx for
// this SwapTx: one input per entry in tx.UTXOs in order, a single output to
// OutputAddress carrying totalInputValue-absoluteFee, the given locktime and
// per-input sequence, and witnesses produced by witnessFor(i) seeded with
// sigStub.
func (tx *SwapTx) assemble(absoluteFee int64, locktime uint32, sequence uint32,
	witnessFor func(i int) witnessBuilder) (*wire.MsgTx, error) {

	outputValue := tx.totalInputValue() - absoluteFee
	if outputValue <= 0 {
		return nil, swaperr.New(swaperr.Generic, "insufficient funds to cover fee")
	}

	msgTx := wire.NewMsgTx(2)
	msgTx.LockTime = locktime

	for _, u := range tx.UTXOs {
		msgTx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: u.OutPoint,
			Sequence:         sequence,
		})
	}

	pkScript, err := txscript.PayToAddrScript(tx.OutputAddress)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Address, "failed to build output script", err)
	}
	if txrules.IsDustAmount(
		btcutil.Amount(outputValue), len(pkScript),
		txrules.DefaultRelayFeePerKb,
	) {
		return nil, swaperr.New(swaperr.Generic,
			"output value is dust after fee")
	}
	msgTx.AddTxOut(&wire.TxOut{Value: outputValue, PkScript: pkScript})

	for i := range tx.UTXOs {
		msgTx.TxIn[i].Witness = witnessFor(i)(sigStub)
	}

	return msgTx, nil
}

// prevOutFetcher builds the taproot sighash fetcher over every input this
// transaction spends, as Prevouts::All requires.
func (tx *SwapTx) prevOutFetcher() txscript.PrevOutputFetcher {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.UTXOs))
	for _, u := range tx.UTXOs {
		out := u.Output
		prevOuts[u.OutPoint] = &out
	}
	return txscript.NewMultiPrevOutFetcher(prevOuts)
}

// measure returns the transaction's BIP-141 virtual size.
func measure(msgTx *wire.MsgTx) int64 {
	return vsize(msgTx.SerializeSizeStripped(), msgTx.SerializeSize())
}
