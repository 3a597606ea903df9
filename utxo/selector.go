// Package utxo implements the selection policy that turns a set of decoded
// transactions and a confirmation-height annotation into the unspent outputs
// paying a target script: confirmed spends consume their parent output,
// unconfirmed (mempool) spends do not, so a pending double-spend can never
// hide HTLC funds from a refund sweep.
package utxo

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Entry pairs an outpoint with the output it refers to.
type Entry struct {
	OutPoint wire.OutPoint
	Output   wire.TxOut
}

// Heights maps a txid to its confirmation height. A height of zero means the
// transaction sits unconfirmed in the mempool.
type Heights map[chainhash.Hash]int32

// Select returns, in the iteration order of txs and then vout, every output
// that pays script and is not spent by any transaction in txs confirmed at
// a height greater than zero.
//
// This is the Electrum-shaped selector: heights are supplied out of band,
// keyed by txid, mirroring blockchain.scripthash.get_history's shape.
func Select(txs []*wire.MsgTx, heights Heights, script []byte) []Entry {
	confirmedSpend := make(map[wire.OutPoint]bool)
	for _, tx := range txs {
		txid := tx.TxHash()
		if heights[txid] <= 0 {
			continue
		}
		for _, in := range tx.TxIn {
			confirmedSpend[in.PreviousOutPoint] = true
		}
	}

	var out []Entry
	for _, tx := range txs {
		txid := tx.TxHash()
		for vout, txOut := range tx.TxOut {
			if !scriptsEqual(txOut.PkScript, script) {
				continue
			}
			op := wire.OutPoint{Hash: txid, Index: uint32(vout)}
			if confirmedSpend[op] {
				continue
			}
			out = append(out, Entry{OutPoint: op, Output: *txOut})
		}
	}
	return out
}

// TxStatus is the Esplora-shaped per-transaction confirmation status: rather
// than a separate height annotation, each transaction carries its own
// confirmed flag.
type TxStatus struct {
	Tx        *wire.MsgTx
	Confirmed bool
}

// SelectFromStatus is the Esplora counterpart of Select: it reduces to the
// same predicate over a slice that bundles each transaction with its own
// confirmation flag instead of a separate height map.
func SelectFromStatus(txs []TxStatus, script []byte) []Entry {
	confirmedSpend := make(map[wire.OutPoint]bool)
	for _, t := range txs {
		if !t.Confirmed {
			continue
		}
		for _, in := range t.Tx.TxIn {
			confirmedSpend[in.PreviousOutPoint] = true
		}
	}

	var out []Entry
	for _, t := range txs {
		txid := t.Tx.TxHash()
		for vout, txOut := range t.Tx.TxOut {
			if !scriptsEqual(txOut.PkScript, script) {
				continue
			}
			op := wire.OutPoint{Hash: txid, Index: uint32(vout)}
			if confirmedSpend[op] {
				continue
			}
			out = append(out, Entry{OutPoint: op, Output: *txOut})
		}
	}
	return out
}

func scriptsEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}
