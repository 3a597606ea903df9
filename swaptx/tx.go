// Package swaptx builds, sizes, and signs the claim and refund transactions
// that spend a swapscript.SwapScript's Taproot HTLC, either non-cooperatively
// via the script path or cooperatively via a two-party MuSig2 key-path
// signature with the remote server.
package swaptx

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/bullbitcoin/swapcore/swapscript"
	"github.com/bullbitcoin/swapcore/utxo"
)

// Kind is the transaction's purpose: claiming the HTLC with the preimage, or
// refunding it back to the sender after the timelock.
type Kind int

const (
	// KindClaim spends the HTLC via the preimage (or cooperatively).
	KindClaim Kind = iota

	// KindRefund sweeps the HTLC back to the sender after the locktime
	// (or cooperatively).
	KindRefund
)

// SwapTx is a claim or refund transaction under construction against a
// snapshot of the HTLC's UTXO set. The snapshot is only valid at the moment
// of construction -- if the HTLC is re-funded or the service re-broadcasts,
// the caller must rebuild it.
type SwapTx struct {
	Kind          Kind
	Script        *swapscript.SwapScript
	OutputAddress btcutil.Address
	UTXOs         []utxo.Entry
	Net           *chaincfg.Params
}

// NewClaim builds a claim SwapTx. Only the first UTXO in utxos is consumed;
// Submarine swaps have no claim leg for the caller and are rejected.
func NewClaim(script *swapscript.SwapScript, outputAddress btcutil.Address,
	utxos []utxo.Entry, net *chaincfg.Params) (*SwapTx, error) {

	if script.SwapType == swapscript.Submarine {
		return nil, swaperr.New(swaperr.Protocol, "Claim transactions cannot be constructed for Submarine swaps.")
	}
	if len(utxos) == 0 {
		return nil, swaperr.New(swaperr.Protocol, "No Bitcoin UTXO detected for this script")
	}
	if err := validateAddressNetwork(outputAddress, net); err != nil {
		return nil, err
	}

	return &SwapTx{
		Kind:          KindClaim,
		Script:        script,
		OutputAddress: outputAddress,
		UTXOs:         utxos[:1],
		Net:           net,
	}, nil
}

// NewRefund builds a refund SwapTx sweeping every UTXO in utxos into a
// single output. ReverseSubmarine swaps have no refund leg for the caller
// and are rejected.
func NewRefund(script *swapscript.SwapScript, outputAddress btcutil.Address,
	utxos []utxo.Entry, net *chaincfg.Params) (*SwapTx, error) {

	if script.SwapType == swapscript.ReverseSubmarine {
		return nil, swaperr.New(swaperr.Protocol, "Refund Txs cannot be constructed for Reverse Submarine Swaps.")
	}
	if len(utxos) == 0 {
		return nil, swaperr.New(swaperr.Protocol, "No Bitcoin UTXO detected for this script")
	}
	if err := validateAddressNetwork(outputAddress, net); err != nil {
		return nil, err
	}

	return &SwapTx{
		Kind:          KindRefund,
		Script:        script,
		OutputAddress: outputAddress,
		UTXOs:         utxos,
		Net:           net,
	}, nil
}

func validateAddressNetwork(addr btcutil.Address, net *chaincfg.Params) error {
	if !addr.IsForNet(net) {
		return swaperr.New(swaperr.Address, "validation failed")
	}
	return nil
}

// totalInputValue sums the value of every UTXO this transaction spends.
func (tx *SwapTx) totalInputValue() int64 {
	var total int64
	for _, u := range tx.UTXOs {
		total += u.Output.Value
	}
	return total
}

// outPoints returns the prevouts of every UTXO this transaction spends, in
// order.
func (tx *SwapTx) outPoints() []wire.OutPoint {
	ops := make([]wire.OutPoint, len(tx.UTXOs))
	for i, u := range tx.UTXOs {
		ops[i] = u.OutPoint
	}
	return ops
}
