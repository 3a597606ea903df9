package swaptx

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/bullbitcoin/swapcore/boltz"
	"github.com/bullbitcoin/swapcore/chainclient"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/bullbitcoin/swapcore/swapscript"
	"github.com/bullbitcoin/swapcore/utxo"
)

// NewClaimFromChain builds a claim SwapTx against the live UTXO set: the
// chain client resolves the HTLC's unspent outputs, and if it sees nothing
// the service is asked for the raw lockup transaction instead.
func NewClaimFromChain(ctx context.Context, script *swapscript.SwapScript,
	claimAddress string, client chainclient.BitcoinClient,
	net *chaincfg.Params, fetcher boltz.LockupFetcher,
	swapID string) (*SwapTx, error) {

	if script.SwapType == swapscript.Submarine {
		return nil, swaperr.New(swaperr.Protocol,
			"Claim transactions cannot be constructed for Submarine swaps.")
	}

	addr, err := btcutil.DecodeAddress(claimAddress, net)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Address, "validation failed", err)
	}

	utxos, err := discoverUTXOs(
		ctx, script, client, net, fetcher, swapID, KindClaim,
	)
	if err != nil {
		return nil, err
	}

	return NewClaim(script, addr, utxos, net)
}

// NewRefundFromChain builds a refund SwapTx sweeping the HTLC's full UTXO
// set, with the same service fallback as NewClaimFromChain.
func NewRefundFromChain(ctx context.Context, script *swapscript.SwapScript,
	refundAddress string, client chainclient.BitcoinClient,
	net *chaincfg.Params, fetcher boltz.LockupFetcher,
	swapID string) (*SwapTx, error) {

	if script.SwapType == swapscript.ReverseSubmarine {
		return nil, swaperr.New(swaperr.Protocol,
			"Refund Txs cannot be constructed for Reverse Submarine Swaps.")
	}

	addr, err := btcutil.DecodeAddress(refundAddress, net)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Address, "validation failed", err)
	}

	utxos, err := discoverUTXOs(
		ctx, script, client, net, fetcher, swapID, KindRefund,
	)
	if err != nil {
		return nil, err
	}

	return NewRefund(script, addr, utxos, net)
}

// discoverUTXOs resolves the swap script's UTXO set through the chain
// client, falling back to the service's lockup transaction when discovery
// fails or yields nothing.
func discoverUTXOs(ctx context.Context, script *swapscript.SwapScript,
	client chainclient.BitcoinClient, net *chaincfg.Params,
	fetcher boltz.LockupFetcher, swapID string,
	kind Kind) ([]utxo.Entry, error) {

	scriptAddr, err := script.ToAddress(net)
	if err != nil {
		return nil, err
	}

	utxos, err := client.GetAddressUTXOs(ctx, scriptAddr)
	if err != nil {
		log.Debugf("UTXO discovery for swap %s failed (%v), trying "+
			"service fallback", swapID, err)
		utxos = nil
	}
	if len(utxos) > 0 || fetcher == nil {
		return utxos, nil
	}

	entry, err := fetchLockupUTXOBoltz(ctx, script, net, fetcher, swapID, kind)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	return []utxo.Entry{*entry}, nil
}

// fetchLockupUTXOBoltz asks the service for the raw lockup transaction of
// the swap, scans its outputs for the verified HTLC script, and returns the
// matching entry. Which lockup leg to request depends on both the swap type
// and whether the caller is claiming or refunding.
func fetchLockupUTXOBoltz(ctx context.Context,
	script *swapscript.SwapScript, net *chaincfg.Params,
	fetcher boltz.LockupFetcher, swapID string,
	kind Kind) (*utxo.Entry, error) {

	var lockupHex string
	switch script.SwapType {
	case swapscript.Chain:
		chainTxs, err := fetcher.GetChainSwapTransactions(ctx, swapID)
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindClaim:
			if chainTxs.ServerLock == nil {
				return nil, swaperr.New(swaperr.Protocol,
					"No server_lock transaction for Chain Swap available")
			}
			lockupHex = chainTxs.ServerLock.Transaction.Hex

		case KindRefund:
			if chainTxs.UserLock == nil {
				return nil, swaperr.New(swaperr.Protocol,
					"No user_lock transaction for Chain Swap available")
			}
			lockupHex = chainTxs.UserLock.Transaction.Hex
		}

	default:
		resp, err := fetcher.GetSwapTransaction(ctx, swapID)
		if err != nil {
			return nil, err
		}
		lockupHex = resp.Hex
	}

	if lockupHex == "" {
		return nil, swaperr.New(swaperr.Hex,
			"No transaction hex found in boltz response")
	}

	raw, err := hex.DecodeString(lockupHex)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Hex,
			"invalid lockup transaction hex", err)
	}
	lockupTx := wire.NewMsgTx(wire.TxVersion)
	if err := lockupTx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, swaperr.Wrap(swaperr.Protocol,
			"failed to decode lockup transaction", err)
	}

	scriptAddr, err := script.ToAddress(net)
	if err != nil {
		return nil, err
	}
	wantScript, err := txscript.PayToAddrScript(scriptAddr)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Address,
			"failed to build script for lockup address", err)
	}

	txid := lockupTx.TxHash()
	for vout, out := range lockupTx.TxOut {
		if bytes.Equal(out.PkScript, wantScript) {
			return &utxo.Entry{
				OutPoint: wire.OutPoint{
					Hash:  txid,
					Index: uint32(vout),
				},
				Output: *out,
			}, nil
		}
	}
	return nil, nil
}
