// Package chainclient provides the two interchangeable blockchain back-ends
// the swap core consumes: a persistent Electrum connection and a stateless
// Esplora REST client, each in a Bitcoin and a Liquid flavor. Both resolve a
// script's UTXO set through the selection policy in the utxo package.
package chainclient

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/bullbitcoin/swapcore/utxo"
	"github.com/vulpemventures/go-elements/transaction"
)

// BitcoinClient is the capability surface a Bitcoin swap needs from a chain
// back-end.
type BitcoinClient interface {
	// GetAddressBalance returns the confirmed balance and the signed
	// unconfirmed delta (mempool funded minus mempool spent) of addr.
	GetAddressBalance(ctx context.Context,
		addr btcutil.Address) (uint64, int64, error)

	// GetAddressUTXOs returns the outputs paying addr that are not spent
	// by any confirmed transaction, per the utxo package's policy.
	GetAddressUTXOs(ctx context.Context,
		addr btcutil.Address) ([]utxo.Entry, error)

	// BroadcastTx submits a signed transaction and returns its txid.
	BroadcastTx(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error)

	// Close releases any persistent connection held by the back-end.
	Close() error
}

// LiquidUTXO pairs a Liquid outpoint with its (possibly confidential)
// output.
type LiquidUTXO struct {
	TxID   chainhash.Hash
	Vout   uint32
	Output *transaction.TxOutput
}

// LiquidClient is the capability surface a Liquid swap needs from a chain
// back-end.
type LiquidClient interface {
	// GetAddressUTXO returns the HTLC output paying addr from the most
	// recent transaction in the address's history.
	GetAddressUTXO(ctx context.Context, addr string) (*LiquidUTXO, error)

	// GetGenesisHash returns the chain's genesis block hash, which the
	// Elements taproot sighash commits to.
	GetGenesisHash(ctx context.Context) (chainhash.Hash, error)

	// BroadcastTx submits a signed transaction hex and returns the txid
	// string reported by the back-end.
	BroadcastTx(ctx context.Context, txHex string) (string, error)

	// Close releases any persistent connection held by the back-end.
	Close() error
}
