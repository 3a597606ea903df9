package chainclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/bullbitcoin/swapcore/utxo"
	"github.com/checksum0/go-electrum/electrum"
	"github.com/vulpemventures/go-elements/address"
	"github.com/vulpemventures/go-elements/transaction"
)

// electrumScriptHash returns the scripthash Electrum keys its script-indexed
// methods by: sha256 of the script, byte-reversed, hex.
func electrumScriptHash(script []byte) string {
	h := sha256.Sum256(script)
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}
	return hex.EncodeToString(h[:])
}

// dialElectrum opens the persistent connection described by cfg and pings it
// once so a dead endpoint fails at construction rather than first use.
func dialElectrum(ctx context.Context,
	cfg *ElectrumConfig) (*electrum.Client, error) {

	var (
		client *electrum.Client
		err    error
	)
	if cfg.UseTLS {
		client, err = electrum.NewClientSSL(ctx, cfg.URL, &tls.Config{
			InsecureSkipVerify: !cfg.ValidateDomain,
		})
	} else {
		client, err = electrum.NewClientTCP(ctx, cfg.URL)
	}
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Electrum,
			"failed to connect to electrum server", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Shutdown()
		return nil, swaperr.Wrap(swaperr.Electrum,
			"electrum server did not answer ping", err)
	}

	log.Debugf("Connected to electrum server %s", cfg.URL)
	return client, nil
}

// ElectrumBitcoinClient implements BitcoinClient over a persistent Electrum
// connection.
type ElectrumBitcoinClient struct {
	cfg   *ElectrumConfig
	inner *electrum.Client
}

// NewElectrumBitcoinClient connects to the configured Electrum server.
func NewElectrumBitcoinClient(ctx context.Context,
	cfg *ElectrumConfig) (*ElectrumBitcoinClient, error) {

	client, err := dialElectrum(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ElectrumBitcoinClient{cfg: cfg, inner: client}, nil
}

// GetAddressBalance returns the confirmed balance and signed unconfirmed
// delta of addr.
func (c *ElectrumBitcoinClient) GetAddressBalance(ctx context.Context,
	addr btcutil.Address) (uint64, int64, error) {

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return 0, 0, swaperr.Wrap(swaperr.Address,
			"failed to build address script", err)
	}

	balance, err := c.inner.GetBalance(ctx, electrumScriptHash(script))
	if err != nil {
		return 0, 0, swaperr.Wrap(swaperr.Electrum,
			"script_get_balance failed", err)
	}

	if balance.Confirmed < 0 {
		return 0, 0, swaperr.New(swaperr.Generic,
			"Confirmed spent > Confirmed funded")
	}
	return uint64(balance.Confirmed), int64(balance.Unconfirmed), nil
}

// GetAddressUTXOs fetches the full script history, resolves each listed
// transaction, and applies the confirmed-spend selection policy.
func (c *ElectrumBitcoinClient) GetAddressUTXOs(ctx context.Context,
	addr btcutil.Address) ([]utxo.Entry, error) {

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Address,
			"failed to build address script", err)
	}

	history, err := c.inner.GetHistory(ctx, electrumScriptHash(script))
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Electrum,
			"script_get_history failed", err)
	}

	var (
		txs     = make([]*wire.MsgTx, 0, len(history))
		heights = make(utxo.Heights, len(history))
	)
	for _, item := range history {
		rawHex, err := c.inner.GetRawTransaction(ctx, item.Hash)
		if err != nil {
			return nil, swaperr.Wrap(swaperr.Electrum,
				"transaction_get failed", err)
		}
		raw, err := hex.DecodeString(rawHex)
		if err != nil {
			return nil, swaperr.Wrap(swaperr.Hex,
				"invalid transaction hex from electrum", err)
		}

		tx := wire.NewMsgTx(wire.TxVersion)
		if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
			return nil, swaperr.Wrap(swaperr.Electrum,
				"failed to decode history transaction", err)
		}

		txs = append(txs, tx)
		heights[tx.TxHash()] = item.Height
	}

	return utxo.Select(txs, heights, script), nil
}

// BroadcastTx submits tx and returns its txid.
func (c *ElectrumBitcoinClient) BroadcastTx(ctx context.Context,
	tx *wire.MsgTx) (chainhash.Hash, error) {

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return chainhash.Hash{}, swaperr.Wrap(swaperr.Generic,
			"failed to serialize transaction", err)
	}

	txidStr, err := c.inner.BroadcastTransaction(
		ctx, hex.EncodeToString(buf.Bytes()),
	)
	if err != nil {
		return chainhash.Hash{}, swaperr.Wrap(swaperr.Electrum,
			"transaction_broadcast failed", err)
	}

	txid, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return chainhash.Hash{}, swaperr.Wrap(swaperr.Electrum,
			"electrum returned an invalid txid", err)
	}

	log.Infof("Broadcasted bitcoin tx %s via electrum", txid)
	return *txid, nil
}

// Close tears down the persistent connection.
func (c *ElectrumBitcoinClient) Close() error {
	c.inner.Shutdown()
	return nil
}

// ElectrumLiquidClient implements LiquidClient over a persistent Electrum
// connection to a Liquid-indexing server.
type ElectrumLiquidClient struct {
	cfg   *ElectrumConfig
	inner *electrum.Client
}

// NewElectrumLiquidClient connects to the configured Electrum server.
func NewElectrumLiquidClient(ctx context.Context,
	cfg *ElectrumConfig) (*ElectrumLiquidClient, error) {

	client, err := dialElectrum(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ElectrumLiquidClient{cfg: cfg, inner: client}, nil
}

// GetAddressUTXO resolves the most recent transaction in addr's history and
// returns its output paying addr.
func (c *ElectrumLiquidClient) GetAddressUTXO(ctx context.Context,
	addr string) (*LiquidUTXO, error) {

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	script, err := address.ToOutputScript(addr)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Address,
			"failed to build liquid address script", err)
	}

	history, err := c.inner.GetHistory(ctx, electrumScriptHash(script))
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Electrum,
			"script_get_history failed", err)
	}
	if len(history) == 0 {
		return nil, swaperr.New(swaperr.Protocol, "No Transaction History")
	}

	last := history[len(history)-1]
	rawHex, err := c.inner.GetRawTransaction(ctx, last.Hash)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Electrum,
			"transaction_get failed", err)
	}

	tx, err := transaction.NewTxFromHex(rawHex)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Electrum,
			"failed to decode liquid transaction", err)
	}

	for vout, out := range tx.Outputs {
		if bytes.Equal(out.Script, script) {
			return &LiquidUTXO{
				TxID:   tx.TxHash(),
				Vout:   uint32(vout),
				Output: out,
			}, nil
		}
	}
	return nil, swaperr.New(swaperr.Protocol,
		"Electrum could not find a Liquid UTXO for script")
}

// GetGenesisHash fetches the height-zero header and hashes it.
func (c *ElectrumLiquidClient) GetGenesisHash(
	ctx context.Context) (chainhash.Hash, error) {

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	headerHex, err := c.inner.GetBlockHeader(ctx, 0)
	if err != nil {
		return chainhash.Hash{}, swaperr.Wrap(swaperr.Electrum,
			"block_header failed", err)
	}
	header, err := hex.DecodeString(headerHex)
	if err != nil {
		return chainhash.Hash{}, swaperr.Wrap(swaperr.Hex,
			"invalid header hex from electrum", err)
	}
	return chainhash.DoubleHashH(header), nil
}

// BroadcastTx submits txHex and returns the txid string reported by the
// server.
func (c *ElectrumLiquidClient) BroadcastTx(ctx context.Context,
	txHex string) (string, error) {

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	txid, err := c.inner.BroadcastTransaction(ctx, txHex)
	if err != nil {
		return "", swaperr.Wrap(swaperr.Electrum,
			"transaction_broadcast failed", err)
	}

	log.Infof("Broadcasted liquid tx %s via electrum", txid)
	return txid, nil
}

// Close tears down the persistent connection.
func (c *ElectrumLiquidClient) Close() error {
	c.inner.Shutdown()
	return nil
}
