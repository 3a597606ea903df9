package chainclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/bullbitcoin/swapcore/utxo"
	"github.com/vulpemventures/go-elements/address"
	"github.com/vulpemventures/go-elements/transaction"
)

// esploraMaxRetries is the retry budget for throttled requests: attempts
// beyond this count fail hard.
const esploraMaxRetries = 6

// esploraStats mirrors the chain_stats / mempool_stats objects of esplora's
// address endpoint.
type esploraStats struct {
	FundedTxoSum uint64 `json:"funded_txo_sum"`
	SpentTxoSum  uint64 `json:"spent_txo_sum"`
}

type esploraAddressInfo struct {
	Address      string       `json:"address"`
	ChainStats   esploraStats `json:"chain_stats"`
	MempoolStats esploraStats `json:"mempool_stats"`
}

type esploraTxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint32 `json:"block_height"`
}

type esploraTx struct {
	TxID   string          `json:"txid"`
	Status esploraTxStatus `json:"status"`
}

type esploraUtxo struct {
	TxID   string          `json:"txid"`
	Vout   uint32          `json:"vout"`
	Status esploraTxStatus `json:"status"`
}

// esploraHTTP is the request plumbing shared by the Bitcoin and Liquid
// flavors: a stateless HTTPS client with per-request timeouts and an
// exponential-backoff retry on throttling statuses.
type esploraHTTP struct {
	baseURL string
	timeout time.Duration
	client  *http.Client

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(time.Duration)
}

func newEsploraHTTP(cfg *EsploraConfig) *esploraHTTP {
	return &esploraHTTP{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		timeout: cfg.Timeout,
		client:  &http.Client{},
		sleep:   time.Sleep,
	}
}

// getWithRetry issues a GET, retrying with 2^n-second backoff on HTTP 429
// and 503 up to the retry budget. Any other status is returned to the
// caller.
func (e *esploraHTTP) getWithRetry(ctx context.Context,
	path string) ([]byte, error) {

	url := e.baseURL + path

	for attempt := 0; ; attempt++ {
		body, status, err := e.get(ctx, url)
		if err != nil {
			return nil, err
		}

		if status == http.StatusOK {
			log.Tracef("GET %s status_code:%d body bytes:%d",
				url, status, len(body))
		} else {
			log.Infof("GET %s status_code:%d body bytes:%d",
				url, status, len(body))
		}

		// 429 Too Many Requests, 503 Service Temporarily Unavailable.
		if status == http.StatusTooManyRequests ||
			status == http.StatusServiceUnavailable {

			if attempt >= esploraMaxRetries {
				log.Warnf("GET %s tried %d times, failing",
					url, attempt+1)
				return nil, swaperr.New(swaperr.Esplora,
					"Too many retries")
			}
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			log.Debugf("GET %s waiting %v", url, backoff)
			e.sleep(backoff)
			continue
		}

		if status != http.StatusOK {
			return nil, swaperr.Newf(swaperr.Esplora,
				"GET %s returned status %d: %s",
				path, status, strings.TrimSpace(string(body)))
		}
		return body, nil
	}
}

func (e *esploraHTTP) get(ctx context.Context,
	url string) ([]byte, int, error) {

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, swaperr.Wrap(swaperr.Esplora,
			"failed to build request", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, swaperr.Wrap(swaperr.Esplora, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, swaperr.Wrap(swaperr.Esplora,
			"failed to read response body", err)
	}
	return body, resp.StatusCode, nil
}

// post submits body and returns the response text, failing on any non-2xx
// status.
func (e *esploraHTTP) post(ctx context.Context, path,
	body string) (string, error) {

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, e.baseURL+path, strings.NewReader(body),
	)
	if err != nil {
		return "", swaperr.Wrap(swaperr.Esplora,
			"failed to build request", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", swaperr.Wrap(swaperr.Esplora, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", swaperr.Wrap(swaperr.Esplora,
			"failed to read response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", swaperr.Newf(swaperr.Esplora,
			"POST %s returned status %d: %s",
			path, resp.StatusCode,
			strings.TrimSpace(string(respBody)))
	}
	return strings.TrimSpace(string(respBody)), nil
}

// getRawTx fetches and returns a transaction's raw bytes.
func (e *esploraHTTP) getRawTx(ctx context.Context,
	txid string) ([]byte, error) {

	return e.getWithRetry(ctx, fmt.Sprintf("/tx/%s/raw", txid))
}

// EsploraBitcoinClient implements BitcoinClient over esplora's REST API.
type EsploraBitcoinClient struct {
	http *esploraHTTP
}

// NewEsploraBitcoinClient builds a stateless client for cfg.
func NewEsploraBitcoinClient(cfg *EsploraConfig) *EsploraBitcoinClient {
	return &EsploraBitcoinClient{http: newEsploraHTTP(cfg)}
}

// GetAddressBalance returns the confirmed balance and signed unconfirmed
// delta of addr. A confirmed spent sum exceeding the funded sum means the
// index is inconsistent and is reported rather than wrapped around.
func (c *EsploraBitcoinClient) GetAddressBalance(ctx context.Context,
	addr btcutil.Address) (uint64, int64, error) {

	body, err := c.http.getWithRetry(
		ctx, fmt.Sprintf("/address/%s", addr.EncodeAddress()),
	)
	if err != nil {
		return 0, 0, err
	}

	var info esploraAddressInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return 0, 0, swaperr.Wrap(swaperr.Esplora,
			"failed to decode address info", err)
	}

	if info.ChainStats.SpentTxoSum > info.ChainStats.FundedTxoSum {
		return 0, 0, swaperr.Newf(swaperr.Generic,
			"Confirmed spent %d > Confirmed funded %d",
			info.ChainStats.SpentTxoSum, info.ChainStats.FundedTxoSum)
	}
	confirmed := info.ChainStats.FundedTxoSum - info.ChainStats.SpentTxoSum
	unconfirmed := int64(info.MempoolStats.FundedTxoSum) -
		int64(info.MempoolStats.SpentTxoSum)

	return confirmed, unconfirmed, nil
}

// GetAddressUTXOs lists the address's transactions, resolves each one's raw
// bytes, and applies the confirmed-spend selection policy.
func (c *EsploraBitcoinClient) GetAddressUTXOs(ctx context.Context,
	addr btcutil.Address) ([]utxo.Entry, error) {

	body, err := c.http.getWithRetry(
		ctx, fmt.Sprintf("/address/%s/txs", addr.EncodeAddress()),
	)
	if err != nil {
		return nil, err
	}

	var listed []esploraTx
	if err := json.Unmarshal(body, &listed); err != nil {
		return nil, swaperr.Wrap(swaperr.Esplora,
			"failed to decode address transactions", err)
	}

	txs := make([]utxo.TxStatus, 0, len(listed))
	for _, item := range listed {
		raw, err := c.http.getRawTx(ctx, item.TxID)
		if err != nil {
			return nil, err
		}
		tx := wire.NewMsgTx(wire.TxVersion)
		if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
			return nil, swaperr.Wrap(swaperr.Esplora,
				"failed to decode raw transaction", err)
		}
		txs = append(txs, utxo.TxStatus{
			Tx:        tx,
			Confirmed: item.Status.Confirmed,
		})
	}

	script, err := addressScript(addr)
	if err != nil {
		return nil, err
	}
	return utxo.SelectFromStatus(txs, script), nil
}

// BroadcastTx submits tx as hex and parses the returned txid.
func (c *EsploraBitcoinClient) BroadcastTx(ctx context.Context,
	tx *wire.MsgTx) (chainhash.Hash, error) {

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return chainhash.Hash{}, swaperr.Wrap(swaperr.Generic,
			"failed to serialize transaction", err)
	}

	resp, err := c.http.post(ctx, "/tx", hex.EncodeToString(buf.Bytes()))
	if err != nil {
		return chainhash.Hash{}, err
	}

	txid, err := chainhash.NewHashFromStr(resp)
	if err != nil {
		return chainhash.Hash{}, swaperr.Wrap(swaperr.Esplora,
			"esplora returned an invalid txid", err)
	}

	log.Infof("Broadcasted bitcoin tx %s via esplora", txid)
	return *txid, nil
}

// Close is a no-op: the client holds no persistent connection.
func (c *EsploraBitcoinClient) Close() error {
	return nil
}

// EsploraLiquidClient implements LiquidClient over esplora's REST API.
type EsploraLiquidClient struct {
	http *esploraHTTP
}

// NewEsploraLiquidClient builds a stateless client for cfg.
func NewEsploraLiquidClient(cfg *EsploraConfig) *EsploraLiquidClient {
	return &EsploraLiquidClient{http: newEsploraHTTP(cfg)}
}

// GetAddressUTXO resolves the most recent UTXO esplora lists for addr and
// returns the full output from the raw transaction.
func (c *EsploraLiquidClient) GetAddressUTXO(ctx context.Context,
	addr string) (*LiquidUTXO, error) {

	body, err := c.http.getWithRetry(
		ctx, fmt.Sprintf("/address/%s/utxo", addr),
	)
	if err != nil {
		return nil, err
	}

	var utxos []esploraUtxo
	if err := json.Unmarshal(body, &utxos); err != nil {
		return nil, swaperr.Wrap(swaperr.Esplora,
			"failed to decode address utxos", err)
	}
	if len(utxos) == 0 {
		return nil, swaperr.New(swaperr.Protocol, "No Transaction History")
	}

	last := utxos[len(utxos)-1]
	raw, err := c.http.getRawTx(ctx, last.TxID)
	if err != nil {
		return nil, err
	}

	tx, err := transaction.NewTxFromHex(hex.EncodeToString(raw))
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Esplora,
			"failed to decode liquid transaction", err)
	}

	script, err := address.ToOutputScript(addr)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Address,
			"failed to build liquid address script", err)
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
		"Esplora could not find a Liquid UTXO for script")
}

// GetGenesisHash fetches the block hash at height zero.
func (c *EsploraLiquidClient) GetGenesisHash(
	ctx context.Context) (chainhash.Hash, error) {

	body, err := c.http.getWithRetry(ctx, "/block-height/0")
	if err != nil {
		return chainhash.Hash{}, err
	}

	hash, err := chainhash.NewHashFromStr(strings.TrimSpace(string(body)))
	if err != nil {
		return chainhash.Hash{}, swaperr.Wrap(swaperr.Esplora,
			"esplora returned an invalid genesis hash", err)
	}
	return *hash, nil
}

// BroadcastTx submits txHex and returns the txid string esplora reports.
func (c *EsploraLiquidClient) BroadcastTx(ctx context.Context,
	txHex string) (string, error) {

	txid, err := c.http.post(ctx, "/tx", txHex)
	if err != nil {
		return "", err
	}
	log.Infof("Broadcasted liquid tx %s via esplora", txid)
	return txid, nil
}

// Close is a no-op: the client holds no persistent connection.
func (c *EsploraLiquidClient) Close() error {
	return nil
}
