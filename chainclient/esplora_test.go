package chainclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/stretchr/testify/require"
)

// recordedSleeps swaps the retry sleeper for one that only records the
// requested backoff durations.
func recordedSleeps(h *esploraHTTP) *[]time.Duration {
	var sleeps []time.Duration
	h.sleep = func(d time.Duration) {
		sleeps = append(sleeps, d)
	}
	return &sleeps
}

// TestEsploraRetryS4 is scenario S4: three 429 responses followed by a 200
// carrying the genesis hash. The client must return the hash and have slept
// 1, 2, and 4 seconds.
func TestEsploraRetryS4(t *testing.T) {
	const genesis = "1466275836220db2944ca059a3a10ef6fd2ea684b0688d2c379296888a206003"

	var calls int
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/block-height/0", r.URL.Path)

			calls++
			if calls <= 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(genesis))
		},
	))
	defer server.Close()

	client := NewEsploraLiquidClient(&EsploraConfig{
		URL:     server.URL,
		Timeout: 5 * time.Second,
	})
	sleeps := recordedSleeps(client.http)

	hash, err := client.GetGenesisHash(context.Background())
	require.NoError(t, err)
	require.Equal(t, genesis, hash.String())
	require.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second,
	}, *sleeps)
	require.Equal(t, 4, calls)
}

func TestEsploraRetryBudgetExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	))
	defer server.Close()

	client := NewEsploraLiquidClient(&EsploraConfig{
		URL:     server.URL,
		Timeout: 5 * time.Second,
	})
	sleeps := recordedSleeps(client.http)

	_, err := client.GetGenesisHash(context.Background())
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.Esplora))
	require.Contains(t, err.Error(), "Too many retries")

	// Attempts 0 through 5 back off; the seventh response is fatal.
	require.Len(t, *sleeps, esploraMaxRetries)
}

func TestEsploraBalanceUnderflow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"chain_stats":   {"funded_txo_sum": 100, "spent_txo_sum": 200},
				"mempool_stats": {"funded_txo_sum": 50, "spent_txo_sum": 20}
			}`))
		},
	))
	defer server.Close()

	client := NewEsploraBitcoinClient(&EsploraConfig{
		URL:     server.URL,
		Timeout: 5 * time.Second,
	})

	addr, err := btcutil.NewAddressTaproot(
		make([]byte, 32), &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	_, _, err = client.GetAddressBalance(context.Background(), addr)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.Generic))
	require.Contains(t, err.Error(), "Confirmed spent")
}

func TestEsploraBalanceUnconfirmedDelta(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"chain_stats":   {"funded_txo_sum": 500, "spent_txo_sum": 200},
				"mempool_stats": {"funded_txo_sum": 50, "spent_txo_sum": 80}
			}`))
		},
	))
	defer server.Close()

	client := NewEsploraBitcoinClient(&EsploraConfig{
		URL:     server.URL,
		Timeout: 5 * time.Second,
	})

	addr, err := btcutil.NewAddressTaproot(
		make([]byte, 32), &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	confirmed, unconfirmed, err := client.GetAddressBalance(
		context.Background(), addr,
	)
	require.NoError(t, err)
	require.EqualValues(t, 300, confirmed)
	require.EqualValues(t, -30, unconfirmed)
}
