// Package boltz holds the pure data shapes exchanged with the remote swap
// service: create-swap responses, swap trees, and the MuSig2 partial-signature
// envelopes used during cooperative closes. The transport that carries these
// shapes is an external collaborator; only their structure and cryptographic
// interpretation live here.
package boltz

import (
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/bullbitcoin/swapcore/swaperr"
)

// Leaf is one hex-encoded tapscript leaf of a swap tree.
type Leaf struct {
	Version uint8  `json:"version"`
	Output  string `json:"output"`
}

// Script decodes the leaf's hex-encoded script bytes.
func (l Leaf) Script() ([]byte, error) {
	b, err := hex.DecodeString(l.Output)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Hex, "invalid leaf script hex", err)
	}
	return b, nil
}

// SwapTree is the two-leaf Taproot tree the service commits to for a swap.
type SwapTree struct {
	ClaimLeaf  Leaf `json:"claimLeaf"`
	RefundLeaf Leaf `json:"refundLeaf"`
}

// CreateSubmarineResponse is the service's reply to creating a submarine
// swap: the caller pays Address on-chain, the service pays the invoice.
type CreateSubmarineResponse struct {
	ID                 string   `json:"id"`
	AcceptZeroConf     bool     `json:"acceptZeroConf"`
	Address            string   `json:"address"`
	BIP21              string   `json:"bip21"`
	ClaimPublicKey     string   `json:"claimPublicKey"`
	ExpectedAmount     uint64   `json:"expectedAmount"`
	SwapTree           SwapTree `json:"swapTree"`
	TimeoutBlockHeight uint32   `json:"timeoutBlockHeight"`

	// BlindingKey is set only for Liquid submarine swaps.
	BlindingKey string `json:"blindingKey,omitempty"`
}

// CreateReverseResponse is the service's reply to creating a reverse
// submarine swap: the caller pays Invoice, the service locks up on-chain.
type CreateReverseResponse struct {
	ID                 string   `json:"id"`
	Invoice            string   `json:"invoice"`
	SwapTree           SwapTree `json:"swapTree"`
	LockupAddress      string   `json:"lockupAddress"`
	RefundPublicKey    string   `json:"refundPublicKey"`
	TimeoutBlockHeight uint32   `json:"timeoutBlockHeight"`
	OnchainAmount      uint64   `json:"onchainAmount"`

	// BlindingKey is set only for Liquid reverse swaps.
	BlindingKey string `json:"blindingKey,omitempty"`
}

// ChainSwapDetails describes one leg of a chain swap. A chain swap carries
// two of these: the lockup leg the caller funds and the claim leg the caller
// sweeps.
type ChainSwapDetails struct {
	SwapTree           SwapTree `json:"swapTree"`
	LockupAddress      string   `json:"lockupAddress"`
	ServerPublicKey    string   `json:"serverPublicKey"`
	TimeoutBlockHeight uint32   `json:"timeoutBlockHeight"`
	Amount             uint64   `json:"amount"`
	BIP21              string   `json:"bip21"`

	// BlindingKey is set only when this leg lives on Liquid.
	BlindingKey string `json:"blindingKey,omitempty"`
}

// CreateChainResponse is the service's reply to creating a chain swap.
type CreateChainResponse struct {
	ID            string            `json:"id"`
	ClaimDetails  *ChainSwapDetails `json:"claimDetails"`
	LockupDetails *ChainSwapDetails `json:"lockupDetails"`
}

// PartialSigResponse is the service's half of a MuSig2 round: its 66-byte
// public nonce and 32-byte partial signature, both hex.
type PartialSigResponse struct {
	PubNonce         string `json:"pubNonce"`
	PartialSignature string `json:"partialSignature"`
}

// ToSign carries the caller's side of a chain-swap claim round-trip: the
// caller's public nonce and the serialized transaction the service must
// partially sign, plus the input index the signature is for.
type ToSign struct {
	PubNonce    string `json:"pubNonce"`
	Transaction string `json:"transaction"`
	Index       int    `json:"index"`
}

// ClaimTxDetails is the preimage-bearing record the service publishes once a
// submarine swap's invoice has been settled and it wants the caller's
// cooperative signature over its claim transaction.
type ClaimTxDetails struct {
	Preimage        string `json:"preimage"`
	PubNonce        string `json:"pubNonce"`
	PublicKey       string `json:"publicKey"`
	TransactionHash string `json:"transactionHash"`
}

// SwapTransactionResponse is the raw lockup transaction the service returns
// when asked for a swap's on-chain funding, used as the UTXO-discovery
// fallback when the chain client sees nothing yet.
type SwapTransactionResponse struct {
	ID  string `json:"id"`
	Hex string `json:"hex"`

	TimeoutBlockHeight uint32 `json:"timeoutBlockHeight"`
}

// LockedTransaction wraps one lockup transaction of a chain swap.
type LockedTransaction struct {
	Transaction SwapTransactionResponse `json:"transaction"`
	Timeout     uint32                  `json:"timeout"`
}

// ChainSwapTransactions carries both lockup legs of a chain swap: the one the
// caller funded and the one the service funded.
type ChainSwapTransactions struct {
	UserLock   *LockedTransaction `json:"userLock"`
	ServerLock *LockedTransaction `json:"serverLock"`
}

// PartialSigServer is the out-of-band channel to the service's MuSig2
// endpoints, one method per swap shape. Implementations own the transport;
// callers in the core only see the wire shapes above.
type PartialSigServer interface {
	// GetReversePartialSig trades the revealed preimage, the caller's
	// public nonce, and the claim transaction hex for the service's nonce
	// and partial signature over that transaction.
	GetReversePartialSig(ctx context.Context, swapID, preimageHex,
		pubNonceHex, txHex string) (*PartialSigResponse, error)

	// GetSubmarinePartialSig requests the service's partial signature
	// over input index of the caller's refund transaction.
	GetSubmarinePartialSig(ctx context.Context, swapID string, index int,
		pubNonceHex, txHex string) (*PartialSigResponse, error)

	// GetChainPartialSig requests the service's partial signature over
	// input index of the caller's chain-swap refund transaction.
	GetChainPartialSig(ctx context.Context, swapID string, index int,
		pubNonceHex, txHex string) (*PartialSigResponse, error)

	// PostChainClaimTxDetails runs the chain-swap claim exchange: it
	// hands over the preimage and the caller's partial signature for the
	// service's own claim transaction, together with the caller's ToSign
	// request, and returns the service's nonce and partial signature.
	PostChainClaimTxDetails(ctx context.Context, swapID, preimageHex,
		theirPubNonceHex, theirPartialSigHex string,
		toSign ToSign) (*PartialSigResponse, error)
}

// LockupFetcher serves the raw lockup transaction(s) for a swap id, the
// service-side fallback used when chain-client UTXO discovery comes up empty.
type LockupFetcher interface {
	// GetSwapTransaction returns the lockup transaction of a submarine or
	// reverse swap.
	GetSwapTransaction(ctx context.Context,
		swapID string) (*SwapTransactionResponse, error)

	// GetChainSwapTransactions returns both lockup legs of a chain swap.
	GetChainSwapTransactions(ctx context.Context,
		swapID string) (*ChainSwapTransactions, error)
}

// ParsePublicKey decodes a hex-encoded compressed secp256k1 point.
func ParsePublicKey(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Hex, "invalid public key hex", err)
	}
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Protocol, "invalid public key", err)
	}
	return pub, nil
}

// ParseBlindingKey decodes a hex-encoded 32-byte Liquid blinding key. An
// empty string yields nil: the swap is not confidential.
func ParseBlindingKey(s string) (*[32]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Hex, "invalid blinding key hex", err)
	}
	if len(b) != 32 {
		return nil, swaperr.Newf(swaperr.Protocol,
			"blinding key is not 32 bytes (got %d)", len(b))
	}
	var out [32]byte
	copy(out[:], b)
	return &out, nil
}
