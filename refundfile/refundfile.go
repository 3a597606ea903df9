// Package refundfile persists the minimum state needed to rebuild a refund
// transaction after a process restart, without the originating service
// session: the swap id, its chain, both HTLC leaves, the caller's private
// key, and the timeout height. Losing this state after funds are locked up
// means waiting on the counterparty's goodwill, so callers are expected to
// write the file before broadcasting any lockup.
package refundfile

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/bullbitcoin/swapcore/chain"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/bullbitcoin/swapcore/swapscript"
	"github.com/lightningnetwork/lnd/tlv"
)

// RefundFile is the on-disk recovery record for one swap.
type RefundFile struct {
	// ID is the service-assigned swap id.
	ID string `json:"id"`

	// Currency is the chain the HTLC lives on.
	Currency chain.Chain `json:"currency"`

	// RedeemScript is the refund leaf: the script the caller can spend
	// after the timeout.
	RedeemScript []byte `json:"redeem_script"`

	// ClaimLeaf is the counterparty's claim leaf, needed to reconstruct
	// the taproot tree the refund control block commits to.
	ClaimLeaf []byte `json:"claim_leaf"`

	// PrivateKey is the caller's refund key.
	PrivateKey []byte `json:"private_key"`

	// TimeoutBlockHeight is the absolute locktime of the refund leaf.
	TimeoutBlockHeight uint32 `json:"timeout_block_height"`

	// SwapType and Side pin the key-aggregation order of the tree.
	SwapType swapscript.SwapType `json:"swap_type"`
	Side     swapscript.Side     `json:"side"`

	// SenderPubKey and ReceiverPubKey are the compressed participant
	// keys. The x-only projections inside the leaves lose the parity bit,
	// so recovery stores the full points.
	SenderPubKey   []byte `json:"sender_pub_key"`
	ReceiverPubKey []byte `json:"receiver_pub_key"`

	// BlindingKey is set only for Liquid swaps.
	BlindingKey []byte `json:"blinding_key,omitempty"`
}

// FromScript captures a swap script (and the caller's refund key) into a
// recovery record.
func FromScript(id string, currency chain.Chain, s *swapscript.SwapScript,
	key *btcec.PrivateKey) *RefundFile {

	return &RefundFile{
		ID:                 id,
		Currency:           currency,
		RedeemScript:       s.RefundLeaf().Script,
		ClaimLeaf:          s.ClaimLeaf().Script,
		PrivateKey:         key.Serialize(),
		TimeoutBlockHeight: s.Locktime,
		SwapType:           s.SwapType,
		Side:               s.Side,
		SenderPubKey:       s.SenderPubkey.SerializeCompressed(),
		ReceiverPubKey:     s.ReceiverPubkey.SerializeCompressed(),
	}
}

// Script rebuilds the swap script from the stored state. The result is
// unverified: there is no service address left to check against, which is
// exactly the situation this file exists for.
func (f *RefundFile) Script() (*swapscript.SwapScript, error) {
	hashlock, err := swapscript.ParseHashlock(f.ClaimLeaf)
	if err != nil {
		return nil, err
	}
	locktime, err := swapscript.ParseLocktime(f.RedeemScript)
	if err != nil {
		return nil, err
	}

	sender, err := btcec.ParsePubKey(f.SenderPubKey)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Protocol,
			"invalid stored sender key", err)
	}
	receiver, err := btcec.ParsePubKey(f.ReceiverPubKey)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Protocol,
			"invalid stored receiver key", err)
	}

	return swapscript.NewUnverified(swapscript.Params{
		SwapType:       f.SwapType,
		Side:           f.Side,
		Hashlock:       hashlock,
		SenderPubkey:   sender,
		ReceiverPubkey: receiver,
		Locktime:       locktime,
	})
}

// fileName is the deterministic name a swap's recovery file is stored
// under.
func fileName(id string) string {
	return fmt.Sprintf("boltz-%s.json", id)
}

// Save writes the file as JSON to dir and returns the full path.
func (f *RefundFile) Save(dir string) (string, error) {
	if f.ID == "" {
		return "", swaperr.New(swaperr.Generic,
			"refund file has no swap id")
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", swaperr.Wrap(swaperr.Generic,
			"failed to encode refund file", err)
	}

	path := filepath.Join(dir, fileName(f.ID))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", swaperr.Wrap(swaperr.Generic,
			"failed to write refund file", err)
	}
	return path, nil
}

// Load reads a refund file back from path.
func Load(path string) (*RefundFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Generic,
			"failed to read refund file", err)
	}

	var f RefundFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, swaperr.Wrap(swaperr.Generic,
			"failed to decode refund file", err)
	}
	return &f, nil
}

// Key rebuilds the caller's refund keypair from the stored bytes.
func (f *RefundFile) Key() (*btcec.PrivateKey, error) {
	if len(f.PrivateKey) != 32 {
		return nil, swaperr.Newf(swaperr.Generic,
			"stored private key is not 32 bytes (got %d)",
			len(f.PrivateKey))
	}
	priv, _ := btcec.PrivKeyFromBytes(f.PrivateKey)
	return priv, nil
}

// TLV record types of the compact backup encoding.
const (
	typeID           tlv.Type = 1
	typeCurrency     tlv.Type = 2
	typeRedeemScript tlv.Type = 3
	typeClaimLeaf    tlv.Type = 4
	typePrivateKey   tlv.Type = 5
	typeTimeout      tlv.Type = 6
	typeBlindingKey  tlv.Type = 7
	typeSwapType     tlv.Type = 8
	typeSide         tlv.Type = 9
	typeSenderKey    tlv.Type = 10
	typeReceiverKey  tlv.Type = 11
)

// EncodeTLV returns a compact binary form of the file, small enough for QR
// or NFC backup media where the JSON form is too large.
func (f *RefundFile) EncodeTLV() ([]byte, error) {
	var (
		id       = []byte(f.ID)
		currency = uint8(f.Currency)
		timeout  = f.TimeoutBlockHeight
		swapType = uint8(f.SwapType)
		side     = uint8(f.Side)
	)

	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeID, &id),
		tlv.MakePrimitiveRecord(typeCurrency, &currency),
		tlv.MakePrimitiveRecord(typeRedeemScript, &f.RedeemScript),
		tlv.MakePrimitiveRecord(typeClaimLeaf, &f.ClaimLeaf),
		tlv.MakePrimitiveRecord(typePrivateKey, &f.PrivateKey),
		tlv.MakePrimitiveRecord(typeTimeout, &timeout),
		tlv.MakePrimitiveRecord(typeSwapType, &swapType),
		tlv.MakePrimitiveRecord(typeSide, &side),
		tlv.MakePrimitiveRecord(typeSenderKey, &f.SenderPubKey),
		tlv.MakePrimitiveRecord(typeReceiverKey, &f.ReceiverPubKey),
	}
	if len(f.BlindingKey) > 0 {
		records = append(records,
			tlv.MakePrimitiveRecord(typeBlindingKey, &f.BlindingKey),
		)
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Generic,
			"failed to build tlv stream", err)
	}

	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, swaperr.Wrap(swaperr.Generic,
			"failed to encode refund file tlv", err)
	}
	return buf.Bytes(), nil
}

// DecodeTLV parses a compact backup produced by EncodeTLV.
func DecodeTLV(data []byte) (*RefundFile, error) {
	var (
		f        RefundFile
		id       []byte
		currency uint8
		timeout  uint32
		swapType uint8
		side     uint8
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeID, &id),
		tlv.MakePrimitiveRecord(typeCurrency, &currency),
		tlv.MakePrimitiveRecord(typeRedeemScript, &f.RedeemScript),
		tlv.MakePrimitiveRecord(typeClaimLeaf, &f.ClaimLeaf),
		tlv.MakePrimitiveRecord(typePrivateKey, &f.PrivateKey),
		tlv.MakePrimitiveRecord(typeTimeout, &timeout),
		tlv.MakePrimitiveRecord(typeSwapType, &swapType),
		tlv.MakePrimitiveRecord(typeSide, &side),
		tlv.MakePrimitiveRecord(typeSenderKey, &f.SenderPubKey),
		tlv.MakePrimitiveRecord(typeReceiverKey, &f.ReceiverPubKey),
		tlv.MakePrimitiveRecord(typeBlindingKey, &f.BlindingKey),
	)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Generic,
			"failed to build tlv stream", err)
	}

	if err := stream.Decode(bytes.NewReader(data)); err != nil {
		return nil, swaperr.Wrap(swaperr.Generic,
			"failed to decode refund file tlv", err)
	}

	f.ID = string(id)
	f.Currency = chain.Chain(currency)
	f.TimeoutBlockHeight = timeout
	f.SwapType = swapscript.SwapType(swapType)
	f.Side = swapscript.Side(side)
	return &f, nil
}

// String renders the file for operator inspection, with the private key
// redacted.
func (f *RefundFile) String() string {
	return fmt.Sprintf("swap %s on %s, timeout %d, redeem script %s",
		f.ID, f.Currency, f.TimeoutBlockHeight,
		hex.EncodeToString(f.RedeemScript))
}
