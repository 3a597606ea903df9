package swapscript

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/bullbitcoin/swapcore/swaperr"
)

// xOnly projects a compressed secp256k1 point to its 32-byte x-only form, as
// used by every Taproot leaf and the key-aggregation cache.
func xOnly(pub *btcec.PublicKey) []byte {
	return schnorrSerialize(pub)
}

// claimLeafScript builds the canonical claim leaf. Submarine claims check
// only the hashlock; Reverse and Chain claims additionally pin the preimage
// length to 32 bytes via the SIZE clause, since an attacker handed a
// shorter/longer preimage with a matching HASH160 would otherwise still
// satisfy the script.
func claimLeafScript(swapType SwapType, hashlock [20]byte, receiver *btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	if swapType != Submarine {
		builder.AddOp(txscript.OP_SIZE)
		builder.AddInt64(32)
		builder.AddOp(txscript.OP_EQUALVERIFY)
	}

	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(hashlock[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(xOnly(receiver))
	builder.AddOp(txscript.OP_CHECKSIG)

	script, err := builder.Script()
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Generic, "failed to build claim leaf", err)
	}
	return script, nil
}

// refundLeafScript builds the canonical refund leaf, spendable by the
// sender's signature after the absolute locktime.
func refundLeafScript(sender *btcec.PublicKey, locktime uint32) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddData(xOnly(sender))
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddInt64(int64(locktime))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)

	script, err := builder.Script()
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Generic, "failed to build refund leaf", err)
	}
	return script, nil
}

// LeafScripts returns the canonical claim and refund leaf scripts for the
// given parameters. The same bytecode backs both the Bitcoin and the Liquid
// variant of a swap; only the taproot tree wrapping them differs.
func LeafScripts(swapType SwapType, hashlock [20]byte, sender,
	receiver *btcec.PublicKey, locktime uint32) ([]byte, []byte, error) {

	claim, err := claimLeafScript(swapType, hashlock, receiver)
	if err != nil {
		return nil, nil, err
	}
	refund, err := refundLeafScript(sender, locktime)
	if err != nil {
		return nil, nil, err
	}
	return claim, refund, nil
}

// ParseHashlock scans a claim leaf for the first 20-byte data push, which by
// the service's own leaf construction is always the HASH-160 hashlock.
func ParseHashlock(claimLeaf []byte) ([20]byte, error) {
	var hashlock [20]byte

	tokenizer := txscript.MakeScriptTokenizer(0, claimLeaf)
	for tokenizer.Next() {
		data := tokenizer.Data()
		if len(data) == 20 {
			copy(hashlock[:], data)
			return hashlock, nil
		}
	}
	if err := tokenizer.Err(); err != nil {
		return hashlock, swaperr.Wrap(swaperr.Protocol, "failed to tokenize claim leaf", err)
	}
	return hashlock, swaperr.New(swaperr.Protocol, "No hashlock provided")
}

// ParseLocktime scans a refund leaf for the push that immediately follows
// OP_CHECKSIGVERIFY, decoding it as an unsigned little-endian integer of at
// most 4 bytes.
func ParseLocktime(refundLeaf []byte) (uint32, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, refundLeaf)

	prevWasCheckSigVerify := false
	for tokenizer.Next() {
		if prevWasCheckSigVerify {
			data := tokenizer.Data()
			if len(data) == 0 || len(data) > 4 {
				return 0, swaperr.New(swaperr.Protocol, "No timelock provided")
			}
			var buf [4]byte
			copy(buf[:], data)
			return binary.LittleEndian.Uint32(buf[:]), nil
		}
		prevWasCheckSigVerify = tokenizer.Opcode() == txscript.OP_CHECKSIGVERIFY
	}
	if err := tokenizer.Err(); err != nil {
		return 0, swaperr.Wrap(swaperr.Protocol, "failed to tokenize refund leaf", err)
	}
	return 0, swaperr.New(swaperr.Protocol, "No timelock provided")
}
