package swaptx

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/bullbitcoin/swapcore/swaperr"
)

// UnsignedPacket exports the SwapTx as a PSBT packet carrying the witness
// UTXOs, for callers that hand signing to an external device instead of the
// in-process signers. Only the non-cooperative paths are expressible this
// way; a MuSig2 key-path spend cannot be delegated through a packet.
func (tx *SwapTx) UnsignedPacket(absoluteFee int64) (*psbt.Packet, error) {
	unsigned, err := tx.assemble(
		absoluteFee, tx.Script.Locktime, scriptPathSequence,
		func(i int) witnessBuilder {
			return func(sig []byte) [][]byte { return nil }
		},
	)
	if err != nil {
		return nil, err
	}

	packet, err := psbt.NewFromUnsignedTx(unsigned)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Generic,
			"failed to build psbt packet", err)
	}

	for i, u := range tx.UTXOs {
		out := u.Output
		packet.Inputs[i].WitnessUtxo = &wire.TxOut{
			Value:    out.Value,
			PkScript: out.PkScript,
		}
		packet.Inputs[i].SighashType = 0
	}
	return packet, nil
}
