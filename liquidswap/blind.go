package liquidswap

import (
	"crypto/rand"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/vulpemventures/go-elements/confidential"
	"github.com/vulpemventures/go-elements/transaction"
)

// blindOutput turns the explicit payment output into a confidential one
// bound to the destination's blinding key: the asset and value are replaced
// by commitments, a fresh ephemeral key becomes the output nonce, and range
// and surjection proofs are attached. The fee output stays explicit, as
// Liquid consensus requires, so the payment output is the only blinded
// output and its value blinder must balance the input's.
func blindOutput(out *transaction.TxOutput, value uint64, in unblinded,
	receiverBlindPub []byte) error {

	assetBlinder, err := random32()
	if err != nil {
		return err
	}

	assetCommitment, err := confidential.AssetCommitment(
		in.asset, assetBlinder[:],
	)
	if err != nil {
		return swaperr.Wrap(swaperr.Generic,
			"failed to commit to output asset", err)
	}

	inGenerator, err := confidential.AssetCommitment(
		in.asset, in.assetBlinder,
	)
	if err != nil {
		return swaperr.Wrap(swaperr.Generic,
			"failed to commit to input asset", err)
	}

	valueBlinder, err := confidential.FinalValueBlindingFactor(
		confidential.FinalValueBlindingFactorArgs{
			InValues:      []uint64{in.value},
			OutValues:     []uint64{value},
			InGenerators:  [][]byte{inGenerator},
			OutGenerators: [][]byte{assetCommitment},
			InFactors:     [][]byte{in.valueBlinder},
			OutFactors:    [][]byte{},
		},
	)
	if err != nil {
		return swaperr.Wrap(swaperr.Generic,
			"failed to derive final value blinder", err)
	}

	valueCommitment, err := confidential.ValueCommitment(
		value, assetCommitment, valueBlinder[:],
	)
	if err != nil {
		return swaperr.Wrap(swaperr.Generic,
			"failed to commit to output value", err)
	}

	ephemeralKey, err := btcec.NewPrivateKey()
	if err != nil {
		return swaperr.Wrap(swaperr.Generic,
			"failed to draw ephemeral blinding key", err)
	}
	nonce, err := confidential.NonceHash(
		receiverBlindPub, ephemeralKey.Serialize(),
	)
	if err != nil {
		return swaperr.Wrap(swaperr.Generic,
			"failed to derive blinding nonce", err)
	}

	rangeProof, err := confidential.RangeProof(confidential.RangeProofArgs{
		Value:               value,
		Nonce:               nonce,
		Asset:               in.asset,
		AssetBlindingFactor: assetBlinder[:],
		ValueBlindFactor:    valueBlinder,
		ValueCommit:         valueCommitment,
		ScriptPubkey:        out.Script,
		MinValue:            1,
		Exp:                 0,
		MinBits:             52,
	})
	if err != nil {
		return swaperr.Wrap(swaperr.Generic,
			"failed to build range proof", err)
	}

	seed, err := random32()
	if err != nil {
		return err
	}
	surjectionProof, ok := confidential.SurjectionProof(
		confidential.SurjectionProofArgs{
			OutputAsset:               in.asset,
			OutputAssetBlindingFactor: assetBlinder[:],
			InputAssets:               [][]byte{in.asset},
			InputAssetBlindingFactors: [][]byte{in.assetBlinder},
			Seed:                      seed[:],
		},
	)
	if !ok {
		return swaperr.New(swaperr.Generic,
			"failed to build surjection proof")
	}

	out.Asset = assetCommitment
	out.Value = valueCommitment
	out.Nonce = ephemeralKey.PubKey().SerializeCompressed()
	out.RangeProof = rangeProof
	out.SurjectionProof = surjectionProof
	return nil
}

func random32() ([32]byte, error) {
	var out [32]byte
	if _, err := rand.Read(out[:]); err != nil {
		return out, swaperr.Wrap(swaperr.Generic,
			"failed to draw blinding randomness", err)
	}
	return out, nil
}
