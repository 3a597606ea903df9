package swaptx

import (
	"github.com/bullbitcoin/swapcore/swaperr"
)

// witnessStubSize is the placeholder witness length used to estimate a
// transaction's virtual size before the real signature exists. A MuSig2
// key-path witness is a single 64-byte Schnorr signature; using its exact
// size (rather than an upper bound) is safe here because the cooperative
// path always produces exactly that witness shape.
const witnessStubSize = 64

// maxFeeIterations bounds the fixed-point fee convergence loop. The
// iteration converges in 1-2 rounds in practice; this is a hard backstop
// against a pathological fee function that never stabilizes.
const maxFeeIterations = 10

// Fee parameterises how a claim or refund transaction's fee is determined.
// Exactly one of the two fields is meaningful, selected by the constructor
// used (AbsoluteFee / RateFee).
type Fee struct {
	absolute *int64
	rate     *float64
}

// AbsoluteFee pins the transaction's fee to an exact satoshi amount.
func AbsoluteFee(sat int64) Fee {
	return Fee{absolute: &sat}
}

// RateFee selects a fee rate in sat/vByte; the actual fee is determined by
// a fixed-point iteration over the transaction's measured virtual size.
func RateFee(satPerVByte float64) Fee {
	return Fee{rate: &satPerVByte}
}

// resolveFee runs the fee-by-vsize fixed-point iteration: build the unsigned
// (witness-stubbed) transaction via buildUnsigned, measure its virtual size,
// compute absoluteFee = ceil(vsize * rate), and repeat until the fee value
// stops changing or maxFeeIterations is hit. buildUnsigned must accept the
// currently proposed fee and return a transaction with placeholder witnesses
// of the size the real signature(s) will have.
func resolveFee(inputValue int64, fee Fee, buildUnsigned func(absoluteFee int64) (vsize int64, err error)) (int64, error) {
	if fee.absolute != nil {
		absoluteFee := *fee.absolute
		if _, err := buildUnsigned(absoluteFee); err != nil {
			return 0, err
		}
		if inputValue <= absoluteFee {
			return 0, swaperr.New(swaperr.Generic, "insufficient funds to cover absolute fee")
		}
		return absoluteFee, nil
	}

	rate := *fee.rate

	var absoluteFee int64
	for i := 0; i < maxFeeIterations; i++ {
		vsize, err := buildUnsigned(absoluteFee)
		if err != nil {
			return 0, err
		}

		nextFee := int64(float64(vsize)*rate + 0.999999999)
		if nextFee == absoluteFee {
			break
		}
		absoluteFee = nextFee

		if inputValue <= absoluteFee {
			return 0, swaperr.New(swaperr.Generic, "insufficient funds to cover fee rate")
		}
	}

	if inputValue <= absoluteFee {
		return 0, swaperr.New(swaperr.Generic, "insufficient funds to cover fee rate")
	}

	return absoluteFee, nil
}

// Resolve runs the configured fee strategy against a caller-supplied
// builder, for sibling packages that assemble their own transaction shape
// but share the fee-by-vsize convergence policy.
func Resolve(inputValue int64, fee Fee,
	buildUnsigned func(absoluteFee int64) (int64, error)) (int64, error) {

	return resolveFee(inputValue, fee, buildUnsigned)
}

// vsize computes BIP-141 virtual size from a transaction's stripped (base)
// size and its full serialized size including witness data.
func vsize(baseSize, totalSize int) int64 {
	weight := int64(baseSize)*3 + int64(totalSize)
	return (weight + 3) / 4
}
