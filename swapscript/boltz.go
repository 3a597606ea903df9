package swapscript

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/bullbitcoin/swapcore/boltz"
	"github.com/bullbitcoin/swapcore/swaperr"
)

// NewSubmarineFromResponse reconstructs the submarine HTLC from the service's
// create-swap response. The caller is the sender (its key guards the refund
// leaf); the service's claim key guards the claim leaf. The response's
// lockup address is verified against the locally computed output key unless
// it is empty, which only a regtest flow produces.
func NewSubmarineFromResponse(resp *boltz.CreateSubmarineResponse,
	ourPubkey *btcec.PublicKey, net *chaincfg.Params) (*SwapScript, error) {

	hashlock, locktime, err := parseTree(resp.SwapTree)
	if err != nil {
		return nil, err
	}

	claimPubkey, err := boltz.ParsePublicKey(resp.ClaimPublicKey)
	if err != nil {
		return nil, err
	}

	params := Params{
		SwapType:       Submarine,
		Side:           SideNone,
		Hashlock:       hashlock,
		SenderPubkey:   ourPubkey,
		ReceiverPubkey: claimPubkey,
		Locktime:       locktime,
	}

	return fromResponse(params, resp.Address, net)
}

// NewReverseFromResponse reconstructs the reverse-submarine HTLC from the
// service's create-swap response. The caller is the receiver (it will claim
// with the preimage); the service's refund key guards the refund leaf.
func NewReverseFromResponse(resp *boltz.CreateReverseResponse,
	ourPubkey *btcec.PublicKey, net *chaincfg.Params) (*SwapScript, error) {

	hashlock, locktime, err := parseTree(resp.SwapTree)
	if err != nil {
		return nil, err
	}

	refundPubkey, err := boltz.ParsePublicKey(resp.RefundPublicKey)
	if err != nil {
		return nil, err
	}

	params := Params{
		SwapType:       ReverseSubmarine,
		Side:           SideNone,
		Hashlock:       hashlock,
		SenderPubkey:   refundPubkey,
		ReceiverPubkey: ourPubkey,
		Locktime:       locktime,
	}

	return fromResponse(params, resp.LockupAddress, net)
}

// NewChainFromResponse reconstructs one leg of a chain-swap HTLC. On the
// lockup leg the caller is the sender and the service will claim; on the
// claim leg the roles flip. side selects which leg details describes.
func NewChainFromResponse(side Side, details *boltz.ChainSwapDetails,
	ourPubkey *btcec.PublicKey, net *chaincfg.Params) (*SwapScript, error) {

	if side == SideNone {
		return nil, swaperr.New(swaperr.Protocol,
			"chain swap scripts require a Lockup or Claim side")
	}

	hashlock, locktime, err := parseTree(details.SwapTree)
	if err != nil {
		return nil, err
	}

	serverPubkey, err := boltz.ParsePublicKey(details.ServerPublicKey)
	if err != nil {
		return nil, err
	}

	sender, receiver := ourPubkey, serverPubkey
	if side == SideClaim {
		sender, receiver = serverPubkey, ourPubkey
	}

	params := Params{
		SwapType:       Chain,
		Side:           side,
		Hashlock:       hashlock,
		SenderPubkey:   sender,
		ReceiverPubkey: receiver,
		Locktime:       locktime,
	}

	return fromResponse(params, details.LockupAddress, net)
}

// parseTree extracts the hashlock and locktime from the service's
// hex-encoded leaves.
func parseTree(tree boltz.SwapTree) ([20]byte, uint32, error) {
	var hashlock [20]byte

	claimScript, err := tree.ClaimLeaf.Script()
	if err != nil {
		return hashlock, 0, err
	}
	refundScript, err := tree.RefundLeaf.Script()
	if err != nil {
		return hashlock, 0, err
	}

	hashlock, err = ParseHashlock(claimScript)
	if err != nil {
		return hashlock, 0, err
	}
	locktime, err := ParseLocktime(refundScript)
	if err != nil {
		return hashlock, 0, err
	}
	return hashlock, locktime, nil
}

// fromResponse finishes construction: with a lockup address it runs the
// verified path, without one (regtest) it explicitly falls back to the
// unverified constructor.
func fromResponse(params Params, lockupAddress string,
	net *chaincfg.Params) (*SwapScript, error) {

	if lockupAddress == "" {
		return NewUnverified(params)
	}

	addr, err := btcutil.DecodeAddress(lockupAddress, net)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Address,
			"failed to parse lockup address", err)
	}
	return NewVerified(params, addr)
}
