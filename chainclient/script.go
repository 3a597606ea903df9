package chainclient

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/bullbitcoin/swapcore/swaperr"
)

// addressScript returns the script_pubkey paying addr.
func addressScript(addr btcutil.Address) ([]byte, error) {
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Address,
			"failed to build address script", err)
	}
	return script, nil
}
