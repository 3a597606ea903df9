package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/bullbitcoin/swapcore/boltz"
	"github.com/bullbitcoin/swapcore/chain"
	"github.com/bullbitcoin/swapcore/chainclient"
	"github.com/bullbitcoin/swapcore/liquidswap"
	"github.com/bullbitcoin/swapcore/preimage"
	"github.com/bullbitcoin/swapcore/refundfile"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/bullbitcoin/swapcore/swapscript"
	"github.com/bullbitcoin/swapcore/swaptx"
	"github.com/urfave/cli"
	"github.com/vulpemventures/go-elements/network"
)

func printJSON(resp interface{}) {
	b, err := json.Marshal(resp)
	if err != nil {
		fatal(err)
	}

	var out bytes.Buffer
	json.Indent(&out, b, "", "\t")
	out.WriteTo(os.Stdout)
	fmt.Println()
}

var preimageCommand = cli.Command{
	Name:      "preimage",
	Usage:     "generate or inspect a swap preimage",
	ArgsUsage: "[hex|invoice]",
	Description: "With no argument, generates a fresh 32-byte preimage. " +
		"With a hex argument, recomputes its digests. With a BOLT-11 " +
		"invoice, projects the payment hash into a digest-only preimage.",
	Action: runPreimage,
}

func runPreimage(ctx *cli.Context) error {
	var (
		pre *preimage.Preimage
		err error
	)
	switch arg := ctx.Args().First(); {
	case arg == "":
		pre, err = preimage.New()
	case strings.HasPrefix(strings.ToLower(arg), "ln"):
		pre, err = preimage.FromInvoice(arg)
	default:
		pre, err = preimage.FromHex(arg)
	}
	if err != nil {
		return err
	}

	sha := pre.SHA256()
	h160 := pre.Hash160()
	out := map[string]string{
		"sha256":  hex.EncodeToString(sha[:]),
		"hash160": hex.EncodeToString(h160[:]),
	}
	if pre.Known() {
		out["preimage"] = hex.EncodeToString(pre.Bytes())
	}
	printJSON(out)
	return nil
}

var swapFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "type",
		Usage: "swap shape: submarine, reverse, or chain",
	},
	cli.StringFlag{
		Name:  "side",
		Usage: "chain-swap side: lockup or claim",
	},
	cli.StringFlag{
		Name:  "response",
		Usage: "path to the service's create-swap response JSON",
	},
	cli.StringFlag{
		Name:  "pubkey",
		Usage: "our compressed public key, hex",
	},
}

var scriptCommand = cli.Command{
	Name:  "script",
	Usage: "derive and verify the swap's lockup address",
	Description: "Rebuilds the Taproot HTLC from a create-swap response " +
		"and prints the locally derived address. Construction fails if " +
		"the response's address does not match the reconstruction.",
	Flags:  swapFlags,
	Action: runScript,
}

func runScript(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}

	tag, err := cfg.chainTag()
	if err != nil {
		return err
	}

	if tag.IsLiquid() {
		script, net, err := buildLiquidScript(cfg, ctx)
		if err != nil {
			return err
		}
		addr, err := script.ToAddress(net)
		if err != nil {
			return err
		}
		printScript(addr, script.Hashlock, script.Locktime)
		return nil
	}

	script, params, err := buildBitcoinScript(cfg, ctx)
	if err != nil {
		return err
	}
	addr, err := script.ToAddress(params)
	if err != nil {
		return err
	}
	printScript(addr.EncodeAddress(), script.Hashlock, script.Locktime)
	return nil
}

func printScript(addr string, hashlock [20]byte, locktime uint32) {
	printJSON(map[string]interface{}{
		"address":  addr,
		"hashlock": hex.EncodeToString(hashlock[:]),
		"locktime": locktime,
	})
}

var utxosCommand = cli.Command{
	Name:   "utxos",
	Usage:  "list the HTLC's unspent outputs via the configured back-end",
	Flags:  swapFlags,
	Action: runUtxos,
}

func runUtxos(cliCtx *cli.Context) error {
	cfg, err := loadConfig(cliCtx)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}

	tag, err := cfg.chainTag()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if tag.IsLiquid() {
		script, net, err := buildLiquidScript(cfg, cliCtx)
		if err != nil {
			return err
		}
		client, err := liquidBackend(ctx, cfg, tag)
		if err != nil {
			return err
		}
		defer client.Close()

		addr, err := script.ToAddress(net)
		if err != nil {
			return err
		}
		u, err := client.GetAddressUTXO(ctx, addr)
		if err != nil {
			return err
		}
		printJSON(map[string]interface{}{
			"txid": u.TxID.String(),
			"vout": u.Vout,
		})
		return nil
	}

	script, params, err := buildBitcoinScript(cfg, cliCtx)
	if err != nil {
		return err
	}
	client, err := bitcoinBackend(ctx, cfg, tag)
	if err != nil {
		return err
	}
	defer client.Close()

	addr, err := script.ToAddress(params)
	if err != nil {
		return err
	}
	utxos, err := client.GetAddressUTXOs(ctx, addr)
	if err != nil {
		return err
	}

	type utxoOut struct {
		Txid  string `json:"txid"`
		Vout  uint32 `json:"vout"`
		Value int64  `json:"value"`
	}
	out := make([]utxoOut, 0, len(utxos))
	for _, u := range utxos {
		out = append(out, utxoOut{
			Txid:  u.OutPoint.Hash.String(),
			Vout:  u.OutPoint.Index,
			Value: u.Output.Value,
		})
	}
	printJSON(out)
	return nil
}

var spendFlags = append(swapFlags,
	cli.StringFlag{
		Name:  "key",
		Usage: "our private key, hex",
	},
	cli.StringFlag{
		Name:  "destination",
		Usage: "address to pay the swept funds to",
	},
	cli.StringFlag{
		Name:  "swapid",
		Usage: "service swap id",
	},
	cli.Float64Flag{
		Name:  "feerate",
		Value: 2,
		Usage: "fee rate in sat/vB",
	},
	cli.Int64Flag{
		Name:  "fee",
		Usage: "absolute fee in sats (overrides --feerate)",
	},
	cli.BoolFlag{
		Name:  "broadcast",
		Usage: "broadcast the signed transaction",
	},
)

var claimCommand = cli.Command{
	Name:  "claim",
	Usage: "build and sign the claim transaction",
	Flags: append(spendFlags, cli.StringFlag{
		Name:  "preimage",
		Usage: "the 32-byte preimage, hex",
	}),
	Action: runClaim,
}

var refundCommand = cli.Command{
	Name:   "refund",
	Usage:  "build and sign the refund transaction",
	Flags:  spendFlags,
	Action: runRefund,
}

func runClaim(cliCtx *cli.Context) error {
	return runSpend(cliCtx, swaptx.KindClaim)
}

func runRefund(cliCtx *cli.Context) error {
	return runSpend(cliCtx, swaptx.KindRefund)
}

func runSpend(cliCtx *cli.Context, kind swaptx.Kind) error {
	cfg, err := loadConfig(cliCtx)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}

	tag, err := cfg.chainTag()
	if err != nil {
		return err
	}

	key, err := parsePrivKey(cliCtx.String("key"))
	if err != nil {
		return err
	}
	fee := feeFromFlags(cliCtx)
	dest := cliCtx.String("destination")
	ctx := context.Background()

	if tag.IsLiquid() {
		return runLiquidSpend(ctx, cliCtx, cfg, tag, kind, key, dest, fee)
	}

	script, params, err := buildBitcoinScript(cfg, cliCtx)
	if err != nil {
		return err
	}
	client, err := bitcoinBackend(ctx, cfg, tag)
	if err != nil {
		return err
	}
	defer client.Close()

	var signed *wire.MsgTx
	switch kind {
	case swaptx.KindClaim:
		pre, err := preimage.FromHex(cliCtx.String("preimage"))
		if err != nil {
			return err
		}
		tx, err := swaptx.NewClaimFromChain(
			ctx, script, dest, client, params, nil,
			cliCtx.String("swapid"),
		)
		if err != nil {
			return err
		}
		signed, err = swaptx.SignClaim(ctx, tx, key, pre, fee, nil)
		if err != nil {
			return err
		}

	case swaptx.KindRefund:
		tx, err := swaptx.NewRefundFromChain(
			ctx, script, dest, client, params, nil,
			cliCtx.String("swapid"),
		)
		if err != nil {
			return err
		}

		// Persist the recovery record before the transaction leaves
		// the process.
		file := refundfile.FromScript(
			cliCtx.String("swapid"), tag, script, key,
		)
		if path, err := file.Save(cfg.DataDir); err == nil {
			fmt.Fprintf(os.Stderr, "wrote recovery file %s\n", path)
		}

		signed, err = swaptx.SignRefund(ctx, tx, key, fee, nil)
		if err != nil {
			return err
		}
	}

	return emitBitcoin(ctx, client, signed, cliCtx.Bool("broadcast"))
}

func runLiquidSpend(ctx context.Context, cliCtx *cli.Context, cfg *config,
	tag chain.Chain, kind swaptx.Kind, key *btcec.PrivateKey, dest string,
	fee swaptx.Fee) error {

	script, net, err := buildLiquidScript(cfg, cliCtx)
	if err != nil {
		return err
	}
	client, err := liquidBackend(ctx, cfg, tag)
	if err != nil {
		return err
	}
	defer client.Close()

	switch kind {
	case swaptx.KindClaim:
		pre, err := preimage.FromHex(cliCtx.String("preimage"))
		if err != nil {
			return err
		}
		tx, err := liquidswap.NewClaim(ctx, script, dest, client, net)
		if err != nil {
			return err
		}
		signed, err := liquidswap.SignClaim(ctx, tx, key, pre, fee, nil)
		if err != nil {
			return err
		}
		return emitLiquid(ctx, client, signed, cliCtx.Bool("broadcast"))

	default:
		tx, err := liquidswap.NewRefund(ctx, script, dest, client, net)
		if err != nil {
			return err
		}
		signed, err := liquidswap.SignRefund(ctx, tx, key, fee, nil)
		if err != nil {
			return err
		}
		return emitLiquid(ctx, client, signed, cliCtx.Bool("broadcast"))
	}
}

var recoverCommand = cli.Command{
	Name:      "recover",
	Usage:     "rebuild and sign a refund from a recovery file",
	ArgsUsage: "recovery-file",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "destination",
			Usage: "address to pay the refunded funds to",
		},
		cli.Float64Flag{
			Name:  "feerate",
			Value: 2,
			Usage: "fee rate in sat/vB",
		},
		cli.BoolFlag{
			Name:  "broadcast",
			Usage: "broadcast the signed transaction",
		},
	},
	Action: runRecover,
}

func runRecover(cliCtx *cli.Context) error {
	cfg, err := loadConfig(cliCtx)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}

	path := cliCtx.Args().First()
	if path == "" {
		return swaperr.New(swaperr.Generic, "recovery file path required")
	}

	file, err := refundfile.Load(path)
	if err != nil {
		return err
	}
	script, err := file.Script()
	if err != nil {
		return err
	}
	key, err := file.Key()
	if err != nil {
		return err
	}

	params, err := file.Currency.BitcoinParams()
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := bitcoinBackend(ctx, cfg, file.Currency)
	if err != nil {
		return err
	}
	defer client.Close()

	tx, err := swaptx.NewRefundFromChain(
		ctx, script, cliCtx.String("destination"), client, params,
		nil, file.ID,
	)
	if err != nil {
		return err
	}

	signed, err := swaptx.SignRefund(
		ctx, tx, key, swaptx.RateFee(cliCtx.Float64("feerate")), nil,
	)
	if err != nil {
		return err
	}
	return emitBitcoin(ctx, client, signed, cliCtx.Bool("broadcast"))
}

// buildBitcoinScript reads the create-swap response named by the flags and
// reconstructs the Bitcoin swap script.
func buildBitcoinScript(cfg *config,
	ctx *cli.Context) (*swapscript.SwapScript, *chaincfg.Params, error) {

	tag, err := cfg.chainTag()
	if err != nil {
		return nil, nil, err
	}
	params, err := tag.BitcoinParams()
	if err != nil {
		return nil, nil, err
	}

	pubkey, err := boltz.ParsePublicKey(ctx.String("pubkey"))
	if err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(ctx.String("response"))
	if err != nil {
		return nil, nil, swaperr.Wrap(swaperr.Generic,
			"failed to read response file", err)
	}

	var script *swapscript.SwapScript
	switch strings.ToLower(ctx.String("type")) {
	case "submarine":
		var resp boltz.CreateSubmarineResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, nil, swaperr.Wrap(swaperr.Generic,
				"failed to decode response", err)
		}
		script, err = swapscript.NewSubmarineFromResponse(
			&resp, pubkey, params,
		)

	case "reverse":
		var resp boltz.CreateReverseResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, nil, swaperr.Wrap(swaperr.Generic,
				"failed to decode response", err)
		}
		script, err = swapscript.NewReverseFromResponse(
			&resp, pubkey, params,
		)

	case "chain":
		var resp boltz.ChainSwapDetails
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, nil, swaperr.Wrap(swaperr.Generic,
				"failed to decode response", err)
		}
		script, err = swapscript.NewChainFromResponse(
			parseSide(ctx.String("side")), &resp, pubkey, params,
		)

	default:
		return nil, nil, swaperr.Newf(swaperr.Generic,
			"unknown swap type %q", ctx.String("type"))
	}
	if err != nil {
		return nil, nil, err
	}
	return script, params, nil
}

// buildLiquidScript is the Liquid counterpart of buildBitcoinScript.
func buildLiquidScript(cfg *config,
	ctx *cli.Context) (*liquidswap.SwapScript, *network.Network, error) {

	tag, err := cfg.chainTag()
	if err != nil {
		return nil, nil, err
	}
	net, err := liquidswap.Network(tag)
	if err != nil {
		return nil, nil, err
	}

	pubkey, err := boltz.ParsePublicKey(ctx.String("pubkey"))
	if err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(ctx.String("response"))
	if err != nil {
		return nil, nil, swaperr.Wrap(swaperr.Generic,
			"failed to read response file", err)
	}

	var script *liquidswap.SwapScript
	switch strings.ToLower(ctx.String("type")) {
	case "submarine":
		var resp boltz.CreateSubmarineResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, nil, swaperr.Wrap(swaperr.Generic,
				"failed to decode response", err)
		}
		script, err = liquidswap.NewSubmarineFromResponse(&resp, pubkey)

	case "reverse":
		var resp boltz.CreateReverseResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, nil, swaperr.Wrap(swaperr.Generic,
				"failed to decode response", err)
		}
		script, err = liquidswap.NewReverseFromResponse(&resp, pubkey)

	case "chain":
		var resp boltz.ChainSwapDetails
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, nil, swaperr.Wrap(swaperr.Generic,
				"failed to decode response", err)
		}
		script, err = liquidswap.NewChainFromResponse(
			parseSide(ctx.String("side")), &resp, pubkey,
		)

	default:
		return nil, nil, swaperr.Newf(swaperr.Generic,
			"unknown swap type %q", ctx.String("type"))
	}
	if err != nil {
		return nil, nil, err
	}
	return script, net, nil
}

func parseSide(s string) swapscript.Side {
	switch strings.ToLower(s) {
	case "lockup":
		return swapscript.SideLockup
	case "claim":
		return swapscript.SideClaim
	default:
		return swapscript.SideNone
	}
}

func parsePrivKey(s string) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.Hex, "invalid private key hex", err)
	}
	if len(raw) != 32 {
		return nil, swaperr.Newf(swaperr.Generic,
			"private key is not 32 bytes (got %d)", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

func feeFromFlags(ctx *cli.Context) swaptx.Fee {
	if ctx.IsSet("fee") {
		return swaptx.AbsoluteFee(ctx.Int64("fee"))
	}
	return swaptx.RateFee(ctx.Float64("feerate"))
}

// bitcoinBackend builds the configured chain client for a Bitcoin network.
func bitcoinBackend(ctx context.Context, cfg *config,
	tag chain.Chain) (chainclient.BitcoinClient, error) {

	switch strings.ToLower(cfg.Backend) {
	case "electrum":
		ecfg, err := chainclient.DefaultElectrumConfig(tag, cfg.RegtestURL)
		if err != nil {
			return nil, err
		}
		return chainclient.NewElectrumBitcoinClient(ctx, ecfg)

	case "esplora":
		scfg, err := chainclient.DefaultEsploraConfig(tag, cfg.RegtestURL)
		if err != nil {
			return nil, err
		}
		return chainclient.NewEsploraBitcoinClient(scfg), nil

	default:
		return nil, swaperr.Newf(swaperr.Generic,
			"unknown backend %q", cfg.Backend)
	}
}

// liquidBackend builds the configured chain client for a Liquid network.
func liquidBackend(ctx context.Context, cfg *config,
	tag chain.Chain) (chainclient.LiquidClient, error) {

	switch strings.ToLower(cfg.Backend) {
	case "electrum":
		ecfg, err := chainclient.DefaultElectrumConfig(tag, cfg.RegtestURL)
		if err != nil {
			return nil, err
		}
		return chainclient.NewElectrumLiquidClient(ctx, ecfg)

	case "esplora":
		scfg, err := chainclient.DefaultEsploraConfig(tag, cfg.RegtestURL)
		if err != nil {
			return nil, err
		}
		return chainclient.NewEsploraLiquidClient(scfg), nil

	default:
		return nil, swaperr.Newf(swaperr.Generic,
			"unknown backend %q", cfg.Backend)
	}
}

func emitBitcoin(ctx context.Context, client chainclient.BitcoinClient,
	tx *wire.MsgTx, broadcast bool) error {

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return swaperr.Wrap(swaperr.Generic,
			"failed to serialize transaction", err)
	}

	out := map[string]string{"hex": hex.EncodeToString(buf.Bytes())}
	if broadcast {
		txid, err := client.BroadcastTx(ctx, tx)
		if err != nil {
			return err
		}
		out["txid"] = txid.String()
	}
	printJSON(out)
	return nil
}

func emitLiquid(ctx context.Context, client chainclient.LiquidClient,
	tx interface{ ToHex() (string, error) }, broadcast bool) error {

	txHex, err := tx.ToHex()
	if err != nil {
		return swaperr.Wrap(swaperr.Generic,
			"failed to serialize transaction", err)
	}

	out := map[string]string{"hex": txHex}
	if broadcast {
		txid, err := client.BroadcastTx(ctx, txHex)
		if err != nil {
			return err
		}
		out["txid"] = txid
	}
	printJSON(out)
	return nil
}
