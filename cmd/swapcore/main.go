package main

import (
	"fmt"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/bullbitcoin/swapcore/chainclient"
	"github.com/bullbitcoin/swapcore/liquidswap"
	"github.com/bullbitcoin/swapcore/swaptx"
	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[swapcore] %v\n", err)
	os.Exit(1)
}

// setupLogging wires every library subsystem to a single stderr backend at
// the configured level.
func setupLogging(levelStr string) error {
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		return fmt.Errorf("unknown log level %q", levelStr)
	}

	backend := btclog.NewBackend(os.Stderr)

	for tag, use := range map[string]func(btclog.Logger){
		"CHCL": chainclient.UseLogger,
		"SWTX": swaptx.UseLogger,
		"LQSW": liquidswap.UseLogger,
	} {
		logger := backend.Logger(tag)
		logger.SetLevel(level)
		use(logger)
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "swapcore"
	app.Version = "0.1.0"
	app.Usage = "build, sign, and recover Boltz atomic-swap transactions"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "configfile, C",
			Usage: "path to an INI configuration file",
		},
		cli.StringFlag{
			Name:  "network",
			Value: defaultNetwork,
			Usage: "network to operate on: bitcoin, testnet, regtest, " +
				"liquid, liquidtestnet, liquidregtest",
		},
		cli.StringFlag{
			Name:  "backend",
			Value: defaultBackend,
			Usage: "chain back-end: electrum or esplora",
		},
		cli.StringFlag{
			Name:  "regtesturl",
			Usage: "endpoint URL for regtest networks",
		},
		cli.StringFlag{
			Name:  "datadir",
			Value: defaultDataDir,
			Usage: "directory holding refund recovery files",
		},
		cli.StringFlag{
			Name:  "loglevel",
			Value: defaultLogLevel,
			Usage: "logging level: trace, debug, info, warn, error, critical",
		},
	}
	app.Commands = []cli.Command{
		preimageCommand,
		scriptCommand,
		utxosCommand,
		claimCommand,
		refundCommand,
		recoverCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
