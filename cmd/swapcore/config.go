package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
	"github.com/bullbitcoin/swapcore/chain"
	"github.com/bullbitcoin/swapcore/swaperr"
	"github.com/urfave/cli"
)

const (
	defaultConfigFilename = "swapcore.conf"
	defaultLogLevel       = "info"
	defaultBackend        = "electrum"
	defaultNetwork        = "testnet"
)

var (
	swapcoreHomeDir   = btcutil.AppDataDir("swapcore", false)
	defaultConfigFile = filepath.Join(swapcoreHomeDir, defaultConfigFilename)
	defaultDataDir    = swapcoreHomeDir
)

// config is the process configuration of the swapcore CLI. Values come from
// an optional INI file first and the command line's global flags second, so
// a flag always wins over the file.
type config struct {
	Network    string `long:"network" description:"Network to operate on: bitcoin, testnet, regtest, liquid, liquidtestnet, liquidregtest"`
	Backend    string `long:"backend" description:"Chain back-end: electrum or esplora"`
	RegtestURL string `long:"regtesturl" description:"Endpoint URL for regtest networks"`
	DataDir    string `long:"datadir" description:"Directory holding refund recovery files"`
	LogLevel   string `long:"loglevel" description:"Logging level: trace, debug, info, warn, error, critical"`
}

func defaultCfg() config {
	return config{
		Network:  defaultNetwork,
		Backend:  defaultBackend,
		DataDir:  defaultDataDir,
		LogLevel: defaultLogLevel,
	}
}

// loadConfig resolves the effective configuration for ctx: defaults, then
// the INI file (if present), then any explicitly set global flags.
func loadConfig(ctx *cli.Context) (*config, error) {
	cfg := defaultCfg()

	configFile := ctx.GlobalString("configfile")
	explicit := configFile != ""
	if configFile == "" {
		configFile = defaultConfigFile
	}
	configFile = cleanAndExpandPath(configFile)

	parser := flags.NewParser(&cfg, flags.IgnoreUnknown)
	err := flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		// A missing default config file is fine; a missing or broken
		// explicitly requested one is not.
		if explicit || !os.IsNotExist(err) {
			return nil, swaperr.Wrap(swaperr.Generic,
				"failed to parse config file", err)
		}
	}

	for flag, target := range map[string]*string{
		"network":    &cfg.Network,
		"backend":    &cfg.Backend,
		"regtesturl": &cfg.RegtestURL,
		"datadir":    &cfg.DataDir,
		"loglevel":   &cfg.LogLevel,
	} {
		if ctx.GlobalIsSet(flag) {
			*target = ctx.GlobalString(flag)
		}
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	return &cfg, nil
}

// chainTag maps the configured network name to its chain tag.
func (c *config) chainTag() (chain.Chain, error) {
	switch strings.ToLower(c.Network) {
	case "bitcoin", "mainnet":
		return chain.Bitcoin, nil
	case "testnet":
		return chain.BitcoinTestnet, nil
	case "regtest":
		return chain.BitcoinRegtest, nil
	case "liquid":
		return chain.Liquid, nil
	case "liquidtestnet":
		return chain.LiquidTestnet, nil
	case "liquidregtest":
		return chain.LiquidRegtest, nil
	default:
		return 0, swaperr.Newf(swaperr.Generic,
			"unknown network %q", c.Network)
	}
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(swapcoreHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
