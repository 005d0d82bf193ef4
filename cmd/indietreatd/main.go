package main

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	logging "github.com/ipfs/go-log/v2"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"

	"github.com/indietreat/indietreat/go/bank"
	"github.com/indietreat/indietreat/go/checkout"
	"github.com/indietreat/indietreat/go/config"
	checkouthttp "github.com/indietreat/indietreat/go/http"
	"github.com/indietreat/indietreat/go/ledger"
	"github.com/indietreat/indietreat/go/token"
)

var log = logging.Logger("indietreatd")

const (
	FlagRepo        = "repo"
	FlagDefaultRepo = "~/.indietreat"
	configFile      = "config.toml"
)

func main() {
	app := &cli.App{
		Name:  "indietreatd",
		Usage: "IndieTreat checkout daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    FlagRepo,
				Usage:   "repo directory for the checkout daemon",
				EnvVars: []string{"INDIETREAT_PATH"},
				Value:   FlagDefaultRepo,
			},
			&cli.BoolFlag{
				Name:  "vv",
				Usage: "enable debug logging",
			},
		},
		Before: func(cctx *cli.Context) error {
			level := "INFO"
			if cctx.Bool("vv") {
				level = "DEBUG"
			}
			_ = logging.SetLogLevel("indietreatd", level)
			_ = logging.SetLogLevel("checkout-http", level)
			return nil
		},
		Commands: []*cli.Command{
			initCmd,
			runCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "initialize the repo directory with a default config",
	Action: func(cctx *cli.Context) error {
		repo, err := homedir.Expand(cctx.String(FlagRepo))
		if err != nil {
			return err
		}
		if err := os.MkdirAll(repo, 0o755); err != nil {
			return err
		}

		path := filepath.Join(repo, configFile)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}

		data, err := config.Bytes(config.Default())
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		log.Infof("wrote default config to %s", path)
		return nil
	},
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "serve the checkout API",
	Action: func(cctx *cli.Context) error {
		repo, err := homedir.Expand(cctx.String(FlagRepo))
		if err != nil {
			return err
		}

		cfg, err := config.Load(filepath.Join(repo, configFile))
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		led := ledger.NewInMemoryLedger()
		logEvents := checkout.WithAfterPurchaseHook(func(pc checkout.PurchaseResultContext) error {
			log.Infow("purchase made",
				"store", pc.Event.StoreID,
				"purchase", pc.Event.PurchaseID,
				"amount", pc.Event.Amount.String(),
				"wallet", pc.Event.Wallet,
			)
			return nil
		})

		var server *checkouthttp.Server
		switch cfg.Variant {
		case config.VariantNative:
			co, err := checkout.NewNativeCheckout(led, bank.NewInMemoryBank(), logEvents)
			if err != nil {
				return err
			}
			server = checkouthttp.NewNativeServer(co)

		case config.VariantToken:
			tok, err := token.New(cfg.Token.Name, big.NewInt(cfg.Token.ChainID), cfg.Token.Address)
			if err != nil {
				return err
			}
			if cfg.Token.Premint > 0 {
				if err := tok.Mint(cctx.Context, cfg.Token.Minter, big.NewInt(cfg.Token.Premint)); err != nil {
					return err
				}
			}
			co, err := checkout.NewTokenCheckout(led, tok, cfg.Checkout.Spender, logEvents)
			if err != nil {
				return err
			}
			server = checkouthttp.NewTokenServer(co)
		}

		log.Infow("starting checkout daemon", "variant", cfg.Variant, "listen", cfg.Listen)
		return server.Run(cfg.Listen)
	},
}
