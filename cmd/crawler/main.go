// Command crawler runs the network crawler either as a single pass or as a
// continuously scheduled loop, per spec.md §2's periodic-scheduler
// collaborator. Entrypoint shape follows the teacher's cmd/utils/flags.go
// CLI-flags-into-config-struct idiom, translated onto urfave/cli/v2.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dingocoin/dingocoin-nodes-map/internal/chainconfig"
	"github.com/dingocoin/dingocoin-nodes-map/internal/geoip"
	"github.com/dingocoin/dingocoin-nodes-map/internal/nodestore"
	"github.com/dingocoin/dingocoin-nodes-map/internal/pass"
	"github.com/dingocoin/dingocoin-nodes-map/internal/rpcclient"
	"github.com/dingocoin/dingocoin-nodes-map/log"
)

func main() {
	app := &cli.App{
		Name:  "crawler",
		Usage: "crawl a blockchain gossip network and snapshot reachable nodes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to config.yaml"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, error"},
			&cli.BoolFlag{Name: "once", Usage: "run a single pass and exit instead of looping"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	log.Configure(cliCtx.String("log-level"))

	doc, env, err := chainconfig.Load(cliCtx.String("config"))
	if err != nil {
		return err
	}

	store, err := nodestore.Open(env.NodeDBPath, 64, 64)
	if err != nil {
		return fmt.Errorf("open node store: %w", err)
	}
	defer store.Close()

	var geoLookup geoip.GeoLookup
	if env.GeoIPDBPath != "" {
		opened, err := geoip.Open(env.GeoIPDBPath, env.GeoIPASNDBPath)
		if err != nil {
			log.Warnw("geoip disabled", "error", err)
		} else {
			geoLookup = opened
			defer opened.Close()
		}
	}

	var rpc rpcclient.RPCClient
	if env.RPC.Enabled() {
		rpc = rpcclient.New(env.RPC.Host, env.RPC.Port, env.RPC.User, env.RPC.Pass)
	}

	ctrl := &pass.Controller{
		Chain:   &doc.ChainConfig,
		Crawler: &doc.CrawlerConfig,
		Env:     env,
		Store:   store,
		Geo:     geoLookup,
		RPC:     rpc,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cliCtx.Bool("once") {
		return ctrl.RunSinglePass(ctx)
	}
	return loop(ctx, ctrl, doc.CrawlerConfig.IntervalMinutes)
}

// loop invokes RunSinglePass every intervalMinutes, recovering from any
// pass-level failure without crashing the process (spec.md §7 "Pass-level
// failure").
func loop(ctx context.Context, ctrl *pass.Controller, intervalMinutes int) error {
	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	runPass(ctx, ctrl)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runPass(ctx, ctrl)
		}
	}
}

func runPass(ctx context.Context, ctrl *pass.Controller) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("pass panicked", "recovered", r)
		}
	}()
	if err := ctrl.RunSinglePass(ctx); err != nil {
		log.Errorw("pass failed", "error", err)
	}
}
