// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"net/http"
	"os"
	"sync/atomic"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/rtask/rtask/api"
	"github.com/rtask/rtask/dispatch"
	"github.com/rtask/rtask/genesis"
	"github.com/rtask/rtask/health"
	"github.com/rtask/rtask/heartbeat"
	"github.com/rtask/rtask/ledger"
	"github.com/rtask/rtask/ledgerdb"
	"github.com/rtask/rtask/log"
	"github.com/rtask/rtask/lvldb"
	"github.com/rtask/rtask/metrics"
	"github.com/rtask/rtask/store"
)

var (
	version   string
	gitCommit string
	gitTag    string

	logger = log.WithContext("pkg", "main")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "RTask",
		Usage:     "Node of the RTask compute marketplace",
		Copyright: "2025 The RTask developers",
		Flags: []cli.Flag{
			genesisFlag,
			dataDirFlag,
			cacheFlag,
			apiAddrFlag,
			apiCorsFlag,
			verbosityFlag,
			jsonLogsFlag,
			pprofFlag,
			enableAPILogsFlag,
			enableMetricsFlag,
			metricsAddrFlag,
			enableAdminFlag,
			adminAddrFlag,
			workerTimeoutFlag,
			leaseTTLFlag,
			maxBucketsFlag,
			bucketBytesFlag,
			feePercentFlag,
			disableBudgetChecksFlag,
			sandboxFlag,
			devWalletFlag,
			checkoutSecretFlag,
		},
		Action: defaultAction,
		Commands: []cli.Command{
			{
				Name:  "dev",
				Usage: "RTask server for test & dev",
				Flags: []cli.Flag{
					dataDirFlag,
					cacheFlag,
					apiAddrFlag,
					apiCorsFlag,
					verbosityFlag,
					jsonLogsFlag,
					pprofFlag,
					enableAPILogsFlag,
					enableMetricsFlag,
					metricsAddrFlag,
					enableAdminFlag,
					adminAddrFlag,
					workerTimeoutFlag,
					leaseTTLFlag,
					maxBucketsFlag,
					bucketBytesFlag,
					feePercentFlag,
					devDisableBudgetChecksFlag,
					devSandboxFlag,
					devWalletFlag,
					checkoutSecretFlag,
					persistFlag,
				},
				Action: devAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAction(ctx *cli.Context) error {
	defer func() { logger.Info("exited") }()

	logLevel := initLogger(ctx)
	logger.Info("starting rtask node", "version", fullVersion())

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
		url, closeFunc, err := startMetricsServer(ctx.String(metricsAddrFlag.Name))
		if err != nil {
			return err
		}
		logger.Info("metrics server started", "url", url)
		defer closeFunc()
	}

	gene := selectGenesis(ctx)
	dataDir := makeDataDir(ctx)

	mainDB := openMainDB(ctx, dataDir)
	defer func() { logger.Info("closing main database..."); mainDB.Close() }()

	ledgerDB := openLedgerDB(dataDir)
	defer func() { logger.Info("closing ledger database..."); ledgerDB.Close() }()

	n, err := makeNode(ctx, mainDB, ledgerDB, dataDir, ledger.Options{
		SeedAmount:     seedAmount(ctx),
		SandboxEnabled: ctx.Bool(sandboxFlag.Name),
	})
	if err != nil {
		return err
	}
	defer n.Close()

	if gene != nil {
		if err := gene.Seed(n.led); err != nil {
			return err
		}
		logger.Info("genesis applied", "name", gene.Name(), "accounts", len(gene.Accounts()))
	}

	apiURL, srvClose, err := startAPIServer(ctx, n.handler(ctx))
	if err != nil {
		return err
	}
	defer func() { logger.Info("stopping API server..."); srvClose() }()

	if ctx.Bool(enableAdminFlag.Name) {
		url, closeFunc, err := api.NewAdmin(ctx.String(adminAddrFlag.Name), logLevel, n.logRequests, n.health).Start()
		if err != nil {
			return err
		}
		logger.Info("admin server started", "url", url)
		defer closeFunc()
	}

	go checkClockOffset()
	printStartupMessage(gene, dataDir, apiURL)

	<-handleExitSignal().Done()
	return nil
}

func devAction(ctx *cli.Context) error {
	defer func() { logger.Info("exited") }()

	logLevel := initLogger(ctx)

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
		url, closeFunc, err := startMetricsServer(ctx.String(metricsAddrFlag.Name))
		if err != nil {
			return err
		}
		logger.Info("metrics server started", "url", url)
		defer closeFunc()
	}

	gene := genesis.NewDevnet(seedAmount(ctx))

	var mainDB *lvldb.LevelDB
	var ledgerDB *ledgerdb.LedgerDB
	var dataDir string

	if ctx.Bool(persistFlag.Name) {
		dataDir = makeDataDir(ctx)
		mainDB = openMainDB(ctx, dataDir)
		ledgerDB = openLedgerDB(dataDir)
	} else {
		dir, err := os.MkdirTemp("", "rtask-dev-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		dataDir = dir
		mainDB = openMemMainDB()
		ledgerDB = openMemLedgerDB()
	}
	defer func() { logger.Info("closing main database..."); mainDB.Close() }()
	defer func() { logger.Info("closing ledger database..."); ledgerDB.Close() }()

	seed := seedAmount(ctx)
	if !seed.IsPositive() {
		seed = defaultDevSeed()
	}
	n, err := makeNode(ctx, mainDB, ledgerDB, dataDir, ledger.Options{
		SeedAmount:     seed,
		SandboxEnabled: ctx.Bool(devSandboxFlag.Name),
	})
	if err != nil {
		return err
	}
	defer n.Close()

	if err := gene.Seed(n.led); err != nil {
		return err
	}

	apiURL, srvClose, err := startAPIServer(ctx, n.handler(ctx))
	if err != nil {
		return err
	}
	defer func() { logger.Info("stopping API server..."); srvClose() }()

	if ctx.Bool(enableAdminFlag.Name) {
		url, closeFunc, err := api.NewAdmin(ctx.String(adminAddrFlag.Name), logLevel, n.logRequests, n.health).Start()
		if err != nil {
			return err
		}
		logger.Info("admin server started", "url", url)
		defer closeFunc()
	}

	go checkClockOffset()
	printDevStartupMessage(gene, dataDir, apiURL)

	<-handleExitSignal().Done()
	return nil
}

// node bundles the wired marketplace engine behind one close chain.
type node struct {
	store       *store.Store
	led         *ledger.Ledger
	beats       *heartbeat.Monitor
	disp        *dispatch.Dispatcher
	health      *health.Health
	logRequests *atomic.Bool
}

func makeNode(ctx *cli.Context, mainDB *lvldb.LevelDB, ledgerDB *ledgerdb.LedgerDB, dataDir string, ledOpts ledger.Options) (*node, error) {
	st, err := store.New(mainDB, dataDir, store.Options{
		ItemsCacheSize: ctx.Int(cacheFlag.Name) / 16,
	})
	if err != nil {
		return nil, err
	}

	led := ledger.New(st, ledgerDB, ledOpts)
	beats := heartbeat.New(ctx.Duration(workerTimeoutFlag.Name))
	disp := dispatch.New(st, led, beats, dispatch.Options{
		LeaseTTL:            ctx.Duration(leaseTTLFlag.Name),
		DefaultMaxBuckets:   ctx.Int(maxBucketsFlag.Name),
		DefaultBucketBytes:  ctx.Int64(bucketBytesFlag.Name),
		PlatformFeePercent:  ctx.Int(feePercentFlag.Name),
		DisableBudgetChecks: ctx.Bool(disableBudgetChecksFlag.Name),
	})

	logRequests := new(atomic.Bool)
	logRequests.Store(ctx.Bool(enableAPILogsFlag.Name))

	return &node{
		store:       st,
		led:         led,
		beats:       beats,
		disp:        disp,
		health:      health.New(st, disp, 0),
		logRequests: logRequests,
	}, nil
}

func (n *node) handler(ctx *cli.Context) http.Handler {
	return api.New(n.disp, n.led, n.beats, n.health, makeCheckoutProvider(ctx), api.Options{
		AllowedOrigins: ctx.String(apiCorsFlag.Name),
		PprofOn:        ctx.Bool(pprofFlag.Name),
		EnableMetrics:  ctx.Bool(enableMetricsFlag.Name),
		LogRequests:    n.logRequests,
	})
}

func (n *node) Close() {
	logger.Info("closing dispatcher...")
	n.disp.Close()
	n.beats.Close()
}
