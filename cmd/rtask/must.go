// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/beevik/ntp"
	"github.com/elastic/gosigar"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/fdlimit"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/rtask/rtask/checkout"
	"github.com/rtask/rtask/co"
	"github.com/rtask/rtask/genesis"
	"github.com/rtask/rtask/ledgerdb"
	"github.com/rtask/rtask/log"
	"github.com/rtask/rtask/lvldb"
	"github.com/rtask/rtask/metrics"
	"github.com/rtask/rtask/rtask"
)

func fatal(args ...interface{}) {
	var w io.Writer
	if runtime.GOOS == "windows" {
		// The SameFile check below doesn't work on Windows.
		// stdout is unlikely to get redirected though, so just print there.
		w = os.Stdout
	} else {
		outf, _ := os.Stdout.Stat()
		errf, _ := os.Stderr.Stat()
		if outf != nil && errf != nil && os.SameFile(outf, errf) {
			w = os.Stderr
		} else {
			w = io.MultiWriter(os.Stdout, os.Stderr)
		}
	}
	fmt.Fprint(w, "Fatal: ")
	fmt.Fprintln(w, args...)
	os.Exit(1)
}

func initLogger(ctx *cli.Context) *slog.LevelVar {
	logLevel := log.FromLegacyLevel(ctx.Int(verbosityFlag.Name))
	verbosity := new(slog.LevelVar)
	verbosity.Set(logLevel)

	output := io.Writer(os.Stdout)
	var handler slog.Handler
	if ctx.Bool(jsonLogsFlag.Name) {
		handler = log.JSONHandlerWithLevel(output, verbosity)
	} else {
		useColor := isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("TERM") != "dumb"
		handler = log.NewTerminalHandlerWithLevel(output, verbosity, useColor)
	}
	log.SetDefault(log.NewLogger(handler))
	return verbosity
}

// selectGenesis loads the allocation file named by --genesis, or returns nil
// when the node starts with an empty ledger.
func selectGenesis(ctx *cli.Context) *genesis.Genesis {
	path := ctx.String(genesisFlag.Name)
	if path == "" {
		return nil
	}
	gene, err := genesis.LoadCustomNet(path)
	if err != nil {
		fatal(fmt.Sprintf("load genesis file [%v]: %v", path, err))
	}
	return gene
}

func makeDataDir(ctx *cli.Context) string {
	dataDir := ctx.String(dataDirFlag.Name)
	if dataDir == "" {
		fatal(fmt.Sprintf("unable to infer default data dir, use -%s to specify", dataDirFlag.Name))
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		fatal(fmt.Sprintf("create data dir [%v]: %v", dataDir, err))
	}
	return dataDir
}

func openMainDB(ctx *cli.Context, dataDir string) *lvldb.LevelDB {
	cacheMB := normalizeCacheSize(ctx.Int(cacheFlag.Name))
	logger.Debug("cache size(MB)", "size", cacheMB)

	// Ensure Go's GC ignores the database cache for trigger percentage
	gogc := math.Max(20, math.Min(100, 100/(float64(cacheMB)/1024)))

	logger.Debug("sanitize Go's GC trigger", "percent", int(gogc))
	debug.SetGCPercent(int(gogc))

	fdCache := suggestFDCache()
	logger.Debug("fd cache", "n", fdCache)

	dir := filepath.Join(dataDir, "main.db")
	db, err := lvldb.New(dir, lvldb.Options{
		CacheSize:              cacheMB / 2,
		OpenFilesCacheCapacity: fdCache,
	})
	if err != nil {
		fatal(fmt.Sprintf("open main database [%v]: %v", dir, err))
	}
	return db
}

func normalizeCacheSize(sizeMB int) int {
	if sizeMB < 128 {
		sizeMB = 128
	}

	var mem gosigar.Mem
	if err := mem.Get(); err != nil {
		logger.Warn("failed to get total mem:", "err", err)
	} else {
		// limit to 1/2 os physical ram
		limitMB := int(mem.Total / 1024 / 1024 / 2)
		if sizeMB > limitMB {
			sizeMB = limitMB
			logger.Warn("cache size(MB) limited", "limit", limitMB)
		}
	}
	return sizeMB
}

func suggestFDCache() int {
	limit, err := fdlimit.Current()
	if err != nil {
		fatal("failed to get fd limit:", err)
	}
	if limit <= 1024 {
		logger.Warn("low fd limit, increase it if possible", "limit", limit)
	}

	n := limit / 2
	if n > 5120 {
		return 5120
	}
	return n
}

func openLedgerDB(dataDir string) *ledgerdb.LedgerDB {
	path := filepath.Join(dataDir, "ledger.db")
	db, err := ledgerdb.New(path)
	if err != nil {
		fatal(fmt.Sprintf("open ledger database [%v]: %v", path, err))
	}
	return db
}

func openMemMainDB() *lvldb.LevelDB {
	db, err := lvldb.NewMem()
	if err != nil {
		fatal(fmt.Sprintf("open main database: %v", err))
	}
	return db
}

func openMemLedgerDB() *ledgerdb.LedgerDB {
	db, err := ledgerdb.NewMem()
	if err != nil {
		fatal(fmt.Sprintf("open ledger database: %v", err))
	}
	return db
}

func seedAmount(ctx *cli.Context) decimal.Decimal {
	value := ctx.String(devWalletFlag.Name)
	if value == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		fatal(fmt.Sprintf("parse -%s [%v]: %v", devWalletFlag.Name, value, err))
	}
	return amount
}

func defaultDevSeed() decimal.Decimal {
	return decimal.NewFromInt(rtask.DefaultDevWallet)
}

// makeCheckoutProvider wires the sandbox payment provider when a webhook
// secret is configured; without one every checkout endpoint reports 501.
func makeCheckoutProvider(ctx *cli.Context) checkout.Provider {
	secret := ctx.String(checkoutSecretFlag.Name)
	if secret == "" {
		return nil
	}
	return checkout.NewSandbox(secret, "http://"+ctx.String(apiAddrFlag.Name))
}

func startAPIServer(ctx *cli.Context, handler http.Handler) (string, func(), error) {
	addr := ctx.String(apiAddrFlag.Name)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, errors.Wrapf(err, "listen API addr [%v]", addr)
	}
	srv := &http.Server{Handler: handler}
	var goes co.Goes
	goes.Go(func() {
		srv.Serve(listener)
	})
	return "http://" + listener.Addr().String() + "/", func() {
		srv.Close()
		goes.Wait()
	}, nil
}

func startMetricsServer(addr string) (string, func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, errors.Wrapf(err, "listen metrics API addr [%v]", addr)
	}

	router := mux.NewRouter()
	router.PathPrefix("/metrics").Handler(metrics.HTTPHandler())
	handler := handlers.CompressHandler(router)

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: time.Second, ReadTimeout: 5 * time.Second}
	var goes co.Goes
	goes.Go(func() {
		srv.Serve(listener)
	})
	return "http://" + listener.Addr().String() + "/metrics", func() {
		srv.Close()
		goes.Wait()
	}, nil
}

func checkClockOffset() {
	resp, err := ntp.Query("pool.ntp.org")
	if err != nil {
		logger.Debug("failed to access NTP", "err", err)
		return
	}
	if resp.ClockOffset > 5*time.Second || resp.ClockOffset < -5*time.Second {
		logger.Warn("clock offset detected", "offset", common.PrettyDuration(resp.ClockOffset))
	}
}

func handleExitSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		exitSignalCh := make(chan os.Signal, 1)
		signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)

		sig := <-exitSignalCh
		logger.Info("exit signal received", "signal", sig)
		cancel()
	}()
	return ctx
}

func printStartupMessage(gene *genesis.Genesis, dataDir string, apiURL string) {
	geneName := "none"
	if gene != nil {
		geneName = gene.Name()
	}
	fmt.Printf(`Starting %v
    Version      [ %v ]
    Genesis      [ %v ]
    Data dir     [ %v ]
    API portal   [ %v ]
`,
		"RTask",
		fullVersion(),
		geneName,
		dataDir,
		apiURL)
}

func printDevStartupMessage(gene *genesis.Genesis, dataDir string, apiURL string) {
	tableHead := `
┌──────────────────────────┬──────────────┬──────────────────┐
│         Session          │   Balance    │      Roles       │`
	tableContent := `
├──────────────────────────┼──────────────┼──────────────────┤
│ %-24v │ %-12v │ %-16v │`
	tableEnd := `
└──────────────────────────┴──────────────┴──────────────────┘`

	info := fmt.Sprintf(`Starting %v
    Version     [ %v ]
    Genesis     [ %v ]
    Data dir    [ %v ]
    API portal  [ %v ]`,
		"RTask dev",
		fullVersion(),
		gene.Name(),
		dataDir,
		apiURL)

	info += tableHead

	for _, a := range gene.Accounts() {
		roles := ""
		for i, r := range a.Roles {
			if i > 0 {
				roles += ","
			}
			roles += r
		}
		info += fmt.Sprintf(tableContent, a.SessionID, a.Balance, roles)
	}
	info += tableEnd + "\r\n"

	fmt.Print(info)
}

// copied from go-ethereum
func defaultDataDir() string {
	// Try to place the data folder in the user's home dir
	if home := homeDir(); home != "" {
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, "Library", "Application Support", "org.rtask")
		case "windows":
			return filepath.Join(home, "AppData", "Roaming", "RTask")
		default:
			return filepath.Join(home, ".rtask")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
