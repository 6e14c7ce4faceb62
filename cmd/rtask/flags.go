// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	cli "gopkg.in/urfave/cli.v1"

	"github.com/rtask/rtask/log"
	"github.com/rtask/rtask/rtask"
)

var (
	genesisFlag = cli.StringFlag{
		Name:  "genesis",
		Usage: "path to a YAML genesis file with the initial wallet allocation",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Value: defaultDataDir(),
		Usage: "directory for task and ledger databases",
	}
	cacheFlag = cli.IntFlag{
		Name:  "cache",
		Value: 1024,
		Usage: "megabytes of ram allocated to the store cache",
	}
	apiAddrFlag = cli.StringFlag{
		Name:  "api-addr",
		Value: "localhost:8008",
		Usage: "API service listening address",
	}
	apiCorsFlag = cli.StringFlag{
		Name:  "api-cors",
		Value: "",
		Usage: "comma separated list of domains from which to accept cross origin requests to API",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Value: log.LegacyLevelInfo,
		Usage: "log verbosity (0-5)",
	}
	jsonLogsFlag = cli.BoolFlag{
		Name:  "json-logs",
		Usage: "output logs in JSON format",
	}
	pprofFlag = cli.BoolFlag{
		Name:  "pprof",
		Usage: "turn on go-pprof",
	}
	enableAPILogsFlag = cli.BoolFlag{
		Name:  "enable-api-logs",
		Usage: "enables API requests logging",
	}
	enableMetricsFlag = cli.BoolFlag{
		Name:  "enable-metrics",
		Usage: "enables metrics collection",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Value: "localhost:2112",
		Usage: "metrics service listening address",
	}
	enableAdminFlag = cli.BoolFlag{
		Name:  "enable-admin",
		Usage: "enables admin server",
	}
	adminAddrFlag = cli.StringFlag{
		Name:  "admin-addr",
		Value: "localhost:2113",
		Usage: "admin service listening address",
	}

	workerTimeoutFlag = cli.DurationFlag{
		Name:   "worker-timeout",
		EnvVar: "WORKER_TIMEOUT",
		Value:  rtask.DefaultWorkerTimeout,
		Usage:  "how long after the last heartbeat a worker still counts as online",
	}
	leaseTTLFlag = cli.DurationFlag{
		Name:   "lease-ttl",
		EnvVar: "LEASE_TTL",
		Value:  rtask.DefaultLeaseTTL,
		Usage:  "how long a bucket lease stays valid without renewal",
	}
	maxBucketsFlag = cli.IntFlag{
		Name:   "default-max-buckets",
		EnvVar: "DEFAULT_MAX_BUCKETS",
		Value:  rtask.DefaultMaxBuckets,
		Usage:  "default upper bound of buckets planned per task",
	}
	bucketBytesFlag = cli.Int64Flag{
		Name:   "default-bucket-bytes",
		EnvVar: "DEFAULT_BUCKET_BYTES",
		Value:  rtask.DefaultBucketBytes,
		Usage:  "default byte capacity of a single bucket",
	}
	feePercentFlag = cli.IntFlag{
		Name:   "platform-fee-percent",
		EnvVar: "PLATFORM_FEE_PERCENT",
		Value:  rtask.DefaultPlatformFeePercent,
		Usage:  "platform's cut of each bucket payout (0-100)",
	}
	disableBudgetChecksFlag = cli.BoolFlag{
		Name:   "disable-budget-checks",
		EnvVar: "DISABLE_BUDGET_CHECKS",
		Usage:  "hand out buckets without enforcing task budgets",
	}
	sandboxFlag = cli.BoolFlag{
		Name:   "wallet-sandbox",
		EnvVar: "WALLET_SANDBOX_ENABLED",
		Usage:  "permit manual wallet deposits and withdrawals",
	}
	devWalletFlag = cli.StringFlag{
		Name:   "dev-initial-wallet",
		EnvVar: "DEV_INITIAL_WALLET",
		Usage:  "seed balance credited to first-seen sessions, sandbox only",
	}
	checkoutSecretFlag = cli.StringFlag{
		Name:   "checkout-secret",
		EnvVar: "CHECKOUT_WEBHOOK_SECRET",
		Usage:  "webhook secret enabling the sandbox payment provider",
	}

	// dev mode only flags
	persistFlag = cli.BoolFlag{
		Name:  "persist",
		Usage: "marketplace data storage option, if set data will be saved to disk",
	}
	devDisableBudgetChecksFlag = cli.BoolTFlag{
		Name:   "disable-budget-checks",
		EnvVar: "DISABLE_BUDGET_CHECKS",
		Usage:  "hand out buckets without enforcing task budgets",
	}
	devSandboxFlag = cli.BoolTFlag{
		Name:   "wallet-sandbox",
		EnvVar: "WALLET_SANDBOX_ENABLED",
		Usage:  "permit manual wallet deposits and withdrawals",
	}
)
