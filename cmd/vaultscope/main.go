package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"vaultScope/internal/config"
	"vaultScope/internal/etherscan"
)

const rootLong = `Vault event log indexer.

Each result is printed as a SUCCESS or ERROR line and the process exits with the
first non-zero result code. Exit statuses are reduced modulo 256 by the OS, so a
persistence failure (299) reaches the shell as 43.`

func main() {
	root := &cobra.Command{
		Use:           "vaultscope",
		Short:         "Vault event log indexer",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc", "", "JSON-RPC URL")
	root.PersistentFlags().String("db-driver", config.DriverSQLite, "repository driver (postgres, sqlite)")
	root.PersistentFlags().String("db-dsn", "./data/vaultscope.db", "Postgres DSN or SQLite file path")
	root.PersistentFlags().Int("max-retries", 5, "maximum retry attempts for chain calls")
	root.PersistentFlags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("sentry-dsn", "", "Sentry DSN for error reporting")

	addCmd := &cobra.Command{
		Use:   "add-vault <address>",
		Short: "Add a new vault to scan event logs",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAddVault,
	}
	root.AddCommand(addCmd)

	scanCmd := &cobra.Command{
		Use:   "scan-vault <address>",
		Short: "Scan the event log of a vault and extract new data",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScanVault,
	}
	addLogSourceFlags(scanCmd.Flags())
	root.AddCommand(scanCmd)

	scanAllCmd := &cobra.Command{
		Use:   "scan-all",
		Short: "Scan every stored vault",
		Args:  cobra.NoArgs,
		RunE:  runScanAll,
	}
	addLogSourceFlags(scanAllCmd.Flags())
	scanAllCmd.Flags().Int("concurrency", 4, "vaults scanned in parallel")
	root.AddCommand(scanAllCmd)

	syncdCmd := &cobra.Command{
		Use:   "syncd",
		Short: "Keep stored vaults in sync from live Deposit and Withdraw logs",
		Args:  cobra.NoArgs,
		RunE:  runSyncd,
	}
	syncdCmd.Flags().String("ws", "", "WebSocket RPC URL for subscriptions (defaults to --rpc)")
	syncdCmd.Flags().String("metrics-addr", ":9100", "Prometheus metrics listen address (empty disables)")
	root.AddCommand(syncdCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().String("listen", ":8080", "API listen address")
	serveCmd.Flags().String("metrics-addr", ":9100", "Prometheus metrics listen address (empty disables)")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "ERROR: "+err.Error())
		os.Exit(1)
	}
}

func addLogSourceFlags(flags *pflag.FlagSet) {
	flags.String("log-source", config.SourceEtherscan, "log source (etherscan, rpc)")
	flags.String("etherscan-url", etherscan.DefaultBaseURL, "Etherscan-compatible API URL")
	flags.String("etherscan-api-key", "", "Etherscan API key (or ETHERSCAN_API_KEY)")
	flags.Int("page-size", etherscan.DefaultPageSize, "logs per API page")
	flags.Int("result-window", etherscan.DefaultResultWindow, "maximum page*offset accepted by the API; must be a multiple of page-size")
	flags.Duration("http-timeout", 10*time.Second, "HTTP request timeout")
	flags.Duration("pass-timeout", 5*time.Minute, "deadline of one reconciliation pass (0 disables)")
	flags.Uint64("rpc-batch-size", 2000, "blocks per eth_getLogs request for the rpc log source")
	flags.String("journal", "", "JSONL file receiving undecodable logs (empty disables)")
}
