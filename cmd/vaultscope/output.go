package main

import (
	"fmt"
	"io"

	"vaultScope/internal/indexer"
	"vaultScope/internal/model"
)

// exitError carries a non-zero process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// report prints one line per result and returns the first non-zero code as an exitError.
func report(w io.Writer, results []model.Result) error {
	for _, r := range results {
		if r.OK() {
			fmt.Fprintln(w, "SUCCESS: "+r.Message)
		} else {
			fmt.Fprintln(w, "ERROR: "+r.Message)
		}
	}
	if code := model.ExitCode(results); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// reportScans prints the results of every vault of a scan-all run, grouped by vault.
func reportScans(w io.Writer, scans []indexer.VaultScan) error {
	var first error
	for _, scan := range scans {
		fmt.Fprintf(w, "== %s (%s)\n", scan.Name, scan.Vault)
		results := scan.Results
		if scan.Err != nil {
			results = append(results, indexer.ScanFailure(scan.Err))
		}
		if err := report(w, results); err != nil && first == nil {
			first = err
		}
	}
	return first
}
