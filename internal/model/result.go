package model

import "strings"

// Result codes reported by the import and scan commands.
const (
	CodeImportAddressRequired = 101
	CodeImportInvalidAddress  = 102
	CodeImportVaultExists     = 103
	CodeImportFailed          = 104

	CodeScanAddressRequired        = 201
	CodeScanInvalidAddress         = 202
	CodeScanVaultNotFound          = 203
	CodeUnknownTopic               = 204
	CodeDecodeError                = 205
	CodeFetchFailed                = 206
	CodeDepositShareholderMissing  = 207
	CodeWithdrawShareholderMissing = 208
	CodeVaultPersistFailed         = 209
	CodeLedgerPersistFailed        = 299
)

// Result is one human-readable outcome line of a command. Code 0 means success.
type Result struct {
	Message string
	Code    int
}

// Success builds a successful Result.
func Success(message string) Result {
	return Result{Message: message}
}

// Failure builds a failed Result with a non-zero code.
func Failure(code int, message string) Result {
	return Result{Message: message, Code: code}
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.Code == 0
}

// ExitCode returns the first non-zero code of results, or 0.
func ExitCode(results []Result) int {
	for _, r := range results {
		if r.Code != 0 {
			return r.Code
		}
	}
	return 0
}

// Summary joins result messages one per line.
func Summary(results []Result) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.Message)
	}
	return strings.Join(lines, "\n")
}
