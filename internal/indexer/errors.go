package indexer

import (
	"errors"
	"fmt"

	"vaultScope/internal/model"
	"vaultScope/internal/storage"
)

var (
	ErrAddressRequired = errors.New("address is required")
	ErrInvalidAddress  = errors.New("invalid address format")
	ErrVaultNotFound   = errors.New("vault not found")
)

// FetchError is an upstream log fetch failure. It aborts the pass.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("log fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ScanFailure maps a pass-fatal error to its command result.
func ScanFailure(err error) model.Result {
	var fetchErr *FetchError
	switch {
	case errors.Is(err, ErrAddressRequired):
		return model.Failure(model.CodeScanAddressRequired, "Address is required.")
	case errors.Is(err, ErrInvalidAddress):
		return model.Failure(model.CodeScanInvalidAddress, err.Error())
	case errors.Is(err, ErrVaultNotFound):
		return model.Failure(model.CodeScanVaultNotFound, err.Error())
	case errors.As(err, &fetchErr):
		return model.Failure(model.CodeFetchFailed, "Log source returned error: "+fetchErr.Err.Error())
	default:
		return model.Failure(model.CodeVaultPersistFailed, err.Error())
	}
}

// ImportFailure maps an import error to its command result.
func ImportFailure(err error) model.Result {
	switch {
	case errors.Is(err, ErrAddressRequired):
		return model.Failure(model.CodeImportAddressRequired, "Address is required.")
	case errors.Is(err, ErrInvalidAddress):
		return model.Failure(model.CodeImportInvalidAddress, err.Error())
	case errors.Is(err, storage.ErrAlreadyExists):
		return model.Failure(model.CodeImportVaultExists, err.Error())
	default:
		return model.Failure(model.CodeImportFailed, err.Error())
	}
}
