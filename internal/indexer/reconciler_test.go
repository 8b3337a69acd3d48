package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultScope/internal/etherscan"
	"vaultScope/internal/model"
)

func newTestReconciler(t *testing.T, lastUpdateBlock uint64, fetcher *fakeFetcher, reader *fakeReader) (*Reconciler, model.Vault, *memoryJournal) {
	t.Helper()
	repo := newRepo(t)
	v := seedVault(t, repo, lastUpdateBlock)
	journal := &memoryJournal{}
	r := NewReconciler(ReconcilerConfig{}, repo, fetcher, reader, newDecoder(t), journal, nil, nil)
	return r, v, journal
}

func TestScanVaultDepositIsIdempotent(t *testing.T) {
	b := newLogBuilder(t)
	deposit := b.deposit(alice, 101, 2, 1000, 990)
	fetcher := &fakeFetcher{logs: []model.LogRecord{
		b.whitelist(alice, 100, 0),
		deposit,
		deposit,
	}}
	reader := newFakeReader(120)
	r, v, _ := newTestReconciler(t, 90, fetcher, reader)
	ctx := context.Background()

	results, err := r.ScanVault(ctx, testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0}, codes(results))
	assert.Contains(t, results[2].Message, "Skipping duplicate Deposit event")

	// A second pass over an overlapping range changes nothing.
	results, err = r.ScanVault(ctx, testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, 0, model.ExitCode(results))

	sh, err := r.repo.FindShareholder(ctx, v.ID, alice.Hex())
	require.NoError(t, err)
	txs, err := r.repo.ListShareholderTransactions(ctx, sh.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TxKindDeposit, txs[0].Kind)
	assert.Equal(t, "1000", txs[0].Assets)
	assert.Equal(t, "990", txs[0].Shares)
	assert.Equal(t, int64(1700000101), txs[0].Timestamp.Unix())
	assert.Equal(t, []uint64{90, 120}, fetcher.froms)
}

func TestScanVaultOrdersLogsBeforeApplying(t *testing.T) {
	b := newLogBuilder(t)
	// Delivered out of chain order: the deposit at N+1 precedes the whitelist at N.
	fetcher := &fakeFetcher{logs: []model.LogRecord{
		b.deposit(alice, 101, 0, 500, 500),
		b.whitelist(alice, 100, 0),
	}}
	r, v, _ := newTestReconciler(t, 90, fetcher, newFakeReader(101))

	results, err := r.ScanVault(context.Background(), testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, codes(results))
	assert.Contains(t, results[0].Message, "WhitelistShareholder event handled")
	assert.Contains(t, results[1].Message, "Deposit event handled")

	sh, err := r.repo.FindShareholder(context.Background(), v.ID, alice.Hex())
	require.NoError(t, err)
	txs, err := r.repo.ListShareholderTransactions(context.Background(), sh.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestScanVaultMissingShareholderIsIntegrityError(t *testing.T) {
	b := newLogBuilder(t)
	fetcher := &fakeFetcher{logs: []model.LogRecord{
		b.deposit(bob, 100, 0, 10, 10),
		b.withdraw(bob, 101, 0, 10, 10),
		b.whitelist(alice, 102, 0),
	}}
	r, _, _ := newTestReconciler(t, 90, fetcher, newFakeReader(110))

	results, err := r.ScanVault(context.Background(), testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, []int{model.CodeDepositShareholderMissing, model.CodeWithdrawShareholderMissing, 0, 0}, codes(results))
	assert.Contains(t, results[0].Message, "not found in vault")
	assert.Equal(t, "Vault Flakes USDC has been scanned.", results[3].Message)
	assert.Equal(t, model.CodeDepositShareholderMissing, model.ExitCode(results))
}

func TestScanVaultToleratesUnknownEvents(t *testing.T) {
	b := newLogBuilder(t)
	fetcher := &fakeFetcher{logs: []model.LogRecord{
		b.whitelist(alice, 100, 0),
		b.deposit(alice, 100, 1, 10, 10),
		unknownLog(101, 0),
		b.gains(101, 1),
		b.deposit(alice, 102, 0, 20, 20),
	}}
	// Head snapshot behind the logs, so the watermark comes from the last processed log.
	reader := newFakeReader(50)
	r, v, journal := newTestReconciler(t, 10, fetcher, reader)
	ctx := context.Background()

	results, err := r.ScanVault(ctx, testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, model.CodeUnknownTopic, 0, 0, 0}, codes(results))
	assert.Contains(t, results[2].Message, "unknown topic0: ")
	assert.Equal(t, "Ignored event: Gains", results[3].Message)

	sh, err := r.repo.FindShareholder(ctx, v.ID, alice.Hex())
	require.NoError(t, err)
	txs, err := r.repo.ListShareholderTransactions(ctx, sh.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	stored, err := r.repo.FindVaultByAddress(ctx, testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(102), stored.LastUpdateBlock)

	require.Len(t, journal.records, 1)
	assert.Equal(t, kindUnknownTopic, journal.records[0].Kind)
	assert.Equal(t, uint64(101), journal.records[0].BlockNumber)
}

func TestScanVaultDecodeErrorDoesNotAbort(t *testing.T) {
	b := newLogBuilder(t)
	broken := b.deposit(alice, 101, 0, 10, 10)
	broken.Data = "0x01"
	fetcher := &fakeFetcher{logs: []model.LogRecord{
		b.whitelist(alice, 100, 0),
		broken,
		b.deposit(alice, 102, 0, 20, 20),
	}}
	r, _, journal := newTestReconciler(t, 10, fetcher, newFakeReader(102))

	results, err := r.ScanVault(context.Background(), testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, []int{0, model.CodeDecodeError, 0, 0}, codes(results))
	require.Len(t, journal.records, 1)
	assert.Equal(t, kindDecodeError, journal.records[0].Kind)
}

func TestScanVaultNoRecordsAdvancesToHead(t *testing.T) {
	fetcher := &fakeFetcher{err: &etherscan.APIError{Status: "0", Message: "No records found", Result: "[]"}}
	reader := newFakeReader(180)
	r, _, _ := newTestReconciler(t, 100, fetcher, reader)
	ctx := context.Background()

	results, err := r.ScanVault(ctx, testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, []int{0}, codes(results))
	assert.Equal(t, 1, reader.aggCalls)

	stored, err := r.repo.FindVaultByAddress(ctx, testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(180), stored.LastUpdateBlock)
	assert.Equal(t, "5500000", stored.AssetsUnderManagement)
	assert.Equal(t, "1000000", stored.AssetsInUse)
	assert.Equal(t, "5000000", stored.TotalSupply)
	assert.Equal(t, "1100000", stored.SharePrice)
}

func TestScanVaultFetchFailureLeavesWatermark(t *testing.T) {
	fetcher := &fakeFetcher{err: &etherscan.APIError{Status: "0", Message: "NOTOK", Result: "Max rate limit reached"}}
	reader := newFakeReader(180)
	r, _, _ := newTestReconciler(t, 100, fetcher, reader)
	ctx := context.Background()

	_, err := r.ScanVault(ctx, testVault.Hex())
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr), "expected fetch error, got %v", err)
	assert.Equal(t, model.CodeFetchFailed, ScanFailure(err).Code)
	assert.Equal(t, 0, reader.aggCalls)

	stored, err := r.repo.FindVaultByAddress(ctx, testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), stored.LastUpdateBlock)
	assert.Equal(t, "0", stored.AssetsUnderManagement)
}

func TestScanVaultAggregateFailureLeavesWatermark(t *testing.T) {
	b := newLogBuilder(t)
	fetcher := &fakeFetcher{logs: []model.LogRecord{b.whitelist(alice, 150, 0)}}
	reader := newFakeReader(180)
	reader.aggErr = errors.New("execution reverted")
	r, _, _ := newTestReconciler(t, 100, fetcher, reader)
	ctx := context.Background()

	results, err := r.ScanVault(ctx, testVault.Hex())
	require.Error(t, err)
	assert.Equal(t, []int{0}, codes(results))
	assert.Equal(t, model.CodeVaultPersistFailed, ScanFailure(err).Code)

	stored, err := r.repo.FindVaultByAddress(ctx, testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), stored.LastUpdateBlock)
}

func TestScanVaultWatermarkNeverRegresses(t *testing.T) {
	b := newLogBuilder(t)
	fetcher := &fakeFetcher{logs: []model.LogRecord{b.whitelist(alice, 100, 0)}}
	// A lagging node reports a head below the stored watermark.
	r, _, _ := newTestReconciler(t, 300, fetcher, newFakeReader(200))
	ctx := context.Background()

	_, err := r.ScanVault(ctx, testVault.Hex())
	require.NoError(t, err)

	stored, err := r.repo.FindVaultByAddress(ctx, testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(300), stored.LastUpdateBlock)
}

func TestScanVaultPassDeadlineLeavesWatermark(t *testing.T) {
	fetcher := &fakeFetcher{delay: 50 * time.Millisecond}
	reader := newFakeReader(180)
	r, _, _ := newTestReconciler(t, 100, fetcher, reader)
	r.cfg.PassTimeout = 10 * time.Millisecond

	_, err := r.ScanVault(context.Background(), testVault.Hex())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "pass interrupted")
	assert.Equal(t, model.CodeVaultPersistFailed, ScanFailure(err).Code)
	assert.Equal(t, 0, reader.aggCalls)

	stored, err := r.repo.FindVaultByAddress(context.Background(), testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), stored.LastUpdateBlock)
}

func TestScanVaultCancelLeavesWatermark(t *testing.T) {
	b := newLogBuilder(t)
	fetcher := &fakeFetcher{
		logs:  []model.LogRecord{b.whitelist(alice, 150, 0)},
		delay: 50 * time.Millisecond,
	}
	r, _, _ := newTestReconciler(t, 100, fetcher, newFakeReader(180))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := r.ScanVault(ctx, testVault.Hex())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.CodeVaultPersistFailed, ScanFailure(err).Code)

	stored, err := r.repo.FindVaultByAddress(context.Background(), testVault.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), stored.LastUpdateBlock)
}

func TestScanVaultRevokeThenWhitelist(t *testing.T) {
	b := newLogBuilder(t)
	fetcher := &fakeFetcher{logs: []model.LogRecord{
		b.whitelist(alice, 100, 0),
		b.revoke(alice, 101, 0),
	}}
	r, v, _ := newTestReconciler(t, 90, fetcher, newFakeReader(101))
	ctx := context.Background()

	_, err := r.ScanVault(ctx, testVault.Hex())
	require.NoError(t, err)
	sh, err := r.repo.FindShareholder(ctx, v.ID, alice.Hex())
	require.NoError(t, err)
	assert.True(t, sh.IsRemoved)

	fetcher.logs = append(fetcher.logs, b.whitelist(alice, 102, 0))
	_, err = r.ScanVault(ctx, testVault.Hex())
	require.NoError(t, err)
	sh, err = r.repo.FindShareholder(ctx, v.ID, alice.Hex())
	require.NoError(t, err)
	assert.False(t, sh.IsRemoved)
}

func TestScanVaultInputErrors(t *testing.T) {
	r, _, _ := newTestReconciler(t, 1, &fakeFetcher{}, newFakeReader(1))
	ctx := context.Background()

	_, err := r.ScanVault(ctx, "")
	require.ErrorIs(t, err, ErrAddressRequired)
	assert.Equal(t, model.CodeScanAddressRequired, ScanFailure(err).Code)

	_, err = r.ScanVault(ctx, "0x1234")
	require.ErrorIs(t, err, ErrInvalidAddress)
	assert.Equal(t, model.CodeScanInvalidAddress, ScanFailure(err).Code)

	_, err = r.ScanVault(ctx, "0x9999999999999999999999999999999999999999")
	require.ErrorIs(t, err, ErrVaultNotFound)
	assert.Equal(t, model.CodeScanVaultNotFound, ScanFailure(err).Code)
}

func TestScanAllRunsEveryVault(t *testing.T) {
	b := newLogBuilder(t)
	fetcher := &fakeFetcher{logs: []model.LogRecord{b.whitelist(alice, 100, 0)}}
	r, _, _ := newTestReconciler(t, 90, fetcher, newFakeReader(120))

	scans, err := r.ScanAll(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.NoError(t, scans[0].Err)
	assert.Equal(t, "Flakes USDC", scans[0].Name)
	assert.Equal(t, []int{0, 0}, codes(scans[0].Results))
}
