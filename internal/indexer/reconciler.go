package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"vaultScope/internal/metrics"
	"vaultScope/internal/model"
	"vaultScope/internal/storage"
	"vaultScope/internal/vault"
)

const (
	kindUnknownTopic = "unknown_topic"
	kindDecodeError  = "decode_error"
)

// ReconcilerConfig holds pass settings.
type ReconcilerConfig struct {
	// PassTimeout bounds one reconciliation pass. Zero disables the deadline.
	PassTimeout time.Duration
}

// Reconciler runs reconciliation passes: fetch logs since the watermark, apply them,
// refresh aggregates, then advance the watermark.
type Reconciler struct {
	cfg      ReconcilerConfig
	repo     storage.Repository
	fetcher  Fetcher
	reader   VaultReader
	decoder  EventDecoder
	journal  storage.DecodeErrorSink
	metrics  *metrics.Metrics
	logger   *zap.Logger
	handlers *handlers
}

// NewReconciler builds a Reconciler. journal and m may be nil.
func NewReconciler(
	cfg ReconcilerConfig,
	repo storage.Repository,
	fetcher Fetcher,
	reader VaultReader,
	decoder EventDecoder,
	journal storage.DecodeErrorSink,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		cfg:      cfg,
		repo:     repo,
		fetcher:  fetcher,
		reader:   reader,
		decoder:  decoder,
		journal:  journal,
		metrics:  m,
		logger:   logger,
		handlers: &handlers{repo: repo, logger: logger},
	}
}

// ScanVault runs one pass for the vault at address. Per-event outcomes are returned as
// results; a non-nil error means the pass was aborted and the watermark was not moved.
func (r *Reconciler) ScanVault(ctx context.Context, address string) ([]model.Result, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	if r.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.PassTimeout)
		defer cancel()
	}

	log := r.logger.With(zap.String("pass_id", uuid.NewString()), zap.String("vault", addr.Hex()))

	results, err := r.scan(ctx, addr, log)
	if err != nil {
		r.metrics.PassCompleted("failed")
		log.Warn("pass aborted", zap.Error(err))
		return results, err
	}
	r.metrics.PassCompleted("ok")
	return results, nil
}

func (r *Reconciler) scan(ctx context.Context, addr common.Address, log *zap.Logger) ([]model.Result, error) {
	v, err := r.repo.FindVaultByAddress(ctx, addr.Hex())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, addr.Hex())
		}
		return nil, fmt.Errorf("load vault: %w", err)
	}

	head, err := r.reader.Head(ctx)
	if err != nil {
		return nil, &FetchError{Err: fmt.Errorf("chain head: %w", err)}
	}

	logs, err := r.fetcher.FetchLogs(ctx, v.Address, v.LastUpdateBlock)
	if err != nil && !isNoRecords(err) {
		return nil, &FetchError{Err: err}
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Before(logs[j]) })

	log.Info("pass started",
		zap.Uint64("from_block", v.LastUpdateBlock),
		zap.Uint64("head", head),
		zap.Int("logs", len(logs)),
	)

	results := make([]model.Result, 0, len(logs)+1)
	var decodeFailures []model.DecodeError
	currentUpdateBlock := v.LastUpdateBlock

	for _, record := range logs {
		event, err := r.decoder.Decode(record)
		if err != nil {
			result, failure := classifyDecodeFailure(v.Address, record, err)
			results = append(results, result)
			decodeFailures = append(decodeFailures, failure)
			r.metrics.EventProcessed(failure.Kind)
			continue
		}

		if record.BlockNumber > currentUpdateBlock {
			currentUpdateBlock = record.BlockNumber
		}
		result := r.handlers.apply(ctx, v, event)
		results = append(results, result)
		r.metrics.EventProcessed(resultLabel(result))
	}

	r.journalDecodeFailures(decodeFailures, log)

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("pass interrupted: %w", err)
	}

	aggregates, err := r.reader.ReadAggregates(ctx, addr, v.Decimals)
	if err != nil {
		return results, fmt.Errorf("refresh aggregates: %w", err)
	}

	watermark := maxUint64(v.LastUpdateBlock, currentUpdateBlock, head)
	updated := v.WithAggregates(aggregates)
	updated.LastUpdateBlock = watermark
	if err := r.repo.UpsertVault(ctx, updated); err != nil {
		return results, fmt.Errorf("persist vault: %w", err)
	}
	r.metrics.Watermark(v.Address, watermark)

	log.Info("pass complete",
		zap.Int("events", len(logs)),
		zap.Int("decode_failures", len(decodeFailures)),
		zap.Uint64("watermark", watermark),
	)

	results = append(results, model.Success("Vault "+v.Name+" has been scanned."))
	return results, nil
}

func (r *Reconciler) journalDecodeFailures(failures []model.DecodeError, log *zap.Logger) {
	if r.journal == nil || len(failures) == 0 {
		return
	}
	if err := r.journal.PutDecodeErrors(failures); err != nil {
		log.Warn("decode failure journal write failed", zap.Error(err))
	}
}

func classifyDecodeFailure(vaultAddress string, record model.LogRecord, err error) (model.Result, model.DecodeError) {
	failure := model.DecodeError{
		Vault:       vaultAddress,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      record.Topic0(),
		Error:       err.Error(),
		RecordedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}

	var unknown *vault.UnknownTopicError
	if errors.As(err, &unknown) {
		failure.Kind = kindUnknownTopic
		return model.Failure(model.CodeUnknownTopic, "unknown topic0: "+unknown.Topic0), failure
	}
	failure.Kind = kindDecodeError
	return model.Failure(model.CodeDecodeError, err.Error()), failure
}

func resultLabel(result model.Result) string {
	switch result.Code {
	case 0:
		return "ok"
	case model.CodeDepositShareholderMissing, model.CodeWithdrawShareholderMissing:
		return "integrity_error"
	case model.CodeDecodeError:
		return kindDecodeError
	default:
		return "persist_error"
	}
}

// isNoRecords reports whether err is an upstream "no records found" response.
func isNoRecords(err error) bool {
	var nr interface{ NoRecords() bool }
	return errors.As(err, &nr) && nr.NoRecords()
}

func maxUint64(values ...uint64) uint64 {
	var out uint64
	for _, v := range values {
		if v > out {
			out = v
		}
	}
	return out
}
