package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"vaultScope/internal/model"
)

const (
	DefaultBaseURL      = "https://api.etherscan.io/api"
	DefaultPageSize     = 1000
	DefaultResultWindow = 10000

	statusOK         = "1"
	noRecordsMessage = "No records found"
)

// APIError is a non-success {status, message, result} envelope.
type APIError struct {
	Status  string
	Message string
	Result  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API call returned with status %s: %s: %s", e.Status, e.Message, e.Result)
}

// NoRecords reports whether the error is the upstream "no records found" response.
func (e *APIError) NoRecords() bool {
	return strings.Contains(e.Message, noRecordsMessage) || strings.Contains(e.Result, noRecordsMessage)
}

func (e *APIError) rateLimited() bool {
	return strings.Contains(strings.ToLower(e.Result), "rate limit")
}

// Config holds the client settings.
type Config struct {
	BaseURL      string
	APIKey       string
	PageSize     int
	ResultWindow int
	Timeout      time.Duration
	// MaxElapsed bounds transport retries of a single request.
	MaxElapsed time.Duration
}

// Client is the Log Page Fetcher backed by an Etherscan-compatible API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("etherscan api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.ResultWindow <= 0 {
		cfg.ResultWindow = DefaultResultWindow
	}
	if cfg.ResultWindow%cfg.PageSize != 0 {
		return nil, fmt.Errorf("result window %d is not a multiple of page size %d", cfg.ResultWindow, cfg.PageSize)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type rawLog struct {
	Address          string   `json:"address"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	BlockNumber      string   `json:"blockNumber"`
	BlockHash        string   `json:"blockHash"`
	TimeStamp        string   `json:"timeStamp"`
	GasPrice         string   `json:"gasPrice"`
	GasUsed          string   `json:"gasUsed"`
	LogIndex         string   `json:"logIndex"`
	TransactionHash  string   `json:"transactionHash"`
	TransactionIndex string   `json:"transactionIndex"`
}

type logKey struct {
	block    uint64
	logIndex uint64
}

// FetchLogs returns every log of address from fromBlock (inclusive) to the chain head,
// ordered by (block, log index).
func (c *Client) FetchLogs(ctx context.Context, address string, fromBlock uint64) ([]model.LogRecord, error) {
	var (
		out      []model.LogRecord
		seen     = make(map[logKey]struct{})
		start    = fromBlock
		maxPages = c.cfg.ResultWindow / c.cfg.PageSize
	)

	for {
		for page := 1; page <= maxPages; page++ {
			params := url.Values{}
			params.Set("address", address)
			params.Set("fromBlock", strconv.FormatUint(start, 10))
			params.Set("toBlock", "latest")
			params.Set("page", strconv.Itoa(page))
			params.Set("offset", strconv.Itoa(c.cfg.PageSize))

			items, err := c.getLogsPage(ctx, params)
			if err != nil {
				return nil, err
			}
			for _, item := range items {
				key := logKey{block: item.BlockNumber, logIndex: item.LogIndex}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, item)
			}

			c.logger.Debug("etherscan page",
				zap.String("address", address),
				zap.Uint64("from_block", start),
				zap.Int("page", page),
				zap.Int("items", len(items)),
			)

			if len(items) < c.cfg.PageSize {
				sortLogs(out)
				return out, nil
			}
		}

		// The result window is exhausted; restart from the highest block seen so far.
		next := maxBlock(out)
		if next <= start {
			return nil, fmt.Errorf("block %d holds more logs than the result window (%d)", start, c.cfg.ResultWindow)
		}
		start = next
	}
}

func (c *Client) getLogsPage(ctx context.Context, params url.Values) ([]model.LogRecord, error) {
	raw, err := c.call(ctx, "logs", "getLogs", params)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.NoRecords() {
			return nil, nil
		}
		return nil, err
	}

	var items []rawLog
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}

	out := make([]model.LogRecord, 0, len(items))
	for _, item := range items {
		record, err := normalize(item)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// call performs one API request, retrying transport failures and rate limits.
func (c *Client) call(ctx context.Context, module, action string, params url.Values) (json.RawMessage, error) {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("module", module)
	query.Set("action", action)
	query.Set("apikey", c.cfg.APIKey)
	endpoint := c.cfg.BaseURL + "?" + query.Encode()

	var result json.RawMessage
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("perform request: %w", err)
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				c.logger.Warn("failed to close response body", zap.Error(err))
			}
		}()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			c.logger.Warn("etherscan request failed, retrying", zap.Int("status", resp.StatusCode), zap.String("action", action))
			return fmt.Errorf("unexpected status code %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body)))
		}

		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		if env.Status != statusOK {
			apiErr := &APIError{Status: env.Status, Message: env.Message, Result: resultText(env.Result)}
			if apiErr.rateLimited() {
				c.logger.Warn("etherscan rate limited, retrying", zap.String("action", action))
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		result = env.Result
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = c.cfg.MaxElapsed
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

func resultText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func normalize(item rawLog) (model.LogRecord, error) {
	block, err := parseUint(item.BlockNumber)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("blockNumber %q: %w", item.BlockNumber, err)
	}
	logIndex, err := parseUint(item.LogIndex)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("logIndex %q: %w", item.LogIndex, err)
	}
	txIndex, err := parseUint(item.TransactionIndex)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("transactionIndex %q: %w", item.TransactionIndex, err)
	}
	ts, err := parseUint(item.TimeStamp)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("timeStamp %q: %w", item.TimeStamp, err)
	}
	gasPrice, err := parseBig(item.GasPrice)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("gasPrice %q: %w", item.GasPrice, err)
	}
	gasUsed, err := parseBig(item.GasUsed)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("gasUsed %q: %w", item.GasUsed, err)
	}

	topics := make([]string, 0, len(item.Topics))
	for _, topic := range item.Topics {
		if topic != "" {
			topics = append(topics, topic)
		}
	}

	return model.LogRecord{
		Address:     item.Address,
		Topics:      topics,
		Data:        item.Data,
		BlockNumber: block,
		BlockHash:   item.BlockHash,
		TxHash:      item.TransactionHash,
		TxIndex:     txIndex,
		LogIndex:    logIndex,
		Timestamp:   ts,
		GasPrice:    gasPrice,
		GasUsed:     gasUsed,
	}, nil
}

// parseUint accepts 0x-prefixed hex (bare "0x" is zero) or decimal.
func parseUint(value string) (uint64, error) {
	v, err := parseBig(value)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("out of range")
	}
	return v.Uint64(), nil
}

func parseBig(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(big.Int), nil
	}
	base := 10
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		value = value[2:]
		base = 16
		if value == "" {
			return new(big.Int), nil
		}
	}
	out, ok := new(big.Int).SetString(value, base)
	if !ok {
		return nil, fmt.Errorf("invalid number")
	}
	return out, nil
}

func sortLogs(logs []model.LogRecord) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Before(logs[j])
	})
}

func maxBlock(logs []model.LogRecord) uint64 {
	var highest uint64
	for _, l := range logs {
		if l.BlockNumber > highest {
			highest = l.BlockNumber
		}
	}
	return highest
}
