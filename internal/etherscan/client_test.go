package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves getLogs over an in-memory list of logs, honoring fromBlock, page and offset.
type fakeAPI struct {
	logs     []rawLog
	requests atomic.Int32
	// failFirst makes the first n requests return 503.
	failFirst int32
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := f.requests.Add(1)
	if n <= f.failFirst {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	if q.Get("apikey") != "test-key" || q.Get("module") != "logs" || q.Get("action") != "getLogs" {
		writeEnvelope(w, "0", "NOTOK", "Invalid API Key")
		return
	}
	from, _ := strconv.ParseUint(q.Get("fromBlock"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	var matching []rawLog
	for _, l := range f.logs {
		block, _ := parseUint(l.BlockNumber)
		if block >= from {
			matching = append(matching, l)
		}
	}
	lo := (page - 1) * offset
	if lo >= len(matching) {
		writeEnvelope(w, "0", "No records found", []rawLog{})
		return
	}
	hi := lo + offset
	if hi > len(matching) {
		hi = len(matching)
	}
	writeEnvelope(w, "1", "OK", matching[lo:hi])
}

func writeEnvelope(w http.ResponseWriter, status, message string, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  status,
		"message": message,
		"result":  result,
	})
}

func makeLogs(count int, perBlock int, firstBlock uint64) []rawLog {
	out := make([]rawLog, 0, count)
	for i := 0; i < count; i++ {
		block := firstBlock + uint64(i/perBlock)
		logIndex := i % perBlock
		idx := "0x" + strconv.FormatInt(int64(logIndex), 16)
		if logIndex == 0 {
			idx = "0x"
		}
		out = append(out, rawLog{
			Address:          "0x1111111111111111111111111111111111111111",
			Topics:           []string{"0xdcbc1c05240f31ff3ad067ef1ee35ce4997762752e3a095284754544f4c709d7"},
			Data:             "0x",
			BlockNumber:      "0x" + strconv.FormatUint(block, 16),
			TimeStamp:        strconv.FormatUint(1700000000+block, 10),
			GasPrice:         "0x3b9aca00",
			GasUsed:          "21000",
			LogIndex:         idx,
			TransactionHash:  fmt.Sprintf("0x%064x", i),
			TransactionIndex: "0x1",
		})
	}
	return out
}

func newTestClient(t *testing.T, api http.Handler, cfg Config) *Client {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	cfg.BaseURL = server.URL
	cfg.APIKey = "test-key"
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 5 * time.Second
	}
	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return client
}

func TestFetchLogsPaginates(t *testing.T) {
	api := &fakeAPI{logs: makeLogs(2300, 4, 100)}
	client := newTestClient(t, api, Config{})

	logs, err := client.FetchLogs(context.Background(), "0x1111111111111111111111111111111111111111", 100)
	require.NoError(t, err)
	require.Len(t, logs, 2300)
	assert.Equal(t, int32(3), api.requests.Load())

	seen := make(map[string]bool)
	for i, l := range logs {
		require.False(t, seen[l.TxHash], "duplicate log %s", l.TxHash)
		seen[l.TxHash] = true
		if i > 0 {
			require.True(t, logs[i-1].Before(l), "logs out of order at %d", i)
		}
	}
	assert.Equal(t, uint64(100), logs[0].BlockNumber)
	assert.Equal(t, uint64(0), logs[0].LogIndex)
	assert.Equal(t, "1000000000", logs[0].GasPrice.String())
	assert.Equal(t, "21000", logs[0].GasUsed.String())
	assert.Equal(t, uint64(1700000100), logs[0].Timestamp)
}

func TestFetchLogsNoRecords(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api, Config{})

	logs, err := client.FetchLogs(context.Background(), "0x1111111111111111111111111111111111111111", 100)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestFetchLogsRestartsAtResultWindow(t *testing.T) {
	api := &fakeAPI{logs: makeLogs(23, 3, 10)}
	client := newTestClient(t, api, Config{PageSize: 4, ResultWindow: 8})

	logs, err := client.FetchLogs(context.Background(), "0x1111111111111111111111111111111111111111", 10)
	require.NoError(t, err)
	require.Len(t, logs, 23)
	for i := 1; i < len(logs); i++ {
		require.True(t, logs[i-1].Before(logs[i]), "logs out of order at %d", i)
	}
}

func TestFetchLogsSurfacesAPIError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, "0", "NOTOK", "Invalid API Key")
	})
	client := newTestClient(t, handler, Config{})

	_, err := client.FetchLogs(context.Background(), "0x1111111111111111111111111111111111111111", 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	assert.Equal(t, "0", apiErr.Status)
	assert.Equal(t, "Invalid API Key", apiErr.Result)
	assert.False(t, apiErr.NoRecords())
}

func TestFetchLogsRetriesTransportFailures(t *testing.T) {
	api := &fakeAPI{logs: makeLogs(5, 1, 1), failFirst: 2}
	client := newTestClient(t, api, Config{})

	logs, err := client.FetchLogs(context.Background(), "0x1111111111111111111111111111111111111111", 1)
	require.NoError(t, err)
	assert.Len(t, logs, 5)
	assert.Equal(t, int32(3), api.requests.Load())
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
}

func TestNewClientRejectsPartialResultWindow(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k", PageSize: 1000, ResultWindow: 2500}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a multiple of page size")

	_, err = NewClient(Config{APIKey: "k", PageSize: 1000, ResultWindow: 500}, nil)
	require.Error(t, err)

	client, err := NewClient(Config{APIKey: "k", PageSize: 500, ResultWindow: 2500}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2500, client.cfg.ResultWindow)
}

func TestParseNumbers(t *testing.T) {
	cases := map[string]uint64{
		"0x":   0,
		"":     0,
		"0x1f": 31,
		"42":   42,
		"0X0a": 10,
	}
	for in, want := range cases {
		got, err := parseUint(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseUint("0xzz")
	assert.Error(t, err)
}
