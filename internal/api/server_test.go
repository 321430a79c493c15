package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainpulse/internal/domain"
	"chainpulse/internal/storage/memory"
)

func seedStore(t *testing.T) *memory.MetricsStore {
	t.Helper()
	store := memory.NewMetricsStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, domain.Success(
		domain.ChainTarget{ChainID: "1", ChainName: "Ethereum"}, "https://rpc.example", 14.5, 2_000_000)))
	require.NoError(t, store.Upsert(ctx, domain.Success(
		domain.ChainTarget{ChainID: "10", ChainName: "Optimism"}, "https://rpc.example", 5.5, 500_000)))
	require.NoError(t, store.Upsert(ctx, domain.Success(
		domain.ChainTarget{ChainID: "solana-mainnet", ChainName: "Solana"}, "https://rpc.example", 3200, 9_000_000)))
	require.NoError(t, store.Upsert(ctx, domain.Failure(
		domain.ChainTarget{ChainID: "bitcoin-mainnet", ChainName: "Bitcoin"}, "timeout")))
	return store
}

func TestIsEVMChainID(t *testing.T) {
	assert.True(t, isEVMChainID("1"))
	assert.True(t, isEVMChainID("42161"))
	assert.False(t, isEVMChainID("solana-mainnet"))
	assert.False(t, isEVMChainID("cosmoshub-4"))
	assert.False(t, isEVMChainID(""))
}

func TestHandleChains_TagsFamilyClass(t *testing.T) {
	srv := New(Options{Store: seedStore(t)})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/chains")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var views []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 4)

	types := make(map[string]string)
	for _, v := range views {
		types[v["chain_id"].(string)] = v["type"].(string)
	}
	assert.Equal(t, "EVM", types["1"])
	assert.Equal(t, "EVM", types["10"])
	assert.Equal(t, "Non-EVM", types["solana-mainnet"])
	assert.Equal(t, "Non-EVM", types["bitcoin-mainnet"])
}

func TestHandleSummary_AggregatesPerClass(t *testing.T) {
	srv := New(Options{Store: seedStore(t)})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary map[string]classSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))

	evm := summary["evm"]
	assert.InDelta(t, 20.0, evm.TPS, 1e-9)
	assert.InDelta(t, 2_500_000, evm.History, 1e-9)
	assert.Equal(t, 2, evm.Count)

	// The failed bitcoin row counts toward the class but contributes no
	// metric values.
	nonEVM := summary["non_evm"]
	assert.InDelta(t, 3200.0, nonEVM.TPS, 1e-9)
	assert.InDelta(t, 9_000_000, nonEVM.History, 1e-9)
	assert.Equal(t, 2, nonEVM.Count)
}

func TestHandleRefresh_GuardsConcurrentSweeps(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var startedOnce sync.Once
	srv := New(Options{
		Store: memory.NewMetricsStore(),
		Refresh: func() error {
			startedOnce.Do(func() { close(started) })
			<-release
			return nil
		},
	})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never started")
	}

	// A second trigger while the first sweep is still running conflicts.
	resp, err = http.Post(ts.URL+"/api/refresh", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(release)
	require.Eventually(t, func() bool {
		resp, err := http.Post(ts.URL+"/api/refresh", "application/json", bytes.NewReader(nil))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusAccepted
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHandleRefresh_NotConfigured(t *testing.T) {
	srv := New(Options{Store: memory.NewMetricsStore()})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestProgressWebsocket_ReceivesBroadcasts(t *testing.T) {
	srv := New(Options{Store: memory.NewMetricsStore()})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The broadcast races the client registration, so retry until the
	// frame arrives.
	var (
		once sync.Once
		stop = make(chan struct{})
	)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				srv.BroadcastProgress(7, 42)
			}
		}
	}()
	defer once.Do(func() { close(stop) })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event progressEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, int64(7), event.Done)
	assert.Equal(t, int64(42), event.Total)
}

func TestHealthz(t *testing.T) {
	srv := New(Options{Store: memory.NewMetricsStore()})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := New(Options{Store: memory.NewMetricsStore(), AllowedOrigin: "https://app.example"})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/chains", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
}
