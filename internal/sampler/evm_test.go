package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainpulse/internal/domain"
	"chainpulse/internal/safefetch"
)

// fakeEVMNode serves eth_getBlockByNumber for a synthetic chain where block N
// carries timestamp N seconds and a fixed number of transactions.
func fakeEVMNode(t *testing.T, head int64, txPerBlock int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "eth_getBlockByNumber", req.Method)

		id := req.Params[0].(string)
		var num int64
		if id == "latest" {
			num = head
		} else {
			fmt.Sscanf(id, "0x%x", &num)
		}

		txs := make([]string, txPerBlock)
		for i := range txs {
			txs[i] = fmt.Sprintf("0xtx%d", i)
		}
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"result": map[string]interface{}{
				"number":       fmt.Sprintf("0x%x", num),
				"timestamp":    fmt.Sprintf("0x%x", num), // 1 block per second
				"transactions": txs,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEVMSampler_SyntheticChain(t *testing.T) {
	// Head 1000 at t=1000, reference 100 blocks back at t=900, every sampled
	// block holds 10 transactions: avg=10, tps = 10*100/100 = 10.0.
	srv := fakeEVMNode(t, 1000, 10)
	defer srv.Close()

	s := NewEVMSampler(safefetch.New(safefetch.WithAllowPrivate()), DefaultConfig())
	est, err := s.Sample(context.Background(), srv.URL, domain.ChainTarget{ChainID: "1"})
	require.NoError(t, err)

	assert.InDelta(t, 10.0, est.TPS, 1e-9)
	require.NotNil(t, est.TotalTx)
	assert.InDelta(t, 10000.0, *est.TotalTx, 1e-9) // 1000 blocks * 10 tx
}

func TestEVMSampler_EmptyChainYieldsZeroTPS(t *testing.T) {
	srv := fakeEVMNode(t, 1000, 0)
	defer srv.Close()

	s := NewEVMSampler(safefetch.New(safefetch.WithAllowPrivate()), DefaultConfig())
	est, err := s.Sample(context.Background(), srv.URL, domain.ChainTarget{ChainID: "1"})
	require.NoError(t, err)
	assert.Zero(t, est.TPS)
}

func TestEVMSampler_FallbackLookback(t *testing.T) {
	// Node prunes everything older than 20 blocks: the 100-block seek fails,
	// the 10-block fallback succeeds.
	head := int64(1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		id := req.Params[0].(string)
		var num int64
		if id == "latest" {
			num = head
		} else {
			fmt.Sscanf(id, "0x%x", &num)
		}

		if num < head-20 {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0", "id": 1, "result": nil,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1,
			"result": map[string]interface{}{
				"number":       fmt.Sprintf("0x%x", num),
				"timestamp":    fmt.Sprintf("0x%x", num*2), // 2s blocks
				"transactions": []string{"0xa", "0xb"},
			},
		})
	}))
	defer srv.Close()

	s := NewEVMSampler(safefetch.New(safefetch.WithAllowPrivate()), DefaultConfig())
	est, err := s.Sample(context.Background(), srv.URL, domain.ChainTarget{ChainID: "1"})
	require.NoError(t, err)

	// Window: 10 blocks over 20 seconds, 2 tx per block -> 1 tps.
	assert.InDelta(t, 1.0, est.TPS, 1e-9)
}

func TestEVMSampler_DeadEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewEVMSampler(safefetch.New(safefetch.WithAllowPrivate()), DefaultConfig())
	_, err := s.Sample(context.Background(), srv.URL, domain.ChainTarget{ChainID: "1"})
	require.Error(t, err)
}

func TestSamplePoints(t *testing.T) {
	tests := []struct {
		name  string
		start int64
		end   int64
		size  int
		want  []int64
	}{
		{"wide range", 900, 1000, 5, []int64{901, 921, 941, 961, 981}},
		{"small range fetches all", 10, 13, 5, []int64{11, 12, 13}},
		{"empty range", 10, 10, 5, nil},
		{"inverted range", 10, 5, 5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, samplePoints(tt.start, tt.end, tt.size))
		})
	}
}

func TestClampElapsed(t *testing.T) {
	assert.Equal(t, 1.0, clampElapsed(0))
	assert.Equal(t, 1.0, clampElapsed(-5))
	assert.Equal(t, 42.5, clampElapsed(42.5))
}
