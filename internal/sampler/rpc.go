package sampler

import (
	"context"
	"encoding/json"
	"fmt"

	"chainpulse/internal/safefetch"
)

// rpcRequest is a JSON-RPC request envelope. Account-model and checkpoint
// chains speak 2.0; bitcoin-family nodes still expect 1.0.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// rpcResponse is a JSON-RPC response envelope.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// rpcCall posts one JSON-RPC 2.0 request through the gate and unmarshals the
// result. Retrying is deliberately left to the endpoint-failover loop: a
// second attempt against a broken endpoint costs more than moving on to the
// next candidate.
func rpcCall(ctx context.Context, gate *safefetch.Gate, endpoint, method string, params []interface{}, result interface{}) error {
	return rpcCallVersion(ctx, gate, endpoint, "2.0", method, params, result)
}

// rpcCallV1 posts a JSON-RPC 1.0 request (bitcoin-family convention).
func rpcCallV1(ctx context.Context, gate *safefetch.Gate, endpoint, method string, params []interface{}, result interface{}) error {
	return rpcCallVersion(ctx, gate, endpoint, "1.0", method, params, result)
}

func rpcCallVersion(ctx context.Context, gate *safefetch.Gate, endpoint, version, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: version,
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := gate.Post(ctx, endpoint, body)
	if err != nil {
		return err
	}

	var resp rpcResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}
