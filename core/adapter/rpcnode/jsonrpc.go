package rpcnode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/smartcontractkit/chainlink-firehose/core/chain"
	"github.com/smartcontractkit/chainlink-firehose/core/utils"
)

// HTTPClient is the subset of *http.Client the adapter needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type jsonrpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// call issues a single JSON-RPC request and returns the raw "result" field,
// retrying transport-level failures via the standard backoff policy.
func call(ctx context.Context, client HTTPClient, url, method string, params ...interface{}) (gjson.Result, error) {
	var result gjson.Result
	var rpcErr error
	b := utils.NewBackoff()
	err := utils.RetryForever(ctx, b, func() error {
		reqBody, err := json.Marshal(jsonrpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
		if err != nil {
			return chain.WrapUpstream(err, "rpc request encode")
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			return chain.WrapUpstream(err, "rpc request build")
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(httpReq)
		if err != nil {
			return chain.WrapUpstream(err, "rpc request")
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return chain.WrapUpstream(err, "rpc response body")
		}
		if resp.StatusCode != http.StatusOK {
			return chain.WrapUpstream(fmt.Errorf("status %d", resp.StatusCode), "rpc response")
		}
		if errResult := gjson.GetBytes(data, "error"); errResult.Exists() {
			// a JSON-RPC error response is not a transport failure: it is
			// returned as is, without a retry.
			rpcErr = chain.WrapUpstream(fmt.Errorf("%s", errResult.Get("message").String()), method)
			return nil
		}
		result = gjson.GetBytes(data, "result")
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, rpcErr
}
