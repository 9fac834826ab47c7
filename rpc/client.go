package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"peershield/core"
)

// Client is a thin JSON-RPC client for the coverage server.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	nextID    atomic.Int64
}

func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:   strings.TrimSpace(baseURL),
		authToken: strings.TrimSpace(authToken),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type clientRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type clientResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Call invokes method with a single parameter object and decodes the result
// into out. Server side failures are returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, param interface{}, out interface{}) error {
	body := clientRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  []interface{}{},
		ID:      c.nextID.Add(1),
	}
	if param != nil {
		body.Params = []interface{}{param}
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var rpcResp clientResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("rpc %s failed: status=%d body=%s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return err
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("rpc returned empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func (c *Client) execute(ctx context.Context, method string, param interface{}) (*core.Result, error) {
	var result core.Result
	if err := c.Call(ctx, method, param, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Create(ctx context.Context, params CreateParams) (*core.Result, error) {
	return c.execute(ctx, "coverage_create", params)
}

func (c *Client) TopUp(ctx context.Context, id, funds string) (*core.Result, error) {
	return c.execute(ctx, "coverage_topUp", IDParams{ID: id, Funds: funds})
}

func (c *Client) SetRecipient(ctx context.Context, id, recipient string) (*core.Result, error) {
	return c.execute(ctx, "coverage_setRecipient", SetRecipientParams{ID: id, Recipient: recipient})
}

func (c *Client) Approve(ctx context.Context, id string) (*core.Result, error) {
	return c.execute(ctx, "coverage_approve", IDParams{ID: id})
}

func (c *Client) Refund(ctx context.Context, id string) (*core.Result, error) {
	return c.execute(ctx, "coverage_refund", IDParams{ID: id})
}

func (c *Client) Claim(ctx context.Context, id string) (*core.Result, error) {
	return c.execute(ctx, "coverage_claim", IDParams{ID: id})
}

func (c *Client) ProvideCoverage(ctx context.Context, funds string) (*core.Result, error) {
	return c.execute(ctx, "coverage_provideCoverage", FundsParams{Funds: funds})
}

func (c *Client) Receive(ctx context.Context, params ReceiveParams) (*core.Result, error) {
	return c.execute(ctx, "coverage_receive", params)
}

func (c *Client) List(ctx context.Context) ([]string, error) {
	var result ListResult
	if err := c.Call(ctx, "coverage_list", nil, &result); err != nil {
		return nil, err
	}
	return result.IDs, nil
}

func (c *Client) ListClaims(ctx context.Context) ([]string, error) {
	var result ListResult
	if err := c.Call(ctx, "coverage_listClaims", nil, &result); err != nil {
		return nil, err
	}
	return result.IDs, nil
}

func (c *Client) Details(ctx context.Context, id string) (*DetailsResult, error) {
	var result DetailsResult
	if err := c.Call(ctx, "coverage_details", IDParams{ID: id}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Pool(ctx context.Context) (*PoolResult, error) {
	var result PoolResult
	if err := c.Call(ctx, "coverage_pool", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) NodeInfo(ctx context.Context) (*core.NodeInfo, error) {
	var result core.NodeInfo
	if err := c.Call(ctx, "node_info", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) OutboxPending(ctx context.Context, limit int) (*PendingResult, error) {
	var result PendingResult
	if err := c.Call(ctx, "outbox_pending", PendingParams{Limit: limit}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) OutboxAck(ctx context.Context, ids []int64) (*AckResult, error) {
	var result AckResult
	if err := c.Call(ctx, "outbox_ack", AckParams{IDs: ids}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
