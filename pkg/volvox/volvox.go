// Package volvox provides ready-made tool descriptors for the Volvox
// research platform. Each descriptor's handler calls the platform's tool
// server over JSON-RPC 2.0 and returns the decoded result, so a workflow
// graph can chain document search, summarization, and proposal generation
// without custom glue.
package volvox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/volvoxlabs/weft/pkg/api"
)

// Client calls tools exposed by a Volvox tool server.
type Client struct {
	endpoint string
	client   *http.Client
	nextID   atomic.Int64
}

// NewClient creates a Client for the given endpoint. timeout bounds each
// HTTP call; zero means 60s.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type rpcResponse struct {
	Result *rpcResult `json:"result,omitempty"`
	Error  *rpcError  `json:"error,omitempty"`
}

type rpcResult struct {
	Content []rpcContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

type rpcContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("volvox rpc error %d: %s", e.Code, e.Message)
}

// Call invokes the named tool with args and decodes the textual result as
// JSON. The platform wraps every result in a content list whose first text
// entry carries the payload.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "tools/call",
		Params:  rpcParams{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("volvox tool server returned %s", res.Status)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(res.Body).Decode(&rpc); err != nil {
		return nil, fmt.Errorf("decode response for %s: %w", name, err)
	}
	if rpc.Error != nil {
		return nil, rpc.Error
	}
	if rpc.Result == nil || len(rpc.Result.Content) == 0 {
		return nil, fmt.Errorf("tool %s returned no content", name)
	}
	if rpc.Result.IsError {
		return nil, fmt.Errorf("tool %s failed: %s", name, rpc.Result.Content[0].Text)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(rpc.Result.Content[0].Text), &out); err != nil {
		return nil, fmt.Errorf("tool %s returned non-JSON content: %w", name, err)
	}
	return out, nil
}

// handler adapts a tool name to an api.Handler over this client.
func (c *Client) handler(name string) api.Handler {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return c.Call(ctx, name, args)
	}
}

func field(name string, t api.FieldType, required bool) api.FieldSpec {
	return api.FieldSpec{Name: name, Type: t, Required: required}
}

// Descriptors returns the full Volvox toolset bound to this client, ready
// to register:
//
//	for _, d := range client.Descriptors() {
//	    if err := reg.Register(d); err != nil { ... }
//	}
func (c *Client) Descriptors() []api.ToolDescriptor {
	return []api.ToolDescriptor{
		{
			Name: "volvox_search_documents",
			Input: api.Schema{Fields: []api.FieldSpec{
				field("query", api.FieldString, true),
				field("limit", api.FieldNumber, false),
			}},
			Output: api.Schema{Fields: []api.FieldSpec{
				field("documents", api.FieldList, true),
			}},
			Handler: c.handler("volvox_search_documents"),
		},
		{
			Name: "volvox_summarize_documents",
			Input: api.Schema{Fields: []api.FieldSpec{
				field("documents", api.FieldList, true),
			}},
			Output: api.Schema{Fields: []api.FieldSpec{
				field("summary", api.FieldString, true),
			}},
			Handler: c.handler("volvox_summarize_documents"),
		},
		{
			Name: "generate_feasibility",
			Input: api.Schema{Fields: []api.FieldSpec{
				field("summary", api.FieldString, true),
			}},
			Output: api.Schema{Fields: []api.FieldSpec{
				field("feasibility", api.FieldString, true),
				field("score", api.FieldNumber, false),
			}},
			Handler: c.handler("generate_feasibility"),
		},
		{
			Name: "generate_roadmap",
			Input: api.Schema{Fields: []api.FieldSpec{
				field("summary", api.FieldString, true),
			}},
			Output: api.Schema{Fields: []api.FieldSpec{
				field("roadmap", api.FieldString, true),
			}},
			Handler: c.handler("generate_roadmap"),
		},
		{
			Name: "generate_proposal_from_text",
			Input: api.Schema{Fields: []api.FieldSpec{
				field("text", api.FieldString, true),
			}},
			Output: api.Schema{Fields: []api.FieldSpec{
				field("proposal", api.FieldString, true),
			}},
			Handler: c.handler("generate_proposal_from_text"),
		},
		{
			Name: "smart_deep_search",
			Input: api.Schema{Fields: []api.FieldSpec{
				field("query", api.FieldString, true),
			}},
			Output: api.Schema{Fields: []api.FieldSpec{
				field("results", api.FieldList, true),
			}},
			Handler: c.handler("smart_deep_search"),
		},
	}
}
