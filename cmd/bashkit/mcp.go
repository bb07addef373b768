package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bashkit/bashkit/tool"
)

// rpcRequest and rpcResponse follow JSON-RPC 2.0, the protocol spec §6.4
// requires the mcp subcommand to speak: initialize, tools/list, tools/call
// (tool name "bash", arguments {script: string}), shutdown.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolsCallParams struct {
	Name      string `json:"name"`
	Arguments struct {
		Script string `json:"script"`
	} `json:"arguments"`
}

// serveMCP reads one JSON-RPC request per line from r and writes one
// response per line to w, until "shutdown" is received or r is exhausted.
// Each tools/call gets its own session, so concurrent tool calls from a
// single MCP client never share shell state; a stateful session across
// calls is a host-level concern layered on top of this package.
func serveMCP(ctx context.Context, r io.Reader, w io.Writer) error {
	sessionID, err := uuid.NewV4()
	if err != nil {
		return err
	}
	log := logrus.WithField("mcp_session", sessionID.String())
	log.Info("bashkit: mcp server starting")

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		var req rpcRequest
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
			continue
		}

		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
		switch req.Method {
		case "initialize":
			resp.Result = map[string]any{
				"protocolVersion": "2024-11-05",
				"serverInfo":      map[string]string{"name": "bashkit", "version": "1"},
				"capabilities":    map[string]any{"tools": map[string]any{}},
			}
		case "tools/list":
			resp.Result = map[string]any{"tools": []map[string]any{
				{
					"name":        "bash",
					"description": "Run a script in a sandboxed bash-like interpreter",
					"inputSchema": map[string]any{
						"type":       "object",
						"properties": map[string]any{"script": map[string]any{"type": "string"}},
						"required":   []string{"script"},
					},
				},
			}}
		case "tools/call":
			var params toolsCallParams
			if err := json.Unmarshal(req.Params, &params); err != nil || params.Name != "bash" {
				resp.Error = &rpcError{Code: -32602, Message: "invalid params"}
				break
			}
			result, err := callBash(ctx, params.Arguments.Script)
			if err != nil {
				resp.Error = &rpcError{Code: -32000, Message: err.Error()}
				break
			}
			resp.Result = result
		case "shutdown":
			enc.Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}})
			log.Info("bashkit: mcp server shutting down")
			return nil
		default:
			resp.Error = &rpcError{Code: -32601, Message: fmt.Sprintf("method not found: %s", req.Method)}
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// callBash runs script in its own one-shot [tool.Session] and packages the
// result the way an MCP "tools/call" response reports tool output.
func callBash(ctx context.Context, script string) (map[string]any, error) {
	session, err := tool.NewSession(tool.Options{})
	if err != nil {
		return nil, err
	}
	resp, err := session.Execute(ctx, tool.Request{Commands: script})
	if err != nil {
		return nil, err
	}
	text := resp.Stdout
	if resp.Stderr != "" {
		text += resp.Stderr
	}
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"isError": resp.ExitCode != 0,
	}, nil
}
