package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/product-info-extractor/internal/extractor"
	"github.com/maltedev/product-info-extractor/internal/models"
)

const (
	jsonRPCVersion  = "2.0"
	protocolVersion = "2025-03-26"
	serverName      = "product-info-extractor"
	serverVersion   = "1.0.0"

	ToolExtractProductInfo = "extract_product_info"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
	CodeGone           = -32001
)

var errMissingURL = errors.New("URL is required")

// Extractor is the operation the tool exposes. *extractor.Service
// implements it.
type Extractor interface {
	Extract(ctx context.Context, rawURL string, opts extractor.Options) (json.RawMessage, error)
}

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the caller expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ExtractProductInfoTool describes the single tool this server offers.
func ExtractProductInfoTool() Tool {
	return Tool{
		Name: ToolExtractProductInfo,
		Description: "Extract comprehensive product information from e-commerce URLs including images, " +
			"stock availability, product variants (color-by-size inventory), price, dimensions, and specifications",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Product URL to extract information from",
				},
				"compact": map[string]any{
					"type":        "boolean",
					"description": "Enable compact mode for token optimization. Defaults to true.",
					"default":     true,
				},
				"refresh": map[string]any{
					"type":        "boolean",
					"description": "Ignore any cached result and extract again. Defaults to false.",
					"default":     false,
				},
			},
			"required": []string{"url"},
		},
	}
}

// Dispatcher answers JSON-RPC requests independently of the transport. The
// HTTP handler and the stdio loop share it.
type Dispatcher struct {
	service Extractor
	logger  *slog.Logger
	now     func() time.Time
}

func NewDispatcher(service Extractor, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		service: service,
		logger:  logger.With("component", "api"),
		now:     time.Now,
	}
}

// HandleMessage decodes one message and returns the encoded response, or
// nil for notifications.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) []byte {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return d.encode(errorResponse(nil, CodeParseError, "Parse error", nil))
	}

	resp := d.Handle(ctx, &req)
	if resp == nil {
		return nil
	}
	return d.encode(resp)
}

// Handle dispatches a decoded request. Notifications yield nil.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request", nil)
	}

	log := d.logger.With("method", req.Method, "request_id", uuid.NewString())

	result, rpcErr := d.dispatch(ctx, log, req)
	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		log.Warn("request failed", "code", rpcErr.Code, "error", rpcErr.Message)
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	}
	return &Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result}
}

func (d *Dispatcher) dispatch(ctx context.Context, log *slog.Logger, req *Request) (any, *Error) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": serverName, "version": serverVersion},
		}, nil
	case "notifications/initialized", "ping":
		return map[string]any{}, nil
	case "tools/list":
		log.Info("list tools request received")
		return map[string]any{"tools": []Tool{ExtractProductInfoTool()}}, nil
	case "tools/call":
		var params callParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return nil, &Error{Code: CodeInvalidParams, Message: "invalid tool call params"}
			}
		}
		if params.Name != ToolExtractProductInfo {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("Unknown tool: %s", params.Name)}
		}
		return d.callExtract(ctx, log, params.Arguments), nil
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", req.Method)}
	}
}

func (d *Dispatcher) callExtract(ctx context.Context, log *slog.Logger, args map[string]any) *ToolResult {
	rawURL, opts := toolArguments(args)
	if rawURL == "" {
		log.Error("url is missing in arguments", "arguments", args)
		return d.errorResult(models.ErrorPayload{Error: errMissingURL.Error(), Timestamp: d.now().UTC()})
	}

	log.Info("extracting", "url", rawURL, "compact", opts.Compact, "refresh", opts.Refresh)
	start := time.Now()

	result, err := d.service.Extract(ctx, rawURL, opts)
	if err != nil {
		var exErr *extractor.ExtractionError
		if errors.As(err, &exErr) {
			return d.errorResult(exErr.Payload())
		}
		return d.errorResult(models.ErrorPayload{Error: err.Error(), URL: rawURL, Timestamp: d.now().UTC()})
	}

	log.Info("extraction complete", "url", rawURL, "duration", time.Since(start))
	return &ToolResult{Content: []Content{{Type: "text", Text: indent(result)}}}
}

func (d *Dispatcher) errorResult(payload models.ErrorPayload) *ToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		data = []byte(payload.Error)
	}
	return &ToolResult{Content: []Content{{Type: "text", Text: string(data)}}, IsError: true}
}

func (d *Dispatcher) encode(resp *Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		d.logger.Error("failed to encode response", "error", err)
		data, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, "Internal error", nil))
	}
	return data
}

// toolArguments unwraps arguments nested under "arguments" or
// "function_arguments" by some clients, accepts "URL" as an alias and
// defaults compact to true.
func toolArguments(args map[string]any) (string, extractor.Options) {
	for args != nil {
		nested, ok := args["arguments"].(map[string]any)
		if !ok {
			nested, ok = args["function_arguments"].(map[string]any)
		}
		if !ok {
			break
		}
		args = nested
	}

	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		rawURL, _ = args["URL"].(string)
	}

	opts := extractor.Options{Compact: true}
	if v, ok := args["compact"].(bool); ok {
		opts.Compact = v
	}
	if v, ok := args["refresh"].(bool); ok {
		opts.Refresh = v
	}
	return rawURL, opts
}

func indent(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func errorResponse(id json.RawMessage, code int, message string, data any) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: data},
	}
}
