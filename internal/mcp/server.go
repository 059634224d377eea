package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/vectorkit/internal/embeddings"
	"github.com/nickcecere/vectorkit/internal/search"
	"github.com/nickcecere/vectorkit/internal/store"
)

const (
	// ProtocolVersion is the MCP revision this server speaks.
	ProtocolVersion = "2024-11-05"

	// ServerName is the name reported to clients.
	ServerName = "vectorkit"
)

// Tool names.
const (
	ToolQuery  = "vector_query"
	ToolUpsert = "vector_upsert"
	ToolDelete = "vector_delete"
)

// Server exposes a store.Store as MCP tools.
type Server struct {
	store     store.Store
	embedder  embeddings.Embedder
	namespace string
	version   string

	reader *bufio.Reader
	writer io.Writer
}

// Option configures a Server.
type Option func(*Server)

// WithIO replaces stdin and stdout.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(s *Server) {
		s.reader = bufio.NewReader(r)
		s.writer = w
	}
}

// WithEmbedder enables text queries.
func WithEmbedder(emb embeddings.Embedder) Option {
	return func(s *Server) { s.embedder = emb }
}

// WithVersion sets the version reported in serverInfo.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server over st. Tool calls that omit a namespace use
// namespace.
func NewServer(st store.Store, namespace string, opts ...Option) *Server {
	s := &Server{
		store:     st,
		namespace: namespace,
		version:   "dev",
		reader:    bufio.NewReader(os.Stdin),
		writer:    os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves requests until EOF or until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := s.reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && strings.TrimSpace(line) != "") {
			if errors.Is(err, io.EOF) {
				log.Info("MCP server received EOF, shutting down")
				return nil
			}
			return fmt.Errorf("failed to read request: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.sendError(nil, ErrorCodeParse, "Parse error", err.Error())
			continue
		}
		s.handleRequest(ctx, req)
	}
}

func (s *Server) handleRequest(ctx context.Context, req Request) {
	log.Debug("Received request", "method", req.Method, "id", req.ID)

	var (
		result any
		err    error
	)
	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "initialized", "notifications/initialized":
		log.Info("MCP server initialized")
		return
	case "tools/list":
		result = s.handleListTools()
	case "tools/call":
		result, err = s.handleCallTool(ctx, req.Params)
	case "ping":
		result = map[string]any{}
	default:
		if req.ID == nil {
			return // unknown notification
		}
		s.sendError(req.ID, ErrorCodeMethodNotFound, "Method not found", req.Method)
		return
	}

	if err != nil {
		s.sendError(req.ID, ErrorCodeInvalidParams, "Invalid params", err.Error())
		return
	}
	s.sendResult(req.ID, result)
}

func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, error) {
	var p InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	log.Info("Initializing MCP server",
		"clientName", p.ClientInfo.Name,
		"clientVersion", p.ClientInfo.Version,
		"protocolVersion", p.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
		ServerInfo:      ServerInfo{Name: ServerName, Version: s.version},
	}, nil
}

var (
	namespaceProp = Property{Type: "string", Description: "Namespace to operate on (default: server namespace)"}
	filtersProp   = Property{Type: "object", Description: "Exact-match metadata constraints, combined with AND"}
)

func (s *Server) handleListTools() *ListToolsResult {
	return &ListToolsResult{Tools: []Tool{
		{
			Name:        ToolQuery,
			Description: "Find the items most similar to a vector or, if an embedder is configured, to a text query.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"vector":    {Type: "array", Description: "Query vector", Items: &Property{Type: "number"}},
					"text":      {Type: "string", Description: "Text to embed and search for"},
					"top_k":     {Type: "number", Description: "Maximum number of results", Default: search.DefaultTopK},
					"filters":   filtersProp,
					"namespace": namespaceProp,
				},
			},
		},
		{
			Name:        ToolUpsert,
			Description: "Insert or replace items by id. Each item has id, vector and optional metadata.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"items":     {Type: "array", Description: "Items to upsert", Items: &Property{Type: "object"}},
					"namespace": namespaceProp,
				},
				Required: []string{"items"},
			},
		},
		{
			Name:        ToolDelete,
			Description: "Delete items by id, by metadata filter, or both. Returns the number removed.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"ids":       {Type: "array", Description: "Item ids", Items: &Property{Type: "string"}},
					"filters":   filtersProp,
					"namespace": namespaceProp,
				},
			},
		},
	}}
}

func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	log.Debug("Calling tool", "name", p.Name)

	var (
		result any
		err    error
	)
	switch p.Name {
	case ToolQuery:
		result, err = s.toolQuery(ctx, p.Arguments)
	case ToolUpsert:
		result, err = s.toolUpsert(ctx, p.Arguments)
	case ToolDelete:
		result, err = s.toolDelete(ctx, p.Arguments)
	default:
		return textResult(fmt.Sprintf("Unknown tool: %s", p.Name), true), nil
	}
	if err != nil {
		return textResult("Error: "+err.Error(), true), nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return textResult(string(data), false), nil
}

type queryArgs struct {
	Vector    []float32     `json:"vector"`
	Text      string        `json:"text"`
	TopK      int           `json:"top_k"`
	Filters   store.Filters `json:"filters"`
	Namespace string        `json:"namespace"`
}

func (s *Server) toolQuery(ctx context.Context, raw json.RawMessage) ([]store.QueryResult, error) {
	var args queryArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if (len(args.Vector) == 0) == (args.Text == "") {
		return nil, errors.New("exactly one of vector or text is required")
	}
	if args.TopK == 0 {
		args.TopK = search.DefaultTopK
	}
	ns := s.resolve(args.Namespace)

	var (
		results []store.QueryResult
		err     error
	)
	if args.Text != "" {
		if s.embedder == nil {
			return nil, errors.New("text queries need an embedding provider")
		}
		results, err = search.New(s.store, s.embedder).Search(ctx, args.Text, search.Options{
			Namespace: ns,
			TopK:      args.TopK,
			Filters:   args.Filters,
		})
	} else {
		results, err = s.store.Query(ctx, ns, args.Vector, args.TopK, args.Filters)
	}
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []store.QueryResult{}
	}
	return results, nil
}

type upsertArgs struct {
	Items     []store.VectorItem `json:"items"`
	Namespace string             `json:"namespace"`
}

func (s *Server) toolUpsert(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args upsertArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	for i, item := range args.Items {
		if item.ID == "" {
			return nil, fmt.Errorf("item %d has no id", i)
		}
	}
	ns := s.resolve(args.Namespace)
	if err := s.store.Upsert(ctx, ns, args.Items); err != nil {
		return nil, err
	}
	return map[string]any{"namespace": ns, "upserted": len(args.Items)}, nil
}

type deleteArgs struct {
	IDs       []string      `json:"ids"`
	Filters   store.Filters `json:"filters"`
	Namespace string        `json:"namespace"`
}

func (s *Server) toolDelete(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args deleteArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	ns := s.resolve(args.Namespace)
	n, err := s.store.Delete(ctx, ns, args.IDs, args.Filters)
	if err != nil {
		return nil, err
	}
	return map[string]any{"namespace": ns, "deleted": n}, nil
}

func (s *Server) resolve(ns string) string {
	if ns != "" {
		return ns
	}
	return store.Namespace(s.namespace)
}

// decodeArgs decodes tool arguments, rejecting unknown names.
func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func textResult(text string, isError bool) *CallToolResult {
	return &CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: isError,
	}
}

func (s *Server) sendResult(id any, result any) {
	s.send(Response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) sendError(id any, code int, message, data string) {
	s.send(Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: data},
	})
}

func (s *Server) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("Failed to marshal response", "error", err)
		return
	}
	fmt.Fprintln(s.writer, string(data))
}
