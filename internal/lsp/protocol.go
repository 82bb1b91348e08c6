package lsp

import "encoding/json"

// Message is one incoming JSON-RPC 2.0 envelope. Result and Error stay raw
// so a reply is recognizable by field presence before any payload decoding.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// IsReply reports whether the message answers an earlier server-initiated
// request.
func (m *Message) IsReply() bool {
	return m.Result != nil || m.Error != nil
}

// ResponseError is a JSON-RPC error object.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Standard JSON-RPC error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// outgoing envelopes

type responseMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"`
}

type errorMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *ResponseError  `json:"error"`
}

type notificationMessage struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type requestMessage struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// LSP payload types. Positions are zero-based on the wire; the compiler
// core is one-based.

// Position is a zero-based (line, character) pair.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open position range.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a URI-qualified range.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// TextDocumentIdentifier names a document by URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// InitializeParams is the subset of initialize parameters the server reads.
type InitializeParams struct {
	RootURI string `json:"rootUri"`
}

// InitializeResult advertises server capabilities.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
}

// ServerCapabilities is the advertised capability set.
type ServerCapabilities struct {
	TextDocumentSync        int  `json:"textDocumentSync"`
	DocumentSymbolProvider  bool `json:"documentSymbolProvider"`
	WorkspaceSymbolProvider bool `json:"workspaceSymbolProvider"`
	DefinitionProvider      bool `json:"definitionProvider"`
	HoverProvider           bool `json:"hoverProvider"`
}

// DidOpenParams carries textDocument/didOpen.
type DidOpenParams struct {
	TextDocument struct {
		URI  string `json:"uri"`
		Text string `json:"text"`
	} `json:"textDocument"`
}

// DidChangeParams carries textDocument/didChange with full-document sync.
type DidChangeParams struct {
	TextDocument struct {
		URI string `json:"uri"`
	} `json:"textDocument"`
	ContentChanges []struct {
		Text string `json:"text"`
	} `json:"contentChanges"`
}

// DidChangeWatchedFilesParams carries workspace/didChangeWatchedFiles.
type DidChangeWatchedFilesParams struct {
	Changes []struct {
		URI  string `json:"uri"`
		Type int    `json:"type"`
	} `json:"changes"`
}

// ReadFileItem is one entry of a workspace/readFile reply.
type ReadFileItem struct {
	URI     string `json:"uri"`
	Content string `json:"content"`
}

// PositionalParams is the shared shape of definition and hover requests.
type PositionalParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// DocumentSymbolParams carries textDocument/documentSymbol.
type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// WorkspaceSymbolParams carries workspace/symbol.
type WorkspaceSymbolParams struct {
	Query string `json:"query"`
}

// SymbolInformation describes one symbol in document and workspace symbol
// replies.
type SymbolInformation struct {
	Name          string   `json:"name"`
	Kind          int      `json:"kind"`
	Location      Location `json:"location"`
	ContainerName string   `json:"containerName,omitempty"`
}

// MarkupContent is a hover body.
type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Hover is a textDocument/hover result.
type Hover struct {
	Contents MarkupContent `json:"contents"`
}

// Diagnostic is one published diagnostic.
type Diagnostic struct {
	Range              Range                          `json:"range"`
	Code               int                            `json:"code"`
	Message            string                         `json:"message"`
	RelatedInformation []DiagnosticRelatedInformation `json:"relatedInformation,omitempty"`
}

// DiagnosticRelatedInformation is one flattened sub-message of a complex
// diagnostic.
type DiagnosticRelatedInformation struct {
	Location Location `json:"location"`
	Message  string   `json:"message"`
}

// PublishDiagnosticsParams carries textDocument/publishDiagnostics.
type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}
