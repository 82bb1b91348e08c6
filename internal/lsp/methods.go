package lsp

// MethodKind records which side of the wire may initiate a method.
type MethodKind int

const (
	// ClientInitiated methods arrive from the editor.
	ClientInitiated MethodKind = iota
	// ServerInitiated methods are sent by the server.
	ServerInitiated
	// Both may originate on either side.
	Both
)

// MethodDescriptor describes one protocol method.
type MethodDescriptor struct {
	Name           string
	IsNotification bool
	Kind           MethodKind
	Supported      bool
}

// Method names used across the loop.
const (
	methodCancelRequest         = "$/cancelRequest"
	methodInitialize            = "initialize"
	methodInitialized           = "initialized"
	methodShutdown              = "shutdown"
	methodExit                  = "exit"
	methodRegisterCapability    = "client/registerCapability"
	methodUnregisterCapability  = "client/unregisterCapability"
	methodDidChangeWatchedFiles = "workspace/didChangeWatchedFiles"
	methodPublishDiagnostics    = "textDocument/publishDiagnostics"
	methodDidOpen               = "textDocument/didOpen"
	methodDidChange             = "textDocument/didChange"
	methodDocumentSymbol        = "textDocument/documentSymbol"
	methodDefinition            = "textDocument/definition"
	methodHover                 = "textDocument/hover"
	methodReadFile              = "workspace/readFile"
	methodWorkspaceSymbol       = "workspace/symbol"
)

var allMethods = []MethodDescriptor{
	{methodCancelRequest, true, Both, true},
	{methodInitialize, false, ClientInitiated, true},
	{methodInitialized, true, ClientInitiated, true},
	{methodShutdown, false, ClientInitiated, true},
	{methodExit, true, ClientInitiated, true},
	{methodRegisterCapability, false, ServerInitiated, true},
	{methodUnregisterCapability, false, ServerInitiated, true},
	{methodDidChangeWatchedFiles, true, ClientInitiated, true},
	{methodPublishDiagnostics, true, ServerInitiated, true},
	{methodDidOpen, true, ClientInitiated, true},
	{methodDidChange, true, ClientInitiated, true},
	{methodDocumentSymbol, false, ClientInitiated, true},
	{methodDefinition, false, ClientInitiated, true},
	{methodHover, false, ClientInitiated, true},
	{methodReadFile, false, ServerInitiated, true},
	{methodWorkspaceSymbol, false, ClientInitiated, true},
}

// methodByName looks up a descriptor. Unknown names come back as
// unsupported client-initiated methods.
func methodByName(name string) MethodDescriptor {
	for _, m := range allMethods {
		if m.Name == name {
			return m
		}
	}
	return MethodDescriptor{Name: name, IsNotification: true, Kind: ClientInitiated, Supported: false}
}
