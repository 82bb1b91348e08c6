package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/optimumenergyco/sorbet/internal/config"
	"github.com/optimumenergyco/sorbet/internal/logging"
)

// testClient drives a running loop over in-memory pipes, the way an editor
// would over stdio.
type testClient struct {
	t      *testing.T
	stdin  *io.PipeWriter
	msgs   chan *Message
	done   chan error
	nextID int
}

func startServer(t *testing.T, root string) *testClient {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Pool.Workers = 2
	cfg.Cache.Enabled = false

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()

	loop := New(cfg, logging.NewDiscardLogger(), Options{
		Stdin:         stdinR,
		Stdout:        stdoutW,
		WorkspaceRoot: root,
	})

	c := &testClient{
		t:     t,
		stdin: stdinW,
		msgs:  make(chan *Message, 64),
		done:  make(chan error, 1),
	}

	go func() { c.done <- loop.Run() }()
	go func() {
		reader := bufio.NewReader(stdoutR)
		for {
			msg, err := readMessage(reader)
			if err != nil {
				close(c.msgs)
				return
			}
			c.msgs <- msg
		}
	}()

	t.Cleanup(func() {
		stdinW.Close() //nolint:errcheck // test cleanup
		select {
		case <-c.done:
		case <-time.After(3 * time.Second):
		}
	})

	return c
}

func (c *testClient) send(obj interface{}) {
	c.t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		c.t.Fatal(err)
	}
	if _, err := fmt.Fprintf(c.stdin, "Content-Length: %d\r\n\r\n%s", len(data), data); err != nil {
		c.t.Fatalf("send failed: %v", err)
	}
}

func (c *testClient) request(method string, params interface{}) int {
	c.t.Helper()
	c.nextID++
	c.send(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      c.nextID,
		"method":  method,
		"params":  params,
	})
	return c.nextID
}

func (c *testClient) notify(method string, params interface{}) {
	c.t.Helper()
	c.send(map[string]interface{}{"jsonrpc": "2.0", "method": method, "params": params})
}

// next returns the next server message, failing the test on timeout.
func (c *testClient) next() *Message {
	c.t.Helper()
	select {
	case msg, ok := <-c.msgs:
		if !ok {
			c.t.Fatal("server output closed")
		}
		return msg
	case <-time.After(5 * time.Second):
		c.t.Fatal("timed out waiting for a server message")
		return nil
	}
}

// result waits for the response to the given request id and decodes it.
func (c *testClient) result(id int, into interface{}) *Message {
	c.t.Helper()
	for {
		msg := c.next()
		if !msg.IsReply() {
			continue
		}
		var gotID int
		if err := json.Unmarshal(msg.ID, &gotID); err != nil || gotID != id {
			continue
		}
		if into != nil && msg.Result != nil {
			if err := json.Unmarshal(msg.Result, into); err != nil {
				c.t.Fatalf("failed to decode result: %v", err)
			}
		}
		return msg
	}
}

// notification waits for the next notification with the given method.
func (c *testClient) notification(method string, into interface{}) {
	c.t.Helper()
	for {
		msg := c.next()
		if msg.Method != method {
			continue
		}
		if into != nil {
			if err := json.Unmarshal(msg.Params, into); err != nil {
				c.t.Fatalf("failed to decode %s params: %v", method, err)
			}
		}
		return
	}
}

// initializeWorkspace performs the full handshake over a seeded workspace.
func initializeWorkspace(t *testing.T, files map[string]string) (*testClient, string) {
	t.Helper()

	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	c := startServer(t, root)

	rootURI := "file:///ws"
	id := c.request(methodInitialize, map[string]interface{}{"rootUri": rootURI})
	var init InitializeResult
	c.result(id, &init)
	if !init.Capabilities.DefinitionProvider || init.Capabilities.TextDocumentSync != 1 {
		t.Fatalf("unexpected capabilities: %+v", init.Capabilities)
	}

	c.notify(methodInitialized, map[string]interface{}{})

	// after initialized, the server registers file watchers; acknowledge so
	// later tests see a quiet channel. Initial diagnostics, if any, publish
	// first.
	msg := c.next()
	for msg.Method == methodPublishDiagnostics {
		msg = c.next()
	}
	if msg.Method != methodRegisterCapability {
		t.Fatalf("expected a %s request after initialized, got %+v", methodRegisterCapability, msg)
	}
	var reqID string
	if err := json.Unmarshal(msg.ID, &reqID); err != nil {
		t.Fatal(err)
	}
	c.send(map[string]interface{}{"jsonrpc": "2.0", "id": reqID, "result": nil})

	return c, rootURI
}

func (c *testClient) didChange(uri, text string) {
	c.t.Helper()
	c.notify(methodDidChange, map[string]interface{}{
		"textDocument":   map[string]interface{}{"uri": uri},
		"contentChanges": []map[string]interface{}{{"text": text}},
	})
}

// barrier round-trips a shutdown request, proving every earlier message has
// been processed and flushed.
func (c *testClient) barrier() {
	c.t.Helper()
	id := c.request(methodShutdown, nil)
	c.result(id, nil)
}

const (
	bodyV1 = "def f\n  1\nend\n"
	bodyV2 = "def f\n  2\nend\n"
	sigV2  = "def f(x)\n  x\nend\n"
	caller = "A.new.f\n"
)

func TestBodyOnlyEditTakesFastPath(t *testing.T) {
	c, rootURI := initializeWorkspace(t, map[string]string{"a.rb": bodyV1, "b.rb": caller})

	c.didChange(rootURI+"/a.rb", bodyV2)

	var params PublishDiagnosticsParams
	c.notification(methodPublishDiagnostics, &params)
	if params.URI != rootURI+"/a.rb" {
		t.Errorf("expected a publish for a.rb, got %q", params.URI)
	}
	if len(params.Diagnostics) != 0 {
		t.Errorf("expected an empty diagnostic set, got %+v", params.Diagnostics)
	}

	// nothing for b.rb: the barrier reply must be the very next message
	id := c.request(methodShutdown, nil)
	msg := c.next()
	if msg.Method == methodPublishDiagnostics {
		t.Error("fast path must not republish untouched files")
	}
	var gotID int
	_ = json.Unmarshal(msg.ID, &gotID)
	if !msg.IsReply() || gotID != id {
		t.Errorf("expected the shutdown reply, got %+v", msg)
	}
}

func TestSignatureChangeTakesSlowPath(t *testing.T) {
	c, rootURI := initializeWorkspace(t, map[string]string{"a.rb": bodyV1, "b.rb": caller})

	c.didChange(rootURI+"/a.rb", bodyV2) // fast path first, as an editor would
	var first PublishDiagnosticsParams
	c.notification(methodPublishDiagnostics, &first)

	c.didChange(rootURI+"/a.rb", sigV2)

	var params PublishDiagnosticsParams
	c.notification(methodPublishDiagnostics, &params)
	if params.URI != rootURI+"/b.rb" {
		t.Fatalf("expected the caller to republish, got %q", params.URI)
	}
	if len(params.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %+v", params.Diagnostics)
	}
	d := params.Diagnostics[0]
	if !strings.Contains(d.Message, "Not enough arguments") {
		t.Errorf("message = %q", d.Message)
	}
	if d.Range.Start.Line != 0 || d.Range.Start.Character != 6 {
		t.Errorf("diagnostic must point at the call site, got %+v", d.Range)
	}
	if len(d.RelatedInformation) != 1 {
		t.Fatalf("expected relatedInformation pointing at the definition, got %+v", d.RelatedInformation)
	}
	if d.RelatedInformation[0].Location.URI != rootURI+"/a.rb" {
		t.Errorf("relatedInformation uri = %q", d.RelatedInformation[0].Location.URI)
	}
	if d.RelatedInformation[0].Message != "The method is defined here" {
		t.Errorf("relatedInformation must fall back to the section header, got %q", d.RelatedInformation[0].Message)
	}
}

func TestWatchedFileRoundTrip(t *testing.T) {
	c, rootURI := initializeWorkspace(t, map[string]string{"a.rb": bodyV1})

	c.notify(methodDidChangeWatchedFiles, map[string]interface{}{
		"changes": []map[string]interface{}{{"uri": rootURI + "/c.rb", "type": 1}},
	})

	// the server must ask for the contents
	msg := c.next()
	if msg.Method != methodReadFile {
		t.Fatalf("expected a %s request, got %+v", methodReadFile, msg)
	}
	var uris []string
	if err := json.Unmarshal(msg.Params, &uris); err != nil {
		t.Fatal(err)
	}
	if len(uris) != 1 || uris[0] != rootURI+"/c.rb" {
		t.Fatalf("readFile uris = %v", uris)
	}
	var reqID string
	if err := json.Unmarshal(msg.ID, &reqID); err != nil || !strings.HasPrefix(reqID, "typer-req-") {
		t.Fatalf("server request id = %q", reqID)
	}

	c.send(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      reqID,
		"result":  []map[string]interface{}{{"uri": rootURI + "/c.rb", "content": "class C\nend\n"}},
	})

	// the reply is processed before any later message, so the very next
	// query already sees the new class
	var symbols []SymbolInformation
	id := c.request(methodWorkspaceSymbol, map[string]interface{}{"query": "C"})
	c.result(id, &symbols)
	if len(symbols) != 1 {
		t.Fatalf("expected exactly the new class, got %+v", symbols)
	}
	if symbols[0].Name != "C" || symbols[0].Kind != 5 {
		t.Errorf("workspace symbol = %+v", symbols[0])
	}
	if symbols[0].Location.URI != rootURI+"/c.rb" {
		t.Errorf("symbol uri = %q", symbols[0].Location.URI)
	}
}

func TestDefinitionOnMethodSend(t *testing.T) {
	c, rootURI := initializeWorkspace(t, map[string]string{"a.rb": bodyV1, "b.rb": caller})

	id := c.request(methodDefinition, map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": rootURI + "/b.rb"},
		"position":     map[string]interface{}{"line": 0, "character": 6},
	})

	var locations []Location
	c.result(id, &locations)
	if len(locations) != 1 {
		t.Fatalf("expected 1 location, got %+v", locations)
	}
	if locations[0].URI != rootURI+"/a.rb" {
		t.Errorf("definition uri = %q", locations[0].URI)
	}
	if locations[0].Range.Start.Line != 0 {
		t.Errorf("definition must span the def f header, got %+v", locations[0].Range)
	}
}

func TestHoverOnLiteral(t *testing.T) {
	c, rootURI := initializeWorkspace(t, map[string]string{"a.rb": bodyV2})

	id := c.request(methodHover, map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": rootURI + "/a.rb"},
		"position":     map[string]interface{}{"line": 1, "character": 2},
	})

	var hover Hover
	c.result(id, &hover)
	if hover.Contents.Kind != "markdown" {
		t.Errorf("contents kind = %q", hover.Contents.Kind)
	}
	if hover.Contents.Value != "Integer(2)" {
		t.Errorf("contents value = %q, want Integer(2)", hover.Contents.Value)
	}
}

func TestHoverOnMethodSendFormatsSignature(t *testing.T) {
	c, rootURI := initializeWorkspace(t, map[string]string{"a.rb": sigV2, "b.rb": "A.new.f(1)\n"})

	id := c.request(methodHover, map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": rootURI + "/b.rb"},
		"position":     map[string]interface{}{"line": 0, "character": 6},
	})

	var hover Hover
	c.result(id, &hover)
	value := hover.Contents.Value
	if !strings.HasPrefix(value, "```") || !strings.HasSuffix(value, "```") {
		t.Errorf("hover must be fenced, got %q", value)
	}
	if !strings.Contains(value, "f(x: ") {
		t.Errorf("hover must list the parameter with its type, got %q", value)
	}
}

func TestHoverWithNoSymbolIsInvalidParams(t *testing.T) {
	c, rootURI := initializeWorkspace(t, map[string]string{"a.rb": "\n\n\n"})

	id := c.request(methodHover, map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": rootURI + "/a.rb"},
		"position":     map[string]interface{}{"line": 1, "character": 0},
	})

	msg := c.result(id, nil)
	if msg.Error == nil {
		t.Fatal("expected an error reply")
	}
	var respErr ResponseError
	if err := json.Unmarshal(msg.Error, &respErr); err != nil {
		t.Fatal(err)
	}
	if respErr.Code != InvalidParams {
		t.Errorf("code = %d, want InvalidParams", respErr.Code)
	}
}

func TestSilencedDiagnosticSuppressed(t *testing.T) {
	c, rootURI := initializeWorkspace(t, map[string]string{"a.rb": bodyV1})

	c.didChange(rootURI+"/a.rb", "def f\n  1\nend\ndef f\n  2\nend\n")

	var params PublishDiagnosticsParams
	c.notification(methodPublishDiagnostics, &params)
	if params.URI != rootURI+"/a.rb" {
		t.Fatalf("expected a publish for a.rb, got %q", params.URI)
	}
	if len(params.Diagnostics) != 0 {
		t.Errorf("method redefinition must be silenced, got %+v", params.Diagnostics)
	}
}

func TestUnknownRequestIsMethodNotFound(t *testing.T) {
	c, _ := initializeWorkspace(t, map[string]string{"a.rb": bodyV1})

	id := c.request("textDocument/rename", map[string]interface{}{})
	msg := c.result(id, nil)
	if msg.Error == nil {
		t.Fatal("expected an error reply")
	}
	var respErr ResponseError
	if err := json.Unmarshal(msg.Error, &respErr); err != nil {
		t.Fatal(err)
	}
	if respErr.Code != MethodNotFound {
		t.Errorf("code = %d, want MethodNotFound", respErr.Code)
	}
}

func TestEditOutsideRootIsIgnored(t *testing.T) {
	c, _ := initializeWorkspace(t, map[string]string{"a.rb": bodyV1})

	c.didChange("file:///elsewhere/x.rb", "def g\nend\n")
	c.barrier()
}

func TestDocumentSymbol(t *testing.T) {
	c, rootURI := initializeWorkspace(t, map[string]string{
		"w.rb": "class Widget\n  def initialize(size)\n  end\n  def render\n  end\nend\n",
	})

	id := c.request(methodDocumentSymbol, map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": rootURI + "/w.rb"},
	})

	var symbols []SymbolInformation
	c.result(id, &symbols)

	kinds := make(map[string]int)
	for _, s := range symbols {
		kinds[s.Name] = s.Kind
	}
	if kinds["Widget"] != 5 {
		t.Errorf("Widget kind = %d, want 5", kinds["Widget"])
	}
	if kinds["initialize"] != 9 {
		t.Errorf("initialize kind = %d, want 9", kinds["initialize"])
	}
	if kinds["render"] != 6 {
		t.Errorf("render kind = %d, want 6", kinds["render"])
	}
	if kinds["size"] != 13 {
		t.Errorf("size kind = %d, want 13", kinds["size"])
	}
}

func TestExitTerminatesRun(t *testing.T) {
	c, _ := initializeWorkspace(t, map[string]string{"a.rb": bodyV1})

	c.notify(methodExit, nil)
	select {
	case err := <-c.done:
		if err != nil {
			t.Errorf("exit must terminate cleanly, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not terminate on exit")
	}
}
