// Package lsp implements the incremental language-server core: a
// single-threaded event loop that keeps two generations of compiler state
// synchronized with the editor's view of the workspace and answers
// interactive queries over a length-framed JSON protocol on stdio.
//
// The loop owns both global states. initialGS is the indexed baseline; it
// grows monotonically and is never typechecked. finalGS is the checked
// snapshot, refreshed in place by fast paths and rebuilt from the baseline
// by slow paths. Parallel work (definition hashing, typechecking) runs on a
// fixed pool; the error queue is the only structure shared with workers.
package lsp

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/optimumenergyco/sorbet/internal/config"
	"github.com/optimumenergyco/sorbet/internal/core"
	"github.com/optimumenergyco/sorbet/internal/kvstore"
	"github.com/optimumenergyco/sorbet/internal/pipeline"
	"github.com/optimumenergyco/sorbet/internal/watcher"
	"github.com/optimumenergyco/sorbet/internal/workers"
)

type replyHandler struct {
	onResult func(json.RawMessage)
	onError  func(json.RawMessage)
}

// Options configures a Loop. Zero fields fall back to stdio and the
// process working directory.
type Options struct {
	Stdin         io.Reader
	Stdout        io.Writer
	WorkspaceRoot string
	Cache         *kvstore.Store
	Watcher       *watcher.Watcher
}

// Loop is the event loop. Not safe for concurrent use: one goroutine runs
// Run and owns every field.
type Loop struct {
	cfg    *config.Config
	logger *slog.Logger

	reader        *bufio.Reader
	writer        io.Writer
	workspaceRoot string

	rootURI string

	queue     *core.ErrorQueue
	initialGS *core.GlobalState
	finalGS   *core.GlobalState

	// dense by FileRef id, grown but never shrunk
	indexed           []*pipeline.Tree
	globalStateHashes []uint32

	errorsAccumulated map[core.FileRef][]*core.PendingError
	updatedErrors     []core.FileRef

	awaitingReply  map[string]replyHandler
	requestCounter int

	pool  *workers.Pool
	cache *kvstore.Store
	watch *watcher.Watcher

	// set once the client sends workspace/didChangeWatchedFiles; the local
	// watcher stands down when the editor watches for us
	clientWatches bool
}

// New creates a loop wired to the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Loop {
	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	root := opts.WorkspaceRoot
	if root == "" {
		root = "."
	}

	queue := core.NewErrorQueue(cfg.Queue.Capacity)
	initialGS := core.NewGlobalState(queue)

	return &Loop{
		cfg:               cfg,
		logger:            logger,
		reader:            bufio.NewReader(stdin),
		writer:            stdout,
		workspaceRoot:     root,
		queue:             queue,
		initialGS:         initialGS,
		finalGS:           initialGS.DeepCopy(),
		errorsAccumulated: make(map[core.FileRef][]*core.PendingError),
		awaitingReply:     make(map[string]replyHandler),
		pool:              workers.New(cfg.Pool.Workers),
		cache:             opts.Cache,
		watch:             opts.Watcher,
	}
}

// Run processes messages until a clean exit, EOF, or an unrecoverable
// protocol error. The returned error is nil for clean terminations.
func (l *Loop) Run() error {
	l.logger.Info("language server starting", "workers", l.pool.Size())

	type readResult struct {
		msg *Message
		err error
	}
	messages := make(chan readResult)
	go func() {
		for {
			msg, err := readMessage(l.reader)
			messages <- readResult{msg: msg, err: err}
			if err != nil {
				return
			}
		}
	}()

	var batches <-chan []watcher.Event
	if l.watch != nil {
		l.watch.Start()
		defer l.watch.Stop()
		batches = l.watch.Batches()
	}

	for {
		select {
		case in := <-messages:
			if in.err == io.EOF {
				l.logger.Info("eof")
				return nil
			}
			if in.err != nil {
				l.logger.Error("protocol error", "error", in.err.Error())
				return in.err
			}
			if done := l.handleMessage(in.msg); done {
				return nil
			}
		case events := <-batches:
			l.handleWatcherBatch(events)
		}
	}
}

// handleMessage dispatches one message. The returned flag is true on exit.
func (l *Loop) handleMessage(msg *Message) bool {
	if msg.IsReply() {
		l.handleReply(msg)
		return false
	}

	method := methodByName(msg.Method)

	if msg.ID == nil {
		l.logger.Info("processing notification", "method", msg.Method)
		return l.handleNotification(method, msg)
	}

	l.logger.Info("processing request", "method", msg.Method)
	l.handleRequest(method, msg)
	return false
}

// handleReply routes an incoming result or error to the matching awaiting
// handler, which is invoked once and removed.
func (l *Loop) handleReply(msg *Message) {
	var id string
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		l.logger.Warn("reply with non-string id dropped")
		return
	}
	handler, ok := l.awaitingReply[id]
	if !ok {
		l.logger.Warn("reply for unknown request dropped", "id", id)
		return
	}
	delete(l.awaitingReply, id)

	if msg.Error != nil {
		if handler.onError != nil {
			handler.onError(msg.Error)
		}
		return
	}
	if handler.onResult != nil {
		handler.onResult(msg.Result)
	}
}

func (l *Loop) handleNotification(method MethodDescriptor, msg *Message) bool {
	switch method.Name {
	case methodExit:
		return true

	case methodCancelRequest:
		// accepted and ignored: no cancellation mid-batch

	case methodInitialized:
		l.handleInitialized()

	case methodDidOpen:
		var params DidOpenParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			l.logger.Warn("malformed didOpen params", "error", err.Error())
			return false
		}
		l.handleEdit(params.TextDocument.URI, params.TextDocument.Text)

	case methodDidChange:
		var params DidChangeParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			l.logger.Warn("malformed didChange params", "error", err.Error())
			return false
		}
		if len(params.ContentChanges) == 0 {
			return false
		}
		l.handleEdit(params.TextDocument.URI, params.ContentChanges[0].Text)

	case methodDidChangeWatchedFiles:
		l.clientWatches = true
		var params DidChangeWatchedFilesParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			l.logger.Warn("malformed didChangeWatchedFiles params", "error", err.Error())
			return false
		}
		l.handleWatchedFiles(params)

	default:
		if !method.Supported {
			l.logger.Info("ignoring unknown notification", "method", method.Name)
		}
	}
	return false
}

func (l *Loop) handleRequest(method MethodDescriptor, msg *Message) {
	switch method.Name {
	case methodInitialize:
		var params InitializeParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			l.sendError(msg.ID, InvalidParams, "malformed initialize params")
			return
		}
		l.rootURI = params.RootURI
		l.sendResult(msg.ID, InitializeResult{Capabilities: ServerCapabilities{
			TextDocumentSync:        1,
			DocumentSymbolProvider:  true,
			WorkspaceSymbolProvider: true,
			DefinitionProvider:      true,
			HoverProvider:           true,
		}})

	case methodShutdown:
		l.sendResult(msg.ID, nil)

	case methodDocumentSymbol:
		l.handleDocumentSymbol(msg)

	case methodWorkspaceSymbol:
		l.handleWorkspaceSymbol(msg)

	case methodDefinition:
		l.handleDefinition(msg)

	case methodHover:
		l.handleHover(msg)

	default:
		l.sendError(msg.ID, MethodNotFound, "Unknown method: "+method.Name)
	}
}

// handleInitialized seeds the compiler: reindex the workspace from the
// filesystem, run a full slow path, publish the first diagnostics, and
// record the per-file definition hashes the fast path will compare against.
func (l *Loop) handleInitialized() {
	l.reIndexFromFileSystem()
	l.runSlowPath(nil)
	l.pushErrors()

	files := make([]*core.File, l.finalGS.FilesUsed())
	for i := 1; i < l.finalGS.FilesUsed(); i++ {
		files[i] = l.finalGS.File(core.FileRef(i))
	}
	l.globalStateHashes = l.computeStateHashes(files)

	l.registerFileWatchers()
}

// registerFileWatchers asks the editor to watch workspace sources and feed
// changes back through workspace/didChangeWatchedFiles.
func (l *Loop) registerFileWatchers() {
	watchers := make([]map[string]interface{}, 0, len(l.cfg.Workspace.SourceExtensions))
	for _, ext := range l.cfg.Workspace.SourceExtensions {
		watchers = append(watchers, map[string]interface{}{"globPattern": "**/*" + ext})
	}
	params := map[string]interface{}{
		"registrations": []map[string]interface{}{{
			"id":              "workspace-file-watchers",
			"method":          methodDidChangeWatchedFiles,
			"registerOptions": map[string]interface{}{"watchers": watchers},
		}},
	}
	l.sendRequest(methodRegisterCapability, params,
		func(json.RawMessage) {},
		func(errPayload json.RawMessage) {
			l.logger.Info("client declined file watcher registration", "error", string(errPayload))
		})
}

// handleEdit is the shared didOpen/didChange entry: URIs outside the root
// are silently ignored, everything else goes through the fast/slow
// scheduler.
func (l *Loop) handleEdit(uri, content string) {
	if !l.insideRoot(uri) {
		return
	}
	file := core.NewFile(l.remoteToLocal(uri), content, core.Normal)
	l.tryFastPath([]*core.File{file})
	l.pushErrors()
}

// handleWatchedFiles asks the editor for the contents of the changed URIs
// and feeds the reply through the scheduler. A failed read drops the batch.
func (l *Loop) handleWatchedFiles(params DidChangeWatchedFilesParams) {
	uris := make([]string, 0, len(params.Changes))
	for _, change := range params.Changes {
		uris = append(uris, change.URI)
	}

	l.sendRequest(methodReadFile, uris,
		func(result json.RawMessage) {
			var items []ReadFileItem
			if err := json.Unmarshal(result, &items); err != nil {
				l.logger.Warn("malformed readFile reply", "error", err.Error())
				return
			}
			var files []*core.File
			for _, item := range items {
				if !l.insideRoot(item.URI) {
					continue
				}
				files = append(files, core.NewFile(l.remoteToLocal(item.URI), item.Content, core.Normal))
			}
			l.tryFastPath(files)
			l.pushErrors()
		},
		func(errPayload json.RawMessage) {
			l.logger.Warn("readFile request failed", "error", string(errPayload))
		})
}

// handleWatcherBatch feeds locally observed edits through the scheduler
// when the editor does not watch the workspace itself.
func (l *Loop) handleWatcherBatch(events []watcher.Event) {
	if l.clientWatches || l.rootURI == "" {
		return
	}
	var files []*core.File
	for _, ev := range events {
		content, err := os.ReadFile(ev.AbsPath)
		if err != nil {
			// deleted or unreadable: tombstone the slot if we know it
			if fref := l.initialGS.FindFileByPath(ev.Path); fref.Exists() {
				l.initialGS.ReplaceFile(fref, core.NewFile(ev.Path, "", core.TombStone))
			}
			continue
		}
		files = append(files, core.NewFile(ev.Path, string(content), core.Normal))
	}
	if len(files) == 0 {
		return
	}
	l.logger.Info("applying watcher batch", "files", len(files))
	l.tryFastPath(files)
	l.pushErrors()
}
