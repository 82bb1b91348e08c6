package lsp

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/optimumenergyco/sorbet/internal/core"
	"github.com/optimumenergyco/sorbet/internal/pipeline"
)

// addNewFile enters a file into the baseline, or replaces its existing slot
// when the path is already known, then re-indexes it into the dense indexed
// vector. Returns the file's ref.
func (l *Loop) addNewFile(file *core.File) core.FileRef {
	if file == nil {
		return 0
	}

	fref := l.initialGS.FindFileByPath(file.Path)
	if fref.Exists() {
		l.initialGS.ReplaceFile(fref, file)
	} else {
		scope := core.UnfreezeFileTable(l.initialGS)
		fref = l.initialGS.EnterFile(file)
		scope.Close()
	}

	tree := pipeline.IndexOne(l.initialGS, fref, l.cache, l.logger)
	l.storeIndexed(tree)
	return fref
}

// storeIndexed places a tree at its dense slot, growing the vector as
// needed. The vector never shrinks; deleted files leave empty slots.
func (l *Loop) storeIndexed(tree *pipeline.Tree) {
	id := tree.File.ID()
	if id >= len(l.indexed) {
		grown := make([]*pipeline.Tree, id+1)
		copy(grown, l.indexed)
		l.indexed = grown
	}
	l.indexed[id] = tree
}

// tryFastPath decides, per batch of changed files, between retyping just
// the batch against the existing snapshot and rebuilding the snapshot from
// the baseline. A batch is fast-path eligible only when no file is new and
// no file's definition hash moved; one structural change anywhere sends the
// whole batch down the slow path.
func (l *Loop) tryFastPath(changedFiles []*core.File) {
	l.logger.Info("checking fast path eligibility", "changedFiles", len(changedFiles))

	good := true
	hashes := l.computeStateHashes(changedFiles)
	if len(hashes) != len(changedFiles) {
		panic("lsp: hash batch size mismatch")
	}

	var subset []core.FileRef
	for i, file := range changedFiles {
		if file == nil {
			continue
		}
		wasFiles := l.initialGS.FilesUsed()
		fref := l.addNewFile(file)
		if wasFiles != l.initialGS.FilesUsed() {
			l.logger.Info("taking slow path: new file", "path", file.Path)
			good = false
			if len(l.globalStateHashes) <= fref.ID() {
				grown := make([]uint32, fref.ID()+1)
				copy(grown, l.globalStateHashes)
				l.globalStateHashes = grown
			}
			l.globalStateHashes[fref.ID()] = hashes[i]
		} else {
			if hashes[i] != l.globalStateHashes[fref.ID()] {
				l.logger.Info("taking slow path: changed definitions", "path", file.Path)
				good = false
				l.globalStateHashes[fref.ID()] = hashes[i]
			}
			if good {
				if fref.ID() >= l.finalGS.FilesUsed() {
					// the snapshot misses a slot for this ref; only a full
					// rebuild can reconcile the tables
					l.logger.Info("taking slow path: snapshot missing slot", "path", file.Path)
					good = false
				} else {
					l.finalGS.ReplaceFile(fref, file)
				}
			}
		}
		subset = append(subset, fref)
	}

	if !good {
		l.runSlowPath(changedFiles)
		return
	}

	l.logger.Info("taking fast path", "files", len(subset))
	l.invalidateErrorsFor(subset)

	// re-index the subset against the snapshot, in parallel; results land
	// by FileRef id so the outcome is deterministic
	updated := make([]*pipeline.Tree, len(subset))
	l.pool.Run(len(subset), func(i int) {
		updated[i] = pipeline.IndexOne(l.finalGS, subset[i], l.cache, l.logger)
	})

	copies := make([]*pipeline.Tree, len(updated))
	for i, tree := range updated {
		l.storeIndexed(tree)
		copies[i] = tree.DeepCopy()
	}

	pipeline.Typecheck(l.finalGS, pipeline.Resolve(l.finalGS, copies), l.pool)
}

// runSlowPath rebuilds the snapshot: every changed file joins the baseline,
// the baseline is deep-cloned, and the whole project re-resolves and
// re-typechecks against the clone.
func (l *Loop) runSlowPath(changedFiles []*core.File) {
	l.logger.Info("taking slow path", "changedFiles", len(changedFiles))

	l.invalidateAllErrors()

	for _, file := range changedFiles {
		l.addNewFile(file)
	}

	var copies []*pipeline.Tree
	for _, tree := range l.indexed {
		if tree != nil {
			copies = append(copies, tree.DeepCopy())
		}
	}

	l.finalGS = l.initialGS.DeepCopy()
	pipeline.Typecheck(l.finalGS, pipeline.Resolve(l.finalGS, copies), l.pool)
}

// reIndexFromFileSystem seeds the baseline from disk: payload stubs first,
// then every workspace source, plus any Normal file already mirrored that
// the walk did not find. A file readable on disk takes its disk contents;
// a mirrored buffer's text is kept only when the disk read fails.
func (l *Loop) reIndexFromFileSystem() {
	l.indexed = nil

	type entry struct {
		path string
		typ  core.SourceType
	}
	var entries []entry
	seen := make(map[string]bool)

	if dir := l.cfg.Workspace.PayloadDir; dir != "" {
		stubs, err := os.ReadDir(dir)
		if err != nil {
			l.logger.Warn("payload directory unreadable", "dir", dir, "error", err.Error())
		}
		for _, stub := range stubs {
			if stub.IsDir() {
				continue
			}
			path := filepath.Join(dir, stub.Name())
			entries = append(entries, entry{path: path, typ: core.Payload})
			seen[path] = true
		}
	}

	var workspace []string
	_ = filepath.Walk(l.workspaceRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries, keep walking
		}
		if info.IsDir() {
			if l.ignoredDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !l.sourceFile(path) {
			return nil
		}
		rel, relErr := filepath.Rel(l.workspaceRoot, path)
		if relErr != nil {
			return nil
		}
		workspace = append(workspace, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(workspace)
	for _, path := range workspace {
		if !seen[path] {
			entries = append(entries, entry{path: path, typ: core.Normal})
			seen[path] = true
		}
	}

	// keep already-mirrored editor buffers that the walk missed
	for i := 1; i < l.initialGS.FilesUsed(); i++ {
		file := l.initialGS.File(core.FileRef(i))
		if file.Type == core.Normal && !seen[file.Path] {
			entries = append(entries, entry{path: file.Path, typ: core.Normal})
			seen[file.Path] = true
		}
	}

	l.logger.Info("reindexing from filesystem", "files", len(entries))

	for _, e := range entries {
		var source string
		if fref := l.initialGS.FindFileByPath(e.path); fref.Exists() && e.typ == core.Normal {
			source = l.initialGS.File(fref).Source
		}
		abs := e.path
		if e.typ == core.Normal {
			abs = filepath.Join(l.workspaceRoot, filepath.FromSlash(e.path))
		}
		if content, err := os.ReadFile(abs); err == nil {
			source = string(content)
		} else if source == "" {
			l.logger.Warn("skipping unreadable source", "path", e.path, "error", err.Error())
			continue
		}
		l.addNewFile(core.NewFile(e.path, source, e.typ))
	}
}

func (l *Loop) ignoredDir(name string) bool {
	for _, ignored := range l.cfg.Workspace.Ignore {
		if name == ignored {
			return true
		}
	}
	return false
}

func (l *Loop) sourceFile(path string) bool {
	for _, ext := range l.cfg.Workspace.SourceExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
