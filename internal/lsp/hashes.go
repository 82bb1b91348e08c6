package lsp

import (
	"github.com/optimumenergyco/sorbet/internal/core"
	"github.com/optimumenergyco/sorbet/internal/pipeline"
)

// computeStateHashes computes the structural definition hash of every file
// in the batch, in parallel on the pool. Results are positioned by input
// index, so the outcome is deterministic regardless of completion order. A
// nil file hashes to 0.
func (l *Loop) computeStateHashes(files []*core.File) []uint32 {
	hashes := make([]uint32, len(files))
	l.pool.Run(len(files), func(i int) {
		hashes[i] = l.computeFileHash(files[i])
	})
	return hashes
}

// computeFileHash builds a throwaway silenced state holding just this file,
// indexes and resolves it in isolation, and digests the declared symbol
// shapes. Worker-side diagnostics die with the scoped error region; they
// never reach the user.
//
// Bodies do not shape symbols, so body-only edits hash equal. A collision
// merely yields a stale fast path that downstream diagnostics expose.
func (l *Loop) computeFileHash(file *core.File) uint32 {
	if file == nil {
		return 0
	}

	lgs := core.NewGlobalState(core.NewErrorQueue(64))
	lgs.SilenceErrors = true
	region := core.NewErrorRegion(lgs)
	defer region.Close()

	fileScope := core.UnfreezeFileTable(lgs)
	defer fileScope.Close()
	nameScope := core.UnfreezeNameTable(lgs)
	defer nameScope.Close()
	symbolScope := core.UnfreezeSymbolTable(lgs)
	defer symbolScope.Close()

	fref := lgs.EnterFile(file)
	tree := pipeline.IndexOne(lgs, fref, l.cache, l.logger)
	pipeline.Resolve(lgs, []*pipeline.Tree{tree})
	return lgs.Hash()
}
