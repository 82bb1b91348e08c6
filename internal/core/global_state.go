package core

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// GlobalState is the entire compiler world: file table, name table, symbol
// table, and the error/query queue. States are owned by the event loop;
// workers receive either a private throwaway state or a read-only snapshot.
//
// All three tables are frozen once construction finishes. Entering a new
// file, name or symbol requires an explicit Unfreeze* scope; entering into a
// frozen table is an internal inconsistency and panics. ReplaceFile swaps an
// existing slot and does not check the freeze.
type GlobalState struct {
	files       []*File // slot 0 unused, FileRef ids are dense from 1
	filesByPath map[string]FileRef

	names      []string // slot 0 unused, NameRef ids are dense from 1
	namesByStr map[string]NameRef

	symbols []Symbol // slot 0 unused, RootSymbol lives at 1

	// SilenceErrors makes ErrorRegion scopes discard instead of flush.
	// Set on throwaway states used for definition hashing.
	SilenceErrors bool

	// LSPQueryLoc is the single-point cursor of interest; the typechecker
	// emits QueryResponses for nodes covering it. NoLoc when no query is
	// active.
	LSPQueryLoc Loc

	// Errors is shared between a state and its deep copies so that the
	// event loop drains one queue regardless of which state produced the
	// diagnostic.
	Errors *ErrorQueue

	fileTableFrozen   bool
	nameTableFrozen   bool
	symbolTableFrozen bool
}

// Well-known symbols entered by NewGlobalState, at the same dense ids in
// every state.
const (
	SymbolObject    SymbolRef = 2
	SymbolInteger   SymbolRef = 3
	SymbolString    SymbolRef = 4
	SymbolSymbol    SymbolRef = 5
	SymbolNilClass  SymbolRef = 6
	SymbolTrueClass SymbolRef = 7
)

// NewGlobalState creates an empty state wired to the given queue, enters
// the synthetic root and the builtin classes, and freezes all tables.
func NewGlobalState(queue *ErrorQueue) *GlobalState {
	gs := &GlobalState{
		files:       make([]*File, 1),
		filesByPath: make(map[string]FileRef),
		names:       make([]string, 1),
		namesByStr:  make(map[string]NameRef),
		symbols:     make([]Symbol, 1),
		Errors:      queue,
	}

	rootName := gs.EnterName("<root>")
	gs.symbols = append(gs.symbols, Symbol{
		Name:    rootName,
		Owner:   RootSymbol,
		Kind:    KindClass,
		members: make(map[NameRef]SymbolRef),
	})

	builtins := []struct {
		name string
		want SymbolRef
	}{
		{"Object", SymbolObject},
		{"Integer", SymbolInteger},
		{"String", SymbolString},
		{"Symbol", SymbolSymbol},
		{"NilClass", SymbolNilClass},
		{"TrueClass", SymbolTrueClass},
	}
	for _, b := range builtins {
		got := gs.EnterClassSymbol(RootSymbol, gs.EnterName(b.name), NoLoc(), false)
		if got != b.want {
			panic(fmt.Sprintf("core: builtin %s entered at id %d, want %d", b.name, got, b.want))
		}
	}

	gs.fileTableFrozen = true
	gs.nameTableFrozen = true
	gs.symbolTableFrozen = true
	return gs
}

// DeepCopy clones every table. The error queue is shared with the copy, not
// cloned: diagnostics from either state land in the same queue.
func (gs *GlobalState) DeepCopy() *GlobalState {
	out := &GlobalState{
		files:             make([]*File, len(gs.files)),
		filesByPath:       make(map[string]FileRef, len(gs.filesByPath)),
		names:             make([]string, len(gs.names)),
		namesByStr:        make(map[string]NameRef, len(gs.namesByStr)),
		symbols:           make([]Symbol, len(gs.symbols)),
		SilenceErrors:     gs.SilenceErrors,
		LSPQueryLoc:       gs.LSPQueryLoc,
		Errors:            gs.Errors,
		fileTableFrozen:   gs.fileTableFrozen,
		nameTableFrozen:   gs.nameTableFrozen,
		symbolTableFrozen: gs.symbolTableFrozen,
	}
	copy(out.files, gs.files)
	for k, v := range gs.filesByPath {
		out.filesByPath[k] = v
	}
	copy(out.names, gs.names)
	for k, v := range gs.namesByStr {
		out.namesByStr[k] = v
	}
	for i := range gs.symbols {
		sym := gs.symbols[i]
		if sym.Arguments != nil {
			sym.Arguments = append([]SymbolRef(nil), sym.Arguments...)
		}
		if sym.members != nil {
			members := make(map[NameRef]SymbolRef, len(sym.members))
			for k, v := range sym.members {
				members[k] = v
			}
			sym.members = members
		}
		out.symbols[i] = sym
	}
	return out
}

// EnterName interns a string, growing the name table as needed.
func (gs *GlobalState) EnterName(s string) NameRef {
	if ref, ok := gs.namesByStr[s]; ok {
		return ref
	}
	if gs.nameTableFrozen {
		panic(fmt.Sprintf("core: entering name %q into frozen name table", s))
	}
	ref := NameRef(len(gs.names))
	gs.names = append(gs.names, s)
	gs.namesByStr[s] = ref
	return ref
}

// LookupName returns the interned ref for s, or the null name.
func (gs *GlobalState) LookupName(s string) NameRef {
	return gs.namesByStr[s]
}

// NameString resolves an interned name.
func (gs *GlobalState) NameString(ref NameRef) string {
	if int(ref) >= len(gs.names) {
		panic(fmt.Sprintf("core: dereference of invalid NameRef %d", ref))
	}
	return gs.names[ref]
}

// EnterFile appends a file to the table and returns its new dense ref.
func (gs *GlobalState) EnterFile(f *File) FileRef {
	if gs.fileTableFrozen {
		panic(fmt.Sprintf("core: entering file %q into frozen file table", f.Path))
	}
	ref := FileRef(len(gs.files))
	gs.files = append(gs.files, f)
	gs.filesByPath[f.Path] = ref
	return ref
}

// ReplaceFile swaps the contents of an existing slot, keeping the ref
// stable. The file table stays append-only: replace never changes ids.
func (gs *GlobalState) ReplaceFile(ref FileRef, f *File) {
	if !ref.Exists() || ref.ID() >= len(gs.files) {
		panic(fmt.Sprintf("core: ReplaceFile with invalid ref %d", ref))
	}
	old := gs.files[ref.ID()]
	if old.Path != f.Path {
		delete(gs.filesByPath, old.Path)
		gs.filesByPath[f.Path] = ref
	}
	gs.files[ref.ID()] = f
}

// FindFileByPath returns the ref for a path, or the null ref.
func (gs *GlobalState) FindFileByPath(path string) FileRef {
	return gs.filesByPath[path]
}

// File returns the file at ref. Panics on the null ref.
func (gs *GlobalState) File(ref FileRef) *File {
	if !ref.Exists() || ref.ID() >= len(gs.files) {
		panic(fmt.Sprintf("core: dereference of invalid FileRef %d", ref))
	}
	return gs.files[ref.ID()]
}

// FilesUsed returns the file table size including the unused zero slot, so
// valid refs are 1..FilesUsed()-1.
func (gs *GlobalState) FilesUsed() int {
	return len(gs.files)
}

// SymbolsUsed returns the symbol table size including the unused zero slot.
func (gs *GlobalState) SymbolsUsed() int {
	return len(gs.symbols)
}

// EnterClassSymbol finds or creates a class/module symbol owned by owner.
func (gs *GlobalState) EnterClassSymbol(owner SymbolRef, name NameRef, loc Loc, isModule bool) SymbolRef {
	if existing := owner.Data(gs).Member(name); existing.Exists() {
		return existing
	}
	return gs.enterSymbol(owner, Symbol{
		Name:          name,
		Owner:         owner,
		Kind:          KindClass,
		IsModule:      isModule,
		DefinitionLoc: loc,
		members:       make(map[NameRef]SymbolRef),
	})
}

// EnterMethodSymbol finds or creates a method symbol owned by owner.
func (gs *GlobalState) EnterMethodSymbol(owner SymbolRef, name NameRef, loc Loc) SymbolRef {
	if existing := owner.Data(gs).Member(name); existing.Exists() {
		return existing
	}
	return gs.enterSymbol(owner, Symbol{
		Name:          name,
		Owner:         owner,
		Kind:          KindMethod,
		DefinitionLoc: loc,
	})
}

// EnterMethodArgumentSymbol creates an argument symbol and appends it to the
// method's parameter list.
func (gs *GlobalState) EnterMethodArgumentSymbol(method SymbolRef, name NameRef, loc Loc) SymbolRef {
	ref := gs.enterSymbol(method, Symbol{
		Name:          name,
		Owner:         method,
		Kind:          KindMethodArgument,
		DefinitionLoc: loc,
	})
	data := method.Data(gs)
	data.Arguments = append(data.Arguments, ref)
	return ref
}

func (gs *GlobalState) enterSymbol(owner SymbolRef, sym Symbol) SymbolRef {
	if gs.symbolTableFrozen {
		panic(fmt.Sprintf("core: entering symbol into frozen symbol table (owner %d)", owner))
	}
	ref := SymbolRef(len(gs.symbols))
	gs.symbols = append(gs.symbols, sym)
	ownerData := owner.Data(gs)
	if ownerData.members == nil {
		ownerData.members = make(map[NameRef]SymbolRef)
	}
	ownerData.members[sym.Name] = ref
	return ref
}

// Hash digests the shape of every declared symbol: owner-qualified names,
// kinds, parent links, and parameter lists. Method bodies, result types,
// and source locations do not participate, so body-only edits hash equal.
func (gs *GlobalState) Hash() uint32 {
	d := xxhash.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		d.Write(buf[:])
	}
	for i := 2; i < len(gs.symbols); i++ {
		sym := &gs.symbols[i]
		if sym.Kind == KindMethodArgument {
			// arguments digest with their owning method
			continue
		}
		if sym.Kind == KindClass && sym.DefinitionLoc.IsNone() {
			// builtins and constant-reference stubs: not declarations of
			// this file, and stubs would make bodies shape the hash
			continue
		}
		d.WriteString(sym.FullName(gs))
		writeInt(int(sym.Kind))
		if sym.IsModule {
			writeInt(1)
		}
		if sym.Superclass.Exists() {
			d.WriteString(sym.Superclass.Data(gs).FullName(gs))
		}
		writeInt(len(sym.Arguments))
		for _, arg := range sym.Arguments {
			d.WriteString(gs.NameString(arg.Data(gs).Name))
		}
		writeInt(-1)
	}
	sum := d.Sum64()
	return uint32(sum) ^ uint32(sum>>32)
}

// UnfreezeScope reverts a table to frozen on Close. The scope guarantees
// the matching freeze on all exit paths, including failures.
type UnfreezeScope struct {
	restore func()
}

// Close re-freezes whatever the scope unfroze.
func (u *UnfreezeScope) Close() {
	u.restore()
}

// UnfreezeFileTable opens the file table for mutation.
func UnfreezeFileTable(gs *GlobalState) *UnfreezeScope {
	prev := gs.fileTableFrozen
	gs.fileTableFrozen = false
	return &UnfreezeScope{restore: func() { gs.fileTableFrozen = prev }}
}

// UnfreezeNameTable opens the name table for mutation.
func UnfreezeNameTable(gs *GlobalState) *UnfreezeScope {
	prev := gs.nameTableFrozen
	gs.nameTableFrozen = false
	return &UnfreezeScope{restore: func() { gs.nameTableFrozen = prev }}
}

// UnfreezeSymbolTable opens the symbol table for mutation.
func UnfreezeSymbolTable(gs *GlobalState) *UnfreezeScope {
	prev := gs.symbolTableFrozen
	gs.symbolTableFrozen = false
	return &UnfreezeScope{restore: func() { gs.symbolTableFrozen = prev }}
}
