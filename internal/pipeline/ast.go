package pipeline

import (
	"encoding/gob"

	"github.com/optimumenergyco/sorbet/internal/core"
)

// Node is one node of the indexed tree. Trees are parsed and named but not
// resolved; resolution and typechecking walk them against a global state.
//
// All implementations use exported fields so trees serialize into the
// on-disk cache with encoding/gob.
type Node interface {
	// Loc returns the node's full source range.
	Loc() core.Loc

	deepCopy() Node
	retarget(fref core.FileRef)
}

func init() {
	gob.Register(&Seq{})
	gob.Register(&ClassDef{})
	gob.Register(&MethodDef{})
	gob.Register(&Send{})
	gob.Register(&Ident{})
	gob.Register(&ConstRef{})
	gob.Register(&IntLit{})
	gob.Register(&StringLit{})
	gob.Register(&SymbolLit{})
	gob.Register(&Assign{})
}

// Tree is the indexed tree for one file, keyed by its FileRef id.
type Tree struct {
	File core.FileRef
	Path string
	Root *Seq
}

// DeepCopy clones the whole tree. Typechecking consumes copies so the
// stored tree survives for later fast paths.
func (t *Tree) DeepCopy() *Tree {
	return &Tree{File: t.File, Path: t.Path, Root: t.Root.deepCopy().(*Seq)}
}

// Retarget rewrites every loc in the tree to point at fref. Used when a
// cached tree is loaded into a state where the file landed at a different
// slot.
func (t *Tree) Retarget(fref core.FileRef) {
	t.File = fref
	t.Root.retarget(fref)
}

// Seq is an ordered statement list.
type Seq struct {
	Stmts   []Node
	SpanLoc core.Loc
}

func (n *Seq) Loc() core.Loc { return n.SpanLoc }

func (n *Seq) deepCopy() Node {
	out := &Seq{SpanLoc: n.SpanLoc, Stmts: make([]Node, len(n.Stmts))}
	for i, s := range n.Stmts {
		out.Stmts[i] = s.deepCopy()
	}
	return out
}

func (n *Seq) retarget(fref core.FileRef) {
	n.SpanLoc.File = fref
	for _, s := range n.Stmts {
		s.retarget(fref)
	}
}

// ClassDef declares a class or module.
type ClassDef struct {
	Name       string
	IsModule   bool
	Superclass string // empty when none declared
	Body       []Node

	NameLoc   core.Loc
	HeaderLoc core.Loc // `class Foo < Bar` without the body
	SpanLoc   core.Loc
}

func (n *ClassDef) Loc() core.Loc { return n.SpanLoc }

func (n *ClassDef) deepCopy() Node {
	out := *n
	out.Body = make([]Node, len(n.Body))
	for i, s := range n.Body {
		out.Body[i] = s.deepCopy()
	}
	return &out
}

func (n *ClassDef) retarget(fref core.FileRef) {
	n.NameLoc.File = fref
	n.HeaderLoc.File = fref
	n.SpanLoc.File = fref
	for _, s := range n.Body {
		s.retarget(fref)
	}
}

// ArgDef is one declared method parameter.
type ArgDef struct {
	Name   string
	ArgLoc core.Loc
}

// MethodDef declares a method.
type MethodDef struct {
	Name string
	Args []ArgDef
	Body []Node

	NameLoc   core.Loc
	HeaderLoc core.Loc // `def foo(a, b)` without the body
	SpanLoc   core.Loc
}

func (n *MethodDef) Loc() core.Loc { return n.SpanLoc }

func (n *MethodDef) deepCopy() Node {
	out := *n
	out.Args = append([]ArgDef(nil), n.Args...)
	out.Body = make([]Node, len(n.Body))
	for i, s := range n.Body {
		out.Body[i] = s.deepCopy()
	}
	return &out
}

func (n *MethodDef) retarget(fref core.FileRef) {
	n.NameLoc.File = fref
	n.HeaderLoc.File = fref
	n.SpanLoc.File = fref
	for i := range n.Args {
		n.Args[i].ArgLoc.File = fref
	}
	for _, s := range n.Body {
		s.retarget(fref)
	}
}

// Send is a method call. A nil Recv means an implicit self receiver.
type Send struct {
	Recv   Node
	Method string
	Args   []Node

	MethodLoc core.Loc // the method name token
	SpanLoc   core.Loc
}

func (n *Send) Loc() core.Loc { return n.SpanLoc }

func (n *Send) deepCopy() Node {
	out := *n
	if n.Recv != nil {
		out.Recv = n.Recv.deepCopy()
	}
	out.Args = make([]Node, len(n.Args))
	for i, a := range n.Args {
		out.Args[i] = a.deepCopy()
	}
	return &out
}

func (n *Send) retarget(fref core.FileRef) {
	n.MethodLoc.File = fref
	n.SpanLoc.File = fref
	if n.Recv != nil {
		n.Recv.retarget(fref)
	}
	for _, a := range n.Args {
		a.retarget(fref)
	}
}

// Ident is a bare lowercase name: a local variable read, or an implicit
// self-send when no local is in scope.
type Ident struct {
	Name    string
	SpanLoc core.Loc
}

func (n *Ident) Loc() core.Loc           { return n.SpanLoc }
func (n *Ident) deepCopy() Node          { out := *n; return &out }
func (n *Ident) retarget(f core.FileRef) { n.SpanLoc.File = f }

// ConstRef is a constant reference.
type ConstRef struct {
	Name    string
	SpanLoc core.Loc
}

func (n *ConstRef) Loc() core.Loc           { return n.SpanLoc }
func (n *ConstRef) deepCopy() Node          { out := *n; return &out }
func (n *ConstRef) retarget(f core.FileRef) { n.SpanLoc.File = f }

// IntLit is an integer literal.
type IntLit struct {
	Value   string
	SpanLoc core.Loc
}

func (n *IntLit) Loc() core.Loc           { return n.SpanLoc }
func (n *IntLit) deepCopy() Node          { out := *n; return &out }
func (n *IntLit) retarget(f core.FileRef) { n.SpanLoc.File = f }

// StringLit is a string literal, value without quotes.
type StringLit struct {
	Value   string
	SpanLoc core.Loc
}

func (n *StringLit) Loc() core.Loc           { return n.SpanLoc }
func (n *StringLit) deepCopy() Node          { out := *n; return &out }
func (n *StringLit) retarget(f core.FileRef) { n.SpanLoc.File = f }

// SymbolLit is a symbol literal, value without the leading colon.
type SymbolLit struct {
	Value   string
	SpanLoc core.Loc
}

func (n *SymbolLit) Loc() core.Loc           { return n.SpanLoc }
func (n *SymbolLit) deepCopy() Node          { out := *n; return &out }
func (n *SymbolLit) retarget(f core.FileRef) { n.SpanLoc.File = f }

// Assign is a local variable assignment.
type Assign struct {
	Target    string
	Value     Node
	TargetLoc core.Loc
	SpanLoc   core.Loc
}

func (n *Assign) Loc() core.Loc { return n.SpanLoc }

func (n *Assign) deepCopy() Node {
	out := *n
	if n.Value != nil {
		out.Value = n.Value.deepCopy()
	}
	return &out
}

func (n *Assign) retarget(fref core.FileRef) {
	n.TargetLoc.File = fref
	n.SpanLoc.File = fref
	if n.Value != nil {
		n.Value.retarget(fref)
	}
}
