package pipeline

import (
	"fmt"

	"github.com/optimumenergyco/sorbet/internal/core"
)

// Resolve enters every declaration of the given trees into the state's
// symbol table: classes and modules, their parent links, methods and their
// parameters. Re-resolving a tree whose file was edited moves the existing
// symbols' definition locations and replaces parameter lists; class and
// method symbol ids are stable across re-resolves, while argument symbols
// are entered afresh each time.
//
// Resolve reports declaration-level problems (method redefinitions within a
// file, parent changes) to the state's error queue. It returns the trees
// unchanged for the typechecker.
func Resolve(gs *core.GlobalState, trees []*Tree) []*Tree {
	names := core.UnfreezeNameTable(gs)
	defer names.Close()
	symbols := core.UnfreezeSymbolTable(gs)
	defer symbols.Close()

	r := &resolver{gs: gs}
	for _, tree := range trees {
		r.seenMethods = make(map[methodKey]core.Loc)
		r.resolveStmts(core.RootSymbol, tree.Root.Stmts)
	}
	return trees
}

// resolveConstants enters a stub class for every constant reference with no
// declaration, so dispatch on such receivers can still fall through the
// ancestor chain. Stubs carry no definition location and stay out of the
// definition hash.
func (r *resolver) resolveConstants(n Node) {
	switch node := n.(type) {
	case *ConstRef:
		name := r.gs.EnterName(node.Name)
		if !core.RootSymbol.Data(r.gs).Member(name).Exists() {
			r.gs.EnterClassSymbol(core.RootSymbol, name, core.NoLoc(), false)
		}
	case *Send:
		if node.Recv != nil {
			r.resolveConstants(node.Recv)
		}
		for _, arg := range node.Args {
			r.resolveConstants(arg)
		}
	case *Assign:
		if node.Value != nil {
			r.resolveConstants(node.Value)
		}
	case *Seq:
		for _, stmt := range node.Stmts {
			r.resolveConstants(stmt)
		}
	}
}

type methodKey struct {
	owner core.SymbolRef
	name  string
}

type resolver struct {
	gs          *core.GlobalState
	seenMethods map[methodKey]core.Loc
}

func (r *resolver) resolveStmts(owner core.SymbolRef, stmts []Node) {
	for _, stmt := range stmts {
		switch node := stmt.(type) {
		case *ClassDef:
			r.resolveClass(owner, node)
		case *MethodDef:
			r.resolveMethod(owner, node)
		case *Seq:
			r.resolveStmts(owner, node.Stmts)
		default:
			r.resolveConstants(stmt)
		}
	}
}

func (r *resolver) resolveClass(owner core.SymbolRef, def *ClassDef) {
	name := r.gs.EnterName(def.Name)
	ref := r.gs.EnterClassSymbol(owner, name, def.HeaderLoc, def.IsModule)
	data := ref.Data(r.gs)
	data.DefinitionLoc = def.HeaderLoc
	data.IsModule = def.IsModule

	if def.Superclass != "" {
		superName := r.gs.EnterName(def.Superclass)
		super := r.gs.EnterClassSymbol(core.RootSymbol, superName, core.NoLoc(), false)
		// re-fetch: entering the superclass may have grown the arena
		data = ref.Data(r.gs)
		prev := data.Superclass
		if prev.Exists() && prev != super {
			r.gs.Errors.PushError(&core.PendingError{
				Loc:     def.HeaderLoc,
				Code:    ErrRedefinitionOfParents,
				Message: fmt.Sprintf("Parent of `%s` redefined from `%s` to `%s`", def.Name, prev.Data(r.gs).Show(r.gs), def.Superclass),
			})
		}
		data.Superclass = super
	}

	r.resolveStmts(ref, def.Body)
}

func (r *resolver) resolveMethod(owner core.SymbolRef, def *MethodDef) {
	// methods declared at the top level hang off Object, like the VM does it
	methodOwner := owner
	if methodOwner == core.RootSymbol {
		methodOwner = core.SymbolObject
	}

	key := methodKey{owner: methodOwner, name: def.Name}
	if prevLoc, dup := r.seenMethods[key]; dup {
		r.gs.Errors.PushError(&core.PendingError{
			Loc:     def.HeaderLoc,
			Code:    ErrRedefinitionOfMethod,
			Message: fmt.Sprintf("Method `%s` redefined", def.Name),
			Sections: []core.ErrorSection{{
				Header: "Previous definition",
				Lines:  []core.ErrorLine{{Loc: prevLoc}},
			}},
		})
		return
	}
	r.seenMethods[key] = def.HeaderLoc

	name := r.gs.EnterName(def.Name)
	ref := r.gs.EnterMethodSymbol(methodOwner, name, def.HeaderLoc)
	data := ref.Data(r.gs)
	data.DefinitionLoc = def.HeaderLoc

	// replace, not append: an edit may have changed the parameter list
	data.Arguments = nil
	for _, arg := range def.Args {
		argName := r.gs.EnterName(arg.Name)
		argRef := r.gs.EnterMethodArgumentSymbol(ref, argName, arg.ArgLoc)
		argRef.Data(r.gs).ResultType = core.Untyped()
	}

	for _, stmt := range def.Body {
		r.resolveConstants(stmt)
	}
}
