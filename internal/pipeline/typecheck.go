package pipeline

import (
	"fmt"

	"github.com/optimumenergyco/sorbet/internal/core"
	"github.com/optimumenergyco/sorbet/internal/workers"
)

// Typecheck infers and checks every method body and top-level statement of
// the given trees. Diagnostics and query responses go to the state's error
// queue.
//
// Two phases: first, method return types are inferred sequentially in file
// order so dispatch results do not depend on scheduling; second, bodies are
// checked in parallel on the pool. Workers only read the symbol table and
// push into the queue, so the shared state needs no locking.
func Typecheck(gs *core.GlobalState, trees []*Tree, pool *workers.Pool) {
	for _, tree := range trees {
		inferReturnTypes(gs, core.RootSymbol, tree.Root.Stmts)
	}

	pool.Run(len(trees), func(i int) {
		tree := trees[i]
		c := &checkCtx{
			gs:        gs,
			file:      tree.File,
			withQuery: !gs.LSPQueryLoc.IsNone() && gs.LSPQueryLoc.File == tree.File,
		}
		c.checkStmts(core.RootSymbol, tree.Root.Stmts, newEnv())
	})
}

// inferReturnTypes walks declarations and records each method's inferred
// return type on its symbol.
func inferReturnTypes(gs *core.GlobalState, owner core.SymbolRef, stmts []Node) {
	for _, stmt := range stmts {
		switch node := stmt.(type) {
		case *ClassDef:
			if class := lookupClass(gs, owner, node.Name); class.Exists() {
				inferReturnTypes(gs, class, node.Body)
			}
		case *MethodDef:
			methodOwner := owner
			if methodOwner == core.RootSymbol {
				methodOwner = core.SymbolObject
			}
			name := gs.LookupName(node.Name)
			if !name.Exists() {
				continue
			}
			method := methodOwner.Data(gs).Member(name)
			if !method.Exists() {
				continue
			}
			c := &checkCtx{gs: gs, file: node.SpanLoc.File, silent: true}
			env := newEnv()
			for _, arg := range node.Args {
				env.set(arg.Name, core.Untyped(), arg.ArgLoc)
			}
			ret := core.Type(core.ClassType{Symbol: core.SymbolNilClass})
			for _, bodyStmt := range node.Body {
				ret = c.checkNode(methodOwner, bodyStmt, env)
			}
			method.Data(gs).ResultType = ret
		case *Seq:
			inferReturnTypes(gs, owner, node.Stmts)
		}
	}
}

type localInfo struct {
	typ      core.Type
	origins  []core.Loc
	declared bool
}

type env struct {
	locals map[string]*localInfo
}

func newEnv() *env {
	return &env{locals: make(map[string]*localInfo)}
}

func (e *env) set(name string, typ core.Type, origin core.Loc) {
	e.locals[name] = &localInfo{typ: typ, origins: []core.Loc{origin}, declared: true}
}

type checkCtx struct {
	gs        *core.GlobalState
	file      core.FileRef
	withQuery bool
	// silent suppresses error and query emission; used by the return-type
	// inference pre-pass so problems report exactly once.
	silent bool
}

func (c *checkCtx) checkStmts(owner core.SymbolRef, stmts []Node, e *env) {
	for _, stmt := range stmts {
		switch node := stmt.(type) {
		case *ClassDef:
			if class := lookupClass(c.gs, owner, node.Name); class.Exists() {
				c.checkStmts(class, node.Body, newEnv())
			}
		case *MethodDef:
			c.checkMethodBody(owner, node)
		case *Seq:
			c.checkStmts(owner, node.Stmts, e)
		default:
			c.checkNode(owner, stmt, e)
		}
	}
}

func (c *checkCtx) checkMethodBody(owner core.SymbolRef, def *MethodDef) {
	e := newEnv()
	for _, arg := range def.Args {
		e.set(arg.Name, core.Untyped(), arg.ArgLoc)
	}
	methodOwner := owner
	if methodOwner == core.RootSymbol {
		methodOwner = core.SymbolObject
	}
	for _, stmt := range def.Body {
		c.checkNode(methodOwner, stmt, e)
	}
}

// checkNode infers the type of one expression, reporting problems and
// answering an active positional query along the way.
func (c *checkCtx) checkNode(owner core.SymbolRef, n Node, e *env) core.Type {
	switch node := n.(type) {
	case *IntLit:
		t := core.LiteralType{Underlying: core.SymbolInteger, Value: node.Value}
		c.answerLiteral(node.SpanLoc, t)
		return t

	case *StringLit:
		t := core.LiteralType{Underlying: core.SymbolString, Value: fmt.Sprintf("%q", node.Value)}
		c.answerLiteral(node.SpanLoc, t)
		return t

	case *SymbolLit:
		t := core.LiteralType{Underlying: core.SymbolSymbol, Value: ":" + node.Value}
		c.answerLiteral(node.SpanLoc, t)
		return t

	case *ConstRef:
		return c.checkConstant(node)

	case *Ident:
		return c.checkIdent(owner, node, e)

	case *Assign:
		return c.checkAssign(owner, node, e)

	case *Send:
		return c.checkSend(owner, node, e)

	case *Seq:
		t := core.Type(core.ClassType{Symbol: core.SymbolNilClass})
		for _, stmt := range node.Stmts {
			t = c.checkNode(owner, stmt, e)
		}
		return t

	case *ClassDef:
		if class := lookupClass(c.gs, owner, node.Name); class.Exists() {
			c.checkStmts(class, node.Body, newEnv())
		}
		return core.ClassType{Symbol: core.SymbolNilClass}

	case *MethodDef:
		c.checkMethodBody(owner, node)
		return core.LiteralType{Underlying: core.SymbolSymbol, Value: ":" + node.Name}

	default:
		return core.Untyped()
	}
}

func (c *checkCtx) checkConstant(node *ConstRef) core.Type {
	name := c.gs.LookupName(node.Name)
	var t core.Type = core.Untyped()
	if name.Exists() {
		if class := core.RootSymbol.Data(c.gs).Member(name); class.Exists() {
			t = core.SingletonType{Symbol: class}
		}
	}
	if c.queryAt(node.SpanLoc) {
		c.gs.Errors.PushQueryResponse(&core.QueryResponse{
			Kind:    core.QueryConstant,
			RetType: core.TypeAndOrigins{Type: t, Origins: []core.Loc{node.SpanLoc}},
		})
	}
	return t
}

func (c *checkCtx) checkIdent(owner core.SymbolRef, node *Ident, e *env) core.Type {
	if local, ok := e.locals[node.Name]; ok {
		if c.queryAt(node.SpanLoc) {
			c.gs.Errors.PushQueryResponse(&core.QueryResponse{
				Kind:    core.QueryIdent,
				RetType: core.TypeAndOrigins{Type: local.typ, Origins: local.origins},
			})
		}
		return local.typ
	}
	// no local in scope: an implicit self-send with no arguments
	send := &Send{Method: node.Name, MethodLoc: node.SpanLoc, SpanLoc: node.SpanLoc}
	return c.dispatch(owner, send, core.ClassType{Symbol: owner}, owner, true)
}

func (c *checkCtx) checkAssign(owner core.SymbolRef, node *Assign, e *env) core.Type {
	var t core.Type = core.Untyped()
	if node.Value != nil {
		t = c.checkNode(owner, node.Value, e)
	}
	if prev, ok := e.locals[node.Target]; ok && prev.declared && !c.silent {
		c.gs.Errors.PushError(&core.PendingError{
			Loc:     node.TargetLoc,
			Code:    ErrDuplicateVariableDeclaration,
			Message: fmt.Sprintf("Duplicate declaration of variable `%s`", node.Target),
		})
	}
	e.set(node.Target, t, node.TargetLoc)
	if c.queryAt(node.TargetLoc) {
		c.gs.Errors.PushQueryResponse(&core.QueryResponse{
			Kind:    core.QueryIdent,
			RetType: core.TypeAndOrigins{Type: t, Origins: []core.Loc{node.TargetLoc}},
		})
	}
	return t
}

func (c *checkCtx) checkSend(owner core.SymbolRef, node *Send, e *env) core.Type {
	if node.Recv == nil {
		return c.dispatch(owner, node, core.ClassType{Symbol: owner}, owner, false)
	}

	recvType := c.checkNode(owner, node.Recv, e)

	switch recv := recvType.(type) {
	case core.SingletonType:
		if node.Method == "new" {
			return c.dispatchNew(node, recv)
		}
		return c.dispatch(owner, node, recv, recv.Symbol, false)
	case core.ClassType:
		return c.dispatch(owner, node, recv, recv.Symbol, false)
	case core.AppliedType:
		return c.dispatch(owner, node, recv, recv.Klass, false)
	case core.LiteralType:
		return c.dispatch(owner, node, recv, recv.Underlying, false)
	default:
		// untyped receiver: check arguments, learn nothing
		for _, arg := range node.Args {
			c.checkNode(owner, arg, e)
		}
		return core.Untyped()
	}
}

// dispatchNew handles `SomeClass.new`: the result is an instance of the
// class, and the argument list is checked against initialize when the class
// declares one.
func (c *checkCtx) dispatchNew(node *Send, recv core.SingletonType) core.Type {
	result := core.Type(core.ClassType{Symbol: recv.Symbol})

	initialize := c.lookupMethod(recv.Symbol, "initialize")
	var components []core.DispatchComponent
	if initialize.Exists() {
		c.checkArity(node, initialize)
		components = append(components, core.DispatchComponent{Method: initialize, Receiver: recv})
	}

	if c.queryAt(node.MethodLoc) {
		c.gs.Errors.PushQueryResponse(&core.QueryResponse{
			Kind:               core.QuerySend,
			RetType:            core.TypeAndOrigins{Type: result, Origins: []core.Loc{node.SpanLoc}},
			DispatchComponents: components,
		})
	}
	return result
}

// dispatch resolves a send against a receiver class and checks its arity.
// implicitIdent marks bare identifiers that might be method calls; unknown
// names there stay silent because the identifier may simply be undefined.
func (c *checkCtx) dispatch(owner core.SymbolRef, node *Send, recvType core.Type, recvClass core.SymbolRef, implicitIdent bool) core.Type {
	method := c.lookupMethod(recvClass, node.Method)
	if !method.Exists() {
		if !c.silent && !implicitIdent && !c.isStubClass(recvClass) {
			c.gs.Errors.PushError(&core.PendingError{
				Loc:     node.MethodLoc,
				Code:    ErrMethodDoesNotExist,
				Message: fmt.Sprintf("Method `%s` does not exist on `%s`", node.Method, recvType.Show(c.gs)),
			})
		}
		return core.Untyped()
	}

	c.checkArity(node, method)

	result := method.Data(c.gs).ResultType
	if result == nil {
		result = core.Untyped()
	}
	if applied, ok := recvType.(core.AppliedType); ok {
		result = core.ResultTypeAsSeenFrom(c.gs, method, applied.Klass, applied.TypeArgs)
	}
	result = core.ReplaceSelfType(c.gs, result, recvType)

	if c.queryAt(node.MethodLoc) {
		c.gs.Errors.PushQueryResponse(&core.QueryResponse{
			Kind:    core.QuerySend,
			RetType: core.TypeAndOrigins{Type: result, Origins: []core.Loc{node.SpanLoc}},
			DispatchComponents: []core.DispatchComponent{
				{Method: method, Receiver: recvType},
			},
		})
	}
	return result
}

func (c *checkCtx) checkArity(node *Send, method core.SymbolRef) {
	if c.silent {
		return
	}
	data := method.Data(c.gs)
	want := len(data.Arguments)
	got := len(node.Args)
	if got < want {
		c.gs.Errors.PushError(&core.PendingError{
			Loc:     node.MethodLoc,
			Code:    ErrNotEnoughArguments,
			Message: fmt.Sprintf("Not enough arguments provided for method `%s`. Expected: %d, got: %d", data.FullName(c.gs), want, got),
			Sections: []core.ErrorSection{{
				Header: "The method is defined here",
				Lines:  []core.ErrorLine{{Loc: data.DefinitionLoc}},
			}},
		})
	} else if got > want {
		c.gs.Errors.PushError(&core.PendingError{
			Loc:     node.MethodLoc,
			Code:    ErrTooManyArguments,
			Message: fmt.Sprintf("Too many arguments provided for method `%s`. Expected: %d, got: %d", data.FullName(c.gs), want, got),
			Sections: []core.ErrorSection{{
				Header: "The method is defined here",
				Lines:  []core.ErrorLine{{Loc: data.DefinitionLoc}},
			}},
		})
	}
}

// lookupClass finds a class declared under owner, falling back to the root
// scope; constant resolution in the checker mirrors the resolver's entry.
func lookupClass(gs *core.GlobalState, owner core.SymbolRef, name string) core.SymbolRef {
	nameRef := gs.LookupName(name)
	if !nameRef.Exists() {
		return 0
	}
	if owner.Exists() {
		if member := owner.Data(gs).Member(nameRef); member.Exists() {
			return member
		}
	}
	return core.RootSymbol.Data(gs).Member(nameRef)
}

// lookupMethod walks the ancestor chain: the class, its superclasses, then
// Object, where top-level methods live.
func (c *checkCtx) lookupMethod(class core.SymbolRef, name string) core.SymbolRef {
	nameRef := c.gs.LookupName(name)
	if !nameRef.Exists() {
		return 0
	}
	seen := 0
	for cur := class; cur.Exists() && seen < 64; seen++ {
		data := cur.Data(c.gs)
		if member := data.Member(nameRef); member.Exists() && member.Data(c.gs).Kind == core.KindMethod {
			return member
		}
		cur = data.Superclass
	}
	if class != core.SymbolObject {
		if member := core.SymbolObject.Data(c.gs).Member(nameRef); member.Exists() && member.Data(c.gs).Kind == core.KindMethod {
			return member
		}
	}
	return 0
}

// isStubClass reports whether the class was conjured from an unresolved
// constant; sends to stubs stay silent rather than cascading.
func (c *checkCtx) isStubClass(class core.SymbolRef) bool {
	if !class.Exists() {
		return true
	}
	data := class.Data(c.gs)
	if data.Kind != core.KindClass {
		return false
	}
	switch class {
	case core.SymbolObject, core.SymbolInteger, core.SymbolString,
		core.SymbolSymbol, core.SymbolNilClass, core.SymbolTrueClass:
		return false
	}
	return data.DefinitionLoc.IsNone()
}

func (c *checkCtx) answerLiteral(loc core.Loc, t core.Type) {
	if !c.queryAt(loc) {
		return
	}
	c.gs.Errors.PushQueryResponse(&core.QueryResponse{
		Kind:    core.QueryLiteral,
		RetType: core.TypeAndOrigins{Type: t, Origins: []core.Loc{loc}},
	})
}

// queryAt reports whether the active positional query falls inside loc.
func (c *checkCtx) queryAt(loc core.Loc) bool {
	if c.silent || !c.withQuery {
		return false
	}
	return loc.Contains(c.gs.LSPQueryLoc.BeginAt)
}
