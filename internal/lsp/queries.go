package lsp

import (
	"fmt"
	"strings"

	"github.com/optimumenergyco/sorbet/internal/core"
)

// locToRange converts an internal one-based loc into a zero-based wire
// range.
func (l *Loop) locToRange(loc core.Loc) Range {
	begin, end := loc.Position(l.finalGS)
	return Range{
		Start: Position{Line: begin.Line - 1, Character: begin.Column - 1},
		End:   Position{Line: end.Line - 1, Character: end.Column - 1},
	}
}

// locToLocation renders a loc as a wire location. Payload files carry a
// #L<line> fragment so the path stays navigable in a browser; that fragment
// is a display convenience, not protocol.
func (l *Loop) locToLocation(loc core.Loc) Location {
	file := l.finalGS.File(loc.File)
	var uri string
	if file.Type == core.Payload {
		begin, _ := loc.Position(l.finalGS)
		uri = fmt.Sprintf("%s#L%d", file.Path, begin.Line)
	} else {
		uri = l.fileRefToURI(loc.File)
	}
	return Location{URI: uri, Range: l.locToRange(loc)}
}

// setupQueryByLoc points both states' query cursor at the request position,
// re-runs the fast path over just that file so the typechecker revisits it
// with the cursor armed, then disarms the cursor. Afterwards the query
// responses sit in the queue for the caller to drain.
func (l *Loop) setupQueryByLoc(fref core.FileRef, pos Position) {
	file := l.finalGS.File(fref)
	offset := file.Pos2Offset(core.Detail{Line: pos.Line + 1, Column: pos.Character + 1})
	loc := core.Loc{File: fref, BeginAt: offset, EndAt: offset}

	l.initialGS.LSPQueryLoc = loc
	l.finalGS.LSPQueryLoc = loc

	l.tryFastPath([]*core.File{file})

	l.initialGS.LSPQueryLoc = core.NoLoc()
	l.finalGS.LSPQueryLoc = core.NoLoc()
}

func (l *Loop) handleDefinition(msg *Message) {
	var params PositionalParams
	if err := unmarshalParams(msg.Params, &params); err != nil {
		l.sendError(msg.ID, InvalidParams, "malformed definition params")
		return
	}

	result := make([]Location, 0, 1)
	if fref := l.uriToFileRef(params.TextDocument.URI); fref.Exists() {
		l.setupQueryByLoc(fref, params.Position)

		if responses := l.queue.DrainQueryResponses(); len(responses) > 0 {
			resp := responses[0]
			if resp.Kind == core.QueryIdent {
				if len(resp.RetType.Origins) > 0 {
					result = append(result, l.locToLocation(resp.RetType.Origins[0]))
				}
			} else {
				for _, component := range resp.DispatchComponents {
					if component.Method.Exists() {
						result = append(result, l.locToLocation(component.Method.Data(l.finalGS).DefinitionLoc))
					}
				}
			}
		}
	}
	l.sendResult(msg.ID, result)
}

func (l *Loop) handleHover(msg *Message) {
	var params PositionalParams
	if err := unmarshalParams(msg.Params, &params); err != nil {
		l.sendError(msg.ID, InvalidParams, "malformed hover params")
		return
	}

	fref := l.uriToFileRef(params.TextDocument.URI)
	if !fref.Exists() {
		l.sendError(msg.ID, InvalidParams,
			fmt.Sprintf("Did not find file at uri %s in textDocument/hover", params.TextDocument.URI))
		return
	}

	l.setupQueryByLoc(fref, params.Position)

	responses := l.queue.DrainQueryResponses()
	if len(responses) == 0 {
		l.sendError(msg.ID, InvalidParams, "Did not find symbol at hover location in textDocument/hover")
		return
	}

	resp := responses[0]
	switch resp.Kind {
	case core.QuerySend:
		if len(resp.DispatchComponents) == 0 {
			l.sendError(msg.ID, InvalidParams,
				"Did not find any dispatchComponents for a SEND QueryResponse in textDocument/hover")
			return
		}
		var contents strings.Builder
		for _, component := range resp.DispatchComponents {
			if !component.Method.Exists() {
				continue
			}
			if contents.Len() > 0 {
				contents.WriteString(" ")
			}
			contents.WriteString(l.formatDispatch(resp, component))
		}
		l.sendResult(msg.ID, Hover{Contents: MarkupContent{Kind: "markdown", Value: contents.String()}})

	case core.QueryIdent, core.QueryConstant, core.QueryLiteral:
		l.sendResult(msg.ID, Hover{Contents: MarkupContent{
			Kind:  "markdown",
			Value: resp.RetType.Type.Show(l.finalGS),
		}})

	default:
		l.sendError(msg.ID, InvalidParams, "Unhandled QueryResponse kind in textDocument/hover")
	}
}

// formatDispatch renders one dispatch component as a fenced signature:
// ```<return-type> <method-name>(<arg>: <type>, …)```
func (l *Loop) formatDispatch(resp *core.QueryResponse, component core.DispatchComponent) string {
	gs := l.finalGS

	retType := resp.RetType.Type
	if resp.Constraint != nil {
		retType = core.Instantiate(gs, retType, resp.Constraint)
	}

	method := component.Method.Data(gs)
	var args []string
	for _, argRef := range method.Arguments {
		arg := argRef.Data(gs)
		argType := l.argumentType(argRef, component.Receiver, resp.Constraint)
		args = append(args, gs.NameString(arg.Name)+": "+argType.Show(gs))
	}

	return fmt.Sprintf("```%s %s(%s)```", retType.Show(gs), method.FullName(gs), strings.Join(args, ", "))
}

// argumentType computes a parameter's display type as seen from the
// receiver: generic classes instantiate through the receiver's applied
// type, self types are replaced by the receiver, and generic methods
// instantiate through the dispatch constraint.
func (l *Loop) argumentType(arg core.SymbolRef, receiver core.Type, constraint *core.TypeConstraint) core.Type {
	gs := l.finalGS

	result := arg.Data(gs).ResultType
	if applied, ok := receiver.(core.AppliedType); ok {
		result = core.ResultTypeAsSeenFrom(gs, arg, applied.Klass, applied.TypeArgs)
	}
	if result == nil {
		result = core.Untyped()
	}
	result = core.ReplaceSelfType(gs, result, receiver)
	if constraint != nil {
		result = core.Instantiate(gs, result, constraint)
	}
	return result
}

func (l *Loop) handleDocumentSymbol(msg *Message) {
	var params DocumentSymbolParams
	if err := unmarshalParams(msg.Params, &params); err != nil {
		l.sendError(msg.ID, InvalidParams, "malformed documentSymbol params")
		return
	}

	result := make([]SymbolInformation, 0)
	fref := l.uriToFileRef(params.TextDocument.URI)
	if fref.Exists() {
		for idx := 1; idx < l.finalGS.SymbolsUsed(); idx++ {
			ref := core.SymbolRef(idx)
			if ref.Data(l.finalGS).DefinitionLoc.File == fref {
				if info := l.symbolInformation(ref); info != nil {
					result = append(result, *info)
				}
			}
		}
	}
	l.sendResult(msg.ID, result)
}

func (l *Loop) handleWorkspaceSymbol(msg *Message) {
	var params WorkspaceSymbolParams
	if err := unmarshalParams(msg.Params, &params); err != nil {
		l.sendError(msg.ID, InvalidParams, "malformed workspace symbol params")
		return
	}

	result := make([]SymbolInformation, 0)
	for idx := 1; idx < l.finalGS.SymbolsUsed(); idx++ {
		ref := core.SymbolRef(idx)
		if core.SymbolNameMatches(l.finalGS, ref.Data(l.finalGS), params.Query) {
			if info := l.symbolInformation(ref); info != nil {
				result = append(result, *info)
			}
		}
	}
	l.sendResult(msg.ID, result)
}

// symbolInformation maps a symbol to its wire description, or nil for
// symbols without a mapped kind or a real definition location.
func (l *Loop) symbolInformation(ref core.SymbolRef) *SymbolInformation {
	gs := l.finalGS
	sym := ref.Data(gs)
	if sym.DefinitionLoc.IsNone() {
		return nil
	}

	var kind int
	switch sym.Kind {
	case core.KindClass:
		if sym.IsModule {
			kind = 2
		} else {
			kind = 5
		}
	case core.KindMethod:
		if gs.NameString(sym.Name) == "initialize" {
			kind = 9
		} else {
			kind = 6
		}
	case core.KindField:
		kind = 8
	case core.KindStaticField:
		kind = 14
	case core.KindMethodArgument:
		kind = 13
	case core.KindTypeMember, core.KindTypeArgument:
		kind = 26
	default:
		return nil
	}

	return &SymbolInformation{
		Name:          sym.Show(gs),
		Kind:          kind,
		Location:      l.locToLocation(sym.DefinitionLoc),
		ContainerName: sym.Owner.Data(gs).FullName(gs),
	}
}
