package pipeline

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"

	"github.com/cespare/xxhash/v2"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"

	"github.com/optimumenergyco/sorbet/internal/core"
	"github.com/optimumenergyco/sorbet/internal/kvstore"
)

// IndexOne parses one file into its indexed tree. When a cache is supplied
// and holds a tree for the file's current contents, the cached tree is
// loaded and retargeted instead of reparsing. A parse never fails: files
// the grammar cannot make sense of produce a tree of whatever statements
// did parse.
func IndexOne(gs *core.GlobalState, fref core.FileRef, cache *kvstore.Store, logger *slog.Logger) *Tree {
	file := gs.File(fref)
	contentHash := xxhash.Sum64String(file.Source)

	if cache != nil {
		if data, ok := cache.Get(file.Path, contentHash); ok {
			if tree, err := decodeTree(data); err == nil {
				tree.Retarget(fref)
				return tree
			}
			logger.Warn("discarding undecodable cached tree", "path", file.Path)
		}
	}

	tree := parseFile(fref, file)

	if cache != nil {
		if data, err := encodeTree(tree); err == nil {
			if err := cache.Put(file.Path, contentHash, data); err != nil {
				logger.Warn("tree cache write failed", "path", file.Path, "error", err.Error())
			}
		}
	}

	return tree
}

func encodeTree(t *Tree) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t); err != nil {
		return nil, fmt.Errorf("failed to encode tree: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeTree(data []byte) (*Tree, error) {
	var t Tree
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	return &t, nil
}

func parseFile(fref core.FileRef, file *core.File) *Tree {
	parser := sitter.NewParser()
	parser.SetLanguage(ruby.GetLanguage())
	src := []byte(file.Source)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		// ParseCtx only fails on context cancellation; an empty tree keeps
		// the dense indexed vector intact.
		return &Tree{File: fref, Path: file.Path, Root: &Seq{}}
	}
	defer tree.Close()

	l := &lowerer{fref: fref, src: src}
	root := &Seq{
		Stmts:   l.lowerChildren(tree.RootNode()),
		SpanLoc: l.loc(tree.RootNode()),
	}
	return &Tree{File: fref, Path: file.Path, Root: root}
}

type lowerer struct {
	fref core.FileRef
	src  []byte
}

func (l *lowerer) loc(n *sitter.Node) core.Loc {
	return core.Loc{File: l.fref, BeginAt: int(n.StartByte()), EndAt: int(n.EndByte())}
}

func (l *lowerer) text(n *sitter.Node) string {
	return string(l.src[n.StartByte():n.EndByte()])
}

// lowerChildren lowers every named child, dropping nodes outside the
// supported subset.
func (l *lowerer) lowerChildren(n *sitter.Node) []Node {
	var out []Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if lowered := l.lower(n.NamedChild(i)); lowered != nil {
			out = append(out, lowered)
		}
	}
	return out
}

func (l *lowerer) lower(n *sitter.Node) Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "comment":
		return nil

	case "class", "module":
		return l.lowerClass(n)

	case "method":
		return l.lowerMethod(n)

	case "call", "method_call":
		return l.lowerCall(n)

	case "identifier":
		return &Ident{Name: l.text(n), SpanLoc: l.loc(n)}

	case "constant":
		return &ConstRef{Name: l.text(n), SpanLoc: l.loc(n)}

	case "integer":
		return &IntLit{Value: l.text(n), SpanLoc: l.loc(n)}

	case "string":
		return &StringLit{Value: stringContent(l, n), SpanLoc: l.loc(n)}

	case "simple_symbol":
		text := l.text(n)
		if len(text) > 0 && text[0] == ':' {
			text = text[1:]
		}
		return &SymbolLit{Value: text, SpanLoc: l.loc(n)}

	case "assignment":
		return l.lowerAssignment(n)

	case "body_statement", "parenthesized_statements", "begin":
		stmts := l.lowerChildren(n)
		if len(stmts) == 1 {
			return stmts[0]
		}
		return &Seq{Stmts: stmts, SpanLoc: l.loc(n)}

	default:
		return nil
	}
}

func (l *lowerer) lowerClass(n *sitter.Node) Node {
	def := &ClassDef{
		IsModule: n.Type() == "module",
		SpanLoc:  l.loc(n),
	}
	headerEnd := int(n.StartByte())

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "constant":
			if def.Name == "" {
				def.Name = l.text(child)
				def.NameLoc = l.loc(child)
				headerEnd = int(child.EndByte())
			}
		case "superclass":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if sup := child.NamedChild(j); sup.Type() == "constant" {
					def.Superclass = l.text(sup)
				}
			}
			headerEnd = int(child.EndByte())
		case "body_statement":
			def.Body = l.lowerChildren(child)
		default:
			if lowered := l.lower(child); lowered != nil {
				def.Body = append(def.Body, lowered)
			}
		}
	}

	if def.Name == "" {
		return nil
	}
	def.HeaderLoc = core.Loc{File: l.fref, BeginAt: int(n.StartByte()), EndAt: headerEnd}
	return def
}

func (l *lowerer) lowerMethod(n *sitter.Node) Node {
	def := &MethodDef{SpanLoc: l.loc(n)}
	headerEnd := int(n.StartByte())

	if name := n.ChildByFieldName("name"); name != nil {
		def.Name = l.text(name)
		def.NameLoc = l.loc(name)
		headerEnd = int(name.EndByte())
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			if p := params.NamedChild(i); p.Type() == "identifier" {
				def.Args = append(def.Args, ArgDef{Name: l.text(p), ArgLoc: l.loc(p)})
			}
		}
		headerEnd = int(params.EndByte())
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "identifier", "method_parameters":
			// name and parameters, handled above
		case "body_statement":
			def.Body = l.lowerChildren(child)
		default:
			if lowered := l.lower(child); lowered != nil {
				def.Body = append(def.Body, lowered)
			}
		}
	}

	if def.Name == "" {
		return nil
	}
	def.HeaderLoc = core.Loc{File: l.fref, BeginAt: int(n.StartByte()), EndAt: headerEnd}
	return def
}

func (l *lowerer) lowerCall(n *sitter.Node) Node {
	send := &Send{SpanLoc: l.loc(n)}

	if recv := n.ChildByFieldName("receiver"); recv != nil {
		send.Recv = l.lower(recv)
	}
	if method := n.ChildByFieldName("method"); method != nil {
		send.Method = l.text(method)
		send.MethodLoc = l.loc(method)
	}
	if args := n.ChildByFieldName("arguments"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			if lowered := l.lower(args.NamedChild(i)); lowered != nil {
				send.Args = append(send.Args, lowered)
			}
		}
	}

	if send.Method == "" {
		return nil
	}
	return send
}

func (l *lowerer) lowerAssignment(n *sitter.Node) Node {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || left.Type() != "identifier" {
		// only local variable targets participate in inference
		if right != nil {
			return l.lower(right)
		}
		return nil
	}
	assign := &Assign{
		Target:    l.text(left),
		TargetLoc: l.loc(left),
		SpanLoc:   l.loc(n),
	}
	if right != nil {
		assign.Value = l.lower(right)
	}
	return assign
}

// stringContent returns the text between the quotes of a string node.
func stringContent(l *lowerer, n *sitter.Node) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == "string_content" {
			return l.text(child)
		}
	}
	text := l.text(n)
	if len(text) >= 2 {
		return text[1 : len(text)-1]
	}
	return text
}
