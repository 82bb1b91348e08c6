package core

// NameRef is an interned handle into the name table. The zero value is the
// null name.
type NameRef uint32

// Exists reports whether the name is interned.
func (n NameRef) Exists() bool {
	return n > 0
}

// SymbolRef is a small dense index into the symbol table. The zero value is
// the null reference.
type SymbolRef uint32

// Exists reports whether the reference points at a real symbol.
func (s SymbolRef) Exists() bool {
	return s > 0
}

// ID returns the dense integer id of the reference.
func (s SymbolRef) ID() int {
	return int(s)
}

// Data returns the symbol this reference addresses. It panics on the null
// reference; callers check Exists first.
func (s SymbolRef) Data(gs *GlobalState) *Symbol {
	if !s.Exists() || s.ID() >= len(gs.symbols) {
		panic("core: dereference of invalid SymbolRef")
	}
	return &gs.symbols[s.ID()]
}

// SymbolKind describes what sort of entity a symbol declares.
type SymbolKind int

const (
	KindClass SymbolKind = iota
	KindMethod
	KindField
	KindStaticField
	KindMethodArgument
	KindTypeMember
	KindTypeArgument
)

// Symbol is one arena entry in the symbol table. Symbols reference their
// owners and members by SymbolRef, never by pointer, so global states can be
// deep-copied with a flat slice copy.
type Symbol struct {
	Name          NameRef
	Owner         SymbolRef
	Kind          SymbolKind
	DefinitionLoc Loc
	ResultType    Type

	// IsModule distinguishes `module` from `class` for KindClass symbols.
	IsModule bool

	// Superclass is set for KindClass symbols that declare a parent.
	Superclass SymbolRef

	// Arguments holds the declared parameters of a KindMethod symbol, in
	// declaration order.
	Arguments []SymbolRef

	members map[NameRef]SymbolRef
}

// Show renders the symbol's short name.
func (s *Symbol) Show(gs *GlobalState) string {
	return gs.NameString(s.Name)
}

// FullName renders the owner-qualified name, e.g. "Outer::Inner#meth".
func (s *Symbol) FullName(gs *GlobalState) string {
	if s.Owner == RootSymbol || !s.Owner.Exists() {
		return s.Show(gs)
	}
	owner := s.Owner.Data(gs)
	sep := "::"
	if s.Kind == KindMethod {
		sep = "#"
	}
	return owner.FullName(gs) + sep + s.Show(gs)
}

// Member looks up a direct member by name.
func (s *Symbol) Member(name NameRef) SymbolRef {
	return s.members[name]
}

// MemberNames returns the member names in deterministic (interning) order.
func (s *Symbol) MemberNames() []NameRef {
	names := make([]NameRef, 0, len(s.members))
	for n := range s.members {
		names = append(names, n)
	}
	// NameRefs are dense; insertion order is recoverable by sorting
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}

// RootSymbol is the synthetic root that owns all top-level declarations.
const RootSymbol SymbolRef = 1

// SymbolNameMatches reports whether the symbol's short name equals the
// query. Used by workspace symbol search.
func SymbolNameMatches(gs *GlobalState, sym *Symbol, query string) bool {
	return gs.NameString(sym.Name) == query
}

// describes a symbol kind for logs
func (k SymbolKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindStaticField:
		return "static-field"
	case KindMethodArgument:
		return "argument"
	case KindTypeMember:
		return "type-member"
	case KindTypeArgument:
		return "type-argument"
	default:
		return "unknown"
	}
}
