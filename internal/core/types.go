package core

import "strings"

// Type is the interface all inferred types satisfy. Types are immutable
// values; they are shared freely between global states and never mutated
// after construction.
type Type interface {
	// Show renders the type for display in hovers and diagnostics.
	Show(gs *GlobalState) string
}

// UntypedType is the top type assigned when inference has nothing better.
type UntypedType struct{}

func (UntypedType) Show(gs *GlobalState) string { return "T.untyped" }

// Untyped returns the shared untyped sentinel.
func Untyped() Type { return untyped }

var untyped = UntypedType{}

// ClassType is an instance of a class, e.g. the type of `A.new`.
type ClassType struct {
	Symbol SymbolRef
}

func (t ClassType) Show(gs *GlobalState) string {
	return t.Symbol.Data(gs).FullName(gs)
}

// SingletonType is the type of a class object itself, e.g. the type of the
// constant `A`.
type SingletonType struct {
	Symbol SymbolRef
}

func (t SingletonType) Show(gs *GlobalState) string {
	return "T.class_of(" + t.Symbol.Data(gs).FullName(gs) + ")"
}

// AppliedType is a generic class instantiated with type arguments.
type AppliedType struct {
	Klass    SymbolRef
	TypeArgs []Type
}

func (t AppliedType) Show(gs *GlobalState) string {
	var sb strings.Builder
	sb.WriteString(t.Klass.Data(gs).FullName(gs))
	sb.WriteString("[")
	for i, a := range t.TypeArgs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.Show(gs))
	}
	sb.WriteString("]")
	return sb.String()
}

// SelfType is the placeholder for `self` in a method signature; it is
// replaced by the receiver type at dispatch time.
type SelfType struct{}

func (SelfType) Show(gs *GlobalState) string { return "T.self_type" }

// LiteralType is a value-refined primitive, e.g. Integer(2).
type LiteralType struct {
	Underlying SymbolRef
	Value      string
}

func (t LiteralType) Show(gs *GlobalState) string {
	return t.Underlying.Data(gs).Show(gs) + "(" + t.Value + ")"
}

// TypeVar is a free variable of a generic method, solved by a constraint.
type TypeVar struct {
	Name NameRef
}

func (t TypeVar) Show(gs *GlobalState) string {
	return "T.type_parameter(:" + gs.NameString(t.Name) + ")"
}

// TypeConstraint records the solution of a generic method's type variables
// for one dispatch.
type TypeConstraint struct {
	Solution map[NameRef]Type
}

// ResultTypeAsSeenFrom instantiates a member's result type against an
// applied receiver: type members of the declaring class are replaced by the
// receiver's type arguments, positionally.
func ResultTypeAsSeenFrom(gs *GlobalState, member SymbolRef, klass SymbolRef, targs []Type) Type {
	t := member.Data(gs).ResultType
	if t == nil {
		return Untyped()
	}
	return substituteTypeMembers(gs, t, klass, targs)
}

func substituteTypeMembers(gs *GlobalState, t Type, klass SymbolRef, targs []Type) Type {
	switch ty := t.(type) {
	case TypeVar:
		data := klass.Data(gs)
		position := 0
		for _, name := range data.MemberNames() {
			member := data.Member(name)
			if member.Data(gs).Kind != KindTypeMember {
				continue
			}
			if member.Data(gs).Name == ty.Name && position < len(targs) {
				return targs[position]
			}
			position++
		}
		return t
	case AppliedType:
		out := AppliedType{Klass: ty.Klass, TypeArgs: make([]Type, len(ty.TypeArgs))}
		for i, a := range ty.TypeArgs {
			out.TypeArgs[i] = substituteTypeMembers(gs, a, klass, targs)
		}
		return out
	default:
		return t
	}
}

// ReplaceSelfType substitutes the receiver for any SelfType occurrence.
func ReplaceSelfType(gs *GlobalState, t Type, receiver Type) Type {
	switch ty := t.(type) {
	case SelfType:
		return receiver
	case AppliedType:
		out := AppliedType{Klass: ty.Klass, TypeArgs: make([]Type, len(ty.TypeArgs))}
		for i, a := range ty.TypeArgs {
			out.TypeArgs[i] = ReplaceSelfType(gs, a, receiver)
		}
		return out
	default:
		return t
	}
}

// Instantiate solves free type variables against a dispatch constraint.
func Instantiate(gs *GlobalState, t Type, constr *TypeConstraint) Type {
	if constr == nil {
		return t
	}
	switch ty := t.(type) {
	case TypeVar:
		if solved, ok := constr.Solution[ty.Name]; ok {
			return solved
		}
		return t
	case AppliedType:
		out := AppliedType{Klass: ty.Klass, TypeArgs: make([]Type, len(ty.TypeArgs))}
		for i, a := range ty.TypeArgs {
			out.TypeArgs[i] = Instantiate(gs, a, constr)
		}
		return out
	default:
		return t
	}
}
