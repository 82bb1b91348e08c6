package core

import "testing"

func newTestState(t *testing.T) *GlobalState {
	t.Helper()
	return NewGlobalState(NewErrorQueue(16))
}

func TestEnterAndReplaceFile(t *testing.T) {
	gs := newTestState(t)

	scope := UnfreezeFileTable(gs)
	fref := gs.EnterFile(NewFile("a.rb", "def f; end", Normal))
	scope.Close()

	if !fref.Exists() {
		t.Fatal("entered file must have a live ref")
	}
	if got := gs.FindFileByPath("a.rb"); got != fref {
		t.Errorf("FindFileByPath = %d, want %d", got, fref)
	}

	gs.ReplaceFile(fref, NewFile("a.rb", "def f; 2; end", Normal))
	if gs.File(fref).Source != "def f; 2; end" {
		t.Error("ReplaceFile did not swap contents")
	}
	if gs.FindFileByPath("a.rb") != fref {
		t.Error("ReplaceFile must keep the ref stable")
	}
}

func TestEnterFileFrozenPanics(t *testing.T) {
	gs := newTestState(t)

	defer func() {
		if recover() == nil {
			t.Error("EnterFile on a frozen table must panic")
		}
	}()
	gs.EnterFile(NewFile("a.rb", "", Normal))
}

func TestUnfreezeScopeRestores(t *testing.T) {
	gs := newTestState(t)

	scope := UnfreezeFileTable(gs)
	gs.EnterFile(NewFile("a.rb", "", Normal))
	scope.Close()

	defer func() {
		if recover() == nil {
			t.Error("table must re-freeze when the scope closes")
		}
	}()
	gs.EnterFile(NewFile("b.rb", "", Normal))
}

func TestDeepCopyIndependence(t *testing.T) {
	gs := newTestState(t)

	scope := UnfreezeFileTable(gs)
	fref := gs.EnterFile(NewFile("a.rb", "v1", Normal))
	scope.Close()

	clone := gs.DeepCopy()
	gs.ReplaceFile(fref, NewFile("a.rb", "v2", Normal))

	if clone.File(fref).Source != "v1" {
		t.Error("mutating the original leaked into the clone")
	}
	if gs.File(fref).Source != "v2" {
		t.Error("original lost its replacement")
	}
}

func TestDeepCopySharesErrorQueue(t *testing.T) {
	gs := newTestState(t)
	clone := gs.DeepCopy()

	clone.Errors.PushError(&PendingError{Code: 1, Message: "from clone"})
	if got := gs.Errors.DrainErrors(); len(got) != 1 {
		t.Errorf("expected the original to drain the clone's error, got %d", len(got))
	}
}

func TestSymbolOwnership(t *testing.T) {
	gs := newTestState(t)

	names := UnfreezeNameTable(gs)
	defer names.Close()
	symbols := UnfreezeSymbolTable(gs)
	defer symbols.Close()

	class := gs.EnterClassSymbol(RootSymbol, gs.EnterName("Widget"), Loc{File: 1, BeginAt: 0, EndAt: 5}, false)
	method := gs.EnterMethodSymbol(class, gs.EnterName("render"), Loc{File: 1, BeginAt: 10, EndAt: 20})
	arg := gs.EnterMethodArgumentSymbol(method, gs.EnterName("depth"), Loc{File: 1, BeginAt: 14, EndAt: 19})

	if method.Data(gs).Owner != class {
		t.Error("method must be owned by its class")
	}
	if arg.Data(gs).Owner != method {
		t.Error("argument must be owned by its method")
	}
	if got := method.Data(gs).FullName(gs); got != "Widget#render" {
		t.Errorf("FullName = %q, want Widget#render", got)
	}
	if len(method.Data(gs).Arguments) != 1 {
		t.Errorf("expected 1 argument, got %d", len(method.Data(gs).Arguments))
	}

	// idempotent re-entry returns the same ref
	if again := gs.EnterClassSymbol(RootSymbol, gs.EnterName("Widget"), NoLoc(), false); again != class {
		t.Errorf("re-entering Widget returned %d, want %d", again, class)
	}
}

func TestHashTracksDeclarationShape(t *testing.T) {
	shape := func(build func(gs *GlobalState)) uint32 {
		gs := NewGlobalState(NewErrorQueue(16))
		names := UnfreezeNameTable(gs)
		defer names.Close()
		symbols := UnfreezeSymbolTable(gs)
		defer symbols.Close()
		build(gs)
		return gs.Hash()
	}

	loc := Loc{File: 1, BeginAt: 0, EndAt: 5}

	base := shape(func(gs *GlobalState) {
		c := gs.EnterClassSymbol(RootSymbol, gs.EnterName("A"), loc, false)
		gs.EnterMethodSymbol(c, gs.EnterName("f"), loc)
	})
	sameShape := shape(func(gs *GlobalState) {
		c := gs.EnterClassSymbol(RootSymbol, gs.EnterName("A"), Loc{File: 1, BeginAt: 40, EndAt: 45}, false)
		gs.EnterMethodSymbol(c, gs.EnterName("f"), Loc{File: 1, BeginAt: 50, EndAt: 60})
	})
	extraArg := shape(func(gs *GlobalState) {
		c := gs.EnterClassSymbol(RootSymbol, gs.EnterName("A"), loc, false)
		m := gs.EnterMethodSymbol(c, gs.EnterName("f"), loc)
		gs.EnterMethodArgumentSymbol(m, gs.EnterName("x"), loc)
	})
	renamed := shape(func(gs *GlobalState) {
		c := gs.EnterClassSymbol(RootSymbol, gs.EnterName("A"), loc, false)
		gs.EnterMethodSymbol(c, gs.EnterName("g"), loc)
	})

	if base != sameShape {
		t.Error("locations must not shape the hash")
	}
	if base == extraArg {
		t.Error("adding a parameter must change the hash")
	}
	if base == renamed {
		t.Error("renaming a method must change the hash")
	}
}

func TestHashIgnoresStubClasses(t *testing.T) {
	loc := Loc{File: 1, BeginAt: 0, EndAt: 5}

	withStub := func(stub bool) uint32 {
		gs := NewGlobalState(NewErrorQueue(16))
		names := UnfreezeNameTable(gs)
		defer names.Close()
		symbols := UnfreezeSymbolTable(gs)
		defer symbols.Close()
		gs.EnterClassSymbol(RootSymbol, gs.EnterName("A"), loc, false)
		if stub {
			gs.EnterClassSymbol(RootSymbol, gs.EnterName("Unseen"), NoLoc(), false)
		}
		return gs.Hash()
	}

	if withStub(false) != withStub(true) {
		t.Error("stub classes with no definition location must not shape the hash")
	}
}
