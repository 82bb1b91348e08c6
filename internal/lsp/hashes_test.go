package lsp

import (
	"strings"
	"testing"

	"github.com/optimumenergyco/sorbet/internal/config"
	"github.com/optimumenergyco/sorbet/internal/core"
	"github.com/optimumenergyco/sorbet/internal/logging"
)

func newHashLoop(t *testing.T) *Loop {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Pool.Workers = 2
	return New(cfg, logging.NewDiscardLogger(), Options{
		Stdin:  strings.NewReader(""),
		Stdout: &strings.Builder{},
	})
}

func TestDefinitionHashIgnoresBodies(t *testing.T) {
	l := newHashLoop(t)

	tests := []struct {
		name  string
		left  string
		right string
		equal bool
	}{
		{
			name:  "body-only edit",
			left:  "def f\n  1\nend\n",
			right: "def f\n  2\nend\n",
			equal: true,
		},
		{
			name:  "comment edit",
			left:  "# v1\ndef f\n  1\nend\n",
			right: "# version two\ndef f\n  1\nend\n",
			equal: true,
		},
		{
			name:  "parameter added",
			left:  "def f\n  1\nend\n",
			right: "def f(x)\n  x\nend\n",
			equal: false,
		},
		{
			name:  "method renamed",
			left:  "def f\n  1\nend\n",
			right: "def g\n  1\nend\n",
			equal: false,
		},
		{
			name:  "class added",
			left:  "def f\nend\n",
			right: "class A\nend\ndef f\nend\n",
			equal: false,
		},
		{
			name:  "superclass changed",
			left:  "class A < B\nend\n",
			right: "class A < C\nend\n",
			equal: false,
		},
		{
			name:  "body mentions new constant",
			left:  "def f\n  1\nend\n",
			right: "def f\n  Unseen.new\nend\n",
			equal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left := l.computeFileHash(core.NewFile("a.rb", tt.left, core.Normal))
			right := l.computeFileHash(core.NewFile("a.rb", tt.right, core.Normal))
			if (left == right) != tt.equal {
				t.Errorf("hash(%q) = %d, hash(%q) = %d, want equal=%v",
					tt.left, left, tt.right, right, tt.equal)
			}
		})
	}
}

func TestDefinitionHashNilFile(t *testing.T) {
	l := newHashLoop(t)
	if got := l.computeFileHash(nil); got != 0 {
		t.Errorf("nil file must hash to 0, got %d", got)
	}
}

func TestDefinitionHashDeterministic(t *testing.T) {
	l := newHashLoop(t)
	file := core.NewFile("a.rb", "class A\n  def f(x, y)\n    x\n  end\nend\n", core.Normal)

	first := l.computeFileHash(file)
	for i := 0; i < 5; i++ {
		if got := l.computeFileHash(file); got != first {
			t.Fatalf("hash not deterministic: %d vs %d", got, first)
		}
	}
}

func TestComputeStateHashesAggregatesByIndex(t *testing.T) {
	l := newHashLoop(t)

	files := []*core.File{
		nil,
		core.NewFile("a.rb", "def f\nend\n", core.Normal),
		core.NewFile("b.rb", "def g\nend\n", core.Normal),
	}
	hashes := l.computeStateHashes(files)
	if len(hashes) != 3 {
		t.Fatalf("expected 3 hashes, got %d", len(hashes))
	}
	if hashes[0] != 0 {
		t.Error("nil slot must hash to 0")
	}
	if hashes[1] == 0 || hashes[2] == 0 || hashes[1] == hashes[2] {
		t.Errorf("distinct files must produce distinct nonzero hashes: %v", hashes)
	}
	if hashes[1] != l.computeFileHash(files[1]) {
		t.Error("batch hashing must agree with single-file hashing")
	}
}
