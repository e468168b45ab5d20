package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSource = `import os
from pkg.util import helper as h

X = 1

def f(a, b=2):
    c = a + b
    if c > X:
        return c
    else:
        d = h(c)
    return d

class K:
    def m(self):
        return f(1)
`

const loopSource = `def g(n):
    total = 0
    for i in range(n):
        if i == 3:
            continue
        total += i
    return total
`

// parse is a test helper that parses source and fails the test on error.
func parse(t *testing.T, file, source string) *Module {
	t.Helper()
	p := NewParser()
	t.Cleanup(func() { _ = p.Close() })
	m, err := p.Parse(context.Background(), file, []byte(source))
	require.NoError(t, err)
	return m
}

func cfgByName(t *testing.T, m *Module, name string) *CFG {
	t.Helper()
	for _, c := range m.CFGs {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cfg %q not found", name)
	return nil
}

func lines(stmts []*Statement) []int {
	out := make([]int, len(stmts))
	for i, s := range stmts {
		out[i] = s.Line
	}
	return out
}

// ---------------------------------------------------------------------------
// CFG construction
// ---------------------------------------------------------------------------

func TestParse_FlattensScopesParentFirst(t *testing.T) {
	m := parse(t, "pkg/sample.py", sampleSource)

	var names []string
	for _, c := range m.CFGs {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"sample", "sample.f", "sample.K", "sample.K.m"}, names)

	f := cfgByName(t, m, "sample.f")
	assert.True(t, f.IsFunction())
	assert.Equal(t, "f", f.FuncName)
	assert.Equal(t, 6, f.DefLine)
	assert.Equal(t, []string{"a", "b"}, f.Params)

	k := cfgByName(t, m, "sample.K")
	assert.False(t, k.IsFunction())
}

func TestParse_ModuleStatements(t *testing.T) {
	m := parse(t, "sample.py", sampleSource)
	mod := m.CFGs[0]

	require.Len(t, mod.Blocks, 1)
	stmts := mod.Entry.Statements
	assert.Equal(t, []int{1, 2, 4, 6, 14}, lines(stmts))

	imp := stmts[1]
	assert.Equal(t, StmtImportFrom, imp.Kind)
	require.NotNil(t, imp.Import)
	assert.Equal(t, "pkg.util", imp.Import.Module)
	assert.Equal(t, 0, imp.Import.Level)
	assert.Equal(t, []ImportName{{Name: "helper", Alias: "h"}}, imp.Import.Names)

	def := stmts[3]
	assert.Equal(t, StmtFunctionDef, def.Kind)
	assert.Equal(t, "f", def.Name)
	assert.Equal(t, "sample.f", def.Scope)
	assert.Equal(t, "def f(a, b=2):", def.Code)

	assert.Equal(t, StmtClassDef, stmts[4].Kind)
	assert.Equal(t, 1, mod.Entry.FirstStatement().Line)
}

func TestParse_IfElseBlocks(t *testing.T) {
	m := parse(t, "sample.py", sampleSource)
	f := cfgByName(t, m, "sample.f")

	assert.Equal(t, []int{7, 8}, lines(f.Entry.Statements))
	require.Len(t, f.Entry.Exits, 2)
	assert.Equal(t, []int{9}, lines(f.Entry.Exits[0].Statements))
	assert.Equal(t, []int{11}, lines(f.Entry.Exits[1].Statements))

	var exitLines [][]int
	for _, b := range f.ExitBlocks() {
		exitLines = append(exitLines, lines(b.Statements))
	}
	assert.ElementsMatch(t, [][]int{{9}, {12}}, exitLines)

	ret := f.Entry.Exits[0].Statements[0]
	assert.Equal(t, StmtReturn, ret.Kind)
	assert.True(t, ret.HasValue)
	assert.Equal(t, []string{"h"}, f.Entry.Exits[1].Statements[0].Calls)
}

func TestParse_LoopWithContinue(t *testing.T) {
	m := parse(t, "loop.py", loopSource)
	g := cfgByName(t, m, "loop.g")

	assert.Equal(t, []int{2}, lines(g.Entry.Statements))
	require.Len(t, g.Entry.Exits, 1)
	header := g.Entry.Exits[0]
	assert.Equal(t, []int{3}, lines(header.Statements))
	assert.Equal(t, []string{"range"}, header.Statements[0].Calls)
	assert.Equal(t, []string{"i"}, header.Statements[0].Defs)

	// The continue block loops back to the header.
	var cont *Block
	for _, b := range g.Blocks {
		if len(b.Statements) == 1 && b.Statements[0].Line == 5 {
			cont = b
		}
	}
	require.NotNil(t, cont)
	assert.Equal(t, []*Block{header}, cont.Exits)

	exits := g.ExitBlocks()
	require.Len(t, exits, 1)
	assert.Equal(t, []int{7}, lines(exits[0].Statements))
}

func TestParse_UnreachableCodeDropped(t *testing.T) {
	m := parse(t, "dead.py", "def f():\n    return 1\n    x = 2\n")
	f := cfgByName(t, m, "dead.f")
	require.Len(t, f.Blocks, 1)
	assert.Equal(t, []int{2}, lines(f.Blocks[0].Statements))
}

func TestParse_TryExceptFinally(t *testing.T) {
	src := `try:
    a = 1
except ValueError as e:
    a = e
finally:
    print(a)
`
	m := parse(t, "t.py", src)
	mod := m.CFGs[0]
	require.Len(t, mod.Entry.Exits, 2)

	handler := mod.Entry.Exits[1]
	assert.Equal(t, 3, handler.Statements[0].Line)
	assert.Equal(t, []string{"e"}, handler.Statements[0].Defs)

	exits := mod.ExitBlocks()
	require.Len(t, exits, 1)
	assert.Equal(t, []int{6}, lines(exits[0].Statements))
}

func TestParse_CallsAndBuiltins(t *testing.T) {
	m := parse(t, "c.py", "obj.method(len(xs), key=fn(y))\n")
	st := m.CFGs[0].Entry.Statements[0]
	assert.Equal(t, []string{"method", "len", "fn"}, st.Calls)
	assert.ElementsMatch(t, []string{"obj", "len", "xs", "fn", "y"}, st.Uses)
}

func TestParse_RelativeImport(t *testing.T) {
	m := parse(t, "pkg/a.py", "from . import b\nfrom ..up import c as d\n")
	stmts := m.CFGs[0].Entry.Statements

	assert.Equal(t, &ImportFrom{Level: 1, Names: []ImportName{{Name: "b"}}}, stmts[0].Import)
	assert.Equal(t, &ImportFrom{Module: "up", Level: 2, Names: []ImportName{{Name: "c", Alias: "d"}}}, stmts[1].Import)
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "a", ModuleName("pkg/a.py"))
	assert.Equal(t, "my_mod", ModuleName("my.mod.py"))
	assert.Equal(t, "b", ModuleName("b"))
}

// ---------------------------------------------------------------------------
// SSA
// ---------------------------------------------------------------------------

func TestSSA_Dependencies(t *testing.T) {
	m := parse(t, "sample.py", sampleSource)
	deps := BuildSSA(m).Dependencies()

	assert.ElementsMatch(t, []Dependency{
		{Line: 7, DefLine: 6},  // a, b are parameters
		{Line: 8, DefLine: 7},  // c
		{Line: 8, DefLine: 4},  // X from module scope
		{Line: 9, DefLine: 7},  // return c
		{Line: 11, DefLine: 2}, // h imported
		{Line: 11, DefLine: 7}, // c
		{Line: 12, DefLine: 11},
		{Line: 16, DefLine: 6}, // f from module scope
	}, deps)
}

func TestSSA_LoopReachingDefinitions(t *testing.T) {
	m := parse(t, "loop.py", loopSource)
	deps := BuildSSA(m).Dependencies()

	assert.ElementsMatch(t, []Dependency{
		{Line: 3, DefLine: 1}, // n
		{Line: 4, DefLine: 3}, // i
		{Line: 6, DefLine: 2}, // total from before the loop
		{Line: 6, DefLine: 3}, // i
		{Line: 7, DefLine: 2},
		{Line: 7, DefLine: 6},
	}, deps)
}

func TestSSA_ParamsResolveToIndexZero(t *testing.T) {
	m := parse(t, "p.py", "def f(x):\n    return x\n")
	s := BuildSSA(m)

	f := cfgByName(t, m, "p.f")
	ret := f.Entry.Statements[0]
	assert.Equal(t, []Ref{{Scope: "p.f", Index: 0}}, s.Reaching(ret, "x"))

	line, ok := s.Lookup("p.f", "x", 0)
	require.True(t, ok)
	assert.Equal(t, 1, line)
}

func TestSSA_UnresolvedIdentifierHasNoDependency(t *testing.T) {
	m := parse(t, "u.py", "print(undefined_name)\n")
	assert.Empty(t, BuildSSA(m).Dependencies())
}
