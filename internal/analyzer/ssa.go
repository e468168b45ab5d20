package analyzer

import (
	"sort"
)

// Ref names one numbered definition of an identifier in a scope.
// Index 0 is reserved for function parameters.
type Ref struct {
	Scope string
	Index int
}

// Dependency states that the statement at Line reads a value defined at
// DefLine.
type Dependency struct {
	Line    int
	DefLine int
}

// SSA holds numbered definitions and, per statement, the definitions that
// reach each identifier it reads.
type SSA struct {
	mod *Module
	// defs maps "scope.ident" to definition index to defining line.
	defs map[string]map[int]int
	// reaching maps a statement to identifier to reaching definitions.
	reaching map[*Statement]map[string][]Ref
}

// BuildSSA numbers every definition in m, computes reaching definitions per
// CFG and mends identifiers left unresolved: function parameters resolve to
// index 0 at the def line, free variables to the nearest enclosing scope
// that defines them.
func BuildSSA(m *Module) *SSA {
	s := &SSA{
		mod:      m,
		defs:     map[string]map[int]int{},
		reaching: map[*Statement]map[string][]Ref{},
	}
	numbered := make(map[*Statement]map[string]int)
	for _, cfg := range m.CFGs {
		for _, p := range cfg.Params {
			s.define(cfg.Name, p, 0, cfg.DefLine)
		}
		counts := map[string]int{}
		for _, blk := range cfg.Blocks {
			for _, st := range blk.Statements {
				for _, d := range st.Defs {
					counts[d]++
					s.define(cfg.Name, d, counts[d], st.Line)
					if numbered[st] == nil {
						numbered[st] = map[string]int{}
					}
					numbered[st][d] = counts[d]
				}
			}
		}
	}
	for _, cfg := range m.CFGs {
		s.solve(cfg, numbered)
		s.mend(cfg)
	}
	return s
}

func (s *SSA) define(scope, ident string, index, line int) {
	key := scope + "." + ident
	if s.defs[key] == nil {
		s.defs[key] = map[int]int{}
	}
	s.defs[key][index] = line
}

// Lookup returns the line defining ident with the given index in scope.
func (s *SSA) Lookup(scope, ident string, index int) (int, bool) {
	line, ok := s.defs[scope+"."+ident][index]
	return line, ok
}

// Reaching returns the definitions of ident that reach st.
func (s *SSA) Reaching(st *Statement, ident string) []Ref {
	return s.reaching[st][ident]
}

// env maps an identifier to the set of definition indexes live at a point.
type env map[string]map[int]bool

func (e env) clone() env {
	out := make(env, len(e))
	for k, set := range e {
		c := make(map[int]bool, len(set))
		for i := range set {
			c[i] = true
		}
		out[k] = c
	}
	return out
}

func (e env) merge(o env) {
	for k, set := range o {
		if e[k] == nil {
			e[k] = map[int]bool{}
		}
		for i := range set {
			e[k][i] = true
		}
	}
}

func (e env) equal(o env) bool {
	if len(e) != len(o) {
		return false
	}
	for k, set := range e {
		other, ok := o[k]
		if !ok || len(other) != len(set) {
			return false
		}
		for i := range set {
			if !other[i] {
				return false
			}
		}
	}
	return true
}

func (e env) apply(st *Statement, numbered map[*Statement]map[string]int) {
	for _, d := range st.Defs {
		e[d] = map[int]bool{numbered[st][d]: true}
	}
}

// solve runs the reaching-definitions fixpoint over cfg and records, for
// every statement, the definitions reaching each identifier it uses.
func (s *SSA) solve(cfg *CFG, numbered map[*Statement]map[string]int) {
	preds := map[*Block][]*Block{}
	for _, b := range cfg.Blocks {
		for _, e := range b.Exits {
			preds[e] = append(preds[e], b)
		}
	}
	out := map[*Block]env{}
	entry := func(b *Block) env {
		in := env{}
		for _, p := range preds[b] {
			in.merge(out[p])
		}
		return in
	}

	for changed := true; changed; {
		changed = false
		for _, b := range cfg.Blocks {
			cur := entry(b)
			for _, st := range b.Statements {
				cur.apply(st, numbered)
			}
			if prev, ok := out[b]; !ok || !prev.equal(cur) {
				out[b] = cur
				changed = true
			}
		}
	}

	for _, b := range cfg.Blocks {
		cur := entry(b).clone()
		for _, st := range b.Statements {
			uses := make(map[string][]Ref, len(st.Uses))
			for _, u := range st.Uses {
				idx := make([]int, 0, len(cur[u]))
				for i := range cur[u] {
					idx = append(idx, i)
				}
				sort.Ints(idx)
				refs := make([]Ref, len(idx))
				for i, n := range idx {
					refs[i] = Ref{Scope: cfg.Name, Index: n}
				}
				uses[u] = refs
			}
			s.reaching[st] = uses
			cur.apply(st, numbered)
		}
	}
}

// mend resolves identifiers with no reaching definition.
func (s *SSA) mend(cfg *CFG) {
	params := map[string]bool{}
	for _, p := range cfg.Params {
		params[p] = true
	}
	for _, b := range cfg.Blocks {
		for _, st := range b.Statements {
			for ident, refs := range s.reaching[st] {
				if len(refs) > 0 {
					continue
				}
				if params[ident] {
					s.reaching[st][ident] = []Ref{{Scope: cfg.Name, Index: 0}}
					continue
				}
				if ref, ok := s.outer(cfg.Name, ident); ok {
					s.reaching[st][ident] = []Ref{ref}
				}
			}
		}
	}
}

// outer finds the lowest-numbered definition of ident in the nearest
// enclosing scope that has one.
func (s *SSA) outer(scope, ident string) (Ref, bool) {
	for sc := Parent(scope); sc != ""; sc = Parent(sc) {
		defs := s.defs[sc+"."+ident]
		if len(defs) == 0 {
			continue
		}
		first := -1
		for i := range defs {
			if first < 0 || i < first {
				first = i
			}
		}
		return Ref{Scope: sc, Index: first}, true
	}
	return Ref{}, false
}

// Dependencies returns line-level data dependencies in statement order,
// without duplicates or self references.
func (s *SSA) Dependencies() []Dependency {
	var out []Dependency
	seen := map[Dependency]bool{}
	for _, cfg := range s.mod.CFGs {
		for _, b := range cfg.Blocks {
			for _, st := range b.Statements {
				for _, u := range st.Uses {
					for _, ref := range s.reaching[st][u] {
						line, ok := s.Lookup(ref.Scope, u, ref.Index)
						if !ok {
							continue
						}
						d := Dependency{Line: st.Line, DefLine: line}
						if d.Line == d.DefLine || line == 0 || seen[d] {
							continue
						}
						seen[d] = true
						out = append(out, d)
					}
				}
			}
		}
	}
	return out
}
