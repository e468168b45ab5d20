package callgraph

import (
	"path"
	"strings"

	"github.com/dusk-indust/py2graph/internal/analyzer"
)

// SplitPath splits a slash-separated relative path into its non-empty
// segments.
func SplitPath(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" && s != "." {
			out = append(out, s)
		}
	}
	return out
}

// ModulePath converts a dotted module name to a relative file path.
func ModulePath(module string) string {
	return strings.ReplaceAll(module, ".", "/") + ".py"
}

// ImportPath resolves the file an import refers to, relative to the
// project root, given the importing file.
//
// "from . import x" resolves to the importing file's directory and leading
// dots climb one directory each. Absolute imports are matched against the
// importing file's directories: the deepest directory from which the module
// path shares the longest run of leading segments wins. With no overlap the
// module is assumed to sit next to the importing file.
func ImportPath(file, module string, level int) string {
	file = strings.ReplaceAll(file, "\\", "/")
	if level > 0 {
		dir := path.Dir(file)
		for i := 1; i < level; i++ {
			dir = path.Dir(dir)
		}
		if dir == "." || dir == "/" {
			dir = ""
		}
		if module == "" {
			return dir
		}
		return joinPath(dir, ModulePath(module))
	}
	if module == "" {
		return dirOf(file)
	}
	return LongestPrefixMatch(file, ModulePath(module))
}

// LongestPrefixMatch anchors modPath inside file's directory hierarchy.
// Starting from the deepest suffix of file's segments it finds the position
// whose suffix shares the most leading segments with modPath, and returns
// modPath rooted there.
func LongestPrefixMatch(file, modPath string) string {
	segs := SplitPath(file)
	mod := SplitPath(modPath)

	best, idx := 0, len(segs)
	for i := len(segs) - 1; i >= 0; i-- {
		if n := commonPrefix(segs[i:], mod); n > best {
			best, idx = n, i
		}
	}
	if best == 0 {
		if len(segs) <= 1 {
			return modPath
		}
		return joinPath(strings.Join(segs[:len(segs)-1], "/"), modPath)
	}
	return joinPath(strings.Join(segs[:idx], "/"), modPath)
}

func commonPrefix(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func joinPath(dir, rel string) string {
	if dir == "" {
		return rel
	}
	return dir + "/" + rel
}

func dirOf(file string) string {
	dir := path.Dir(file)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// Rename is where a locally bound imported name really comes from.
type Rename struct {
	Name string
	Path string
}

// Renames is a per-file table from the name used in code to its origin,
// built from "from X import Y as Z" statements.
type Renames map[string]Rename

// AddImport records every name bound by imp in file.
func (r Renames) AddImport(file string, imp *analyzer.ImportFrom) {
	if imp == nil {
		return
	}
	p := ImportPath(file, imp.Module, imp.Level)
	for _, n := range imp.Names {
		if n.Name == "*" {
			continue
		}
		r[n.LocalName()] = Rename{Name: n.Name, Path: p}
	}
}

// Resolve maps a callee name used in file to the path and name it is
// defined under. Names not imported are assumed local to file.
func (r Renames) Resolve(file, name string) (string, string) {
	if rn, ok := r[name]; ok {
		return rn.Path, rn.Name
	}
	return file, name
}
