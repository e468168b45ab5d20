package frontend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// SourceExt is the extension of files the producers emit.
const SourceExt = ".py"

// AllFiles returns a Producer that walks root and emits every Python file
// as a slash-separated path relative to root. VCS metadata directories and
// paths matched by root's .gitignore are skipped.
func AllFiles(root string) Producer {
	return func(ctx context.Context, emit func(string) error) error {
		return walkSources(ctx, root, emit)
	}
}

// SpecifiedFiles returns a Producer that emits exactly files, which are
// relative to the project root.
func SpecifiedFiles(files []string) Producer {
	return func(ctx context.Context, emit func(string) error) error {
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := emit(NormalizePath(f)); err != nil {
				return err
			}
		}
		return nil
	}
}

// CountFiles returns how many files AllFiles(root) would emit.
func CountFiles(ctx context.Context, root string) (int, error) {
	n := 0
	err := walkSources(ctx, root, func(string) error {
		n++
		return nil
	})
	return n, err
}

// NormalizePath cleans a root-relative path into the slash-separated form
// used for vertex file names.
func NormalizePath(p string) string {
	p = path.Clean(filepath.ToSlash(p))
	return strings.TrimPrefix(p, "./")
}

func walkSources(ctx context.Context, root string, emit func(string) error) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("frontend: stat root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("frontend: %s is not a directory", root)
	}

	gi, err := loadIgnore(root)
	if err != nil {
		return err
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "__pycache__" {
				return filepath.SkipDir
			}
			if gi != nil && gi.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != SourceExt || !d.Type().IsRegular() {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		return emit(rel)
	})
}

func loadIgnore(root string) (*ignore.GitIgnore, error) {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("frontend: read .gitignore: %w", err)
	}
	return gi, nil
}
