// Package diff loads file-level change sets and applies them to a stored
// graph, returning the files that must be analyzed again.
package diff

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for diff files whose extension is not
// .json, .yaml, .yml, .diff or .patch.
var ErrUnsupportedFormat = errors.New("diff: unsupported format")

// Status is the kind of change a file went through.
type Status string

const (
	Added    Status = "A"
	Removed  Status = "R"
	Modified Status = "M"
)

// Change is one file of a CommitDiff with its status.
type Change struct {
	File   string
	Status Status
}

// CommitDiff lists the files added, removed and modified by a commit,
// relative to the project root.
type CommitDiff struct {
	Added    []string `json:"added" yaml:"added"`
	Removed  []string `json:"removed" yaml:"removed"`
	Modified []string `json:"modified" yaml:"modified"`
}

// New returns a CommitDiff over cleaned copies of the given lists.
func New(added, removed, modified []string) *CommitDiff {
	d := &CommitDiff{
		Added:    append([]string(nil), added...),
		Removed:  append([]string(nil), removed...),
		Modified: append([]string(nil), modified...),
	}
	d.normalize()
	return d
}

// Enumerate returns every file with its status: added, then removed, then
// modified.
func (d *CommitDiff) Enumerate() []Change {
	out := make([]Change, 0, len(d.Added)+len(d.Removed)+len(d.Modified))
	for _, f := range d.Added {
		out = append(out, Change{File: f, Status: Added})
	}
	for _, f := range d.Removed {
		out = append(out, Change{File: f, Status: Removed})
	}
	for _, f := range d.Modified {
		out = append(out, Change{File: f, Status: Modified})
	}
	return out
}

// Empty reports whether the diff lists no file.
func (d *CommitDiff) Empty() bool {
	return len(d.Added)+len(d.Removed)+len(d.Modified) == 0
}

// Load reads a diff file, choosing the decoder by extension.
func Load(file string) (*CommitDiff, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("diff: read %s: %w", file, err)
	}
	d, err := Parse(strings.ToLower(filepath.Ext(file)), data)
	if err != nil {
		return nil, fmt.Errorf("diff: load %s: %w", file, err)
	}
	return d, nil
}

// Parse decodes data in the format named by ext (".json", ".yaml", ".yml",
// ".diff" or ".patch").
func Parse(ext string, data []byte) (*CommitDiff, error) {
	d := &CommitDiff{}
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, d); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, d); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case ".diff", ".patch":
		return ParsePatch(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	d.normalize()
	return d, nil
}

// ParsePatch derives a CommitDiff from a unified multi-file patch such as
// the output of git diff. A file created from /dev/null is added, one
// deleted to /dev/null is removed and anything else is modified. A rename
// removes the old path and adds the new one.
func ParsePatch(data []byte) (*CommitDiff, error) {
	d := &CommitDiff{}
	if len(bytes.TrimSpace(data)) == 0 {
		return d, nil
	}
	fds, err := godiff.NewMultiFileDiffReader(bytes.NewReader(data)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse patch: %w", err)
	}
	for _, fd := range fds {
		orig, next := patchName(fd.OrigName), patchName(fd.NewName)
		switch {
		case orig == "" && next == "":
			continue
		case orig == "":
			d.Added = append(d.Added, next)
		case next == "":
			d.Removed = append(d.Removed, orig)
		case orig != next:
			d.Removed = append(d.Removed, orig)
			d.Added = append(d.Added, next)
		default:
			d.Modified = append(d.Modified, next)
		}
	}
	d.normalize()
	return d, nil
}

func patchName(name string) string {
	if name == "" || name == "/dev/null" {
		return ""
	}
	if i := strings.IndexAny(name, "\t"); i >= 0 {
		name = name[:i]
	}
	for _, prefix := range []string{"a/", "b/"} {
		if strings.HasPrefix(name, prefix) {
			return name[len(prefix):]
		}
	}
	return name
}

func (d *CommitDiff) normalize() {
	d.Added = cleanAll(d.Added)
	d.Removed = cleanAll(d.Removed)
	d.Modified = cleanAll(d.Modified)
}

func cleanAll(files []string) []string {
	out := files[:0]
	for _, f := range files {
		if strings.TrimSpace(f) == "" {
			continue
		}
		out = append(out, strings.TrimPrefix(path.Clean(filepath.ToSlash(f)), "./"))
	}
	return out
}
