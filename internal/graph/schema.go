package graph

import (
	"strconv"
	"strings"
)

// --- Enums ---

// VertexLabel classifies vertices in the program graph.
type VertexLabel string

const (
	LabelFile VertexLabel = "file"
	LabelCode VertexLabel = "code"
)

// EdgeLabel classifies relationships between vertices.
type EdgeLabel string

const (
	EdgeCFG     EdgeLabel = "cfg"     // control flow between statements
	EdgeDFG     EdgeLabel = "dfg"     // data dependency
	EdgeCG      EdgeLabel = "cg"      // call site to definition
	EdgeRelated EdgeLabel = "related" // file-level cross-file call dependency
)

// EdgeLabels lists every edge label a store must be able to persist.
var EdgeLabels = []EdgeLabel{EdgeCFG, EdgeDFG, EdgeCG, EdgeRelated}

// VertexID is the identifier a store assigns to a persisted vertex.
type VertexID int64

// --- Models ---

// Vertex is a file or a statement of a source file.
//
// Two vertices with the same File and Lineno are the same entity; see Key.
type Vertex struct {
	Label    VertexLabel `json:"label"`
	File     string      `json:"file"`
	Lineno   int         `json:"lineno,omitempty"`
	Code     string      `json:"code,omitempty"`
	AST      string      `json:"ast,omitempty"`
	FuncName string      `json:"functionDefName,omitempty"`
}

// FileVertex returns the vertex representing a whole source file.
func FileVertex(file string) Vertex {
	return Vertex{Label: LabelFile, File: file}
}

// CodeVertex returns a reference to the statement vertex at file:lineno.
// It carries no code or AST and is meant to be used as an edge endpoint.
func CodeVertex(file string, lineno int) Vertex {
	return Vertex{Label: LabelCode, File: file, Lineno: lineno}
}

// Key is the stable identity of the vertex: "<file>:<lineno>" when both are
// set, the file alone otherwise. Negative line numbers are valid and denote
// function-end pseudo locations.
func (v Vertex) Key() string {
	if v.File != "" && v.Lineno != 0 {
		return v.File + ":" + strconv.Itoa(v.Lineno)
	}
	return v.File
}

// Invalid reports whether v is a code vertex without a line number. Such a
// vertex can never be resolved and must not be linked by an edge.
func (v Vertex) Invalid() bool {
	return v.Label == LabelCode && v.Lineno == 0
}

// ParseKey splits a "<file>:<lineno>" key. The file part may itself contain
// colons; the line number is taken after the last one.
func ParseKey(key string) (file string, lineno int, ok bool) {
	i := strings.LastIndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(key[i+1:])
	if err != nil {
		return "", 0, false
	}
	return key[:i], n, true
}

// Edge is a directed relationship between two logical vertices, produced by
// the frontend before any store IDs are known.
type Edge struct {
	Label EdgeLabel         `json:"label"`
	From  Vertex            `json:"from"`
	To    Vertex            `json:"to"`
	Props map[string]string `json:"props,omitempty"`
}

// NewEdge builds an edge without properties.
func NewEdge(label EdgeLabel, from, to Vertex) Edge {
	return Edge{Label: label, From: from, To: to}
}

// StoredEdge is an edge whose endpoints have been resolved to store IDs.
type StoredEdge struct {
	Label EdgeLabel         `json:"label"`
	From  VertexID          `json:"from"`
	To    VertexID          `json:"to"`
	Props map[string]string `json:"props,omitempty"`
}

// GraphStats summarizes a persisted graph.
type GraphStats struct {
	FileCount   int `json:"fileCount"`
	VertexCount int `json:"vertexCount"`
	EdgeCount   int `json:"edgeCount"`
}
