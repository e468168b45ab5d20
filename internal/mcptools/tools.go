package mcptools

import "github.com/dusk-indust/py2graph/internal/graph"

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// BuildGraphInput is the input for the build_graph MCP tool.
type BuildGraphInput struct {
	ProjectPath string `json:"projectPath" jsonschema:"the absolute path to the Python project to ingest"`
	Force       bool   `json:"force,omitempty" jsonschema:"drop the stored graph and the vertex id cache first"`
	CalcThreads int    `json:"calcThreads,omitempty" jsonschema:"analysis workers per frontend (default: sized from the file count)"`
	IOThreads   int    `json:"ioThreads,omitempty" jsonschema:"maximum graph store writers (default: CPU count)"`
}

// BuildGraphOutput is the result of the build_graph MCP tool.
type BuildGraphOutput struct {
	RunID     string            `json:"runId"`
	Files     int               `json:"files"`
	Failed    int               `json:"failed"`
	Vertices  int64             `json:"vertices"`
	Edges     int64             `json:"edges"`
	CallPairs int               `json:"callPairs"`
	Stats     *graph.GraphStats `json:"stats,omitempty"`
}

// ApplyDiffInput is the input for the apply_diff MCP tool.
type ApplyDiffInput struct {
	ProjectPath string   `json:"projectPath" jsonschema:"the absolute path to the Python project"`
	Added       []string `json:"added,omitempty" jsonschema:"files added since the last build, relative to the project"`
	Removed     []string `json:"removed,omitempty" jsonschema:"files removed since the last build"`
	Modified    []string `json:"modified,omitempty" jsonschema:"files modified since the last build"`
}

// ApplyDiffOutput is the result of the apply_diff MCP tool.
type ApplyDiffOutput struct {
	// Readd is null when the store cannot apply diffs and the whole project
	// was rebuilt.
	Readd  []string         `json:"readd"`
	Result BuildGraphOutput `json:"result"`
}

// RelatedFilesInput is the input for the related_files MCP tool.
type RelatedFilesInput struct {
	File string `json:"file" jsonschema:"file path relative to the project root"`
}

// RelatedFilesOutput is the result of the related_files MCP tool.
type RelatedFilesOutput struct {
	Files []string `json:"files"`
}
