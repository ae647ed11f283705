package mcptools

import "github.com/dusk-indust/treescope/internal/astcache"

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// EditInput describes one textual change for incremental reparsing.
type EditInput struct {
	StartByte    uint `json:"startByte" jsonschema:"byte offset where the edit starts"`
	OldEndByte   uint `json:"oldEndByte" jsonschema:"byte offset where the replaced text ended"`
	NewEndByte   uint `json:"newEndByte" jsonschema:"byte offset where the new text ends"`
	StartRow     uint `json:"startRow" jsonschema:"zero-based row where the edit starts"`
	StartColumn  uint `json:"startColumn" jsonschema:"zero-based column where the edit starts"`
	OldEndRow    uint `json:"oldEndRow" jsonschema:"zero-based row where the replaced text ended"`
	OldEndColumn uint `json:"oldEndColumn" jsonschema:"zero-based column where the replaced text ended"`
	NewEndRow    uint `json:"newEndRow" jsonschema:"zero-based row where the new text ends"`
	NewEndColumn uint `json:"newEndColumn" jsonschema:"zero-based column where the new text ends"`
}

func (e EditInput) toEdit() astcache.Edit {
	return astcache.Edit{
		StartByte:   e.StartByte,
		OldEndByte:  e.OldEndByte,
		NewEndByte:  e.NewEndByte,
		StartPoint:  astcache.Point{Row: e.StartRow, Column: e.StartColumn},
		OldEndPoint: astcache.Point{Row: e.OldEndRow, Column: e.OldEndColumn},
		NewEndPoint: astcache.Point{Row: e.NewEndRow, Column: e.NewEndColumn},
	}
}

func toEdits(in []EditInput) []astcache.Edit {
	if len(in) == 0 {
		return nil
	}
	out := make([]astcache.Edit, len(in))
	for i, e := range in {
		out[i] = e.toEdit()
	}
	return out
}

// RegisterProjectInput is the input for the register_project MCP tool.
type RegisterProjectInput struct {
	Path        string `json:"path" jsonschema:"absolute path to the project root directory"`
	Name        string `json:"name,omitempty" jsonschema:"project name (default: directory base name)"`
	Description string `json:"description,omitempty" jsonschema:"optional project description"`
}

// ProjectInfo describes one registered project.
type ProjectInfo struct {
	Name        string         `json:"name"`
	Root        string         `json:"root"`
	Description string         `json:"description,omitempty"`
	Languages   map[string]int `json:"languages,omitempty"`
}

// RegisterProjectOutput is the result of the register_project MCP tool.
type RegisterProjectOutput struct {
	Project ProjectInfo `json:"project"`
}

// ListProjectsInput is the input for the list_projects MCP tool.
type ListProjectsInput struct{}

// ListProjectsOutput is the result of the list_projects MCP tool.
type ListProjectsOutput struct {
	Projects []ProjectInfo `json:"projects"`
}

// RemoveProjectInput is the input for the remove_project MCP tool.
type RemoveProjectInput struct {
	Name string `json:"name" jsonschema:"name of the project to remove"`
}

// RemoveProjectOutput is the result of the remove_project MCP tool.
type RemoveProjectOutput struct {
	Removed bool `json:"removed"`
}

// GetASTInput is the input for the get_ast MCP tool.
type GetASTInput struct {
	Project     string      `json:"project" jsonschema:"registered project name"`
	Path        string      `json:"path" jsonschema:"project-relative path of the source file"`
	MaxDepth    int         `json:"maxDepth,omitempty" jsonschema:"maximum tree depth to materialize (default: 5)"`
	IncludeText bool        `json:"includeText,omitempty" jsonschema:"attach literal source text to every materialized node"`
	Edits       []EditInput `json:"edits,omitempty" jsonschema:"edit descriptors enabling incremental reparse when the file changed"`
}

// GetASTOutput is the result of the get_ast MCP tool.
type GetASTOutput struct {
	Language string                    `json:"language"`
	AST      *astcache.MaterializedAST `json:"ast"`
}

// GetNodeAtPositionInput is the input for the get_node_at_position MCP tool.
type GetNodeAtPositionInput struct {
	Project string      `json:"project" jsonschema:"registered project name"`
	Path    string      `json:"path" jsonschema:"project-relative path of the source file"`
	Row     uint        `json:"row" jsonschema:"zero-based row of the position"`
	Column  uint        `json:"column" jsonschema:"zero-based column of the position"`
	Edits   []EditInput `json:"edits,omitempty" jsonschema:"edit descriptors enabling incremental reparse when the file changed"`
}

// GetNodeAtPositionOutput is the result of the get_node_at_position MCP tool.
type GetNodeAtPositionOutput struct {
	Found bool                 `json:"found"`
	Node  *astcache.NodeRecord `json:"node,omitempty"`
}

// GetFileInput is the input for the get_file MCP tool.
type GetFileInput struct {
	Project  string `json:"project" jsonschema:"registered project name"`
	Path     string `json:"path" jsonschema:"project-relative path of the file"`
	MaxLines int    `json:"maxLines,omitempty" jsonschema:"truncate the content after this many lines"`
}

// GetFileOutput is the result of the get_file MCP tool.
type GetFileOutput struct {
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ListFilesInput is the input for the list_files MCP tool.
type ListFilesInput struct {
	Project   string `json:"project" jsonschema:"registered project name"`
	Extension string `json:"extension,omitempty" jsonschema:"only list files with this extension (e.g. .py)"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of paths to return"`
}

// ListFilesOutput is the result of the list_files MCP tool.
type ListFilesOutput struct {
	Files []string `json:"files"`
}

// ListLanguagesInput is the input for the list_languages MCP tool.
type ListLanguagesInput struct{}

// LanguageInfo describes one available grammar.
type LanguageInfo struct {
	Name       string   `json:"name"`
	Extensions []string `json:"extensions"`
}

// ListLanguagesOutput is the result of the list_languages MCP tool.
type ListLanguagesOutput struct {
	Languages []LanguageInfo `json:"languages"`
}

// InvalidateCacheInput is the input for the invalidate_cache MCP tool.
// With a path, only that file's entries are dropped; with only a project,
// the whole project; with neither, everything.
type InvalidateCacheInput struct {
	Project string `json:"project,omitempty" jsonschema:"project whose cache entries to drop"`
	Path    string `json:"path,omitempty" jsonschema:"project-relative path whose cache entries to drop"`
}

// InvalidateCacheOutput is the result of the invalidate_cache MCP tool.
type InvalidateCacheOutput struct {
	Scope string `json:"scope"`
}

// CacheStatsInput is the input for the cache_stats MCP tool.
type CacheStatsInput struct{}

// CacheStatsOutput is the result of the cache_stats MCP tool.
type CacheStatsOutput struct {
	Stats astcache.Stats `json:"stats"`
}

// ConfigureInput is the input for the configure MCP tool.
type ConfigureInput struct {
	CacheEnabled *bool `json:"cacheEnabled,omitempty" jsonschema:"enable or disable the parse-tree cache"`
	MaxSizeMB    *int  `json:"maxSizeMb,omitempty" jsonschema:"cache weight budget in megabytes"`
	TTLSeconds   *int  `json:"ttlSeconds,omitempty" jsonschema:"cache entry time-to-live in seconds"`
}

// ConfigureOutput is the result of the configure MCP tool.
type ConfigureOutput struct {
	CacheEnabled bool `json:"cacheEnabled"`
	MaxSizeMB    int  `json:"maxSizeMb"`
	TTLSeconds   int  `json:"ttlSeconds"`
}
