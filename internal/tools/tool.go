package tools

// ScriptingToolName is the well-known name of the scripting pseudo-tool. It is
// not registered like other tools; it has its own enable/disable operations.
const ScriptingToolName = "lua-interpreter"

// Tool is a capability the agent can invoke.
type Tool interface {
	Name() string
	Description() string
	Source() Source
}

// Descriptor is a plain Tool value.
type Descriptor struct {
	ToolName string
	Desc     string
	From     Source
}

func (d Descriptor) Name() string        { return d.ToolName }
func (d Descriptor) Description() string { return d.Desc }
func (d Descriptor) Source() Source      { return d.From }

var nativeTools = []Descriptor{
	{ToolName: "bash", Desc: "Run a shell command in the project root"},
	{ToolName: "delete-path", Desc: "Delete a file or directory in the project"},
	{ToolName: "diagnostics", Desc: "Report errors and warnings for a file or the project"},
	{ToolName: "edit-files", Desc: "Apply edits to files in the project"},
	{ToolName: "fetch", Desc: "Fetch a URL and return its content as markdown"},
	{ToolName: "list-directory", Desc: "List the entries of a directory"},
	{ToolName: "now", Desc: "Return the current date and time"},
	{ToolName: "path-search", Desc: "Find paths matching a glob"},
	{ToolName: "read-file", Desc: "Read the contents of a file"},
	{ToolName: "regex-search", Desc: "Search file contents with a regular expression"},
	{ToolName: "thinking", Desc: "Think through a problem step by step"},
}

// NativeTools returns the built-in tool catalogue.
func NativeTools() []Tool {
	out := make([]Tool, 0, len(nativeTools))
	for _, d := range nativeTools {
		d.From = Native()
		out = append(out, d)
	}
	return out
}
