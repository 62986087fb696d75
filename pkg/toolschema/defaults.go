package toolschema

// defaultSpecs is the static declaration of the built-in capability
// servers. Any collaborator serving one of these tools must conform
// exactly to the declared action and argument names.
func defaultSpecs() []ToolSpec {
	return []ToolSpec{
		{
			Name:        "filesystem",
			EndpointKey: "filesystem",
			Description: "Read and write files inside the workspace.",
			Actions: []ActionSpec{
				{
					Name:        "read_file",
					Description: "Read the contents of a file.",
					Parameters: []Parameter{
						{Name: "path", Type: "string", Description: "Path relative to the workspace root", Required: true},
					},
				},
				{
					Name:        "write_file",
					Description: "Write content to a file, creating it if needed.",
					Parameters: []Parameter{
						{Name: "path", Type: "string", Description: "Path relative to the workspace root", Required: true},
						{Name: "content", Type: "string", Description: "Content to write", Required: true},
						{Name: "append", Type: "boolean", Description: "Append instead of overwrite", Required: false},
					},
				},
				{
					Name:        "list_dir",
					Description: "List the entries of a directory.",
					Parameters: []Parameter{
						{Name: "path", Type: "string", Description: "Directory path relative to the workspace root", Required: true},
					},
				},
				{
					Name:        "delete_file",
					Description: "Delete a single file.",
					Parameters: []Parameter{
						{Name: "path", Type: "string", Description: "Path relative to the workspace root", Required: true},
					},
				},
			},
		},
		{
			Name:        "system",
			EndpointKey: "system",
			Description: "Execute shell commands under the security policy.",
			Actions: []ActionSpec{
				{
					Name:        "exec",
					Description: "Run a shell command with a bounded deadline.",
					Parameters: []Parameter{
						{Name: "cmd", Type: "string", Description: "Command line to execute", Required: true},
						{Name: "timeout_sec", Type: "integer", Description: "Deadline in seconds (default from server config)", Required: false},
					},
				},
			},
		},
		{
			Name:        "browser",
			EndpointKey: "browser",
			Description: "Fetch and inspect web pages.",
			Actions: []ActionSpec{
				{
					Name:        "open",
					Description: "Open a URL and return the page title.",
					Parameters: []Parameter{
						{Name: "url", Type: "string", Description: "Absolute URL to open", Required: true},
					},
				},
				{
					Name:        "extract_text",
					Description: "Extract the visible text of the current page.",
					Parameters: []Parameter{
						{Name: "url", Type: "string", Description: "Absolute URL to extract from", Required: true},
						{Name: "selector", Type: "string", Description: "Optional CSS selector to narrow extraction", Required: false},
					},
				},
			},
		},
	}
}
