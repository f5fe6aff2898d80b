package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/inbucket/html2text"
	"github.com/local/picobot/internal/llm"
)

// sandbox holds the canonical sandbox root every built-in file/shell tool is
// validated against.
type sandbox struct {
	root string
}

// validatePath resolves requested against the sandbox root, canonicalizes
// it, and rejects anything that escapes the root — ported in shape from
// original_source/src/tools.rs::validate_sandbox_path. For a target that
// does not exist yet (write_file), its nearest existing ancestor is
// canonicalized instead and the missing directories and filename are
// recomposed onto it, since a nonexistent path has no canonical form of its
// own.
func (sb sandbox) validatePath(requested string) (string, error) {
	rootCanon, err := filepath.EvalSymlinks(sb.root)
	if err != nil {
		return "", fmt.Errorf("sandbox directory not found: %s", sb.root)
	}

	var requestedPath string
	if filepath.IsAbs(requested) {
		requestedPath = requested
	} else {
		requestedPath = filepath.Join(sb.root, requested)
	}

	var checkPath string
	if _, err := os.Stat(requestedPath); err == nil {
		canon, err := filepath.EvalSymlinks(requestedPath)
		if err != nil {
			return "", fmt.Errorf("failed to canonicalize path: %w", err)
		}
		checkPath = canon
	} else {
		// Walk up to the nearest existing ancestor, collecting the
		// not-yet-created path segments to recompose onto it.
		parent, remainder := filepath.Dir(requestedPath), filepath.Base(requestedPath)
		for _, err := os.Stat(parent); err != nil && filepath.Dir(parent) != parent; _, err = os.Stat(parent) {
			remainder = filepath.Join(filepath.Base(parent), remainder)
			parent = filepath.Dir(parent)
		}
		parentCanon, err := filepath.EvalSymlinks(parent)
		if err != nil {
			return "", fmt.Errorf("parent directory not found: %s", parent)
		}
		checkPath = filepath.Join(parentCanon, remainder)
	}

	if !isWithin(checkPath, rootCanon) {
		return "", fmt.Errorf("access denied: path %q is outside the sandbox directory %q", requested, sb.root)
	}
	return checkPath, nil
}

func isWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// NewBuiltinTools registers read_file, write_file, list_files,
// execute_command and fetch_url against sandboxDir into reg.
func NewBuiltinTools(reg *Registry, sandboxDir string) {
	sb := sandbox{root: sandboxDir}
	reg.Register("read_file", readFileTool{sb})
	reg.Register("write_file", writeFileTool{sb})
	reg.Register("list_files", listFilesTool{sb})
	reg.Register("execute_command", executeCommandTool{sb})
	reg.Register("fetch_url", fetchURLTool{})
}

// --- read_file ---

type readFileTool struct{ sb sandbox }

func (t readFileTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "read_file",
		Description: "Read the contents of a file within the sandbox directory",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "The file path (relative to sandbox or absolute within sandbox)"},
			},
			"required": []string{"path"},
		},
	}}
}

func (t readFileTool) Execute(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	_ = json.Unmarshal(raw, &args)
	if args.Path == "" {
		return "", fmt.Errorf("missing 'path' argument")
	}
	full, err := t.sb.validatePath(args.Path)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", full, err)
	}
	return string(content), nil
}

// --- write_file ---

type writeFileTool struct{ sb sandbox }

func (t writeFileTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "write_file",
		Description: "Write content to a file within the sandbox directory. Creates parent directories if needed.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "The file path (relative to sandbox or absolute within sandbox)"},
				"content": map[string]any{"type": "string", "description": "The content to write to the file"},
			},
			"required": []string{"path", "content"},
		},
	}}
}

func (t writeFileTool) Execute(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	_ = json.Unmarshal(raw, &args)
	if args.Path == "" {
		return "", fmt.Errorf("missing 'path' argument")
	}
	full, err := t.sb.validatePath(args.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directories for %s: %w", full, err)
	}
	if err := os.WriteFile(full, []byte(args.Content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", full, err)
	}
	return fmt.Sprintf("File written successfully: %s", full), nil
}

// --- list_files ---

type listFilesTool struct{ sb sandbox }

func (t listFilesTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "list_files",
		Description: "List files and directories within a path in the sandbox directory",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "The directory path (relative to sandbox or absolute within sandbox). Defaults to sandbox root."},
			},
			"required": []string{},
		},
	}}
}

func (t listFilesTool) Execute(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	_ = json.Unmarshal(raw, &args)
	if args.Path == "" {
		args.Path = "."
	}
	full, err := t.sb.validatePath(args.Path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", full, err)
	}

	var lines []string
	for _, e := range entries {
		prefix := "[FILE]"
		if e.IsDir() {
			prefix = "[DIR]"
		}
		lines = append(lines, prefix+" "+e.Name())
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		return "Directory is empty", nil
	}
	return strings.Join(lines, "\n"), nil
}

// --- execute_command ---

type executeCommandTool struct{ sb sandbox }

func (t executeCommandTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "execute_command",
		Description: "Execute a shell command within the sandbox directory. The working directory is set to the sandbox.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{"type": "string", "description": "The shell command to execute"},
			},
			"required": []string{"command"},
		},
	}}
}

func (t executeCommandTool) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Command string `json:"command"`
	}
	_ = json.Unmarshal(raw, &args)
	if args.Command == "" {
		return "", fmt.Errorf("missing 'command' argument")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", args.Command)
	cmd.Dir = t.sb.root
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	var b strings.Builder
	if stdout.Len() > 0 {
		fmt.Fprintf(&b, "STDOUT:\n%s\n", stdout.String())
	}
	if stderr.Len() > 0 {
		fmt.Fprintf(&b, "STDERR:\n%s\n", stderr.String())
	}
	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil {
		exitCode = -1
	}
	fmt.Fprintf(&b, "Exit code: %d", exitCode)
	return b.String(), nil
}

// --- fetch_url ---

type fetchURLTool struct{}

func (t fetchURLTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "fetch_url",
		Description: "Fetch a URL and return its text content, converted from HTML to plain text",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "The URL to fetch"},
			},
			"required": []string{"url"},
		},
	}}
}

const fetchURLMaxChars = 8000

func (t fetchURLTool) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	_ = json.Unmarshal(raw, &args)
	if args.URL == "" {
		return "", fmt.Errorf("missing 'url' argument")
	}

	text, err := fetchAndConvert(ctx, args.URL)
	if err != nil {
		return "", err
	}
	if len(text) > fetchURLMaxChars {
		text = text[:fetchURLMaxChars]
	}
	return text, nil
}

func fetchAndConvert(ctx context.Context, url string) (string, error) {
	req, err := newGetRequest(ctx, url)
	if err != nil {
		return "", err
	}
	body, err := doRequest(req)
	if err != nil {
		return "", err
	}
	text, err := html2text.FromString(body)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to text: %w", err)
	}
	return text, nil
}
