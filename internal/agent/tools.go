package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/ashureev/physics-lab/internal/domain"
)

// Tool is an action the model can invoke.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the tools offered to one agent.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry with the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

// Definitions returns the model-facing tool list sorted by name.
func (r *Registry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Searcher runs a web search and returns text for the model.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int, engine string) string
}

// ImageGenerator produces experiment illustrations.
type ImageGenerator interface {
	Available() bool
	GenerateImage(ctx context.Context, topic string, style domain.ImageStyle, customPrompt string) domain.ImageResult
	GenerateMultipleImages(ctx context.Context, topic string, count int, styles []domain.ImageStyle) []domain.ImageResult
}

// workspace is the per-run state the tools read and write.
type workspace struct {
	mu     sync.Mutex
	files  map[string]string
	todos  []domain.Todo
	images []string
}

func newWorkspace() *workspace {
	return &workspace{files: make(map[string]string)}
}

func (w *workspace) recordImage(url string) {
	if url == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !slices.Contains(w.images, url) {
		w.images = append(w.images, url)
	}
}

func (w *workspace) snapshot() (map[string]string, []domain.Todo, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	files := make(map[string]string, len(w.files))
	for k, v := range w.files {
		files[k] = v
	}
	return files, slices.Clone(w.todos), slices.Clone(w.images)
}

func schema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// --- planning ---

type writeTodosTool struct{ ws *workspace }

func (t *writeTodosTool) Name() string { return "write_todos" }

func (t *writeTodosTool) Description() string {
	return "Create or replace the task list used to plan and track progress. Each todo has content and a status of pending, in_progress or completed."
}

func (t *writeTodosTool) Parameters() map[string]any {
	return schema(map[string]any{
		"todos": map[string]any{
			"type":        "array",
			"description": "The complete, updated todo list",
			"items": schema(map[string]any{
				"content": prop("string", "What needs to be done"),
				"status": map[string]any{
					"type": "string",
					"enum": []string{string(domain.TodoPending), string(domain.TodoInProgress), string(domain.TodoCompleted)},
				},
			}, "content", "status"),
		},
	}, "todos")
}

func (t *writeTodosTool) Execute(_ context.Context, args map[string]any) (string, error) {
	raw, ok := args["todos"].([]any)
	if !ok {
		return "", errors.New("todos must be an array")
	}
	todos := make([]domain.Todo, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return "", fmt.Errorf("todo %d must be an object", i)
		}
		status := domain.TodoStatus(stringArg(m, "status"))
		switch status {
		case domain.TodoPending, domain.TodoInProgress, domain.TodoCompleted:
		case "":
			status = domain.TodoPending
		default:
			return "", fmt.Errorf("todo %d has invalid status %q", i, status)
		}
		todos = append(todos, domain.Todo{Content: stringArg(m, "content"), Status: status})
	}

	t.ws.mu.Lock()
	t.ws.todos = todos
	t.ws.mu.Unlock()

	data, _ := json.Marshal(todos)
	return fmt.Sprintf("Updated todo list to %s", data), nil
}

// --- virtual filesystem ---

type lsTool struct{ ws *workspace }

func (t *lsTool) Name() string { return "ls" }

func (t *lsTool) Description() string { return "List all files in the workspace." }

func (t *lsTool) Parameters() map[string]any { return schema(map[string]any{}) }

func (t *lsTool) Execute(_ context.Context, _ map[string]any) (string, error) {
	t.ws.mu.Lock()
	names := make([]string, 0, len(t.ws.files))
	for name := range t.ws.files {
		names = append(names, name)
	}
	t.ws.mu.Unlock()

	sort.Strings(names)
	data, _ := json.Marshal(names)
	return string(data), nil
}

type readFileTool struct{ ws *workspace }

func (t *readFileTool) Name() string { return "read_file" }

func (t *readFileTool) Description() string {
	return "Read a workspace file. Lines are returned numbered; use offset and limit for long files."
}

func (t *readFileTool) Parameters() map[string]any {
	return schema(map[string]any{
		"file_path": prop("string", "Name of the file to read"),
		"offset":    prop("integer", "Line to start from (0-based)"),
		"limit":     prop("integer", "Maximum number of lines (default 2000)"),
	}, "file_path")
}

func (t *readFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	path := stringArg(args, "file_path")
	t.ws.mu.Lock()
	content, ok := t.ws.files[path]
	t.ws.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("file '%s' not found", path)
	}
	if strings.TrimSpace(content) == "" {
		return "System reminder: File exists but has empty contents", nil
	}

	lines := strings.Split(content, "\n")
	offset := max(intArg(args, "offset", 0), 0)
	limit := intArg(args, "limit", 2000)
	if offset >= len(lines) {
		return "", fmt.Errorf("line offset %d exceeds file length (%d lines)", offset, len(lines))
	}
	end := min(offset+limit, len(lines))

	var b strings.Builder
	for i := offset; i < end; i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

type writeFileTool struct{ ws *workspace }

func (t *writeFileTool) Name() string { return "write_file" }

func (t *writeFileTool) Description() string {
	return "Write a file to the workspace, replacing any existing content."
}

func (t *writeFileTool) Parameters() map[string]any {
	return schema(map[string]any{
		"file_path": prop("string", "Name of the file to write, e.g. methodology.md"),
		"content":   prop("string", "Full file content"),
	}, "file_path", "content")
}

func (t *writeFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	path := strings.TrimSpace(stringArg(args, "file_path"))
	if path == "" {
		return "", errors.New("file_path is required")
	}
	t.ws.mu.Lock()
	t.ws.files[path] = stringArg(args, "content")
	t.ws.mu.Unlock()
	return fmt.Sprintf("Updated file %s", path), nil
}

type editFileTool struct{ ws *workspace }

func (t *editFileTool) Name() string { return "edit_file" }

func (t *editFileTool) Description() string {
	return "Replace old_string with new_string in a workspace file. old_string must be unique unless replace_all is set."
}

func (t *editFileTool) Parameters() map[string]any {
	return schema(map[string]any{
		"file_path":   prop("string", "Name of the file to edit"),
		"old_string":  prop("string", "Exact text to replace"),
		"new_string":  prop("string", "Replacement text"),
		"replace_all": prop("boolean", "Replace every occurrence"),
	}, "file_path", "old_string", "new_string")
}

func (t *editFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	path := stringArg(args, "file_path")
	oldStr := stringArg(args, "old_string")
	newStr := stringArg(args, "new_string")
	if oldStr == "" {
		return "", errors.New("old_string is required")
	}

	t.ws.mu.Lock()
	defer t.ws.mu.Unlock()

	content, ok := t.ws.files[path]
	if !ok {
		return "", fmt.Errorf("file '%s' not found", path)
	}
	n := strings.Count(content, oldStr)
	switch {
	case n == 0:
		return "", fmt.Errorf("string not found in file: '%s'", oldStr)
	case n > 1 && !boolArg(args, "replace_all"):
		return "", fmt.Errorf("string '%s' appears %d times in file; use replace_all or add context", oldStr, n)
	}

	if boolArg(args, "replace_all") {
		t.ws.files[path] = strings.ReplaceAll(content, oldStr, newStr)
		return fmt.Sprintf("Successfully replaced %d instance(s) of the string in '%s'", n, path), nil
	}
	t.ws.files[path] = strings.Replace(content, oldStr, newStr, 1)
	return fmt.Sprintf("Successfully replaced string in '%s'", path), nil
}

// --- domain tools ---

type searchTool struct{ search Searcher }

func (t *searchTool) Name() string { return "internet_search" }

func (t *searchTool) Description() string {
	return "Run a web search for physics education resources and experiment information. Returns web pages, image counts and educational resources."
}

func (t *searchTool) Parameters() map[string]any {
	return schema(map[string]any{
		"query":         prop("string", "Search query string"),
		"max_results":   prop("integer", "Maximum number of results to return (default 5)"),
		"search_engine": prop("string", "Preferred engine: google, tavily or duckduckgo"),
	}, "query")
}

func (t *searchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	engine := stringArg(args, "search_engine")
	if engine == "" {
		engine = "google"
	}
	return t.search.Search(ctx, stringArg(args, "query"), intArg(args, "max_results", 5), engine), nil
}

type imageTool struct {
	images ImageGenerator
	ws     *workspace
}

func (t *imageTool) Name() string { return "generate_experiment_image" }

func (t *imageTool) Description() string {
	return "Generate an image for a physics experiment. Styles: scientific (professional), educational (student-friendly) or diagram (technical)."
}

func (t *imageTool) Parameters() map[string]any {
	return schema(map[string]any{
		"experiment_topic": prop("string", "The topic or title of the experiment"),
		"style":            map[string]any{"type": "string", "enum": imageStyleNames()},
		"custom_prompt":    prop("string", "Optional custom prompt for image generation"),
	}, "experiment_topic")
}

func (t *imageTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	topic := stringArg(args, "experiment_topic")
	style := domain.ImageStyle(stringArg(args, "style"))
	if style == "" {
		style = domain.StyleScientific
	}

	res := t.images.GenerateImage(ctx, topic, style, stringArg(args, "custom_prompt"))
	if !res.OK() {
		errMsg := res.Error
		if errMsg == "" {
			errMsg = "Unknown error"
		}
		return fmt.Sprintf("Failed to generate image for '%s'. Error: %s", topic, errMsg), nil
	}

	t.ws.recordImage(res.ImageURL())
	localPath := "None"
	if res.LocalPath != nil {
		localPath = *res.LocalPath
	}
	return fmt.Sprintf("Successfully generated image for '%s'. Image URL: %s. Style: %s. Local path: %s",
		topic, res.ImageURL(), res.Style, localPath), nil
}

type multiImageTool struct {
	images ImageGenerator
	ws     *workspace
}

func (t *multiImageTool) Name() string { return "generate_multiple_experiment_images" }

func (t *multiImageTool) Description() string {
	return "Generate several images for a physics experiment, rotating through the given styles."
}

func (t *multiImageTool) Parameters() map[string]any {
	return schema(map[string]any{
		"experiment_topic": prop("string", "The topic or title of the experiment"),
		"count":            prop("integer", fmt.Sprintf("Number of images to generate (default 3, at most %d)", domain.MaxImagesPerRequest)),
		"styles": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string", "enum": imageStyleNames()},
		},
	}, "experiment_topic")
}

func (t *multiImageTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	topic := stringArg(args, "experiment_topic")
	count := min(max(intArg(args, "count", 3), 1), domain.MaxImagesPerRequest)

	var styles []domain.ImageStyle
	if raw, ok := args["styles"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok && str != "" {
				styles = append(styles, domain.ImageStyle(str))
			}
		}
	}

	results := t.images.GenerateMultipleImages(ctx, topic, count, styles)

	var ok []domain.ImageResult
	for _, r := range results {
		if r.OK() {
			ok = append(ok, r)
			t.ws.recordImage(r.ImageURL())
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generated %d out of %d images for '%s':\n", len(ok), count, topic)
	for i, r := range ok {
		fmt.Fprintf(&b, "%d. Style: %s, URL: %s\n", i+1, r.Style, r.ImageURL())
	}
	if failed := len(results) - len(ok); failed > 0 {
		fmt.Fprintf(&b, "\nFailed to generate %d images due to errors.", failed)
	}
	return b.String(), nil
}

func imageStyleNames() []string {
	names := make([]string, len(domain.DefaultImageStyles))
	for i, s := range domain.DefaultImageStyles {
		names[i] = string(s)
	}
	return names
}

// --- sub-agent delegation ---

type taskTool struct {
	agents []SubAgent
	spawn  func(ctx context.Context, agent SubAgent, description string) (string, error)
}

func (t *taskTool) Name() string { return "task" }

func (t *taskTool) Description() string {
	var b strings.Builder
	b.WriteString("Delegate a focused task to a specialised sub-agent. The sub-agent shares the workspace files and returns its final answer.\n\nAvailable agents:\n")
	for _, a := range t.agents {
		fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Description)
	}
	return b.String()
}

func (t *taskTool) Parameters() map[string]any {
	names := make([]string, len(t.agents))
	for i, a := range t.agents {
		names[i] = a.Name
	}
	return schema(map[string]any{
		"description":   prop("string", "Detailed task for the sub-agent"),
		"subagent_type": map[string]any{"type": "string", "enum": names},
	}, "description", "subagent_type")
}

func (t *taskTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	name := stringArg(args, "subagent_type")
	for _, a := range t.agents {
		if a.Name == name {
			return t.spawn(ctx, a, stringArg(args, "description"))
		}
	}
	return "", fmt.Errorf("unknown sub-agent %q", name)
}
