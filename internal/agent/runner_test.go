package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/physics-lab/internal/domain"
)

// scriptedProvider replays canned responses and records each request.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*ChatResponse
	requests  []ChatRequest
	err       error
}

func (p *scriptedProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &ChatResponse{Content: "done"}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

type fakeFactory struct {
	provider Provider
	err      error
	model    string
}

func (f *fakeFactory) Provider(_ context.Context, model string) (Provider, error) {
	f.model = model
	return f.provider, f.err
}

type fakeSearcher struct {
	queries []string
}

func (s *fakeSearcher) Search(_ context.Context, query string, _ int, _ string) string {
	s.queries = append(s.queries, query)
	return "Search results for '" + query + "': []"
}

type fakeImages struct {
	available bool
	url       string
}

func (f *fakeImages) Available() bool { return f.available }

func (f *fakeImages) GenerateImage(_ context.Context, topic string, style domain.ImageStyle, _ string) domain.ImageResult {
	u := f.url
	return domain.ImageResult{URL: &u, Topic: topic, Style: style, Status: domain.ImageSuccess}
}

func (f *fakeImages) GenerateMultipleImages(ctx context.Context, topic string, count int, styles []domain.ImageStyle) []domain.ImageResult {
	var out []domain.ImageResult
	for i := 0; i < count; i++ {
		r := f.GenerateImage(ctx, topic, domain.StyleDiagram, "")
		u := f.url + "?n=" + string(rune('a'+i))
		r.URL = &u
		out = append(out, r)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func call(id, name string, args map[string]any) ToolCall {
	return ToolCall{ID: id, Name: name, Args: args}
}

func TestRunner_RecordsFilesAndTodos(t *testing.T) {
	provider := &scriptedProvider{responses: []*ChatResponse{
		{ToolCalls: []ToolCall{call("1", "write_todos", map[string]any{
			"todos": []any{
				map[string]any{"content": "Write synopsis", "status": "in_progress"},
				map[string]any{"content": "Write methodology", "status": "pending"},
			},
		})}},
		{ToolCalls: []ToolCall{
			call("2", "write_file", map[string]any{"file_path": "experiment_synopsis.md", "content": "# Pendulum\nPeriod"}),
			call("3", "internet_search", map[string]any{"query": "pendulum period"}),
		}},
		{ToolCalls: []ToolCall{call("4", "edit_file", map[string]any{
			"file_path": "experiment_synopsis.md", "old_string": "Period", "new_string": "Period depends on length",
		})}},
		{Content: "All files written."},
	}}
	search := &fakeSearcher{}
	runner := NewRunner(&fakeFactory{provider: provider}, search, nil, RunnerConfig{}, quietLogger())

	res, err := runner.Run(context.Background(), "Simple pendulum", "gpt-4o")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := res.Files["experiment_synopsis.md"]; got != "# Pendulum\nPeriod depends on length" {
		t.Errorf("Unexpected file content: %q", got)
	}
	if len(res.Todos) != 2 || res.Todos[0].Status != domain.TodoInProgress {
		t.Errorf("Unexpected todos: %+v", res.Todos)
	}
	if len(search.queries) != 1 || search.queries[0] != "pendulum period" {
		t.Errorf("Expected one search, got %v", search.queries)
	}
	if len(provider.requests) != 4 {
		t.Errorf("Expected 4 model calls, got %d", len(provider.requests))
	}
	if last := res.Messages[len(res.Messages)-1]; last != "All files written." {
		t.Errorf("Expected final answer last in transcript, got %q", last)
	}
	if len(res.Images) != 0 {
		t.Errorf("Expected no images, got %v", res.Images)
	}
}

func TestRunner_ToolErrorsAreReportedToModel(t *testing.T) {
	provider := &scriptedProvider{responses: []*ChatResponse{
		{ToolCalls: []ToolCall{call("1", "read_file", map[string]any{"file_path": "missing.md"})}},
		{ToolCalls: []ToolCall{call("2", "no_such_tool", nil)}},
		{Content: "ok"},
	}}
	runner := NewRunner(&fakeFactory{provider: provider}, &fakeSearcher{}, nil, RunnerConfig{}, quietLogger())

	if _, err := runner.Run(context.Background(), "x", "gpt-4o"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	second := provider.requests[1].Messages
	toolMsg := second[len(second)-1]
	if toolMsg.Role != "tool" || !strings.HasPrefix(toolMsg.Content, "Error: file 'missing.md' not found") {
		t.Errorf("Expected error tool result, got %+v", toolMsg)
	}
	third := provider.requests[2].Messages
	if !strings.Contains(third[len(third)-1].Content, "unknown tool") {
		t.Errorf("Expected unknown tool message, got %q", third[len(third)-1].Content)
	}
}

func TestRunner_StepLimit(t *testing.T) {
	loopCall := &ChatResponse{ToolCalls: []ToolCall{call("", "ls", nil)}}
	responses := make([]*ChatResponse, 10)
	for i := range responses {
		responses[i] = loopCall
	}
	provider := &scriptedProvider{responses: responses}
	runner := NewRunner(&fakeFactory{provider: provider}, &fakeSearcher{}, nil, RunnerConfig{RecursionLimit: 3}, quietLogger())

	_, err := runner.Run(context.Background(), "x", "gpt-4o")
	if !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("Expected ErrRecursionLimit, got %v", err)
	}
	if len(provider.requests) != 3 {
		t.Errorf("Expected 3 model calls, got %d", len(provider.requests))
	}
}

func TestRunner_SubAgentSharesWorkspaceAndBudget(t *testing.T) {
	provider := &scriptedProvider{responses: []*ChatResponse{
		{ToolCalls: []ToolCall{call("1", "task", map[string]any{"subagent_type": "critique-agent", "description": "review"})}},
		{ToolCalls: []ToolCall{call("2", "write_file", map[string]any{"file_path": "review.md", "content": "looks safe"})}},
		{Content: "Reviewed."},
		{Content: "Finished."},
	}}
	runner := NewRunner(&fakeFactory{provider: provider}, &fakeSearcher{}, nil, RunnerConfig{}, quietLogger())

	res, err := runner.Run(context.Background(), "x", "gpt-4o")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Files["review.md"] != "looks safe" {
		t.Errorf("Expected sub-agent file in workspace, got %v", res.Files)
	}

	sub := provider.requests[1]
	if !strings.HasPrefix(sub.Messages[0].Content, strings.TrimSpace(critiquePrompt)[:40]) {
		t.Error("Expected sub-agent to use the critique prompt")
	}
	for _, d := range sub.Tools {
		if d.Name == "task" {
			t.Error("Sub-agents must not be offered the task tool")
		}
	}

	last := provider.requests[3].Messages
	if got := last[len(last)-1]; got.Role != "tool" || got.Content != "Reviewed." {
		t.Errorf("Expected sub-agent answer as tool result, got %+v", got)
	}
}

func TestRunner_ImageToolsOnlyWhenAvailable(t *testing.T) {
	for _, available := range []bool{false, true} {
		provider := &scriptedProvider{}
		images := &fakeImages{available: available, url: "https://img/x.jpg"}
		runner := NewRunner(&fakeFactory{provider: provider}, &fakeSearcher{}, images, RunnerConfig{}, quietLogger())
		if _, err := runner.Run(context.Background(), "x", "gpt-4o"); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		found := false
		for _, d := range provider.requests[0].Tools {
			if d.Name == "generate_experiment_image" {
				found = true
			}
		}
		if found != available {
			t.Errorf("available=%v: expected image tool offered=%v", available, available)
		}
	}
}

func TestRunner_CapturesImages(t *testing.T) {
	provider := &scriptedProvider{responses: []*ChatResponse{
		{ToolCalls: []ToolCall{call("1", "generate_experiment_image", map[string]any{"experiment_topic": "Lens"})}},
		{ToolCalls: []ToolCall{call("2", "generate_multiple_experiment_images", map[string]any{"experiment_topic": "Lens", "count": float64(2)})}},
		{Content: "See Image URL: https://other/y.png for the setup."},
	}}
	images := &fakeImages{available: true, url: "https://img/x.jpg"}
	runner := NewRunner(&fakeFactory{provider: provider}, &fakeSearcher{}, images, RunnerConfig{}, quietLogger())

	res, err := runner.Run(context.Background(), "x", "gpt-4o")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []string{"https://img/x.jpg", "https://img/x.jpg?n=a", "https://img/x.jpg?n=b", "https://other/y.png"}
	if !reflect.DeepEqual(res.Images, want) {
		t.Errorf("Expected images %v, got %v", want, res.Images)
	}
}

func TestRunner_ProviderError(t *testing.T) {
	runner := NewRunner(&fakeFactory{err: errors.New("no key")}, &fakeSearcher{}, nil, RunnerConfig{}, quietLogger())
	if _, err := runner.Run(context.Background(), "x", "gpt-4o"); err == nil {
		t.Fatal("Expected error when provider cannot be created")
	}

	provider := &scriptedProvider{err: errors.New("boom")}
	runner = NewRunner(&fakeFactory{provider: provider}, &fakeSearcher{}, nil, RunnerConfig{}, quietLogger())
	if _, err := runner.Run(context.Background(), "x", "gpt-4o"); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Expected model error, got %v", err)
	}
}

func TestExtractImageURLs(t *testing.T) {
	messages := []string{
		"Successfully generated image for 'Pendulum'. Image URL: https://a/1.jpg. Style: scientific. Local path: temp/images/p.jpg",
		"first line\nImage URL: https://b/2.png\nImage URL: not-a-url",
		"no images here",
		"Image URL: see Image URL: https://c/3.jpg",
	}
	got := ExtractImageURLs(messages)
	want := []string{"https://a/1.jpg", "https://b/2.png", "https://c/3.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestMergeImages(t *testing.T) {
	got := MergeImages([]string{"a", "b"}, []string{"b", "c", ""}, nil)
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Unexpected merge result: %v", got)
	}
	if empty := MergeImages(); empty == nil || len(empty) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", empty)
	}
}

type countingImages struct {
	fakeImages
	counts []int
}

func (c *countingImages) GenerateMultipleImages(_ context.Context, _ string, count int, _ []domain.ImageStyle) []domain.ImageResult {
	c.counts = append(c.counts, count)
	return nil
}

func TestMultiImageTool_ClampsCount(t *testing.T) {
	images := &countingImages{fakeImages: fakeImages{available: true}}
	tool := &multiImageTool{images: images, ws: newWorkspace()}

	for _, n := range []float64{1e11, 0, -3} {
		if _, err := tool.Execute(context.Background(), map[string]any{"experiment_topic": "waves", "count": n}); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	}

	want := []int{domain.MaxImagesPerRequest, 1, 1}
	for i, got := range images.counts {
		if got != want[i] {
			t.Errorf("Call %d: expected count %d, got %d", i, want[i], got)
		}
	}
}
