package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/ashureev/physics-lab/internal/domain"
)

// DefaultRecursionLimit bounds the number of model calls in one run.
const DefaultRecursionLimit = 50

// ErrRecursionLimit is returned when a run exceeds its step budget.
var ErrRecursionLimit = errors.New("agent recursion limit reached")

const imageURLMarker = "Image URL:"

// Result is what one agent run produced.
type Result struct {
	Files    map[string]string
	Todos    []domain.Todo
	Messages []string
	Images   []string
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	RecursionLimit int
	MaxTokens      int
	SubAgents      []SubAgent
}

// Runner executes the experiment agent: an orchestrator with planning,
// workspace, search and image tools that can delegate to sub-agents.
type Runner struct {
	factory   ProviderFactory
	search    Searcher
	images    ImageGenerator
	limit     int
	maxTokens int
	subAgents []SubAgent
	logger    *slog.Logger
}

// NewRunner creates a Runner. images may be nil.
func NewRunner(factory ProviderFactory, search Searcher, images ImageGenerator, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = DefaultRecursionLimit
	}
	if cfg.SubAgents == nil {
		cfg.SubAgents = DefaultSubAgents()
	}
	return &Runner{
		factory:   factory,
		search:    search,
		images:    images,
		limit:     cfg.RecursionLimit,
		maxTokens: cfg.MaxTokens,
		subAgents: cfg.SubAgents,
		logger:    logger,
	}
}

// stepBudget counts model calls across the orchestrator and its sub-agents.
type stepBudget struct {
	used, limit int
}

func (b *stepBudget) take() error {
	if b.used >= b.limit {
		return fmt.Errorf("%w (%d steps)", ErrRecursionLimit, b.limit)
	}
	b.used++
	return nil
}

// Run executes the agent for one request.
func (r *Runner) Run(ctx context.Context, request, model string) (*Result, error) {
	provider, err := r.factory.Provider(ctx, model)
	if err != nil {
		return nil, err
	}

	ws := newWorkspace()
	budget := &stepBudget{limit: r.limit}

	shared := r.sharedTools(ws)
	subRegistry := NewRegistry(shared...)
	task := &taskTool{
		agents: r.subAgents,
		spawn: func(ctx context.Context, sa SubAgent, description string) (string, error) {
			r.logger.Info("sub-agent started", "agent", sa.Name)
			msgs := []Message{
				{Role: "system", Content: systemPrompt(sa.Prompt)},
				{Role: "user", Content: description},
			}
			_, out, err := r.loop(ctx, provider, subRegistry, msgs, budget)
			if err != nil {
				return "", fmt.Errorf("%s: %w", sa.Name, err)
			}
			return out, nil
		},
	}
	registry := NewRegistry(append(shared, task)...)

	msgs := []Message{
		{Role: "system", Content: systemPrompt(orchestratorPrompt)},
		{Role: "user", Content: request},
	}
	msgs, _, err = r.loop(ctx, provider, registry, msgs, budget)
	if err != nil {
		return nil, err
	}

	files, todos, images := ws.snapshot()
	transcript := make([]string, 0, len(msgs))
	for _, m := range msgs[1:] {
		if m.Content != "" {
			transcript = append(transcript, m.Content)
		}
	}

	r.logger.Info("agent run finished", "model", model, "steps", budget.used, "files", len(files), "images", len(images))
	return &Result{
		Files:    files,
		Todos:    todos,
		Messages: transcript,
		Images:   MergeImages(images, ExtractImageURLs(transcript)),
	}, nil
}

func (r *Runner) sharedTools(ws *workspace) []Tool {
	tools := []Tool{
		&writeTodosTool{ws: ws},
		&lsTool{ws: ws},
		&readFileTool{ws: ws},
		&writeFileTool{ws: ws},
		&editFileTool{ws: ws},
		&searchTool{search: r.search},
	}
	if r.images != nil && r.images.Available() {
		tools = append(tools, &imageTool{images: r.images, ws: ws}, &multiImageTool{images: r.images, ws: ws})
	}
	return tools
}

// loop alternates model calls and tool execution until the model answers
// without tool calls. It returns the full conversation and the final answer.
func (r *Runner) loop(ctx context.Context, p Provider, reg *Registry, msgs []Message, budget *stepBudget) ([]Message, string, error) {
	defs := reg.Definitions()
	for {
		if err := budget.take(); err != nil {
			return msgs, "", err
		}
		resp, err := p.Chat(ctx, ChatRequest{Messages: msgs, Tools: defs, MaxTokens: r.maxTokens})
		if err != nil {
			return msgs, "", fmt.Errorf("model call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			msgs = append(msgs, Message{Role: "assistant", Content: resp.Content})
			return msgs, resp.Content, nil
		}

		calls := make([]ToolCall, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			if tc.ID == "" {
				tc.ID = "call_" + uuid.NewString()
			}
			calls[i] = tc
		}
		msgs = append(msgs, Message{Role: "assistant", Content: resp.Content, ToolCalls: calls})

		for _, tc := range calls {
			out, err := r.execute(ctx, reg, tc)
			if err != nil {
				return msgs, "", err
			}
			msgs = append(msgs, Message{Role: "tool", Content: out, ToolCallID: tc.ID})
		}
	}
}

// execute runs one tool call. Tool failures are reported to the model; only
// budget exhaustion and cancellation abort the run.
func (r *Runner) execute(ctx context.Context, reg *Registry, tc ToolCall) (string, error) {
	tool := reg.Get(tc.Name)
	if tool == nil {
		return fmt.Sprintf("Error: unknown tool %q", tc.Name), nil
	}
	out, err := tool.Execute(ctx, tc.Args)
	if err != nil {
		if errors.Is(err, ErrRecursionLimit) || ctx.Err() != nil {
			return "", err
		}
		r.logger.Debug("tool returned error", "tool", tc.Name, "error", err)
		return fmt.Sprintf("Error: %v", err), nil
	}
	return out, nil
}

// ExtractImageURLs scans message text for "Image URL: <url>" and returns the
// URLs in order of appearance.
func ExtractImageURLs(messages []string) []string {
	var urls []string
	for _, content := range messages {
		if !strings.Contains(content, imageURLMarker) {
			continue
		}
		for _, line := range strings.Split(content, "\n") {
			idx := strings.LastIndex(line, imageURLMarker)
			if idx < 0 {
				continue
			}
			rest := strings.TrimSpace(line[idx+len(imageURLMarker):])
			if !strings.HasPrefix(rest, "http") {
				continue
			}
			if fields := strings.Fields(rest); len(fields) > 0 {
				rest = fields[0]
			}
			urls = append(urls, strings.TrimRight(rest, ".,;)"))
		}
	}
	return urls
}

// MergeImages concatenates URL lists, dropping duplicates and keeping first occurrence order.
func MergeImages(lists ...[]string) []string {
	merged := []string{}
	for _, list := range lists {
		for _, u := range list {
			if u != "" && !slices.Contains(merged, u) {
				merged = append(merged, u)
			}
		}
	}
	return merged
}
