package agent

import (
	_ "embed"
	"strings"
)

var (
	//go:embed prompts/orchestrator.md
	orchestratorPrompt string

	//go:embed prompts/research.md
	researchPrompt string

	//go:embed prompts/critique.md
	critiquePrompt string

	//go:embed prompts/workspace.md
	workspacePrompt string
)

// SubAgent is a specialised agent the orchestrator can delegate to.
type SubAgent struct {
	Name        string
	Description string
	Prompt      string
}

// DefaultSubAgents returns the research and critique sub-agents.
func DefaultSubAgents() []SubAgent {
	return []SubAgent{
		{
			Name:        "research-agent",
			Description: "Expert educational researcher specializing in physics and Grade 9 science curriculum. Use for researching physics concepts, experiment procedures, safety guidelines, and educational resources. Call with specific, focused queries (e.g., 'Grade 9 pendulum experiment procedures and materials', 'safety guidelines for electricity experiments', 'simple explanations of Newton's laws for students').",
			Prompt:      researchPrompt,
		},
		{
			Name:        "critique-agent",
			Description: "Experienced physics teacher reviewing experiment guides for Grade 9 students. Use after creating experiment files to check for safety, accuracy, age-appropriateness, and completeness. Specify focus if needed (e.g., 'review for safety concerns', 'check if suitable for Grade 9 level').",
			Prompt:      critiquePrompt,
		},
	}
}

func systemPrompt(base string) string {
	return strings.TrimSpace(base) + "\n\n" + strings.TrimSpace(workspacePrompt)
}
