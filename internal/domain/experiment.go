// Package domain contains core domain types for the physics experiment helper.
package domain

import (
	"strings"
	"time"
)

// DefaultGradeLevel is applied when a request omits the grade level.
const DefaultGradeLevel = "Grade 9"

// CanonicalFiles lists the experiment documents in presentation order.
var CanonicalFiles = []string{
	"experiment_synopsis.md",
	"theory_and_background.md",
	"methodology.md",
	"data_template.md",
	"analysis_and_conclusion.md",
	"report_template.md",
	"references_and_resources.md",
}

// ExperimentRequest is a student's request for an experiment guide.
type ExperimentRequest struct {
	Description string  `json:"experiment_description"`
	StudentName *string `json:"student_name,omitempty"`
	GradeLevel  string  `json:"grade_level"`
	ModelName   string  `json:"model_name"`
	SessionID   *string `json:"session_id,omitempty"`
}

// Normalize trims the description and fills defaults.
func (r *ExperimentRequest) Normalize(defaultModel string) {
	r.Description = strings.TrimSpace(r.Description)
	if strings.TrimSpace(r.GradeLevel) == "" {
		r.GradeLevel = DefaultGradeLevel
	}
	if strings.TrimSpace(r.ModelName) == "" {
		r.ModelName = defaultModel
	}
	if r.SessionID != nil && strings.TrimSpace(*r.SessionID) == "" {
		r.SessionID = nil
	}
}

// RequestedSessionID returns the caller-supplied session id, or "".
func (r ExperimentRequest) RequestedSessionID() string {
	if r.SessionID == nil {
		return ""
	}
	return strings.TrimSpace(*r.SessionID)
}

// TodoStatus is the progress state of a planning task.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// Todo is a single planning task recorded by the agent.
type Todo struct {
	Content string     `json:"content"`
	Status  TodoStatus `json:"status"`
}

// Session is the stored result of one completed generation run.
type Session struct {
	ID        string            `json:"session_id"`
	Files     map[string]string `json:"files"`
	Todos     []Todo            `json:"todos"`
	Images    []string          `json:"images"`
	Messages  []string          `json:"messages"`
	Request   ExperimentRequest `json:"request"`
	CreatedAt time.Time         `json:"created_at"`
}

// EnsureCollections replaces nil collections with empty ones so that
// JSON responses carry {} and [] instead of null.
func (s *Session) EnsureCollections() {
	if s.Files == nil {
		s.Files = map[string]string{}
	}
	if s.Todos == nil {
		s.Todos = []Todo{}
	}
	if s.Images == nil {
		s.Images = []string{}
	}
	if s.Messages == nil {
		s.Messages = []string{}
	}
}
