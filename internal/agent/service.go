package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/physics-lab/internal/domain"
	"github.com/ashureev/physics-lab/internal/store"
)

// ErrEmptyDescription is returned for requests without an experiment description.
var ErrEmptyDescription = errors.New("experiment description is required")

// Generator runs the agent for one request.
type Generator interface {
	Run(ctx context.Context, request, model string) (*Result, error)
}

// Ensure Runner implements Generator.
var _ Generator = (*Runner)(nil)

// Service turns experiment requests into stored sessions. Both the HTTP and
// the WebSocket front doors go through it.
type Service struct {
	runner       Generator
	store        store.SessionStore
	pool         *Pool
	defaultModel string
	logger       *slog.Logger

	// idMu serialises session id allocation.
	idMu sync.Mutex
}

// NewService creates a generation service.
func NewService(runner Generator, st store.SessionStore, pool *Pool, defaultModel string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		pool = NewPool(1, 0)
	}
	return &Service{
		runner:       runner,
		store:        st,
		pool:         pool,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Generate runs the agent and stores the resulting session. The run is
// detached from ctx once a worker is acquired, so a caller that goes away
// does not abort generation.
func (s *Service) Generate(ctx context.Context, req domain.ExperimentRequest) (*domain.Session, error) {
	req.Normalize(s.defaultModel)
	if req.Description == "" {
		return nil, ErrEmptyDescription
	}

	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	result, err := s.runner.Run(context.WithoutCancel(ctx), BuildPrompt(req), req.ModelName)
	if err != nil {
		s.logger.Error("experiment generation failed", "model", req.ModelName, "error", err)
		return nil, err
	}

	session := &domain.Session{
		Files:     result.Files,
		Todos:     result.Todos,
		Images:    result.Images,
		Messages:  result.Messages,
		Request:   req,
		CreatedAt: time.Now().UTC(),
	}
	session.EnsureCollections()

	if err := s.save(context.WithoutCancel(ctx), session, req.RequestedSessionID()); err != nil {
		return nil, err
	}

	s.logger.Info("experiment generated",
		"session_id", session.ID,
		"files", len(session.Files),
		"images", len(session.Images),
		"duration", time.Since(start).String())
	return session, nil
}

// save assigns the session id and persists the session.
func (s *Service) save(ctx context.Context, session *domain.Session, requested string) error {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	if requested != "" {
		session.ID = requested
	} else {
		id, err := s.nextID(ctx)
		if err != nil {
			return err
		}
		session.ID = id
	}

	if err := s.store.Put(ctx, session); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// nextID returns exp_<count+1>, skipping ids already taken by caller-chosen ids.
func (s *Service) nextID(ctx context.Context) (string, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to count sessions: %w", err)
	}
	for i := n + 1; ; i++ {
		id := fmt.Sprintf("exp_%d", i)
		_, err := s.store.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// Session returns a stored session.
func (s *Service) Session(ctx context.Context, id string) (*domain.Session, error) {
	return s.store.Get(ctx, id)
}

// Sessions lists stored session ids in creation order.
func (s *Service) Sessions(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

// BuildPrompt renders the request text handed to the agent.
func BuildPrompt(req domain.ExperimentRequest) string {
	var b strings.Builder
	b.WriteString(req.Description)
	if req.GradeLevel != "" && req.GradeLevel != domain.DefaultGradeLevel {
		fmt.Fprintf(&b, "\n\nTarget level: %s", req.GradeLevel)
	}
	if req.StudentName != nil && strings.TrimSpace(*req.StudentName) != "" {
		fmt.Fprintf(&b, "\nStudent name: %s", strings.TrimSpace(*req.StudentName))
	}
	return b.String()
}
