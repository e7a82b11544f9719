package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/physics-lab/internal/domain"
	"github.com/ashureev/physics-lab/internal/store"
)

type fakeGenerator struct {
	mu       sync.Mutex
	result   *Result
	err      error
	requests []string
	models   []string
	block    chan struct{}
	started  chan struct{}
	once     sync.Once
	ctxErr   error
}

func (g *fakeGenerator) Run(ctx context.Context, request, model string) (*Result, error) {
	if g.started != nil {
		g.once.Do(func() { close(g.started) })
	}
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, request)
	g.models = append(g.models, model)
	g.ctxErr = ctx.Err()
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func sampleResult() *Result {
	return &Result{
		Files:  map[string]string{"experiment_synopsis.md": "# Synopsis"},
		Todos:  []domain.Todo{{Content: "plan", Status: domain.TodoCompleted}},
		Images: []string{"https://img/1.jpg"},
	}
}

func TestService_GenerateAssignsSequentialIDs(t *testing.T) {
	gen := &fakeGenerator{result: sampleResult()}
	svc := NewService(gen, store.NewMemory(), NewPool(2, 0), "gpt-4o", quietLogger())

	for i, want := range []string{"exp_1", "exp_2"} {
		session, err := svc.Generate(context.Background(), domain.ExperimentRequest{Description: "pendulum"})
		if err != nil {
			t.Fatalf("Generate %d failed: %v", i, err)
		}
		if session.ID != want {
			t.Errorf("Expected id %s, got %s", want, session.ID)
		}
	}
	if gen.models[0] != "gpt-4o" {
		t.Errorf("Expected default model, got %s", gen.models[0])
	}

	ids, _ := svc.Sessions(context.Background())
	if len(ids) != 2 {
		t.Errorf("Expected 2 stored sessions, got %v", ids)
	}
}

func TestService_GenerateUsesRequestedID(t *testing.T) {
	gen := &fakeGenerator{result: sampleResult()}
	st := store.NewMemory()
	svc := NewService(gen, st, nil, "gpt-4o", quietLogger())

	requested := "exp_1"
	session, err := svc.Generate(context.Background(), domain.ExperimentRequest{Description: "lens", SessionID: &requested})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if session.ID != "exp_1" {
		t.Errorf("Expected requested id, got %s", session.ID)
	}

	// exp_2 is count+1 and free.
	next, err := svc.Generate(context.Background(), domain.ExperimentRequest{Description: "lens"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if next.ID != "exp_2" {
		t.Errorf("Expected exp_2, got %s", next.ID)
	}

	stored, err := st.Get(context.Background(), "exp_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Files["experiment_synopsis.md"] != "# Synopsis" {
		t.Errorf("Unexpected stored files: %v", stored.Files)
	}
}

func TestService_GenerateSkipsTakenIDs(t *testing.T) {
	gen := &fakeGenerator{result: sampleResult()}
	svc := NewService(gen, store.NewMemory(), nil, "gpt-4o", quietLogger())

	taken := "exp_2"
	if _, err := svc.Generate(context.Background(), domain.ExperimentRequest{Description: "a", SessionID: &taken}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	session, err := svc.Generate(context.Background(), domain.ExperimentRequest{Description: "b"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if session.ID != "exp_3" {
		t.Errorf("Expected exp_3, got %s", session.ID)
	}
}

func TestService_EmptyDescription(t *testing.T) {
	gen := &fakeGenerator{result: sampleResult()}
	svc := NewService(gen, store.NewMemory(), nil, "gpt-4o", quietLogger())

	_, err := svc.Generate(context.Background(), domain.ExperimentRequest{Description: "   "})
	if !errors.Is(err, ErrEmptyDescription) {
		t.Errorf("Expected ErrEmptyDescription, got %v", err)
	}
	if len(gen.requests) != 0 {
		t.Error("Expected runner not to be called")
	}
}

func TestService_RunnerErrorNotStored(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model exploded")}
	st := store.NewMemory()
	svc := NewService(gen, st, nil, "gpt-4o", quietLogger())

	if _, err := svc.Generate(context.Background(), domain.ExperimentRequest{Description: "x"}); err == nil {
		t.Fatal("Expected error")
	}
	if n, _ := st.Count(context.Background()); n != 0 {
		t.Errorf("Expected no stored sessions, got %d", n)
	}
}

func TestService_DetachesFromCallerContext(t *testing.T) {
	gen := &fakeGenerator{result: sampleResult(), block: make(chan struct{}), started: make(chan struct{})}
	svc := NewService(gen, store.NewMemory(), nil, "gpt-4o", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Generate(ctx, domain.ExperimentRequest{Description: "x"})
		done <- err
	}()

	<-gen.started
	cancel()
	close(gen.block)

	if err := <-done; err != nil {
		t.Fatalf("Generate failed after caller cancel: %v", err)
	}
	if gen.ctxErr != nil {
		t.Errorf("Expected runner context to stay live, got %v", gen.ctxErr)
	}
}

func TestService_BusyPool(t *testing.T) {
	gen := &fakeGenerator{result: sampleResult(), block: make(chan struct{}), started: make(chan struct{})}
	svc := NewService(gen, store.NewMemory(), NewPool(1, 0), "gpt-4o", quietLogger())

	done := make(chan struct{})
	go func() {
		_, _ = svc.Generate(context.Background(), domain.ExperimentRequest{Description: "first"})
		close(done)
	}()
	<-gen.started

	_, err := svc.Generate(context.Background(), domain.ExperimentRequest{Description: "second"})
	close(gen.block)
	<-done

	if !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	name := "Ada"
	got := BuildPrompt(domain.ExperimentRequest{Description: "Projectile motion", GradeLevel: "Grade 10", StudentName: &name})
	if !strings.HasPrefix(got, "Projectile motion") || !strings.Contains(got, "Grade 10") || !strings.Contains(got, "Ada") {
		t.Errorf("Unexpected prompt: %q", got)
	}

	plain := BuildPrompt(domain.ExperimentRequest{Description: "Projectile motion", GradeLevel: domain.DefaultGradeLevel})
	if plain != "Projectile motion" {
		t.Errorf("Expected bare description, got %q", plain)
	}
}
