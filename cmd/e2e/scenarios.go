package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/c360studio/taskhub/events"
)

// Config is shared by all scenarios.
type Config struct {
	BaseURL string
	// NATSURL enables event assertions when set.
	NATSURL string

	// Manager credentials are used for project operations; registered
	// accounts are developers and may not create projects.
	ManagerEmail    string
	ManagerPassword string

	RequestTimeout time.Duration
	EventTimeout   time.Duration
}

// Default settings for a locally seeded server.
const (
	DefaultBaseURL         = "http://localhost:3000"
	DefaultManagerEmail    = "pm@test.com"
	DefaultManagerPassword = "pm123456"
)

// allScenarios returns the scenarios in run order.
func allScenarios(cfg *Config) []Scenario {
	return []Scenario{
		&authFlowScenario{cfg: cfg},
		&projectLifecycleScenario{cfg: cfg},
		&aiPlanningScenario{cfg: cfg},
	}
}

// ----------------------------------------------------------------------------
// auth-flow
// ----------------------------------------------------------------------------

type authFlowScenario struct {
	cfg    *Config
	client *Client
	email  string
}

func (s *authFlowScenario) Name() string { return "auth-flow" }
func (s *authFlowScenario) Description() string {
	return "Registers an account, logs in, refreshes the token and checks role limits"
}

func (s *authFlowScenario) Setup(ctx context.Context) error {
	s.client = NewClient(s.cfg.BaseURL, s.cfg.RequestTimeout)
	s.email = fmt.Sprintf("e2e-%s@example.com", uuid.NewString()[:8])
	return s.client.Health(ctx)
}

func (s *authFlowScenario) Execute(ctx context.Context) (*Result, error) {
	res := NewResult(s.Name())
	defer res.Complete()

	const password = "e2e-secret"
	var token string

	ok := res.Stage(ctx, "register", func(ctx context.Context) error {
		var out struct {
			User userRecord `json:"user"`
		}
		err := s.client.Do(ctx, http.MethodPost, "/api/auth/register", "", map[string]string{
			"firstName": "E2E",
			"lastName":  "Runner",
			"email":     s.email,
			"password":  password,
		}, http.StatusCreated, &out)
		if err != nil {
			return err
		}
		res.SetDetail("user_id", out.User.ID)
		return nil
	}) && res.Stage(ctx, "duplicate-register", func(ctx context.Context) error {
		return s.client.Do(ctx, http.MethodPost, "/api/auth/register", "", map[string]string{
			"firstName": "E2E",
			"lastName":  "Runner",
			"email":     s.email,
			"password":  password,
		}, http.StatusBadRequest, nil)
	}) && res.Stage(ctx, "login", func(ctx context.Context) error {
		var err error
		token, err = s.client.Login(ctx, s.email, password)
		return err
	}) && res.Stage(ctx, "me", func(ctx context.Context) error {
		var out struct {
			User userRecord `json:"user"`
		}
		if err := s.client.Do(ctx, http.MethodGet, "/api/auth/me", token, nil, http.StatusOK, &out); err != nil {
			return err
		}
		if out.User.Email != s.email {
			return fmt.Errorf("me returned %q", out.User.Email)
		}
		return nil
	}) && res.Stage(ctx, "refresh", func(ctx context.Context) error {
		var out struct {
			Token string `json:"token"`
		}
		if err := s.client.Do(ctx, http.MethodPost, "/api/auth/refresh", token, nil, http.StatusOK, &out); err != nil {
			return err
		}
		if out.Token == "" {
			return errors.New("empty refreshed token")
		}
		token = out.Token
		return nil
	}) && res.Stage(ctx, "developer-cannot-create-project", func(ctx context.Context) error {
		return s.client.Do(ctx, http.MethodPost, "/api/projects", token, map[string]any{
			"name":        "No permitido",
			"description": "Un desarrollador no puede crear proyectos",
		}, http.StatusForbidden, nil)
	})

	if ok {
		res.Stage(ctx, "bad-token", func(ctx context.Context) error {
			return s.client.Do(ctx, http.MethodGet, "/api/auth/me", "not-a-token", nil, http.StatusUnauthorized, nil)
		})
	}
	return res, nil
}

func (s *authFlowScenario) Teardown(context.Context) error { return nil }

// ----------------------------------------------------------------------------
// project-lifecycle
// ----------------------------------------------------------------------------

type projectLifecycleScenario struct {
	cfg      *Config
	client   *Client
	token    string
	category string
	states   []stateRecord
	project  string

	nc   *nats.Conn
	subs chan *nats.Msg
	sub  *nats.Subscription
}

func (s *projectLifecycleScenario) Name() string { return "project-lifecycle" }
func (s *projectLifecycleScenario) Description() string {
	return "Creates a project and task, completes and reopens the task, comments and deletes"
}

func (s *projectLifecycleScenario) Setup(ctx context.Context) error {
	s.client = NewClient(s.cfg.BaseURL, s.cfg.RequestTimeout)
	var err error
	if s.token, err = s.client.Login(ctx, s.cfg.ManagerEmail, s.cfg.ManagerPassword); err != nil {
		return fmt.Errorf("manager login: %w", err)
	}
	if s.category, err = s.client.FirstCategory(ctx); err != nil {
		return err
	}
	if s.states, err = s.client.TaskStates(ctx); err != nil {
		return err
	}

	if s.cfg.NATSURL != "" {
		s.nc, err = nats.Connect(s.cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		s.subs = make(chan *nats.Msg, 16)
		if s.sub, err = s.nc.ChanSubscribe(events.SubjectTaskCompleted, s.subs); err != nil {
			return err
		}
	}
	return nil
}

func (s *projectLifecycleScenario) pickState(final bool) (string, error) {
	for _, st := range s.states {
		if st.IsFinal == final {
			return st.ID, nil
		}
	}
	return "", fmt.Errorf("no task state with isFinal=%v", final)
}

func (s *projectLifecycleScenario) Execute(ctx context.Context) (*Result, error) {
	res := NewResult(s.Name())
	defer res.Complete()

	var task taskRecord

	_ = res.Stage(ctx, "create-project", func(ctx context.Context) error {
		var out struct {
			Project projectRecord `json:"project"`
		}
		err := s.client.Do(ctx, http.MethodPost, "/api/projects", s.token, map[string]any{
			"name":        "E2E " + uuid.NewString()[:8],
			"description": "Proyecto creado por la prueba de extremo a extremo",
			"category":    s.category,
			"priority":    "High",
		}, http.StatusCreated, &out)
		if err != nil {
			return err
		}
		s.project = out.Project.ID
		res.SetDetail("project_id", s.project)
		return nil
	}) && res.Stage(ctx, "create-task", func(ctx context.Context) error {
		var out struct {
			Task taskRecord `json:"task"`
		}
		err := s.client.Do(ctx, http.MethodPost, "/api/projects/"+s.project+"/tasks", s.token, map[string]any{
			"title":          "Configurar CI",
			"description":    "Pipeline de integración continua",
			"estimatedHours": 4,
		}, http.StatusCreated, &out)
		task = out.Task
		return err
	}) && res.Stage(ctx, "complete-task", func(ctx context.Context) error {
		final, err := s.pickState(true)
		if err != nil {
			return err
		}
		var out struct {
			Task taskRecord `json:"task"`
		}
		if err := s.client.Do(ctx, http.MethodPut, "/api/tasks/"+task.ID+"/status", s.token,
			map[string]string{"statusId": final}, http.StatusOK, &out); err != nil {
			return err
		}
		if out.Task.CompletedAt == nil {
			return errors.New("completedAt not set on final state")
		}
		return nil
	}) && res.Stage(ctx, "task-completed-event", func(ctx context.Context) error {
		if s.nc == nil {
			res.AddWarning("NATS not configured, event not checked")
			return nil
		}
		return s.waitForEvent(ctx, task.ID)
	}) && res.Stage(ctx, "reopen-task", func(ctx context.Context) error {
		open, err := s.pickState(false)
		if err != nil {
			return err
		}
		var out struct {
			Task taskRecord `json:"task"`
		}
		if err := s.client.Do(ctx, http.MethodPut, "/api/tasks/"+task.ID+"/status", s.token,
			map[string]string{"statusId": open}, http.StatusOK, &out); err != nil {
			return err
		}
		if out.Task.CompletedAt != nil {
			return errors.New("completedAt kept after leaving the final state")
		}
		return nil
	}) && res.Stage(ctx, "comment", func(ctx context.Context) error {
		if err := s.client.Do(ctx, http.MethodPost, "/api/projects/"+s.project+"/comments", s.token,
			map[string]string{"content": "Listo para revisión", "task": task.ID}, http.StatusCreated, nil); err != nil {
			return err
		}
		var out struct {
			Comments []json.RawMessage `json:"comments"`
		}
		if err := s.client.Do(ctx, http.MethodGet, "/api/tasks/"+task.ID+"/comments", s.token, nil, http.StatusOK, &out); err != nil {
			return err
		}
		if len(out.Comments) != 1 {
			return fmt.Errorf("want 1 comment, got %d", len(out.Comments))
		}
		return nil
	}) && res.Stage(ctx, "analyze", func(ctx context.Context) error {
		var out struct {
			Analysis struct {
				HealthScore int `json:"healthScore"`
			} `json:"analysis"`
		}
		if err := s.client.Do(ctx, http.MethodPost, "/api/ai/analyze-project", s.token,
			map[string]string{"projectId": s.project}, http.StatusOK, &out); err != nil {
			return err
		}
		res.SetDetail("health_score", out.Analysis.HealthScore)
		return nil
	})
	return res, nil
}

func (s *projectLifecycleScenario) waitForEvent(ctx context.Context, taskID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EventTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no %s event for task %s", events.SubjectTaskCompleted, taskID)
		case msg := <-s.subs:
			var ev struct {
				Data events.TaskCompleted `json:"data"`
			}
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				continue
			}
			if ev.Data.TaskID == taskID {
				return nil
			}
		}
	}
}

func (s *projectLifecycleScenario) Teardown(ctx context.Context) error {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
	if s.project == "" {
		return nil
	}
	return s.client.Do(ctx, http.MethodDelete, "/api/projects/"+s.project, s.token, nil, http.StatusOK, nil)
}

// ----------------------------------------------------------------------------
// ai-planning
// ----------------------------------------------------------------------------

type aiPlanningScenario struct {
	cfg      *Config
	client   *Client
	token    string
	category string
	project  string
}

func (s *aiPlanningScenario) Name() string { return "ai-planning" }
func (s *aiPlanningScenario) Description() string {
	return "Generates and persists a task plan, accepting the fallback plan when no model answers"
}

func (s *aiPlanningScenario) Setup(ctx context.Context) error {
	s.client = NewClient(s.cfg.BaseURL, s.cfg.RequestTimeout)
	var err error
	if s.token, err = s.client.Login(ctx, s.cfg.ManagerEmail, s.cfg.ManagerPassword); err != nil {
		return fmt.Errorf("manager login: %w", err)
	}
	s.category, err = s.client.FirstCategory(ctx)
	return err
}

func (s *aiPlanningScenario) Execute(ctx context.Context) (*Result, error) {
	res := NewResult(s.Name())
	defer res.Complete()

	_ = res.Stage(ctx, "create-project", func(ctx context.Context) error {
		var out struct {
			Project projectRecord `json:"project"`
		}
		err := s.client.Do(ctx, http.MethodPost, "/api/projects", s.token, map[string]any{
			"name":        "Plan " + uuid.NewString()[:8],
			"description": "Tienda online con catálogo, carrito y pagos",
			"category":    s.category,
		}, http.StatusCreated, &out)
		s.project = out.Project.ID
		return err
	}) && res.Stage(ctx, "generate-and-persist", func(ctx context.Context) error {
		var out struct {
			GeneratedTasks []json.RawMessage `json:"generatedTasks"`
			Source         string            `json:"source"`
			CreatedTasks   []taskRecord      `json:"createdTasks"`
		}
		err := s.client.Do(ctx, http.MethodPost, "/api/ai/generate-tasks", s.token, map[string]any{
			"projectId":          s.project,
			"projectName":        "Tienda online",
			"projectDescription": "<p>Catálogo, <b>carrito</b> y pagos con tarjeta</p>",
			"persist":            true,
		}, http.StatusOK, &out)
		if err != nil {
			return err
		}
		res.SetDetail("source", out.Source)
		res.SetDetail("generated", len(out.GeneratedTasks))
		if out.Source != "ai" && len(out.GeneratedTasks) != 6 {
			return fmt.Errorf("%s plan has %d tasks, want the 6 fallback tasks", out.Source, len(out.GeneratedTasks))
		}
		if len(out.CreatedTasks) != len(out.GeneratedTasks) {
			return fmt.Errorf("persisted %d of %d tasks", len(out.CreatedTasks), len(out.GeneratedTasks))
		}
		for _, t := range out.CreatedTasks {
			if !t.AIGenerated {
				return fmt.Errorf("task %s not marked aiGenerated", t.ID)
			}
		}
		return nil
	}) && res.Stage(ctx, "estimate", func(ctx context.Context) error {
		var out struct {
			Estimation struct {
				Recommended float64 `json:"recommended"`
			} `json:"estimation"`
		}
		if err := s.client.Do(ctx, http.MethodPost, "/api/ai/estimate-time", s.token, map[string]string{
			"taskDescription": "Integrar la pasarela de pagos con tarjeta",
			"complexity":      "High",
		}, http.StatusOK, &out); err != nil {
			return err
		}
		if out.Estimation.Recommended < 4 {
			return fmt.Errorf("estimate %.1f below the 4 hour minimum", out.Estimation.Recommended)
		}
		return nil
	})
	return res, nil
}

func (s *aiPlanningScenario) Teardown(ctx context.Context) error {
	if s.project == "" {
		return nil
	}
	return s.client.Do(ctx, http.MethodDelete, "/api/projects/"+s.project, s.token, nil, http.StatusOK, nil)
}
