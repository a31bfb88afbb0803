package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/c360studio/taskhub/llm"
	"github.com/c360studio/taskhub/model"
	"github.com/c360studio/taskhub/workflow"
)

// Generation parameters.
const (
	generateMaxTokens   = 2500
	generateTemperature = 0.7

	systemPrompt = "Eres un experto project manager. Genera tareas específicas en formato JSON válido."
)

// Source tells how a task list was produced.
type Source string

const (
	SourceAI       Source = "ai"
	SourceBasic    Source = "basic"    // no endpoint configured
	SourceFallback Source = "fallback" // endpoint failed or reply unusable
)

// Messages shown to clients for each source. MsgGeneratedAI takes the
// provider display name.
const (
	MsgGeneratedAI       = "Tareas generadas con %s AI"
	MsgGeneratedBasic    = "Tareas generadas (modo básico)"
	MsgGeneratedFallback = "Tareas generadas (fallback)"
)

// GenerateInput describes the project to plan.
type GenerateInput struct {
	ProjectName string
	Category    string

	// Description may be HTML; it is converted to Markdown before prompting.
	Description string
}

// GeneratedTask is one proposed task.
type GeneratedTask struct {
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	EstimatedHours float64           `json:"estimatedHours"`
	Priority       workflow.Priority `json:"priority"`
}

// Metadata identifies the model behind a generation.
type Metadata struct {
	Model       string    `json:"model"`
	Provider    string    `json:"provider"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Generation is the result of GenerateTasks.
type Generation struct {
	Tasks    []GeneratedTask `json:"generatedTasks"`
	Metadata Metadata        `json:"aiMetadata"`
	Source   Source          `json:"source"`

	// Prompt is the user prompt sent to the model, empty for basic mode.
	Prompt string `json:"-"`
}

// Message returns the client-facing message for the generation's source.
func (g *Generation) Message() string {
	switch g.Source {
	case SourceAI:
		return fmt.Sprintf(MsgGeneratedAI, g.Metadata.Provider)
	case SourceBasic:
		return MsgGeneratedBasic
	default:
		return MsgGeneratedFallback
	}
}

// Confidence is the estimate confidence recorded on persisted tasks.
func (g *Generation) Confidence() float64 {
	if g.Source == SourceAI {
		return 0.8
	}
	return 0.5
}

// providerNames maps provider IDs to display names.
var providerNames = map[string]string{
	"deepseek": "DeepSeek",
	"openai":   "OpenAI",
	"gemini":   "Gemini",
	"ollama":   "Ollama",
}

// GenerateTasks asks the planning endpoint for a task breakdown. It never
// fails: every error path returns the fallback tasks.
func (s *Service) GenerateTasks(ctx context.Context, in GenerateInput) *Generation {
	if !s.available(model.CapabilityPlanning) {
		return s.fallback(SourceBasic, "")
	}

	prompt := buildPrompt(in.ProjectName, in.Category, s.toMarkdown(in.Description))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	temp := generateTemperature
	resp, err := s.llm.Complete(ctx, llm.Request{
		Capability: model.CapabilityPlanning,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: &temp,
		MaxTokens:   generateMaxTokens,
	})
	if err != nil {
		s.logger.Warn("Task generation failed, using fallback", "error", err)
		return s.fallback(SourceFallback, prompt)
	}

	var parsed struct {
		Tasks []struct {
			Title          string       `json:"title"`
			Description    string       `json:"description"`
			EstimatedHours lenientFloat `json:"estimatedHours"`
			Priority       string       `json:"priority"`
		} `json:"tasks"`
	}
	if err := llm.DecodeJSON(resp.Content, &parsed); err != nil {
		s.logger.Warn("Unparsable task generation reply, using fallback",
			"request_id", resp.RequestID, "error", err)
		return s.fallback(SourceFallback, prompt)
	}

	tasks := make([]GeneratedTask, 0, len(parsed.Tasks))
	for _, t := range parsed.Tasks {
		title := strings.TrimSpace(t.Title)
		if title == "" {
			continue
		}
		tasks = append(tasks, GeneratedTask{
			Title:          truncate(title, 100),
			Description:    truncate(strings.TrimSpace(t.Description), 1000),
			EstimatedHours: math.Max(0, float64(t.EstimatedHours)),
			Priority:       workflow.ParsePriority(t.Priority, workflow.PriorityMedium),
		})
	}
	if len(tasks) == 0 {
		s.logger.Warn("Task generation returned no usable tasks, using fallback", "request_id", resp.RequestID)
		return s.fallback(SourceFallback, prompt)
	}

	provider := providerNames[resp.Provider]
	if provider == "" {
		provider = resp.Provider
	}
	return &Generation{
		Tasks:    tasks,
		Source:   SourceAI,
		Prompt:   prompt,
		Metadata: Metadata{Model: resp.Model, Provider: provider, GeneratedAt: s.now()},
	}
}

// lenientFloat accepts numbers, quoted numbers and null. Unreadable values
// decode as zero.
type lenientFloat float64

func (f *lenientFloat) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		v = 0
	}
	*f = lenientFloat(v)
	return nil
}

func (s *Service) fallback(src Source, prompt string) *Generation {
	return &Generation{
		Tasks:    FallbackTasks(),
		Source:   src,
		Prompt:   prompt,
		Metadata: Metadata{Model: "fallback", Provider: "Internal", GeneratedAt: s.now()},
	}
}

func buildPrompt(name, category, description string) string {
	return fmt.Sprintf(`Proyecto: %s
Categoría: %s
Descripción: %s

Genera 8-12 tareas en formato JSON:
{
  "tasks": [
    {
      "title": "Título específico",
      "description": "Descripción detallada",
      "estimatedHours": 8,
      "priority": "High"
    }
  ]
}`, name, category, description)
}

// toMarkdown converts HTML descriptions; plain text passes through.
func (s *Service) toMarkdown(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}
	out, err := s.converter.ConvertString(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}

// FallbackTasks returns the fixed six-task plan.
func FallbackTasks() []GeneratedTask {
	return []GeneratedTask{
		{Title: "Análisis de requerimientos", Description: "Definir y documentar requerimientos funcionales y no funcionales", EstimatedHours: 8, Priority: workflow.PriorityHigh},
		{Title: "Diseño de arquitectura", Description: "Crear diseño técnico y arquitectura del sistema", EstimatedHours: 12, Priority: workflow.PriorityHigh},
		{Title: "Configuración inicial", Description: "Configurar entorno de desarrollo y herramientas", EstimatedHours: 6, Priority: workflow.PriorityMedium},
		{Title: "Implementación backend", Description: "Desarrollar lógica de negocio y API endpoints", EstimatedHours: 24, Priority: workflow.PriorityCritical},
		{Title: "Desarrollo frontend", Description: "Crear interfaz de usuario y componentes", EstimatedHours: 20, Priority: workflow.PriorityHigh},
		{Title: "Testing y QA", Description: "Implementar tests y control de calidad", EstimatedHours: 12, Priority: workflow.PriorityHigh},
	}
}

// ToTasks turns a generation into project tasks ready to store. Tasks that
// fail validation are logged and returned in skipped instead.
func (s *Service) ToTasks(g *Generation, projectID, createdBy, statusID string) (tasks []*workflow.Task, skipped []GeneratedTask) {
	for i, gt := range g.Tasks {
		t := &workflow.Task{
			Title:          gt.Title,
			Description:    gt.Description,
			Project:        projectID,
			CreatedBy:      createdBy,
			Status:         statusID,
			Priority:       gt.Priority,
			EstimatedHours: gt.EstimatedHours,
			IsActive:       true,
			Tags:           []string{},
			AIGenerated:    true,
			AIMetadata: &workflow.TaskAIMetadata{
				Confidence:       g.Confidence(),
				EstimationSource: g.Metadata.Model,
				GeneratedPrompt:  truncate(g.Prompt, 2000),
			},
		}
		if err := t.Validate(); err != nil {
			s.logger.Warn("Dropping invalid generated task",
				"project_id", projectID, "index", i, "title", gt.Title, "error", err)
			skipped = append(skipped, gt)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, skipped
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
