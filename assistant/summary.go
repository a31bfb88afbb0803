package assistant

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"

	"github.com/c360studio/taskhub/llm"
	"github.com/c360studio/taskhub/model"
	"github.com/c360studio/taskhub/workflow"
)

const summaryMaxTokens = 800

// SummaryInput is the data a summary is written from.
type SummaryInput struct {
	Project    *workflow.Project
	StatusName string
	Tasks      []*workflow.Task
}

// Summary is a Markdown project summary plus its HTML rendering.
type Summary struct {
	Markdown string `json:"summary"`
	HTML     string `json:"html"`
	Source   Source `json:"source"`
}

// GenerateSummary writes the templated summary and, when a writing
// endpoint is available, appends an executive summary from the model.
// Model failures are logged and leave the template alone.
func (s *Service) GenerateSummary(ctx context.Context, in SummaryInput) (*Summary, error) {
	now := s.now()
	p := in.Project
	rollup := workflow.Rollup(in.Tasks)
	overdue := 0
	for _, t := range in.Tasks {
		if t.IsActive && t.IsOverdue(now) {
			overdue++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Resumen del Proyecto: %s\n\n", p.Name)
	b.WriteString("Estado actual del proyecto con información básica.\n\n")
	if in.StatusName != "" {
		fmt.Fprintf(&b, "- **Estado:** %s\n", in.StatusName)
	}
	fmt.Fprintf(&b, "- **Prioridad:** %s\n", p.Priority)
	fmt.Fprintf(&b, "- **Progreso:** %d%%\n", rollup.Progress())
	fmt.Fprintf(&b, "- **Tareas:** %s completadas de %s (%s vencidas)\n",
		humanize.Comma(int64(rollup.Completed)), humanize.Comma(int64(rollup.Total)), humanize.Comma(int64(overdue)))
	fmt.Fprintf(&b, "- **Horas:** %s estimadas, %s reales\n",
		humanize.Ftoa(p.EstimatedHours), humanize.Ftoa(rollup.ActualHours))
	if p.EndDate != nil {
		fmt.Fprintf(&b, "- **Fecha de fin:** %s (%s)\n", p.EndDate.Format("2006-01-02"), humanize.RelTime(*p.EndDate, now, "atrás", "restante"))
	}
	fmt.Fprintf(&b, "- **Última actualización:** %s\n", humanize.RelTime(p.UpdatedAt, now, "atrás", "desde ahora"))

	out := &Summary{Source: SourceBasic}
	if s.available(model.CapabilityWriting) {
		if text, err := s.executiveSummary(ctx, b.String()); err != nil {
			s.logger.Warn("Executive summary failed, using template", "project", p.ID, "error", err)
			out.Source = SourceFallback
		} else {
			fmt.Fprintf(&b, "\n## Resumen ejecutivo\n\n%s\n", text)
			out.Source = SourceAI
		}
	}

	out.Markdown = b.String()
	var html bytes.Buffer
	if err := goldmark.Convert([]byte(out.Markdown), &html); err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}
	out.HTML = html.String()
	return out, nil
}

func (s *Service) executiveSummary(ctx context.Context, facts string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	temp := 0.5
	resp, err := s.llm.Complete(ctx, llm.Request{
		Capability: model.CapabilityWriting,
		Messages: []llm.Message{
			{Role: "system", Content: "Eres un experto project manager. Escribe resúmenes ejecutivos breves en español."},
			{Role: "user", Content: "Escribe un resumen ejecutivo de un párrafo para este proyecto:\n\n" + facts},
		},
		Temperature: &temp,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("empty summary")
	}
	return text, nil
}
