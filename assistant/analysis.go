package assistant

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/c360studio/taskhub/workflow"
)

// Health labels.
const (
	HealthGood = "Good"
	HealthFair = "Fair"
	HealthPoor = "Poor"
)

// Analysis is the heuristic health report of a project.
type Analysis struct {
	OverallHealth   string             `json:"overallHealth"`
	HealthScore     int                `json:"healthScore"`
	RiskLevel       workflow.RiskLevel `json:"riskLevel"`
	Risks           []string           `json:"risks"`
	Recommendations []string           `json:"recommendations"`
	Summary         string             `json:"summary"`
}

// AnalyzeProject scores a project from the share of completed active tasks.
func AnalyzeProject(tasks []*workflow.Task) Analysis {
	progress := workflow.Rollup(tasks).Progress()

	a := Analysis{
		HealthScore:     progress,
		Recommendations: []string{"Revisar cronograma", "Mejorar comunicación"},
		Summary:         fmt.Sprintf("Proyecto con %d%% de progreso", progress),
	}
	switch {
	case progress > 70:
		a.OverallHealth, a.RiskLevel = HealthGood, workflow.RiskLow
	case progress > 40:
		a.OverallHealth, a.RiskLevel = HealthFair, workflow.RiskMedium
	default:
		a.OverallHealth, a.RiskLevel = HealthPoor, workflow.RiskHigh
	}
	if progress < 50 {
		a.Risks = []string{"Progreso lento"}
	} else {
		a.Risks = []string{"Sin riesgos críticos"}
	}
	return a
}

// ApplyAnalysis stores the analysis on the project's AI metadata.
func ApplyAnalysis(p *workflow.Project, a Analysis, at time.Time) {
	p.AIMetadata.LastAnalysis = &at
	p.AIMetadata.HealthScore = a.HealthScore
	p.AIMetadata.RiskLevel = a.RiskLevel
	p.AIMetadata.Recommendations = a.Recommendations
}

// Complexity scales time estimates.
type Complexity string

const (
	ComplexityLow    Complexity = "Low"
	ComplexityMedium Complexity = "Medium"
	ComplexityHigh   Complexity = "High"
)

var complexityMultiplier = map[Complexity]float64{
	ComplexityLow:    0.7,
	ComplexityMedium: 1.0,
	ComplexityHigh:   1.4,
}

// ParseComplexity returns Medium for empty or unknown values.
func ParseComplexity(s string) Complexity {
	for c := range complexityMultiplier {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c
		}
	}
	return ComplexityMedium
}

// Range bounds an estimate.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Estimation is a heuristic effort estimate in hours.
type Estimation struct {
	Recommended float64 `json:"recommended"`
	Range       Range   `json:"range"`
	Confidence  string  `json:"confidence"`
}

// EstimateTime estimates hours from the description length: one hour per
// six words, scaled by complexity, at least four hours.
func EstimateTime(description string, complexity Complexity) Estimation {
	mult, ok := complexityMultiplier[complexity]
	if !ok {
		mult = 1.0
	}
	words := len(strings.Split(description, " "))
	hours := math.Max(4, math.Ceil(float64(words)/6)*mult)
	return Estimation{
		Recommended: hours,
		Range: Range{
			Min: math.Ceil(hours * 0.7),
			Max: math.Ceil(hours * 1.4),
		},
		Confidence: "Medium",
	}
}

// Suggestions returns the standing improvement suggestions.
func Suggestions() []string {
	return []string{
		"📋 Implementar reuniones de seguimiento semanales",
		"📊 Crear dashboard de métricas del proyecto",
		"🎯 Definir criterios de aceptación más claros",
	}
}
