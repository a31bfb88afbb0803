package main

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Scenario is one end-to-end check against a running server.
type Scenario interface {
	Name() string
	Description() string

	// Setup prepares accounts and fixtures the scenario needs.
	Setup(ctx context.Context) error
	Execute(ctx context.Context) (*Result, error)
	Teardown(ctx context.Context) error
}

// Result is the outcome of a scenario run. It is safe for concurrent use.
type Result struct {
	mu sync.Mutex

	ScenarioName string        `json:"scenario_name"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`

	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Stages   []StageResult  `json:"stages,omitempty"`
}

// StageResult is the outcome of one step of a scenario.
type StageResult struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// NewResult starts a result for the named scenario.
func NewResult(name string) *Result {
	return &Result{
		ScenarioName: name,
		StartTime:    time.Now(),
		Details:      make(map[string]any),
	}
}

// AddError records an error.
func (r *Result) AddError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, msg)
}

// AddWarning records a non-fatal issue.
func (r *Result) AddWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, msg)
}

// SetDetail stores scenario output under key.
func (r *Result) SetDetail(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Details[key] = value
}

// Complete finalizes timing. The run succeeded when no errors were added.
func (r *Result) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Success = len(r.Errors) == 0
	if !r.Success && r.Error == "" {
		r.Error = r.Errors[0]
	}
}

// Stage runs fn as a named step and records its outcome. It returns false
// when the step failed so the caller can stop.
func (r *Result) Stage(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	start := time.Now()
	err := fn(ctx)
	stage := StageResult{Name: name, Success: err == nil, Duration: time.Since(start)}
	if err != nil {
		stage.Error = err.Error()
	}

	r.mu.Lock()
	r.Stages = append(r.Stages, stage)
	r.mu.Unlock()

	if err != nil {
		r.AddError(fmt.Sprintf("%s: %v", name, err))
		return false
	}
	return true
}
