package workflow

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// StateType separates project states from task states.
type StateType string

const (
	StateTypeProject StateType = "project"
	StateTypeTask    StateType = "task"
)

// IsValid returns true for project and task.
func (t StateType) IsValid() bool {
	return t == StateTypeProject || t == StateTypeTask
}

// Canonical state names. The initial states are created on demand when a
// project or task is created and no state with that name exists yet.
const (
	ProjectStatePlanning   = "Planificación"
	ProjectStateInProgress = "En Progreso"
	ProjectStatePaused     = "En Pausa"
	ProjectStateCompleted  = "Completado"
	ProjectStateCancelled  = "Cancelado"

	TaskStatePending    = "Pendiente"
	TaskStateInProgress = "En Progreso"
	TaskStateReview     = "En Revisión"
	TaskStateCompleted  = "Completada"
	TaskStateBlocked    = "Bloqueada"
)

// State is a named status a project or task can be in.
type State struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        StateType `json:"type"`
	IsActive    bool      `json:"isActive"`

	// IsFinal marks a state that completes the work item.
	IsFinal bool `json:"isFinal"`

	// AllowedTransitions lists the IDs of states reachable from this one.
	// An empty list allows every transition.
	AllowedTransitions []string `json:"allowedTransitions,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks name and type.
func (s *State) Validate() error {
	var errs ValidationErrors
	if errs.required("name", s.Name) {
		errs.length("name", s.Name, 0, 50)
	}
	if !s.Type.IsValid() {
		errs.add("type", "type must be project or task")
	}
	errs.length("description", s.Description, 0, 200)
	return errs.Err()
}

// Final reports whether entering this state completes the work item,
// either because the state is flagged or because it carries one of the
// canonical completed names.
func (s *State) Final() bool {
	if s == nil {
		return false
	}
	if s.IsFinal {
		return true
	}
	switch {
	case s.Type == StateTypeTask && s.Name == TaskStateCompleted:
		return true
	case s.Type == StateTypeProject && s.Name == ProjectStateCompleted:
		return true
	}
	return false
}

// CanTransitionTo returns true if the target state may follow this one.
// A nil receiver (no current state) or an empty transition list allows
// everything.
func (s *State) CanTransitionTo(target *State) bool {
	if s == nil || target == nil || len(s.AllowedTransitions) == 0 {
		return true
	}
	if s.ID == target.ID {
		return true
	}
	return slices.Contains(s.AllowedTransitions, target.ID)
}

// Transition errors.
var (
	// ErrInvalidState is returned when the target state is inactive or of
	// the wrong type.
	ErrInvalidState = errors.New("invalid state")

	// ErrTransitionNotAllowed is returned when allowedTransitions is
	// enforced and does not contain the target.
	ErrTransitionNotAllowed = errors.New("transition not allowed")
)

// TransitionOptions tunes status changes.
type TransitionOptions struct {
	// EnforceTransitions checks the current state's AllowedTransitions.
	EnforceTransitions bool

	// Now is the clock used for completion timestamps.
	Now time.Time
}

// ApplyTaskStatus moves a task to the target state. It sets CompletedAt when
// the target is final and clears it otherwise. current may be nil when the
// task's present state no longer exists.
func ApplyTaskStatus(t *Task, current, target *State, opts TransitionOptions) error {
	if target == nil || !target.IsActive || target.Type != StateTypeTask {
		return fmt.Errorf("%w: not an active task state", ErrInvalidState)
	}
	if opts.EnforceTransitions && !current.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, current.Name, target.Name)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	t.Status = target.ID
	if target.Final() {
		if t.CompletedAt == nil || current == nil || !current.Final() {
			t.CompletedAt = &now
		}
	} else {
		t.CompletedAt = nil
	}
	return nil
}

// ApplyProjectStatus moves a project to the target state. Entering a final
// state sets the AI health score to 100.
func ApplyProjectStatus(p *Project, current, target *State, opts TransitionOptions) error {
	if target == nil || !target.IsActive || target.Type != StateTypeProject {
		return fmt.Errorf("%w: not an active project state", ErrInvalidState)
	}
	if opts.EnforceTransitions && !current.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, current.Name, target.Name)
	}

	p.Status = target.ID
	if target.Final() {
		p.AIMetadata.HealthScore = 100
	}
	return nil
}

// DefaultStates returns the states seeded into a fresh database.
func DefaultStates() []State {
	return []State{
		{Name: ProjectStatePlanning, Type: StateTypeProject, Description: "Estado inicial para proyectos"},
		{Name: ProjectStateInProgress, Type: StateTypeProject, Description: "Proyecto en ejecución"},
		{Name: ProjectStatePaused, Type: StateTypeProject, Description: "Proyecto detenido temporalmente"},
		{Name: ProjectStateCompleted, Type: StateTypeProject, Description: "Proyecto finalizado", IsFinal: true},
		{Name: ProjectStateCancelled, Type: StateTypeProject, Description: "Proyecto cancelado"},
		{Name: TaskStatePending, Type: StateTypeTask, Description: "Estado inicial para tareas"},
		{Name: TaskStateInProgress, Type: StateTypeTask, Description: "Tarea en desarrollo"},
		{Name: TaskStateReview, Type: StateTypeTask, Description: "Tarea pendiente de revisión"},
		{Name: TaskStateCompleted, Type: StateTypeTask, Description: "Tarea terminada", IsFinal: true},
		{Name: TaskStateBlocked, Type: StateTypeTask, Description: "Tarea bloqueada por dependencias"},
	}
}
