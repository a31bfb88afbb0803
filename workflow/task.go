package workflow

import (
	"math"
	"time"
)

// Dependency links a task to another task.
type Dependency struct {
	Task string         `json:"task"`
	Type DependencyType `json:"type"`
}

// Subtask is a checklist item inside a task.
type Subtask struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Attachment is an uploaded file referenced by a task or comment.
type Attachment struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName,omitempty"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	UploadedBy   string    `json:"uploadedBy,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// TaskAIMetadata describes how an AI-generated task was produced.
type TaskAIMetadata struct {
	Confidence       float64 `json:"confidence"`
	EstimationSource string  `json:"estimationSource,omitempty"`
	GeneratedPrompt  string  `json:"generatedPrompt,omitempty"`
}

// Task is a unit of work inside a project.
type Task struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Project        string          `json:"project"`
	AssignedTo     string          `json:"assignedTo,omitempty"`
	CreatedBy      string          `json:"createdBy"`
	Status         string          `json:"status"`
	Priority       Priority        `json:"priority"`
	EstimatedHours float64         `json:"estimatedHours"`
	ActualHours    float64         `json:"actualHours"`
	StartDate      *time.Time      `json:"startDate,omitempty"`
	DueDate        *time.Time      `json:"dueDate,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	IsActive       bool            `json:"isActive"`
	Tags           []string        `json:"tags"`
	Dependencies   []Dependency    `json:"dependencies,omitempty"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	Subtasks       []Subtask       `json:"subtasks,omitempty"`
	AIGenerated    bool            `json:"aiGenerated"`
	AIMetadata     *TaskAIMetadata `json:"aiMetadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Validate checks field ranges and the date ordering.
func (t *Task) Validate() error {
	var errs ValidationErrors
	if errs.required("title", t.Title) {
		errs.length("title", t.Title, 3, 100)
	}
	if errs.required("description", t.Description) {
		errs.length("description", t.Description, 10, 1000)
	}
	errs.required("project", t.Project)
	if t.Priority != "" && !t.Priority.IsValid() {
		errs.add("priority", "priority must be one of Low, Medium, High, Critical")
	}
	errs.nonNegative("estimatedHours", t.EstimatedHours)
	errs.nonNegative("actualHours", t.ActualHours)
	if t.StartDate != nil && t.DueDate != nil && !t.DueDate.After(*t.StartDate) {
		errs.add("dueDate", "dueDate must be after startDate")
	}
	for i, st := range t.Subtasks {
		if st.Title == "" || len([]rune(st.Title)) > 200 {
			errs.add("subtasks", "subtask %d title must be 1-200 characters", i)
		}
	}
	for _, d := range t.Dependencies {
		if d.Type != DependencyBlocks && d.Type != DependencyDependsOn {
			errs.add("dependencies", "dependency type must be blocks or depends_on")
		}
		if d.Task == t.ID && t.ID != "" {
			errs.add("dependencies", "a task cannot depend on itself")
		}
	}
	if t.AIMetadata != nil && (t.AIMetadata.Confidence < 0 || t.AIMetadata.Confidence > 1) {
		errs.add("aiMetadata.confidence", "confidence must be between 0 and 1")
	}
	return errs.Err()
}

// IsCompleted reports whether the task has a completion timestamp.
func (t *Task) IsCompleted() bool {
	return t.CompletedAt != nil
}

// SubtaskProgress returns the percentage of completed subtasks.
func (t *Task) SubtaskProgress() int {
	if len(t.Subtasks) == 0 {
		return 0
	}
	done := 0
	for _, st := range t.Subtasks {
		if st.Completed {
			done++
		}
	}
	return int(math.Round(float64(done) / float64(len(t.Subtasks)) * 100))
}

// IsOverdue reports whether the due date has passed without completion.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && !t.IsCompleted() && now.After(*t.DueDate)
}

// DaysRemaining returns whole days until the due date. Completed tasks
// report 0 and tasks without a due date report nil.
func (t *Task) DaysRemaining(now time.Time) *int {
	if t.IsCompleted() {
		zero := 0
		return &zero
	}
	if t.DueDate == nil {
		return nil
	}
	days := daysUntil(now, *t.DueDate)
	return &days
}

// Rollup aggregates active tasks for project progress.
func Rollup(tasks []*Task) TaskRollup {
	var r TaskRollup
	for _, t := range tasks {
		if !t.IsActive {
			continue
		}
		r.Total++
		if t.IsCompleted() {
			r.Completed++
		}
		r.ActualHours += t.ActualHours
	}
	return r
}
