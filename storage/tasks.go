package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/taskhub/workflow"
)

// taskOrder sorts by due date ascending with undated tasks last, then by
// priority from Critical down to Low.
const taskOrder = `json_extract(doc, '$.dueDate') IS NULL,
	julianday(json_extract(doc, '$.dueDate')),
	CASE json_extract(doc, '$.priority')
		WHEN 'Critical' THEN 4 WHEN 'High' THEN 3 WHEN 'Medium' THEN 2 ELSE 1
	END DESC,
	created_at`

// CreateTask inserts a task.
func (s *Store) CreateTask(ctx context.Context, t *workflow.Task) error {
	now := s.now()
	if t.ID == "" {
		t.ID = newID()
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return s.insertDoc(ctx, tableTasks, t.ID, t, now)
}

// CreateTasks inserts tasks one by one, stopping at the first failure.
func (s *Store) CreateTasks(ctx context.Context, tasks []*workflow.Task) error {
	for _, t := range tasks {
		if err := s.CreateTask(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// GetTask returns the task with the given ID, active or not.
func (s *Store) GetTask(ctx context.Context, id string) (*workflow.Task, error) {
	return getDoc[workflow.Task](ctx, s, tableTasks, id)
}

// UpdateTask replaces the stored task.
func (s *Store) UpdateTask(ctx context.Context, t *workflow.Task) error {
	t.UpdatedAt = s.now()
	return s.updateDoc(ctx, tableTasks, t.ID, t, t.UpdatedAt)
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	Project    string
	AssignedTo string
	Status     string
	Priority   workflow.Priority
	Search     string
}

func (f TaskFilter) where() *where {
	w := &where{}
	w.add(`json_extract(doc, '$.isActive') = 1`)
	w.addIf(f.Project, `json_extract(doc, '$.project') = ?`)
	w.addIf(f.AssignedTo, `json_extract(doc, '$.assignedTo') = ?`)
	w.addIf(f.Status, `json_extract(doc, '$.status') = ?`)
	w.addIf(string(f.Priority), `json_extract(doc, '$.priority') = ?`)
	if q := strings.TrimSpace(f.Search); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		w.add(`(lower(json_extract(doc, '$.title')) LIKE ? OR lower(json_extract(doc, '$.description')) LIKE ?)`, like, like)
	}
	return w
}

// ListTasks returns one page of active tasks matching the filter.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter, p Page) (Result[workflow.Task], error) {
	return page[workflow.Task](ctx, s, tableTasks, f.where(), taskOrder, p.Normalize(10))
}

// TasksForProject returns every active task of a project.
func (s *Store) TasksForProject(ctx context.Context, projectID string) ([]*workflow.Task, error) {
	w := TaskFilter{Project: projectID}.where()
	return queryDocs[workflow.Task](ctx, s, `SELECT doc FROM tasks`+w.String()+` ORDER BY `+taskOrder, w.args...)
}

// TaskCounts aggregates a task listing.
type TaskCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
	Overdue   int `json:"overdue"`
}

// CountTasks counts active tasks matching the filter. Overdue tasks have a
// due date before now and no completion timestamp.
func (s *Store) CountTasks(ctx context.Context, f TaskFilter, now time.Time) (TaskCounts, error) {
	w := f.where()
	var c TaskCounts
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COUNT(json_extract(doc, '$.completedAt')),
			COALESCE(SUM(json_extract(doc, '$.completedAt') IS NULL
				AND julianday(json_extract(doc, '$.dueDate')) < julianday(?)), 0)
		FROM tasks`+w.String(),
		append([]any{now.UTC().Format(time.RFC3339Nano)}, w.args...)...).
		Scan(&c.Total, &c.Completed, &c.Overdue)
	if err != nil {
		return TaskCounts{}, fmt.Errorf("count tasks: %w", err)
	}
	c.Pending = c.Total - c.Completed
	return c, nil
}
