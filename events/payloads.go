package events

import "time"

// TaskCompleted is published when a task enters a final state.
type TaskCompleted struct {
	TaskID      string    `json:"taskId"`
	ProjectID   string    `json:"projectId"`
	Title       string    `json:"title"`
	CompletedAt time.Time `json:"completedAt"`
}

// TaskAssigned is published when a task gets a new assignee.
type TaskAssigned struct {
	TaskID     string `json:"taskId"`
	ProjectID  string `json:"projectId"`
	AssignedTo string `json:"assignedTo"`
}

// ProjectStatusChanged carries the previous and new state IDs.
type ProjectStatusChanged struct {
	ProjectID string `json:"projectId"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// CommentCreated is published for every new comment.
type CommentCreated struct {
	CommentID string   `json:"commentId"`
	ProjectID string   `json:"projectId"`
	TaskID    string   `json:"taskId,omitempty"`
	Mentions  []string `json:"mentions,omitempty"`
}

// UserRegistered is published after self-registration.
type UserRegistered struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}
