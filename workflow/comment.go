package workflow

import (
	"regexp"
	"time"
)

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// Reaction is one user's reaction to a comment.
type Reaction struct {
	User      string       `json:"user"`
	Type      ReactionType `json:"type"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Comment is a message on a project or one of its tasks.
type Comment struct {
	ID            string       `json:"id"`
	Content       string       `json:"content"`
	Author        string       `json:"author"`
	Project       string       `json:"project"`
	Task          string       `json:"task,omitempty"`
	ParentComment string       `json:"parentComment,omitempty"`
	Mentions      []string     `json:"mentions"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	Reactions     []Reaction   `json:"reactions"`
	IsEdited      bool         `json:"isEdited"`
	EditedAt      *time.Time   `json:"editedAt,omitempty"`
	IsDeleted     bool         `json:"isDeleted"`
	DeletedAt     *time.Time   `json:"deletedAt,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Validate checks content length and the project reference.
func (c *Comment) Validate() error {
	var errs ValidationErrors
	if errs.required("content", c.Content) {
		errs.length("content", c.Content, 1, 2000)
	}
	errs.required("project", c.Project)
	return errs.Err()
}

// ParseMentions returns the unique @handles in content, in order of appearance.
func ParseMentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool, len(matches))
	mentions := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			mentions = append(mentions, m[1])
		}
	}
	return mentions
}

// Edit replaces the content, refreshes mentions and marks the comment edited.
func (c *Comment) Edit(content string, now time.Time) {
	c.Content = content
	c.Mentions = ParseMentions(content)
	c.IsEdited = true
	c.EditedAt = &now
}

// SoftDelete hides the comment without removing it.
func (c *Comment) SoftDelete(now time.Time) {
	c.IsDeleted = true
	c.DeletedAt = &now
}

// ToggleReaction adds the reaction, or removes it when the user already
// reacted with the same type. It reports whether the reaction is now present.
func (c *Comment) ToggleReaction(userID string, rt ReactionType, now time.Time) bool {
	for i, r := range c.Reactions {
		if r.User == userID && r.Type == rt {
			c.Reactions = append(c.Reactions[:i], c.Reactions[i+1:]...)
			return false
		}
	}
	c.Reactions = append(c.Reactions, Reaction{User: userID, Type: rt, CreatedAt: now})
	return true
}

// ReactionSummary counts reactions per type.
func (c *Comment) ReactionSummary() map[ReactionType]int {
	summary := make(map[ReactionType]int)
	for _, r := range c.Reactions {
		summary[r.Type]++
	}
	return summary
}
