// Package workflow defines the Taskhub domain: users, roles, projects,
// tasks, comments, categories and the named states they move through.
package workflow

import "strings"

// Priority ranks projects and tasks.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// IsValid returns true if the priority is one of the known values.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Rank orders priorities from Low (1) to Critical (4). Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 0
	}
}

// ParsePriority converts a loosely formatted string ("high", " CRITICAL ")
// into a Priority, returning fallback when the value is not recognised.
func ParsePriority(s string, fallback Priority) Priority {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p
		}
	}
	return fallback
}

// Global role names. Role documents are looked up by these names.
const (
	RoleAdmin          = "Admin"
	RoleProjectManager = "Project Manager"
	RoleDeveloper      = "Developer"
	RoleViewer         = "Viewer"
)

// IsKnownRole returns true for the four built-in role names.
func IsKnownRole(name string) bool {
	switch name {
	case RoleAdmin, RoleProjectManager, RoleDeveloper, RoleViewer:
		return true
	default:
		return false
	}
}

// RiskLevel classifies project risk in AI metadata.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// DependencyType describes how two tasks relate.
type DependencyType string

const (
	DependencyBlocks    DependencyType = "blocks"
	DependencyDependsOn DependencyType = "depends_on"
)

// ReactionType is an emoji-style reaction on a comment.
type ReactionType string

const (
	ReactionLike  ReactionType = "like"
	ReactionLove  ReactionType = "love"
	ReactionLaugh ReactionType = "laugh"
	ReactionWow   ReactionType = "wow"
	ReactionSad   ReactionType = "sad"
	ReactionAngry ReactionType = "angry"
)

// IsValid returns true if the reaction type is known.
func (r ReactionType) IsValid() bool {
	switch r {
	case ReactionLike, ReactionLove, ReactionLaugh, ReactionWow, ReactionSad, ReactionAngry:
		return true
	default:
		return false
	}
}
