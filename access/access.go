// Package access resolves who may do what on projects, tasks and comments.
//
// Every rule follows the same shape: the global Admin role may do
// anything, the project owner may do anything on the project, and members
// are admitted according to their project role or permission flags.
package access

import "github.com/c360studio/taskhub/workflow"

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the actor holds the global Admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == workflow.RoleAdmin
}

// HasRole reports whether the actor's global role is one of roles.
func (a Actor) HasRole(roles ...string) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

func owns(a Actor, p *workflow.Project) bool {
	return p != nil && p.IsOwner(a.UserID)
}

func member(a Actor, p *workflow.Project) *workflow.Member {
	if p == nil {
		return nil
	}
	return p.Member(a.UserID)
}

// CanCreateProject allows admins and project managers.
func CanCreateProject(a Actor) bool {
	return a.HasRole(workflow.RoleAdmin, workflow.RoleProjectManager)
}

// CanViewProject allows admins, the owner and any member.
func CanViewProject(a Actor, p *workflow.Project) bool {
	return a.IsAdmin() || owns(a, p) || member(a, p) != nil
}

// CanEditProject allows admins, the owner and members holding the
// Project Manager role inside the project.
func CanEditProject(a Actor, p *workflow.Project) bool {
	if a.IsAdmin() || owns(a, p) {
		return true
	}
	m := member(a, p)
	return m != nil && m.RoleName == workflow.RoleProjectManager
}

// CanChangeProjectStatus follows CanEditProject.
func CanChangeProjectStatus(a Actor, p *workflow.Project) bool {
	return CanEditProject(a, p)
}

// CanDeleteProject allows admins and the owner.
func CanDeleteProject(a Actor, p *workflow.Project) bool {
	return a.IsAdmin() || owns(a, p)
}

// CanManageMembers allows admins and the owner.
func CanManageMembers(a Actor, p *workflow.Project) bool {
	return a.IsAdmin() || owns(a, p)
}

// CanUpdateSettings allows admins and the owner.
func CanUpdateSettings(a Actor, p *workflow.Project) bool {
	return a.IsAdmin() || owns(a, p)
}

// CanCreateTask allows admins, the owner and members with canCreateTasks.
// Members are refused when the project disables task creation.
func CanCreateTask(a Actor, p *workflow.Project) bool {
	if a.IsAdmin() || owns(a, p) {
		return true
	}
	m := member(a, p)
	return m != nil && m.Permissions.CanCreateTasks && p.Settings.AllowTaskCreation
}

// CanEditTask allows admins, the owner, the task's assignee and creator,
// and members with canEditTasks.
func CanEditTask(a Actor, p *workflow.Project, t *workflow.Task) bool {
	if a.IsAdmin() || owns(a, p) {
		return true
	}
	if t != nil && a.UserID != "" && (t.AssignedTo == a.UserID || t.CreatedBy == a.UserID) {
		return true
	}
	m := member(a, p)
	return m != nil && m.Permissions.CanEditTasks
}

// CanDeleteTask allows admins, the owner and members with canDeleteTasks.
func CanDeleteTask(a Actor, p *workflow.Project) bool {
	if a.IsAdmin() || owns(a, p) {
		return true
	}
	m := member(a, p)
	return m != nil && m.Permissions.CanDeleteTasks
}

// CanAssignTask allows admins, the owner and members with canAssignTasks.
func CanAssignTask(a Actor, p *workflow.Project) bool {
	if a.IsAdmin() || owns(a, p) {
		return true
	}
	m := member(a, p)
	return m != nil && m.Permissions.CanAssignTasks
}

// CanChangeTaskStatus allows admins, the owner, the assignee and the creator.
func CanChangeTaskStatus(a Actor, p *workflow.Project, t *workflow.Task) bool {
	if a.IsAdmin() || owns(a, p) {
		return true
	}
	return t != nil && a.UserID != "" && (t.AssignedTo == a.UserID || t.CreatedBy == a.UserID)
}

// CanComment allows anyone who can view the project while comments are enabled.
// Admins and the owner may comment even when comments are disabled.
func CanComment(a Actor, p *workflow.Project) bool {
	if a.IsAdmin() || owns(a, p) {
		return true
	}
	return member(a, p) != nil && p.Settings.AllowComments
}

// CanEditComment allows only the author.
func CanEditComment(a Actor, c *workflow.Comment) bool {
	return c != nil && a.UserID != "" && c.Author == a.UserID
}

// CanDeleteComment allows the author and admins.
func CanDeleteComment(a Actor, c *workflow.Comment) bool {
	return a.IsAdmin() || CanEditComment(a, c)
}
