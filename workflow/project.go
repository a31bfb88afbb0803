package workflow

import (
	"math"
	"time"
)

// MemberPermissions are the per-member flags gating task operations.
type MemberPermissions struct {
	CanCreateTasks bool `json:"canCreateTasks"`
	CanEditTasks   bool `json:"canEditTasks"`
	CanDeleteTasks bool `json:"canDeleteTasks"`
	CanAssignTasks bool `json:"canAssignTasks"`
}

// PermissionsPatch is a partial update of MemberPermissions.
type PermissionsPatch struct {
	CanCreateTasks *bool `json:"canCreateTasks,omitempty"`
	CanEditTasks   *bool `json:"canEditTasks,omitempty"`
	CanDeleteTasks *bool `json:"canDeleteTasks,omitempty"`
	CanAssignTasks *bool `json:"canAssignTasks,omitempty"`
}

// Apply merges the set fields of the patch into p.
func (patch PermissionsPatch) Apply(p *MemberPermissions) {
	if patch.CanCreateTasks != nil {
		p.CanCreateTasks = *patch.CanCreateTasks
	}
	if patch.CanEditTasks != nil {
		p.CanEditTasks = *patch.CanEditTasks
	}
	if patch.CanDeleteTasks != nil {
		p.CanDeleteTasks = *patch.CanDeleteTasks
	}
	if patch.CanAssignTasks != nil {
		p.CanAssignTasks = *patch.CanAssignTasks
	}
}

// DefaultPermissions returns the member flags granted by a role name.
// Admins and project managers get everything, developers may create and
// edit tasks, every other role gets nothing.
func DefaultPermissions(roleName string) MemberPermissions {
	switch roleName {
	case RoleAdmin, RoleProjectManager:
		return MemberPermissions{CanCreateTasks: true, CanEditTasks: true, CanDeleteTasks: true, CanAssignTasks: true}
	case RoleDeveloper:
		return MemberPermissions{CanCreateTasks: true, CanEditTasks: true}
	default:
		return MemberPermissions{}
	}
}

// Member is a user participating in a project.
type Member struct {
	User        string            `json:"user"`
	Role        string            `json:"role"`
	RoleName    string            `json:"roleName"`
	JoinedAt    time.Time         `json:"joinedAt"`
	Permissions MemberPermissions `json:"permissions"`
}

// ProjectSettings toggles optional project behaviour.
type ProjectSettings struct {
	AllowComments        bool `json:"allowComments"`
	AllowTaskCreation    bool `json:"allowTaskCreation"`
	RequireTaskApproval  bool `json:"requireTaskApproval"`
	NotifyOnTaskComplete bool `json:"notifyOnTaskComplete"`
	AIAssistEnabled      bool `json:"aiAssistEnabled"`
}

// DefaultProjectSettings returns the settings a new project starts with.
func DefaultProjectSettings() ProjectSettings {
	return ProjectSettings{
		AllowComments:        true,
		AllowTaskCreation:    true,
		NotifyOnTaskComplete: true,
		AIAssistEnabled:      true,
	}
}

// SettingsPatch is a partial update of ProjectSettings.
type SettingsPatch struct {
	AllowComments        *bool `json:"allowComments,omitempty"`
	AllowTaskCreation    *bool `json:"allowTaskCreation,omitempty"`
	RequireTaskApproval  *bool `json:"requireTaskApproval,omitempty"`
	NotifyOnTaskComplete *bool `json:"notifyOnTaskComplete,omitempty"`
	AIAssistEnabled      *bool `json:"aiAssistEnabled,omitempty"`
}

// Apply merges the set fields of the patch into s.
func (patch SettingsPatch) Apply(s *ProjectSettings) {
	if patch.AllowComments != nil {
		s.AllowComments = *patch.AllowComments
	}
	if patch.AllowTaskCreation != nil {
		s.AllowTaskCreation = *patch.AllowTaskCreation
	}
	if patch.RequireTaskApproval != nil {
		s.RequireTaskApproval = *patch.RequireTaskApproval
	}
	if patch.NotifyOnTaskComplete != nil {
		s.NotifyOnTaskComplete = *patch.NotifyOnTaskComplete
	}
	if patch.AIAssistEnabled != nil {
		s.AIAssistEnabled = *patch.AIAssistEnabled
	}
}

// ProjectAIMetadata stores the result of the last project analysis.
type ProjectAIMetadata struct {
	LastAnalysis    *time.Time `json:"lastAnalysis,omitempty"`
	HealthScore     int        `json:"healthScore"`
	RiskLevel       RiskLevel  `json:"riskLevel,omitempty"`
	Recommendations []string   `json:"recommendations,omitempty"`
}

// Project groups tasks, members and comments.
type Project struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Category       string            `json:"category"`
	Owner          string            `json:"owner"`
	Members        []Member          `json:"members"`
	Status         string            `json:"status"`
	Priority       Priority          `json:"priority"`
	StartDate      *time.Time        `json:"startDate,omitempty"`
	EndDate        *time.Time        `json:"endDate,omitempty"`
	EstimatedHours float64           `json:"estimatedHours"`
	ActualHours    float64           `json:"actualHours"`
	Budget         float64           `json:"budget"`
	IsActive       bool              `json:"isActive"`
	Tags           []string          `json:"tags"`
	Settings       ProjectSettings   `json:"settings"`
	AIMetadata     ProjectAIMetadata `json:"aiMetadata"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Validate checks field ranges and the date ordering.
func (p *Project) Validate() error {
	var errs ValidationErrors
	if errs.required("name", p.Name) {
		errs.length("name", p.Name, 3, 100)
	}
	if errs.required("description", p.Description) {
		errs.length("description", p.Description, 10, 1000)
	}
	errs.required("category", p.Category)
	if p.Priority != "" && !p.Priority.IsValid() {
		errs.add("priority", "priority must be one of Low, Medium, High, Critical")
	}
	if p.StartDate != nil && p.EndDate != nil && !p.EndDate.After(*p.StartDate) {
		errs.add("endDate", "endDate must be after startDate")
	}
	errs.nonNegative("estimatedHours", p.EstimatedHours)
	errs.nonNegative("actualHours", p.ActualHours)
	errs.nonNegative("budget", p.Budget)
	for _, tag := range p.Tags {
		if len([]rune(tag)) > 20 {
			errs.add("tags", "tag %q is longer than 20 characters", tag)
		}
	}
	if p.AIMetadata.HealthScore < 0 || p.AIMetadata.HealthScore > 100 {
		errs.add("aiMetadata.healthScore", "healthScore must be between 0 and 100")
	}
	return errs.Err()
}

// Member returns the membership entry for userID, or nil.
func (p *Project) Member(userID string) *Member {
	for i := range p.Members {
		if p.Members[i].User == userID {
			return &p.Members[i]
		}
	}
	return nil
}

// IsOwner reports whether userID owns the project.
func (p *Project) IsOwner(userID string) bool {
	return userID != "" && p.Owner == userID
}

// IsParticipant reports whether userID is the owner or a member.
func (p *Project) IsParticipant(userID string) bool {
	return p.IsOwner(userID) || p.Member(userID) != nil
}

// RemoveMember drops userID from the member list and reports whether it was present.
func (p *Project) RemoveMember(userID string) bool {
	for i := range p.Members {
		if p.Members[i].User == userID {
			p.Members = append(p.Members[:i], p.Members[i+1:]...)
			return true
		}
	}
	return false
}

// DaysRemaining returns whole days until EndDate, rounded up. Without an
// end date it returns nil.
func (p *Project) DaysRemaining(now time.Time) *int {
	if p.EndDate == nil {
		return nil
	}
	days := daysUntil(now, *p.EndDate)
	return &days
}

// IsOverdue reports whether the end date has passed and the project is not
// in a final state.
func (p *Project) IsOverdue(now time.Time, status *State) bool {
	if p.EndDate == nil || status.Final() {
		return false
	}
	return now.After(*p.EndDate)
}

// TaskRollup is the aggregate of a project's active tasks.
type TaskRollup struct {
	Total       int
	Completed   int
	ActualHours float64
}

// Progress returns the percentage of completed tasks, 0 when there are none.
func (r TaskRollup) Progress() int {
	if r.Total == 0 {
		return 0
	}
	return int(math.Round(float64(r.Completed) / float64(r.Total) * 100))
}

// ApplyTaskRollup refreshes the health score and actual hours from task data.
func (p *Project) ApplyTaskRollup(r TaskRollup) {
	p.AIMetadata.HealthScore = r.Progress()
	p.ActualHours = r.ActualHours
}

func daysUntil(now, t time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}
