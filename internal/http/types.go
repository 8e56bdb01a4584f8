package http

import (
	"time"

	"github.com/Noctocode/worken-ai/internal/store"
	"github.com/Noctocode/worken-ai/internal/teams"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// CreateProjectRequest is the body of POST /api/v1/projects.
type CreateProjectRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Model       string `json:"model" validate:"max=200"`
	TeamID      string `json:"teamId" validate:"omitempty,uuid"`
}

// CreateDocumentRequest is the body of POST /projects/:projectId/documents.
type CreateDocumentRequest struct {
	Content string `json:"content" validate:"required"`
}

// SearchRequest is the body of POST /projects/:projectId/search.
type SearchRequest struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit" validate:"gte=0,lte=50"`
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	ConversationID  string `json:"conversationId" validate:"required"`
	ProjectID       string `json:"projectId"`
	Content         string `json:"content" validate:"required"`
	Model           string `json:"model"`
	EnableReasoning *bool  `json:"enableReasoning"`
}

// CreateTeamRequest is the body of POST /api/v1/teams.
type CreateTeamRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// UpdateBudgetRequest is the body of PATCH /teams/:id/budget.
type UpdateBudgetRequest struct {
	MonthlyBudget float64 `json:"monthlyBudget" validate:"gt=0"`
}

// InviteMemberRequest is the body of POST /teams/:id/members.
type InviteMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=basic advanced"`
}

// UpdateMemberRoleRequest is the body of PATCH /teams/:id/members/:memberId.
type UpdateMemberRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=basic advanced"`
}

// BudgetResponse reports the stored monthly budget.
type BudgetResponse struct {
	MonthlyBudgetCents int `json:"monthlyBudgetCents"`
}

type ProjectView struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	TeamID      *string   `json:"teamId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Model       string    `json:"model"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func projectView(p store.Project) ProjectView {
	return ProjectView{
		ID:          p.ID,
		UserID:      p.UserID,
		TeamID:      p.TeamID,
		Name:        p.Name,
		Description: p.Description,
		Model:       p.Model,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func projectViews(ps []store.Project) []ProjectView {
	out := make([]ProjectView, 0, len(ps))
	for _, p := range ps {
		out = append(out, projectView(p))
	}
	return out
}

// TeamView never carries key material; HasKey reports whether a team key exists.
type TeamView struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	OwnerID            string    `json:"ownerId"`
	MonthlyBudgetCents *int      `json:"monthlyBudgetCents"`
	HasKey             bool      `json:"hasKey"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func teamView(t store.Team) TeamView {
	return TeamView{
		ID:                 t.ID,
		Name:               t.Name,
		OwnerID:            t.OwnerID,
		MonthlyBudgetCents: t.MonthlyBudgetCents,
		HasKey:             t.OpenRouterKeyEncrypted != nil,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func teamViews(ts []store.Team) []TeamView {
	out := make([]TeamView, 0, len(ts))
	for _, t := range ts {
		out = append(out, teamView(t))
	}
	return out
}

type TeamDetailView struct {
	TeamView
	Owner   *teams.Person      `json:"owner"`
	Members []teams.MemberView `json:"members"`
}

func teamDetailView(d *teams.Detail) TeamDetailView {
	members := d.Members
	if members == nil {
		members = []teams.MemberView{}
	}
	return TeamDetailView{TeamView: teamView(d.Team), Owner: d.Owner, Members: members}
}

// MemberView omits the invitation token, which only travels by mail.
type MemberView struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"teamId"`
	UserID    *string   `json:"userId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func memberView(m *store.TeamMember) MemberView {
	return MemberView{
		ID:        m.ID,
		TeamID:    m.TeamID,
		UserID:    m.UserID,
		Email:     m.Email,
		Role:      string(m.Role),
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
	}
}
