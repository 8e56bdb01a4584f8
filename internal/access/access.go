// Package access decides what a user may see and do inside teams and projects.
//
// Lack of access to a project is reported exactly like a missing project,
// so callers cannot probe for existence.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/store"
)

// Role is the effective role of a user in a team or project.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdvanced Role = "advanced"
	RoleBasic    Role = "basic"
)

// CanManage reports whether r may create team projects.
func (r Role) CanManage() bool { return r == RoleOwner || r == RoleAdvanced }

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	IsPaid bool
}

// Resolver answers role questions from the store.
type Resolver struct {
	store store.Store
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// TeamRole returns the user's role in the team. ok is false when the team
// does not exist or the user holds no accepted membership.
func (r *Resolver) TeamRole(ctx context.Context, teamID, userID string) (Role, bool, error) {
	team, err := r.store.Teams().Get(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading team: %w", err)
	}
	if team.OwnerID == userID {
		return RoleOwner, true, nil
	}

	m, err := r.store.Members().FindAccepted(ctx, teamID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading membership: %w", err)
	}
	return Role(m.Role), true, nil
}

// ProjectRole returns the user's role on p.
func (r *Resolver) ProjectRole(ctx context.Context, p *store.Project, userID string) (Role, bool, error) {
	if p.IsPersonal() {
		if p.UserID == userID {
			return RoleOwner, true, nil
		}
		return "", false, nil
	}
	return r.TeamRole(ctx, *p.TeamID, userID)
}

// RequireProject loads the project and fails with NotFound when it is
// missing or the user has no role on it.
func (r *Resolver) RequireProject(ctx context.Context, projectID, userID string) (*store.Project, Role, error) {
	notFound := apperr.NotFoundf("Project %s not found", projectID)

	p, err := r.store.Projects().Get(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", notFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading project: %w", err)
	}

	role, ok, err := r.ProjectRole(ctx, p, userID)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", notFound
	}
	return p, role, nil
}

// CanCreateProject checks creation rights. teamID empty means a personal project.
func (r *Resolver) CanCreateProject(ctx context.Context, principal Principal, teamID string) error {
	if teamID != "" {
		role, ok, err := r.TeamRole(ctx, teamID, principal.UserID)
		if err != nil {
			return err
		}
		if !ok || !role.CanManage() {
			return apperr.Forbidden("Only team owners and advanced members can create team projects")
		}
		return nil
	}

	if principal.IsPaid {
		return nil
	}
	owned, err := r.store.Teams().ListOwned(ctx, principal.UserID)
	if err != nil {
		return fmt.Errorf("listing owned teams: %w", err)
	}
	if len(owned) > 0 {
		return nil
	}
	advanced, err := r.HasAdvancedRoleInAnyTeam(ctx, principal.UserID)
	if err != nil {
		return err
	}
	if advanced {
		return nil
	}
	return apperr.Forbidden("You need a paid account or advanced team role to create projects")
}

// RequireTeamOwner fails unless userID owns the team. action completes the
// message "Only the team owner can ...".
func (r *Resolver) RequireTeamOwner(ctx context.Context, teamID, userID, action string) (*store.Team, error) {
	team, err := r.store.Teams().Get(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Team not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading team: %w", err)
	}
	if team.OwnerID != userID {
		return nil, apperr.Forbidden("Only the team owner can " + action)
	}
	return team, nil
}

// TeamIDs returns owned team ids followed by accepted membership team ids, without duplicates.
func (r *Resolver) TeamIDs(ctx context.Context, userID string) ([]string, error) {
	owned, err := r.store.Teams().ListOwned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing owned teams: %w", err)
	}
	memberships, err := r.store.Members().ListAcceptedForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}

	seen := make(map[string]bool, len(owned)+len(memberships))
	ids := make([]string, 0, len(owned)+len(memberships))
	for _, t := range owned {
		if !seen[t.ID] {
			seen[t.ID] = true
			ids = append(ids, t.ID)
		}
	}
	for _, m := range memberships {
		if !seen[m.TeamID] {
			seen[m.TeamID] = true
			ids = append(ids, m.TeamID)
		}
	}
	return ids, nil
}

// HasAdvancedRoleInAnyTeam reports an accepted advanced membership anywhere.
func (r *Resolver) HasAdvancedRoleInAnyTeam(ctx context.Context, userID string) (bool, error) {
	memberships, err := r.store.Members().ListAcceptedForUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("listing memberships: %w", err)
	}
	for _, m := range memberships {
		if m.Role == store.RoleAdvanced {
			return true, nil
		}
	}
	return false, nil
}
