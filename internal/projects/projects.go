// Package projects lists and creates workspaces.
package projects

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Noctocode/worken-ai/internal/access"
	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/store"
)

// Filter selects which projects FindAll returns.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterPersonal Filter = "personal"
	FilterTeam     Filter = "team"
)

// ParseFilter maps "" to FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterPersonal, FilterTeam:
		return f, nil
	default:
		return "", apperr.BadRequest("filter must be one of all, personal, team")
	}
}

// CreateInput describes a new project. TeamID empty creates a personal project.
type CreateInput struct {
	Name        string
	Description string
	Model       string
	TeamID      string
}

type Service struct {
	store  store.Store
	access *access.Resolver
}

func NewService(s store.Store, resolver *access.Resolver) *Service {
	if resolver == nil {
		resolver = access.NewResolver(s)
	}
	return &Service{store: s, access: resolver}
}

// FindAll returns the user's visible projects, newest first.
func (s *Service) FindAll(ctx context.Context, userID string, filter Filter) ([]store.Project, error) {
	var out []store.Project

	if filter == FilterAll || filter == FilterPersonal {
		personal, err := s.store.Projects().ListPersonal(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("listing personal projects: %w", err)
		}
		out = append(out, personal...)
	}

	if filter == FilterAll || filter == FilterTeam {
		teamIDs, err := s.access.TeamIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		team, err := s.store.Projects().ListByTeams(ctx, teamIDs)
		if err != nil {
			return nil, fmt.Errorf("listing team projects: %w", err)
		}
		out = append(out, team...)
	}

	if out == nil {
		out = []store.Project{}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// FindOne returns a project the user can access.
func (s *Service) FindOne(ctx context.Context, id, userID string) (*store.Project, error) {
	p, _, err := s.access.RequireProject(ctx, id, userID)
	return p, err
}

// Create checks creation rights and inserts an active project.
func (s *Service) Create(ctx context.Context, principal access.Principal, in CreateInput) (*store.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.BadRequest("name is required")
	}
	if err := s.access.CanCreateProject(ctx, principal, in.TeamID); err != nil {
		return nil, err
	}

	p := &store.Project{
		UserID:      principal.UserID,
		Name:        name,
		Description: in.Description,
		Model:       in.Model,
		Status:      store.ProjectStatusActive,
	}
	if in.TeamID != "" {
		teamID := in.TeamID
		p.TeamID = &teamID
	}
	if err := s.store.Projects().Create(ctx, p); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	return p, nil
}
