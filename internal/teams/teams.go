// Package teams manages teams, their budgets, and the invitation lifecycle.
package teams

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Noctocode/worken-ai/internal/access"
	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/events"
	"github.com/Noctocode/worken-ai/internal/keys"
	"github.com/Noctocode/worken-ai/internal/mail"
	"github.com/Noctocode/worken-ai/internal/store"
)

// DefaultMonthlyBudgetCents is the budget of a newly provisioned team key.
const DefaultMonthlyBudgetCents = 1000

// Service implements team operations.
type Service struct {
	store       store.Store
	access      *access.Resolver
	provisioner keys.Provisioner
	cipher      *keys.Cipher
	mailer      mail.Sender
	events      events.Publisher
	creditLimit float64
	logger      *zap.Logger
}

// Config wires a Service. Provisioner may be nil, in which case teams are
// created without a key.
type Config struct {
	Store       store.Store
	Access      *access.Resolver
	Provisioner keys.Provisioner
	Cipher      *keys.Cipher
	Mailer      mail.Sender
	Events      events.Publisher
	CreditLimit float64
	Logger      *zap.Logger
}

func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Access == nil {
		cfg.Access = access.NewResolver(cfg.Store)
	}
	if cfg.CreditLimit <= 0 {
		cfg.CreditLimit = keys.DefaultCreditLimitUSD
	}
	return &Service{
		store:       cfg.Store,
		access:      cfg.Access,
		provisioner: cfg.Provisioner,
		cipher:      cfg.Cipher,
		mailer:      cfg.Mailer,
		events:      cfg.Events,
		creditLimit: cfg.CreditLimit,
		logger:      cfg.Logger,
	}
}

// Person is the public profile of a user.
type Person struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// MemberView is a membership row joined with its user, when accepted.
type MemberView struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"userId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	Name      string    `json:"name,omitempty"`
	Picture   string    `json:"picture,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Detail is a team with its owner and members.
type Detail struct {
	Team    store.Team
	Owner   *Person
	Members []MemberView
}

// Invite is the public view of a pending invitation.
type Invite struct {
	Email       string `json:"email"`
	Role        string `json:"role"`
	TeamName    string `json:"teamName"`
	InviterName string `json:"inviterName"`
}

// Create inserts a team owned by principal and provisions its key. Key
// provisioning failures are logged; the team is still created.
func (s *Service) Create(ctx context.Context, principal access.Principal, name string) (*store.Team, error) {
	if !principal.IsPaid {
		return nil, apperr.Forbidden("This feature requires a paid account")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.BadRequest("name is required")
	}

	team := &store.Team{Name: name, OwnerID: principal.UserID}
	if err := s.store.Teams().Create(ctx, team); err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}

	if err := s.provisionTeamKey(ctx, team.ID); err != nil {
		s.logger.Warn("team key provisioning failed", zap.String("team_id", team.ID), zap.Error(err))
		return team, nil
	}
	if refreshed, err := s.store.Teams().Get(ctx, team.ID); err == nil {
		team = refreshed
	}
	return team, nil
}

func (s *Service) provisionTeamKey(ctx context.Context, teamID string) error {
	if s.provisioner == nil {
		return errors.New("no provisioner configured")
	}
	key, err := s.provisioner.CreateKey(ctx, "team-"+teamID, s.creditLimit)
	if err != nil {
		return err
	}
	encrypted, err := s.cipher.Encrypt(key.Key)
	if err != nil {
		return err
	}
	return s.store.Teams().SetOpenRouterKey(ctx, teamID, key.Hash, encrypted, DefaultMonthlyBudgetCents)
}

// UpdateBudget sets the monthly credit limit of the team key.
func (s *Service) UpdateBudget(ctx context.Context, teamID, userID string, budgetUSD float64) (int, error) {
	if budgetUSD <= 0 || math.IsNaN(budgetUSD) || math.IsInf(budgetUSD, 0) {
		return 0, apperr.BadRequest("budgetUsd must be a positive number")
	}
	team, err := s.access.RequireTeamOwner(ctx, teamID, userID, "update the budget")
	if err != nil {
		return 0, err
	}
	if team.OpenRouterKeyHash == nil {
		return 0, apperr.BadRequest("This team does not have a provisioned OpenRouter key")
	}
	if s.provisioner == nil {
		return 0, apperr.Upstream("Failed to update team budget", errors.New("no provisioner configured"))
	}
	if err := s.provisioner.UpdateKey(ctx, *team.OpenRouterKeyHash, budgetUSD); err != nil {
		return 0, apperr.Upstream("Failed to update team budget", err)
	}

	cents := int(math.Round(budgetUSD * 100))
	if err := s.store.Teams().SetBudget(ctx, teamID, cents); err != nil {
		return 0, fmt.Errorf("storing budget: %w", err)
	}
	return cents, nil
}

// FindAllForUser returns owned teams followed by teams joined through an
// accepted membership.
func (s *Service) FindAllForUser(ctx context.Context, userID string) ([]store.Team, error) {
	owned, err := s.store.Teams().ListOwned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing owned teams: %w", err)
	}
	memberships, err := s.store.Members().ListAcceptedForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}

	seen := make(map[string]bool, len(owned))
	for _, t := range owned {
		seen[t.ID] = true
	}
	var ids []string
	for _, m := range memberships {
		if !seen[m.TeamID] {
			seen[m.TeamID] = true
			ids = append(ids, m.TeamID)
		}
	}
	joined, err := s.store.Teams().ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("listing joined teams: %w", err)
	}
	return append(owned, joined...), nil
}

// FindOne returns the team with owner and members. Callers without a role get Forbidden.
func (s *Service) FindOne(ctx context.Context, teamID, userID string) (*Detail, error) {
	team, err := s.store.Teams().Get(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Team not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading team: %w", err)
	}
	if _, ok, err := s.access.TeamRole(ctx, teamID, userID); err != nil {
		return nil, err
	} else if !ok {
		return nil, apperr.Forbidden("You are not a member of this team")
	}

	rows, err := s.store.Members().ListByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}

	userIDs := []string{team.OwnerID}
	for _, m := range rows {
		if m.UserID != nil {
			userIDs = append(userIDs, *m.UserID)
		}
	}
	users, err := s.store.Users().GetMany(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	byID := make(map[string]store.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	detail := &Detail{Team: *team, Members: make([]MemberView, 0, len(rows))}
	if owner, ok := byID[team.OwnerID]; ok {
		detail.Owner = &Person{ID: owner.ID, Name: owner.Name, Picture: owner.Picture}
	}
	for _, m := range rows {
		view := MemberView{
			ID:        m.ID,
			UserID:    m.UserID,
			Email:     m.Email,
			Role:      string(m.Role),
			Status:    string(m.Status),
			CreatedAt: m.CreatedAt,
		}
		if m.UserID != nil {
			if u, ok := byID[*m.UserID]; ok {
				view.Name, view.Picture = u.Name, u.Picture
			}
		}
		detail.Members = append(detail.Members, view)
	}
	return detail, nil
}

func parseRole(role string) (store.MemberRole, error) {
	r := store.MemberRole(role)
	if !r.Valid() {
		return "", apperr.BadRequest("Role must be basic or advanced")
	}
	return r, nil
}

// NewInvitationToken returns 32 random bytes, hex encoded.
func NewInvitationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating invitation token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// InviteMember creates a pending membership and mails the invitation.
func (s *Service) InviteMember(ctx context.Context, teamID, email, role, inviterID string) (*store.TeamMember, error) {
	team, err := s.access.RequireTeamOwner(ctx, teamID, inviterID, "invite members")
	if err != nil {
		return nil, err
	}
	memberRole, err := parseRole(role)
	if err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)

	conflict := apperr.Conflict("This email has already been invited to this team")
	if _, err := s.store.Members().FindByEmail(ctx, teamID, email); err == nil {
		return nil, conflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking existing invitation: %w", err)
	}

	token, err := NewInvitationToken()
	if err != nil {
		return nil, err
	}
	member := &store.TeamMember{
		TeamID:          teamID,
		Email:           email,
		Role:            memberRole,
		Status:          store.StatusPending,
		InvitationToken: &token,
	}
	if err := s.store.Members().Create(ctx, member); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, conflict
		}
		return nil, fmt.Errorf("creating invitation: %w", err)
	}

	inviterName := ""
	if inviter, err := s.store.Users().Get(ctx, inviterID); err == nil {
		inviterName = inviter.Name
	}
	if s.mailer != nil {
		err := s.mailer.SendTeamInvitation(ctx, mail.Invitation{
			To:          email,
			TeamName:    team.Name,
			InviterName: inviterName,
			Role:        string(memberRole),
			Token:       token,
		})
		if err != nil {
			s.logger.Error("sending invitation mail", zap.String("team_id", teamID), zap.Error(err))
		}
	}

	s.events.Publish(ctx, events.Event{
		Type:    events.TeamInvitationCreated,
		UserID:  inviterID,
		TeamID:  teamID,
		Payload: map[string]any{"member_id": member.ID, "role": string(memberRole)},
	})
	return member, nil
}

// UpdateMemberRole changes the role of a membership in the team.
func (s *Service) UpdateMemberRole(ctx context.Context, teamID, memberID, role, userID string) (*store.TeamMember, error) {
	if _, err := s.access.RequireTeamOwner(ctx, teamID, userID, "update member roles"); err != nil {
		return nil, err
	}
	memberRole, err := parseRole(role)
	if err != nil {
		return nil, err
	}
	m, err := s.teamMember(ctx, teamID, memberID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Members().UpdateRole(ctx, m.ID, memberRole); err != nil {
		return nil, fmt.Errorf("updating role: %w", err)
	}
	m.Role = memberRole
	return m, nil
}

// RemoveMember deletes a membership. The owner cannot remove themself.
func (s *Service) RemoveMember(ctx context.Context, teamID, memberID, userID string) error {
	if _, err := s.access.RequireTeamOwner(ctx, teamID, userID, "remove members"); err != nil {
		return err
	}
	m, err := s.teamMember(ctx, teamID, memberID)
	if err != nil {
		return err
	}
	if m.UserID != nil && *m.UserID == userID {
		return apperr.BadRequest("Cannot remove yourself from the team")
	}
	if err := s.store.Members().Delete(ctx, m.ID); err != nil {
		return fmt.Errorf("removing member: %w", err)
	}
	return nil
}

func (s *Service) teamMember(ctx context.Context, teamID, memberID string) (*store.TeamMember, error) {
	m, err := s.store.Members().Get(ctx, memberID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && m.TeamID != teamID) {
		return nil, apperr.NotFound("Member not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading member: %w", err)
	}
	return m, nil
}

// pendingInvite resolves a token to a still-pending membership and its team.
func (s *Service) pendingInvite(ctx context.Context, token string) (*store.TeamMember, *store.Team, error) {
	m, err := s.store.Members().GetByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, apperr.NotFound("Invitation not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading invitation: %w", err)
	}
	if m.Status == store.StatusAccepted {
		return nil, nil, apperr.BadRequest("Invitation has already been accepted")
	}
	team, err := s.store.Teams().Get(ctx, m.TeamID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, apperr.NotFound("Invitation not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading team: %w", err)
	}
	return m, team, nil
}

// GetInviteByToken describes a pending invitation. It needs no authentication.
func (s *Service) GetInviteByToken(ctx context.Context, token string) (*Invite, error) {
	m, team, err := s.pendingInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	invite := &Invite{Email: m.Email, Role: string(m.Role), TeamName: team.Name}
	if owner, err := s.store.Users().Get(ctx, team.OwnerID); err == nil {
		invite.InviterName = owner.Name
	}
	return invite, nil
}

// AcceptInvite binds the invitation to userID when email matches the
// invited address, compared case-insensitively.
func (s *Service) AcceptInvite(ctx context.Context, token, userID, email string) (*store.TeamMember, error) {
	m, _, err := s.pendingInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(m.Email), strings.TrimSpace(email)) {
		return nil, apperr.Forbidden("This invitation was sent to a different email address")
	}

	if err := s.store.Members().Accept(ctx, m.ID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Lost a race with another acceptance.
			return nil, apperr.BadRequest("Invitation has already been accepted")
		}
		return nil, fmt.Errorf("accepting invitation: %w", err)
	}

	s.events.Publish(ctx, events.Event{
		Type:    events.TeamInvitationAccepted,
		UserID:  userID,
		TeamID:  m.TeamID,
		Payload: map[string]any{"member_id": m.ID},
	})

	m.UserID = &userID
	m.Status = store.StatusAccepted
	m.InvitationToken = nil
	return m, nil
}
