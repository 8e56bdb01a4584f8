package access

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/store"
	"github.com/Noctocode/worken-ai/internal/store/memory"
	"github.com/Noctocode/worken-ai/internal/store/storetest"
)

type fixture struct {
	store    *memory.Store
	resolver *Resolver
	owner    *store.User
	team     *store.Team
}

func newFixture(t *testing.T) *fixture {
	s := memory.New()
	owner := storetest.SeedUser(t, s, "owner", true)
	return &fixture{
		store:    s,
		resolver: NewResolver(s),
		owner:    owner,
		team:     storetest.SeedTeam(t, s, owner),
	}
}

func TestTeamRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	advanced := storetest.SeedUser(t, f.store, "adv", false)
	storetest.SeedMember(t, f.store, f.team, advanced, store.RoleAdvanced)
	basic := storetest.SeedUser(t, f.store, "basic", false)
	storetest.SeedMember(t, f.store, f.team, basic, store.RoleBasic)

	pending := storetest.SeedUser(t, f.store, "pending", false)
	require.NoError(t, f.store.Members().Create(ctx, &store.TeamMember{
		TeamID: f.team.ID, UserID: &pending.ID, Email: pending.Email, Role: store.RoleAdvanced, Status: store.StatusPending,
	}))
	stranger := storetest.SeedUser(t, f.store, "stranger", false)

	tests := []struct {
		name   string
		teamID string
		userID string
		want   Role
		ok     bool
	}{
		{"owner", f.team.ID, f.owner.ID, RoleOwner, true},
		{"advanced member", f.team.ID, advanced.ID, RoleAdvanced, true},
		{"basic member", f.team.ID, basic.ID, RoleBasic, true},
		{"pending member has no role", f.team.ID, pending.ID, "", false},
		{"stranger", f.team.ID, stranger.ID, "", false},
		{"missing team", uuid.NewString(), f.owner.ID, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, ok, err := f.resolver.TeamRole(ctx, tt.teamID, tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, role)
		})
	}
}

func TestRequireProject_MasksMissingAndForbidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	personal := storetest.SeedProject(t, f.store, f.owner, nil)
	teamProject := storetest.SeedProject(t, f.store, f.owner, f.team)
	stranger := storetest.SeedUser(t, f.store, "stranger", false)

	_, role, err := f.resolver.RequireProject(ctx, personal.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, role)

	_, _, forbidden := f.resolver.RequireProject(ctx, personal.ID, stranger.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(forbidden))
	assert.Equal(t, "Project "+personal.ID+" not found", apperr.MessageOf(forbidden))

	missingID := uuid.NewString()
	_, _, missing := f.resolver.RequireProject(ctx, missingID, f.owner.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(missing))
	assert.Equal(t, "Project "+missingID+" not found", apperr.MessageOf(missing))

	_, _, err = f.resolver.RequireProject(ctx, teamProject.ID, stranger.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRequireProject_AccessIsMonotonicOverMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := storetest.SeedProject(t, f.store, f.owner, f.team)
	invitee := storetest.SeedUser(t, f.store, "invitee", false)

	m := &store.TeamMember{TeamID: f.team.ID, Email: invitee.Email, Role: store.RoleBasic, Status: store.StatusPending}
	require.NoError(t, f.store.Members().Create(ctx, m))

	_, _, err := f.resolver.RequireProject(ctx, p.ID, invitee.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err), "pending invitation grants nothing")

	require.NoError(t, f.store.Members().Accept(ctx, m.ID, invitee.ID))
	_, role, err := f.resolver.RequireProject(ctx, p.ID, invitee.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleBasic, role)

	require.NoError(t, f.store.Members().Delete(ctx, m.ID))
	_, _, err = f.resolver.RequireProject(ctx, p.ID, invitee.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCanCreateProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	advanced := storetest.SeedUser(t, f.store, "adv", false)
	storetest.SeedMember(t, f.store, f.team, advanced, store.RoleAdvanced)
	basic := storetest.SeedUser(t, f.store, "basic", false)
	storetest.SeedMember(t, f.store, f.team, basic, store.RoleBasic)
	free := storetest.SeedUser(t, f.store, "free", false)
	unpaidOwner := storetest.SeedUser(t, f.store, "unpaid-owner", false)
	storetest.SeedTeam(t, f.store, unpaidOwner)

	tests := []struct {
		name      string
		principal Principal
		teamID    string
		wantMsg   string
	}{
		{"owner creates team project", Principal{UserID: f.owner.ID}, f.team.ID, ""},
		{"advanced creates team project", Principal{UserID: advanced.ID}, f.team.ID, ""},
		{"basic cannot create team project", Principal{UserID: basic.ID}, f.team.ID, "Only team owners and advanced members can create team projects"},
		{"stranger cannot create team project", Principal{UserID: free.ID}, f.team.ID, "Only team owners and advanced members can create team projects"},
		{"paid user creates personal project", Principal{UserID: free.ID, IsPaid: true}, "", ""},
		{"unpaid team owner creates personal project", Principal{UserID: unpaidOwner.ID}, "", ""},
		{"advanced member creates personal project", Principal{UserID: advanced.ID}, "", ""},
		{"basic member cannot create personal project", Principal{UserID: basic.ID}, "", "You need a paid account or advanced team role to create projects"},
		{"free user cannot create personal project", Principal{UserID: free.ID}, "", "You need a paid account or advanced team role to create projects"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.resolver.CanCreateProject(ctx, tt.principal, tt.teamID)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
			assert.Equal(t, tt.wantMsg, apperr.MessageOf(err))
		})
	}
}

func TestRequireTeamOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	advanced := storetest.SeedUser(t, f.store, "adv", false)
	storetest.SeedMember(t, f.store, f.team, advanced, store.RoleAdvanced)

	team, err := f.resolver.RequireTeamOwner(ctx, f.team.ID, f.owner.ID, "invite members")
	require.NoError(t, err)
	assert.Equal(t, f.team.ID, team.ID)

	_, err = f.resolver.RequireTeamOwner(ctx, f.team.ID, advanced.ID, "invite members")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, "Only the team owner can invite members", apperr.MessageOf(err))

	_, err = f.resolver.RequireTeamOwner(ctx, uuid.NewString(), f.owner.ID, "invite members")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, "Team not found", apperr.MessageOf(err))
}

func TestTeamIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := storetest.SeedUser(t, f.store, "other", true)
	otherTeam := storetest.SeedTeam(t, f.store, other)
	storetest.SeedMember(t, f.store, otherTeam, f.owner, store.RoleBasic)

	ids, err := f.resolver.TeamIDs(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{f.team.ID, otherTeam.ID}, ids)

	advanced, err := f.resolver.HasAdvancedRoleInAnyTeam(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.False(t, advanced)
}
