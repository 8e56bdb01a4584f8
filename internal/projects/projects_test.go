package projects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noctocode/worken-ai/internal/access"
	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/store"
	"github.com/Noctocode/worken-ai/internal/store/memory"
	"github.com/Noctocode/worken-ai/internal/store/storetest"
)

func ids(ps []store.Project) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	f, err = ParseFilter("team")
	require.NoError(t, err)
	assert.Equal(t, FilterTeam, f)

	_, err = ParseFilter("shared")
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestFindAll(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := NewService(s, nil)

	ada := storetest.SeedUser(t, s, "ada", true)
	bob := storetest.SeedUser(t, s, "bob", true)
	team := storetest.SeedTeam(t, s, bob)
	member := storetest.SeedMember(t, s, team, ada, store.RoleBasic)

	personal := storetest.SeedProject(t, s, ada, nil)
	teamProject := storetest.SeedProject(t, s, bob, team)
	storetest.SeedProject(t, s, bob, nil)

	all, err := svc.FindAll(ctx, ada.ID, FilterAll)
	require.NoError(t, err)
	assert.Equal(t, []string{teamProject.ID, personal.ID}, ids(all))

	onlyPersonal, err := svc.FindAll(ctx, ada.ID, FilterPersonal)
	require.NoError(t, err)
	assert.Equal(t, []string{personal.ID}, ids(onlyPersonal))

	onlyTeam, err := svc.FindAll(ctx, ada.ID, FilterTeam)
	require.NoError(t, err)
	assert.Equal(t, []string{teamProject.ID}, ids(onlyTeam))

	require.NoError(t, s.Members().Delete(ctx, member.ID))
	onlyTeam, err = svc.FindAll(ctx, ada.ID, FilterTeam)
	require.NoError(t, err)
	assert.NotNil(t, onlyTeam)
	assert.Empty(t, onlyTeam)
}

func TestFindAll_PendingMemberSeesNoTeamProjects(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := NewService(s, nil)

	owner := storetest.SeedUser(t, s, "owner", true)
	team := storetest.SeedTeam(t, s, owner)
	p := storetest.SeedProject(t, s, owner, team)
	invitee := storetest.SeedUser(t, s, "invitee", false)
	require.NoError(t, s.Members().Create(ctx, &store.TeamMember{
		TeamID: team.ID, UserID: &invitee.ID, Email: invitee.Email, Role: store.RoleAdvanced, Status: store.StatusPending,
	}))

	list, err := svc.FindAll(ctx, invitee.ID, FilterAll)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.FindOne(ctx, p.ID, invitee.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := NewService(s, nil)

	owner := storetest.SeedUser(t, s, "owner", true)
	team := storetest.SeedTeam(t, s, owner)
	basic := storetest.SeedUser(t, s, "basic", false)
	storetest.SeedMember(t, s, team, basic, store.RoleBasic)

	p, err := svc.Create(ctx, access.Principal{UserID: owner.ID, IsPaid: true}, CreateInput{
		Name: "  Launch ", Model: "moonshotai/kimi-k2.5", TeamID: team.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Launch", p.Name)
	assert.Equal(t, store.ProjectStatusActive, p.Status)
	require.NotNil(t, p.TeamID)
	assert.Equal(t, team.ID, *p.TeamID)

	_, err = svc.Create(ctx, access.Principal{UserID: basic.ID}, CreateInput{Name: "X", TeamID: team.ID})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.Create(ctx, access.Principal{UserID: basic.ID}, CreateInput{Name: "X"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.Create(ctx, access.Principal{UserID: owner.ID, IsPaid: true}, CreateInput{Name: " "})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}
