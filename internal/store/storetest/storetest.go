// Package storetest holds behavior tests shared by every store.Store implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noctocode/worken-ai/internal/store"
)

// Run exercises s against the repository contracts. newStore must return
// an empty store per call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("members", func(t *testing.T) { testMembers(t, newStore(t)) })
	t.Run("projects", func(t *testing.T) { testProjects(t, newStore(t)) })
	t.Run("documents", func(t *testing.T) { testDocuments(t, newStore(t)) })
	t.Run("conversations", func(t *testing.T) { testConversations(t, newStore(t)) })
	t.Run("tx rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
}

// Seed helpers, exported for service tests.

func SeedUser(t *testing.T, s store.Store, name string, paid bool) *store.User {
	t.Helper()
	u := &store.User{Email: name + "@example.com", Name: name, IsPaid: paid}
	require.NoError(t, s.Users().Upsert(context.Background(), u))
	return u
}

func SeedTeam(t *testing.T, s store.Store, owner *store.User) *store.Team {
	t.Helper()
	team := &store.Team{Name: owner.Name + "'s team", OwnerID: owner.ID}
	require.NoError(t, s.Teams().Create(context.Background(), team))
	return team
}

// SeedMember adds an accepted membership of u in team.
func SeedMember(t *testing.T, s store.Store, team *store.Team, u *store.User, role store.MemberRole) *store.TeamMember {
	t.Helper()
	m := &store.TeamMember{TeamID: team.ID, UserID: &u.ID, Email: u.Email, Role: role, Status: store.StatusAccepted}
	require.NoError(t, s.Members().Create(context.Background(), m))
	return m
}

func SeedProject(t *testing.T, s store.Store, owner *store.User, team *store.Team) *store.Project {
	t.Helper()
	p := &store.Project{UserID: owner.ID, Name: "Research", Model: "moonshotai/kimi-k2.5"}
	if team != nil {
		p.TeamID = &team.ID
	}
	require.NoError(t, s.Projects().Create(context.Background(), p))
	return p
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SeedUser(t, s, "ada", false)
	require.NotEmpty(t, u.ID)

	u.Name = "Ada L."
	u.IsPaid = true
	require.NoError(t, s.Users().Upsert(ctx, u))

	got, err := s.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", got.Name)
	assert.True(t, got.IsPaid)
	assert.Nil(t, got.OpenRouterKeyHash)

	require.NoError(t, s.Users().SetOpenRouterKey(ctx, u.ID, "hash-1", "iv:ct:tag"))
	got, err = s.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OpenRouterKeyHash)
	assert.Equal(t, "hash-1", *got.OpenRouterKeyHash)
	assert.Equal(t, "iv:ct:tag", *got.OpenRouterKeyEncrypted)

	_, err = s.Users().Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)

	many, err := s.Users().GetMany(ctx, []string{u.ID, uuid.NewString()})
	require.NoError(t, err)
	assert.Len(t, many, 1)
}

func testMembers(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := SeedUser(t, s, "owner", true)
	team := SeedTeam(t, s, owner)

	token := "tok-123"
	m := &store.TeamMember{TeamID: team.ID, Email: "Invitee@Example.com", Role: store.RoleBasic, Status: store.StatusPending, InvitationToken: &token}
	require.NoError(t, s.Members().Create(ctx, m))

	dup := &store.TeamMember{TeamID: team.ID, Email: "invitee@example.com", Role: store.RoleBasic, Status: store.StatusPending}
	assert.ErrorIs(t, s.Members().Create(ctx, dup), store.ErrConflict)

	found, err := s.Members().FindByEmail(ctx, team.ID, "INVITEE@example.com")
	require.NoError(t, err)
	assert.Equal(t, m.ID, found.ID)

	byToken, err := s.Members().GetByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, m.ID, byToken.ID)

	invitee := SeedUser(t, s, "invitee", false)
	_, err = s.Members().FindAccepted(ctx, team.ID, invitee.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Members().Accept(ctx, m.ID, invitee.ID))
	assert.ErrorIs(t, s.Members().Accept(ctx, m.ID, invitee.ID), store.ErrNotFound)

	accepted, err := s.Members().FindAccepted(ctx, team.ID, invitee.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAccepted, accepted.Status)
	assert.Nil(t, accepted.InvitationToken)

	_, err = s.Members().GetByToken(ctx, token)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Members().UpdateRole(ctx, m.ID, store.RoleAdvanced))
	list, err := s.Members().ListAcceptedForUser(ctx, invitee.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, store.RoleAdvanced, list[0].Role)

	require.NoError(t, s.Members().Delete(ctx, m.ID))
	assert.ErrorIs(t, s.Members().Delete(ctx, m.ID), store.ErrNotFound)
}

func testProjects(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SeedUser(t, s, "pat", true)
	team := SeedTeam(t, s, u)

	first := SeedProject(t, s, u, nil)
	second := SeedProject(t, s, u, nil)
	teamProject := SeedProject(t, s, u, team)
	assert.Equal(t, store.ProjectStatusActive, first.Status)
	assert.True(t, first.IsPersonal())
	assert.False(t, teamProject.IsPersonal())

	personal, err := s.Projects().ListPersonal(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, personal, 2)
	assert.Equal(t, second.ID, personal[0].ID, "newest first")

	byTeam, err := s.Projects().ListByTeams(ctx, []string{team.ID})
	require.NoError(t, err)
	require.Len(t, byTeam, 1)
	assert.Equal(t, teamProject.ID, byTeam[0].ID)

	none, err := s.Projects().ListByTeams(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testDocuments(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SeedUser(t, s, "doc", true)
	p := SeedProject(t, s, u, nil)

	older := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	newer := older.Add(time.Minute)
	groupA, groupB := uuid.NewString(), uuid.NewString()
	docs := []store.Document{
		{ID: uuid.NewString(), ProjectID: p.ID, GroupID: groupA, Title: "Alpha", Content: "a1", CreatedAt: older},
		{ID: uuid.NewString(), ProjectID: p.ID, GroupID: groupA, Title: "Alpha", Content: "a2", CreatedAt: older},
		{ID: uuid.NewString(), ProjectID: p.ID, GroupID: groupB, Title: "Beta", Content: "b1", CreatedAt: newer},
	}
	require.NoError(t, s.Documents().InsertBatch(ctx, docs))

	groups, err := s.Documents().ListGroups(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, groupB, groups[0].GroupID)
	assert.Equal(t, 2, groups[1].ChunkCount)
	assert.Equal(t, "Alpha", groups[1].Title)

	list, err := s.Documents().ListByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, docs[2].ID, list[0].ID)

	deleted, err := s.Documents().DeleteGroup(ctx, p.ID, groupA)
	require.NoError(t, err)
	assert.Len(t, deleted, 2)

	list, err = s.Documents().ListByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	one, err := s.Documents().Delete(ctx, docs[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "b1", one.Content)
	_, err = s.Documents().Delete(ctx, docs[2].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testConversations(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SeedUser(t, s, "conv", true)
	p := SeedProject(t, s, u, nil)

	c := &store.Conversation{ProjectID: p.ID, UserID: u.ID}
	require.NoError(t, s.Conversations().Create(ctx, c))
	assert.Nil(t, c.Title)

	first := &store.Message{ConversationID: c.ID, Role: store.MessageRoleUser, Content: "hello", UserID: &u.ID}
	require.NoError(t, s.Messages().Create(ctx, first))
	second := &store.Message{ConversationID: c.ID, Role: store.MessageRoleAssistant, Content: "hi", Metadata: map[string]any{"reasoning": "short"}}
	require.NoError(t, s.Messages().Create(ctx, second))

	msgs, err := s.Messages().ListByConversation(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, "short", msgs[1].Metadata["reasoning"])

	authors, err := s.Messages().AuthorIDs(ctx, []string{c.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{u.ID}, authors[c.ID])

	at := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	require.NoError(t, s.Conversations().Touch(ctx, c.ID, at, "hello"))
	require.NoError(t, s.Conversations().Touch(ctx, c.ID, at, "ignored"))
	got, err := s.Conversations().Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Title)
	assert.Equal(t, "hello", *got.Title)
	assert.WithinDuration(t, at, got.UpdatedAt, time.Millisecond)

	require.NoError(t, s.Conversations().Delete(ctx, c.ID))
	msgs, err = s.Messages().ListByConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	_, err = s.Conversations().Get(ctx, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SeedUser(t, s, "tx", true)
	p := SeedProject(t, s, u, nil)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx store.Store) error {
		require.NoError(t, tx.Documents().InsertBatch(ctx, []store.Document{
			{ID: uuid.NewString(), ProjectID: p.ID, GroupID: uuid.NewString(), Title: "T", Content: "c"},
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := s.Documents().ListByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.WithinTx(ctx, func(tx store.Store) error {
		return tx.Documents().InsertBatch(ctx, []store.Document{
			{ID: uuid.NewString(), ProjectID: p.ID, GroupID: uuid.NewString(), Title: "T", Content: "c"},
		})
	}))
	list, err = s.Documents().ListByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
