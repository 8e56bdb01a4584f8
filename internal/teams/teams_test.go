package teams

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noctocode/worken-ai/internal/access"
	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/keys"
	"github.com/Noctocode/worken-ai/internal/mail"
	"github.com/Noctocode/worken-ai/internal/store"
	"github.com/Noctocode/worken-ai/internal/store/memory"
	"github.com/Noctocode/worken-ai/internal/store/storetest"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Invitation
}

func (m *recordingMailer) SendTeamInvitation(_ context.Context, inv mail.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, inv)
	return nil
}

type stubProvisioner struct {
	createErr error
	updateErr error
	updated   map[string]float64
}

func (p *stubProvisioner) CreateKey(_ context.Context, name string, _ float64) (keys.Key, error) {
	if p.createErr != nil {
		return keys.Key{}, p.createErr
	}
	return keys.Key{Key: "sk-or-" + name, Hash: "hash-" + name}, nil
}

func (p *stubProvisioner) UpdateKey(_ context.Context, hash string, limit float64) error {
	if p.updateErr != nil {
		return p.updateErr
	}
	if p.updated == nil {
		p.updated = map[string]float64{}
	}
	p.updated[hash] = limit
	return nil
}

func (p *stubProvisioner) DeleteKey(context.Context, string) error { return nil }

type fixture struct {
	store       *memory.Store
	service     *Service
	mailer      *recordingMailer
	provisioner *stubProvisioner
	cipher      *keys.Cipher
	owner       *store.User
}

func newFixture(t *testing.T) *fixture {
	s := memory.New()
	cipher, err := keys.NewCipher("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)
	f := &fixture{
		store:       s,
		mailer:      &recordingMailer{},
		provisioner: &stubProvisioner{},
		cipher:      cipher,
		owner:       storetest.SeedUser(t, s, "owner", true),
	}
	f.service = NewService(Config{
		Store:       s,
		Provisioner: f.provisioner,
		Cipher:      cipher,
		Mailer:      f.mailer,
	})
	return f
}

func (f *fixture) principal() access.Principal {
	return access.Principal{UserID: f.owner.ID, Email: f.owner.Email, IsPaid: true}
}

func requireKind(t *testing.T, err error, kind apperr.Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), err.Error())
	assert.Equal(t, msg, apperr.MessageOf(err))
}

func TestCreate_ProvisionsKeyWithoutOwnerRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	team, err := f.service.Create(ctx, f.principal(), "Research")
	require.NoError(t, err)
	require.NotNil(t, team.OpenRouterKeyEncrypted)
	assert.Equal(t, "hash-team-"+team.ID, *team.OpenRouterKeyHash)
	require.NotNil(t, team.MonthlyBudgetCents)
	assert.Equal(t, 1000, *team.MonthlyBudgetCents)

	plain, err := f.cipher.Decrypt(*team.OpenRouterKeyEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "sk-or-team-"+team.ID, plain)

	members, err := f.store.Members().ListByTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	role, ok, err := access.NewResolver(f.store).TeamRole(ctx, team.ID, f.owner.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, access.RoleOwner, role)
}

func TestCreate_RequiresPaidAndSurvivesProvisioningFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.Create(ctx, access.Principal{UserID: f.owner.ID}, "Research")
	requireKind(t, err, apperr.KindForbidden, "This feature requires a paid account")

	f.provisioner.createErr = errors.New("upstream down")
	team, err := f.service.Create(ctx, f.principal(), "Research")
	require.NoError(t, err)
	assert.Nil(t, team.OpenRouterKeyHash)
}

func TestUpdateBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team, err := f.service.Create(ctx, f.principal(), "Research")
	require.NoError(t, err)

	for _, bad := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		_, err := f.service.UpdateBudget(ctx, team.ID, f.owner.ID, bad)
		requireKind(t, err, apperr.KindBadRequest, "budgetUsd must be a positive number")
	}

	member := storetest.SeedUser(t, f.store, "adv", false)
	storetest.SeedMember(t, f.store, team, member, store.RoleAdvanced)
	_, err = f.service.UpdateBudget(ctx, team.ID, member.ID, 20)
	requireKind(t, err, apperr.KindForbidden, "Only the team owner can update the budget")

	_, err = f.service.UpdateBudget(ctx, uuid.NewString(), f.owner.ID, 20)
	requireKind(t, err, apperr.KindNotFound, "Team not found")

	cents, err := f.service.UpdateBudget(ctx, team.ID, f.owner.ID, 12.34)
	require.NoError(t, err)
	assert.Equal(t, 1234, cents)
	assert.Equal(t, 12.34, f.provisioner.updated[*team.OpenRouterKeyHash])

	f.provisioner.updateErr = errors.New("502")
	_, err = f.service.UpdateBudget(ctx, team.ID, f.owner.ID, 30)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))

	keyless := storetest.SeedTeam(t, f.store, f.owner)
	_, err = f.service.UpdateBudget(ctx, keyless.ID, f.owner.ID, 20)
	requireKind(t, err, apperr.KindBadRequest, "This team does not have a provisioned OpenRouter key")
}

func TestInvitationLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team, err := f.service.Create(ctx, f.principal(), "Research")
	require.NoError(t, err)

	_, err = f.service.InviteMember(ctx, team.ID, "bob@example.com", "admin", f.owner.ID)
	requireKind(t, err, apperr.KindBadRequest, "Role must be basic or advanced")

	member, err := f.service.InviteMember(ctx, team.ID, "Bob@Example.com", "advanced", f.owner.ID)
	require.NoError(t, err)
	require.NotNil(t, member.InvitationToken)
	token := *member.InvitationToken
	assert.Len(t, token, 64)
	assert.Equal(t, store.StatusPending, member.Status)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "owner", f.mailer.sent[0].InviterName)
	assert.Equal(t, token, f.mailer.sent[0].Token)

	_, err = f.service.InviteMember(ctx, team.ID, "bob@example.com", "basic", f.owner.ID)
	requireKind(t, err, apperr.KindConflict, "This email has already been invited to this team")
	assert.Len(t, f.mailer.sent, 1)

	invite, err := f.service.GetInviteByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, &Invite{Email: "Bob@Example.com", Role: "advanced", TeamName: "Research", InviterName: "owner"}, invite)

	bob := storetest.SeedUser(t, f.store, "bob", false)
	mallory := storetest.SeedUser(t, f.store, "mallory", false)

	_, err = f.service.AcceptInvite(ctx, token, mallory.ID, mallory.Email)
	requireKind(t, err, apperr.KindForbidden, "This invitation was sent to a different email address")
	stillPending, err := f.store.Members().Get(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, stillPending.Status)

	accepted, err := f.service.AcceptInvite(ctx, token, bob.ID, "BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.StatusAccepted, accepted.Status)
	assert.Equal(t, bob.ID, *accepted.UserID)

	for _, who := range []*store.User{bob, mallory, f.owner} {
		_, err = f.service.AcceptInvite(ctx, token, who.ID, "bob@example.com")
		assert.Error(t, err, "re-acceptance must fail")
	}
	_, err = f.service.GetInviteByToken(ctx, token)
	requireKind(t, err, apperr.KindNotFound, "Invitation not found")

	role, ok, err := access.NewResolver(f.store).TeamRole(ctx, team.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, access.RoleAdvanced, role)
}

func TestInviteMember_OwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := storetest.SeedTeam(t, f.store, f.owner)
	adv := storetest.SeedUser(t, f.store, "adv", false)
	storetest.SeedMember(t, f.store, team, adv, store.RoleAdvanced)

	_, err := f.service.InviteMember(ctx, team.ID, "x@example.com", "basic", adv.ID)
	requireKind(t, err, apperr.KindForbidden, "Only the team owner can invite members")
	assert.Empty(t, f.mailer.sent)
}

func TestMemberManagement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := storetest.SeedTeam(t, f.store, f.owner)
	bob := storetest.SeedUser(t, f.store, "bob", false)
	m := storetest.SeedMember(t, f.store, team, bob, store.RoleBasic)

	updated, err := f.service.UpdateMemberRole(ctx, team.ID, m.ID, "advanced", f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdvanced, updated.Role)

	_, err = f.service.UpdateMemberRole(ctx, team.ID, m.ID, "owner", f.owner.ID)
	requireKind(t, err, apperr.KindBadRequest, "Role must be basic or advanced")

	_, err = f.service.UpdateMemberRole(ctx, team.ID, uuid.NewString(), "basic", f.owner.ID)
	requireKind(t, err, apperr.KindNotFound, "Member not found")

	err = f.service.RemoveMember(ctx, team.ID, m.ID, bob.ID)
	requireKind(t, err, apperr.KindForbidden, "Only the team owner can remove members")

	selfRow := storetest.SeedMember(t, f.store, team, f.owner, store.RoleAdvanced)
	err = f.service.RemoveMember(ctx, team.ID, selfRow.ID, f.owner.ID)
	requireKind(t, err, apperr.KindBadRequest, "Cannot remove yourself from the team")

	require.NoError(t, f.service.RemoveMember(ctx, team.ID, m.ID, f.owner.ID))
	err = f.service.RemoveMember(ctx, team.ID, m.ID, f.owner.ID)
	requireKind(t, err, apperr.KindNotFound, "Member not found")
}

func TestFindAllForUserAndFindOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owned := storetest.SeedTeam(t, f.store, f.owner)
	other := storetest.SeedUser(t, f.store, "other", true)
	joined := storetest.SeedTeam(t, f.store, other)
	storetest.SeedMember(t, f.store, joined, f.owner, store.RoleBasic)
	stranger := storetest.SeedUser(t, f.store, "stranger", false)

	all, err := f.service.FindAllForUser(ctx, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, owned.ID, all[0].ID)
	assert.Equal(t, joined.ID, all[1].ID)

	detail, err := f.service.FindOne(ctx, joined.ID, f.owner.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Owner)
	assert.Equal(t, "other", detail.Owner.Name)
	require.Len(t, detail.Members, 1)
	assert.Equal(t, "owner", detail.Members[0].Name)

	_, err = f.service.FindOne(ctx, joined.ID, stranger.ID)
	requireKind(t, err, apperr.KindForbidden, "You are not a member of this team")

	_, err = f.service.FindOne(ctx, uuid.NewString(), f.owner.ID)
	requireKind(t, err, apperr.KindNotFound, "Team not found")
}
