// Package memory is an in-process implementation of store.Store for
// development mode and tests.
package memory

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Noctocode/worken-ai/internal/store"
)

type data struct {
	users         map[string]store.User
	teams         map[string]store.Team
	members       map[string]store.TeamMember
	projects      map[string]store.Project
	documents     map[string]store.Document
	conversations map[string]store.Conversation
	messages      map[string]store.Message
}

func newData() *data {
	return &data{
		users:         map[string]store.User{},
		teams:         map[string]store.Team{},
		members:       map[string]store.TeamMember{},
		projects:      map[string]store.Project{},
		documents:     map[string]store.Document{},
		conversations: map[string]store.Conversation{},
		messages:      map[string]store.Message{},
	}
}

func (d *data) clone() *data {
	return &data{
		users:         maps.Clone(d.users),
		teams:         maps.Clone(d.teams),
		members:       maps.Clone(d.members),
		projects:      maps.Clone(d.projects),
		documents:     maps.Clone(d.documents),
		conversations: maps.Clone(d.conversations),
		messages:      maps.Clone(d.messages),
	}
}

// Store keeps all rows in maps guarded by one lock.
//
// Transactions are serialized and roll back by restoring a snapshot taken
// at the start. Writes outside a transaction wait for the running one to
// finish so a rollback never discards them.
type Store struct {
	mu   *sync.RWMutex
	txMu *sync.Mutex
	d    **data

	clockMu *sync.Mutex
	last    *time.Time
	inTx    bool
}

// New returns an empty store.
func New() *Store {
	d := newData()
	var last time.Time
	return &Store{
		mu:      &sync.RWMutex{},
		txMu:    &sync.Mutex{},
		d:       &d,
		clockMu: &sync.Mutex{},
		last:    &last,
	}
}

// now returns strictly increasing UTC timestamps so ordering by time is total.
func (s *Store) now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	t := time.Now().UTC().Truncate(time.Microsecond)
	if !t.After(*s.last) {
		t = s.last.Add(time.Microsecond)
	}
	*s.last = t
	return t
}

func (s *Store) read(fn func(d *data)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(*s.d)
}

func (s *Store) write(fn func(d *data) error) error {
	if !s.inTx {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(*s.d)
}

func (s *Store) Users() store.Users                 { return users{s} }
func (s *Store) Teams() store.Teams                 { return teams{s} }
func (s *Store) Members() store.Members             { return members{s} }
func (s *Store) Projects() store.Projects           { return projects{s} }
func (s *Store) Documents() store.Documents         { return documents{s} }
func (s *Store) Conversations() store.Conversations { return conversations{s} }
func (s *Store) Messages() store.Messages           { return messages{s} }

// WithinTx runs fn against s and restores the prior state if fn fails.
// Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := (*s.d).clone()
	s.mu.RUnlock()

	tx := *s
	tx.inTx = true
	if err := fn(&tx); err != nil {
		s.mu.Lock()
		*s.d = snapshot
		s.mu.Unlock()
		return err
	}
	return ctx.Err()
}

func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// users

type users struct{ s *Store }

func (r users) Get(_ context.Context, id string) (*store.User, error) {
	var u store.User
	var ok bool
	r.s.read(func(d *data) { u, ok = d.users[id] })
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (r users) GetMany(_ context.Context, ids []string) ([]store.User, error) {
	out := []store.User{}
	r.s.read(func(d *data) {
		seen := map[string]bool{}
		for _, id := range ids {
			if u, ok := d.users[id]; ok && !seen[id] {
				seen[id] = true
				out = append(out, u)
			}
		}
	})
	return out, nil
}

func (r users) Upsert(_ context.Context, u *store.User) error {
	now := r.s.now()
	return r.s.write(func(d *data) error {
		u.ID = newID(u.ID)
		if existing, ok := d.users[u.ID]; ok {
			existing.Email, existing.Name, existing.Picture, existing.IsPaid = u.Email, u.Name, u.Picture, u.IsPaid
			existing.UpdatedAt = now
			d.users[u.ID] = existing
			*u = existing
			return nil
		}
		u.CreatedAt, u.UpdatedAt = now, now
		d.users[u.ID] = *u
		return nil
	})
}

func (r users) SetOpenRouterKey(_ context.Context, id, hash, encrypted string) error {
	now := r.s.now()
	return r.s.write(func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return store.ErrNotFound
		}
		u.OpenRouterKeyHash, u.OpenRouterKeyEncrypted = &hash, &encrypted
		u.UpdatedAt = now
		d.users[id] = u
		return nil
	})
}

// teams

type teams struct{ s *Store }

func (r teams) Get(_ context.Context, id string) (*store.Team, error) {
	var t store.Team
	var ok bool
	r.s.read(func(d *data) { t, ok = d.teams[id] })
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (r teams) Create(_ context.Context, t *store.Team) error {
	now := r.s.now()
	return r.s.write(func(d *data) error {
		t.ID = newID(t.ID)
		t.CreatedAt, t.UpdatedAt = now, now
		d.teams[t.ID] = *t
		return nil
	})
}

func sortTeams(ts []store.Team) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].CreatedAt.Before(ts[j].CreatedAt) })
}

func (r teams) ListOwned(_ context.Context, userID string) ([]store.Team, error) {
	out := []store.Team{}
	r.s.read(func(d *data) {
		for _, t := range d.teams {
			if t.OwnerID == userID {
				out = append(out, t)
			}
		}
	})
	sortTeams(out)
	return out, nil
}

func (r teams) ListByIDs(_ context.Context, ids []string) ([]store.Team, error) {
	out := []store.Team{}
	r.s.read(func(d *data) {
		for _, id := range ids {
			if t, ok := d.teams[id]; ok {
				out = append(out, t)
			}
		}
	})
	sortTeams(out)
	return out, nil
}

func (r teams) SetOpenRouterKey(_ context.Context, id, hash, encrypted string, budgetCents int) error {
	now := r.s.now()
	return r.s.write(func(d *data) error {
		t, ok := d.teams[id]
		if !ok {
			return store.ErrNotFound
		}
		t.OpenRouterKeyHash, t.OpenRouterKeyEncrypted = &hash, &encrypted
		t.MonthlyBudgetCents = &budgetCents
		t.UpdatedAt = now
		d.teams[id] = t
		return nil
	})
}

func (r teams) SetBudget(_ context.Context, id string, budgetCents int) error {
	now := r.s.now()
	return r.s.write(func(d *data) error {
		t, ok := d.teams[id]
		if !ok {
			return store.ErrNotFound
		}
		t.MonthlyBudgetCents = &budgetCents
		t.UpdatedAt = now
		d.teams[id] = t
		return nil
	})
}

// members

type members struct{ s *Store }

func (r members) find(match func(store.TeamMember) bool) (*store.TeamMember, error) {
	var found *store.TeamMember
	r.s.read(func(d *data) {
		for _, m := range d.members {
			if match(m) {
				found = &m
				return
			}
		}
	})
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (r members) Get(_ context.Context, id string) (*store.TeamMember, error) {
	return r.find(func(m store.TeamMember) bool { return m.ID == id })
}

func (r members) GetByToken(_ context.Context, token string) (*store.TeamMember, error) {
	return r.find(func(m store.TeamMember) bool { return m.InvitationToken != nil && *m.InvitationToken == token })
}

func (r members) FindByEmail(_ context.Context, teamID, email string) (*store.TeamMember, error) {
	return r.find(func(m store.TeamMember) bool { return m.TeamID == teamID && strings.EqualFold(m.Email, email) })
}

func (r members) FindAccepted(_ context.Context, teamID, userID string) (*store.TeamMember, error) {
	return r.find(func(m store.TeamMember) bool {
		return m.TeamID == teamID && m.Status == store.StatusAccepted && m.UserID != nil && *m.UserID == userID
	})
}

func (r members) list(match func(store.TeamMember) bool) []store.TeamMember {
	out := []store.TeamMember{}
	r.s.read(func(d *data) {
		for _, m := range d.members {
			if match(m) {
				out = append(out, m)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r members) ListByTeam(_ context.Context, teamID string) ([]store.TeamMember, error) {
	return r.list(func(m store.TeamMember) bool { return m.TeamID == teamID }), nil
}

func (r members) ListAcceptedForUser(_ context.Context, userID string) ([]store.TeamMember, error) {
	return r.list(func(m store.TeamMember) bool {
		return m.Status == store.StatusAccepted && m.UserID != nil && *m.UserID == userID
	}), nil
}

func (r members) Create(_ context.Context, m *store.TeamMember) error {
	now := r.s.now()
	return r.s.write(func(d *data) error {
		for _, existing := range d.members {
			if existing.TeamID == m.TeamID && strings.EqualFold(existing.Email, m.Email) {
				return store.ErrConflict
			}
		}
		m.ID = newID(m.ID)
		m.CreatedAt = now
		d.members[m.ID] = *m
		return nil
	})
}

func (r members) UpdateRole(_ context.Context, id string, role store.MemberRole) error {
	return r.s.write(func(d *data) error {
		m, ok := d.members[id]
		if !ok {
			return store.ErrNotFound
		}
		m.Role = role
		d.members[id] = m
		return nil
	})
}

func (r members) Accept(_ context.Context, id, userID string) error {
	return r.s.write(func(d *data) error {
		m, ok := d.members[id]
		if !ok || m.Status != store.StatusPending {
			return store.ErrNotFound
		}
		m.UserID = &userID
		m.Status = store.StatusAccepted
		m.InvitationToken = nil
		d.members[id] = m
		return nil
	})
}

func (r members) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *data) error {
		if _, ok := d.members[id]; !ok {
			return store.ErrNotFound
		}
		delete(d.members, id)
		return nil
	})
}

// projects

type projects struct{ s *Store }

func (r projects) Get(_ context.Context, id string) (*store.Project, error) {
	var p store.Project
	var ok bool
	r.s.read(func(d *data) { p, ok = d.projects[id] })
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r projects) Create(_ context.Context, p *store.Project) error {
	now := r.s.now()
	return r.s.write(func(d *data) error {
		p.ID = newID(p.ID)
		if p.Status == "" {
			p.Status = store.ProjectStatusActive
		}
		p.CreatedAt, p.UpdatedAt = now, now
		d.projects[p.ID] = *p
		return nil
	})
}

func (r projects) list(match func(store.Project) bool) []store.Project {
	out := []store.Project{}
	r.s.read(func(d *data) {
		for _, p := range d.projects {
			if match(p) {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r projects) ListPersonal(_ context.Context, userID string) ([]store.Project, error) {
	return r.list(func(p store.Project) bool { return p.UserID == userID && p.TeamID == nil }), nil
}

func (r projects) ListByTeams(_ context.Context, teamIDs []string) ([]store.Project, error) {
	if len(teamIDs) == 0 {
		return []store.Project{}, nil
	}
	set := map[string]bool{}
	for _, id := range teamIDs {
		set[id] = true
	}
	return r.list(func(p store.Project) bool { return p.TeamID != nil && set[*p.TeamID] }), nil
}

// documents

type documents struct{ s *Store }

func (r documents) InsertBatch(_ context.Context, docs []store.Document) error {
	return r.s.write(func(d *data) error {
		for i := range docs {
			if _, ok := d.documents[docs[i].ID]; ok && docs[i].ID != "" {
				return store.ErrConflict
			}
		}
		for i := range docs {
			docs[i].ID = newID(docs[i].ID)
			if docs[i].CreatedAt.IsZero() {
				docs[i].CreatedAt = r.s.now()
			}
			d.documents[docs[i].ID] = docs[i]
		}
		return nil
	})
}

func (r documents) Get(_ context.Context, id string) (*store.Document, error) {
	var doc store.Document
	var ok bool
	r.s.read(func(d *data) { doc, ok = d.documents[id] })
	if !ok {
		return nil, store.ErrNotFound
	}
	return &doc, nil
}

// newestFirst orders by CreatedAt descending, then id.
func newestFirst(docs []store.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

func (r documents) ListByProject(_ context.Context, projectID string) ([]store.Document, error) {
	out := []store.Document{}
	r.s.read(func(d *data) {
		for _, doc := range d.documents {
			if doc.ProjectID == projectID {
				doc.Embedding = nil
				out = append(out, doc)
			}
		}
	})
	newestFirst(out)
	return out, nil
}

func (r documents) ListGroups(_ context.Context, projectID string) ([]store.DocumentGroup, error) {
	type key struct{ group, title string }
	groups := map[key]*store.DocumentGroup{}
	r.s.read(func(d *data) {
		for _, doc := range d.documents {
			if doc.ProjectID != projectID {
				continue
			}
			k := key{doc.GroupID, doc.Title}
			g, ok := groups[k]
			if !ok {
				g = &store.DocumentGroup{GroupID: doc.GroupID, Title: doc.Title, CreatedAt: doc.CreatedAt}
				groups[k] = g
			}
			g.ChunkCount++
			if doc.CreatedAt.Before(g.CreatedAt) {
				g.CreatedAt = doc.CreatedAt
			}
		}
	})
	out := make([]store.DocumentGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out, nil
}

func (r documents) DeleteGroup(_ context.Context, projectID, groupID string) ([]store.Document, error) {
	out := []store.Document{}
	err := r.s.write(func(d *data) error {
		for id, doc := range d.documents {
			if doc.ProjectID == projectID && doc.GroupID == groupID {
				out = append(out, doc)
				delete(d.documents, id)
			}
		}
		return nil
	})
	newestFirst(out)
	return out, err
}

func (r documents) Delete(_ context.Context, id string) (*store.Document, error) {
	var doc store.Document
	err := r.s.write(func(d *data) error {
		var ok bool
		if doc, ok = d.documents[id]; !ok {
			return store.ErrNotFound
		}
		delete(d.documents, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// conversations

type conversations struct{ s *Store }

func (r conversations) Get(_ context.Context, id string) (*store.Conversation, error) {
	var c store.Conversation
	var ok bool
	r.s.read(func(d *data) { c, ok = d.conversations[id] })
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (r conversations) Create(_ context.Context, c *store.Conversation) error {
	now := r.s.now()
	return r.s.write(func(d *data) error {
		c.ID = newID(c.ID)
		c.CreatedAt, c.UpdatedAt = now, now
		d.conversations[c.ID] = *c
		return nil
	})
}

func (r conversations) ListByProject(_ context.Context, projectID string) ([]store.Conversation, error) {
	out := []store.Conversation{}
	r.s.read(func(d *data) {
		for _, c := range d.conversations {
			if c.ProjectID == projectID {
				out = append(out, c)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r conversations) Touch(_ context.Context, id string, at time.Time, title string) error {
	return r.s.write(func(d *data) error {
		c, ok := d.conversations[id]
		if !ok {
			return store.ErrNotFound
		}
		c.UpdatedAt = at
		if title != "" && (c.Title == nil || *c.Title == "") {
			c.Title = &title
		}
		d.conversations[id] = c
		return nil
	})
}

func (r conversations) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *data) error {
		if _, ok := d.conversations[id]; !ok {
			return store.ErrNotFound
		}
		for mid, m := range d.messages {
			if m.ConversationID == id {
				delete(d.messages, mid)
			}
		}
		delete(d.conversations, id)
		return nil
	})
}

// messages

type messages struct{ s *Store }

func (r messages) Create(_ context.Context, m *store.Message) error {
	now := r.s.now()
	return r.s.write(func(d *data) error {
		if _, ok := d.conversations[m.ConversationID]; !ok {
			return store.ErrNotFound
		}
		m.ID = newID(m.ID)
		m.CreatedAt = now
		d.messages[m.ID] = *m
		return nil
	})
}

func (r messages) ListByConversation(_ context.Context, conversationID string) ([]store.Message, error) {
	out := []store.Message{}
	r.s.read(func(d *data) {
		for _, m := range d.messages {
			if m.ConversationID == conversationID {
				out = append(out, m)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r messages) AuthorIDs(_ context.Context, conversationIDs []string) (map[string][]string, error) {
	want := map[string]bool{}
	for _, id := range conversationIDs {
		want[id] = true
	}
	seen := map[string]map[string]bool{}
	out := map[string][]string{}
	r.s.read(func(d *data) {
		for _, m := range d.messages {
			if !want[m.ConversationID] || m.UserID == nil {
				continue
			}
			if seen[m.ConversationID] == nil {
				seen[m.ConversationID] = map[string]bool{}
			}
			if !seen[m.ConversationID][*m.UserID] {
				seen[m.ConversationID][*m.UserID] = true
				out[m.ConversationID] = append(out[m.ConversationID], *m.UserID)
			}
		}
	})
	for _, ids := range out {
		sort.Strings(ids)
	}
	return out, nil
}
