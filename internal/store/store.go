// Package store defines the relational data model and repository interfaces.
//
// Two implementations exist: postgres (gorm, with pgvector embeddings) and
// memory (development mode and tests). Services depend only on Store.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound signals a missing row.
	ErrNotFound = errors.New("record not found")

	// ErrConflict signals a unique constraint violation.
	ErrConflict = errors.New("record already exists")
)

// MemberRole is the stored role of a team membership.
type MemberRole string

const (
	RoleBasic    MemberRole = "basic"
	RoleAdvanced MemberRole = "advanced"
)

// Valid reports whether r is basic or advanced.
func (r MemberRole) Valid() bool {
	return r == RoleBasic || r == RoleAdvanced
}

// MemberStatus moves only from pending to accepted.
type MemberStatus string

const (
	StatusPending  MemberStatus = "pending"
	StatusAccepted MemberStatus = "accepted"
)

// ProjectStatusActive is the status of newly created projects.
const ProjectStatusActive = "active"

// Message roles.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

type User struct {
	ID                     string
	Email                  string
	Name                   string
	Picture                string
	IsPaid                 bool
	OpenRouterKeyHash      *string
	OpenRouterKeyEncrypted *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type Team struct {
	ID                     string
	Name                   string
	OwnerID                string
	OpenRouterKeyHash      *string
	OpenRouterKeyEncrypted *string
	MonthlyBudgetCents     *int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// TeamMember is an invitation or, once accepted, a membership. UserID is
// nil until acceptance; InvitationToken is cleared on acceptance.
type TeamMember struct {
	ID              string
	TeamID          string
	UserID          *string
	Email           string
	Role            MemberRole
	Status          MemberStatus
	InvitationToken *string
	CreatedAt       time.Time
}

// Project is personal when TeamID is nil.
type Project struct {
	ID          string
	UserID      string
	TeamID      *string
	Name        string
	Description string
	Model       string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsPersonal reports whether the project belongs to a single user.
func (p *Project) IsPersonal() bool { return p.TeamID == nil }

// Document is one chunk. Chunks sharing GroupID came from one ingestion and
// share Title and ProjectID. Embedding may be nil.
type Document struct {
	ID        string
	ProjectID string
	GroupID   string
	Title     string
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// DocumentGroup summarizes the chunks of one ingestion.
type DocumentGroup struct {
	GroupID    string
	Title      string
	CreatedAt  time.Time
	ChunkCount int
}

type Conversation struct {
	ID        string
	ProjectID string
	UserID    string
	Title     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is append-only. UserID is nil for assistant messages.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Metadata       map[string]any
	UserID         *string
	CreatedAt      time.Time
}

type Users interface {
	Get(ctx context.Context, id string) (*User, error)
	// GetMany returns the users that exist among ids, in no particular order.
	GetMany(ctx context.Context, ids []string) ([]User, error)
	// Upsert inserts the user or updates email, name, picture and paid flag.
	Upsert(ctx context.Context, u *User) error
	SetOpenRouterKey(ctx context.Context, id, hash, encrypted string) error
}

type Teams interface {
	Get(ctx context.Context, id string) (*Team, error)
	Create(ctx context.Context, t *Team) error
	ListOwned(ctx context.Context, userID string) ([]Team, error)
	ListByIDs(ctx context.Context, ids []string) ([]Team, error)
	SetOpenRouterKey(ctx context.Context, id, hash, encrypted string, budgetCents int) error
	SetBudget(ctx context.Context, id string, budgetCents int) error
}

type Members interface {
	Get(ctx context.Context, id string) (*TeamMember, error)
	GetByToken(ctx context.Context, token string) (*TeamMember, error)
	// FindByEmail matches email case-insensitively within a team.
	FindByEmail(ctx context.Context, teamID, email string) (*TeamMember, error)
	// FindAccepted returns the accepted membership of userID in teamID.
	FindAccepted(ctx context.Context, teamID, userID string) (*TeamMember, error)
	ListByTeam(ctx context.Context, teamID string) ([]TeamMember, error)
	ListAcceptedForUser(ctx context.Context, userID string) ([]TeamMember, error)
	Create(ctx context.Context, m *TeamMember) error
	UpdateRole(ctx context.Context, id string, role MemberRole) error
	// Accept sets userID and status accepted and clears the token. It
	// returns ErrNotFound unless the row is still pending.
	Accept(ctx context.Context, id, userID string) error
	Delete(ctx context.Context, id string) error
}

type Projects interface {
	Get(ctx context.Context, id string) (*Project, error)
	Create(ctx context.Context, p *Project) error
	// ListPersonal returns userID's projects without a team, newest first.
	ListPersonal(ctx context.Context, userID string) ([]Project, error)
	// ListByTeams returns projects of the given teams, newest first.
	ListByTeams(ctx context.Context, teamIDs []string) ([]Project, error)
}

type Documents interface {
	InsertBatch(ctx context.Context, docs []Document) error
	Get(ctx context.Context, id string) (*Document, error)
	// ListByProject returns chunks newest first, without embeddings.
	ListByProject(ctx context.Context, projectID string) ([]Document, error)
	// ListGroups orders groups by their earliest chunk, newest first.
	ListGroups(ctx context.Context, projectID string) ([]DocumentGroup, error)
	DeleteGroup(ctx context.Context, projectID, groupID string) ([]Document, error)
	Delete(ctx context.Context, id string) (*Document, error)
}

type Conversations interface {
	Get(ctx context.Context, id string) (*Conversation, error)
	Create(ctx context.Context, c *Conversation) error
	// ListByProject orders by UpdatedAt descending.
	ListByProject(ctx context.Context, projectID string) ([]Conversation, error)
	// Touch sets UpdatedAt, and Title when title is non-empty and the stored title is empty.
	Touch(ctx context.Context, id string, at time.Time, title string) error
	// Delete removes the conversation and its messages.
	Delete(ctx context.Context, id string) error
}

type Messages interface {
	Create(ctx context.Context, m *Message) error
	// ListByConversation orders by CreatedAt ascending.
	ListByConversation(ctx context.Context, conversationID string) ([]Message, error)
	// AuthorIDs returns the distinct user ids that wrote messages, per conversation.
	AuthorIDs(ctx context.Context, conversationIDs []string) (map[string][]string, error)
}

// Store aggregates the repositories.
type Store interface {
	Users() Users
	Teams() Teams
	Members() Members
	Projects() Projects
	Documents() Documents
	Conversations() Conversations
	Messages() Messages

	// WithinTx runs fn in one transaction. fn must use the Store it receives.
	// Returning an error rolls back.
	WithinTx(ctx context.Context, fn func(Store) error) error

	Close() error
}
