package postgres

import (
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"

	"github.com/Noctocode/worken-ai/internal/store"
)

// GORM models. Columns mirror store types one to one.

type userModel struct {
	ID                     string `gorm:"type:uuid;primaryKey"`
	Email                  string `gorm:"not null;index"`
	Name                   string `gorm:"not null"`
	Picture                string
	IsPaid                 bool    `gorm:"not null;default:false"`
	OpenRouterKeyHash      *string `gorm:"column:openrouter_key_id"`
	OpenRouterKeyEncrypted *string `gorm:"column:openrouter_key_encrypted"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (userModel) TableName() string { return "users" }

type teamModel struct {
	ID                     string  `gorm:"type:uuid;primaryKey"`
	Name                   string  `gorm:"not null"`
	OwnerID                string  `gorm:"type:uuid;not null;index"`
	OpenRouterKeyHash      *string `gorm:"column:openrouter_key_id"`
	OpenRouterKeyEncrypted *string `gorm:"column:openrouter_key_encrypted"`
	MonthlyBudgetCents     *int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (teamModel) TableName() string { return "teams" }

type memberModel struct {
	ID              string  `gorm:"type:uuid;primaryKey"`
	TeamID          string  `gorm:"type:uuid;not null;index"`
	UserID          *string `gorm:"type:uuid;index"`
	Email           string  `gorm:"not null"`
	Role            string  `gorm:"not null;default:basic"`
	Status          string  `gorm:"not null;default:pending"`
	InvitationToken *string `gorm:"uniqueIndex"`
	CreatedAt       time.Time
}

func (memberModel) TableName() string { return "team_members" }

type projectModel struct {
	ID          string  `gorm:"type:uuid;primaryKey"`
	UserID      string  `gorm:"type:uuid;not null;index"`
	TeamID      *string `gorm:"type:uuid;index"`
	Name        string  `gorm:"not null"`
	Description string
	Model       string
	Status      string `gorm:"not null;default:active"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (projectModel) TableName() string { return "projects" }

// documentModel's table is created by migrate with a fixed vector dimension.
type documentModel struct {
	ID        string           `gorm:"type:uuid;primaryKey"`
	ProjectID string           `gorm:"type:uuid;not null"`
	GroupID   string           `gorm:"type:uuid;not null"`
	Title     string           `gorm:"not null"`
	Content   string           `gorm:"type:text;not null"`
	Embedding *pgvector.Vector `gorm:"type:vector"`
	CreatedAt time.Time
}

func (documentModel) TableName() string { return "documents" }

type conversationModel struct {
	ID        string  `gorm:"type:uuid;primaryKey"`
	ProjectID string  `gorm:"type:uuid;not null;index"`
	UserID    string  `gorm:"type:uuid;not null"`
	Title     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (conversationModel) TableName() string { return "conversations" }

type messageModel struct {
	ID             string         `gorm:"type:uuid;primaryKey"`
	ConversationID string         `gorm:"type:uuid;not null;index:idx_messages_conversation_created,priority:1"`
	Role           string         `gorm:"not null"`
	Content        string         `gorm:"type:text;not null"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	UserID         *string        `gorm:"type:uuid"`
	CreatedAt      time.Time      `gorm:"index:idx_messages_conversation_created,priority:2"`
}

func (messageModel) TableName() string { return "messages" }

func (m userModel) toStore() store.User {
	return store.User(m)
}

func fromUser(u *store.User) userModel {
	return userModel(*u)
}

func (m teamModel) toStore() store.Team {
	return store.Team(m)
}

func (m memberModel) toStore() store.TeamMember {
	return store.TeamMember{
		ID:              m.ID,
		TeamID:          m.TeamID,
		UserID:          m.UserID,
		Email:           m.Email,
		Role:            store.MemberRole(m.Role),
		Status:          store.MemberStatus(m.Status),
		InvitationToken: m.InvitationToken,
		CreatedAt:       m.CreatedAt,
	}
}

func fromMember(m *store.TeamMember) memberModel {
	return memberModel{
		ID:              m.ID,
		TeamID:          m.TeamID,
		UserID:          m.UserID,
		Email:           m.Email,
		Role:            string(m.Role),
		Status:          string(m.Status),
		InvitationToken: m.InvitationToken,
		CreatedAt:       m.CreatedAt,
	}
}

func (m projectModel) toStore() store.Project {
	return store.Project(m)
}

func (m documentModel) toStore() store.Document {
	d := store.Document{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		GroupID:   m.GroupID,
		Title:     m.Title,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if m.Embedding != nil {
		d.Embedding = m.Embedding.Slice()
	}
	return d
}

func fromDocument(d *store.Document) documentModel {
	m := documentModel{
		ID:        d.ID,
		ProjectID: d.ProjectID,
		GroupID:   d.GroupID,
		Title:     d.Title,
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
	}
	if d.Embedding != nil {
		v := pgvector.NewVector(d.Embedding)
		m.Embedding = &v
	}
	return m
}

func (m conversationModel) toStore() store.Conversation {
	return store.Conversation(m)
}

func (m messageModel) toStore() (store.Message, error) {
	msg := store.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		UserID:         m.UserID,
		CreatedAt:      m.CreatedAt,
	}
	if len(m.Metadata) > 0 && string(m.Metadata) != "null" {
		if err := json.Unmarshal(m.Metadata, &msg.Metadata); err != nil {
			return msg, err
		}
	}
	return msg, nil
}

func fromMessage(m *store.Message) (messageModel, error) {
	model := messageModel{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		UserID:         m.UserID,
		CreatedAt:      m.CreatedAt,
	}
	if m.Metadata != nil {
		raw, err := json.Marshal(m.Metadata)
		if err != nil {
			return model, err
		}
		model.Metadata = datatypes.JSON(raw)
	}
	return model, nil
}
