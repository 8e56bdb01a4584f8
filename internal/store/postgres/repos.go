package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Noctocode/worken-ai/internal/store"
)

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

type users struct{ db *gorm.DB }

func (r users) Get(ctx context.Context, id string) (*store.User, error) {
	var m userModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	u := m.toStore()
	return &u, nil
}

func (r users) GetMany(ctx context.Context, ids []string) ([]store.User, error) {
	out := []store.User{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []userModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	for _, m := range rows {
		out = append(out, m.toStore())
	}
	return out, nil
}

func (r users) Upsert(ctx context.Context, u *store.User) error {
	u.ID = newID(u.ID)
	m := fromUser(u)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "picture", "is_paid", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return translate(err)
	}
	stored, err := r.Get(ctx, u.ID)
	if err != nil {
		return err
	}
	*u = *stored
	return nil
}

func (r users) SetOpenRouterKey(ctx context.Context, id, hash, encrypted string) error {
	return affected(r.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", id).Updates(map[string]any{
		"openrouter_key_id":        hash,
		"openrouter_key_encrypted": encrypted,
	}))
}

type teams struct{ db *gorm.DB }

func (r teams) Get(ctx context.Context, id string) (*store.Team, error) {
	var m teamModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	t := m.toStore()
	return &t, nil
}

func (r teams) Create(ctx context.Context, t *store.Team) error {
	t.ID = newID(t.ID)
	m := teamModel(*t)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err)
	}
	*t = m.toStore()
	return nil
}

func (r teams) list(ctx context.Context, query string, args ...any) ([]store.Team, error) {
	var rows []teamModel
	if err := r.db.WithContext(ctx).Where(query, args...).Order("created_at").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]store.Team, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toStore())
	}
	return out, nil
}

func (r teams) ListOwned(ctx context.Context, userID string) ([]store.Team, error) {
	return r.list(ctx, "owner_id = ?", userID)
}

func (r teams) ListByIDs(ctx context.Context, ids []string) ([]store.Team, error) {
	if len(ids) == 0 {
		return []store.Team{}, nil
	}
	return r.list(ctx, "id IN ?", ids)
}

func (r teams) SetOpenRouterKey(ctx context.Context, id, hash, encrypted string, budgetCents int) error {
	return affected(r.db.WithContext(ctx).Model(&teamModel{}).Where("id = ?", id).Updates(map[string]any{
		"openrouter_key_id":        hash,
		"openrouter_key_encrypted": encrypted,
		"monthly_budget_cents":     budgetCents,
	}))
}

func (r teams) SetBudget(ctx context.Context, id string, budgetCents int) error {
	return affected(r.db.WithContext(ctx).Model(&teamModel{}).Where("id = ?", id).
		Update("monthly_budget_cents", budgetCents))
}

type members struct{ db *gorm.DB }

func (r members) first(ctx context.Context, query string, args ...any) (*store.TeamMember, error) {
	var m memberModel
	if err := r.db.WithContext(ctx).Where(query, args...).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	tm := m.toStore()
	return &tm, nil
}

func (r members) Get(ctx context.Context, id string) (*store.TeamMember, error) {
	return r.first(ctx, "id = ?", id)
}

func (r members) GetByToken(ctx context.Context, token string) (*store.TeamMember, error) {
	return r.first(ctx, "invitation_token = ?", token)
}

func (r members) FindByEmail(ctx context.Context, teamID, email string) (*store.TeamMember, error) {
	return r.first(ctx, "team_id = ? AND lower(email) = lower(?)", teamID, email)
}

func (r members) FindAccepted(ctx context.Context, teamID, userID string) (*store.TeamMember, error) {
	return r.first(ctx, "team_id = ? AND user_id = ? AND status = ?", teamID, userID, store.StatusAccepted)
}

func (r members) list(ctx context.Context, query string, args ...any) ([]store.TeamMember, error) {
	var rows []memberModel
	if err := r.db.WithContext(ctx).Where(query, args...).Order("created_at").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]store.TeamMember, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toStore())
	}
	return out, nil
}

func (r members) ListByTeam(ctx context.Context, teamID string) ([]store.TeamMember, error) {
	return r.list(ctx, "team_id = ?", teamID)
}

func (r members) ListAcceptedForUser(ctx context.Context, userID string) ([]store.TeamMember, error) {
	return r.list(ctx, "user_id = ? AND status = ?", userID, store.StatusAccepted)
}

func (r members) Create(ctx context.Context, m *store.TeamMember) error {
	m.ID = newID(m.ID)
	model := fromMember(m)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translate(err)
	}
	*m = model.toStore()
	return nil
}

func (r members) UpdateRole(ctx context.Context, id string, role store.MemberRole) error {
	return affected(r.db.WithContext(ctx).Model(&memberModel{}).Where("id = ?", id).Update("role", string(role)))
}

func (r members) Accept(ctx context.Context, id, userID string) error {
	return affected(r.db.WithContext(ctx).Model(&memberModel{}).
		Where("id = ? AND status = ?", id, store.StatusPending).
		Updates(map[string]any{
			"user_id":          userID,
			"status":           string(store.StatusAccepted),
			"invitation_token": gorm.Expr("NULL"),
		}))
}

func (r members) Delete(ctx context.Context, id string) error {
	return affected(r.db.WithContext(ctx).Delete(&memberModel{}, "id = ?", id))
}

type projects struct{ db *gorm.DB }

func (r projects) Get(ctx context.Context, id string) (*store.Project, error) {
	var m projectModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	p := m.toStore()
	return &p, nil
}

func (r projects) Create(ctx context.Context, p *store.Project) error {
	p.ID = newID(p.ID)
	if p.Status == "" {
		p.Status = store.ProjectStatusActive
	}
	m := projectModel(*p)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err)
	}
	*p = m.toStore()
	return nil
}

func (r projects) list(ctx context.Context, query string, args ...any) ([]store.Project, error) {
	var rows []projectModel
	if err := r.db.WithContext(ctx).Where(query, args...).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]store.Project, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toStore())
	}
	return out, nil
}

func (r projects) ListPersonal(ctx context.Context, userID string) ([]store.Project, error) {
	return r.list(ctx, "user_id = ? AND team_id IS NULL", userID)
}

func (r projects) ListByTeams(ctx context.Context, teamIDs []string) ([]store.Project, error) {
	if len(teamIDs) == 0 {
		return []store.Project{}, nil
	}
	return r.list(ctx, "team_id IN ?", teamIDs)
}

type documents struct{ db *gorm.DB }

// chunkColumns omits the embedding for listings.
var chunkColumns = []string{"id", "project_id", "group_id", "title", "content", "created_at"}

func (r documents) InsertBatch(ctx context.Context, docs []store.Document) error {
	if len(docs) == 0 {
		return nil
	}
	rows := make([]documentModel, len(docs))
	for i := range docs {
		docs[i].ID = newID(docs[i].ID)
		rows[i] = fromDocument(&docs[i])
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&rows, 100).Error; err != nil {
		return translate(err)
	}
	for i := range rows {
		docs[i].CreatedAt = rows[i].CreatedAt
	}
	return nil
}

func (r documents) Get(ctx context.Context, id string) (*store.Document, error) {
	var m documentModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	d := m.toStore()
	return &d, nil
}

func (r documents) ListByProject(ctx context.Context, projectID string) ([]store.Document, error) {
	var rows []documentModel
	err := r.db.WithContext(ctx).Select(chunkColumns).Where("project_id = ?", projectID).
		Order("created_at DESC, id").Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]store.Document, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toStore())
	}
	return out, nil
}

type groupRow struct {
	GroupID    string
	Title      string
	CreatedAt  time.Time
	ChunkCount int
}

func (r documents) ListGroups(ctx context.Context, projectID string) ([]store.DocumentGroup, error) {
	var rows []groupRow
	err := r.db.WithContext(ctx).Model(&documentModel{}).
		Select("group_id, title, MIN(created_at) AS created_at, COUNT(*) AS chunk_count").
		Where("project_id = ?", projectID).
		Group("group_id, title").
		Order("MIN(created_at) DESC, group_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]store.DocumentGroup, len(rows))
	for i, g := range rows {
		out[i] = store.DocumentGroup(g)
	}
	return out, nil
}

func (r documents) DeleteGroup(ctx context.Context, projectID, groupID string) ([]store.Document, error) {
	var rows []documentModel
	err := r.db.WithContext(ctx).Clauses(clause.Returning{Columns: columns(chunkColumns)}).
		Where("project_id = ? AND group_id = ?", projectID, groupID).
		Delete(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]store.Document, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toStore())
	}
	return out, nil
}

func (r documents) Delete(ctx context.Context, id string) (*store.Document, error) {
	var rows []documentModel
	res := r.db.WithContext(ctx).Clauses(clause.Returning{Columns: columns(chunkColumns)}).
		Where("id = ?", id).Delete(&rows)
	if err := affected(res); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	d := rows[0].toStore()
	return &d, nil
}

func columns(names []string) []clause.Column {
	cols := make([]clause.Column, len(names))
	for i, n := range names {
		cols[i] = clause.Column{Name: n}
	}
	return cols
}

type conversations struct{ db *gorm.DB }

func (r conversations) Get(ctx context.Context, id string) (*store.Conversation, error) {
	var m conversationModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	c := m.toStore()
	return &c, nil
}

func (r conversations) Create(ctx context.Context, c *store.Conversation) error {
	c.ID = newID(c.ID)
	m := conversationModel(*c)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err)
	}
	*c = m.toStore()
	return nil
}

func (r conversations) ListByProject(ctx context.Context, projectID string) ([]store.Conversation, error) {
	var rows []conversationModel
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("updated_at DESC").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]store.Conversation, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toStore())
	}
	return out, nil
}

func (r conversations) Touch(ctx context.Context, id string, at time.Time, title string) error {
	updates := map[string]any{"updated_at": at}
	if title != "" {
		updates["title"] = gorm.Expr("CASE WHEN title IS NULL OR title = '' THEN ? ELSE title END", title)
	}
	return affected(r.db.WithContext(ctx).Model(&conversationModel{}).Where("id = ?", id).UpdateColumns(updates))
}

func (r conversations) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&messageModel{}, "conversation_id = ?", id).Error; err != nil {
			return translate(err)
		}
		return affected(tx.Delete(&conversationModel{}, "id = ?", id))
	})
}

type messages struct{ db *gorm.DB }

func (r messages) Create(ctx context.Context, m *store.Message) error {
	m.ID = newID(m.ID)
	model, err := fromMessage(m)
	if err != nil {
		return fmt.Errorf("encoding message metadata: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translate(err)
	}
	m.CreatedAt = model.CreatedAt
	return nil
}

func (r messages) ListByConversation(ctx context.Context, conversationID string) ([]store.Message, error) {
	var rows []messageModel
	if err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]store.Message, 0, len(rows))
	for _, m := range rows {
		msg, err := m.toStore()
		if err != nil {
			return nil, fmt.Errorf("decoding message %s metadata: %w", m.ID, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r messages) AuthorIDs(ctx context.Context, conversationIDs []string) (map[string][]string, error) {
	out := map[string][]string{}
	if len(conversationIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ConversationID string
		UserID         string
	}
	err := r.db.WithContext(ctx).Model(&messageModel{}).
		Distinct("conversation_id", "user_id").
		Where("conversation_id IN ? AND user_id IS NOT NULL", conversationIDs).
		Order("conversation_id, user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	for _, row := range rows {
		out[row.ConversationID] = append(out[row.ConversationID], row.UserID)
	}
	return out, nil
}
