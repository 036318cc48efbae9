package repository

import (
	"context"
	"testing"
	"time"

	"fundraising-school-go/internal/model"
	"fundraising-school-go/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

func TestMessageAppendSequence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	convs := NewConversationRepository(db)
	msgs := NewMessageRepository(db)

	conv := &model.Conversation{AgentSlug: model.AgentSalesCoach, PromptVersion: "v1"}
	require.NoError(t, convs.Create(ctx, conv))

	for i := 1; i <= 3; i++ {
		m := &model.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: "hi"}
		require.NoError(t, msgs.Append(ctx, m))
		assert.Equal(t, i, m.Sequence)
	}

	dup := &model.Message{ConversationID: conv.ID, Role: model.RoleAssistant, Content: "x", Sequence: 2}
	assert.ErrorIs(t, msgs.Create(ctx, dup), ErrDuplicate)

	list, err := msgs.ListByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, m := range list {
		assert.Equal(t, i+1, m.Sequence)
	}
}

func TestCountAssistantSince(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	convs := NewConversationRepository(db)
	msgs := NewMessageRepository(db)

	mine := &model.Conversation{UserID: strPtr("u1"), AgentSlug: model.AgentSalesCoach}
	theirs := &model.Conversation{UserID: strPtr("u2"), AgentSlug: model.AgentSalesCoach}
	require.NoError(t, convs.Create(ctx, mine))
	require.NoError(t, convs.Create(ctx, theirs))

	for _, c := range []*model.Conversation{mine, mine, theirs} {
		require.NoError(t, msgs.Append(ctx, &model.Message{ConversationID: c.ID, Role: model.RoleAssistant, Content: "a"}))
	}
	require.NoError(t, msgs.Append(ctx, &model.Message{ConversationID: mine.ID, Role: model.RoleUser, Content: "u"}))

	since := time.Now().UTC().Add(-time.Minute)
	n, err := msgs.CountAssistantSince(ctx, strPtr("u1"), since)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = msgs.CountAssistantSince(ctx, nil, since)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = msgs.CountAssistantSince(ctx, nil, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestConversationScopeUpdateAndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	convs := NewConversationRepository(db)
	msgs := NewMessageRepository(db)
	outputs := NewAgentOutputRepository(db)

	conv := &model.Conversation{UserID: strPtr("u1"), AgentSlug: model.AgentFriendlyVCAnalyst}
	require.NoError(t, convs.Create(ctx, conv))
	require.NoError(t, msgs.Append(ctx, &model.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: "hi"}))
	out := &model.AgentOutput{ConversationID: strPtr(conv.ID), AgentSlug: conv.AgentSlug, Summary: "s"}
	_, err := outputs.ReplaceForConversation(ctx, out)
	require.NoError(t, err)

	_, err = convs.FindByID(ctx, conv.ID, strPtr("u2"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, convs.UpdateMeta(ctx, conv.ID, ConversationMeta{Title: "First", PromptVersion: "v2", LastInteractedAt: time.Now().UTC()}))
	require.NoError(t, convs.UpdateMeta(ctx, conv.ID, ConversationMeta{Title: "Second", LastInteractedAt: time.Now().UTC()}))
	got, err := convs.FindByID(ctx, conv.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, "v2", got.PromptVersion)

	assert.ErrorIs(t, convs.Delete(ctx, conv.ID, strPtr("u2")), ErrNotFound)
	require.NoError(t, convs.Delete(ctx, conv.ID, strPtr("u1")))

	_, err = convs.FindByID(ctx, conv.ID, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	list, err := msgs.ListByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	kept, err := outputs.FindByID(ctx, out.ID)
	require.NoError(t, err)
	assert.Nil(t, kept.ConversationID)
}

func TestListByOwnerOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	convs := NewConversationRepository(db)

	base := time.Now().UTC()
	older := &model.Conversation{UserID: strPtr("u1"), AgentSlug: model.AgentSalesCoach, LastInteractedAt: base.Add(-time.Hour)}
	newer := &model.Conversation{UserID: strPtr("u1"), AgentSlug: model.AgentSalesCoach, LastInteractedAt: base}
	analyst := &model.Conversation{UserID: strPtr("u1"), AgentSlug: model.AgentFriendlyVCAnalyst, LastInteractedAt: base}
	for _, c := range []*model.Conversation{older, newer, analyst} {
		require.NoError(t, convs.Create(ctx, c))
	}

	list, err := convs.ListByOwner(ctx, "u1", model.AgentSalesCoach)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	all, err := convs.ListByOwner(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPromptDuplicateAndLatest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	prompts := NewCachedPromptRepository(NewPromptRepository(db), nil, time.Minute)

	_, err := prompts.Latest(ctx, model.AgentSalesCoach)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, prompts.Create(ctx, &model.Prompt{AgentSlug: model.AgentSalesCoach, Version: "v1", Content: "one"}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, prompts.Create(ctx, &model.Prompt{AgentSlug: model.AgentSalesCoach, Version: "v2", Content: "two"}))
	assert.ErrorIs(t, prompts.Create(ctx, &model.Prompt{AgentSlug: model.AgentSalesCoach, Version: "v1", Content: "changed"}), ErrDuplicate)

	latest, err := prompts.Latest(ctx, model.AgentSalesCoach)
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.Version)

	list, err := prompts.ListByAgent(ctx, model.AgentSalesCoach)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "one", list[1].Content)
}

func TestAgentEnsureIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	agents := NewAgentRepository(db)

	a, err := agents.Ensure(ctx, model.Agent{Slug: "sales-coach", Name: "Sales Coach"})
	require.NoError(t, err)
	b, err := agents.Ensure(ctx, model.Agent{Slug: "sales-coach", Name: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "Sales Coach", b.Name)

	list, err := agents.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAgentOutputReplaceAndSearch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	outputs := NewAgentOutputRepository(db)

	convID := uuid.NewString()
	first := &model.AgentOutput{ConversationID: &convID, AgentSlug: model.AgentFriendlyVCAnalyst, Summary: "old"}
	replaced, err := outputs.ReplaceForConversation(ctx, first)
	require.NoError(t, err)
	assert.Empty(t, replaced)
	second := &model.AgentOutput{ConversationID: &convID, AgentSlug: model.AgentFriendlyVCAnalyst, Summary: "new", CompanyName: strPtr("FlowCo")}
	replaced, err = outputs.ReplaceForConversation(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, replaced)

	list, err := outputs.List(ctx, model.AgentFriendlyVCAnalyst, 500)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].Summary)

	hits, err := outputs.Search(ctx, model.AgentFriendlyVCAnalyst, "Flow", 500)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	hits, err = outputs.Search(ctx, model.AgentFriendlyVCAnalyst, "nothing", 500)
	require.NoError(t, err)
	assert.Empty(t, hits)

	byIDs, err := outputs.FindByIDs(ctx, []string{"missing", second.ID})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)
	assert.Equal(t, second.ID, byIDs[0].ID)
}

func TestAdminUserDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admins := NewAdminUserRepository(db)

	require.NoError(t, admins.Create(ctx, &model.AdminUser{Email: "a@30x.vc", Role: model.AdminRoleAdmin}))
	assert.ErrorIs(t, admins.Create(ctx, &model.AdminUser{Email: "a@30x.vc"}), ErrDuplicate)

	_, err := admins.FindByEmail(ctx, "b@30x.vc")
	assert.ErrorIs(t, err, ErrNotFound)
	all, err := admins.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
