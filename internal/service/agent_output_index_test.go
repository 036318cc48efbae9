package service

import (
	"context"
	"errors"
	"testing"

	"fundraising-school-go/internal/evaluation"
	"fundraising-school-go/internal/model"
	"fundraising-school-go/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubIndex struct {
	indexed   []model.AgentOutputDocument
	deleted   []string
	hits      []string
	searchErr error
	queries   []string
}

func (s *stubIndex) IndexOutput(_ context.Context, doc model.AgentOutputDocument) error {
	s.indexed = append(s.indexed, doc)
	return nil
}

func (s *stubIndex) DeleteOutput(_ context.Context, outputID string) error {
	s.deleted = append(s.deleted, outputID)
	return nil
}

func (s *stubIndex) SearchOutputIDs(_ context.Context, agentSlug, query string, _ int) ([]string, error) {
	s.queries = append(s.queries, agentSlug+":"+query)
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.hits, nil
}

func newIndexedOutputService(db *gorm.DB, idx OutputIndex) AgentOutputService {
	return NewAgentOutputService(
		repository.NewAgentOutputRepository(db),
		newConversationService(db),
		&stubEvaluator{},
		NewEventService(repository.NewAiEventRepository(db)),
		idx,
		nil,
		nil,
	)
}

func TestUpsertRemovesReplacedOutputsFromIndex(t *testing.T) {
	db := newTestDB(t)
	idx := &stubIndex{}
	outputs := newIndexedOutputService(db, idx)
	ctx := context.Background()
	convID := uuid.NewString()

	first, err := outputs.Upsert(ctx, convID, model.AgentFriendlyVCAnalyst, evaluation.Result{Summary: "first"}, nil)
	require.NoError(t, err)
	assert.Empty(t, idx.deleted)

	second, err := outputs.Upsert(ctx, convID, model.AgentFriendlyVCAnalyst, evaluation.Result{Summary: "second", CompanyName: "FlowCo"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{first.ID}, idx.deleted)
	require.Len(t, idx.indexed, 2)
	assert.Equal(t, second.ID, idx.indexed[1].OutputID)
	assert.Equal(t, convID, idx.indexed[1].ConversationID)
	assert.Equal(t, "FlowCo", idx.indexed[1].CompanyName)
}

func TestListUsesIndexHitsInOrder(t *testing.T) {
	db := newTestDB(t)
	idx := &stubIndex{}
	outputs := newIndexedOutputService(db, idx)
	ctx := context.Background()

	a, err := outputs.Upsert(ctx, uuid.NewString(), model.AgentFriendlyVCAnalyst, evaluation.Result{Summary: "alpha"}, nil)
	require.NoError(t, err)
	b, err := outputs.Upsert(ctx, uuid.NewString(), model.AgentFriendlyVCAnalyst, evaluation.Result{Summary: "beta"}, nil)
	require.NoError(t, err)

	// 索引里命中但数据库已不存在的 id 直接跳过
	idx.hits = []string{b.ID, uuid.NewString(), a.ID}
	rows, err := outputs.List(ctx, "", "payables")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, b.ID, rows[0].ID)
	assert.Equal(t, a.ID, rows[1].ID)
	assert.Equal(t, []string{model.AgentFriendlyVCAnalyst + ":payables"}, idx.queries)
}

func TestListFallsBackToLikeWhenIndexFails(t *testing.T) {
	db := newTestDB(t)
	idx := &stubIndex{searchErr: errors.New("es down")}
	outputs := newIndexedOutputService(db, idx)
	ctx := context.Background()

	_, err := outputs.Upsert(ctx, uuid.NewString(), model.AgentFriendlyVCAnalyst, evaluation.Result{Summary: "AP automation", CompanyName: "FlowCo"}, nil)
	require.NoError(t, err)
	_, err = outputs.Upsert(ctx, uuid.NewString(), model.AgentFriendlyVCAnalyst, evaluation.Result{Summary: "Dev tooling", CompanyName: "Buildkit"}, nil)
	require.NoError(t, err)

	rows, err := outputs.List(ctx, model.AgentFriendlyVCAnalyst, "flow")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "FlowCo", *rows[0].CompanyName)
	assert.Len(t, idx.queries, 1)
}
