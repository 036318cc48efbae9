package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fundraising-school-go/internal/evaluation"
	"fundraising-school-go/internal/model"
	"fundraising-school-go/internal/repository"
	"fundraising-school-go/pkg/log"
	"fundraising-school-go/pkg/metrics"
)

const outputListLimit = 500

var csvHeader = []string{
	"Created At",
	"Company Name",
	"Founder Name",
	"Founder Email",
	"Founder Phone",
	"Fit Label",
	"Connectors",
	"Summary",
}

// OutputIndex 是 agent 输出的全文索引，由 pkg/es 实现。
type OutputIndex interface {
	IndexOutput(ctx context.Context, doc model.AgentOutputDocument) error
	DeleteOutput(ctx context.Context, outputID string) error
	SearchOutputIDs(ctx context.Context, agentSlug, query string, size int) ([]string, error)
}

// ExportArchive 保存导出文件并返回下载链接，由 pkg/storage 实现。
type ExportArchive interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// OutputPatch 是后台手工修改的字段，nil 或空白表示清空。
type OutputPatch struct {
	Connectors   *string `json:"connectors"`
	FitLabel     *string `json:"fitLabel"`
	FounderEmail *string `json:"founderEmail"`
	FounderPhone *string `json:"founderPhone"`
	FounderName  *string `json:"founderName"`
	CompanyName  *string `json:"companyName"`
}

// RebuildResult 是手动重新评估的结果。
type RebuildResult struct {
	Success    bool               `json:"success"`
	Evaluation map[string]any     `json:"evaluation"`
	Normalized evaluation.Result  `json:"normalized"`
	Output     *model.AgentOutput `json:"output"`
}

// ArchiveResult 是一次归档导出的对象名和下载链接。
type ArchiveResult struct {
	Object string `json:"object"`
	URL    string `json:"url"`
}

// AgentOutputService 管理评估结论：写入、检索、导出、手工修改与重建。
type AgentOutputService interface {
	Upsert(ctx context.Context, conversationID, agentSlug string, result evaluation.Result, metadata map[string]any) (*model.AgentOutput, error)
	List(ctx context.Context, agentSlug, query string) ([]model.AgentOutput, error)
	ExportCSV(ctx context.Context, agentSlug string) ([]byte, string, error)
	Archive(ctx context.Context, agentSlug string) (*ArchiveResult, error)
	Patch(ctx context.Context, id string, patch OutputPatch) (*model.AgentOutput, error)
	Rebuild(ctx context.Context, id, promptOverride string) (*RebuildResult, error)
}

type agentOutputService struct {
	outputs       repository.AgentOutputRepository
	conversations ConversationService
	evaluator     evaluation.Evaluator
	events        EventService
	index         OutputIndex
	archive       ExportArchive
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewAgentOutputService 创建服务。index 和 archive 可以为 nil，表示对应功能未启用。
func NewAgentOutputService(
	outputs repository.AgentOutputRepository,
	conversations ConversationService,
	evaluator evaluation.Evaluator,
	events EventService,
	index OutputIndex,
	archive ExportArchive,
	m *metrics.Metrics,
) AgentOutputService {
	return &agentOutputService{
		outputs:       outputs,
		conversations: conversations,
		evaluator:     evaluator,
		events:        events,
		index:         index,
		archive:       archive,
		metrics:       m,
		now:           time.Now,
	}
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func nullablePtr(p *string) *string {
	if p == nil {
		return nil
	}
	return nullable(*p)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func defaultOutputAgent(agentSlug string) string {
	if agentSlug = strings.TrimSpace(agentSlug); agentSlug == "" {
		return model.AgentFriendlyVCAnalyst
	}
	return agentSlug
}

func (s *agentOutputService) Upsert(ctx context.Context, conversationID, agentSlug string, result evaluation.Result, metadata map[string]any) (*model.AgentOutput, error) {
	summary := strings.TrimSpace(result.Summary)
	if summary == "" {
		summary = evaluation.FallbackSummary
	}
	output := &model.AgentOutput{
		ConversationID: nullable(conversationID),
		AgentSlug:      agentSlug,
		Summary:        summary,
		FitLabel:       nullable(result.FitLabel),
		CompanyName:    nullable(result.CompanyName),
		FounderName:    nullable(result.FounderName),
		FounderEmail:   nullable(result.FounderEmail),
		FounderPhone:   nullable(result.FounderPhone),
		Connectors:     nullable(result.ConnectorsText),
		Metadata:       toJSON(metadata),
	}
	replaced, err := s.outputs.ReplaceForConversation(ctx, output)
	if err != nil {
		return nil, fmt.Errorf("写入 agent 输出失败: %w", err)
	}
	s.syncIndex(ctx, output, replaced)
	return output, nil
}

// syncIndex 同步 Elasticsearch，失败只记录日志，数据库仍是唯一的事实来源。
func (s *agentOutputService) syncIndex(ctx context.Context, output *model.AgentOutput, removed []string) {
	if s.index == nil {
		return
	}
	for _, id := range removed {
		if err := s.index.DeleteOutput(ctx, id); err != nil {
			log.Warnw("删除过期索引文档失败", "outputId", id, "error", err)
		}
	}
	if err := s.index.IndexOutput(ctx, model.NewAgentOutputDocument(output)); err != nil {
		log.Warnw("索引 agent 输出失败", "outputId", output.ID, "error", err)
	}
}

func (s *agentOutputService) List(ctx context.Context, agentSlug, query string) ([]model.AgentOutput, error) {
	agentSlug = defaultOutputAgent(agentSlug)
	query = strings.TrimSpace(query)
	if query == "" {
		return s.outputs.List(ctx, agentSlug, outputListLimit)
	}
	if s.index != nil {
		ids, err := s.index.SearchOutputIDs(ctx, agentSlug, query, outputListLimit)
		if err == nil {
			return s.outputs.FindByIDs(ctx, ids)
		}
		log.Warnw("Elasticsearch 检索失败，回退到数据库模糊查询", "agent", agentSlug, "error", err)
	}
	return s.outputs.Search(ctx, agentSlug, query, outputListLimit)
}

func csvQuote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// ExportCSV 导出最近 500 条结论，每个单元格都加引号，引荐人里的换行替换为 "; "。
func (s *agentOutputService) ExportCSV(ctx context.Context, agentSlug string) ([]byte, string, error) {
	agentSlug = defaultOutputAgent(agentSlug)
	rows, err := s.outputs.List(ctx, agentSlug, outputListLimit)
	if err != nil {
		return nil, "", err
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(csvHeader, ","))
	for _, row := range rows {
		connectors := strings.ReplaceAll(deref(row.Connectors), "\r\n", "; ")
		connectors = strings.ReplaceAll(connectors, "\n", "; ")
		fields := []string{
			row.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
			deref(row.CompanyName),
			deref(row.FounderName),
			deref(row.FounderEmail),
			deref(row.FounderPhone),
			deref(row.FitLabel),
			connectors,
			row.Summary,
		}
		for i, f := range fields {
			fields[i] = csvQuote(f)
		}
		lines = append(lines, strings.Join(fields, ","))
	}
	return []byte(strings.Join(lines, "\n")), agentSlug + "-outputs.csv", nil
}

func (s *agentOutputService) Archive(ctx context.Context, agentSlug string) (*ArchiveResult, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	data, _, err := s.ExportCSV(ctx, agentSlug)
	if err != nil {
		return nil, err
	}
	object := fmt.Sprintf("exports/%s/%s.csv", defaultOutputAgent(agentSlug), s.now().UTC().Format("20060102T150405Z"))
	url, err := s.archive.Upload(ctx, object, data, "text/csv; charset=utf-8")
	if err != nil {
		return nil, fmt.Errorf("归档导出文件失败: %w", err)
	}
	log.Infow("导出文件已归档", "object", object, "bytes", len(data))
	return &ArchiveResult{Object: object, URL: url}, nil
}

func (s *agentOutputService) findOutput(ctx context.Context, id string) (*model.AgentOutput, error) {
	output, err := s.outputs.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOutputNotFound
	}
	return output, err
}

func (s *agentOutputService) Patch(ctx context.Context, id string, patch OutputPatch) (*model.AgentOutput, error) {
	output, err := s.findOutput(ctx, id)
	if err != nil {
		return nil, err
	}
	output.Connectors = nullablePtr(patch.Connectors)
	output.FitLabel = nullablePtr(patch.FitLabel)
	output.FounderEmail = nullablePtr(patch.FounderEmail)
	output.FounderPhone = nullablePtr(patch.FounderPhone)
	output.FounderName = nullablePtr(patch.FounderName)
	output.CompanyName = nullablePtr(patch.CompanyName)
	if err := s.outputs.Save(ctx, output); err != nil {
		return nil, fmt.Errorf("更新 agent 输出失败: %w", err)
	}
	s.syncIndex(ctx, output, nil)
	return output, nil
}

func pick(newValue string, old *string) *string {
	if v := nullable(newValue); v != nil {
		return v
	}
	return old
}

// Rebuild 用完整对话重新评估，新结论中为空的字段保留旧值。
func (s *agentOutputService) Rebuild(ctx context.Context, id, promptOverride string) (*RebuildResult, error) {
	output, err := s.findOutput(ctx, id)
	if err != nil {
		return nil, err
	}
	if output.ConversationID == nil {
		return nil, ErrOutputConversationMissing
	}
	if _, err := s.conversations.Get(ctx, *output.ConversationID, nil); err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil, ErrOutputConversationMissing
		}
		return nil, err
	}
	history, err := s.conversations.History(ctx, *output.ConversationID)
	if err != nil {
		return nil, err
	}

	ev, err := s.evaluator.Evaluate(ctx, history, promptOverride)
	if err != nil {
		s.metrics.RecordEvaluation("rebuild", "error")
		return nil, err
	}
	normalized := evaluation.Normalize(ev.Raw, output.Summary)

	output.Summary = deref(pick(normalized.Summary, &output.Summary))
	output.FitLabel = pick(normalized.FitLabel, output.FitLabel)
	output.CompanyName = pick(normalized.CompanyName, output.CompanyName)
	output.FounderName = pick(normalized.FounderName, output.FounderName)
	output.FounderEmail = pick(normalized.FounderEmail, output.FounderEmail)
	output.FounderPhone = pick(normalized.FounderPhone, output.FounderPhone)
	output.Connectors = pick(normalized.ConnectorsText, output.Connectors)

	metadata := map[string]any{}
	if len(output.Metadata) > 0 {
		if err := json.Unmarshal(output.Metadata, &metadata); err != nil || metadata == nil {
			metadata = map[string]any{}
		}
	}
	metadata["lastRebuild"] = s.now().UTC().Format(time.RFC3339Nano)
	metadata["evaluation"] = ev.Raw
	metadata["normalized"] = normalized
	output.Metadata = toJSON(metadata)

	if err := s.outputs.Save(ctx, output); err != nil {
		return nil, fmt.Errorf("保存重建结果失败: %w", err)
	}
	s.syncIndex(ctx, output, nil)
	s.metrics.RecordEvaluation("rebuild", "success")

	s.events.Log(ctx, EventRecord{
		RequestID:      output.ID,
		ConversationID: output.ConversationID,
		EventType:      model.EventEvaluation,
		Status:         model.EventStatusSuccess,
		Model:          "rebuild",
		TokenUsage:     ev.Usage,
		Metadata: map[string]any{
			"agentSlug": output.AgentSlug,
			"mode":      "manual-sidebar",
			"outputId":  output.ID,
		},
	})

	return &RebuildResult{Success: true, Evaluation: ev.Raw, Normalized: normalized, Output: output}, nil
}
