package model

import "time"

// AgentOutputDocument 是 agent_outputs 在 Elasticsearch 中的索引文档，用于后台全文检索。
type AgentOutputDocument struct {
	OutputID       string    `json:"output_id"`
	ConversationID string    `json:"conversation_id"`
	AgentSlug      string    `json:"agent_slug"`
	Summary        string    `json:"summary"`
	FitLabel       string    `json:"fit_label"`
	CompanyName    string    `json:"company_name"`
	FounderName    string    `json:"founder_name"`
	FounderEmail   string    `json:"founder_email"`
	Connectors     string    `json:"connectors"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewAgentOutputDocument 把数据库记录展平成索引文档。
func NewAgentOutputDocument(o *AgentOutput) AgentOutputDocument {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return AgentOutputDocument{
		OutputID:       o.ID,
		ConversationID: deref(o.ConversationID),
		AgentSlug:      o.AgentSlug,
		Summary:        o.Summary,
		FitLabel:       deref(o.FitLabel),
		CompanyName:    deref(o.CompanyName),
		FounderName:    deref(o.FounderName),
		FounderEmail:   deref(o.FounderEmail),
		Connectors:     deref(o.Connectors),
		CreatedAt:      o.CreatedAt,
	}
}
