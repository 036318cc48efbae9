package evaluation

import (
	"fmt"
	"regexp"
	"strings"

	"fundraising-school-go/internal/model"
)

// FallbackSummary 是没有任何可用摘要时写入的占位文本。
const FallbackSummary = "Summary unavailable."

// Connector 是一条推荐的引荐对象。
type Connector struct {
	Name string `json:"name,omitempty"`
	Why  string `json:"why,omitempty"`
}

// Result 是规整后的评估结论。
type Result struct {
	Summary        string         `json:"summary"`
	CompanyName    string         `json:"companyName"`
	FounderName    string         `json:"founderName"`
	FounderEmail   string         `json:"founderEmail"`
	FounderPhone   string         `json:"founderPhone"`
	FitLabel       string         `json:"fitLabel"`
	ConnectorsText string         `json:"connectorsText"`
	ConnectorsList []Connector    `json:"connectorsList"`
	Signals        []string       `json:"signals"`
	Raw            map[string]any `json:"raw,omitempty"`
}

// Normalize 把模型输出的宽松 JSON 规整成 Result，纯函数。
func Normalize(raw map[string]any, fallbackSummary string) Result {
	summary := pickString(raw, "summary", "summaryText", "summary_text")
	if summary == "" {
		summary = fallbackSummary
	}
	connectors := normalizeConnectors(raw["connectors"])
	return Result{
		Summary:        summary,
		CompanyName:    pickString(raw, "companyName", "company_name"),
		FounderName:    pickString(raw, "founderName", "founder_name"),
		FounderEmail:   pickString(raw, "founderEmail", "founder_email"),
		FounderPhone:   pickString(raw, "founderPhone", "founder_phone"),
		FitLabel:       NormalizeFitLabel(pickString(raw, "fitLabel", "fit_label")),
		ConnectorsText: connectorsText(connectors),
		ConnectorsList: connectors,
		Signals:        normalizeSignals(raw["signals"]),
		Raw:            raw,
	}
}

// AsRaw 还原成 Normalize 可以再次接受的输入，Normalize(r.AsRaw(), x) 与 r 等价。
func (r Result) AsRaw() map[string]any {
	connectors := make([]any, 0, len(r.ConnectorsList))
	for _, c := range r.ConnectorsList {
		connectors = append(connectors, map[string]any{"name": c.Name, "why": c.Why})
	}
	signals := make([]any, 0, len(r.Signals))
	for _, s := range r.Signals {
		signals = append(signals, s)
	}
	return map[string]any{
		"summary":      r.Summary,
		"companyName":  r.CompanyName,
		"founderName":  r.FounderName,
		"founderEmail": r.FounderEmail,
		"founderPhone": r.FounderPhone,
		"fitLabel":     r.FitLabel,
		"connectors":   connectors,
		"signals":      signals,
	}
}

func pickString(source map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := source[key].(string); ok {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// NormalizeFitLabel 先做大小写不敏感的精确匹配，再做前缀匹配，都不中返回空串。
func NormalizeFitLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ""
	}
	for _, label := range model.FitLabels {
		if strings.ToLower(label) == normalized {
			return label
		}
	}
	for _, label := range model.FitLabels {
		if strings.HasPrefix(strings.ToLower(label), normalized) {
			return label
		}
	}
	return ""
}

var connectorSplit = regexp.MustCompile(`\n|;`)

func normalizeConnectors(value any) []Connector {
	var entries []any
	switch v := value.(type) {
	case string:
		for _, item := range connectorSplit.Split(v, -1) {
			if item = strings.TrimSpace(item); item != "" {
				entries = append(entries, item)
			}
		}
	case []any:
		entries = v
	case []string:
		for _, s := range v {
			entries = append(entries, s)
		}
	default:
		return []Connector{}
	}

	out := make([]Connector, 0, len(entries))
	for _, entry := range entries {
		if c, ok := toConnector(entry); ok {
			out = append(out, c)
		}
	}
	return out
}

func toConnector(entry any) (Connector, bool) {
	switch v := entry.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return Connector{}, false
		}
		name, why := splitConnector(trimmed)
		if name == "" {
			return Connector{}, false
		}
		return Connector{Name: name, Why: why}, true
	case map[string]any:
		c := Connector{Name: stringify(v["name"]), Why: stringify(v["why"])}
		if c.Name == "" && c.Why == "" {
			return Connector{}, false
		}
		return c, true
	}
	return Connector{}, false
}

// splitConnector 在第一个破折号、连字符或冒号处切分出 name 和 why。
func splitConnector(s string) (string, string) {
	idx := strings.IndexAny(s, "—-:")
	if idx < 0 {
		return strings.TrimSpace(s), ""
	}
	sepLen := 1
	if strings.HasPrefix(s[idx:], "—") {
		sepLen = len("—")
	}
	return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+sepLen:])
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func connectorsText(list []Connector) string {
	lines := make([]string, 0, len(list))
	for _, c := range list {
		switch {
		case c.Name != "" && c.Why != "":
			lines = append(lines, c.Name+" — "+c.Why)
		case c.Name != "":
			lines = append(lines, c.Name)
		case c.Why != "":
			lines = append(lines, c.Why)
		}
	}
	return strings.Join(lines, "\n")
}

func normalizeSignals(value any) []string {
	out := []string{}
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

var fitLinePattern = regexp.MustCompile(`(?i)fit\s*[:\-]\s*(.+)`)

// FallbackFromCompletion 在评估失败时从助手回复原文里提取摘要和 fit label。
func FallbackFromCompletion(text string) Result {
	summary := strings.TrimSpace(text)
	if summary == "" {
		summary = FallbackSummary
	}
	var fit string
	if m := fitLinePattern.FindStringSubmatch(text); m != nil {
		fit = strings.TrimSpace(m[1])
		if label := NormalizeFitLabel(fit); label != "" {
			fit = label
		}
	}
	return Result{
		Summary:        summary,
		FitLabel:       fit,
		ConnectorsList: []Connector{},
		Signals:        []string{},
	}
}
