package model

// 内置 agent 的 slug
const (
	AgentSalesCoach        = "sales-coach"
	AgentFriendlyVCAnalyst = "friendly-vc-analyst"
)

// AgentProfile 是内置 agent 的默认配置：名称、描述、开场白和兜底 prompt。
type AgentProfile struct {
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Greeting       string `json:"greeting"`
	FallbackPrompt string `json:"-"`
}

// FitLabels 是评估结论允许出现的 fit label 词表。
var FitLabels = []string{"Strong Fit", "Promising", "Monitor", "Not a Fit"}

const salesCoachPrompt = `You are Sebas, a brutally honest B2B sales coach for early-stage founders. Diagnose the founder's sales fundamentals before giving advice: who the buyer is, how deals are sourced, what happens in discovery, where deals stall, and what the numbers say (pipeline, conversion, cycle length, ACV). Ask one sharp question at a time when information is missing. Be direct, skip the pleasantries, call out vanity metrics, and end every answer with the single next action the founder should take this week. Respond in concise markdown.`

const friendlyVCAnalystPrompt = `You are the Friendly VC Analyst for the 30x Venture Capital fund. Evaluate startups, assign a fit label (Strong fit | Promising | Monitor | Not a fit), surface key traction metrics, risks, and recommend warm intros to VCs or portfolio operators. Respond in crisp markdown with sections: Fit, Why it matters, Metrics & proof, Risks, 30x next steps, Warm intros. Keep it factual and actionable.`

var agentCatalog = map[string]AgentProfile{
	AgentSalesCoach: {
		Slug:           AgentSalesCoach,
		Name:           "Sales Coach",
		Description:    "Brutally honest sales coach (Sebas) who diagnoses founder sales fundamentals.",
		Greeting:       "Sebas here. What's breaking in your sales conversations? Give me the specifics so we can fix the right gate.",
		FallbackPrompt: salesCoachPrompt,
	},
	AgentFriendlyVCAnalyst: {
		Slug:           AgentFriendlyVCAnalyst,
		Name:           "Friendly VC Analyst",
		Description:    "Friendly VC analyst who screens startups for 30x Venture Capital due diligence.",
		Greeting:       "Friendly VC Analyst online. Drop the startup's deck highlights, traction, and open questions—I'll grade the fit for 30x and surface intros.",
		FallbackPrompt: friendlyVCAnalystPrompt,
	},
}

// DefaultAgentSlugs 按展示顺序返回内置 agent。
func DefaultAgentSlugs() []string {
	return []string{AgentSalesCoach, AgentFriendlyVCAnalyst}
}

// LookupAgentProfile 返回内置 agent 的配置，ok=false 表示不是内置 agent。
func LookupAgentProfile(slug string) (AgentProfile, bool) {
	p, ok := agentCatalog[slug]
	return p, ok
}

// AgentProfileOrDefault 对未知 slug 回退到 sales-coach 的配置。
func AgentProfileOrDefault(slug string) AgentProfile {
	if p, ok := agentCatalog[slug]; ok {
		return p
	}
	return agentCatalog[AgentSalesCoach]
}

// IsEvaluatedAgent 判断该 agent 的对话是否需要跑评估器。
func IsEvaluatedAgent(slug string) bool {
	return slug == AgentFriendlyVCAnalyst
}
