package registry

// IFlowModelPrefix is the iflow- prefix used for explicit-routing aliases,
// mirroring CodexModelPrefix.
const IFlowModelPrefix = "iflow-"

func gpt5Family() []*ModelInfo {
	efforts := []string{"minimal", "low", "medium", "high"}
	codexEfforts := []string{"low", "medium", "high"}
	miniEfforts := []string{"medium", "high"}

	models := []*ModelInfo{
		{ID: "gpt-5", DisplayName: "GPT-5", Description: "OpenAI flagship reasoning model", ContextLength: 400000, MaxCompletionTokens: 128000},
	}
	for _, e := range efforts {
		models = append(models, &ModelInfo{
			ID:          "gpt-5-" + e,
			DisplayName: "GPT-5 (" + e + ")",
			Description: "GPT-5 at " + e + " reasoning effort", ContextLength: 400000, MaxCompletionTokens: 128000,
		})
	}
	models = append(models, &ModelInfo{ID: "gpt-5-codex", DisplayName: "GPT-5 Codex", Description: "GPT-5 tuned for Codex CLI", ContextLength: 400000, MaxCompletionTokens: 128000})
	for _, e := range codexEfforts {
		models = append(models, &ModelInfo{ID: "gpt-5-codex-" + e, DisplayName: "GPT-5 Codex (" + e + ")", Description: "GPT-5 Codex at " + e + " reasoning effort", ContextLength: 400000, MaxCompletionTokens: 128000})
	}
	models = append(models, &ModelInfo{ID: "gpt-5-codex-mini", DisplayName: "GPT-5 Codex Mini", Description: "Smaller, faster GPT-5 Codex variant", ContextLength: 272000, MaxCompletionTokens: 64000})
	for _, e := range miniEfforts {
		models = append(models, &ModelInfo{ID: "gpt-5-codex-mini-" + e, DisplayName: "GPT-5 Codex Mini (" + e + ")", Description: "GPT-5 Codex Mini at " + e + " reasoning effort", ContextLength: 272000, MaxCompletionTokens: 64000})
	}
	return models
}

func gpt51Family() []*ModelInfo {
	efforts := []string{"none", "low", "medium", "high"}
	codexEfforts := []string{"low", "medium", "high"}
	miniEfforts := []string{"medium", "high"}
	maxEfforts := []string{"low", "medium", "high", "xhigh"}

	models := []*ModelInfo{
		{ID: "gpt-5.1", DisplayName: "GPT-5.1", Description: "OpenAI GPT-5.1 reasoning model", ContextLength: 400000, MaxCompletionTokens: 128000},
	}
	for _, e := range efforts {
		models = append(models, &ModelInfo{ID: "gpt-5.1-" + e, DisplayName: "GPT-5.1 (" + e + ")", Description: "GPT-5.1 at " + e + " reasoning effort", ContextLength: 400000, MaxCompletionTokens: 128000})
	}
	models = append(models, &ModelInfo{ID: "gpt-5.1-codex", DisplayName: "GPT-5.1 Codex", Description: "GPT-5.1 tuned for Codex CLI", ContextLength: 400000, MaxCompletionTokens: 128000})
	for _, e := range codexEfforts {
		models = append(models, &ModelInfo{ID: "gpt-5.1-codex-" + e, DisplayName: "GPT-5.1 Codex (" + e + ")", Description: "GPT-5.1 Codex at " + e + " reasoning effort", ContextLength: 400000, MaxCompletionTokens: 128000})
	}
	models = append(models, &ModelInfo{ID: "gpt-5.1-codex-mini", DisplayName: "GPT-5.1 Codex Mini", Description: "Smaller, faster GPT-5.1 Codex variant", ContextLength: 272000, MaxCompletionTokens: 64000})
	for _, e := range miniEfforts {
		models = append(models, &ModelInfo{ID: "gpt-5.1-codex-mini-" + e, DisplayName: "GPT-5.1 Codex Mini (" + e + ")", Description: "GPT-5.1 Codex Mini at " + e + " reasoning effort", ContextLength: 272000, MaxCompletionTokens: 64000})
	}
	models = append(models, &ModelInfo{ID: "gpt-5.1-codex-max", DisplayName: "GPT-5.1 Codex Max", Description: "Highest-context GPT-5.1 Codex variant", ContextLength: 512000, MaxCompletionTokens: 128000})
	for _, e := range maxEfforts {
		models = append(models, &ModelInfo{ID: "gpt-5.1-codex-max-" + e, DisplayName: "GPT-5.1 Codex Max (" + e + ")", Description: "GPT-5.1 Codex Max at " + e + " reasoning effort", ContextLength: 512000, MaxCompletionTokens: 128000})
	}
	return models
}

func gpt52Family() []*ModelInfo {
	efforts := []string{"none", "low", "medium", "high", "xhigh"}
	codexEfforts := []string{"low", "medium", "high", "xhigh"}

	models := []*ModelInfo{
		{ID: "gpt-5.2", DisplayName: "GPT-5.2", Description: "OpenAI GPT-5.2 reasoning model", ContextLength: 400000, MaxCompletionTokens: 128000},
	}
	for _, e := range efforts {
		models = append(models, &ModelInfo{ID: "gpt-5.2-" + e, DisplayName: "GPT-5.2 (" + e + ")", Description: "GPT-5.2 at " + e + " reasoning effort", ContextLength: 400000, MaxCompletionTokens: 128000})
	}
	models = append(models, &ModelInfo{ID: "gpt-5.2-codex", DisplayName: "GPT-5.2 Codex", Description: "GPT-5.2 tuned for Codex CLI", ContextLength: 400000, MaxCompletionTokens: 128000})
	for _, e := range codexEfforts {
		models = append(models, &ModelInfo{ID: "gpt-5.2-codex-" + e, DisplayName: "GPT-5.2 Codex (" + e + ")", Description: "GPT-5.2 Codex at " + e + " reasoning effort", ContextLength: 400000, MaxCompletionTokens: 128000})
	}
	return models
}

func gpt53CodexFamily() []*ModelInfo {
	efforts := []string{"low", "medium", "high", "xhigh"}
	models := []*ModelInfo{
		{ID: "gpt-5.3-codex", DisplayName: "GPT-5.3 Codex", Description: "Latest GPT-5.3 Codex model", ContextLength: 400000, MaxCompletionTokens: 128000},
	}
	for _, e := range efforts {
		models = append(models, &ModelInfo{ID: "gpt-5.3-codex-" + e, DisplayName: "GPT-5.3 Codex (" + e + ")", Description: "GPT-5.3 Codex at " + e + " reasoning effort", ContextLength: 400000, MaxCompletionTokens: 128000})
	}
	return models
}

// GetOpenAIModels returns the closed set of Codex/ChatGPT-backend model IDs
// this proxy knows how to route, before codex- alias expansion.
func GetOpenAIModels() []*ModelInfo {
	var models []*ModelInfo
	models = append(models, gpt5Family()...)
	models = append(models, gpt51Family()...)
	models = append(models, gpt52Family()...)
	models = append(models, gpt53CodexFamily()...)
	for _, m := range models {
		m.Object = "model"
		m.OwnedBy = "openai"
		m.Type = "openai"
	}
	return models
}

// GetIFlowModels returns the closed set of iFlow-backed model IDs, before
// iflow- alias expansion.
func GetIFlowModels() []*ModelInfo {
	models := []*ModelInfo{
		{ID: "qwen3-max", DisplayName: "Qwen3 Max", Description: "iFlow-hosted Qwen3 Max", ContextLength: 256000, MaxCompletionTokens: 32000},
		{ID: "deepseek-v3.2", DisplayName: "DeepSeek V3.2", Description: "iFlow-hosted DeepSeek V3.2", ContextLength: 128000, MaxCompletionTokens: 32000},
		{ID: "kimi-k2", DisplayName: "Kimi K2", Description: "iFlow-hosted Kimi K2", ContextLength: 128000, MaxCompletionTokens: 32000},
	}
	for _, m := range models {
		m.Object = "model"
		m.OwnedBy = "iflow"
		m.Type = "openai"
	}
	return models
}
