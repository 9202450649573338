package agent

// ModelInfo is one entry of the model dropdown catalog.
type ModelInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

const DefaultModel = "openai/gpt-4.1-nano"

// Catalog lists the gateway models offered to the chat caller, cheapest
// first. Requests naming a model outside the catalog are rejected.
var Catalog = []ModelInfo{
	{ID: "openai/gpt-4.1-nano", Label: "GPT-4.1 Nano"},
	{ID: "openai/gpt-4o-mini", Label: "GPT-4o Mini"},
	{ID: "google/gemini-flash-1.5-8b", Label: "Gemini 1.5 Flash 8B"},
	{ID: "deepseek/deepseek-chat", Label: "DeepSeek Chat"},
	{ID: "anthropic/claude-3-haiku", Label: "Claude 3 Haiku"},
	{ID: "openai/gpt-4o", Label: "GPT-4o"},
	{ID: "anthropic/claude-sonnet-4", Label: "Claude Sonnet 4"},
	{ID: "google/gemini-2.5-pro", Label: "Gemini 2.5 Pro"},
}

func ValidModel(id string) bool {
	for _, m := range Catalog {
		if m.ID == id {
			return true
		}
	}
	return false
}
